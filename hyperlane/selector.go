package hyperlane

// Selector returns the event selector for name: keccak-256 truncated to 250
// bits.
func Selector(name string) Felt {
	f := Felt(keccak256([]byte(name)))
	f[0] &= 0x03
	return f
}

var (
	DispatchSelector              = Selector("Dispatch")
	ValidatorAnnouncementSelector = Selector("ValidatorAnnouncement")
	NewFeedIDSelector             = Selector("NewFeedId")
	RemovedFeedIDSelector         = Selector("RemovedFeedId")
)
