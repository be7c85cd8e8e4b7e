package hyperlane

import (
	"encoding/hex"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/pragma-labs/feed-relayer/feed"
)

// ValidatorAnnouncementEvent declares where a validator publishes its signed
// checkpoints.
type ValidatorAnnouncementEvent struct {
	Validator       EthAddress `json:"validator"`
	StorageLocation string     `json:"storage_location"`
}

// DecodeValidatorAnnouncementEvent reads the validator address followed by
// the storage location packed as ASCII, a few characters per word.
func DecodeValidatorAnnouncementEvent(data []Felt) (*ValidatorAnnouncementEvent, error) {
	r := newReader(data)
	word, err := r.next("validator")
	if err != nil {
		return nil, err
	}
	validator, err := EthAddressFromFelt(word)
	if err != nil {
		return nil, errors.Mark(err, ErrDecode)
	}
	if r.remaining() == 0 {
		return nil, errors.Wrap(ErrTruncated, "missing storage location")
	}
	location, err := UnpackString(data[r.pos:])
	if err != nil {
		return nil, err
	}
	return &ValidatorAnnouncementEvent{Validator: validator, StorageLocation: location}, nil
}

// UnpackString concatenates the significant bytes of every word.
func UnpackString(words []Felt) (string, error) {
	var b []byte
	for _, w := range words {
		b = append(b, w.TrimmedBytes()...)
	}
	if !utf8.Valid(b) {
		return "", errors.Wrapf(ErrInvalidUTF8, "%d packed words", len(words))
	}
	return string(b), nil
}

// PackString is the inverse of UnpackString, 31 bytes per word.
func PackString(s string) []Felt {
	const chunk = 31
	var words []Felt
	for len(s) > 0 {
		n := min(chunk, len(s))
		w, _ := FeltFromString(s[:n])
		words = append(words, w)
		s = s[n:]
	}
	return words
}

// FeedRegistryEvent is a NewFeedId or RemovedFeedId event of the feed
// registry; the feed id is its second word in compact form.
type FeedRegistryEvent struct {
	FeedID feed.ID `json:"feed_id"`
}

func DecodeFeedRegistryEvent(data []Felt) (*FeedRegistryEvent, error) {
	r := newReader(data)
	if _, err := r.next("caller"); err != nil {
		return nil, err
	}
	word, err := r.next("feed id")
	if err != nil {
		return nil, err
	}
	id, err := feed.ParseID(hex.EncodeToString(word.TrimmedBytes()))
	if err != nil {
		return nil, errors.Mark(err, ErrDecode)
	}
	return &FeedRegistryEvent{FeedID: id}, nil
}
