package hyperlane

import (
	"encoding/binary"
	"encoding/json"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/pragma-labs/feed-relayer/feed"
)

// DispatchEvent is a Dispatch event emitted by the source-chain mailbox.
type DispatchEvent struct {
	Sender            U256            `json:"sender"`
	DestinationDomain uint32          `json:"destination_domain"`
	Recipient         U256            `json:"recipient"`
	Message           DispatchMessage `json:"message"`
}

type DispatchMessage struct {
	Header Header `json:"header"`
	Body   Body   `json:"body"`
}

type Header struct {
	Version     uint8  `json:"version"`
	Nonce       uint32 `json:"nonce"`
	Origin      uint32 `json:"origin"`
	Sender      U256   `json:"sender"`
	Destination uint32 `json:"destination"`
	Recipient   U256   `json:"recipient"`
}

type Body struct {
	Count   uint16   `json:"count"`
	Updates []Update `json:"updates"`
}

// Nonce returns the correlation ordinal of the dispatch.
func (e *DispatchEvent) Nonce() uint32 {
	return e.Message.Header.Nonce
}

// MessageID returns the keccak id of the dispatched message.
func (e *DispatchEvent) MessageID() U256 {
	return MessageID(e.Message)
}

// Update is a single feed update carried by a dispatch. SpotMedianUpdate is
// the only variant decoded today.
type Update interface {
	FeedType() feed.FeedType
	FeedID() feed.ID
	PublishTime() uint64
	// Bytes is the payload relayed to destination chains.
	Bytes() []byte
	appendMessage(b []byte) []byte
}

type SpotMedianUpdate struct {
	AssetClass           feed.AssetClass `json:"asset_class"`
	PairID               U256            `json:"pair_id"`
	RawPrice             U256            `json:"raw_price"`
	Price                decimal.Decimal `json:"price"`
	Volume               U256            `json:"volume"`
	Decimals             uint8           `json:"decimals"`
	Timestamp            uint64          `json:"timestamp"`
	NumSourcesAggregated uint16          `json:"num_sources_aggregated"`

	feedID feed.ID
}

var _ Update = (*SpotMedianUpdate)(nil)

// SpotMedianUpdateSize is the length of SpotMedianUpdate.Bytes.
const SpotMedianUpdateSize = 32 + 8 + 2 + 1 + 32 + 32

// NewSpotMedianUpdate validates the pair id and computes the price.
func NewSpotMedianUpdate(assetClass feed.AssetClass, pairID, rawPrice, volume U256, decimals uint8, timestamp uint64, sources uint16) (*SpotMedianUpdate, error) {
	pair := Felt(pairID).TrimmedBytes()
	if !utf8.Valid(pair) {
		return nil, errors.Wrapf(ErrInvalidUTF8, "pair id %s", pairID)
	}
	id, err := feed.Encode(assetClass, feed.FeedTypeSpotMedian, string(pair))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "pair id %s", pairID), ErrDecode)
	}
	return &SpotMedianUpdate{
		AssetClass:           assetClass,
		PairID:               pairID,
		RawPrice:             rawPrice,
		Price:                decimal.NewFromBigInt(rawPrice.Big(), -int32(decimals)),
		Volume:               volume,
		Decimals:             decimals,
		Timestamp:            timestamp,
		NumSourcesAggregated: sources,
		feedID:               id,
	}, nil
}

// UnmarshalJSON restores the derived fields of a persisted update.
func (u *SpotMedianUpdate) UnmarshalJSON(bz []byte) error {
	type plain SpotMedianUpdate
	var p plain
	if err := json.Unmarshal(bz, &p); err != nil {
		return err
	}
	decoded, err := NewSpotMedianUpdate(p.AssetClass, p.PairID, p.RawPrice, p.Volume, p.Decimals, p.Timestamp, p.NumSourcesAggregated)
	if err != nil {
		return err
	}
	*u = *decoded
	return nil
}

func (u *SpotMedianUpdate) FeedType() feed.FeedType { return feed.FeedTypeSpotMedian }

func (u *SpotMedianUpdate) FeedID() feed.ID { return u.feedID }

func (u *SpotMedianUpdate) PublishTime() uint64 { return u.Timestamp }

// Bytes layout: pair_id:32 timestamp:8 num_sources:2 decimals:1 price:32 volume:32.
func (u *SpotMedianUpdate) Bytes() []byte {
	b := make([]byte, 0, SpotMedianUpdateSize)
	b = append(b, u.PairID[:]...)
	b = binary.BigEndian.AppendUint64(b, u.Timestamp)
	b = binary.BigEndian.AppendUint16(b, u.NumSourcesAggregated)
	b = append(b, u.Decimals)
	b = append(b, u.RawPrice[:]...)
	return append(b, u.Volume[:]...)
}

func (u *SpotMedianUpdate) appendMessage(b []byte) []byte {
	b = append(b, byte(u.AssetClass))
	b = binary.BigEndian.AppendUint16(b, uint16(feed.FeedTypeSpotMedian))
	b = append(b, u.PairID[:]...)
	b = append(b, u.RawPrice[:]...)
	b = append(b, u.Volume[:]...)
	b = append(b, u.Decimals)
	b = binary.BigEndian.AppendUint64(b, u.Timestamp)
	return binary.BigEndian.AppendUint16(b, u.NumSourcesAggregated)
}

// DecodeDispatchEvent decodes the data of a Dispatch event:
//
//	sender(2) destination_domain(1) recipient(2)
//	header: version nonce origin sender(2) destination recipient(2)
//	body: count, then per update asset_class feed_type pair_id(2) and the
//	variant fields; SpotMedian carries price(2) volume(2) decimals timestamp sources.
func DecodeDispatchEvent(data []Felt) (*DispatchEvent, error) {
	r := newReader(data)

	var (
		ev  DispatchEvent
		err error
	)
	if ev.Sender, err = r.u256("sender"); err != nil {
		return nil, err
	}
	if ev.DestinationDomain, err = r.u32("destination domain"); err != nil {
		return nil, err
	}
	if ev.Recipient, err = r.u256("recipient"); err != nil {
		return nil, err
	}
	if ev.Message.Header, err = decodeHeader(r); err != nil {
		return nil, err
	}
	if ev.Message.Body, err = decodeBody(r); err != nil {
		return nil, err
	}
	return &ev, nil
}

func decodeHeader(r *reader) (h Header, err error) {
	if h.Version, err = r.u8("version"); err != nil {
		return
	}
	if h.Nonce, err = r.u32("nonce"); err != nil {
		return
	}
	if h.Origin, err = r.u32("origin"); err != nil {
		return
	}
	if h.Sender, err = r.u256("header sender"); err != nil {
		return
	}
	if h.Destination, err = r.u32("header destination"); err != nil {
		return
	}
	h.Recipient, err = r.u256("header recipient")
	return
}

func decodeBody(r *reader) (Body, error) {
	count, err := r.u16("update count")
	if err != nil {
		return Body{}, err
	}
	updates := make([]Update, 0, min(int(count), r.remaining()))
	for i := 0; i < int(count); i++ {
		u, err := decodeUpdate(r)
		if err != nil {
			return Body{}, errors.Wrapf(err, "update %d/%d", i+1, count)
		}
		updates = append(updates, u)
	}
	return Body{Count: count, Updates: updates}, nil
}

func decodeUpdate(r *reader) (Update, error) {
	rawAssetClass, err := r.u8("asset class")
	if err != nil {
		return nil, err
	}
	assetClass := feed.AssetClass(rawAssetClass)
	if !assetClass.Valid() {
		return nil, errors.Wrapf(ErrUnknownVariant, "asset class %d", rawAssetClass)
	}
	rawFeedType, err := r.u16("feed type")
	if err != nil {
		return nil, err
	}
	pairID, err := r.u256("pair id")
	if err != nil {
		return nil, err
	}

	switch feed.FeedType(rawFeedType) {
	case feed.FeedTypeSpotMedian:
		return decodeSpotMedian(r, assetClass, pairID)
	default:
		return nil, errors.Wrapf(ErrUnknownVariant, "update type %d", rawFeedType)
	}
}

func decodeSpotMedian(r *reader, assetClass feed.AssetClass, pairID U256) (*SpotMedianUpdate, error) {
	price, err := r.u256("price")
	if err != nil {
		return nil, err
	}
	volume, err := r.u256("volume")
	if err != nil {
		return nil, err
	}
	decimals, err := r.u8("decimals")
	if err != nil {
		return nil, err
	}
	timestamp, err := r.u64("timestamp")
	if err != nil {
		return nil, err
	}
	sources, err := r.u16("sources aggregated")
	if err != nil {
		return nil, err
	}
	return NewSpotMedianUpdate(assetClass, pairID, price, volume, decimals, timestamp, sources)
}

// EncodeDispatchEvent is the inverse of DecodeDispatchEvent.
func EncodeDispatchEvent(ev *DispatchEvent) []Felt {
	var out []Felt
	u256 := func(u U256) {
		var hi, lo Felt
		copy(hi[16:], u[:16])
		copy(lo[16:], u[16:])
		out = append(out, hi, lo)
	}
	word := func(v uint64) {
		out = append(out, FeltFromUint64(v))
	}

	u256(ev.Sender)
	word(uint64(ev.DestinationDomain))
	u256(ev.Recipient)

	h := ev.Message.Header
	word(uint64(h.Version))
	word(uint64(h.Nonce))
	word(uint64(h.Origin))
	u256(h.Sender)
	word(uint64(h.Destination))
	u256(h.Recipient)

	word(uint64(ev.Message.Body.Count))
	for _, u := range ev.Message.Body.Updates {
		switch u := u.(type) {
		case *SpotMedianUpdate:
			word(uint64(u.AssetClass))
			word(uint64(feed.FeedTypeSpotMedian))
			u256(u.PairID)
			u256(u.RawPrice)
			u256(u.Volume)
			word(uint64(u.Decimals))
			word(u.Timestamp)
			word(uint64(u.NumSourcesAggregated))
		}
	}
	return out
}
