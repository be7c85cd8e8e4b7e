package feed

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

const (
	AssetClassSize = 1
	FeedTypeSize   = 2
	PairIDSize     = 32
	HeaderSize     = AssetClassSize + FeedTypeSize
	// IDSize is the length of a canonical feed id.
	IDSize = HeaderSize + PairIDSize
)

var ErrInvalidFeedID = errors.New("invalid feed id")

type AssetClass uint8

const (
	AssetClassCrypto AssetClass = 1
)

func (a AssetClass) String() string {
	switch a {
	case AssetClassCrypto:
		return "Crypto"
	default:
		return fmt.Sprintf("AssetClass(%d)", uint8(a))
	}
}

func (a AssetClass) Valid() bool {
	return a == AssetClassCrypto
}

type FeedType uint16

const (
	FeedTypeSpotMedian         FeedType = 21325 // "SM"
	FeedTypeTwap               FeedType = 21591 // "TW"
	FeedTypeRealizedVolatility FeedType = 21078 // "RV"
	FeedTypeOptions            FeedType = 20304 // "OP"
	FeedTypePerp               FeedType = 20560 // "PP"
)

var feedTypeNames = map[FeedType]string{
	FeedTypeSpotMedian:         "Spot Median",
	FeedTypeTwap:               "Twap",
	FeedTypeRealizedVolatility: "Realized Volatility",
	FeedTypeOptions:            "Options",
	FeedTypePerp:               "Perp",
}

func (t FeedType) String() string {
	if name, ok := feedTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FeedType(%d)", uint16(t))
}

func (t FeedType) Valid() bool {
	_, ok := feedTypeNames[t]
	return ok
}

// Feed is the decoded form of a feed id.
type Feed struct {
	AssetClass AssetClass `json:"asset_class"`
	FeedType   FeedType   `json:"feed_type"`
	PairID     string     `json:"pair_id"`
}

// ID returns the canonical encoding of the feed.
func (f Feed) ID() (ID, error) {
	return Encode(f.AssetClass, f.FeedType, f.PairID)
}

// ID is the canonical 35-byte feed identifier: asset class, feed type and a
// pair id whose bytes occupy the end of its 32-byte field.
type ID [IDSize]byte

func (id ID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Compact returns the header followed by the pair id without its zero
// padding, which is the short form users and destination contracts use.
func (id ID) Compact() []byte {
	pair := id[HeaderSize:]
	i := 0
	for i < len(pair) && pair[i] == 0 {
		i++
	}
	out := make([]byte, 0, HeaderSize+len(pair)-i)
	out = append(out, id[:HeaderSize]...)
	return append(out, pair[i:]...)
}

// Uint256 returns the compact form as a big-endian 32-byte integer. It fails
// when the compact form is longer than 32 bytes.
func (id ID) Uint256() ([32]byte, error) {
	var out [32]byte
	compact := id.Compact()
	if len(compact) > len(out) {
		return out, errors.Wrapf(ErrInvalidFeedID, "feed id %s does not fit in 32 bytes", id)
	}
	copy(out[len(out)-len(compact):], compact)
	return out, nil
}

// Encode builds the canonical id for the given components.
func Encode(assetClass AssetClass, feedType FeedType, pairID string) (ID, error) {
	var id ID
	if !assetClass.Valid() {
		return id, errors.Wrapf(ErrInvalidFeedID, "unknown asset class %d", uint8(assetClass))
	}
	if !feedType.Valid() {
		return id, errors.Wrapf(ErrInvalidFeedID, "unknown feed type %d", uint16(feedType))
	}
	pair := strings.TrimLeft(pairID, "\x00")
	if pair == "" {
		return id, errors.Wrap(ErrInvalidFeedID, "empty pair id")
	}
	if len(pair) > PairIDSize {
		return id, errors.Wrapf(ErrInvalidFeedID, "pair id %q is longer than %d bytes", pair, PairIDSize)
	}
	id[0] = byte(assetClass)
	binary.BigEndian.PutUint16(id[AssetClassSize:HeaderSize], uint16(feedType))
	copy(id[IDSize-len(pair):], pair)
	return id, nil
}

// Decode parses a hex feed id, with or without the 0x prefix. Inputs shorter
// than the canonical size keep their header and have their pair bytes moved to
// the end of the pair field.
func Decode(s string) (Feed, error) {
	raw := strings.TrimPrefix(s, "0x")
	if len(raw)%2 != 0 {
		return Feed{}, errors.Wrapf(ErrInvalidFeedID, "odd length hex %q", s)
	}
	bz, err := hex.DecodeString(raw)
	if err != nil {
		return Feed{}, errors.Wrapf(ErrInvalidFeedID, "malformed hex %q: %v", s, err)
	}
	if len(bz) < HeaderSize {
		return Feed{}, errors.Wrapf(ErrInvalidFeedID, "feed id %q is too short", s)
	}
	if len(bz) > IDSize {
		return Feed{}, errors.Wrapf(ErrInvalidFeedID, "feed id %q is too long", s)
	}

	var id ID
	copy(id[:HeaderSize], bz[:HeaderSize])
	pairBytes := bz[HeaderSize:]
	copy(id[IDSize-len(pairBytes):], pairBytes)

	return decodeID(id)
}

func decodeID(id ID) (Feed, error) {
	assetClass := AssetClass(id[0])
	if !assetClass.Valid() {
		return Feed{}, errors.Wrapf(ErrInvalidFeedID, "unknown asset class %d", id[0])
	}
	feedType := FeedType(binary.BigEndian.Uint16(id[AssetClassSize:HeaderSize]))
	if !feedType.Valid() {
		return Feed{}, errors.Wrapf(ErrInvalidFeedID, "unknown feed type %d", uint16(feedType))
	}
	pair := id[HeaderSize:]
	if !utf8.Valid(pair) {
		return Feed{}, errors.Wrap(ErrInvalidFeedID, "pair id is not valid utf-8")
	}
	pairID := strings.TrimLeft(string(pair), "\x00")
	if pairID == "" {
		return Feed{}, errors.Wrap(ErrInvalidFeedID, "empty pair id")
	}
	return Feed{AssetClass: assetClass, FeedType: feedType, PairID: pairID}, nil
}

// ParseID decodes s and returns its canonical id.
func ParseID(s string) (ID, error) {
	f, err := Decode(s)
	if err != nil {
		return ID{}, err
	}
	return f.ID()
}

// DecodeID returns the components of a canonical id.
func DecodeID(id ID) (Feed, error) {
	return decodeID(id)
}
