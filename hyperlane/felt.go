package hyperlane

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
)

// Felt is a source-chain field element in big-endian form. Integer accessors
// read the low-order bytes only; the chain guarantees values fit.
type Felt [32]byte

func FeltFromUint64(v uint64) Felt {
	var f Felt
	binary.BigEndian.PutUint64(f[24:], v)
	return f
}

// FeltFromBytes left-pads bz into a felt.
func FeltFromBytes(bz []byte) (Felt, error) {
	var f Felt
	if len(bz) > len(f) {
		return f, errors.Newf("%d bytes do not fit in a field element", len(bz))
	}
	copy(f[len(f)-len(bz):], bz)
	return f, nil
}

// FeltFromString packs a short ASCII string into a felt, as the chain does
// for short strings.
func FeltFromString(s string) (Felt, error) {
	return FeltFromBytes([]byte(s))
}

func ParseFelt(s string) (Felt, error) {
	bz, err := decodeHex(s, 32)
	if err != nil {
		return Felt{}, errors.Wrapf(err, "invalid field element %q", s)
	}
	return FeltFromBytes(bz)
}

func MustParseFelt(s string) Felt {
	f, err := ParseFelt(s)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Felt) Uint8() uint8 { return f[31] }

func (f Felt) Uint16() uint16 { return binary.BigEndian.Uint16(f[30:]) }

func (f Felt) Uint32() uint32 { return binary.BigEndian.Uint32(f[28:]) }

func (f Felt) Uint64() uint64 { return binary.BigEndian.Uint64(f[24:]) }

// Uint128 returns the low 16 bytes.
func (f Felt) Uint128() [16]byte {
	var out [16]byte
	copy(out[:], f[16:])
	return out
}

func (f Felt) Big() *big.Int {
	return new(big.Int).SetBytes(f[:])
}

// TrimmedBytes returns the felt without its leading zero bytes.
func (f Felt) TrimmedBytes() []byte {
	i := 0
	for i < len(f) && f[i] == 0 {
		i++
	}
	return f[i:]
}

func (f Felt) IsZero() bool {
	return f == Felt{}
}

func (f Felt) String() string {
	return "0x" + hex.EncodeToString(f[:])
}

func (f Felt) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Felt) UnmarshalText(text []byte) error {
	parsed, err := ParseFelt(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// decodeHex decodes an optionally 0x-prefixed hex string of at most max bytes.
// Odd-length input is accepted as if it had a leading zero nibble.
func decodeHex(s string, max int) ([]byte, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if raw == "" {
		return nil, errors.New("empty hex string")
	}
	if len(raw)%2 != 0 {
		raw = "0" + raw
	}
	bz, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(bz) > max {
		// tolerate zero padding beyond the target width
		extra := bz[:len(bz)-max]
		for _, b := range extra {
			if b != 0 {
				return nil, errors.Newf("value exceeds %d bytes", max)
			}
		}
		bz = bz[len(bz)-max:]
	}
	return bz, nil
}
