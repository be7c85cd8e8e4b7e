package hyperlane

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
)

// U256 is a 256-bit unsigned integer in big-endian form.
type U256 [32]byte

// U256FromWords joins the high and low 128-bit halves.
func U256FromWords(hi, lo [16]byte) U256 {
	var u U256
	copy(u[:16], hi[:])
	copy(u[16:], lo[:])
	return u
}

func U256FromBig(v *big.Int) (U256, error) {
	var u U256
	if v.Sign() < 0 || v.BitLen() > 256 {
		return u, errors.Newf("%s does not fit in 256 bits", v)
	}
	v.FillBytes(u[:])
	return u, nil
}

func ParseU256(s string) (U256, error) {
	bz, err := decodeHex(s, 32)
	if err != nil {
		return U256{}, errors.Wrapf(err, "invalid uint256 %q", s)
	}
	var u U256
	copy(u[len(u)-len(bz):], bz)
	return u, nil
}

func MustParseU256(s string) U256 {
	u, err := ParseU256(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u U256) High() [16]byte {
	var out [16]byte
	copy(out[:], u[:16])
	return out
}

func (u U256) Low() [16]byte {
	var out [16]byte
	copy(out[:], u[16:])
	return out
}

func (u U256) Big() *big.Int {
	return new(big.Int).SetBytes(u[:])
}

func (u U256) IsZero() bool {
	return u == U256{}
}

func (u U256) String() string {
	return "0x" + hex.EncodeToString(u[:])
}

func (u U256) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *U256) UnmarshalText(text []byte) error {
	parsed, err := ParseU256(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// EthAddress identifies a validator by its 20-byte signing address.
type EthAddress [20]byte

func ParseEthAddress(s string) (EthAddress, error) {
	var a EthAddress
	bz, err := decodeHex(s, len(a))
	if err != nil {
		return a, errors.Wrapf(err, "invalid address %q", s)
	}
	copy(a[len(a)-len(bz):], bz)
	return a, nil
}

func MustParseEthAddress(s string) EthAddress {
	a, err := ParseEthAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// EthAddressFromFelt fails if the felt carries more than 20 bytes.
func EthAddressFromFelt(f Felt) (EthAddress, error) {
	var a EthAddress
	for _, b := range f[:len(f)-len(a)] {
		if b != 0 {
			return a, errors.Newf("field element %s is not an eth address", f)
		}
	}
	copy(a[:], f[len(f)-len(a):])
	return a, nil
}

func (a EthAddress) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a EthAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *EthAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseEthAddress(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
