package hyperlane

import "github.com/cockroachdb/errors"

// ErrDecode marks every failure to decode a single event. It is never fatal
// for the stream.
var ErrDecode = errors.New("decode error")

var (
	ErrTruncated      = errors.Mark(errors.New("truncated event data"), ErrDecode)
	ErrUnknownVariant = errors.Mark(errors.New("unknown variant"), ErrDecode)
	ErrInvalidUTF8    = errors.Mark(errors.New("invalid utf-8 string"), ErrDecode)
)

// reader consumes field elements strictly left to right.
type reader struct {
	data []Felt
	pos  int
}

func newReader(data []Felt) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) next(field string) (Felt, error) {
	if r.pos >= len(r.data) {
		return Felt{}, errors.Wrapf(ErrTruncated, "missing %s at word %d", field, r.pos)
	}
	f := r.data[r.pos]
	r.pos++
	return f, nil
}

func (r *reader) u8(field string) (uint8, error) {
	f, err := r.next(field)
	return f.Uint8(), err
}

func (r *reader) u16(field string) (uint16, error) {
	f, err := r.next(field)
	return f.Uint16(), err
}

func (r *reader) u32(field string) (uint32, error) {
	f, err := r.next(field)
	return f.Uint32(), err
}

func (r *reader) u64(field string) (uint64, error) {
	f, err := r.next(field)
	return f.Uint64(), err
}

// u256 reads a value split in a high word followed by a low word.
func (r *reader) u256(field string) (U256, error) {
	hi, err := r.next(field + " high")
	if err != nil {
		return U256{}, err
	}
	lo, err := r.next(field + " low")
	if err != nil {
		return U256{}, err
	}
	return U256FromWords(hi.Uint128(), lo.Uint128()), nil
}
