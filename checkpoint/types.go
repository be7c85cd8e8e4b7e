package checkpoint

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sugawarayuuta/sonnet"

	"github.com/pragma-labs/feed-relayer/hyperlane"
)

// ErrDecode marks a checkpoint object that exists but cannot be parsed.
var ErrDecode = errors.New("invalid checkpoint object")

// Checkpoint is a merkle tree hook checkpoint signed by a validator.
type Checkpoint struct {
	MerkleTreeHookAddress hyperlane.U256 `json:"merkle_tree_hook_address"`
	MailboxDomain         uint32         `json:"mailbox_domain"`
	Root                  hyperlane.U256 `json:"root"`
	Index                 uint32         `json:"index"`
}

type CheckpointWithMessageID struct {
	Checkpoint Checkpoint     `json:"checkpoint"`
	MessageID  hyperlane.U256 `json:"message_id"`
}

// Signature is a recoverable ECDSA signature.
type Signature struct {
	R [32]byte
	S [32]byte
	V uint8
}

// SignatureSize is the length of the r||s||v encoding.
const SignatureSize = 65

// Bytes returns r||s||v. A bare y-parity v is shifted to 27/28.
func (s Signature) Bytes() [SignatureSize]byte {
	var out [SignatureSize]byte
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	if s.V < 27 {
		out[64] = s.V + 27
	}
	return out
}

func (s Signature) String() string {
	b := s.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

type signatureJSON struct {
	R       string          `json:"r"`
	S       string          `json:"s"`
	V       json.RawMessage `json:"v,omitempty"`
	YParity json.RawMessage `json:"yParity,omitempty"`
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureJSON{
		R: "0x" + hex.EncodeToString(s.R[:]),
		S: "0x" + hex.EncodeToString(s.S[:]),
		V: json.RawMessage(strconv.Itoa(int(s.Bytes()[64]))),
	})
}

// UnmarshalJSON accepts either {r, s, v|yParity} or a 65-byte hex string.
func (s *Signature) UnmarshalJSON(bz []byte) error {
	if len(bz) > 0 && bz[0] == '"' {
		var str string
		if err := sonnet.Unmarshal(bz, &str); err != nil {
			return err
		}
		raw, err := hex.DecodeString(strings.TrimPrefix(str, "0x"))
		if err != nil {
			return errors.Wrap(err, "signature")
		}
		if len(raw) != SignatureSize {
			return errors.Newf("signature has %d bytes, expected %d", len(raw), SignatureSize)
		}
		copy(s.R[:], raw[:32])
		copy(s.S[:], raw[32:64])
		s.V = raw[64]
		return nil
	}

	var obj signatureJSON
	if err := sonnet.Unmarshal(bz, &obj); err != nil {
		return err
	}
	r, err := hyperlane.ParseU256(obj.R)
	if err != nil {
		return errors.Wrap(err, "signature r")
	}
	sv, err := hyperlane.ParseU256(obj.S)
	if err != nil {
		return errors.Wrap(err, "signature s")
	}
	rawV := obj.V
	if len(rawV) == 0 {
		rawV = obj.YParity
	}
	v, err := parseV(rawV)
	if err != nil {
		return err
	}
	s.R, s.S, s.V = r, sv, v
	return nil
}

// parseV reads v as a JSON number or a hex string.
func parseV(raw json.RawMessage) (uint8, error) {
	if len(raw) == 0 {
		return 0, errors.New("signature v is missing")
	}
	str := string(raw)
	base := 10
	if raw[0] == '"' {
		if err := sonnet.Unmarshal(raw, &str); err != nil {
			return 0, err
		}
		if strings.HasPrefix(str, "0x") {
			str, base = str[2:], 16
		}
	}
	v, err := strconv.ParseUint(str, base, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "signature v %s", raw)
	}
	return uint8(v), nil
}

// SignedCheckpoint is the object a validator publishes for every message.
type SignedCheckpoint struct {
	Value     CheckpointWithMessageID `json:"value"`
	Signature Signature               `json:"signature"`
}

// UnmarshalJSON also accepts "checkpoint" in place of "value".
func (c *SignedCheckpoint) UnmarshalJSON(bz []byte) error {
	var raw struct {
		Value      *CheckpointWithMessageID `json:"value"`
		Checkpoint *CheckpointWithMessageID `json:"checkpoint"`
		Signature  *Signature               `json:"signature"`
	}
	if err := sonnet.Unmarshal(bz, &raw); err != nil {
		return err
	}
	value := raw.Value
	if value == nil {
		value = raw.Checkpoint
	}
	if value == nil {
		return errors.New("missing checkpoint value")
	}
	if raw.Signature == nil {
		return errors.New("missing signature")
	}
	c.Value, c.Signature = *value, *raw.Signature
	return nil
}

// Decode parses a signed checkpoint object.
func Decode(bz []byte) (*SignedCheckpoint, error) {
	var c SignedCheckpoint
	if err := sonnet.Unmarshal(bz, &c); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to decode signed checkpoint"), ErrDecode)
	}
	return &c, nil
}

// Root returns the signed merkle root.
func (c *SignedCheckpoint) Root() hyperlane.U256 {
	return c.Value.Checkpoint.Root
}

func (c *SignedCheckpoint) MessageID() hyperlane.U256 {
	return c.Value.MessageID
}
