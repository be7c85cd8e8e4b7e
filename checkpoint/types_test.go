package checkpoint

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pragma-labs/feed-relayer/hyperlane"
)

const (
	testRoot      = "0x1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f809"
	testMessageID = "0x9f8e7d6c5b4a39281706f5e4d3c2b1a09f8e7d6c5b4a39281706f5e4d3c2b1a0"
	testR         = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testS         = "0x2222222222222222222222222222222222222222222222222222222222222222"
)

func testCheckpointJSON(index uint32) string {
	return `{
  "value": {
    "checkpoint": {
      "merkle_tree_hook_address": "0x00000000000000000000000000000000000000000000000000000000000000aa",
      "mailbox_domain": 23448594,
      "root": "` + testRoot + `",
      "index": ` + strconv.FormatUint(uint64(index), 10) + `
    },
    "message_id": "` + testMessageID + `"
  },
  "signature": {"r": "` + testR + `", "s": "` + testS + `", "v": 28},
  "serialized_signature": "0x00"
}`
}

func TestDecode(t *testing.T) {
	c, err := Decode([]byte(testCheckpointJSON(5)))
	require.NoError(t, err)

	assert.Equal(t, uint32(5), c.Value.Checkpoint.Index)
	assert.Equal(t, uint32(23448594), c.Value.Checkpoint.MailboxDomain)
	assert.Equal(t, hyperlane.MustParseU256(testRoot), c.Root())
	assert.Equal(t, hyperlane.MustParseU256(testMessageID), c.MessageID())
	assert.Equal(t, uint8(28), c.Signature.V)

	sig := c.Signature.Bytes()
	assert.Equal(t, byte(0x11), sig[0])
	assert.Equal(t, byte(0x22), sig[32])
	assert.Equal(t, byte(28), sig[64])
}

func TestDecodeCheckpointAlias(t *testing.T) {
	bz := `{
  "checkpoint": {
    "checkpoint": {"merkle_tree_hook_address": "0xaa", "mailbox_domain": 1, "root": "0x01", "index": 3},
    "message_id": "0x02"
  },
  "signature": "0x` + strings.Repeat("33", 64) + `1b"
}`
	c, err := Decode([]byte(bz))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), c.Value.Checkpoint.Index)
	assert.Equal(t, hyperlane.MustParseU256("0x02"), c.MessageID())
	assert.Equal(t, uint8(27), c.Signature.V)
	assert.Equal(t, byte(0x33), c.Signature.S[31])
}

func TestSignatureForms(t *testing.T) {
	cases := map[string]struct {
		in    string
		wantV byte
	}{
		"numeric v":  {`{"r":"` + testR + `","s":"` + testS + `","v":27}`, 27},
		"hex v":      {`{"r":"` + testR + `","s":"` + testS + `","v":"0x1c"}`, 28},
		"y parity":   {`{"r":"` + testR + `","s":"` + testS + `","yParity":"0x1"}`, 28},
		"zero v":     {`{"r":"` + testR + `","s":"` + testS + `","v":0}`, 27},
		"hex string": {`"0x` + strings.Repeat("11", 32) + strings.Repeat("22", 32) + `1c"`, 28},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			var sig Signature
			require.NoError(t, json.Unmarshal([]byte(c.in), &sig))
			b := sig.Bytes()
			assert.Equal(t, c.wantV, b[64])
			assert.Equal(t, byte(0x11), b[0])
			assert.Equal(t, byte(0x22), b[63])
		})
	}
}

func TestSignatureJSONRoundTrip(t *testing.T) {
	var sig Signature
	require.NoError(t, json.Unmarshal([]byte(`{"r":"`+testR+`","s":"`+testS+`","v":1}`), &sig))
	bz, err := json.Marshal(sig)
	require.NoError(t, err)

	var restored Signature
	require.NoError(t, json.Unmarshal(bz, &restored))
	assert.Equal(t, sig.Bytes(), restored.Bytes())
}

func TestDecodeErrors(t *testing.T) {
	for name, in := range map[string]string{
		"not json":          `{`,
		"missing value":     `{"signature": "0x00"}`,
		"missing signature": `{"value": {"checkpoint": {"root": "0x01", "index": 1}, "message_id": "0x02"}}`,
		"short signature":   `{"value": {"checkpoint": {"root": "0x01", "index": 1}, "message_id": "0x02"}, "signature": "0x1234"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
		})
	}
}
