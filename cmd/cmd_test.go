package cmd

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pragma-labs/feed-relayer/checkpoint"
	"github.com/pragma-labs/feed-relayer/feed"
)

func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--home", home}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestConfigInitAndShow(t *testing.T) {
	home := t.TempDir()

	_, err := run(t, home, "config", "show")
	require.Error(t, err)

	_, err = run(t, home, "config", "init")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(home, "config", "config.yaml"))
	require.NoError(t, err)

	_, err = run(t, home, "config", "init")
	assert.ErrorContains(t, err, "config already exists")

	out, err := run(t, home, "config", "show", "--json")
	require.NoError(t, err)
	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Contains(t, shown, "destinations")
}

func TestServiceStartRejectsInvalidConfig(t *testing.T) {
	home := t.TempDir()
	_, err := run(t, home, "config", "init")
	require.NoError(t, err)

	// the default config has no stream url
	_, err = run(t, home, "service", "start")
	assert.ErrorContains(t, err, "stream.nats.url is required")
}

func TestFeedEncodeDecode(t *testing.T) {
	home := t.TempDir()
	want, err := feed.Encode(feed.AssetClassCrypto, feed.FeedTypeSpotMedian, "BTC/USD")
	require.NoError(t, err)

	out, err := run(t, home, "feed", "encode", "BTC/USD", "--feed-type", "sm")
	require.NoError(t, err)
	var encoded feedOutput
	require.NoError(t, json.Unmarshal([]byte(out), &encoded))
	assert.Equal(t, want.String(), encoded.ID)
	assert.Equal(t, "0x"+hex.EncodeToString(want.Compact()), encoded.Compact)

	out, err = run(t, home, "feed", "decode", encoded.Compact)
	require.NoError(t, err)
	var decoded feedOutput
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "BTC/USD", decoded.PairID)
	assert.Equal(t, feed.FeedTypeSpotMedian, decoded.FeedType)
	assert.Equal(t, want.String(), decoded.ID)

	_, err = run(t, home, "feed", "decode", "0x01")
	assert.True(t, errors.Is(err, feed.ErrInvalidFeedID))
}

func TestParseFeedType(t *testing.T) {
	ft, err := parseFeedType("TW")
	require.NoError(t, err)
	assert.Equal(t, feed.FeedTypeTwap, ft)

	ft, err = parseFeedType("21325")
	require.NoError(t, err)
	assert.Equal(t, feed.FeedTypeSpotMedian, ft)

	_, err = parseFeedType("XX")
	assert.Error(t, err)
	_, err = parseFeedType("abc")
	assert.Error(t, err)

	v := feedTypeValue(feed.FeedTypeSpotMedian)
	assert.Equal(t, "SM", v.String())
	require.NoError(t, v.Set("pp"))
	assert.Equal(t, feedTypeValue(feed.FeedTypePerp), v)
	assert.Error(t, v.Set("zz"))
}

func TestCheckpointFetchLocal(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()
	bz := []byte(`{
  "value": {
    "checkpoint": {
      "merkle_tree_hook_address": "0x0000000000000000000000000000000000000000000000000000000000000001",
      "mailbox_domain": 23448594,
      "root": "0x0000000000000000000000000000000000000000000000000000000000000002",
      "index": 3
    },
    "message_id": "0x0000000000000000000000000000000000000000000000000000000000000004"
  },
  "signature": {"r": "0x01", "s": "0x02", "v": 27}
}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3_with_id.json"), bz, 0o600))

	out, err := run(t, home, "checkpoint", "fetch", "file://"+dir, "3")
	require.NoError(t, err)
	signed, err := checkpoint.Decode([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), signed.Value.Checkpoint.Index)
	assert.Equal(t, uint8(27), signed.Signature.V)

	_, err = run(t, home, "checkpoint", "fetch", "file://"+dir, "4")
	assert.ErrorContains(t, err, "no checkpoint at index 4")
}
