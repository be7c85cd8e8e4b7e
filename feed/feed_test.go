package feed

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeShortForm(t *testing.T) {
	f, err := Decode("0x01534d4254432f555344")
	require.NoError(t, err)
	assert.Equal(t, AssetClassCrypto, f.AssetClass)
	assert.Equal(t, FeedTypeSpotMedian, f.FeedType)
	assert.Equal(t, "BTC/USD", f.PairID)

	// prefix is optional
	g, err := Decode("01534d4254432f555344")
	require.NoError(t, err)
	assert.Equal(t, f, g)
}

func TestEncodeCanonicalForm(t *testing.T) {
	id, err := Encode(AssetClassCrypto, FeedTypeSpotMedian, "BTC/USD")
	require.NoError(t, err)

	s := id.String()
	assert.Len(t, s, 2+IDSize*2)
	assert.True(t, strings.HasPrefix(s, "0x01534d"))
	assert.True(t, strings.HasSuffix(s, "4254432f555344"))

	parsed, err := ParseID("0x01534d4254432f555344")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestRoundTrip(t *testing.T) {
	pairs := []string{"BTC/USD", "ETH/USD", "A", strings.Repeat("X", PairIDSize), "WSTETH/USD"}
	types := []FeedType{FeedTypeSpotMedian, FeedTypeTwap, FeedTypeRealizedVolatility, FeedTypeOptions, FeedTypePerp}
	for _, pair := range pairs {
		for _, ft := range types {
			id, err := Encode(AssetClassCrypto, ft, pair)
			require.NoError(t, err)
			f, err := Decode(id.String())
			require.NoError(t, err)
			assert.Equal(t, Feed{AssetClass: AssetClassCrypto, FeedType: ft, PairID: pair}, f)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"odd length", "0x01534d4"},
		{"not hex", "0xzz534d4254432f555344"},
		{"too short", "0x0153"},
		{"too long", "0x" + strings.Repeat("01", IDSize+1)},
		{"unknown asset class", "0x02534d4254432f555344"},
		{"missing asset class", "0x534d4254432f555344"},
		{"unknown feed type", "0x01ffff4254432f555344"},
		{"empty pair", "0x01534d"},
		{"zero pair", "0x01534d0000"},
		{"invalid utf8", "0x01534dfffe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFeedID), err.Error())
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode(AssetClassCrypto, FeedTypeSpotMedian, strings.Repeat("X", PairIDSize+1))
	assert.True(t, errors.Is(err, ErrInvalidFeedID))

	_, err = Encode(AssetClassCrypto, FeedTypeSpotMedian, "")
	assert.True(t, errors.Is(err, ErrInvalidFeedID))

	_, err = Encode(AssetClass(9), FeedTypeSpotMedian, "BTC/USD")
	assert.True(t, errors.Is(err, ErrInvalidFeedID))
}

func TestUint256(t *testing.T) {
	id, err := Encode(AssetClassCrypto, FeedTypeSpotMedian, "BTC/USD")
	require.NoError(t, err)
	word, err := id.Uint256()
	require.NoError(t, err)
	compact := []byte{0x01, 0x53, 0x4d, 'B', 'T', 'C', '/', 'U', 'S', 'D'}
	assert.Equal(t, compact, id.Compact())
	assert.Equal(t, compact, word[32-len(compact):])
	assert.Equal(t, make([]byte, 32-len(compact)), word[:32-len(compact)])

	long, err := Encode(AssetClassCrypto, FeedTypeSpotMedian, strings.Repeat("X", 30))
	require.NoError(t, err)
	_, err = long.Uint256()
	assert.True(t, errors.Is(err, ErrInvalidFeedID))
}
