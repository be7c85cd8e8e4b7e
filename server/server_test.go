package server

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pragma-labs/feed-relayer/calldata"
	"github.com/pragma-labs/feed-relayer/checkpoint"
	"github.com/pragma-labs/feed-relayer/feed"
	"github.com/pragma-labs/feed-relayer/hyperlane"
	"github.com/pragma-labs/feed-relayer/pubsub"
	"github.com/pragma-labs/feed-relayer/store"
)

var (
	validatorA = hyperlane.MustParseEthAddress("0x00000000000000000000000000000000000000aa")
	validatorB = hyperlane.MustParseEthAddress("0x00000000000000000000000000000000000000bb")
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

func testDispatch(t *testing.T, nonce uint32) *hyperlane.DispatchEvent {
	t.Helper()
	pair, err := hyperlane.FeltFromString("BTC/USD")
	require.NoError(t, err)
	update, err := hyperlane.NewSpotMedianUpdate(
		feed.AssetClassCrypto,
		hyperlane.U256(pair),
		hyperlane.U256(hyperlane.FeltFromUint64(6543210000000)),
		hyperlane.U256(hyperlane.FeltFromUint64(0)),
		8,
		1718000000,
		5,
	)
	require.NoError(t, err)
	return &hyperlane.DispatchEvent{
		Message: hyperlane.DispatchMessage{
			Header: hyperlane.Header{Version: 3, Nonce: nonce, Origin: 23448594},
			Body:   hyperlane.Body{Count: 1, Updates: []hyperlane.Update{update}},
		},
	}
}

func signedBy(ev *hyperlane.DispatchEvent, root string) *checkpoint.SignedCheckpoint {
	return &checkpoint.SignedCheckpoint{
		Value: checkpoint.CheckpointWithMessageID{
			Checkpoint: checkpoint.Checkpoint{Root: hyperlane.MustParseU256(root), Index: ev.Nonce()},
			MessageID:  ev.MessageID(),
		},
		Signature: checkpoint.Signature{V: 27},
	}
}

func btcUSD(t *testing.T) feed.ID {
	t.Helper()
	id, err := feed.Encode(feed.AssetClassCrypto, feed.FeedTypeSpotMedian, "BTC/USD")
	require.NoError(t, err)
	return id
}

type fixture struct {
	storage *store.Storage
	hub     *pubsub.Hub
	server  *APIServer
}

func newFixture(t *testing.T, broadcaster pubsub.Broadcaster) *fixture {
	t.Helper()
	s := store.NewStorage(nil, store.Retention{})
	ev := testDispatch(t, 5)
	for _, info := range store.NewUpdateInfos(ev, time.Now()) {
		s.Latest.Put(context.Background(), info)
	}
	s.Signed.Add(validatorA, 5, signedBy(ev, "0x01"))
	s.Registry.Add(btcUSD(t))
	s.Validators.Add(validatorA, "s3://bucket/us-east-1", nil)

	sets := calldata.ValidatorSets{"ethereum": {validatorA: 0, validatorB: 1}}
	hub := pubsub.NewHub()
	if broadcaster == nil {
		broadcaster = hub
	}
	return &fixture{
		storage: s,
		hub:     hub,
		server:  NewAPIServer(s, calldata.NewBuilder(s, sets), broadcaster, hub),
	}
}

func (f *fixture) get(t *testing.T, path string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestGetCalldata(t *testing.T) {
	f := newFixture(t, nil)
	short := "0x" + hex.EncodeToString(btcUSD(t).Compact())

	code, env := f.get(t, "/v1/calldata/ethereum/"+short)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", env.Status)

	var resp struct {
		Calldata struct {
			Nonce   uint32 `json:"nonce"`
			Signers []struct {
				ValidatorIndex uint8 `json:"validator_index"`
			} `json:"signers"`
		} `json:"calldata"`
		EncodedCalldata string `json:"encoded_calldata"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, uint32(5), resp.Calldata.Nonce)
	assert.Len(t, resp.Calldata.Signers, 1)
	assert.True(t, strings.HasPrefix(resp.EncodedCalldata, "01000001"))

	want, err := calldata.NewBuilder(f.storage, calldata.ValidatorSets{"ethereum": {validatorA: 0}}).Build(btcUSD(t), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want.Bytes()), resp.EncodedCalldata)
}

func TestGetCalldataErrors(t *testing.T) {
	f := newFixture(t, nil)
	ethUSD, err := feed.Encode(feed.AssetClassCrypto, feed.FeedTypeSpotMedian, "ETH/USD")
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"invalid feed id", "/v1/calldata/ethereum/unknown-feed", http.StatusBadRequest, "invalid_feed_id"},
		{"unknown chain", "/v1/calldata/solana/" + btcUSD(t).String(), http.StatusBadRequest, "chain_not_supported"},
		{"no dispatch", "/v1/calldata/ethereum/" + ethUSD.String(), http.StatusNotFound, "dispatch_not_found"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			code, env := f.get(t, c.path)
			assert.Equal(t, c.status, code)
			assert.Equal(t, "error", env.Status)
			require.NotNil(t, env.Error)
			assert.Equal(t, c.code, env.Error.Code)
		})
	}

	t.Run("inconsistent", func(t *testing.T) {
		f.storage.Signed.Add(validatorB, 5, signedBy(testDispatch(t, 5), "0x02"))
		code, env := f.get(t, "/v1/calldata/ethereum/"+btcUSD(t).String())
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "inconsistent_checkpoint", env.Error.Code)
	})
}

func TestErrorStatus(t *testing.T) {
	status, code := errorStatus(errors.Wrap(calldata.ErrValidatorNotFound, "nonce 1"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "validator_not_found", code)

	status, _ = errorStatus(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestListEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	code, env := f.get(t, "/v1/feeds")
	require.Equal(t, http.StatusOK, code)
	var feeds []FeedResponse
	require.NoError(t, json.Unmarshal(env.Data, &feeds))
	require.Len(t, feeds, 1)
	assert.Equal(t, btcUSD(t).String(), feeds[0].ID)
	assert.Equal(t, "BTC/USD", feeds[0].PairID)
	assert.Equal(t, "Crypto", feeds[0].AssetClass)
	assert.True(t, feeds[0].Registered)
	require.NotNil(t, feeds[0].Latest)
	assert.Equal(t, uint32(5), feeds[0].Latest.Nonce)

	code, env = f.get(t, "/v1/validators")
	require.Equal(t, http.StatusOK, code)
	var validators []ValidatorResponse
	require.NoError(t, json.Unmarshal(env.Data, &validators))
	assert.Equal(t, []ValidatorResponse{{Validator: validatorA.String(), StorageLocation: "s3://bucket/us-east-1"}}, validators)

	code, env = f.get(t, "/v1/chains")
	require.Equal(t, http.StatusOK, code)
	var chains []ChainResponse
	require.NoError(t, json.Unmarshal(env.Data, &chains))
	require.Len(t, chains, 1)
	assert.Equal(t, "ethereum", chains[0].Chain)
	assert.Equal(t, uint8(1), chains[0].Validators[validatorB.String()])
}

type unhealthy struct{}

func (unhealthy) Publish(context.Context, pubsub.FeedsUpdated) error { return nil }
func (unhealthy) Health(context.Context) error                       { return errors.New("nats connection is RECONNECTING") }

func TestHealth(t *testing.T) {
	code, _ := newFixture(t, nil).get(t, "/healthz")
	assert.Equal(t, http.StatusOK, code)

	code, env := newFixture(t, nil).get(t, "/readiness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", env.Status)

	code, env = newFixture(t, unhealthy{}).get(t, "/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", env.Error.Code)
}

func TestStreamCalldata(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/calldata/ethereum/stream?feed_ids="+btcUSD(t).String(), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.hub.Publish(ctx, pubsub.FeedsUpdated{FeedIDs: []feed.ID{btcUSD(t)}, Nonce: 5}))

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			event = name
		}
		if d, ok := strings.CutPrefix(line, "data: "); ok {
			data = d
			break
		}
	}
	require.Equal(t, "calldata", event)
	var payload struct {
		EncodedCalldata string `json:"encoded_calldata"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &payload))
	assert.True(t, strings.HasPrefix(payload.EncodedCalldata, "01000001"))
}

func TestStreamCalldataRejectsBadRequests(t *testing.T) {
	f := newFixture(t, nil)
	code, env := f.get(t, "/v1/calldata/ethereum/stream")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_feed_id", env.Error.Code)

	code, env = f.get(t, "/v1/calldata/solana/stream?feed_ids="+btcUSD(t).String())
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "chain_not_supported", env.Error.Code)
}
