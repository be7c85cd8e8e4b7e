package redismirror

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pragma-labs/feed-relayer/feed"
	"github.com/pragma-labs/feed-relayer/hyperlane"
	"github.com/pragma-labs/feed-relayer/store"
)

func testUpdateInfo(t *testing.T, nonce uint32) store.UpdateInfo {
	t.Helper()
	pair, err := hyperlane.FeltFromString("BTC/USD")
	require.NoError(t, err)
	update, err := hyperlane.NewSpotMedianUpdate(feed.AssetClassCrypto, hyperlane.U256(pair),
		hyperlane.U256(hyperlane.FeltFromUint64(6500000000000)), hyperlane.U256{}, 8, 1718000000, 3)
	require.NoError(t, err)
	ev := &hyperlane.DispatchEvent{Message: hyperlane.DispatchMessage{
		Header: hyperlane.Header{Version: 3, Nonce: nonce, Origin: 1},
		Body:   hyperlane.Body{Count: 1, Updates: []hyperlane.Update{update}},
	}}
	return store.NewUpdateInfos(ev, time.Unix(100, 0).UTC())[0]
}

func TestMirror(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	m, err := New(ctx, Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer m.Close()

	info := testUpdateInfo(t, 4)
	id := info.Update.FeedID()
	require.NoError(t, m.Put(ctx, id, info))
	require.NoError(t, m.Put(ctx, id, testUpdateInfo(t, 5)))

	// an unreadable entry is skipped
	mr.HSet(DefaultKey, "garbage", "{}")

	loaded, err := m.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, uint32(5), loaded[id].Nonce)
	assert.Equal(t, info.Update.Bytes(), loaded[id].Update.Bytes())
}

func TestMirrorRestoresLatestUpdates(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	m := NewWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "test:latest")
	defer m.Close()

	latest := store.NewLatestUpdates(m)
	latest.Put(ctx, testUpdateInfo(t, 8))

	restored := store.NewLatestUpdates(m)
	n, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, restored.ReferencesNonce(8))
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Config{Addr: addr})
	assert.Error(t, err)
}
