package indexer_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/pragma-labs/feed-relayer/checkpoint"
	"github.com/pragma-labs/feed-relayer/core"
	"github.com/pragma-labs/feed-relayer/feed"
	"github.com/pragma-labs/feed-relayer/hyperlane"
	"github.com/pragma-labs/feed-relayer/indexer"
	"github.com/pragma-labs/feed-relayer/otelcore"
	"github.com/pragma-labs/feed-relayer/store"
)

var (
	mailbox   = hyperlane.MustParseFelt("0x0a11")
	announce  = hyperlane.MustParseFelt("0x0a22")
	registry  = hyperlane.MustParseFelt("0x0a33")
	validator = hyperlane.MustParseEthAddress("0x00000000000000000000000000000000000000aa")
)

func testConfig() indexer.Config {
	return indexer.Config{
		Mailbox:           mailbox,
		ValidatorAnnounce: announce,
		FeedRegistry:      registry,
		AllowLocalStorage: true,
	}
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
		DestinationDomain: 1,
		Message: hyperlane.DispatchMessage{
			Header: hyperlane.Header{Version: 3, Nonce: nonce, Origin: 23448594, Destination: 1},
			Body:   hyperlane.Body{Count: 1, Updates: []hyperlane.Update{update}},
		},
	}
}

func dispatchEvent(ev *hyperlane.DispatchEvent) indexer.Event {
	return indexer.Event{
		FromAddress: mailbox,
		Keys:        []hyperlane.Felt{hyperlane.DispatchSelector},
		Data:        hyperlane.EncodeDispatchEvent(ev),
	}
}

func announcementEvent(t *testing.T, v hyperlane.EthAddress, location string) indexer.Event {
	t.Helper()
	word, err := hyperlane.FeltFromBytes(v[:])
	require.NoError(t, err)
	return indexer.Event{
		FromAddress: announce,
		Keys:        []hyperlane.Felt{hyperlane.ValidatorAnnouncementSelector},
		Data:        append([]hyperlane.Felt{word}, hyperlane.PackString(location)...),
	}
}

func registryEvent(t *testing.T, selector hyperlane.Felt, id feed.ID) indexer.Event {
	t.Helper()
	word, err := hyperlane.FeltFromBytes(id.Compact())
	require.NoError(t, err)
	return indexer.Event{
		FromAddress: registry,
		Keys:        []hyperlane.Felt{selector},
		Data:        []hyperlane.Felt{hyperlane.FeltFromUint64(1), word},
	}
}

func btcUSD(t *testing.T) feed.ID {
	t.Helper()
	id, err := feed.Encode(feed.AssetClassCrypto, feed.FeedTypeSpotMedian, "BTC/USD")
	require.NoError(t, err)
	return id
}

func writeCheckpoint(t *testing.T, dir string, ev *hyperlane.DispatchEvent) {
	t.Helper()
	sc := checkpoint.SignedCheckpoint{
		Value: checkpoint.CheckpointWithMessageID{
			Checkpoint: checkpoint.Checkpoint{
				MailboxDomain: 23448594,
				Root:          hyperlane.MustParseU256("0x01"),
				Index:         ev.Nonce(),
			},
			MessageID: ev.MessageID(),
		},
		Signature: checkpoint.Signature{V: 27},
	}
	bz, err := json.Marshal(sc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "5_with_id.json"), bz, 0o600))
}

// run feeds msgs to a new indexer and returns once the stream is drained.
func run(t *testing.T, ix func(indexer.Stream) *indexer.Indexer, msgs ...*indexer.Message) error {
	t.Helper()
	ch := make(chan *indexer.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return ix(indexer.NewChanStream(ch)).Run(context.Background())
}

func TestRunAppliesEvents(t *testing.T) {
	s := store.NewStorage(nil, store.Retention{})
	dir := t.TempDir()
	ev := testDispatch(t, 5)

	err := run(t, func(st indexer.Stream) *indexer.Indexer { return indexer.New(testConfig(), s, st) },
		&indexer.Message{
			Kind:   indexer.MessageKindData,
			Cursor: 10, EndCursor: 11,
			Blocks: []indexer.Block{{Number: 10, Events: []indexer.Event{
				dispatchEvent(ev),
				announcementEvent(t, validator, "file://"+dir),
				registryEvent(t, hyperlane.NewFeedIDSelector, btcUSD(t)),
			}}},
		},
	)
	require.ErrorIs(t, err, indexer.ErrStreamClosed)

	assert.True(t, s.Unsigned.Contains(5))
	assert.True(t, s.Pending.Contains(ev.MessageID()))
	assert.True(t, s.Registry.Contains(btcUSD(t)))

	vf, ok := s.Validators.Get(validator)
	require.True(t, ok)
	assert.Equal(t, "file://"+dir, vf.Location)
	_, err = otelcore.UnwrapFetcher(vf.Fetcher)
	assert.NoError(t, err)
}

// A dispatch cached before any checkpoint exists is promoted once the
// validator announces its storage and publishes the signed checkpoint.
func TestDispatchThenAnnouncementPromotes(t *testing.T) {
	s := store.NewStorage(nil, store.Retention{})
	dir := t.TempDir()
	ev := testDispatch(t, 5)
	newIndexer := func(st indexer.Stream) *indexer.Indexer { return indexer.New(testConfig(), s, st) }

	err := run(t, newIndexer,
		&indexer.Message{Kind: indexer.MessageKindData, Cursor: 1, Blocks: []indexer.Block{{Events: []indexer.Event{dispatchEvent(ev)}}}},
		&indexer.Message{Kind: indexer.MessageKindData, Cursor: 2, Blocks: []indexer.Block{{Events: []indexer.Event{announcementEvent(t, validator, "file://"+dir)}}}},
	)
	require.ErrorIs(t, err, indexer.ErrStreamClosed)

	srv := core.NewCorrelationService(s, nil, time.Second)
	require.NoError(t, srv.Serve(context.Background()))
	assert.True(t, s.Unsigned.Contains(5))

	writeCheckpoint(t, dir, ev)
	require.NoError(t, srv.Serve(context.Background()))

	assert.False(t, s.Unsigned.Contains(5))
	assert.True(t, s.Signed.Has(validator, 5))
	assert.False(t, s.Pending.Contains(ev.MessageID()))
	info, ok := s.Latest.Get(btcUSD(t))
	require.True(t, ok)
	assert.Equal(t, uint32(5), info.Nonce)

	// a replayed dispatch for a promoted nonce is ignored
	err = run(t, newIndexer,
		&indexer.Message{Kind: indexer.MessageKindData, Blocks: []indexer.Block{{Events: []indexer.Event{dispatchEvent(ev)}}}},
	)
	require.ErrorIs(t, err, indexer.ErrStreamClosed)
	assert.False(t, s.Unsigned.Contains(5))
	assert.False(t, s.Pending.Contains(ev.MessageID()))
}

func TestRunReconcilesSignedPending(t *testing.T) {
	s := store.NewStorage(nil, store.Retention{})
	ev := testDispatch(t, 3)
	s.Signed.Add(validator, 3, &checkpoint.SignedCheckpoint{
		Value: checkpoint.CheckpointWithMessageID{
			Checkpoint: checkpoint.Checkpoint{Index: 3},
			MessageID:  ev.MessageID(),
		},
	})

	err := run(t, func(st indexer.Stream) *indexer.Indexer { return indexer.New(testConfig(), s, st) },
		&indexer.Message{Kind: indexer.MessageKindData, Blocks: []indexer.Block{{Events: []indexer.Event{dispatchEvent(ev)}}}},
	)
	require.ErrorIs(t, err, indexer.ErrStreamClosed)

	assert.False(t, s.Pending.Contains(ev.MessageID()))
	_, ok := s.Latest.Get(btcUSD(t))
	assert.True(t, ok)
}

func TestRunFiltersAndSkips(t *testing.T) {
	s := store.NewStorage(nil, store.Retention{})
	cfg := testConfig()
	cfg.AllowLocalStorage = false

	foreign := dispatchEvent(testDispatch(t, 1))
	foreign.FromAddress = hyperlane.MustParseFelt("0x0bad")
	truncated := dispatchEvent(testDispatch(t, 2))
	truncated.Data = truncated.Data[:10]
	unknown := indexer.Event{FromAddress: mailbox, Keys: []hyperlane.Felt{hyperlane.Selector("Transfer")}}

	err := run(t, func(st indexer.Stream) *indexer.Indexer { return indexer.New(cfg, s, st) },
		&indexer.Message{Kind: indexer.MessageKindHeartbeat, Cursor: 1},
		&indexer.Message{Kind: indexer.MessageKindData, Blocks: []indexer.Block{{Events: []indexer.Event{
			foreign,
			truncated,
			unknown,
			{FromAddress: mailbox},
			announcementEvent(t, validator, "file:///tmp/checkpoints"),
			dispatchEvent(testDispatch(t, 3)),
		}}}},
	)
	require.ErrorIs(t, err, indexer.ErrStreamClosed)

	assert.Equal(t, []uint32{3}, s.Unsigned.Nonces())
	assert.Equal(t, 0, s.Validators.Len())
}

func TestRunRegistryRemoval(t *testing.T) {
	s := store.NewStorage(nil, store.Retention{})
	err := run(t, func(st indexer.Stream) *indexer.Indexer { return indexer.New(testConfig(), s, st) },
		&indexer.Message{Kind: indexer.MessageKindData, Blocks: []indexer.Block{{Events: []indexer.Event{
			registryEvent(t, hyperlane.NewFeedIDSelector, btcUSD(t)),
			registryEvent(t, hyperlane.RemovedFeedIDSelector, btcUSD(t)),
		}}}},
	)
	require.ErrorIs(t, err, indexer.ErrStreamClosed)
	assert.False(t, s.Registry.Contains(btcUSD(t)))
}

func TestRunInvalidate(t *testing.T) {
	s := store.NewStorage(nil, store.Retention{})
	var ix *indexer.Indexer
	err := run(t, func(st indexer.Stream) *indexer.Indexer {
		ix = indexer.New(testConfig(), s, st)
		return ix
	},
		&indexer.Message{Kind: indexer.MessageKindData, Cursor: 7, EndCursor: 8},
		&indexer.Message{Kind: indexer.MessageKindInvalidate, Cursor: 7},
		&indexer.Message{Kind: indexer.MessageKindData, Blocks: []indexer.Block{{Events: []indexer.Event{dispatchEvent(testDispatch(t, 1))}}}},
	)
	require.ErrorIs(t, err, indexer.ErrStreamInvalidated)
	assert.Equal(t, 0, s.Unsigned.Len())
	assert.Equal(t, uint64(8), ix.Cursor())
}

func TestRunStopsOnCancel(t *testing.T) {
	s := store.NewStorage(nil, store.Retention{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := indexer.New(testConfig(), s, indexer.NewChanStream(make(chan *indexer.Message))).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBootstrap(t *testing.T) {
	s := store.NewStorage(nil, store.Retention{})
	ix := indexer.New(testConfig(), s, nil)
	other := hyperlane.MustParseEthAddress("0x00000000000000000000000000000000000000bb")

	err := ix.Bootstrap(context.Background(), []indexer.Announcement{
		{Validator: validator, Location: "file://" + t.TempDir()},
		{Validator: other, Location: "ftp://nowhere"},
	})
	require.ErrorIs(t, err, checkpoint.ErrInvalidStorageLocation)
	assert.Equal(t, 1, s.Validators.Len())
}

func TestHandleDataCursor(t *testing.T) {
	ctx := context.Background()
	s := store.NewStorage(nil, store.Retention{})
	ix := indexer.New(testConfig(), s, nil)

	require.NoError(t, ix.HandleData(ctx, &indexer.Message{Kind: indexer.MessageKindData, Cursor: 4, EndCursor: 9}))
	assert.Equal(t, uint64(9), ix.Cursor())

	err := ix.HandleData(ctx, &indexer.Message{Kind: indexer.MessageKindData, Cursor: 12})
	require.ErrorIs(t, err, indexer.ErrStreamGap)
	assert.ErrorIs(t, err, indexer.ErrStreamInvalidated)
	assert.Equal(t, uint64(9), ix.Cursor())

	require.NoError(t, ix.HandleData(ctx, &indexer.Message{Kind: indexer.MessageKindData, Cursor: 9}))
	assert.Equal(t, uint64(9), ix.Cursor())
	require.NoError(t, ix.HandleData(ctx, &indexer.Message{Kind: indexer.MessageKindData, Cursor: 10, EndCursor: 15}))
	assert.Equal(t, uint64(15), ix.Cursor())
}

func TestRunRejectsCursorGap(t *testing.T) {
	s := store.NewStorage(nil, store.Retention{})
	var ix *indexer.Indexer
	err := run(t, func(st indexer.Stream) *indexer.Indexer {
		ix = indexer.New(testConfig(), s, st)
		return ix
	},
		&indexer.Message{Kind: indexer.MessageKindData, Cursor: 1, EndCursor: 3},
		&indexer.Message{Kind: indexer.MessageKindHeartbeat, Cursor: 3},
		&indexer.Message{Kind: indexer.MessageKindData, Cursor: 5, Blocks: []indexer.Block{{Events: []indexer.Event{dispatchEvent(testDispatch(t, 1))}}}},
		&indexer.Message{Kind: indexer.MessageKindData, Cursor: 6, Blocks: []indexer.Block{{Events: []indexer.Event{dispatchEvent(testDispatch(t, 2))}}}},
	)
	require.ErrorIs(t, err, indexer.ErrStreamGap)
	assert.ErrorIs(t, err, indexer.ErrStreamInvalidated)
	assert.Equal(t, 0, s.Unsigned.Len())
	assert.Equal(t, uint64(3), ix.Cursor())
}

func signedCheckpoint(ev *hyperlane.DispatchEvent) *checkpoint.SignedCheckpoint {
	return &checkpoint.SignedCheckpoint{
		Value: checkpoint.CheckpointWithMessageID{
			Checkpoint: checkpoint.Checkpoint{Index: ev.Nonce()},
			MessageID:  ev.MessageID(),
		},
	}
}

// Dispatches replayed while the correlation service promotes them must not
// be cached again once their nonce is promoted.
func TestReplayedDispatchesRacingPromotion(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := store.NewStorage(nil, store.Retention{})

	const count = 64
	events := make(map[uint32]*hyperlane.DispatchEvent, count)
	for nonce := uint32(1); nonce <= count; nonce++ {
		events[nonce] = testDispatch(t, nonce)
	}
	fetcher := checkpoint.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, nonce uint32) (*checkpoint.SignedCheckpoint, error) {
			return signedCheckpoint(events[nonce]), nil
		},
	).AnyTimes()
	s.Validators.Add(validator, "file:///tmp/checkpoints", fetcher)

	var msgs []*indexer.Message
	cursor := uint64(1)
	for replay := 0; replay < 3; replay++ {
		for nonce := uint32(1); nonce <= count; nonce++ {
			msgs = append(msgs, &indexer.Message{
				Kind:   indexer.MessageKindData,
				Cursor: cursor,
				Blocks: []indexer.Block{{Events: []indexer.Event{dispatchEvent(events[nonce])}}},
			})
			cursor++
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := core.NewCorrelationService(s, nil, time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	err := run(t, func(st indexer.Stream) *indexer.Indexer { return indexer.New(testConfig(), s, st) }, msgs...)
	require.ErrorIs(t, err, indexer.ErrStreamClosed)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.NoError(t, srv.Serve(context.Background()))

	assert.Equal(t, 0, s.Unsigned.Len())
	assert.Equal(t, 0, s.Pending.Len())
	for nonce, ev := range events {
		assert.True(t, s.Unsigned.Promoted(nonce), "nonce %d", nonce)
		assert.False(t, s.Pending.Contains(ev.MessageID()), "nonce %d", nonce)
	}
}
