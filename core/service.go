package core

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/pragma-labs/feed-relayer/checkpoint"
	"github.com/pragma-labs/feed-relayer/feed"
	"github.com/pragma-labs/feed-relayer/hyperlane"
	"github.com/pragma-labs/feed-relayer/log"
	"github.com/pragma-labs/feed-relayer/metrics"
	"github.com/pragma-labs/feed-relayer/otelcore/semconv"
	"github.com/pragma-labs/feed-relayer/pubsub"
	"github.com/pragma-labs/feed-relayer/store"
)

const DefaultRelayInterval = time.Second

var (
	rtyAttNum = uint(5)
	rtyAtt    = retry.Attempts(rtyAttNum)
	rtyDel    = retry.Delay(time.Millisecond * 400)
	rtyErr    = retry.LastErrorOnly(true)
)

// StartService runs the correlation service until ctx is done.
func StartService(
	ctx context.Context,
	storage *store.Storage,
	broadcaster pubsub.Broadcaster,
	interval time.Duration,
) error {
	srv := NewCorrelationService(storage, broadcaster, interval)
	return srv.Start(ctx)
}

// CorrelationService matches unsigned dispatches with the checkpoints
// published by validators and promotes the signed ones.
type CorrelationService struct {
	storage     *store.Storage
	broadcaster pubsub.Broadcaster
	interval    time.Duration
	now         func() time.Time
}

// NewCorrelationService returns a new service. A nil broadcaster disables
// notifications.
func NewCorrelationService(
	storage *store.Storage,
	broadcaster pubsub.Broadcaster,
	interval time.Duration,
) *CorrelationService {
	if interval <= 0 {
		interval = DefaultRelayInterval
	}
	return &CorrelationService{
		storage:     storage,
		broadcaster: broadcaster,
		interval:    interval,
		now:         time.Now,
	}
}

func GetCorrelationLogger() *log.RelayLogger {
	return log.GetLogger().WithModule("core.correlation")
}

// Start runs Serve every interval. Failed ticks are logged, the loop only
// returns when ctx is done.
func (srv *CorrelationService) Start(ctx context.Context) error {
	logger := GetCorrelationLogger()
	for {
		if err := retry.Do(func() error {
			return srv.Serve(ctx)
		}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.OnRetry(func(n uint, err error) {
			logger.InfoContext(ctx,
				"retrying to serve correlation",
				"try", n+1,
				"try_limit", rtyAttNum,
				"error", err.Error(),
			)
		})); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.ErrorContext(ctx, "failed to serve correlation", err)
		}
		if err := wait(ctx, srv.interval); err != nil {
			return err
		}
	}
}

// Serve walks the unsigned nonces in ascending order, fetching checkpoints
// for each from the validators that have not signed it yet. A nonce signed
// by at least one validator is promoted. The walk stops at the first nonce
// nobody signed, so a later nonce is promoted only once every earlier one is.
func (srv *CorrelationService) Serve(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "CorrelationService.Serve", withPackage(srv))
	defer span.End()
	logger := GetCorrelationLogger()
	defer srv.recordSizes()

	validators := srv.storage.Validators.All()
	nonces := srv.storage.Unsigned.Nonces()
	span.SetAttributes(
		attribute.Int("validators", len(validators)),
		attribute.Int("unsigned", len(nonces)),
	)
	if len(validators) == 0 || len(nonces) == 0 {
		return nil
	}

	var publishErr error
	for _, nonce := range nonces {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		ev, ok := srv.storage.Unsigned.Get(nonce)
		if !ok {
			// evicted since the snapshot
			continue
		}

		srv.fetchNonce(ctx, validators, nonce)

		if !srv.storage.Signed.AnySigned(nonce) {
			logger.DebugContext(ctx, "nonce is not signed yet", "nonce", nonce)
			break
		}
		if err := srv.promote(ctx, ev); err != nil {
			logger.ErrorContext(ctx, "failed to broadcast feeds update", err, "nonce", nonce)
			publishErr = errors.CombineErrors(publishErr, err)
		}
	}

	if publishErr != nil {
		span.SetStatus(codes.Error, publishErr.Error())
	}
	return publishErr
}

type fetchResult struct {
	validator hyperlane.EthAddress
	signed    *checkpoint.SignedCheckpoint
}

// fetchNonce queries every validator lacking a signature for nonce
// concurrently and stores the checkpoints found once all have returned.
func (srv *CorrelationService) fetchNonce(ctx context.Context, validators []store.ValidatorFetcher, nonce uint32) {
	ctx, span := tracer.Start(ctx, "CorrelationService.fetchNonce", WithNonceAttributes(nonce))
	defer span.End()

	results := make([]fetchResult, len(validators))
	var eg errgroup.Group
	for i, vf := range validators {
		if srv.storage.Signed.Has(vf.Validator, nonce) {
			continue
		}
		eg.Go(func() error {
			signed, err := srv.fetch(ctx, vf, nonce)
			if err != nil {
				return nil
			}
			results[i] = fetchResult{validator: vf.Validator, signed: signed}
			return nil
		})
	}
	_ = eg.Wait()

	found := 0
	for _, r := range results {
		if r.signed == nil {
			continue
		}
		srv.storage.Signed.Add(r.validator, nonce, r.signed)
		found++
	}
	span.SetAttributes(attribute.Int("found", found))
}

func (srv *CorrelationService) fetch(ctx context.Context, vf store.ValidatorFetcher, nonce uint32) (*checkpoint.SignedCheckpoint, error) {
	ctx, span := tracer.Start(ctx, "CorrelationService.fetch",
		WithValidatorAttributes(vf.Validator, vf.Location),
		WithNonceAttributes(nonce),
		withPackage(vf.Fetcher),
	)
	defer span.End()

	signed, err := vf.Fetcher.Fetch(ctx, nonce)
	if err != nil {
		logger := GetCorrelationLogger().WithValidator(vf.Validator.String(), vf.Location).WithNonce(nonce)
		logger.ErrorContext(ctx, "failed to fetch checkpoint", err)
		metrics.FetchErrorsCounter.Add(ctx, 1)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if signed != nil {
		metrics.CheckpointLatestIndexGauge.Set(int64(nonce), semconv.ValidatorKey.String(vf.Validator.String()))
	}
	return signed, nil
}

// promote moves a signed dispatch into the per-feed storage and announces
// the feeds it updates.
func (srv *CorrelationService) promote(ctx context.Context, ev *hyperlane.DispatchEvent) error {
	ctx, span := tracer.Start(ctx, "CorrelationService.promote", WithDispatchAttributes(ev))
	defer span.End()

	nonce := ev.Nonce()
	infos := store.NewUpdateInfos(ev, srv.now())
	ids := make([]feed.ID, 0, len(infos))
	for _, info := range infos {
		srv.storage.Latest.Put(ctx, info)
		ids = append(ids, info.Update.FeedID())
	}
	// the nonce is marked promoted before its dispatch leaves the cache
	srv.storage.Unsigned.Remove(nonce)
	srv.storage.Pending.Take(ev.MessageID())
	metrics.PromotedDispatchesCounter.Add(ctx, 1)

	GetCorrelationLogger().WithNonce(nonce).InfoContext(ctx, "promoted dispatch",
		"message_id", ev.MessageID().String(),
		"updates", len(infos),
	)

	if srv.broadcaster == nil {
		return nil
	}
	if err := srv.broadcaster.Publish(ctx, pubsub.FeedsUpdated{FeedIDs: ids, Nonce: nonce}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (srv *CorrelationService) recordSizes() {
	metrics.UnsignedBacklogSizeGauge.Set(int64(srv.storage.Unsigned.Len()))
	metrics.PendingCacheSizeGauge.Set(int64(srv.storage.Pending.Len()))
	metrics.SignedCheckpointsGauge.Set(int64(srv.storage.Signed.Len()))
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
