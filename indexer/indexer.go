package indexer

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pragma-labs/feed-relayer/checkpoint"
	"github.com/pragma-labs/feed-relayer/hyperlane"
	"github.com/pragma-labs/feed-relayer/log"
	"github.com/pragma-labs/feed-relayer/metrics"
	"github.com/pragma-labs/feed-relayer/otelcore"
	"github.com/pragma-labs/feed-relayer/store"
)

var (
	rtyAttNum = uint(5)
	rtyAtt    = retry.Attempts(rtyAttNum)
	rtyDel    = retry.Delay(time.Millisecond * 400)
	rtyErr    = retry.LastErrorOnly(true)
)

// Config selects the contracts whose events are indexed. A zero address
// accepts events from any contract.
type Config struct {
	Mailbox           hyperlane.Felt
	ValidatorAnnounce hyperlane.Felt
	FeedRegistry      hyperlane.Felt
	// AllowLocalStorage accepts file:// announcements.
	AllowLocalStorage bool
}

// Announcement is a validator with its storage location, as announced on
// chain or supplied by configuration.
type Announcement struct {
	Validator hyperlane.EthAddress
	Location  string
}

// Indexer applies stream events to the stores.
type Indexer struct {
	cfg     Config
	storage *store.Storage
	stream  Stream
	tracer  trace.Tracer
	cursor  uint64
	// next is the cursor the following data batch must start at; zero
	// until a batch is applied.
	next uint64
}

func New(cfg Config, storage *store.Storage, stream Stream) *Indexer {
	return &Indexer{
		cfg:     cfg,
		storage: storage,
		stream:  stream,
		tracer:  otel.Tracer("github.com/pragma-labs/feed-relayer/indexer"),
	}
}

func getLogger() *log.RelayLogger {
	return log.GetLogger().WithModule("indexer")
}

// Cursor returns the cursor of the last data message applied.
func (ix *Indexer) Cursor() uint64 {
	return ix.cursor
}

// Bootstrap registers the given validators before the stream starts.
func (ix *Indexer) Bootstrap(ctx context.Context, announcements []Announcement) error {
	var errs error
	for _, a := range announcements {
		if err := ix.RegisterValidator(ctx, a.Validator, a.Location); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "validator %s", a.Validator))
		}
	}
	return errs
}

// Run consumes the stream until ctx is done or the stream is invalidated.
func (ix *Indexer) Run(ctx context.Context) error {
	logger := getLogger()
	for {
		msg, err := ix.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrMalformedMessage) {
				logger.ErrorContext(ctx, "skipping malformed stream message", err)
				metrics.DecodeErrorsCounter.Add(ctx, 1)
				continue
			}
			return err
		}

		switch msg.Kind {
		case MessageKindData:
			if err := ix.HandleData(ctx, msg); err != nil {
				logger.ErrorContext(ctx, "stream discontinuity", err)
				return err
			}
		case MessageKindInvalidate:
			err := errors.Wrapf(ErrStreamInvalidated, "cursor %d, last applied %d", msg.Cursor, ix.cursor)
			logger.ErrorContext(ctx, "stream invalidated", err)
			return err
		case MessageKindHeartbeat:
			logger.DebugContext(ctx, "stream heartbeat", "cursor", msg.Cursor)
		default:
			logger.WarnContext(ctx, "ignoring stream message of unknown kind", "kind", uint8(msg.Kind))
		}
	}
}

// HandleData applies every event of a data message, then moves the pending
// dispatches whose message id has been signed. A batch that does not start
// where the previous one ended is rejected with ErrStreamGap, which is also
// an ErrStreamInvalidated.
func (ix *Indexer) HandleData(ctx context.Context, msg *Message) error {
	ctx, span := ix.tracer.Start(ctx, "Indexer.HandleData")
	defer span.End()

	if ix.next != 0 && msg.Cursor != ix.next {
		err := errors.Mark(
			errors.Wrapf(ErrStreamGap, "expected cursor %d, got %d", ix.next, msg.Cursor),
			ErrStreamInvalidated,
		)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	events := 0
	for _, b := range msg.Blocks {
		for _, ev := range b.Events {
			ix.handleEvent(ctx, b.Number, ev)
			events++
		}
	}
	moved := ix.storage.Pending.Reconcile(ctx, ix.storage.Signed, ix.storage.Latest)
	ix.cursor, ix.next = msg.EndCursor, msg.EndCursor
	if msg.EndCursor == 0 {
		ix.cursor, ix.next = msg.Cursor, msg.Cursor+1
	}
	getLogger().DebugContext(ctx, "applied stream batch",
		"cursor", msg.Cursor,
		"finality", msg.Finality,
		"blocks", len(msg.Blocks),
		"events", events,
		"reconciled", len(moved),
	)
	return nil
}

func accepts(want, from hyperlane.Felt) bool {
	return want.IsZero() || want == from
}

func (ix *Indexer) handleEvent(ctx context.Context, block uint64, ev Event) {
	logger := getLogger()
	selector, ok := ev.Selector()
	if !ok {
		return
	}

	var err error
	switch selector {
	case hyperlane.DispatchSelector:
		if !accepts(ix.cfg.Mailbox, ev.FromAddress) {
			return
		}
		err = ix.handleDispatch(ctx, ev)
	case hyperlane.ValidatorAnnouncementSelector:
		if !accepts(ix.cfg.ValidatorAnnounce, ev.FromAddress) {
			return
		}
		err = ix.handleAnnouncement(ctx, ev)
	case hyperlane.NewFeedIDSelector, hyperlane.RemovedFeedIDSelector:
		if !accepts(ix.cfg.FeedRegistry, ev.FromAddress) {
			return
		}
		err = ix.handleRegistry(selector, ev)
	default:
		logger.DebugContext(ctx, "ignoring event", "selector", selector.String(), "block", block)
		return
	}
	if err != nil {
		if errors.Is(err, hyperlane.ErrDecode) {
			metrics.DecodeErrorsCounter.Add(ctx, 1)
		}
		logger.ErrorContext(ctx, "failed to handle event", err,
			"selector", selector.String(),
			"from_address", ev.FromAddress.String(),
			"block", block,
		)
	}
}

func (ix *Indexer) handleDispatch(ctx context.Context, ev Event) error {
	dispatch, err := hyperlane.DecodeDispatchEvent(ev.Data)
	if err != nil {
		return err
	}
	nonce := dispatch.Nonce()
	logger := getLogger().WithNonce(nonce)
	if ix.storage.Unsigned.Promoted(nonce) {
		logger.DebugContext(ctx, "dispatch already promoted")
		return nil
	}
	if !ix.storage.Unsigned.Add(dispatch) {
		logger.DebugContext(ctx, "dispatch promoted concurrently")
		return nil
	}
	id := ix.storage.Pending.Add(dispatch)
	if ix.storage.Unsigned.Promoted(nonce) {
		ix.storage.Pending.Take(id)
		logger.DebugContext(ctx, "dispatch promoted concurrently")
		return nil
	}
	logger.InfoContext(ctx, "dispatch received",
		"message_id", id.String(),
		"updates", len(dispatch.Message.Body.Updates),
	)
	return nil
}

func (ix *Indexer) handleAnnouncement(ctx context.Context, ev Event) error {
	a, err := hyperlane.DecodeValidatorAnnouncementEvent(ev.Data)
	if err != nil {
		return err
	}
	return ix.RegisterValidator(ctx, a.Validator, a.StorageLocation)
}

func (ix *Indexer) handleRegistry(selector hyperlane.Felt, ev Event) error {
	e, err := hyperlane.DecodeFeedRegistryEvent(ev.Data)
	if err != nil {
		return err
	}
	if selector == hyperlane.NewFeedIDSelector {
		ix.storage.Registry.Add(e.FeedID)
	} else {
		ix.storage.Registry.Remove(e.FeedID)
	}
	return nil
}

// RegisterValidator builds a fetcher for location and makes the validator
// visible to the correlation service. Local storage is skipped unless
// allowed.
func (ix *Indexer) RegisterValidator(ctx context.Context, validator hyperlane.EthAddress, location string) error {
	logger := getLogger().WithValidator(validator.String(), location)
	cfg, err := checkpoint.ParseStorageConfig(location)
	if err != nil {
		return err
	}
	if cfg.Type() == "local" && !ix.cfg.AllowLocalStorage {
		logger.WarnContext(ctx, "skipping local storage announcement")
		return nil
	}
	return ix.register(ctx, otelcore.NewStorageConfig(cfg, validator, ix.tracer), validator)
}

func (ix *Indexer) register(ctx context.Context, cfg checkpoint.StorageConfig, validator hyperlane.EthAddress) error {
	ctx, span := ix.tracer.Start(ctx, "Indexer.register")
	defer span.End()
	logger := getLogger().WithValidator(validator.String(), cfg.Location())

	var fetcher checkpoint.Fetcher
	if err := retry.Do(func() error {
		var err error
		fetcher, err = cfg.Build(ctx)
		return err
	}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.OnRetry(func(n uint, err error) {
		logger.InfoContext(ctx,
			"retrying to build checkpoint fetcher",
			"try", n+1,
			"try_limit", rtyAttNum,
			"error", err.Error(),
		)
	})); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, "failed to build checkpoint fetcher")
	}
	ix.storage.Validators.Add(validator, fetcher.AnnouncementLocation(), fetcher)
	logger.InfoContext(ctx, "validator registered", "storage_type", cfg.Type())
	return nil
}
