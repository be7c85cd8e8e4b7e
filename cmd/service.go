package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/pragma-labs/feed-relayer/calldata"
	"github.com/pragma-labs/feed-relayer/config"
	"github.com/pragma-labs/feed-relayer/core"
	"github.com/pragma-labs/feed-relayer/indexer"
	"github.com/pragma-labs/feed-relayer/log"
	"github.com/pragma-labs/feed-relayer/metrics"
	"github.com/pragma-labs/feed-relayer/pubsub"
	natsclient "github.com/pragma-labs/feed-relayer/pubsub/nats"
	"github.com/pragma-labs/feed-relayer/server"
	"github.com/pragma-labs/feed-relayer/store"
	"github.com/pragma-labs/feed-relayer/store/levelmirror"
	"github.com/pragma-labs/feed-relayer/store/redismirror"
)

func serviceCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Relay Service Commands",
		Long:  "Commands to manage the relay service",
		RunE:  noCommand,
	}
	cmd.AddCommand(
		startCmd(ctx),
	)
	return cmd
}

func startCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Index dispatches, correlate them with signed checkpoints and serve calldata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *ctx.Config
			if d := viper.GetDuration(flagRelayInterval); d > 0 {
				cfg.Global.RelayInterval = d
			}
			if addr := viper.GetString(flagPrometheusAddr); addr != "" {
				cfg.Metrics.Exporter = config.MetricsExporterPrometheus
				cfg.Metrics.PrometheusAddr = addr
			}
			if addr := viper.GetString(flagAPIAddr); addr != "" {
				cfg.API.Enabled = true
				cfg.API.ListenAddress = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM)
			defer stop()
			err := runService(runCtx, &cfg)
			if runCtx.Err() != nil && errors.Is(err, context.Canceled) {
				log.GetLogger().Info("relay service stopped")
				return nil
			}
			return err
		},
	}
	return apiAddrFlag(prometheusAddrFlag(relayIntervalFlag(cmd)))
}

func setupMetrics(ctx context.Context, cfg config.MetricsConfig) error {
	if cfg.Exporter != config.MetricsExporterPrometheus {
		return nil
	}
	if err := metrics.ShutdownMetrics(ctx); err != nil {
		return errors.Wrap(err, "failed to shutdown the metrics subsystem with null exporter")
	}
	if err := metrics.InitializeMetrics(metrics.ExporterProm{Addr: cfg.PrometheusAddr}); err != nil {
		return errors.Wrap(err, "failed to re-initialize the metrics subsystem with prometheus exporter")
	}
	return nil
}

func openMirror(ctx context.Context, cfg config.MirrorConfig) (store.Mirror, error) {
	switch cfg.Type {
	case config.MirrorRedis:
		return redismirror.New(ctx, cfg.Redis)
	case config.MirrorLevelDB:
		return levelmirror.Open(cfg.LevelDB.Path)
	default:
		return nil, nil
	}
}

// restoreLatest reloads the mirrored latest updates, retrying transient
// mirror failures.
func restoreLatest(ctx context.Context, storage *store.Storage) error {
	logger := log.GetLogger().WithModule("service")
	var restored int
	err := retry.Do(func() error {
		n, err := storage.Latest.Restore(ctx)
		restored = n
		return err
	},
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.InfoContext(ctx, "retrying to restore latest updates", "try", n+1, "error", err.Error())
		}),
	)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "restored latest updates", "feeds", restored)
	return nil
}

func runService(ctx context.Context, cfg *config.Config) error {
	logger := log.GetLogger().WithModule("service")

	if err := setupMetrics(ctx, cfg.Metrics); err != nil {
		return err
	}
	defer func() {
		if err := metrics.ShutdownMetrics(context.Background()); err != nil {
			logger.Error("failed to shutdown metrics", err)
		}
	}()

	mirror, err := openMirror(ctx, cfg.Mirror)
	if err != nil {
		return err
	}
	if mirror != nil {
		defer mirror.Close()
	}
	storage := store.NewStorage(mirror, cfg.Retention())
	defer storage.Close()
	if err := restoreLatest(ctx, storage); err != nil {
		return err
	}
	storage.StartJanitor(ctx)

	streamClient, err := natsclient.New(appName+"-indexer", cfg.Stream.NATS)
	if err != nil {
		return err
	}
	defer streamClient.Close()
	stream, err := indexer.NewNATSStream(streamClient, cfg.Stream.NATS.Subject, cfg.Stream.Capacity)
	if err != nil {
		return err
	}
	defer stream.Close()

	hub := pubsub.NewHub()
	broadcasters := pubsub.Multi{hub}
	if cfg.Broadcast.NATS.URL != "" {
		bc, err := natsclient.New(appName+"-broadcast", cfg.Broadcast.NATS)
		if err != nil {
			return err
		}
		defer bc.Close()
		broadcasters = append(broadcasters, natsclient.NewBroadcaster(bc, cfg.Broadcast.NATS.Subject))
	}

	icfg, err := cfg.IndexerConfig()
	if err != nil {
		return err
	}
	sets, err := cfg.ValidatorSets()
	if err != nil {
		return err
	}
	announcements, err := cfg.Announcements()
	if err != nil {
		return err
	}

	ix := indexer.New(icfg, storage, stream)
	if err := ix.Bootstrap(ctx, announcements); err != nil {
		// validators announced on chain are registered as the stream replays
		logger.ErrorContext(ctx, "failed to register some bootstrap validators", err)
	}

	logger.InfoContext(ctx, "starting relay service",
		"validators", storage.Validators.Len(),
		"chains", len(sets),
		"relay_interval", cfg.Global.RelayInterval,
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return ix.Run(egCtx)
	})
	eg.Go(func() error {
		return core.StartService(egCtx, storage, broadcasters, cfg.Global.RelayInterval)
	})
	if cfg.API.Enabled {
		api := server.NewAPIServer(storage, calldata.NewBuilder(storage, sets), broadcasters, hub)
		eg.Go(func() error {
			return api.Start(egCtx, cfg.API.ListenAddress)
		})
	}
	return eg.Wait()
}
