package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/pragma-labs/feed-relayer/log"
)

const (
	meterName     = "github.com/pragma-labs/feed-relayer"
	namespaceRoot = "relayer"
)

var (
	meterProvider *metric.MeterProvider
	meter         api.Meter
	promServer    *http.Server

	UnsignedBacklogSizeGauge   *Int64SyncGauge
	PendingCacheSizeGauge      *Int64SyncGauge
	SignedCheckpointsGauge     *Int64SyncGauge
	CheckpointLatestIndexGauge *Int64SyncGauge
	PromotedDispatchesCounter  api.Int64Counter
	FetchErrorsCounter         api.Int64Counter
	DecodeErrorsCounter        api.Int64Counter
)

func init() {
	if err := InitializeMetrics(ExporterNull{}); err != nil {
		panic(err)
	}
}

type ExporterConfig interface {
	exporterType() string
}

type ExporterNull struct{}

func (e ExporterNull) exporterType() string { return "null" }

type ExporterProm struct {
	Addr string
}

func (e ExporterProm) exporterType() string { return "prometheus" }

func InitializeMetrics(exporterConf ExporterConfig) error {
	var err error

	switch exporterConf := exporterConf.(type) {
	case ExporterNull:
		meterProvider = metric.NewMeterProvider()
	case ExporterProm:
		if exporter, err := NewPrometheusExporter(exporterConf.Addr); err != nil {
			return err
		} else {
			meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		}
	default:
		panic("unexpected exporter type")
	}

	meter = meterProvider.Meter(meterName)

	gauges := []struct {
		target      **Int64SyncGauge
		name        string
		description string
	}{
		{&UnsignedBacklogSizeGauge, "unsigned_backlog_size", "number of dispatches waiting for a validator signature"},
		{&PendingCacheSizeGauge, "pending_cache_size", "number of dispatches cached by message id"},
		{&SignedCheckpointsGauge, "signed_checkpoints", "number of signed checkpoints held in memory"},
		{&CheckpointLatestIndexGauge, "checkpoint_latest_index", "latest checkpoint index fetched per validator"},
	}
	for _, g := range gauges {
		name := fmt.Sprintf("%s.%s", namespaceRoot, g.name)
		if *g.target, err = NewInt64SyncGauge(
			meter,
			name,
			api.WithUnit("1"),
			api.WithDescription(g.description),
		); err != nil {
			return fmt.Errorf("failed to create the instrument %s: %v", name, err)
		}
	}

	counters := []struct {
		target      *api.Int64Counter
		name        string
		description string
	}{
		{&PromotedDispatchesCounter, "promoted_dispatches", "number of dispatches promoted after a signature was observed"},
		{&FetchErrorsCounter, "fetch_errors", "number of failed checkpoint fetches"},
		{&DecodeErrorsCounter, "decode_errors", "number of stream events that failed to decode"},
	}
	for _, c := range counters {
		name := fmt.Sprintf("%s.%s", namespaceRoot, c.name)
		if *c.target, err = meter.Int64Counter(
			name,
			api.WithUnit("1"),
			api.WithDescription(c.description),
		); err != nil {
			return fmt.Errorf("failed to create the instrument %s: %v", name, err)
		}
	}

	return nil
}

func ShutdownMetrics(ctx context.Context) error {
	if promServer != nil {
		if err := promServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown the Prometheus exporter server: %v", err)
		}
		promServer = nil
	}
	if err := meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown the MeterProvider: %v", err)
	}
	return nil
}

// NewPrometheusExporter serves /metrics on addr.
func NewPrometheusExporter(addr string) (*prometheus.Exporter, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger := log.GetLogger().WithModule("metrics")
			logger.Fatal("Prometheus exporter server failed", err)
		}
	}()
	promServer = srv

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create the Prometheus Exporter: %v", err)
	}

	return exporter, nil
}
