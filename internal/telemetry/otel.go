package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/pragma-labs/feed-relayer/metrics"
)

const (
	serviceName = "frly"

	// OTEL_SDK_DISABLED=true skips the whole pipeline
	sdkDisabledKey = "OTEL_SDK_DISABLED"

	propagatorsKey     = "OTEL_PROPAGATORS"
	defaultPropagators = "tracecontext,baggage"

	// comma-separated lists of otlp, console, prometheus (metrics only) or none
	tracesExporterKey  = "OTEL_TRACES_EXPORTER"
	metricsExporterKey = "OTEL_METRICS_EXPORTER"
	logsExporterKey    = "OTEL_LOGS_EXPORTER"
	defaultExporter    = "otlp"

	prometheusHostKey     = "OTEL_EXPORTER_PROMETHEUS_HOST"
	prometheusPortKey     = "OTEL_EXPORTER_PROMETHEUS_PORT"
	defaultPrometheusHost = "localhost"
	defaultPrometheusPort = 9464

	// stdout or stderr
	consoleTracesWriterKey  = "OTEL_EXPORTER_CONSOLE_TRACES_WRITER"
	consoleLogsWriterKey    = "OTEL_EXPORTER_CONSOLE_LOGS_WRITER"
	consoleMetricsWriterKey = "OTEL_EXPORTER_CONSOLE_METRICS_WRITER"
	defaultConsoleWriter    = "stdout"
)

// SetupOTelSDK installs the trace, metric and log providers selected by the
// OTEL_* environment. Unknown exporter or propagator names are errors. The
// returned shutdown flushes every provider.
func SetupOTelSDK(ctx context.Context) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.CombineErrors(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	handleErr := func(inErr error) {
		err = errors.CombineErrors(inErr, shutdown(ctx))
	}

	if strings.EqualFold(os.Getenv(sdkDisabledKey), "true") {
		return shutdown, nil
	}

	res := newResource()

	prop, err := newPropagator()
	if err != nil {
		handleErr(err)
		return
	}
	otel.SetTextMapPropagator(prop)

	tracerProvider, err := newTracerProvider(ctx, res)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider, err := newMeterProvider(ctx, res)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	loggerProvider, err := newLoggerProvider(ctx, res)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return
}

func getEnv(envName, defaultValue string) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return defaultValue
}

func getWriter(envName, defaultValue string) (io.Writer, error) {
	v := getEnv(envName, defaultValue)
	switch v {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return nil, errors.Newf("unknown writer: %q from %s=%q", v, envName, os.Getenv(envName))
	}
}

func newPropagator() (propagation.TextMapPropagator, error) {
	var propagators []propagation.TextMapPropagator
	for _, propagator := range strings.Split(getEnv(propagatorsKey, defaultPropagators), ",") {
		switch propagator {
		case "tracecontext":
			propagators = append(propagators, propagation.TraceContext{})
		case "baggage":
			propagators = append(propagators, propagation.Baggage{})
		default:
			return nil, errors.Newf("unsupported propagator: %q from %s=%q", propagator, propagatorsKey, os.Getenv(propagatorsKey))
		}
	}

	return propagation.NewCompositeTextMapPropagator(propagators...), nil
}

// newResource identifies the relayer; OTEL_RESOURCE_ATTRIBUTES and
// OTEL_SERVICE_NAME still take precedence.
func newResource() *resource.Resource {
	res, err := resource.Merge(resource.NewSchemaless(attribute.String("service.name", serviceName)), resource.Environment())
	if err != nil {
		return resource.Environment()
	}
	return res
}

// eachExporter calls build for every exporter named in the key's
// comma-separated value. "none" is skipped.
func eachExporter(key, defaultValue string, build func(name string) error) error {
	for _, name := range strings.Split(getEnv(key, defaultValue), ",") {
		if name == "none" {
			continue
		}
		if err := build(name); err != nil {
			return err
		}
	}
	return nil
}

func unsupportedExporter(key, name string) error {
	return errors.Newf("unsupported exporter: %q from %s=%q", name, key, os.Getenv(key))
}

func newTracerProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	err := eachExporter(tracesExporterKey, defaultExporter, func(name string) error {
		var exp sdktrace.SpanExporter
		var err error
		switch name {
		case "otlp":
			exp, err = otlptracegrpc.New(ctx)
		case "console":
			var w io.Writer
			if w, err = getWriter(consoleTracesWriterKey, defaultConsoleWriter); err == nil {
				exp, err = stdouttrace.New(stdouttrace.WithWriter(w))
			}
		default:
			return unsupportedExporter(tracesExporterKey, name)
		}
		if err != nil {
			return err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	err := eachExporter(metricsExporterKey, defaultExporter, func(name string) error {
		var exp sdkmetric.Exporter
		var err error
		switch name {
		case "otlp":
			exp, err = otlpmetricgrpc.New(ctx)
		case "console":
			var w io.Writer
			if w, err = getWriter(consoleMetricsWriterKey, defaultConsoleWriter); err == nil {
				exp, err = stdoutmetric.New(stdoutmetric.WithWriter(w))
			}
		case "prometheus":
			addr := fmt.Sprintf("%s:%s", getEnv(prometheusHostKey, defaultPrometheusHost), getEnv(prometheusPortKey, fmt.Sprint(defaultPrometheusPort)))
			reader, err := metrics.NewPrometheusExporter(addr)
			if err != nil {
				return err
			}
			opts = append(opts, sdkmetric.WithReader(reader))
			return nil
		default:
			return unsupportedExporter(metricsExporterKey, name)
		}
		if err != nil {
			return err
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	err := eachExporter(logsExporterKey, defaultExporter, func(name string) error {
		var exp sdklog.Exporter
		var err error
		switch name {
		case "otlp":
			exp, err = otlploggrpc.New(ctx)
		case "console":
			var w io.Writer
			if w, err = getWriter(consoleLogsWriterKey, defaultConsoleWriter); err == nil {
				exp, err = stdoutlog.New(stdoutlog.WithWriter(w))
			}
		default:
			return unsupportedExporter(logsExporterKey, name)
		}
		if err != nil {
			return err
		}
		opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sdklog.NewLoggerProvider(opts...), nil
}
