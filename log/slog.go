package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const otelScopeName = "github.com/pragma-labs/feed-relayer"

type RelayLogger struct {
	slog.Logger
}

var relayLogger *RelayLogger

func init() {
	relayLogger = &RelayLogger{*slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

func InitLogger(logLevel, format, output string, enableTelemetry bool) error {
	// output
	var writer io.Writer
	switch output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		return errors.Newf("invalid log output: %q", output)
	}
	return InitLoggerWithWriter(logLevel, format, writer, enableTelemetry)
}

func InitLoggerWithWriter(logLevel, format string, writer io.Writer, enableTelemetry bool) error {
	// level
	var slogLevel slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		slogLevel = slog.LevelDebug
	case "INFO":
		slogLevel = slog.LevelInfo
	case "WARN":
		slogLevel = slog.LevelWarn
	case "ERROR":
		slogLevel = slog.LevelError
	default:
		return errors.Newf("invalid log level: %q", logLevel)
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: true,
	}

	var handler slog.Handler
	// format
	switch format {
	case "text":
		handler = slog.NewTextHandler(writer, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(writer, handlerOpts)
	default:
		return errors.Newf("invalid log format: %q", format)
	}

	if enableTelemetry {
		handler = slogmulti.Fanout(handler, otelslog.NewHandler(otelScopeName))
	}

	// set global logger
	relayLogger = &RelayLogger{
		*slog.New(handler),
	}
	return nil
}

func GetLogger() *RelayLogger {
	return relayLogger
}

// log emits a record whose source is the caller skip frames above the
// caller of log.
func (rl *RelayLogger) log(level slog.Level, skip int, msg string, args ...any) {
	rl.logContext(context.Background(), level, skip+1, msg, args...)
}

func (rl *RelayLogger) logContext(ctx context.Context, level slog.Level, skip int, msg string, args ...any) {
	if !rl.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip [runtime.Callers, logContext]
	runtime.Callers(skip+2, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = rl.Handler().Handle(ctx, r)
}

func errorArgs(err error, args []any) []any {
	if err == nil {
		return args
	}
	return append([]any{"error", err.Error(), "stack", fmt.Sprintf("%+v", errors.WithStackDepth(err, 2))}, args...)
}

// Error logs err with its stack trace.
func (rl *RelayLogger) Error(msg string, err error, args ...any) {
	rl.log(slog.LevelError, 1, msg, errorArgs(err, args)...)
}

func (rl *RelayLogger) ErrorContext(ctx context.Context, msg string, err error, args ...any) {
	rl.logContext(ctx, slog.LevelError, 1, msg, errorArgs(err, args)...)
}

// Fatal logs err and exits the process.
func (rl *RelayLogger) Fatal(msg string, err error, args ...any) {
	rl.log(slog.LevelError, 1, msg, errorArgs(err, args)...)
	os.Exit(1)
}

func (rl *RelayLogger) with(args ...any) *RelayLogger {
	return &RelayLogger{*rl.With(args...)}
}

func (rl *RelayLogger) WithModule(moduleName string) *RelayLogger {
	return rl.with("module", moduleName)
}

// WithChain tags records with a destination chain name.
func (rl *RelayLogger) WithChain(chain string) *RelayLogger {
	return rl.with("chain", chain)
}

func (rl *RelayLogger) WithValidator(validator, location string) *RelayLogger {
	return rl.with("validator", validator, "storage_location", location)
}

func (rl *RelayLogger) WithNonce(nonce uint32) *RelayLogger {
	return rl.with("nonce", nonce)
}
