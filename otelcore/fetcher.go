package otelcore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pragma-labs/feed-relayer/checkpoint"
	"github.com/pragma-labs/feed-relayer/core"
	"github.com/pragma-labs/feed-relayer/hyperlane"
	"github.com/pragma-labs/feed-relayer/otelcore/semconv"
)

type Fetcher struct {
	checkpoint.Fetcher
	validator hyperlane.EthAddress
	tracer    trace.Tracer
}

func NewFetcher(fetcher checkpoint.Fetcher, validator hyperlane.EthAddress, tracer trace.Tracer) checkpoint.Fetcher {
	return &Fetcher{
		Fetcher:   fetcher,
		validator: validator,
		tracer:    tracer,
	}
}

func UnwrapFetcher(fetcher checkpoint.Fetcher) (checkpoint.Fetcher, error) {
	f, ok := fetcher.(*Fetcher)
	if !ok {
		return nil, fmt.Errorf("fetcher type is not %T, but %T", &Fetcher{}, fetcher)
	}
	return f.Fetcher, nil
}

func (f *Fetcher) Fetch(ctx context.Context, index uint32) (*checkpoint.SignedCheckpoint, error) {
	ctx, span := f.tracer.Start(ctx, "Fetcher.Fetch",
		core.WithValidatorAttributes(f.validator, f.AnnouncementLocation()),
		core.WithNonceAttributes(index),
	)
	defer span.End()

	signed, err := f.Fetcher.Fetch(ctx, index)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return signed, err
}

// StorageConfig traces Build and wraps the fetcher it returns.
type StorageConfig struct {
	checkpoint.StorageConfig
	validator hyperlane.EthAddress
	tracer    trace.Tracer
}

func NewStorageConfig(config checkpoint.StorageConfig, validator hyperlane.EthAddress, tracer trace.Tracer) checkpoint.StorageConfig {
	return &StorageConfig{
		StorageConfig: config,
		validator:     validator,
		tracer:        tracer,
	}
}

func (c *StorageConfig) Build(ctx context.Context) (checkpoint.Fetcher, error) {
	ctx, span := c.tracer.Start(ctx, "StorageConfig.Build",
		core.WithValidatorAttributes(c.validator, c.Location()),
		trace.WithAttributes(semconv.StorageTypeKey.String(c.Type())),
	)
	defer span.End()

	fetcher, err := c.StorageConfig.Build(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return NewFetcher(fetcher, c.validator, c.tracer), nil
}
