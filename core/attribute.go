package core

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pragma-labs/feed-relayer/hyperlane"
	"github.com/pragma-labs/feed-relayer/otelcore/semconv"
)

const (
	AttributeKeyPackage = attribute.Key("package")
)

func WithValidatorAttributes(validator hyperlane.EthAddress, location string) trace.SpanStartOption {
	return trace.WithAttributes(semconv.AttributeGroup("validator",
		semconv.ValidatorKey.String(validator.String()),
		semconv.StorageLocationKey.String(location),
	)...)
}

func WithNonceAttributes(nonce uint32) trace.SpanStartOption {
	return trace.WithAttributes(semconv.NonceKey.Int64(int64(nonce)))
}

func WithDispatchAttributes(ev *hyperlane.DispatchEvent) trace.SpanStartOption {
	return trace.WithAttributes(
		semconv.NonceKey.Int64(int64(ev.Nonce())),
		semconv.MessageIDKey.String(ev.MessageID().String()),
	)
}
