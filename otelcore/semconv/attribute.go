package semconv

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	// ValidatorKey represents the validator address.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "0x7a1b2c3d4e5f60718293a4b5c6d7e8f901234567"
	ValidatorKey = attribute.Key("validator")

	// StorageLocationKey represents the announced checkpoint storage location.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "s3://hyperlane-checkpoints/us-east-1/pragma", "gs://bucket"
	StorageLocationKey = attribute.Key("storage_location")

	// StorageTypeKey represents the backend of a checkpoint store.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "local", "s3", "gcs"
	StorageTypeKey = attribute.Key("storage_type")

	// NonceKey represents the nonce of a dispatched message.
	//
	// Type: int
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: 5
	NonceKey = attribute.Key("nonce")

	// MessageIDKey represents the message id of a dispatched message.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "0x1f2e..."
	MessageIDKey = attribute.Key("message_id")

	// FeedIDKey represents a feed id in its canonical hex form.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "0x01534d4254432f555344..."
	FeedIDKey = attribute.Key("feed_id")

	// ChainKey represents a destination chain name.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "ethereum", "arbitrum"
	ChainKey = attribute.Key("chain")
)

// AttributeGroup prefixes the given key to all attributes.
//
// For example, if the key is "foo" and the key of an attribute is "bar", the new key will be "foo.bar".
func AttributeGroup(key string, attributes ...attribute.KeyValue) []attribute.KeyValue {
	newAttrs := make([]attribute.KeyValue, 0, len(attributes))
	for _, attr := range attributes {
		newAttrs = append(newAttrs, attribute.KeyValue{
			Key:   attribute.Key(key + "." + string(attr.Key)),
			Value: attr.Value,
		})

	}
	return newAttrs
}
