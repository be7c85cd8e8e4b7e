package nats

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/pragma-labs/feed-relayer/pubsub"
)

// Broadcaster publishes feeds updates as JSON on a subject.
type Broadcaster struct {
	client  *Client
	subject string
}

var _ pubsub.Broadcaster = (*Broadcaster)(nil)

func NewBroadcaster(client *Client, subject string) *Broadcaster {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Broadcaster{client: client, subject: subject}
}

func (b *Broadcaster) Publish(_ context.Context, msg pubsub.FeedsUpdated) error {
	bz, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := b.client.Conn().Publish(b.subject, bz); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", b.subject)
	}
	return nil
}

func (b *Broadcaster) Health(context.Context) error {
	if !b.client.Ready() {
		return errors.Newf("nats connection is %s", b.client.Conn().Status())
	}
	return nil
}
