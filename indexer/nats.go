package indexer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go"
	"github.com/sugawarayuuta/sonnet"

	natsclient "github.com/pragma-labs/feed-relayer/pubsub/nats"
)

const (
	DefaultStreamSubject  = "starknet.events"
	DefaultStreamCapacity = 1024
)

// NATSStream reads JSON stream messages published on a NATS subject.
// Dropped messages and lost connections fail Next with
// ErrStreamInterrupted.
type NATSStream struct {
	sub  *nats.Subscription
	msgs chan *nats.Msg
	errs <-chan error
}

var _ Stream = (*NATSStream)(nil)

func NewNATSStream(client *natsclient.Client, subject string, capacity int) (*NATSStream, error) {
	if subject == "" {
		subject = DefaultStreamSubject
	}
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	msgs := make(chan *nats.Msg, capacity)
	sub, err := client.Conn().ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to subscribe to %s", subject)
	}
	return &NATSStream{sub: sub, msgs: msgs, errs: client.Errors()}, nil
}

func (s *NATSStream) Next(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-s.errs:
		return nil, errors.Mark(errors.Wrap(err, "stream interrupted"), ErrStreamInterrupted)
	case m, ok := <-s.msgs:
		if !ok {
			return nil, ErrStreamClosed
		}
		var msg Message
		if err := sonnet.Unmarshal(m.Data, &msg); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "subject %s", m.Subject), ErrMalformedMessage)
		}
		if msg.Kind == 0 {
			return nil, errors.Wrapf(ErrMalformedMessage, "subject %s: missing kind", m.Subject)
		}
		return &msg, nil
	}
}

func (s *NATSStream) Close() error {
	if !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}
