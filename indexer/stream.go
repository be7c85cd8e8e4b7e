package indexer

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/pragma-labs/feed-relayer/hyperlane"
)

var (
	// ErrStreamInvalidated means the source chain reorganised past a
	// delivered cursor. The relayer has to restart from a known-good cursor.
	ErrStreamInvalidated = errors.New("stream invalidated")
	ErrStreamClosed      = errors.New("stream closed")
	ErrMalformedMessage  = errors.New("malformed stream message")
	// ErrStreamInterrupted means the transport dropped messages or lost
	// its connection.
	ErrStreamInterrupted = errors.New("stream interrupted")
	// ErrStreamGap means a data batch did not start where the previous one
	// ended.
	ErrStreamGap = errors.New("stream cursor gap")
)

type MessageKind uint8

const (
	MessageKindData MessageKind = iota + 1
	MessageKindInvalidate
	MessageKindHeartbeat
)

func (k MessageKind) String() string {
	switch k {
	case MessageKindData:
		return "data"
	case MessageKindInvalidate:
		return "invalidate"
	case MessageKindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

func (k MessageKind) MarshalText() ([]byte, error) {
	if k < MessageKindData || k > MessageKindHeartbeat {
		return nil, errors.Newf("unknown message kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *MessageKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "data":
		*k = MessageKindData
	case "invalidate":
		*k = MessageKindInvalidate
	case "heartbeat":
		*k = MessageKindHeartbeat
	default:
		return errors.Newf("unknown message kind %q", text)
	}
	return nil
}

// Message is one delivery of the event stream.
type Message struct {
	Kind      MessageKind `json:"kind"`
	Cursor    uint64      `json:"cursor"`
	EndCursor uint64      `json:"end_cursor,omitempty"`
	Finality  string      `json:"finality,omitempty"`
	Blocks    []Block     `json:"blocks,omitempty"`
}

type Block struct {
	Number uint64  `json:"number"`
	Events []Event `json:"events"`
}

// Event is a raw source-chain event; Keys[0] is its selector.
type Event struct {
	FromAddress hyperlane.Felt   `json:"from_address"`
	Keys        []hyperlane.Felt `json:"keys"`
	Data        []hyperlane.Felt `json:"data"`
}

func (e Event) Selector() (hyperlane.Felt, bool) {
	if len(e.Keys) == 0 {
		return hyperlane.Felt{}, false
	}
	return e.Keys[0], true
}

type Stream interface {
	// Next blocks until a message arrives or ctx is done.
	Next(ctx context.Context) (*Message, error)
	Close() error
}

// ChanStream serves messages sent on a channel.
type ChanStream struct {
	ch <-chan *Message
}

var _ Stream = (*ChanStream)(nil)

func NewChanStream(ch <-chan *Message) *ChanStream {
	return &ChanStream{ch: ch}
}

func (s *ChanStream) Next(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m, ok := <-s.ch:
		if !ok {
			return nil, ErrStreamClosed
		}
		return m, nil
	}
}

func (s *ChanStream) Close() error { return nil }
