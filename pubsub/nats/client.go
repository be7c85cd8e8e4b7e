package nats

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go"

	"github.com/pragma-labs/feed-relayer/log"
)

const DefaultSubject = "feeds.updated"

type Config struct {
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// ErrDisconnected marks a connection lost while the client was in use.
var ErrDisconnected = errors.New("disconnected from NATS")

type Client struct {
	nc      *nats.Conn
	errs    chan error
	closing atomic.Bool
}

func New(name string, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}

	c := &Client{errs: make(chan error, 1)}
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1), // endless reconnects
		nats.ReconnectWait(2 * time.Second),
		nats.ErrorHandler(c.handleAsyncError),
		nats.DisconnectErrHandler(c.handleDisconnect),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to NATS")
	}
	c.nc = nc
	return c, nil
}

// Errors delivers asynchronous failures such as slow consumers and
// disconnects. Only the first unread failure is kept, later ones are only
// logged.
func (c *Client) Errors() <-chan error {
	return c.errs
}

func (c *Client) handleAsyncError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	log.GetLogger().WithModule("nats").Error("NATS asynchronous error", err, "subject", subject)
	c.report(errors.Wrapf(err, "subject %s", subject))
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closing.Load() {
		return
	}
	if err == nil {
		err = ErrDisconnected
	} else {
		err = errors.Mark(errors.Wrap(err, "connection lost"), ErrDisconnected)
	}
	log.GetLogger().WithModule("nats").Error("disconnected from NATS", err)
	c.report(err)
}

func (c *Client) report(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

func (c *Client) Conn() *nats.Conn {
	return c.nc
}

func (c *Client) Ready() bool {
	return c.nc != nil && c.nc.Status() == nats.CONNECTED
}

// Close drains pending messages before closing the connection.
func (c *Client) Close() error {
	if c.nc == nil || c.nc.Status() == nats.CLOSED {
		return nil
	}
	c.closing.Store(true)
	logger := log.GetLogger().WithModule("nats")
	if err := c.nc.Drain(); err != nil {
		logger.Error("failed to drain connection to NATS", err)
		c.nc.Close()
		return errors.Wrap(err, "failed to drain connection to NATS")
	}
	c.nc.Close()
	logger.Info("NATS connection closed gracefully")
	return nil
}
