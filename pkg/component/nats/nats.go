// Package nats connects to NATS and prepares the JetStream stream and
// durable consumer that carry ingestion jobs.
package nats

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	options "github.com/kart-io/dataagent/pkg/options/nats"
)

// Client holds the connection and the JetStream context.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
	opts *options.Options
}

// New connects and creates (or updates) the configured stream.
func New(ctx context.Context, opts *options.Options) (*Client, error) {
	if !opts.Enabled() {
		return nil, fmt.Errorf("nats url is empty")
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnw("nats disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infow("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     opts.Stream,
		Subjects: []string{opts.Subject},
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", opts.Stream, err)
	}

	return &Client{conn: conn, js: js, opts: opts}, nil
}

// Consumer returns the durable pull consumer for the job subject.
func (c *Client) Consumer(ctx context.Context) (jetstream.Consumer, error) {
	return c.js.CreateOrUpdateConsumer(ctx, c.opts.Stream, jetstream.ConsumerConfig{
		Durable:       c.opts.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.opts.AckWait,
		MaxDeliver:    c.opts.MaxDeliver,
		FilterSubject: c.opts.Subject,
	})
}

// Publish publishes data on the job subject.
func (c *Client) Publish(ctx context.Context, data []byte) error {
	_, err := c.js.Publish(ctx, c.opts.Subject, data)
	return err
}

// Options returns the connection options.
func (c *Client) Options() *options.Options {
	return c.opts
}

// Close drains the connection.
func (c *Client) Close() error {
	return c.conn.Drain()
}
