// Package nats carries raw SBS lines between the ingestor and its
// downstream consumers over a JetStream-backed subject, so a receiver
// restart does not drop the feed.
package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/sbslab/sbs-session/internal/types"
)

const (
	// StreamName is the JetStream stream holding raw SBS traffic.
	StreamName = "SBS"

	// SubjectRaw carries one types.RawMessage per SBS line.
	SubjectRaw = "sbs.raw"
)

// Client wraps a NATS connection with the raw-line publish/subscribe
// operations the SBS pipeline needs.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	log  *logrus.Logger
}

// New connects to NATS at url and ensures the SBS stream exists. Raw
// lines are retained for 24 hours so a consumer outage is recoverable.
func New(url string, log *logrus.Logger) (*Client, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectRaw},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
		log:  log,
	}, nil
}

// PublishRaw publishes one raw SBS line with its receipt metadata.
func (c *Client) PublishRaw(msg *types.RawMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := c.js.Publish(SubjectRaw, data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// SubscribeRaw invokes handler for every raw SBS line on the stream.
// Messages that fail to decode are logged and skipped.
func (c *Client) SubscribeRaw(handler func(*types.RawMessage)) error {
	_, err := c.js.Subscribe(SubjectRaw, func(msg *nats.Msg) {
		var raw types.RawMessage
		if err := json.Unmarshal(msg.Data, &raw); err != nil {
			c.log.WithError(err).Error("Failed to unmarshal raw message")
			return
		}
		handler(&raw)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
