package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBroker encapsulates a NATS connection.
type NATSBroker struct {
	Conn *nats.Conn
}

// NewNATSBroker creates a new NATSBroker connected to the provided URL.
func NewNATSBroker(url string) (*NATSBroker, error) {
	nc, err := nats.Connect(url,
		nats.Name("eternal-regression"),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	slog.Info("Connected to NATS", "url", url)
	return &NATSBroker{Conn: nc}, nil
}

// Publish sends data on the provided subject.
func (b *NATSBroker) Publish(subject string, data []byte) error {
	slog.Debug("Publishing to NATS", "subject", subject, "bytes", len(data))
	return b.Conn.Publish(subject, data)
}

// Subscribe registers a callback for a specific subject.
func (b *NATSBroker) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return b.Conn.Subscribe(subject, cb)
}

// Flush waits until the server has processed everything published so far.
func (b *NATSBroker) Flush() error {
	return b.Conn.Flush()
}

// Close gracefully closes the connection.
func (b *NATSBroker) Close() {
	b.Conn.Close()
}
