package communication

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/NethermindEth/eternal-regression/core"
)

// EventSubject returns the subject a run's events are published on.
func EventSubject(runID string) string {
	return fmt.Sprintf("regression.%s.events", runID)
}

// AllEventsSubject matches the events of every run.
const AllEventsSubject = "regression.*.events"

// Messenger publishes regression events over NATS.
type Messenger struct {
	broker *core.NATSBroker
	logger *slog.Logger
}

// NewMessenger connects to the NATS server at url.
func NewMessenger(url string, logger *slog.Logger) (*Messenger, error) {
	broker, err := core.NewNATSBroker(url)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Messenger{broker: broker, logger: logger}, nil
}

// Publish implements Sink. Events are JSON encoded.
func (m *Messenger) Publish(runID string, ev core.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := m.broker.Publish(EventSubject(runID), data); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Type, err)
	}
	return nil
}

// PublishGlobal publishes a raw message on subject.
func (m *Messenger) PublishGlobal(subject, message string) error {
	return m.broker.Publish(subject, []byte(message))
}

// SubscribeRun delivers the decoded events of one run to handler.
func (m *Messenger) SubscribeRun(runID string, handler func(core.Event)) (*nats.Subscription, error) {
	return m.subscribe(EventSubject(runID), handler)
}

// SubscribeAll delivers the decoded events of every run to handler.
func (m *Messenger) SubscribeAll(handler func(core.Event)) (*nats.Subscription, error) {
	return m.subscribe(AllEventsSubject, handler)
}

func (m *Messenger) subscribe(subject string, handler func(core.Event)) (*nats.Subscription, error) {
	return m.broker.Subscribe(subject, func(msg *nats.Msg) {
		var ev core.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			m.logger.Warn("dropping malformed event", "subject", msg.Subject, "error", err)
			return
		}
		handler(ev)
	})
}

// Flush waits until everything published so far reached the server.
func (m *Messenger) Flush() error {
	return m.broker.Flush()
}

// Close closes the connection.
func (m *Messenger) Close() {
	m.broker.Close()
}
