// Package communication delivers regression events to whoever is watching:
// websocket clients, NATS subscribers and the per-run transcript.
package communication

import (
	"errors"

	"github.com/NethermindEth/eternal-regression/core"
)

// Sink receives the events of a run in order.
type Sink interface {
	Publish(runID string, ev core.Event) error
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Publish(runID string, ev core.Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(runID, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
