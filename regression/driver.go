// Package regression repeats the Flame-Chase round over many cycles. The
// adversaries live for the whole regression and accumulate memory; the
// principals are rebuilt from their personas at the start of every round.
package regression

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/NethermindEth/eternal-regression/ai"
	"github.com/NethermindEth/eternal-regression/core"
	"github.com/NethermindEth/eternal-regression/decision"
	"github.com/NethermindEth/eternal-regression/roster"
	"github.com/NethermindEth/eternal-regression/stage"
)

// DefaultAttempts is the persuasion retry ceiling used for every round of a
// regression, batch or streamed.
const DefaultAttempts = 3

// Options configures a Driver.
type Options struct {
	MaxAttempts int
	Agent       core.AgentConfig
	// Extractor defaults to one that uses the driver's backend as classifier.
	Extractor *decision.Extractor
	Rand      *rand.Rand
	Prompts   *stage.Prompts
	Logger    *slog.Logger
}

// Log is the ordered list of round records of one regression.
type Log struct {
	Rounds []core.RoundRecord `json:"rounds"`
}

// Driver runs regressions over a cast.
type Driver struct {
	backend     ai.Backend
	cast        roster.Cast
	opts        Options
	adversaries []*core.Agent
	logger      *slog.Logger
}

// New validates the cast and creates the long-lived adversaries.
func New(backend ai.Backend, cast roster.Cast, opts Options) (*Driver, error) {
	if backend == nil {
		return nil, errors.New("regression: backend is required")
	}
	if err := cast.Validate(); err != nil {
		return nil, fmt.Errorf("regression: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultAttempts
	}
	if opts.Agent == (core.AgentConfig{}) {
		opts.Agent = core.DefaultAgentConfig()
	}
	if opts.Agent.Logger == nil {
		opts.Agent.Logger = opts.Logger
	}
	if opts.Extractor == nil {
		opts.Extractor = decision.NewExtractor(backend, opts.Logger)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Driver{
		backend:     backend,
		cast:        cast,
		opts:        opts,
		adversaries: cast.NewAdversaries(backend, opts.Agent),
		logger:      opts.Logger,
	}, nil
}

// Adversaries returns the adversary agents carried across rounds.
func (d *Driver) Adversaries() []*core.Agent {
	return d.adversaries
}

// Run executes rounds rounds to completion.
func (d *Driver) Run(ctx context.Context, rounds int) (*Log, error) {
	s, err := d.Stream(rounds)
	if err != nil {
		return nil, err
	}
	if err := s.Each(ctx, func(core.Event) error { return nil }); err != nil {
		return nil, err
	}
	return s.Log(), nil
}

// Stream prepares an event-by-event regression of rounds rounds. Nothing
// runs until the first call to Next.
func (d *Driver) Stream(rounds int) (*Stream, error) {
	if rounds <= 0 {
		return nil, fmt.Errorf("regression: rounds must be positive, got %d", rounds)
	}
	return &Stream{driver: d, rounds: rounds}, nil
}

func (d *Driver) newRound(index int) (*stage.Round, error) {
	principals := d.cast.NewPrincipals(d.backend, d.opts.Agent)
	return stage.NewRound(index, stage.Cast{
		Principals:  principals,
		HeraldID:    d.cast.Herald,
		Adversaries: d.adversaries,
	}, stage.Options{
		MaxAttempts: d.opts.MaxAttempts,
		Extractor:   d.opts.Extractor,
		Rand:        d.opts.Rand,
		Prompts:     d.opts.Prompts,
		Logger:      d.logger,
	})
}

func (d *Driver) logRound(record core.RoundRecord) {
	stats := record.Stats()
	attrs := []any{
		"round", record.Round,
		"chasing", stats.Chasing,
		"surrendered", stats.Surrendered,
		"seized", stats.Seized,
		"not_participating", stats.NotParticipating,
		"unresolved", stats.Unresolved,
	}
	for _, adv := range d.adversaries {
		attrs = append(attrs, "memory."+adv.ID, adv.Memory().Len())
	}
	d.logger.Info("round recorded", attrs...)
}

// Stream yields the events of a regression one at a time: start, then
// round_start and the round's own events for each round, then complete.
// After complete every call to Next returns io.EOF.
type Stream struct {
	driver *Driver
	rounds int

	round    int
	current  *stage.Round
	started  bool
	finished bool
	records  []core.RoundRecord
}

// Next performs the work for the next event and returns it.
func (s *Stream) Next(ctx context.Context) (core.Event, error) {
	if s.finished {
		return core.Event{}, io.EOF
	}
	if !s.started {
		s.started = true
		s.driver.logger.Info("regression started", "rounds", s.rounds)
		ev := core.NewEvent(core.EventStart)
		ev.Rounds = s.rounds
		return ev, nil
	}

	if s.current != nil {
		ev, err := s.current.Next(ctx)
		if err != nil {
			return core.Event{}, err
		}
		// The record is kept as soon as round_end is produced, so Log
		// already includes the round when the caller sees that event.
		if record, done := s.current.Record(); done {
			s.records = append(s.records, record)
			s.driver.logRound(record)
			s.current = nil
		}
		return ev, nil
	}

	if s.round >= s.rounds {
		s.finished = true
		s.driver.logger.Info("regression complete", "rounds", s.rounds)
		ev := core.NewEvent(core.EventComplete)
		ev.Rounds = s.rounds
		return ev, nil
	}

	r, err := s.driver.newRound(s.round + 1)
	if err != nil {
		return core.Event{}, err
	}
	s.round++
	s.current = r
	ev := core.NewEvent(core.EventRoundStart)
	ev.Round = s.round
	return ev, nil
}

// Each pulls every remaining event and hands it to fn. It stops at the
// first error from fn or from the stream.
func (s *Stream) Each(ctx context.Context, fn func(core.Event) error) error {
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// Done reports whether the complete event has been emitted.
func (s *Stream) Done() bool { return s.finished }

// Log returns the records of the rounds finished so far.
func (s *Stream) Log() *Log {
	rounds := make([]core.RoundRecord, len(s.records))
	for i, r := range s.records {
		rounds[i] = r.Clone()
	}
	return &Log{Rounds: rounds}
}
