package regression

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/NethermindEth/eternal-regression/ai"
	"github.com/NethermindEth/eternal-regression/core"
	"github.com/NethermindEth/eternal-regression/decision"
	"github.com/NethermindEth/eternal-regression/roster"
)

const smallCast = `
herald: a
principals:
  - {id: a, name: Alpha, memory: [alpha remembers]}
  - {id: b, name: Beta, memory: [beta remembers]}
  - {id: c, name: Gamma, memory: [gamma remembers]}
adversaries:
  - {id: x, name: Thief, memory: [the thief remembers]}
`

func newDriver(t *testing.T, seed int64) *Driver {
	t.Helper()
	cast, err := roster.Parse([]byte(smallCast))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	extractor := decision.NewExtractor(nil, nil)
	extractor.Pause = 0

	d, err := New(ai.NewOfflineBackend(seed, 0.5), cast, Options{
		Agent:     core.AgentConfig{Sampling: ai.DefaultSampling(), RetryDelay: time.Millisecond},
		Extractor: extractor,
		Rand:      rand.New(rand.NewSource(seed)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestRunProducesOneRecordPerRound(t *testing.T) {
	const rounds = 4
	d := newDriver(t, 11)

	log, err := d.Run(context.Background(), rounds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(log.Rounds) != rounds {
		t.Fatalf("log has %d rounds, want %d", len(log.Rounds), rounds)
	}
	for i, record := range log.Rounds {
		if record.Round != i+1 {
			t.Errorf("record %d has round %d", i, record.Round)
		}
		if len(record.Statuses) != 3 {
			t.Errorf("round %d has %d statuses, want 3", record.Round, len(record.Statuses))
		}
		for id, status := range record.Statuses {
			if !status.Terminal() {
				t.Errorf("round %d: %s ended as %s", record.Round, id, status)
			}
		}
	}
}

func TestStreamEventOrder(t *testing.T) {
	const rounds = 3
	d := newDriver(t, 5)
	s, err := d.Stream(rounds)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var events []core.Event
	if err := s.Each(context.Background(), func(ev core.Event) error {
		events = append(events, ev)
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}

	if first := events[0]; first.Type != core.EventStart || first.Rounds != rounds {
		t.Errorf("first event = %s (rounds %d), want start with %d rounds", first.Type, first.Rounds, rounds)
	}
	if last := events[len(events)-1]; last.Type != core.EventComplete {
		t.Errorf("last event = %s, want complete", last.Type)
	}

	var starts []int
	lastMemory := 0
	for _, ev := range events {
		switch ev.Type {
		case core.EventRoundStart:
			starts = append(starts, ev.Round)
		case core.EventRoundEnd:
			got := ev.MemoryCount["x"]
			if got <= lastMemory {
				t.Errorf("round %d: adversary memory %d did not grow past %d", ev.Round, got, lastMemory)
			}
			lastMemory = got
		}
	}
	if len(starts) != rounds {
		t.Fatalf("round_start events = %v, want %d", starts, rounds)
	}
	for i, r := range starts {
		if r != i+1 {
			t.Errorf("round_start %d has index %d", i, r)
		}
	}
	if got := d.Adversaries()[0].Memory().Len(); got != lastMemory {
		t.Errorf("adversary memory = %d, last round_end reported %d", got, lastMemory)
	}

	for i := 0; i < 2; i++ {
		if _, err := s.Next(context.Background()); !errors.Is(err, io.EOF) {
			t.Errorf("Next after complete = %v, want io.EOF", err)
		}
	}
	if len(s.Log().Rounds) != rounds {
		t.Errorf("stream log has %d rounds, want %d", len(s.Log().Rounds), rounds)
	}
}

func TestStreamMatchesRun(t *testing.T) {
	batch, err := newDriver(t, 21).Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	s, err := newDriver(t, 21).Stream(2)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if err := s.Each(context.Background(), func(core.Event) error { return nil }); err != nil {
		t.Fatalf("Each: %v", err)
	}

	streamed := s.Log()
	for i := range batch.Rounds {
		for id, status := range batch.Rounds[i].Statuses {
			if got := streamed.Rounds[i].Statuses[id]; got != status {
				t.Errorf("round %d %s: stream %s, batch %s", i+1, id, got, status)
			}
		}
	}
}

func TestEachStopsOnCallbackError(t *testing.T) {
	s, err := newDriver(t, 1).Stream(2)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	stop := errors.New("stop")
	seen := 0
	err = s.Each(context.Background(), func(ev core.Event) error {
		seen++
		if ev.Type == core.EventRoundStart {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("Each = %v, want stop", err)
	}
	if seen != 2 {
		t.Errorf("saw %d events, want 2", seen)
	}
}

func TestRunCancelled(t *testing.T) {
	d := newDriver(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Run(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	backend := ai.NewOfflineBackend(1, 0.5)

	if _, err := New(nil, roster.Default(), Options{}); err == nil {
		t.Error("expected an error for a nil backend")
	}
	if _, err := New(backend, roster.Cast{}, Options{}); err == nil {
		t.Error("expected an error for an empty cast")
	}

	d, err := New(backend, roster.Default(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := d.Stream(0); err == nil {
		t.Error("expected an error for zero rounds")
	}
	if len(d.Adversaries()) != 1 {
		t.Errorf("adversaries = %d, want 1", len(d.Adversaries()))
	}
}
