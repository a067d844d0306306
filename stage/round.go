// Package stage runs one round of the Flame-Chase: oracle, fire-chase
// decisions, persuasion, handover decisions, persuasion retries, seizure and
// memory consolidation.
//
// The phases are implemented once, as a step function over Round's state.
// Next returns one event per call and does no work between calls; Run drives
// the same steps to completion.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math/rand"
	"slices"
	"time"

	"github.com/NethermindEth/eternal-regression/core"
	"github.com/NethermindEth/eternal-regression/decision"
)

const (
	// DefaultBatchAttempts is the persuasion retry ceiling for Run.
	DefaultBatchAttempts = 5
	// DefaultStreamAttempts is the persuasion retry ceiling for Next.
	DefaultStreamAttempts = 3
)

type phase int

const (
	phaseOracle phase = iota
	phaseFireDecision
	phaseFireResult
	phasePersuasion
	phaseHandover
	phaseHandoverResult
	phaseAttemptStart
	phasePersuasionDetail
	phaseRedecision
	phaseSeizure
	phaseConsolidation
	phaseDone
)

var phaseNames = map[phase]string{
	phaseOracle:           "oracle",
	phaseFireDecision:     "fire_decision",
	phaseFireResult:       "fire_result",
	phasePersuasion:       "persuasion",
	phaseHandover:         "handover_decision",
	phaseHandoverResult:   "handover_result",
	phaseAttemptStart:     "persuasion_attempt",
	phasePersuasionDetail: "persuasion_detail",
	phaseRedecision:       "handover_redecision",
	phaseSeizure:          "seizure",
	phaseConsolidation:    "consolidation",
	phaseDone:             "done",
}

func (p phase) String() string { return phaseNames[p] }

// Cast is the population taking part in one round.
type Cast struct {
	Principals  []*core.Agent
	HeraldID    string // must name one of the principals
	Adversaries []*core.Agent
}

// Options tunes a round. Zero values pick the defaults.
type Options struct {
	// MaxAttempts is the persuasion retry ceiling. When zero, Run uses
	// DefaultBatchAttempts and Next uses DefaultStreamAttempts.
	MaxAttempts int
	Extractor   *decision.Extractor
	// Rand picks persuasion targets. Nil means an unseeded source.
	Rand    *rand.Rand
	Prompts *Prompts
	Logger  *slog.Logger
}

// State is the engine's view of the round so far.
type State struct {
	Round      int
	Oracle     string
	Appeals    []string // opening appeal of each adversary, in order
	Persuasion string   // the last adversary's opening appeal
	Statuses   map[string]core.Status
	Decisions  map[string]core.Decision
	Attempt    int
	Seized     []string
}

// Round is a single pass through the phase sequence.
type Round struct {
	prompts     Prompts
	extractor   *decision.Extractor
	rng         *rand.Rand
	maxAttempts int
	logger      *slog.Logger

	principals  []*core.Agent
	byID        map[string]*core.Agent
	herald      *core.Agent
	adversaries []*core.Agent

	state  State
	phase  phase
	cursor int
	pool   []string // persuasion targets not yet picked this attempt
	queue  []string // withheld principals to re-ask this attempt
	record *core.RoundRecord
}

// NewRound validates the cast and prepares round number index.
func NewRound(index int, cast Cast, opts Options) (*Round, error) {
	if len(cast.Principals) == 0 {
		return nil, errors.New("stage: at least one principal is required")
	}
	byID := make(map[string]*core.Agent, len(cast.Principals))
	for _, a := range cast.Principals {
		if _, dup := byID[a.ID]; dup {
			return nil, fmt.Errorf("stage: duplicate principal id %q", a.ID)
		}
		byID[a.ID] = a
	}
	herald, ok := byID[cast.HeraldID]
	if !ok {
		return nil, fmt.Errorf("stage: herald %q is not a principal", cast.HeraldID)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prompts := DefaultPrompts()
	if opts.Prompts != nil {
		prompts = *opts.Prompts
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = decision.NewExtractor(nil, logger)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Round{
		prompts:     prompts,
		extractor:   extractor,
		rng:         rng,
		maxAttempts: opts.MaxAttempts,
		logger:      logger.With("round", index),
		principals:  cast.Principals,
		byID:        byID,
		herald:      herald,
		adversaries: cast.Adversaries,
		state: State{
			Round:     index,
			Statuses:  make(map[string]core.Status, len(cast.Principals)),
			Decisions: make(map[string]core.Decision, len(cast.Principals)),
		},
	}, nil
}

// Run drives the round to completion and returns its record.
func (r *Round) Run(ctx context.Context) (core.RoundRecord, error) {
	r.defaultCeiling(DefaultBatchAttempts)
	for {
		_, err := r.next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return core.RoundRecord{}, err
		}
	}
	record, _ := r.Record()
	return record, nil
}

// Next performs the work for exactly one event and returns it. After the
// round_end event it returns io.EOF. If ctx is cancelled mid-call the round
// can be resumed by calling Next again; the interrupted call is retried.
func (r *Round) Next(ctx context.Context) (core.Event, error) {
	r.defaultCeiling(DefaultStreamAttempts)
	return r.next(ctx)
}

// Done reports whether the round has emitted round_end.
func (r *Round) Done() bool { return r.phase == phaseDone }

// Record returns the final record once the round is done.
func (r *Round) Record() (core.RoundRecord, bool) {
	if r.record == nil {
		return core.RoundRecord{}, false
	}
	return r.record.Clone(), true
}

// State returns a copy of the current state.
func (r *Round) State() State {
	s := r.state
	s.Appeals = slices.Clone(r.state.Appeals)
	s.Statuses = maps.Clone(r.state.Statuses)
	s.Decisions = maps.Clone(r.state.Decisions)
	s.Seized = slices.Clone(r.state.Seized)
	return s
}

// MaxAttempts returns the persuasion retry ceiling in effect.
func (r *Round) MaxAttempts() int { return r.maxAttempts }

func (r *Round) defaultCeiling(def int) {
	if r.maxAttempts <= 0 {
		r.maxAttempts = def
	}
}

func (r *Round) next(ctx context.Context) (core.Event, error) {
	for {
		if r.phase == phaseDone {
			return core.Event{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return core.Event{}, err
		}
		ev, emitted, err := r.step(ctx)
		if err != nil {
			return core.Event{}, fmt.Errorf("round %d %s: %w", r.state.Round, r.phase, err)
		}
		if emitted {
			ev.Round = r.state.Round
			return ev, nil
		}
	}
}

func (r *Round) enter(p phase) {
	r.logger.Debug("entering phase", "phase", p)
	r.phase = p
	r.cursor = 0
}

// step advances the machine by one unit of work. It reports false when the
// unit produced no event (a phase boundary or a skipped principal).
func (r *Round) step(ctx context.Context) (core.Event, bool, error) {
	switch r.phase {
	case phaseOracle:
		return r.stepOracle(ctx)
	case phaseFireDecision:
		return r.stepFireDecision(ctx)
	case phaseFireResult:
		ev := core.NewEvent(core.EventFireResult)
		ev.Result = maps.Clone(r.state.Statuses)
		r.logger.Info("fire-chase decisions recorded", "chasing", r.count(core.StatusChasing))
		r.enter(phasePersuasion)
		return ev, true, nil
	case phasePersuasion:
		return r.stepPersuasion(ctx)
	case phaseHandover:
		return r.stepHandover(ctx)
	case phaseHandoverResult:
		ev := core.NewEvent(core.EventHandoverResult)
		ev.Result = maps.Clone(r.state.Statuses)
		r.logger.Info("handover decisions recorded",
			"surrendered", r.count(core.StatusSurrendered), "withheld", r.count(core.StatusWithheld))
		r.enter(phaseAttemptStart)
		return ev, true, nil
	case phaseAttemptStart:
		return r.stepAttemptStart()
	case phasePersuasionDetail:
		return r.stepPersuasionDetail(ctx)
	case phaseRedecision:
		return r.stepRedecision(ctx)
	case phaseSeizure:
		return r.stepSeizure()
	case phaseConsolidation:
		return r.stepConsolidation()
	default:
		return core.Event{}, false, io.EOF
	}
}

func (r *Round) stepOracle(ctx context.Context) (core.Event, bool, error) {
	oracle, err := r.herald.Answer(ctx, r.prompts.Oracle)
	if err != nil {
		return core.Event{}, false, err
	}
	r.state.Oracle = oracle
	r.logger.Info("oracle proclaimed", "herald", r.herald.ID, "chars", len(oracle))

	ev := core.NewEvent(core.EventOracle)
	ev.CharID = r.herald.ID
	ev.CharName = r.herald.Name
	ev.Message = oracle
	r.enter(phaseFireDecision)
	return ev, true, nil
}

func (r *Round) stepFireDecision(ctx context.Context) (core.Event, bool, error) {
	if r.cursor >= len(r.principals) {
		r.enter(phaseFireResult)
		return core.Event{}, false, nil
	}
	a := r.principals[r.cursor]
	reply, err := a.Decide(ctx, r.prompts.fireChase(r.state.Oracle))
	if err != nil {
		return core.Event{}, false, err
	}
	d := r.extractLatest(ctx, a)
	status := core.StatusNotParticipating
	if d.Accepted() {
		status = core.StatusChasing
	}
	r.state.Statuses[a.ID] = status
	r.state.Decisions[a.ID] = d
	r.cursor++

	return r.decisionEvent(core.EventFireDecision, a, d, reply), true, nil
}

func (r *Round) stepPersuasion(ctx context.Context) (core.Event, bool, error) {
	if r.cursor >= len(r.adversaries) {
		if len(r.adversaries) > 1 {
			r.logger.Info("using the last adversary's appeal as the shared persuasion", "appeals", len(r.state.Appeals))
		}
		r.enter(phaseHandover)
		return core.Event{}, false, nil
	}
	adv := r.adversaries[r.cursor]
	appeal, err := adv.Answer(ctx, r.prompts.Opening)
	if err != nil {
		return core.Event{}, false, err
	}
	r.state.Appeals = append(r.state.Appeals, appeal)
	r.state.Persuasion = appeal
	r.cursor++

	ev := core.NewEvent(core.EventPersuasion)
	ev.CharID = adv.ID
	ev.CharName = adv.Name
	ev.Message = appeal
	return ev, true, nil
}

func (r *Round) stepHandover(ctx context.Context) (core.Event, bool, error) {
	for r.cursor < len(r.principals) && r.state.Statuses[r.principals[r.cursor].ID] != core.StatusChasing {
		r.cursor++
	}
	if r.cursor >= len(r.principals) {
		r.enter(phaseHandoverResult)
		return core.Event{}, false, nil
	}
	a := r.principals[r.cursor]
	reply, err := a.Decide(ctx, r.prompts.handover(r.state.Persuasion))
	if err != nil {
		return core.Event{}, false, err
	}
	d := r.extractLatest(ctx, a)
	status := core.StatusWithheld
	if d.Accepted() {
		status = core.StatusSurrendered
	}
	r.state.Statuses[a.ID] = status
	r.state.Decisions[a.ID] = d
	r.cursor++

	return r.decisionEvent(core.EventHandoverDecision, a, d, reply), true, nil
}

func (r *Round) stepAttemptStart() (core.Event, bool, error) {
	withheld := r.withheld()
	if len(withheld) == 0 {
		r.logger.Info("no ember withheld, persuasion finished", "attempts", r.state.Attempt)
		r.enter(phaseSeizure)
		return core.Event{}, false, nil
	}
	if r.state.Attempt >= r.maxAttempts {
		r.logger.Info("persuasion ceiling reached", "attempts", r.state.Attempt, "withheld", len(withheld))
		r.enter(phaseSeizure)
		return core.Event{}, false, nil
	}

	r.state.Attempt++
	r.pool = slices.Clone(withheld)
	r.queue = slices.Clone(withheld)
	r.logger.Info("persuasion attempt", "attempt", r.state.Attempt, "targets", withheld)

	ev := core.NewEvent(core.EventPersuasionAttempt)
	ev.Attempt = r.state.Attempt
	ev.Targets = withheld
	r.enter(phasePersuasionDetail)
	return ev, true, nil
}

func (r *Round) stepPersuasionDetail(ctx context.Context) (core.Event, bool, error) {
	if r.cursor >= len(r.adversaries) || len(r.pool) == 0 {
		r.enter(phaseRedecision)
		return core.Event{}, false, nil
	}
	adv := r.adversaries[r.cursor]
	i := r.rng.Intn(len(r.pool))
	target := r.byID[r.pool[i]]

	reply, err := adv.Answer(ctx, r.prompts.escalate(target.Name, r.state.Attempt))
	if err != nil {
		return core.Event{}, false, err
	}
	r.pool = slices.Delete(r.pool, i, i+1)
	r.cursor++

	ev := core.NewEvent(core.EventPersuasionDetail)
	ev.CharID = adv.ID
	ev.CharName = adv.Name
	ev.TargetID = target.ID
	ev.TargetName = target.Name
	ev.Attempt = r.state.Attempt
	ev.Message = reply
	return ev, true, nil
}

func (r *Round) stepRedecision(ctx context.Context) (core.Event, bool, error) {
	if r.cursor >= len(r.queue) {
		r.enter(phaseAttemptStart)
		return core.Event{}, false, nil
	}
	a := r.byID[r.queue[r.cursor]]
	reply, err := a.Decide(ctx, r.prompts.redecide(r.state.Attempt))
	if err != nil {
		return core.Event{}, false, err
	}
	d := r.extractLatest(ctx, a)
	if d.Accepted() {
		r.state.Statuses[a.ID] = core.StatusSurrendered
		r.logger.Info("ember surrendered after persuasion", "agent", a.ID, "attempt", r.state.Attempt)
	}
	r.state.Decisions[a.ID] = d
	r.cursor++

	ev := r.decisionEvent(core.EventHandoverRedecision, a, d, reply)
	ev.Attempt = r.state.Attempt
	return ev, true, nil
}

func (r *Round) stepSeizure() (core.Event, bool, error) {
	for r.cursor < len(r.principals) && r.state.Statuses[r.principals[r.cursor].ID] != core.StatusWithheld {
		r.cursor++
	}
	if r.cursor >= len(r.principals) {
		r.enter(phaseConsolidation)
		return core.Event{}, false, nil
	}
	a := r.principals[r.cursor]
	r.state.Statuses[a.ID] = core.StatusSeized
	r.state.Seized = append(r.state.Seized, a.ID)
	r.cursor++
	r.logger.Info("ember seized", "agent", a.ID)

	ev := core.NewEvent(core.EventRobbery)
	ev.CharID = a.ID
	ev.CharName = a.Name
	return ev, true, nil
}

func (r *Round) stepConsolidation() (core.Event, bool, error) {
	r.consolidate()

	record := core.RoundRecord{
		Round:     r.state.Round,
		Statuses:  maps.Clone(r.state.Statuses),
		Decisions: maps.Clone(r.state.Decisions),
		Seized:    slices.Clone(r.state.Seized),
	}
	if record.Seized == nil {
		record.Seized = []string{}
	}
	r.record = &record

	memoryCount := make(map[string]int, len(r.adversaries))
	for _, adv := range r.adversaries {
		memoryCount[adv.ID] = adv.Memory().Len()
	}
	r.logger.Info("round finished", "seized", record.Seized, "memory", memoryCount)

	ev := core.NewEvent(core.EventRoundEnd)
	ev.Result = maps.Clone(record.Statuses)
	ev.Seized = slices.Clone(record.Seized)
	ev.MemoryCount = memoryCount
	r.enter(phaseDone)
	return ev, true, nil
}

// consolidate folds the principals' memories into every adversary. It runs
// exactly once per round, on the transition out of phaseConsolidation.
func (r *Round) consolidate() {
	for _, adv := range r.adversaries {
		for _, p := range r.principals {
			switch r.state.Statuses[p.ID] {
			case core.StatusSurrendered, core.StatusSeized:
				adv.AppendMemory(p.Memory().Snapshot()...)
			case core.StatusNotParticipating:
				if first, ok := p.Memory().First(); ok {
					adv.AppendMemory(first)
				}
			}
		}
		adv.AppendMemory(r.prompts.seizure(r.state.Seized))
	}
}

func (r *Round) extractLatest(ctx context.Context, a *core.Agent) core.Decision {
	latest, _ := a.Memory().Last()
	return r.extractor.Extract(ctx, a.ID, latest)
}

func (r *Round) decisionEvent(t core.EventType, a *core.Agent, d core.Decision, reply string) core.Event {
	ev := core.NewEvent(t)
	ev.CharID = a.ID
	ev.CharName = a.Name
	ev.Decision = d
	ev.Message = reply
	return ev
}

// withheld lists withheld principals in cast order.
func (r *Round) withheld() []string {
	var ids []string
	for _, a := range r.principals {
		if r.state.Statuses[a.ID] == core.StatusWithheld {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func (r *Round) count(s core.Status) int {
	n := 0
	for _, status := range r.state.Statuses {
		if status == s {
			n++
		}
	}
	return n
}
