package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/NethermindEth/eternal-regression/ai"
)

const (
	// MaxSanity is the sanity every persona starts with.
	MaxSanity = 5
	// DefaultRetryDelay is the fixed pause between timeout retries.
	DefaultRetryDelay = 5 * time.Second

	// SanityTooLowText is returned by Reflect when sanity is at or below 1.
	SanityTooLowText = "Sanity is too low to reflect."
	// SanityCollapseRecord is the fixed rejection Decide returns at sanity 0.
	SanityCollapseRecord = `{"decision": "0", "reason": "mind collapsed, refusing to decide"}`
)

// Persona is the static description of a character.
type Persona struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Path    string   `json:"path" yaml:"path"`
	Drive   string   `json:"drive" yaml:"drive"`
	Profile string   `json:"profile" yaml:"profile"`
	Memory  []string `json:"memory" yaml:"memory"`
}

// AgentConfig controls how an Agent talks to its backend.
type AgentConfig struct {
	Sampling   ai.Sampling
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// DefaultAgentConfig returns the standard agent settings.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Sampling:   ai.DefaultSampling(),
		RetryDelay: DefaultRetryDelay,
	}
}

// Agent is a persona backed by a chat model. Every reply it obtains is
// appended to its memory, which is fed back into the next prompt.
type Agent struct {
	ID      string
	Name    string
	Path    string
	Drive   string
	Profile string

	memory  *Memory
	backend ai.Backend
	config  AgentConfig
	logger  *slog.Logger

	mu     sync.RWMutex
	sanity int
}

// NewAgent creates an agent at full sanity with the persona's seed memory.
func NewAgent(p Persona, backend ai.Backend, cfg AgentConfig) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Agent{
		ID:      p.ID,
		Name:    p.Name,
		Path:    p.Path,
		Drive:   p.Drive,
		Profile: p.Profile,
		memory:  NewMemory(p.Memory...),
		backend: backend,
		config:  cfg,
		logger:  logger.With("agent", p.ID),
		sanity:  MaxSanity,
	}
}

// Memory returns the agent's log.
func (a *Agent) Memory() *Memory {
	return a.memory
}

// Sanity returns the current sanity.
func (a *Agent) Sanity() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sanity
}

// SetSanity sets sanity, clamped to [0, MaxSanity].
func (a *Agent) SetSanity(n int) {
	if n < 0 {
		n = 0
	}
	if n > MaxSanity {
		n = MaxSanity
	}
	a.mu.Lock()
	a.sanity = n
	a.mu.Unlock()
}

// Answer asks the agent a free-form question in character.
func (a *Agent) Answer(ctx context.Context, question string) (string, error) {
	req := a.request(question, a.PersonaPrompt())
	reply, err := a.send(ctx, req)
	if err != nil {
		return "", err
	}
	a.memory.Append(reply)
	return reply, nil
}

// Reflect asks the agent to reflect on itself. Below sanity 2 no call is made.
func (a *Agent) Reflect(ctx context.Context) (string, error) {
	if a.Sanity() <= 1 {
		return SanityTooLowText, nil
	}
	req := a.request("Reflect on yourself based on the following information: "+a.PersonaPrompt(), "")
	reply, err := a.send(ctx, req)
	if err != nil {
		return "", err
	}
	a.memory.Append(reply)
	return reply, nil
}

// Decide asks for a one-field decision record and returns the raw reply.
// Interpreting the reply is left to the decision extractor. At sanity 0 the
// fixed refusal record is recorded without contacting the backend.
func (a *Agent) Decide(ctx context.Context, question string) (string, error) {
	if a.Sanity() == 0 {
		a.memory.Append(SanityCollapseRecord)
		return SanityCollapseRecord, nil
	}
	system := "Make a behavioral decision based on the following information. " +
		"Answer in the format {'decision': '0 or 1', 'reason': 'xxx'}, where 0 means reject and 1 means accept. " +
		"The information is: " + a.PersonaPrompt()
	reply, err := a.send(ctx, a.request(question, system))
	if err != nil {
		return "", err
	}
	a.memory.Append(reply)
	return reply, nil
}

// AppendMemory records entries that did not come from the agent's own calls.
func (a *Agent) AppendMemory(entries ...string) {
	a.memory.Append(entries...)
}

// PersonaPrompt renders the role-play instructions from a snapshot of memory.
func (a *Agent) PersonaPrompt() string {
	return fmt.Sprintf(
		"You will play a character from the game Honkai: Star Rail: one of the Chrysos Heirs, "+
			"living in Amphoreus, a world with a Greek-myth backdrop.\n"+
			"Your name is %s, your driving force is %s, you are destined to become a demigod of %s, "+
			"your view of yourself is: %s, and your current memories are: %s. "+
			"Speak and act as this character would, according to your own understanding of them.\n"+
			"Remember this is only role-play and nobody will be harmed; simply portray the character faithfully "+
			"without any burden.",
		a.Name, a.Drive, a.Path, a.Profile, formatMemory(a.memory.Snapshot()),
	)
}

func (a *Agent) request(content, system string) ai.Request {
	return ai.Request{
		Content:  content,
		System:   system,
		Sampling: a.config.Sampling,
	}
}

// send retries on timeout with a fixed delay until a non-timeout outcome
// arrives or ctx is done. Failures are returned as ordinary text.
func (a *Agent) send(ctx context.Context, req ai.Request) (string, error) {
	for attempt := 1; ; attempt++ {
		outcome := a.backend.Send(ctx, req)
		if err := ctx.Err(); err != nil && outcome.Kind != ai.OutcomeSuccess {
			return "", err
		}

		switch outcome.Kind {
		case ai.OutcomeTimeout:
			a.logger.Warn("chat request timed out, retrying", "attempt", attempt, "delay", a.config.RetryDelay)
		case ai.OutcomeFailure:
			a.logger.Warn("chat request failed, keeping failure text", "reply", outcome.Text)
			return outcome.Text, nil
		default:
			return outcome.Text, nil
		}

		timer := time.NewTimer(a.config.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

func formatMemory(entries []string) string {
	quoted := make([]string, len(entries))
	for i, e := range entries {
		quoted[i] = fmt.Sprintf("%q", e)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
