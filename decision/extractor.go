// Package decision turns free-form model replies into accept/reject/unresolved.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NethermindEth/eternal-regression/ai"
	"github.com/NethermindEth/eternal-regression/core"
)

const (
	// DefaultAttempts bounds the local parsing passes before the model fallback.
	DefaultAttempts = 3
	// DefaultPause separates local parsing passes.
	DefaultPause = 100 * time.Millisecond

	classifierSystem = "You are a professional text-parsing assistant."
)

var decisionPattern = regexp.MustCompile(`['"]?decision['"]?\s*:\s*['"]?([01])['"]?`)

// decisionKeys are checked in order when a reply parses into a mapping.
var decisionKeys = []string{"decision", "Decision", "'decision'", `"decision"`}

// Extractor applies the parsing cascade and, as a last resort, asks the
// classifier backend to read the decision out of the text.
type Extractor struct {
	Classifier ai.Backend // nil disables the model fallback
	Attempts   int
	Pause      time.Duration
	Logger     *slog.Logger
}

// NewExtractor returns an extractor with the default attempt budget.
func NewExtractor(classifier ai.Backend, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		Classifier: classifier,
		Attempts:   DefaultAttempts,
		Pause:      DefaultPause,
		Logger:     logger,
	}
}

// Extract reads a decision from a reply. Strings and byte slices go through
// the text cascade; anything else is treated as already-structured data.
// The result is never coerced: callers decide what unresolved means.
func (e *Extractor) Extract(ctx context.Context, name string, reply any) core.Decision {
	var text string
	switch v := reply.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		d := Interpret(reply)
		if !d.Resolved() {
			e.logger().Warn("could not read decision from structured reply", "agent", name)
		}
		return d
	}

	attempts := e.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if d := parseText(text); d.Resolved() {
			return d
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, e.Pause); err != nil {
			break
		}
	}

	d := e.classify(ctx, name, text)
	if !d.Resolved() {
		e.logger().Warn("could not read decision from reply", "agent", name, "reply", truncate(text, 200))
	}
	return d
}

// parseText runs the three local strategies in order.
func parseText(text string) core.Decision {
	if m := decisionPattern.FindStringSubmatch(text); m != nil {
		return Normalize(m[1])
	}

	var strict any
	if err := json.Unmarshal([]byte(text), &strict); err == nil {
		if d := Interpret(strict); d.Resolved() {
			return d
		}
	}

	// YAML flow syntax accepts single-quoted keys and values, so it reads
	// dict-literal replies such as {'decision': '1'} that JSON rejects.
	var literal any
	if err := yaml.Unmarshal([]byte(text), &literal); err == nil {
		if d := Interpret(literal); d.Resolved() {
			return d
		}
	}

	return core.DecisionUnresolved
}

// Interpret extracts the decision field from a mapping, or normalizes a bare value.
func Interpret(v any) core.Decision {
	switch m := v.(type) {
	case map[string]any:
		for _, key := range decisionKeys {
			if val, ok := m[key]; ok {
				return Normalize(val)
			}
		}
		return core.DecisionUnresolved
	case map[any]any:
		for _, key := range decisionKeys {
			if val, ok := m[key]; ok {
				return Normalize(val)
			}
		}
		return core.DecisionUnresolved
	default:
		return Normalize(v)
	}
}

// Normalize maps true/1/"1" to accept and false/0/"0" to reject.
func Normalize(v any) core.Decision {
	switch val := v.(type) {
	case bool:
		if val {
			return core.DecisionAccept
		}
		return core.DecisionReject
	case int:
		return fromInt(int64(val))
	case int64:
		return fromInt(val)
	case uint64:
		if val <= 1 {
			return fromInt(int64(val))
		}
	case float64:
		if val == float64(int64(val)) {
			return fromInt(int64(val))
		}
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return fromInt(n)
		}
	case string:
		switch strings.TrimSpace(val) {
		case "1":
			return core.DecisionAccept
		case "0":
			return core.DecisionReject
		}
	}
	return core.DecisionUnresolved
}

func fromInt(n int64) core.Decision {
	switch n {
	case 1:
		return core.DecisionAccept
	case 0:
		return core.DecisionReject
	default:
		return core.DecisionUnresolved
	}
}

// classify is the single model-assisted attempt.
func (e *Extractor) classify(ctx context.Context, name, text string) core.Decision {
	if e.Classifier == nil || ctx.Err() != nil {
		return core.DecisionUnresolved
	}

	prompt := fmt.Sprintf(
		"Extract the decision from the following text: does this character accept the request "+
			"(to join the Flame-Chase, or to hand over the ember)? "+
			"If they accept, return '1'; if they refuse, return '0'; if it cannot be determined, return an empty string ''.\n"+
			"Text: %s\n"+
			"Return only '1', '0' or '', without any other explanation.",
		text,
	)
	outcome := e.Classifier.Send(ctx, ai.Request{
		Content:  prompt,
		System:   classifierSystem,
		Sampling: ai.DefaultSampling(),
	})
	if outcome.Kind != ai.OutcomeSuccess {
		e.logger().Warn("decision classifier call failed", "agent", name, "outcome", outcome.Kind, "reply", outcome.Text)
		return core.DecisionUnresolved
	}

	reply := strings.Trim(strings.TrimSpace(outcome.Text), `'"`)
	d := Normalize(reply)
	e.logger().Debug("decision classifier answered", "agent", name, "decision", d)
	return d
}

func (e *Extractor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
