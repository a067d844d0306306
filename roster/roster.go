// Package roster loads the personas that take part in a regression.
package roster

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NethermindEth/eternal-regression/ai"
	"github.com/NethermindEth/eternal-regression/core"
)

//go:embed cast.yaml
var defaultCast []byte

// Cast lists the principals, the herald among them, and the adversaries.
type Cast struct {
	Herald      string         `json:"herald" yaml:"herald"`
	Principals  []core.Persona `json:"principals" yaml:"principals"`
	Adversaries []core.Persona `json:"adversaries" yaml:"adversaries"`
}

// Default returns the built-in cast.
func Default() Cast {
	c, err := Parse(defaultCast)
	if err != nil {
		panic(fmt.Sprintf("roster: embedded cast is invalid: %v", err))
	}
	return c
}

// Load reads a cast file. An empty path returns the built-in cast.
func Load(path string) (Cast, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Cast{}, fmt.Errorf("failed to read cast file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Cast{}, fmt.Errorf("cast file %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML (or JSON) cast document.
func Parse(data []byte) (Cast, error) {
	var c Cast
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Cast{}, fmt.Errorf("failed to parse cast: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Cast{}, err
	}
	return c, nil
}

// Validate checks that ids are present and unique across the whole cast and
// that the herald is a principal.
func (c Cast) Validate() error {
	if len(c.Principals) == 0 {
		return errors.New("cast has no principals")
	}
	if len(c.Adversaries) == 0 {
		return errors.New("cast has no adversaries")
	}
	seen := make(map[string]bool)
	for _, p := range append(append([]core.Persona{}, c.Principals...), c.Adversaries...) {
		if p.ID == "" {
			return fmt.Errorf("persona %q has no id", p.Name)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate persona id %q", p.ID)
		}
		seen[p.ID] = true
	}
	if _, ok := c.Principal(c.Herald); !ok {
		return fmt.Errorf("herald %q is not a principal", c.Herald)
	}
	return nil
}

// Principal looks a principal up by id.
func (c Cast) Principal(id string) (core.Persona, bool) {
	for _, p := range c.Principals {
		if p.ID == id {
			return p, true
		}
	}
	return core.Persona{}, false
}

// NewPrincipals builds fresh principal agents at full sanity with their seed
// memories. Each round gets its own set.
func (c Cast) NewPrincipals(backend ai.Backend, cfg core.AgentConfig) []*core.Agent {
	return newAgents(c.Principals, backend, cfg)
}

// NewAdversaries builds the adversary agents. They are meant to live for a
// whole regression.
func (c Cast) NewAdversaries(backend ai.Backend, cfg core.AgentConfig) []*core.Agent {
	return newAgents(c.Adversaries, backend, cfg)
}

func newAgents(personas []core.Persona, backend ai.Backend, cfg core.AgentConfig) []*core.Agent {
	agents := make([]*core.Agent, len(personas))
	for i, p := range personas {
		agents[i] = core.NewAgent(p, backend, cfg)
	}
	return agents
}
