package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/NethermindEth/eternal-regression/ai"
	"github.com/NethermindEth/eternal-regression/core"
)

func TestDefaultCast(t *testing.T) {
	c := Default()

	if len(c.Principals) != 10 {
		t.Errorf("principals = %d, want 10", len(c.Principals))
	}
	if len(c.Adversaries) != 1 || c.Adversaries[0].ID != "Black_NeiKo" {
		t.Errorf("adversaries = %+v, want Black_NeiKo only", c.Adversaries)
	}
	herald, ok := c.Principal(c.Herald)
	if !ok || herald.Name != "Tribbie" {
		t.Errorf("herald = %q (%v), want Tribbie", herald.Name, ok)
	}
	for _, p := range c.Principals {
		if len(p.Memory) == 0 {
			t.Errorf("%s has no seed memory", p.ID)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path uses the default", func(t *testing.T) {
		c, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if c.Herald != "HapLotes405" {
			t.Errorf("herald = %q", c.Herald)
		}
	})

	t.Run("custom file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cast.yaml")
		doc := `
herald: a
principals:
  - {id: a, name: Alpha, memory: [first]}
  - {id: b, name: Beta}
adversaries:
  - {id: x, name: Thief}
`
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		c, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(c.Principals) != 2 || c.Principals[0].Memory[0] != "first" {
			t.Errorf("unexpected cast %+v", c)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no principals", "herald: a\nadversaries: [{id: x}]", "no principals"},
		{"no adversaries", "herald: a\nprincipals: [{id: a}]", "no adversaries"},
		{"duplicate", "herald: a\nprincipals: [{id: a}]\nadversaries: [{id: a}]", "duplicate"},
		{"missing id", "herald: a\nprincipals: [{id: a}, {name: Nobody}]\nadversaries: [{id: x}]", "no id"},
		{"foreign herald", "herald: x\nprincipals: [{id: a}]\nadversaries: [{id: x}]", "not a principal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestNewPrincipalsAreFresh(t *testing.T) {
	c := Default()
	backend := ai.NewScriptedBackend(func(ai.Request) ai.Outcome { return ai.Success("ok") })

	first := c.NewPrincipals(backend, core.DefaultAgentConfig())
	first[0].AppendMemory("something happened")
	first[0].SetSanity(0)

	second := c.NewPrincipals(backend, core.DefaultAgentConfig())
	if got, want := second[0].Memory().Len(), len(c.Principals[0].Memory); got != want {
		t.Errorf("fresh principal memory = %d, want %d", got, want)
	}
	if second[0].Sanity() != core.MaxSanity {
		t.Errorf("fresh principal sanity = %d, want %d", second[0].Sanity(), core.MaxSanity)
	}
}
