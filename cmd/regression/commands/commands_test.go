package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/NethermindEth/eternal-regression/core"
	"github.com/NethermindEth/eternal-regression/insights"
	"github.com/NethermindEth/eternal-regression/roster"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CHAT_PROVIDER", "deepseek")
	t.Setenv("LOG_LEVEL", "error")

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCastCommand(t *testing.T) {
	out, err := execute(t, "cast")
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	var cast roster.Cast
	if err := yaml.Unmarshal([]byte(out), &cast); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if cast.Herald != "HapLotes405" || len(cast.Principals) != 10 {
		t.Errorf("cast = herald %s, %d principals", cast.Herald, len(cast.Principals))
	}
}

func TestRunCommandOffline(t *testing.T) {
	out, err := execute(t, "run", "--offline", "--seed", "4", "--rounds", "2", "--attempts", "1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"Round 1", "Round 2", "carries", "Regression complete: 2 rounds"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "run", "--offline", "--seed", "4", "--rounds", "1", "--json")
	if err != nil {
		t.Fatalf("run --json: %v", err)
	}
	var doc struct {
		Rounds   []core.RoundRecord `json:"rounds"`
		Analysis insights.Analysis  `json:"analysis"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(doc.Rounds) != 1 || doc.Analysis.TotalRounds != 1 {
		t.Errorf("json output = %+v", doc)
	}
}

func TestRunRequiresKeyOnline(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	if _, err := execute(t, "run", "--rounds", "1"); err == nil || !strings.Contains(err.Error(), "DEEPSEEK_API_KEY") {
		t.Errorf("run without key = %v, want a DEEPSEEK_API_KEY error", err)
	}
}

func TestStreamCommandOffline(t *testing.T) {
	out, err := execute(t, "stream", "--offline", "--seed", "2", "--rounds", "1", "--json")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var first, last core.Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("last line: %v", err)
	}
	if first.Type != core.EventStart || last.Type != core.EventComplete {
		t.Errorf("stream ran from %s to %s", first.Type, last.Type)
	}

	out, err = execute(t, "stream", "--offline", "--seed", "2", "--rounds", "1")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if !strings.Contains(out, "--- Round 1 ---") || !strings.Contains(out, "[oracle]") {
		t.Errorf("text stream output:\n%s", out)
	}
}

func TestExportCommandOffline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	if _, err := execute(t, "export", "--offline", "--rounds", "2", "-o", path); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc insights.ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if len(doc.Rounds) != 2 || !strings.Contains(doc.GlobalLogs.EndMessage, "2 rounds") {
		t.Errorf("export = %+v", doc.GlobalLogs)
	}
}
