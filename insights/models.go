package insights

import (
	"time"

	"github.com/NethermindEth/eternal-regression/core"
)

// RoundSummary is the statistics view of one round.
type RoundSummary struct {
	Round int `json:"round"`
	core.RoundStats
	SeizedIDs []string `json:"seized_ids"`
}

// Analysis summarizes a whole regression.
type Analysis struct {
	TotalRounds int             `json:"total_rounds"`
	Rounds      []RoundSummary  `json:"rounds"`
	Totals      core.RoundStats `json:"totals"`
	// Seized lists every principal seized at least once, in order of first seizure.
	Seized []string `json:"seized"`
}

// VisualRound is the flat per-round record consumed by the viewers.
type VisualRound struct {
	Round     int                    `json:"round"`
	Label     string                 `json:"label"`
	Decisions map[string]core.Status `json:"decisions"`
	Seized    []string               `json:"seized"`
}

// GlobalLogs carries the banner lines shown around an exported run.
type GlobalLogs struct {
	StartMessage string `json:"start_message"`
	EndMessage   string `json:"end_message"`
}

// ExportDocument is the file format read by the desktop viewer.
type ExportDocument struct {
	GlobalLogs GlobalLogs    `json:"global_logs"`
	Rounds     []VisualRound `json:"rounds"`
}

// Narrative is a model-written account of an analysis.
type Narrative struct {
	Analysis    string    `json:"analysis"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// MessageJSON is the reply shape requested from the narrator.
type MessageJSON struct {
	Stance string `json:"stance"`
	Reason string `json:"reason"`
}
