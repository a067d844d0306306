// Package insights derives statistics, visualization records and narratives
// from the round log of a regression.
package insights

import (
	"fmt"
	"maps"
	"slices"

	"github.com/NethermindEth/eternal-regression/core"
)

// Analyze computes per-round statistics and totals.
func Analyze(records []core.RoundRecord) Analysis {
	a := Analysis{
		TotalRounds: len(records),
		Rounds:      make([]RoundSummary, 0, len(records)),
		Seized:      []string{},
	}
	seen := make(map[string]bool)
	for _, r := range records {
		stats := r.Stats()
		a.Rounds = append(a.Rounds, RoundSummary{
			Round:      r.Round,
			RoundStats: stats,
			SeizedIDs:  nonNil(r.Seized),
		})

		a.Totals.Chasing += stats.Chasing
		a.Totals.Surrendered += stats.Surrendered
		a.Totals.Seized += stats.Seized
		a.Totals.NotParticipating += stats.NotParticipating
		a.Totals.Unresolved += stats.Unresolved

		for _, id := range r.Seized {
			if !seen[id] {
				seen[id] = true
				a.Seized = append(a.Seized, id)
			}
		}
	}
	return a
}

// Visualize flattens records into one entry per round.
func Visualize(records []core.RoundRecord) []VisualRound {
	out := make([]VisualRound, len(records))
	for i, r := range records {
		out[i] = VisualRound{
			Round:     r.Round,
			Label:     fmt.Sprintf("Regression %d", r.Round),
			Decisions: maps.Clone(r.Statuses),
			Seized:    nonNil(r.Seized),
		}
	}
	return out
}

// Export builds the document written by the export command.
func Export(records []core.RoundRecord) ExportDocument {
	return ExportDocument{
		GlobalLogs: GlobalLogs{
			StartMessage: fmt.Sprintf("=== Eternal regression started, %d rounds ===", len(records)),
			EndMessage:   fmt.Sprintf("Eternal regression complete, %d rounds run", len(records)),
		},
		Rounds: Visualize(records),
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return slices.Clone(ids)
}
