package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/NethermindEth/eternal-regression/ai"
)

// Narrate asks the backend for a markdown account of an analysis.
func Narrate(ctx context.Context, backend ai.Backend, a Analysis) (*Narrative, error) {
	var summary strings.Builder
	for _, r := range a.Rounds {
		fmt.Fprintf(&summary, "Round %d - chasing: %d, surrendered: %d, seized: %d, not participating: %d, unresolved: %d, seized heirs: %v\n",
			r.Round, r.Chasing, r.Surrendered, r.Seized, r.NotParticipating, r.Unresolved, r.SeizedIDs)
	}

	prompt := fmt.Sprintf(`Analyze these rounds of the eternal regression and provide a JSON response with markdown analysis:

%s
Heirs seized at least once: %v

Your response must be a JSON object in this format:
{
  "stance": "SUMMARY",
  "reason": "## Round by Round\n- (key outcome of each round)\n\n## Persuasion\n- Who gave up their ember willingly: (names)\n- Who held out until seized: (names)\n\n## Trends\n- How participation changed across cycles\n- How the Flame-Thief's growing memory affected the outcome"
}

The markdown content should be properly escaped as a string in the JSON.`,
		summary.String(), a.Seized)

	outcome := backend.Send(ctx, ai.Request{
		Content:  prompt,
		Sampling: ai.DefaultSampling(),
	})
	if outcome.Kind != ai.OutcomeSuccess {
		return nil, fmt.Errorf("narrative request failed: %s", outcome.Text)
	}
	text := strings.TrimSpace(outcome.Text)
	if text == "" {
		return nil, fmt.Errorf("no analysis generated")
	}

	if strings.Contains(text, `"reason"`) {
		var msg MessageJSON
		if err := json.Unmarshal([]byte(text), &msg); err == nil && msg.Reason != "" {
			text = msg.Reason
		}
	}

	return &Narrative{
		Analysis:    text,
		LastUpdated: time.Now(),
	}, nil
}
