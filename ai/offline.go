package ai

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

var offlineLines = []string{
	"The flame flickers, and I follow where it leads.",
	"Every ending in Amphoreus is only the prelude to another cycle.",
	"I have carried this burden for longer than I can remember.",
	"Listen closely: the Titans' fire does not belong to any one of us.",
	"Whatever fate the oracle spins, I will meet it standing.",
}

// NewOfflineBackend returns a backend that needs no network. Decision
// requests get a well-formed record whose value is drawn from a seeded
// source with the given acceptance probability; everything else gets a
// canned line of dialogue.
func NewOfflineBackend(seed int64, acceptRate float64) *ScriptedBackend {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(seed))

	return NewScriptedBackend(func(req Request) Outcome {
		mu.Lock()
		defer mu.Unlock()

		if isDecisionRequest(req) {
			value := "0"
			reason := "I will not give up what was entrusted to me."
			if rng.Float64() < acceptRate {
				value = "1"
				reason = "This is the path I choose."
			}
			return Success(fmt.Sprintf("{'decision': '%s', 'reason': '%s'}", value, reason))
		}
		return Success(offlineLines[rng.Intn(len(offlineLines))])
	})
}

func isDecisionRequest(req Request) bool {
	return strings.Contains(req.System, "'decision'") || strings.Contains(req.Content, "'decision'")
}
