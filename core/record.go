package core

import (
	"maps"
	"slices"
)

// RoundRecord is the outcome of one round. Treat it as immutable.
type RoundRecord struct {
	Round     int                 `json:"round"`
	Statuses  map[string]Status   `json:"statuses"`
	Decisions map[string]Decision `json:"decisions"` // last extracted decision per principal
	Seized    []string            `json:"seized"`
}

// RoundStats counts principals by outcome.
type RoundStats struct {
	Chasing          int `json:"chasing"`
	Surrendered      int `json:"surrendered"`
	Seized           int `json:"seized"`
	NotParticipating int `json:"not_participating"`
	Unresolved       int `json:"unresolved"`
}

// Clone returns a deep copy of r.
func (r RoundRecord) Clone() RoundRecord {
	return RoundRecord{
		Round:     r.Round,
		Statuses:  maps.Clone(r.Statuses),
		Decisions: maps.Clone(r.Decisions),
		Seized:    slices.Clone(r.Seized),
	}
}

// Stats tallies the record's statuses.
func (r RoundRecord) Stats() RoundStats {
	var s RoundStats
	for _, status := range r.Statuses {
		if status.IsChasing() {
			s.Chasing++
		}
		switch status {
		case StatusSurrendered:
			s.Surrendered++
		case StatusSeized:
			s.Seized++
		case StatusNotParticipating:
			s.NotParticipating++
		}
	}
	for _, d := range r.Decisions {
		if d == DecisionUnresolved {
			s.Unresolved++
		}
	}
	return s
}
