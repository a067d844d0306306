package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags each entry of the event stream.
type EventType string

const (
	EventStart              EventType = "start"
	EventRoundStart         EventType = "round_start"
	EventOracle             EventType = "oracle"
	EventFireDecision       EventType = "fire_decision"
	EventFireResult         EventType = "fire_result"
	EventPersuasion         EventType = "persuasion"
	EventHandoverDecision   EventType = "handover_decision"
	EventHandoverResult     EventType = "handover_result"
	EventPersuasionAttempt  EventType = "persuasion_attempt"
	EventPersuasionDetail   EventType = "persuasion_detail"
	EventHandoverRedecision EventType = "handover_redecision"
	EventRobbery            EventType = "robbery"
	EventRoundEnd           EventType = "round_end"
	EventComplete           EventType = "complete"
)

// Event is one step of a regression run. Only the fields relevant to Type are set.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Round  int `json:"round,omitempty"`
	Rounds int `json:"rounds,omitempty"` // start and complete

	CharID   string   `json:"char_id,omitempty"`
	CharName string   `json:"char_name,omitempty"`
	Message  string   `json:"message,omitempty"`
	Decision Decision `json:"decision,omitempty"`

	// persuasion_detail: CharID/CharName is the persuader.
	TargetID   string `json:"target_id,omitempty"`
	TargetName string `json:"target_name,omitempty"`

	Attempt int      `json:"attempt,omitempty"`
	Targets []string `json:"targets,omitempty"`

	Result      map[string]Status `json:"result,omitempty"`
	Seized      []string          `json:"seized,omitempty"`
	MemoryCount map[string]int    `json:"memory_count,omitempty"`
}

// NewEvent stamps a fresh event of the given type.
func NewEvent(t EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
	}
}
