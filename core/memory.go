package core

import "sync"

// Memory is an agent's append-only log. Entries are never reordered,
// rewritten or truncated; readers get copies.
type Memory struct {
	mu      sync.RWMutex
	entries []string
}

// NewMemory creates a log seeded with the given entries.
func NewMemory(seed ...string) *Memory {
	entries := make([]string, len(seed))
	copy(entries, seed)
	return &Memory{entries: entries}
}

// Append adds entries to the end of the log.
func (m *Memory) Append(entries ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
}

// Snapshot returns a copy of every entry in order.
func (m *Memory) Snapshot() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// First returns the oldest entry.
func (m *Memory) First() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.entries) == 0 {
		return "", false
	}
	return m.entries[0], true
}

// Last returns the newest entry.
func (m *Memory) Last() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.entries) == 0 {
		return "", false
	}
	return m.entries[len(m.entries)-1], true
}
