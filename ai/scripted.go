package ai

import (
	"context"
	"sync"
)

// ScriptedBackend answers with a caller-supplied function and records every
// request it sees. It backs the offline mode and the package tests.
type ScriptedBackend struct {
	respond func(req Request) Outcome

	mu    sync.Mutex
	calls []Request
}

// NewScriptedBackend returns a backend that answers each request with respond(req).
func NewScriptedBackend(respond func(req Request) Outcome) *ScriptedBackend {
	return &ScriptedBackend{respond: respond}
}

// Send records the request and returns the scripted outcome.
func (s *ScriptedBackend) Send(ctx context.Context, req Request) Outcome {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Failure("Network request error: " + err.Error())
	}
	return s.respond(req)
}

// Calls returns a copy of the requests received so far.
func (s *ScriptedBackend) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of requests received so far.
func (s *ScriptedBackend) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
