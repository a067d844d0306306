package ai

import (
	"context"
)

// OutcomeKind classifies the result of a chat request.
type OutcomeKind int

const (
	// OutcomeSuccess carries the model's reply.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeTimeout is the only transient outcome; callers may retry it.
	OutcomeTimeout
	// OutcomeFailure carries a description of an HTTP, network or unknown error.
	OutcomeFailure
)

// TimeoutText is the reply text attached to OutcomeTimeout.
const TimeoutText = "Request timed out, please try again later"

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is what a Backend returns instead of an error. Failures are plain
// text so they can be recorded like any other reply.
type Outcome struct {
	Kind OutcomeKind
	Text string
}

// Success wraps a model reply.
func Success(text string) Outcome { return Outcome{Kind: OutcomeSuccess, Text: text} }

// Timeout reports a transient timeout.
func Timeout() Outcome { return Outcome{Kind: OutcomeTimeout, Text: TimeoutText} }

// Failure wraps a terminal transport failure description.
func Failure(text string) Outcome { return Outcome{Kind: OutcomeFailure, Text: text} }

// Sampling holds the per-request generation parameters.
type Sampling struct {
	Temperature float32
	MaxTokens   int
	Stream      bool
}

// DefaultSampling returns the parameters every persona call uses unless configured.
func DefaultSampling() Sampling {
	return Sampling{
		Temperature: 0.7,
		MaxTokens:   1000,
		Stream:      false,
	}
}

// Request is a single chat turn: one user message plus optional system instructions.
type Request struct {
	Content string
	System  string
	Sampling
}

// Backend sends one chat request and blocks until the reply, a timeout or a failure.
type Backend interface {
	Send(ctx context.Context, req Request) Outcome
}

// BackendFunc adapts an ordinary function to the Backend interface.
type BackendFunc func(ctx context.Context, req Request) Outcome

// Send calls f(ctx, req).
func (f BackendFunc) Send(ctx context.Context, req Request) Outcome {
	return f(ctx, req)
}
