package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Stream      bool    `json:"stream"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestBackend(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *OpenAIBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b, err := NewOpenAIBackend(LLMConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1/",
		Model:   "deepseek-chat",
		Timeout: timeout,
	}, nil)
	if err != nil {
		t.Fatalf("NewOpenAIBackend: %v", err)
	}
	return b
}

func TestSendSuccess(t *testing.T) {
	var got chatRequest
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"The flame answers."},"finish_reason":"stop"}]}`)
	}, time.Second)

	outcome := b.Send(context.Background(), Request{
		Content:  "Proclaim the oracle.",
		System:   "You are Tribbie.",
		Sampling: DefaultSampling(),
	})
	if outcome.Kind != OutcomeSuccess || outcome.Text != "The flame answers." {
		t.Fatalf("outcome = %+v", outcome)
	}

	if got.Model != "deepseek-chat" || got.MaxTokens != 1000 || got.Temperature != 0.7 {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Proclaim the oracle." {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestSendWithoutSystem(t *testing.T) {
	var got chatRequest
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}, time.Second)

	b.Send(context.Background(), Request{Content: "hi", Sampling: DefaultSampling()})
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestSendHTTPError(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	}, time.Second)

	outcome := b.Send(context.Background(), Request{Content: "hi", Sampling: DefaultSampling()})
	if outcome.Kind != OutcomeFailure {
		t.Fatalf("kind = %s, want failure", outcome.Kind)
	}
	if !strings.Contains(outcome.Text, "HTTP 500") || !strings.Contains(outcome.Text, "overloaded") {
		t.Errorf("text = %q", outcome.Text)
	}
}

func TestSendTimeout(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	outcome := b.Send(context.Background(), Request{Content: "hi", Sampling: DefaultSampling()})
	if outcome.Kind != OutcomeTimeout || outcome.Text != TimeoutText {
		t.Errorf("outcome = %+v, want timeout", outcome)
	}
}

func TestSendNetworkError(t *testing.T) {
	b, err := NewOpenAIBackend(LLMConfig{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1", Model: "m", Timeout: time.Second}, nil)
	if err != nil {
		t.Fatal(err)
	}
	outcome := b.Send(context.Background(), Request{Content: "hi", Sampling: DefaultSampling()})
	if outcome.Kind != OutcomeFailure || !strings.HasPrefix(outcome.Text, "Network request error") {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestSendStream(t *testing.T) {
	var got chatRequest
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"The ", "flame ", "answers."} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}, time.Second)

	sampling := DefaultSampling()
	sampling.Stream = true
	outcome := b.Send(context.Background(), Request{Content: "hi", Sampling: sampling})
	if outcome.Kind != OutcomeSuccess || outcome.Text != "The flame answers." {
		t.Errorf("outcome = %+v", outcome)
	}
	if !got.Stream {
		t.Error("request was not marked as streaming")
	}
}

func TestNewOpenAIBackendValidation(t *testing.T) {
	if _, err := NewOpenAIBackend(LLMConfig{Model: "m"}, nil); err == nil {
		t.Error("expected an error without an API key")
	}
	if _, err := NewOpenAIBackend(LLMConfig{APIKey: "k"}, nil); err == nil {
		t.Error("expected an error without a model")
	}
}

func TestOfflineBackend(t *testing.T) {
	decide := Request{Content: "Will you join?", System: "Answer in the format {'decision': '0 or 1', 'reason': 'xxx'}"}
	talk := Request{Content: "Speak."}

	a, b := NewOfflineBackend(7, 0.5), NewOfflineBackend(7, 0.5)
	for i := 0; i < 5; i++ {
		x, y := a.Send(context.Background(), decide), b.Send(context.Background(), decide)
		if x != y {
			t.Fatalf("same seed diverged: %+v vs %+v", x, y)
		}
		if !strings.HasPrefix(x.Text, "{'decision': '") {
			t.Errorf("decision reply = %q", x.Text)
		}
	}
	if out := a.Send(context.Background(), talk); out.Kind != OutcomeSuccess || strings.Contains(out.Text, "decision") {
		t.Errorf("dialogue reply = %+v", out)
	}

	always := NewOfflineBackend(1, 1)
	if out := always.Send(context.Background(), decide); !strings.Contains(out.Text, "'1'") {
		t.Errorf("accept rate 1 replied %q", out.Text)
	}
	if always.CallCount() != 1 || always.Calls()[0].Content != decide.Content {
		t.Errorf("calls = %+v", always.Calls())
	}
}

func TestScriptedBackendCancelled(t *testing.T) {
	s := NewScriptedBackend(func(Request) Outcome { return Success("never") })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if out := s.Send(ctx, Request{}); out.Kind != OutcomeFailure {
		t.Errorf("outcome = %+v, want failure", out)
	}
}
