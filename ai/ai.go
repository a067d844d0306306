package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// LLMConfig holds configuration for an OpenAI-compatible chat endpoint
type LLMConfig struct {
	APIKey  string
	BaseURL string // empty means the go-openai default
	Model   string
	Timeout time.Duration
}

// DefaultLLMConfig returns standard LLM configuration
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:   openai.GPT3Dot5Turbo,
		Timeout: 60 * time.Second,
	}
}

// OpenAIBackend talks to any provider that speaks the chat-completions API
// (deepseek, intern, minimax and openai itself).
type OpenAIBackend struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIBackend creates a backend from the given configuration.
func NewOpenAIBackend(cfg LLMConfig, logger *slog.Logger) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("ai: model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultLLMConfig().Timeout
	}

	return &OpenAIBackend{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Send issues one chat completion. It never returns an error: timeouts become
// OutcomeTimeout and everything else that goes wrong becomes OutcomeFailure.
func (b *OpenAIBackend) Send(ctx context.Context, req Request) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    buildMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	start := time.Now()
	var (
		reply string
		err   error
	)
	if req.Stream {
		reply, err = b.stream(callCtx, chatReq)
	} else {
		reply, err = b.complete(callCtx, chatReq)
	}
	elapsed := time.Since(start)

	if err != nil {
		outcome := classifyError(err)
		b.logger.Debug("chat request failed", "model", b.model, "outcome", outcome.Kind, "elapsed", elapsed, "error", err)
		return outcome
	}

	b.logger.Debug("chat request completed", "model", b.model, "elapsed", elapsed, "chars", len(reply))
	return Success(reply)
}

func (b *OpenAIBackend) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// stream reads a streamed completion to the end and concatenates the deltas.
func (b *OpenAIBackend) stream(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	req.Stream = true
	stream, err := b.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		for _, choice := range chunk.Choices {
			sb.WriteString(choice.Delta.Content)
		}
	}
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Content,
	})
}

// classifyError maps a client error onto the outcome taxonomy.
func classifyError(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout()
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := fmt.Sprintf("API call failed (HTTP %d)", apiErr.HTTPStatusCode)
		if apiErr.Message != "" {
			msg += ": " + apiErr.Message
		}
		return Failure(msg)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return Failure(fmt.Sprintf("API call failed (HTTP %d): %v", reqErr.HTTPStatusCode, reqErr.Err))
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Failure(fmt.Sprintf("Network request error: %v", err))
	}

	return Failure(fmt.Sprintf("Unknown error: %v", err))
}
