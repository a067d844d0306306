// Package config loads the application settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/NethermindEth/eternal-regression/ai"
	"github.com/NethermindEth/eternal-regression/core"
)

// Provider describes an OpenAI-compatible chat endpoint.
type Provider struct {
	Name    string
	BaseURL string // empty means the go-openai default
	Model   string
}

// Providers lists the supported chat providers.
var Providers = map[string]Provider{
	"deepseek": {Name: "deepseek", BaseURL: "https://api.deepseek.com", Model: "deepseek-chat"},
	"intern":   {Name: "intern", BaseURL: "https://chat.intern-ai.org.cn/api/v1", Model: "internlm3-latest"},
	"minimax":  {Name: "minimax", BaseURL: "https://api.minimaxi.com/v1", Model: "MiniMax-M1"},
	"openai":   {Name: "openai", Model: "gpt-3.5-turbo"},
}

// Config holds all application configuration.
type Config struct {
	Provider           string
	LLM                ai.LLMConfig
	Sampling           ai.Sampling
	RetryDelay         time.Duration
	PersuasionAttempts int
	CastFile           string
	NATSURL            string
	APIPort            string
	LogFormat          string
	LogLevel           string
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	name := strings.ToLower(getEnv("CHAT_PROVIDER", "deepseek"))
	provider, ok := Providers[name]
	if !ok {
		return nil, fmt.Errorf("invalid configuration: unknown CHAT_PROVIDER %q", name)
	}
	prefix := strings.ToUpper(name)

	cfg := &Config{
		Provider: name,
		LLM: ai.LLMConfig{
			APIKey:  getEnv(prefix+"_API_KEY", ""),
			BaseURL: getEnv(prefix+"_BASE_URL", provider.BaseURL),
			Model:   getEnv(prefix+"_MODEL", provider.Model),
			Timeout: getEnvDuration("CHAT_TIMEOUT", 60*time.Second),
		},
		Sampling: ai.Sampling{
			Temperature: getEnvFloat("CHAT_TEMPERATURE", 0.7),
			MaxTokens:   getEnvInt("CHAT_MAX_TOKENS", 1000),
			Stream:      getEnvBool("CHAT_STREAM", false),
		},
		RetryDelay:         getEnvDuration("RETRY_DELAY", core.DefaultRetryDelay),
		PersuasionAttempts: getEnvInt("PERSUASION_ATTEMPTS", 3),
		CastFile:           getEnv("CAST_FILE", ""),
		NATSURL:            getEnv("NATS_URL", ""),
		APIPort:            getEnv("API_PORT", "3000"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the structural settings. The API key is checked separately
// by RequireAPIKey since not every command talks to the model.
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("%s_MODEL cannot be empty", strings.ToUpper(c.Provider))
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("CHAT_TIMEOUT must be > 0")
	}
	if c.Sampling.MaxTokens <= 0 {
		return errors.New("CHAT_MAX_TOKENS must be > 0")
	}
	if c.Sampling.Temperature < 0 || c.Sampling.Temperature > 2 {
		return errors.New("CHAT_TEMPERATURE must be within [0, 2]")
	}
	if c.RetryDelay <= 0 {
		return errors.New("RETRY_DELAY must be > 0")
	}
	if c.PersuasionAttempts <= 0 {
		return errors.New("PERSUASION_ATTEMPTS must be > 0")
	}
	if c.APIPort == "" {
		return errors.New("API_PORT cannot be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RequireAPIKey reports a missing key for the selected provider.
func (c *Config) RequireAPIKey() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%s_API_KEY environment variable not set", strings.ToUpper(c.Provider))
	}
	return nil
}

// AgentConfig returns the per-agent settings derived from c.
func (c *Config) AgentConfig(logger *slog.Logger) core.AgentConfig {
	return core.AgentConfig{
		Sampling:   c.Sampling,
		RetryDelay: c.RetryDelay,
		Logger:     logger,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float32) float32 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
	if err != nil {
		return fallback
	}
	return float32(f)
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
