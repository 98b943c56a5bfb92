// Package classifier asks a local Ollama model to triage a support message
// and draft a reply, and turns whatever the model answers into a Decision.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/nhle/mailtriage/internal/metrics"
)

const (
	defaultTimeout     = 180 * time.Second
	defaultTemperature = 0.2
	maxResponseBytes   = 4 << 20
)

// Config configures the Ollama client.
type Config struct {
	BaseURL       string
	Model         string
	Timeout       time.Duration
	Temperature   float64
	MaxInputChars int
}

// Classifier turns a message into a Decision.
type Classifier interface {
	Classify(ctx context.Context, in Input) Decision
}

// Client calls Ollama's /api/generate endpoint. Transport failures trip a
// circuit breaker so a dead model server does not cost a full timeout per
// message.
type Client struct {
	cfg    Config
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	log    zerolog.Logger
}

var _ Classifier = (*Client)(nil)

// New creates a Client. Zero timeout and temperature select the defaults.
func New(cfg Config, log zerolog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}

	c := &Client{
		cfg:    cfg,
		client: &http.Client{},
		log:    log.With().Str("component", "classifier").Logger(),
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ollama",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return c
}

type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system,omitempty"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Classify never fails: any error is logged and replaced by SafeDefault.
func (c *Client) Classify(ctx context.Context, in Input) Decision {
	in = in.Bound(c.cfg.MaxInputChars)

	prompt, err := UserPrompt(in)
	if err != nil {
		c.fallback("prompt", err)
		return SafeDefault(in.Subject)
	}

	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.Generate(ctx, SystemPrompt, prompt)
	})
	if err != nil {
		reason := "http"
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			reason = "breaker_open"
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		}
		c.fallback(reason, err)
		return SafeDefault(in.Subject)
	}

	text, _ := out.(string)
	d, err := Parse(text, in.Subject)
	if err != nil {
		c.fallback("parse", err)
		c.log.Debug().Str("response", truncate(text, 500)).Msg("unparseable classifier output")
		return d
	}

	c.log.Debug().
		Str("action", string(d.Action)).
		Float64("confidence", d.Confidence).
		Msg("classified")
	return d
}

func (c *Client) fallback(reason string, err error) {
	metrics.ClassifierFallbacksTotal.WithLabelValues(reason).Inc()
	c.log.Warn().Err(err).Str("reason", reason).Msg("classifier failed, escalating")
}

// Generate sends one non-streaming completion request and returns the
// model's raw text.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	bodyBytes, err := json.Marshal(generateRequest{
		Model:   c.cfg.Model,
		System:  system,
		Prompt:  prompt,
		Stream:  false,
		Format:  "json",
		Options: generateOptions{Temperature: c.cfg.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var result generateResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(respBody, &result) == nil && result.Error != "" {
			return "", fmt.Errorf("ollama error (%d): %s", resp.StatusCode, result.Error)
		}
		return "", fmt.Errorf("ollama error (%d): %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return strings.TrimSpace(result.Response), nil
}
