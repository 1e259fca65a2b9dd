package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/proofly/proofly/internal/postprocess"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultTimeout bounds a single completion call.
	DefaultTimeout = 120 * time.Second
)

// Config holds connection settings for an OpenAI-compatible endpoint.
// BaseURL may point at any compatible provider; an empty value uses the
// official API.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

// OpenAIClient wraps the go-openai client with per-call timeouts and a
// bounded retry budget with exponential backoff.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	maxAttempts int
	retryDelay  time.Duration
	log         *log.Logger
}

// NewOpenAIClient validates cfg and returns a client. The API key is
// required; everything else has a default.
func NewOpenAIClient(cfg Config, logger *log.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		log:         logger,
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete submits the request and returns the cleaned completion. Failed
// calls are retried with backoff up to the configured budget; when the
// budget is exhausted the returned error is a *UpstreamError wrapping the
// last failure. A cancelled context aborts immediately.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			c.log.Debug("retrying completion", "attempt", attempt+1, "err", lastErr)
			select {
			case <-time.After(backoff(c.retryDelay, attempt)):
			case <-ctx.Done():
				return "", &UpstreamError{Attempts: attempt, Err: ctx.Err()}
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: req.Temperature,
		})
		cancel()

		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				// Caller cancelled; nothing left to retry against.
				return "", &UpstreamError{Attempts: attempt + 1, Err: err}
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("no completion choices returned")
			continue
		}

		text := postprocess.Clean(resp.Choices[0].Message.Content)
		if text == "" {
			lastErr = errors.New("empty completion")
			continue
		}
		return text, nil
	}

	return "", &UpstreamError{Attempts: c.maxAttempts, Err: lastErr}
}
