// Package provider implements domain.AgentCaller over OpenAI-compatible
// chat completion APIs: a hosted Azure OpenAI deployment and a local
// inference server.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spendgate/spendgate/internal/domain"
	"github.com/spendgate/spendgate/internal/metrics"
)

// Caller invokes chat completions against one configured provider.
type Caller struct {
	client   *openai.Client
	model    string
	provider domain.Provider
	logger   *zap.Logger
}

// Config holds the provider connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewAzure creates a caller for an Azure OpenAI deployment. BaseURL is the
// resource endpoint; Model doubles as the deployment name.
func NewAzure(cfg *Config) *Caller {
	clientCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)

	return &Caller{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		provider: domain.ProviderAzure,
		logger:   cfg.Logger,
	}
}

// NewLocal creates a caller for an OpenAI-compatible local inference server.
func NewLocal(cfg *Config) *Caller {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Caller{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		provider: domain.ProviderLocal,
		logger:   cfg.Logger,
	}
}

// Provider returns the provider this caller is bound to.
func (c *Caller) Provider() domain.Provider { return c.provider }

// Invoke implements domain.AgentCaller. Returns the completion text and
// token usage with transport-level metrics.
func (c *Caller) Invoke(ctx context.Context, inv domain.Invocation) (domain.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: inv.Input},
		},
		User: inv.AgentKey,
	}
	if inv.MaxTokens > 0 {
		req.MaxTokens = inv.MaxTokens
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(string(c.provider), "error").Inc()
		return domain.Completion{}, parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.ProviderRequestsTotal.WithLabelValues(string(c.provider), "error").Inc()
		return domain.Completion{}, fmt.Errorf("empty completion response: %w", domain.ErrProviderError)
	}

	metrics.ProviderRequestsTotal.WithLabelValues(string(c.provider), "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(string(c.provider)).Observe(duration.Seconds())

	return domain.Completion{
		Output:           resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *Caller) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrProviderError for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("provider API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("provider API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("provider API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("provider request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
