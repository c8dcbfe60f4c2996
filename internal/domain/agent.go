package domain

import "context"

// Invocation is one downstream agent call after admission.
type Invocation struct {
	AgentKey  string
	Input     string
	MaxTokens int
}

// Completion is the downstream provider's response with token usage.
type Completion struct {
	Output           string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AgentCaller invokes a downstream AI provider.
type AgentCaller interface {
	Invoke(ctx context.Context, inv Invocation) (Completion, error)
}

// HealthChecker is implemented by callers that can verify provider
// availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
