package domain

// Provider identifies a downstream AI provider.
type Provider string

const (
	// ProviderAzure is the hosted Azure OpenAI deployment.
	ProviderAzure Provider = "azure"
	// ProviderLocal is an OpenAI-compatible local inference server.
	ProviderLocal Provider = "local"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderAzure || p == ProviderLocal
}

// Request describes one inbound agent invocation to be admitted or denied.
// Provider and Tokens may be zero; the estimator substitutes configured
// defaults.
type Request struct {
	OrgID    string
	AgentKey string
	Provider Provider
	Tokens   int
}
