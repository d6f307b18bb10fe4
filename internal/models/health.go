package models

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ScriptHealthResponse summarises the loaded script document.
type ScriptHealthResponse struct {
	Version             string   `json:"version"`
	Stages              []string `json:"stages"`
	SystemPromptPreview string   `json:"systemPromptPreview"`
}

// ProviderHealth reports one registered provider.
type ProviderHealth struct {
	Key        string `json:"key"`
	Configured bool   `json:"configured"`
}

// ProvidersHealthResponse is the body of GET /api/health/providers.
type ProvidersHealthResponse struct {
	DefaultProvider string           `json:"defaultProvider,omitempty"`
	Providers       []ProviderHealth `json:"providers"`
}
