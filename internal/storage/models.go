package storage

import "time"

// Provider is one configured upstream vendor endpoint. Credentials and custom
// headers are stored as encrypted envelopes.
type Provider struct {
	ID              int64
	Name            string
	Kind            string
	DisplayName     string
	BaseURL         string
	Organization    string
	EncAPIKey       *string
	EncHeadersJSON  *string
	Active          bool
	Healthy         bool
	LastHealthCheck *time.Time
	CreatedAt       time.Time
}

// ChatbotConfig binds a primary provider, an optional fallback, a model and
// generation parameters. Immutable for the duration of one session.
type ChatbotConfig struct {
	ID                 int64
	Name               string
	PrimaryProviderID  int64
	FallbackProviderID *int64
	Model              string
	SystemPrompt       string
	ParamsJSON         string
	CreatedAt          time.Time
}

type ChatbotWithProviders struct {
	ChatbotConfig
	Primary  Provider
	Fallback *Provider
}

type Conversation struct {
	ID        string
	ChatbotID *int64
	UserID    string
	CreatedAt time.Time
}

// Message is one persisted transcript entry. Rows are written once and never
// mutated.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	MetaJSON       string
	CreatedAt      time.Time
}

// ModelCatalogEntry is keyed by (provider kind, model name). Deprecated rows
// are flagged, never deleted, so historical chatbot configs stay resolvable.
type ModelCatalogEntry struct {
	ProviderKind    string
	ModelName       string
	DisplayName     string
	Description     string
	ContextLength   int
	Vision          bool
	FunctionCalling bool
	InputCostPer1K  float64
	OutputCostPer1K float64
	Tier            string
	Modality        string
	IsDeprecated    bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UsageRecord is one append-only fact per invocation.
type UsageRecord struct {
	ID            int64
	ChatbotID     *int64
	ProviderID    *int64
	Model         string
	LatencyMS     int64
	Success       bool
	Error         string
	TokenEstimate int
	CreatedAt     time.Time
}

// Document is a processed knowledge-base document available for context
// injection.
type Document struct {
	ID        int64
	Title     string
	Locator   string
	DocType   string
	Content   string
	Processed bool
	CreatedAt time.Time
}

type AuditEntry struct {
	Action   string
	MetaJSON string
}
