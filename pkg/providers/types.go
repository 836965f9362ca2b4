package providers

import "context"

// Message represents a single message in a conversation. It is
// provider-agnostic and is transformed to the provider's native shape
// by each adapter.
type Message struct {
	// Role identifies the message sender (system, user, assistant).
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TokenUsage tracks token consumption for a single request.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ChatResponse is the normalized chat completion result all adapters
// produce, regardless of the provider's native response shape.
type ChatResponse struct {
	// ID is the response identifier. Providers that do not return one
	// get a locally generated ID.
	ID string `json:"id"`

	// Model is the model that generated the response.
	Model string `json:"model"`

	// Content is the generated assistant text.
	Content string `json:"content"`

	// Usage contains token consumption. For providers that return only
	// raw text, the adapter synthesizes an approximate count so quota
	// accounting still holds.
	Usage TokenUsage `json:"usage"`

	// Provider identifies which provider actually served the request.
	// Set by the rotation manager, not by adapters.
	Provider string `json:"provider,omitempty"`

	// Created is the Unix timestamp when the response was created.
	Created int64 `json:"created"`
}

// Record is the wire-shaped completion record handed to external
// collaborators: an OpenAI-style choices list plus usage.
type Record struct {
	Choices []RecordChoice `json:"choices"`
	Usage   TokenUsage     `json:"usage"`
}

// RecordChoice is a single choice in a Record.
type RecordChoice struct {
	Message Message `json:"message"`
}

// Record converts the normalized response into the external record
// shape consumed by shells, dashboards, and other collaborators.
func (r *ChatResponse) Record() Record {
	return Record{
		Choices: []RecordChoice{
			{Message: Message{Role: RoleAssistant, Content: r.Content}},
		},
		Usage: r.Usage,
	}
}

// Model describes one model offered by a provider.
type Model struct {
	// ID is the provider-scoped model identifier.
	ID string `json:"id"`

	// Name is the display name; falls back to ID when the provider
	// does not supply one.
	Name string `json:"name"`
}

// Client is the uniform provider abstraction. One implementation exists
// per provider family; each is responsible for normalizing its native
// request/response shapes.
//
// All methods respect context cancellation: an in-flight HTTP call and
// any pending backoff sleep abort promptly when the context is done.
type Client interface {
	// Chat sends a chat completion request and returns the normalized
	// response. Errors follow the package taxonomy; the 503 retry loop
	// runs internally for providers whose backend reports model loading.
	Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error)

	// ListModels returns the models offered by the provider.
	ListModels(ctx context.Context) ([]Model, error)

	// Name returns the provider identifier this client serves.
	Name() string

	// Close releases HTTP connections. The client must not be used
	// after Close.
	Close() error
}
