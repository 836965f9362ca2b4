package catalog

import (
	"fmt"
	"os"
	"time"
)

// Provider family identifiers. The family selects which client adapter
// handles a descriptor.
const (
	FamilyOpenRouter  = "openrouter"
	FamilyHuggingFace = "huggingface"
	FamilyTogether    = "together"
	FamilyCompat      = "openai-compat"
)

// Descriptor contains the static connection metadata for one provider.
// Instances are value types; callers receive copies and cannot mutate
// the catalog.
type Descriptor struct {
	// ID uniquely identifies the provider (e.g. "openrouter").
	ID string `yaml:"id"`

	// Name is the human-readable provider name.
	Name string `yaml:"name"`

	// Family selects the client adapter (openrouter, huggingface,
	// together, openai-compat).
	Family string `yaml:"family"`

	// BaseURL is the API endpoint base URL, without a trailing slash.
	BaseURL string `yaml:"base_url"`

	// ModelsEndpoint is the path for model listing, relative to BaseURL.
	ModelsEndpoint string `yaml:"models_endpoint"`

	// ChatEndpoint is the path for chat completions, relative to BaseURL.
	// The Hugging Face family appends the model ID to this path instead.
	ChatEndpoint string `yaml:"chat_endpoint"`

	// Headers are extra headers sent with every request. Authorization
	// is always set separately from the credential store and must not
	// appear here.
	Headers map[string]string `yaml:"headers"`

	// RateLimit is the maximum number of requests per usage window.
	RateLimit int `yaml:"rate_limit"`

	// TokenLimit is the maximum number of tokens per usage window.
	TokenLimit int `yaml:"token_limit"`

	// DefaultModel is used when the caller does not name a model.
	DefaultModel string `yaml:"default_model"`

	// FreeModels lists known zero-cost model IDs, in preference order.
	FreeModels []string `yaml:"free_models"`

	// EnvKey is the environment variable that supplies this provider's
	// API key. A non-empty value in the environment auto-registers the
	// provider.
	EnvKey string `yaml:"env_key"`

	// Timeout bounds each outbound HTTP request.
	Timeout time.Duration `yaml:"timeout"`
}

// Builtin returns the descriptors for the provider families known at
// compile time. The returned slice is a fresh copy on every call.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			ID:             "openrouter",
			Name:           "OpenRouter",
			Family:         FamilyOpenRouter,
			BaseURL:        "https://openrouter.ai/api/v1",
			ModelsEndpoint: "models",
			ChatEndpoint:   "chat/completions",
			Headers: map[string]string{
				"HTTP-Referer": "https://localhost",
				"X-Title":      "rotor",
			},
			RateLimit:    1000,
			TokenLimit:   100000,
			DefaultModel: "mistralai/mistral-7b-instruct:free",
			EnvKey:       "OPENROUTER_API_KEY",
		},
		{
			ID:             "huggingface",
			Name:           "Hugging Face",
			Family:         FamilyHuggingFace,
			BaseURL:        "https://api-inference.huggingface.co",
			ModelsEndpoint: "models",
			ChatEndpoint:   "models",
			RateLimit:      100,
			TokenLimit:     50000,
			DefaultModel:   "mistralai/Mistral-7B-Instruct-v0.2",
			EnvKey:         "HUGGINGFACE_API_KEY",
		},
		{
			ID:             "together",
			Name:           "Together AI",
			Family:         FamilyTogether,
			BaseURL:        "https://api.together.xyz",
			ModelsEndpoint: "v1/models",
			ChatEndpoint:   "v1/chat/completions",
			RateLimit:      500,
			TokenLimit:     250000,
			DefaultModel:   "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free",
			EnvKey:         "TOGETHER_API_KEY",
		},
	}
}

// Lookup returns the built-in descriptor with the given ID.
func Lookup(id string) (Descriptor, bool) {
	for _, d := range Builtin() {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ApplyDefaults fills zero-valued optional fields on a descriptor.
func ApplyDefaults(d *Descriptor) {
	if d.Family == "" {
		d.Family = FamilyCompat
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.ModelsEndpoint == "" {
		d.ModelsEndpoint = "models"
	}
	if d.ChatEndpoint == "" {
		d.ChatEndpoint = "chat/completions"
	}
	if d.RateLimit == 0 {
		d.RateLimit = 1000
	}
	if d.TokenLimit == 0 {
		d.TokenLimit = 100000
	}
	if d.Timeout == 0 {
		d.Timeout = 60 * time.Second
	}
}

// Validate checks a descriptor for required fields and sane limits.
func Validate(d *Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("descriptor ID is required")
	}
	if d.BaseURL == "" {
		return fmt.Errorf("descriptor %q: base URL is required", d.ID)
	}
	switch d.Family {
	case FamilyOpenRouter, FamilyHuggingFace, FamilyTogether, FamilyCompat:
	default:
		return fmt.Errorf("descriptor %q: unknown family %q", d.ID, d.Family)
	}
	if d.RateLimit < 0 {
		return fmt.Errorf("descriptor %q: rate limit must not be negative", d.ID)
	}
	if d.TokenLimit < 0 {
		return fmt.Errorf("descriptor %q: token limit must not be negative", d.ID)
	}
	return nil
}

// EnvRegistration pairs a descriptor with the API key found in its
// environment variable.
type EnvRegistration struct {
	Descriptor Descriptor
	APIKey     string
}

// FromEnv scans the environment for provider API keys and returns a
// registration for every built-in descriptor whose EnvKey variable is
// set and non-empty.
func FromEnv() []EnvRegistration {
	var regs []EnvRegistration
	for _, d := range Builtin() {
		if d.EnvKey == "" {
			continue
		}
		if key := os.Getenv(d.EnvKey); key != "" {
			regs = append(regs, EnvRegistration{Descriptor: d, APIKey: key})
		}
	}
	return regs
}
