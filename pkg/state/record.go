package state

import (
	"log/slog"
	"time"

	"spiralcodex/rotor/pkg/usage"
)

// Record is the persisted configuration document.
type Record struct {
	Providers []ProviderRecord `json:"providers"`

	// CurrentProviderIndex is the rotation cursor. Clamped into range
	// on load if the provider list shrank since it was written.
	CurrentProviderIndex int `json:"currentProviderIndex"`
}

// ProviderRecord is one provider's persisted entry.
type ProviderRecord struct {
	Name string `json:"name"`

	// APIKeyEncrypted is the credential ciphertext from the credential
	// store. Never plaintext.
	APIKeyEncrypted string `json:"apiKeyEncrypted,omitempty"`

	// APIKey is the legacy plaintext field written by a predecessor of
	// this system. Read-only: accepted on load, re-encrypted into
	// APIKeyEncrypted on the next save, never written back.
	APIKey string `json:"apiKey,omitempty"`

	BaseURL        string            `json:"baseUrl,omitempty"`
	ModelsEndpoint string            `json:"modelsEndpoint,omitempty"`
	ChatEndpoint   string            `json:"chatEndpoint,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	RateLimit      int               `json:"rateLimit,omitempty"`
	TokenLimit     int               `json:"tokenLimit,omitempty"`

	// Status is the persisted provider status string. Parsed leniently;
	// see ParsedStatus.
	Status string `json:"status,omitempty"`

	Usage *UsageRecord `json:"usage,omitempty"`
}

// UsageRecord is the persisted usage counter block.
type UsageRecord struct {
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	TotalTokens      int    `json:"totalTokens"`
	Requests         int    `json:"requests"`
	LastReset        string `json:"lastReset,omitempty"`
}

// ParsedStatus returns the entry's status as a validated usage.Status.
// Unrecognized values (including nothing at all) fall back to active
// with a warning, never to a hard failure.
func (p *ProviderRecord) ParsedStatus() usage.Status {
	if p.Status == "" {
		return usage.StatusActive
	}
	status, ok := usage.ParseStatus(p.Status)
	if !ok {
		slog.Warn("unrecognized persisted provider status, falling back to active",
			"provider", p.Name,
			"status", p.Status,
		)
		return usage.StatusActive
	}
	return status
}

// Counters converts the persisted usage block into tracker counters.
// A missing or unparseable lastReset timestamp starts a fresh window.
func (p *ProviderRecord) Counters() usage.Counters {
	if p.Usage == nil {
		return usage.Counters{WindowStart: time.Now()}
	}

	c := usage.Counters{
		PromptTokens:     p.Usage.PromptTokens,
		CompletionTokens: p.Usage.CompletionTokens,
		TotalTokens:      p.Usage.TotalTokens,
		Requests:         p.Usage.Requests,
	}
	if p.Usage.LastReset != "" {
		if ts, err := time.Parse(time.RFC3339, p.Usage.LastReset); err == nil {
			c.WindowStart = ts
		} else {
			slog.Warn("unparseable lastReset timestamp, starting fresh window",
				"provider", p.Name,
				"last_reset", p.Usage.LastReset,
			)
		}
	}
	if c.WindowStart.IsZero() {
		c.WindowStart = time.Now()
	}
	return c
}

// NewUsageRecord converts tracker counters into the persisted form with
// an RFC 3339 window timestamp.
func NewUsageRecord(c usage.Counters) *UsageRecord {
	return &UsageRecord{
		PromptTokens:     c.PromptTokens,
		CompletionTokens: c.CompletionTokens,
		TotalTokens:      c.TotalTokens,
		Requests:         c.Requests,
		LastReset:        c.WindowStart.Format(time.RFC3339),
	}
}
