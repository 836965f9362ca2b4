// Package huggingface implements the Hugging Face Inference API adapter.
//
// The Inference API differs from the OpenAI dialect in three ways that
// this adapter absorbs:
//
//   - requests go to models/{model-id} with an {"inputs": prompt} body,
//     so the conversation is flattened into a single prompt string
//   - a cold model answers 503 until the backend has loaded it, which
//     the adapter retries with exponential backoff
//   - responses carry only generated text, so token usage is synthesized
//     from whitespace-delimited word counts to keep quota accounting
//     consistent with providers that report real usage
package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"spiralcodex/rotor/pkg/catalog"
	"spiralcodex/rotor/pkg/providers"
)

// Client is the Hugging Face Inference API adapter.
type Client struct {
	*providers.HTTPCore

	desc    catalog.Descriptor
	backoff providers.Backoff
}

// New creates a Hugging Face client with the default retry policy.
func New(desc catalog.Descriptor, apiKey string) (*Client, error) {
	return NewWithBackoff(desc, apiKey, providers.DefaultBackoff())
}

// NewWithBackoff creates a client with a custom retry policy. Tests use
// this to inject a recording sleep function.
func NewWithBackoff(desc catalog.Descriptor, apiKey string, backoff providers.Backoff) (*Client, error) {
	if desc.BaseURL == "" {
		return nil, fmt.Errorf("provider %q: base URL is required", desc.ID)
	}

	core := providers.NewHTTPCore(providers.ClientConfig{
		Name:    desc.ID,
		BaseURL: desc.BaseURL,
		APIKey:  apiKey,
		Headers: desc.Headers,
		Timeout: desc.Timeout,
	})

	return &Client{HTTPCore: core, desc: desc, backoff: backoff}, nil
}

// generation is the Inference API response entry shape.
type generation struct {
	GeneratedText string `json:"generated_text"`
}

// Chat flattens the conversation into a prompt, posts it to the model
// endpoint, and normalizes the generated text. A 503 from a loading
// model is retried by the configured backoff policy; if attempts run
// out the RetriesExhaustedError from the policy is returned as-is.
func (c *Client) Chat(ctx context.Context, model string, messages []providers.Message) (*providers.ChatResponse, error) {
	if model == "" {
		model = c.desc.DefaultModel
	}

	prompt := FlattenMessages(messages)
	path := c.desc.ChatEndpoint + "/" + model

	var generations []generation
	err := c.backoff.Do(ctx, c.desc.ID, func(ctx context.Context) error {
		payload, merr := json.Marshal(map[string]string{"inputs": prompt})
		if merr != nil {
			return fmt.Errorf("failed to marshal request: %w", merr)
		}

		body, derr := c.Do(ctx, "POST", path, payload)
		if derr != nil {
			// Attach the model to loading errors so logs show what is
			// still warming up.
			var le *providers.LoadingError
			if errors.As(derr, &le) {
				le.Model = model
			}
			return derr
		}

		if uerr := json.Unmarshal(body, &generations); uerr != nil {
			return &providers.ParseError{
				Provider:    c.desc.ID,
				RawResponse: string(body),
				Cause:       uerr,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(generations) == 0 {
		return nil, &providers.ParseError{
			Provider: c.desc.ID,
			Cause:    fmt.Errorf("response contains no generations"),
		}
	}

	content := generations[0].GeneratedText
	usage := SynthesizeUsage(prompt, content)

	return &providers.ChatResponse{
		ID:      uuid.NewString(),
		Model:   model,
		Content: content,
		Usage:   usage,
		Created: time.Now().Unix(),
	}, nil
}

// ListModels returns the provider's model listing.
func (c *Client) ListModels(ctx context.Context) ([]providers.Model, error) {
	body, err := c.Do(ctx, "GET", c.desc.ModelsEndpoint, nil)
	if err != nil {
		return nil, err
	}
	return providers.DecodeModelList(c.desc.ID, body)
}

// FlattenMessages renders a conversation as the "role: content" lines
// the text-generation endpoint expects.
func FlattenMessages(messages []providers.Message) string {
	var b strings.Builder
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = providers.RoleUser
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// SynthesizeUsage approximates token usage from whitespace-delimited
// word counts. The Inference API does not report usage, and the quota
// tracker needs non-zero counts to enforce token budgets.
func SynthesizeUsage(prompt, completion string) providers.TokenUsage {
	p := len(strings.Fields(prompt))
	c := len(strings.Fields(completion))
	return providers.TokenUsage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
	}
}
