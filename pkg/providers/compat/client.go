package compat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"spiralcodex/rotor/pkg/catalog"
	"spiralcodex/rotor/pkg/providers"
)

// Client speaks the OpenAI-compatible chat completion dialect. It is
// the concrete adapter for the openai-compat family and the embedded
// core of the OpenRouter and Together AI adapters.
type Client struct {
	*providers.HTTPCore

	desc catalog.Descriptor
}

// New creates an OpenAI-compatible client for the given descriptor.
func New(desc catalog.Descriptor, apiKey string) (*Client, error) {
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

	return &Client{HTTPCore: core, desc: desc}, nil
}

// Descriptor returns the catalog descriptor this client was built from.
func (c *Client) Descriptor() catalog.Descriptor { return c.desc }

// chatRequest is the OpenAI-compatible wire request.
type chatRequest struct {
	Model    string              `json:"model"`
	Messages []providers.Message `json:"messages"`
}

// chatResponse is the OpenAI-compatible wire response.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message providers.Message `json:"message"`
	} `json:"choices"`
	Usage providers.TokenUsage `json:"usage"`
}

// Chat sends a chat completion request and normalizes the response.
func (c *Client) Chat(ctx context.Context, model string, messages []providers.Message) (*providers.ChatResponse, error) {
	if model == "" {
		model = c.desc.DefaultModel
	}

	var resp chatResponse
	req := chatRequest{Model: model, Messages: messages}
	if err := c.PostJSON(ctx, c.desc.ChatEndpoint, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, &providers.ParseError{
			Provider: c.desc.ID,
			Cause:    fmt.Errorf("response contains no choices"),
		}
	}

	out := &providers.ChatResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Usage:   resp.Usage,
		Created: resp.Created,
	}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.Model == "" {
		out.Model = model
	}
	if out.Created == 0 {
		out.Created = time.Now().Unix()
	}
	return out, nil
}

// ListModels returns the provider's model listing.
func (c *Client) ListModels(ctx context.Context) ([]providers.Model, error) {
	body, err := c.Do(ctx, http.MethodGet, c.desc.ModelsEndpoint, nil)
	if err != nil {
		return nil, err
	}
	return providers.DecodeModelList(c.desc.ID, body)
}

// ListModelsDetailed returns the raw model listing including pricing,
// for callers that filter on cost (see the openrouter package).
func (c *Client) ListModelsDetailed(ctx context.Context) ([]ModelDetail, error) {
	body, err := c.Do(ctx, http.MethodGet, c.desc.ModelsEndpoint, nil)
	if err != nil {
		return nil, err
	}
	return decodeModelDetails(c.desc.ID, body)
}

// ModelDetail is one listed model with its pricing table, when the
// provider publishes one.
type ModelDetail struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Pricing map[string]string `json:"pricing"`
}

func decodeModelDetails(provider string, body []byte) ([]ModelDetail, error) {
	var envelope struct {
		Models []ModelDetail `json:"models"`
		Data   []ModelDetail `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &providers.ParseError{
			Provider:    provider,
			RawResponse: string(body),
			Cause:       err,
		}
	}
	entries := envelope.Models
	if len(entries) == 0 {
		entries = envelope.Data
	}
	for i := range entries {
		if entries[i].Name == "" {
			entries[i].Name = entries[i].ID
		}
	}
	return entries, nil
}
