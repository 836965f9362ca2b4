// Package openrouter implements the OpenRouter provider adapter.
//
// OpenRouter speaks the OpenAI-compatible dialect, so the adapter wraps
// the compat client and adds the attribution headers OpenRouter expects
// plus free-model filtering based on its published pricing tables.
package openrouter

import (
	"context"

	"spiralcodex/rotor/pkg/catalog"
	"spiralcodex/rotor/pkg/providers"
	"spiralcodex/rotor/pkg/providers/compat"
)

// Client is the OpenRouter adapter.
type Client struct {
	*compat.Client
}

// New creates an OpenRouter client. The descriptor normally comes from
// catalog.Builtin, which carries the attribution headers OpenRouter
// asks integrators to send.
func New(desc catalog.Descriptor, apiKey string) (*Client, error) {
	inner, err := compat.New(desc, apiKey)
	if err != nil {
		return nil, err
	}
	return &Client{Client: inner}, nil
}

// ListFreeModels returns only the models whose entire pricing table is
// zero. OpenRouter marks free-tier models this way.
func (c *Client) ListFreeModels(ctx context.Context) ([]providers.Model, error) {
	details, err := c.ListModelsDetailed(ctx)
	if err != nil {
		return nil, err
	}

	var free []providers.Model
	for _, d := range details {
		if len(d.Pricing) == 0 {
			continue
		}
		allZero := true
		for _, v := range d.Pricing {
			if v != "0" {
				allZero = false
				break
			}
		}
		if allZero {
			free = append(free, providers.Model{ID: d.ID, Name: d.Name})
		}
	}
	return free, nil
}
