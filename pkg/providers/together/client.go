// Package together implements the Together AI provider adapter.
//
// Together AI exposes OpenAI-compatible endpoints under /v1, so the
// adapter is a thin wrapper over the compat client; only the endpoints
// and budgets in its catalog descriptor differ.
package together

import (
	"spiralcodex/rotor/pkg/catalog"
	"spiralcodex/rotor/pkg/providers/compat"
)

// Client is the Together AI adapter.
type Client struct {
	*compat.Client
}

// New creates a Together AI client.
func New(desc catalog.Descriptor, apiKey string) (*Client, error) {
	inner, err := compat.New(desc, apiKey)
	if err != nil {
		return nil, err
	}
	return &Client{Client: inner}, nil
}
