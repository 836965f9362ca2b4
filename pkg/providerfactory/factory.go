// Package providerfactory creates provider clients from catalog
// descriptors. It is the only place that knows which adapter serves
// which provider family.
package providerfactory

import (
	"fmt"
	"log/slog"

	"spiralcodex/rotor/pkg/catalog"
	"spiralcodex/rotor/pkg/providers"
	"spiralcodex/rotor/pkg/providers/compat"
	"spiralcodex/rotor/pkg/providers/huggingface"
	"spiralcodex/rotor/pkg/providers/openrouter"
	"spiralcodex/rotor/pkg/providers/together"
)

// New creates the client adapter for a descriptor's family.
//
// Supported families:
//   - openrouter: OpenRouter (OpenAI dialect plus attribution headers)
//   - together: Together AI (OpenAI dialect under /v1)
//   - huggingface: Hugging Face Inference API (text generation, 503 retry)
//   - openai-compat: any other OpenAI-compatible endpoint
func New(desc catalog.Descriptor, apiKey string) (providers.Client, error) {
	catalog.ApplyDefaults(&desc)
	if err := catalog.Validate(&desc); err != nil {
		return nil, err
	}

	slog.Debug("creating provider client",
		"provider", desc.ID,
		"family", desc.Family,
		"base_url", desc.BaseURL,
	)

	var (
		client providers.Client
		err    error
	)
	switch desc.Family {
	case catalog.FamilyOpenRouter:
		client, err = openrouter.New(desc, apiKey)
	case catalog.FamilyTogether:
		client, err = together.New(desc, apiKey)
	case catalog.FamilyHuggingFace:
		client, err = huggingface.New(desc, apiKey)
	case catalog.FamilyCompat:
		client, err = compat.New(desc, apiKey)
	default:
		return nil, fmt.Errorf("provider %q: unsupported family %q", desc.ID, desc.Family)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", desc.ID, err)
	}

	return client, nil
}
