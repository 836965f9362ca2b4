package catalog

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// OverridesFile is the YAML document accepted by LoadOverrides.
//
// Entries whose ID matches a built-in descriptor replace individual
// fields of that descriptor; entries with new IDs declare additional
// OpenAI-compatible providers.
type OverridesFile struct {
	Providers []Descriptor `yaml:"providers"`
}

// LoadOverrides reads a YAML overrides file and merges it over the
// built-in catalog. The result is defaulted and validated; a descriptor
// that fails validation aborts the load.
//
// A missing file is not an error: the built-in catalog is returned
// unchanged.
func LoadOverrides(path string) ([]Descriptor, error) {
	base := Builtin()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, fmt.Errorf("failed to read catalog overrides %q: %w", path, err)
	}

	var file OverridesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog overrides %q: %w", path, err)
	}

	merged := Merge(base, file.Providers)
	for i := range merged {
		ApplyDefaults(&merged[i])
		if err := Validate(&merged[i]); err != nil {
			return nil, fmt.Errorf("catalog overrides %q: %w", path, err)
		}
	}

	slog.Debug("catalog overrides loaded",
		"path", path,
		"providers", len(merged),
	)

	return merged, nil
}

// Merge applies override descriptors over a base catalog. Overrides
// matching a base ID replace non-zero fields in place; unmatched
// overrides are appended.
func Merge(base []Descriptor, overrides []Descriptor) []Descriptor {
	merged := make([]Descriptor, len(base))
	copy(merged, base)

	for _, o := range overrides {
		idx := -1
		for i := range merged {
			if merged[i].ID == o.ID {
				idx = i
				break
			}
		}
		if idx == -1 {
			merged = append(merged, o)
			continue
		}
		mergeDescriptor(&merged[idx], o)
	}

	return merged
}

// mergeDescriptor copies non-zero override fields onto dst.
func mergeDescriptor(dst *Descriptor, o Descriptor) {
	if o.Name != "" {
		dst.Name = o.Name
	}
	if o.Family != "" {
		dst.Family = o.Family
	}
	if o.BaseURL != "" {
		dst.BaseURL = o.BaseURL
	}
	if o.ModelsEndpoint != "" {
		dst.ModelsEndpoint = o.ModelsEndpoint
	}
	if o.ChatEndpoint != "" {
		dst.ChatEndpoint = o.ChatEndpoint
	}
	if len(o.Headers) > 0 {
		dst.Headers = o.Headers
	}
	if o.RateLimit != 0 {
		dst.RateLimit = o.RateLimit
	}
	if o.TokenLimit != 0 {
		dst.TokenLimit = o.TokenLimit
	}
	if o.DefaultModel != "" {
		dst.DefaultModel = o.DefaultModel
	}
	if len(o.FreeModels) > 0 {
		dst.FreeModels = o.FreeModels
	}
	if o.EnvKey != "" {
		dst.EnvKey = o.EnvKey
	}
	if o.Timeout != 0 {
		dst.Timeout = o.Timeout
	}
}
