package usage

import "strings"

// Status is the closed set of provider lifecycle states.
type Status string

const (
	// StatusActive means the provider is usable, subject to limits.
	StatusActive Status = "active"

	// StatusExhausted means a rate or token budget was hit; clears on
	// the next window reset.
	StatusExhausted Status = "exhausted"

	// StatusError means the credential was rejected; terminal until an
	// operator supplies a new key.
	StatusError Status = "error"

	// StatusDisabled means an operator switched the provider off.
	StatusDisabled Status = "disabled"
)

// Valid reports whether s is one of the defined states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExhausted, StatusError, StatusDisabled:
		return true
	}
	return false
}

// ParseStatus parses a persisted status string.
//
// Beyond the canonical lowercase values it accepts the stringified enum
// form a predecessor of this system wrote into its state file
// ("ProviderStatus.ACTIVE" and friends). Unrecognized input returns
// ok=false; callers fall back to StatusActive and log a warning rather
// than propagating a corrupt status.
func ParseStatus(raw string) (Status, bool) {
	s := strings.TrimSpace(raw)
	// Legacy enum-string form: "ProviderStatus.ACTIVE".
	if idx := strings.LastIndex(s, "."); idx >= 0 {
		s = s[idx+1:]
	}
	status := Status(strings.ToLower(s))
	if status.Valid() {
		return status, true
	}
	return "", false
}
