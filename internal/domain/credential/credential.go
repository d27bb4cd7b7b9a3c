// Package credential contains domain types for per-call secrets and their
// redaction.
package credential

import (
	"errors"
	"regexp"
	"sort"
)

// ErrCredentialsNotFound is returned when no credentials could be resolved
// for a tool call.
var ErrCredentialsNotFound = errors.New("credentials not found")

// Credentials is an opaque set of secret fields for one call.
// It is never persisted and never logged unredacted.
type Credentials map[string]any

// Empty reports whether c holds no fields.
func (c Credentials) Empty() bool {
	return len(c) == 0
}

// String returns the named field if it is a non-empty string.
func (c Credentials) String(key string) string {
	if s, ok := c[key].(string); ok {
		return s
	}
	return ""
}

// FirstNonEmpty returns the first non-empty string field in sorted key order.
func (c Credentials) FirstNonEmpty() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s := c.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Reference names a stored credential for legacy resolution.
type Reference struct {
	ID          *int64 `json:"credential_id,omitempty"`
	Name        string `json:"credential_name,omitempty"`
	Type        string `json:"type,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// IsZero reports whether the reference names nothing.
func (r Reference) IsZero() bool {
	return r.ID == nil && r.Name == "" && r.Type == ""
}

// RedactedValue replaces secret values in logs.
const RedactedValue = "***REDACTED***"

var sensitiveKey = regexp.MustCompile(`(?i)(token|secret|api[_-]?key|password)`)

// IsSensitiveKey reports whether a field name looks like a secret.
func IsSensitiveKey(key string) bool {
	return sensitiveKey.MatchString(key)
}

// Redact returns a copy of v with the values of sensitive keys replaced,
// recursing into maps and slices. Values under a "credentials" key are
// redacted whole.
func Redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == "credentials" || IsSensitiveKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case Credentials:
		return Redact(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Redact(val)
		}
		return out
	default:
		return v
	}
}
