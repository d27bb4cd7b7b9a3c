package executor

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
)

// Auth types understood by the injector.
const (
	AuthTypeAPIKey = "api_key"
	AuthTypeBearer = "bearer"
)

// authMaterial is what gets added to an upstream request.
type authMaterial struct {
	headers map[string]string
	query   map[string]string
}

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// injectAuth builds headers and query parameters from resolved
// credentials. Missing material yields nothing, never an error.
func injectAuth(cfg catalog.AuthConfig, creds credential.Credentials) authMaterial {
	out := authMaterial{headers: map[string]string{}, query: map[string]string{}}
	if creds.Empty() {
		return out
	}

	switch cfg.Type {
	case AuthTypeAPIKey:
		name := cfg.Name
		if name == "" {
			name = "Authorization"
		}
		value := creds.FirstNonEmpty()
		if cfg.ValueTemplate != "" {
			var ok bool
			value, ok = interpolate(cfg.ValueTemplate, creds)
			if !ok {
				return out
			}
		}
		if value == "" {
			return out
		}
		if cfg.In == "query" {
			out.query[name] = value
		} else {
			out.headers[name] = value
		}
	case AuthTypeBearer:
		token := creds.String("access_token")
		if token == "" {
			token = creds.FirstNonEmpty()
		}
		if token != "" {
			out.headers["Authorization"] = "Bearer " + token
		}
	}
	return out
}

// interpolate replaces {field} placeholders with credential values.
// It fails if any placeholder has no value.
func interpolate(template string, creds credential.Credentials) (string, bool) {
	ok := true
	result := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		v, found := creds[key]
		if !found || v == nil {
			ok = false
			return m
		}
		s, isScalar := formatScalar(v)
		if !isScalar {
			ok = false
			return m
		}
		return s
	})
	return result, ok
}

// formatScalar renders strings, numbers and booleans. Other values
// report false.
func formatScalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// formatValue renders scalars as text and anything else as JSON.
func formatValue(v any) string {
	if s, ok := formatScalar(v); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
