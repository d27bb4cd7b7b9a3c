// Package tool contains domain types for invocable adapter tools: composed
// names, execution targets, input schemas and result envelopes.
package tool

import (
	"errors"
	"strings"
	"unicode"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
)

// ErrToolNotFound is returned when no registered tool has the requested name.
var ErrToolNotFound = errors.New("tool not found")

// NamePrefix is prepended to every composed tool name.
const NamePrefix = "mcp_"

// RESTTarget describes an HTTP operation from an OpenAPI document.
type RESTTarget struct {
	// Method is the lower-case HTTP method.
	Method string
	// Path is the path template, e.g. "/users/{id}".
	Path string
	// BaseURL is the record's base_url, else the document's first server.
	BaseURL string
	// OperationID is the operation's id (explicit or derived).
	OperationID string
	// ContentType is the body encoding hint: "form" (default) or "json".
	ContentType string
}

// MessageTarget describes a method on a JSON-RPC message endpoint.
type MessageTarget struct {
	// Method is the tool name sent in tools/call params.
	Method string
	// Endpoint is the server URL as stored in the catalog.
	Endpoint string
}

// AdapterTool is a callable unit built by the registry. It is immutable
// once built and shared between concurrent executions.
// Exactly one of REST and Message is set.
type AdapterTool struct {
	Name        string
	Description string
	Provider    string
	Category    string
	Tags        []string

	CatalogID   int64
	CatalogName string

	CredentialMode catalog.CredentialMode
	Credential     credential.Reference
	Auth           catalog.AuthConfig

	Input *InputSchema

	REST    *RESTTarget
	Message *MessageTarget
}

// Kind returns the adapter type of the tool's target.
func (t *AdapterTool) Kind() catalog.AdapterType {
	if t.Message != nil {
		return catalog.AdapterTypeMCP
	}
	return catalog.AdapterTypeREST
}

// Operation returns the REST operation id or the message method.
func (t *AdapterTool) Operation() string {
	switch {
	case t.REST != nil:
		return t.REST.OperationID
	case t.Message != nil:
		return t.Message.Method
	default:
		return ""
	}
}

// HasCredentialReference reports whether the tool carries a static
// credential reference usable for legacy resolution.
func (t *AdapterTool) HasCredentialReference() bool {
	return !t.Credential.IsZero()
}

// Sanitize lower-cases s and maps every non-alphanumeric rune to '_'.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ComposeName returns "mcp_<sanitized record name>_<sanitized operation>".
func ComposeName(recordName, operation string) string {
	return NamePrefix + Sanitize(recordName) + "_" + Sanitize(operation)
}

// ProviderKey derives the hosted-credential provider from a composed
// name: the first '_' segment after the "mcp_" prefix.
func ProviderKey(composedName string) string {
	rest := strings.TrimPrefix(composedName, NamePrefix)
	if i := strings.IndexByte(rest, '_'); i >= 0 {
		return rest[:i]
	}
	return rest
}
