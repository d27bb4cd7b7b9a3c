// Package catalog contains domain types for persisted tool definitions.
package catalog

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// AdapterType identifies how a catalog tool is executed.
type AdapterType string

const (
	// AdapterTypeREST is an HTTP API described by an OpenAPI document.
	AdapterTypeREST AdapterType = "rest"
	// AdapterTypeMCP is a JSON-RPC message endpoint (an MCP server).
	AdapterTypeMCP AdapterType = "mcp"
)

// IsValid returns true if the adapter type is known.
func (t AdapterType) IsValid() bool {
	return t == AdapterTypeREST || t == AdapterTypeMCP
}

// CredentialMode selects where secrets for a tool call come from.
type CredentialMode string

const (
	// CredentialModeHosted resolves secrets through the upstream service
	// by tenant and provider.
	CredentialModeHosted CredentialMode = "hosted"
	// CredentialModeBYO requires the caller to supply secrets.
	CredentialModeBYO CredentialMode = "byo"
	// CredentialModeLegacy resolves secrets through the tool's static
	// credential reference (id, name or type).
	CredentialModeLegacy CredentialMode = "legacy"
)

// IsValid returns true if the mode is known. The empty mode is valid and
// behaves like CredentialModeLegacy.
func (m CredentialMode) IsValid() bool {
	switch m {
	case "", CredentialModeHosted, CredentialModeBYO, CredentialModeLegacy:
		return true
	default:
		return false
	}
}

// Content type hints for REST request bodies.
const (
	ContentTypeForm = "form"
	ContentTypeJSON = "json"
)

// DefaultEnvironment is the credential environment used when none is set.
const DefaultEnvironment = "production"

// AuthConfig describes how resolved credentials are injected into an
// upstream request.
type AuthConfig struct {
	// Type is "api_key", "bearer" or empty (no injection).
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	// Name is the header or query parameter name for api_key auth.
	// Defaults to "Authorization".
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// In is "header" (default) or "query".
	In string `json:"in,omitempty" yaml:"in,omitempty"`
	// ValueTemplate is interpolated with {field} placeholders from the
	// credential fields, e.g. "Token {api_key}".
	ValueTemplate string `json:"value_template,omitempty" yaml:"value_template,omitempty"`
}

// ToolRecord is a persisted tool definition.
type ToolRecord struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Provider    string      `json:"provider"`
	Category    string      `json:"category"`
	AdapterType AdapterType `json:"adapter_type"`
	Enabled     bool        `json:"enabled"`

	// Message kind connectivity.
	MCPServerURL string `json:"mcp_server_url,omitempty"`

	// REST kind connectivity.
	OpenAPIURL  string `json:"openapi_url,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
	ContentType string `json:"content_type,omitempty"`

	// OperationIDs restricts REST operations, or lists the method names of
	// a message endpoint.
	OperationIDs []string   `json:"operation_ids"`
	AuthConfig   AuthConfig `json:"auth_config"`
	Tags         []string   `json:"tags"`

	CredentialMode        CredentialMode `json:"credential_mode"`
	CredentialID          *int64         `json:"credential_id,omitempty"`
	CredentialName        string         `json:"credential_name,omitempty"`
	CredentialType        string         `json:"credential_type,omitempty"`
	CredentialEnvironment string         `json:"credential_environment"`
	OrgID                 string         `json:"org_id,omitempty"`

	// Metadata holds free-form import data (source, capabilities, logo).
	Metadata map[string]any `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplyDefaults fills optional fields with their documented defaults.
func (r *ToolRecord) ApplyDefaults() {
	if r.CredentialMode == "" {
		r.CredentialMode = CredentialModeHosted
	}
	if r.CredentialEnvironment == "" {
		r.CredentialEnvironment = DefaultEnvironment
	}
	if r.Provider == "" {
		r.Provider = "unknown"
	}
	if r.Category == "" {
		r.Category = "other"
	}
	if r.OperationIDs == nil {
		r.OperationIDs = []string{}
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
}

// Validate checks the record's invariants: a non-empty name, a known
// adapter type and credential mode.
func (r *ToolRecord) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !r.AdapterType.IsValid() {
		errs = append(errs, fmt.Errorf("adapter_type must be one of: rest mcp (got %q)", r.AdapterType))
	}
	if !r.CredentialMode.IsValid() {
		errs = append(errs, fmt.Errorf("credential_mode must be one of: hosted byo legacy (got %q)", r.CredentialMode))
	}
	switch r.ContentType {
	case "", ContentTypeForm, ContentTypeJSON:
	default:
		errs = append(errs, fmt.Errorf("content_type must be one of: form json (got %q)", r.ContentType))
	}
	switch r.AuthConfig.In {
	case "", "header", "query":
	default:
		errs = append(errs, fmt.Errorf("auth_config.in must be one of: header query (got %q)", r.AuthConfig.In))
	}
	return errors.Join(errs...)
}

// HasCredentialReference reports whether the record names a static credential.
func (r *ToolRecord) HasCredentialReference() bool {
	return r.CredentialID != nil || r.CredentialName != "" || r.CredentialType != ""
}

// Clone returns a deep copy of the record.
func (r *ToolRecord) Clone() *ToolRecord {
	c := *r
	if r.OperationIDs != nil {
		c.OperationIDs = append([]string(nil), r.OperationIDs...)
	}
	if r.Tags != nil {
		c.Tags = append([]string(nil), r.Tags...)
	}
	if r.CredentialID != nil {
		id := *r.CredentialID
		c.CredentialID = &id
	}
	if r.Metadata != nil {
		c.Metadata = maps.Clone(r.Metadata)
	}
	return &c
}
