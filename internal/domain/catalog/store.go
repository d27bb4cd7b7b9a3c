package catalog

import (
	"context"
	"errors"
	"maps"
)

// Sentinel errors for tool store operations.
var (
	// ErrToolNotFound is returned when a tool with the given ID or name does not exist.
	ErrToolNotFound = errors.New("tool not found")
	// ErrDuplicateToolName is returned when a tool name already exists.
	ErrDuplicateToolName = errors.New("duplicate tool name")
)

// ToolStore provides CRUD operations for persisted tool definitions.
// Implementations: in-memory (memory package), SQL via GORM (sqlstore package).
type ToolStore interface {
	// List returns tools ordered by ID. When enabledOnly is true, disabled
	// tools are omitted.
	List(ctx context.Context, enabledOnly bool) ([]ToolRecord, error)
	// Get returns a single tool by ID.
	// Returns ErrToolNotFound if the tool does not exist.
	Get(ctx context.Context, id int64) (*ToolRecord, error)
	// GetByName returns a single tool by name.
	// Returns ErrToolNotFound if the tool does not exist.
	GetByName(ctx context.Context, name string) (*ToolRecord, error)
	// Create stores a new tool, assigning its ID and timestamps.
	// Returns ErrDuplicateToolName if the name is taken.
	Create(ctx context.Context, record *ToolRecord) (*ToolRecord, error)
	// Update applies a partial update and refreshes UpdatedAt.
	// Returns ErrToolNotFound if the tool does not exist.
	Update(ctx context.Context, id int64, patch ToolPatch) (*ToolRecord, error)
	// Delete removes a tool by ID.
	// Returns ErrToolNotFound if the tool does not exist.
	Delete(ctx context.Context, id int64) error
}

// ToolPatch is a partial update. Nil fields are left unchanged.
type ToolPatch struct {
	Name                  *string         `json:"name,omitempty"`
	Description           *string         `json:"description,omitempty"`
	Provider              *string         `json:"provider,omitempty"`
	Category              *string         `json:"category,omitempty"`
	AdapterType           *AdapterType    `json:"adapter_type,omitempty"`
	Enabled               *bool           `json:"enabled,omitempty"`
	MCPServerURL          *string         `json:"mcp_server_url,omitempty"`
	OpenAPIURL            *string         `json:"openapi_url,omitempty"`
	BaseURL               *string         `json:"base_url,omitempty"`
	ContentType           *string         `json:"content_type,omitempty"`
	OperationIDs          *[]string       `json:"operation_ids,omitempty"`
	AuthConfig            *AuthConfig     `json:"auth_config,omitempty"`
	Tags                  *[]string       `json:"tags,omitempty"`
	CredentialMode        *CredentialMode `json:"credential_mode,omitempty"`
	CredentialID          *int64          `json:"credential_id,omitempty"`
	CredentialName        *string         `json:"credential_name,omitempty"`
	CredentialType        *string         `json:"credential_type,omitempty"`
	CredentialEnvironment *string         `json:"credential_environment,omitempty"`
	OrgID                 *string         `json:"org_id,omitempty"`
	Metadata              map[string]any  `json:"metadata,omitempty"`
}

// Apply writes the non-nil patch fields onto r.
func (p ToolPatch) Apply(r *ToolRecord) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Provider != nil {
		r.Provider = *p.Provider
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.AdapterType != nil {
		r.AdapterType = *p.AdapterType
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if p.MCPServerURL != nil {
		r.MCPServerURL = *p.MCPServerURL
	}
	if p.OpenAPIURL != nil {
		r.OpenAPIURL = *p.OpenAPIURL
	}
	if p.BaseURL != nil {
		r.BaseURL = *p.BaseURL
	}
	if p.ContentType != nil {
		r.ContentType = *p.ContentType
	}
	if p.OperationIDs != nil {
		r.OperationIDs = append([]string{}, (*p.OperationIDs)...)
	}
	if p.AuthConfig != nil {
		r.AuthConfig = *p.AuthConfig
	}
	if p.Tags != nil {
		r.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.CredentialMode != nil {
		r.CredentialMode = *p.CredentialMode
	}
	if p.CredentialID != nil {
		id := *p.CredentialID
		r.CredentialID = &id
	}
	if p.CredentialName != nil {
		r.CredentialName = *p.CredentialName
	}
	if p.CredentialType != nil {
		r.CredentialType = *p.CredentialType
	}
	if p.CredentialEnvironment != nil {
		r.CredentialEnvironment = *p.CredentialEnvironment
	}
	if p.OrgID != nil {
		r.OrgID = *p.OrgID
	}
	if p.Metadata != nil {
		r.Metadata = maps.Clone(p.Metadata)
	}
}
