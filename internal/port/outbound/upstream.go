// Package outbound defines the outbound port interfaces for the central
// upstream service, tool executors and the shared document cache.
package outbound

import (
	"context"
	"time"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
)

// CatalogEntry is a tool listed by the upstream catalog API or a seed file.
type CatalogEntry struct {
	Name              string         `json:"name" yaml:"name"`
	Description       string         `json:"description" yaml:"description"`
	Provider          string         `json:"provider" yaml:"provider"`
	Category          string         `json:"category" yaml:"category"`
	Status            string         `json:"status" yaml:"status"`
	MCPServerURL      string         `json:"mcp_server_url" yaml:"mcp_server_url"`
	Logo              string         `json:"logo" yaml:"logo"`
	Tags              []string       `json:"tags" yaml:"tags"`
	Capabilities      any            `json:"capabilities" yaml:"capabilities"`
	CredentialsSchema any            `json:"credentials_schema" yaml:"credentials_schema"`
	Metadata          map[string]any `json:"metadata" yaml:"metadata"`
}

// StoredCredential is an item of the upstream credential listing.
type StoredCredential struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Environment string `json:"environment"`
}

// UpstreamClient is the outbound port for the central service that owns
// the catalog listing and stored secrets. Lookups that find nothing
// return (nil, nil) rather than an error.
type UpstreamClient interface {
	// ListCatalogTools returns catalog entries, optionally filtered by status.
	ListCatalogTools(ctx context.Context, status string) ([]CatalogEntry, error)

	// ResolveCredential returns the secret fields of a stored credential
	// addressed by id or name.
	ResolveCredential(ctx context.Context, ref credential.Reference) (credential.Credentials, error)

	// GetCredentialTypeID maps a credential type name to its id.
	GetCredentialTypeID(ctx context.Context, typeName string) (*int64, error)

	// ListCredentials lists stored credentials of a type in an environment.
	ListCredentials(ctx context.Context, typeID int64, environment string) ([]StoredCredential, error)

	// ResolveToolCredential returns hosted secrets for a tenant and provider.
	ResolveToolCredential(ctx context.Context, tenantID, provider string) (credential.Credentials, error)
}

// ToolExecutor performs one upstream call for a tool.
// Implementations: executor.RESTExecutor, executor.MessageExecutor.
type ToolExecutor interface {
	Execute(ctx context.Context, t *tool.AdapterTool, payload map[string]any, creds credential.Credentials) (any, error)
}

// DocumentCache shares fetched OpenAPI documents between instances.
// Implementations: rediscache.DocumentCache.
type DocumentCache interface {
	// Get returns the cached document body. ok is false on a miss.
	Get(ctx context.Context, url string) (data []byte, ok bool, err error)
	// Set stores a document body with a time to live.
	Set(ctx context.Context, url string, data []byte, ttl time.Duration) error
	// Ping checks that the cache is reachable.
	Ping(ctx context.Context) error
}
