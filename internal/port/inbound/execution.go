// Package inbound defines the inbound port interfaces for the execution
// core. Inbound adapters (admin API, MCP surface) call these interfaces.
package inbound

import (
	"context"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
)

// ExecutionMeta carries per-call context that is not part of the tool
// arguments.
type ExecutionMeta struct {
	// TenantID selects hosted credentials.
	TenantID string
	// Credentials are caller-supplied (BYO) secrets.
	Credentials credential.Credentials
}

// ToolExecutionService executes registry tools and shapes the result.
type ToolExecutionService interface {
	// ExecuteTool runs t with payload. Failures are reported in the
	// returned envelope, never as an error.
	ExecuteTool(ctx context.Context, t *tool.AdapterTool, payload map[string]any, meta ExecutionMeta) *tool.Envelope
}

// ToolRegistry lists and looks up invocable tools.
type ToolRegistry interface {
	// LoadTools returns the current tool snapshot, rebuilding it when stale.
	LoadTools(ctx context.Context) ([]*tool.AdapterTool, error)
	// Lookup returns the tool with the given composed name.
	// Returns tool.ErrToolNotFound if no such tool exists.
	Lookup(ctx context.Context, name string) (*tool.AdapterTool, error)
	// ForCatalogID returns the tools built from one catalog record.
	ForCatalogID(ctx context.Context, id int64) ([]*tool.AdapterTool, error)
	// Invalidate forces the next LoadTools to rebuild.
	Invalidate()
}
