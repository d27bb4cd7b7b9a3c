package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/openapi"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/inbound"
)

// DefaultToolCacheTTL is how long a built tool snapshot is served.
const DefaultToolCacheTTL = 300 * time.Second

// DefaultRebuildTimeout bounds one registry rebuild, independent of the
// caller that triggered it.
const DefaultRebuildTimeout = time.Minute

// defaultMessageMethod is used for message endpoints that list no methods.
const defaultMessageMethod = "call"

// ToolRegistry builds invocable tools from enabled catalog records and
// caches the result for the cache TTL. A rebuild replaces the snapshot
// wholesale; concurrent callers that find it stale share one rebuild.
type ToolRegistry struct {
	store  catalog.ToolStore
	specs  SpecSource
	ttl    time.Duration
	logger *slog.Logger

	rebuildTimeout time.Duration
	now    func() time.Time

	toolAllow      map[string]struct{}
	operationAllow []string

	mu       sync.RWMutex
	snapshot []*tool.AdapterTool
	byName   map[string]*tool.AdapterTool
	builtAt  time.Time
	stale    bool

	rebuilds singleflight.Group
}

// RegistryOption configures a ToolRegistry.
type RegistryOption func(*ToolRegistry)

// WithToolCacheTTL sets how long a snapshot is served before a rebuild.
func WithToolCacheTTL(ttl time.Duration) RegistryOption {
	return func(r *ToolRegistry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRebuildTimeout bounds how long a rebuild may spend listing the
// catalog and fetching documents.
func WithRebuildTimeout(d time.Duration) RegistryOption {
	return func(r *ToolRegistry) {
		if d > 0 {
			r.rebuildTimeout = d
		}
	}
}

// WithToolAllowlist keeps only tools whose composed name or provider is
// listed. An empty list keeps everything.
func WithToolAllowlist(names []string) RegistryOption {
	return func(r *ToolRegistry) {
		r.toolAllow = make(map[string]struct{}, len(names))
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				r.toolAllow[n] = struct{}{}
			}
		}
	}
}

// WithOperationAllowlist adds operation ids allowed for every REST record.
func WithOperationAllowlist(ids []string) RegistryOption {
	return func(r *ToolRegistry) {
		r.operationAllow = append([]string(nil), ids...)
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *ToolRegistry) {
		r.logger = logger
	}
}

// NewToolRegistry creates a ToolRegistry over a catalog store and a
// source of OpenAPI documents.
func NewToolRegistry(store catalog.ToolStore, specs SpecSource, opts ...RegistryOption) *ToolRegistry {
	r := &ToolRegistry{
		store:  store,
		specs:  specs,
		ttl:    DefaultToolCacheTTL,
		logger: slog.Default(),
		now:    time.Now,

		rebuildTimeout: DefaultRebuildTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegistryStatus describes the current snapshot.
type RegistryStatus struct {
	Tools   int
	BuiltAt time.Time
}

// Status returns the size and build time of the current snapshot. BuiltAt
// is zero before the first build.
func (r *ToolRegistry) Status() RegistryStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RegistryStatus{Tools: len(r.snapshot), BuiltAt: r.builtAt}
}

// LoadTools returns the current snapshot, rebuilding it when it is older
// than the TTL or was invalidated. When listing the catalog fails and a
// previous snapshot exists, the previous snapshot is served.
//
// The rebuild runs detached from ctx under its own timeout, so a caller
// that gives up does not leave a partial snapshot behind. Such a caller
// gets ctx.Err() while the rebuild completes for everyone else.
func (r *ToolRegistry) LoadTools(ctx context.Context) ([]*tool.AdapterTool, error) {
	if tools, ok := r.fresh(); ok {
		return tools, nil
	}
	ch := r.rebuilds.DoChan("rebuild", func() (any, error) {
		if tools, ok := r.fresh(); ok {
			return tools, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.rebuildTimeout)
		defer cancel()
		return r.rebuild(rctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]*tool.AdapterTool), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *ToolRegistry) fresh() ([]*tool.AdapterTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.builtAt.IsZero() || r.stale || r.now().Sub(r.builtAt) >= r.ttl {
		return nil, false
	}
	return r.snapshot, true
}

func (r *ToolRegistry) rebuild(ctx context.Context) ([]*tool.AdapterTool, error) {
	records, err := r.store.List(ctx, true)
	if err != nil {
		return r.previous(fmt.Errorf("list catalog tools: %w", err))
	}

	tools := make([]*tool.AdapterTool, 0, len(records))
	for i := range records {
		tools = append(tools, r.buildRecord(ctx, &records[i])...)
	}
	// Records skipped because the rebuild ran out of time would be missing
	// for a whole TTL.
	if err := ctx.Err(); err != nil {
		return r.previous(fmt.Errorf("rebuild tool registry: %w", err))
	}
	tools = r.filterAllowed(tools)

	byName := make(map[string]*tool.AdapterTool, len(tools))
	for _, t := range tools {
		if _, dup := byName[t.Name]; dup {
			r.logger.Warn("duplicate tool name, keeping first", "tool", t.Name, "catalog_id", t.CatalogID)
			continue
		}
		byName[t.Name] = t
	}

	r.mu.Lock()
	r.snapshot = tools
	r.byName = byName
	r.builtAt = r.now()
	r.stale = false
	r.mu.Unlock()

	r.logger.Info("tool registry rebuilt", "records", len(records), "tools", len(tools))
	return tools, nil
}

// previous serves the last snapshot in place of a failed rebuild, or
// returns err when there is none.
func (r *ToolRegistry) previous(err error) ([]*tool.AdapterTool, error) {
	r.mu.RLock()
	previous, built := r.snapshot, !r.builtAt.IsZero()
	r.mu.RUnlock()
	if !built {
		return nil, err
	}
	r.logger.Warn("tool registry rebuild failed, serving previous tools", "error", err, "tools", len(previous))
	return previous, nil
}

// Lookup returns the tool with the given composed name.
func (r *ToolRegistry) Lookup(ctx context.Context, name string) (*tool.AdapterTool, error) {
	if _, err := r.LoadTools(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", tool.ErrToolNotFound, name)
	}
	return t, nil
}

// ForCatalogID returns the tools built from one catalog record. Enabled
// records not yet in the snapshot (created since the last rebuild) are
// built on demand; disabled records have no tools. Returns
// catalog.ErrToolNotFound for unknown ids.
func (r *ToolRegistry) ForCatalogID(ctx context.Context, id int64) ([]*tool.AdapterTool, error) {
	tools, err := r.LoadTools(ctx)
	if err != nil {
		return nil, err
	}
	var out []*tool.AdapterTool
	for _, t := range tools {
		if t.CatalogID == id {
			out = append(out, t)
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	record, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.Enabled {
		return nil, nil
	}
	return r.filterAllowed(r.buildRecord(ctx, record)), nil
}

// Invalidate forces the next LoadTools to rebuild.
func (r *ToolRegistry) Invalidate() {
	r.mu.Lock()
	r.stale = true
	r.mu.Unlock()
}

func (r *ToolRegistry) buildRecord(ctx context.Context, record *catalog.ToolRecord) []*tool.AdapterTool {
	switch record.AdapterType {
	case catalog.AdapterTypeREST:
		return r.buildREST(ctx, record)
	case catalog.AdapterTypeMCP:
		return r.buildMessage(record)
	default:
		r.logger.Info("skipping tool with unsupported adapter type",
			"tool", record.Name, "adapter_type", record.AdapterType)
		return nil
	}
}

func (r *ToolRegistry) buildREST(ctx context.Context, record *catalog.ToolRecord) []*tool.AdapterTool {
	if record.OpenAPIURL == "" {
		r.logger.Warn("skipping REST tool without openapi_url", "tool", record.Name)
		return nil
	}
	doc, err := r.specs.Load(ctx, record.OpenAPIURL)
	if err != nil {
		r.logger.Warn("skipping REST tool, OpenAPI document unavailable",
			"tool", record.Name, "url", record.OpenAPIURL, "error", err)
		return nil
	}

	baseURL := record.BaseURL
	if baseURL == "" {
		baseURL = doc.FirstServerURL()
	}
	if baseURL == "" {
		r.logger.Warn("skipping REST tool without base URL", "tool", record.Name)
		return nil
	}

	allowed := make(map[string]struct{}, len(record.OperationIDs)+len(r.operationAllow))
	for _, id := range record.OperationIDs {
		allowed[id] = struct{}{}
	}
	for _, id := range r.operationAllow {
		allowed[id] = struct{}{}
	}

	contentType := record.ContentType
	if contentType == "" {
		contentType = catalog.ContentTypeForm
	}

	var tools []*tool.AdapterTool
	for _, op := range openapi.ExtractOperations(doc) {
		if len(allowed) > 0 {
			if _, ok := allowed[op.ID]; !ok {
				continue
			}
		}
		t := newAdapterTool(record, op.ID, op.Description)
		t.Input = op.Input
		t.REST = &tool.RESTTarget{
			Method:      op.Method,
			Path:        op.Path,
			BaseURL:     baseURL,
			OperationID: op.ID,
			ContentType: contentType,
		}
		tools = append(tools, t)
	}
	return tools
}

func (r *ToolRegistry) buildMessage(record *catalog.ToolRecord) []*tool.AdapterTool {
	if !strings.HasPrefix(record.MCPServerURL, "http") {
		r.logger.Warn("skipping message tool without http endpoint",
			"tool", record.Name, "mcp_server_url", record.MCPServerURL)
		return nil
	}
	methods := record.OperationIDs
	if len(methods) == 0 {
		methods = []string{defaultMessageMethod}
	}
	tools := make([]*tool.AdapterTool, 0, len(methods))
	for _, method := range methods {
		t := newAdapterTool(record, method, "")
		t.Input = tool.GenericSchema()
		t.Message = &tool.MessageTarget{
			Method:   method,
			Endpoint: record.MCPServerURL,
		}
		tools = append(tools, t)
	}
	return tools
}

func (r *ToolRegistry) filterAllowed(tools []*tool.AdapterTool) []*tool.AdapterTool {
	if len(r.toolAllow) == 0 {
		return tools
	}
	kept := tools[:0:0]
	for _, t := range tools {
		_, byName := r.toolAllow[t.Name]
		_, byProvider := r.toolAllow[t.Provider]
		if byName || byProvider {
			kept = append(kept, t)
		}
	}
	return kept
}

func newAdapterTool(record *catalog.ToolRecord, operation, description string) *tool.AdapterTool {
	if description == "" {
		description = record.Description
	}
	provider := record.Provider
	if provider == "" {
		provider = "unknown"
	}
	category := record.Category
	if category == "" {
		category = "other"
	}
	environment := record.CredentialEnvironment
	if environment == "" {
		environment = catalog.DefaultEnvironment
	}
	var credentialID *int64
	if record.CredentialID != nil {
		id := *record.CredentialID
		credentialID = &id
	}
	return &tool.AdapterTool{
		Name:           tool.ComposeName(record.Name, operation),
		Description:    description,
		Provider:       provider,
		Category:       category,
		Tags:           append([]string(nil), record.Tags...),
		CatalogID:      record.ID,
		CatalogName:    record.Name,
		CredentialMode: record.CredentialMode,
		Credential: credential.Reference{
			ID:          credentialID,
			Name:        record.CredentialName,
			Type:        record.CredentialType,
			Environment: environment,
		},
		Auth: record.AuthConfig,
	}
}

var _ inbound.ToolRegistry = (*ToolRegistry)(nil)
