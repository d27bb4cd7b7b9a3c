package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/outbound/memory"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/openapi"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
)

const (
	usersSpecURL    = "https://specs.test/users.yaml"
	noServerSpecURL = "https://specs.test/no-servers.yaml"
)

// fakeSpecs serves pre-parsed documents by URL and counts loads.
type fakeSpecs struct {
	mu    sync.Mutex
	docs  map[string]*openapi.Document
	loads map[string]int
}

func newFakeSpecs(t *testing.T) *fakeSpecs {
	t.Helper()
	users, err := openapi.Parse([]byte(usersSpec))
	if err != nil {
		t.Fatalf("parse users spec: %v", err)
	}
	noServers, err := openapi.Parse([]byte("paths:\n  /ping:\n    get:\n      operationId: ping\n"))
	if err != nil {
		t.Fatalf("parse spec: %v", err)
	}
	return &fakeSpecs{
		docs: map[string]*openapi.Document{
			usersSpecURL:    users,
			noServerSpecURL: noServers,
		},
		loads: make(map[string]int),
	}
}

func (f *fakeSpecs) Load(_ context.Context, url string) (*openapi.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads[url]++
	doc, ok := f.docs[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", openapi.ErrDocumentUnavailable, url)
	}
	return doc, nil
}

// countingStore counts List calls and can be made to fail them.
type countingStore struct {
	catalog.ToolStore
	lists atomic.Int32
	fail  atomic.Bool
}

func (s *countingStore) List(ctx context.Context, enabledOnly bool) ([]catalog.ToolRecord, error) {
	s.lists.Add(1)
	if s.fail.Load() {
		return nil, errors.New("database unavailable")
	}
	return s.ToolStore.List(ctx, enabledOnly)
}

func mustCreate(t *testing.T, store catalog.ToolStore, r catalog.ToolRecord) *catalog.ToolRecord {
	t.Helper()
	created, err := store.Create(context.Background(), &r)
	if err != nil {
		t.Fatalf("Create(%q) error = %v", r.Name, err)
	}
	return created
}

func restRecord(name string) catalog.ToolRecord {
	return catalog.ToolRecord{
		Name:           name,
		Description:    "Demo service",
		Provider:       "demo",
		Category:       "crm",
		AdapterType:    catalog.AdapterTypeREST,
		Enabled:        true,
		OpenAPIURL:     usersSpecURL,
		Tags:           []string{"users"},
		CredentialMode: catalog.CredentialModeHosted,
	}
}

func messageRecord(name string, methods ...string) catalog.ToolRecord {
	return catalog.ToolRecord{
		Name:         name,
		Description:  "Issue tracker",
		Provider:     "github",
		AdapterType:  catalog.AdapterTypeMCP,
		Enabled:      true,
		MCPServerURL: "https://mcp.example.com",
		OperationIDs: methods,
	}
}

func newTestRegistry(store catalog.ToolStore, specs SpecSource, clock *fakeClock, opts ...RegistryOption) *ToolRegistry {
	opts = append([]RegistryOption{WithRegistryLogger(discardLogger())}, opts...)
	r := NewToolRegistry(store, specs, opts...)
	if clock != nil {
		r.now = clock.Now
	}
	return r
}

func toolNames(tools []*tool.AdapterTool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

func assertNames(t *testing.T, tools []*tool.AdapterTool, want ...string) {
	t.Helper()
	got := toolNames(tools)
	if len(got) != len(want) {
		t.Fatalf("tools = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tools = %v, want %v", got, want)
		}
	}
}

func TestToolRegistry_BuildsRESTTools(t *testing.T) {
	store := memory.NewToolStore()
	record := mustCreate(t, store, restRecord("Demo API"))
	reg := newTestRegistry(store, newFakeSpecs(t), nil)

	tools, err := reg.LoadTools(context.Background())
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	assertNames(t, tools, "mcp_demo_api_getuser", "mcp_demo_api_get_users", "mcp_demo_api_createuser")

	get := tools[0]
	if get.REST == nil || get.Message != nil {
		t.Fatalf("getUser should be a REST tool: %+v", get)
	}
	want := tool.RESTTarget{
		Method:      "get",
		Path:        "/users/{id}",
		BaseURL:     "https://api.example.com/v1",
		OperationID: "getUser",
		ContentType: catalog.ContentTypeForm,
	}
	if *get.REST != want {
		t.Errorf("REST target = %+v, want %+v", *get.REST, want)
	}
	if get.Description != "Demo service" {
		t.Errorf("description = %q, want record description", get.Description)
	}
	if get.CatalogID != record.ID || get.CatalogName != "Demo API" {
		t.Errorf("catalog = (%d, %q), want (%d, %q)", get.CatalogID, get.CatalogName, record.ID, "Demo API")
	}
	if get.Provider != "demo" || get.Category != "crm" {
		t.Errorf("provider/category = %q/%q", get.Provider, get.Category)
	}
	if get.Credential.Environment != catalog.DefaultEnvironment {
		t.Errorf("credential environment = %q, want %q", get.Credential.Environment, catalog.DefaultEnvironment)
	}
	if f, ok := get.Input.Field("id"); !ok || !f.Required || f.Type != tool.TypeInteger {
		t.Errorf("id field = %+v, %v", f, ok)
	}

	if tools[1].Description != "List users" {
		t.Errorf("list description = %q, want summary", tools[1].Description)
	}
	if tools[2].Description != "Create a user" {
		t.Errorf("create description = %q", tools[2].Description)
	}
	if _, ok := tools[2].Input.Field(tool.BodyField); !ok {
		t.Error("createUser should have a body field")
	}
}

func TestToolRegistry_BaseURLOverride(t *testing.T) {
	store := memory.NewToolStore()
	r := restRecord("demo")
	r.BaseURL = "https://override.example.com"
	r.ContentType = catalog.ContentTypeJSON
	mustCreate(t, store, r)

	tools, err := newTestRegistry(store, newFakeSpecs(t), nil).LoadTools(context.Background())
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	for _, tl := range tools {
		if tl.REST.BaseURL != "https://override.example.com" {
			t.Errorf("%s base URL = %q", tl.Name, tl.REST.BaseURL)
		}
		if tl.REST.ContentType != catalog.ContentTypeJSON {
			t.Errorf("%s content type = %q", tl.Name, tl.REST.ContentType)
		}
	}
}

func TestToolRegistry_SkipsMisconfiguredRecords(t *testing.T) {
	store := memory.NewToolStore()

	noSpec := restRecord("no spec")
	noSpec.OpenAPIURL = ""
	mustCreate(t, store, noSpec)

	missingDoc := restRecord("missing doc")
	missingDoc.OpenAPIURL = "https://specs.test/missing.yaml"
	mustCreate(t, store, missingDoc)

	noBase := restRecord("no base")
	noBase.OpenAPIURL = noServerSpecURL
	mustCreate(t, store, noBase)

	ws := messageRecord("websocket")
	ws.MCPServerURL = "ws://mcp.example.com"
	mustCreate(t, store, ws)

	unknown := messageRecord("grpc")
	unknown.AdapterType = "grpc"
	mustCreate(t, store, unknown)

	disabled := messageRecord("disabled")
	disabled.Enabled = false
	mustCreate(t, store, disabled)

	mustCreate(t, store, messageRecord("tracker"))

	tools, err := newTestRegistry(store, newFakeSpecs(t), nil).LoadTools(context.Background())
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	assertNames(t, tools, "mcp_tracker_call")
}

func TestToolRegistry_MessageTools(t *testing.T) {
	store := memory.NewToolStore()
	mustCreate(t, store, messageRecord("GitHub", "create_issue", "list-issues"))

	tools, err := newTestRegistry(store, newFakeSpecs(t), nil).LoadTools(context.Background())
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	assertNames(t, tools, "mcp_github_create_issue", "mcp_github_list_issues")

	second := tools[1]
	if second.Message == nil || second.REST != nil {
		t.Fatalf("expected a message tool: %+v", second)
	}
	if second.Message.Method != "list-issues" || second.Message.Endpoint != "https://mcp.example.com" {
		t.Errorf("message target = %+v", *second.Message)
	}
	if second.Kind() != catalog.AdapterTypeMCP {
		t.Errorf("Kind() = %q", second.Kind())
	}
	if len(second.Input.Fields) != 0 {
		t.Errorf("message tools use the generic schema, got %+v", second.Input.Fields)
	}
	if second.Description != "Issue tracker" || second.Category != "other" {
		t.Errorf("description/category = %q/%q", second.Description, second.Category)
	}
}

func TestToolRegistry_OperationAllowlist(t *testing.T) {
	store := memory.NewToolStore()
	r := restRecord("demo")
	r.OperationIDs = []string{"getUser"}
	mustCreate(t, store, r)

	reg := newTestRegistry(store, newFakeSpecs(t), nil, WithOperationAllowlist([]string{"createUser"}))
	tools, err := reg.LoadTools(context.Background())
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	assertNames(t, tools, "mcp_demo_getuser", "mcp_demo_createuser")
}

func TestToolRegistry_ToolAllowlist(t *testing.T) {
	store := memory.NewToolStore()
	mustCreate(t, store, restRecord("demo"))
	mustCreate(t, store, messageRecord("tracker", "create_issue"))

	reg := newTestRegistry(store, newFakeSpecs(t), nil,
		WithToolAllowlist([]string{"mcp_demo_getuser", " github ", ""}))
	tools, err := reg.LoadTools(context.Background())
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	assertNames(t, tools, "mcp_demo_getuser", "mcp_tracker_create_issue")
}

func TestToolRegistry_CachesWithinTTL(t *testing.T) {
	store := &countingStore{ToolStore: memory.NewToolStore()}
	mustCreate(t, store, messageRecord("tracker"))
	clock := newFakeClock()
	reg := newTestRegistry(store, newFakeSpecs(t), clock, WithToolCacheTTL(time.Minute))
	ctx := context.Background()

	first, err := reg.LoadTools(ctx)
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	mustCreate(t, store, messageRecord("wiki"))

	clock.Advance(30 * time.Second)
	second, err := reg.LoadTools(ctx)
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	if &first[0] != &second[0] || len(second) != 1 {
		t.Error("LoadTools() within the TTL should return the same snapshot")
	}
	if got := store.lists.Load(); got != 1 {
		t.Errorf("catalog lists = %d, want 1", got)
	}

	clock.Advance(time.Minute)
	third, err := reg.LoadTools(ctx)
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	assertNames(t, third, "mcp_tracker_call", "mcp_wiki_call")
	if got := store.lists.Load(); got != 2 {
		t.Errorf("catalog lists = %d, want 2", got)
	}
}

func TestToolRegistry_Invalidate(t *testing.T) {
	store := &countingStore{ToolStore: memory.NewToolStore()}
	mustCreate(t, store, messageRecord("tracker"))
	reg := newTestRegistry(store, newFakeSpecs(t), newFakeClock())
	ctx := context.Background()

	if _, err := reg.LoadTools(ctx); err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	mustCreate(t, store, messageRecord("wiki"))
	reg.Invalidate()

	tools, err := reg.LoadTools(ctx)
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	assertNames(t, tools, "mcp_tracker_call", "mcp_wiki_call")
	if got := store.lists.Load(); got != 2 {
		t.Errorf("catalog lists = %d, want 2", got)
	}
}

func TestToolRegistry_ServesPreviousSnapshotOnListFailure(t *testing.T) {
	store := &countingStore{ToolStore: memory.NewToolStore()}
	mustCreate(t, store, messageRecord("tracker"))
	clock := newFakeClock()
	reg := newTestRegistry(store, newFakeSpecs(t), clock)
	ctx := context.Background()

	store.fail.Store(true)
	if _, err := reg.LoadTools(ctx); err == nil {
		t.Fatal("LoadTools() with no snapshot and a failing catalog should error")
	}

	store.fail.Store(false)
	first, err := reg.LoadTools(ctx)
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}

	store.fail.Store(true)
	clock.Advance(DefaultToolCacheTTL + time.Second)
	stale, err := reg.LoadTools(ctx)
	if err != nil {
		t.Fatalf("LoadTools() with a previous snapshot error = %v", err)
	}
	if len(stale) != 1 || stale[0] != first[0] {
		t.Errorf("expected the previous snapshot, got %v", toolNames(stale))
	}
}

func TestToolRegistry_ConcurrentRebuildsShareOneList(t *testing.T) {
	store := &countingStore{ToolStore: memory.NewToolStore()}
	mustCreate(t, store, messageRecord("tracker"))
	reg := newTestRegistry(store, newFakeSpecs(t), newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.LoadTools(context.Background()); err != nil {
				t.Errorf("LoadTools() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := store.lists.Load(); got != 1 {
		t.Errorf("catalog lists = %d, want 1", got)
	}
}

// gatedSpecs blocks every Load until gate is closed or ctx is done.
type gatedSpecs struct {
	*fakeSpecs
	started chan struct{}
	gate    chan struct{}
}

func newGatedSpecs(t *testing.T) *gatedSpecs {
	return &gatedSpecs{
		fakeSpecs: newFakeSpecs(t),
		started:   make(chan struct{}, 1),
		gate:      make(chan struct{}),
	}
}

func (g *gatedSpecs) Load(ctx context.Context, url string) (*openapi.Document, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.gate:
		return g.fakeSpecs.Load(ctx, url)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", openapi.ErrDocumentUnavailable, ctx.Err())
	}
}

func TestToolRegistry_CancelledCallerDoesNotCachePartialSnapshot(t *testing.T) {
	store := memory.NewToolStore()
	mustCreate(t, store, restRecord("demo"))
	specs := newGatedSpecs(t)
	reg := newTestRegistry(store, specs, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := reg.LoadTools(ctx)
		errCh <- err
	}()

	<-specs.started
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("LoadTools(cancelled) error = %v, want context.Canceled", err)
	}

	close(specs.gate)
	tools, err := reg.LoadTools(context.Background())
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	if len(tools) != 3 {
		t.Errorf("tools = %v, want the 3 operations of the demo record", toolNames(tools))
	}
}

func TestToolRegistry_RebuildTimeoutKeepsNothing(t *testing.T) {
	store := memory.NewToolStore()
	mustCreate(t, store, restRecord("demo"))
	specs := newGatedSpecs(t)
	reg := newTestRegistry(store, specs, newFakeClock(), WithRebuildTimeout(20*time.Millisecond))

	if _, err := reg.LoadTools(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("LoadTools() error = %v, want context.DeadlineExceeded", err)
	}
	if st := reg.Status(); !st.BuiltAt.IsZero() || st.Tools != 0 {
		t.Errorf("Status() after timed-out rebuild = %+v, want no snapshot", st)
	}

	close(specs.gate)
	tools, err := reg.LoadTools(context.Background())
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	if len(tools) != 3 {
		t.Errorf("tools = %v, want 3", toolNames(tools))
	}
}

func TestToolRegistry_RebuildTimeoutServesPreviousSnapshot(t *testing.T) {
	store := memory.NewToolStore()
	mustCreate(t, store, messageRecord("tracker"))
	clock := newFakeClock()
	specs := newGatedSpecs(t)
	reg := newTestRegistry(store, specs, clock, WithRebuildTimeout(20*time.Millisecond))
	ctx := context.Background()

	first, err := reg.LoadTools(ctx)
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}

	mustCreate(t, store, restRecord("demo"))
	clock.Advance(DefaultToolCacheTTL + time.Second)
	second, err := reg.LoadTools(ctx)
	if err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	if len(second) != 1 || second[0] != first[0] {
		t.Errorf("LoadTools() = %v, want the previous snapshot", toolNames(second))
	}
}

func TestToolRegistry_Lookup(t *testing.T) {
	store := memory.NewToolStore()
	mustCreate(t, store, messageRecord("tracker", "create_issue"))
	reg := newTestRegistry(store, newFakeSpecs(t), nil)
	ctx := context.Background()

	got, err := reg.Lookup(ctx, "mcp_tracker_create_issue")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got.Operation() != "create_issue" {
		t.Errorf("Operation() = %q", got.Operation())
	}

	_, err = reg.Lookup(ctx, "mcp_tracker_delete_repo")
	if !errors.Is(err, tool.ErrToolNotFound) {
		t.Errorf("Lookup(unknown) error = %v, want ErrToolNotFound", err)
	}
}

func TestToolRegistry_ForCatalogID(t *testing.T) {
	store := memory.NewToolStore()
	demo := mustCreate(t, store, restRecord("demo"))
	reg := newTestRegistry(store, newFakeSpecs(t), newFakeClock())
	ctx := context.Background()

	tools, err := reg.ForCatalogID(ctx, demo.ID)
	if err != nil {
		t.Fatalf("ForCatalogID() error = %v", err)
	}
	if len(tools) != 3 {
		t.Errorf("tools = %v, want 3", toolNames(tools))
	}

	// Created after the snapshot was built.
	tracker := mustCreate(t, store, messageRecord("tracker", "create_issue"))
	tools, err = reg.ForCatalogID(ctx, tracker.ID)
	if err != nil {
		t.Fatalf("ForCatalogID(new record) error = %v", err)
	}
	assertNames(t, tools, "mcp_tracker_create_issue")

	off := messageRecord("archived")
	off.Enabled = false
	archived := mustCreate(t, store, off)
	tools, err = reg.ForCatalogID(ctx, archived.ID)
	if err != nil {
		t.Fatalf("ForCatalogID(disabled) error = %v", err)
	}
	if len(tools) != 0 {
		t.Errorf("ForCatalogID(disabled) = %v, want no tools", toolNames(tools))
	}

	_, err = reg.ForCatalogID(ctx, 999)
	if !errors.Is(err, catalog.ErrToolNotFound) {
		t.Errorf("ForCatalogID(unknown) error = %v, want catalog.ErrToolNotFound", err)
	}
}

func TestToolRegistry_Status(t *testing.T) {
	store := memory.NewToolStore()
	mustCreate(t, store, messageRecord("tracker", "a", "b"))
	clock := newFakeClock()
	reg := newTestRegistry(store, newFakeSpecs(t), clock)

	if st := reg.Status(); !st.BuiltAt.IsZero() || st.Tools != 0 {
		t.Errorf("Status() before build = %+v", st)
	}
	if _, err := reg.LoadTools(context.Background()); err != nil {
		t.Fatalf("LoadTools() error = %v", err)
	}
	st := reg.Status()
	if st.Tools != 2 || !st.BuiltAt.Equal(clock.Now()) {
		t.Errorf("Status() = %+v", st)
	}
}

func TestNewAdapterTool_Defaults(t *testing.T) {
	id := int64(7)
	record := &catalog.ToolRecord{
		ID:             3,
		Name:           "Slack",
		Description:    "Chat",
		CredentialID:   &id,
		CredentialName: "slack-bot",
		CredentialType: "slack",
		AuthConfig:     catalog.AuthConfig{Type: "bearer"},
	}
	got := newAdapterTool(record, "post.message", "")

	if got.Name != "mcp_slack_post_message" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Provider != "unknown" || got.Category != "other" || got.Description != "Chat" {
		t.Errorf("defaults = %q/%q/%q", got.Provider, got.Category, got.Description)
	}
	if got.Credential.ID == nil || *got.Credential.ID != 7 || got.Credential.ID == record.CredentialID {
		t.Error("credential id should be copied")
	}
	if got.Credential.Name != "slack-bot" || got.Credential.Type != "slack" {
		t.Errorf("credential reference = %+v", got.Credential)
	}
	if !got.HasCredentialReference() {
		t.Error("HasCredentialReference() = false")
	}
	if got.Auth.Type != "bearer" {
		t.Errorf("auth = %+v", got.Auth)
	}
}
