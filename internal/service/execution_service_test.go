package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/outbound/executor"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/inbound"
)

// fakeExecutor records calls. When gate is set, Execute waits on it.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   int
	payload map[string]any
	creds   credential.Credentials

	result any
	err    error
	gate   chan struct{}

	inflight    atomic.Int32
	maxInflight atomic.Int32
	started     chan struct{}
}

func (f *fakeExecutor) Execute(ctx context.Context, _ *tool.AdapterTool, payload map[string]any, creds credential.Credentials) (any, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	f.payload = payload
	f.creds = creds
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type observation struct {
	adapterType, outcome string
}

type fakeRecorder struct {
	mu  sync.Mutex
	obs []observation
}

func (r *fakeRecorder) ObserveExecution(adapterType, outcome string, _ time.Duration) {
	r.mu.Lock()
	r.obs = append(r.obs, observation{adapterType, outcome})
	r.mu.Unlock()
}

func (r *fakeRecorder) last(t *testing.T) observation {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.obs) == 0 {
		t.Fatal("no execution observed")
	}
	return r.obs[len(r.obs)-1]
}

func restTool(mode catalog.CredentialMode) *tool.AdapterTool {
	input := &tool.InputSchema{}
	input.Set(tool.Field{Name: "id", Type: tool.TypeInteger, Required: true})
	input.Set(tool.Field{Name: "limit", Type: tool.TypeInteger})
	return &tool.AdapterTool{
		Name:           "mcp_demo_getuser",
		CredentialMode: mode,
		Input:          input,
		REST: &tool.RESTTarget{
			Method:      "get",
			Path:        "/users/{id}",
			BaseURL:     "https://api.example.com",
			OperationID: "getUser",
		},
	}
}

type serviceFixture struct {
	svc      *ExecutionService
	rest     *fakeExecutor
	message  *fakeExecutor
	upstream *fakeUpstream
	recorder *fakeRecorder
}

func newServiceFixture(opts ...ExecutionOption) *serviceFixture {
	f := &serviceFixture{
		rest:     &fakeExecutor{result: map[string]any{"id": float64(42)}},
		message:  &fakeExecutor{result: map[string]any{"ok": true}},
		upstream: newFakeUpstream(),
		recorder: &fakeRecorder{},
	}
	opts = append([]ExecutionOption{
		WithExecutionLogger(discardLogger()),
		WithExecutionRecorder(f.recorder),
	}, opts...)
	f.svc = NewExecutionService(NewCredentialResolver(f.upstream, discardLogger()), f.rest, f.message, opts...)
	return f
}

func TestExecutionService_Success(t *testing.T) {
	f := newServiceFixture()
	payload := map[string]any{
		"id":          42,
		"limit":       5,
		"credentials": map[string]any{"api_key": "sk"},
	}

	env := f.svc.ExecuteTool(context.Background(), restTool(catalog.CredentialModeHosted), payload, inbound.ExecutionMeta{})
	if env.IsError {
		t.Fatalf("unexpected error envelope: %s", env.Message())
	}
	if len(env.Content) != 1 || env.Content[0].Type != "json" {
		t.Fatalf("content = %+v", env.Content)
	}
	if got := env.Content[0].JSON.(map[string]any)["id"]; got != float64(42) {
		t.Errorf("result id = %v", got)
	}

	if _, ok := f.rest.payload["credentials"]; ok {
		t.Error("credentials should be stripped from the executor payload")
	}
	if f.rest.payload["limit"] != 5 {
		t.Errorf("payload = %v", f.rest.payload)
	}
	if f.rest.creds.String("api_key") != "sk" {
		t.Errorf("creds = %v", f.rest.creds)
	}
	if _, ok := payload["credentials"]; !ok {
		t.Error("caller payload must not be modified")
	}
	if f.upstream.callCount() != 0 {
		t.Errorf("caller credentials should not reach upstream, got %d calls", f.upstream.callCount())
	}
	if f.message.callCount() != 0 {
		t.Error("REST tool dispatched to the message executor")
	}
	if got := f.recorder.last(t); got != (observation{"rest", OutcomeSuccess}) {
		t.Errorf("observation = %+v", got)
	}
}

func TestExecutionService_DispatchesMessageTools(t *testing.T) {
	f := newServiceFixture()
	tl := &tool.AdapterTool{
		Name:    "mcp_github_create_issue",
		Input:   tool.GenericSchema(),
		Message: &tool.MessageTarget{Method: "create_issue", Endpoint: "https://mcp.example.com"},
	}

	env := f.svc.ExecuteTool(context.Background(), tl, map[string]any{"title": "x"}, inbound.ExecutionMeta{})
	if env.IsError {
		t.Fatalf("unexpected error envelope: %s", env.Message())
	}
	if f.message.callCount() != 1 || f.rest.callCount() != 0 {
		t.Errorf("calls: message=%d rest=%d", f.message.callCount(), f.rest.callCount())
	}
	if got := f.recorder.last(t); got != (observation{"mcp", OutcomeSuccess}) {
		t.Errorf("observation = %+v", got)
	}
}

func TestExecutionService_TokenFieldsBecomeCredentials(t *testing.T) {
	for _, field := range tokenFields {
		t.Run(field, func(t *testing.T) {
			f := newServiceFixture()
			payload := map[string]any{"id": 1, field: "tok"}

			env := f.svc.ExecuteTool(context.Background(), restTool(catalog.CredentialModeHosted), payload, inbound.ExecutionMeta{})
			if env.IsError {
				t.Fatalf("unexpected error envelope: %s", env.Message())
			}
			if _, ok := f.rest.payload[field]; ok {
				t.Errorf("%s should be stripped from the payload", field)
			}
			if f.rest.creds.String("access_token") != "tok" {
				t.Errorf("creds = %v", f.rest.creds)
			}
		})
	}
}

func TestSplitCredentials(t *testing.T) {
	explicit := credential.Credentials{"api_key": "explicit"}
	tests := []struct {
		name      string
		payload   map[string]any
		explicit  credential.Credentials
		wantArgs  []string
		wantCreds credential.Credentials
	}{
		{
			name:     "nothing to strip",
			payload:  map[string]any{"a": 1},
			wantArgs: []string{"a"},
		},
		{
			name:      "explicit wins over payload",
			payload:   map[string]any{"credentials": map[string]any{"api_key": "payload"}, "access_token": "tok"},
			explicit:  explicit,
			wantCreds: explicit,
		},
		{
			name:      "credentials field wins over token",
			payload:   map[string]any{"credentials": map[string]any{"api_key": "payload"}, "auth_token": "tok", "q": "x"},
			wantArgs:  []string{"q"},
			wantCreds: credential.Credentials{"api_key": "payload"},
		},
		{
			name:     "empty token ignored but stripped",
			payload:  map[string]any{"bearer_token": "", "credentials": "not a map"},
			wantArgs: nil,
		},
		{
			name:     "nil payload",
			payload:  nil,
			wantArgs: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, creds := splitCredentials(tt.payload, tt.explicit)
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want keys %v", args, tt.wantArgs)
			}
			for _, k := range tt.wantArgs {
				if _, ok := args[k]; !ok {
					t.Errorf("args missing %q: %v", k, args)
				}
			}
			if !maps.Equal(map[string]any(creds), map[string]any(tt.wantCreds)) {
				t.Errorf("creds = %v, want %v", creds, tt.wantCreds)
			}
		})
	}
}

func TestExecutionService_ValidationFailure(t *testing.T) {
	f := newServiceFixture()

	env := f.svc.ExecuteTool(context.Background(), restTool(catalog.CredentialModeHosted),
		map[string]any{"limit": "five"}, inbound.ExecutionMeta{TenantID: "org"})
	if !env.IsError {
		t.Fatal("expected an error envelope")
	}
	msg := env.Message()
	if !strings.Contains(msg, `missing required field "id"`) || !strings.Contains(msg, `field "limit" must be integer`) {
		t.Errorf("message = %q", msg)
	}
	if f.rest.callCount() != 0 || f.upstream.callCount() != 0 {
		t.Error("invalid input must not reach credentials or the executor")
	}
	if got := f.recorder.last(t); got.outcome != OutcomeInvalid {
		t.Errorf("outcome = %q", got.outcome)
	}
}

func TestExecutionService_HostedResolution(t *testing.T) {
	f := newServiceFixture()
	f.upstream.hosted["org_1/demo"] = credential.Credentials{"api_key": "hosted"}
	tl := restTool(catalog.CredentialModeHosted)

	env := f.svc.ExecuteTool(context.Background(), tl, map[string]any{"id": 1}, inbound.ExecutionMeta{TenantID: "org_1"})
	if env.IsError {
		t.Fatalf("unexpected error envelope: %s", env.Message())
	}
	if f.rest.creds.String("api_key") != "hosted" {
		t.Errorf("creds = %v", f.rest.creds)
	}
	if len(f.upstream.hostedArg) != 1 || f.upstream.hostedArg[0] != [2]string{"org_1", "demo"} {
		t.Errorf("hosted lookups = %v", f.upstream.hostedArg)
	}

	env = f.svc.ExecuteTool(context.Background(), tl, map[string]any{"id": 1}, inbound.ExecutionMeta{TenantID: "org_9"})
	if !env.IsError {
		t.Fatal("expected an error envelope for a tenant without credentials")
	}
	if !strings.Contains(env.Message(), "mcp_demo_getuser") || !strings.Contains(env.Message(), "org_9") {
		t.Errorf("message = %q, want tool and tenant named", env.Message())
	}
	if f.rest.callCount() != 1 {
		t.Errorf("executor calls = %d, want 1", f.rest.callCount())
	}
	if got := f.recorder.last(t); got.outcome != OutcomeCredentials {
		t.Errorf("outcome = %q", got.outcome)
	}
}

func TestExecutionService_UpstreamFailure(t *testing.T) {
	f := newServiceFixture()
	f.rest.err = &executor.ExecutionError{Tool: "mcp_demo_getuser", Attempts: 3, Err: errors.New("http status 502: bad gateway")}

	env := f.svc.ExecuteTool(context.Background(), restTool(catalog.CredentialModeBYO),
		map[string]any{"id": 1}, inbound.ExecutionMeta{Credentials: credential.Credentials{"api_key": "k"}})
	if !env.IsError {
		t.Fatal("expected an error envelope")
	}
	if !strings.Contains(env.Message(), "http status 502") {
		t.Errorf("message = %q", env.Message())
	}
	if got := f.recorder.last(t); got.outcome != OutcomeUpstream {
		t.Errorf("outcome = %q", got.outcome)
	}
}

func TestExecutionService_ConcurrencyCeiling(t *testing.T) {
	f := newServiceFixture(WithMaxConcurrency(2))
	f.rest.gate = make(chan struct{})
	f.rest.started = make(chan struct{}, 8)
	tl := restTool(catalog.CredentialModeBYO)
	meta := inbound.ExecutionMeta{Credentials: credential.Credentials{"api_key": "k"}}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.ExecuteTool(context.Background(), tl, map[string]any{"id": 1}, meta)
		}()
	}

	<-f.rest.started
	<-f.rest.started
	time.Sleep(20 * time.Millisecond)
	if got := f.rest.inflight.Load(); got != 2 {
		t.Errorf("in flight = %d, want 2", got)
	}
	close(f.rest.gate)
	wg.Wait()

	if got := f.rest.maxInflight.Load(); got > 2 {
		t.Errorf("max in flight = %d, want <= 2", got)
	}
	if got := f.rest.callCount(); got != 6 {
		t.Errorf("executor calls = %d, want 6", got)
	}
}

func TestExecutionService_CancelledWhileWaiting(t *testing.T) {
	f := newServiceFixture(WithMaxConcurrency(1))
	f.rest.gate = make(chan struct{})
	f.rest.started = make(chan struct{}, 1)
	tl := restTool(catalog.CredentialModeBYO)
	meta := inbound.ExecutionMeta{Credentials: credential.Credentials{"api_key": "k"}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.svc.ExecuteTool(context.Background(), tl, map[string]any{"id": 1}, meta)
	}()
	<-f.rest.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env := f.svc.ExecuteTool(ctx, tl, map[string]any{"id": 1}, meta)
	if !env.IsError || !strings.Contains(env.Message(), "execution cancelled") {
		t.Errorf("envelope = %+v", env)
	}
	if got := f.recorder.last(t); got.outcome != OutcomeCancelled {
		t.Errorf("outcome = %q", got.outcome)
	}

	close(f.rest.gate)
	<-done
	if got := f.rest.callCount(); got != 1 {
		t.Errorf("executor calls = %d, want 1", got)
	}
}

func TestExecutionService_RedactsLoggedPayload(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := newServiceFixture(WithExecutionLogger(logger))
	payload := map[string]any{
		"id":          1,
		"api_key":     "sk-live-123",
		"client":      map[string]any{"password": "hunter2"},
		"credentials": map[string]any{"token": "caller-secret"},
	}

	f.svc.ExecuteTool(context.Background(), restTool(catalog.CredentialModeHosted), payload, inbound.ExecutionMeta{})

	out := buf.String()
	for _, secret := range []string{"sk-live-123", "hunter2", "caller-secret"} {
		if strings.Contains(out, secret) {
			t.Errorf("log output leaks %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, credential.RedactedValue) {
		t.Errorf("log output should contain redaction marker: %s", out)
	}
}

func TestExecutionService_RecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newServiceFixture(WithTracer(tp.Tracer("test")))
	f.svc.ExecuteTool(context.Background(), restTool(catalog.CredentialModeBYO),
		map[string]any{"id": 1}, inbound.ExecutionMeta{Credentials: credential.Credentials{"api_key": "k"}})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "tool.execute" {
		t.Errorf("span name = %q", span.Name())
	}
	want := map[attribute.Key]string{
		"tool.name":         "mcp_demo_getuser",
		"tool.adapter_type": "rest",
		"tool.operation":    "getUser",
		"tool.outcome":      OutcomeSuccess,
	}
	got := make(map[attribute.Key]string)
	for _, kv := range span.Attributes() {
		got[kv.Key] = kv.Value.AsString()
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, got[k], v)
		}
	}
}
