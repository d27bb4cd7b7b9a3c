package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/inbound"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/outbound"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/telemetry"
)

// DefaultMaxConcurrency is the default ceiling on in-flight executions.
const DefaultMaxConcurrency = 20

// Execution outcomes reported to the ExecutionRecorder.
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid_input"
	OutcomeCredentials = "credential_error"
	OutcomeUpstream    = "upstream_error"
	OutcomeCancelled   = "cancelled"
)

// credentialsField is the payload key carrying caller credentials.
const credentialsField = "credentials"

// tokenFields are payload keys treated as a caller-supplied access token.
var tokenFields = []string{"access_token", "bearer_token", "auth_token"}

// ExecutionRecorder receives one observation per execution.
type ExecutionRecorder interface {
	ObserveExecution(adapterType, outcome string, duration time.Duration)
}

// ExecutionService runs tools under a global concurrency ceiling and
// shapes every result into an envelope.
type ExecutionService struct {
	resolver  *CredentialResolver
	executors map[catalog.AdapterType]outbound.ToolExecutor
	sem       *semaphore.Weighted
	recorder  ExecutionRecorder
	tracer    trace.Tracer
	logger    *slog.Logger
}

// ExecutionOption configures an ExecutionService.
type ExecutionOption func(*ExecutionService)

// WithMaxConcurrency sets the number of executions allowed in flight.
func WithMaxConcurrency(n int) ExecutionOption {
	return func(s *ExecutionService) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithExecutionRecorder sets the metrics sink.
func WithExecutionRecorder(rec ExecutionRecorder) ExecutionOption {
	return func(s *ExecutionService) {
		s.recorder = rec
	}
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(tracer trace.Tracer) ExecutionOption {
	return func(s *ExecutionService) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithExecutionLogger sets the logger.
func WithExecutionLogger(logger *slog.Logger) ExecutionOption {
	return func(s *ExecutionService) {
		s.logger = logger
	}
}

// NewExecutionService creates an ExecutionService dispatching REST tools
// to rest and message tools to message.
func NewExecutionService(resolver *CredentialResolver, rest, message outbound.ToolExecutor, opts ...ExecutionOption) *ExecutionService {
	s := &ExecutionService{
		resolver: resolver,
		executors: map[catalog.AdapterType]outbound.ToolExecutor{
			catalog.AdapterTypeREST: rest,
			catalog.AdapterTypeMCP:  message,
		},
		sem:    semaphore.NewWeighted(DefaultMaxConcurrency),
		tracer: otel.Tracer(telemetry.TracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExecuteTool runs t with payload. Every failure is reported as an error
// envelope.
func (s *ExecutionService) ExecuteTool(ctx context.Context, t *tool.AdapterTool, payload map[string]any, meta inbound.ExecutionMeta) *tool.Envelope {
	kind := string(t.Kind())
	ctx, span := s.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", t.Name),
		attribute.String("tool.adapter_type", kind),
		attribute.String("tool.operation", t.Operation()),
	))
	defer span.End()

	start := time.Now()
	result, outcome, err := s.execute(ctx, t, payload, meta)
	if s.recorder != nil {
		s.recorder.ObserveExecution(kind, outcome, time.Since(start))
	}
	span.SetAttributes(attribute.String("tool.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.logger.Warn("tool execution failed", "tool", t.Name, "outcome", outcome, "error", err)
		return tool.Failure(err.Error())
	}
	s.logger.Debug("tool execution succeeded", "tool", t.Name, "duration", time.Since(start))
	return tool.Success(result)
}

func (s *ExecutionService) execute(ctx context.Context, t *tool.AdapterTool, payload map[string]any, meta inbound.ExecutionMeta) (any, string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, OutcomeCancelled, fmt.Errorf("execution cancelled: %w", err)
	}
	defer s.sem.Release(1)

	args, creds := splitCredentials(payload, meta.Credentials)
	s.logger.Info("executing tool",
		"tool", t.Name,
		"adapter_type", t.Kind(),
		"tenant_id", meta.TenantID,
		"payload", credential.Redact(args),
	)

	if err := t.Input.Validate(args); err != nil {
		return nil, OutcomeInvalid, err
	}

	resolved, err := s.resolver.Resolve(ctx, t, CredentialRequest{Credentials: creds, TenantID: meta.TenantID})
	if err != nil {
		return nil, OutcomeCredentials, err
	}

	exec := s.executors[t.Kind()]
	if exec == nil {
		return nil, OutcomeUpstream, fmt.Errorf("no executor for adapter type %q", t.Kind())
	}
	result, err := exec.Execute(ctx, t, args, resolved)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, OutcomeCancelled, err
		}
		return nil, OutcomeUpstream, err
	}
	return result, OutcomeSuccess, nil
}

// splitCredentials copies payload without its credential fields and
// returns the credentials the caller supplied. Explicit credentials win
// over a "credentials" payload field, which wins over a token field.
func splitCredentials(payload map[string]any, explicit credential.Credentials) (map[string]any, credential.Credentials) {
	args := make(map[string]any, len(payload))
	maps.Copy(args, payload)

	creds := maps.Clone(explicit)

	if raw, ok := args[credentialsField]; ok {
		delete(args, credentialsField)
		if m, ok := raw.(map[string]any); ok && len(m) > 0 && creds.Empty() {
			creds = credential.Credentials(maps.Clone(m))
		}
	}
	for _, key := range tokenFields {
		raw, ok := args[key]
		if !ok {
			continue
		}
		delete(args, key)
		if token, ok := raw.(string); ok && token != "" && creds.Empty() {
			creds = credential.Credentials{"access_token": token}
		}
	}
	return args, creds
}

var _ inbound.ToolExecutionService = (*ExecutionService)(nil)
