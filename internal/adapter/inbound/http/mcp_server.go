package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mcpauth "github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/auth"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/inbound"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/service"
)

// DefaultSyncInterval is how often registered tools are compared with the
// registry snapshot.
const DefaultSyncInterval = 60 * time.Second

// principalExtraKey is the TokenInfo.Extra key carrying the caller.
const principalExtraKey = "principal"

// MCPServer exposes the registry's tools on an MCP server. Calls are
// routed through the execution service.
type MCPServer struct {
	server   *mcp.Server
	registry inbound.ToolRegistry
	exec     inbound.ToolExecutionService
	interval time.Duration
	gauge    prometheus.Gauge
	logger   *slog.Logger

	mu         sync.Mutex
	registered map[string]*tool.AdapterTool
}

// MCPOption configures an MCPServer.
type MCPOption func(*MCPServer)

// WithSyncInterval sets how often tools are re-synced from the registry.
func WithSyncInterval(d time.Duration) MCPOption {
	return func(s *MCPServer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithToolGauge reports the number of registered tools.
func WithToolGauge(g prometheus.Gauge) MCPOption {
	return func(s *MCPServer) {
		s.gauge = g
	}
}

// WithMCPLogger sets the logger.
func WithMCPLogger(logger *slog.Logger) MCPOption {
	return func(s *MCPServer) {
		s.logger = logger
	}
}

// NewMCPServer creates an MCP server named name. instructions is sent to
// clients on initialize.
func NewMCPServer(name, version, instructions string, registry inbound.ToolRegistry, exec inbound.ToolExecutionService, opts ...MCPOption) *MCPServer {
	s := &MCPServer{
		registry:   registry,
		exec:       exec,
		interval:   DefaultSyncInterval,
		logger:     slog.Default(),
		registered: make(map[string]*tool.AdapterTool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = mcp.NewServer(
		&mcp.Implementation{Name: name, Version: version},
		&mcp.ServerOptions{Instructions: instructions, Logger: s.logger},
	)
	return s
}

// Server returns the underlying MCP server.
func (s *MCPServer) Server() *mcp.Server {
	return s.server
}

// Sync loads the registry snapshot and registers added or rebuilt tools,
// removing tools that are gone. It returns the number of tools served.
func (s *MCPServer) Sync(ctx context.Context) (int, error) {
	tools, err := s.registry.LoadTools(ctx)
	if err != nil {
		return 0, fmt.Errorf("load tools: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]*tool.AdapterTool, len(tools))
	added := 0
	for _, t := range tools {
		current[t.Name] = t
		if s.registered[t.Name] == t {
			continue
		}
		s.server.AddTool(&mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Input.JSONSchema(),
		}, s.handler(t))
		added++
	}

	var removed []string
	for name := range s.registered {
		if _, ok := current[name]; !ok {
			removed = append(removed, name)
		}
	}
	if len(removed) > 0 {
		s.server.RemoveTools(removed...)
	}
	s.registered = current

	if s.gauge != nil {
		s.gauge.Set(float64(len(current)))
	}
	if added > 0 || len(removed) > 0 {
		s.logger.Info("mcp tools synced", "tools", len(current), "added", added, "removed", len(removed))
	}
	return len(current), nil
}

// RunSync syncs immediately and then on every interval until ctx is
// cancelled. Failures are logged and retried on the next tick.
func (s *MCPServer) RunSync(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("mcp tool sync failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunStdio serves MCP over stdin/stdout until ctx is cancelled or the
// client disconnects.
func (s *MCPServer) RunStdio(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns the streamable HTTP handler. It expects
// AuthMiddleware to have run: an authenticated caller is forwarded to
// tool handlers as bearer token info.
func (s *MCPServer) HTTPHandler() http.Handler {
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{
		Stateless:    true,
		JSONResponse: true,
		Logger:       s.logger,
	})
	withToken := mcpauth.RequireBearerToken(principalTokenVerifier, nil)(streamable)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := auth.PrincipalFromContext(r.Context()); p != nil && p.Kind != auth.PrincipalAnonymous {
			withToken.ServeHTTP(w, r)
			return
		}
		streamable.ServeHTTP(w, r)
	})
}

// principalTokenVerifier converts the principal stored by AuthMiddleware
// into token info. The token itself was verified by the middleware.
func principalTokenVerifier(ctx context.Context, _ string, _ *http.Request) (*mcpauth.TokenInfo, error) {
	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return nil, mcpauth.ErrInvalidToken
	}
	return &mcpauth.TokenInfo{
		UserID:     p.Subject,
		Expiration: principalExpiry(p),
		Extra:      map[string]any{principalExtraKey: p},
	}, nil
}

// principalExpiry returns the JWT exp claim, or an hour from now for
// callers without one.
func principalExpiry(p *auth.Principal) time.Time {
	if exp, ok := p.Claims["exp"].(float64); ok && exp > 0 {
		return time.Unix(int64(exp), 0)
	}
	return time.Now().Add(time.Hour)
}

// principalFromRequest returns the caller attached by HTTPHandler, or nil
// for stdio and unauthenticated sessions.
func principalFromRequest(req *mcp.CallToolRequest) *auth.Principal {
	if req.Extra == nil || req.Extra.TokenInfo == nil {
		return nil
	}
	p, _ := req.Extra.TokenInfo.Extra[principalExtraKey].(*auth.Principal)
	return p
}

func (s *MCPServer) handler(t *tool.AdapterTool) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &payload); err != nil {
				return errorResult("arguments must be a JSON object: " + err.Error()), nil
			}
			if payload == nil {
				payload = map[string]any{}
			}
		}

		meta := service.ExecutionMetaFrom(req.Params.Meta, nil, principalFromRequest(req))
		env := s.exec.ExecuteTool(ctx, t, payload, meta)
		return envelopeResult(env), nil
	}
}

// envelopeResult renders an envelope as a tool result. JSON blocks are
// sent as text and also as structured content.
func envelopeResult(env *tool.Envelope) *mcp.CallToolResult {
	if env.IsError {
		return errorResult(env.Message())
	}
	res := &mcp.CallToolResult{}
	for _, block := range env.Content {
		if block.Type == "text" {
			res.Content = append(res.Content, &mcp.TextContent{Text: block.Text})
			continue
		}
		data, err := json.Marshal(block.JSON)
		if err != nil {
			return errorResult("encode result: " + err.Error())
		}
		res.Content = append(res.Content, &mcp.TextContent{Text: string(data)})
		if _, ok := block.JSON.(map[string]any); ok && res.StructuredContent == nil {
			res.StructuredContent = block.JSON
		}
	}
	return res
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
