package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/outbound"
	mcpcodec "github.com/AutomatosAI/automatos-unified-adapter/pkg/mcp"
)

// MessageExecutor invokes methods on JSON-RPC message endpoints (MCP
// servers) with a single tools/call request.
type MessageExecutor struct {
	base
}

// NewMessageExecutor creates a message executor with 1 retry and a 4s
// backoff cap unless overridden.
func NewMessageExecutor(opts ...Option) *MessageExecutor {
	return &MessageExecutor{base: newBase("message", DefaultMessageRetries, MessageBackoffCap, opts)}
}

// NormalizeEndpoint makes sure the URL ends with "/mcp".
func NormalizeEndpoint(endpoint string) string {
	if strings.HasSuffix(endpoint, "/mcp") {
		return endpoint
	}
	return strings.TrimRight(endpoint, "/") + "/mcp"
}

// Execute sends tools/call for t.Message.Method with payload as arguments.
func (e *MessageExecutor) Execute(ctx context.Context, t *tool.AdapterTool, payload map[string]any, creds credential.Credentials) (any, error) {
	if t.Message == nil {
		return nil, &ExecutionError{Tool: t.Name, Attempts: 0, Err: errors.New("tool has no message target")}
	}
	body, err := mcpcodec.EncodeToolCall(t.Message.Method, payload)
	if err != nil {
		return nil, &ExecutionError{Tool: t.Name, Attempts: 0, Err: err}
	}
	endpoint := NormalizeEndpoint(t.Message.Endpoint)
	auth := injectAuth(t.Auth, creds)

	return e.retry(ctx, t.Name, payload, func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
		for k, v := range auth.headers {
			req.Header.Set(k, v)
		}

		resp, respBody, err := e.send(req)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
			respBody = mcpcodec.LastSSEData(respBody)
			if respBody == nil {
				return nil, errors.New("event stream carried no data")
			}
		}
		return mcpcodec.DecodeResult(respBody)
	})
}

// Compile-time interface verification.
var _ outbound.ToolExecutor = (*MessageExecutor)(nil)
