package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/outbound"
)

// RESTExecutor calls operations of OpenAPI-described HTTP APIs.
type RESTExecutor struct {
	base
}

// NewRESTExecutor creates a REST executor with 2 retries and a 6s
// backoff cap unless overridden.
func NewRESTExecutor(opts ...Option) *RESTExecutor {
	return &RESTExecutor{base: newBase("REST", DefaultRESTRetries, RESTBackoffCap, opts)}
}

// Execute performs the HTTP call described by t.REST.
func (e *RESTExecutor) Execute(ctx context.Context, t *tool.AdapterTool, payload map[string]any, creds credential.Credentials) (any, error) {
	if t.REST == nil {
		return nil, &ExecutionError{Tool: t.Name, Attempts: 0, Err: errors.New("tool has no REST target")}
	}
	plan, err := planRequest(t.REST, payload, injectAuth(t.Auth, creds))
	if err != nil {
		return nil, &ExecutionError{Tool: t.Name, Attempts: 0, Err: err}
	}
	return e.retry(ctx, t.Name, payload, func(ctx context.Context) (any, error) {
		return e.do(ctx, plan)
	})
}

// requestPlan is a fully resolved request, replayable across retries.
type requestPlan struct {
	method      string
	url         string
	headers     map[string]string
	body        []byte
	contentType string
}

func (e *RESTExecutor) do(ctx context.Context, plan *requestPlan) (any, error) {
	var body io.Reader
	if plan.body != nil {
		body = bytes.NewReader(plan.body)
	}
	req, err := http.NewRequestWithContext(ctx, plan.method, plan.url, body)
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if plan.contentType != "" {
		req.Header.Set("Content-Type", plan.contentType)
	}
	for k, v := range plan.headers {
		req.Header.Set(k, v)
	}

	_, respBody, err := e.send(req)
	if err != nil {
		return nil, err
	}
	return decodeRESTBody(respBody), nil
}

// decodeRESTBody maps an empty body to {"status":"ok"}, JSON to its
// decoded value, and anything else to {"text": body}.
func decodeRESTBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return map[string]any{"status": "ok"}
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return map[string]any{"text": string(body)}
	}
	return v
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// planRequest places payload fields into the path, query and body.
func planRequest(target *tool.RESTTarget, payload map[string]any, auth authMaterial) (*requestPlan, error) {
	method := strings.ToUpper(target.Method)
	path, used := substitutePath(target.Path, payload)

	base, err := url.Parse(strings.TrimRight(target.BaseURL, "/") + path)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("build url: %q is not absolute", base.String())
	}

	query := base.Query()
	for k, v := range auth.query {
		query.Set(k, v)
	}

	plan := &requestPlan{method: method, headers: auth.headers}

	remaining := make(map[string]any, len(payload))
	for k, v := range payload {
		if _, ok := used[k]; ok || v == nil {
			continue
		}
		remaining[k] = v
	}

	explicitBody, hasExplicit := remaining[tool.BodyField]
	delete(remaining, tool.BodyField)

	switch {
	case !hasBody(method):
		addScalars(query, remaining)
	case hasExplicit:
		data, err := json.Marshal(explicitBody)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		plan.body = data
		plan.contentType = "application/json"
		addScalars(query, remaining)
	case len(remaining) == 0:
	case target.ContentType == catalog.ContentTypeJSON:
		data, err := json.Marshal(remaining)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		plan.body = data
		plan.contentType = "application/json"
	default:
		form := url.Values{}
		for k, v := range remaining {
			form.Set(k, formatValue(v))
		}
		plan.body = []byte(form.Encode())
		plan.contentType = "application/x-www-form-urlencoded"
	}

	base.RawQuery = query.Encode()
	plan.url = base.String()
	return plan, nil
}

// substitutePath replaces {key} tokens with path-escaped payload values
// and reports which keys were consumed.
func substitutePath(path string, payload map[string]any) (string, map[string]struct{}) {
	used := make(map[string]struct{})
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		token := "{" + k + "}"
		if !strings.Contains(path, token) || payload[k] == nil {
			continue
		}
		path = strings.ReplaceAll(path, token, url.PathEscape(formatValue(payload[k])))
		used[k] = struct{}{}
	}
	return path, used
}

// addScalars adds scalar fields to the query; non-scalars are skipped.
func addScalars(q url.Values, fields map[string]any) {
	for k, v := range fields {
		if s, ok := formatScalar(v); ok {
			q.Set(k, s)
		}
	}
}

// Compile-time interface verification.
var _ outbound.ToolExecutor = (*RESTExecutor)(nil)
