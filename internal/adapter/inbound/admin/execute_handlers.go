package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/auth"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/service"
)

// executeRequest is the JSON body of the execute endpoints. Each value has
// two accepted spellings; the first non-empty one is used.
type executeRequest struct {
	Operation   string         `json:"operation"`
	Method      string         `json:"method"`
	Params      map[string]any `json:"params"`
	Parameters  map[string]any `json:"parameters"`
	Credentials map[string]any `json:"credentials"`
	Meta        map[string]any `json:"meta"`
	MetaAlt     map[string]any `json:"_meta"`
}

func (req executeRequest) operation() string {
	if req.Operation != "" {
		return req.Operation
	}
	return req.Method
}

func (req executeRequest) params() map[string]any {
	switch {
	case req.Params != nil:
		return req.Params
	case req.Parameters != nil:
		return req.Parameters
	default:
		return map[string]any{}
	}
}

func (req executeRequest) meta() map[string]any {
	if req.Meta != nil {
		return req.Meta
	}
	return req.MetaAlt
}

// executeResponse is the envelope plus the tool that ran.
type executeResponse struct {
	Tool  string `json:"tool"`
	Match string `json:"match"`
	*tool.Envelope
}

// operationResponse describes one invocable tool of a catalog record.
type operationResponse struct {
	Name        string `json:"name"`
	Operation   string `json:"operation"`
	Description string `json:"description"`
	AdapterType string `json:"adapter_type"`
	HTTPMethod  string `json:"http_method,omitempty"`
	Path        string `json:"path,omitempty"`
	InputSchema any    `json:"input_schema"`
}

// refreshResponse is the JSON response for the registry refresh endpoint.
type refreshResponse struct {
	Message    string `json:"message"`
	TotalTools int    `json:"total_tools"`
}

// handleListOperations lists the tools built from one catalog record.
// GET /admin/tools/{id}/operations
func (h *AdminAPIHandler) handleListOperations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	tools, err := h.registry.ForCatalogID(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "list operations", err)
		return
	}

	out := make([]operationResponse, 0, len(tools))
	for _, t := range tools {
		op := operationResponse{
			Name:        t.Name,
			Operation:   t.Operation(),
			Description: t.Description,
			AdapterType: string(t.Kind()),
			InputSchema: t.Input.JSONSchema(),
		}
		if t.REST != nil {
			op.HTTPMethod = strings.ToUpper(t.REST.Method)
			op.Path = t.REST.Path
		}
		out = append(out, op)
	}
	h.respondJSON(w, http.StatusOK, out)
}

// handleExecuteByID runs an operation of a catalog record.
// POST /admin/tools/{id}/execute
func (h *AdminAPIHandler) handleExecuteByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req executeRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	record, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, r, "execute tool", err)
		return
	}
	h.executeRecord(w, r, record, req)
}

// handleExecuteByName runs an operation of the catalog record with the
// given name. A composed tool name is also accepted and runs that tool.
// POST /admin/tools/by-name/{name}/execute
func (h *AdminAPIHandler) handleExecuteByName(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req executeRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	record, err := h.store.GetByName(r.Context(), name)
	if err == nil {
		h.executeRecord(w, r, record, req)
		return
	}
	if !errors.Is(err, catalog.ErrToolNotFound) {
		h.storeError(w, r, "execute tool", err)
		return
	}

	t, lerr := h.registry.Lookup(r.Context(), name)
	if lerr != nil {
		if errors.Is(lerr, tool.ErrToolNotFound) {
			h.respondError(w, http.StatusNotFound, "tool not found")
			return
		}
		h.storeError(w, r, "execute tool", lerr)
		return
	}
	h.execute(w, r, t, service.MatchExact, req)
}

func (h *AdminAPIHandler) executeRecord(w http.ResponseWriter, r *http.Request, record *catalog.ToolRecord, req executeRequest) {
	if !record.Enabled {
		h.respondError(w, http.StatusConflict, "tool "+record.Name+" is disabled")
		return
	}
	tools, err := h.registry.ForCatalogID(r.Context(), record.ID)
	if err != nil {
		h.storeError(w, r, "execute tool", err)
		return
	}
	if len(tools) == 0 {
		h.respondError(w, http.StatusNotFound, "no operations available for tool "+record.Name)
		return
	}

	t, kind := service.MatchOperation(tools, record.Name, req.operation())
	if kind == service.MatchFallback {
		h.log(r).Warn("operation not matched, using first tool",
			"catalog_tool", record.Name,
			"operation", req.operation(),
			"tool", t.Name,
		)
	}
	h.execute(w, r, t, kind, req)
}

func (h *AdminAPIHandler) execute(w http.ResponseWriter, r *http.Request, t *tool.AdapterTool, kind service.MatchKind, req executeRequest) {
	meta := service.ExecutionMetaFrom(req.meta(), req.Credentials, auth.PrincipalFromContext(r.Context()))
	env := h.exec.ExecuteTool(r.Context(), t, req.params(), meta)
	h.respondJSON(w, http.StatusOK, executeResponse{
		Tool:     t.Name,
		Match:    kind.String(),
		Envelope: env,
	})
}

// handleRefreshRegistry drops the cached tool snapshot and rebuilds it.
// POST /admin/registry/refresh
func (h *AdminAPIHandler) handleRefreshRegistry(w http.ResponseWriter, r *http.Request) {
	h.registry.Invalidate()
	tools, err := h.registry.LoadTools(r.Context())
	if err != nil {
		h.log(r).Error("registry refresh failed", "error", err)
		h.respondError(w, http.StatusBadGateway, "registry refresh failed: "+err.Error())
		return
	}
	h.log(r).Info("registry refreshed", "tools", len(tools))
	h.respondJSON(w, http.StatusOK, refreshResponse{
		Message:    "registry refreshed",
		TotalTools: len(tools),
	})
}
