// Package admin provides the JSON administrative API: catalog CRUD, ad-hoc
// tool execution and registry refresh.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/ctxkey"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/inbound"
)

// maxBodySize caps admin request bodies.
const maxBodySize = 1 << 20

// AdminAPIHandler provides JSON API endpoints under /admin/.
type AdminAPIHandler struct {
	store              catalog.ToolStore
	registry           inbound.ToolRegistry
	exec               inbound.ToolExecutionService
	logger             *slog.Logger
	rateLimitPerMinute int
}

// AdminAPIOption configures an AdminAPIHandler dependency.
type AdminAPIOption func(*AdminAPIHandler)

// WithToolStore sets the catalog store.
func WithToolStore(s catalog.ToolStore) AdminAPIOption {
	return func(h *AdminAPIHandler) {
		h.store = s
	}
}

// WithRegistry sets the tool registry used for execution and refresh.
func WithRegistry(r inbound.ToolRegistry) AdminAPIOption {
	return func(h *AdminAPIHandler) {
		h.registry = r
	}
}

// WithExecutionService sets the service that runs tools.
func WithExecutionService(s inbound.ToolExecutionService) AdminAPIOption {
	return func(h *AdminAPIHandler) {
		h.exec = s
	}
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) AdminAPIOption {
	return func(h *AdminAPIHandler) {
		h.logger = l
	}
}

// WithRateLimit caps requests per client IP per minute. 0 disables
// limiting.
func WithRateLimit(perMinute int) AdminAPIOption {
	return func(h *AdminAPIHandler) {
		h.rateLimitPerMinute = perMinute
	}
}

// NewAdminAPIHandler creates a new AdminAPIHandler with the given options.
func NewAdminAPIHandler(opts ...AdminAPIOption) *AdminAPIHandler {
	h := &AdminAPIHandler{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all admin API routes registered.
// Authentication is applied by the HTTP transport in front of it.
func (h *AdminAPIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Catalog CRUD.
	mux.HandleFunc("GET /admin/tools", h.handleListTools)
	mux.HandleFunc("POST /admin/tools", h.handleCreateTool)
	mux.HandleFunc("GET /admin/tools/{id}", h.handleGetTool)
	mux.HandleFunc("PUT /admin/tools/{id}", h.handleUpdateTool)
	mux.HandleFunc("PATCH /admin/tools/{id}", h.handleUpdateTool)
	mux.HandleFunc("DELETE /admin/tools/{id}", h.handleDeleteTool)

	// Execution and registry.
	mux.HandleFunc("GET /admin/tools/{id}/operations", h.handleListOperations)
	mux.HandleFunc("POST /admin/tools/{id}/execute", h.handleExecuteByID)
	mux.HandleFunc("POST /admin/tools/by-name/{name}/execute", h.handleExecuteByName)
	mux.HandleFunc("POST /admin/registry/refresh", h.handleRefreshRegistry)

	if h.rateLimitPerMinute <= 0 {
		return mux
	}
	return apiRateLimitMiddleware(h.rateLimitPerMinute, time.Minute, mux)
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *AdminAPIHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *AdminAPIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes the request body into the given value.
// Returns an error if the body cannot be decoded as JSON.
func (h *AdminAPIHandler) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
}

// pathID parses the {id} path parameter.
func (h *AdminAPIHandler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid tool id")
		return 0, false
	}
	return id, true
}

// log returns the request-scoped logger set by the HTTP transport.
func (h *AdminAPIHandler) log(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return l
	}
	return h.logger
}

// storeError maps store errors to HTTP responses.
func (h *AdminAPIHandler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, catalog.ErrToolNotFound):
		h.respondError(w, http.StatusNotFound, "tool not found")
	case errors.Is(err, catalog.ErrDuplicateToolName):
		h.respondError(w, http.StatusConflict, "a tool with this name already exists")
	default:
		h.log(r).Error("catalog operation failed", "op", op, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
