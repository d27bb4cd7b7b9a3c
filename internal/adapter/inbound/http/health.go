package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/service"
)

const healthCheckTimeout = 3 * time.Second

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// Pinger is implemented by components with a cheap reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegistryStatusReader reports the tool registry's snapshot.
type RegistryStatusReader interface {
	Status() service.RegistryStatus
}

// HealthChecker verifies component health.
type HealthChecker struct {
	store    catalog.ToolStore
	registry RegistryStatusReader
	cache    Pinger
	version  string
	now      func() time.Time
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(
	store catalog.ToolStore,
	registry RegistryStatusReader,
	cache Pinger,
	version string,
) *HealthChecker {
	return &HealthChecker{
		store:    store,
		registry: registry,
		cache:    cache,
		version:  version,
		now:      time.Now,
	}
}

// Check performs health checks on all components. The catalog store and
// the shared cache are required to be reachable; the registry only
// reports its state.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.store != nil {
		if err := h.pingStore(ctx); err != nil {
			checks["catalog_store"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["catalog_store"] = "ok"
		}
	} else {
		checks["catalog_store"] = "not configured"
	}

	if h.registry != nil {
		st := h.registry.Status()
		if st.BuiltAt.IsZero() {
			checks["registry"] = "not built"
		} else {
			age := h.now().Sub(st.BuiltAt).Truncate(time.Second)
			checks["registry"] = fmt.Sprintf("ok: %d tools, built %s ago", st.Tools, age)
		}
	} else {
		checks["registry"] = "not configured"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["document_cache"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["document_cache"] = "ok"
		}
	} else {
		checks["document_cache"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

func (h *HealthChecker) pingStore(ctx context.Context) error {
	if p, ok := h.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	_, err := h.store.List(ctx, false)
	return err
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
