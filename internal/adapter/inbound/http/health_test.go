package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/outbound/memory"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/adapter/outbound/rediscache"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/service"
)

// discardLogger returns a logger that discards all output (for tests)
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticStatus service.RegistryStatus

func (s staticStatus) Status() service.RegistryStatus { return service.RegistryStatus(s) }

type failingStore struct {
	catalog.ToolStore
}

func (failingStore) List(context.Context, bool) ([]catalog.ToolRecord, error) {
	return nil, errors.New("connection refused")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthChecker_Healthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := rediscache.NewWithClient(client, "test:")
	t.Cleanup(func() { _ = cache.Close() })

	builtAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hc := NewHealthChecker(memory.NewToolStore(), staticStatus{Tools: 12, BuiltAt: builtAt}, cache, "test-version")
	hc.now = func() time.Time { return builtAt.Add(90 * time.Second) }

	health := hc.Check(context.Background())

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy (checks: %v)", health.Status, health.Checks)
	}
	if health.Version != "test-version" {
		t.Errorf("Version = %q, want test-version", health.Version)
	}
	if health.Checks["catalog_store"] != "ok" {
		t.Errorf("catalog_store = %q, want ok", health.Checks["catalog_store"])
	}
	if want := "ok: 12 tools, built 1m30s ago"; health.Checks["registry"] != want {
		t.Errorf("registry = %q, want %q", health.Checks["registry"], want)
	}
	if health.Checks["document_cache"] != "ok" {
		t.Errorf("document_cache = %q, want ok", health.Checks["document_cache"])
	}
}

func TestHealthChecker_NilComponents(t *testing.T) {
	health := NewHealthChecker(nil, nil, nil, "").Check(context.Background())

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	for _, name := range []string{"catalog_store", "registry", "document_cache"} {
		if health.Checks[name] != "not configured" {
			t.Errorf("%s = %q, want 'not configured'", name, health.Checks[name])
		}
	}
	if _, ok := health.Checks["goroutines"]; !ok {
		t.Error("goroutines check missing")
	}
}

func TestHealthChecker_RegistryNotBuilt(t *testing.T) {
	health := NewHealthChecker(nil, staticStatus{}, nil, "").Check(context.Background())

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Checks["registry"] != "not built" {
		t.Errorf("registry = %q, want 'not built'", health.Checks["registry"])
	}
}

func TestHealthChecker_Unhealthy(t *testing.T) {
	tests := []struct {
		name  string
		store catalog.ToolStore
		cache Pinger
		check string
	}{
		{"store unreachable", failingStore{}, nil, "catalog_store"},
		{"cache unreachable", memory.NewToolStore(), pingFunc(func(context.Context) error {
			return errors.New("dial tcp: i/o timeout")
		}), "document_cache"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			health := NewHealthChecker(tt.store, nil, tt.cache, "").Check(context.Background())

			if health.Status != "unhealthy" {
				t.Errorf("Status = %q, want unhealthy", health.Status)
			}
			if !strings.HasPrefix(health.Checks[tt.check], "error: ") {
				t.Errorf("%s = %q, want an error", tt.check, health.Checks[tt.check])
			}
		})
	}
}

func TestHealthChecker_Handler(t *testing.T) {
	tests := []struct {
		name       string
		checker    *HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"healthy", NewHealthChecker(memory.NewToolStore(), nil, nil, "v1"), http.StatusOK, "healthy"},
		{"unhealthy", NewHealthChecker(failingStore{}, nil, nil, "v1"), http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.checker.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("body status = %q, want %q", resp.Status, tt.wantBody)
			}
			if resp.Version != "v1" {
				t.Errorf("version = %q, want v1", resp.Version)
			}
		})
	}
}
