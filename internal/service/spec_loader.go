package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/openapi"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/outbound"
)

// DefaultSpecCacheTTL is how long a fetched OpenAPI document is reused.
const DefaultSpecCacheTTL = time.Hour

// maxSpecSize caps fetched OpenAPI documents.
const maxSpecSize = 10 * 1024 * 1024 // 10MB

// SpecSource loads parsed OpenAPI documents by URL.
type SpecSource interface {
	Load(ctx context.Context, url string) (*openapi.Document, error)
}

// SpecLoader fetches OpenAPI documents and keeps the parsed result per
// URL for the cache TTL. An optional shared cache holds raw documents so
// other instances can skip the fetch.
type SpecLoader struct {
	httpClient *http.Client
	ttl        time.Duration
	shared     outbound.DocumentCache
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]specEntry
	fetches singleflight.Group
}

type specEntry struct {
	doc       *openapi.Document
	fetchedAt time.Time
}

// SpecLoaderOption configures a SpecLoader.
type SpecLoaderOption func(*SpecLoader)

// WithSpecHTTPClient sets the client used to fetch documents.
func WithSpecHTTPClient(client *http.Client) SpecLoaderOption {
	return func(l *SpecLoader) {
		l.httpClient = client
	}
}

// WithSpecCacheTTL sets how long a parsed document is served from memory.
func WithSpecCacheTTL(ttl time.Duration) SpecLoaderOption {
	return func(l *SpecLoader) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithSharedDocumentCache backs the loader with a cache shared between
// instances.
func WithSharedDocumentCache(cache outbound.DocumentCache) SpecLoaderOption {
	return func(l *SpecLoader) {
		l.shared = cache
	}
}

// WithSpecLogger sets the logger.
func WithSpecLogger(logger *slog.Logger) SpecLoaderOption {
	return func(l *SpecLoader) {
		l.logger = logger
	}
}

// NewSpecLoader creates a SpecLoader.
func NewSpecLoader(opts ...SpecLoaderOption) *SpecLoader {
	l := &SpecLoader{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
		ttl:     DefaultSpecCacheTTL,
		logger:  slog.Default(),
		now:     time.Now,
		entries: make(map[string]specEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the parsed document at url. A cached document younger than
// the TTL is returned without network access. Failed fetches return an
// error wrapping openapi.ErrDocumentUnavailable and leave the cache as is.
func (l *SpecLoader) Load(ctx context.Context, url string) (*openapi.Document, error) {
	if doc, ok := l.cached(url); ok {
		return doc, nil
	}

	res, err, _ := l.fetches.Do(url, func() (any, error) {
		if doc, ok := l.cached(url); ok {
			return doc, nil
		}
		data, err := l.read(ctx, url)
		if err != nil {
			return nil, err
		}
		doc, err := openapi.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", openapi.ErrDocumentUnavailable, url, err)
		}
		l.mu.Lock()
		l.entries[url] = specEntry{doc: doc, fetchedAt: l.now()}
		l.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*openapi.Document), nil
}

func (l *SpecLoader) cached(url string) (*openapi.Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[url]
	if !ok || l.now().Sub(e.fetchedAt) >= l.ttl {
		return nil, false
	}
	return e.doc, true
}

// read returns the raw document, preferring the shared cache.
func (l *SpecLoader) read(ctx context.Context, url string) ([]byte, error) {
	if l.shared != nil {
		data, ok, err := l.shared.Get(ctx, url)
		switch {
		case err != nil:
			l.logger.Warn("shared document cache read failed", "url", url, "error", err)
		case ok:
			return data, nil
		}
	}

	data, err := l.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if l.shared != nil {
		if err := l.shared.Set(ctx, url, data, l.ttl); err != nil {
			l.logger.Warn("shared document cache write failed", "url", url, "error", err)
		}
	}
	return data, nil
}

func (l *SpecLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", openapi.ErrDocumentUnavailable, url, err)
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.8")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", openapi.ErrDocumentUnavailable, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSpecSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %w", openapi.ErrDocumentUnavailable, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		l.logger.Warn("failed to load OpenAPI document", "url", url, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: %s: http status %d", openapi.ErrDocumentUnavailable, url, resp.StatusCode)
	}
	return body, nil
}
