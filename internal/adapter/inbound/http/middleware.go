package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/ctxkey"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/auth"
)

// requestIDContextKey is the type for the request ID context key.
type requestIDContextKey struct{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = requestIDContextKey{}

// LoggerKey is the context key for the enriched logger.
// Uses shared key type from ctxkey package to allow cross-package access without import cycles.
var LoggerKey = ctxkey.LoggerKey{}

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
// The request ID is stored in context using RequestIDKey.
// An enriched logger with request_id field is stored using LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			// Set response header for correlation
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// AuthMiddleware requires a bearer token accepted by verifier on every
// path except health probes. The caller is stored with auth.WithPrincipal.
//
// A nil verifier disables authentication: every request runs as the
// anonymous principal. failures may be nil.
func AuthMiddleware(verifier auth.TokenVerifier, failures interface{ Inc() }) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if verifier == nil {
				next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), auth.Anonymous())))
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				rejectUnauthorized(w, r, failures, "missing bearer token")
				return
			}
			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				reason := "invalid bearer token"
				if !errors.Is(err, auth.ErrInvalidToken) {
					// Key set unreachable and similar: still a 401 for the
					// caller, but worth an error in the log.
					LoggerFromContext(r.Context()).Error("token verification failed", "error", err)
					reason = "token verification unavailable"
				}
				rejectUnauthorized(w, r, failures, reason)
				return
			}

			LoggerFromContext(r.Context()).Debug("authenticated",
				"subject", principal.Subject,
				"kind", principal.Kind,
				"org_id", principal.OrgID,
			)
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// isHealthPath matches the health endpoint exactly. Sub-paths such as
// /mcp/health belong to protected handlers.
func isHealthPath(path string) bool {
	return path == "/health"
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func rejectUnauthorized(w http.ResponseWriter, r *http.Request, failures interface{ Inc() }, reason string) {
	if failures != nil {
		failures.Inc()
	}
	LoggerFromContext(r.Context()).Debug("request rejected", "path", r.URL.Path, "reason", reason)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}
