// Package http serves the unified adapter over HTTP.
//
// One listener carries the MCP surface, the administrative API, health and
// metrics:
//
//	transport := http.NewHTTPTransport(mcpServer,
//	    http.WithAddr("0.0.0.0:8000"),
//	    http.WithAdminHandler(adminAPI.Routes()),
//	    http.WithVerifier(auth.Chain{static, clerkVerifier}),
//	    http.WithHealthChecker(checker),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	/mcp      - MCP streamable HTTP (stateless, JSON responses)
//	/admin/   - administrative API, when configured
//	/health   - component checks, 503 when unhealthy
//	/metrics  - Prometheus exposition
//
// # Authentication
//
// /mcp and /admin/ require "Authorization: Bearer <token>". The token is
// checked against the static service secret first and then as an RS256
// JWT. Rejected requests get 401 {"error":"Unauthorized"}. Without a
// verifier (dev mode) requests run as the anonymous principal.
//
// The MCP SDK runs tool handlers outside the HTTP request context, so
// the authenticated principal is forwarded as bearer token info and read
// back from the call's request extra. The caller's organization becomes
// the default tenant for hosted credentials.
//
// # Tool sync
//
// MCPServer mirrors the registry snapshot: RunSync adds rebuilt tools and
// removes tools that disappeared, once per sync interval.
package http
