// Package mcp builds and unwraps the JSON-RPC tools/call envelope used to
// invoke tools on MCP servers.
package mcp

// MethodToolsCall is the JSON-RPC method for tool invocation.
const MethodToolsCall = "tools/call"

// CallID is the request id sent with every tools/call envelope.
const CallID = "call-1"

// ToolCallParams is the params object of a tools/call request.
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
