package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// EncodeToolCall returns the wire form of a tools/call request for name
// with args as its arguments.
func EncodeToolCall(name string, args map[string]any) ([]byte, error) {
	id, err := jsonrpc.MakeID(CallID)
	if err != nil {
		return nil, fmt.Errorf("make request id: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	params, err := json.Marshal(ToolCallParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("encode tool arguments: %w", err)
	}
	return jsonrpc.EncodeMessage(&jsonrpc.Request{
		ID:     id,
		Method: MethodToolsCall,
		Params: params,
	})
}

// DecodeToolCall parses a tools/call request. It is the inverse of
// EncodeToolCall and is used by test servers.
func DecodeToolCall(data []byte) (*ToolCallParams, error) {
	msg, err := jsonrpc.DecodeMessage(data)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok || req.Method != MethodToolsCall {
		return nil, fmt.Errorf("not a %s request", MethodToolsCall)
	}
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return &params, nil
}

// DecodeResult unwraps a response body: the "result" member when present,
// otherwise the whole decoded body. Error responses are returned as-is.
func DecodeResult(body []byte) (any, error) {
	var whole any
	if err := json.Unmarshal(body, &whole); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	obj, ok := whole.(map[string]any)
	if !ok {
		return whole, nil
	}
	if result, ok := obj["result"]; ok {
		return result, nil
	}
	return whole, nil
}

// LastSSEData returns the payload of the last "data:" event in a
// text/event-stream body, or nil if there is none. Multi-line events are
// joined with newlines.
func LastSSEData(body []byte) []byte {
	var last, current []byte
	inEvent := false

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), len(body)+1)
	for scanner.Scan() {
		line := scanner.Bytes()
		switch {
		case len(line) == 0:
			if inEvent {
				last = current
				current = nil
				inEvent = false
			}
		case bytes.HasPrefix(line, []byte("data:")):
			data := bytes.TrimPrefix(bytes.TrimPrefix(line, []byte("data:")), []byte(" "))
			if inEvent {
				current = append(current, '\n')
			}
			current = append(current, data...)
			inEvent = true
		}
	}
	if inEvent {
		last = current
	}
	return last
}
