package tool

import "encoding/json"

// ContentBlock is one item of an Envelope's content list.
type ContentBlock struct {
	// Type is "json" or "text".
	Type string `json:"type"`
	JSON any    `json:"json"`
	Text string `json:"text"`
}

// MarshalJSON writes the member matching the block type. A json block
// keeps its "json" member even when the result is null.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	if b.Type == "json" {
		return json.Marshal(struct {
			Type string `json:"type"`
			JSON any    `json:"json"`
		}{b.Type, b.JSON})
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{b.Type, b.Text})
}

// Envelope is the uniform result of a tool execution.
type Envelope struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"is_error,omitempty"`
}

// Success wraps an upstream result.
func Success(result any) *Envelope {
	return &Envelope{Content: []ContentBlock{{Type: "json", JSON: result}}}
}

// Failure wraps an error message.
func Failure(msg string) *Envelope {
	return &Envelope{Content: []ContentBlock{{Type: "text", Text: msg}}, IsError: true}
}

// Message returns the text of a failure envelope, or "".
func (e *Envelope) Message() string {
	if e == nil || !e.IsError || len(e.Content) == 0 {
		return ""
	}
	return e.Content[0].Text
}
