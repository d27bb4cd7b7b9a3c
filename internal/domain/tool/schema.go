package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/jsonschema-go/jsonschema"
)

// FieldType is a coarse JSON type.
type FieldType string

// Coarse field types.
const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// CoarseType maps an OpenAPI/JSON Schema type name to a FieldType.
// Unknown and empty names map to string.
func CoarseType(name string) FieldType {
	switch FieldType(name) {
	case TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return FieldType(name)
	default:
		return TypeString
	}
}

// BodyField is the name of the free-form request body field.
const BodyField = "body"

// Field is one named input of a tool.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Description string
}

// InputSchema is an ordered, open structural schema: listed fields are
// type-checked, unlisted fields are accepted as-is.
type InputSchema struct {
	Fields []Field
}

// Set adds or replaces a field. A replaced field keeps its position.
func (s *InputSchema) Set(f Field) {
	for i := range s.Fields {
		if s.Fields[i].Name == f.Name {
			s.Fields[i] = f
			return
		}
	}
	s.Fields = append(s.Fields, f)
}

// Field returns the named field.
func (s *InputSchema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// GenericSchema is the schema used for message-endpoint tools: no
// declared fields, any arguments accepted.
func GenericSchema() *InputSchema {
	return &InputSchema{}
}

// ValidationError lists every problem found in a payload.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid input: " + e.Problems[0]
	}
	msg := "invalid input:"
	for _, p := range e.Problems {
		msg += " " + p + ";"
	}
	return msg[:len(msg)-1]
}

// Validate checks required fields and coarse types. A nil value counts
// as absent.
func (s *InputSchema) Validate(payload map[string]any) error {
	if s == nil {
		return nil
	}
	var problems []string
	for _, f := range s.Fields {
		v, ok := payload[f.Name]
		if !ok || v == nil {
			if f.Required {
				problems = append(problems, fmt.Sprintf("missing required field %q", f.Name))
			}
			continue
		}
		if !matchesType(f.Type, v) {
			problems = append(problems, fmt.Sprintf("field %q must be %s, got %s", f.Name, f.Type, describe(v)))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// IsValidationError reports whether err is a payload validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func matchesType(t FieldType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInteger:
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	case TypeNumber:
		_, ok := toFloat(v)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

// JSONSchema renders the schema as an open JSON Schema object for the MCP
// tool listing.
func (s *InputSchema) JSONSchema() *jsonschema.Schema {
	out := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{},
	}
	if s == nil {
		return out
	}
	for _, f := range s.Fields {
		out.Properties[f.Name] = &jsonschema.Schema{
			Type:        string(f.Type),
			Description: f.Description,
		}
		if f.Required {
			out.Required = append(out.Required, f.Name)
		}
	}
	return out
}
