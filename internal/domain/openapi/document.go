// Package openapi parses the subset of OpenAPI 3.x documents needed to
// turn operations into tools. It is not a validator.
package openapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrDocumentUnavailable is returned when a document cannot be fetched.
var ErrDocumentUnavailable = errors.New("openapi document unavailable")

// Methods lists the HTTP methods turned into operations, in extraction order.
var Methods = []string{"get", "post", "put", "patch", "delete"}

// Document is a parsed OpenAPI document with paths in document order.
type Document struct {
	Servers    []Server
	Paths      []PathItem
	Components Components
}

// Server is an entry of the top-level servers list.
type Server struct {
	URL string `yaml:"url" json:"url"`
}

// Components holds reusable definitions. Only parameters are resolved.
type Components struct {
	Parameters map[string]Parameter `yaml:"parameters" json:"parameters"`
}

// PathItem is one entry of the paths object.
type PathItem struct {
	Path       string
	Parameters []Parameter
	// Operations is keyed by lower-case method.
	Operations map[string]*RawOperation
}

// RawOperation is an operation object as written in the document.
type RawOperation struct {
	OperationID string       `yaml:"operationId" json:"operationId"`
	Summary     string       `yaml:"summary" json:"summary"`
	Description string       `yaml:"description" json:"description"`
	Parameters  []Parameter  `yaml:"parameters" json:"parameters"`
	RequestBody *RequestBody `yaml:"requestBody" json:"requestBody"`
}

// Parameter is a parameter object or a local $ref to one.
type Parameter struct {
	Ref         string  `yaml:"$ref" json:"$ref"`
	Name        string  `yaml:"name" json:"name"`
	In          string  `yaml:"in" json:"in"`
	Required    bool    `yaml:"required" json:"required"`
	Description string  `yaml:"description" json:"description"`
	Schema      *Schema `yaml:"schema" json:"schema"`
}

// Schema is the part of a schema object used for coarse typing.
type Schema struct {
	Type SchemaType `yaml:"type" json:"type"`
}

// SchemaType is a JSON Schema type that may be written as a single name
// or, in OpenAPI 3.1, as a list of names.
type SchemaType []string

// UnmarshalYAML accepts both a scalar and a sequence.
func (t *SchemaType) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*t = SchemaType{value.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*t = names
		return nil
	default:
		return fmt.Errorf("line %d: schema type must be a string or list", value.Line)
	}
}

// UnmarshalJSON accepts both a string and an array of strings.
func (t *SchemaType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*t = SchemaType{name}
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return errors.New("schema type must be a string or list")
	}
	*t = names
	return nil
}

// Primary returns the first non-null type name, or "".
func (t SchemaType) Primary() string {
	for _, name := range t {
		if name != "null" {
			return name
		}
	}
	return ""
}

// RequestBody is a request body object.
type RequestBody struct {
	Content map[string]MediaType `yaml:"content" json:"content"`
}

// MediaType is a media type object. The schema is kept untyped.
type MediaType struct {
	Schema map[string]any `yaml:"schema" json:"schema"`
}

// HasJSONSchema reports whether the body declares an application/json schema.
func (b *RequestBody) HasJSONSchema() bool {
	if b == nil {
		return false
	}
	mt, ok := b.Content["application/json"]
	return ok && len(mt.Schema) > 0
}

type rawPathItem struct {
	Parameters []Parameter   `yaml:"parameters" json:"parameters"`
	Get        *RawOperation `yaml:"get" json:"get"`
	Post       *RawOperation `yaml:"post" json:"post"`
	Put        *RawOperation `yaml:"put" json:"put"`
	Patch      *RawOperation `yaml:"patch" json:"patch"`
	Delete     *RawOperation `yaml:"delete" json:"delete"`
}

// Parse decodes a JSON or YAML document. Path order is preserved.
// Documents starting with '{' are decoded as JSON first, which accepts
// escapes such as "\/" that YAML rejects; a YAML flow mapping falls back
// to the YAML decoder.
func Parse(data []byte) (*Document, error) {
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '{' {
		doc, err := parseJSON(trimmed)
		if err == nil {
			return doc, nil
		}
		if doc, yerr := parseYAML(data); yerr == nil {
			return doc, nil
		}
		return nil, err
	}
	return parseYAML(data)
}

func parseYAML(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errors.New("parse openapi document: empty document")
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, errors.New("parse openapi document: top level is not an object")
	}

	doc := &Document{}
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, value := top.Content[i].Value, top.Content[i+1]
		switch key {
		case "servers":
			if err := value.Decode(&doc.Servers); err != nil {
				return nil, fmt.Errorf("parse servers: %w", err)
			}
		case "components":
			if err := value.Decode(&doc.Components); err != nil {
				return nil, fmt.Errorf("parse components: %w", err)
			}
		case "paths":
			paths, err := parsePaths(value)
			if err != nil {
				return nil, err
			}
			doc.Paths = paths
		}
	}
	return doc, nil
}

func parsePaths(node *yaml.Node) ([]PathItem, error) {
	if node.Kind != yaml.MappingNode {
		return nil, nil
	}
	items := make([]PathItem, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		path := node.Content[i].Value
		var raw rawPathItem
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse path %q: %w", path, err)
		}
		items = append(items, raw.item(path))
	}
	return items, nil
}

type jsonDocument struct {
	Servers    []Server        `json:"servers"`
	Components Components      `json:"components"`
	Paths      json.RawMessage `json:"paths"`
}

func parseJSON(data []byte) (*Document, error) {
	var raw jsonDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	doc := &Document{Servers: raw.Servers, Components: raw.Components}
	if len(raw.Paths) == 0 {
		return doc, nil
	}
	paths, err := parseJSONPaths(raw.Paths)
	if err != nil {
		return nil, err
	}
	doc.Paths = paths
	return doc, nil
}

// parseJSONPaths walks the paths object token by token so that paths keep
// their document order.
func parseJSONPaths(data []byte) ([]PathItem, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse paths: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil
	}
	var items []PathItem
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse paths: %w", err)
		}
		path, _ := tok.(string)
		var raw rawPathItem
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse path %q: %w", path, err)
		}
		items = append(items, raw.item(path))
	}
	return items, nil
}

func (raw *rawPathItem) item(path string) PathItem {
	item := PathItem{
		Path:       path,
		Parameters: raw.Parameters,
		Operations: make(map[string]*RawOperation, 5),
	}
	for method, op := range map[string]*RawOperation{
		"get": raw.Get, "post": raw.Post, "put": raw.Put, "patch": raw.Patch, "delete": raw.Delete,
	} {
		if op != nil {
			item.Operations[method] = op
		}
	}
	return item
}

const parameterRefPrefix = "#/components/parameters/"

// resolve returns the referenced component parameter for a local $ref,
// or p itself. Unresolvable references yield ok=false.
func (d *Document) resolve(p Parameter) (Parameter, bool) {
	if p.Ref == "" {
		return p, true
	}
	if !strings.HasPrefix(p.Ref, parameterRefPrefix) {
		return Parameter{}, false
	}
	target, ok := d.Components.Parameters[strings.TrimPrefix(p.Ref, parameterRefPrefix)]
	if !ok || target.Ref != "" {
		return Parameter{}, false
	}
	return target, true
}

// FirstServerURL returns servers[0].url, or "".
func (d *Document) FirstServerURL() string {
	if len(d.Servers) == 0 {
		return ""
	}
	return d.Servers[0].URL
}
