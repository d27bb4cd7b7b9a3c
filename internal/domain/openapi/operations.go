package openapi

import (
	"strings"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
)

// Operation is a normalized operation extracted from a document.
type Operation struct {
	ID          string
	Method      string
	Path        string
	Description string
	Input       *tool.InputSchema
}

// ExtractOperations walks paths in document order and builds one
// Operation per supported method.
func ExtractOperations(doc *Document) []Operation {
	if doc == nil {
		return nil
	}
	var ops []Operation
	for _, item := range doc.Paths {
		for _, method := range Methods {
			raw, ok := item.Operations[method]
			if !ok {
				continue
			}
			id := raw.OperationID
			if id == "" {
				id = FallbackOperationID(method, item.Path)
			}
			desc := raw.Description
			if desc == "" {
				desc = raw.Summary
			}
			ops = append(ops, Operation{
				ID:          id,
				Method:      method,
				Path:        item.Path,
				Description: desc,
				Input:       doc.buildInput(item.Parameters, raw),
			})
		}
	}
	return ops
}

func (d *Document) buildInput(shared []Parameter, op *RawOperation) *tool.InputSchema {
	schema := &tool.InputSchema{}
	params := make([]Parameter, 0, len(shared)+len(op.Parameters))
	params = append(params, shared...)
	params = append(params, op.Parameters...)

	for _, p := range params {
		p, ok := d.resolve(p)
		if !ok || p.Name == "" {
			continue
		}
		var typeName string
		if p.Schema != nil {
			typeName = p.Schema.Type.Primary()
		}
		schema.Set(tool.Field{
			Name:        p.Name,
			Type:        tool.CoarseType(typeName),
			Required:    p.Required,
			Description: p.Description,
		})
	}

	if op.RequestBody.HasJSONSchema() {
		schema.Set(tool.Field{
			Name:        tool.BodyField,
			Type:        tool.TypeObject,
			Description: "Request body",
		})
	}
	return schema
}

// FallbackOperationID derives an id from the method and path template:
// "get_users_id_posts" for GET /users/{id}/posts, "get_root" for "/".
func FallbackOperationID(method, path string) string {
	s := strings.Trim(path, "/")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.NewReplacer("{", "", "}", "").Replace(s)
	if s == "" {
		s = "root"
	}
	return method + "_" + s
}
