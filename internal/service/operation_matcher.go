package service

import (
	"strings"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
)

// MatchKind reports how MatchOperation chose a tool.
type MatchKind int

const (
	// MatchNone means there were no candidates.
	MatchNone MatchKind = iota
	// MatchExact means the operation named a composed tool name.
	MatchExact
	// MatchFuzzy means the best keyword overlap won.
	MatchFuzzy
	// MatchFallback means nothing matched and the first tool was used.
	MatchFallback
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchFuzzy:
		return "fuzzy"
	case MatchFallback:
		return "fallback"
	default:
		return "none"
	}
}

// MatchOperation picks the tool of a catalog record that an operation
// name refers to. It tries, in order: the composed name itself, the name
// composed from recordName and operation, the candidate containing the
// most operation keywords (shortest name on ties), and the first tool.
func MatchOperation(tools []*tool.AdapterTool, recordName, operation string) (*tool.AdapterTool, MatchKind) {
	if len(tools) == 0 {
		return nil, MatchNone
	}

	composed := tool.ComposeName(recordName, operation)
	for _, t := range tools {
		if t.Name == operation || t.Name == composed {
			return t, MatchExact
		}
	}

	keywords := strings.FieldsFunc(strings.ToLower(operation), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	var best *tool.AdapterTool
	bestScore := 0
	for _, t := range tools {
		name := strings.ToLower(t.Name)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(name, kw) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		if score > bestScore || (score == bestScore && len(t.Name) < len(best.Name)) {
			best, bestScore = t, score
		}
	}
	if best != nil {
		return best, MatchFuzzy
	}
	return tools[0], MatchFallback
}
