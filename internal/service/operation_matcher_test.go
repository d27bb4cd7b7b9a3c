package service

import (
	"testing"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
)

func namedTools(names ...string) []*tool.AdapterTool {
	tools := make([]*tool.AdapterTool, len(names))
	for i, n := range names {
		tools[i] = &tool.AdapterTool{Name: n}
	}
	return tools
}

func TestMatchOperation(t *testing.T) {
	tools := namedTools(
		"mcp_github_list_issues",
		"mcp_github_create_issue",
		"mcp_github_create_issue_comment",
		"mcp_github_get_repo",
	)
	tests := []struct {
		name      string
		record    string
		operation string
		want      string
		kind      MatchKind
	}{
		{"composed name", "GitHub", "mcp_github_get_repo", "mcp_github_get_repo", MatchExact},
		{"operation composed with record", "GitHub", "Create Issue", "mcp_github_create_issue", MatchExact},
		{"keyword overlap", "GitHub", "issue-list", "mcp_github_list_issues", MatchFuzzy},
		{"tie goes to the shortest name", "GitHub", "create", "mcp_github_create_issue", MatchFuzzy},
		{"best score wins", "GitHub", "create comment", "mcp_github_create_issue_comment", MatchFuzzy},
		{"no keyword matches", "GitHub", "delete_branch", "mcp_github_list_issues", MatchFallback},
		{"empty operation", "GitHub", "", "mcp_github_list_issues", MatchFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, kind := MatchOperation(tools, tt.record, tt.operation)
			if got == nil || got.Name != tt.want || kind != tt.kind {
				t.Errorf("MatchOperation(%q) = %v, %s; want %q, %s", tt.operation, got, kind, tt.want, tt.kind)
			}
		})
	}
}

func TestMatchOperation_NoTools(t *testing.T) {
	got, kind := MatchOperation(nil, "GitHub", "create_issue")
	if got != nil || kind != MatchNone {
		t.Errorf("MatchOperation(nil) = %v, %s", got, kind)
	}
}
