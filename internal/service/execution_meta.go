package service

import (
	"maps"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/auth"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/inbound"
)

// tenantMetaKeys are the call metadata keys naming the tenant, in order.
var tenantMetaKeys = []string{"org_id", "tenant_id"}

// ExecutionMetaFrom builds the per-call metadata for an inbound request.
// The tenant is taken from meta ("org_id", then "tenant_id"), falling back
// to the caller's organization. Credentials come from meta["credentials"]
// unless explicit credentials are given.
func ExecutionMetaFrom(meta map[string]any, explicit map[string]any, principal *auth.Principal) inbound.ExecutionMeta {
	out := inbound.ExecutionMeta{}

	for _, key := range tenantMetaKeys {
		if v, ok := meta[key].(string); ok && v != "" {
			out.TenantID = v
			break
		}
	}
	if out.TenantID == "" && principal != nil {
		out.TenantID = principal.OrgID
	}

	switch {
	case len(explicit) > 0:
		out.Credentials = credential.Credentials(maps.Clone(explicit))
	default:
		if m, ok := meta[credentialsField].(map[string]any); ok && len(m) > 0 {
			out.Credentials = credential.Credentials(maps.Clone(m))
		}
	}
	return out
}
