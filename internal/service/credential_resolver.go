package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/credential"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/outbound"
)

// CredentialRequest carries the per-call inputs to credential resolution.
type CredentialRequest struct {
	// Credentials are secrets supplied by the caller.
	Credentials credential.Credentials
	// TenantID selects hosted credentials.
	TenantID string
}

// CredentialMode returns the mode a call resolves under. Caller-supplied
// credentials always select BYO; otherwise the tool's mode applies, with
// an unset mode treated as legacy.
func CredentialMode(t *tool.AdapterTool, req CredentialRequest) catalog.CredentialMode {
	if !req.Credentials.Empty() {
		return catalog.CredentialModeBYO
	}
	switch t.CredentialMode {
	case catalog.CredentialModeHosted, catalog.CredentialModeBYO:
		return t.CredentialMode
	default:
		return catalog.CredentialModeLegacy
	}
}

// CredentialResolver resolves the secrets for one tool call.
type CredentialResolver struct {
	upstream outbound.UpstreamClient
	logger   *slog.Logger
}

// NewCredentialResolver creates a CredentialResolver.
func NewCredentialResolver(upstream outbound.UpstreamClient, logger *slog.Logger) *CredentialResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialResolver{upstream: upstream, logger: logger}
}

// Resolve returns the credentials for calling t. A tool without a
// credential reference and without an auth type resolves to nil
// credentials under legacy mode.
func (r *CredentialResolver) Resolve(ctx context.Context, t *tool.AdapterTool, req CredentialRequest) (credential.Credentials, error) {
	mode := CredentialMode(t, req)
	switch mode {
	case catalog.CredentialModeBYO:
		if req.Credentials.Empty() {
			return nil, fmt.Errorf("missing credentials for BYO tool call %s: %w", t.Name, credential.ErrCredentialsNotFound)
		}
		return maps.Clone(req.Credentials), nil
	case catalog.CredentialModeHosted:
		if req.TenantID == "" {
			if t.HasCredentialReference() {
				r.logger.Debug("no tenant for hosted tool, using credential reference", "tool", t.Name)
				return r.resolveLegacy(ctx, t)
			}
			return nil, fmt.Errorf("hosted credentials for tool %s require a tenant id: %w", t.Name, credential.ErrCredentialsNotFound)
		}
		return r.resolveHosted(ctx, t, req.TenantID)
	default:
		return r.resolveLegacy(ctx, t)
	}
}

func (r *CredentialResolver) resolveHosted(ctx context.Context, t *tool.AdapterTool, tenantID string) (credential.Credentials, error) {
	provider := tool.ProviderKey(t.Name)
	creds, err := r.upstream.ResolveToolCredential(ctx, tenantID, provider)
	if err != nil {
		return nil, fmt.Errorf("resolve hosted credentials for tool %s: %w", t.Name, err)
	}
	if creds.Empty() {
		return nil, fmt.Errorf("no hosted credentials for tool %s and tenant %s: %w", t.Name, tenantID, credential.ErrCredentialsNotFound)
	}
	return creds, nil
}

func (r *CredentialResolver) resolveLegacy(ctx context.Context, t *tool.AdapterTool) (credential.Credentials, error) {
	ref := t.Credential
	if ref.Environment == "" {
		ref.Environment = catalog.DefaultEnvironment
	}

	switch {
	case ref.ID != nil || ref.Name != "":
		return r.resolveStored(ctx, t, credential.Reference{ID: ref.ID, Name: ref.Name, Environment: ref.Environment})

	case ref.Type != "":
		typeID, err := r.upstream.GetCredentialTypeID(ctx, ref.Type)
		if err != nil {
			return nil, fmt.Errorf("look up credential type %q: %w", ref.Type, err)
		}
		if typeID == nil {
			return nil, fmt.Errorf("credential type %q not found for tool %s: %w", ref.Type, t.Name, credential.ErrCredentialsNotFound)
		}
		stored, err := r.upstream.ListCredentials(ctx, *typeID, ref.Environment)
		if err != nil {
			return nil, fmt.Errorf("list credentials of type %q: %w", ref.Type, err)
		}
		if len(stored) == 0 || stored[0].Name == "" {
			return nil, fmt.Errorf("no stored credentials of type %q in %s for tool %s: %w",
				ref.Type, ref.Environment, t.Name, credential.ErrCredentialsNotFound)
		}
		return r.resolveStored(ctx, t, credential.Reference{Name: stored[0].Name, Environment: ref.Environment})

	case t.Auth.Type == "":
		return nil, nil

	default:
		return nil, fmt.Errorf("hosted credential reference missing for tool %s: %w", t.Name, credential.ErrCredentialsNotFound)
	}
}

func (r *CredentialResolver) resolveStored(ctx context.Context, t *tool.AdapterTool, ref credential.Reference) (credential.Credentials, error) {
	creds, err := r.upstream.ResolveCredential(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("resolve stored credential for tool %s: %w", t.Name, err)
	}
	if creds.Empty() {
		return nil, fmt.Errorf("hosted credential not found for tool %s: %w", t.Name, credential.ErrCredentialsNotFound)
	}
	return creds, nil
}
