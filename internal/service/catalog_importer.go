package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/outbound"
)

// importProgressEvery controls how often import progress is logged.
const importProgressEvery = 50

// ImportSourceSeed and ImportSourceUpstream tag imported records in metadata.
const (
	ImportSourceSeed     = "automatos_seed"
	ImportSourceUpstream = "automatos_api"
)

// ImportOptions controls a bulk import.
type ImportOptions struct {
	// CredentialMode is assigned to every imported record.
	CredentialMode catalog.CredentialMode
	// Offset skips the first entries.
	Offset int
	// Limit caps the number of entries considered; 0 means all.
	Limit int
	// SkipExisting skips entries whose name is already in the catalog.
	SkipExisting bool
	// Source is recorded in each record's metadata.
	Source string
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Considered int
	Created    int
	Skipped    int
	Failed     int
}

// CatalogImporter copies catalog entries into the tool store.
type CatalogImporter struct {
	store  catalog.ToolStore
	logger *slog.Logger
}

// NewCatalogImporter creates a CatalogImporter.
func NewCatalogImporter(store catalog.ToolStore, logger *slog.Logger) *CatalogImporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogImporter{store: store, logger: logger}
}

// Import creates a record for each entry in the window selected by
// opts. Entries without a name are ignored. A record that fails to
// create is counted and logged; the import continues.
func (i *CatalogImporter) Import(ctx context.Context, entries []outbound.CatalogEntry, opts ImportOptions) (ImportResult, error) {
	mode := opts.CredentialMode
	if mode == "" {
		mode = catalog.CredentialModeHosted
	}
	if mode != catalog.CredentialModeHosted && mode != catalog.CredentialModeBYO {
		return ImportResult{}, fmt.Errorf("credential mode must be hosted or byo (got %q)", mode)
	}

	entries = window(entries, opts.Offset, opts.Limit)

	existing := make(map[string]struct{})
	if opts.SkipExisting {
		records, err := i.store.List(ctx, false)
		if err != nil {
			return ImportResult{}, fmt.Errorf("list existing tools: %w", err)
		}
		for _, r := range records {
			existing[r.Name] = struct{}{}
		}
	}

	var res ImportResult
	for n, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if (n+1)%importProgressEvery == 0 {
			i.logger.Info("import progress", "processed", n+1, "total", len(entries))
		}

		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		res.Considered++
		if _, ok := existing[name]; ok && opts.SkipExisting {
			res.Skipped++
			continue
		}

		record := RecordFromEntry(entry, mode, opts.Source)
		if _, err := i.store.Create(ctx, record); err != nil {
			if errors.Is(err, catalog.ErrDuplicateToolName) {
				res.Skipped++
				continue
			}
			res.Failed++
			i.logger.Warn("failed to import tool", "tool", name, "error", err)
			continue
		}
		res.Created++
		existing[name] = struct{}{}
	}

	i.logger.Info("import finished",
		"created", res.Created, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func window(entries []outbound.CatalogEntry, offset, limit int) []outbound.CatalogEntry {
	if offset > 0 {
		if offset >= len(entries) {
			return nil
		}
		entries = entries[offset:]
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}

// RecordFromEntry maps a catalog entry onto a new tool record. Entries
// with an mcp_server_url become message tools; REST connectivity comes
// from the entry's metadata.
func RecordFromEntry(entry outbound.CatalogEntry, mode catalog.CredentialMode, source string) *catalog.ToolRecord {
	metadata := maps.Clone(entry.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	if source != "" {
		metadata["source"] = source
	}
	if entry.Capabilities != nil {
		metadata["capabilities"] = entry.Capabilities
	}
	if entry.CredentialsSchema != nil {
		metadata["credentials_schema"] = entry.CredentialsSchema
	}
	if entry.Logo != "" {
		metadata["logo"] = entry.Logo
	}

	adapterType := catalog.AdapterTypeREST
	if entry.MCPServerURL != "" {
		adapterType = catalog.AdapterTypeMCP
	}

	record := &catalog.ToolRecord{
		Name:                  strings.TrimSpace(entry.Name),
		Description:           entry.Description,
		Provider:              entry.Provider,
		Category:              entry.Category,
		AdapterType:           adapterType,
		Enabled:               entry.Status == "active",
		MCPServerURL:          entry.MCPServerURL,
		OpenAPIURL:            stringValue(metadata["openapi_url"]),
		BaseURL:               stringValue(metadata["base_url"]),
		OperationIDs:          stringList(metadata["operation_ids"]),
		AuthConfig:            authConfigValue(metadata["auth_config"]),
		Tags:                  append([]string{}, entry.Tags...),
		CredentialMode:        mode,
		CredentialEnvironment: catalog.DefaultEnvironment,
		Metadata:              metadata,
	}
	record.ApplyDefaults()
	return record
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string{}, t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

func authConfigValue(v any) catalog.AuthConfig {
	var cfg catalog.AuthConfig
	if v == nil {
		return cfg
	}
	data, err := json.Marshal(v)
	if err != nil {
		return cfg
	}
	_ = json.Unmarshal(data, &cfg)
	return cfg
}

// LoadSeedFile reads catalog entries from a JSON or YAML file holding a
// list of entries, or an object with the list under "data" or "tools".
func LoadSeedFile(path string) ([]outbound.CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var list []outbound.CatalogEntry
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Data  []outbound.CatalogEntry `yaml:"data"`
		Tools []outbound.CatalogEntry `yaml:"tools"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return wrapped.Tools, nil
}
