package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/config"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/port/outbound"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/service"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import catalog entries into the tool store",
	Long: `Import catalog entries from the upstream API, or from a seed file, into
the configured tool store.

Each entry becomes a catalog record: adapter_type is mcp when the entry
has an MCP server URL, enabled follows status == "active", and OpenAPI
settings are read from the entry's metadata.

Examples:
  # Import everything from the upstream API
  unified-adapter import

  # Import a seed file as BYO tools, skipping names already present
  unified-adapter import --seed tools.json --credential-mode byo --skip-existing

  # Import entries 100-149
  unified-adapter import --offset 100 --limit 50`,
	RunE: runImport,
}

var importFlags struct {
	seed           string
	status         string
	credentialMode string
	offset         int
	limit          int
	skipExisting   bool
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.seed, "seed", "", "JSON or YAML seed file (default: import.seed_path, else the upstream API)")
	f.StringVar(&importFlags.status, "status", "", "only import upstream entries with this status")
	f.StringVar(&importFlags.credentialMode, "credential-mode", "", "credential mode for imported tools: hosted or byo (default: import.credential_mode)")
	f.IntVar(&importFlags.offset, "offset", 0, "skip the first N entries")
	f.IntVar(&importFlags.limit, "limit", 0, "import at most N entries (0 = all)")
	f.BoolVar(&importFlags.skipExisting, "skip-existing", false, "skip entries whose name is already in the catalog")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	seed := importFlags.seed
	if seed == "" {
		seed = cfg.Import.SeedPath
	}
	mode := importFlags.credentialMode
	if mode == "" {
		mode = cfg.Import.CredentialMode
	}

	entries, source, err := loadEntries(ctx, seed, importFlags.status, comps.upstream)
	if err != nil {
		return err
	}
	logger.Info("catalog entries loaded", "count", len(entries), "source", source)

	importer := service.NewCatalogImporter(comps.store, logger)
	res, err := importer.Import(ctx, entries, service.ImportOptions{
		CredentialMode: catalog.CredentialMode(mode),
		Offset:         importFlags.offset,
		Limit:          importFlags.limit,
		SkipExisting:   importFlags.skipExisting,
		Source:         source,
	})
	if err != nil {
		return err
	}
	printImportResult(cmd.OutOrStdout(), res)
	return nil
}

// loadEntries reads the seed file when set, otherwise lists the upstream
// catalog.
func loadEntries(ctx context.Context, seed, status string, upstream outbound.UpstreamClient) ([]outbound.CatalogEntry, string, error) {
	if seed != "" {
		entries, err := service.LoadSeedFile(seed)
		if err != nil {
			return nil, "", fmt.Errorf("load seed file: %w", err)
		}
		return entries, service.ImportSourceSeed, nil
	}
	entries, err := upstream.ListCatalogTools(ctx, status)
	if err != nil {
		return nil, "", fmt.Errorf("list upstream catalog: %w", err)
	}
	return entries, service.ImportSourceUpstream, nil
}

func printImportResult(w io.Writer, res service.ImportResult) {
	fmt.Fprintf(w, "Considered: %d\n", res.Considered)
	fmt.Fprintf(w, "Created:    %d\n", res.Created)
	fmt.Fprintf(w, "Skipped:    %d\n", res.Skipped)
	fmt.Fprintf(w, "Failed:     %d\n", res.Failed)
}
