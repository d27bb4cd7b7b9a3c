package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/config"
	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/tool"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the composed tools",
	Long: `Build the tool registry from the catalog and print every invocable tool.

REST records are expanded from their OpenAPI documents, so this command
fetches documents exactly like the running server does.

Examples:
  unified-adapter tools
  unified-adapter tools --json`,
	RunE: runTools,
}

var toolsJSON bool

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print tools as JSON with input schemas")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
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

	tools, err := comps.registry.LoadTools(ctx)
	if err != nil {
		return fmt.Errorf("load tools: %w", err)
	}
	if toolsJSON {
		return printToolsJSON(cmd.OutOrStdout(), tools)
	}
	return printTools(cmd.OutOrStdout(), tools)
}

func printTools(w io.Writer, tools []*tool.AdapterTool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tCATALOG\tTARGET")
	for _, t := range tools {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.Kind(), t.CatalogName, target(t))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d tools\n", len(tools))
	return nil
}

type toolJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AdapterType string `json:"adapter_type"`
	Catalog     string `json:"catalog"`
	Target      string `json:"target"`
	InputSchema any    `json:"input_schema"`
}

func printToolsJSON(w io.Writer, tools []*tool.AdapterTool) error {
	out := make([]toolJSON, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolJSON{
			Name:        t.Name,
			Description: t.Description,
			AdapterType: string(t.Kind()),
			Catalog:     t.CatalogName,
			Target:      target(t),
			InputSchema: t.Input.JSONSchema(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// target renders where a tool call goes: "GET /path" or the message method.
func target(t *tool.AdapterTool) string {
	switch {
	case t.REST != nil:
		return strings.ToUpper(t.REST.Method) + " " + t.REST.Path
	case t.Message != nil:
		return t.Message.Method + " @ " + t.Message.Endpoint
	default:
		return ""
	}
}
