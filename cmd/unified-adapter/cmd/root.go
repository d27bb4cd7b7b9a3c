// Package cmd provides the CLI commands for the unified adapter.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "unified-adapter",
	Short: "Automatos Unified Integrations Adapter",
	Long: `The unified adapter turns catalog tool definitions into invocable tools.

REST tools are built from OpenAPI documents, MCP tools forward JSON-RPC
calls to a remote server. Tools are served over MCP (streamable HTTP or
stdio) and through a JSON admin API.

Configuration:
  Config is loaded from unified-adapter.yaml in the current directory,
  $HOME/.unified-adapter/, or /etc/unified-adapter/.

  Environment variables override config values with the UNIFIED_ADAPTER_
  prefix, e.g. UNIFIED_ADAPTER_SERVER_HTTP_ADDR=:9090. The legacy names
  AUTOMATOS_API_BASE_URL, ADAPTER_AUTH_TOKEN, ... are also read.

Commands:
  start       Start the adapter
  import      Import catalog entries into the tool store
  tools       Print the composed tools
  hash-token  Hash a static auth token
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./unified-adapter.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// newLogger writes to stderr; stdout is reserved for the MCP stream in
// stdio mode.
func newLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
