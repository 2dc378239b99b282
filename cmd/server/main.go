// twitter-mcp - MCP tool server for posting, searching, liking and
// retweeting on Twitter (X).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/twitter-mcp/internal/config"
)

var version = "dev" // set via ldflags at build time

type flags struct {
	configFile string
	port       string
	transports []string
	stateless  bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "twitter-mcp",
		Short:         "MCP server exposing Twitter tools",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil {
				slog.Info("No .env file found, using environment variables")
			}
			if f.configFile != "" {
				if err := os.Setenv("CONFIG_FILE", f.configFile); err != nil {
					return fmt.Errorf("set config file: %w", err)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = f.port
			}
			if cmd.Flags().Changed("transports") {
				cfg.Transports = f.transports
			}
			if cmd.Flags().Changed("stateless") {
				cfg.Stateless = f.stateless
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&f.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.Flags().StringVar(&f.port, "port", "", "HTTP listen port (overrides PORT)")
	cmd.Flags().StringSliceVar(&f.transports, "transports", nil, "enabled transports: streamable, sse, websocket")
	cmd.Flags().BoolVar(&f.stateless, "stateless", false, "serve /mcp without sessions")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
