package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine/memory"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/mcpbridge"
)

func newMCPCmd(a *app) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the analysis engine to MCP clients on stdio",
		Long: `Runs an MCP server on stdin/stdout for AI tools.

MCP Tools:
  open_document   Load or reload a file into the engine
  hover           Describe the identifier at a position
  definition      Find where the identifier at a position is defined
  references      Find every occurrence of the identifier at a position
  diagnostics     Report the problems in a file`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if root == "" {
				if root, err = os.Getwd(); err != nil {
					return err
				}
			}

			b := mcpbridge.New(memory.New(cfg.MemoryEngine(), logger), "valkyrie-lsp", version, logger)
			if err := b.Initialize(cmd.Context(), root); err != nil {
				return err
			}
			defer func() {
				if err := b.Close(context.Background()); err != nil {
					logger.Warn("Engine shutdown failed", zap.Error(err))
				}
			}()

			logger.Info("Serving MCP", zap.String("root", root))
			return b.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Workspace root (default: working directory)")
	return cmd
}
