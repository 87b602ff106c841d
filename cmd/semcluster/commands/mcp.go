package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/logger"
	"github.com/teranos/semcluster/mcpserver"
)

// MCPCmd serves the clustering tools over MCP on stdio
var MCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve clustering tools over the Model Context Protocol (stdio)",
	Long: `Run an MCP server on stdin/stdout exposing the cluster_texts and list_models
tools. Logs go to stderr; nothing else is written to stdout.

Example client configuration:
  {"command": "semcluster", "args": ["mcp"]}`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	models, err := openModels(ctx, cfg)
	cancel()
	if err != nil {
		return errors.Wrap(err, "failed to load models")
	}
	defer models.Close()

	svc, err := newService(cfg, models, nil)
	if err != nil {
		return err
	}

	logger.Infow("MCP server starting on stdio", "models", models.Names())
	return mcpserver.NewMCPServer(svc, models, logger.ComponentLogger("mcp")).Serve()
}
