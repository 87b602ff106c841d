package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/semcluster/cmd/semcluster/commands"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/logger"
)

var rootCmd = &cobra.Command{
	Use:   "semcluster",
	Short: "semcluster - group texts by meaning and rank the groups by weight",
	Long: `semcluster - semantic clustering of short texts.

Texts are embedded by a FlagEmbedding-compatible model service (or the local
hashing backend), grouped with HDBSCAN, and the groups are ranked by total weight.

Available commands:
  serve    - Start the HTTP API (/cluster, /embed, /models, /health, /metrics)
  cluster  - Cluster items from a JSON, YAML or text file
  embed    - Print embeddings for texts
  models   - List configured models
  mcp      - Serve clustering tools over MCP (stdio)
  am       - Manage configuration ("I am")
  version  - Show version information

Examples:
  semcluster serve                      # Start the API on server.port
  semcluster cluster -f tickets.yaml    # Cluster a file and print a table
  semcluster am show                    # Show current configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip for commands whose stdout must stay clean of log setup noise
		if cmd.Name() == "show" || cmd.Name() == "version" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		return commands.InitLogging(verbosity)
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Config file (default: the am.toml cascade)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ClusterCmd)
	rootCmd.AddCommand(commands.EmbedCmd)
	rootCmd.AddCommand(commands.ModelsCmd)
	rootCmd.AddCommand(commands.MCPCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err.Error())
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", hint)
		}
		logger.Cleanup()
		os.Exit(1)
	}
}
