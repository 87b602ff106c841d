package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teranos/semcluster/display"
	"github.com/teranos/semcluster/embeddings"
	"github.com/teranos/semcluster/errors"
)

// ModelsCmd lists the configured models after checking them against the backend
var ModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured embedding models",
	Long: `Initialise every configured model against the embedding backend and list
them with their dimensions. Fails when a model is not loaded by the backend.`,
	RunE: runModels,
}

var modelsJSON bool

func init() {
	ModelsCmd.Flags().BoolVarP(&modelsJSON, "json", "j", false, "Output as JSON")
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	models, err := openModels(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to load models")
	}
	defer models.Close()

	return renderModels(cmd.OutOrStdout(), models.Default(), models.Models(), modelsJSON)
}

func renderModels(w io.Writer, def string, infos []embeddings.ModelInfo, asJSON bool) error {
	if asJSON {
		return display.WriteJSON(w, struct {
			DefaultModel string                 `json:"default_model"`
			Models       []embeddings.ModelInfo `json:"models"`
		}{def, infos})
	}

	rows := [][]string{{"Model", "Backend", "Dimensions", "Default"}}
	for _, info := range infos {
		mark := ""
		if info.Name == def {
			mark = "✓"
		}
		rows = append(rows, []string{info.Name, info.Backend, fmt.Sprint(info.Dimensions), mark})
	}
	return display.WriteTable(w, rows)
}
