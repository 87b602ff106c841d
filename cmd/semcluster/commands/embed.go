package commands

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/teranos/semcluster/embeddings"
	"github.com/teranos/semcluster/errors"
)

// EmbedCmd prints embeddings for texts given as arguments or in a file
var EmbedCmd = &cobra.Command{
	Use:   "embed [text...]",
	Short: "Print embeddings for texts",
	Long: `Encode texts with a configured model and print the vectors as JSON in the
same shape as POST /embed: {"embeddings": [[...], ...]}.

Examples:
  semcluster embed "refund my order" "reset my password"
  semcluster embed -f lines.txt --model BAAI/bge-small-en-v1.5`,
	RunE: runEmbed,
}

var (
	embedFile  string
	embedModel string
)

func init() {
	EmbedCmd.Flags().StringVarP(&embedFile, "file", "f", "", "Read texts from a .json, .yaml or .txt items file (- for stdin)")
	EmbedCmd.Flags().StringVarP(&embedModel, "model", "m", "", "Embedding model (default: embeddings.default_model)")
}

func runEmbed(cmd *cobra.Command, args []string) error {
	texts := args
	if embedFile != "" {
		items, err := readItemsFile(embedFile, "", cmd.InOrStdin())
		if err != nil {
			return err
		}
		for _, it := range items {
			texts = append(texts, it.Text)
		}
	}
	if len(texts) == 0 {
		return errors.WithHint(
			errors.NewInvalidInputError("no texts to embed"),
			"pass texts as arguments or use -f")
	}

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

	name := embedModel
	if name == "" {
		name = models.Default()
	}
	enc, err := models.Get(name)
	if err != nil {
		return err
	}
	vectors, err := enc.Encode(ctx, texts)
	if err != nil {
		return err
	}

	data, err := json.Marshal(embeddings.EmbedResponse{Embeddings: vectors})
	if err != nil {
		return errors.Wrap(err, "failed to marshal embeddings")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
