package commands

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/cluster"
	"github.com/teranos/semcluster/display"
	"github.com/teranos/semcluster/errors"
)

// ClusterCmd clusters items read from a file
var ClusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster items from a JSON, YAML or text file",
	Long: `Cluster items from a file and print the ranked groups.

Accepted inputs:
  .json / .yaml   a list of items, or {"items": [...]}; each item has
                  text, optional weight and optional vector
  .txt            one text per line, weight 1

When every item carries a vector the embedding backend is not contacted.
Use -f - to read from stdin (--input-format picks the parser).

Examples:
  semcluster cluster -f tickets.yaml
  semcluster cluster -f tickets.json --min-cluster-size 3 --metric cosine -o json
  cat lines.txt | semcluster cluster -f - --input-format txt`,
	RunE: runCluster,
}

var (
	clusterFile           string
	clusterInputFormat    string
	clusterOutput         string
	clusterModel          string
	clusterSample         int
	clusterMinClusterSize int
	clusterMinSamples     int
	clusterMetric         string
	clusterEpsilon        float64
	clusterAlpha          float64
)

func init() {
	ClusterCmd.Flags().StringVarP(&clusterFile, "file", "f", "", "Input file, - for stdin (required)")
	ClusterCmd.Flags().StringVar(&clusterInputFormat, "input-format", "", "Input format: json, yaml, txt (default: from extension)")
	ClusterCmd.Flags().StringVarP(&clusterOutput, "output", "o", "table", "Output format: table, json, yaml")
	ClusterCmd.Flags().StringVarP(&clusterModel, "model", "m", "", "Embedding model (default: embeddings.default_model)")
	ClusterCmd.Flags().IntVar(&clusterSample, "sample", 3, "Texts shown per cluster in table output")
	ClusterCmd.Flags().IntVar(&clusterMinClusterSize, "min-cluster-size", 0, "Smallest group that counts as a cluster")
	ClusterCmd.Flags().IntVar(&clusterMinSamples, "min-samples", 0, "Neighbourhood size for core distances")
	ClusterCmd.Flags().StringVar(&clusterMetric, "metric", "", "Distance metric: euclidean, manhattan, chebyshev, cosine")
	ClusterCmd.Flags().Float64Var(&clusterEpsilon, "epsilon", 0, "cluster_selection_epsilon")
	ClusterCmd.Flags().Float64Var(&clusterAlpha, "alpha", 0, "Distance scaling for mutual reachability")
	_ = ClusterCmd.MarkFlagRequired("file")
}

// Item is one input row of the cluster command
type Item struct {
	Text   string    `json:"text" yaml:"text"`
	Weight *int64    `json:"weight,omitempty" yaml:"weight,omitempty"`
	Vector []float32 `json:"vector,omitempty" yaml:"vector,omitempty"`
}

type itemsFile struct {
	Items []Item `json:"items" yaml:"items"`
}

func runCluster(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	items, err := readItemsFile(clusterFile, clusterInputFormat, cmd.InOrStdin())
	if err != nil {
		return err
	}

	opts := clusterOptionsFromFlags(cmd)
	ctx, cancel := signalContext()
	defer cancel()

	resp, err := clusterItems(ctx, cfg, items, clusterModel, opts)
	if err != nil {
		return err
	}
	return renderResult(cmd.OutOrStdout(), resp, clusterOutput, clusterSample)
}

// clusterOptionsFromFlags turns the flags the user actually set into overrides
func clusterOptionsFromFlags(cmd *cobra.Command) cluster.Options {
	var opts cluster.Options
	flags := cmd.Flags()
	if flags.Changed("min-cluster-size") {
		v := clusterMinClusterSize
		opts.MinClusterSize = &v
	}
	if flags.Changed("min-samples") {
		v := clusterMinSamples
		opts.MinSamples = &v
	}
	if flags.Changed("epsilon") {
		v := clusterEpsilon
		opts.ClusterSelectionEpsilon = &v
	}
	if flags.Changed("alpha") {
		v := clusterAlpha
		opts.Alpha = &v
	}
	opts.Metric = clusterMetric
	return opts
}

// readItemsFile reads path ("-" for r) and parses it by format or extension
func readItemsFile(path, format string, r io.Reader) ([]Item, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(r)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	items, err := parseItems(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return items, nil
}

// parseItems decodes items in json, yaml (yml) or txt format
func parseItems(data []byte, format string) ([]Item, error) {
	switch format {
	case "json":
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var items []Item
			if err := json.Unmarshal(trimmed, &items); err != nil {
				return nil, errors.Wrap(err, "invalid JSON item list")
			}
			return items, nil
		}
		var f itemsFile
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, errors.Wrap(err, "invalid JSON items file")
		}
		return f.Items, nil

	case "yaml", "yml":
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrap(err, "invalid YAML")
		}
		if len(doc.Content) == 0 {
			return nil, nil
		}
		root := doc.Content[0]
		if root.Kind == yaml.SequenceNode {
			var items []Item
			if err := root.Decode(&items); err != nil {
				return nil, errors.Wrap(err, "invalid YAML item list")
			}
			return items, nil
		}
		var f itemsFile
		if err := root.Decode(&f); err != nil {
			return nil, errors.Wrap(err, "invalid YAML items file")
		}
		return f.Items, nil

	case "txt", "text":
		var items []Item
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				items = append(items, Item{Text: line})
			}
		}
		return items, errors.Wrap(scanner.Err(), "read lines")

	default:
		return nil, errors.WithHint(
			errors.NewInvalidInputError("unsupported input format %q", format),
			"use a .json, .yaml or .txt file, or pass --input-format")
	}
}

// splitItems separates texts, weights and vectors. Weights are nil when no
// item sets one; vectors are nil when no item has one. Mixing items with
// and without vectors is invalid.
func splitItems(items []Item) (texts []string, weights []int64, vectors [][]float32, err error) {
	texts = make([]string, len(items))
	withVector := 0
	withWeight := false
	for i, it := range items {
		texts[i] = it.Text
		if len(it.Vector) > 0 {
			withVector++
		}
		if it.Weight != nil {
			withWeight = true
		}
	}
	if withVector > 0 && withVector != len(items) {
		return nil, nil, nil, errors.WithHint(
			errors.NewInvalidInputError("%d of %d items carry a vector", withVector, len(items)),
			"give every item a vector, or none to embed the texts")
	}

	if withWeight {
		weights = make([]int64, len(items))
		for i, it := range items {
			weights[i] = 1
			if it.Weight != nil {
				weights[i] = *it.Weight
			}
		}
	}
	if withVector > 0 {
		vectors = make([][]float32, len(items))
		for i, it := range items {
			vectors[i] = it.Vector
		}
	}
	return texts, weights, vectors, nil
}

// clusterItems runs items through the pipeline. Items with vectors skip the
// embedding backend entirely.
func clusterItems(ctx context.Context, cfg *am.Config, items []Item, model string, opts cluster.Options) (*cluster.Response, error) {
	texts, weights, vectors, err := splitItems(items)
	if err != nil {
		return nil, err
	}

	if vectors != nil {
		svc, err := newService(cfg, nil, nil)
		if err != nil {
			return nil, err
		}
		return svc.ClusterVectors(ctx, cluster.VectorsRequest{
			Texts:   texts,
			Vectors: vectors,
			Weights: weights,
			Options: opts,
		})
	}

	models, err := openModels(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load models")
	}
	defer models.Close()

	svc, err := newService(cfg, models, nil)
	if err != nil {
		return nil, err
	}
	return svc.Cluster(ctx, cluster.Request{
		Texts:   texts,
		Weights: weights,
		Model:   model,
		Options: opts,
	})
}

// renderResult writes resp as a table, JSON or YAML
func renderResult(w io.Writer, resp *cluster.Response, format string, sample int) error {
	switch format {
	case display.FormatJSON:
		return display.WriteJSON(w, resp)
	case display.FormatYAML:
		return display.WriteYAML(w, resp, "")
	case display.FormatTable, "":
		return renderTable(w, resp, sample)
	default:
		return display.UnsupportedFormat(format, display.FormatTable, display.FormatJSON, display.FormatYAML)
	}
}

func renderTable(w io.Writer, resp *cluster.Response, sample int) error {
	fmt.Fprintf(w, "%d cluster(s), %d clustered, %d noise, %d item(s), total weight %d\n\n",
		resp.TotalClusters, resp.ClusteredCount, resp.NoiseCount, resp.TotalItems, resp.TotalWeight)

	if len(resp.Clusters) > 0 {
		rows := [][]string{{"Rank", "Cluster", "Size", "Total", "Avg", "Max", "Texts"}}
		for i, g := range resp.Clusters {
			rows = append(rows, []string{
				fmt.Sprint(i + 1),
				fmt.Sprint(g.ClusterID),
				fmt.Sprint(g.Size),
				fmt.Sprint(g.TotalWeight),
				fmt.Sprintf("%.2f", g.AvgWeight),
				fmt.Sprint(g.MaxWeight),
				sampleTexts(g.Texts(), sample),
			})
		}
		if err := display.WriteTable(w, rows); err != nil {
			return err
		}
	}

	if resp.NoiseCount > 0 {
		fmt.Fprintf(w, "\nnoise: %s\n", sampleTexts(resp.Noise.Texts, sample))
	}
	return nil
}

// sampleTexts joins the first n texts, noting how many were left out
func sampleTexts(texts []string, n int) string {
	if n <= 0 || n > len(texts) {
		n = len(texts)
	}
	shown := make([]string, n)
	for i := range shown {
		shown[i] = display.Truncate(texts[i], 40)
	}
	out := strings.Join(shown, " | ")
	if rest := len(texts) - n; rest > 0 {
		out += fmt.Sprintf(" (+%d more)", rest)
	}
	return out
}
