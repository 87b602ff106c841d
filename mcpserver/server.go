// Package mcpserver exposes clustering as Model Context Protocol tools over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/teranos/semcluster/cluster"
	"github.com/teranos/semcluster/embeddings"
	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/logger"
	"github.com/teranos/semcluster/version"
)

// Models lists the available embedding models
type Models interface {
	Default() string
	Models() []embeddings.ModelInfo
}

// MCPServer wraps the cluster service and exposes it via Model Context Protocol
type MCPServer struct {
	service *cluster.Service
	models  Models
	server  *server.MCPServer
	logger  *zap.SugaredLogger
}

// NewMCPServer creates an MCP server with the clustering tools registered
func NewMCPServer(service *cluster.Service, models Models, log *zap.SugaredLogger) *MCPServer {
	if log == nil {
		log = logger.ComponentLogger("mcp")
	}
	s := &MCPServer{
		service: service,
		models:  models,
		logger:  log,
	}

	s.server = server.NewMCPServer(
		"semcluster",
		version.Get().Version,
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	clusterTool := mcp.NewTool("cluster_texts",
		mcp.WithDescription("Group texts by meaning with HDBSCAN and rank the groups by total weight. "+
			"Texts that fit no group are returned as noise."),
		mcp.WithArray("texts",
			mcp.Required(),
			mcp.Description("Texts to cluster"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("weights",
			mcp.Description("Non-negative weight per text, same length as texts (default: all 1)"),
			mcp.Items(map[string]any{"type": "number"}),
		),
		mcp.WithString("model",
			mcp.Description("Embedding model (default: the server's default model)"),
		),
		mcp.WithNumber("min_cluster_size",
			mcp.Description("Smallest group that counts as a cluster, at least 2"),
		),
		mcp.WithNumber("min_samples",
			mcp.Description("Neighbourhood size for density estimates (default: min_cluster_size)"),
		),
		mcp.WithString("metric",
			mcp.Description("Distance metric"),
			mcp.Enum("euclidean", "manhattan", "chebyshev", "cosine"),
		),
		mcp.WithNumber("cluster_selection_epsilon",
			mcp.Description("Merge clusters that split below this distance (default: 0)"),
		),
		mcp.WithNumber("alpha",
			mcp.Description("Distance scaling for mutual reachability (default: 1)"),
		),
	)
	s.server.AddTool(clusterTool, s.handleClusterTexts)

	modelsTool := mcp.NewTool("list_models",
		mcp.WithDescription("List the embedding models available for clustering"),
	)
	s.server.AddTool(modelsTool, s.handleListModels)
}

// handleClusterTexts handles cluster_texts tool calls
func (s *MCPServer) handleClusterTexts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req cluster.Request
	if err := request.BindArguments(&req); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	resp, err := s.service.Cluster(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(toolError(err)), nil
	}

	raw, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode cluster result")
	}
	return mcp.NewToolResultText(summarize(resp) + "\n" + string(raw)), nil
}

// handleListModels handles list_models tool calls
func (s *MCPServer) handleListModels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	models := s.models.Models()
	if len(models) == 0 {
		return mcp.NewToolResultText("No models loaded"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d model(s) loaded:\n", len(models))
	for _, m := range models {
		marker := ""
		if m.Name == s.models.Default() {
			marker = " (default)"
		}
		fmt.Fprintf(&b, "  - %s [%s", m.Name, m.Backend)
		if m.Dimensions > 0 {
			fmt.Fprintf(&b, ", %d dims", m.Dimensions)
		}
		fmt.Fprintf(&b, "]%s\n", marker)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// summarize is the human-readable headline of a result
func summarize(resp *cluster.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d cluster(s) in %d text(s), %d noise.\n",
		resp.TotalClusters, resp.TotalItems, resp.NoiseCount)
	for i, g := range resp.Clusters {
		fmt.Fprintf(&b, "%d. cluster %d: %d item(s), total weight %d, e.g. %q\n",
			i+1, g.ClusterID, g.Size, g.TotalWeight, g.Items[0].Text)
	}
	return b.String()
}

// toolError renders err with its kind and hints for the calling model
func toolError(err error) string {
	msg := fmt.Sprintf("%s: %v", errors.Kind(err), err)
	if hints := errors.FlattenHints(err); hints != "" {
		msg += "\nhint: " + hints
	}
	return msg
}

// Serve starts the MCP server using stdio transport
func (s *MCPServer) Serve() error {
	s.logger.Infow("MCP server listening on stdio", "default_model", s.models.Default())
	return server.ServeStdio(s.server)
}
