package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/shoprank/internal/search"
	"github.com/kalambet/shoprank/internal/storage"
)

// MCPStore is the slice of storage the MCP resources need.
type MCPStore interface {
	GetActiveWeights() (storage.RankingWeights, error)
	ListEvaluationMetrics(limit int) ([]storage.EvaluationMetric, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Search *search.Service
	Store  MCPStore
}

// NewMCPServer creates an MCP server with all shoprank tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"shoprank",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("shoprank — explainable weighted product search over the catalog."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("search_products",
			mcp.WithDescription("Search the product catalog and return ranked results with per-factor score explanations."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchProducts(deps),
	)

	s.AddTool(
		mcp.NewTool("record_interaction",
			mcp.WithDescription("Record a user interaction with a product (view, click, search_click, add_to_cart, purchase)."),
			mcp.WithString("session_id", mcp.Description("Client session identifier"), mcp.Required()),
			mcp.WithString("product_id", mcp.Description("Product the interaction targets"), mcp.Required()),
			mcp.WithString("kind", mcp.Description("Interaction kind"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query the interaction followed, if any")),
			mcp.WithNumber("position", mcp.Description("1-based result position, if known")),
		),
		mcpRecordInteraction(deps),
	)

	s.AddTool(
		mcp.NewTool("run_evaluation",
			mcp.WithDescription("Run the offline ranking evaluation over logged searches and return the computed metrics."),
			mcp.WithString("notes", mcp.Description("Optional notes recorded on the metric rows")),
		),
		mcpRunEvaluation(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"ranking://weights/active",
			"Active Ranking Weights",
			mcp.WithResourceDescription("The currently active scoring weight configuration as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceActiveWeights(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"ranking://metrics/recent",
			"Recent Evaluation Metrics",
			mcp.WithResourceDescription("The most recent evaluation metric rows as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentMetrics(deps),
	)

	return s
}

func mcpSearchProducts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		resp, err := deps.Search.Search(ctx, search.Request{Query: query, TopK: limit})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		type productResult struct {
			ID           string   `json:"id"`
			Title        string   `json:"title"`
			Brand        string   `json:"brand,omitempty"`
			Price        string   `json:"price"`
			Position     int      `json:"position"`
			Score        float64  `json:"score"`
			MatchedTerms []string `json:"matched_terms,omitempty"`
			Explanation  string   `json:"explanation"`
		}

		results := make([]productResult, len(resp.Results))
		for i, r := range resp.Results {
			results[i] = productResult{
				ID:           r.Product.ID,
				Title:        r.Product.Title,
				Brand:        r.Product.Brand,
				Price:        r.Product.Price.String(),
				Position:     r.Position,
				Score:        r.Score,
				MatchedTerms: r.MatchedTerms,
				Explanation:  r.Explanation,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecordInteraction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		productID, err := req.RequireString("product_id")
		if err != nil {
			return mcpError("product_id is required"), nil
		}
		kind, err := req.RequireString("kind")
		if err != nil {
			return mcpError("kind is required"), nil
		}

		err = deps.Search.RecordInteraction(search.Interaction{
			SessionID: sessionID,
			ProductID: productID,
			Kind:      kind,
			Query:     req.GetString("query", ""),
			Position:  req.GetInt("position", 0),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to record interaction: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Recorded %s on %s", kind, productID)), nil
	}
}

func mcpRunEvaluation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		notes := req.GetString("notes", "")

		metrics, err := deps.Search.RunEvaluation(notes)
		if err != nil {
			return mcpError(fmt.Sprintf("evaluation failed: %v", err)), nil
		}
		if len(metrics) == 0 {
			return mcpText("No search logs recorded yet; nothing to evaluate."), nil
		}

		b, err := json.Marshal(metricResponses(metrics))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal metrics: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceActiveWeights(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		weights, err := deps.Store.GetActiveWeights()
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no active weights configured")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load active weights: %w", err)
		}

		b, err := json.Marshal(weights)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal weights: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecentMetrics(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		metrics, err := deps.Store.ListEvaluationMetrics(20)
		if err != nil {
			return nil, fmt.Errorf("failed to load metrics: %w", err)
		}

		type metricSummary struct {
			Kind       string  `json:"kind"`
			Value      float64 `json:"value"`
			QueryCount int     `json:"query_count"`
			CreatedAt  string  `json:"created_at"`
		}

		summaries := make([]metricSummary, len(metrics))
		for i, m := range metrics {
			summaries[i] = metricSummary{
				Kind:       m.Kind,
				Value:      m.Value,
				QueryCount: m.QueryCount,
				CreatedAt:  m.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metrics: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
