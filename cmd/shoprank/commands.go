package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/shoprank/internal/config"
	"github.com/kalambet/shoprank/internal/ingest"
	"github.com/kalambet/shoprank/internal/storage"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the product catalog",
	Long: `Search the product catalog with the active ranking weights.

Examples:
  shoprank search red leather wallet
  shoprank search running shoes --category footwear --limit 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")
		session, _ := cmd.Flags().GetString("session")
		category, _ := cmd.Flags().GetString("category")
		brand, _ := cmd.Flags().GetString("brand")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{
			"query": query,
			"top_k": limit,
		}
		if session != "" {
			body["session_id"] = session
		}
		if category != "" || brand != "" {
			body["filters"] = map[string]any{
				"category": category,
				"brand":    brand,
			}
		}

		resp, err := client.post(cmd.Context(), "/v1/search", body)
		if err != nil {
			return err
		}

		var result struct {
			LogID     string `json:"log_id"`
			LatencyMs int64  `json:"latency_ms"`
			Results   []struct {
				Product struct {
					ID    string `json:"ID"`
					Title string `json:"Title"`
					Brand string `json:"Brand"`
				} `json:"product"`
				Position     int      `json:"position"`
				Score        float64  `json:"score"`
				MatchedTerms []string `json:"matched_terms"`
				Explanation  string   `json:"explanation"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for _, r := range result.Results {
			printRankedResult(r.Position, r.Product.Title, r.Product.Brand, r.Score, r.MatchedTerms, r.Explanation)
		}
		fmt.Printf("\n%d results in %dms (log %s)\n", len(result.Results), result.LatencyMs, result.LogID)
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 10, "maximum number of results")
	searchCmd.Flags().String("session", "", "session id to attribute the search to")
	searchCmd.Flags().String("category", "", "filter by category")
	searchCmd.Flags().String("brand", "", "filter by brand")
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file.csv>",
	Short: "Upload a catalog CSV for ingestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		url := "/v1/uploads?filename=" + filepath.Base(path)
		resp, err := client.postRaw(cmd.Context(), url, "text/csv", f)
		if err != nil {
			return err
		}

		var result struct {
			JobID string `json:"job_id"`
			Rows  int    `json:"rows"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued upload %s (%d rows)", result.JobID, result.Rows)
		printStep("check progress: GET /v1/uploads/%s", result.JobID)
		return nil
	},
}

// --- weights ---

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Manage ranking weight configurations",
}

var weightsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all weight configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/weights")
		if err != nil {
			return err
		}

		var weights []struct {
			ID       string  `json:"id"`
			Name     string  `json:"name"`
			Semantic float64 `json:"semantic"`
			Rating   float64 `json:"rating"`
			Price    float64 `json:"price"`
			Stock    float64 `json:"stock"`
			Recency  float64 `json:"recency"`
			IsActive bool    `json:"is_active"`
		}
		if err := decodeJSON(resp, &weights); err != nil {
			return err
		}

		for _, w := range weights {
			marker := "  "
			name := w.Name
			if w.IsActive {
				marker = colorize(colorGreen, "* ")
				name = colorize(colorBold, name)
			}
			fmt.Printf("%s%s  (%s)\n", marker, name, w.ID)
			fmt.Printf("    semantic %.2f  rating %.2f  price %.2f  stock %.2f  recency %.2f\n",
				w.Semantic, w.Rating, w.Price, w.Stock, w.Recency)
		}
		return nil
	},
}

var weightsActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Activate a weight configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/weights/"+args[0]+"/activate", nil)
		if err != nil {
			return err
		}

		var activated struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(resp, &activated); err != nil {
			return err
		}

		printSuccess("Activated weights %q", activated.Name)
		return nil
	},
}

var weightsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new weight configuration",
	Long: `Create a new (inactive) weight configuration.

Example:
  shoprank weights create --name semantic-heavy \
    --semantic 0.8 --rating 0.1 --price 0.05 --stock 0.03 --recency 0.02`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			return fmt.Errorf("--name is required")
		}
		semantic, _ := cmd.Flags().GetFloat64("semantic")
		rating, _ := cmd.Flags().GetFloat64("rating")
		price, _ := cmd.Flags().GetFloat64("price")
		stock, _ := cmd.Flags().GetFloat64("stock")
		recency, _ := cmd.Flags().GetFloat64("recency")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{
			"name":     name,
			"semantic": semantic,
			"rating":   rating,
			"price":    price,
			"stock":    stock,
			"recency":  recency,
		}
		resp, err := client.post(cmd.Context(), "/v1/weights", body)
		if err != nil {
			return err
		}

		var created struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		sum := semantic + rating + price + stock + recency
		printSuccess("Created weights %q (%s)", name, created.ID)
		if sum < 0.999 || sum > 1.001 {
			printWarning("weights sum to %.3f, not 1.0 — scores will be skewed accordingly", sum)
		}
		printStep("activate with: shoprank weights activate %s", created.ID)
		return nil
	},
}

func init() {
	weightsCreateCmd.Flags().String("name", "", "configuration name")
	weightsCreateCmd.Flags().Float64("semantic", 0, "semantic similarity weight")
	weightsCreateCmd.Flags().Float64("rating", 0, "rating weight")
	weightsCreateCmd.Flags().Float64("price", 0, "price weight")
	weightsCreateCmd.Flags().Float64("stock", 0, "stock weight")
	weightsCreateCmd.Flags().Float64("recency", 0, "recency weight")

	weightsCmd.AddCommand(weightsListCmd)
	weightsCmd.AddCommand(weightsActivateCmd)
	weightsCmd.AddCommand(weightsCreateCmd)
}

// --- evaluate ---

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run and inspect ranking evaluations",
}

var evaluateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the offline evaluation over logged searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/evaluations", map[string]any{"notes": notes})
		if err != nil {
			return err
		}

		var result struct {
			Metrics []struct {
				Kind       string  `json:"kind"`
				Value      float64 `json:"value"`
				QueryCount int     `json:"query_count"`
			} `json:"metrics"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Metrics) == 0 {
			fmt.Println("No search logs recorded yet; nothing to evaluate.")
			return nil
		}
		for _, m := range result.Metrics {
			printStatus(m.Kind, "%.4f  (%d queries)", m.Value, m.QueryCount)
		}
		return nil
	},
}

var evaluateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent evaluation metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/evaluations")
		if err != nil {
			return err
		}

		var result struct {
			Metrics []struct {
				Kind       string  `json:"kind"`
				Value      float64 `json:"value"`
				QueryCount int     `json:"query_count"`
				Notes      string  `json:"notes"`
				CreatedAt  string  `json:"created_at"`
			} `json:"metrics"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Metrics) == 0 {
			fmt.Println("No evaluation runs recorded.")
			return nil
		}
		for _, m := range result.Metrics {
			line := fmt.Sprintf("%s  %s %.4f  (%d queries)",
				m.CreatedAt, colorize(colorBold, m.Kind), m.Value, m.QueryCount)
			if m.Notes != "" {
				line += "  — " + m.Notes
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	evaluateRunCmd.Flags().String("notes", "", "notes recorded on the metric rows")
	evaluateCmd.AddCommand(evaluateRunCmd)
	evaluateCmd.AddCommand(evaluateListCmd)
}

// --- reembed ---

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Recompute every product embedding with the configured backend",
	Long: `Recompute every product embedding with the configured backend.

Runs directly against the data directory, so it also works while the
server is stopped (e.g. after switching embedding.backend or the model).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		embedder, err := newEmbedder(cfg)
		if err != nil {
			return err
		}

		printStep("re-embedding catalog with %s (dim %d)", embedder.Model(), embedder.Dimension())
		result, err := ingest.NewRefresher(store, embedder, nil).Run(cmd.Context())
		if err != nil {
			return err
		}

		if result.Failed > 0 {
			printWarning("re-embedded %d products, %d failed", result.Total-result.Failed, result.Failed)
		} else {
			printSuccess("re-embedded %d products", result.Total)
		}
		printStep("restart the server or POST /v1/reindex to pick up the new vectors")
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and modify configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("config file: %s\n\n", config.Path())
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %-32s %-32s %s\n", k.Key, k.Value, colorize(colorCyan, k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key in the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w\nvalid keys: %s", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
