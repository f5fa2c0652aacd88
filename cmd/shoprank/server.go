package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/shoprank/internal/api"
	"github.com/kalambet/shoprank/internal/config"
	"github.com/kalambet/shoprank/internal/embedding"
	"github.com/kalambet/shoprank/internal/evaluation"
	"github.com/kalambet/shoprank/internal/index"
	"github.com/kalambet/shoprank/internal/ingest"
	"github.com/kalambet/shoprank/internal/ranking"
	"github.com/kalambet/shoprank/internal/search"
	"github.com/kalambet/shoprank/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the shoprank server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running shoprank server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show shoprank system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "shoprank.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// newEmbedder builds the configured embedding backend.
func newEmbedder(cfg config.Config) (embedding.Embedder, error) {
	switch cfg.Embedding.Backend {
	case "", "hash":
		return embedding.NewHashEmbedder(cfg.Embedding.Dimension), nil
	case "server":
		return embedding.NewServerEmbedder(embedding.ServerConfig{
			BaseURL:   cfg.Embedding.BaseURL,
			APIKeyEnv: cfg.Embedding.APIKeyEnv,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q (want hash or server)", cfg.Embedding.Backend)
	}
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" || value == "0" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in config, using default", "value", value, "default", fallback)
		return fallback
	}
	return d
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "shoprank version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Operator endpoints need a bearer token. Generate an ephemeral one when
	// none is configured, so the surface is never accidentally open.
	apiToken := cfg.Server.APIToken
	if apiToken == "" {
		apiToken = uuid.New().String()
		slog.Warn("no server.api_token configured; generated an ephemeral operator token",
			"token", apiToken)
	}

	// Write PID file. Check if the server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("shoprank is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("shoprank is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the ranking pipeline.
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	slog.Info("embedding backend ready",
		"backend", cfg.Embedding.Backend, "model", embedder.Model(), "dimension", embedder.Dimension())

	snapshotMaxAge := parseDurationOr(cfg.Ranking.SnapshotMaxAge, time.Minute)
	idx := index.New(store, embedder.Dimension(), snapshotMaxAge)
	halfLife := time.Duration(cfg.Ranking.RecencyHalfLifeDays * 24 * float64(time.Hour))
	ranker := ranking.NewRanker(cfg.Ranking.StockReference, halfLife, cfg.Ranking.TopK)
	evaluator := evaluation.NewEvaluator(store)
	svc := search.NewService(store, idx, embedder, ranker, evaluator)

	handler := api.NewHandler(api.Deps{
		Store:  store,
		Search: svc,
		Index:  idx,
		Token:  apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start the upload worker.
	pollInterval := parseDurationOr(cfg.Ingest.PollInterval, 500*time.Millisecond)
	worker := ingest.NewWorker(store, embedder, idx, pollInterval)
	go worker.Run(ctx)

	// Optional periodic evaluation runner.
	if interval := parseDurationOr(cfg.Evaluation.Interval, 0); interval > 0 {
		go runPeriodicEvaluation(ctx, svc, interval)
		slog.Info("periodic evaluation enabled", "interval", interval)
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Search: svc,
		Store:  store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "shoprank listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runPeriodicEvaluation(ctx context.Context, svc *search.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.RunEvaluation("periodic"); err != nil {
				slog.Error("periodic evaluation failed", "error", err)
			}
		}
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("shoprank is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop shoprank (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to shoprank (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Embedding", "%s (%s, dim %d)",
		cfg.Embedding.Backend, cfg.Embedding.Model, cfg.Embedding.Dimension)

	if running {
		apiClient, err := newAPIClient()
		if err == nil {
			if weightsResp, err := apiClient.get(ctx, "/v1/weights/active"); err == nil {
				var active struct {
					Name     string  `json:"name"`
					Semantic float64 `json:"semantic"`
					Rating   float64 `json:"rating"`
					Price    float64 `json:"price"`
					Stock    float64 `json:"stock"`
					Recency  float64 `json:"recency"`
				}
				if decodeJSON(weightsResp, &active) == nil {
					printStatus("Active weights", "%s (sem %.2f / rat %.2f / pri %.2f / stk %.2f / rec %.2f)",
						active.Name, active.Semantic, active.Rating, active.Price, active.Stock, active.Recency)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
