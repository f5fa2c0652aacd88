package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.Server.Port != 4600 {
		t.Errorf("default port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Embedding.Backend != "hash" {
		t.Errorf("default embedding backend = %q, want hash", cfg.Embedding.Backend)
	}
	if cfg.Embedding.Dimension != 256 {
		t.Errorf("default embedding dimension = %d, want 256", cfg.Embedding.Dimension)
	}
	if cfg.Ranking.TopK != 10 {
		t.Errorf("default top_k = %d, want 10", cfg.Ranking.TopK)
	}
	if cfg.Ranking.StockReference != 100 {
		t.Errorf("default stock_reference = %d, want 100", cfg.Ranking.StockReference)
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("loadFrom with missing file: %v", err)
	}
	if cfg.Server.Port != defaults().Server.Port {
		t.Errorf("missing file should yield defaults, got port %d", cfg.Server.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  port: 8080\nranking:\n  top_k: 25\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080 from file", cfg.Server.Port)
	}
	if cfg.Ranking.TopK != 25 {
		t.Errorf("top_k = %d, want 25 from file", cfg.Ranking.TopK)
	}
	// Untouched keys keep defaults.
	if cfg.Embedding.Dimension != 256 {
		t.Errorf("dimension = %d, want default 256", cfg.Embedding.Dimension)
	}
}

func TestLoadFromBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	if _, err := loadFrom(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SHOPRANK_SERVER_PORT", "9999")
	t.Setenv("SHOPRANK_EMBEDDING_BACKEND", "server")
	t.Setenv("SHOPRANK_RANKING_RECENCY_HALF_LIFE_DAYS", "7.5")

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999 from env", cfg.Server.Port)
	}
	if cfg.Embedding.Backend != "server" {
		t.Errorf("backend = %q, want server from env", cfg.Embedding.Backend)
	}
	if cfg.Ranking.RecencyHalfLifeDays != 7.5 {
		t.Errorf("half life = %v, want 7.5 from env", cfg.Ranking.RecencyHalfLifeDays)
	}
}

func TestEnvOverrideBadInt(t *testing.T) {
	t.Setenv("SHOPRANK_SERVER_PORT", "not-a-number")

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.Server.Port != defaults().Server.Port {
		t.Errorf("bad env int should keep default, got %d", cfg.Server.Port)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Server.APIToken = "sekrit"

	for _, k := range ShowAll(cfg) {
		if k.Key == "server.api_token" {
			t.Error("ShowAll must not include secret keys")
		}
		if k.Value == "sekrit" {
			t.Errorf("ShowAll leaked secret via key %s", k.Key)
		}
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("SHOPRANK_CONFIG", path)

	if err := SetKey("ranking.top_k", "15"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom after SetKey: %v", err)
	}
	if cfg.Ranking.TopK != 15 {
		t.Errorf("top_k = %d, want 15 after SetKey", cfg.Ranking.TopK)
	}
}

func TestSetKeyUnknown(t *testing.T) {
	if err := SetKey("no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSetKeyRejectsSecret(t *testing.T) {
	if err := SetKey("server.api_token", "x"); err == nil {
		t.Error("expected error when setting a secret key")
	}
}
