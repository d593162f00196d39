package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.AI.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got %q", cfg.AI.Provider)
	}
	if cfg.AI.APIKeyEnv != "ANTHROPIC_API_KEY" {
		t.Errorf("expected api_key_env 'ANTHROPIC_API_KEY', got %q", cfg.AI.APIKeyEnv)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("expected port 8787, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
ai:
  provider: ollama
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.AI.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.AI.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.AI.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.AI.OllamaURL)
	}
	if cfg.Auth.JWTSecretEnv != "INSIGHTD_JWT_SECRET" {
		t.Errorf("expected default jwt_secret_env, got %q", cfg.Auth.JWTSecretEnv)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Metrics.Prefix != "insightd" {
		t.Errorf("expected metrics prefix 'insightd', got %q", cfg.Metrics.Prefix)
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := &Config{}
	if cfg.DatabasePath() == "" {
		t.Error("expected non-empty default database path")
	}

	cfg.Database.Path = "/custom/insightd.db"
	if cfg.DatabasePath() != "/custom/insightd.db" {
		t.Errorf("expected '/custom/insightd.db', got %q", cfg.DatabasePath())
	}
}
