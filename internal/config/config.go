package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Database Database `yaml:"database"`
	Server   Server   `yaml:"server"`
	Auth     Auth     `yaml:"auth"`
	AI       AI       `yaml:"ai"`
	Metrics  Metrics  `yaml:"metrics"`
	Logging  Logging  `yaml:"logging"`
}

type Database struct {
	Path string `yaml:"path"`
}

type Server struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Auth struct {
	JWTSecretEnv    string `yaml:"jwt_secret_env"`
	ServiceTokenEnv string `yaml:"service_token_env"`
}

type AI struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`
	MaxTokens   int    `yaml:"max_tokens"`
}

type Metrics struct {
	Prefix string `yaml:"prefix"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for insightd.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "insightd")
}

// DataDir returns the XDG data directory for insightd.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "insightd")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/insightd/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'insightd init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Server: Server{
			Port:        8787,
			CORSOrigins: []string{"*"},
		},
		Auth: Auth{
			JWTSecretEnv:    "INSIGHTD_JWT_SECRET",
			ServiceTokenEnv: "INSIGHTD_SERVICE_TOKEN",
		},
		AI: AI{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			APIKeyEnv:   "ANTHROPIC_API_KEY",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "qwen2.5:7b",
			MaxTokens:   600,
		},
		Metrics: Metrics{Prefix: "insightd"},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// DatabasePath returns the effective sqlite path from config or XDG default.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(DataDir(), "insightd.db")
}

// JWTSecret reads the HMAC signing secret from the configured env var.
func (c *Config) JWTSecret() string {
	return os.Getenv(c.Auth.JWTSecretEnv)
}

// ServiceToken reads the privileged service credential from the configured env var.
func (c *Config) ServiceToken() string {
	return os.Getenv(c.Auth.ServiceTokenEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
