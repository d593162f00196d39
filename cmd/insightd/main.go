package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/digityx/insightd/internal/batch"
	"github.com/digityx/insightd/internal/config"
	"github.com/digityx/insightd/internal/database"
	"github.com/digityx/insightd/internal/llm"
	"github.com/digityx/insightd/internal/logger"
	"github.com/digityx/insightd/internal/metrics"
	"github.com/digityx/insightd/internal/server"
)

var version = "dev"

var (
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "insightd",
	Short:   "CRM insight detection service",
	Long:    "insightd scans tenant CRM data with rule-based and AI detectors and records actionable insights.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		// Secrets may live in a local .env during development.
		_ = godotenv.Load()

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger.InitLogger(cfg.Logging.Level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	detectCmd.Flags().StringVar(&detectUserID, "user", "", "Run detectors for a single tenant")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("insightd", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/insightd/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the database path, auth env vars, and LLM provider.")
		return nil
	},
}

var detectUserID string

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run the insight detectors once",
	Long:  "Runs every detector against all tenants (or one, with --user) and prints the per-category counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runner := batch.NewRunner(db, createProvider())

		var stats *batch.Stats
		if detectUserID != "" {
			stats, err = runner.RunForTenant(context.Background(), detectUserID)
		} else {
			stats, err = runner.Run(context.Background())
		}
		if err != nil {
			return fmt.Errorf("running detectors: %w", err)
		}

		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		metrics.InitMetrics(cfg.Metrics.Prefix)

		runner := batch.NewRunner(db, createProvider())
		return server.New(cfg, db, runner).Start()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Printf("Tenants: %d\n", stats.Tenants)
		fmt.Printf("Clients: %d\n", stats.Clients)
		fmt.Printf("Projects: %d\n", stats.Projects)
		fmt.Printf("Interactions: %d\n", stats.Interactions)
		fmt.Printf("Insights: %d (%d new)\n", stats.Insights, stats.OpenInsights)
		return nil
	},
}

func openDB() (*database.DB, error) {
	db, err := database.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func createProvider() llm.Provider {
	provider := llm.CreateProvider(cfg.AI.Provider, cfg.AI.Model, cfg.AI.APIKeyEnv,
		cfg.AI.OllamaModel, cfg.AI.OllamaURL)
	if provider == nil {
		logger.GetLogger().Warn("running without an LLM provider; AI detectors will fail",
			zap.String("provider", cfg.AI.Provider))
	}
	return provider
}
