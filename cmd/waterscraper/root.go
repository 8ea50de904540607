package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jgoulah/waterscraper/internal/config"
	"github.com/jgoulah/waterscraper/internal/database"
	"github.com/jgoulah/waterscraper/internal/logging"
	"github.com/jgoulah/waterscraper/internal/scraper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "waterscraper",
	Short: "Scrape daily water consumption from the BVK customer portal",
	Long: `WaterScraper is a CLI tool to collect daily water consumption from the BVK
(Brnenske vodarny a kanalizace) customer portal. It logs in, hops into the
consumption sub-portal and reads the daily tables month by month, storing
the results in a local SQLite database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config or LOG_LEVEL)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// saveConfig saves the configuration file
func saveConfig(cfg *config.Config) error {
	return config.Save(getConfigPath(), cfg)
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

// newLogger builds the logger, the flag taking precedence over the config
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	return logging.NewLogger(level)
}

// fetcherFactory opens a fresh portal session per collection run
func fetcherFactory(ctx context.Context, cfg *config.Config, browser, visible bool, logger *zap.Logger) scraper.FetcherFactory {
	if browser || cfg.Browser {
		return func() (scraper.Fetcher, error) {
			return scraper.NewBrowserFetcher(ctx, visible, logger)
		}
	}
	return func() (scraper.Fetcher, error) {
		return scraper.NewHTTPFetcher(logger)
	}
}

// credentials returns the portal login from the config
func credentials(cfg *config.Config) (scraper.Credentials, error) {
	if !cfg.HasCredentials() {
		return scraper.Credentials{}, fmt.Errorf("no credentials configured. Add username/password to %s or run 'waterscraper login'", getConfigPath())
	}
	return scraper.Credentials{
		Username: cfg.Credentials.Username,
		Password: cfg.Credentials.Password,
	}, nil
}

// parseDate parses a date string in either YYYY-MM-DD format or relative format (e.g., "7d")
func parseDate(dateStr string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", dateStr)
	if err == nil {
		return t, nil
	}

	// Relative format, e.g. "7d" for 7 days ago
	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		daysStr := dateStr[:len(dateStr)-1]
		var days int
		if _, err := fmt.Sscanf(daysStr, "%d", &days); err == nil {
			return scraper.Today().AddDate(0, 0, -days), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or Nd for N days ago)", dateStr)
}

// parseOptionalDate is parseDate returning the zero time for an empty string
func parseOptionalDate(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, nil
	}
	return parseDate(dateStr)
}
