package main

import (
	"fmt"
	"time"

	"github.com/jgoulah/waterscraper/internal/config"
	"github.com/jgoulah/waterscraper/internal/publisher"
	"github.com/spf13/cobra"
)

var generateStatsCmd = &cobra.Command{
	Use:   "generate-stats",
	Short: "Generate statistics in Home Assistant from backfilled states",
	Long:  `Calls AppDaemon endpoint to compile statistics from the individual daily consumption states. Run this after publishing to populate the Energy dashboard.`,
	Args:  cobra.NoArgs,
	RunE:  runGenerateStats,
}

func init() {
	rootCmd.AddCommand(generateStatsCmd)
}

func runGenerateStats(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Generate Statistics started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !cfg.HomeAssistant.Enabled {
		return fmt.Errorf("Home Assistant is not enabled in config")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	// Statistics only need the HTTP API
	pub, err := publisher.New(config.MQTTConfig{}, cfg.HomeAssistant, logger)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	fmt.Printf("Generating statistics for %s...\n", cfg.HomeAssistant.EntityID)
	stats, err := pub.GenerateStatistics()
	if err != nil {
		return err
	}

	fmt.Printf("✓ Statistics generated successfully\n")
	fmt.Printf("  - Inserted: %d new statistics records\n", stats.Inserted)
	fmt.Printf("  - Updated: %d existing statistics records\n", stats.Updated)
	fmt.Printf("  - Total hours: %d\n", stats.TotalHours)

	return nil
}
