package main

import (
	"fmt"
	"time"

	"github.com/jgoulah/waterscraper/internal/publisher"
	"github.com/jgoulah/waterscraper/pkg/models"
	"github.com/spf13/cobra"
)

var (
	publishSince string
	publishUntil string
	publishAll   bool
	publishLimit int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish consumption data to Home Assistant and/or MQTT",
	Long:  `Reads stored daily consumption from the database and publishes it to Home Assistant via HTTP API and/or an MQTT broker.`,
	Args:  cobra.NoArgs,
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishSince, "since", "", "Only publish data since this date (YYYY-MM-DD or relative like 7d)")
	publishCmd.Flags().StringVar(&publishUntil, "until", "", "Only publish data until this date (YYYY-MM-DD)")
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Force republish all records (ignore published flag)")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 0, "Limit number of records to publish (0 = no limit)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	since, err := parseOptionalDate(publishSince)
	if err != nil {
		return fmt.Errorf("parsing --since date: %w", err)
	}
	until, err := parseOptionalDate(publishUntil)
	if err != nil {
		return fmt.Errorf("parsing --until date: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant, logger)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var data []models.Consumption
	if publishAll {
		data, err = db.ListConsumption(since, until)
	} else {
		data, err = db.ListUnpublishedConsumption(since, until)
	}
	if err != nil {
		return fmt.Errorf("listing consumption: %w", err)
	}

	if len(data) == 0 {
		if publishAll {
			fmt.Println("No data found")
		} else {
			fmt.Println("No unpublished data found")
		}
		return nil
	}

	if publishLimit > 0 && len(data) > publishLimit {
		data = data[:publishLimit]
		fmt.Printf("Limiting to %d records (--limit flag)\n", publishLimit)
	}

	fmt.Printf("Publishing %d records...\n", len(data))
	published := 0
	for i, record := range data {
		fmt.Printf("[%d/%d] Publishing %s (%d l)... ", i+1, len(data), record.Key(), record.Liters)
		if err := pub.Publish(record); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			continue
		}

		if err := db.MarkPublished(record.ID); err != nil {
			fmt.Printf("✓ (warning: failed to mark as published: %v)\n", err)
		} else {
			fmt.Printf("✓\n")
		}
		published++
	}

	fmt.Printf("\nSuccessfully published %d/%d records\n", published, len(data))
	return nil
}
