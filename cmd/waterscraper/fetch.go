package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jgoulah/waterscraper/internal/scraper"
	"github.com/jgoulah/waterscraper/pkg/models"
	"github.com/spf13/cobra"
)

var (
	fetchFrom    string
	fetchTo      string
	fetchBrowser bool
	fetchVisible bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch daily consumption from the portal",
	Long: `Logs into the BVK portal and scrapes daily water consumption for the requested
date range, one month page at a time. Data will be stored in the local SQLite
database; a day already stored is updated in place.

Without --from the last days_to_fetch days (default 90) are fetched.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "First day to fetch (YYYY-MM-DD or Nd for N days ago)")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "Last day to fetch (YYYY-MM-DD, default today)")
	fetchCmd.Flags().BoolVar(&fetchBrowser, "browser", false, "Drive the portal through headless Chrome")
	fetchCmd.Flags().BoolVar(&fetchVisible, "visible", false, "Show browser window (for debugging, implies --browser)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	creds, err := credentials(cfg)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	from := scraper.Today().AddDate(0, 0, -cfg.GetDaysToFetch())
	if fetchFrom != "" {
		if from, err = parseDate(fetchFrom); err != nil {
			return fmt.Errorf("parsing --from date: %w", err)
		}
	}
	var to *time.Time
	if fetchTo != "" {
		until, err := parseDate(fetchTo)
		if err != nil {
			return fmt.Errorf("parsing --to date: %w", err)
		}
		to = &until
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	collector := scraper.NewCollector(scraper.CollectorOptions{
		PortalURL:  cfg.GetPortalURL(),
		Workers:    cfg.GetWorkers(),
		NewFetcher: fetcherFactory(ctx, cfg, fetchBrowser || fetchVisible, fetchVisible, logger),
		Logger:     logger,
	})

	toLabel := "today"
	if to != nil {
		toLabel = to.Format("2006-01-02")
	}
	fmt.Printf("Fetching consumption from %s to %s...\n", from.Format("2006-01-02"), toLabel)

	// Nothing is stored unless every month was read
	records, err := collector.CollectRecords(ctx, creds, from, to, scraper.WithObserver(func(record models.Consumption) {
		logger.Sugar().Debugf("scraped %s: %d l", record.Key(), record.Liters)
	}))
	if err != nil {
		return fmt.Errorf("scraping: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No data found")
		return nil
	}

	for i := range records {
		if err := db.UpsertConsumption(&records[i]); err != nil {
			return fmt.Errorf("storing consumption: %w", err)
		}
	}

	fmt.Printf("✓ Stored %d days (%s to %s)\n", len(records),
		records[0].Key(), records[len(records)-1].Key())
	return nil
}
