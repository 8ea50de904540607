package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jgoulah/waterscraper/internal/scraper"
	"github.com/spf13/cobra"
)

var (
	debugBrowser bool
	debugVisible bool
	debugOutput  string
)

var debugCmd = &cobra.Command{
	Use:   "debug YEAR MONTH",
	Short: "Fetch one month page and show how it parses",
	Long: `Logs in, loads the daily consumption page for a single month and prints the
rows the parser finds. Use it when fetch starts failing to see what the portal
actually returns.

Flags:
  --output     Save the raw HTML to this file
  --visible    Drive a visible browser window`,
	Args: cobra.ExactArgs(2),
	RunE: runDebug,
}

func init() {
	debugCmd.Flags().BoolVar(&debugBrowser, "browser", false, "Drive the portal through headless Chrome")
	debugCmd.Flags().BoolVar(&debugVisible, "visible", false, "Show browser window (implies --browser)")
	debugCmd.Flags().StringVar(&debugOutput, "output", "", "Save HTML to this file")
	rootCmd.AddCommand(debugCmd)
}

func runDebug(cmd *cobra.Command, args []string) error {
	year, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid year %q", args[0])
	}
	month, err := strconv.Atoi(args[1])
	if err != nil || month < 1 || month > 12 {
		return fmt.Errorf("invalid month %q", args[1])
	}
	period := scraper.Period{Year: year, Month: time.Month(month)}

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

	ctx := context.Background()
	fetcher, err := fetcherFactory(ctx, cfg, debugBrowser || debugVisible, debugVisible, logger)()
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	if closer, ok := fetcher.(interface{ Close() }); ok {
		defer closer.Close()
	}

	nav := scraper.NewNavigator(fetcher, creds, cfg.GetPortalURL(), logger)
	if err := nav.Login(ctx); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	fmt.Printf("Fetching %s...\n", period)
	page, err := nav.PeriodPage(ctx, period)
	if err != nil {
		return err
	}
	fmt.Printf("  URL:    %s\n", page.URL)
	fmt.Printf("  Status: %d\n", page.StatusCode)
	fmt.Printf("  Size:   %d bytes\n", len(page.Body))

	if debugOutput != "" {
		if err := os.WriteFile(debugOutput, []byte(page.Body), 0644); err != nil {
			return fmt.Errorf("writing HTML: %w", err)
		}
		fmt.Printf("✓ HTML saved to %s\n", debugOutput)
	}

	doc, err := page.Document()
	if err != nil {
		return err
	}

	rows := 0
	for record, err := range scraper.TableRows(doc) {
		if err != nil {
			fmt.Printf("✗ Stopped after %d rows: %v\n", rows, err)
			return nil
		}
		fmt.Printf("  %s  %6d\n", record.Key(), record.Liters)
		rows++
	}
	fmt.Printf("✓ %d rows parsed\n", rows)
	return nil
}
