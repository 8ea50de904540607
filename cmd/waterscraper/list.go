package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	listSince string
	listUntil string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored consumption data",
	Long:  `Displays stored daily water consumption from the database.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listSince, "since", "", "Only list data since this date (YYYY-MM-DD or relative like 7d)")
	listCmd.Flags().StringVar(&listUntil, "until", "", "Only list data until this date (YYYY-MM-DD)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	since, err := parseOptionalDate(listSince)
	if err != nil {
		return fmt.Errorf("parsing --since date: %w", err)
	}
	until, err := parseOptionalDate(listUntil)
	if err != nil {
		return fmt.Errorf("parsing --until date: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	data, err := db.ListConsumption(since, until)
	if err != nil {
		return fmt.Errorf("listing consumption: %w", err)
	}

	if len(data) == 0 {
		fmt.Println("No data found")
		return nil
	}

	fmt.Println("\nDaily Water Consumption:")
	fmt.Println("----------------------------------------")
	fmt.Printf("%-12s  %10s  %s\n", "Date", "Liters", "Published")
	fmt.Println("----------------------------------------")

	var total int64
	for _, record := range data {
		published := ""
		if record.Published {
			published = "✓"
		}
		fmt.Printf("%-12s  %10s  %s\n", record.Key(), humanize.Comma(int64(record.Liters)), published)
		total += int64(record.Liters)
	}

	fmt.Println("----------------------------------------")
	fmt.Printf("Total: %s l over %d days (avg %s l/day)\n",
		humanize.Comma(total), len(data), humanize.Comma(total/int64(len(data))))

	return nil
}
