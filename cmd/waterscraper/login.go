package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jgoulah/waterscraper/internal/scraper"
	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginPassword string
	loginBrowser  bool
	loginVisible  bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify portal credentials and save them",
	Long: `Walks the portal login chain (login form, account page, consumption portal)
without fetching any data and reports how far it got.

With --username/--password the credentials are saved to the config file
once they have been accepted; otherwise the configured ones are checked.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "Portal e-mail")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Portal password")
	loginCmd.Flags().BoolVar(&loginBrowser, "browser", false, "Drive the portal through headless Chrome")
	loginCmd.Flags().BoolVar(&loginVisible, "visible", false, "Show browser window (implies --browser)")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	saving := loginUsername != "" || loginPassword != ""
	if saving {
		if loginUsername == "" || loginPassword == "" {
			return fmt.Errorf("both --username and --password are required")
		}
		cfg.Credentials.Username = loginUsername
		cfg.Credentials.Password = loginPassword
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
	fetcher, err := fetcherFactory(ctx, cfg, loginBrowser || loginVisible, loginVisible, logger)()
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	if closer, ok := fetcher.(interface{ Close() }); ok {
		defer closer.Close()
	}

	nav := scraper.NewNavigator(fetcher, creds, cfg.GetPortalURL(), logger)
	fmt.Printf("Logging in to %s as %s...\n", cfg.GetPortalURL(), creds.Username)
	for nav.State() != scraper.StateSubPortal {
		from := nav.State()
		if err := nav.Step(ctx); err != nil {
			var authErr *scraper.AuthError
			if errors.As(err, &authErr) {
				return fmt.Errorf("portal rejected the credentials (status %d)", authErr.StatusCode)
			}
			return fmt.Errorf("%s: %w", from, err)
		}
		fmt.Printf("  %s -> %s\n", from, nav.State())
	}
	fmt.Println("✓ Login successful, consumption portal reachable")

	if saving {
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("saving credentials: %w", err)
		}
		fmt.Printf("✓ Credentials saved to %s\n", getConfigPath())
	}
	return nil
}
