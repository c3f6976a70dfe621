// Package main provides the offer extractor CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/offer-extractor/internal/bootstrap"
	"github.com/spherical/offer-extractor/internal/config"
	"github.com/spherical/offer-extractor/internal/observability"
)

var version = "0.1.0"

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "offer-extractor",
	Short: "Extract supermarket offers from PDF flyers",
	Long: `Offer extractor splits PDF flyers into page chunks, renders every page,
asks a vision model for the offers on it and stores them in a database.

Use this tool to:
- Process flyers into offers
- List and delete stored offers
- Run database migrations

All commands support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		cfg.Observability.ServiceName = "offer-extractor-cli"
		if !outputJSON {
			cfg.Observability.LogFormat = "console"
		}
		if !verbose {
			// keep the terminal for progress output
			cfg.Observability.LogLevel = "warn"
		}
		logger = bootstrap.NewLogger(cfg, verbose)
		ui = NewUI(outputJSON, noColor)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newProcessCmd())
	rootCmd.AddCommand(newOffersCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			db, err := bootstrap.OpenDatabase(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			ui.Success("Database schema is up to date (%s)", cfg.Database.Driver)
			return nil
		},
	}
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("offer-extractor version %s\n", version)
		},
	}
}
