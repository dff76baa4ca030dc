// Package main provides the pocketledger CLI: an offline-first personal
// finance tracker that keeps working without connectivity and syncs queued
// changes when the server returns.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mvoronin-dev/pocketledger/internal/client/app"
	"github.com/mvoronin-dev/pocketledger/internal/client/config"
	"github.com/mvoronin-dev/pocketledger/internal/logging"
)

var (
	// configDir is set by the --config flag.
	configDir string

	// verbose enables debug logging.
	verbose bool

	// ledger is the assembled client, initialized on startup.
	ledger *app.App
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pocketledger",
	Short: "PocketLedger is an offline-first personal finance tracker",
	Long: `PocketLedger tracks transactions, accounts, and categories against a
remote server while staying fully usable offline. Mutations made without
connectivity are applied locally at once, queued durably, and replayed in
order when the server becomes reachable again.`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "config directory (default: OS user config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(categoryCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(backupCmd)
}

// initApp loads config and assembles the client.
func initApp(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	dir := configDir
	if dir == "" {
		var err error
		if dir, err = config.DefaultDir(); err != nil {
			return err
		}
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ledger, err = app.New(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	return nil
}

func closeApp() error {
	if ledger == nil {
		return nil
	}
	return ledger.Close()
}
