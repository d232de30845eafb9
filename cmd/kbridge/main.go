package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MMOzz/OSTKanBridge/internal/config"
	"github.com/MMOzz/OSTKanBridge/internal/ui"
)

var (
	jsonOutput bool
	noColor    bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "kbridge <command>",
	Short:         "Status bridge between osTicket and Kanboard",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || jsonOutput || !ui.ShouldUseColor(os.Stdout) {
			ui.ForceNoColor()
		}
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		logger = newLogger(cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "admin", Title: "Admin:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Sync
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)

	// Admin
	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(mappingsCmd)
	rootCmd.AddCommand(eventsCmd)

	// System
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("Error:"), err)
		os.Exit(1)
	}
}
