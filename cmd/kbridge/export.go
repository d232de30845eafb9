package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MMOzz/OSTKanBridge/internal/export"
	"github.com/MMOzz/OSTKanBridge/internal/store"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Export mappings, routing rules and recent events as JSONL",
	GroupID: "system",
	Long: `Export the bridge state as JSONL.

Without --push the export is written to stdout. With --push it is written to
every configured destination (BRIDGE_EXPORT_S3_BUCKET, BRIDGE_EXPORT_GIT_REPO).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		push, _ := cmd.Flags().GetBool("push")
		limit, _ := cmd.Flags().GetInt("events")
		if !cmd.Flags().Changed("events") {
			limit = cfg.ExportEvents
		}

		return withStore(func(ctx context.Context, s store.Store) error {
			if !push {
				return export.ExportJSONL(ctx, s, os.Stdout, limit)
			}
			dests := exportDestinations(ctx)
			if len(dests) == 0 {
				return fmt.Errorf("no export destination configured")
			}
			n, err := export.ToDestinations(ctx, s, dests, limit)
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d bytes to %d destinations\n", n, len(dests))
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().Bool("push", false, "write to the configured destinations instead of stdout")
	exportCmd.Flags().Int("events", export.DefaultEventLimit, "number of recent events to include")
}
