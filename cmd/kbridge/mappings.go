package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MMOzz/OSTKanBridge/internal/store"
)

var mappingsCmd = &cobra.Command{
	Use:     "mappings",
	Short:   "Inspect bridged task pairs",
	GroupID: "admin",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List osTicket to Kanboard task mappings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, s store.Store) error {
			mappings, err := s.ListMappings(ctx)
			if err != nil {
				return fmt.Errorf("listing mappings: %w", err)
			}
			if jsonOutput {
				printJSON(mappings)
			} else {
				printMappingTable(mappings)
			}
			return nil
		})
	},
}

var mappingsDeleteCmd = &cobra.Command{
	Use:   "delete <ost-task-id>",
	Short: "Forget a mapping",
	Long: `Forget the mapping for an osTicket task.

The Kanboard task is left in place. If the osTicket task is still flagged
for Kanboard it will be bridged again, to a new Kanboard task, on the next
outbound run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("ost-task-id", args[0])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, s store.Store) error {
			if err := s.DeleteMapping(ctx, id); err != nil {
				if store.IsNotFound(err) {
					return fmt.Errorf("no mapping for osTicket task %d", id)
				}
				return fmt.Errorf("deleting mapping: %w", err)
			}
			fmt.Printf("Deleted mapping for osTicket task %d\n", id)
			return nil
		})
	},
}

func init() {
	mappingsCmd.AddCommand(mappingsListCmd, mappingsDeleteCmd)
}
