package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MMOzz/OSTKanBridge/internal/bridge"
	"github.com/MMOzz/OSTKanBridge/internal/idgen"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Run one synchronization pass",
	GroupID: "sync",
}

var syncOutboundCmd = &cobra.Command{
	Use:   "outbound",
	Short: "Create Kanboard tasks for new osTicket tasks and push status changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSyncJob("sync_outbound", func(ctx context.Context, b *bridge.Bridge) (any, error) {
			return b.RunOutbound(ctx)
		})
	},
}

var syncInboundCmd = &cobra.Command{
	Use:   "inbound",
	Short: "Poll Kanboard columns and apply them to osTicket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSyncJob("sync_inbound", func(ctx context.Context, b *bridge.Bridge) (any, error) {
			return b.RunInbound(ctx)
		})
	},
}

func init() {
	syncCmd.AddCommand(syncOutboundCmd, syncInboundCmd)
}

// runSyncJob runs a single job pass. Per-item failures are in the audit log,
// so only failing to build the bridge makes the command exit non-zero.
func runSyncJob(name string, job func(context.Context, *bridge.Bridge) (any, error)) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = bridge.WithRunID(ctx, idgen.RunID())

	report, err := job(ctx, a.bridge)
	if err != nil {
		logger.Error("job pass incomplete", "job", name, "run_id", bridge.RunID(ctx), "err", err)
	}
	if jsonOutput {
		printJSON(report)
		return nil
	}
	fmt.Printf("%s %s completed\n", time.Now().Format("2006-01-02 15:04:05"), name)
	return nil
}
