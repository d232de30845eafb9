package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"slices"

	"github.com/spf13/cobra"

	"github.com/MMOzz/OSTKanBridge/internal/events"
	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/store"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "Show the sync audit log",
	GroupID: "admin",
	Long: `Show the most recent sync audit events, oldest first.

With --follow, keep streaming new events from NATS (BRIDGE_NATS_URL) until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		follow, _ := cmd.Flags().GetBool("follow")
		failures, _ := cmd.Flags().GetBool("failures")

		err := withStore(func(ctx context.Context, s store.Store) error {
			evts, err := s.ListEvents(ctx, limit)
			if err != nil {
				return fmt.Errorf("listing events: %w", err)
			}
			if failures {
				evts = slices.DeleteFunc(evts, func(e *model.SyncEvent) bool { return !e.IsFailure() })
			}
			slices.Reverse(evts)
			if jsonOutput {
				printJSON(evts)
			} else {
				printEventTable(evts)
			}
			return nil
		})
		if err != nil || !follow {
			return err
		}
		return followEvents(failures)
	},
}

func init() {
	eventsCmd.Flags().Int("limit", 50, "number of recent events to show")
	eventsCmd.Flags().BoolP("follow", "f", false, "stream new events from NATS")
	eventsCmd.Flags().Bool("failures", false, "only errors and warnings")
}

func followEvents(failures bool) error {
	if cfg.NATSURL == "" {
		return fmt.Errorf("--follow needs BRIDGE_NATS_URL")
	}
	sub, err := events.NewNATSSubscriber(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer cancel()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := newTable()
	for {
		select {
		case <-ctx.Done():
			if n := sub.Dropped(); n > 0 {
				fmt.Fprintf(os.Stderr, "%d events dropped\n", n)
			}
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			var rec events.SyncRecorded
			if err := json.Unmarshal(data, &rec); err != nil || rec.Event == nil {
				logger.Warn("skipping malformed event", "err", err)
				continue
			}
			if failures && !rec.Event.IsFailure() {
				continue
			}
			if jsonOutput {
				fmt.Println(string(data))
				continue
			}
			printEventRow(w, rec.Event)
			w.Flush()
		}
	}
}
