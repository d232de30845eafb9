package bridge

import (
	"context"
	"fmt"

	"github.com/MMOzz/OSTKanBridge/internal/model"
)

// OutboundReport is the result of one outbound job run.
type OutboundReport struct {
	Create    CreateResult   `json:"create"`
	Reconcile OutboundResult `json:"reconcile"`
}

// InboundReport is the result of one inbound poll.
type InboundReport struct {
	Polled    int `json:"polled"`
	Unchanged int `json:"unchanged"`
	Lateral   int `json:"lateral"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
}

// RunOutbound runs the creator and then the outbound reconciler. Errors are
// recorded in the audit log; the returned error only reports that a pass
// could not start, and the reconciler still runs when the creator could not.
func (b *Bridge) RunOutbound(ctx context.Context) (OutboundReport, error) {
	var rep OutboundReport
	var firstErr error

	created, err := b.CreateNew(ctx)
	rep.Create = created
	if err != nil {
		firstErr = err
	}

	reconciled, err := b.ReconcileOutbound(ctx)
	rep.Reconcile = reconciled
	if err != nil && firstErr == nil {
		firstErr = err
	}

	b.logger(ctx).Info("outbound run finished",
		"created", rep.Create.Created, "create_failed", rep.Create.Failed,
		"synced", rep.Reconcile.Synced, "sync_failed", rep.Reconcile.Failed)
	return rep, firstErr
}

// RunInbound polls every bridged Kanboard task and feeds its current column
// to HandleColumnChange. It covers webhook deliveries that never arrived.
func (b *Bridge) RunInbound(ctx context.Context) (InboundReport, error) {
	var rep InboundReport

	mappings, err := b.store.ListMappings(ctx)
	if err != nil {
		b.recordErr(ctx, model.DirectionInbound, model.EventError, "list mappings", err, ref{})
		return rep, fmt.Errorf("list mappings: %w", err)
	}

	cols := newColumnCache(b.target)
	for _, m := range mappings {
		if ctx.Err() != nil {
			break
		}
		rep.Polled++

		ch, err := b.resolveTaskColumn(ctx, cols, m.TargetID, m.ContainerID)
		if err != nil {
			rep.Failed++
			b.recordErr(ctx, model.DirectionInbound, model.EventError,
				fmt.Sprintf("KB task #%d", m.TargetID), err, ref{sourceID: m.SourceID, targetID: m.TargetID})
			continue
		}

		result, _ := b.HandleColumnChange(ctx, ch)
		switch result {
		case Unchanged, Ignored:
			rep.Unchanged++
		case Lateral:
			rep.Lateral++
		case Synced:
			rep.Synced++
		case Failed:
			rep.Failed++
		}
	}

	b.logger(ctx).Info("inbound run finished",
		"polled", rep.Polled, "synced", rep.Synced, "lateral", rep.Lateral, "failed", rep.Failed)
	return rep, nil
}
