package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/store"
	"github.com/MMOzz/OSTKanBridge/internal/syncerr"
)

// ColumnChange is an observation that a Kanboard task sits in Column.
type ColumnChange struct {
	TargetID    int64
	ContainerID int64
	Column      string
}

// InboundResult is the outcome of HandleColumnChange.
type InboundResult int

const (
	// Ignored means the task is not bridged.
	Ignored InboundResult = iota
	// Unchanged means the column equals the last observed column.
	Unchanged
	// Lateral means the column changed but translates to the status osTicket already has.
	Lateral
	// Synced means the new status was written to osTicket and committed.
	Synced
	// Failed means the osTicket write or the commit failed; stored state is untouched.
	Failed
)

func (r InboundResult) String() string {
	switch r {
	case Ignored:
		return "ignored"
	case Unchanged:
		return "unchanged"
	case Lateral:
		return "lateral"
	case Synced:
		return "synced"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("InboundResult(%d)", int(r))
}

// HandleColumnChange applies a Kanboard column observation to osTicket.
// Webhook deliveries and the inbound poll both end here.
func (b *Bridge) HandleColumnChange(ctx context.Context, ch ColumnChange) (InboundResult, error) {
	log := b.logger(ctx).With("target_id", ch.TargetID)

	m, err := b.store.GetByTarget(ctx, ch.TargetID)
	if store.IsNotFound(err) {
		log.Debug("task not bridged, ignoring")
		return Ignored, nil
	}
	if err != nil {
		b.recordErr(ctx, model.DirectionInbound, model.EventError,
			fmt.Sprintf("KB task #%d: lookup mapping", ch.TargetID), err, ref{targetID: ch.TargetID})
		return Failed, fmt.Errorf("lookup mapping: %w", err)
	}
	r := ref{sourceID: m.SourceID, targetID: m.TargetID}

	if ch.Column == m.LastTargetState {
		return Unchanged, nil
	}
	if m.LastTargetState == "" {
		// Column never observed: take it as the baseline instead of a move.
		if err := b.store.UpdateState(ctx, m.SourceID, m.LastSourceState, ch.Column); err != nil {
			b.recordErr(ctx, model.DirectionInbound, model.EventError,
				fmt.Sprintf("KB task #%d: update mapping", m.TargetID), err, r)
			return Failed, fmt.Errorf("update mapping: %w", err)
		}
		log.Debug("column baseline recorded", "source_id", m.SourceID, "column", ch.Column)
		return Unchanged, nil
	}

	newStatus := b.tr.ToStatus(ch.Column)
	if strings.EqualFold(newStatus, m.LastSourceState) {
		if err := b.store.UpdateState(ctx, m.SourceID, m.LastSourceState, ch.Column); err != nil {
			b.recordErr(ctx, model.DirectionInbound, model.EventError,
				fmt.Sprintf("KB task #%d: update mapping", m.TargetID), err, r)
			return Failed, fmt.Errorf("update mapping: %w", err)
		}
		log.Debug("lateral move", "source_id", m.SourceID, "from", m.LastTargetState, "to", ch.Column)
		return Lateral, nil
	}

	if err := b.source.SetStatus(ctx, m.SourceID, newStatus); err != nil {
		b.recordErr(ctx, model.DirectionInbound, model.EventError,
			fmt.Sprintf("KB task #%d -> OST task %s: set status %s", m.TargetID, m.SourceNumber, newStatus), err, r)
		return Failed, fmt.Errorf("set status: %w", err)
	}
	if err := b.store.UpdateState(ctx, m.SourceID, newStatus, ch.Column); err != nil {
		b.recordErr(ctx, model.DirectionInbound, model.EventError,
			fmt.Sprintf("KB task #%d: update mapping", m.TargetID), err, r)
		return Failed, fmt.Errorf("update mapping: %w", err)
	}

	b.record(ctx, model.DirectionInbound, model.EventStatusSync,
		fmt.Sprintf("KB task #%d column '%s' -> OST task %s status '%s'", m.TargetID, ch.Column, m.SourceNumber, newStatus), r)

	note := fmt.Sprintf("Kanboard task #%d moved to column '%s'. Task status set to %s.\n%s",
		m.TargetID, ch.Column, newStatus, b.targetTaskURL(m.TargetID, m.ContainerID))
	if err := b.source.AddNote(ctx, model.NoteTarget{Kind: model.NoteTask, ID: m.SourceID}, note); err != nil {
		b.record(ctx, model.DirectionInbound, model.EventWarningNote,
			fmt.Sprintf("OST task %s: task note: %v", m.SourceNumber, err), r)
	}
	return Synced, nil
}

// ResolveTaskColumn fetches a Kanboard task and names the column it is in.
// containerID overrides the task's own project when non-zero.
func (b *Bridge) ResolveTaskColumn(ctx context.Context, taskID, containerID int64) (ColumnChange, error) {
	return b.resolveTaskColumn(ctx, newColumnCache(b.target), taskID, containerID)
}

func (b *Bridge) resolveTaskColumn(ctx context.Context, cols *columnCache, taskID, containerID int64) (ColumnChange, error) {
	task, err := b.target.GetTask(ctx, taskID)
	if err != nil {
		return ColumnChange{}, fmt.Errorf("get KB task #%d: %w", taskID, err)
	}
	if containerID == 0 {
		containerID = task.ContainerID
	}
	name, err := cols.name(ctx, containerID, task.ColumnID)
	if err != nil {
		return ColumnChange{}, fmt.Errorf("resolve column %d: %w", task.ColumnID, err)
	}
	if name == "" {
		return ColumnChange{}, syncerr.LookupMissf("bridge.resolveTaskColumn",
			"column %d not found in project %d", task.ColumnID, containerID)
	}
	return ColumnChange{TargetID: taskID, ContainerID: containerID, Column: name}, nil
}
