package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/MMOzz/OSTKanBridge/internal/model"
)

// OutboundResult summarises one outbound reconciliation pass.
type OutboundResult struct {
	Changed int `json:"changed"`
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ReconcileOutbound moves the Kanboard task of every bridged osTicket task
// whose status changed within the lookback window. A column that is not on
// the board is skipped without touching stored state, so the next pass
// retries it.
func (b *Bridge) ReconcileOutbound(ctx context.Context) (OutboundResult, error) {
	var res OutboundResult

	mappings, err := b.store.ListMappings(ctx)
	if err != nil {
		b.recordErr(ctx, model.DirectionOutbound, model.EventError, "list mappings", err, ref{})
		return res, fmt.Errorf("list mappings: %w", err)
	}
	if len(mappings) == 0 {
		return res, nil
	}

	index := make(map[int64]*model.Mapping, len(mappings))
	ids := make([]int64, 0, len(mappings))
	for _, m := range mappings {
		index[m.SourceID] = m
		ids = append(ids, m.SourceID)
	}

	changed, err := b.source.ListChangedSince(ctx, ids, b.opts.Lookback)
	if err != nil {
		b.recordErr(ctx, model.DirectionOutbound, model.EventError, "list changed tasks", err, ref{})
		return res, fmt.Errorf("list changed tasks: %w", err)
	}
	res.Changed = len(changed)

	cols := newColumnCache(b.target)
	for _, e := range changed {
		if ctx.Err() != nil {
			break
		}
		m := index[e.ID]
		if m == nil || strings.EqualFold(e.Status, m.LastSourceState) {
			res.Skipped++
			continue
		}
		synced, err := b.applyOutbound(ctx, cols, m, e)
		switch {
		case err != nil:
			res.Failed++
			b.recordErr(ctx, model.DirectionOutbound, model.EventErrorStatus,
				fmt.Sprintf("OST task %s", m.SourceNumber), err, ref{sourceID: m.SourceID, targetID: m.TargetID})
		case synced:
			res.Synced++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

func (b *Bridge) applyOutbound(ctx context.Context, cols *columnCache, m *model.Mapping, e model.SourceEntity) (bool, error) {
	column := b.tr.ToColumn(e.Status)
	columnID, err := cols.id(ctx, m.ContainerID, column)
	if err != nil {
		return false, fmt.Errorf("resolve column %q: %w", column, err)
	}
	if columnID == 0 {
		b.logger(ctx).Debug("column not on board, will retry",
			"source_id", m.SourceID, "target_id", m.TargetID, "column", column, "container_id", m.ContainerID)
		return false, nil
	}

	if err := b.target.MoveToColumn(ctx, m.TargetID, m.ContainerID, columnID); err != nil {
		return false, fmt.Errorf("move KB task #%d: %w", m.TargetID, err)
	}
	if err := b.store.UpdateState(ctx, m.SourceID, e.Status, column); err != nil {
		return false, fmt.Errorf("update mapping: %w", err)
	}

	b.record(ctx, model.DirectionOutbound, model.EventStatusSync,
		fmt.Sprintf("OST task %s status '%s' -> KB column '%s'", m.SourceNumber, e.Status, column),
		ref{sourceID: m.SourceID, targetID: m.TargetID})
	return true, nil
}
