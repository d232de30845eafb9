package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/store"
	"github.com/MMOzz/OSTKanBridge/internal/syncerr"
)

// CreateResult summarises one creator pass.
type CreateResult struct {
	Listed  int `json:"listed"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// CreateNew creates a Kanboard task for every eligible osTicket task that is
// not bridged yet. Entities are handled one at a time; a failing entity is
// recorded as error_create and the pass moves on. The returned error is
// non-nil only when the candidates could not be listed.
func (b *Bridge) CreateNew(ctx context.Context) (CreateResult, error) {
	var res CreateResult
	log := b.logger(ctx)

	mappings, err := b.store.ListMappings(ctx)
	if err != nil {
		b.recordErr(ctx, model.DirectionOutbound, model.EventError, "list mappings", err, ref{})
		return res, fmt.Errorf("list mappings: %w", err)
	}
	exclude := make([]int64, 0, len(mappings))
	for _, m := range mappings {
		exclude = append(exclude, m.SourceID)
	}

	entities, err := b.source.ListEligibleNew(ctx, exclude, b.opts.CreateBatch)
	if err != nil {
		b.recordErr(ctx, model.DirectionOutbound, model.EventError, "list eligible tasks", err, ref{})
		return res, fmt.Errorf("list eligible tasks: %w", err)
	}
	res.Listed = len(entities)

	cols := newColumnCache(b.target)
	for _, e := range entities {
		if ctx.Err() != nil {
			break
		}
		created, err := b.createOne(ctx, cols, e)
		switch {
		case err != nil:
			res.Failed++
			b.recordErr(ctx, model.DirectionOutbound, model.EventErrorCreate,
				fmt.Sprintf("OST task %s", e.Number), err, ref{sourceID: e.ID})
		case created:
			res.Created++
		default:
			res.Skipped++
		}
	}
	log.Debug("creator pass finished", "listed", res.Listed, "created", res.Created, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// createOne bridges a single entity. It reports false with a nil error when
// the entity turned out to be mapped already.
func (b *Bridge) createOne(ctx context.Context, cols *columnCache, e model.SourceEntity) (bool, error) {
	log := b.logger(ctx).With("source_id", e.ID)

	if _, err := b.store.GetBySource(ctx, e.ID); err == nil {
		return false, nil
	} else if !store.IsNotFound(err) {
		return false, fmt.Errorf("lookup mapping: %w", err)
	}

	containerID, err := b.routeContainer(ctx, e.CategoryID)
	if err != nil {
		return false, err
	}

	column := b.tr.ToColumn(e.Status)
	columnID, err := cols.id(ctx, containerID, column)
	if err != nil {
		return false, fmt.Errorf("resolve column %q: %w", column, err)
	}
	if columnID == 0 {
		log.Debug("column not on board, creating in default column", "column", column, "container_id", containerID)
	}

	targetID, err := b.target.CreateTask(ctx, containerID, b.title(e), b.description(e), columnID)
	if err != nil {
		return false, fmt.Errorf("create task: %w", err)
	}

	if columnID == 0 {
		// Record where the task actually is, or the next inbound poll sees a
		// move that never happened.
		column = b.landedColumn(ctx, cols, targetID, containerID)
		log.Warn("task created outside its translated column", "target_id", targetID,
			"wanted", b.tr.ToColumn(e.Status), "column", column)
	}

	sourceState, err := b.source.GetStatus(ctx, e.ID)
	if err != nil {
		log.Debug("status read failed, using listed status", "err", err)
		sourceState = e.Status
	}

	m := &model.Mapping{
		SourceID:        e.ID,
		SourceNumber:    e.Number,
		TargetID:        targetID,
		ContainerID:     containerID,
		LastSourceState: sourceState,
		LastTargetState: column,
	}
	if err := model.ValidateMapping(m); err != nil {
		return false, syncerr.E(syncerr.Validation, "bridge.createOne", fmt.Errorf("mapping for KB task #%d: %w", targetID, err))
	}
	inserted, err := b.store.InsertIfAbsent(ctx, m)
	if err != nil {
		return false, fmt.Errorf("store mapping for KB task #%d: %w", targetID, err)
	}
	if !inserted {
		// Another run bridged this entity first; the task just created is a duplicate.
		log.Warn("mapping already present, created task is a duplicate", "target_id", targetID)
		return false, nil
	}

	b.crossLink(ctx, e, targetID, containerID)

	b.record(ctx, model.DirectionOutbound, model.EventCreated,
		fmt.Sprintf("OST task %s -> KB task #%d", e.Number, targetID), ref{sourceID: e.ID, targetID: targetID})
	return true, nil
}

// landedColumn names the column a freshly created task sits in. It falls
// back to the first column of the board, where Kanboard puts tasks created
// without a column.
func (b *Bridge) landedColumn(ctx context.Context, cols *columnCache, targetID, containerID int64) string {
	if ch, err := b.resolveTaskColumn(ctx, cols, targetID, containerID); err == nil {
		return ch.Column
	}
	if list, err := cols.list(ctx, containerID); err == nil && len(list) > 0 {
		return list[0].Name
	}
	return ""
}

// routeContainer picks the Kanboard project for a help topic.
func (b *Bridge) routeContainer(ctx context.Context, categoryID int64) (int64, error) {
	if categoryID <= 0 {
		return b.opts.DefaultContainer, nil
	}
	rule, err := b.store.GetRoutingRule(ctx, categoryID)
	if store.IsNotFound(err) {
		return b.opts.DefaultContainer, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup routing rule: %w", err)
	}
	return rule.ContainerID, nil
}

// crossLink performs the best-effort steps after a mapping is committed.
// Failures become warning events and never undo the mapping.
func (b *Bridge) crossLink(ctx context.Context, e model.SourceEntity, targetID, containerID int64) {
	r := ref{sourceID: e.ID, targetID: targetID}
	taskURL := b.targetTaskURL(targetID, containerID)

	if err := b.source.SetAttribute(ctx, e.ID, b.opts.TaskField, strconv.FormatInt(targetID, 10)); err != nil {
		b.record(ctx, model.DirectionOutbound, model.EventWarningWriteback,
			fmt.Sprintf("OST task %s: write back KB task #%d: %v", e.Number, targetID, err), r)
	}

	note := fmt.Sprintf("Kanboard task created: Task #%d\n%s", targetID, taskURL)
	if err := b.source.AddNote(ctx, model.NoteTarget{Kind: model.NoteTask, ID: e.ID}, note); err != nil {
		b.record(ctx, model.DirectionOutbound, model.EventWarningNote,
			fmt.Sprintf("OST task %s: task note: %v", e.Number, err), r)
	}
	if e.TicketID > 0 {
		note := fmt.Sprintf("Kanboard task created for OST task %s: Task #%d\n%s", e.Number, targetID, taskURL)
		if err := b.source.AddNote(ctx, model.NoteTarget{Kind: model.NoteTicket, ID: e.TicketID}, note); err != nil {
			b.record(ctx, model.DirectionOutbound, model.EventWarningNote,
				fmt.Sprintf("OST ticket %s: ticket note: %v", e.TicketNumber, err), r)
		}
	}

	comment := fmt.Sprintf("Linked to osTicket task %s: %s", e.Number, b.sourceTaskURL(e.ID))
	if e.TicketID > 0 && e.TicketNumber != "" {
		comment += fmt.Sprintf("\nLinked ticket #%s: %s", e.TicketNumber, b.sourceTicketURL(e.TicketID))
	}
	if err := b.target.AddComment(ctx, targetID, comment); err != nil {
		b.record(ctx, model.DirectionOutbound, model.EventWarningComment,
			fmt.Sprintf("KB task #%d: comment: %v", targetID, err), r)
	}
}

func (b *Bridge) title(e model.SourceEntity) string {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		title = "No Subject"
	}
	return fmt.Sprintf("[OST %s] %s", e.Number, title)
}

// description renders the Markdown body of a new Kanboard task.
func (b *Bridge) description(e model.SourceEntity) string {
	lines := []string{
		"## osTicket Task Details",
		fmt.Sprintf("**Task #:** [%s](%s)", e.Number, b.sourceTaskURL(e.ID)),
	}
	if e.TicketID > 0 && e.TicketNumber != "" {
		lines = append(lines, fmt.Sprintf("**Linked Ticket #:** [%s](%s)", e.TicketNumber, b.sourceTicketURL(e.TicketID)))
	}
	if e.RequesterName != "" {
		lines = append(lines, fmt.Sprintf("**Requester:** %s (%s)", e.RequesterName, e.RequesterEmail))
	}
	if e.CategoryName != "" {
		lines = append(lines, fmt.Sprintf("**Help Topic:** %s", e.CategoryName))
	}
	if e.TicketStatus != "" {
		lines = append(lines, fmt.Sprintf("**Ticket Status:** %s", e.TicketStatus))
	}
	if !e.CreatedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("**Created:** %s", e.CreatedAt.Format("2006-01-02 15:04:05")))
	}
	return strings.Join(lines, "\n\n")
}

func (b *Bridge) sourceTaskURL(id int64) string {
	return fmt.Sprintf("%s/scp/tasks.php?id=%d", b.opts.SourceBaseURL, id)
}

func (b *Bridge) sourceTicketURL(id int64) string {
	return fmt.Sprintf("%s/scp/tickets.php?id=%d", b.opts.SourceBaseURL, id)
}

func (b *Bridge) targetTaskURL(taskID, containerID int64) string {
	return fmt.Sprintf("%s/?controller=TaskViewController&action=show&task_id=%d&project_id=%d",
		b.opts.TargetBaseURL, taskID, containerID)
}
