// Package bridge is the synchronization engine between osTicket and
// Kanboard. It creates Kanboard tasks for newly flagged osTicket tasks and
// reconciles status changes in both directions through the mapping store.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MMOzz/OSTKanBridge/internal/events"
	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/status"
	"github.com/MMOzz/OSTKanBridge/internal/store"
	"github.com/MMOzz/OSTKanBridge/internal/syncerr"
)

// Source is the helpdesk side of the bridge (osTicket).
type Source interface {
	ListEligibleNew(ctx context.Context, exclude []int64, limit int) ([]model.SourceEntity, error)
	ListChangedSince(ctx context.Context, ids []int64, window time.Duration) ([]model.SourceEntity, error)
	GetAttribute(ctx context.Context, id int64, name string) (string, error)
	SetAttribute(ctx context.Context, id int64, name, value string) error
	AddNote(ctx context.Context, target model.NoteTarget, text string) error
	SetStatus(ctx context.Context, id int64, status string) error
	GetStatus(ctx context.Context, id int64) (string, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
}

// Target is the board side of the bridge (Kanboard).
type Target interface {
	CreateTask(ctx context.Context, containerID int64, title, description string, columnID int64) (int64, error)
	GetTask(ctx context.Context, id int64) (*model.TargetTask, error)
	MoveToColumn(ctx context.Context, taskID, containerID, columnID int64) error
	AddComment(ctx context.Context, taskID int64, text string) error
	ListColumns(ctx context.Context, containerID int64) ([]model.Column, error)
	ListContainers(ctx context.Context) ([]model.Container, error)
}

// Deps are the collaborators a Bridge works through. Store, Source, Target
// and Translation are required.
type Deps struct {
	Store       store.Store
	Source      Source
	Target      Target
	Translation *status.Translation
	Publisher   events.Publisher
	Logger      *slog.Logger
}

// Options tune the bridge's behaviour.
type Options struct {
	// DefaultContainer is the Kanboard project used when a help topic has no routing rule.
	DefaultContainer int64
	// CreateBatch caps how many new tasks one outbound run considers.
	CreateBatch int
	// Lookback bounds the outbound "recently changed" query.
	Lookback time.Duration
	// SourceBaseURL and TargetBaseURL build the cross-links in notes and comments.
	SourceBaseURL string
	TargetBaseURL string
	// TaskField is the osTicket form field that receives the Kanboard task id.
	TaskField string
}

// Bridge runs the creator and both reconcilers.
type Bridge struct {
	store  store.Store
	source Source
	target Target
	tr     *status.Translation
	pub    events.Publisher
	log    *slog.Logger
	opts   Options
}

// New validates deps and fills option defaults.
func New(d Deps, o Options) (*Bridge, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("bridge: store is required")
	case d.Source == nil:
		return nil, errors.New("bridge: source is required")
	case d.Target == nil:
		return nil, errors.New("bridge: target is required")
	case d.Translation == nil:
		return nil, errors.New("bridge: translation is required")
	}
	if o.DefaultContainer <= 0 {
		return nil, errors.New("bridge: default container is required")
	}
	if o.CreateBatch <= 0 {
		o.CreateBatch = 100
	}
	if o.Lookback <= 0 {
		o.Lookback = 90 * time.Second
	}
	if o.TaskField == "" {
		o.TaskField = "kanboard_task_id"
	}
	o.SourceBaseURL = strings.TrimRight(o.SourceBaseURL, "/")
	o.TargetBaseURL = strings.TrimRight(o.TargetBaseURL, "/")

	pub := d.Publisher
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		store:  d.Store,
		source: d.Source,
		target: d.Target,
		tr:     d.Translation,
		pub:    pub,
		log:    log,
		opts:   o,
	}, nil
}

type runIDKey struct{}

// WithRunID tags ctx with a correlation id that is attached to every log
// line and published event produced under it.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the correlation id carried by ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func (b *Bridge) logger(ctx context.Context) *slog.Logger {
	if id := RunID(ctx); id != "" {
		return b.log.With("run_id", id)
	}
	return b.log
}

// ref identifies the entities an audit entry is about.
type ref struct {
	sourceID int64
	targetID int64
	err      error // cause of an error entry, classified in the log
}

// record appends an audit entry, mirrors it to the log and publishes it.
// Store and publish failures are logged and otherwise ignored.
func (b *Bridge) record(ctx context.Context, dir model.Direction, kind, detail string, r ref) {
	ev := &model.SyncEvent{Direction: dir, Kind: kind, Detail: detail}
	log := b.logger(ctx)
	attrs := []any{"direction", string(dir), "kind", kind, "detail", detail}
	if r.sourceID != 0 {
		attrs = append(attrs, "source_id", r.sourceID)
	}
	if r.targetID != 0 {
		attrs = append(attrs, "target_id", r.targetID)
	}
	if r.err != nil {
		attrs = append(attrs, "error_kind", syncerr.KindOf(r.err).String(), "retryable", syncerr.IsRetryable(r.err))
	}
	if ev.IsFailure() {
		log.Warn("sync event", attrs...)
	} else {
		log.Info("sync event", attrs...)
	}

	if err := b.store.AppendEvent(ctx, ev); err != nil {
		log.Warn("failed to record event", "kind", kind, "err", err)
	}
	payload := events.SyncRecorded{RunID: RunID(ctx), SourceID: r.sourceID, TargetID: r.targetID, Event: ev}
	if err := b.pub.Publish(ctx, events.Topic(kind), payload); err != nil {
		log.Warn("failed to publish event", "kind", kind, "err", err)
	}
}

// recordErr records an error entry whose detail ends with err. Terminal
// failures are marked so operators know the next cycle will not fix them.
func (b *Bridge) recordErr(ctx context.Context, dir model.Direction, kind, prefix string, err error, r ref) {
	detail := fmt.Sprintf("%s: %v", prefix, err)
	if !syncerr.IsRetryable(err) {
		detail += " [" + syncerr.KindOf(err).String() + ", not retried]"
	}
	r.err = err
	b.record(ctx, dir, kind, detail, r)
}

// RecordWebhook appends a webhook_received or webhook_error entry.
func (b *Bridge) RecordWebhook(ctx context.Context, kind, detail string) {
	b.record(ctx, model.DirectionInbound, kind, detail, ref{})
}

// columnCache memoises board columns per project for the duration of one run.
type columnCache struct {
	target Target
	cols   map[int64][]model.Column
}

func newColumnCache(t Target) *columnCache {
	return &columnCache{target: t, cols: make(map[int64][]model.Column)}
}

func (c *columnCache) list(ctx context.Context, containerID int64) ([]model.Column, error) {
	if cols, ok := c.cols[containerID]; ok {
		return cols, nil
	}
	cols, err := c.target.ListColumns(ctx, containerID)
	if err != nil {
		return nil, err
	}
	c.cols[containerID] = cols
	return cols, nil
}

// id resolves a column name case-insensitively. 0 means no such column.
func (c *columnCache) id(ctx context.Context, containerID int64, name string) (int64, error) {
	cols, err := c.list(ctx, containerID)
	if err != nil {
		return 0, err
	}
	for _, col := range cols {
		if strings.EqualFold(col.Name, name) {
			return col.ID, nil
		}
	}
	return 0, nil
}

// name resolves a column id. "" means no such column.
func (c *columnCache) name(ctx context.Context, containerID, columnID int64) (string, error) {
	cols, err := c.list(ctx, containerID)
	if err != nil {
		return "", err
	}
	for _, col := range cols {
		if col.ID == columnID {
			return col.Name, nil
		}
	}
	return "", nil
}
