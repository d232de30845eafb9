package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/MMOzz/OSTKanBridge/internal/events"
	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/status"
	"github.com/MMOzz/OSTKanBridge/internal/syncerr"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	runIDs []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if rec, ok := event.(events.SyncRecorded); ok {
		p.runIDs = append(p.runIDs, rec.RunID)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestNew_RequiresDeps(t *testing.T) {
	full := Deps{
		Store:       newMockStore(),
		Source:      newMockSource(),
		Target:      newMockTarget(),
		Translation: status.Default(),
	}
	for _, tc := range []struct {
		name string
		mut  func(*Deps, *Options)
	}{
		{"NoStore", func(d *Deps, _ *Options) { d.Store = nil }},
		{"NoSource", func(d *Deps, _ *Options) { d.Source = nil }},
		{"NoTarget", func(d *Deps, _ *Options) { d.Target = nil }},
		{"NoTranslation", func(d *Deps, _ *Options) { d.Translation = nil }},
		{"NoDefaultContainer", func(_ *Deps, o *Options) { o.DefaultContainer = 0 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, o := full, Options{DefaultContainer: 1}
			tc.mut(&d, &o)
			if _, err := New(d, o); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	b, err := New(full, Options{DefaultContainer: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.opts.CreateBatch != 100 || b.opts.Lookback.Seconds() != 90 || b.opts.TaskField != "kanboard_task_id" {
		t.Errorf("defaults not applied: %+v", b.opts)
	}
}

func TestCreateNew_IsIdempotent(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"), entity(2, "000002", "open"))
	ctx := context.Background()

	res, err := f.bridge.CreateNew(ctx)
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	if res.Created != 2 || res.Failed != 0 {
		t.Fatalf("first run = %+v, want 2 created", res)
	}

	m := f.store.mapping(1)
	if m == nil {
		t.Fatal("expected mapping for source 1")
	}
	if m.LastSourceState != "open" || m.LastTargetState != "Backlog" || m.ContainerID != 1 {
		t.Errorf("mapping = %+v", m)
	}
	if got := f.source.attrs[1]["kanboard_task_id"]; got == "" {
		t.Error("expected task id written back to source attribute")
	}

	res, err = f.bridge.CreateNew(ctx)
	if err != nil {
		t.Fatalf("second CreateNew: %v", err)
	}
	if res.Created != 0 || res.Listed != 0 {
		t.Errorf("second run = %+v, want nothing", res)
	}
	if n := f.target.taskCount(); n != 2 {
		t.Errorf("target tasks = %d, want 2", n)
	}
	if n := f.store.count(model.EventCreated); n != 2 {
		t.Errorf("created events = %d, want 2", n)
	}
}

func TestCreateNew_Routing(t *testing.T) {
	routed := entity(1, "000001", "open")
	routed.CategoryID = 5
	unrouted := entity(2, "000002", "open")
	unrouted.CategoryID = 7
	f := newFixture(t, routed, unrouted)
	ctx := context.Background()

	if err := f.store.UpsertRoutingRule(ctx, &model.RoutingRule{CategoryID: 5, ContainerID: 9}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.bridge.CreateNew(ctx); err != nil {
		t.Fatalf("CreateNew: %v", err)
	}

	for _, tc := range []struct {
		source int64
		want   int64
	}{
		{1, 9},
		{2, 1},
	} {
		m := f.store.mapping(tc.source)
		if m == nil {
			t.Fatalf("no mapping for %d", tc.source)
		}
		if m.ContainerID != tc.want {
			t.Errorf("source %d container = %d, want %d", tc.source, m.ContainerID, tc.want)
		}
		task, _ := f.target.GetTask(ctx, m.TargetID)
		if task.ContainerID != tc.want {
			t.Errorf("task %d created in project %d, want %d", task.ID, task.ContainerID, tc.want)
		}
	}
}

func TestCreateNew_ClosedStartsInDone(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "closed"))
	if _, err := f.bridge.CreateNew(context.Background()); err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	m := f.store.mapping(1)
	task, _ := f.target.GetTask(context.Background(), m.TargetID)
	if task.ColumnID != 4 || m.LastTargetState != "Done" {
		t.Errorf("task column = %d, last target = %q; want 4, Done", task.ColumnID, m.LastTargetState)
	}
}

func TestCreateNew_MissingColumnUsesBoardDefault(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "closed"))
	f.target.columns = f.target.columns[:3] // no Done
	ctx := context.Background()

	res, err := f.bridge.CreateNew(ctx)
	if err != nil || res.Created != 1 {
		t.Fatalf("CreateNew = %+v, %v", res, err)
	}
	m := f.store.mapping(1)
	task, _ := f.target.GetTask(ctx, m.TargetID)
	if task.ColumnID != 1 {
		t.Errorf("task column = %d, want board default 1", task.ColumnID)
	}
	if m.LastSourceState != "closed" || m.LastTargetState != "Backlog" {
		t.Errorf("mapping = %s/%s, want closed/Backlog", m.LastSourceState, m.LastTargetState)
	}

	// Nothing moved on the board, so polling must not reopen the task.
	rep, err := f.bridge.RunInbound(ctx)
	if err != nil {
		t.Fatalf("RunInbound: %v", err)
	}
	if rep.Unchanged != 1 || rep.Synced != 0 {
		t.Errorf("inbound report = %+v, want 1 unchanged", rep)
	}
	if f.source.statusCalls() != 0 {
		t.Errorf("SetStatus calls = %d, want 0", f.source.statusCalls())
	}
	if st, _ := f.source.GetStatus(ctx, 1); st != "closed" {
		t.Errorf("source status = %q, want closed", st)
	}
}

func TestCreateNew_MissingColumnTaskUnreadable(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "closed"))
	f.target.columns = f.target.columns[:3]
	f.target.getErr = errBoom

	if res, _ := f.bridge.CreateNew(context.Background()); res.Created != 1 {
		t.Fatalf("res = %+v, want 1 created", res)
	}
	if got := f.store.mapping(1).LastTargetState; got != "Backlog" {
		t.Errorf("last target = %q, want first board column Backlog", got)
	}
}

func TestCreateNew_InvalidMappingIsTerminal(t *testing.T) {
	f := newFixture(t, entity(1, " ", "open"))

	res, _ := f.bridge.CreateNew(context.Background())
	if res.Failed != 1 || f.store.mapping(1) != nil {
		t.Fatalf("res = %+v, mapping = %+v", res, f.store.mapping(1))
	}
	details := f.store.details(model.EventErrorCreate)
	if len(details) != 1 || !strings.Contains(details[0], "source_number") || !strings.Contains(details[0], "validation, not retried") {
		t.Errorf("error_create details = %q", details)
	}
}

func TestCreateNew_TitleAndDescription(t *testing.T) {
	f := newFixture(t)
	e := entity(7, "000123", "open")
	e.TicketID = 40
	e.TicketNumber = "500777"
	e.RequesterName = "Ada"
	e.RequesterEmail = "ada@example.com"
	e.CategoryName = "Printers"

	if got := f.bridge.title(e); got != "[OST 000123] Printer on fire" {
		t.Errorf("title = %q", got)
	}
	e.Title = "  "
	if got := f.bridge.title(e); got != "[OST 000123] No Subject" {
		t.Errorf("empty title = %q", got)
	}

	desc := f.bridge.description(e)
	for _, want := range []string{
		"[000123](https://helpdesk.example.com/scp/tasks.php?id=7)",
		"[500777](https://helpdesk.example.com/scp/tickets.php?id=40)",
		"**Requester:** Ada (ada@example.com)",
		"**Help Topic:** Printers",
		"**Created:** 2024-03-01 09:07:00",
	} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q:\n%s", want, desc)
		}
	}
	if got := f.bridge.targetTaskURL(101, 9); got != "https://board.example.com/?controller=TaskViewController&action=show&task_id=101&project_id=9" {
		t.Errorf("task url = %q", got)
	}
}

func TestCreateNew_CrossLinkFailuresAreWarnings(t *testing.T) {
	e := entity(1, "000001", "open")
	e.TicketID = 40
	e.TicketNumber = "500777"
	f := newFixture(t, e)
	f.source.attrErr = errBoom
	f.source.noteErr = errBoom
	f.target.commentErr = errBoom

	res, err := f.bridge.CreateNew(context.Background())
	if err != nil || res.Created != 1 {
		t.Fatalf("CreateNew = %+v, %v", res, err)
	}
	if f.store.mapping(1) == nil {
		t.Fatal("mapping must survive best-effort failures")
	}
	for kind, want := range map[string]int{
		model.EventWarningWriteback: 1,
		model.EventWarningNote:      2,
		model.EventWarningComment:   1,
		model.EventCreated:          1,
	} {
		if got := f.store.count(kind); got != want {
			t.Errorf("%s events = %d, want %d", kind, got, want)
		}
	}
}

func TestCreateNew_ErrorIsolation(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"), entity(2, "000002", "open"))
	f.target.createErr = errBoom
	ctx := context.Background()

	res, err := f.bridge.CreateNew(ctx)
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	if res.Failed != 2 || res.Created != 0 {
		t.Fatalf("res = %+v, want 2 failed", res)
	}
	if n := f.store.count(model.EventErrorCreate); n != 2 {
		t.Errorf("error_create events = %d, want 2", n)
	}

	f.target.createErr = nil
	res, _ = f.bridge.CreateNew(ctx)
	if res.Created != 2 {
		t.Errorf("retry created = %d, want 2", res.Created)
	}
}

func TestCreateNew_ListFailure(t *testing.T) {
	f := newFixture(t)
	f.source.listErr = errBoom
	if _, err := f.bridge.CreateNew(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if f.store.count(model.EventError) != 1 {
		t.Errorf("events = %v", f.store.kinds())
	}
}

func TestCreateNew_ConcurrentRunsConverge(t *testing.T) {
	var entities []model.SourceEntity
	for i := int64(1); i <= 20; i++ {
		entities = append(entities, entity(i, "T"+string(rune('A'+i)), "open"))
	}
	f := newFixture(t, entities...)
	bridges := []*Bridge{f.bridge, f.newBridge(t), f.newBridge(t)}

	var wg sync.WaitGroup
	for _, b := range bridges {
		wg.Add(1)
		go func(b *Bridge) {
			defer wg.Done()
			_, _ = b.CreateNew(context.Background())
		}(b)
	}
	wg.Wait()

	mappings, _ := f.store.ListMappings(context.Background())
	if len(mappings) != 20 {
		t.Fatalf("mappings = %d, want 20", len(mappings))
	}
	targets := make(map[int64]bool)
	for _, m := range mappings {
		if targets[m.TargetID] {
			t.Errorf("target %d mapped twice", m.TargetID)
		}
		targets[m.TargetID] = true
	}
	if n := f.store.count(model.EventCreated); n != 20 {
		t.Errorf("created events = %d, want 20", n)
	}
}

func TestReconcileOutbound_ForwardTransition(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"))
	ctx := context.Background()
	if _, err := f.bridge.CreateNew(ctx); err != nil {
		t.Fatal(err)
	}

	f.source.setStatus(1, "closed")
	res, err := f.bridge.ReconcileOutbound(ctx)
	if err != nil {
		t.Fatalf("ReconcileOutbound: %v", err)
	}
	if res.Synced != 1 {
		t.Fatalf("res = %+v, want 1 synced", res)
	}
	if f.target.moveCount() != 1 || f.target.moves[0] != 4 {
		t.Errorf("moves = %v, want [4]", f.target.moves)
	}
	m := f.store.mapping(1)
	if m.LastSourceState != "closed" || m.LastTargetState != "Done" {
		t.Errorf("mapping = %s/%s, want closed/Done", m.LastSourceState, m.LastTargetState)
	}

	// Still inside the lookback window: nothing further to do.
	res, _ = f.bridge.ReconcileOutbound(ctx)
	if res.Synced != 0 || res.Skipped != 1 || f.target.moveCount() != 1 {
		t.Errorf("second pass = %+v, moves = %d", res, f.target.moveCount())
	}
	if n := f.store.count(model.EventStatusSync); n != 1 {
		t.Errorf("status_sync events = %d, want 1", n)
	}
}

func TestReconcileOutbound_OverlappingRunsConverge(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"), entity(2, "000002", "open"))
	ctx := context.Background()
	if _, err := f.bridge.CreateNew(ctx); err != nil {
		t.Fatal(err)
	}
	f.source.setStatus(1, "closed")
	f.source.setStatus(2, "closed")

	bridges := []*Bridge{f.bridge, f.newBridge(t)}
	var wg sync.WaitGroup
	for _, b := range bridges {
		wg.Add(1)
		go func(b *Bridge) {
			defer wg.Done()
			_, _ = b.ReconcileOutbound(ctx)
		}(b)
	}
	wg.Wait()

	for _, id := range []int64{1, 2} {
		m := f.store.mapping(id)
		task, err := f.target.GetTask(ctx, m.TargetID)
		if err != nil {
			t.Fatal(err)
		}
		if task.ColumnID != 4 {
			t.Errorf("task %d column = %d, want 4 (Done)", m.TargetID, task.ColumnID)
		}
		if m.LastSourceState != "closed" || m.LastTargetState != "Done" {
			t.Errorf("mapping %d = %s/%s, want closed/Done", id, m.LastSourceState, m.LastTargetState)
		}
	}
}

func TestReconcileOutbound_CaseInsensitiveStatus(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"))
	ctx := context.Background()
	_, _ = f.bridge.CreateNew(ctx)

	f.source.setStatus(1, "OPEN")
	res, _ := f.bridge.ReconcileOutbound(ctx)
	if res.Skipped != 1 || f.target.moveCount() != 0 {
		t.Errorf("res = %+v, moves = %d", res, f.target.moveCount())
	}
}

func TestReconcileOutbound_MissingColumnRetriesLater(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"))
	ctx := context.Background()
	_, _ = f.bridge.CreateNew(ctx)

	all := f.target.columns
	f.target.columns = all[:3]
	f.source.setStatus(1, "closed")

	res, _ := f.bridge.ReconcileOutbound(ctx)
	if res.Skipped != 1 || res.Failed != 0 {
		t.Fatalf("res = %+v, want skipped", res)
	}
	if m := f.store.mapping(1); m.LastSourceState != "open" {
		t.Errorf("state committed without a move: %+v", m)
	}

	f.target.columns = all
	res, _ = f.bridge.ReconcileOutbound(ctx)
	if res.Synced != 1 {
		t.Errorf("after column added = %+v, want synced", res)
	}
}

func TestReconcileOutbound_MoveFailure(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"))
	ctx := context.Background()
	_, _ = f.bridge.CreateNew(ctx)

	f.target.moveErr = errBoom
	f.source.setStatus(1, "closed")
	res, err := f.bridge.ReconcileOutbound(ctx)
	if err != nil {
		t.Fatalf("ReconcileOutbound: %v", err)
	}
	if res.Failed != 1 || f.store.count(model.EventErrorStatus) != 1 {
		t.Errorf("res = %+v, events = %v", res, f.store.kinds())
	}
	if m := f.store.mapping(1); m.LastSourceState != "open" {
		t.Errorf("state committed after failed move: %+v", m)
	}
}

func TestHandleColumnChange(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"))
	ctx := context.Background()
	_, _ = f.bridge.CreateNew(ctx)
	target := f.store.mapping(1).TargetID

	for _, tc := range []struct {
		name       string
		change     ColumnChange
		want       InboundResult
		wantSource string
		wantTarget string
		wantCalls  int
	}{
		{"Unknown", ColumnChange{TargetID: 999, Column: "Done"}, Ignored, "open", "Backlog", 0},
		{"Unchanged", ColumnChange{TargetID: target, Column: "Backlog"}, Unchanged, "open", "Backlog", 0},
		{"Lateral", ColumnChange{TargetID: target, Column: "Work in progress"}, Lateral, "open", "Work in progress", 0},
		{"Forward", ColumnChange{TargetID: target, Column: "Done"}, Synced, "closed", "Done", 1},
		{"Repeat", ColumnChange{TargetID: target, Column: "Done"}, Unchanged, "closed", "Done", 1},
		{"Reopen", ColumnChange{TargetID: target, Column: "Ready"}, Synced, "open", "Ready", 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.bridge.HandleColumnChange(ctx, tc.change)
			if err != nil {
				t.Fatalf("HandleColumnChange: %v", err)
			}
			if got != tc.want {
				t.Errorf("result = %v, want %v", got, tc.want)
			}
			m := f.store.mapping(1)
			if m.LastSourceState != tc.wantSource || m.LastTargetState != tc.wantTarget {
				t.Errorf("mapping = %s/%s, want %s/%s", m.LastSourceState, m.LastTargetState, tc.wantSource, tc.wantTarget)
			}
			if n := f.source.statusCalls(); n != tc.wantCalls {
				t.Errorf("SetStatus calls = %d, want %d", n, tc.wantCalls)
			}
		})
	}
	if n := f.store.count(model.EventStatusSync); n != 2 {
		t.Errorf("status_sync events = %d, want 2", n)
	}
}

func TestHandleColumnChange_UnknownTargetRecordsNothing(t *testing.T) {
	f := newFixture(t)
	got, err := f.bridge.HandleColumnChange(context.Background(), ColumnChange{TargetID: 42, Column: "Done"})
	if err != nil || got != Ignored {
		t.Fatalf("got %v, %v", got, err)
	}
	if f.source.statusCalls() != 0 || len(f.store.kinds()) != 0 {
		t.Errorf("calls = %d, events = %v", f.source.statusCalls(), f.store.kinds())
	}
}

func TestHandleColumnChange_Failures(t *testing.T) {
	for _, tc := range []struct {
		name string
		mut  func(*fixture)
	}{
		{"SetStatus", func(f *fixture) { f.source.setStatusErr = errBoom }},
		{"Commit", func(f *fixture) { f.store.updateErr = errBoom }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, entity(1, "000001", "open"))
			ctx := context.Background()
			_, _ = f.bridge.CreateNew(ctx)
			target := f.store.mapping(1).TargetID
			tc.mut(f)

			got, err := f.bridge.HandleColumnChange(ctx, ColumnChange{TargetID: target, Column: "Done"})
			if err == nil || got != Failed {
				t.Fatalf("got %v, %v; want Failed with error", got, err)
			}
			if m := f.store.mapping(1); m.LastSourceState != "open" || m.LastTargetState != "Backlog" {
				t.Errorf("state changed on failure: %+v", m)
			}
			if f.store.count(model.EventError) != 1 {
				t.Errorf("events = %v", f.store.kinds())
			}
		})
	}
}

func TestHandleColumnChange_NoteFailureIsWarning(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"))
	ctx := context.Background()
	_, _ = f.bridge.CreateNew(ctx)
	f.source.noteErr = errBoom

	got, _ := f.bridge.HandleColumnChange(ctx, ColumnChange{TargetID: f.store.mapping(1).TargetID, Column: "Done"})
	if got != Synced {
		t.Fatalf("result = %v, want synced", got)
	}
	if f.store.count(model.EventWarningNote) != 1 {
		t.Errorf("events = %v", f.store.kinds())
	}
}

func TestInboundDoesNotEchoOutbound(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"))
	ctx := context.Background()
	_, _ = f.bridge.CreateNew(ctx)
	target := f.store.mapping(1).TargetID

	if got, _ := f.bridge.HandleColumnChange(ctx, ColumnChange{TargetID: target, Column: "Done"}); got != Synced {
		t.Fatalf("inbound = %v", got)
	}
	// The status write makes the task show up as recently changed.
	f.source.mu.Lock()
	f.source.changed = append(f.source.changed, 1)
	f.source.mu.Unlock()

	res, _ := f.bridge.ReconcileOutbound(ctx)
	if res.Synced != 0 || f.target.moveCount() != 0 {
		t.Errorf("outbound echoed the inbound change: %+v", res)
	}
}

func TestResolveTaskColumn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.target.CreateTask(ctx, 9, "t", "", 3)

	ch, err := f.bridge.ResolveTaskColumn(ctx, id, 0)
	if err != nil {
		t.Fatalf("ResolveTaskColumn: %v", err)
	}
	if ch.Column != "Work in progress" || ch.ContainerID != 9 {
		t.Errorf("change = %+v", ch)
	}

	f.target.moveTo(id, 77)
	if _, err := f.bridge.ResolveTaskColumn(ctx, id, 0); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestHandleColumnChange_FirstObservationIsBaseline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.store.InsertIfAbsent(ctx, &model.Mapping{
		SourceID: 1, SourceNumber: "000001", TargetID: 101, ContainerID: 1, LastSourceState: "closed",
	})

	got, err := f.bridge.HandleColumnChange(ctx, ColumnChange{TargetID: 101, ContainerID: 1, Column: "Backlog"})
	if err != nil || got != Unchanged {
		t.Fatalf("HandleColumnChange = %v, %v; want unchanged", got, err)
	}
	if f.source.statusCalls() != 0 {
		t.Errorf("SetStatus calls = %d, want 0", f.source.statusCalls())
	}
	m := f.store.mapping(1)
	if m.LastSourceState != "closed" || m.LastTargetState != "Backlog" {
		t.Errorf("mapping = %s/%s, want closed/Backlog", m.LastSourceState, m.LastTargetState)
	}
}

func TestRecordErr_ClassifiesFailures(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	f.bridge.log = slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := context.Background()

	for _, tc := range []struct {
		name      string
		err       error
		kind      string
		retryable bool
	}{
		{"Remote", syncerr.Remotef("kanboard.getTask", "timeout"), "remote", true},
		{"LookupMiss", syncerr.LookupMissf("bridge.resolveTaskColumn", "no column"), "lookup_miss", true},
		{"Validation", syncerr.E(syncerr.Validation, "bridge.createOne", errBoom), "validation", false},
		{"Unclassified", errBoom, "unknown", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			buf.Reset()
			f.bridge.recordErr(ctx, model.DirectionInbound, model.EventError, "KB task #7", tc.err, ref{targetID: 7})

			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("log line: %v (%s)", err, buf.String())
			}
			if line["error_kind"] != tc.kind || line["retryable"] != tc.retryable {
				t.Errorf("log = %v, want kind %s retryable %v", line, tc.kind, tc.retryable)
			}
			details := f.store.details(model.EventError)
			last := details[len(details)-1]
			if got := strings.Contains(last, "not retried"); got == tc.retryable {
				t.Errorf("detail %q: terminal marker = %v, want %v", last, got, !tc.retryable)
			}
		})
	}
}

func TestRunInbound(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"), entity(2, "000002", "open"))
	ctx := context.Background()
	_, _ = f.bridge.CreateNew(ctx)

	f.target.moveTo(f.store.mapping(1).TargetID, 4)
	f.target.moveTo(f.store.mapping(2).TargetID, 2)

	rep, err := f.bridge.RunInbound(ctx)
	if err != nil {
		t.Fatalf("RunInbound: %v", err)
	}
	if rep.Polled != 2 || rep.Synced != 1 || rep.Lateral != 1 {
		t.Errorf("report = %+v", rep)
	}
	if st, _ := f.source.GetStatus(ctx, 1); st != "closed" {
		t.Errorf("source 1 status = %q, want closed", st)
	}

	rep, _ = f.bridge.RunInbound(ctx)
	if rep.Unchanged != 2 || f.source.statusCalls() != 1 {
		t.Errorf("second poll = %+v, calls = %d", rep, f.source.statusCalls())
	}

	f.target.getErr = errBoom
	rep, err = f.bridge.RunInbound(ctx)
	if err != nil {
		t.Fatalf("RunInbound: %v", err)
	}
	if rep.Failed != 2 || f.store.count(model.EventError) != 2 {
		t.Errorf("failing poll = %+v, events = %v", rep, f.store.kinds())
	}
}

func TestRunOutbound(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"))
	ctx := context.Background()

	rep, err := f.bridge.RunOutbound(ctx)
	if err != nil {
		t.Fatalf("RunOutbound: %v", err)
	}
	if rep.Create.Created != 1 {
		t.Errorf("report = %+v", rep)
	}

	f.source.setStatus(1, "closed")
	rep, _ = f.bridge.RunOutbound(ctx)
	if rep.Create.Created != 0 || rep.Reconcile.Synced != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRecord_PublishesWithRunID(t *testing.T) {
	f := newFixture(t, entity(1, "000001", "open"))
	pub := &recordingPublisher{}
	f.bridge.pub = pub

	ctx := WithRunID(context.Background(), "run-abc")
	if _, err := f.bridge.CreateNew(ctx); err != nil {
		t.Fatal(err)
	}
	if len(pub.topics) != 1 || pub.topics[0] != "bridge.sync.created" {
		t.Errorf("topics = %v", pub.topics)
	}
	if pub.runIDs[0] != "run-abc" {
		t.Errorf("run id = %q", pub.runIDs[0])
	}
}
