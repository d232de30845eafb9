// Package osticket reads and writes osTicket tasks directly in the osTicket
// MySQL database.
package osticket

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/syncerr"
)

// Config describes how to reach the osTicket database and which custom
// form fields the bridge uses.
type Config struct {
	DSN         string        // go-sql-driver/mysql DSN
	TablePrefix string        // e.g. "ost_"
	SyncField   string        // form field variable flagging a task for Kanboard
	SyncYes     string        // LIKE pattern matching the "yes" value of SyncField
	Timeout     time.Duration // connect, read and write timeout
}

// Client implements the bridge's source collaborator on top of the osTicket schema.
type Client struct {
	db  *sql.DB
	cfg Config
}

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to the osTicket database described by cfg.
func Open(cfg Config) (*Client, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, syncerr.E(syncerr.Validation, "osticket.open", err)
	}
	mc.ParseTime = true
	if cfg.Timeout > 0 {
		mc.Timeout = cfg.Timeout
		mc.ReadTimeout = cfg.Timeout
		mc.WriteTimeout = cfg.Timeout
	}
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, syncerr.E(syncerr.Validation, "osticket.open", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	return NewWithDB(db, cfg), nil
}

// NewWithDB wraps an existing connection.
func NewWithDB(db *sql.DB, cfg Config) *Client {
	if cfg.TablePrefix == "" {
		cfg.TablePrefix = "ost_"
	}
	if cfg.SyncYes == "" {
		cfg.SyncYes = `%"Yes"%`
	}
	return &Client{db: db, cfg: cfg}
}

// Ping checks that the osTicket database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return syncerr.E(syncerr.Remote, "osticket.ping", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// t prefixes an osTicket table name.
func (c *Client) t(name string) string {
	return c.cfg.TablePrefix + name
}

// eligiblePageSize is the minimum page ListEligibleNew reads while skipping
// already mapped tasks.
const eligiblePageSize = 500

// changedChunk caps the ids bound into one IN list, well below MySQL's
// placeholder limit.
const changedChunk = 1000

// ListEligibleNew returns up to limit tasks flagged for syncing whose ids are
// not in exclude, newest first. The exclusion is applied while paging so the
// statement stays the same size however many tasks are mapped.
func (c *Client) ListEligibleNew(ctx context.Context, exclude []int64, limit int) ([]model.SourceEntity, error) {
	const op = "osticket.listEligibleNew"
	fieldID, err := c.fieldID(ctx, c.cfg.SyncField)
	if err != nil {
		return nil, syncerr.E(syncerr.Remote, op, err)
	}
	if fieldID == 0 {
		return nil, syncerr.LookupMissf(op, "form field %q not found", c.cfg.SyncField)
	}
	if limit <= 0 {
		limit = 100
	}
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	page := max(limit, eligiblePageSize)

	var out []model.SourceEntity
	for offset := 0; ; offset += page {
		batch, err := c.eligiblePage(ctx, fieldID, page, offset)
		if err != nil {
			return nil, syncerr.E(syncerr.Remote, op, err)
		}
		for _, e := range batch {
			if _, ok := skip[e.ID]; ok {
				continue
			}
			out = append(out, e)
			if len(out) == limit {
				return out, nil
			}
		}
		if len(batch) < page {
			return out, nil
		}
	}
}

func (c *Client) eligiblePage(ctx context.Context, fieldID int64, size, offset int) ([]model.SourceEntity, error) {
	query := fmt.Sprintf(`
		SELECT
			t.id, t.number,
			CASE WHEN t.object_type = 'T' THEN t.object_id ELSE 0 END,
			COALESCE(tk.number, ''),
			COALESCE(te.title, ''),
			CASE WHEN t.flags = 0 THEN 'closed' ELSE 'open' END,
			COALESCE(ts.name, ''),
			COALESCE(ht.topic_id, 0), COALESCE(ht.topic, ''),
			COALESCE(u.name, ''), COALESCE(ue.address, ''),
			t.created, t.updated
		FROM %[1]s t
		LEFT JOIN %[2]s thr ON thr.object_id = t.id AND thr.object_type = 'A'
		LEFT JOIN %[3]s te ON te.thread_id = thr.id AND te.type = 'M'
			AND te.id = (SELECT MIN(id) FROM %[3]s WHERE thread_id = thr.id AND type = 'M')
		LEFT JOIN %[4]s tk ON tk.ticket_id = t.object_id AND t.object_type = 'T'
		LEFT JOIN %[5]s ts ON ts.id = tk.status_id
		LEFT JOIN %[6]s ht ON ht.topic_id = tk.topic_id
		LEFT JOIN %[7]s u ON u.id = tk.user_id
		LEFT JOIN %[8]s ue ON ue.id = tk.user_email_id
		INNER JOIN %[9]s fe ON fe.object_id = t.id AND fe.object_type = 'A'
		INNER JOIN %[10]s fev ON fev.entry_id = fe.id AND fev.field_id = ?
		WHERE fev.value LIKE ?
		ORDER BY t.created DESC, t.id DESC LIMIT ? OFFSET ?`,
		c.t("task"), c.t("thread"), c.t("thread_entry"), c.t("ticket"), c.t("ticket_status"),
		c.t("help_topic"), c.t("user"), c.t("user_email"), c.t("form_entry"), c.t("form_entry_values"),
	)
	rows, err := c.db.QueryContext(ctx, query, fieldID, c.cfg.SyncYes, size, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SourceEntity
	for rows.Next() {
		var (
			e       model.SourceEntity
			updated sql.NullTime
		)
		if err := rows.Scan(
			&e.ID, &e.Number, &e.TicketID, &e.TicketNumber, &e.Title,
			&e.Status, &e.TicketStatus, &e.CategoryID, &e.CategoryName,
			&e.RequesterName, &e.RequesterEmail, &e.CreatedAt, &updated,
		); err != nil {
			return nil, err
		}
		e.UpdatedAt = updated.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListChangedSince returns the tasks among ids that were updated within window.
func (c *Client) ListChangedSince(ctx context.Context, ids []int64, window time.Duration) ([]model.SourceEntity, error) {
	const op = "osticket.listChangedSince"
	since := time.Now().Add(-window).Unix()
	var out []model.SourceEntity
	for len(ids) > 0 {
		n := min(len(ids), changedChunk)
		batch, err := c.changedSince(ctx, ids[:n], since)
		if err != nil {
			return nil, syncerr.E(syncerr.Remote, op, err)
		}
		out = append(out, batch...)
		ids = ids[n:]
	}
	return out, nil
}

func (c *Client) changedSince(ctx context.Context, ids []int64, since int64) ([]model.SourceEntity, error) {
	query := fmt.Sprintf(`
		SELECT
			t.id, t.number,
			CASE WHEN t.flags = 0 THEN 'closed' ELSE 'open' END,
			COALESCE(ts.name, ''), COALESCE(tk.number, ''), t.updated
		FROM %s t
		LEFT JOIN %s tk ON tk.ticket_id = t.object_id AND t.object_type = 'T'
		LEFT JOIN %s ts ON ts.id = tk.status_id
		WHERE t.id IN (%s)
		  AND UNIX_TIMESTAMP(t.updated) > ?`,
		c.t("task"), c.t("ticket"), c.t("ticket_status"), placeholders(len(ids)),
	)
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, since)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SourceEntity
	for rows.Next() {
		var (
			e       model.SourceEntity
			updated sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Number, &e.Status, &e.TicketStatus, &e.TicketNumber, &updated); err != nil {
			return nil, err
		}
		e.UpdatedAt = updated.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetAttribute returns the value of the named custom form field on a task,
// or "" when the task has no value for it.
func (c *Client) GetAttribute(ctx context.Context, taskID int64, name string) (string, error) {
	const op = "osticket.getAttribute"
	fieldID, err := c.fieldID(ctx, name)
	if err != nil {
		return "", syncerr.E(syncerr.Remote, op, err)
	}
	if fieldID == 0 {
		return "", syncerr.LookupMissf(op, "form field %q not found", name)
	}
	var value sql.NullString
	err = c.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT fev.value
		FROM %s fe
		INNER JOIN %s fev ON fev.entry_id = fe.id
		WHERE fe.object_id = ? AND fe.object_type = 'A' AND fev.field_id = ?
		LIMIT 1`, c.t("form_entry"), c.t("form_entry_values")),
		taskID, fieldID,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", syncerr.E(syncerr.Remote, op, err)
	}
	return value.String, nil
}

// SetAttribute writes value into the named custom form field of a task.
// The task must already carry a form entry.
func (c *Client) SetAttribute(ctx context.Context, taskID int64, name, value string) error {
	const op = "osticket.setAttribute"
	fieldID, err := c.fieldID(ctx, name)
	if err != nil {
		return syncerr.E(syncerr.Remote, op, err)
	}
	if fieldID == 0 {
		return syncerr.LookupMissf(op, "form field %q not found", name)
	}

	var entryID int64
	err = c.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE object_id = ? AND object_type = 'A' LIMIT 1`, c.t("form_entry")),
		taskID,
	).Scan(&entryID)
	if err == sql.ErrNoRows {
		return syncerr.LookupMissf(op, "task %d has no form entry", taskID)
	}
	if err != nil {
		return syncerr.E(syncerr.Remote, op, err)
	}

	_, err = c.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (entry_id, field_id, value)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE value = ?`, c.t("form_entry_values")),
		entryID, fieldID, value, value,
	)
	if err != nil {
		return syncerr.E(syncerr.Remote, op, err)
	}
	return nil
}

// AddNote posts an internal note. Task threads are created on demand; a
// ticket without a thread is a LookupMiss.
func (c *Client) AddNote(ctx context.Context, target model.NoteTarget, text string) error {
	const op = "osticket.addNote"
	switch target.Kind {
	case model.NoteTask:
		err := c.runInTx(ctx, func(tx executor) error {
			threadID, err := c.threadID(ctx, tx, target.ID, "A")
			if err != nil {
				return err
			}
			if threadID == 0 {
				res, err := tx.ExecContext(ctx,
					fmt.Sprintf(`INSERT INTO %s (object_id, object_type, created) VALUES (?, 'A', NOW())`, c.t("thread")),
					target.ID,
				)
				if err != nil {
					return err
				}
				if threadID, err = res.LastInsertId(); err != nil {
					return err
				}
			}
			return c.insertNote(ctx, tx, threadID, text)
		})
		if err != nil {
			return syncerr.E(syncerr.Remote, op, err)
		}
		return nil

	case model.NoteTicket:
		threadID, err := c.threadID(ctx, c.db, target.ID, "T")
		if err != nil {
			return syncerr.E(syncerr.Remote, op, err)
		}
		if threadID == 0 {
			return syncerr.LookupMissf(op, "ticket %d has no thread", target.ID)
		}
		if err := c.insertNote(ctx, c.db, threadID, text); err != nil {
			return syncerr.E(syncerr.Remote, op, err)
		}
		return nil
	}
	return syncerr.E(syncerr.Validation, op, fmt.Errorf("unknown note target %q", target.Kind))
}

// runInTx calls fn inside a transaction, committing on success and rolling
// back on error.
func (c *Client) runInTx(ctx context.Context, fn func(tx executor) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (c *Client) threadID(ctx context.Context, db executor, objectID int64, objectType string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE object_id = ? AND object_type = ? LIMIT 1`, c.t("thread")),
		objectID, objectType,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

func (c *Client) insertNote(ctx context.Context, db executor, threadID int64, text string) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s
			(thread_id, staff_id, user_id, type, poster, title, body, format, source, created, updated)
		VALUES
			(?, 0, 0, 'N', 'SYSTEM', 'Kanboard Sync', ?, 'html', '', NOW(), NOW())`, c.t("thread_entry")),
		threadID, text,
	)
	return err
}

// SetStatus opens or closes a task.
func (c *Client) SetStatus(ctx context.Context, taskID int64, status string) error {
	const op = "osticket.setStatus"
	var query string
	switch status {
	case model.StatusClosed:
		query = `UPDATE %s SET flags = 0, closed = NOW(), updated = NOW() WHERE id = ?`
	case model.StatusOpen:
		query = `UPDATE %s SET flags = 1, closed = NULL, updated = NOW() WHERE id = ?`
	default:
		return syncerr.E(syncerr.Validation, op, fmt.Errorf("status %q is neither open nor closed", status))
	}
	res, err := c.db.ExecContext(ctx, fmt.Sprintf(query, c.t("task")), taskID)
	if err != nil {
		return syncerr.E(syncerr.Remote, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return syncerr.E(syncerr.Remote, op, err)
	}
	if n == 0 {
		return syncerr.Remotef(op, "task %d not updated", taskID)
	}
	return nil
}

// GetStatus returns "closed" for a task whose flags are cleared, else "open".
func (c *Client) GetStatus(ctx context.Context, taskID int64) (string, error) {
	const op = "osticket.getStatus"
	var flags int64
	err := c.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT flags FROM %s WHERE id = ? LIMIT 1`, c.t("task")),
		taskID,
	).Scan(&flags)
	if err == sql.ErrNoRows {
		return "", syncerr.LookupMissf(op, "task %d not found", taskID)
	}
	if err != nil {
		return "", syncerr.E(syncerr.Remote, op, err)
	}
	if flags == 0 {
		return model.StatusClosed, nil
	}
	return model.StatusOpen, nil
}

// ListCategories returns the active help topics ordered by name.
func (c *Client) ListCategories(ctx context.Context) ([]model.Category, error) {
	const op = "osticket.listCategories"
	rows, err := c.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT topic_id, topic FROM %s WHERE status_id = 0 ORDER BY topic`, c.t("help_topic")),
	)
	if err != nil {
		return nil, syncerr.E(syncerr.Remote, op, err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			return nil, syncerr.E(syncerr.Remote, op, err)
		}
		out = append(out, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerr.E(syncerr.Remote, op, err)
	}
	return out, nil
}

// fieldID looks up a custom form field by variable name. A missing field is
// reported as id 0 with a nil error.
func (c *Client) fieldID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE name = ? LIMIT 1`, c.t("form_field")),
		name,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
