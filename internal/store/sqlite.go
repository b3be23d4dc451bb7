package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"agentq/internal/recurrence"
	logx "agentq/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// ErrNotFound is returned when an id or uuid does not match any task.
var ErrNotFound = errors.New("task not found")

// Config configures the task store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the SQLite-backed task table: the single source of truth for
// queue state. All mutating operations bump updated_at.
type Store struct {
	db  *sql.DB
	log logx.Logger

	// now is swappable so tests can pin the clock.
	now func() int64
}

// Open creates the database file (and parent directory) if needed, applies
// pragmas and migrations, and returns the store.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{db: db, log: log, now: func() int64 { return time.Now().UnixMilli() }}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetClock overrides the store's notion of "now" (epoch ms). Test hook.
func (s *Store) SetClock(now func() int64) {
	if now != nil {
		s.now = now
	}
}

const taskColumns = `id, uuid, title, description, due_time, created_at, updated_at, status,
	recurrence_type, recurrence_interval, recurrence_end_time`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var t Task
	var end sql.NullInt64
	err := row.Scan(&t.ID, &t.UUID, &t.Title, &t.Description, &t.DueTime, &t.CreatedAt,
		&t.UpdatedAt, &t.Status, &t.RecurrenceType, &t.RecurrenceInterval, &end)
	if err != nil {
		return nil, err
	}
	if end.Valid {
		v := end.Int64
		t.RecurrenceEndTime = &v
	}
	return &t, nil
}

func nullableMS(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Enqueue inserts a new pending task with a fresh UUID.
func (s *Store) Enqueue(ctx context.Context, in CreateTaskInput) (*Task, error) {
	now := s.now()
	id := uuid.NewString()

	rt := in.RecurrenceType
	if rt == "" {
		rt = recurrence.TypeNone
	}
	if !rt.Valid() {
		return nil, fmt.Errorf("store: invalid recurrence type %q", rt)
	}
	interval := in.RecurrenceInterval
	if interval < 1 {
		interval = 1
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (uuid, title, description, due_time, created_at, updated_at, status,
			recurrence_type, recurrence_interval, recurrence_end_time)
		 VALUES (?,?,?,?,?,?, 'pending', ?,?,?)`,
		id, in.Title, in.Description, in.DueTime, now, now, string(rt), interval,
		nullableMS(in.RecurrenceEndTime),
	)
	if err != nil {
		return nil, err
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, rowID)
}

// ClaimNext atomically selects the earliest due pending task (ties broken by
// insertion order), transitions it to processing and returns the updated row.
// It returns (nil, nil) when nothing is due.
//
// The claim runs in a transaction and re-checks status on the transition so
// it stays correct even when operator endpoints write concurrently.
func (s *Store) ClaimNext(ctx context.Context) (*Task, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = 'pending' AND due_time <= ?
		 ORDER BY due_time ASC, id ASC
		 LIMIT 1`, now)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = 'processing', updated_at = ? WHERE id = ? AND status = 'pending'`,
		s.now(), t.ID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Lost a race with a concurrent writer; treat as nothing due.
		return nil, nil
	}

	row = tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, t.ID)
	claimed, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *Store) GetByUUID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE uuid = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// All returns every task, newest first.
func (s *Store) All(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// Search returns tasks matching the filters, ordered by due_time ascending.
func (s *Store) Search(ctx context.Context, f SearchFilters) ([]*Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any

	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.TitleContains != "" {
		q += ` AND title LIKE ?`
		args = append(args, "%"+f.TitleContains+"%")
	}
	if f.DueBefore > 0 {
		q += ` AND due_time < ?`
		args = append(args, f.DueBefore)
	}
	if f.DueAfter > 0 {
		q += ` AND due_time > ?`
		args = append(args, f.DueAfter)
	}
	q += ` ORDER BY due_time ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]*Task, error) {
	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetStatus updates the status and returns the fresh row.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status) (*Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("store: invalid status %q", status)
	}
	return s.updateField(ctx, id, `status`, string(status))
}

// SetDueTime updates the due time and returns the fresh row.
func (s *Store) SetDueTime(ctx context.Context, id int64, dueMS int64) (*Task, error) {
	return s.updateField(ctx, id, `due_time`, dueMS)
}

func (s *Store) UpdateTitle(ctx context.Context, id int64, title string) (*Task, error) {
	return s.updateField(ctx, id, `title`, title)
}

func (s *Store) UpdateDescription(ctx context.Context, id int64, desc string) (*Task, error) {
	return s.updateField(ctx, id, `description`, desc)
}

func (s *Store) updateField(ctx context.Context, id int64, column string, value any) (*Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, s.now(), id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// Delete removes a task row. It reports whether a row was deleted.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ResetProcessingToPending repairs rows orphaned in processing by a crashed
// run. due_time is left untouched. Returns the number of repaired rows.
func (s *Store) ResetProcessingToPending(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'pending', updated_at = ? WHERE status = 'processing'`,
		s.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PendingCount reports how many tasks are waiting.
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status = 'pending'`).Scan(&n)
	return n, err
}

// UUIDTitles maps every task UUID to its title, for display layers.
func (s *Store) UUIDTitles(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, title FROM tasks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var u, title string
		if err := rows.Scan(&u, &title); err != nil {
			return nil, err
		}
		out[u] = title
	}
	return out, rows.Err()
}

// Reschedule asks the recurrence engine for the next occurrence and, if the
// series continues, advances the SAME row back to pending. Identity (UUID,
// workspace, memory) is preserved: a recurring task is one row that travels
// forward in time, not a chain of new rows.
//
// Returns (nil, nil) when the series has ended; that is not an error.
func (s *Store) Reschedule(ctx context.Context, t *Task) (*Task, error) {
	if t == nil {
		return nil, nil
	}
	next, ok := recurrence.NextDue(t.Series(), s.now())
	if !ok {
		return nil, nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET due_time = ?, status = 'pending', updated_at = ? WHERE id = ?`,
		next, s.now(), t.ID)
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, t.ID)
}
