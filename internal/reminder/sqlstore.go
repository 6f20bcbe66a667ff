package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Open returns the repository for driver. For sqlite, target is a file path
// whose directory is created if needed; for postgres it is a DSN.
func Open(driver, target string) (Repository, error) {
	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		if dir := filepath.Dir(target); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	return OpenSQL(driver, target)
}

// storedTimeLayout is fixed width so that text comparison orders instants.
const storedTimeLayout = "2006-01-02T15:04:05.000000Z"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS reminders (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		task         TEXT    NOT NULL,
		trigger_time TEXT    NOT NULL,
		repeat_tag   TEXT    NOT NULL DEFAULT '',
		status       TEXT    NOT NULL DEFAULT 'scheduled',
		created_at   TEXT    NOT NULL,
		updated_at   TEXT    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reminders_status_trigger ON reminders (status, trigger_time)`,
	`CREATE TABLE IF NOT EXISTS reminder_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type  TEXT    NOT NULL,
		reminder_id INTEGER NOT NULL,
		timestamp   TEXT    NOT NULL,
		info        TEXT    NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reminder_events_reminder ON reminder_events (reminder_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS reminders (
		id           BIGSERIAL PRIMARY KEY,
		task         TEXT   NOT NULL,
		trigger_time TEXT   NOT NULL,
		repeat_tag   TEXT   NOT NULL DEFAULT '',
		status       TEXT   NOT NULL DEFAULT 'scheduled',
		created_at   TEXT   NOT NULL,
		updated_at   TEXT   NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reminders_status_trigger ON reminders (status, trigger_time)`,
	`CREATE TABLE IF NOT EXISTS reminder_events (
		id          BIGSERIAL PRIMARY KEY,
		event_type  TEXT   NOT NULL,
		reminder_id BIGINT NOT NULL,
		timestamp   TEXT   NOT NULL,
		info        TEXT   NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reminder_events_reminder ON reminder_events (reminder_id)`,
}

const reminderColumns = `id, task, trigger_time, repeat_tag, status, created_at, updated_at`

const eventColumns = `id, event_type, reminder_id, timestamp, info`

// SQLStore provides SQL-backed storage for reminders and their event log.
type SQLStore struct {
	sqlTx
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	return OpenSQL(DriverSQLite, dbPath)
}

// NewPostgresStore connects to Postgres using a lib/pq connection string.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	return OpenSQL(DriverPostgres, dsn)
}

// OpenSQL opens a store for the given driver and ensures the schema exists.
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	var schema []string
	switch driver {
	case DriverSQLite:
		schema = sqliteSchema
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLStore{
		sqlTx: sqlTx{q: db, driver: driver},
		db:    db,
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// WithTx runs fn inside a database transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}

	if err := fn(&sqlTx{q: tx, driver: s.driver}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlTx runs statements against either the pool or an open transaction.
type sqlTx struct {
	q      queryer
	driver string
}

// rebind rewrites ? placeholders to $n for Postgres.
func (t *sqlTx) rebind(query string) string {
	if t.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (t *sqlTx) CreateReminder(ctx context.Context, r *Reminder) error {
	row := t.q.QueryRowContext(ctx, t.rebind(`
		INSERT INTO reminders (task, trigger_time, repeat_tag, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), r.Task, encodeTime(r.TriggerTime), string(r.Repeat), string(r.Status),
		encodeTime(r.CreatedAt), encodeTime(r.UpdatedAt))

	if err := row.Scan(&r.ID); err != nil {
		return storageErr("insert reminder", err)
	}
	return nil
}

func (t *sqlTx) GetReminder(ctx context.Context, id int64) (*Reminder, error) {
	row := t.q.QueryRowContext(ctx, t.rebind(`
		SELECT `+reminderColumns+` FROM reminders WHERE id = ?
	`), id)

	r, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reminder %d: %w", id, ErrNotFound)
		}
		return nil, storageErr("get reminder", err)
	}
	return r, nil
}

func (t *sqlTx) ListReminders(ctx context.Context) ([]Reminder, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT `+reminderColumns+` FROM reminders ORDER BY id ASC
	`)
	if err != nil {
		return nil, storageErr("list reminders", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

func (t *sqlTx) ListDue(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := t.q.QueryContext(ctx, t.rebind(`
		SELECT `+reminderColumns+` FROM reminders
		WHERE status = ? AND trigger_time <= ?
		ORDER BY trigger_time ASC, id ASC
	`), string(StatusScheduled), encodeTime(now))
	if err != nil {
		return nil, storageErr("list due reminders", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

func (t *sqlTx) UpdateReminder(ctx context.Context, r *Reminder, expected Status) error {
	result, err := t.q.ExecContext(ctx, t.rebind(`
		UPDATE reminders
		SET task = ?, trigger_time = ?, repeat_tag = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`), r.Task, encodeTime(r.TriggerTime), string(r.Repeat), string(r.Status),
		encodeTime(r.UpdatedAt), r.ID, string(expected))
	if err != nil {
		return storageErr("update reminder", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return storageErr("update reminder", err)
	}
	if n > 0 {
		return nil
	}

	current, err := t.GetReminder(ctx, r.ID)
	if err != nil {
		return err
	}
	return &TransitionError{ID: r.ID, From: current.Status, To: r.Status}
}

func (t *sqlTx) TransitionStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error) {
	result, err := t.q.ExecContext(ctx, t.rebind(`
		UPDATE reminders SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`), string(to), encodeTime(at), id, string(from))
	if err != nil {
		return false, storageErr("transition reminder", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("transition reminder", err)
	}
	return n > 0, nil
}

func (t *sqlTx) DeleteReminder(ctx context.Context, id int64) (int64, error) {
	result, err := t.q.ExecContext(ctx, t.rebind(`DELETE FROM reminders WHERE id = ?`), id)
	if err != nil {
		return 0, storageErr("delete reminder", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("delete reminder", err)
	}
	return n, nil
}

func (t *sqlTx) AppendEvent(ctx context.Context, e *EventLogEntry) error {
	row := t.q.QueryRowContext(ctx, t.rebind(`
		INSERT INTO reminder_events (event_type, reminder_id, timestamp, info)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), string(e.EventType), e.ReminderID, encodeTime(e.Timestamp), e.Info)

	if err := row.Scan(&e.ID); err != nil {
		return storageErr("append event", err)
	}
	return nil
}

func (t *sqlTx) ListEvents(ctx context.Context, reminderID int64) ([]EventLogEntry, error) {
	rows, err := t.q.QueryContext(ctx, t.rebind(`
		SELECT `+eventColumns+` FROM reminder_events WHERE reminder_id = ? ORDER BY id ASC
	`), reminderID)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (t *sqlTx) ListAllEvents(ctx context.Context) ([]EventLogEntry, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM reminder_events ORDER BY id ASC
	`)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanReminder reads a single row into a Reminder.
func scanReminder(row rowScanner) (*Reminder, error) {
	var r Reminder
	var repeat, status, triggerTime, createdAt, updatedAt string

	if err := row.Scan(&r.ID, &r.Task, &triggerTime, &repeat, &status,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	r.Repeat = Repeat(repeat)
	r.Status = Status(status)
	r.TriggerTime = decodeTime(triggerTime)
	r.CreatedAt = decodeTime(createdAt)
	r.UpdatedAt = decodeTime(updatedAt)

	return &r, nil
}

// scanReminders reads multiple rows into a slice of Reminder.
func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	reminders := []Reminder{}
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, storageErr("scan reminder", err)
		}
		reminders = append(reminders, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan reminders", err)
	}
	return reminders, nil
}

func scanEvents(rows *sql.Rows) ([]EventLogEntry, error) {
	events := []EventLogEntry{}
	for rows.Next() {
		var e EventLogEntry
		var eventType, ts string

		if err := rows.Scan(&e.ID, &eventType, &e.ReminderID, &ts, &e.Info); err != nil {
			return nil, storageErr("scan event", err)
		}
		e.EventType = EventType(eventType)
		e.Timestamp = decodeTime(ts)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan events", err)
	}
	return events, nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(storedTimeLayout, s)
	if err != nil {
		// Rows written by hand may use plain RFC3339.
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
