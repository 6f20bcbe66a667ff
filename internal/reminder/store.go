package reminder

import (
	"context"
	"time"
)

// ReminderStore is the durable mapping from reminder id to record.
type ReminderStore interface {
	// CreateReminder inserts r and sets r.ID.
	CreateReminder(ctx context.Context, r *Reminder) error
	GetReminder(ctx context.Context, id int64) (*Reminder, error)
	// ListReminders returns every reminder in insertion order.
	ListReminders(ctx context.Context) ([]Reminder, error)
	// ListDue returns scheduled reminders whose trigger time is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]Reminder, error)
	// UpdateReminder replaces the mutable fields of r only if the stored status
	// still equals expected. It returns ErrNotFound when the id is unknown and
	// ErrInvalidTransition when the status has moved on.
	UpdateReminder(ctx context.Context, r *Reminder, expected Status) error
	// TransitionStatus moves id from one status to another atomically and
	// reports whether a row changed.
	TransitionStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error)
	// DeleteReminder removes the record and returns the rows affected.
	DeleteReminder(ctx context.Context, id int64) (int64, error)
}

// EventLog is the append-only audit trail.
type EventLog interface {
	// AppendEvent stores e and sets e.ID.
	AppendEvent(ctx context.Context, e *EventLogEntry) error
	ListEvents(ctx context.Context, reminderID int64) ([]EventLogEntry, error)
	ListAllEvents(ctx context.Context) ([]EventLogEntry, error)
}

// Tx is the view of a repository inside a transaction.
type Tx interface {
	ReminderStore
	EventLog
}

// Repository is a backend holding both reminders and events.
type Repository interface {
	Tx
	// WithTx runs fn atomically: either every write made through tx is kept
	// or none is.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
