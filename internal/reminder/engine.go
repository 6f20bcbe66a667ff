package reminder

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CreateInput is the caller-supplied part of a new reminder.
type CreateInput struct {
	Task    string  `json:"task"`
	TimeISO string  `json:"time_iso"`
	Repeat  *string `json:"repeat"`
}

// UpdateInput replaces the mutable fields of a reminder. Nil fields keep
// their current value.
type UpdateInput struct {
	Task    *string `json:"task"`
	TimeISO *string `json:"time_iso"`
	Repeat  *string `json:"repeat"`
	Status  *Status `json:"status"`
}

// Engine owns the reminder state machine. It is the only writer of status
// fields and of the event log.
type Engine struct {
	repo      Repository
	publisher Publisher
	now       func() time.Time
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPublisher forwards committed events to p.
func WithPublisher(p Publisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine on top of repo.
func NewEngine(repo Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:   repo,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine clock reading, truncated to what the stores keep.
func (e *Engine) Now() time.Time {
	return e.now().Truncate(time.Microsecond)
}

// Create validates in and stores a new scheduled reminder with a CREATED event.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*Reminder, error) {
	task, err := validateTask(in.Task)
	if err != nil {
		return nil, err
	}
	trigger, err := validateTime(in.TimeISO)
	if err != nil {
		return nil, err
	}
	repeat, err := validateRepeat(in.Repeat)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	r := &Reminder{
		Task:        task,
		TriggerTime: trigger,
		Repeat:      repeat,
		Status:      StatusScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var event EventLogEntry
	err = e.repo.WithTx(ctx, func(tx Tx) error {
		if err := tx.CreateReminder(ctx, r); err != nil {
			return err
		}
		event = EventLogEntry{EventType: EventCreated, ReminderID: r.ID, Timestamp: now, Info: task}
		return tx.AppendEvent(ctx, &event)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("reminder created",
		zap.Int64("id", r.ID),
		zap.String("task", r.Task),
		zap.Time("trigger_time", r.TriggerTime))
	e.publish(ctx, event)
	return r, nil
}

// MarkDue moves r from scheduled to due and logs DUE in the same transaction.
// If the stored reminder is no longer scheduled, or is gone, nothing is
// written and the error matches ErrInvalidTransition.
func (e *Engine) MarkDue(ctx context.Context, r Reminder) (*Reminder, error) {
	now := e.Now()

	var event EventLogEntry
	err := e.repo.WithTx(ctx, func(tx Tx) error {
		changed, err := tx.TransitionStatus(ctx, r.ID, StatusScheduled, StatusDue, now)
		if err != nil {
			return err
		}
		if !changed {
			return &TransitionError{ID: r.ID, To: StatusDue}
		}
		event = EventLogEntry{EventType: EventDue, ReminderID: r.ID, Timestamp: now, Info: r.Task}
		return tx.AppendEvent(ctx, &event)
	})
	if err != nil {
		return nil, err
	}

	r.Status = StatusDue
	r.UpdatedAt = now
	e.logger.Info("reminder due", zap.Int64("id", r.ID), zap.String("task", r.Task))
	e.publish(ctx, event)
	return &r, nil
}

// Delete logs DELETED and removes the reminder in one transaction. Unknown
// ids are not an error: the event is still logged and 0 is returned.
func (e *Engine) Delete(ctx context.Context, id int64) (int64, error) {
	now := e.Now()

	var (
		event   EventLogEntry
		deleted int64
	)
	err := e.repo.WithTx(ctx, func(tx Tx) error {
		info := ""
		existing, err := tx.GetReminder(ctx, id)
		switch {
		case err == nil:
			info = existing.Task
		case !errors.Is(err, ErrNotFound):
			return err
		}

		event = EventLogEntry{EventType: EventDeleted, ReminderID: id, Timestamp: now, Info: info}
		if err := tx.AppendEvent(ctx, &event); err != nil {
			return err
		}

		deleted, err = tx.DeleteReminder(ctx, id)
		return err
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("reminder deleted", zap.Int64("id", id), zap.Int64("rows", deleted))
	e.publish(ctx, event)
	return deleted, nil
}

// Update replaces the mutable fields of reminder id. A status change must
// follow the state machine and is logged as COMPLETED or CANCELLED; any
// other change is logged as UPDATED.
func (e *Engine) Update(ctx context.Context, id int64, in UpdateInput) (*Reminder, error) {
	now := e.Now()

	var (
		updated *Reminder
		event   EventLogEntry
	)
	err := e.repo.WithTx(ctx, func(tx Tx) error {
		current, err := tx.GetReminder(ctx, id)
		if err != nil {
			return err
		}

		next := *current
		if in.Task != nil {
			if next.Task, err = validateTask(*in.Task); err != nil {
				return err
			}
		}
		if in.TimeISO != nil {
			if next.TriggerTime, err = validateTime(*in.TimeISO); err != nil {
				return err
			}
		}
		if in.Repeat != nil {
			if next.Repeat, err = validateRepeat(in.Repeat); err != nil {
				return err
			}
		}
		if in.Status != nil {
			if !in.Status.Valid() {
				return &ValidationError{Field: "status", Message: "unknown status " + string(*in.Status)}
			}
			if !CanUpdate(current.Status, *in.Status) {
				return &TransitionError{ID: id, From: current.Status, To: *in.Status}
			}
			next.Status = *in.Status
		}
		next.UpdatedAt = now

		if err := tx.UpdateReminder(ctx, &next, current.Status); err != nil {
			return err
		}

		event = EventLogEntry{
			EventType:  updateEventType(current.Status, next.Status),
			ReminderID: id,
			Timestamp:  now,
			Info:       next.Task,
		}
		if err := tx.AppendEvent(ctx, &event); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("reminder updated",
		zap.Int64("id", id),
		zap.String("event", string(event.EventType)),
		zap.String("status", string(updated.Status)))
	e.publish(ctx, event)
	return updated, nil
}

func updateEventType(from, to Status) EventType {
	if from == to {
		return EventUpdated
	}
	switch to {
	case StatusCompleted:
		return EventCompleted
	case StatusCancelled:
		return EventCancelled
	}
	return EventUpdated
}

// Get returns a single reminder.
func (e *Engine) Get(ctx context.Context, id int64) (*Reminder, error) {
	return e.repo.GetReminder(ctx, id)
}

// List returns every reminder ordered by id.
func (e *Engine) List(ctx context.Context) ([]Reminder, error) {
	return e.repo.ListReminders(ctx)
}

// ListDue returns scheduled reminders whose trigger time has passed.
func (e *Engine) ListDue(ctx context.Context, now time.Time) ([]Reminder, error) {
	return e.repo.ListDue(ctx, now)
}

// History returns the events recorded for id, including after deletion.
func (e *Engine) History(ctx context.Context, id int64) ([]EventLogEntry, error) {
	return e.repo.ListEvents(ctx, id)
}

// AllEvents returns the whole event log in append order.
func (e *Engine) AllEvents(ctx context.Context) ([]EventLogEntry, error) {
	return e.repo.ListAllEvents(ctx)
}

// Ping reports whether the backing store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.repo.Ping(ctx)
}

func (e *Engine) publish(ctx context.Context, event EventLogEntry) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish event",
			zap.String("event", string(event.EventType)),
			zap.Int64("reminder_id", event.ReminderID),
			zap.Error(err))
	}
}

func validateTask(task string) (string, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", &ValidationError{Field: "task", Message: "must not be empty"}
	}
	return task, nil
}

func validateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ValidationError{Field: "time_iso", Message: "must not be empty"}
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "time_iso", Message: "not an ISO-8601 timestamp: " + s}
	}
	return t.Truncate(time.Microsecond), nil
}

func validateRepeat(s *string) (Repeat, error) {
	if s == nil {
		return RepeatNone, nil
	}
	r := Repeat(strings.ToLower(strings.TrimSpace(*s)))
	if r == "none" {
		r = RepeatNone
	}
	if !r.Valid() {
		return RepeatNone, &ValidationError{Field: "repeat", Message: "unknown repeat " + *s}
	}
	return r, nil
}
