package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Repository. Transactions run against a copy of
// the state which replaces the live state only when the transaction succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	reminders   map[int64]Reminder
	events      []EventLogEntry
	nextID      int64
	nextEventID int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			reminders:   make(map[int64]Reminder),
			nextID:      1,
			nextEventID: 1,
		},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		reminders:   make(map[int64]Reminder, len(s.reminders)),
		events:      make([]EventLogEntry, len(s.events)),
		nextID:      s.nextID,
		nextEventID: s.nextEventID,
	}
	for id, r := range s.reminders {
		c.reminders[id] = r
	}
	copy(c.events, s.events)
	return c
}

func (s *MemoryStore) run(fn func(tx *memTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{state: s.state})
}

// WithTx runs fn against a snapshot and publishes it on success.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.state.clone()
	if err := fn(&memTx{state: snapshot}); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateReminder(ctx context.Context, r *Reminder) error {
	return s.run(func(tx *memTx) error { return tx.CreateReminder(ctx, r) })
}

func (s *MemoryStore) GetReminder(ctx context.Context, id int64) (*Reminder, error) {
	var out *Reminder
	err := s.run(func(tx *memTx) error {
		var err error
		out, err = tx.GetReminder(ctx, id)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListReminders(ctx context.Context) ([]Reminder, error) {
	var out []Reminder
	err := s.run(func(tx *memTx) error {
		var err error
		out, err = tx.ListReminders(ctx)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListDue(ctx context.Context, now time.Time) ([]Reminder, error) {
	var out []Reminder
	err := s.run(func(tx *memTx) error {
		var err error
		out, err = tx.ListDue(ctx, now)
		return err
	})
	return out, err
}

func (s *MemoryStore) UpdateReminder(ctx context.Context, r *Reminder, expected Status) error {
	return s.run(func(tx *memTx) error { return tx.UpdateReminder(ctx, r, expected) })
}

func (s *MemoryStore) TransitionStatus(ctx context.Context, id int64, from, to Status, at time.Time) (bool, error) {
	var changed bool
	err := s.run(func(tx *memTx) error {
		var err error
		changed, err = tx.TransitionStatus(ctx, id, from, to, at)
		return err
	})
	return changed, err
}

func (s *MemoryStore) DeleteReminder(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := s.run(func(tx *memTx) error {
		var err error
		n, err = tx.DeleteReminder(ctx, id)
		return err
	})
	return n, err
}

func (s *MemoryStore) AppendEvent(ctx context.Context, e *EventLogEntry) error {
	return s.run(func(tx *memTx) error { return tx.AppendEvent(ctx, e) })
}

func (s *MemoryStore) ListEvents(ctx context.Context, reminderID int64) ([]EventLogEntry, error) {
	var out []EventLogEntry
	err := s.run(func(tx *memTx) error {
		var err error
		out, err = tx.ListEvents(ctx, reminderID)
		return err
	})
	return out, err
}

func (s *MemoryStore) ListAllEvents(ctx context.Context) ([]EventLogEntry, error) {
	var out []EventLogEntry
	err := s.run(func(tx *memTx) error {
		var err error
		out, err = tx.ListAllEvents(ctx)
		return err
	})
	return out, err
}

// memTx operates on a memState whose lock is already held.
type memTx struct {
	state *memState
}

func (t *memTx) CreateReminder(_ context.Context, r *Reminder) error {
	r.ID = t.state.nextID
	t.state.nextID++
	t.state.reminders[r.ID] = *r
	return nil
}

func (t *memTx) GetReminder(_ context.Context, id int64) (*Reminder, error) {
	r, ok := t.state.reminders[id]
	if !ok {
		return nil, fmt.Errorf("reminder %d: %w", id, ErrNotFound)
	}
	return &r, nil
}

func (t *memTx) sorted(keep func(Reminder) bool) []Reminder {
	out := []Reminder{}
	for _, r := range t.state.reminders {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) ListReminders(context.Context) ([]Reminder, error) {
	return t.sorted(func(Reminder) bool { return true }), nil
}

func (t *memTx) ListDue(_ context.Context, now time.Time) ([]Reminder, error) {
	due := t.sorted(func(r Reminder) bool {
		return r.Status == StatusScheduled && !r.TriggerTime.After(now)
	})
	sort.SliceStable(due, func(i, j int) bool { return due[i].TriggerTime.Before(due[j].TriggerTime) })
	return due, nil
}

func (t *memTx) UpdateReminder(_ context.Context, r *Reminder, expected Status) error {
	current, ok := t.state.reminders[r.ID]
	if !ok {
		return fmt.Errorf("reminder %d: %w", r.ID, ErrNotFound)
	}
	if current.Status != expected {
		return &TransitionError{ID: r.ID, From: current.Status, To: r.Status}
	}

	current.Task = r.Task
	current.TriggerTime = r.TriggerTime
	current.Repeat = r.Repeat
	current.Status = r.Status
	current.UpdatedAt = r.UpdatedAt
	t.state.reminders[r.ID] = current
	return nil
}

func (t *memTx) TransitionStatus(_ context.Context, id int64, from, to Status, at time.Time) (bool, error) {
	r, ok := t.state.reminders[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = at
	t.state.reminders[id] = r
	return true, nil
}

func (t *memTx) DeleteReminder(_ context.Context, id int64) (int64, error) {
	if _, ok := t.state.reminders[id]; !ok {
		return 0, nil
	}
	delete(t.state.reminders, id)
	return 1, nil
}

func (t *memTx) AppendEvent(_ context.Context, e *EventLogEntry) error {
	e.ID = t.state.nextEventID
	t.state.nextEventID++
	t.state.events = append(t.state.events, *e)
	return nil
}

func (t *memTx) ListEvents(_ context.Context, reminderID int64) ([]EventLogEntry, error) {
	out := []EventLogEntry{}
	for _, e := range t.state.events {
		if e.ReminderID == reminderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) ListAllEvents(context.Context) ([]EventLogEntry, error) {
	out := make([]EventLogEntry, len(t.state.events))
	copy(out, t.state.events)
	return out, nil
}
