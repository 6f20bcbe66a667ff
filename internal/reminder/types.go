package reminder

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a reminder.
type Status string

// Status values for reminders.
const (
	StatusScheduled Status = "scheduled"
	StatusDue       Status = "due"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusDue, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further status change is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// transitions lists the directed edges of the state machine.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusDue, StatusCancelled},
	StatusDue:       {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether a reminder may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanUpdate reports whether a manual edit may move a reminder from one
// status to another. Only MarkDue reaches due, so edits may never enter it.
func CanUpdate(from, to Status) bool {
	if to == StatusDue && from != StatusDue {
		return false
	}
	return CanTransition(from, to)
}

// Repeat is an optional recurrence tag. It is stored but never expanded.
type Repeat string

// Recurrence tags.
const (
	RepeatNone     Repeat = ""
	RepeatDaily    Repeat = "daily"
	RepeatWeekly   Repeat = "weekly"
	RepeatWeekdays Repeat = "weekdays"
)

// Valid reports whether r is a known recurrence tag.
func (r Repeat) Valid() bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatWeekdays:
		return true
	}
	return false
}

// Reminder represents a time-bound reminder.
type Reminder struct {
	ID          int64
	Task        string
	TriggerTime time.Time
	Repeat      Repeat
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// reminderJSON is the wire shape shared by the HTTP API, the MCP tools and the client.
type reminderJSON struct {
	ID        int64   `json:"id"`
	Task      string  `json:"task"`
	TimeISO   string  `json:"time_iso"`
	Repeat    *string `json:"repeat"`
	Status    Status  `json:"status"`
	CreatedAt string  `json:"created_at,omitempty"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

// MarshalJSON renders the reminder with ISO timestamps and a nullable repeat.
func (r Reminder) MarshalJSON() ([]byte, error) {
	out := reminderJSON{
		ID:      r.ID,
		Task:    r.Task,
		TimeISO: formatISO(r.TriggerTime),
		Status:  r.Status,
	}
	if r.Repeat != RepeatNone {
		s := string(r.Repeat)
		out.Repeat = &s
	}
	if !r.CreatedAt.IsZero() {
		out.CreatedAt = formatISO(r.CreatedAt)
	}
	if !r.UpdatedAt.IsZero() {
		out.UpdatedAt = formatISO(r.UpdatedAt)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the wire shape produced by MarshalJSON.
func (r *Reminder) UnmarshalJSON(data []byte) error {
	var in reminderJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*r = Reminder{ID: in.ID, Task: in.Task, Status: in.Status}
	if in.Repeat != nil {
		r.Repeat = Repeat(*in.Repeat)
	}
	if in.TimeISO != "" {
		t, err := ParseTime(in.TimeISO)
		if err != nil {
			return err
		}
		r.TriggerTime = t
	}
	if in.CreatedAt != "" {
		r.CreatedAt, _ = ParseTime(in.CreatedAt)
	}
	if in.UpdatedAt != "" {
		r.UpdatedAt, _ = ParseTime(in.UpdatedAt)
	}
	return nil
}

// EventType names a lifecycle event.
type EventType string

// Event types appended to the event log.
const (
	EventCreated   EventType = "CREATED"
	EventDue       EventType = "DUE"
	EventDeleted   EventType = "DELETED"
	EventUpdated   EventType = "UPDATED"
	EventCompleted EventType = "COMPLETED"
	EventCancelled EventType = "CANCELLED"
)

// EventLogEntry is one append-only audit record. ReminderID is a back reference
// only; the entry outlives the reminder it points to.
type EventLogEntry struct {
	ID         int64     `json:"id"`
	EventType  EventType `json:"event_type"`
	ReminderID int64     `json:"reminder_id"`
	Timestamp  time.Time `json:"timestamp"`
	Info       string    `json:"info,omitempty"`
}

// Accepted trigger time layouts, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime parses an ISO-style timestamp. Values without a zone are read in
// local time.
func ParseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func formatISO(t time.Time) string {
	return t.Local().Format(time.RFC3339)
}
