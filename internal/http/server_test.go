package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notexe/memo/internal/reminder"
	"github.com/notexe/memo/internal/scheduler"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	server *Server
	engine *reminder.Engine
	clock  *clock
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	return setupTestServerWithRepo(t, reminder.NewMemoryStore(), nil)
}

func setupTestServerWithRepo(t *testing.T, repo reminder.Repository, cfg *Config) *testEnv {
	t.Helper()
	c := &clock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)}
	engine := reminder.NewEngine(repo, reminder.WithClock(c.Now))

	server, err := NewServer(engine, zap.NewNop(), cfg)
	require.NoError(t, err)
	return &testEnv{server: server, engine: engine, clock: c}
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func eventTypes(events []reminder.EventLogEntry) []reminder.EventType {
	out := make([]reminder.EventType, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}

func TestNewServer(t *testing.T) {
	engine := reminder.NewEngine(reminder.NewMemoryStore())

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(engine, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, 8000, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(engine, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when engine is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.Error(t, err)
	})
}

func TestHandleHealth(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

type downRepo struct {
	*reminder.MemoryStore
}

func (downRepo) Ping(context.Context) error {
	return errors.Join(reminder.ErrStorageUnavailable, errors.New("connection refused"))
}

func (downRepo) ListReminders(context.Context) ([]reminder.Reminder, error) {
	return nil, errors.Join(reminder.ErrStorageUnavailable, errors.New("dial tcp 10.0.0.5:5432: connection refused"))
}

func TestHandleHealthDegraded(t *testing.T) {
	env := setupTestServerWithRepo(t, downRepo{reminder.NewMemoryStore()}, nil)

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[HealthResponse](t, rec).Status)
}

func TestStorageErrorsAreHidden(t *testing.T) {
	env := setupTestServerWithRepo(t, downRepo{reminder.NewMemoryStore()}, nil)

	rec := env.do(t, http.MethodGet, "/reminders/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, codeInternal, resp.Error)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestCreateAndList(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/reminders/", `{"task":"call mom","time_iso":"2025-03-10T18:00:00","repeat":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	created := decode[map[string]any](t, rec)
	assert.Equal(t, "call mom", created["task"])
	assert.Equal(t, "scheduled", created["status"])
	assert.Nil(t, created["repeat"])
	assert.EqualValues(t, 1, created["id"])

	rec = env.do(t, http.MethodPost, "/reminders", `{"task":"gym","time_iso":"2025-03-10T19:00:00","repeat":"weekly"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/reminders/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]reminder.Reminder](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "call mom", list[0].Task)
	assert.Equal(t, reminder.RepeatWeekly, list[1].Repeat)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty task", `{"task":"","time_iso":"2025-03-10T18:00:00"}`},
		{"missing time", `{"task":"call mom"}`},
		{"bad time", `{"task":"call mom","time_iso":"six pm"}`},
		{"bad repeat", `{"task":"call mom","time_iso":"2025-03-10T18:00:00","repeat":"hourly"}`},
		{"malformed json", `{"task":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t)

			rec := env.do(t, http.MethodPost, "/reminders/", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, codeValidation, decode[ErrorResponse](t, rec).Error)

			events, err := env.engine.AllEvents(context.Background())
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestGetAndUpdate(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodPost, "/reminders/", `{"task":"bins","time_iso":"2025-03-10T07:00:00"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/reminders/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bins", decode[reminder.Reminder](t, rec).Task)

	rec = env.do(t, http.MethodGet, "/reminders/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPut, "/reminders/1", `{"task":"recycling","status":"cancelled"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[reminder.Reminder](t, rec)
	assert.Equal(t, "recycling", updated.Task)
	assert.Equal(t, reminder.StatusCancelled, updated.Status)

	rec = env.do(t, http.MethodPut, "/reminders/1", `{"status":"scheduled"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeInvalidTransition, decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPut, "/reminders/9", `{"task":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Only the scheduler moves a reminder to due; an edit asking for it is a
// conflict and leaves the history untouched.
func TestUpdateCannotMarkDue(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodPost, "/reminders/", `{"task":"dentist","time_iso":"2030-01-01T09:00:00"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/reminders/1", `{"status":"due"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeInvalidTransition, decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodGet, "/reminders/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reminder.StatusScheduled, decode[reminder.Reminder](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/reminders/1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []reminder.EventType{reminder.EventCreated}, eventTypes(decode[[]reminder.EventLogEntry](t, rec)))
}

func TestDeleteUnknownIDIsOK(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodDelete, "/reminders/999", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[DeleteResponse](t, rec).OK)

	rec = env.do(t, http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]reminder.EventLogEntry](t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, reminder.EventDeleted, events[0].EventType)
	assert.EqualValues(t, 999, events[0].ReminderID)
}

func TestDeleteBadID(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodDelete, "/reminders/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeValidation, decode[ErrorResponse](t, rec).Error)
}

func TestUnknownRoute(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, decode[ErrorResponse](t, rec).Error)
}

// A reminder created in the past becomes due on the next tick and is
// reported as due by the list endpoint; its history is CREATED then DUE.
func TestScenarioPastReminderBecomesDue(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/reminders/", `{"task":"stand up","time_iso":"2025-03-10T11:59:00"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[reminder.Reminder](t, rec).ID

	sched := scheduler.New(env.engine, env.engine, scheduler.Options{})
	_, err := sched.Tick(context.Background())
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/reminders/", "")
	list := decode[[]reminder.Reminder](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, reminder.StatusDue, list[0].Status)

	rec = env.do(t, http.MethodGet, "/reminders/"+strconv.FormatInt(id, 10)+"/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]reminder.EventLogEntry](t, rec)
	assert.Equal(t, []reminder.EventType{reminder.EventCreated, reminder.EventDue}, eventTypes(events))
}

// A reminder deleted before its trigger time is never marked due.
func TestScenarioDeletedBeforeTrigger(t *testing.T) {
	env := setupTestServer(t)
	sched := scheduler.New(env.engine, env.engine, scheduler.Options{})

	rec := env.do(t, http.MethodPost, "/reminders/", `{"task":"water","time_iso":"2025-03-10T12:05:00"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/reminders/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	env.clock.Advance(10 * time.Minute)
	result, err := sched.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Marked)

	rec = env.do(t, http.MethodGet, "/reminders/1/events", "")
	events := decode[[]reminder.EventLogEntry](t, rec)
	assert.Equal(t, []reminder.EventType{reminder.EventCreated, reminder.EventDeleted}, eventTypes(events))
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodGet, "/health", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "memo_http_requests_total")
}

func TestRateLimit(t *testing.T) {
	env := setupTestServerWithRepo(t, reminder.NewMemoryStore(), &Config{Host: "127.0.0.1", Port: 8000, RateLimit: 1})

	codes := map[int]int{}
	for i := 0; i < 10; i++ {
		codes[env.do(t, http.MethodGet, "/health", "").Code]++
	}
	assert.Positive(t, codes[http.StatusTooManyRequests])
	assert.Positive(t, codes[http.StatusOK])
}
