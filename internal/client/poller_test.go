package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notexe/memo/internal/reminder"
)

// scriptedLister replays a fixed sequence of responses.
type scriptedLister struct {
	mu    sync.Mutex
	steps []listStep
	calls int
}

type listStep struct {
	reminders []reminder.Reminder
	err       error
}

func (l *scriptedLister) ListReminders(context.Context) ([]reminder.Reminder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	step := l.steps[len(l.steps)-1]
	if l.calls < len(l.steps) {
		step = l.steps[l.calls]
	}
	l.calls++
	return step.reminders, step.err
}

type recordingAnnouncer struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (a *recordingAnnouncer) Announce(_ context.Context, r reminder.Reminder) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, r.ID)
	return a.err
}

func due(id int64, task string) reminder.Reminder {
	return reminder.Reminder{ID: id, Task: task, Status: reminder.StatusDue}
}

func scheduled(id int64, task string) reminder.Reminder {
	return reminder.Reminder{ID: id, Task: task, Status: reminder.StatusScheduled}
}

var errDown = errors.New("connection refused")

func TestPollAnnouncesOnlyNewDue(t *testing.T) {
	lister := &scriptedLister{steps: []listStep{
		{reminders: []reminder.Reminder{due(1, "a"), scheduled(2, "b")}},
		{reminders: []reminder.Reminder{due(1, "a"), due(2, "b")}},
		{reminders: []reminder.Reminder{due(1, "a"), due(2, "b")}},
	}}
	ann := &recordingAnnouncer{}
	p := NewPoller(lister, NewMemoryTracker(), ann, PollerConfig{}, nil)

	for i := 0; i < 3; i++ {
		_, err := p.Poll(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1, 2}, ann.ids)
}

func TestPollNoDuplicatesAcrossFailures(t *testing.T) {
	lister := &scriptedLister{steps: []listStep{
		{reminders: []reminder.Reminder{due(7, "pills")}},
		{err: errDown},
		{err: errDown},
		{reminders: []reminder.Reminder{due(7, "pills"), due(8, "stretch")}},
	}}
	ann := &recordingAnnouncer{}
	p := NewPoller(lister, NewMemoryTracker(), ann, PollerConfig{}, nil)

	for i := 0; i < 4; i++ {
		_, _ = p.Poll(context.Background())
	}
	assert.Equal(t, []int64{7, 8}, ann.ids)
}

func TestPollMarksSeenEvenIfAnnounceFails(t *testing.T) {
	lister := &scriptedLister{steps: []listStep{{reminders: []reminder.Reminder{due(3, "x")}}}}
	ann := &recordingAnnouncer{err: errors.New("speaker unplugged")}
	tracker := NewMemoryTracker()
	p := NewPoller(lister, tracker, ann, PollerConfig{}, nil)

	n, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, tracker.IsNew(3))

	_, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, ann.ids, 1)
}

func TestNextDelayBackoffSequence(t *testing.T) {
	lister := &scriptedLister{steps: []listStep{{err: errDown}}}
	p := NewPoller(lister, NewMemoryTracker(), &recordingAnnouncer{}, PollerConfig{}, nil)

	assert.Equal(t, 30*time.Second, p.NextDelay(), "no failures yet")

	want := []time.Duration{30, 60, 120, 240, 300, 300}
	for i, w := range want {
		_, err := p.Poll(context.Background())
		require.Error(t, err)
		assert.Equal(t, w*time.Second, p.NextDelay(), "after %d failures", i+1)
		assert.Equal(t, i+1, p.Failures())
	}
}

func TestNextDelayResetsOnSuccess(t *testing.T) {
	lister := &scriptedLister{steps: []listStep{
		{err: errDown},
		{err: errDown},
		{err: errDown},
		{reminders: nil},
		{err: errDown},
	}}
	p := NewPoller(lister, NewMemoryTracker(), &recordingAnnouncer{}, PollerConfig{
		Interval:    10 * time.Second,
		BackoffBase: 5 * time.Second,
		BackoffCap:  60 * time.Second,
	}, nil)

	for i := 0; i < 3; i++ {
		_, _ = p.Poll(context.Background())
	}
	assert.Equal(t, 20*time.Second, p.NextDelay())

	_, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, p.NextDelay())
	assert.Zero(t, p.Failures())

	_, _ = p.Poll(context.Background())
	assert.Equal(t, 5*time.Second, p.NextDelay())
}

func TestRunUsesNextDelayAndStopsOnCancel(t *testing.T) {
	lister := &scriptedLister{steps: []listStep{
		{err: errDown},
		{err: errDown},
		{reminders: []reminder.Reminder{due(1, "a")}},
	}}
	ann := &recordingAnnouncer{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var slept []time.Duration
	p := NewPoller(lister, NewMemoryTracker(), ann, PollerConfig{}, nil).
		WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			if len(slept) == 3 {
				cancel()
				return context.Canceled
			}
			return nil
		})

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second, 30 * time.Second}, slept)
	assert.Equal(t, []int64{1}, ann.ids)
}
