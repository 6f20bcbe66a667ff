package repl

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notexe/memo/internal/client"
	memohttp "github.com/notexe/memo/internal/http"
	"github.com/notexe/memo/internal/reminder"
	"github.com/notexe/memo/internal/ui"
	"github.com/notexe/memo/internal/voice"
)

type recordingSpeaker struct {
	mu      sync.Mutex
	phrases []string
}

func (s *recordingSpeaker) Say(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phrases = append(s.phrases, text)
	return nil
}

func (s *recordingSpeaker) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.phrases) == 0 {
		return ""
	}
	return s.phrases[len(s.phrases)-1]
}

type failingTranscriber struct{ err error }

func (f failingTranscriber) Transcribe(context.Context, io.Reader, string) (voice.Transcription, error) {
	return voice.Transcription{}, f.err
}

var fixedNow = time.Date(2030, 5, 1, 9, 0, 0, 0, time.Local)

type harness struct {
	repl    *REPL
	out     *bytes.Buffer
	speaker *recordingSpeaker
	engine  *reminder.Engine
}

func newHarness(t *testing.T, stt voice.Transcriber) *harness {
	t.Helper()
	engine := reminder.NewEngine(reminder.NewMemoryStore())
	server, err := memohttp.NewServer(engine, zap.NewNop(), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	h := &harness{out: &bytes.Buffer{}, speaker: &recordingSpeaker{}, engine: engine}
	h.repl = newREPL(Options{
		API:         client.NewAPIClient(ts.URL, 2*time.Second),
		Transcriber: stt,
		Speaker:     h.speaker,
		SafeWord:    "memo",
		Now:         func() time.Time { return fixedNow },
	}, h.out)
	return h
}

func (h *harness) line(input string) bool {
	return h.repl.handleLine(context.Background(), input)
}

func TestUtteranceCreatesReminder(t *testing.T) {
	h := newHarness(t, nil)

	assert.False(t, h.line("memo remind me to Call Mom at 6 pm"))

	list, err := h.engine.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Call Mom", list[0].Task)
	want := time.Date(2030, 5, 1, 18, 0, 0, 0, time.Local)
	assert.True(t, want.Equal(list[0].TriggerTime), "got %s", list[0].TriggerTime)
	assert.Equal(t, "Reminder created for Call Mom", h.speaker.last())
	assert.Contains(t, h.out.String(), "Reminder #1 created")
}

func TestTypedUtteranceWithoutSafeWord(t *testing.T) {
	h := newHarness(t, nil)

	h.line("remind me to call mom at 6 pm")

	list, err := h.engine.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "call mom", list[0].Task)
}

func TestRecordingWithoutSafeWordIsIgnored(t *testing.T) {
	h := newHarness(t, voice.StaticTranscriber{Text: "remind me to call mom at 6 pm"})
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o600))

	h.line("/record " + path)

	list, err := h.engine.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Contains(t, h.out.String(), "Ignored")
	assert.Empty(t, h.speaker.phrases)
}

func TestUnknownUtterance(t *testing.T) {
	h := newHarness(t, nil)
	h.line("memo sing a song")
	assert.Equal(t, "Sorry, I did not understand that.", h.speaker.last())
}

func TestInvalidTimeIsReportedNotFatal(t *testing.T) {
	h := newHarness(t, nil)

	assert.False(t, h.line("memo create meeting at someday"))
	assert.Contains(t, h.out.String(), "Error:")
	assert.Equal(t, "Failed to create the reminder.", h.speaker.last())
}

func TestListAndLifecycleCommands(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.line("memo create standup at 2020-01-01T09:00")
	h.line("memo list reminders")
	assert.Contains(t, h.out.String(), "standup")
	assert.Equal(t, "Here are your reminders. Check the console.", h.speaker.last())

	h.line("/done 1")
	assert.Contains(t, h.out.String(), "INVALID_TRANSITION", "scheduled reminders cannot be completed")

	h.line("/cancel 1")
	got, err := h.engine.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, reminder.StatusCancelled, got.Status)

	h.line("/delete 1")
	list, err := h.engine.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCommandUsageErrors(t *testing.T) {
	h := newHarness(t, nil)

	for _, in := range []string{"/delete", "/delete abc", "/done", "/record", "/nope"} {
		h.out.Reset()
		assert.False(t, h.line(in))
		assert.Contains(t, h.out.String(), "Error:", in)
	}
}

func TestQuit(t *testing.T) {
	h := newHarness(t, nil)
	assert.True(t, h.line("/quit"))
	assert.True(t, h.line("/EXIT"))
}

func TestUnreachableAPIKeepsRunning(t *testing.T) {
	speaker := &recordingSpeaker{}
	var out bytes.Buffer
	r := newREPL(Options{
		API:      client.NewAPIClient("http://127.0.0.1:1", 200*time.Millisecond),
		Speaker:  speaker,
		SafeWord: "memo",
	}, &out)

	assert.False(t, r.handleLine(context.Background(), "memo list"))
	assert.Equal(t, "Could not connect to reminder service.", speaker.last())

	r.handleLine(context.Background(), "/health")
	assert.Contains(t, out.String(), "✗ reminder API")
}

func TestRecordTranscribesAndHandles(t *testing.T) {
	h := newHarness(t, voice.StaticTranscriber{Text: "memo remind me to call mom at 6 pm"})
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o600))

	h.line("/record " + path)

	assert.Contains(t, h.out.String(), "Heard: memo remind me to call mom at 6 pm")
	list, err := h.engine.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "call mom", list[0].Task)
}

type slowTranscriber struct {
	delay time.Duration
	text  string
}

func (s slowTranscriber) Transcribe(ctx context.Context, _ io.Reader, _ string) (voice.Transcription, error) {
	select {
	case <-time.After(s.delay):
		return voice.Transcription{Text: s.text}, nil
	case <-ctx.Done():
		return voice.Transcription{}, ctx.Err()
	}
}

func TestRecordShowsSpinnerOnColoredOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o600))
	stt := slowTranscriber{delay: 300 * time.Millisecond, text: "memo list"}

	var colored bytes.Buffer
	r := newREPL(Options{
		API:         client.NewAPIClient("http://127.0.0.1:1", time.Second),
		Transcriber: stt,
		Formatter:   ui.NewFormatter(true),
		SafeWord:    "memo",
	}, &colored)
	r.handleLine(context.Background(), "/record "+path)
	assert.Contains(t, colored.String(), "Transcribing...")
	assert.Contains(t, colored.String(), "\r\033[K")

	h := newHarness(t, stt)
	h.line("/record " + path)
	assert.NotContains(t, h.out.String(), "Transcribing...")
	assert.Contains(t, h.out.String(), "Heard: memo list")
}

func TestRecordFailuresAreSpoken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o600))

	tests := []struct {
		code string
		want string
	}{
		{voice.CodeAudioTooShort, "The recording was too short."},
		{voice.CodeInvalidMediaType, "That audio format is not supported."},
		{voice.CodeUnavailable, "Could not connect to speech service."},
		{voice.CodeSTTFailed, "Speech recognition failed."},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := newHarness(t, failingTranscriber{err: &voice.STTError{Code: tt.code}})
			h.line("/record " + path)
			assert.Equal(t, tt.want, h.speaker.last())
		})
	}
}

func TestRecordMissingFile(t *testing.T) {
	h := newHarness(t, voice.StaticTranscriber{Text: "memo list"})
	h.line("/record /does/not/exist.wav")
	assert.Contains(t, h.out.String(), "Error:")
}

func TestAnnounceWritesToOutput(t *testing.T) {
	h := newHarness(t, nil)
	var _ client.Announcer = h.repl

	require.NoError(t, h.repl.Announce(context.Background(), reminder.Reminder{
		Task:        "stretch",
		TriggerTime: time.Date(2030, 1, 1, 7, 30, 0, 0, time.Local),
	}))
	assert.Contains(t, h.out.String(), "[REMINDER DUE] stretch (07:30)")
}
