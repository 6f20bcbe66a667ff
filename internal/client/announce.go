package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/notexe/memo/internal/reminder"
)

// Announcer tells the user that a reminder is due.
type Announcer interface {
	Announce(ctx context.Context, r reminder.Reminder) error
}

// CommandRunner runs an external program.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// SpokenText is the phrase read out for a due reminder.
func SpokenText(r reminder.Reminder) string {
	return "Reminder: " + r.Task
}

// ConsoleAnnouncer prints one line per announcement.
type ConsoleAnnouncer struct {
	mu     sync.Mutex
	out    io.Writer
	format func(reminder.Reminder) string
}

// NewConsoleAnnouncer writes to out using format, or a plain line if format is nil.
func NewConsoleAnnouncer(out io.Writer, format func(reminder.Reminder) string) *ConsoleAnnouncer {
	if format == nil {
		format = func(r reminder.Reminder) string {
			return fmt.Sprintf("[REMINDER DUE] %s (%s)", r.Task, r.TriggerTime.Local().Format("15:04"))
		}
	}
	return &ConsoleAnnouncer{out: out, format: format}
}

func (a *ConsoleAnnouncer) Announce(_ context.Context, r reminder.Reminder) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintln(a.out, a.format(r))
	return err
}

// speechCommands are tried in order when no command is configured.
var speechCommands = []string{"say", "espeak-ng", "espeak", "spd-say"}

// DetectSpeechCommand returns the first text-to-speech program on PATH.
func DetectSpeechCommand() string {
	for _, name := range speechCommands {
		if _, err := exec.LookPath(name); err == nil {
			return name
		}
	}
	return ""
}

// SpeechAnnouncer speaks through an external TTS command such as say or espeak.
// Calls are serialised so phrases never overlap.
type SpeechAnnouncer struct {
	mu      sync.Mutex
	command []string
	run     CommandRunner
}

// NewSpeechAnnouncer uses command, split on spaces, with the text appended as
// the last argument.
func NewSpeechAnnouncer(command string) *SpeechAnnouncer {
	return &SpeechAnnouncer{command: strings.Fields(command), run: execRunner}
}

// WithRunner replaces the process runner.
func (a *SpeechAnnouncer) WithRunner(run CommandRunner) *SpeechAnnouncer {
	a.run = run
	return a
}

// Say speaks arbitrary text.
func (a *SpeechAnnouncer) Say(ctx context.Context, text string) error {
	if len(a.command) == 0 {
		return errors.New("no speech command configured")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	args := append(append([]string{}, a.command[1:]...), text)
	if err := a.run(ctx, a.command[0], args...); err != nil {
		return fmt.Errorf("speak with %s: %w", a.command[0], err)
	}
	return nil
}

func (a *SpeechAnnouncer) Announce(ctx context.Context, r reminder.Reminder) error {
	return a.Say(ctx, SpokenText(r))
}

// DesktopAnnouncer raises a desktop notification.
type DesktopAnnouncer struct {
	goos string
	run  CommandRunner
}

// NewDesktopAnnouncer picks notify-send or osascript based on the platform.
func NewDesktopAnnouncer() *DesktopAnnouncer {
	return &DesktopAnnouncer{goos: runtime.GOOS, run: execRunner}
}

// WithRunner replaces the process runner.
func (a *DesktopAnnouncer) WithRunner(goos string, run CommandRunner) *DesktopAnnouncer {
	a.goos = goos
	a.run = run
	return a
}

func (a *DesktopAnnouncer) Announce(ctx context.Context, r reminder.Reminder) error {
	title := "Reminder due"
	body := r.Task

	switch a.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", strconv.Quote(body), strconv.Quote(title))
		return a.run(ctx, "osascript", "-e", script)
	case "linux", "freebsd", "openbsd":
		return a.run(ctx, "notify-send", "--app-name=memo", title, body)
	}
	return fmt.Errorf("desktop notifications not supported on %s", a.goos)
}

// MultiAnnouncer fans out to several announcers and joins their errors.
type MultiAnnouncer []Announcer

func (m MultiAnnouncer) Announce(ctx context.Context, r reminder.Reminder) error {
	var errs []error
	for _, a := range m {
		if err := a.Announce(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
