package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/notexe/memo/internal/client"
	"github.com/notexe/memo/internal/reminder"
	"github.com/notexe/memo/internal/ui"
	"github.com/notexe/memo/internal/voice"
)

// ReminderAPI is the part of client.APIClient the REPL uses.
type ReminderAPI interface {
	ListReminders(ctx context.Context) ([]reminder.Reminder, error)
	CreateReminder(ctx context.Context, in reminder.CreateInput) (*reminder.Reminder, error)
	UpdateReminder(ctx context.Context, id int64, in reminder.UpdateInput) (*reminder.Reminder, error)
	DeleteReminder(ctx context.Context, id int64) error
	Health(ctx context.Context) error
}

// Speaker reads short phrases aloud.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// Options wires the REPL to its services. Only API is required.
type Options struct {
	API         ReminderAPI
	Transcriber voice.Transcriber
	STTHealth   func(ctx context.Context) error
	Speaker     Speaker
	Formatter   *ui.Formatter
	SafeWord    string
	APIURL      string
	Logger      *zap.Logger
	Now         func() time.Time
}

// REPL reads typed utterances and slash commands and never exits on a
// failed request.
type REPL struct {
	api       ReminderAPI
	stt       voice.Transcriber
	sttHealth func(ctx context.Context) error
	speaker   Speaker
	formatter *ui.Formatter
	spinner   *ui.Spinner
	safeWord  string
	apiURL    string
	logger    *zap.Logger
	now       func() time.Time

	rl  *readline.Instance
	out io.Writer
}

func NewREPL(opts Options) (*REPL, error) {
	r := newREPL(opts, os.Stdout)

	rl, err := setupReadline(r.formatter.FormatPrompt())
	if err != nil {
		return nil, fmt.Errorf("failed to setup readline: %w", err)
	}
	r.rl = rl
	r.out = rl.Stdout()
	r.spinner.WithOutput(r.out)
	return r, nil
}

func newREPL(opts Options, out io.Writer) *REPL {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Formatter == nil {
		opts.Formatter = ui.NewFormatter(false)
	}
	return &REPL{
		api:       opts.API,
		stt:       opts.Transcriber,
		sttHealth: opts.STTHealth,
		speaker:   opts.Speaker,
		formatter: opts.Formatter,
		spinner:   ui.NewSpinner(opts.Formatter.Colored()).WithOutput(out),
		safeWord:  opts.SafeWord,
		apiURL:    opts.APIURL,
		logger:    opts.Logger,
		now:       opts.Now,
		out:       out,
	}
}

// Start runs the loop until /quit, EOF or ctx is cancelled.
func (r *REPL) Start(ctx context.Context) error {
	defer r.rl.Close()

	go func() {
		<-ctx.Done()
		r.rl.Close()
	}()

	r.displayWelcome()
	r.checkHealth(ctx)

	for {
		input, err := r.readInput()
		if err != nil {
			if isEOF(err) || ctx.Err() != nil {
				r.println("\nGoodbye!")
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		if input == "" {
			continue
		}

		if quit := r.handleLine(ctx, input); quit {
			return nil
		}
	}
}

// Announce prints a due reminder above the prompt. It satisfies
// client.Announcer so the poller can share the REPL's output.
func (r *REPL) Announce(_ context.Context, rem reminder.Reminder) error {
	r.println(r.formatter.FormatAnnouncement(rem))
	return nil
}

// handleLine processes one input line and reports whether to quit.
func (r *REPL) handleLine(ctx context.Context, input string) bool {
	isCommand, command, args := r.parseCommand(input)
	if !isCommand {
		r.handleUtterance(ctx, input, false)
		return false
	}

	switch command {
	case "/quit", "/exit", "/q":
		r.println("\nGoodbye!")
		return true
	}
	if err := r.handleCommand(ctx, command, args); err != nil {
		r.displayError(err)
	}
	return false
}

func (r *REPL) handleCommand(ctx context.Context, command, args string) error {
	switch command {
	case "/help", "/h":
		r.displayHelp()
		return nil

	case "/record", "/r":
		if args == "" {
			return fmt.Errorf("usage: /record <audio file>")
		}
		r.handleRecording(ctx, args)
		return nil

	case "/list", "/l":
		r.listReminders(ctx)
		return nil

	case "/done":
		return r.setStatus(ctx, command, args, reminder.StatusCompleted)

	case "/cancel":
		return r.setStatus(ctx, command, args, reminder.StatusCancelled)

	case "/delete", "/d":
		id, err := parseID(args, "/delete")
		if err != nil {
			return err
		}
		if err := r.api.DeleteReminder(ctx, id); err != nil {
			r.speakFailure(ctx, err, "Failed to delete the reminder.")
			return err
		}
		r.displaySuccess(fmt.Sprintf("Deleted reminder #%d", id))
		return nil

	case "/health":
		r.checkHealth(ctx)
		return nil

	default:
		return fmt.Errorf("unknown command: %s (type /help for available commands)", command)
	}
}

// handleUtterance parses text as a command. Transcribed speech must start
// with the safe word; typed text may omit it.
func (r *REPL) handleUtterance(ctx context.Context, text string, requireSafeWord bool) {
	commandText, ok := voice.CheckSafeWord(text, r.safeWord)
	if !ok {
		if requireSafeWord {
			r.displayInfo(fmt.Sprintf("Ignored: start with %q to give a command.", r.safeWord))
			return
		}
		commandText = text
	}

	cmd := voice.ParseCommand(commandText)
	switch cmd.Kind {
	case voice.CommandList:
		r.listReminders(ctx)
	case voice.CommandCreate:
		r.createReminder(ctx, cmd.Task, voice.ResolveTime(cmd.When, r.now()))
	default:
		r.displayInfo("Try: " + r.safeWord + " remind me to <task> at <time>, or " + r.safeWord + " list reminders")
		r.speak(ctx, "Sorry, I did not understand that.")
	}
}

func (r *REPL) handleRecording(ctx context.Context, path string) {
	if r.stt == nil {
		r.displayError(errors.New("speech recognition is not configured"))
		return
	}

	f, err := os.Open(path)
	if err != nil {
		r.displayError(err)
		return
	}
	defer f.Close()

	result, err := r.transcribe(ctx, f, path)
	if err != nil {
		r.logger.Warn("transcription failed", zap.String("file", path), zap.Error(err))
		r.displayError(err)
		r.speak(ctx, sttPhrase(err))
		return
	}

	r.println(r.formatter.FormatUtterance(result.Text))
	r.handleUtterance(ctx, result.Text, true)
}

// transcribe runs the speech service call behind a spinner on colored
// terminals. Plain output stays free of control sequences.
func (r *REPL) transcribe(ctx context.Context, audio io.Reader, path string) (voice.Transcription, error) {
	if !r.formatter.Colored() {
		return r.stt.Transcribe(ctx, audio, path)
	}
	r.spinner.Start("Transcribing...")
	defer r.spinner.Stop()
	return r.stt.Transcribe(ctx, audio, path)
}

func (r *REPL) createReminder(ctx context.Context, task, when string) {
	created, err := r.api.CreateReminder(ctx, reminder.CreateInput{Task: task, TimeISO: when})
	if err != nil {
		r.logger.Warn("create failed", zap.String("task", task), zap.Error(err))
		r.displayError(err)
		r.speakFailure(ctx, err, "Failed to create the reminder.")
		return
	}
	r.displaySuccess(fmt.Sprintf("Reminder #%d created for %s at %s",
		created.ID, created.Task, created.TriggerTime.Local().Format("2006-01-02 15:04")))
	r.speak(ctx, "Reminder created for "+created.Task)
}

func (r *REPL) listReminders(ctx context.Context) {
	reminders, err := r.api.ListReminders(ctx)
	if err != nil {
		r.displayError(err)
		r.speakFailure(ctx, err, "Failed to list reminders.")
		return
	}
	r.println(r.formatter.FormatReminders(reminders))
	r.speak(ctx, "Here are your reminders. Check the console.")
}

func (r *REPL) setStatus(ctx context.Context, command, args string, status reminder.Status) error {
	id, err := parseID(args, command)
	if err != nil {
		return err
	}
	updated, err := r.api.UpdateReminder(ctx, id, reminder.UpdateInput{Status: &status})
	if err != nil {
		return err
	}
	r.displaySuccess(fmt.Sprintf("Reminder #%d is now %s", updated.ID, updated.Status))
	return nil
}

func (r *REPL) checkHealth(ctx context.Context) {
	r.println(r.formatter.FormatHealth("reminder API", r.api.Health(ctx)))
	if r.sttHealth != nil {
		r.println(r.formatter.FormatHealth("speech service", r.sttHealth(ctx)))
	}
}

func (r *REPL) speak(ctx context.Context, text string) {
	if r.speaker == nil {
		return
	}
	if err := r.speaker.Say(ctx, text); err != nil {
		r.logger.Debug("speech failed", zap.Error(err))
	}
}

// speakFailure says fallback unless the service could not be reached at all.
func (r *REPL) speakFailure(ctx context.Context, err error, fallback string) {
	var terr *client.TransportError
	if errors.As(err, &terr) && terr.Status == 0 {
		r.speak(ctx, "Could not connect to reminder service.")
		return
	}
	r.speak(ctx, fallback)
}

func sttPhrase(err error) string {
	var sttErr *voice.STTError
	if !errors.As(err, &sttErr) {
		return "Speech recognition failed."
	}
	switch sttErr.Code {
	case voice.CodeInvalidMediaType:
		return "That audio format is not supported."
	case voice.CodeAudioTooShort:
		return "The recording was too short."
	case voice.CodeAudioTooLong:
		return "The recording was too long."
	case voice.CodeUnavailable:
		return "Could not connect to speech service."
	}
	return "Speech recognition failed."
}

func parseID(args, command string) (int64, error) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("usage: %s <id>", command)
	}
	return id, nil
}
