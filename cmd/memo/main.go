// Package main implements memo, the voice reminder client. Without a
// subcommand it starts an interactive session that also announces due
// reminders; the subcommands cover one-shot operations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notexe/memo/internal/client"
	"github.com/notexe/memo/internal/config"
	"github.com/notexe/memo/internal/logging"
	"github.com/notexe/memo/internal/repl"
	"github.com/notexe/memo/internal/supervisor"
	"github.com/notexe/memo/internal/ui"
	"github.com/notexe/memo/internal/voice"
)

var (
	configPath string
	apiURL     string
	noColor    bool
	mockSTT    bool

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memo",
	Short: "Voice-driven reminders",
	Long: `memo talks to the reminder service. Run without arguments for an
interactive session: type an utterance as you would say it, or use
/record <file> to send audio to the speech service. Due reminders are
announced while the session is open.

Examples:
  memo
  memo add "call mom" --at "6 pm"
  memo list
  memo watch`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runInteractive,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.GetDefaultConfigPath(), "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Reminder API URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.Flags().BoolVar(&mockSTT, "mock-stt", false, "Use a fixed transcription instead of the speech service")
}

// loadConfig reads the config file and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if apiURL != "" {
		cfg.Client.APIURL = apiURL
	}
	if noColor {
		cfg.UI.ColoredOutput = false
	}
	if mockSTT {
		cfg.Client.MockSTT = true
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func requestTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Client.RequestTimeout) * time.Second
}

func newAPIClient(cfg *config.Config) *client.APIClient {
	return client.NewAPIClient(cfg.Client.APIURL, requestTimeout(cfg))
}

func newPollerConfig(cfg *config.Config) client.PollerConfig {
	return client.PollerConfig{
		Interval:    time.Duration(cfg.Client.PollInterval) * time.Second,
		BackoffBase: time.Duration(cfg.Client.BackoffBase) * time.Second,
		BackoffCap:  time.Duration(cfg.Client.BackoffCap) * time.Second,
	}
}

func newTracker(cfg *config.Config, logger *zap.Logger) (client.Tracker, error) {
	if cfg.Client.AnnouncedFile == "" {
		return client.NewMemoryTracker(), nil
	}
	t, err := client.NewFileTracker(cfg.Client.AnnouncedFile)
	if err != nil {
		return nil, err
	}
	t.OnError = func(err error) {
		logger.Warn("failed to persist announced ids", zap.Error(err))
	}
	return t, nil
}

// newSpeaker returns nil when speech is off or no TTS program is found.
func newSpeaker(cfg *config.Config) *client.SpeechAnnouncer {
	if !cfg.Client.Speak {
		return nil
	}
	command := cfg.Client.SpeechCommand
	if command == "" {
		command = client.DetectSpeechCommand()
	}
	if command == "" {
		return nil
	}
	return client.NewSpeechAnnouncer(command)
}

// newAnnouncer fans a due reminder out to the console line and whichever of
// speech and desktop notifications are enabled.
func newAnnouncer(cfg *config.Config, console client.Announcer, speaker *client.SpeechAnnouncer) client.Announcer {
	announcers := client.MultiAnnouncer{console}
	if speaker != nil {
		announcers = append(announcers, speaker)
	}
	if cfg.Client.Notify {
		announcers = append(announcers, client.NewDesktopAnnouncer())
	}
	return announcers
}

func newTranscriber(cfg *config.Config) (voice.Transcriber, func(ctx context.Context) error) {
	if cfg.Client.MockSTT {
		return voice.StaticTranscriber{Text: voice.DefaultMockUtterance}, nil
	}
	stt := voice.NewHTTPTranscriber(cfg.Client.STTURL, requestTimeout(cfg))
	return stt, stt.Health
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runInteractive(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.NewFileOnly(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	api := newAPIClient(cfg)
	speaker := newSpeaker(cfg)
	stt, sttHealth := newTranscriber(cfg)

	opts := repl.Options{
		API:         api,
		Transcriber: stt,
		STTHealth:   sttHealth,
		Formatter:   ui.NewFormatter(cfg.UI.ColoredOutput),
		SafeWord:    cfg.Client.SafeWord,
		APIURL:      cfg.Client.APIURL,
		Logger:      logger.Named("repl"),
	}
	if speaker != nil {
		opts.Speaker = speaker
	}
	session, err := repl.NewREPL(opts)
	if err != nil {
		return err
	}

	tracker, err := newTracker(cfg, logger)
	if err != nil {
		return err
	}
	poller := client.NewPoller(api, tracker, newAnnouncer(cfg, session, speaker), newPollerConfig(cfg), logger.Named("poller"))

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		_ = supervisor.Run(ctx, "poller", logger, poller.Run)
	}()

	return session.Start(ctx)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
