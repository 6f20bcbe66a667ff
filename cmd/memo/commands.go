package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notexe/memo/internal/client"
	"github.com/notexe/memo/internal/logging"
	"github.com/notexe/memo/internal/reminder"
	"github.com/notexe/memo/internal/supervisor"
	"github.com/notexe/memo/internal/ui"
	"github.com/notexe/memo/internal/voice"
)

var (
	listJSON   bool
	listStatus string
	addAt      string
	addRepeat  string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(checkCmd)

	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output reminders as JSON")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only show reminders in this status")

	addCmd.Flags().StringVar(&addAt, "at", "", `When to remind: "6 pm", "18:30" or an ISO timestamp (required)`)
	addCmd.Flags().StringVar(&addRepeat, "repeat", "", "Recurrence tag: daily, weekly or weekdays")
	_ = addCmd.MarkFlagRequired("at")
}

// watchCmd runs the announcement loop without the interactive prompt.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Announce due reminders until interrupted",
	Long: `Poll the reminder service and announce each due reminder once.

Failed polls back off exponentially and recover on their own; the
watcher never exits because the service is down.

Examples:
  memo watch
  memo watch --api http://reminders.local:8000`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List reminders",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var addCmd = &cobra.Command{
	Use:   "add <task>",
	Short: "Create a reminder",
	Long: `Create a reminder.

Examples:
  memo add "call mom" --at "6 pm"
  memo add "standup" --at 2030-01-06T09:00 --repeat weekdays`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a reminder",
	Long: `Delete a reminder by id. Without an id, pick one from a menu.

Deleting an id that does not exist succeeds.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDelete,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the reminder and speech services",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

// checkCmd shows how an utterance would be understood without calling any service.
var checkCmd = &cobra.Command{
	Use:   "check <utterance>",
	Short: "Show how an utterance is parsed",
	Long: `Show how an utterance is parsed, without calling any service.

Examples:
  memo check "memo remind me to buy milk at 6 pm"`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tracker, err := newTracker(cfg, logger)
	if err != nil {
		return err
	}

	formatter := ui.NewFormatter(cfg.UI.ColoredOutput)
	console := client.NewConsoleAnnouncer(cmd.OutOrStdout(), formatter.FormatAnnouncement)
	poller := client.NewPoller(newAPIClient(cfg), tracker, newAnnouncer(cfg, console, newSpeaker(cfg)),
		newPollerConfig(cfg), logger.Named("poller"))

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("watching for due reminders", zap.String("api_url", cfg.Client.APIURL))
	return supervisor.Run(ctx, "poller", logger, poller.Run)
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(cfg))
	defer cancel()

	reminders, err := newAPIClient(cfg).ListReminders(ctx)
	if err != nil {
		return err
	}

	if listStatus != "" {
		status := reminder.Status(listStatus)
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", listStatus)
		}
		filtered := reminders[:0]
		for _, r := range reminders {
			if r.Status == status {
				filtered = append(filtered, r)
			}
		}
		reminders = filtered
	}

	if listJSON {
		if reminders == nil {
			reminders = []reminder.Reminder{}
		}
		return printJSON(cmd.OutOrStdout(), reminders)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.NewFormatter(cfg.UI.ColoredOutput).FormatReminders(reminders))
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	in := reminder.CreateInput{
		Task:    args[0],
		TimeISO: voice.ResolveTime(addAt, time.Now()),
	}
	if addRepeat != "" {
		in.Repeat = &addRepeat
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(cfg))
	defer cancel()

	created, err := newAPIClient(cfg).CreateReminder(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.NewFormatter(cfg.UI.ColoredOutput).FormatSuccess(
		fmt.Sprintf("Reminder #%d created for %s at %s",
			created.ID, created.Task, created.TriggerTime.Local().Format("2006-01-02 15:04"))))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	api := newAPIClient(cfg)
	formatter := ui.NewFormatter(cfg.UI.ColoredOutput)

	var id int64
	if len(args) == 1 {
		id, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid reminder id %q", args[0])
		}
	} else {
		reminders, err := api.ListReminders(cmd.Context())
		if err != nil {
			return err
		}
		if len(reminders) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), formatter.FormatInfo("No reminders."))
			return nil
		}
		picked, err := ui.NewSelector("Delete which reminder?", reminders, cfg.UI.ColoredOutput).Run()
		if errors.Is(err, ui.ErrCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
		id = picked.ID
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(cfg))
	defer cancel()
	if err := api.DeleteReminder(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatter.FormatSuccess(fmt.Sprintf("Deleted reminder #%d", id)))
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	formatter := ui.NewFormatter(cfg.UI.ColoredOutput)
	out := cmd.OutOrStdout()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout(cfg))
	defer cancel()

	apiErr := newAPIClient(cfg).Health(ctx)
	fmt.Fprintln(out, formatter.FormatHealth("reminder API ("+cfg.Client.APIURL+")", apiErr))

	var sttErr error
	if cfg.Client.MockSTT {
		fmt.Fprintln(out, formatter.FormatInfo("speech service: mock mode"))
	} else {
		sttErr = voice.NewHTTPTranscriber(cfg.Client.STTURL, requestTimeout(cfg)).Health(ctx)
		fmt.Fprintln(out, formatter.FormatHealth("speech service ("+cfg.Client.STTURL+")", sttErr))
	}

	if apiErr != nil || sttErr != nil {
		return errors.New("one or more services are unavailable")
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	text, ok := voice.CheckSafeWord(args[0], cfg.Client.SafeWord)
	if !ok {
		fmt.Fprintf(out, "ignored: does not start with the safe word %q\n", cfg.Client.SafeWord)
		return nil
	}

	parsed := voice.ParseCommand(text)
	fmt.Fprintf(out, "command: %s\n", parsed.Kind)
	if parsed.Kind == voice.CommandCreate {
		fmt.Fprintf(out, "task:    %s\n", parsed.Task)
		fmt.Fprintf(out, "time:    %s -> %s\n", parsed.When, voice.ResolveTime(parsed.When, time.Now()))
	}
	return nil
}
