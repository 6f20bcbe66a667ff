// Command mcp-reminder exposes the reminder engine as MCP tools over stdio.
//
// It opens the same database as reminderd, so reminders created here are
// picked up by the running scheduler.
//
// Usage:
//
//	./mcp-reminder          # Start MCP server (stdio)
//	./mcp-reminder --help   # Show help
//
// Environment:
//
//	REMINDER_DB_PATH  Path to SQLite database (default: database.path from ~/.memo/config.yaml)
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/notexe/memo/internal/config"
	"github.com/notexe/memo/internal/logging"
	"github.com/notexe/memo/internal/reminder"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--help", "-h":
			printHelp()
			return
		}
	}

	cfg, err := config.Load(config.GetDefaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	driver, target := cfg.Database.Driver, cfg.Database.Path
	if driver == config.DriverPostgres {
		target = cfg.Database.DSN
	}
	if dbPath := os.Getenv("REMINDER_DB_PATH"); dbPath != "" {
		driver, target = config.DriverSQLite, dbPath
	}

	// stdout carries the MCP protocol, so logs only go to the log file.
	logger, err := logging.NewFileOnly(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	repo, err := reminder.Open(driver, target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	engineOpts := []reminder.EngineOption{reminder.WithLogger(logger.Named("engine"))}
	if cfg.Events.NATSURL != "" {
		pub, err := reminder.DialNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			logger.Warn("event publishing disabled", zap.Error(err))
		} else {
			defer pub.Close()
			engineOpts = append(engineOpts, reminder.WithPublisher(pub))
		}
	}

	s := reminder.NewServer(reminder.NewEngine(repo, engineOpts...))

	if err := server.ServeStdio(s.MCPServer()); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`MCP Reminder Server - Reminder management via MCP protocol

USAGE:
    mcp-reminder          Start MCP server (communicates via stdio)
    mcp-reminder --help   Show this help

ENVIRONMENT:
    REMINDER_DB_PATH  Path to SQLite database file
                      Default: database settings from ~/.memo/config.yaml
    MEMO_*            Any config override, e.g. MEMO_EVENTS_NATS_URL

TOOLS:
    add_reminder       Schedule a reminder (task, time_iso, repeat)
    list_reminders     List reminders (optional status filter)
    get_due_reminders  List reminders the scheduler has marked due
    update_reminder    Change task, time, repeat or status
    delete_reminder    Delete a reminder
    reminder_history   Show the event log of a reminder

Reminders only become due while reminderd's scheduler is running.`)
}
