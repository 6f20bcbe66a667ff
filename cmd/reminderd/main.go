// Command reminderd runs the reminder service: the HTTP API, the scheduler
// that promotes reminders to due, and the optional NATS event feed.
//
// Usage:
//
//	./reminderd                      # Start with ~/.memo/config.yaml
//	./reminderd -config memo.yaml    # Start with a specific config file
//	./reminderd -port 9000 -db memory
//
// Environment:
//
//	MEMO_*  Overrides any config key, e.g. MEMO_DATABASE_DRIVER=postgres
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/notexe/memo/internal/config"
	memohttp "github.com/notexe/memo/internal/http"
	"github.com/notexe/memo/internal/logging"
	"github.com/notexe/memo/internal/reminder"
	"github.com/notexe/memo/internal/scheduler"
	"github.com/notexe/memo/internal/supervisor"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", config.GetDefaultConfigPath(), "Path to configuration file")
	host := flag.String("host", "", "Listen host (overrides config)")
	port := flag.Int("port", 0, "Listen port (overrides config)")
	driver := flag.String("db", "", "Database driver: sqlite, postgres or memory (overrides config)")
	noScheduler := flag.Bool("no-scheduler", false, "Serve the API without running the scheduler")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}
	if *noScheduler {
		cfg.Scheduler.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("reminderd stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	target := cfg.Database.Path
	if cfg.Database.Driver == config.DriverPostgres {
		target = cfg.Database.DSN
	}
	repo, err := reminder.Open(cfg.Database.Driver, target)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()
	logger.Info("repository ready", zap.String("driver", cfg.Database.Driver))

	engineOpts := []reminder.EngineOption{reminder.WithLogger(logger.Named("engine"))}
	if cfg.Events.NATSURL != "" {
		pub, err := reminder.DialNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer pub.Close()
		engineOpts = append(engineOpts, reminder.WithPublisher(pub))
		logger.Info("publishing events", zap.String("nats_url", cfg.Events.NATSURL))
	}
	engine := reminder.NewEngine(repo, engineOpts...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	schedDone := make(chan struct{})
	if cfg.Scheduler.Enabled {
		opts := scheduler.Options{
			Interval: cfg.Scheduler.IntervalDuration(),
			Logger:   logger.Named("scheduler"),
			Metrics:  scheduler.NewMetrics(),
		}
		if cfg.Scheduler.Telegram.BotToken != "" {
			opts.Notifier = scheduler.NewTelegramSender(cfg.Scheduler.Telegram.BotToken, cfg.Scheduler.Telegram.ChatID)
		}
		sched := scheduler.New(engine, engine, opts)

		go func() {
			defer close(schedDone)
			_ = supervisor.Run(ctx, "scheduler", logger, sched.Run)
		}()
	} else {
		close(schedDone)
		logger.Warn("scheduler disabled, reminders will not become due")
	}

	server, err := memohttp.NewServer(engine, logger.Named("http"), &memohttp.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		RateLimit: cfg.Server.RateLimit,
	})
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		cancel()
		<-schedDone
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	<-schedDone
	logger.Info("reminderd stopped")
	return nil
}
