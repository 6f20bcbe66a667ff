package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override the config file.
// MEMO_CLIENT_API_URL sets client.api_url.
const EnvPrefix = "MEMO_"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Events    EventsConfig    `koanf:"events"`
	Log       LogConfig       `koanf:"log"`
	Client    ClientConfig    `koanf:"client"`
	UI        UIConfig        `koanf:"ui"`
}

type ServerConfig struct {
	Host      string  `koanf:"host"`
	Port      int     `koanf:"port"`
	RateLimit float64 `koanf:"rate_limit"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"` // SQLite file
	DSN    string `koanf:"dsn"`  // Postgres connection string
}

type SchedulerConfig struct {
	Enabled  bool           `koanf:"enabled"`
	Interval int            `koanf:"interval"` // seconds
	Telegram TelegramConfig `koanf:"telegram"`
}

type TelegramConfig struct {
	BotToken string `koanf:"bot_token"`
	ChatID   string `koanf:"chat_id"`
}

type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"` // console or json
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

type ClientConfig struct {
	APIURL         string `koanf:"api_url"`
	STTURL         string `koanf:"stt_url"`
	PollInterval   int    `koanf:"poll_interval"`   // seconds
	BackoffBase    int    `koanf:"backoff_base"`    // seconds
	BackoffCap     int    `koanf:"backoff_cap"`     // seconds
	RequestTimeout int    `koanf:"request_timeout"` // seconds
	SafeWord       string `koanf:"safe_word"`
	Speak          bool   `koanf:"speak"`
	Notify         bool   `koanf:"notify"`
	SpeechCommand  string `koanf:"speech_command"`
	AnnouncedFile  string `koanf:"announced_file"` // persist announced ids across restarts
	MockSTT        bool   `koanf:"mock_stt"`
}

type UIConfig struct {
	ColoredOutput bool `koanf:"colored_output"`
}

func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)

		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.Client.AnnouncedFile = expandPath(cfg.Client.AnnouncedFile)

	return &cfg, nil
}

// envKey maps MEMO_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))

	if rest, ok := strings.CutPrefix(key, "scheduler_telegram_"); ok {
		return "scheduler.telegram." + rest
	}
	return strings.Replace(key, "_", ".", 1)
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver: %s (supported: %s, %s, %s)",
			c.Database.Driver, DriverSQLite, DriverPostgres, DriverMemory)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}

	if (c.Scheduler.Telegram.BotToken == "") != (c.Scheduler.Telegram.ChatID == "") {
		return fmt.Errorf("scheduler.telegram needs both bot_token and chat_id")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json")
	}

	return nil
}

// ValidateClient checks the settings used by the observation client.
func (c *Config) ValidateClient() error {
	if _, err := url.ParseRequestURI(c.Client.APIURL); err != nil {
		return fmt.Errorf("client.api_url is not a valid URL: %w", err)
	}
	if !c.Client.MockSTT {
		if _, err := url.ParseRequestURI(c.Client.STTURL); err != nil {
			return fmt.Errorf("client.stt_url is not a valid URL: %w", err)
		}
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("client.poll_interval must be positive")
	}
	if c.Client.BackoffBase <= 0 || c.Client.BackoffCap < c.Client.BackoffBase {
		return fmt.Errorf("client.backoff_cap must be at least client.backoff_base, both positive")
	}
	if c.Client.RequestTimeout <= 0 {
		return fmt.Errorf("client.request_timeout must be positive")
	}
	return nil
}

// Addr is the listen address of the API server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IntervalDuration is the scheduler interval as a duration.
func (s SchedulerConfig) IntervalDuration() time.Duration {
	return time.Duration(s.Interval) * time.Second
}

func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}

	return path
}
