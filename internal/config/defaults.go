package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"server": map[string]interface{}{
			"host":       "127.0.0.1",
			"port":       8000,
			"rate_limit": 0, // requests per second per client IP, 0 disables
		},
		"database": map[string]interface{}{
			"driver": "sqlite",
			"path":   "~/.memo/reminders.db",
			"dsn":    "",
		},
		"scheduler": map[string]interface{}{
			"enabled":  true,
			"interval": 60,
			"telegram": map[string]interface{}{
				"bot_token": "",
				"chat_id":   "",
			},
		},
		"events": map[string]interface{}{
			"nats_url":       "",
			"subject_prefix": "memo.reminders",
		},
		"log": map[string]interface{}{
			"level":        "info",
			"format":       "console",
			"file":         "",
			"max_size_mb":  10,
			"max_backups":  3,
			"max_age_days": 28,
		},
		"client": map[string]interface{}{
			"api_url":         "http://127.0.0.1:8000",
			"stt_url":         "http://127.0.0.1:8001",
			"poll_interval":   30,
			"backoff_base":    30,
			"backoff_cap":     300,
			"request_timeout": 5,
			"safe_word":       "memo",
			"speak":           true,
			"notify":          false,
			"speech_command":  "",
			"announced_file":  "",
			"mock_stt":        false,
		},
		"ui": map[string]interface{}{
			"colored_output": true,
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}

func GetDefaultConfigPath() string {
	return "~/.memo/config.yaml"
}
