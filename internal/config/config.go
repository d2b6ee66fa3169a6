package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	BotToken    string `env:"BOT_TOKEN,required"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Database pool
	DBMaxConns int32 `env:"DB_MAX_CONNS" envDefault:"4"`
	DBMinConns int32 `env:"DB_MIN_CONNS" envDefault:"1"`

	// Assistant backend
	BaseURL       string `env:"SOFIA_BASE_URL,required"`
	SessionCookie string `env:"SOFIA_SESSION_COOKIE"`

	// Access
	AllowedUserIDs []int64 `env:"ALLOWED_USER_IDS" envSeparator:","`

	// Plan limits for non-premium accounts
	MessageLimit   int `env:"MESSAGE_LIMIT" envDefault:"15"`
	WebSearchLimit int `env:"WEB_SEARCH_LIMIT" envDefault:"1"`

	// Attachments
	AttachmentMaxTotalBytes     int64 `env:"ATTACHMENT_MAX_TOTAL_BYTES" envDefault:"10485760"`
	AttachmentMaxFileBytes      int64 `env:"ATTACHMENT_MAX_FILE_BYTES" envDefault:"10485760"`
	RestoreAttachmentsOnFailure bool  `env:"RESTORE_ATTACHMENTS_ON_FAILURE" envDefault:"true"`

	// Speech: both commands read from stdin and write to stdout.
	STTCommand     string `env:"SPEECH_STT_COMMAND"`
	TTSCommand     string `env:"SPEECH_TTS_COMMAND"`
	SpeechLanguage string `env:"SPEECH_LANGUAGE" envDefault:"en-US"`

	// Bot behavior
	DropPendingUpdates bool `env:"BOT_DROP_PENDING_UPDATES" envDefault:"false"`

	// Logging
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	LogTelegramChatID int64  `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError     int    `env:"LOG_TOPIC_ERROR"`
	LogTopicDispatch  int    `env:"LOG_TOPIC_DISPATCH"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.AttachmentMaxFileBytes > cfg.AttachmentMaxTotalBytes {
		cfg.AttachmentMaxFileBytes = cfg.AttachmentMaxTotalBytes
	}
	return cfg, nil
}

// IsAllowed reports whether a Telegram user may talk to the bot.
// An empty allow-list admits everyone.
func (c *Config) IsAllowed(telegramID int64) bool {
	if len(c.AllowedUserIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedUserIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (c *Config) AllowedUserIDsString() string {
	parts := make([]string, len(c.AllowedUserIDs))
	for i, id := range c.AllowedUserIDs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// VoiceEnabled reports whether both speech commands are configured.
func (c *Config) VoiceEnabled() bool {
	return c.STTCommand != "" && c.TTSCommand != ""
}
