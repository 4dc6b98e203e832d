// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	OwnerUserID      int64

	RulesFile     string
	StateFile     string
	WatchChatIDs  []int64
	RulesReload   bool
	SessionIdle   time.Duration
	IgnoreSelf    bool
	IgnoreBots    bool
	LocalTimezone string

	DatabasePath       string
	ServiceAccountFile string
	SpreadsheetID      string
	SpreadsheetTitle   string
	WorksheetName      string
	NATSURL            string
	NATSSubject        string
	SinkTimeout        time.Duration
	MetricsAddr        string

	LogLevel       string
	LogFile        string
	LogMaxBytes    int
	LogBackupCount int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	rawOwner := strings.TrimSpace(os.Getenv("OWNER_USER_ID"))
	if rawOwner == "" {
		return nil, fmt.Errorf("OWNER_USER_ID is required")
	}
	owner, err := strconv.ParseInt(rawOwner, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("OWNER_USER_ID must be an integer: %w", err)
	}

	rulesFile := envOrDefault("WATCH_RULES_FILE", "watch_rules.json")
	if ext := filepath.Ext(rulesFile); ext != "" && strings.ToLower(ext) != ".json" {
		return nil, fmt.Errorf("WATCH_RULES_FILE %q must use the .json extension", rulesFile)
	}

	watchChats, err := parseChatIDs(os.Getenv("WATCH_CHAT_IDS"))
	if err != nil {
		return nil, err
	}

	serviceAccount := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccount != "" {
		if _, err := os.Stat(serviceAccount); err != nil {
			return nil, fmt.Errorf("google service account file %q not found: %w", serviceAccount, err)
		}
	}

	sessionIdle, err := parseDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	sinkTimeout, err := parseDuration("SINK_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	if sinkTimeout <= 0 {
		return nil, fmt.Errorf("SINK_TIMEOUT must be positive")
	}

	maxBytes, err := parsePositiveInt("LOG_MAX_BYTES", 1<<20)
	if err != nil {
		return nil, err
	}
	backups, err := parsePositiveInt("LOG_BACKUP_COUNT", 5)
	if err != nil {
		return nil, err
	}

	logFile := envOrDefault("LOG_FILE", "logs/chat-watcher.log")
	switch strings.ToLower(logFile) {
	case "-", "none", "off":
		logFile = ""
	}

	return &Config{
		TelegramBotToken:   token,
		OwnerUserID:        owner,
		RulesFile:          rulesFile,
		StateFile:          envOrDefault("WATCHER_STATE_FILE", "watcher_state.json"),
		WatchChatIDs:       watchChats,
		RulesReload:        parseBool("RULES_HOT_RELOAD", true),
		SessionIdle:        sessionIdle,
		IgnoreSelf:         parseBool("IGNORE_SELF_MESSAGES", true),
		IgnoreBots:         parseBool("IGNORE_BOT_MESSAGES", true),
		LocalTimezone:      envOrDefault("LOCAL_TIMEZONE", "UTC"),
		DatabasePath:       envOrDefault("DATABASE_PATH", "./data/watcher.db"),
		ServiceAccountFile: serviceAccount,
		SpreadsheetID:      strings.TrimSpace(os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID")),
		SpreadsheetTitle:   envOrDefault("GOOGLE_SHEETS_SPREADSHEET_TITLE", "Chat Watcher Logs"),
		WorksheetName:      envOrDefault("GOOGLE_SHEETS_WORKSHEET", "Sheet1"),
		NATSURL:            strings.TrimSpace(os.Getenv("NATS_URL")),
		NATSSubject:        envOrDefault("NATS_SUBJECT", "chatwatcher.matches"),
		SinkTimeout:        sinkTimeout,
		MetricsAddr:        strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFile:            logFile,
		LogMaxBytes:        maxBytes,
		LogBackupCount:     backups,
	}, nil
}

// IsChatWatched checks whether a chat passes the manual allow list.
// Returns true if the allow list is empty (all chats permitted).
func (c *Config) IsChatWatched(chatID int64) bool {
	if len(c.WatchChatIDs) == 0 {
		return true
	}
	return slices.Contains(c.WatchChatIDs, chatID)
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseChatIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat ID %q in WATCH_CHAT_IDS: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parsePositiveInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1", key)
	}
	return n, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30m: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
