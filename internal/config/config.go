package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the bot
type Config struct {
	// Telegram
	TelegramToken string
	AllowedChatID int64 // 0 = commands accepted from any chat
	AdminIDs      []int64

	// Mode
	Debug bool

	// Economy
	StartingBalance int64 // coins granted on registration
	DailyGrant      int64 // coins granted by /daily, once per calendar day

	// Odds. The revisions of the original game never agreed on these,
	// so they are tunable rather than hard-wired.
	NeutralMultiplier   decimal.Decimal // both pools empty
	EmptySideMultiplier decimal.Decimal // first bet on an empty side
	MinMultiplier       decimal.Decimal // floor for every quoted multiplier

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		Debug:         getEnvBool("DEBUG", false),

		StartingBalance: getEnvInt64("STARTING_BALANCE", 5000),
		DailyGrant:      getEnvInt64("DAILY_GRANT", 1000),

		NeutralMultiplier:   getEnvDecimal("ODDS_NEUTRAL", decimal.NewFromFloat(1.5)),
		EmptySideMultiplier: getEnvDecimal("ODDS_EMPTY_SIDE", decimal.NewFromFloat(2.0)),
		MinMultiplier:       getEnvDecimal("ODDS_FLOOR", decimal.NewFromFloat(1.1)),

		DatabasePath: getEnv("DATABASE_PATH", "data/botcc.db"),
	}

	if chatID := os.Getenv("ALLOWED_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ALLOWED_CHAT_ID: %w", err)
		}
		cfg.AllowedChatID = id
	}

	ids, err := getEnvInt64List("ADMIN_IDS")
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}
	cfg.AdminIDs = ids

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.StartingBalance < 0 || cfg.DailyGrant < 0 {
		return nil, fmt.Errorf("STARTING_BALANCE and DAILY_GRANT must not be negative")
	}
	if cfg.MinMultiplier.LessThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("ODDS_FLOOR must be at least 1")
	}

	return cfg, nil
}

// IsAdmin reports whether the given Telegram user may run admin commands.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvInt64List(key string) ([]int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
