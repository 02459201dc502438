package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SeedFromDir    = "dir"
	SeedFromSheets = "sheets"
)

type Config struct {
	TelegramToken string
	// Chat that receives submissions for approval.
	AdminChatID int64

	RedisURL    string
	RedisPrefix string
	DatabaseURL string

	NumberLocations     int
	MaxBonusGroups      int
	ApprovalTimeout     time.Duration
	ConversationTimeout time.Duration
	LocationFreshness   time.Duration
	RotateInterval      time.Duration

	EndLat             float64
	EndLng             float64
	EndToleranceMeters float64

	RouteImage string

	SeedSource               string
	SeedDir                  string
	SpreadsheetID            string
	GoogleServiceAccountJSON string

	HTTPAddr        string
	BasePublicURL   string
	DashboardSecret string
	DashboardTTL    time.Duration

	LogLevel string
}

func FromEnv() (Config, error) {
	var c Config
	var err error

	c.TelegramToken = env("TELEGRAM_BOT_TOKEN", "")
	if c.TelegramToken == "" {
		return c, fmt.Errorf("TELEGRAM_BOT_TOKEN is empty")
	}
	raw := env("ADMIN_CHAT_ID", "")
	if raw == "" {
		return c, fmt.Errorf("ADMIN_CHAT_ID is empty")
	}
	if c.AdminChatID, err = strconv.ParseInt(raw, 10, 64); err != nil {
		return c, fmt.Errorf("ADMIN_CHAT_ID: %w", err)
	}

	c.RedisURL = env("REDIS_URL", "redis://localhost:6379/0")
	c.RedisPrefix = env("REDIS_PREFIX", "race:")
	c.DatabaseURL = env("DATABASE_URL", "")

	if c.NumberLocations, err = envInt("NUMBER_LOCATIONS", 8); err != nil {
		return c, err
	}
	if c.NumberLocations < 1 {
		return c, fmt.Errorf("NUMBER_LOCATIONS must be at least 1")
	}
	if c.MaxBonusGroups, err = envInt("MAX_BONUS_GROUPS", 3); err != nil {
		return c, err
	}
	if c.MaxBonusGroups < 1 {
		return c, fmt.Errorf("MAX_BONUS_GROUPS must be at least 1")
	}
	if c.ApprovalTimeout, err = envSeconds("APPROVAL_TIMEOUT_SECONDS", 300); err != nil {
		return c, err
	}
	if c.ConversationTimeout, err = envSeconds("CONVERSATION_TIMEOUT_SECONDS", 1800); err != nil {
		return c, err
	}
	if c.LocationFreshness, err = envSeconds("LOCATION_FRESHNESS_SECONDS", 300); err != nil {
		return c, err
	}
	if c.RotateInterval, err = envSeconds("ROTATE_INTERVAL_SECONDS", 10); err != nil {
		return c, err
	}

	if c.EndLat, err = envFloat("END_LAT", 0); err != nil {
		return c, err
	}
	if c.EndLng, err = envFloat("END_LNG", 0); err != nil {
		return c, err
	}
	if c.EndToleranceMeters, err = envFloat("END_TOLERANCE_METERS", 100); err != nil {
		return c, err
	}

	c.RouteImage = env("ROUTE_IMAGE", "")

	c.SeedSource = strings.ToLower(env("SEED_SOURCE", SeedFromDir))
	c.SeedDir = env("SEED_DIR", "data")
	c.SpreadsheetID = env("GOOGLE_SHEETS_SPREADSHEET_ID", "")
	c.GoogleServiceAccountJSON = env("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	switch c.SeedSource {
	case SeedFromDir:
	case SeedFromSheets:
		if c.SpreadsheetID == "" {
			return c, fmt.Errorf("GOOGLE_SHEETS_SPREADSHEET_ID is empty")
		}
		if c.GoogleServiceAccountJSON == "" {
			return c, fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_JSON is empty")
		}
	default:
		return c, fmt.Errorf("SEED_SOURCE must be %q or %q, got %q", SeedFromDir, SeedFromSheets, c.SeedSource)
	}

	c.HTTPAddr = env("HTTP_ADDR", ":8080")
	c.BasePublicURL = strings.TrimRight(env("BASE_PUBLIC_URL", "http://localhost:8080"), "/")
	c.DashboardSecret = env("DASHBOARD_SECRET", "")
	if c.DashboardSecret == "" {
		c.DashboardSecret = c.TelegramToken
	}
	hours, err := envInt("DASHBOARD_TTL_HOURS", 12)
	if err != nil {
		return c, err
	}
	c.DashboardTTL = time.Duration(hours) * time.Hour

	c.LogLevel = env("LOG_LEVEL", "info")
	return c, nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := env(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := env(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envSeconds(key string, def int) (time.Duration, error) {
	n, err := envInt(key, def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return time.Duration(n) * time.Second, nil
}
