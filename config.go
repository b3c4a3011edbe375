package pagetrack

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Visit log storage backends.
const (
	StoreMemory  = "memory"
	StoreSQLite  = "sqlite"
	StoreBadger  = "badger"
	StoreSession = "session"
)

// Config holds all configuration for a pagetrack server.
type Config struct {
	Addr string // Listen address (default ":3000")

	Store        string // Visit log backend: memory, sqlite, badger or session (default "sqlite")
	DatabasePath string // SQLite path for the sqlite backend (default "data/visits.db")
	BadgerDir    string // Directory for the badger backend (default "data/badger")
	SessionDir   string // Session files for the session backend (default "data/sessions")

	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	Capacity int    // Visits kept per visitor (default 1000)
	Timezone string // IANA zone defining "today" in stats (default local time)

	EventsEnabled      bool   // Persist forwarded events (default false)
	EventsDatabasePath string // Events SQLite path (default "data/events.db")
	EventRetentionDays int    // Days of events kept (default 365)
	AdminToken         string // Bearer token for /admin/api; admin routes are off when empty

	RateLimit      int      // Tracking requests per IP per minute (default 120)
	AllowedOrigins []string // Cross-origin pages allowed to call the tracking API
	LogLevel       string   // debug, info, warn or error (default "info")
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.Store == "" {
		c.Store = StoreSQLite
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/visits.db"
	}
	if c.BadgerDir == "" {
		c.BadgerDir = "data/badger"
	}
	if c.SessionDir == "" {
		c.SessionDir = "data/sessions"
	}
	if c.Capacity <= 0 {
		c.Capacity = 1000
	}
	if c.EventsDatabasePath == "" {
		c.EventsDatabasePath = "data/events.db"
	}
	if c.EventRetentionDays <= 0 {
		c.EventRetentionDays = 365
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 120
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("pagetrack: SessionSecret is required")
	}
	switch c.Store {
	case StoreMemory, StoreSQLite, StoreBadger, StoreSession:
	default:
		return fmt.Errorf("pagetrack: unknown store backend %q", c.Store)
	}
	if len(c.AllowedOrigins) > 0 && !c.CookieSecure {
		return fmt.Errorf("pagetrack: AllowedOrigins requires CookieSecure for SameSite=None cookies")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the timezone whose calendar defines "today".
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("pagetrack: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LoadConfig reads configuration from a .env file in the working directory
// (if present) and PAGETRACK_* environment variables. Variables already set
// in the environment win over the .env file.
func LoadConfig() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("pagetrack: load .env: %w", err)
		}
	}

	cfg := Config{
		Addr:               os.Getenv("PAGETRACK_ADDR"),
		Store:              os.Getenv("PAGETRACK_STORE"),
		DatabasePath:       os.Getenv("PAGETRACK_DB"),
		BadgerDir:          os.Getenv("PAGETRACK_BADGER_DIR"),
		SessionDir:         os.Getenv("PAGETRACK_SESSION_DIR"),
		SessionSecret:      os.Getenv("PAGETRACK_SESSION_SECRET"),
		CookieSecure:       envBool("PAGETRACK_COOKIE_SECURE", false),
		Capacity:           envInt("PAGETRACK_CAPACITY", 0),
		Timezone:           os.Getenv("PAGETRACK_TIMEZONE"),
		EventsEnabled:      envBool("PAGETRACK_EVENTS", false),
		EventsDatabasePath: os.Getenv("PAGETRACK_EVENTS_DB"),
		EventRetentionDays: envInt("PAGETRACK_EVENT_RETENTION_DAYS", 0),
		AdminToken:         os.Getenv("PAGETRACK_ADMIN_TOKEN"),
		RateLimit:          envInt("PAGETRACK_RATE_LIMIT", 0),
		AllowedOrigins:     envList("PAGETRACK_ALLOWED_ORIGINS"),
		LogLevel:           os.Getenv("PAGETRACK_LOG_LEVEL"),
	}
	cfg.setDefaults()
	return cfg, nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
