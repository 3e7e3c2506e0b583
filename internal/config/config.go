package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/wodify-ap/internal/event"
)

type Config struct {
	// scheduling service
	ServerURL  string
	APName     string
	APPassword string
	Action     event.ActionType
	Location   *time.Location

	DatabaseURL    string
	ListenAddr     string
	CookieHashKey  []byte
	CookieBlockKey []byte
	PollInterval   time.Duration

	// executor
	WaitGranularity time.Duration
	AttemptDeadline time.Duration
	AttemptInterval time.Duration
	LoginProbe      time.Duration

	// RequireWodResult keeps a WOD event pending until the athlete's result
	// for that day is logged.
	RequireWodResult bool

	// browser
	Headless  bool
	RemoteURL string

	LogLevel  string
	LogFormat string

	Site Site

	apNameSet bool
}

// Load reads envFile (when present) into the environment without
// overriding variables that are already set, then calls FromEnv.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	action, err := event.ParseAction(getenv("ACTION", string(event.BookClass)))
	if err != nil {
		return Config{}, fmt.Errorf("ACTION: %w", err)
	}
	cfg := Config{
		ServerURL:   getenv("SERVER_URL", "http://localhost:8000"),
		APName:      getenv("AP_NAME", defaultProviderName(action)),
		apNameSet:   os.Getenv("AP_NAME") != "",
		APPassword:  os.Getenv("AP_PASSWORD"),
		Action:      action,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		RemoteURL:   os.Getenv("BROWSER_REMOTE_URL"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "console"),
	}
	if cfg.APPassword == "" {
		return Config{}, fmt.Errorf("AP_PASSWORD is required")
	}

	if cfg.Location, err = time.LoadLocation(getenv("TIMEZONE", "Local")); err != nil {
		return Config{}, fmt.Errorf("TIMEZONE: %w", err)
	}
	if cfg.Headless, err = strconv.ParseBool(getenv("BROWSER_HEADLESS", "true")); err != nil {
		return Config{}, fmt.Errorf("invalid BROWSER_HEADLESS")
	}
	if cfg.RequireWodResult, err = strconv.ParseBool(getenv("WOD_REQUIRE_RESULT", "false")); err != nil {
		return Config{}, fmt.Errorf("invalid WOD_REQUIRE_RESULT")
	}

	durations := []struct {
		key  string
		def  int
		unit time.Duration
		dst  *time.Duration
	}{
		{"POLL_SECONDS", 3600, time.Second, &cfg.PollInterval},
		{"WAIT_GRANULARITY_MS", 500, time.Millisecond, &cfg.WaitGranularity},
		{"ATTEMPT_DEADLINE_SECONDS", 60, time.Second, &cfg.AttemptDeadline},
		{"ATTEMPT_INTERVAL_MS", 1000, time.Millisecond, &cfg.AttemptInterval},
		{"LOGIN_PROBE_SECONDS", 10, time.Second, &cfg.LoginProbe},
	}
	for _, d := range durations {
		n, err := strconv.Atoi(getenv(d.key, strconv.Itoa(d.def)))
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid %s", d.key)
		}
		*d.dst = time.Duration(n) * d.unit
	}

	if hashKey, blockKey := os.Getenv("COOKIE_HASH_KEY"), os.Getenv("COOKIE_BLOCK_KEY"); hashKey != "" || blockKey != "" {
		if cfg.CookieHashKey, err = decodeB64(hashKey); err != nil {
			return Config{}, fmt.Errorf("COOKIE_HASH_KEY: %w", err)
		}
		if cfg.CookieBlockKey, err = decodeB64(blockKey); err != nil {
			return Config{}, fmt.Errorf("COOKIE_BLOCK_KEY: %w", err)
		}
	}

	cfg.Site = DefaultSite()
	if path := os.Getenv("SITE_FILE"); path != "" {
		if cfg.Site, err = LoadSite(path); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// RequireStatusUI checks the settings only the operator status UI needs.
func (c Config) RequireStatusUI() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(c.CookieHashKey) == 0 || len(c.CookieBlockKey) == 0 {
		return fmt.Errorf("COOKIE_HASH_KEY and COOKIE_BLOCK_KEY are required (32 and 16/24/32 bytes base64, see `wodifyap keys`)")
	}
	return nil
}

// SetAction switches the action type; the provider name follows unless
// AP_NAME was set explicitly.
func (c *Config) SetAction(a event.ActionType) {
	c.Action = a
	if !c.apNameSet {
		c.APName = defaultProviderName(a)
	}
}

func defaultProviderName(a event.ActionType) string {
	if a == event.FetchWOD {
		return "wodify-wod"
	}
	return "wodify-login"
}

// decodeB64 accepts the key itself or a path to a file holding it.
func decodeB64(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty")
	}
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
