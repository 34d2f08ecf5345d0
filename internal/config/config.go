package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	HTTPAddr     string
	LogLevel     string
	Env          string
	LocalDBPath  string
	DatabaseURL  string // empty runs lobbies and profiles in memory
	LobbyTTL     time.Duration
	TickInterval time.Duration
}

func (c Config) Development() bool { return c.Env != EnvProduction }

func Defaults() Config {
	return Config{
		HTTPAddr:     ":8080",
		LogLevel:     "info",
		Env:          EnvDevelopment,
		LocalDBPath:  "data/scoreboard.db",
		LobbyTTL:     2 * time.Hour,
		TickInterval: 250 * time.Millisecond,
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, keeping defaults for unset keys.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Defaults()
	if v := strings.TrimSpace(getenv("HTTP_ADDR")); v != "" {
		c.HTTPAddr = v
	}
	if v := strings.TrimSpace(getenv("LOG_LEVEL")); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(getenv("APP_ENV")); v != "" {
		c.Env = strings.ToLower(v)
	}
	if v := strings.TrimSpace(getenv("LOCAL_DB_PATH")); v != "" {
		c.LocalDBPath = v
	}
	c.DatabaseURL = strings.TrimSpace(getenv("DATABASE_URL"))

	var err error
	if c.LobbyTTL, err = duration(getenv, "LOBBY_TTL", c.LobbyTTL); err != nil {
		return Config{}, err
	}
	if c.TickInterval, err = duration(getenv, "TICK_INTERVAL", c.TickInterval); err != nil {
		return Config{}, err
	}
	return c, nil
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}
