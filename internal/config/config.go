// Package config loads the bot's configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/midoshouse/racebot"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid boolean.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value of the environment variable named
// by key, or fallback if the variable is unset, empty, or not a valid
// duration string such as "30s" or "5m".
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// NewLogger builds a slog.Logger from the LOG_FORMAT ("text" or "json")
// and LOG_LEVEL ("debug", "info", "warn", "error") environment
// variables, writing to stderr.
func NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(GetEnv("LOG_LEVEL", "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(GetEnv("LOG_FORMAT", "text")) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// KnownGoodVersions parses the environment variable named by key as a
// comma-separated list of branch:version pairs, e.g.
// "Dev:6.2.181,DevFenhl:8.1.32-105". An unset or empty variable yields
// nil, which tells the web source to fall back to its compiled-in list.
func KnownGoodVersions(key string) ([]racebot.Version, error) {
	s := os.Getenv(key)
	if s == "" {
		return nil, nil
	}

	var versions []racebot.Version
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		branch, ver, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("%s entry %q is not a branch:version pair", key, entry)
		}
		v, err := racebot.ParseVersion(racebot.Branch(branch), ver)
		if err != nil {
			return nil, fmt.Errorf("%s entry %q: %w", key, entry, err)
		}
		versions = append(versions, v)
	}
	return versions, nil
}
