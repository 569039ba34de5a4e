// Package config resolves runtime settings from an optional .env file and
// VITRINA_* environment variables. Command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service settings.
type Config struct {
	DBPath          string
	Addr            string
	AdminEmail      string
	LogFile         string
	ShutdownTimeout time.Duration
	TokenPurgeEvery time.Duration
	Metrics         bool
}

// Load reads the given env files (".env" when none are named) into the
// process environment, then builds a Config from it. Missing files are
// ignored; variables already set in the environment win over file values.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	shutdown, err := getEnvAsDuration("VITRINA_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	purge, err := getEnvAsDuration("VITRINA_TOKEN_PURGE_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBPath:          getEnv("VITRINA_DB", "vitrina.db"),
		Addr:            getEnv("VITRINA_ADDR", ":8080"),
		AdminEmail:      getEnv("VITRINA_ADMIN_EMAIL", "admin@vitrina.local"),
		LogFile:         getEnv("VITRINA_LOG", ""),
		ShutdownTimeout: shutdown,
		TokenPurgeEvery: purge,
		Metrics:         getEnvAsBool("VITRINA_METRICS", true),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	switch value {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	// Bare numbers are seconds.
	secs, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return time.Duration(secs) * time.Second, nil
}
