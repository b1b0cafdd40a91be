// Package config loads validator settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is named explicitly.
const DefaultPath = "esmcol-validator.yaml"

// LevelCritical sits above slog.LevelError; it silences everything but fatal output.
const LevelCritical = slog.LevelError + 4

// Config holds the validator settings read from the YAML file.
type Config struct {
	Spec struct {
		Version string   `yaml:"version"`
		BaseURL string   `yaml:"base_url"`
		Dirs    []string `yaml:"dirs"`
		Engine  string   `yaml:"engine"`
	} `yaml:"spec"`
	HTTP struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"http"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Database struct {
		DSN    string `yaml:"dsn"`
		Schema string `yaml:"schema"`
	} `yaml:"database"`
}

// Default returns the built-in settings.
func Default() *Config {
	cfg := &Config{}
	cfg.Spec.Version = "master"
	cfg.Spec.Engine = "auto"
	cfg.HTTP.Timeout = "60s"
	cfg.Logging.Level = "CRITICAL"
	cfg.Database.Schema = "public"
	return cfg
}

// Load reads .env (if present) and the YAML file at path over the defaults.
// A missing file is only an error when required is set. ${VAR} references in
// the file are expanded from the environment.
func Load(path string, required bool) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := Default()
	if dsn := os.Getenv("ESMCOL_DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Timeout parses the HTTP timeout; zero disables it.
func (c *Config) Timeout() (time.Duration, error) {
	if c.HTTP.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid http timeout %q: %w", c.HTTP.Timeout, err)
	}
	return d, nil
}

// ParseLevel maps CRITICAL, ERROR, WARNING, INFO and DEBUG to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL", "FATAL":
		return LevelCritical, nil
	case "ERROR":
		return slog.LevelError, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

// SplitDirs parses a comma separated directory list. "None" and empty input
// mean no directories.
func SplitDirs(s string) []string {
	if s == "" || s == "None" {
		return nil
	}
	var dirs []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}
