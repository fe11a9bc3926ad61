// Package config loads mailpilot settings from a YAML file, a .env file and
// environment variables, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mkarlin/mailpilot/internal/schedule"
)

// Config holds all mailpilot settings.
type Config struct {
	// Runtime.
	FetchInterval        time.Duration `yaml:"-"`
	FetchIntervalSeconds int           `yaml:"fetch_interval"`
	BatchLimit           int           `yaml:"batch_limit"`
	DBPath               string        `yaml:"db_path"`

	// Behavior toggles.
	AutoReplyEnabled   bool `yaml:"auto_reply_enabled"`
	AutoForwardEnabled bool `yaml:"auto_forward_enabled"`

	// Scheduling.
	WorkingHours    string `yaml:"working_hours"`
	DefaultTimezone string `yaml:"default_timezone"`

	// Google.
	CredentialsPath string `yaml:"credentials_path"`
	TokenPath       string `yaml:"token_path"`
	CalendarID      string `yaml:"calendar_id"`

	// OpenAI.
	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`

	// Slack.
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackChannel  string `yaml:"slack_channel"`

	// Web search.
	SearchAPIKey string `yaml:"search_api_key"`
	SearchCX     string `yaml:"search_cx"`
}

// Default returns a config with sensible defaults applied.
func Default() *Config {
	return &Config{
		FetchIntervalSeconds: 300,
		BatchLimit:           10,
		DBPath:               "mailpilot.db",
		WorkingHours:         "9-17",
		DefaultTimezone:      "UTC",
		CredentialsPath:      "credentials.json",
		TokenPath:            "token.json",
		CalendarID:           "primary",
		OpenAIModel:          "gpt-4o-mini",
	}
}

// Load reads the config file at path, layering .env and environment variable
// overrides on top. A missing config file is not an error; a missing .env file
// is ignored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.FetchInterval = time.Duration(cfg.FetchIntervalSeconds) * time.Second
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.DBPath, "MAILPILOT_DB_PATH")
	setStr(&c.WorkingHours, "MAILPILOT_WORKING_HOURS")
	setStr(&c.DefaultTimezone, "MAILPILOT_TIMEZONE")
	setStr(&c.CredentialsPath, "GOOGLE_CREDENTIALS_PATH")
	setStr(&c.TokenPath, "GOOGLE_TOKEN_PATH")
	setStr(&c.CalendarID, "GOOGLE_CALENDAR_ID")
	setStr(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setStr(&c.OpenAIModel, "OPENAI_MODEL")
	setStr(&c.SlackBotToken, "SLACK_BOT_TOKEN")
	setStr(&c.SlackChannel, "SLACK_CHANNEL_ID")
	setStr(&c.SearchAPIKey, "GOOGLE_SEARCH_API_KEY")
	setStr(&c.SearchCX, "GOOGLE_SEARCH_CX")
	setInt(&c.FetchIntervalSeconds, "MAILPILOT_FETCH_INTERVAL")
	setInt(&c.BatchLimit, "MAILPILOT_BATCH_LIMIT")
	setBool(&c.AutoReplyEnabled, "MAILPILOT_AUTO_REPLY")
	setBool(&c.AutoForwardEnabled, "MAILPILOT_AUTO_FORWARD")
}

func (c *Config) validate() error {
	if c.FetchIntervalSeconds <= 0 {
		return fmt.Errorf("fetch_interval must be positive, got %d", c.FetchIntervalSeconds)
	}
	if c.BatchLimit <= 0 {
		return fmt.Errorf("batch_limit must be positive, got %d", c.BatchLimit)
	}
	if _, err := c.Hours(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Hours parses the working_hours setting ("9-17") into schedule hours.
func (c *Config) Hours() (schedule.WorkingHours, error) {
	parts := strings.SplitN(c.WorkingHours, "-", 2)
	if len(parts) != 2 {
		return schedule.WorkingHours{}, fmt.Errorf("working_hours %q: want START-END, e.g. 9-17", c.WorkingHours)
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return schedule.WorkingHours{}, fmt.Errorf("working_hours %q: bad start hour", c.WorkingHours)
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return schedule.WorkingHours{}, fmt.Errorf("working_hours %q: bad end hour", c.WorkingHours)
	}
	if start < 0 || end > 24 || start >= end {
		return schedule.WorkingHours{}, fmt.Errorf("working_hours %q: hours out of range", c.WorkingHours)
	}
	return schedule.WorkingHours{Start: start, End: end}, nil
}

// Location resolves the default timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("default_timezone %q: %w", c.DefaultTimezone, err)
	}
	return loc, nil
}

// SlackConfigured reports whether Slack notifications can be sent.
func (c *Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
