/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// PolicyDefaults are the scheduling-policy values applied when a planning
// request does not override them. They may be supplied via a YAML file
// (SKULD_POLICY_FILE); zero fields keep the built-in defaults.
type PolicyDefaults struct {
	WorkStartHour   int      `yaml:"work_start_hour"`
	WorkEndHour     int      `yaml:"work_end_hour"`
	BufferMinutes   int      `yaml:"buffer_minutes"`
	DailyTaskCount  int      `yaml:"daily_task_count"`
	DailyHourCap    float64  `yaml:"daily_hour_cap"`
	AllowedWeekdays []string `yaml:"allowed_weekdays"`
	SkipStartDay    bool     `yaml:"skip_start_day"`
}

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	BaseURL       string // Public base URL used to build the OAuth redirect
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	MetricsBind   string
	Timezone      string // Default scheduling time zone; users may override

	// Google Calendar OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	CalendarID         string

	// Goal decomposition (OpenAI-compatible chat completions endpoint)
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Redis free/busy snapshot cache
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	FreeBusyTTL     time.Duration
	CacheEnabled    bool

	// StrictFreeBusy surfaces free/busy fetch failures instead of degrading
	// to an empty calendar.
	StrictFreeBusy bool

	// Scheduling policy defaults
	PolicyFile string
	Policy     PolicyDefaults

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("SKULD_ENV", "development"),
		HTTPBind:      getEnv("SKULD_HTTP_BIND", "0.0.0.0"),
		HTTPPort:      getEnvInt("SKULD_HTTP_PORT", 8080),
		BaseURL:       getEnv("SKULD_BASE_URL", ""),
		DBBackend:     DatabaseBackend(getEnv("SKULD_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:         getEnv("SKULD_DB_DSN", ""),
		JWTSigningKey: getEnv("SKULD_JWT_SIGNING_KEY", ""),
		MetricsBind:   getEnv("SKULD_METRICS_BIND", "127.0.0.1:9000"),
		Timezone:      getEnv("SKULD_TIMEZONE", "UTC"),

		GoogleClientID:     getEnv("SKULD_GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("SKULD_GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("SKULD_GOOGLE_REDIRECT_URL", ""),
		CalendarID:         getEnv("SKULD_CALENDAR_ID", "primary"),

		LLMBaseURL: getEnv("SKULD_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  getEnv("SKULD_LLM_API_KEY", ""),
		LLMModel:   getEnv("SKULD_LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout: time.Duration(getEnvInt("SKULD_LLM_TIMEOUT_SECONDS", 60)) * time.Second,

		RedisAddr:     getEnv("SKULD_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("SKULD_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("SKULD_REDIS_DB", 0),
		FreeBusyTTL:   time.Duration(getEnvInt("SKULD_FREEBUSY_TTL_SECONDS", 60)) * time.Second,
		CacheEnabled:  getEnvBool("SKULD_CACHE_ENABLED", true),

		StrictFreeBusy: getEnvBool("SKULD_STRICT_FREEBUSY", false),

		PolicyFile: getEnv("SKULD_POLICY_FILE", ""),

		TracingEnabled:    getEnvBool("SKULD_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("SKULD_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("SKULD_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SKULD_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("SKULD_JWT_SIGNING_KEY must be provided")
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid SKULD_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" || cfg.GoogleRedirectURL == "" {
			return nil, fmt.Errorf("SKULD_GOOGLE_CLIENT_ID, SKULD_GOOGLE_CLIENT_SECRET and SKULD_GOOGLE_REDIRECT_URL must be set in production")
		}
	}

	if cfg.PolicyFile != "" {
		defaults, err := loadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("load policy file: %w", err)
		}
		cfg.Policy = defaults
	}

	return cfg, nil
}

// Location resolves the configured default time zone. Load validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadPolicyFile(path string) (PolicyDefaults, error) {
	var defaults PolicyDefaults
	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, err
	}
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return defaults, err
	}
	if defaults.WorkStartHour != 0 || defaults.WorkEndHour != 0 {
		if defaults.WorkStartHour < 0 || defaults.WorkEndHour > 24 || defaults.WorkStartHour >= defaults.WorkEndHour {
			return defaults, fmt.Errorf("invalid work window %d-%d", defaults.WorkStartHour, defaults.WorkEndHour)
		}
	}
	return defaults, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
