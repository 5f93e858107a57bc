package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Sheets      SheetsConfig     `toml:"sheets"`
	Scraper     ScraperConfig    `toml:"scraper"`
	SyncQueue   SyncQueueConfig  `toml:"sync_queue"`
	Webhook     WebhookConfig    `toml:"webhook"`
	GoogleAuth  GoogleAuthConfig `toml:"google_auth"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// SchedulerConfig contains schedule evaluation settings
type SchedulerConfig struct {
	TickSchedule string `toml:"tick_schedule"` // Cron expression for the schedule-check tick
	TimeZone     string `toml:"time_zone"`     // Reference zone for all schedule math
}

// SheetsConfig contains Google Sheets destination settings
type SheetsConfig struct {
	InputSheetID   string        `toml:"input_sheet_id"` // Spreadsheet holding the searches list
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// ScraperConfig contains browser scraping and anti-throttling settings
type ScraperConfig struct {
	Headless         bool          `toml:"headless"`
	UserAgent        string        `toml:"user_agent"`
	MaxPages         int           `toml:"max_pages"`        // Hard cap on result pages per search
	PageWaitMin      time.Duration `toml:"page_wait_min"`    // Minimum wait between result pages
	PageWaitMax      time.Duration `toml:"page_wait_max"`    // Maximum wait between result pages
	SearchTimeout    time.Duration `toml:"search_timeout"`   // Ceiling on one search's scrape
	SearchDelayMin   time.Duration `toml:"search_delay_min"` // Minimum delay between searches
	SearchDelayMax   time.Duration `toml:"search_delay_max"` // Maximum delay between searches
	NoiseEnabled     bool          `toml:"noise_enabled"`    // Browse a random page between searches
	NoiseChance      float64       `toml:"noise_chance"`
	NoiseDurationMin time.Duration `toml:"noise_duration_min"`
	NoiseDurationMax time.Duration `toml:"noise_duration_max"`
	NoiseURLs        []string      `toml:"noise_urls"`
}

// SyncQueueConfig contains row-delivery retry settings
type SyncQueueConfig struct {
	ProcessInterval time.Duration `toml:"process_interval"`
	MaxRetries      int           `toml:"max_retries"`
	BaseDelay       time.Duration `toml:"base_delay"` // Base for exponential backoff
}

// WebhookConfig contains notification delivery settings
type WebhookConfig struct {
	Timeout      time.Duration `toml:"timeout"`
	AuthCooldown time.Duration `toml:"auth_cooldown"` // Min gap between repeated auth-failure notifications
}

// GoogleAuthConfig contains service-account credential settings
type GoogleAuthConfig struct {
	CredentialsFile string `toml:"credentials_file"` // Path to service-account JSON key
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in venator.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Scheduler: SchedulerConfig{
			TickSchedule: "*/1 * * * *",      // Every minute
			TimeZone:     "America/New_York", // All schedule math evaluates in US Eastern
		},
		Sheets: SheetsConfig{
			RequestTimeout: 30 * time.Second,
		},
		Scraper: ScraperConfig{
			Headless:         true,
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MaxPages:         1000,
			PageWaitMin:      15 * time.Second,
			PageWaitMax:      40 * time.Second,
			SearchTimeout:    30 * time.Minute,
			SearchDelayMin:   60 * time.Second,
			SearchDelayMax:   120 * time.Second,
			NoiseEnabled:     true,
			NoiseChance:      0.4,
			NoiseDurationMin: 25 * time.Second,
			NoiseDurationMax: 75 * time.Second,
			NoiseURLs: []string{
				"https://www.linkedin.com/feed/",
				"https://www.linkedin.com/mynetwork/",
				"https://www.linkedin.com/notifications/",
				"https://www.linkedin.com/jobs/",
			},
		},
		SyncQueue: SyncQueueConfig{
			ProcessInterval: 1 * time.Minute,
			MaxRetries:      5,
			BaseDelay:       4 * time.Second,
		},
		Webhook: WebhookConfig{
			Timeout:      25 * time.Second,
			AuthCooldown: 30 * time.Minute,
		},
		GoogleAuth: GoogleAuthConfig{
			CredentialsFile: "./service-account.json",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files, later files
// overriding earlier ones. Priority: CLI flags > env vars > last file >
// ... > first file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VENATOR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("VENATOR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VENATOR_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if path := os.Getenv("VENATOR_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if level := os.Getenv("VENATOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VENATOR_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitString(output, ",")
	}

	if tz := os.Getenv("VENATOR_TIME_ZONE"); tz != "" {
		config.Scheduler.TimeZone = tz
	}

	if sheet := os.Getenv("VENATOR_INPUT_SHEET_ID"); sheet != "" {
		config.Sheets.InputSheetID = sheet
	}
	if creds := os.Getenv("VENATOR_GOOGLE_CREDENTIALS"); creds != "" {
		config.GoogleAuth.CredentialsFile = creds
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// splitString splits a string by separator, trimming whitespace from parts
func splitString(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
