// Package config provides configuration for the daily candle archiver.
// Values are resolved in priority order: environment variables override an
// optional JSON file, which overrides defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"candlearchiver/internal/models"
	"candlearchiver/internal/symbols"
)

// Config is the complete application configuration.
type Config struct {
	// Symbol components.
	Coin         string `json:"coin" env:"COIN"`
	BaseCurrency string `json:"base_currency" env:"BASE_CURRENCY"`

	// Provider selection.
	Exchange     string `json:"exchange" env:"EXCHANGE"`
	RelayBaseURL string `json:"relay_base_url" env:"RELAY_BASE_URL"`
	Testnet      bool   `json:"testnet" env:"TESTNET"`

	// Work set.
	Categories []string `json:"categories" env:"CATEGORIES"`
	Intervals  []string `json:"intervals" env:"INTERVALS"`

	// Retry and pacing.
	MaxAttempts   int      `json:"max_attempts" env:"MAX_ATTEMPTS"`
	RetryDelay    Duration `json:"retry_delay" env:"RETRY_DELAY"`
	PageDelay     Duration `json:"page_delay" env:"PAGE_DELAY"`
	IntervalDelay Duration `json:"interval_delay" env:"INTERVAL_DELAY"`
	CategoryDelay Duration `json:"category_delay" env:"CATEGORY_DELAY"`

	// Output.
	OutputDir  string `json:"output_dir" env:"OUTPUT_DIR"`
	DuckDBPath string `json:"duckdb_path" env:"DUCKDB_PATH"` // empty disables the DuckDB mirror

	// Logging.
	LogLevel    string `json:"log_level" env:"LOG_LEVEL"`     // debug, info, warn, error
	LogFormat   string `json:"log_format" env:"LOG_FORMAT"`   // json, text
	LogOutput   string `json:"log_output" env:"LOG_OUTPUT"`   // stdout, stderr, file
	LogFilePath string `json:"log_file_path" env:"LOG_FILE_PATH"`
}

// Duration is a time.Duration that marshals as a duration string ("5s").
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Default returns the archiver's default configuration: BTCUSDT on Bybit,
// spot and perpetual markets, the provider's full minute-to-day interval
// ladder, and file output in the working directory.
func Default() *Config {
	return &Config{
		Coin:          "BTC",
		BaseCurrency:  "USDT",
		Exchange:      "bybit",
		Categories:    []string{symbols.CategorySpot, symbols.CategoryPerpetual},
		Intervals:     []string{"1", "5", "15", "30", "60", "360", "D"},
		MaxAttempts:   3,
		RetryDelay:    Duration(5 * time.Second),
		PageDelay:     Duration(200 * time.Millisecond),
		IntervalDelay: Duration(200 * time.Millisecond),
		CategoryDelay: Duration(500 * time.Millisecond),
		OutputDir:     ".",
		LogLevel:      "info",
		LogFormat:     "text",
		LogOutput:     "stdout",
	}
}

// Load builds the configuration from defaults, an optional JSON file, and
// environment variables, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	setList := func(key string, dst *[]string) {
		if val := os.Getenv(key); val != "" {
			parts := strings.Split(val, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if trimmed := strings.TrimSpace(p); trimmed != "" {
					out = append(out, trimmed)
				}
			}
			if len(out) > 0 {
				*dst = out
			}
		}
	}
	setDuration := func(key string, dst *Duration) {
		if val := os.Getenv(key); val != "" {
			if parsed, err := time.ParseDuration(val); err == nil {
				*dst = Duration(parsed)
			}
		}
	}
	setInt := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			if parsed, err := strconv.Atoi(val); err == nil {
				*dst = parsed
			}
		}
	}

	setString("COIN", &cfg.Coin)
	setString("BASE_CURRENCY", &cfg.BaseCurrency)
	setString("EXCHANGE", &cfg.Exchange)
	setString("RELAY_BASE_URL", &cfg.RelayBaseURL)
	if val := os.Getenv("TESTNET"); val != "" {
		cfg.Testnet = val == "true" || val == "1"
	}

	setList("CATEGORIES", &cfg.Categories)
	setList("INTERVALS", &cfg.Intervals)

	setInt("MAX_ATTEMPTS", &cfg.MaxAttempts)
	setDuration("RETRY_DELAY", &cfg.RetryDelay)
	setDuration("PAGE_DELAY", &cfg.PageDelay)
	setDuration("INTERVAL_DELAY", &cfg.IntervalDelay)
	setDuration("CATEGORY_DELAY", &cfg.CategoryDelay)

	setString("OUTPUT_DIR", &cfg.OutputDir)
	setString("DUCKDB_PATH", &cfg.DuckDBPath)

	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOG_FORMAT", &cfg.LogFormat)
	setString("LOG_OUTPUT", &cfg.LogOutput)
	setString("LOG_FILE_PATH", &cfg.LogFilePath)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var problems []string

	if c.Coin == "" {
		problems = append(problems, "coin is required")
	}
	if c.BaseCurrency == "" {
		problems = append(problems, "base_currency is required")
	}
	if c.Exchange == "" {
		problems = append(problems, "exchange is required")
	}

	if len(c.Categories) == 0 {
		problems = append(problems, "at least one category is required")
	}
	for _, cat := range c.Categories {
		if !symbols.KnownCategory(cat) {
			problems = append(problems, fmt.Sprintf("unknown category %q", cat))
		}
	}

	if len(c.Intervals) == 0 {
		problems = append(problems, "at least one interval is required")
	}
	for _, interval := range c.Intervals {
		if !models.SupportedInterval(interval) {
			problems = append(problems, fmt.Sprintf("unsupported interval %q", interval))
		}
	}

	if c.MaxAttempts <= 0 {
		problems = append(problems, "max_attempts must be greater than 0")
	}
	if c.OutputDir == "" {
		problems = append(problems, "output_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		problems = append(problems, "log_level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.LogFormat] {
		problems = append(problems, "log_format must be one of: json, text")
	}
	if c.LogOutput == "file" && c.LogFilePath == "" {
		problems = append(problems, "log_file_path is required when log_output is file")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Pair returns the normalized symbol components.
func (c *Config) Pair() symbols.Pair {
	return symbols.NewPair(c.Coin, c.BaseCurrency)
}
