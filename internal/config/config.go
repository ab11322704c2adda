// Package config loads the service configuration from YAML with environment
// overrides. .env files are loaded first so local runs can keep secrets out of
// the YAML file.
//
// Environment variables are bound with the `env` struct tag:
//
//	finder:
//	  api_key: ""   # FINDER_API_KEY
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"where2go-events/internal/logger"
	"where2go-events/internal/models"
)

// ErrMissingCity is returned when no city is configured
var ErrMissingCity = errors.New("at least one city is required")

// Config is the complete service configuration
type Config struct {
	Logging    logger.Config `yaml:"logging"`
	Finder     FinderConfig  `yaml:"finder"`
	Reader     ReaderConfig  `yaml:"reader"`
	Cache      CacheConfig   `yaml:"cache"`
	Storage    StorageConfig `yaml:"storage"`
	Queue      QueueConfig   `yaml:"queue"`
	Venues     VenuesConfig  `yaml:"venues"`
	Refresh    RefreshConfig `yaml:"refresh"`
	Cities     []string      `yaml:"cities" env:"CITIES"`
	Timezone   string        `yaml:"timezone" env:"TIMEZONE"`
	Categories []string      `yaml:"categories" env:"CATEGORIES"` // subset of the taxonomy to query; empty means all
}

// FinderConfig configures the LLM event finder
type FinderConfig struct {
	BaseURL     string        `yaml:"base_url" env:"FINDER_BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"FINDER_API_KEY"`
	Model       string        `yaml:"model" env:"FINDER_MODEL"`
	Temperature float64       `yaml:"temperature" env:"FINDER_TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"FINDER_MAX_TOKENS"`
	BatchSize   int           `yaml:"batch_size" env:"FINDER_BATCH_SIZE"`
	BatchDelay  time.Duration `yaml:"batch_delay" env:"FINDER_BATCH_DELAY"`
	Timeout     time.Duration `yaml:"timeout" env:"FINDER_TIMEOUT"`
}

// ReaderConfig configures the reader proxy used for script-heavy venue pages
type ReaderConfig struct {
	BaseURL string        `yaml:"base_url" env:"READER_BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"JINA_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"READER_TIMEOUT"`
}

// CacheConfig configures the Redis hot cache
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" env:"CACHE_ENABLED"`
	Address  string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"CACHE_TTL"`
}

// StorageConfig configures DynamoDB and S3 persistence
type StorageConfig struct {
	Region      string        `yaml:"region" env:"AWS_REGION"`
	EventsTable string        `yaml:"events_table" env:"EVENTS_TABLE"`
	Bucket      string        `yaml:"bucket" env:"S3_BUCKET"`
	Prefix      string        `yaml:"prefix" env:"S3_PREFIX"`
	TTL         time.Duration `yaml:"ttl" env:"STORAGE_TTL"`
}

// QueueConfig configures the refresh task queue
type QueueConfig struct {
	URL                  string `yaml:"url" env:"REFRESH_QUEUE_URL"`
	DaysAhead            int    `yaml:"days_ahead" env:"REFRESH_DAYS_AHEAD"`
	OrchestratorFunction string `yaml:"orchestrator_function" env:"ORCHESTRATOR_FUNCTION_NAME"`
}

// VenuesConfig points at the venue scraper definitions
type VenuesConfig struct {
	Path      string        `yaml:"path" env:"VENUES_PATH"`
	UserAgent string        `yaml:"user_agent" env:"SCRAPER_USER_AGENT"`
	Timeout   time.Duration `yaml:"timeout" env:"SCRAPER_TIMEOUT"`
	MaxDetail int           `yaml:"max_detail_pages" env:"SCRAPER_MAX_DETAIL_PAGES"`
}

// RefreshConfig tunes the refresh pipeline
type RefreshConfig struct {
	IncludeUndatedVenueEvents bool `yaml:"include_undated_venue_events" env:"REFRESH_INCLUDE_UNDATED"`
}

// Default returns a configuration that runs locally against public endpoints
func Default() *Config {
	return &Config{
		Logging: logger.Config{Level: "info"},
		Finder: FinderConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   4000,
			BatchSize:   5,
			BatchDelay:  time.Second,
			Timeout:     60 * time.Second,
		},
		Reader: ReaderConfig{
			BaseURL: "https://r.jina.ai/",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Address: "localhost:6379",
			TTL:     6 * time.Hour,
		},
		Storage: StorageConfig{
			Region: "eu-central-1",
			Prefix: "events",
			TTL:    14 * 24 * time.Hour,
		},
		Queue: QueueConfig{
			DaysAhead: 7,
		},
		Venues: VenuesConfig{
			Path:      "venues.yaml",
			UserAgent: "Mozilla/5.0 (compatible; Where2GoBot/1.0)",
			Timeout:   30 * time.Second,
			MaxDetail: 30,
		},
		Cities:   []string{"Wien"},
		Timezone: models.DefaultTimezone,
	}
}

// Load reads .env files, then the YAML file at path over Default(), then
// environment overrides. An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load environment files: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate reports missing or inconsistent values
func (c *Config) Validate() error {
	var errs []error
	if len(c.Cities) == 0 {
		errs = append(errs, ErrMissingCity)
	}
	if c.Finder.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("finder.batch_size must be positive"))
	}
	if c.Finder.BatchDelay < 0 {
		errs = append(errs, fmt.Errorf("finder.batch_delay must not be negative"))
	}
	if c.Cache.Enabled && c.Cache.Address == "" {
		errs = append(errs, fmt.Errorf("cache.address is required when the cache is enabled"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
	}
	if len(c.Categories) > 0 {
		tax := models.DefaultTaxonomy()
		for _, name := range c.Categories {
			if !tax.IsMember(tax.Normalize(name)) {
				errs = append(errs, fmt.Errorf("unknown category %q", name))
			}
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err))
	}
	return errors.Join(errs...)
}

// QueryCategories returns the configured categories in taxonomy form, or the
// whole taxonomy when none are configured.
func (c *Config) QueryCategories(tax *models.Taxonomy) []string {
	if len(c.Categories) == 0 {
		return tax.Names()
	}
	out := make([]string, 0, len(c.Categories))
	for _, name := range c.Categories {
		out = append(out, tax.Normalize(name))
	}
	return out
}

// GetConfigPath returns CONFIG_PATH when set, else defaultPath
func GetConfigPath(defaultPath string) string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return defaultPath
}

// loadEnvFiles loads ENV_FILE if set, else .env.local then .env.
// Missing files are ignored.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg any) {
	v := reflect.ValueOf(cfg)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	applyEnvToStruct(v)
}

func applyEnvToStruct(v reflect.Value) {
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			applyEnvToStruct(field)
			continue
		}

		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" {
			continue
		}
		envVal := os.Getenv(envTag)
		if envVal == "" {
			continue
		}
		setFieldFromString(field, envVal)
	}
}

func setFieldFromString(field reflect.Value, val string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(val)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			if d, err := time.ParseDuration(val); err == nil {
				field.SetInt(int64(d))
			}
		} else if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Float64:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Bool:
		s := strings.ToLower(strings.TrimSpace(val))
		field.SetBool(s == "true" || s == "1" || s == "yes")
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(val, ",")
			for i, p := range parts {
				parts[i] = strings.TrimSpace(p)
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
}
