// File: internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/iyunix/go-medgemma/internal/imaging"
	"github.com/iyunix/go-medgemma/internal/services/ai"
	"github.com/iyunix/go-medgemma/internal/services/scheduler"
)

type Config struct {
	ServerPort      string
	Environment     string
	CORSOrigin      string
	ShutdownTimeout time.Duration

	ModelBackend     string
	ModelName        string
	ModelBaseURL     string
	ModelAPIKey      string
	GeminiAPIKey     string
	ModelDevice      string
	ModelTemperature float64
	ModelTopP        float64
	ModelLoadTimeout time.Duration

	SchedulerMaxQueue      int
	GenerationIdleTimeout  time.Duration
	GenerationReleaseGrace time.Duration

	MaxImageBytes   int64
	ImageTargetSize int

	// RateLimitPerMinute of 0 disables rate limiting.
	RateLimitPerMinute int
	// LedgerPath of "" disables the job ledger.
	LedgerPath string

	LogLevel  string
	LogFormat string
}

var defaults = map[string]interface{}{
	"SERVER_PORT":              "8080",
	"ENV":                      "development",
	"CORS_ALLOWED_ORIGIN":      "*",
	"SHUTDOWN_TIMEOUT":         "30s",
	"MODEL_BACKEND":            ai.BackendStub,
	"MODEL_NAME":               "google/medgemma-4b-it",
	"MODEL_DEVICE":             "cpu",
	"MODEL_TEMPERATURE":        0.7,
	"MODEL_TOP_P":              0.9,
	"MODEL_LOAD_TIMEOUT":       "30s",
	"SCHEDULER_MAX_QUEUE":      8,
	"GENERATION_IDLE_TIMEOUT":  "60s",
	"GENERATION_RELEASE_GRACE": "10s",
	"MAX_IMAGE_BYTES":          10 << 20,
	"IMAGE_TARGET_SIZE":        512,
	"RATE_LIMIT_PER_MINUTE":    30,
	"LEDGER_PATH":              "",
	"LOG_LEVEL":                "info",
	"LOG_FORMAT":               "",
}

// Load reads configuration from environment variables or .env file.
func Load() (*Config, error) {
	if !isProduction(os.Getenv("ENV")) {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found; continuing with environment variables")
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{
		ServerPort:      v.GetString("SERVER_PORT"),
		Environment:     strings.ToLower(v.GetString("ENV")),
		CORSOrigin:      v.GetString("CORS_ALLOWED_ORIGIN"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),

		ModelBackend:     strings.ToLower(v.GetString("MODEL_BACKEND")),
		ModelName:        v.GetString("MODEL_NAME"),
		ModelBaseURL:     v.GetString("MODEL_BASE_URL"),
		ModelAPIKey:      v.GetString("MODEL_API_KEY"),
		GeminiAPIKey:     v.GetString("GEMINI_API_KEY"),
		ModelDevice:      strings.ToLower(v.GetString("MODEL_DEVICE")),
		ModelTemperature: v.GetFloat64("MODEL_TEMPERATURE"),
		ModelTopP:        v.GetFloat64("MODEL_TOP_P"),
		ModelLoadTimeout: v.GetDuration("MODEL_LOAD_TIMEOUT"),

		SchedulerMaxQueue:      v.GetInt("SCHEDULER_MAX_QUEUE"),
		GenerationIdleTimeout:  v.GetDuration("GENERATION_IDLE_TIMEOUT"),
		GenerationReleaseGrace: v.GetDuration("GENERATION_RELEASE_GRACE"),

		MaxImageBytes:   v.GetInt64("MAX_IMAGE_BYTES"),
		ImageTargetSize: v.GetInt("IMAGE_TARGET_SIZE"),

		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		LedgerPath:         v.GetString("LEDGER_PATH"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: strings.ToLower(v.GetString("LOG_FORMAT")),
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
		if cfg.IsProduction() {
			cfg.LogFormat = "json"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.ServerPort == "" {
		result = multierror.Append(result, fmt.Errorf("SERVER_PORT is required"))
	}
	if c.ShutdownTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.RateLimitPerMinute < 0 {
		result = multierror.Append(result, fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		result = multierror.Append(result, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	if err := c.AIConfig().Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("scheduler: %w", err))
	}
	if err := c.ImagingConfig().Validate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("imaging: %w", err))
	}
	return result.ErrorOrNil()
}

func (c *Config) IsProduction() bool { return isProduction(c.Environment) }

// AIConfig selects the API key that matches the backend.
func (c *Config) AIConfig() *ai.Config {
	key := c.ModelAPIKey
	if c.ModelBackend == ai.BackendGemini {
		key = c.GeminiAPIKey
	}
	return &ai.Config{
		Backend:     c.ModelBackend,
		ModelName:   c.ModelName,
		BaseURL:     c.ModelBaseURL,
		APIKey:      key,
		Device:      c.ModelDevice,
		LoadTimeout: c.ModelLoadTimeout,
		Temperature: float32(c.ModelTemperature),
		TopP:        float32(c.ModelTopP),
	}
}

func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MaxQueue:     c.SchedulerMaxQueue,
		IdleTimeout:  c.GenerationIdleTimeout,
		ReleaseGrace: c.GenerationReleaseGrace,
	}
}

func (c *Config) ImagingConfig() imaging.Config {
	cfg := imaging.DefaultConfig()
	cfg.MaxBytes = c.MaxImageBytes
	cfg.TargetSize = c.ImageTargetSize
	return cfg
}

func isProduction(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "production")
}
