package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config represents the client configuration
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Identity IdentityConfig `toml:"identity"`
	Query    QueryConfig    `toml:"query"`
	Logging  LoggingConfig  `toml:"logging"`
	Media    MediaConfig    `toml:"media"`
	Watch    WatchConfig    `toml:"watch"`
}

// ServiceConfig describes how to reach the EmySound service
type ServiceConfig struct {
	APIRoot        string `toml:"api_root" validate:"required,url"`
	Username       string `toml:"username" validate:"required"`
	Password       string `toml:"password"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"min=0"` // 0 disables the client timeout
}

// IdentityConfig selects the track identity scheme used on insert
type IdentityConfig struct {
	Scheme  string `toml:"scheme" validate:"oneof=metadata random"`
	Compose bool   `toml:"compose"`
}

// QueryConfig contains query defaults
type QueryConfig struct {
	MinConfidence   float64 `toml:"min_confidence" validate:"min=0,max=1"`
	RegisterMatches bool    `toml:"register_matches"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
	File   string `toml:"file"`
}

// MediaConfig lists the audio formats the client submits
type MediaConfig struct {
	SupportedFormats []string `toml:"supported_formats" validate:"min=1,dive,startswith=."`
}

// WatchConfig contains watch mode configuration
type WatchConfig struct {
	Directory          string  `toml:"directory"`
	SettleMillis       int     `toml:"settle_millis" validate:"min=0"`
	MinDurationSeconds float64 `toml:"min_duration_seconds" validate:"min=0"` // 0 inserts files of any length
	MetricsBind        string  `toml:"metrics_bind" validate:"omitempty,hostname_port"`
}

// Environment variables that override file values. They may also be set in
// a .env file next to the working directory.
const (
	EnvAPIRoot  = "EMYSOUND_API_ROOT"
	EnvUsername = "EMYSOUND_USERNAME"
	EnvPassword = "EMYSOUND_PASSWORD"
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			APIRoot:        "http://localhost:3340/api/v1.1/",
			Username:       "ADMIN",
			Password:       "",
			TimeoutSeconds: 60,
		},
		Identity: IdentityConfig{
			Scheme:  "metadata",
			Compose: false,
		},
		Query: QueryConfig{
			MinConfidence:   0.2,
			RegisterMatches: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "emysound-client.log",
		},
		Media: MediaConfig{
			SupportedFormats: []string{".mp3", ".flac", ".wav", ".m4a"},
		},
		Watch: WatchConfig{
			Directory:          "./incoming",
			SettleMillis:       500,
			MinDurationSeconds: 0,
			MetricsBind:        "",
		},
	}
}

// LoadConfig loads configuration from a TOML file, then applies environment
// overrides. A missing file is created with defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.ApplyEnv(".env"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv loads envFile (if present) into the process environment and
// overrides service settings from EMYSOUND_* variables.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	if v := os.Getenv(EnvAPIRoot); v != "" {
		c.Service.APIRoot = v
	}
	if v := os.Getenv(EnvUsername); v != "" {
		c.Service.Username = v
	}
	if v, ok := os.LookupEnv(EnvPassword); ok {
		c.Service.Password = v
	}
	return nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# EmySound Client Configuration
# identity.scheme: "metadata" derives the same track id from artist/title/extra
# on every insert, so re-inserting a track is detected by the service.
# "random" draws a new id each time. Pick one per service installation.
# Credentials can be overridden with EMYSOUND_API_ROOT, EMYSOUND_USERNAME and
# EMYSOUND_PASSWORD (also read from .env).

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describe(fe))
	}
	return errors.New(strings.Join(messages, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s cannot be empty", field)
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("invalid %s: %v (must be one of %s)", field, fe.Value(), fe.Param())
	case "min", "max":
		return fmt.Sprintf("%s must be %s %s, got %v", field, map[string]string{"min": "at least", "max": "at most"}[fe.Tag()], fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
