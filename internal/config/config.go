package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Completion providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	LLM        LLMConfig        `yaml:"llm"`
	Renderer   RendererConfig   `yaml:"renderer"`
	Reflection ReflectionConfig `yaml:"reflection"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects where session records and the knowledge snapshot live.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	SessionsFile  string `yaml:"sessions_file"`
	KnowledgeFile string `yaml:"knowledge_file"`
}

// LLMConfig contains text completion service settings.
type LLMConfig struct {
	Provider           string  `yaml:"provider"`
	APIKey             string  `yaml:"-"` // env-only, never in YAML
	Model              string  `yaml:"model"`
	TranscriptionModel string  `yaml:"transcription_model"`
	Temperature        float64 `yaml:"temperature"`
}

// RendererConfig contains sound renderer settings.
type RendererConfig struct {
	Endpoint         string   `yaml:"endpoint"`
	APIKey           string   `yaml:"-"` // env-only, never in YAML
	Timeout          Duration `yaml:"timeout"`
	MaxRetries       int      `yaml:"max_retries"`
	DefaultMaxTokens int      `yaml:"default_max_tokens"`
}

// ReflectionConfig contains learning loop settings.
type ReflectionConfig struct {
	Threshold         int      `yaml:"threshold"`
	Interval          Duration `yaml:"interval"`
	ExemplarMinRating int      `yaml:"exemplar_min_rating"`
	ExemplarLimit     int      `yaml:"exemplar_limit"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SnapshotConfig contains S3-compatible storage settings for publishing the
// knowledge snapshot. An empty Bucket disables publishing.
type SnapshotConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	Prefix    string   `yaml:"prefix"`
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
	AccessKey string   `yaml:"-"` // env-only
	SecretKey string   `yaml:"-"` // env-only
}

// TelemetryConfig contains OpenTelemetry exporter settings.
// An empty Endpoint disables export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"otel_endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("RESONANCE_CONFIG_PATH", "config/resonance.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyProviderDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit paths.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyProviderDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(3 * time.Minute),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Storage: StorageConfig{
			Backend:       BackendSQLite,
			Path:          "data/resonance.db",
			SessionsFile:  "data/feedback.json",
			KnowledgeFile: "data/knowledge.json",
		},
		LLM: LLMConfig{
			Provider:    ProviderGemini,
			Temperature: 0.7,
		},
		Renderer: RendererConfig{
			Timeout:          Duration(2 * time.Minute),
			MaxRetries:       3,
			DefaultMaxTokens: 256,
		},
		Reflection: ReflectionConfig{
			Threshold:         5,
			Interval:          Duration(10 * time.Minute),
			ExemplarMinRating: 4,
			ExemplarLimit:     3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Snapshot: SnapshotConfig{
			URLExpiry: Duration(time.Hour),
		},
		Telemetry: TelemetryConfig{
			ServiceName: "resonance",
		},
	}
}

// applyProviderDefaults fills model names that depend on the selected provider.
func applyProviderDefaults(cfg *Config) {
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case ProviderOpenAI:
			cfg.LLM.Model = "gpt-4o-mini"
		default:
			cfg.LLM.Model = "gemini-2.0-flash"
		}
	}
	if cfg.LLM.TranscriptionModel == "" {
		switch cfg.LLM.Provider {
		case ProviderOpenAI:
			cfg.LLM.TranscriptionModel = "whisper-1"
		default:
			cfg.LLM.TranscriptionModel = cfg.LLM.Model
		}
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("RESONANCE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	setDuration("RESONANCE_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("RESONANCE_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setDuration("RESONANCE_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Storage
	setString("RESONANCE_STORAGE_BACKEND", &cfg.Storage.Backend)
	setString("RESONANCE_DB_PATH", &cfg.Storage.Path)
	setString("RESONANCE_SESSIONS_FILE", &cfg.Storage.SessionsFile)
	setString("RESONANCE_KNOWLEDGE_FILE", &cfg.Storage.KnowledgeFile)

	// LLM. The key variable follows the provider's own convention.
	setString("RESONANCE_LLM_PROVIDER", &cfg.LLM.Provider)
	setString("RESONANCE_LLM_MODEL", &cfg.LLM.Model)
	setString("RESONANCE_TRANSCRIPTION_MODEL", &cfg.LLM.TranscriptionModel)
	switch cfg.LLM.Provider {
	case ProviderOpenAI:
		setString("OPENAI_API_KEY", &cfg.LLM.APIKey)
	default:
		setString("GEMINI_API_KEY", &cfg.LLM.APIKey)
	}

	// Renderer
	setString("RESONANCE_RENDERER_ENDPOINT", &cfg.Renderer.Endpoint)
	setString("RESONANCE_RENDERER_API_KEY", &cfg.Renderer.APIKey)
	setDuration("RESONANCE_RENDERER_TIMEOUT", &cfg.Renderer.Timeout)
	setInt("RESONANCE_RENDERER_MAX_RETRIES", &cfg.Renderer.MaxRetries)

	// Reflection
	setInt("RESONANCE_REFLECTION_THRESHOLD", &cfg.Reflection.Threshold)
	setDuration("RESONANCE_REFLECTION_INTERVAL", &cfg.Reflection.Interval)
	setInt("RESONANCE_EXEMPLAR_MIN_RATING", &cfg.Reflection.ExemplarMinRating)

	// Auth
	setString("RESONANCE_API_KEY", &cfg.Auth.APIKey)

	// Log
	setString("RESONANCE_LOG_LEVEL", &cfg.Log.Level)
	setString("RESONANCE_LOG_FORMAT", &cfg.Log.Format)

	// Snapshot
	setString("RESONANCE_SNAPSHOT_BUCKET", &cfg.Snapshot.Bucket)
	setString("RESONANCE_S3_ENDPOINT", &cfg.Snapshot.Endpoint)
	setString("RESONANCE_S3_REGION", &cfg.Snapshot.Region)
	setString("RESONANCE_S3_ACCESS_KEY", &cfg.Snapshot.AccessKey)
	setString("RESONANCE_S3_SECRET_KEY", &cfg.Snapshot.SecretKey)
	if v := os.Getenv("RESONANCE_S3_USE_SSL"); v != "" {
		b := v == "true" || v == "1"
		cfg.Snapshot.UseSSL = &b
	}

	// Telemetry
	setString("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.Endpoint)
	if v := os.Getenv("RESONANCE_OTEL_INSECURE"); v != "" {
		cfg.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// validate checks that required configuration values are set.
// In dev mode (RESONANCE_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendJSON:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendSQLite, BackendJSON, c.Storage.Backend)
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderGemini, ProviderOpenAI, c.LLM.Provider)
	}
	if c.Reflection.Threshold < 1 {
		return errors.New("reflection.threshold must be at least 1")
	}
	if c.Reflection.ExemplarMinRating < 1 || c.Reflection.ExemplarMinRating > 5 {
		return errors.New("reflection.exemplar_min_rating must be between 1 and 5")
	}
	if c.Reflection.ExemplarLimit < 0 {
		return errors.New("reflection.exemplar_limit must not be negative")
	}

	if os.Getenv("RESONANCE_DEV_MODE") == "true" {
		return nil
	}

	if c.LLM.APIKey == "" {
		if c.LLM.Provider == ProviderOpenAI {
			return errors.New("OPENAI_API_KEY is required")
		}
		return errors.New("GEMINI_API_KEY is required")
	}
	if c.Auth.APIKey == "" {
		return errors.New("RESONANCE_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
