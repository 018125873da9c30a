package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Gemini        GeminiConfig
	Vision        VisionConfig
	Pipeline      PipelineConfig
	Quota         QuotaConfig
	Storage       StorageConfig
	Retention     RetentionConfig
	Email         EmailConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	LogLevel        string
	AllowedOrigins  []string
	MaxUploadBytes  int64
	MaxBatchFiles   int
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	// Enabled turns persistence on. Without a database the API serves
	// parse and export only.
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	ServiceName    string
	// TraceStdout writes finished spans to stdout.
	TraceStdout bool
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled reports whether the AI classifier can be built.
func (g GeminiConfig) Enabled() bool {
	return g.APIKey != ""
}

type VisionConfig struct {
	APIKey  string
	Enabled bool
}

type PipelineConfig struct {
	MaxPages             int
	MinNativeChars       int
	Timeout              time.Duration
	BatchDelay           time.Duration
	LargeAmountThreshold float64
}

type QuotaConfig struct {
	MonthlyConversions int
	RequestsPerMinute  int
}

type StorageConfig struct {
	Type      string
	LocalPath string
	GCSBucket string
	GCSPrefix string
}

type RetentionConfig struct {
	ArtifactTTL   time.Duration
	ConversionTTL time.Duration
	Schedule      string
}

type EmailConfig struct {
	ResendAPIKey string
	From         string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS"),
			MaxUploadBytes:  int64(getEnvAsInt("MAX_UPLOAD_MB", 25)) << 20,
			MaxBatchFiles:   getEnvAsInt("MAX_BATCH_FILES", 20),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvAsBool("DATABASE_ENABLED", true),
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnvAsInt("POSTGRES_PORT", 5432),
			User:            getEnv("POSTGRES_USER", "postgres"),
			Password:        getEnv("POSTGRES_PASSWORD", "postgres"),
			Database:        getEnv("POSTGRES_DB", "statement_desk"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns:        getEnvAsInt("POSTGRES_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("POSTGRES_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("POSTGRES_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime: getEnvAsDuration("POSTGRES_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "statement-desk"),
			TraceStdout:    getEnvAsBool("OTEL_TRACES_STDOUT", false),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Vision: VisionConfig{
			APIKey:  getEnv("VISION_API_KEY", ""),
			Enabled: getEnvAsBool("VISION_ENABLED", true),
		},
		Pipeline: PipelineConfig{
			MaxPages:             getEnvAsInt("PIPELINE_MAX_PAGES", 20),
			MinNativeChars:       getEnvAsInt("PIPELINE_MIN_NATIVE_CHARS", 40),
			Timeout:              getEnvAsDuration("PIPELINE_TIMEOUT", 5*time.Minute),
			BatchDelay:           getEnvAsDuration("PIPELINE_BATCH_DELAY", 2*time.Second),
			LargeAmountThreshold: getEnvAsFloat("PIPELINE_LARGE_AMOUNT", 5000),
		},
		Quota: QuotaConfig{
			MonthlyConversions: getEnvAsInt("QUOTA_MONTHLY_CONVERSIONS", 100),
			RequestsPerMinute:  getEnvAsInt("QUOTA_REQUESTS_PER_MINUTE", 10),
		},
		Storage: StorageConfig{
			Type:      getEnv("STORAGE_TYPE", "local"),
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./data/artifacts"),
			GCSBucket: getEnv("STORAGE_GCS_BUCKET", ""),
			GCSPrefix: getEnv("STORAGE_GCS_PREFIX", "artifacts"),
		},
		Retention: RetentionConfig{
			ArtifactTTL:   getEnvAsDuration("RETENTION_ARTIFACT_TTL", 7*24*time.Hour),
			ConversionTTL: getEnvAsDuration("RETENTION_CONVERSION_TTL", 90*24*time.Hour),
			Schedule:      getEnv("RETENTION_SCHEDULE", "@daily"),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("EMAIL_FROM", "Statement Desk <no-reply@statementdesk.io>"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port)
	}
	if c.Pipeline.MaxPages <= 0 {
		return fmt.Errorf("PIPELINE_MAX_PAGES must be positive, got %d", c.Pipeline.MaxPages)
	}
	if c.Pipeline.Timeout <= 0 {
		return fmt.Errorf("PIPELINE_TIMEOUT must be positive, got %s", c.Pipeline.Timeout)
	}
	switch c.Storage.Type {
	case "local", "":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("STORAGE_GCS_BUCKET is required when STORAGE_TYPE=gcs")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE %q", c.Storage.Type)
	}
	return nil
}

// VisionEnabled reports whether the OCR engine can be built.
func (c *Config) VisionEnabled() bool {
	return c.Vision.Enabled && c.Vision.APIKey != ""
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
