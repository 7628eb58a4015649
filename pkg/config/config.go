package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Consultation
	Consult   ConsultConfig
	Registry  RegistryConfig
	Snapshot  SnapshotConfig
	Evaluator EvaluatorConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ConsultConfig holds the default limits of a consultation run
type ConsultConfig struct {
	MaxConcurrent  int
	PerCallTimeout time.Duration
	RunDeadline    time.Duration // 0 = 인스턴스 수에 비례해 자동 산정
	DefaultSector  string
	Schedule       string // cron (초 단위 포함), 비어 있으면 스케줄 없음
}

// RegistryConfig selects where strategy instances and templates are read from
type RegistryConfig struct {
	Backend      string // file, postgres
	InstancesDir string
	TemplatesDir string
	CacheTTL     time.Duration // redis 인스턴스 캐시, 0 = 캐시 안 함
}

// SnapshotConfig selects the append-only snapshot store
type SnapshotConfig struct {
	Backend string // file, postgres, redis
	Dir     string
	TTL     time.Duration // redis only, 0 = 만료 없음
}

// EvaluatorConfig holds the external evaluator settings
type EvaluatorConfig struct {
	Kind        string // openai, http
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPURL     string
	RateLimit   float64 // calls per second, 0 = unlimited
	RateBurst   int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Consult: ConsultConfig{
			MaxConcurrent:  getEnvAsInt("CONSULT_MAX_CONCURRENT", 50),
			PerCallTimeout: getEnvAsDuration("CONSULT_PER_CALL_TIMEOUT", "30s"),
			RunDeadline:    getEnvAsDuration("CONSULT_RUN_DEADLINE", "0s"),
			DefaultSector:  getEnv("CONSULT_DEFAULT_SECTOR", "ALL"),
			Schedule:       getEnv("CONSULT_SCHEDULE", ""),
		},

		Registry: RegistryConfig{
			Backend:      getEnv("REGISTRY_BACKEND", "file"),
			InstancesDir: getEnv("INSTANCES_DIR", "config/instances"),
			TemplatesDir: getEnv("TEMPLATES_DIR", "config/templates"),
			CacheTTL:     getEnvAsDuration("REGISTRY_CACHE_TTL", "0s"),
		},

		Snapshot: SnapshotConfig{
			Backend: getEnv("SNAPSHOT_BACKEND", "file"),
			Dir:     getEnv("SNAPSHOT_DIR", "data/snapshots"),
			TTL:     getEnvAsDuration("SNAPSHOT_TTL", "0s"),
		},

		Evaluator: EvaluatorConfig{
			Kind:        getEnv("EVALUATOR", "openai"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat("OPENAI_TEMPERATURE", 0.2),
			MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 1024),
			HTTPURL:     getEnv("EVALUATOR_HTTP_URL", ""),
			RateLimit:   getEnvAsFloat("EVALUATOR_RATE_LIMIT", 0),
			RateBurst:   getEnvAsInt("EVALUATOR_RATE_BURST", 1),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// UsesPostgres reports whether any selected backend needs the database
func (c *Config) UsesPostgres() bool {
	return c.Registry.Backend == "postgres" || c.Snapshot.Backend == "postgres"
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Registry.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be one of: file, postgres")
	}

	switch c.Snapshot.Backend {
	case "file", "postgres":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("SNAPSHOT_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND must be one of: file, postgres, redis")
	}

	// Database URL is required only for postgres-backed stores
	if c.UsesPostgres() && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.Evaluator.Kind {
	case "openai":
	case "http":
		if c.Evaluator.HTTPURL == "" {
			return fmt.Errorf("EVALUATOR_HTTP_URL is required for EVALUATOR=http")
		}
	default:
		return fmt.Errorf("EVALUATOR must be one of: openai, http")
	}

	if c.Consult.MaxConcurrent < 1 {
		return fmt.Errorf("CONSULT_MAX_CONCURRENT must be at least 1")
	}
	if c.Consult.PerCallTimeout <= 0 {
		return fmt.Errorf("CONSULT_PER_CALL_TIMEOUT must be positive")
	}
	if c.Consult.RunDeadline < 0 {
		return fmt.Errorf("CONSULT_RUN_DEADLINE must not be negative")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
