package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Generation  GenerationConfig
	Redis       RedisConfig
	AMQP        AMQPConfig
	CatalogPath string
	LogLevel    string `validate:"oneof=debug info warn error"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port               int `validate:"min=1,max=65535"`
	ReadTimeout        int `validate:"min=1"`
	WriteTimeout       int `validate:"min=1"`
	ShutdownTimeout    int `validate:"min=1"`
	CORSAllowedOrigins []string
}

// GenerationConfig holds limits for icon generation
type GenerationConfig struct {
	MaxUploadBytes     int64 `validate:"min=1"`
	MaxSourcePixels    int64 `validate:"min=1"`
	ResizeWorkers      int   `validate:"min=1,max=256"`
	MinRecommendedSize int   `validate:"min=1"`
	ProcessingTimeout  int   `validate:"min=1"`
}

// RedisConfig holds Redis-related configuration. An empty Addr disables the
// archive cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"min=0,max=15"`
	CacheTTL int `validate:"min=1"`
}

// AMQPConfig holds AMQP-related configuration. An empty URL disables
// generation events.
type AMQPConfig struct {
	URL        string `validate:"omitempty,url"`
	Exchange   string `validate:"required"`
	RoutingKey string `validate:"required"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:        getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:       getEnvAsInt("SERVER_WRITE_TIMEOUT", 60),
			ShutdownTimeout:    getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT", 10),
			CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Generation: GenerationConfig{
			MaxUploadBytes:     getEnvAsInt64("MAX_UPLOAD_BYTES", 10*1024*1024),
			MaxSourcePixels:    getEnvAsInt64("MAX_SOURCE_PIXELS", 0x3FFF*0x3FFF),
			ResizeWorkers:      getEnvAsInt("RESIZE_WORKERS", runtime.NumCPU()),
			MinRecommendedSize: getEnvAsInt("MIN_RECOMMENDED_SIZE", 1024),
			ProcessingTimeout:  getEnvAsInt("PROCESSING_TIMEOUT", 60),
		},
		Redis: RedisConfig{
			Addr:     getRedisAddr(),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsInt("ARCHIVE_CACHE_TTL", 600),
		},
		AMQP: AMQPConfig{
			URL:        getEnv("AMQP_URL", ""),
			Exchange:   getEnv("AMQP_EXCHANGE", "iconforge"),
			RoutingKey: getEnv("AMQP_ROUTING_KEY", "generation.completed"),
		},
		CatalogPath: getEnv("CATALOG_PATH", ""),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every field against its constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ProcessingTimeoutDuration returns the per-request generation deadline
func (g GenerationConfig) ProcessingTimeoutDuration() time.Duration {
	return time.Duration(g.ProcessingTimeout) * time.Second
}

// CacheTTLDuration returns the archive cache expiry
func (r RedisConfig) CacheTTLDuration() time.Duration {
	return time.Duration(r.CacheTTL) * time.Second
}

// getRedisAddr prefers REDIS_URL (with or without the redis:// scheme) over REDIS_ADDR
func getRedisAddr() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return strings.TrimPrefix(url, "redis://")
	}
	return getEnv("REDIS_ADDR", "")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsInt64 gets an environment variable as int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
