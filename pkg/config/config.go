package config

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Remote conversation API
	API struct {
		BaseURL       string
		Token         string
		Timeout       time.Duration
		SendTimeout   time.Duration
		UploadTimeout time.Duration
		QuotaStatus   int
		PageSize      int
	}

	// Local attachment cache
	Cache struct {
		Dir         string
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	// Attachment upload backend
	Upload struct {
		Backend     string
		Endpoint    string
		Bucket      string
		Prefix      string
		Concurrency int
	}

	// Feedback register storage
	Feedback struct {
		Store    string
		RedisURL string
	}

	// Circuit breaker around the remote API
	Breaker struct {
		FailureThreshold uint
		RetryTimeout     time.Duration
	}

	// Reference dev server
	Server struct {
		Port           string
		Env            string
		Timeout        time.Duration
		JWTSecret      string
		JWTExpiry      time.Duration
		RateLimit      float64
		RateLimitBurst int
		OpenAPISchema  string
		DatabaseDSN    string
		StorageDir     string
		MaxUserPrompts int
		ResponderURL   string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Tracing configuration
	Tracing struct {
		Enabled bool
		// Output is a file path for span records; empty means stderr
		Output string
	}

	// Vault configuration
	Vault struct {
		Enabled  bool
		TokenKey string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates the singleton Config from environment variables
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the current environment without touching the singleton.
func Load() *Config {
	cfg := &Config{}

	// API config
	cfg.API.BaseURL = strings.TrimRight(getEnvString("API_BASE_URL", "http://localhost:8084"), "/")
	cfg.API.Token = getEnvString("API_TOKEN", "")
	cfg.API.Timeout = getEnvDuration("API_TIMEOUT", 30*time.Second)
	cfg.API.SendTimeout = getEnvDuration("API_SEND_TIMEOUT", 3*time.Minute)
	cfg.API.UploadTimeout = getEnvDuration("API_UPLOAD_TIMEOUT", 10*time.Minute)
	cfg.API.QuotaStatus = getEnvInt("API_QUOTA_STATUS", http.StatusTooManyRequests)
	cfg.API.PageSize = getEnvInt("API_PAGE_SIZE", 20)

	// Cache config
	cfg.Cache.Dir = getEnvString("CACHE_DIR", defaultCacheDir())
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 24*time.Hour)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

	// Upload config
	cfg.Upload.Backend = getEnvString("UPLOAD_BACKEND", "http")
	cfg.Upload.Endpoint = getEnvString("UPLOAD_ENDPOINT", cfg.API.BaseURL+"/files/upload")
	cfg.Upload.Bucket = getEnvString("UPLOAD_GCS_BUCKET", "")
	cfg.Upload.Prefix = getEnvString("UPLOAD_GCS_PREFIX", "attachments")
	cfg.Upload.Concurrency = getEnvInt("UPLOAD_CONCURRENCY", 4)

	// Feedback config
	cfg.Feedback.Store = getEnvString("FEEDBACK_STORE", "memory")
	cfg.Feedback.RedisURL = getEnvString("REDIS_URL", "localhost:6379")

	// Breaker config
	cfg.Breaker.FailureThreshold = uint(getEnvInt("BREAKER_FAILURE_THRESHOLD", 5))
	cfg.Breaker.RetryTimeout = getEnvDuration("BREAKER_RETRY_TIMEOUT", 30*time.Second)

	// Server config
	cfg.Server.Port = getEnvString("PORT", "8084")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 5*time.Minute)
	cfg.Server.JWTSecret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
	cfg.Server.JWTExpiry = getEnvDuration("JWT_EXPIRY", 24*time.Hour)
	cfg.Server.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
	cfg.Server.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Server.OpenAPISchema = getEnvString("OPENAPI_SCHEMA", "api/openapi.yaml")
	cfg.Server.DatabaseDSN = getEnvString("DATABASE_DSN", "")
	cfg.Server.StorageDir = getEnvString("STORAGE_DIR", "./uploads")
	cfg.Server.MaxUserPrompts = getEnvInt("MAX_USER_PROMPTS", 50)
	cfg.Server.ResponderURL = getEnvString("AI_SERVICE_URL", "")

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	// Tracing config
	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Tracing.Output = getEnvString("TRACING_OUTPUT", "")

	// Vault config
	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.TokenKey = getEnvString("VAULT_API_TOKEN_KEY", "api_token")

	return cfg
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "assistant", "attachments")
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
