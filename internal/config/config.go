package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration for the build orchestrator service.
type Config struct {
	Env      string
	HTTPPort string
	LogLevel string

	GatewayURL            string
	GatewayToken          string
	GatewayRequestTimeout time.Duration
	PollInterval          time.Duration
	BuildTimeout          time.Duration
	SiteURLPattern        string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RateLimitCapacity int
	RateLimitRefill   float64
	RateLimitTTL      time.Duration

	PostgresDSN string

	ReportDir         string
	ReportS3Bucket    string
	ReportS3Region    string
	ReportS3Endpoint  string
	ReportS3PathStyle bool
}

// Load reads configuration from environment variables with sane defaults for local development.
// A .env file in the working directory is applied first when present; real env vars win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:                   getEnv("APP_ENV", "dev"),
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		GatewayURL:            strings.TrimRight(getEnv("GATEWAY_URL", ""), "/"),
		GatewayToken:          getEnv("GATEWAY_TOKEN", ""),
		GatewayRequestTimeout: getEnvDuration("GATEWAY_REQUEST_TIMEOUT", 15*time.Second),
		PollInterval:          getEnvDuration("POLL_INTERVAL", 5*time.Second),
		BuildTimeout:          getEnvDuration("BUILD_TIMEOUT", 600*time.Second),
		SiteURLPattern:        getEnv("SITE_URL_PATTERN", ""),
		RedisAddr:             getEnv("REDIS_ADDR", ""),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		RateLimitCapacity:     getEnvInt("RATE_LIMIT_CAPACITY", 10),
		RateLimitRefill:       getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 0.1),
		RateLimitTTL:          getEnvDuration("RATE_LIMIT_TTL", time.Hour),
		PostgresDSN:           getEnv("POSTGRES_DSN", ""),
		ReportDir:             getEnv("REPORT_DIR", ""),
		ReportS3Bucket:        getEnv("REPORT_S3_BUCKET", ""),
		ReportS3Region:        getEnv("REPORT_S3_REGION", "us-east-1"),
		ReportS3Endpoint:      getEnv("REPORT_S3_ENDPOINT", ""),
		ReportS3PathStyle:     getEnvBool("REPORT_S3_PATH_STYLE", false),
	}
}

// GatewayConfigured reports whether both the gateway address and its token are set.
// Without both, builds run through the simulator.
func (c Config) GatewayConfigured() bool {
	return c.GatewayURL != "" && c.GatewayToken != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
