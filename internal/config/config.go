package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr       string
	DataFile       string
	SaveOnShutdown bool
	SnowflakeNode  int64
	SettingsPath   string

	Audit     AuditConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// AuditConfig selects the database backing the audit trail.
type AuditConfig struct {
	Enabled         bool
	DBType          string
	DSN             string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
}

// RateLimitConfig controls the redis token bucket guarding feed uploads.
type RateLimitConfig struct {
	Enabled   bool
	RedisAddr string
	RedisDB   int
	Password  string
	Rate      float64
	Burst     int64
	Prefix    string
}

// TelemetryConfig carries logging and OpenTelemetry export settings.
type TelemetryConfig struct {
	LogLevel         string
	LogFormat        string
	OtelEnabled      bool
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewInvoiceSettingsHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:        getenv("APP_SERVICE", "datalake"),
		AppVersion:     getenv("APP_VERSION", "0.1.0"),
		Environment:    getenv("ENVIRONMENT", "development"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		DataFile:       getenv("DATALAKE_DATA_FILE", "datalake.xml"),
		SaveOnShutdown: getenvBool("DATALAKE_SAVE_ON_SHUTDOWN", true),
		SnowflakeNode:  getenvInt64("SNOWFLAKE_NODE", 1),
		SettingsPath:   strings.TrimSpace(getenv("DATALAKE_SETTINGS_PATH", "")),
		Audit: AuditConfig{
			Enabled:         getenvBool("AUDIT_ENABLED", true),
			DBType:          strings.ToLower(getenv("AUDIT_DB_TYPE", "sqlite")),
			DSN:             getenv("AUDIT_DB_DSN", "datalake-audit.db"),
			MaxIdleConn:     int(getenvInt64("AUDIT_DB_MAX_IDLE_CONN", 2)),
			MaxOpenConn:     int(getenvInt64("AUDIT_DB_MAX_OPEN_CONN", 5)),
			ConnMaxLifetime: time.Duration(getenvInt64("AUDIT_DB_CONN_MAX_LIFETIME", 300)) * time.Second,
			SlowQuery:       time.Duration(getenvInt64("AUDIT_DB_SLOW_QUERY_MS", 200)) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled:   getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr: getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
			RedisDB:   int(getenvInt64("RATE_LIMIT_REDIS_DB", 0)),
			Password:  getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			Rate:      getenvFloat("RATE_LIMIT_UPLOADS_PER_SECOND", 1),
			Burst:     getenvInt64("RATE_LIMIT_UPLOAD_BURST", 5),
			Prefix:    getenv("RATE_LIMIT_PREFIX", "datalake:upload"),
		},
		Telemetry: loadTelemetry(),
	}
}

func loadTelemetry() TelemetryConfig {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return TelemetryConfig{
		LogLevel:         strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:        strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:      getenvBool("OTEL_ENABLED", false),
		ExporterEndpoint: strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		ExporterProtocol: strings.ToLower(strings.TrimSpace(protocol)),
		SamplingRatio:    getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
