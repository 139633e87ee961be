package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Clock      ClockConfig
	Ledger     LedgerConfig
	Attendance AttendanceConfig
	Flags      FlagsConfig
	Drift      DriftConfig
	Storage    StorageConfig
	Exports    ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to validate tokens issued by the
// identity platform. This service never mints tokens of its own.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ClockConfig tunes drift classification and blocking. Thresholds are
// absolute drift magnitudes; classification and blocking are separate axes.
type ClockConfig struct {
	DriftInfoThreshold  time.Duration
	DriftWarnThreshold  time.Duration
	DriftBlockThreshold time.Duration
}

// LedgerConfig governs the periodic checksum sweep. A zero interval
// disables the sweeper.
type LedgerConfig struct {
	SweepInterval  time.Duration
	SweepBatchSize int
}

// AttendanceConfig optionally overrides the built-in transition table with
// "FROM>TO" pairs, comma separated. Blank keeps the default policy.
type AttendanceConfig struct {
	TransitionOverrides string
}

// FlagsConfig tunes the open-flag dashboard cache.
type FlagsConfig struct {
	CacheTTL time.Duration
}

// DriftConfig sizes the asynchronous drift-event pipeline and its
// statistics cache.
type DriftConfig struct {
	StatsCacheTTL time.Duration
	QueueWorkers  int
	QueueBuffer   int
}

// StorageConfig bounds every store round-trip.
type StorageConfig struct {
	Timeout time.Duration
}

// ExportsConfig governs rendered audit-trail artifacts: where they live on
// disk, how download links are signed, and how long both are kept.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Clock = ClockConfig{
		DriftInfoThreshold:  parseDuration(v.GetString("CLOCK_DRIFT_INFO_THRESHOLD"), 5*time.Second),
		DriftWarnThreshold:  parseDuration(v.GetString("CLOCK_DRIFT_WARN_THRESHOLD"), 60*time.Second),
		DriftBlockThreshold: parseDuration(v.GetString("CLOCK_DRIFT_BLOCK_THRESHOLD"), 300*time.Second),
	}

	cfg.Ledger = LedgerConfig{
		SweepInterval:  parseDuration(v.GetString("LEDGER_SWEEP_INTERVAL"), time.Hour),
		SweepBatchSize: v.GetInt("LEDGER_SWEEP_BATCH"),
	}

	cfg.Attendance = AttendanceConfig{
		TransitionOverrides: v.GetString("ATTENDANCE_TRANSITIONS"),
	}

	cfg.Flags = FlagsConfig{
		CacheTTL: parseDuration(v.GetString("FLAG_CACHE_TTL"), 30*time.Second),
	}

	cfg.Drift = DriftConfig{
		StatsCacheTTL: parseDuration(v.GetString("DRIFT_STATS_CACHE_TTL"), 5*time.Minute),
		QueueWorkers:  v.GetInt("DRIFT_QUEUE_WORKERS"),
		QueueBuffer:   v.GetInt("DRIFT_QUEUE_BUFFER"),
	}

	cfg.Storage = StorageConfig{
		Timeout: parseDuration(v.GetString("STORAGE_TIMEOUT"), 5*time.Second),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORT_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORT_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORT_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORT_CLEANUP_INTERVAL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "smartattend_integrity")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CLOCK_DRIFT_INFO_THRESHOLD", "5s")
	v.SetDefault("CLOCK_DRIFT_WARN_THRESHOLD", "60s")
	v.SetDefault("CLOCK_DRIFT_BLOCK_THRESHOLD", "300s")

	v.SetDefault("LEDGER_SWEEP_INTERVAL", "1h")
	v.SetDefault("LEDGER_SWEEP_BATCH", 500)

	v.SetDefault("ATTENDANCE_TRANSITIONS", "")

	v.SetDefault("FLAG_CACHE_TTL", "30s")

	v.SetDefault("DRIFT_STATS_CACHE_TTL", "5m")
	v.SetDefault("DRIFT_QUEUE_WORKERS", 2)
	v.SetDefault("DRIFT_QUEUE_BUFFER", 256)

	v.SetDefault("STORAGE_TIMEOUT", "5s")

	v.SetDefault("EXPORT_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORT_SIGNED_URL_SECRET", "dev_export_secret")
	v.SetDefault("EXPORT_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORT_CLEANUP_INTERVAL", "1h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
