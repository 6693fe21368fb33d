package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Replay   ReplayConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// ReplayConfig holds defaults for the historical-replay scheduler, mirrored
// into internal/replay.Config by cmd/dispatch's replay subcommand.
type ReplayConfig struct {
	MaxConcurrency    int
	RatePerSecond     float64
	Speedup           float64
	MinSimDuration    time.Duration
	ReconcileInterval time.Duration
}

// Load loads configuration from an optional YAML file (via viper) and
// environment variables, env vars always winning over the file. The file
// path comes from the DISPATCH_CONFIG env var or the --config CLI flag,
// resolved by the caller and passed as path; an empty path skips the file
// layer entirely.
func Load(path string) *Config {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		// A missing or unreadable file is not fatal: env vars and the
		// built-in defaults below still apply.
		_ = v.ReadInConfig()
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv(v, "server.port", "SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv(v, "server.read_timeout", "SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv(v, "server.write_timeout", "SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv(v, "database.host", "DB_HOST", "localhost"),
			Port:     getEnv(v, "database.port", "DB_PORT", "5432"),
			User:     getEnv(v, "database.user", "DB_USER", "postgres"),
			Password: getEnv(v, "database.password", "DB_PASSWORD", "postgres"),
			DBName:   getEnv(v, "database.name", "DB_NAME", "dispatchsim"),
			SSLMode:  getEnv(v, "database.sslmode", "DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv(v, "redis.addr", "REDIS_ADDR", "localhost:6379"),
			Password: getEnv(v, "redis.password", "REDIS_PASSWORD", ""),
			DB:       getIntEnv(v, "redis.db", "REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv(v, "newrelic.app_name", "NEW_RELIC_APP_NAME", "dispatch-sim"),
			LicenseKey: getEnv(v, "newrelic.license_key", "NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv(v, "newrelic.enabled", "NEW_RELIC_ENABLED", false),
		},
		Replay: ReplayConfig{
			MaxConcurrency:    getIntEnv(v, "replay.max_concurrency", "REPLAY_MAX_CONCURRENCY", 200),
			RatePerSecond:     getFloatEnv(v, "replay.rate_per_second", "REPLAY_RATE_PER_SECOND", 50),
			Speedup:           getFloatEnv(v, "replay.speedup", "REPLAY_SPEEDUP", 30),
			MinSimDuration:    getDurationEnv(v, "replay.min_sim_duration", "REPLAY_MIN_SIM_DURATION", 2*time.Second),
			ReconcileInterval: getDurationEnv(v, "replay.reconcile_interval", "REPLAY_RECONCILE_INTERVAL", 60*time.Second),
		},
	}
}

// getEnv resolves a setting with env-wins precedence over the viper-backed
// config file, falling back to defaultValue when neither is set.
func getEnv(v *viper.Viper, key, envKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	if value := v.GetString(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(v *viper.Viper, key, envKey string, defaultValue int) int {
	if value := os.Getenv(envKey); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return defaultValue
}

func getFloatEnv(v *viper.Viper, key, envKey string, defaultValue float64) float64 {
	if value := os.Getenv(envKey); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	if v.IsSet(key) {
		return v.GetFloat64(key)
	}
	return defaultValue
}

func getBoolEnv(v *viper.Viper, key, envKey string, defaultValue bool) bool {
	if value := os.Getenv(envKey); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return defaultValue
}

func getDurationEnv(v *viper.Viper, key, envKey string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envKey); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	if v.IsSet(key) {
		if duration, err := time.ParseDuration(v.GetString(key)); err == nil {
			return duration
		}
	}
	return defaultValue
}
