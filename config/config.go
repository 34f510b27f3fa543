package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from environment
// variables or a .env file.
//
// It is composed of smaller structs that represent different concerns of the
// system: HTTP server settings, the upstream DSE endpoint, and cache policy.
//
// Example YAML/ENV equivalent:
//
//	SERVER_PORT=8080
//	DSE_BASE_URL=https://www.dsebd.org
//	FETCH_TIMEOUT_SECONDS=5
//	FETCH_MAX_RETRIES=3
//	FETCH_RATE_LIMIT=4
//	CACHE_TTL_SECONDS=60
//	HISTORICAL_CACHE_TTL_HOURS=24
//	WARMUP=false
type Config struct {
	Server   ServerConfig   // HTTP server configuration
	Upstream UpstreamConfig // DSE upstream endpoint settings
	Cache    CacheConfig    // Snapshot cache policy
}

// ServerConfig holds HTTP server settings such as the port to listen on.
type ServerConfig struct {
	Port   string // The TCP port the HTTP server will listen on (e.g., "8080")
	Warmup bool   // Prefetch live sources into the cache on startup
}

// UpstreamConfig defines how the fetcher talks to dsebd.org.
//
// Fields:
//   - BaseURL: scheme+host of the upstream site.
//   - Timeout: per-request deadline; the fetch is abandoned when it expires.
//   - MaxRetries: retry attempts for transient failures (5xx, connection reset).
//   - RateLimit: maximum requests per second against the upstream.
type UpstreamConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RateLimit  int
}

// CacheConfig controls snapshot expiry per source class.
//
// Live pages change continuously and get a short TTL; historical archives are
// keyed by exact date range and past dates never change, so they keep a much
// longer one.
type CacheConfig struct {
	LiveTTL       time.Duration
	HistoricalTTL time.Duration
}

// AppConfig is the globally accessible configuration instance.
//
// It is populated once via LoadConfig() and used throughout the application.
// All services should import this package and read from AppConfig instead of
// reloading environment variables directly.
var AppConfig Config

// LoadConfig initializes the global AppConfig by reading from a .env file
// or directly from environment variables.
//
// Precedence (from lowest to highest):
//  1. Defaults set in this function.
//  2. Values from .env file (if present).
//  3. Environment variables.
//
// Fatal exit:
//   - If required variables are missing or out of range, validateConfig()
//     terminates the app with a descriptive log message.
func LoadConfig() {
	// Default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("WARMUP", false)

	viper.SetDefault("DSE_BASE_URL", "https://www.dsebd.org")
	viper.SetDefault("FETCH_TIMEOUT_SECONDS", 5)
	viper.SetDefault("FETCH_MAX_RETRIES", 3)
	viper.SetDefault("FETCH_RATE_LIMIT", 4)

	viper.SetDefault("CACHE_TTL_SECONDS", 60)
	viper.SetDefault("HISTORICAL_CACHE_TTL_HOURS", 24)

	// Optionally read from .env if present (common in local dev)
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig() // ignore error if no .env

	// Read environment variables automatically
	viper.AutomaticEnv()

	// Populate global config instance
	AppConfig = Config{
		Server: ServerConfig{
			Port:   viper.GetString("SERVER_PORT"),
			Warmup: viper.GetBool("WARMUP"),
		},
		Upstream: UpstreamConfig{
			BaseURL:    strings.TrimRight(viper.GetString("DSE_BASE_URL"), "/"),
			Timeout:    time.Duration(viper.GetInt("FETCH_TIMEOUT_SECONDS")) * time.Second,
			MaxRetries: viper.GetInt("FETCH_MAX_RETRIES"),
			RateLimit:  viper.GetInt("FETCH_RATE_LIMIT"),
		},
		Cache: CacheConfig{
			LiveTTL:       time.Duration(viper.GetInt("CACHE_TTL_SECONDS")) * time.Second,
			HistoricalTTL: time.Duration(viper.GetInt("HISTORICAL_CACHE_TTL_HOURS")) * time.Hour,
		},
	}

	// Validate critical fields
	validateConfig()
}

// validateConfig ensures required variables are present and sane, and
// terminates the application if they are not.
//
// This avoids unexpected runtime failures due to incomplete configuration.
func validateConfig() {
	var missing []string

	if AppConfig.Server.Port == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if AppConfig.Upstream.BaseURL == "" {
		missing = append(missing, "DSE_BASE_URL")
	}
	if AppConfig.Upstream.Timeout <= 0 {
		missing = append(missing, "FETCH_TIMEOUT_SECONDS")
	}
	if AppConfig.Upstream.MaxRetries < 0 {
		missing = append(missing, "FETCH_MAX_RETRIES")
	}
	if AppConfig.Upstream.RateLimit <= 0 {
		missing = append(missing, "FETCH_RATE_LIMIT")
	}
	if AppConfig.Cache.LiveTTL <= 0 {
		missing = append(missing, "CACHE_TTL_SECONDS")
	}
	if AppConfig.Cache.HistoricalTTL <= 0 {
		missing = append(missing, "HISTORICAL_CACHE_TTL_HOURS")
	}

	if len(missing) > 0 {
		log.Fatalf("missing or invalid environment variables: %v\n", missing)
	}
}
