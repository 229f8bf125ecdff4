package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAccessTTL  = 192 * time.Hour // 8 days
	defaultRefreshTTL = 720 * time.Hour // 30 days
)

// Config carries every runtime setting the service reads from the environment.
type Config struct {
	HTTPAddr string
	GRPCAddr string // empty disables the gRPC health listener

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret  string
	Issuer      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	IdleTimeout time.Duration // zero disables idle enforcement

	LoginRateBurst     int
	LoginRatePerMinute int

	Version string
}

// Load reads configuration from the environment. Values are not validated
// here; call Validate before serving.
func Load() *Config {
	return &Config{
		HTTPAddr:    getenv("SCHOOLCORE_HTTP_ADDR", ":8080"),
		GRPCAddr:    getenv("SCHOOLCORE_GRPC_ADDR", ""),
		PostgresDSN: getenv("SCHOOLCORE_PG_DSN", ""),

		RedisAddr:     getenv("SCHOOLCORE_REDIS_ADDR", ""),
		RedisPassword: getenv("SCHOOLCORE_REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("SCHOOLCORE_REDIS_DB", 0),

		AuthSecret:  os.Getenv("SCHOOLCORE_AUTH_SECRET"),
		Issuer:      getenv("SCHOOLCORE_ISSUER", "schoolcore"),
		AccessTTL:   getenvDuration("SCHOOLCORE_ACCESS_TTL", defaultAccessTTL),
		RefreshTTL:  getenvDuration("SCHOOLCORE_REFRESH_TTL", defaultRefreshTTL),
		IdleTimeout: time.Duration(getenvInt("SCHOOLCORE_IDLE_TIMEOUT_MIN", 0)) * time.Minute,

		LoginRateBurst:     getenvInt("SCHOOLCORE_LOGIN_RATE_BURST", 5),
		LoginRatePerMinute: getenvInt("SCHOOLCORE_LOGIN_RATE_PER_MINUTE", 10),

		Version: getenv("SCHOOLCORE_VERSION", "0.1.0"),
	}
}

// Validate rejects configurations the service must not start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return errors.New("config: SCHOOLCORE_AUTH_SECRET is required")
	}
	if c.AccessTTL <= 0 {
		return errors.New("config: access token TTL must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return errors.New("config: refresh token TTL must exceed access token TTL")
	}
	if c.IdleTimeout < 0 {
		return errors.New("config: idle timeout must not be negative")
	}
	if c.LoginRateBurst <= 0 || c.LoginRatePerMinute <= 0 {
		return errors.New("config: login rate limits must be positive")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Plain integers are read as hours, matching the deployment manifests.
		if n, convErr := strconv.Atoi(v); convErr == nil {
			return time.Duration(n) * time.Hour
		}
		fmt.Fprintf(os.Stderr, "config: ignoring invalid duration %s=%q\n", key, v)
		return def
	}
	return d
}
