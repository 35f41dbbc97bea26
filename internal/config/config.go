package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alextreichler/libreserve/internal/api"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = "3000"
	defaultRateLimitWindow = 2 * time.Second
)

type Config struct {
	Port            string
	APIBase         string
	CSRFKey         []byte
	SessionKey      []byte
	CookieDomain    string
	CookieSecure    bool
	RedisAddr       string
	RateLimitWindow time.Duration
	Location        *time.Location
	LogLevel        slog.Level
}

// fileConfig is the optional YAML layer. Environment variables win over it.
type fileConfig struct {
	Port            string `yaml:"port"`
	APIBase         string `yaml:"api_base"`
	CookieDomain    string `yaml:"cookie_domain"`
	CookieSecure    *bool  `yaml:"cookie_secure"`
	RedisAddr       string `yaml:"redis_addr"`
	RateLimitWindow string `yaml:"rate_limit_window"`
	Timezone        string `yaml:"timezone"`
	LogLevel        string `yaml:"log_level"`
}

func loadFile(path string) (*fileConfig, error) {
	fc := &fileConfig{}
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return fc, nil
}

func LoadConfig() (*Config, error) {
	fc, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	secureDefault := "false"
	if fc.CookieSecure != nil && *fc.CookieSecure {
		secureDefault = "true"
	}
	cfg := &Config{
		Port:         getEnv("PORT", or(fc.Port, defaultPort)),
		CookieDomain: getEnv("COOKIE_DOMAIN", fc.CookieDomain),
		CookieSecure: getEnv("COOKIE_SECURE", secureDefault) == "true",
		RedisAddr:    getEnv("REDIS_ADDR", fc.RedisAddr),
	}

	// The first non-empty base wins; LIBRARY_API_BASE before the legacy
	// public name, then the file, then the default.
	base := firstNonEmpty(os.Getenv("LIBRARY_API_BASE"), os.Getenv("NEXT_PUBLIC_LIBRARY_API_BASE"), fc.APIBase, api.DefaultBaseURL)
	cfg.APIBase = strings.TrimRight(base, "/")

	cfg.CSRFKey = loadKey("CSRF_KEY")
	cfg.SessionKey = loadKey("SESSION_KEY")

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		slog.Error("Invalid PORT environment variable. Falling back to default.", "PORT", cfg.Port)
		cfg.Port = defaultPort
	}

	window := getEnv("RATE_LIMIT_WINDOW", fc.RateLimitWindow)
	cfg.RateLimitWindow = defaultRateLimitWindow
	if window != "" {
		d, err := time.ParseDuration(window)
		if err != nil || d <= 0 {
			slog.Warn("Invalid RATE_LIMIT_WINDOW. Falling back to default.", "value", window, "default", defaultRateLimitWindow)
		} else {
			cfg.RateLimitWindow = d
		}
	}

	cfg.Location = time.Local
	if tz := getEnv("APP_TIMEZONE", fc.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", tz, err)
		}
		cfg.Location = loc
	}

	cfg.LogLevel = slog.LevelDebug
	if lvl := getEnv("LOG_LEVEL", fc.LogLevel); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", lvl, err)
		}
	}

	return cfg, nil
}

// loadKey reads a base64 key of at least 32 bytes, or generates a random
// one that will not survive a restart.
func loadKey(name string) []byte {
	raw := os.Getenv(name)
	if raw == "" {
		slog.Warn(name + " environment variable not set. Generating a random key for development. This key will change on each restart. PLEASE SET " + name + " IN PRODUCTION!")
		return generateRandomBytes(32)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(decoded) < 32 {
		slog.Warn(name + " is invalid or too short (min 32 bytes recommended). Generating a random key for development. PLEASE SET A SECURE " + name + " IN PRODUCTION!")
		return generateRandomBytes(32)
	}
	return decoded
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func or(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func generateRandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		slog.Error("Failed to read random bytes", "error", err)
		fallbackKey := "fallback-insecure-key-" + strconv.FormatInt(time.Now().UnixNano(), 10)
		padded := make([]byte, n)
		copy(padded, fallbackKey)
		return padded
	}
	return b
}
