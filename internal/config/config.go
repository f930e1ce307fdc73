package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Stream transport names accepted by RA_STREAM_TRANSPORT
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
	TransportNone      = "none"
)

// Config holds all configuration for the daemon
type Config struct {
	// Upstream
	APIBaseURL     string
	UserAgent      string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	Location       *time.Location

	// Live stream and polling
	StreamTransport      string
	StreamReconnectDelay time.Duration
	PollInterval         time.Duration
	DedupTTL             time.Duration
	FreshnessWindow      time.Duration
	MonitoredAreas       []string

	// History
	DatabaseURL   string
	RetentionDays int

	// Redis (dedup + pub/sub), optional
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	// MQTT notifier, optional
	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	// Slack notifier, optional
	SlackBotToken string
	SlackChannel  string

	// Local feed server
	HTTPPort    int
	CORSOrigins []string

	// Authentication
	AdminUsername  string
	AdminPassword  string
	JWTSecret      string
	JWTExpiryHours int
	// JWTSecretSource says where JWTSecret came from: env, file or generated
	JWTSecretSource string

	// Logging
	LogLevel  string
	LogFormat string
}

// areasFile is the layout of RA_AREAS_FILE
type areasFile struct {
	Areas []string `yaml:"areas"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = strings.TrimRight(getEnvOrDefault("RA_API_BASE_URL", "https://agg.rocketalert.live/api"), "/")
	cfg.UserAgent = os.Getenv("RA_USER_AGENT")
	cfg.RequestTimeout = getEnvAsDurationOrDefault("RA_REQUEST_TIMEOUT", 30*time.Second)
	cfg.RateLimitRPS = getEnvAsFloatOrDefault("RA_RATE_LIMIT_RPS", 2)
	cfg.RateLimitBurst = getEnvAsIntOrDefault("RA_RATE_LIMIT_BURST", 5)
	cfg.Location = loadLocation(getEnvOrDefault("RA_TIMEZONE", "Asia/Jerusalem"))

	cfg.StreamTransport = strings.ToLower(getEnvOrDefault("RA_STREAM_TRANSPORT", TransportSSE))
	switch cfg.StreamTransport {
	case TransportSSE, TransportWebSocket, TransportNone:
	default:
		return nil, fmt.Errorf("invalid RA_STREAM_TRANSPORT %q: want sse, websocket or none", cfg.StreamTransport)
	}
	cfg.StreamReconnectDelay = getEnvAsDurationOrDefault("RA_STREAM_RECONNECT_DELAY", 5*time.Second)
	cfg.PollInterval = getEnvAsDurationOrDefault("RA_POLL_INTERVAL", 3*time.Second)
	cfg.DedupTTL = getEnvAsDurationOrDefault("RA_DEDUP_TTL", 10*time.Minute)
	cfg.FreshnessWindow = getEnvAsDurationOrDefault("RA_FRESHNESS_WINDOW", 5*time.Minute)
	if cfg.DedupTTL < cfg.FreshnessWindow {
		return nil, fmt.Errorf("RA_DEDUP_TTL (%s) must be at least RA_FRESHNESS_WINDOW (%s)", cfg.DedupTTL, cfg.FreshnessWindow)
	}

	areas := getEnvAsList("RA_MONITORED_AREAS")
	if path := os.Getenv("RA_AREAS_FILE"); path != "" {
		fromFile, err := loadAreasFile(path)
		if err != nil {
			return nil, err
		}
		areas = append(areas, fromFile...)
	}
	cfg.MonitoredAreas = areas

	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", "sqlite://redalert.db")
	cfg.RetentionDays = getEnvAsIntOrDefault("RA_RETENTION_DAYS", 30)

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvAsIntOrDefault("REDIS_DB", 0)
	cfg.RedisChannel = getEnvOrDefault("REDIS_CHANNEL", "redalert:alerts")

	cfg.MQTTBroker = os.Getenv("MQTT_BROKER")
	cfg.MQTTClientID = getEnvOrDefault("MQTT_CLIENT_ID", "redalert")
	cfg.MQTTTopic = getEnvOrDefault("MQTT_TOPIC", "redalert/alerts")

	cfg.SlackBotToken = os.Getenv("SLACK_BOT_TOKEN")
	cfg.SlackChannel = os.Getenv("SLACK_CHANNEL")

	cfg.HTTPPort = getEnvAsIntOrDefault("HTTP_PORT", 8765)
	cfg.CORSOrigins = getEnvAsList("RA_CORS_ORIGINS")

	cfg.AdminUsername = getEnvOrDefault("ADMIN_USERNAME", "admin")
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD") // empty disables auth
	cfg.JWTExpiryHours = getEnvAsIntOrDefault("JWT_EXPIRY_HOURS", 24)
	dataDir := getEnvOrDefault("RA_DATA_DIR", "data")
	cfg.JWTSecret, cfg.JWTSecretSource = loadOrGenerateJWTSecret(filepath.Join(dataDir, ".jwt_secret"))

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", "json")

	return cfg, nil
}

// AuthEnabled reports whether the feed server requires a login
func (c *Config) AuthEnabled() bool {
	return c.AdminPassword != ""
}

// loadAreasFile reads the monitored area list from YAML
func loadAreasFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read areas file: %w", err)
	}
	var f areasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse areas file %s: %w", path, err)
	}
	out := make([]string, 0, len(f.Areas))
	for _, a := range f.Areas {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out, nil
}

// loadLocation falls back to UTC for unknown zones
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// loadOrGenerateJWTSecret loads JWT secret from env or file, or generates and
// persists a new one. The second result names the source.
func loadOrGenerateJWTSecret(secretPath string) (string, string) {
	if envSecret := os.Getenv("JWT_SECRET"); envSecret != "" {
		return envSecret, "env"
	}

	if data, err := os.ReadFile(secretPath); err == nil {
		secret := strings.TrimSpace(string(data))
		if secret != "" {
			return secret, "file"
		}
	}

	secret := generateSecureSecret(32) // 256 bits

	if err := os.MkdirAll(filepath.Dir(secretPath), 0755); err != nil {
		return secret, "generated"
	}
	if err := os.WriteFile(secretPath, []byte(secret), 0600); err != nil {
		return secret, "generated"
	}
	return secret, "generated+saved"
}

// generateSecureSecret generates a cryptographically secure random string
func generateSecureSecret(bytes int) string {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "fallback-insecure-secret-please-set-jwt-secret-env"
	}
	return hex.EncodeToString(b)
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault returns the value of an environment variable as an integer or a default value
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault accepts Go durations ("3s") or bare seconds ("3")
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
