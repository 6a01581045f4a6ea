package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile      string
	AdminAddr   string
	APIAddr     string
	BaseURL     string
	UploadsPath string

	TokenExpiry   time.Duration
	PermissionTTL time.Duration

	LogFormat string
	LogLevel  string

	// UseRealName shows display names instead of usernames in titles.
	UseRealName  bool
	JitsiBaseURL string

	// FeedBuffer is the per-subscriber buffer of room change feeds.
	FeedBuffer int
	// RoleConcurrency limits concurrent role lookups per view, 0 is unlimited.
	RoleConcurrency int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load(cliMode bool) (*Config, error) {
	_ = godotenv.Load()

	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_EXPIRY: %w", err)
	}
	permissionTTL, err := time.ParseDuration(getEnv("PERMISSION_TTL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("PERMISSION_TTL: %w", err)
	}
	useRealName, err := strconv.ParseBool(getEnv("USE_REAL_NAME", "false"))
	if err != nil {
		return nil, fmt.Errorf("USE_REAL_NAME: %w", err)
	}
	feedBuffer, err := strconv.Atoi(getEnv("FEED_BUFFER", "8"))
	if err != nil {
		return nil, fmt.Errorf("FEED_BUFFER: %w", err)
	}
	roleConcurrency, err := strconv.Atoi(getEnv("ROLE_CONCURRENCY", "4"))
	if err != nil {
		return nil, fmt.Errorf("ROLE_CONCURRENCY: %w", err)
	}

	cfg := &Config{
		DBFile:          getEnv("ROOMINFO_DB", "roominfo.db"),
		AdminAddr:       getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		UploadsPath:     getEnv("UPLOADS_PATH", "uploads"),
		TokenExpiry:     tokenExpiry,
		PermissionTTL:   permissionTTL,
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		UseRealName:     useRealName,
		JitsiBaseURL:    strings.TrimSuffix(getEnv("JITSI_BASE_URL", "https://meet.jit.si"), "/"),
		FeedBuffer:      feedBuffer,
		RoleConcurrency: roleConcurrency,
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AdminAddr == "" {
		return fmt.Errorf("ADMIN_ADDR is required")
	}
	if cliMode {
		return nil
	}

	if c.DBFile == "" {
		return fmt.Errorf("ROOMINFO_DB is required")
	}
	if c.APIAddr == "" {
		return fmt.Errorf("API_ADDR is required")
	}
	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}
	if c.PermissionTTL <= 0 {
		return fmt.Errorf("PERMISSION_TTL must be greater than 0")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.FeedBuffer < 1 {
		return fmt.Errorf("FEED_BUFFER must be at least 1")
	}
	if c.RoleConcurrency < 0 {
		return fmt.Errorf("ROLE_CONCURRENCY must not be negative")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
