package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL   string        // BRIDGE_DATABASE_URL (required; postgres://… or sqlite://path)
	HTTPAddr      string        // BRIDGE_HTTP_ADDR (default ":8080")
	GRPCAddr      string        // BRIDGE_GRPC_ADDR (optional, empty = no gRPC health listener)
	WebhookSecret string        // BRIDGE_WEBHOOK_SECRET (required by serve)
	NATSURL       string        // BRIDGE_NATS_URL (optional, empty = no events)
	StatusMapPath string        // BRIDGE_STATUS_MAP (optional TOML file; empty = built-in table)
	LogLevel      string        // BRIDGE_LOG_LEVEL (default "info")
	SyncInterval  time.Duration // BRIDGE_SYNC_INTERVAL (default 1m; 0 = no in-process jobs)
	Lookback      time.Duration // BRIDGE_LOOKBACK (default 90s; must exceed SyncInterval)
	CreateBatch   int           // BRIDGE_CREATE_BATCH (default 100)
	HTTPTimeout   time.Duration // BRIDGE_HTTP_TIMEOUT (default 15s)

	// osTicket
	OSTBaseURL     string // BRIDGE_OST_BASE_URL (links in Kanboard descriptions)
	OSTDSN         string // BRIDGE_OST_DSN (MySQL DSN)
	OSTTablePrefix string // BRIDGE_OST_TABLE_PREFIX (default "ost_")
	OSTSyncField   string // BRIDGE_OST_SYNC_FIELD (default "kanboard_sync")
	OSTSyncYes     string // BRIDGE_OST_SYNC_YES (default `%"Yes"%`)
	OSTTaskField   string // BRIDGE_OST_TASK_FIELD (default "kanboard_task_id")

	// Kanboard
	KanboardURL            string  // BRIDGE_KANBOARD_URL (base URL, without /jsonrpc.php)
	KanboardToken          string  // BRIDGE_KANBOARD_TOKEN
	KanboardUser           string  // BRIDGE_KANBOARD_USER (default "jsonrpc")
	KanboardDefaultProject int64   // BRIDGE_KANBOARD_DEFAULT_PROJECT
	KanboardCommentUserID  int64   // BRIDGE_KANBOARD_COMMENT_USER_ID (0 = comments are skipped with a warning)
	KanboardRate           float64 // BRIDGE_KANBOARD_RATE (requests/s, default 10; 0 = unlimited)
	KanboardBurst          int     // BRIDGE_KANBOARD_BURST (default 5)

	// Export settings
	ExportInterval   time.Duration // BRIDGE_EXPORT_INTERVAL (default 0 = disabled)
	ExportS3Bucket   string        // BRIDGE_EXPORT_S3_BUCKET (enables S3 when set)
	ExportS3Endpoint string        // BRIDGE_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportS3Region   string        // BRIDGE_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Key      string        // BRIDGE_EXPORT_S3_KEY (default "bridge/export.jsonl")
	ExportGitRepo    string        // BRIDGE_EXPORT_GIT_REPO (enables git when set; path to clone)
	ExportGitFile    string        // BRIDGE_EXPORT_GIT_FILE (default "bridge.jsonl")
	ExportGitBranch  string        // BRIDGE_EXPORT_GIT_BRANCH (default "main")
	ExportEvents     int           // BRIDGE_EXPORT_EVENTS (default 500)
}

// Load reads the configuration from the environment. Only the store URL is
// required here; commands that talk to osTicket or Kanboard also call
// RequireBridge, and serve calls RequireWebhook.
func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("BRIDGE_DATABASE_URL"),
		HTTPAddr:       envOrDefault("BRIDGE_HTTP_ADDR", ":8080"),
		GRPCAddr:       os.Getenv("BRIDGE_GRPC_ADDR"),
		WebhookSecret:  os.Getenv("BRIDGE_WEBHOOK_SECRET"),
		NATSURL:        os.Getenv("BRIDGE_NATS_URL"),
		StatusMapPath:  os.Getenv("BRIDGE_STATUS_MAP"),
		LogLevel:       envOrDefault("BRIDGE_LOG_LEVEL", "info"),
		OSTBaseURL:     os.Getenv("BRIDGE_OST_BASE_URL"),
		OSTDSN:         os.Getenv("BRIDGE_OST_DSN"),
		OSTTablePrefix: envOrDefault("BRIDGE_OST_TABLE_PREFIX", "ost_"),
		OSTSyncField:   envOrDefault("BRIDGE_OST_SYNC_FIELD", "kanboard_sync"),
		OSTSyncYes:     envOrDefault("BRIDGE_OST_SYNC_YES", `%"Yes"%`),
		OSTTaskField:   envOrDefault("BRIDGE_OST_TASK_FIELD", "kanboard_task_id"),
		KanboardURL:    os.Getenv("BRIDGE_KANBOARD_URL"),
		KanboardToken:  os.Getenv("BRIDGE_KANBOARD_TOKEN"),
		KanboardUser:   envOrDefault("BRIDGE_KANBOARD_USER", "jsonrpc"),

		ExportS3Bucket:   os.Getenv("BRIDGE_EXPORT_S3_BUCKET"),
		ExportS3Endpoint: os.Getenv("BRIDGE_EXPORT_S3_ENDPOINT"),
		ExportS3Region:   envOrDefault("BRIDGE_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Key:      envOrDefault("BRIDGE_EXPORT_S3_KEY", "bridge/export.jsonl"),
		ExportGitRepo:    os.Getenv("BRIDGE_EXPORT_GIT_REPO"),
		ExportGitFile:    envOrDefault("BRIDGE_EXPORT_GIT_FILE", "bridge.jsonl"),
		ExportGitBranch:  envOrDefault("BRIDGE_EXPORT_GIT_BRANCH", "main"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("BRIDGE_DATABASE_URL is required")
	}

	var err error
	if c.SyncInterval, err = envDuration("BRIDGE_SYNC_INTERVAL", "1m"); err != nil {
		return nil, err
	}
	if c.Lookback, err = envDuration("BRIDGE_LOOKBACK", "90s"); err != nil {
		return nil, err
	}
	if c.HTTPTimeout, err = envDuration("BRIDGE_HTTP_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if c.ExportInterval, err = envDuration("BRIDGE_EXPORT_INTERVAL", "0"); err != nil {
		return nil, err
	}
	if c.CreateBatch, err = envInt("BRIDGE_CREATE_BATCH", 100); err != nil {
		return nil, err
	}
	if c.ExportEvents, err = envInt("BRIDGE_EXPORT_EVENTS", 500); err != nil {
		return nil, err
	}
	if c.KanboardBurst, err = envInt("BRIDGE_KANBOARD_BURST", 5); err != nil {
		return nil, err
	}
	if c.KanboardDefaultProject, err = envInt64("BRIDGE_KANBOARD_DEFAULT_PROJECT"); err != nil {
		return nil, err
	}
	if c.KanboardCommentUserID, err = envInt64("BRIDGE_KANBOARD_COMMENT_USER_ID"); err != nil {
		return nil, err
	}
	if c.KanboardRate, err = envFloat("BRIDGE_KANBOARD_RATE", 10); err != nil {
		return nil, err
	}

	if c.Lookback <= 0 {
		return nil, fmt.Errorf("BRIDGE_LOOKBACK: must be positive")
	}
	if c.SyncInterval > 0 && c.Lookback <= c.SyncInterval {
		return nil, fmt.Errorf("BRIDGE_LOOKBACK: %s must exceed BRIDGE_SYNC_INTERVAL %s", c.Lookback, c.SyncInterval)
	}
	if c.CreateBatch <= 0 {
		return nil, fmt.Errorf("BRIDGE_CREATE_BATCH: must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("BRIDGE_HTTP_TIMEOUT: must be positive")
	}
	if c.KanboardRate < 0 {
		return nil, fmt.Errorf("BRIDGE_KANBOARD_RATE: must not be negative")
	}

	return c, nil
}

// RequireBridge checks the settings needed to talk to osTicket and Kanboard.
func (c *Config) RequireBridge() error {
	var errs []error
	if c.OSTDSN == "" {
		errs = append(errs, errors.New("BRIDGE_OST_DSN is required"))
	}
	if c.KanboardURL == "" {
		errs = append(errs, errors.New("BRIDGE_KANBOARD_URL is required"))
	}
	if c.KanboardToken == "" {
		errs = append(errs, errors.New("BRIDGE_KANBOARD_TOKEN is required"))
	}
	if c.KanboardDefaultProject <= 0 {
		errs = append(errs, errors.New("BRIDGE_KANBOARD_DEFAULT_PROJECT is required"))
	}
	return errors.Join(errs...)
}

// RequireWebhook checks the settings needed to accept webhook deliveries.
func (c *Config) RequireWebhook() error {
	if c.WebhookSecret == "" {
		return errors.New("BRIDGE_WEBHOOK_SECRET is required")
	}
	return nil
}

// ExportEnabled reports whether any export destination is configured.
func (c *Config) ExportEnabled() bool {
	return c.ExportS3Bucket != "" || c.ExportGitRepo != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	if s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envInt64(key string) (int64, error) {
	s := os.Getenv(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
