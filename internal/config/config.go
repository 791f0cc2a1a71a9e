package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string   // CAFETRACE_DATABASE_URL (required)
	GRPCAddr    string   // CAFETRACE_GRPC_ADDR (default ":9090")
	HTTPAddr    string   // CAFETRACE_HTTP_ADDR (default ":8080")
	NATSURL     string   // CAFETRACE_NATS_URL (optional, empty = no events)
	AuthToken   string   // CAFETRACE_AUTH_TOKEN (optional, empty = auth disabled)
	AdminActors []string // CAFETRACE_ADMIN_ACTORS (comma-separated privileged actor ids)

	// Append settings
	AppendMaxAttempts int           // CAFETRACE_APPEND_MAX_ATTEMPTS (default 5)
	AppendBackoff     time.Duration // CAFETRACE_APPEND_BACKOFF (default 10ms)

	VerifyInterval time.Duration // CAFETRACE_VERIFY_INTERVAL (default 0 = disabled)

	HooksFile    string        // CAFETRACE_HOOKS_FILE (optional TOML hook definitions; needs NATS)
	PresenceIdle time.Duration // CAFETRACE_PRESENCE_IDLE (default 30m; 0 = roster disabled)

	// Archive settings
	ArchiveInterval   time.Duration // CAFETRACE_ARCHIVE_INTERVAL (default 1h; 0 = disabled)
	ArchiveS3Bucket   string        // CAFETRACE_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // CAFETRACE_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // CAFETRACE_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Key      string        // CAFETRACE_ARCHIVE_S3_KEY (default "cafetrace/ledger.jsonl")
	ArchiveGitRepo    string        // CAFETRACE_ARCHIVE_GIT_REPO (enables git when set; path to clone)
	ArchiveGitFile    string        // CAFETRACE_ARCHIVE_GIT_FILE (default "ledger.jsonl")
	ArchiveGitBranch  string        // CAFETRACE_ARCHIVE_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       os.Getenv("CAFETRACE_DATABASE_URL"),
		GRPCAddr:          envOrDefault("CAFETRACE_GRPC_ADDR", ":9090"),
		HTTPAddr:          envOrDefault("CAFETRACE_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("CAFETRACE_NATS_URL"),
		AuthToken:         os.Getenv("CAFETRACE_AUTH_TOKEN"),
		AdminActors:       splitList(os.Getenv("CAFETRACE_ADMIN_ACTORS")),
		HooksFile:         os.Getenv("CAFETRACE_HOOKS_FILE"),
		ArchiveS3Bucket:   os.Getenv("CAFETRACE_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("CAFETRACE_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("CAFETRACE_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Key:      envOrDefault("CAFETRACE_ARCHIVE_S3_KEY", "cafetrace/ledger.jsonl"),
		ArchiveGitRepo:    os.Getenv("CAFETRACE_ARCHIVE_GIT_REPO"),
		ArchiveGitFile:    envOrDefault("CAFETRACE_ARCHIVE_GIT_FILE", "ledger.jsonl"),
		ArchiveGitBranch:  envOrDefault("CAFETRACE_ARCHIVE_GIT_BRANCH", "main"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("CAFETRACE_DATABASE_URL is required")
	}

	attempts, err := strconv.Atoi(envOrDefault("CAFETRACE_APPEND_MAX_ATTEMPTS", "5"))
	if err != nil {
		return nil, fmt.Errorf("CAFETRACE_APPEND_MAX_ATTEMPTS: %w", err)
	}
	if attempts < 1 {
		return nil, fmt.Errorf("CAFETRACE_APPEND_MAX_ATTEMPTS must be at least 1, got %d", attempts)
	}
	c.AppendMaxAttempts = attempts

	for _, d := range []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"CAFETRACE_APPEND_BACKOFF", "10ms", &c.AppendBackoff},
		{"CAFETRACE_VERIFY_INTERVAL", "0", &c.VerifyInterval},
		{"CAFETRACE_PRESENCE_IDLE", "30m", &c.PresenceIdle},
		{"CAFETRACE_ARCHIVE_INTERVAL", "1h", &c.ArchiveInterval},
	} {
		v, err := time.ParseDuration(envOrDefault(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("%s must not be negative, got %s", d.key, v)
		}
		*d.dst = v
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
