package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigLoad_UsesDefaults(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "")
	t.Setenv("MAX_LIFETIME_SECONDS", "")
	t.Setenv("MAX_CLICK_LIMIT", "")
	t.Setenv("CODE_PREFIX", "")
	t.Setenv("SNAPSHOT_BACKEND", "")

	cfg := Load()

	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout: got %v, want %v", cfg.ShutdownTimeout, 10*time.Second)
	}
	if cfg.MaxLifetimeSeconds != 3600 {
		t.Fatalf("MaxLifetimeSeconds: got %d, want %d", cfg.MaxLifetimeSeconds, 3600)
	}
	if cfg.MaxClickLimit != 10 {
		t.Fatalf("MaxClickLimit: got %d, want %d", cfg.MaxClickLimit, 10)
	}
	if cfg.CodePrefix != "krat.ko/" {
		t.Fatalf("CodePrefix: got %q, want %q", cfg.CodePrefix, "krat.ko/")
	}
	if cfg.SnapshotBackend != "file" {
		t.Fatalf("SnapshotBackend: got %q, want %q", cfg.SnapshotBackend, "file")
	}
}

func TestConfigLoad_ReadsEnv(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("MAX_LIFETIME_SECONDS", "60")
	t.Setenv("MAX_CLICK_LIMIT", "3")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SNAPSHOT_BACKEND", "Redis")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg := Load()

	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("ShutdownTimeout: got %v, want %v", cfg.ShutdownTimeout, 3*time.Second)
	}
	if cfg.MaxLifetimeSeconds != 60 {
		t.Fatalf("MaxLifetimeSeconds: got %d, want %d", cfg.MaxLifetimeSeconds, 60)
	}
	if cfg.MaxClickLimit != 3 {
		t.Fatalf("MaxClickLimit: got %d, want %d", cfg.MaxClickLimit, 3)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel: got %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.SnapshotBackend != "redis" {
		t.Fatalf("SnapshotBackend: got %q, want %q", cfg.SnapshotBackend, "redis")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("KafkaBrokers: got %v", cfg.KafkaBrokers)
	}
}

func TestConfigLoad_IgnoresNonPositiveLimits(t *testing.T) {
	t.Setenv("MAX_LIFETIME_SECONDS", "0")
	t.Setenv("MAX_CLICK_LIMIT", "-4")

	cfg := Load()

	if cfg.MaxLifetimeSeconds != 3600 {
		t.Fatalf("MaxLifetimeSeconds: got %d, want %d", cfg.MaxLifetimeSeconds, 3600)
	}
	if cfg.MaxClickLimit != 10 {
		t.Fatalf("MaxClickLimit: got %d, want %d", cfg.MaxClickLimit, 10)
	}
}

func TestEnsureFile_WritesDefaultsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	created, err := EnsureFile(path)
	if err != nil {
		t.Fatalf("EnsureFile: %v", err)
	}
	if !created {
		t.Fatal("EnsureFile: expected file to be created")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "MAX_CLICK_LIMIT=10") {
		t.Fatalf("file does not contain click limit default: %q", raw)
	}

	created, err = EnsureFile(path)
	if err != nil {
		t.Fatalf("EnsureFile (second): %v", err)
	}
	if created {
		t.Fatal("EnsureFile (second): must not overwrite existing file")
	}
}
