package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `http:
  port: 8086
database:
  driver: redis
  addrs:
    - "${TEST_REDIS_ADDR:-localhost:6379}"
  password: "${TEST_REDIS_PASSWORD:-}"
embedding:
  provider: nebius
  model: BAAI/bge-m3
  dimensions: 1024
categories:
  - name: dat_dai
    display_name: "Đất đai"
    document_urls:
      - "https://example.com/luat-dat-dai.html"
    schedule: daily
    time: "02:00"
    active: true
`

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "test.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
}

func TestLoad(t *testing.T) {
	writeConfig(t, sampleConfig)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 8086 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if cfg.Database.Addrs[0] != "localhost:6379" {
		t.Errorf("default not applied: %q", cfg.Database.Addrs[0])
	}
	if len(cfg.Categories) != 1 || cfg.Categories[0].Name != "dat_dai" {
		t.Errorf("categories = %+v", cfg.Categories)
	}

	// Defaults
	if cfg.Worker.MaxRetries != 3 {
		t.Errorf("worker.max_retries default = %d", cfg.Worker.MaxRetries)
	}
	if cfg.Pipeline.MaxChunkChars != 380 {
		t.Errorf("pipeline.max_chunk_chars default = %d", cfg.Pipeline.MaxChunkChars)
	}
	if cfg.Fetcher.MinDelaySec != 2 {
		t.Errorf("fetcher.min_delay_sec default = %d", cfg.Fetcher.MinDelaySec)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	writeConfig(t, sampleConfig)
	t.Setenv("TEST_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Addrs[0] != "redis.internal:6380" {
		t.Errorf("env override not applied: %q", cfg.Database.Addrs[0])
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	writeConfig(t, strings.Replace(sampleConfig, "port: 8086", "port: 0", 1))
	if _, err := Load("test"); err == nil {
		t.Error("expected error for port 0")
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	writeConfig(t, strings.Replace(sampleConfig, "driver: redis", "driver: mssql", 1))
	if _, err := Load("test"); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestValidateRejectsDuplicateCategory(t *testing.T) {
	dup := sampleConfig + `  - name: dat_dai
    schedule: daily
    active: true
`
	writeConfig(t, dup)
	if _, err := Load("test"); err == nil {
		t.Error("expected error for duplicate category")
	}
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	writeConfig(t, strings.Replace(sampleConfig, "schedule: daily", "schedule: hourly", 1))
	if _, err := Load("test"); err == nil {
		t.Error("expected error for unknown schedule")
	}
}

func TestValidateRequiresEmbeddingModel(t *testing.T) {
	writeConfig(t, strings.Replace(sampleConfig, "model: BAAI/bge-m3", "model: \"\"", 1))
	if _, err := Load("test"); err == nil {
		t.Error("expected error for missing embedding model")
	}
}

func TestMemoryDriverNeedsNoAddrs(t *testing.T) {
	cfg := strings.Replace(sampleConfig, "driver: redis", "driver: memory", 1)
	cfg = strings.Replace(cfg, "  addrs:\n    - \"${TEST_REDIS_ADDR:-localhost:6379}\"\n", "", 1)
	writeConfig(t, cfg)
	if _, err := Load("test"); err != nil {
		t.Errorf("Load with memory driver: %v", err)
	}
}
