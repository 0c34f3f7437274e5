package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
extraction:
  workers: 3
  catalogPath: /data/sen_full_list.json
enrichment:
  collection: sbills
  batchSize: 4
  minDelay: 1s
  maxDelay: 3s
  checkpoint:
    backend: postgres
chambers:
  - name: senate
    scanner: parliament
    listUrl: http://example.org/senate/bills
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(chatGPTAPIKeyEnv, "sk-test")
	t.Setenv(databaseDSNEnv, "postgres://env/bills")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Extraction.Workers != 3 {
		t.Fatalf("expected 3 workers, got %d", cfg.Extraction.Workers)
	}
	if cfg.Extraction.ProcessedPath != "data/processed_list.json" {
		t.Fatalf("default processed path lost: %s", cfg.Extraction.ProcessedPath)
	}
	if cfg.Enrichment.Collection != "sbills" || cfg.Enrichment.BatchSize != 4 {
		t.Fatalf("unexpected enrichment config: %+v", cfg.Enrichment)
	}
	if cfg.Enrichment.MinDelay != time.Second || cfg.Enrichment.MaxDelay != 3*time.Second {
		t.Fatalf("unexpected delays: %s..%s", cfg.Enrichment.MinDelay, cfg.Enrichment.MaxDelay)
	}
	if cfg.Enrichment.Checkpoint.Backend != CheckpointPostgres {
		t.Fatalf("unexpected checkpoint backend: %s", cfg.Enrichment.Checkpoint.Backend)
	}
	if len(cfg.Chambers) != 1 || cfg.Chambers[0].Name != "senate" {
		t.Fatalf("unexpected chambers: %+v", cfg.Chambers)
	}
	if cfg.ChatGPT.APIKey != "sk-test" || cfg.Database.DSN != "postgres://env/bills" {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.ChatGPT, cfg.Database)
	}
	if cfg.Scheduler.Location() == nil {
		t.Fatal("scheduler location not bound")
	}
}

func TestLoadMissingFileIsFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.example.yaml"))
	if err != nil {
		t.Fatalf("example config: %v", err)
	}
	if cfg.Scrape.PageInterval != 2*time.Second || cfg.Enrichment.MaxDelay != 5*time.Second {
		t.Fatalf("durations not parsed: %+v %+v", cfg.Scrape, cfg.Enrichment)
	}
	if len(cfg.Chambers) != 2 || cfg.Chambers[1].Name != "senate" {
		t.Fatalf("unexpected chambers: %+v", cfg.Chambers)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Extraction.Workers = 0
	cfg.Enrichment.MinDelay = 5 * time.Second
	cfg.Enrichment.MaxDelay = time.Second
	cfg.Enrichment.Checkpoint.Backend = "redis"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"extraction.workers", "delay range", "unknown checkpoint backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}
