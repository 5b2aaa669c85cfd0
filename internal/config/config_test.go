package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
store:
  backend: postgres
  dsn: postgres://extractor:pw@localhost:5432/extractor
  retry_failed: true
governor:
  reserve_seconds: 45
  max_concurrent: 2
  max_daily_seconds: 300
http:
  user_agent: test-agent
  timeout_seconds: 20
browser:
  enabled: true
  nav_timeout_seconds: 30
  settle_seconds: 2
quality:
  threshold: 0.7
  min_heavy_length: 200
scheduler:
  enabled: true
  interval_seconds: 15
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Store.Backend != "postgres" || !cfg.Store.RetryFailed {
		t.Errorf("store config not applied: %+v", cfg.Store)
	}
	if cfg.Governor.ReserveSeconds != 45 || cfg.Governor.MaxConcurrent != 2 || cfg.Governor.MaxDailySeconds != 300 {
		t.Errorf("governor config not applied: %+v", cfg.Governor)
	}
	if cfg.HTTP.UserAgent != "test-agent" {
		t.Errorf("http.user_agent = %q", cfg.HTTP.UserAgent)
	}
	if cfg.HTTPTimeout() != 20*time.Second {
		t.Errorf("HTTPTimeout() = %v, want 20s", cfg.HTTPTimeout())
	}
	if cfg.NavTimeout() != 30*time.Second {
		t.Errorf("NavTimeout() = %v, want 30s", cfg.NavTimeout())
	}
	if cfg.Quality.Threshold != 0.7 || cfg.Quality.MinHeavyLength != 200 {
		t.Errorf("quality config not applied: %+v", cfg.Quality)
	}
	if cfg.SchedulerInterval() != 15*time.Second {
		t.Errorf("SchedulerInterval() = %v, want 15s", cfg.SchedulerInterval())
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Governor.ReserveSeconds != 30 {
		t.Errorf("governor.reserve_seconds = %d, want 30", cfg.Governor.ReserveSeconds)
	}
	if cfg.Governor.MaxConcurrent != 3 {
		t.Errorf("governor.max_concurrent = %d, want 3", cfg.Governor.MaxConcurrent)
	}
	if cfg.Governor.MaxDailySeconds != 600 {
		t.Errorf("governor.max_daily_seconds = %d, want 600", cfg.Governor.MaxDailySeconds)
	}
	if cfg.Quality.Threshold != 0.60 {
		t.Errorf("quality.threshold = %v, want 0.60", cfg.Quality.Threshold)
	}
	if cfg.Quality.MinHeavyLength != 150 {
		t.Errorf("quality.min_heavy_length = %d, want 150", cfg.Quality.MinHeavyLength)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "zero port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantMsg: "server.port",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Store.Backend = "postgres" },
			wantMsg: "store.dsn",
		},
		{
			name:    "zero max concurrent",
			mutate:  func(c *Config) { c.Governor.MaxConcurrent = 0 },
			wantMsg: "governor.max_concurrent",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Quality.Threshold = 1.5 },
			wantMsg: "quality.threshold",
		},
		{
			name:    "gcs without bucket",
			mutate:  func(c *Config) { c.Archive.Backend = "gcs" },
			wantMsg: "archive.gcs_bucket",
		},
		{
			name:    "pubsub without project",
			mutate:  func(c *Config) { c.Events.Backend = "pubsub" },
			wantMsg: "events.project_id",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tc.mutate(&cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}
