package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestDefault_Values(t *testing.T) {
	cfg := Default()

	if cfg.Detection.Tolerance != 0.6 {
		t.Errorf("expected tolerance 0.6, got %v", cfg.Detection.Tolerance)
	}
	if cfg.Detection.CacheTimeout != 5*time.Second {
		t.Errorf("expected cache timeout 5s, got %v", cfg.Detection.CacheTimeout)
	}
	if cfg.Performance.TargetFPS != 25 || cfg.Performance.MinFPS != 10 {
		t.Errorf("expected target/min fps 25/10, got %v/%v", cfg.Performance.TargetFPS, cfg.Performance.MinFPS)
	}
	if cfg.Stability.MaxConsecutiveErrors != 5 {
		t.Errorf("expected 5 max consecutive errors, got %d", cfg.Stability.MaxConsecutiveErrors)
	}
	if cfg.Stability.Threshold != 30*time.Second {
		t.Errorf("expected stability threshold 30s, got %v", cfg.Stability.Threshold)
	}
}

func TestValidate_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"tolerance above one", func(c *Config) { c.Detection.Tolerance = 1.5 }},
		{"tolerance below zero", func(c *Config) { c.Detection.Tolerance = -0.1 }},
		{"min fps above target", func(c *Config) { c.Performance.MinFPS = 30 }},
		{"unknown backend", func(c *Config) { c.Detection.Backend = "magic" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without url", func(c *Config) {
			c.Database.Driver = "postgres"
			c.Database.URL = ""
		}},
		{"zero cache timeout", func(c *Config) { c.Detection.CacheTimeout = 0 }},
		{"bad port", func(c *Config) { c.Web.Port = 70000 }},
		{"window above history", func(c *Config) { c.Performance.Window = 200 }},
		{"reset before cache clear", func(c *Config) { c.Stability.ResetDeviceAfter = 2 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facewatch.yaml")
	content := `
detection:
  tolerance: 0.5
  cache_timeout: 3s
performance:
  target_fps: 30
web:
  port: 9090
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("WEB_PORT", "9191")
	t.Setenv("FACE_SERVICE_URL", "http://faces:9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Detection.Tolerance != 0.5 {
		t.Errorf("expected tolerance 0.5 from file, got %v", cfg.Detection.Tolerance)
	}
	if cfg.Detection.CacheTimeout != 3*time.Second {
		t.Errorf("expected cache timeout 3s from file, got %v", cfg.Detection.CacheTimeout)
	}
	if cfg.Performance.MinFPS != 10 {
		t.Errorf("expected untouched min fps 10, got %v", cfg.Performance.MinFPS)
	}
	if cfg.Web.Port != 9191 {
		t.Errorf("expected env port 9191 to win, got %d", cfg.Web.Port)
	}
	if cfg.FaceService.URL != "http://faces:9000" {
		t.Errorf("expected face service url from env, got %q", cfg.FaceService.URL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("detection:\n  tolerance: 2\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "Tolerance") {
		t.Errorf("expected error to name the tolerance field, got %v", err)
	}
}

func TestEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected int
	}{
		{"unset", "", 7},
		{"valid", "42", 42},
		{"negative", "-3", 7},
		{"garbage", "abc", 7},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("FACEWATCH_TEST_INT", tc.value)
			if got := envInt("FACEWATCH_TEST_INT", 7); got != tc.expected {
				t.Errorf("envInt = %d, want %d", got, tc.expected)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()

	t.Run("yaml patch", func(t *testing.T) {
		merged, err := base.Merge([]byte("detection:\n  tolerance: 0.45\n"))
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if merged.Detection.Tolerance != 0.45 {
			t.Errorf("expected tolerance 0.45, got %v", merged.Detection.Tolerance)
		}
		if merged.Detection.Jitters != base.Detection.Jitters {
			t.Error("expected untouched fields to keep their values")
		}
		if base.Detection.Tolerance != 0.6 {
			t.Error("receiver must not be modified")
		}
	})

	t.Run("json patch", func(t *testing.T) {
		merged, err := base.Merge([]byte(`{"performance": {"min_fps": 8}, "detection": {"cache_timeout": "2s"}}`))
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if merged.Performance.MinFPS != 8 {
			t.Errorf("expected min fps 8, got %v", merged.Performance.MinFPS)
		}
		if merged.Detection.CacheTimeout != 2*time.Second {
			t.Errorf("expected cache timeout 2s, got %v", merged.Detection.CacheTimeout)
		}
	})

	t.Run("invalid patch is rejected", func(t *testing.T) {
		merged, err := base.Merge([]byte("detection:\n  tolerance: 1.5\n"))
		if err == nil {
			t.Fatal("expected error for out-of-range tolerance")
		}
		if merged.Detection.Tolerance != 0.6 {
			t.Errorf("expected original config back on error, got tolerance %v", merged.Detection.Tolerance)
		}
	})

	t.Run("malformed patch", func(t *testing.T) {
		if _, err := base.Merge([]byte("detection: [")); err == nil {
			t.Fatal("expected parse error")
		}
	})
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "postgres"
	cfg.Database.URL = "postgres://user:secret@db/facewatch"
	cfg.Web.APIToken = "token"

	out := cfg.Redacted()
	if strings.Contains(out.Database.URL, "secret") {
		t.Error("expected database url to be redacted")
	}
	if out.Web.APIToken == "token" {
		t.Error("expected api token to be redacted")
	}
	if cfg.Web.APIToken != "token" {
		t.Error("original config must keep its token")
	}
}
