package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"zedcapd/internal/capture"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "nope.toml"))
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Capture.Policy != "time" || cfg.Capture.IntervalSeconds != 5 {
		t.Errorf("unexpected defaults: %+v", cfg.Capture)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zedcapd.toml")
	content := `
[capture]
policy = "distance"
distance_meters = 25.0
output_dir = "/data/captures"
file_prefix = "survey"

[gps]
enabled = true
port = "/dev/ttyACM0"
baud = 115200

[camera.settings]
resolution = "HD720"
fps = 30
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Capture.Policy != "distance" || cfg.Capture.DistanceMeters != 25 {
		t.Errorf("capture section: %+v", cfg.Capture)
	}
	if cfg.GPS.Port != "/dev/ttyACM0" || cfg.GPS.Baud != 115200 {
		t.Errorf("gps section: %+v", cfg.GPS)
	}
	if cfg.Camera.Settings.Resolution != "HD720" || cfg.Camera.Settings.FPS != 30 {
		t.Errorf("camera section: %+v", cfg.Camera.Settings)
	}

	// Unset fields keep their defaults.
	if cfg.Capture.FilePrefix != "survey" {
		t.Errorf("file_prefix = %q", cfg.Capture.FilePrefix)
	}
	if cfg.Camera.Settings.Brightness != 4 {
		t.Errorf("brightness default lost: %d", cfg.Camera.Settings.Brightness)
	}

	p := cfg.TriggerPolicy()
	if p.Kind != capture.KindDistance || p.Meters != 25 {
		t.Errorf("policy = %+v", p)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zedcapd.json")
	content := `{"capture": {"policy": "time", "interval_seconds": 2.5}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p := cfg.TriggerPolicy(); p.Interval != 2500*time.Millisecond {
		t.Errorf("interval = %v", p.Interval)
	}
}

func TestValidationFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad policy", func(c *Config) { c.Capture.Policy = "altitude" }},
		{"zero interval", func(c *Config) { c.Capture.IntervalSeconds = 0 }},
		{"distance without gps", func(c *Config) {
			c.Capture.Policy = "distance"
			c.GPS.Enabled = false
		}},
		{"bad resolution", func(c *Config) { c.Camera.Settings.Resolution = "16K" }},
		{"bad codec", func(c *Config) { c.Video.Codec = "VP9" }},
		{"empty output dir", func(c *Config) { c.Capture.OutputDir = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation failure")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ZEDCAPD_GPS_PORT", "/dev/ttyS3")
	t.Setenv("ZEDCAPD_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.GPS.Port != "/dev/ttyS3" || !cfg.GPS.Enabled {
		t.Errorf("gps override: %+v", cfg.GPS)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level override: %q", cfg.Logging.Level)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zedcapd.toml")
	if err := os.WriteFile(path, []byte("[capture]\ninterval_seconds = 5.0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}

	changed := make(chan *Config, 1)
	l.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	if err := l.Watch(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("[capture]\ninterval_seconds = 9.0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.Capture.IntervalSeconds != 9 {
			t.Errorf("interval = %v, want 9", cfg.Capture.IntervalSeconds)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatchRejectsInvalidEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zedcapd.toml")
	if err := os.WriteFile(path, []byte("[capture]\ninterval_seconds = 5.0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}
	if err := l.Watch(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("[capture]\npolicy = \"bogus\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-l.Errors():
		if err == nil {
			t.Fatal("expected validation error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("error never surfaced")
	}

	// Running configuration stays at the last good values.
	if got := l.Config().Capture.Policy; got != "time" {
		t.Errorf("policy = %q, want time", got)
	}
}
