// Package config handles configuration loading and validation for zedcapd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"zedcapd/internal/camera"
	"zedcapd/internal/capture"
)

// Config is the daemon configuration. TOML is the primary format; JSON and
// YAML files load too for operators who already generate one of those.
type Config struct {
	Camera  CameraConfig  `toml:"camera" json:"camera" yaml:"camera"`
	GPS     GPSConfig     `toml:"gps" json:"gps" yaml:"gps"`
	Capture CaptureConfig `toml:"capture" json:"capture" yaml:"capture"`
	Video   VideoConfig   `toml:"video" json:"video" yaml:"video"`
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
	IPC     IPCConfig     `toml:"ipc" json:"ipc" yaml:"ipc"`
	HTTP    HTTPConfig    `toml:"http" json:"http" yaml:"http"`
}

// CameraConfig selects the device and its initial settings.
type CameraConfig struct {
	// Simulate runs the built-in gateway instead of real hardware.
	Simulate bool            `toml:"simulate" json:"simulate" yaml:"simulate"`
	Settings camera.Settings `toml:"settings" json:"settings" yaml:"settings"`
}

// GPSConfig configures the NMEA serial receiver.
type GPSConfig struct {
	// Enabled turns the receiver on. Disabled, captures carry no fix and
	// distance policies cannot run.
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Port    string `toml:"port" json:"port" yaml:"port"`
	Baud    int    `toml:"baud" json:"baud" yaml:"baud"`

	// MaxFixAgeSeconds marks the fix stale for health reporting.
	MaxFixAgeSeconds int `toml:"max_fix_age_seconds" json:"max_fix_age_seconds" yaml:"max_fix_age_seconds"`
}

// CaptureConfig sets output layout and the default trigger policy.
type CaptureConfig struct {
	OutputDir  string `toml:"output_dir" json:"output_dir" yaml:"output_dir"`
	FilePrefix string `toml:"file_prefix" json:"file_prefix" yaml:"file_prefix"`

	// Policy is "time" or "distance".
	Policy          string  `toml:"policy" json:"policy" yaml:"policy"`
	IntervalSeconds float64 `toml:"interval_seconds" json:"interval_seconds" yaml:"interval_seconds"`
	DistanceMeters  float64 `toml:"distance_meters" json:"distance_meters" yaml:"distance_meters"`

	// TickMillis is the policy evaluation cadence.
	TickMillis int `toml:"tick_millis" json:"tick_millis" yaml:"tick_millis"`
}

// VideoConfig configures SVO recording output.
type VideoConfig struct {
	OutputDir   string `toml:"output_dir" json:"output_dir" yaml:"output_dir"`
	Codec       string `toml:"codec" json:"codec" yaml:"codec"`
	BitrateKbps int    `toml:"bitrate_kbps" json:"bitrate_kbps" yaml:"bitrate_kbps"`
}

// StorageConfig locates the capture index database.
type StorageConfig struct {
	DatabasePath string `toml:"database_path" json:"database_path" yaml:"database_path"`
}

// LoggingConfig mirrors the logging package options in file-friendly form.
type LoggingConfig struct {
	Level    string `toml:"level" json:"level" yaml:"level"`
	Format   string `toml:"format" json:"format" yaml:"format"`
	Output   string `toml:"output" json:"output" yaml:"output"`
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// IPCConfig locates the control socket.
type IPCConfig struct {
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
}

// HTTPConfig exposes metrics and health probes. Empty address disables the
// listener.
type HTTPConfig struct {
	Addr string `toml:"addr" json:"addr" yaml:"addr"`
}

// DataDir returns the daemon's data directory, honoring the
// ZEDCAPD_DATA_DIR override.
func DataDir() string {
	if dir := os.Getenv("ZEDCAPD_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./zedcapd-data"
	}
	return filepath.Join(home, ".local", "share", "zedcapd")
}

// DefaultConfig returns the configuration the daemon ships with.
func DefaultConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Camera: CameraConfig{
			Simulate: true,
			Settings: camera.DefaultSettings(),
		},
		GPS: GPSConfig{
			Enabled:          false,
			Port:             "/dev/ttyUSB0",
			Baud:             9600,
			MaxFixAgeSeconds: 10,
		},
		Capture: CaptureConfig{
			OutputDir:       filepath.Join(dataDir, "captures"),
			FilePrefix:      "zed",
			Policy:          "time",
			IntervalSeconds: 5,
			DistanceMeters:  10,
			TickMillis:      500,
		},
		Video: VideoConfig{
			OutputDir: filepath.Join(dataDir, "video"),
			Codec:     "H264",
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(dataDir, "captures.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		IPC: IPCConfig{
			SocketPath: filepath.Join(dataDir, "zedcapd.sock"),
		},
		HTTP: HTTPConfig{
			Addr: "",
		},
	}
}

// ApplyEnvOverrides applies environment variable overrides. Variables are
// prefixed with ZEDCAPD_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ZEDCAPD_OUTPUT_DIR"); v != "" {
		c.Capture.OutputDir = v
	}
	if v := os.Getenv("ZEDCAPD_DATABASE_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("ZEDCAPD_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("ZEDCAPD_GPS_PORT"); v != "" {
		c.GPS.Port = v
		c.GPS.Enabled = true
	}
	if v := os.Getenv("ZEDCAPD_GPS_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			c.GPS.Baud = baud
		}
	}
	if v := os.Getenv("ZEDCAPD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ZEDCAPD_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if err := c.Camera.Settings.Validate(); err != nil {
		return fmt.Errorf("camera settings: %w", err)
	}

	switch c.Capture.Policy {
	case "time":
		if c.Capture.IntervalSeconds <= 0 {
			return fmt.Errorf("capture interval must be positive, got %v", c.Capture.IntervalSeconds)
		}
	case "distance":
		if c.Capture.DistanceMeters <= 0 {
			return fmt.Errorf("capture distance must be positive, got %v", c.Capture.DistanceMeters)
		}
		if !c.GPS.Enabled {
			return fmt.Errorf("distance policy requires gps.enabled")
		}
	default:
		return fmt.Errorf("unknown capture policy %q", c.Capture.Policy)
	}

	if c.Capture.OutputDir == "" {
		return fmt.Errorf("capture output_dir must be set")
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database_path must be set")
	}
	if c.GPS.Enabled && c.GPS.Baud <= 0 {
		return fmt.Errorf("gps baud must be positive, got %d", c.GPS.Baud)
	}

	switch c.Video.Codec {
	case "", "H264", "H265":
	default:
		return fmt.Errorf("unknown video codec %q", c.Video.Codec)
	}

	return nil
}

// TriggerPolicy translates the configured policy into controller form.
func (c *Config) TriggerPolicy() capture.Policy {
	if c.Capture.Policy == "distance" {
		return capture.DistanceInterval(c.Capture.DistanceMeters)
	}
	return capture.TimeInterval(time.Duration(c.Capture.IntervalSeconds * float64(time.Second)))
}

// TickInterval returns the policy evaluation cadence.
func (c *Config) TickInterval() time.Duration {
	if c.Capture.TickMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.Capture.TickMillis) * time.Millisecond
}

// MaxFixAge returns the fix staleness threshold for health reporting.
func (c *Config) MaxFixAge() time.Duration {
	if c.GPS.MaxFixAgeSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.GPS.MaxFixAgeSeconds) * time.Second
}
