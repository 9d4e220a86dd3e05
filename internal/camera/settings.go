package camera

import (
	"fmt"
)

// Mode selects automatic or manual exposure control.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Resolution presets supported by the device family.
const (
	ResHD2K   = "HD2K"
	ResHD1080 = "HD1080"
	ResHD720  = "HD720"
	ResVGA    = "VGA"
)

// Resolutions lists the supported presets.
var Resolutions = []string{ResHD2K, ResHD1080, ResHD720, ResVGA}

// View names a retrievable image plane.
const (
	ViewRGB        = "rgb"
	ViewRight      = "right"
	ViewDepth      = "depth"
	ViewDisparity  = "disparity"
	ViewConfidence = "confidence"
	ViewPointCloud = "point_cloud"
)

// Views lists every view the device family can produce.
var Views = []string{ViewRGB, ViewRight, ViewDepth, ViewDisparity, ViewConfidence, ViewPointCloud}

// Auto marks a numeric setting as device-controlled.
const Auto = -1

// Settings is the active camera configuration. A copy travels with every
// capture record so each image set is self-describing even if the global
// settings change later. Numeric ranges mirror the vendor SDK; Auto (-1)
// leaves the device in charge.
type Settings struct {
	Mode       Mode   `json:"mode" toml:"mode" yaml:"mode"`
	Resolution string `json:"resolution" toml:"resolution" yaml:"resolution"`
	FPS        int    `json:"fps" toml:"fps" yaml:"fps"`

	Brightness   int `json:"brightness" toml:"brightness" yaml:"brightness"`          // 0..8 or Auto
	Contrast     int `json:"contrast" toml:"contrast" yaml:"contrast"`                // 0..8 or Auto
	Hue          int `json:"hue" toml:"hue" yaml:"hue"`                               // 0..11 or Auto
	Saturation   int `json:"saturation" toml:"saturation" yaml:"saturation"`          // 0..8 or Auto
	Exposure     int `json:"exposure" toml:"exposure" yaml:"exposure"`                // 0..100 or Auto
	Gain         int `json:"gain" toml:"gain" yaml:"gain"`                            // 0..100 or Auto
	WhiteBalance int `json:"white_balance" toml:"white_balance" yaml:"white_balance"` // 2800..6500 or Auto

	// Views to retrieve on each capture. Empty defaults to rgb.
	Views []string `json:"views" toml:"views" yaml:"views"`
}

// DefaultSettings mirrors the device defaults the tool ships with.
func DefaultSettings() Settings {
	return Settings{
		Mode:         ModeAuto,
		Resolution:   ResHD1080,
		FPS:          15,
		Brightness:   4,
		Contrast:     4,
		Hue:          0,
		Saturation:   4,
		Exposure:     Auto,
		Gain:         Auto,
		WhiteBalance: Auto,
		Views:        []string{ViewRGB},
	}
}

// EffectiveViews returns the views to capture, defaulting to rgb.
func (s Settings) EffectiveViews() []string {
	if len(s.Views) == 0 {
		return []string{ViewRGB}
	}
	return s.Views
}

// Clone returns a deep copy, so record snapshots never alias live state.
func (s Settings) Clone() Settings {
	out := s
	out.Views = append([]string(nil), s.Views...)
	return out
}

// Validate checks every field against the device's accepted ranges. A single
// out-of-range value fails the whole settings update.
func (s Settings) Validate() error {
	switch s.Mode {
	case ModeAuto, ModeManual:
	default:
		return fmt.Errorf("%w: mode %q", ErrUnsupportedSetting, s.Mode)
	}

	if !contains(Resolutions, s.Resolution) {
		return fmt.Errorf("%w: resolution %q", ErrUnsupportedSetting, s.Resolution)
	}

	if s.FPS != 15 && s.FPS != 30 && s.FPS != 60 {
		return fmt.Errorf("%w: fps %d", ErrUnsupportedSetting, s.FPS)
	}

	ranges := []struct {
		name     string
		val, max int
	}{
		{"brightness", s.Brightness, 8},
		{"contrast", s.Contrast, 8},
		{"hue", s.Hue, 11},
		{"saturation", s.Saturation, 8},
		{"exposure", s.Exposure, 100},
		{"gain", s.Gain, 100},
	}
	for _, r := range ranges {
		if r.val != Auto && (r.val < 0 || r.val > r.max) {
			return fmt.Errorf("%w: %s %d", ErrUnsupportedSetting, r.name, r.val)
		}
	}

	if s.WhiteBalance != Auto && (s.WhiteBalance < 2800 || s.WhiteBalance > 6500) {
		return fmt.Errorf("%w: white_balance %d", ErrUnsupportedSetting, s.WhiteBalance)
	}

	for _, v := range s.Views {
		if !contains(Views, v) {
			return fmt.Errorf("%w: view %q", ErrUnsupportedSetting, v)
		}
	}

	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
