// Package gps consumes the NMEA sentence stream from the serial GPS
// receiver, maintains the last-known fix, and accumulates great-circle
// distance between captures for the distance trigger policy.
package gps

import (
	"encoding/json"
	"fmt"
	"time"
)

// Quality is the reported fix quality of a position sample.
type Quality int

const (
	// NoFix means the receiver has no usable position. Latitude and
	// longitude must not be trusted and never contribute to distance.
	NoFix Quality = iota
	// Fix2D is a position without a trustworthy altitude.
	Fix2D
	// Fix3D is a full autonomous position fix.
	Fix3D
	// DGPS is a differentially corrected fix.
	DGPS
)

// String returns the quality name used in metadata records.
func (q Quality) String() string {
	switch q {
	case Fix2D:
		return "2d"
	case Fix3D:
		return "3d"
	case DGPS:
		return "dgps"
	default:
		return "none"
	}
}

// MarshalJSON encodes the quality by name so metadata records stay readable
// without this package's constants.
func (q Quality) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON decodes a quality name.
func (q *Quality) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "none":
		*q = NoFix
	case "2d":
		*q = Fix2D
	case "3d":
		*q = Fix3D
	case "dgps":
		*q = DGPS
	default:
		return fmt.Errorf("unknown fix quality %q", name)
	}
	return nil
}

// Fix is one position sample from the receiver. Immutable once constructed;
// each fix supersedes the previous one.
type Fix struct {
	Lat        float64   `json:"latitude"`
	Lon        float64   `json:"longitude"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Time       time.Time `json:"timestamp"`
	Quality    Quality   `json:"quality"`
	Satellites int       `json:"satellites,omitempty"`
	HDOP       float64   `json:"hdop,omitempty"`
}

// Valid reports whether the fix position can be trusted.
func (f Fix) Valid() bool {
	return f.Quality > NoFix
}
