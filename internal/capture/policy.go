package capture

import (
	"fmt"
	"time"
)

// PolicyKind tags the active trigger policy variant.
type PolicyKind int

const (
	// KindTime fires on elapsed wall-clock time.
	KindTime PolicyKind = iota
	// KindDistance fires on accumulated valid-fix displacement.
	KindDistance
)

// String returns the kind name used in status output and config files.
func (k PolicyKind) String() string {
	if k == KindDistance {
		return "distance"
	}
	return "time"
}

// Policy is the trigger rule governing when captures occur. Exactly one
// variant is active at a time.
type Policy struct {
	Kind     PolicyKind    `json:"kind"`
	Interval time.Duration `json:"interval,omitempty"` // KindTime
	Meters   float64       `json:"meters,omitempty"`   // KindDistance
}

// TimeInterval builds a time-based policy.
func TimeInterval(d time.Duration) Policy {
	return Policy{Kind: KindTime, Interval: d}
}

// DistanceInterval builds a distance-based policy.
func DistanceInterval(meters float64) Policy {
	return Policy{Kind: KindDistance, Meters: meters}
}

// Validate rejects non-positive intervals.
func (p Policy) Validate() error {
	switch p.Kind {
	case KindTime:
		if p.Interval <= 0 {
			return fmt.Errorf("time interval must be positive, got %v", p.Interval)
		}
	case KindDistance:
		if p.Meters <= 0 {
			return fmt.Errorf("distance interval must be positive, got %v", p.Meters)
		}
	default:
		return fmt.Errorf("unknown policy kind %d", p.Kind)
	}
	return nil
}

// String renders the policy for status and log output.
func (p Policy) String() string {
	if p.Kind == KindDistance {
		return fmt.Sprintf("distance(%.1fm)", p.Meters)
	}
	return fmt.Sprintf("time(%s)", p.Interval)
}
