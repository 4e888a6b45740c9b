// Package gauge maps a bounded speed range onto the rotation of a gauge needle.
package gauge

// Needle rotation bounds in degrees. The needle points left at MinAngle and
// right at MaxAngle.
const (
	MinAngle = -90.0
	MaxAngle = 90.0
)

// DefaultMaxMbps is the full-scale value used when none is configured.
const DefaultMaxMbps = 100.0

// Mapping is a linear transform from [0, MaxMbps] to [MinAngle, MaxAngle].
type Mapping struct {
	MaxMbps float64
}

// New returns a Mapping with the given full-scale value.
func New(maxMbps float64) Mapping {
	return Mapping{MaxMbps: maxMbps}
}

// Fraction returns how far along the scale mbps is, clamped to [0, 1].
// A non-positive full scale always yields 0.
func (m Mapping) Fraction(mbps float64) float64 {
	if m.MaxMbps <= 0 || mbps <= 0 {
		return 0
	}
	f := mbps / m.MaxMbps
	if f > 1 {
		return 1
	}
	return f
}

// Angle returns the needle rotation for mbps.
func (m Mapping) Angle(mbps float64) float64 {
	return MinAngle + m.Fraction(mbps)*(MaxAngle-MinAngle)
}
