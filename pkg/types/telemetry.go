package types

import (
	"strconv"
	"time"
)

// Coordinate is a latitude or longitude in decimal degrees. It always
// serializes with six fractional digits.
type Coordinate float64

// MarshalJSON renders the coordinate as a fixed-point JSON number.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(c), 'f', 6, 64), nil
}

// String returns the fixed-point form used in logs and the control page.
func (c Coordinate) String() string {
	return strconv.FormatFloat(float64(c), 'f', 6, 64)
}

// Position is one GPS fix (or the configured default before the first fix)
type Position struct {
	Latitude  Coordinate `json:"latitude"`
	Longitude Coordinate `json:"longitude"`
	UpdatedAt time.Time  `json:"-"`
}

// Telemetry is the payload pushed to /ws/telemetry subscribers
type Telemetry struct {
	Latitude  Coordinate `json:"latitude"`
	Longitude Coordinate `json:"longitude"`
	AutoMode  bool       `json:"auto_mode"`
	Timestamp float64    `json:"timestamp"`
}
