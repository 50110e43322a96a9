// Package gps turns an NMEA byte stream into position fixes.
package gps

import (
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/dj-oyu/carcam/pkg/types"
)

// MaxSentenceLen bounds one NMEA sentence including the leading '$'.
// Longer sentences are dropped.
const MaxSentenceLen = 120

// DecoderStats counts decoder activity since creation.
type DecoderStats struct {
	Sentences uint64 // complete sentences handed to the parser
	Fixes     uint64
	Rejected  uint64 // checksum, syntax or unsupported sentence type
	Overlong  uint64
}

// Decoder assembles sentences byte by byte. It is not safe for
// concurrent use.
type Decoder struct {
	buf   []byte
	fix   types.Position
	stats DecoderStats
	now   func() time.Time
}

func NewDecoder() *Decoder {
	return &Decoder{
		buf: make([]byte, 0, MaxSentenceLen),
		now: time.Now,
	}
}

// Feed consumes one byte and reports whether it completed a position fix.
func (d *Decoder) Feed(b byte) bool {
	switch {
	case b == '$':
		d.buf = append(d.buf[:0], b)
		return false
	case b == '\r' || b == '\n':
		if len(d.buf) == 0 {
			return false
		}
		line := string(d.buf)
		d.buf = d.buf[:0]
		return d.parse(line)
	case len(d.buf) == 0:
		// Noise between sentences, or the tail of a dropped one.
		return false
	case len(d.buf) >= MaxSentenceLen:
		d.buf = d.buf[:0]
		d.stats.Overlong++
		return false
	}
	d.buf = append(d.buf, b)
	return false
}

func (d *Decoder) parse(line string) bool {
	d.stats.Sentences++

	s, err := nmea.Parse(line)
	if err != nil {
		d.stats.Rejected++
		return false
	}

	var lat, lon float64
	switch m := s.(type) {
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			return false
		}
		lat, lon = m.Latitude, m.Longitude
	case nmea.GGA:
		if m.FixQuality == nmea.Invalid {
			return false
		}
		lat, lon = m.Latitude, m.Longitude
	default:
		return false
	}

	d.fix = types.Position{
		Latitude:  types.Coordinate(lat),
		Longitude: types.Coordinate(lon),
		UpdatedAt: d.now(),
	}
	d.stats.Fixes++
	return true
}

// Fix returns the most recent position fix.
func (d *Decoder) Fix() types.Position {
	return d.fix
}

func (d *Decoder) Stats() DecoderStats {
	return d.stats
}
