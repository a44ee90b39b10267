package transcript

import (
	"math"
	"strings"
	"time"
)

// Segment is one contiguous speech block. Field names on the wire follow the
// historical JSON layout (texto/inicio/fin), so existing documents and
// downstream consumers keep working unchanged.
type Segment struct {
	Texto    string   `json:"texto"`
	Inicio   string   `json:"inicio"`
	Fin      string   `json:"fin"`
	Fecha    string   `json:"fecha,omitempty"`
	Medio    string   `json:"medio,omitempty"`
	Duracion *float64 `json:"duracion,omitempty"`
}

// FileRecord is the normalized transcript for one media file: an optional
// whole-file duration in seconds plus the ordered segments.
type FileRecord struct {
	Duration  *float64  `json:"duration,omitempty"`
	Registros []Segment `json:"registros"`
}

// ClockLayout is how segment times are rendered: time of day with
// millisecond precision.
const ClockLayout = "15:04:05.000"

var instantLayouts = []string{
	"2006-01-02 15:04:05.999",
	"2006-01-02T15:04:05.999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

var clockLayouts = []string{
	"15:04:05.999",
	"15:04",
}

// ParseInstant parses a timestamp that may carry its own date (space or T
// separated, optional fractional seconds) or be a bare time of day, in which
// case fecha supplies the date. A bare time with no fecha, or an unparsable
// value, returns ok=false; callers treat that as unknown, never as an error.
func ParseInstant(value, fecha string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, true
		}
	}
	if fecha == "" {
		return time.Time{}, false
	}
	for _, layout := range clockLayouts {
		if t, err := time.ParseInLocation("2006-01-02 "+layout, fecha+" "+v, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Start resolves the segment's begin instant, using fallbackFecha when the
// segment carries no date of its own.
func (s Segment) Start(fallbackFecha string) (time.Time, bool) {
	return ParseInstant(s.Inicio, s.fecha(fallbackFecha))
}

// End resolves the segment's end instant.
func (s Segment) End(fallbackFecha string) (time.Time, bool) {
	return ParseInstant(s.Fin, s.fecha(fallbackFecha))
}

func (s Segment) fecha(fallback string) string {
	if s.Fecha != "" {
		return s.Fecha
	}
	return fallback
}

// roundMillis rounds a seconds value to millisecond precision.
func roundMillis(seconds float64) float64 {
	return math.Round(seconds*1000) / 1000
}
