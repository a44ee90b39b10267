package transcript

import (
	"encoding/json"
	"time"
)

// rawEntry is the tagged form of the legacy document layouts. Older documents
// stored a bare array of segments per file; newer ones wrap the segments in
// an object that also carries the file duration. Both collapse here and the
// ambiguity never leaks past this package.
type rawEntry struct {
	Duration  *float64  `json:"duration"`
	Registros []Segment `json:"registros"`
}

// Normalize canonicalizes one raw document entry into a FileRecord. fecha is
// the capture date of the owning file, used to anchor segment times that
// carry no date of their own. Unknown or malformed shapes yield a record
// with no segments, never an error.
func Normalize(raw json.RawMessage, fecha string) FileRecord {
	var rec FileRecord

	var segs []Segment
	if err := json.Unmarshal(raw, &segs); err == nil {
		rec.Registros = segs
	} else {
		var entry rawEntry
		if err := json.Unmarshal(raw, &entry); err == nil {
			rec.Duration = entry.Duration
			rec.Registros = entry.Registros
		}
	}
	if rec.Registros == nil {
		rec.Registros = []Segment{}
	}

	Canonicalize(&rec, fecha)
	return rec
}

// Canonicalize backfills derived timing on a record: per-segment duration
// from parsed start/end, and the whole-file duration as the span between the
// earliest start and the latest end. Unparsable timestamps and negative
// spans resolve to unknown.
func Canonicalize(rec *FileRecord, fecha string) {
	var (
		earliest, latest time.Time
		haveStart        bool
		haveEnd          bool
	)

	for i := range rec.Registros {
		s := &rec.Registros[i]

		start, okStart := s.Start(fecha)
		end, okEnd := s.End(fecha)

		if s.Duracion == nil && okStart && okEnd {
			if d := end.Sub(start).Seconds(); d >= 0 {
				d = roundMillis(d)
				s.Duracion = &d
			}
		}
		if okStart && (!haveStart || start.Before(earliest)) {
			earliest = start
			haveStart = true
		}
		if okEnd && (!haveEnd || end.After(latest)) {
			latest = end
			haveEnd = true
		}
	}

	if rec.Duration == nil && haveStart && haveEnd {
		if span := latest.Sub(earliest).Seconds(); span >= 0 {
			span = roundMillis(span)
			rec.Duration = &span
		}
	}
}
