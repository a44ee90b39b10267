package query

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/matifariasc/vosk-speech/internal/store"
	"github.com/matifariasc/vosk-speech/internal/transcript"
)

// segmentMargin widens the query bounds when re-filtering individual
// segments in text mode, absorbing boundary rounding in segment timestamps.
const segmentMargin = 500 * time.Millisecond

// Engine resolves query parameters against the per-channel timelines. Every
// call performs its own load of the backing documents; there is no shared
// mutable state across requests.
type Engine struct {
	store        *store.Store
	channels     []string
	baseURL      string
	defaultHours int
	logger       *slog.Logger
	now          func() time.Time
}

func NewEngine(s *store.Store, channels []string, baseURL string, defaultHours int, logger *slog.Logger) *Engine {
	return &Engine{
		store:        s,
		channels:     channels,
		baseURL:      baseURL,
		defaultHours: defaultHours,
		logger:       logger,
		now:          time.Now,
	}
}

// Item is one element of a query response.
type Item struct {
	File      string               `json:"file"`
	URL       string               `json:"url,omitempty"`
	Duration  *float64             `json:"duration,omitempty"`
	Registros []transcript.Segment `json:"registros,omitempty"`
	Texto     string               `json:"texto,omitempty"`
	Warning   string               `json:"warning,omitempty"`
}

// Query runs the filters and returns the matching items, ordered by capture
// time. In text mode the result is a single item carrying the aggregated
// text. A query that matches nothing returns ErrNotFound.
func (e *Engine) Query(p Params) ([]Item, error) {
	tl, err := e.loadScope(p)
	if err != nil {
		return nil, err
	}

	keys, err := e.filterFiles(tl, p)
	if err != nil {
		return nil, err
	}

	e.sortKeys(keys, p.Newest)

	if p.Text {
		item, err := e.aggregateText(tl, keys, p)
		if err != nil {
			return nil, err
		}
		return []Item{item}, nil
	}

	items := make([]Item, 0, len(keys))
	for _, key := range keys {
		rec := tl[key]
		item := Item{
			File:      key,
			URL:       e.playbackURL(key),
			Duration:  rec.Duration,
			Registros: rec.Registros,
		}
		if p.File != "" {
			if _, err := os.Stat(key); err != nil {
				item.Warning = "media file not found on disk"
			}
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items, nil
}

// loadScope loads either the requested channel's timeline or the union of
// all configured channels.
func (e *Engine) loadScope(p Params) (store.Timeline, error) {
	if p.Medio != "" {
		return e.store.LoadTimeline(p.Medio)
	}
	timelines := make([]store.Timeline, 0, len(e.channels))
	for _, ch := range e.channels {
		tl, err := e.store.LoadTimeline(ch)
		if err != nil {
			return nil, err
		}
		timelines = append(timelines, tl)
	}
	return store.Union(timelines...), nil
}

// filterFiles applies the file-level predicates and returns the surviving
// keys, unordered.
func (e *Engine) filterFiles(tl store.Timeline, p Params) ([]string, error) {
	if p.File != "" {
		rec, ok := tl[p.File]
		if !ok {
			return nil, fmt.Errorf("%w: file not tracked", ErrNotFound)
		}
		if len(rec.Registros) == 0 {
			return nil, fmt.Errorf("%w: file has no transcriptions", ErrNotFound)
		}
		return []string{p.File}, nil
	}

	// The freshness window only narrows default listings; an explicit date,
	// point or range filter overrides it.
	applyWindow := p.Fecha == "" && p.Point == nil && p.Start == nil && p.End == nil
	hours := p.Hours
	if hours == 0 {
		hours = e.defaultHours
	}
	cutoff := e.now().Add(-time.Duration(hours) * time.Hour)

	var keys []string
	for key := range tl {
		if p.Fecha != "" && transcript.FechaOf(key) != p.Fecha {
			continue
		}
		if applyWindow {
			captured := transcript.CapturedOf(key)
			if captured.IsZero() || captured.Before(cutoff) {
				continue
			}
		}
		if p.Point != nil || p.Start != nil || p.End != nil {
			if !e.matchesWindow(key, tl[key], p) {
				continue
			}
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// matchesWindow tests the file-level interval against the point or range
// filter.
func (e *Engine) matchesWindow(key string, rec transcript.FileRecord, p Params) bool {
	start, end, hasEnd, ok := fileBounds(key, rec)
	if !ok {
		return false
	}
	if p.Point != nil {
		t := *p.Point
		return !t.Before(start) && (!hasEnd || !t.After(end))
	}
	return overlaps(start, end, hasEnd, p.Start, p.End)
}

// fileBounds derives the temporal interval a file covers. The whole-file
// duration is authoritative when known; otherwise the interval comes from
// the segment extremes, and a file with no derivable end is open-ended
// forward from its capture time.
func fileBounds(key string, rec transcript.FileRecord) (start, end time.Time, hasEnd, ok bool) {
	captured := transcript.CapturedOf(key)
	fecha := transcript.FechaOf(key)

	if !captured.IsZero() && rec.Duration != nil {
		return captured, captured.Add(secondsDur(*rec.Duration)), true, true
	}

	var minStart, maxEnd time.Time
	for _, s := range rec.Registros {
		if t, k := s.Start(fecha); k && (minStart.IsZero() || t.Before(minStart)) {
			minStart = t
		}
		if t, k := s.End(fecha); k && (maxEnd.IsZero() || t.After(maxEnd)) {
			maxEnd = t
		}
	}

	start = minStart
	if start.IsZero() {
		start = captured
	}
	if start.IsZero() {
		return time.Time{}, time.Time{}, false, false
	}
	if maxEnd.IsZero() {
		return start, time.Time{}, false, true
	}
	return start, maxEnd, true, true
}

// overlaps implements interval overlap against a possibly half-open query
// range: two intervals overlap unless one ends strictly before the other
// begins. An unknown file end never produces a false negative on its own.
func overlaps(start, end time.Time, hasEnd bool, qStart, qEnd *time.Time) bool {
	if qEnd != nil && start.After(*qEnd) {
		return false
	}
	if qStart != nil && hasEnd && end.Before(*qStart) {
		return false
	}
	return true
}

// sortKeys orders keys by embedded capture time; keys that do not parse sort
// as oldest. Ties break on the key itself for a stable response.
func (e *Engine) sortKeys(keys []string, newest bool) {
	sort.Slice(keys, func(i, j int) bool {
		ti, tj := transcript.CapturedOf(keys[i]), transcript.CapturedOf(keys[j])
		if ti.Equal(tj) {
			return keys[i] < keys[j]
		}
		if newest {
			return ti.After(tj)
		}
		return ti.Before(tj)
	})
}

// aggregateText re-filters individual segments against the temporal
// predicate (widened by the boundary margin), merges the surviving texts
// across files in timestamp order and joins them. Zero survivors is a
// not-found condition, never an empty success.
func (e *Engine) aggregateText(tl store.Timeline, keys []string, p Params) (Item, error) {
	type picked struct {
		at   time.Time
		seq  int
		text string
	}

	var qStart, qEnd *time.Time
	switch {
	case p.Point != nil:
		s := p.Point.Add(-segmentMargin)
		f := p.Point.Add(segmentMargin)
		qStart, qEnd = &s, &f
	default:
		if p.Start != nil {
			s := p.Start.Add(-segmentMargin)
			qStart = &s
		}
		if p.End != nil {
			f := p.End.Add(segmentMargin)
			qEnd = &f
		}
	}

	var survivors []picked
	seq := 0
	for _, key := range keys {
		fecha := transcript.FechaOf(key)
		for _, s := range tl[key].Registros {
			seq++
			if strings.TrimSpace(s.Texto) == "" {
				continue
			}
			segStart, okStart := s.Start(fecha)
			segEnd, okEnd := s.End(fecha)
			if !okStart && okEnd {
				segStart, okStart = segEnd, true
			}
			if qStart != nil || qEnd != nil {
				if !okStart {
					continue
				}
				if !okEnd {
					segEnd = segStart
				}
				if !overlaps(segStart, segEnd, true, qStart, qEnd) {
					continue
				}
			}
			survivors = append(survivors, picked{at: segStart, seq: seq, text: strings.TrimSpace(s.Texto)})
		}
	}

	if len(survivors) == 0 {
		return Item{}, fmt.Errorf("%w: no segments in the requested window", ErrNotFound)
	}

	sort.Slice(survivors, func(i, j int) bool {
		if !survivors[i].at.Equal(survivors[j].at) {
			return survivors[i].at.Before(survivors[j].at)
		}
		return survivors[i].seq < survivors[j].seq
	})

	texts := make([]string, len(survivors))
	for i, s := range survivors {
		texts[i] = s.text
	}
	return Item{File: p.File, Texto: strings.Join(texts, " ")}, nil
}

func (e *Engine) playbackURL(key string) string {
	if e.baseURL == "" {
		return ""
	}
	return strings.TrimSuffix(e.baseURL, "/") + "/" + filepath.Base(key)
}

func secondsDur(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
