package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/matifariasc/vosk-speech/internal/transcript"
)

// ErrUnreadable marks a persisted document that exists but cannot be
// decoded. A missing document is not an error: it loads as empty.
var ErrUnreadable = errors.New("store document unreadable")

// Timeline maps a media file key to its normalized transcript.
type Timeline map[string]transcript.FileRecord

// Ledger maps a media file key to the seconds its transcription took.
// Diagnostic only; persisted alongside the timeline.
type Ledger map[string]float64

// Store persists one timeline document and one ledger document per channel
// as whole JSON files, replaced atomically on every save. Writes to one
// channel are serialized; different channels save in parallel.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the directory holding the persisted documents.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) timelinePath(channel string) string {
	return filepath.Join(s.dir, "transcripciones_"+channel+".json")
}

func (s *Store) ledgerPath(channel string) string {
	return filepath.Join(s.dir, "tiempos_"+channel+".json")
}

func (s *Store) channelLock(channel string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[channel]
	if !ok {
		l = &sync.Mutex{}
		s.locks[channel] = l
	}
	return l
}

// LoadTimeline reads one channel's document. Entries pass through the
// normalizer, so legacy layouts (bare segment arrays) come out canonical.
func (s *Store) LoadTimeline(channel string) (Timeline, error) {
	data, err := os.ReadFile(s.timelinePath(channel))
	if err != nil {
		if os.IsNotExist(err) {
			return Timeline{}, nil
		}
		return nil, fmt.Errorf("read timeline %s: %w", channel, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: timeline %s: %v", ErrUnreadable, channel, err)
	}

	tl := make(Timeline, len(raw))
	for key, entry := range raw {
		tl[key] = transcript.Normalize(entry, transcript.FechaOf(key))
	}
	return tl, nil
}

// LoadLedger reads one channel's processing-time document.
func (s *Store) LoadLedger(channel string) (Ledger, error) {
	data, err := os.ReadFile(s.ledgerPath(channel))
	if err != nil {
		if os.IsNotExist(err) {
			return Ledger{}, nil
		}
		return nil, fmt.Errorf("read ledger %s: %w", channel, err)
	}
	var lg Ledger
	if err := json.Unmarshal(data, &lg); err != nil {
		return nil, fmt.Errorf("%w: ledger %s: %v", ErrUnreadable, channel, err)
	}
	return lg, nil
}

// Commit evicts expired records and then persists both documents for the
// channel. Eviction plus save is one locked step, so a reader never sees a
// half-applied retention sweep.
func (s *Store) Commit(channel string, tl Timeline, lg Ledger, now time.Time, window time.Duration) error {
	lock := s.channelLock(channel)
	lock.Lock()
	defer lock.Unlock()

	if n := EvictExpired(tl, lg, now, window); n > 0 {
		s.logger.Info("retention sweep", "channel", channel, "evicted", n)
	}
	if err := writeAtomic(s.timelinePath(channel), tl); err != nil {
		return fmt.Errorf("save timeline %s: %w", channel, err)
	}
	if err := writeAtomic(s.ledgerPath(channel), lg); err != nil {
		return fmt.Errorf("save ledger %s: %w", channel, err)
	}
	return nil
}

// EvictExpired removes records whose key-embedded capture time predates
// now-window, from both the timeline and the ledger. Keys without a
// parsable capture time are kept. Returns the number of evicted records.
func EvictExpired(tl Timeline, lg Ledger, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	evicted := 0
	for key := range tl {
		captured := transcript.CapturedOf(key)
		if captured.IsZero() || !captured.Before(cutoff) {
			continue
		}
		delete(tl, key)
		delete(lg, key)
		evicted++
	}
	return evicted
}

// Union merges several timelines into one key to record mapping for
// cross-channel queries. On key collision the last-merged entry wins.
func Union(timelines ...Timeline) Timeline {
	merged := Timeline{}
	for _, tl := range timelines {
		for key, rec := range tl {
			merged[key] = rec
		}
	}
	return merged
}

// writeAtomic replaces the document at path as a whole: marshal, write a
// temp file in the same directory, then rename over the target.
func writeAtomic(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
