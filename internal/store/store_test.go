package store

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matifariasc/vosk-speech/internal/transcript"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func seconds(v float64) *float64 { return &v }

func TestLoadTimeline_Missing(t *testing.T) {
	s := newTestStore(t)
	tl, err := s.LoadTimeline("Canal13")
	if err != nil {
		t.Fatalf("missing document must load as empty, got error: %v", err)
	}
	if len(tl) != 0 {
		t.Errorf("expected empty timeline, got %d entries", len(tl))
	}
}

func TestLoadTimeline_Corrupt(t *testing.T) {
	s := newTestStore(t)
	path := s.timelinePath("Canal13")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := s.LoadTimeline("Canal13")
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("expected ErrUnreadable for corrupt document, got %v", err)
	}
}

func TestCommitAndReload(t *testing.T) {
	s := newTestStore(t)
	key := "Canal13/Canal13_2025-07-22_09-00-00.mp4"
	tl := Timeline{key: transcript.FileRecord{
		Duration: seconds(60),
		Registros: []transcript.Segment{
			{Texto: "hola", Inicio: "09:00:01.000", Fin: "09:00:05.000", Fecha: "2025-07-22", Medio: "Canal13"},
		},
	}}
	lg := Ledger{key: 12.5}

	now := time.Date(2025, 7, 22, 10, 0, 0, 0, time.Local)
	if err := s.Commit("Canal13", tl, lg, now, 48*time.Hour); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.LoadTimeline("Canal13")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rec, ok := got[key]
	if !ok {
		t.Fatal("expected record to survive the round trip")
	}
	if rec.Duration == nil || *rec.Duration != 60 {
		t.Errorf("expected duration 60, got %v", rec.Duration)
	}
	if len(rec.Registros) != 1 || rec.Registros[0].Texto != "hola" {
		t.Errorf("unexpected segments: %+v", rec.Registros)
	}

	gotLg, err := s.LoadLedger("Canal13")
	if err != nil {
		t.Fatalf("reload ledger: %v", err)
	}
	if gotLg[key] != 12.5 {
		t.Errorf("expected ledger entry 12.5, got %v", gotLg[key])
	}
}

func TestLoadTimeline_LegacyBareArray(t *testing.T) {
	s := newTestStore(t)
	doc := `{"Canal13/Canal13_2025-07-22_09-00-00.mp4": [
		{"texto": "hola", "inicio": "09:00:01", "fin": "09:00:05", "fecha": "2025-07-22"}
	]}`
	if err := os.WriteFile(s.timelinePath("Canal13"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	tl, err := s.LoadTimeline("Canal13")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rec := tl["Canal13/Canal13_2025-07-22_09-00-00.mp4"]
	if len(rec.Registros) != 1 {
		t.Fatalf("expected legacy array to normalize into 1 segment, got %d", len(rec.Registros))
	}
	if rec.Duration == nil || *rec.Duration != 4.0 {
		t.Errorf("expected derived file duration 4.0, got %v", rec.Duration)
	}
}

func TestEvictExpired(t *testing.T) {
	old := "Canal13/Canal13_2025-07-20_09-00-00.mp4"
	fresh := "Canal13/Canal13_2025-07-22_09-00-00.mp4"
	odd := "Canal13/sin-convencion.mp4"

	tl := Timeline{
		old:   {},
		fresh: {},
		odd:   {},
	}
	lg := Ledger{old: 1, fresh: 2, odd: 3}

	now := time.Date(2025, 7, 22, 12, 0, 0, 0, time.Local)
	n := EvictExpired(tl, lg, now, 48*time.Hour)
	if n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if _, ok := tl[old]; ok {
		t.Error("expected expired record gone from timeline")
	}
	if _, ok := lg[old]; ok {
		t.Error("expected expired record gone from ledger")
	}
	if _, ok := tl[fresh]; !ok {
		t.Error("expected fresh record kept")
	}
	if _, ok := tl[odd]; !ok {
		t.Error("expected record with unparsable capture time kept")
	}
}

func TestUnion_LastMergedWins(t *testing.T) {
	shared := "X/x_2025-07-22_09-00-00.mp4"
	a := Timeline{shared: {Duration: seconds(1)}}
	b := Timeline{shared: {Duration: seconds(2)}, "Y/y_2025-07-22_10-00-00.mp4": {}}

	merged := Union(a, b)
	if len(merged) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(merged))
	}
	if *merged[shared].Duration != 2 {
		t.Errorf("expected last-merged record to win, got duration %v", *merged[shared].Duration)
	}
}

func TestWriteAtomic_NoPartialDocument(t *testing.T) {
	s := newTestStore(t)
	if err := s.Commit("mega", Timeline{}, Ledger{}, time.Now(), time.Hour); err != nil {
		t.Fatalf("commit: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(s.timelinePath("mega")))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			t.Errorf("leftover temp file after save: %s", e.Name())
		}
	}
}
