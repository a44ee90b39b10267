package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/matifariasc/vosk-speech/internal/query"
	"github.com/matifariasc/vosk-speech/internal/store"
	"github.com/matifariasc/vosk-speech/internal/transcript"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), discard())
	if err != nil {
		t.Fatal(err)
	}

	tl := store.Timeline{
		"media/Canal13/A_2025-07-22_09-00-00.mp4": {
			Registros: []transcript.Segment{
				{Texto: "hola", Inicio: "09:00:01.000", Fin: "09:00:05.000", Fecha: "2025-07-22", Medio: "Canal13"},
			},
		},
	}
	now := time.Date(2025, 7, 22, 12, 0, 0, 0, time.Local)
	if err := st.Commit("Canal13", tl, store.Ledger{}, now, 10*365*24*time.Hour); err != nil {
		t.Fatal(err)
	}

	engine := query.NewEngine(st, []string{"Canal13"}, "http://media.example/", 48, discard())
	return NewServer(8000, engine, discard()), st
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestQueryEndpoint_DateFilter(t *testing.T) {
	srv, _ := newTestServer(t)
	w := get(t, srv, "/?fecha=2025-07-22")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var items []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&items); err != nil {
		t.Fatalf("expected an array response: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0]["url"] != "http://media.example/A_2025-07-22_09-00-00.mp4" {
		t.Errorf("unexpected url: %v", items[0]["url"])
	}
}

func TestQueryEndpoint_FileLookupReturnsSingleObject(t *testing.T) {
	srv, _ := newTestServer(t)
	w := get(t, srv, "/?file=media/Canal13/A_2025-07-22_09-00-00.mp4")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var item map[string]any
	if err := json.NewDecoder(w.Body).Decode(&item); err != nil {
		t.Fatalf("expected a single object response: %v", err)
	}
	if item["file"] != "media/Canal13/A_2025-07-22_09-00-00.mp4" {
		t.Errorf("unexpected file field: %v", item["file"])
	}
}

func TestQueryEndpoint_PointMissIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	w := get(t, srv, "/?fecha=2025-07-22&hora=09:10:00")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestQueryEndpoint_MalformedRangeIs400(t *testing.T) {
	srv, _ := newTestServer(t)
	w := get(t, srv, "/?fechahora_inicio=garbage")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed fechahora_inicio, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] == "" {
		t.Error("expected an error message in the body")
	}
}

func TestQueryEndpoint_InvertedRangeIs400(t *testing.T) {
	srv, _ := newTestServer(t)
	w := get(t, srv, "/?fechahora_inicio=2025-07-22+10:00:00&fechahora_fin=2025-07-22+09:00:00")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for inverted range, got %d", w.Code)
	}
}

func TestQueryEndpoint_CorruptStoreIs500(t *testing.T) {
	srv, st := newTestServer(t)

	// Overwrite the channel document with garbage through the same path the
	// store uses.
	dir := st.Dir()
	if err := os.WriteFile(dir+"/transcripciones_Canal13.json", []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := get(t, srv, "/?fecha=2025-07-22")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for unreadable store, got %d", w.Code)
	}
}

func TestQueryEndpoint_TextMode(t *testing.T) {
	srv, _ := newTestServer(t)
	w := get(t, srv, "/?fecha=2025-07-22&text")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var item map[string]any
	if err := json.NewDecoder(w.Body).Decode(&item); err != nil {
		t.Fatalf("expected a single object in text mode: %v", err)
	}
	if item["texto"] != "hola" {
		t.Errorf("expected aggregated text hola, got %v", item["texto"])
	}
}

func TestHelpEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	w := get(t, srv, "/help")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var doc struct {
		Endpoint string `json:"endpoint"`
		Params   []struct {
			Name string `json:"name"`
		} `json:"params"`
	}
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatalf("decode help: %v", err)
	}
	if doc.Endpoint != "/" || len(doc.Params) == 0 {
		t.Errorf("expected parameter documentation, got %+v", doc)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	w := get(t, srv, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
