package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matifariasc/vosk-speech/internal/query"
	"github.com/matifariasc/vosk-speech/internal/store"
)

type Server struct {
	router *chi.Mux
	engine *query.Engine
	logger *slog.Logger
	port   int
}

func NewServer(port int, engine *query.Engine, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		engine: engine,
		logger: logger,
		port:   port,
	}

	router.Get("/", s.queryHandler)
	router.Get("/help", s.help)
	router.Get("/health", s.health)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router, for serving through a caller-owned http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	params, err := query.ParseParams(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}

	items, err := s.engine.Query(params)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Exact-file lookups and aggregated text return a single object; every
	// other query returns an array.
	if params.File != "" || params.Text {
		writeJSON(w, http.StatusOK, items[0])
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case query.IsInput(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, query.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrUnreadable):
		s.logger.Error("backing store unreadable", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// paramDoc describes one supported query parameter for the help endpoint.
type paramDoc struct {
	Name        string `json:"name"`
	Example     string `json:"example"`
	Description string `json:"description"`
}

var helpDoc = struct {
	Endpoint string     `json:"endpoint"`
	Params   []paramDoc `json:"params"`
}{
	Endpoint: "/",
	Params: []paramDoc{
		{"file", "file=Canal13/Canal13_2025-07-22_09-00-00.mp4", "exact record lookup; returns a single object, 404 if not tracked"},
		{"medio", "medio=Canal13", "restrict to one channel"},
		{"fecha", "fecha=2025-07-22", "restrict to one capture date"},
		{"hours", "hours=48", "freshness window for default listings"},
		{"hora", "hora=09:00:03", "point-in-time filter; requires fecha"},
		{"fechahora", "fechahora=2025-07-22 09:00:03", "point-in-time filter with explicit date"},
		{"fechahora_inicio", "fechahora_inicio=2025-07-22 09:00:00", "range start"},
		{"fechahora_fin", "fechahora_fin=2025-07-22 10:00:00", "range end; must not precede the start"},
		{"hora_inicio", "hora_inicio=09:00", "range start as time of day; requires fecha"},
		{"hora_fin", "hora_fin=10:00", "range end as time of day; uses fecha_fin when given, else fecha"},
		{"fecha_fin", "fecha_fin=2025-07-23", "date for hora_fin when the range crosses midnight"},
		{"order", "order=newest", "descending by capture time; default is ascending"},
		{"text", "text", "aggregated-text output: concatenates matching segments in timestamp order"},
	},
}

func (s *Server) help(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, helpDoc)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
