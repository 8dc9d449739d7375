package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vigilhq/vigil/internal/energy"
	"github.com/vigilhq/vigil/internal/escalate"
	"github.com/vigilhq/vigil/internal/guardian"
	"github.com/vigilhq/vigil/internal/store"
)

// Server is the vigil HTTP API server.
type Server struct {
	db         *store.DB
	engine     *guardian.Engine
	ledger     *energy.Ledger
	classifier *escalate.Classifier
	router     chi.Router
	version    string
	started    time.Time
}

// New creates a new Server over the core services.
func New(db *store.DB, engine *guardian.Engine, ledger *energy.Ledger, classifier *escalate.Classifier, version string) *Server {
	s := &Server{
		db:         db,
		engine:     engine,
		ledger:     ledger,
		classifier: classifier,
		version:    version,
		started:    time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/members", s.handleRegisterMember)
		r.Get("/members/{memberID}", s.handleGetMember)
		r.Post("/members/{memberID}/reports", s.handleSubmitReport)
		r.Get("/members/{memberID}/energy", s.handleGetEnergy)
		r.Post("/members/{memberID}/energy/spend", s.handleSpendEnergy)

		// Invoked by an external scheduler; authn/z is the caller's concern.
		r.Post("/scan", s.handleScan)
		r.Get("/scan/preview", s.handleScanPreview)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
