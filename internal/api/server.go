package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/prdbuilder/internal/config"
	"github.com/dgallion1/prdbuilder/internal/pipeline"
	"github.com/dgallion1/prdbuilder/internal/render"
)

// Server is the HTTP API server for prdbuilder.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	model        string
	style        render.Style
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, model string, style render.Style, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		model:        model,
		style:        style,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)

		r.Route("/generations/{genID}", func(r chi.Router) {
			r.Get("/", s.handleGenerationStatus)
			r.Delete("/", s.handleCancelGeneration)
			r.Get("/export.md", s.handleGenerationMarkdown)
			r.Get("/export.pdf", s.handleGenerationPDF)
		})

		r.Post("/export/markdown", s.handleExportMarkdown)
		r.Post("/export/pdf", s.handleExportPDF)
		r.Post("/preview", s.handlePreview)

		r.Get("/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
