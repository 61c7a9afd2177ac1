package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/prdbuilder/internal/pipeline"
)

// generation looks up the generation named in the URL, writing a 404 if
// it is unknown.
func (s *Server) generation(w http.ResponseWriter, r *http.Request) *pipeline.Generation {
	id := chi.URLParam(r, "genID")
	gen := s.orchestrator.Get(id)
	if gen == nil {
		jsonError(w, "generation not found", http.StatusNotFound)
	}
	return gen
}

func (s *Server) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	gen := s.generation(w, r)
	if gen == nil {
		return
	}
	writeJSON(w, http.StatusOK, gen.Snapshot(r.URL.Query().Get("blocks") != "false"))
}

func (s *Server) handleCancelGeneration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "genID")
	found, cancelled := s.orchestrator.Cancel(id)
	if !found {
		jsonError(w, "generation not found", http.StatusNotFound)
		return
	}
	gen := s.orchestrator.Get(id)
	if gen == nil {
		jsonError(w, "generation not found", http.StatusNotFound)
		return
	}
	snap := gen.Session.Snapshot()

	// purge=true also drops the generation and its text.
	purged := r.URL.Query().Get("purge") == "true" && s.orchestrator.Delete(id)
	s.log.Info("generation cancel requested", "generation_id", id, "cancelled", cancelled, "purged", purged, "state", snap.State)
	writeJSON(w, http.StatusOK, map[string]any{
		"generation_id": id,
		"cancelled":     cancelled,
		"purged":        purged,
		"state":         snap.State,
		"chars":         snap.Chars,
	})
}

func (s *Server) handleGenerationMarkdown(w http.ResponseWriter, r *http.Request) {
	gen := s.generation(w, r)
	if gen == nil || !s.exportable(w, gen) {
		return
	}
	s.writeMarkdown(w, r, gen.ProductName, gen.Session.Text())
}

func (s *Server) handleGenerationPDF(w http.ResponseWriter, r *http.Request) {
	gen := s.generation(w, r)
	if gen == nil || !s.exportable(w, gen) {
		return
	}
	s.writePDF(w, r, gen.ProductName, gen.Session.Text())
}

// exportable rejects exports while text is still arriving. Ended
// generations export whatever text they kept.
func (s *Server) exportable(w http.ResponseWriter, gen *pipeline.Generation) bool {
	if gen.Session.Active() {
		jsonError(w, "generation is still in progress", http.StatusConflict)
		return false
	}
	return true
}
