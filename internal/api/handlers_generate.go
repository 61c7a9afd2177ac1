package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/prdbuilder/internal/chunker"
	"github.com/dgallion1/prdbuilder/internal/llm"
	"github.com/dgallion1/prdbuilder/internal/parser"
	"github.com/dgallion1/prdbuilder/internal/stream"
)

// attachmentTruncated is appended to attachment text cut by the budget.
const attachmentTruncated = "\n\n[Attachment truncated]"

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	log := s.log.With("request_id", middleware.GetReqID(r.Context()))

	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("upload exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	form, err := formFromRequest(r)
	if err == nil {
		err = form.Validate()
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) > s.cfg.MaxFiles {
		jsonError(w, fmt.Sprintf("at most %d files are allowed", s.cfg.MaxFiles), http.StatusBadRequest)
		return
	}
	atts := s.readAttachments(log, files)

	release, err := s.orchestrator.Acquire()
	if err != nil {
		jsonError(w, "Too many generations in progress. Please try again shortly.", http.StatusTooManyRequests)
		return
	}
	defer release()

	names := make([]string, len(atts))
	for i, a := range atts {
		names[i] = a.Name
	}
	gen := s.orchestrator.Begin(form.ProductName, names)
	prompt := llm.BuildPRDPrompt(form, atts)
	log = log.With("generation_id", gen.ID)
	log.Info("generation started",
		"product", form.ProductName,
		"attachments", len(atts),
		"prompt_chars", len(prompt),
	)

	stream.SetHeaders(w.Header())
	w.Header().Set("X-Generation-ID", gen.ID)

	// The server's WriteTimeout is shorter than a generation may run.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(s.cfg.GenerationTimeout + 30*time.Second)); err != nil {
		log.Debug("write deadline not supported", "error", err)
	}
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	if err := s.orchestrator.Run(r.Context(), gen, prompt, stream.NewWriter(w)); err != nil {
		log.Info("generation ended early", "error", err)
	}
}

// formFromRequest reads the product fields of a generate request.
func formFromRequest(r *http.Request) (llm.FormData, error) {
	features, err := llm.ParseFeatures(r.FormValue("features"))
	if err != nil {
		return llm.FormData{}, err
	}
	return llm.FormData{
		ProductName:    r.FormValue("productName"),
		Description:    r.FormValue("description"),
		Goals:          r.FormValue("goals"),
		TargetAudience: r.FormValue("targetAudience"),
		Features:       features,
	}, nil
}

// readAttachments extracts text from uploaded files. Files that cannot be
// read or parsed are logged and skipped. Text is then fitted into the
// attachment token budget.
func (s *Server) readAttachments(log *slog.Logger, files []*multipart.FileHeader) []parser.Attachment {
	var atts []parser.Attachment
	for _, fh := range files {
		filename := sanitizeFilename(fh.Filename)
		flog := log.With("filename", filename)

		if fh.Size > s.cfg.MaxUploadBytes {
			flog.Warn("attachment too large, skipping", "size", fh.Size)
			continue
		}
		p, err := parser.ForFile(filename, fh.Header.Get("Content-Type"), parser.Options{
			PdftotextFallback: s.cfg.PDFFallbackPdftotext,
		})
		if err != nil {
			flog.Warn("unsupported attachment, skipping", "type", filepath.Ext(filename), "error", err)
			continue
		}

		att, err := parseUpload(p, fh, filename)
		if err != nil {
			flog.Warn("attachment parse failed, skipping", "error", err)
			continue
		}
		flog.Debug("attachment parsed", "type", att.Type, "chars", len(att.Content))
		atts = append(atts, att)
	}
	return fitAttachments(atts, s.cfg.MaxAttachmentTokens)
}

func parseUpload(p parser.Parser, fh *multipart.FileHeader, filename string) (parser.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return parser.Attachment{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return parser.Attachment{}, fmt.Errorf("read upload: %w", err)
	}
	return p.Parse(bytes.NewReader(data), filename)
}

// fitAttachments shares maxTokens among the text attachments, in upload
// order. Image placeholders are left as they are.
func fitAttachments(atts []parser.Attachment, maxTokens int) []parser.Attachment {
	var idx []int
	var texts []string
	for i, a := range atts {
		if !a.IsImage() {
			idx = append(idx, i)
			texts = append(texts, a.Content)
		}
	}
	fitted, cut := chunker.Budget(texts, maxTokens)
	for j, i := range idx {
		atts[i].Content = fitted[j]
		if cut[j] {
			atts[i].Content += attachmentTruncated
		}
	}
	return atts
}

// decodeJSON reads a JSON request body of at most limit bytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
