package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgallion1/prdbuilder/internal/markdown"
	"github.com/dgallion1/prdbuilder/internal/pipeline"
	"github.com/dgallion1/prdbuilder/internal/render"
)

// maxExportBody bounds JSON export and preview requests.
const maxExportBody = 8 << 20

type exportRequest struct {
	ProductName string `json:"productName"`
	Content     string `json:"content"`
}

func (s *Server) handleExportMarkdown(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decodeJSON(w, r, maxExportBody, &req) {
		return
	}
	s.writeMarkdown(w, r, req.ProductName, req.Content)
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decodeJSON(w, r, maxExportBody, &req) {
		return
	}
	s.writePDF(w, r, req.ProductName, req.Content)
}

func (s *Server) writeMarkdown(w http.ResponseWriter, r *http.Request, productName, body string) {
	s.writeDownload(w, r, render.FileName(productName, "md"), render.ContentTypeMarkdown, render.Markdown(body))
}

func (s *Server) writePDF(w http.ResponseWriter, r *http.Request, productName, body string) {
	out, err := render.PDF(productName, body,
		render.WithStyle(s.style),
		render.WithMaxChars(s.cfg.PDFMaxChars),
	)
	if err != nil {
		msg := render.UserMessage
		var rerr *render.Error
		if errors.As(err, &rerr) {
			msg = rerr.UserMessage()
		}
		s.log.Error("pdf export failed", "product", productName, "error", err)
		jsonError(w, msg, http.StatusInternalServerError)
		return
	}
	s.writeDownload(w, r, render.FileName(productName, "pdf"), render.ContentTypePDF, out)
}

// writeDownload sends an attachment with an ETag over its content.
func (s *Server) writeDownload(w http.ResponseWriter, r *http.Request, filename, contentType string, data []byte) {
	etag := `"` + pipeline.ContentHashHex(data)[:32] + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type previewBlock struct {
	markdown.Block
	Spans []markdown.Span `json:"spans"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, maxExportBody, &req) {
		return
	}
	blocks := markdown.Parse(req.Content)
	out := make([]previewBlock, len(blocks))
	for i, b := range blocks {
		out[i] = previewBlock{Block: b, Spans: b.Spans()}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"blocks": out,
		"stats":  markdown.ComputeStats(req.Content),
	})
}
