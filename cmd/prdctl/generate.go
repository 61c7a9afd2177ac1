package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/dgallion1/prdbuilder/internal/parser"
	"github.com/dgallion1/prdbuilder/internal/render"
	"github.com/dgallion1/prdbuilder/internal/stream"
)

const defaultServer = "http://localhost:8090"

type generateOptions struct {
	server      string
	name        string
	description string
	goals       string
	audience    string
	features    []string
	attach      []string
	outDir      string
	styleFile   string
	maxChars    int
	width       int
	timeout     time.Duration
	noPDF       bool
	verbose     bool
}

func runGenerate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts generateOptions
	flags := pflag.NewFlagSet("prdctl generate", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVarP(&opts.server, "server", "s", defaultServer, "prdbuilder server URL")
	flags.StringVarP(&opts.name, "name", "n", "", "Product name (required)")
	flags.StringVarP(&opts.description, "description", "d", "", "Product description (required)")
	flags.StringVar(&opts.goals, "goals", "", "Goals and objectives")
	flags.StringVar(&opts.audience, "audience", "", "Target audience")
	flags.StringArrayVarP(&opts.features, "feature", "f", nil, "Key feature (repeatable)")
	flags.StringArrayVarP(&opts.attach, "attach", "a", nil, "File to attach for context (repeatable)")
	flags.StringVarP(&opts.outDir, "out", "o", ".", "Directory for the saved .md and .pdf")
	flags.StringVar(&opts.styleFile, "style", "", "PDF style YAML file")
	flags.IntVar(&opts.maxChars, "max-chars", render.DefaultMaxChars, "Characters of content kept in the PDF (0 keeps all)")
	flags.IntVarP(&opts.width, "width", "w", 0, "Preview width (0 uses terminal width if available)")
	flags.DurationVar(&opts.timeout, "timeout", stream.DefaultTimeout, "Give up after this long")
	flags.BoolVar(&opts.noPDF, "no-pdf", false, "Save Markdown only")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging on stderr")
	flags.SetInterspersed(true)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: prdctl generate --name NAME --description TEXT [flags]")
		fmt.Fprintln(stderr, "\nStreams a PRD from the server, previews it live and saves it.")
		fmt.Fprintln(stderr, "\nFlags:")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if strings.TrimSpace(opts.name) == "" || strings.TrimSpace(opts.description) == "" {
		flags.Usage()
		return errors.New("--name and --description are required")
	}

	log := newLogger(stderr, opts.verbose)
	style, err := loadStyle(opts.styleFile)
	if err != nil {
		return err
	}

	for _, path := range opts.attach {
		if !parser.IsSupported(path, mime.TypeByExtension(filepath.Ext(path))) {
			log.Warn("attachment type not supported, the server will skip it", "file", path)
		}
	}
	body, contentType, err := generateForm(opts)
	if err != nil {
		return err
	}

	sess := stream.NewSession(opts.timeout)
	sctx := sess.Start(ctx)

	genID, err := generate(sctx, log, opts, body, contentType, sess, stdout)
	if errors.Is(err, stream.ErrCancelled) && genID != "" {
		cancelRemote(ctx, log, opts.server, genID)
	}

	snap := sess.Snapshot()
	if snap.Text == "" {
		return err
	}
	paths, saveErr := saveOutputs(opts.outDir, opts.name, snap.Text, style, opts.maxChars, !opts.noPDF)
	for _, p := range paths {
		fmt.Fprintf(stderr, "saved %s\n", p)
	}
	return errors.Join(err, saveErr)
}

// generate posts the form and streams the response into sess. It returns
// the server's generation ID once the response headers have arrived.
func generate(ctx context.Context, log *slog.Logger, opts generateOptions, body []byte, contentType string, sess *stream.Session, stdout io.Writer) (string, error) {
	url := strings.TrimRight(opts.server, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		sess.OnError(stream.MsgTransport)
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/event-stream")

	log.Debug("posting generation", "url", url, "bytes", len(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", requestFailure(ctx, sess, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := serverError(resp)
		sess.OnError(msg)
		return "", &stream.StreamError{Message: msg, Err: fmt.Errorf("server status %d", resp.StatusCode)}
	}
	genID := resp.Header.Get("X-Generation-ID")
	log.Debug("generation started", "generation_id", genID)

	disp := newDisplay(stdout, resolveWidth(opts.width, stdout), isTerminal(stdout))
	ticker := time.NewTicker(time.Second)
	tickDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				disp.Tick(sess.Snapshot())
			case <-tickDone:
				return
			}
		}
	}()

	err = stream.Consume(ctx, log, resp.Body, sess, disp.Update)

	ticker.Stop()
	close(tickDone)
	snap := sess.Snapshot()
	disp.Finish(sess.Blocks(), summaryLine(snap))
	log.Debug("generation ended", "generation_id", genID, "state", snap.State, "chars", snap.Chars, "deltas", snap.Deltas)
	return genID, err
}

// requestFailure moves sess to its terminal state for a request that failed
// before any response arrived.
func requestFailure(ctx context.Context, sess *stream.Session, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		sess.OnError(stream.MsgTimeout)
		return &stream.StreamError{Message: stream.MsgTimeout, Err: context.DeadlineExceeded}
	case ctx.Err() != nil:
		sess.Cancel()
		return stream.ErrCancelled
	default:
		sess.OnError(stream.MsgTransport)
		return &stream.StreamError{Message: stream.MsgTransport, Err: err}
	}
}

// serverError extracts the message of a JSON error response.
func serverError(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return resp.Status
}

// cancelRemote asks the server to stop a generation. Errors are only logged:
// the server also cancels when the client goes away.
func cancelRemote(ctx context.Context, log *slog.Logger, server, genID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	url := strings.TrimRight(server, "/") + "/api/generations/" + genID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		log.Warn("cancel request failed", "generation_id", genID, "error", err)
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Warn("cancel request failed", "generation_id", genID, "error", err)
		return
	}
	resp.Body.Close()
	log.Debug("generation cancelled on server", "generation_id", genID, "status", resp.StatusCode)
}

// generateForm encodes the product fields and attachments as the multipart
// body expected by /api/generate.
func generateForm(opts generateOptions) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	features := opts.features
	if features == nil {
		features = []string{}
	}
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return nil, "", fmt.Errorf("encode features: %w", err)
	}
	fields := []struct{ name, value string }{
		{"productName", opts.name},
		{"description", opts.description},
		{"goals", opts.goals},
		{"targetAudience", opts.audience},
		{"features", string(featuresJSON)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	for _, path := range opts.attach {
		if err := attachFile(mw, path); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func attachFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("attach %s: %w", path, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("attach %s: %w", path, err)
	}
	return nil
}

// saveOutputs writes the Markdown and, when withPDF is set, the PDF export
// of text into dir. It returns the paths written.
func saveOutputs(dir, name, text string, style render.Style, maxChars int, withPDF bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var paths []string
	mdPath := filepath.Join(dir, render.FileName(name, "md"))
	if err := os.WriteFile(mdPath, render.Markdown(text), 0o644); err != nil {
		return nil, fmt.Errorf("write markdown: %w", err)
	}
	paths = append(paths, mdPath)

	if !withPDF {
		return paths, nil
	}
	pdf, err := render.PDF(name, text, render.WithStyle(style), render.WithMaxChars(maxChars))
	if err != nil {
		return paths, fmt.Errorf("render pdf: %w", err)
	}
	pdfPath := filepath.Join(dir, render.FileName(name, "pdf"))
	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		return paths, fmt.Errorf("write pdf: %w", err)
	}
	return append(paths, pdfPath), nil
}

func loadStyle(path string) (render.Style, error) {
	if path == "" {
		return render.DefaultStyle(), nil
	}
	st, err := render.LoadStyle(path)
	if err != nil {
		return render.Style{}, fmt.Errorf("load style: %w", err)
	}
	return st, nil
}
