package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/dgallion1/prdbuilder/internal/markdown"
	"github.com/dgallion1/prdbuilder/internal/render"
)

func runRender(args []string, stdout, stderr io.Writer) error {
	var (
		outPath   string
		name      string
		styleFile string
		maxChars  int
		width     int
		preview   bool
	)
	flags := pflag.NewFlagSet("prdctl render", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVarP(&outPath, "out", "o", "", "Output PDF path (default <name>-PRD.pdf)")
	flags.StringVarP(&name, "name", "n", "", "Product name for the cover (default input file name)")
	flags.StringVar(&styleFile, "style", "", "PDF style YAML file")
	flags.IntVar(&maxChars, "max-chars", render.DefaultMaxChars, "Characters of content kept in the PDF (0 keeps all)")
	flags.IntVarP(&width, "width", "w", 0, "Preview width (0 uses terminal width if available)")
	flags.BoolVarP(&preview, "preview", "p", false, "Also print the document to stdout")
	flags.SetInterspersed(true)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: prdctl render [flags] FILE")
		fmt.Fprintln(stderr, "\nRenders a Markdown file as a PRD PDF. Use - to read stdin.")
		fmt.Fprintln(stderr, "\nFlags:")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return errors.New("expected exactly one input file")
	}

	input := flags.Arg(0)
	body, err := readInput(input)
	if err != nil {
		return err
	}
	if name == "" {
		name = nameFromPath(input)
	}
	if outPath == "" {
		outPath = render.FileName(name, "pdf")
	}

	style, err := loadStyle(styleFile)
	if err != nil {
		return err
	}

	if preview {
		disp := newDisplay(stdout, resolveWidth(width, stdout), isTerminal(stdout))
		st := markdown.ComputeStats(body)
		disp.Finish(markdown.Parse(body), fmt.Sprintf("%d words · %d sections · ~%d pages · %d min read",
			st.Words, st.Sections, st.Pages, st.ReadingMinutes))
	}

	pdf, err := render.PDF(name, body, render.WithStyle(style), render.WithMaxChars(maxChars))
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, pdf, 0o644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	fmt.Fprintf(stderr, "saved %s\n", outPath)
	return nil
}

func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

// nameFromPath derives a product name from a file name, "task_tracker.md"
// becoming "task tracker".
func nameFromPath(path string) string {
	if path == "-" {
		return render.DefaultProductName
	}
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSuffix(base, "-PRD")
	return strings.NewReplacer("_", " ", "-", " ").Replace(base)
}
