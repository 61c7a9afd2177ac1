// Command prdctl generates PRDs against a prdbuilder server from the terminal
// and renders Markdown files to PDF locally.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/prdbuilder/internal/stream"
)

const usage = `Usage: prdctl <command> [flags]

Commands:
  generate   stream a new PRD from a prdbuilder server and save it
  render     convert a Markdown file to a PRD PDF

Run "prdctl <command> --help" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "generate":
		err = runGenerate(ctx, args, os.Stdout, os.Stderr)
	case "render":
		err = runRender(args, os.Stdout, os.Stderr)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		var se *stream.StreamError
		switch {
		case errors.Is(err, stream.ErrCancelled):
			fmt.Fprintln(os.Stderr, "cancelled")
			os.Exit(130)
		case errors.As(err, &se):
			fmt.Fprintln(os.Stderr, se.Message)
		default:
			fmt.Fprintf(os.Stderr, "prdctl: %v\n", err)
		}
		os.Exit(1)
	}
}

// newLogger returns a text logger on w. Only warnings are shown unless
// verbose is set.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
