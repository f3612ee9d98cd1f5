// Command clypse-reconcile repairs the catalog and landing directory while
// the server is stopped.
//
// It removes catalog entries whose published file is gone (with their
// thumbnails) and deletes upload fragments left in the landing directory.
// Staged uploads are left in place for the server to ingest on its next
// start.
//
// Usage:
//
//	clypse-reconcile [-dry-run]
//
// Configuration is read from the same environment variables and .env file
// as the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"clypse/internal/database"
	"clypse/internal/library"
	"clypse/internal/logging"
	"clypse/internal/reconcile"
	"clypse/internal/startup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("clypse-reconcile", flag.ContinueOnError)
	flags.SetOutput(stderr)
	dryRun := flags.Bool("dry-run", false, "report what would be removed without removing it")
	verbose := flags.Bool("v", false, "log every step")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if !*verbose {
		logging.SetLevel(logging.LevelWarn)
	}

	cfg, err := startup.Resolve()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(stdout, "No catalog at %s, nothing to reconcile\n", cfg.DatabasePath)
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	db, err := database.New(ctx, cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: Failed to open catalog: %v\n", err)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to close catalog: %v\n", err)
		}
	}()

	lib := library.New(db, cfg.VideosDir, cfg.ThumbnailsDir, nil)
	rec := reconcile.New(reconcile.Config{
		UploadsDir:    cfg.UploadsDir,
		VideosDir:     cfg.VideosDir,
		ThumbnailsDir: cfg.ThumbnailsDir,
		DryRun:        *dryRun,
	}, lib, nil)

	rep := rec.Run(ctx)
	printReport(stdout, rep, *dryRun)

	if len(rep.Errors) > 0 {
		for _, err := range rep.Errors {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func printReport(w io.Writer, rep reconcile.Report, dryRun bool) {
	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}

	fmt.Fprintf(w, "%s %d orphaned catalog entries\n", verb, len(rep.Orphans))
	for _, name := range rep.Orphans {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintf(w, "%s %d upload artifacts\n", verb, len(rep.Artifacts))
	for _, name := range rep.Artifacts {
		fmt.Fprintf(w, "  %s\n", name)
	}
}
