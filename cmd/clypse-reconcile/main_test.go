package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clypse/internal/database"
)

type env struct {
	data    string
	uploads string
	videos  string
}

func setupEnv(t *testing.T) env {
	t.Helper()
	root := t.TempDir()
	e := env{
		data:    filepath.Join(root, "data"),
		uploads: filepath.Join(root, "uploads"),
		videos:  filepath.Join(root, "videos"),
	}
	for _, dir := range []string{e.data, e.uploads, filepath.Join(e.videos, "thumbnails")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("DATA_DIR", e.data)
	t.Setenv("UPLOADS_DIR", e.uploads)
	t.Setenv("VIDEOS_DIR", e.videos)
	return e
}

func seed(t *testing.T, e env, files ...string) {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, filepath.Join(e.data, "clypse.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	uuids := []string{
		"6f1c2b1e-8a5d-4c3e-9b7a-1d2e3f405162",
		"0b9d5f3a-2c4e-4f6a-8b1c-3d5e7f901234",
	}
	for i, name := range files {
		if err := db.Create(ctx, &database.Video{UUID: uuids[i], Title: name, FileName: name}); err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunNoCatalog(t *testing.T) {
	setupEnv(t)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 0 {
		t.Fatalf("Expected exit code 0, got %d (%s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "nothing to reconcile") {
		t.Errorf("Expected nothing to reconcile, got %q", stdout.String())
	}
}

func TestRunDryRun(t *testing.T) {
	e := setupEnv(t)
	seed(t, e, "kept.mp4", "gone.mp4")
	writeFile(t, filepath.Join(e.videos, "kept.mp4"))
	chunk := filepath.Join(e.uploads, "abc.clypse-chunk.0")
	writeFile(t, chunk)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-dry-run"}, &stdout, &stderr); code != 0 {
		t.Fatalf("Expected exit code 0, got %d (%s)", code, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{"Would remove 1 orphaned catalog entries", "gone.mp4", "Would remove 1 upload artifacts", "abc.clypse-chunk.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got %q", want, out)
		}
	}
	if _, err := os.Stat(chunk); err != nil {
		t.Errorf("Expected chunk to survive a dry run, got %v", err)
	}

	db, err := database.New(context.Background(), filepath.Join(e.data, "clypse.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	n, err := db.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Expected 2 entries after a dry run, got %d", n)
	}
}

func TestRunRemoves(t *testing.T) {
	e := setupEnv(t)
	seed(t, e, "gone.mp4")
	chunk := filepath.Join(e.uploads, "abc.clypse-chunk.0")
	temp := filepath.Join(e.uploads, "abc.clypse-temp")
	staged := filepath.Join(e.uploads, "waiting.mp4")
	writeFile(t, chunk)
	writeFile(t, temp)
	writeFile(t, staged)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 0 {
		t.Fatalf("Expected exit code 0, got %d (%s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Removed 1 orphaned catalog entries") {
		t.Errorf("Expected orphan removal, got %q", stdout.String())
	}
	if !strings.Contains(stdout.String(), "Removed 2 upload artifacts") {
		t.Errorf("Expected artifact removal, got %q", stdout.String())
	}

	for _, path := range []string{chunk, temp} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Expected %s to be removed, got %v", filepath.Base(path), err)
		}
	}
	if _, err := os.Stat(staged); err != nil {
		t.Errorf("Expected staged upload to be left for the server, got %v", err)
	}
}

func TestRunBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-nope"}, &stdout, &stderr); code != 2 {
		t.Errorf("Expected exit code 2, got %d", code)
	}
}
