package filestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tubedl/internal/config"
	"tubedl/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := &config.Config{
		Dir:     config.Dir{Downloads: filepath.Join(t.TempDir(), "downloads")},
		Storage: config.Storage{TTL: 24 * time.Hour, CleanupInterval: time.Hour},
	}

	s, err := New(log, cfg, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	return s
}

func TestWrite(t *testing.T) {
	s := newTestStore(t)
	payload := bytes.Repeat([]byte("tubedl"), 100_000)

	full, err := s.Write(t.Context(), "My_Video_720p.mp4", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	if full != filepath.Join(s.Dir(), "My_Video_720p.mp4") {
		t.Errorf("full path = %s", full)
	}

	got, err := os.ReadFile(full)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	if !bytes.Equal(got, payload) {
		t.Errorf("content mismatch: %d bytes, want %d", len(got), len(payload))
	}

	if _, err := os.Stat(full + partSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Errorf(".part file left behind: %v", err)
	}

	if !s.Exists("My_Video_720p.mp4") {
		t.Errorf("Exists() = false after Write")
	}

	if s.locks.count() != 0 {
		t.Errorf("lock table not empty after Write")
	}
}

func TestWriteInvalidFilename(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"", ".", "..", "../escape.mp4", "a/b.mp4", `a\b.mp4`, "/etc/passwd"} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Write(t.Context(), name, strings.NewReader("x"))
			if !errors.Is(err, errs.ErrInvalidFilename) {
				t.Fatalf("Write(%q) err = %v, want ErrInvalidFilename", name, err)
			}
		})
	}
}

type failingReader struct {
	n int
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n <= 0 {
		return 0, io.ErrUnexpectedEOF
	}

	f.n--

	return copy(p, "chunk"), nil
}

func TestWriteFailureRemovesPart(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Write(t.Context(), "broken.mp4", &failingReader{n: 3})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Write err = %v, want ErrUnexpectedEOF", err)
	}

	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 0 {
		t.Errorf("directory not empty after failed write: %v", entries)
	}
}

func TestWriteCanceled(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := s.Write(ctx, "canceled.mp4", strings.NewReader("data"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Write err = %v, want context.Canceled", err)
	}

	if s.Exists("canceled.mp4") {
		t.Errorf("canceled write produced a file")
	}
}

func TestWriteSameFilenameSerialized(t *testing.T) {
	s := newTestStore(t)

	const writers = 8

	payloads := make([][]byte, writers)
	for i := range writers {
		payloads[i] = bytes.Repeat([]byte{byte('a' + i)}, 512*1024)
	}

	var wg sync.WaitGroup

	for i := range writers {
		wg.Go(func() {
			if _, err := s.Write(t.Context(), "same.mp4", bytes.NewReader(payloads[i])); err != nil {
				t.Errorf("Write() failed: %v", err)
			}
		})
	}

	wg.Wait()

	got, err := os.ReadFile(filepath.Join(s.Dir(), "same.mp4"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	// the file must be exactly one writer's payload, never interleaved
	matched := false

	for _, p := range payloads {
		if bytes.Equal(got, p) {
			matched = true
		}
	}

	if !matched {
		t.Errorf("file content is not any single writer's payload")
	}
}

func TestServe(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Write(t.Context(), "song.m4a", strings.NewReader("audio-bytes")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/files/song.m4a", nil)

	if err := s.Serve(rec, req, "song.m4a"); err != nil {
		t.Fatalf("Serve() failed: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=song.m4a" {
		t.Errorf("Content-Disposition = %q", got)
	}

	if got := rec.Header().Get("Content-Type"); got != "audio/mp4" {
		t.Errorf("Content-Type = %q, want audio/mp4", got)
	}

	if rec.Body.String() != "audio-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}

	// ranges come from http.ServeContent
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/files/song.m4a", nil)
	req.Header.Set("Range", "bytes=0-4")

	if err := s.Serve(rec, req, "song.m4a"); err != nil {
		t.Fatalf("Serve() failed: %v", err)
	}

	if rec.Code != http.StatusPartialContent || rec.Body.String() != "audio" {
		t.Errorf("range response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestServeMissing(t *testing.T) {
	s := newTestStore(t)

	err := s.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), "nope.mp4")
	if !errors.Is(err, errs.ErrFileNotFound) {
		t.Fatalf("Serve err = %v, want ErrFileNotFound", err)
	}
}

func TestSweep(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	for _, name := range []string{"old.mp4", "fresh.mp4", "abandoned.mp4.part"} {
		if err := os.WriteFile(filepath.Join(s.Dir(), name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	old := now.Add(-25 * time.Hour)
	for _, name := range []string{"old.mp4", "abandoned.mp4.part"} {
		if err := os.Chtimes(filepath.Join(s.Dir(), name), old, old); err != nil {
			t.Fatal(err)
		}
	}

	if got := s.Sweep(t.Context(), now); got != 2 {
		t.Errorf("Sweep() = %d, want 2", got)
	}

	if s.Exists("old.mp4") {
		t.Errorf("old.mp4 survived")
	}

	if !s.Exists("fresh.mp4") {
		t.Errorf("fresh.mp4 removed")
	}

	if got := s.Sweep(t.Context(), now); got != 0 {
		t.Errorf("second Sweep() = %d, want 0", got)
	}
}
