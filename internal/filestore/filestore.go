// Package filestore persists completed downloads and serves them back.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"tubedl/internal/config"
	"tubedl/internal/consts"
	"tubedl/internal/errs"
	"tubedl/internal/observability"
)

const partSuffix = consts.PartSuffix

// Store writes files into a single flat directory.
type Store struct {
	log     *slog.Logger
	cfg     *config.Config
	metrics *observability.Metrics
	dir     string
	locks   *keyedMutex
}

// New creates the downloads directory if needed and returns a Store over it.
func New(log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) (*Store, error) {
	dir := cfg.Dir.Downloads

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create downloads dir: %w", err)
	}

	return &Store{
		log:     log.With(slog.String("package", "filestore")),
		cfg:     cfg,
		metrics: metrics,
		dir:     dir,
		locks:   newKeyedMutex(),
	}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// Path resolves filename inside the storage directory. Anything that is not
// a plain file name is refused.
func (s *Store) Path(filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." ||
		filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("%q: %w", filename, errs.ErrInvalidFilename)
	}

	return filepath.Join(s.dir, filename), nil
}

// Write copies src into filename and returns the full path. Bytes go to a
// .part file first and are renamed into place once complete, so readers never
// see a partial file. Writers to the same filename are serialized and the
// later one wins.
func (s *Store) Write(ctx context.Context, filename string, src io.Reader) (string, error) {
	full, err := s.Path(filename)
	if err != nil {
		return "", err
	}

	unlock := s.locks.lock(filename)
	defer unlock()

	tmp := full + partSuffix

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Base(tmp), err)
	}

	buf := make([]byte, consts.DefaultChunkSize)

	n, err := io.CopyBuffer(f, &ctxReader{ctx: ctx, r: src}, buf)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)

		return "", fmt.Errorf("copy after %d bytes: %w", n, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)

		return "", fmt.Errorf("close %s: %w", filepath.Base(tmp), err)
	}

	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)

		return "", fmt.Errorf("rename into place: %w", err)
	}

	s.metrics.RecordFileWritten()
	s.log.DebugContext(ctx, "file written", slog.String("filename", filename), slog.Int64("size", n))

	return full, nil
}

// Open opens a completed file.
func (s *Store) Open(filename string) (*os.File, fs.FileInfo, error) {
	full, err := s.Path(filename)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%s: %w", filename, errs.ErrFileNotFound)
	}

	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", filename, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, nil, fmt.Errorf("stat %s: %w", filename, err)
	}

	if info.IsDir() {
		_ = f.Close()

		return nil, nil, fmt.Errorf("%s: %w", filename, errs.ErrFileNotFound)
	}

	return f, info, nil
}

// Exists reports whether a completed file named filename is stored.
func (s *Store) Exists(filename string) bool {
	full, err := s.Path(filename)
	if err != nil {
		return false
	}

	info, err := os.Stat(full)

	return err == nil && info.Mode().IsRegular()
}

// Serve writes filename as an attachment. Range and HEAD requests are
// handled by http.ServeContent.
func (s *Store) Serve(w http.ResponseWriter, r *http.Request, filename string) error {
	f, info, err := s.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))

	w.Header().Set("Content-Type", contentType(filename))

	http.ServeContent(w, r, filename, info.ModTime(), f)

	return nil
}

// mediaTypes covers the containers providers hand out. The system mime
// table is not guaranteed to know them.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4a":  "audio/mp4",
	".webm": "video/webm",
	".3gp":  "video/3gpp",
	".mp3":  "audio/mpeg",
	".opus": "audio/ogg",
}

func contentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))

	if ctype, ok := mediaTypes[ext]; ok {
		return ctype
	}

	if ctype := mime.TypeByExtension(ext); ctype != "" {
		return ctype
	}

	return "application/octet-stream"
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
