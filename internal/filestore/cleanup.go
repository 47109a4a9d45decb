package filestore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// CleanupExpired removes expired files every interval until ctx is done.
func (s *Store) CleanupExpired(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.cfg.Storage.TTL <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := s.log.With(slog.String("action", "cleanup_expired_files"), slog.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx, time.Now())
		case <-ctx.Done():
			log.Info("cleanup expired files stopped")

			return
		}
	}
}

// Sweep removes files whose modification time is older than the storage TTL
// and returns how many were deleted.
func (s *Store) Sweep(ctx context.Context, now time.Time) int {
	log := s.log

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.ErrorContext(ctx, "read downloads dir", slog.Any("error", err))

		return 0
	}

	deleted := 0

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil || !s.expired(info.ModTime(), now) {
			continue
		}

		name := entry.Name()

		removed, err := s.removeExpired(name, now)
		if err != nil {
			log.ErrorContext(ctx, "failed to delete file", slog.String("filename", name), slog.Any("error", err))

			continue
		}

		if !removed {
			continue
		}

		deleted++

		log.DebugContext(ctx, "successfully deleted file", slog.String("filename", name))
	}

	if deleted > 0 {
		s.metrics.RecordCleanup(deleted)
		log.InfoContext(ctx, "expired files removed", slog.Int("count", deleted))
	}

	return deleted
}

// removeExpired re-checks the file under its write lock, so a file rewritten
// since the directory scan is kept.
func (s *Store) removeExpired(name string, now time.Time) (bool, error) {
	unlock := s.locks.lock(trimPart(name))
	defer unlock()

	full := filepath.Join(s.dir, name)

	info, err := os.Stat(full)
	if err != nil || !s.expired(info.ModTime(), now) {
		return false, nil
	}

	if err := os.Remove(full); err != nil {
		return false, err
	}

	return true, nil
}

func (s *Store) expired(modTime, now time.Time) bool {
	return now.Sub(modTime) > s.cfg.Storage.TTL
}

func trimPart(name string) string {
	if filepath.Ext(name) == partSuffix {
		return name[:len(name)-len(partSuffix)]
	}

	return name
}
