package progress

import (
	"context"
	"log/slog"
	"time"
)

// CleanupExpired removes expired records every interval until ctx is done.
func (reg *Registry) CleanupExpired(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := reg.log.With(slog.String("action", "cleanup_expired_records"), slog.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			reg.Sweep(ctx, time.Now())
		case <-ctx.Done():
			log.Info("cleanup expired records stopped")

			return
		}
	}
}

// Sweep removes terminal records older than the progress TTL and
// non-terminal records idle longer than the stale limit. It returns the
// number of removed records.
func (reg *Registry) Sweep(ctx context.Context, now time.Time) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	removed := 0

	for key, rec := range reg.records {
		if !reg.expired(rec.Status.Terminal(), rec.UpdatedAt, now) {
			continue
		}

		delete(reg.records, key)
		removed++

		reg.log.DebugContext(ctx, "progress record removed", slog.Any("record", *rec))
	}

	if removed == 0 {
		reg.log.DebugContext(ctx, "no expired records found to clean up")

		return 0
	}

	reg.metrics.RecordSwept(removed)
	reg.metrics.SetRecords(len(reg.records))

	reg.log.InfoContext(ctx, "expired records removed", slog.Int("count", removed))

	return removed
}

func (reg *Registry) expired(terminal bool, updatedAt, now time.Time) bool {
	age := now.Sub(updatedAt)

	if terminal {
		return reg.cfg.Progress.TTL > 0 && age > reg.cfg.Progress.TTL
	}

	return reg.cfg.Progress.StaleAfter > 0 && age > reg.cfg.Progress.StaleAfter
}
