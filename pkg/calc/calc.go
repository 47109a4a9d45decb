package calc

import (
	"time"
)

// Percent calculates the percentage of total that downloaded represents,
// clamped to [0, 100]. The second result is false when total is unknown.
func Percent(downloaded, total int64) (float64, bool) {
	if total <= 0 {
		return 0, false
	}

	p := float64(downloaded) / float64(total) * 100

	return min(max(p, 0), 100), true
}

// ETA calculates the estimated time of arrival.
func ETA(downloaded, total int64, started time.Time) time.Duration {
	if total > 0 && downloaded > 0 {
		downloaded := float64(downloaded)
		total := float64(total)
		elapsed := time.Since(started)
		eta := time.Duration(float64(elapsed) * (total/downloaded - 1))
		return eta
	}
	return 0
}
