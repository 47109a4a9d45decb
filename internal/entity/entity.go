// Package entity defines the core entities used in the application.
package entity

import (
	"fmt"
	"log/slog"
	"time"

	"tubedl/internal/errs"
)

// Status represents the status of a download as seen by progress observers.
type Status string

const (
	// StatusInitializing indicates that an observer connected before the download registered.
	StatusInitializing Status = "initializing"
	// StatusStarting indicates that the download is accepted and is about to start.
	StatusStarting Status = "starting"
	// StatusDownloading indicates that the byte transfer is in progress.
	StatusDownloading Status = "downloading"
	// StatusCompleted indicates that all bytes were written.
	StatusCompleted Status = "completed"
	// StatusError indicates that the download failed.
	StatusError Status = "error"
)

// Rank orders statuses along the forward lifecycle. Unknown statuses rank -1.
func (s Status) Rank() int {
	switch s {
	case StatusInitializing:
		return 0
	case StatusStarting:
		return 1
	case StatusDownloading:
		return 2
	case StatusCompleted, StatusError:
		return 3
	default:
		return -1
	}
}

// Terminal reports whether no further transitions may follow.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// MediaKind is the kind of a variant.
type MediaKind string

const (
	// MediaKindVideo is a progressive audio+video stream.
	MediaKindVideo MediaKind = "video"
	// MediaKindAudio is an audio-only stream.
	MediaKindAudio MediaKind = "audio"
)

// ParseMediaKind validates a media kind taken from a request path.
func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case MediaKindVideo, MediaKindAudio:
		return MediaKind(s), nil
	default:
		return "", errs.New(errs.KindInvalidInput,
			fmt.Sprintf("media kind must be video or audio, got %q", s), errs.ErrInvalidMediaKind)
	}
}

const bytesPerMB = 1024 * 1024

// ProgressRecord is the progress state of one download slot.
type ProgressRecord struct {
	Key             string
	Status          Status
	Percent         float64
	DownloadedBytes int64
	TotalBytes      int64
	Filename        string
	ErrorDetail     string
	UpdatedAt       time.Time
}

// ProgressEvent is the public projection of a ProgressRecord sent to observers.
type ProgressEvent struct {
	Progress     float64 `json:"progress"`
	Status       Status  `json:"status"`
	Filename     string  `json:"filename"`
	DownloadedMB float64 `json:"downloaded_mb"`
	TotalMB      float64 `json:"total_mb"`
	Error        string  `json:"error,omitempty"`
}

// Event projects the record onto its public fields.
func (p ProgressRecord) Event() ProgressEvent {
	return ProgressEvent{
		Progress:     p.Percent,
		Status:       p.Status,
		Filename:     p.Filename,
		DownloadedMB: float64(p.DownloadedBytes) / bytesPerMB,
		TotalMB:      float64(p.TotalBytes) / bytesPerMB,
		Error:        p.ErrorDetail,
	}
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (p ProgressRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("key", p.Key),
		slog.String("status", string(p.Status)),
		slog.Float64("percent", p.Percent),
		slog.Int64("downloaded_bytes", p.DownloadedBytes),
		slog.Int64("total_bytes", p.TotalBytes),
		slog.String("filename", p.Filename),
		slog.String("error", p.ErrorDetail),
	)
}

// Video is the metadata of one source video.
type Video struct {
	ID           string    `json:"content_id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Duration     int       `json:"duration_seconds"`
	ViewCount    int       `json:"view_count"`
	Description  string    `json:"description"`
	Variants     []Variant `json:"variants"`
}

// Variant returns the variant with the given id.
func (v *Video) Variant(id string) (Variant, bool) {
	for _, variant := range v.Variants {
		if variant.ID == id {
			return variant, true
		}
	}

	return Variant{}, false
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (v Video) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", v.ID),
		slog.String("title", v.Title),
		slog.String("author", v.Author),
		slog.Int("duration", v.Duration),
		slog.Int("variants", len(v.Variants)),
	)
}

// Variant is one selectable stream of a video.
type Variant struct {
	ID   string    `json:"id"`
	Kind MediaKind `json:"kind"`
	// Quality is the resolution for video (720p) or the bitrate for audio (128kbps).
	Quality   string `json:"resolution_or_bitrate"`
	Size      int64  `json:"size_bytes"`
	Container string `json:"container"`

	// SourceURL and Headers locate the media for providers that resolve a direct URL.
	SourceURL string            `json:"-"`
	Headers   map[string]string `json:"-"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (v Variant) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", v.ID),
		slog.String("kind", string(v.Kind)),
		slog.String("quality", v.Quality),
		slog.Int64("size", v.Size),
		slog.String("container", v.Container),
	)
}

// FormatDuration formats seconds as HH:MM:SS, or MM:SS below one hour.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}

	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}

	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
