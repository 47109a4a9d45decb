package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"tubedl/internal/consts"
	"tubedl/internal/entity"
	"tubedl/internal/errs"
)

// MockVideoID is the id the mock provider knows by default.
const MockVideoID = "abc123"

// ErrMockInterrupted is returned by mock streams configured to fail.
var ErrMockInterrupted = errors.New("mock stream interrupted")

// Mock serves canned metadata and synthetic streams. It is used by the
// "mock" provider setting and by tests.
type Mock struct {
	log *slog.Logger

	mu     sync.Mutex
	videos map[string]*entity.Video
	calls  int

	// Chunks is the number of chunks a stream yields.
	Chunks int
	// ChunkSize is the size of one chunk in bytes.
	ChunkSize int
	// Delay is slept before every chunk.
	Delay time.Duration
	// FailAfter makes the stream fail once that many chunks were read. 0 disables.
	FailAfter int
	// UnknownTotal makes Open report a total of 0.
	UnknownTotal bool
	// OpenErr is returned by Open when set.
	OpenErr error
}

// NewMock returns a mock knowing MockVideoID with two video and one audio variant.
// A default stream takes consts.DefaultSimulateTime.
func NewMock(log *slog.Logger) *Mock {
	const (
		chunks    = 10
		chunkSize = 64 * 1024
		size      = chunks * chunkSize
	)

	m := &Mock{
		log:       log.With(slog.String("package", "provider"), slog.String("provider", consts.ProviderMock)),
		videos:    make(map[string]*entity.Video),
		Chunks:    chunks,
		ChunkSize: chunkSize,
		Delay:     consts.DefaultSimulateTime / chunks,
	}

	m.Add(&entity.Video{
		ID:           MockVideoID,
		Title:        `My/Video:"Test"?`,
		Author:       "Mock Channel",
		ThumbnailURL: "https://i.ytimg.com/vi/abc123/hqdefault.jpg",
		Duration:     213,
		ViewCount:    1234567,
		Description:  "A video that only exists in memory.",
		Variants: []entity.Variant{
			{ID: "22", Kind: entity.MediaKindVideo, Quality: "720p", Container: "mp4", Size: size},
			{ID: "18", Kind: entity.MediaKindVideo, Quality: "360p", Container: "mp4", Size: size},
			{ID: "140", Kind: entity.MediaKindAudio, Quality: "128kbps", Container: "mp4", Size: size},
		},
	})

	return m
}

// Add registers video, replacing an existing one with the same id.
func (m *Mock) Add(video *entity.Video) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := *video
	v.Variants = slices.Clone(video.Variants)
	m.videos[v.ID] = &v
}

// Calls reports how many lookups reached the mock.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls
}

// Name implements Provider.
func (m *Mock) Name() string { return consts.ProviderMock }

// Lookup implements Provider.
func (m *Mock) Lookup(ctx context.Context, rawURL string) (*entity.Video, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	id, ok := ContentID(rawURL)
	if !ok || strings.ContainsAny(id, "/?#") {
		return nil, invalidInput("Invalid YouTube URL format. Please check the link.", errs.ErrInvalidURL)
	}

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, contextError("lookup", ctx.Err())
		case <-time.After(m.Delay):
		}
	}

	m.mu.Lock()
	video, ok := m.videos[id]
	m.mu.Unlock()

	if !ok {
		return nil, unavailable("The video is unavailable. It might be private, deleted, or restricted.", errs.ErrVideoUnavailable)
	}

	v := *video
	v.Variants = slices.Clone(video.Variants)

	return &v, nil
}

// Open implements Provider.
func (m *Mock) Open(ctx context.Context, video *entity.Video, variant entity.Variant) (io.ReadCloser, int64, error) {
	if m.OpenErr != nil {
		return nil, 0, m.OpenErr
	}

	if _, ok := video.Variant(variant.ID); !ok {
		return nil, 0, errs.New(errs.KindStreamNotFound, "Stream not found.", errs.ErrStreamNotFound)
	}

	m.log.DebugContext(ctx, "opening mock stream", slog.String("content_id", video.ID), slog.String("variant_id", variant.ID))

	total := int64(m.Chunks * m.ChunkSize)
	if m.UnknownTotal {
		total = 0
	}

	return &mockStream{
		ctx:       ctx,
		chunks:    m.Chunks,
		chunkSize: m.ChunkSize,
		delay:     m.Delay,
		failAfter: m.FailAfter,
	}, total, nil
}

// mockStream yields zero-filled chunks with a delay before each one.
type mockStream struct {
	ctx       context.Context
	chunks    int
	chunkSize int
	delay     time.Duration
	failAfter int

	sent    int
	pending int
}

func (s *mockStream) Read(p []byte) (int, error) {
	if s.pending == 0 {
		if s.failAfter > 0 && s.sent == s.failAfter {
			return 0, ErrMockInterrupted
		}

		if s.sent == s.chunks {
			return 0, io.EOF
		}

		if s.delay > 0 {
			select {
			case <-s.ctx.Done():
				return 0, s.ctx.Err()
			case <-time.After(s.delay):
			}
		}

		s.sent++
		s.pending = s.chunkSize
	}

	n := min(len(p), s.pending)
	clear(p[:n])
	s.pending -= n

	return n, nil
}

func (s *mockStream) Close() error { return nil }
