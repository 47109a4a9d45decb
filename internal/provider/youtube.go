package provider

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"slices"
	"strconv"
	"strings"

	"tubedl/internal/consts"
	"tubedl/internal/entity"
	"tubedl/internal/errs"
	"tubedl/internal/proxymgr"

	"github.com/kkdai/youtube/v2"
)

// youtubeAPI is the part of *youtube.Client the provider uses.
type youtubeAPI interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// YouTube talks to YouTube directly through github.com/kkdai/youtube.
type YouTube struct {
	log    *slog.Logger
	client youtubeAPI
}

// NewYouTube creates a YouTube provider whose traffic goes through proxyMgr.
func NewYouTube(log *slog.Logger, proxyMgr *proxymgr.Manager) *YouTube {
	return &YouTube{
		log:    log.With(slog.String("package", "provider"), slog.String("provider", consts.ProviderYouTube)),
		client: &youtube.Client{HTTPClient: proxyMgr.Client()},
	}
}

// Name implements Provider.
func (y *YouTube) Name() string { return consts.ProviderYouTube }

// Lookup implements Provider.
func (y *YouTube) Lookup(ctx context.Context, rawURL string) (*entity.Video, error) {
	video, err := y.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, classifyYouTubeError(err)
	}

	out := &entity.Video{
		ID:          video.ID,
		Title:       video.Title,
		Author:      video.Author,
		Duration:    int(video.Duration.Seconds()),
		ViewCount:   video.Views,
		Description: video.Description,
		Variants:    youtubeVariants(video.Formats),
	}

	if n := len(video.Thumbnails); n > 0 {
		// thumbnails are listed smallest first
		out.ThumbnailURL = video.Thumbnails[n-1].URL
	}

	y.log.DebugContext(ctx, "video looked up", slog.Any("video", out))

	return out, nil
}

// Open implements Provider. The stream is re-resolved so signed URLs are fresh.
func (y *YouTube) Open(ctx context.Context, video *entity.Video, variant entity.Variant) (io.ReadCloser, int64, error) {
	itag, err := strconv.Atoi(variant.ID)
	if err != nil {
		return nil, 0, errs.New(errs.KindStreamNotFound, "Stream not found.", errs.ErrStreamNotFound)
	}

	yv, err := y.client.GetVideoContext(ctx, video.ID)
	if err != nil {
		return nil, 0, classifyYouTubeError(err)
	}

	format, err := findFormat(yv.Formats, itag)
	if err != nil {
		return nil, 0, err
	}

	rc, size, err := y.client.GetStreamContext(ctx, yv, format)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, contextError("open stream", err)
		}

		return nil, 0, transferFailure("starting stream failed", err)
	}

	return rc, size, nil
}

func findFormat(formats youtube.FormatList, itag int) (*youtube.Format, error) {
	fl := formats.Itag(itag)
	if len(fl) == 0 {
		return nil, errs.New(errs.KindStreamNotFound, "Stream not found.", errs.ErrStreamNotFound)
	}

	return &fl[0], nil
}

// youtubeVariants lists progressive mp4 streams by resolution, highest first,
// followed by audio-only streams by bitrate with mp4 ahead of webm.
func youtubeVariants(formats youtube.FormatList) []entity.Variant {
	var progressive, audio []youtube.Format

	for _, f := range formats {
		switch {
		case f.AudioChannels > 0 && f.Width > 0 && f.Height > 0:
			if container(f.MimeType) == "mp4" && f.QualityLabel != "" {
				progressive = append(progressive, f)
			}
		case f.AudioChannels > 0 && f.Width == 0 && f.Height == 0:
			audio = append(audio, f)
		}
	}

	slices.SortStableFunc(progressive, func(a, b youtube.Format) int {
		return cmp.Or(cmp.Compare(b.Height, a.Height), cmp.Compare(bitrate(b), bitrate(a)))
	})

	slices.SortStableFunc(audio, func(a, b youtube.Format) int {
		return cmp.Or(cmp.Compare(containerRank(a.MimeType), containerRank(b.MimeType)),
			cmp.Compare(bitrate(b), bitrate(a)))
	})

	variants := make([]entity.Variant, 0, len(progressive)+len(audio))

	for _, f := range progressive {
		variants = append(variants, entity.Variant{
			ID:        strconv.Itoa(f.ItagNo),
			Kind:      entity.MediaKindVideo,
			Quality:   f.QualityLabel,
			Size:      int64(f.ContentLength),
			Container: container(f.MimeType),
		})
	}

	for _, f := range audio {
		variants = append(variants, entity.Variant{
			ID:        strconv.Itoa(f.ItagNo),
			Kind:      entity.MediaKindAudio,
			Quality:   fmt.Sprintf("%dkbps", bitrate(f)/1000),
			Size:      int64(f.ContentLength),
			Container: container(f.MimeType),
		})
	}

	return variants
}

// container maps "video/mp4; codecs=..." to "mp4".
func container(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType, _, _ = strings.Cut(mimeType, ";")
	}

	_, sub, ok := strings.Cut(strings.TrimSpace(mediaType), "/")
	if !ok || sub == "" {
		return "bin"
	}

	return sub
}

func containerRank(mimeType string) int {
	if container(mimeType) == "mp4" {
		return 0
	}

	return 1
}

func bitrate(f youtube.Format) int {
	if f.AverageBitrate > 0 {
		return f.AverageBitrate
	}

	return f.Bitrate
}

func classifyYouTubeError(err error) error {
	switch {
	case errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength):
		return invalidInput("Invalid YouTube URL format. Please check the link.", err)
	case errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrNotPlayableInEmbed):
		return unavailable("The video is unavailable. It might be private, deleted, or restricted.", err)
	}

	var statusErr *youtube.ErrPlayabiltyStatus
	if errors.As(err, &statusErr) {
		return unavailable("The video is unavailable. It might be private, deleted, or restricted.", err)
	}

	var codeErr youtube.ErrUnexpectedStatusCode
	if errors.As(err, &codeErr) {
		return transferFailure(fmt.Sprintf("YouTube answered with status %d", int(codeErr)), err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return contextError("lookup", err)
	}

	return transferFailure("fetching video metadata failed", err)
}
