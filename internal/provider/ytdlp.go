package provider

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"tubedl/internal/config"
	"tubedl/internal/consts"
	"tubedl/internal/entity"
	"tubedl/internal/errs"
	"tubedl/internal/proxymgr"
	"tubedl/pkg/maths"
	"tubedl/pkg/ptr"

	"github.com/lrstanley/go-ytdlp"
)

var (
	maxJSONSize = 32 * 1024 * 1024 // 32 MiB scanner buffer, info documents are large
	bufSize     = 64 * 1024
)

// YTdlp resolves metadata by running `yt-dlp --dump-json` and streams the
// resolved format URL over HTTP.
type YTdlp struct {
	log      *slog.Logger
	cfg      *config.Config
	proxyMgr *proxymgr.Manager
	client   *http.Client
}

// NewYTdlp creates a yt-dlp provider.
func NewYTdlp(log *slog.Logger, cfg *config.Config, proxyMgr *proxymgr.Manager) *YTdlp {
	return &YTdlp{
		log:      log.With(slog.String("package", "provider"), slog.String("provider", consts.ProviderYTdlp)),
		cfg:      cfg,
		proxyMgr: proxyMgr,
		client:   proxyMgr.Client(),
	}
}

// Name implements Provider.
func (d *YTdlp) Name() string { return consts.ProviderYTdlp }

// Lookup implements Provider.
func (d *YTdlp) Lookup(ctx context.Context, rawURL string) (*entity.Video, error) {
	log := d.log

	command := ytdlp.New().
		CacheDir(d.cfg.Dir.Cache).
		SkipDownload().
		DumpJSON().
		NoPlaylist().
		NoWarnings()

	proxyURL := d.proxyMgr.GetRandomProxy()
	if proxyURL != "" {
		log.DebugContext(ctx, "using proxy for lookup", slog.String("proxy", proxyURL))
		command = command.Proxy(proxyURL)
	}

	if d.cfg.Dir.CookieFile != "" {
		command = command.Cookies(d.cfg.Dir.CookieFile)
	}

	res, err := command.Run(ctx, rawURL)
	if err != nil {
		log.ErrorContext(ctx, "ytdlp run", slog.Any("error", err), slog.Any("result", Result{res}))

		var stderr string
		if res != nil {
			stderr = res.Stderr
		}

		if proxyURL != "" && ctx.Err() == nil && isNetworkStderr(stderr) {
			d.proxyMgr.MarkFailed(proxyURL)
		}

		return nil, classifyYtdlpError(ctx, stderr, err)
	}

	if proxyURL != "" {
		d.proxyMgr.MarkSuccess(proxyURL)
	}

	infos, err := ParseDumpJSON(res.Stdout)
	if err != nil {
		return nil, errs.New(errs.KindInternal, "unreadable yt-dlp output", err)
	}

	if len(infos) == 0 {
		return nil, unavailable("The video is unavailable. It might be private, deleted, or restricted.", errs.ErrVideoUnavailable)
	}

	video := ComposeVideo(infos[0])

	log.DebugContext(ctx, "video looked up", slog.Any("video", video), slog.Any("result", Result{res}))

	return video, nil
}

// Open implements Provider.
func (d *YTdlp) Open(ctx context.Context, _ *entity.Video, variant entity.Variant) (io.ReadCloser, int64, error) {
	if variant.SourceURL == "" {
		return nil, 0, errs.New(errs.KindStreamNotFound, "Stream not found.", errs.ErrStreamNotFound)
	}

	return openHTTP(ctx, d.client, variant.SourceURL, variant.Headers)
}

// ParseDumpJSON parses one info document per stdout line. Lines that are not
// JSON (progress noise, warnings) are skipped.
func ParseDumpJSON(stdout string) ([]InfoJSON, error) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, bufSize), maxJSONSize)

	var res []InfoJSON

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] != '{' {
			continue
		}

		var info InfoJSON
		if err := json.Unmarshal([]byte(line), &info); err == nil {
			res = append(res, info)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan yt-dlp stdout: %w", err)
	}

	return res, nil
}

// ComposeVideo maps an info document to a Video. Progressive mp4 formats come
// first by height, then audio-only formats by bitrate with mp4/m4a ahead.
func ComposeVideo(info InfoJSON) *entity.Video {
	var progressive, audio []FormatJSON

	for _, f := range info.Formats {
		if f.URL == "" || strings.HasPrefix(f.Protocol, "m3u8") || f.Protocol == "http_dash_segments" {
			continue
		}

		hasVideo := f.Vcodec != "" && f.Vcodec != "none"
		hasAudio := f.Acodec != "" && f.Acodec != "none"

		switch {
		case hasVideo && hasAudio && f.Ext == "mp4":
			progressive = append(progressive, f)
		case hasAudio && !hasVideo:
			audio = append(audio, f)
		}
	}

	slices.SortStableFunc(progressive, func(a, b FormatJSON) int {
		return cmp.Or(cmp.Compare(ptr.Deref(b.Height), ptr.Deref(a.Height)),
			cmp.Compare(ptr.Deref(b.Tbr), ptr.Deref(a.Tbr)))
	})

	slices.SortStableFunc(audio, func(a, b FormatJSON) int {
		return cmp.Or(cmp.Compare(audioExtRank(a.Ext), audioExtRank(b.Ext)),
			cmp.Compare(ptr.Deref(b.Abr), ptr.Deref(a.Abr)))
	})

	video := &entity.Video{
		ID:           info.ID,
		Title:        info.Title,
		Author:       cmp.Or(info.Uploader, info.Channel),
		ThumbnailURL: ptr.Deref(info.Thumbnail),
		Duration:     maths.RoundFloat64ToInt(ptr.Deref(info.Duration)),
		ViewCount:    maths.RoundFloat64ToInt(ptr.Deref(info.ViewCount)),
		Description:  info.Description,
		Variants:     make([]entity.Variant, 0, len(progressive)+len(audio)),
	}

	for _, f := range progressive {
		video.Variants = append(video.Variants, entity.Variant{
			ID:        f.FormatID,
			Kind:      entity.MediaKindVideo,
			Quality:   fmt.Sprintf("%dp", maths.RoundFloat64ToInt(ptr.Deref(f.Height))),
			Size:      formatSize(f),
			Container: f.Ext,
			SourceURL: f.URL,
			Headers:   f.HTTPHeaders,
		})
	}

	for _, f := range audio {
		video.Variants = append(video.Variants, entity.Variant{
			ID:        f.FormatID,
			Kind:      entity.MediaKindAudio,
			Quality:   fmt.Sprintf("%dkbps", maths.RoundFloat64ToInt(ptr.Deref(f.Abr))),
			Size:      formatSize(f),
			Container: f.Ext,
			SourceURL: f.URL,
			Headers:   f.HTTPHeaders,
		})
	}

	return video
}

func formatSize(f FormatJSON) int64 {
	return int64(maths.RoundFloat64ToInt(ptr.DerefOr(f.Filesize, ptr.Deref(f.FilesizeApprox))))
}

func audioExtRank(ext string) int {
	switch ext {
	case "m4a", "mp4":
		return 0
	default:
		return 1
	}
}

// yt-dlp reports failures only as text on stderr.
var (
	stderrInvalid = []string{
		"is not a valid url",
		"unsupported url",
		"incomplete youtube id",
		"invalid url",
	}
	stderrUnavailable = []string{
		"private video",
		"video unavailable",
		"this video has been removed",
		"sign in to confirm your age",
		"members-only",
		"this video is not available",
		"account associated with this video has been terminated",
	}
	stderrNetwork = []string{
		"unable to download",
		"connection",
		"timed out",
		"proxy",
		"http error 5",
		"name or service not known",
	}
)

func classifyYtdlpError(ctx context.Context, stderr string, err error) error {
	lower := strings.ToLower(stderr)

	switch {
	case ctx.Err() != nil:
		return contextError("lookup", err)
	case containsAny(lower, stderrInvalid):
		return invalidInput("Invalid YouTube URL format. Please check the link.", err)
	case containsAny(lower, stderrUnavailable):
		return unavailable("The video is unavailable. It might be private, deleted, or restricted.", err)
	default:
		return transferFailure("yt-dlp lookup failed", err)
	}
}

func isNetworkStderr(stderr string) bool {
	return containsAny(strings.ToLower(stderr), stderrNetwork)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}
