package provider

import (
	"fmt"
	"log/slog"

	"github.com/lrstanley/go-ytdlp"
)

// Result wraps ytdlp.Result for custom logging.
type Result struct {
	*ytdlp.Result
}

// LogValue implements the slog.LogValuer interface for custom logging of Result.
// Stdout is omitted: with --dump-json it is the whole info document.
func (r Result) LogValue() slog.Value {
	if r.Result == nil {
		return slog.GroupValue(slog.String("error", "nil result"))
	}

	var outputLogs string
	for _, log := range r.OutputLogs {
		outputLogs += fmt.Sprintf("%v\n", log)
	}

	return slog.GroupValue(
		slog.String("executable", r.Executable),
		slog.String("args", fmt.Sprintf("%v", r.Args)),
		slog.Int("stdout_len", len(r.Stdout)),
		slog.String("stderr", r.Stderr),
		slog.String("output_logs", outputLogs),
	)
}

// InfoJSON is the subset of `yt-dlp --dump-json` output used here.
// Nullable numbers are pointers.
type InfoJSON struct {
	Type        string       `json:"_type"`
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Channel     string       `json:"channel"`
	Uploader    string       `json:"uploader"`
	ViewCount   *float64     `json:"view_count"`
	Duration    *float64     `json:"duration"`
	Thumbnail   *string      `json:"thumbnail"`
	WebpageURL  string       `json:"webpage_url"`
	Extractor   string       `json:"extractor"`
	Formats     []FormatJSON `json:"formats"`
}

// FormatJSON is one entry of InfoJSON.Formats.
type FormatJSON struct {
	FormatID       string            `json:"format_id"`
	FormatNote     string            `json:"format_note"`
	Ext            string            `json:"ext"`
	Protocol       string            `json:"protocol"`
	URL            string            `json:"url"`
	Resolution     string            `json:"resolution"`
	Width          *float64          `json:"width"`
	Height         *float64          `json:"height"`
	Filesize       *float64          `json:"filesize"`
	FilesizeApprox *float64          `json:"filesize_approx"`
	Tbr            *float64          `json:"tbr"`
	Abr            *float64          `json:"abr"`
	Vcodec         string            `json:"vcodec"`
	Acodec         string            `json:"acodec"`
	HTTPHeaders    map[string]string `json:"http_headers"`
}
