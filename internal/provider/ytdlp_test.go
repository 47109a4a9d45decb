package provider_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"tubedl/internal/entity"
	"tubedl/internal/errs"
	"tubedl/internal/provider"
)

const infoLine = `{"_type":"video","id":"abc123","title":"First","uploader":"Someone","view_count":1500.0,"duration":213.4,"thumbnail":"https://i.ytimg.com/vi/abc123/maxres.jpg","formats":[` +
	`{"format_id":"sb0","ext":"mhtml","protocol":"mhtml","url":"https://x/sb","vcodec":"none","acodec":"none"},` +
	`{"format_id":"18","ext":"mp4","protocol":"https","url":"https://x/18","height":360,"tbr":500,"filesize":1000,"vcodec":"avc1","acodec":"mp4a"},` +
	`{"format_id":"22","ext":"mp4","protocol":"https","url":"https://x/22","height":720,"tbr":1500,"filesize_approx":2500.6,"vcodec":"avc1","acodec":"mp4a","http_headers":{"User-Agent":"ua"}},` +
	`{"format_id":"137","ext":"mp4","protocol":"https","url":"https://x/137","height":1080,"vcodec":"avc1","acodec":"none"},` +
	`{"format_id":"hls-1","ext":"mp4","protocol":"m3u8_native","url":"https://x/hls","height":1080,"vcodec":"avc1","acodec":"mp4a"},` +
	`{"format_id":"251","ext":"webm","protocol":"https","url":"https://x/251","abr":160,"vcodec":"none","acodec":"opus"},` +
	`{"format_id":"140","ext":"m4a","protocol":"https","url":"https://x/140","abr":129.5,"vcodec":"none","acodec":"mp4a"}` +
	`]}`

func TestParseDumpJSON(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		wantIDs []string
	}{
		{
			name:    "single JSON line",
			stdout:  infoLine + "\n",
			wantIDs: []string{"abc123"},
		},
		{
			name:    "multiple entries with blanks and stray lines",
			stdout:  "[youtube] Extracting URL\n\n" + infoLine + "\nDeleting original file\n" + `{"id":"two","title":"Second"}` + "\n",
			wantIDs: []string{"abc123", "two"},
		},
		{
			name:    "broken JSON is skipped",
			stdout:  `{"id": "half"` + "\n",
			wantIDs: nil,
		},
		{
			name:    "empty",
			stdout:  "",
			wantIDs: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := provider.ParseDumpJSON(tc.stdout)
			if err != nil {
				t.Fatalf("ParseDumpJSON() failed: %v", err)
			}

			if len(got) != len(tc.wantIDs) {
				t.Fatalf("got %d results, want %d", len(got), len(tc.wantIDs))
			}

			for idx, info := range got {
				if info.ID != tc.wantIDs[idx] {
					t.Errorf("got ID = %q, want %q", info.ID, tc.wantIDs[idx])
				}
			}
		})
	}
}

func TestComposeVideo(t *testing.T) {
	infos, err := provider.ParseDumpJSON(infoLine)
	if err != nil || len(infos) != 1 {
		t.Fatalf("ParseDumpJSON() = %d infos, %v", len(infos), err)
	}

	video := provider.ComposeVideo(infos[0])

	if video.ID != "abc123" || video.Title != "First" || video.Author != "Someone" {
		t.Errorf("metadata = %q %q %q", video.ID, video.Title, video.Author)
	}

	if video.Duration != 213 || video.ViewCount != 1500 {
		t.Errorf("duration = %d, views = %d", video.Duration, video.ViewCount)
	}

	if video.ThumbnailURL != "https://i.ytimg.com/vi/abc123/maxres.jpg" {
		t.Errorf("thumbnail = %q", video.ThumbnailURL)
	}

	want := []entity.Variant{
		{ID: "22", Kind: entity.MediaKindVideo, Quality: "720p", Size: 2501, Container: "mp4", SourceURL: "https://x/22"},
		{ID: "18", Kind: entity.MediaKindVideo, Quality: "360p", Size: 1000, Container: "mp4", SourceURL: "https://x/18"},
		{ID: "140", Kind: entity.MediaKindAudio, Quality: "130kbps", Container: "m4a", SourceURL: "https://x/140"},
		{ID: "251", Kind: entity.MediaKindAudio, Quality: "160kbps", Container: "webm", SourceURL: "https://x/251"},
	}

	if len(video.Variants) != len(want) {
		t.Fatalf("got %d variants, want %d: %+v", len(video.Variants), len(want), video.Variants)
	}

	for i, w := range want {
		g := video.Variants[i]
		if g.ID != w.ID || g.Kind != w.Kind || g.Quality != w.Quality || g.Size != w.Size ||
			g.Container != w.Container || g.SourceURL != w.SourceURL {
			t.Errorf("variant %d = %+v, want %+v", i, g, w)
		}
	}

	if video.Variants[0].Headers["User-Agent"] != "ua" {
		t.Errorf("headers not carried: %v", video.Variants[0].Headers)
	}
}

func TestYTdlp_OpenWithoutSource(t *testing.T) {
	d := provider.NewYTdlp(discardLogger(), nil, nil)

	_, _, err := d.Open(context.Background(), &entity.Video{ID: "abc123"}, entity.Variant{ID: "22"})
	if errs.KindOf(err) != errs.KindStreamNotFound {
		t.Errorf("kind = %q, want stream_not_found", errs.KindOf(err))
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
