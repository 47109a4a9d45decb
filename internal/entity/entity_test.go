package entity_test

import (
	"encoding/json"
	"testing"

	"tubedl/internal/entity"
	"tubedl/internal/errs"
)

func TestStatusRank(t *testing.T) {
	order := []entity.Status{
		entity.StatusInitializing,
		entity.StatusStarting,
		entity.StatusDownloading,
		entity.StatusCompleted,
	}

	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("%s.Rank() = %d, want < %s.Rank() = %d",
				order[i-1], order[i-1].Rank(), order[i], order[i].Rank())
		}
	}

	if entity.StatusError.Rank() != entity.StatusCompleted.Rank() {
		t.Errorf("error and completed must share a rank")
	}

	if entity.Status("bogus").Rank() != -1 {
		t.Errorf("unknown status must rank -1")
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status entity.Status
		want   bool
	}{
		{entity.StatusInitializing, false},
		{entity.StatusStarting, false},
		{entity.StatusDownloading, false},
		{entity.StatusCompleted, true},
		{entity.StatusError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMediaKind(t *testing.T) {
	tests := []struct {
		in      string
		want    entity.MediaKind
		wantErr bool
	}{
		{in: "video", want: entity.MediaKindVideo},
		{in: "audio", want: entity.MediaKindAudio},
		{in: "Video", wantErr: true},
		{in: "", wantErr: true},
		{in: "subtitles", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := entity.ParseMediaKind(tt.in)
			if tt.wantErr {
				if errs.KindOf(err) != errs.KindInvalidInput {
					t.Fatalf("ParseMediaKind(%q) kind = %s, want %s", tt.in, errs.KindOf(err), errs.KindInvalidInput)
				}

				return
			}

			if err != nil || got != tt.want {
				t.Fatalf("ParseMediaKind(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestProgressRecordEvent(t *testing.T) {
	rec := entity.ProgressRecord{
		Key:             "k",
		Status:          entity.StatusDownloading,
		Percent:         50,
		DownloadedBytes: 512 * 1024,
		TotalBytes:      1024 * 1024,
		Filename:        "a.mp4",
	}

	raw, err := json.Marshal(rec.Event())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"progress":50,"status":"downloading","filename":"a.mp4","downloaded_mb":0.5,"total_mb":1}`
	if string(raw) != want {
		t.Errorf("event = %s, want %s", raw, want)
	}

	rec.Status = entity.StatusError
	rec.ErrorDetail = "boom"

	if got := rec.Event().Error; got != "boom" {
		t.Errorf("event error = %q, want boom", got)
	}
}

func TestVideoVariant(t *testing.T) {
	v := &entity.Video{Variants: []entity.Variant{
		{ID: "22", Kind: entity.MediaKindVideo},
		{ID: "140", Kind: entity.MediaKindAudio},
	}}

	if got, ok := v.Variant("140"); !ok || got.Kind != entity.MediaKindAudio {
		t.Errorf("Variant(140) = %+v, %v", got, ok)
	}

	if _, ok := v.Variant("18"); ok {
		t.Errorf("Variant(18) found, want missing")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{59, "00:59"},
		{61, "01:01"},
		{3599, "59:59"},
		{3600, "01:00:00"},
		{3725, "01:02:05"},
		{-5, "00:00"},
	}

	for _, tt := range tests {
		if got := entity.FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
