// Package response writes the JSON envelope used by the API endpoints.
package response

import (
	"encoding/json"
	"net/http"
	"net/url"

	"tubedl/internal/entity"

	"github.com/dustin/go-humanize"
)

type Response struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    any    `json:"data"`
}

func WriteJSON(w http.ResponseWriter, status int, message string, data any, err error) {
	var errorMsg string
	if err != nil {
		errorMsg = err.Error()
	}

	r := Response{
		Message: message,
		Data:    data,
		Error:   errorMsg,
	}

	bytes, err := json.Marshal(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes)
}

func OK(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusOK, message, res, err)
}

func BadRequest(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusBadRequest, message, nil, err)
}

func UnprocessableEntity(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusUnprocessableEntity, message, nil, err)
}

// Error writes a failed envelope with an explicit status.
func Error(w http.ResponseWriter, status int, message string, err error) {
	WriteJSON(w, status, message, nil, err)
}

// Info is the metadata answer of POST /v1/info.
type Info struct {
	ContentID       string    `json:"content_id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	Duration        string    `json:"duration"`
	DurationSeconds int       `json:"duration_seconds"`
	ViewCount       int       `json:"view_count"`
	Description     string    `json:"description"`
	FilenameBase    string    `json:"filename_base"`
	Variants        []Variant `json:"variants"`
}

// Variant is one downloadable stream in Info.
type Variant struct {
	ID         string           `json:"id"`
	Kind       entity.MediaKind `json:"kind"`
	Quality    string           `json:"resolution_or_bitrate"`
	Container  string           `json:"container"`
	Size       int64            `json:"size_bytes"`
	SizeHuman  string           `json:"size,omitempty"`
	DownloadTo string           `json:"download_path"`
}

// NewInfo projects video onto the public answer.
func NewInfo(video *entity.Video, filenameBase string) Info {
	info := Info{
		ContentID:       video.ID,
		Title:           video.Title,
		Author:          video.Author,
		ThumbnailURL:    video.ThumbnailURL,
		Duration:        entity.FormatDuration(video.Duration),
		DurationSeconds: video.Duration,
		ViewCount:       video.ViewCount,
		Description:     video.Description,
		FilenameBase:    filenameBase,
		Variants:        make([]Variant, 0, len(video.Variants)),
	}

	for _, v := range video.Variants {
		out := Variant{
			ID:         v.ID,
			Kind:       v.Kind,
			Quality:    v.Quality,
			Container:  v.Container,
			Size:       v.Size,
			DownloadTo: "/download/" + url.PathEscape(video.ID) + "/" + url.PathEscape(v.ID) + "/" + string(v.Kind),
		}

		if v.Size > 0 {
			out.SizeHuman = humanize.Bytes(uint64(v.Size))
		}

		info.Variants = append(info.Variants, out)
	}

	return info
}
