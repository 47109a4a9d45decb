// Package provider resolves video URLs into metadata and opens variant streams.
package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"tubedl/internal/config"
	"tubedl/internal/consts"
	"tubedl/internal/entity"
	"tubedl/internal/errs"
	"tubedl/internal/observability"
	"tubedl/internal/proxymgr"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// Provider looks up videos and streams their variants.
type Provider interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Lookup resolves rawURL into video metadata and its variants.
	Lookup(ctx context.Context, rawURL string) (*entity.Video, error)
	// Open starts the byte stream of one variant. total is 0 when the size is unknown.
	Open(ctx context.Context, video *entity.Video, variant entity.Variant) (rc io.ReadCloser, total int64, err error)
}

// New builds the provider named by cfg.App.Provider, wrapped so that
// concurrent lookups of one URL share a single backend call.
func New(log *slog.Logger, cfg *config.Config, proxyMgr *proxymgr.Manager, metrics *observability.Metrics) (Provider, error) {
	var p Provider

	switch cfg.App.Provider {
	case consts.ProviderYouTube, "":
		p = NewYouTube(log, proxyMgr)
	case consts.ProviderYTdlp:
		p = NewYTdlp(log, cfg, proxyMgr)
	case consts.ProviderMock:
		p = NewMock(log)
	default:
		return nil, fmt.Errorf("%q: %w", cfg.App.Provider, errs.ErrProviderNotFound)
	}

	return NewShared(log, cfg, p, metrics), nil
}

// WatchURL returns the canonical page URL of a content id.
func WatchURL(contentID string) string {
	return watchURLPrefix + url.QueryEscape(contentID)
}

// ContentID extracts the video id from a watch, short or embed URL.
func ContentID(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	if id := u.Query().Get("v"); id != "" {
		return id, true
	}

	path := strings.Trim(u.Path, "/")

	switch {
	case strings.HasSuffix(u.Hostname(), "youtu.be") && path != "":
		return path, true
	case strings.HasPrefix(path, "shorts/"), strings.HasPrefix(path, "embed/"), strings.HasPrefix(path, "live/"):
		id := path[strings.Index(path, "/")+1:]

		return id, id != ""
	}

	return "", false
}

func unavailable(msg string, err error) error {
	return errs.New(errs.KindResourceUnavailable, msg, err)
}

func invalidInput(msg string, err error) error {
	return errs.New(errs.KindInvalidInput, msg, err)
}

func transferFailure(msg string, err error) error {
	return errs.New(errs.KindTransferFailure, msg, err)
}

// openHTTP GETs a resolved media URL. A non-2xx answer is a transfer failure.
func openHTTP(ctx context.Context, client *http.Client, rawURL string, headers map[string]string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, errs.New(errs.KindStreamNotFound, "Stream not found.", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, contextError("open stream", err)
		}

		return nil, 0, transferFailure("starting stream failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()

		return nil, 0, transferFailure(fmt.Sprintf("stream answered with status %d", resp.StatusCode),
			fmt.Errorf("%d: %w", resp.StatusCode, errs.ErrUnexpectedStatus))
	}

	return resp.Body, max(resp.ContentLength, 0), nil
}
