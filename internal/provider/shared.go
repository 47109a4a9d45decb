package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"tubedl/internal/config"
	"tubedl/internal/entity"
	"tubedl/internal/errs"
	"tubedl/internal/observability"
	"tubedl/pkg/urls"

	"golang.org/x/sync/singleflight"
)

// Shared validates lookup input and collapses concurrent lookups of the same
// URL into one backend call.
type Shared struct {
	log     *slog.Logger
	cfg     *config.Config
	inner   Provider
	metrics *observability.Metrics
	group   singleflight.Group
}

// NewShared wraps p.
func NewShared(log *slog.Logger, cfg *config.Config, p Provider, metrics *observability.Metrics) *Shared {
	return &Shared{
		log:     log.With(slog.String("package", "provider"), slog.String("provider", p.Name())),
		cfg:     cfg,
		inner:   p,
		metrics: metrics,
	}
}

// Name implements Provider.
func (s *Shared) Name() string { return s.inner.Name() }

// Lookup implements Provider. The backend call runs detached from ctx, so one
// caller giving up does not fail the others waiting on the same URL.
func (s *Shared) Lookup(ctx context.Context, rawURL string) (*entity.Video, error) {
	raw := urls.FixURL(urls.Normalize(rawURL))
	if rawURL == "" || !urls.IsURLValid(raw) {
		return nil, invalidInput("Invalid YouTube URL format. Please check the link.", errs.ErrInvalidURL)
	}

	ch := s.group.DoChan(raw, func() (any, error) {
		lctx := context.WithoutCancel(ctx)

		if s.cfg.App.LookupTimeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(lctx, s.cfg.App.LookupTimeout)

			defer cancel()
		}

		return s.inner.Lookup(lctx, raw)
	})

	select {
	case <-ctx.Done():
		return nil, contextError("lookup", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			kind := errs.KindOf(res.Err)
			s.metrics.RecordProviderRequest(s.Name(), "error")
			s.metrics.RecordProviderError(s.Name(), string(kind))
			s.log.WarnContext(ctx, "lookup failed", slog.String("url", raw), slog.Any("error", res.Err))

			if errors.Is(res.Err, context.DeadlineExceeded) && kind == errs.KindInternal {
				return nil, contextError("lookup", res.Err)
			}

			return nil, res.Err
		}

		s.metrics.RecordProviderRequest(s.Name(), "ok")

		video, ok := res.Val.(*entity.Video)
		if !ok || video == nil {
			return nil, errs.New(errs.KindInternal, "provider returned no video", nil)
		}

		if res.Shared {
			s.log.DebugContext(ctx, "lookup shared", slog.String("url", raw))
		}

		// callers may hold the result while another lookup returns too
		clone := *video
		clone.Variants = slices.Clone(video.Variants)

		return &clone, nil
	}
}

// Open implements Provider.
func (s *Shared) Open(ctx context.Context, video *entity.Video, variant entity.Variant) (io.ReadCloser, int64, error) {
	rc, total, err := s.inner.Open(ctx, video, variant)
	if err != nil {
		s.metrics.RecordProviderError(s.Name(), string(errs.KindOf(err)))

		if errs.KindOf(err) == errs.KindInternal && ctx.Err() != nil {
			return nil, 0, contextError("open stream", err)
		}

		return nil, 0, err
	}

	return rc, total, nil
}

func contextError(op string, err error) error {
	return transferFailure(fmt.Sprintf("%s timed out or was canceled", op), err)
}
