// Package httprouter exposes download, progress, metadata and file endpoints.
package httprouter

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"tubedl/internal/config"
	"tubedl/internal/entity"
	"tubedl/internal/errs"
	"tubedl/internal/infrastructure/delivery/http/middleware"
	"tubedl/internal/observability"
	"tubedl/internal/publisher"
	"tubedl/internal/session"
)

// Downloader runs one blocking download session.
type Downloader interface {
	Download(ctx context.Context, contentID, variantID string, kind entity.MediaKind) (session.Result, error)
}

// Resolver looks up video metadata.
type Resolver interface {
	Lookup(ctx context.Context, rawURL string) (*entity.Video, error)
}

// Streamer streams progress snapshots of one key.
type Streamer interface {
	Run(ctx context.Context, key string, emit publisher.EmitFunc) error
}

// FileServer answers with a stored file.
type FileServer interface {
	Serve(w http.ResponseWriter, r *http.Request, filename string) error
}

// Services are the collaborators the handlers call.
type Services struct {
	Downloader Downloader
	Resolver   Resolver
	SSE        Streamer
	WebSocket  Streamer
	Files      FileServer
}

type chain []func(http.Handler) http.Handler

func (c chain) then(h http.Handler) http.Handler {
	for _, mw := range slices.Backward(c) {
		h = mw(h)
	}

	return h
}

type Router struct {
	*http.ServeMux
	log         *slog.Logger
	cfg         *config.Config
	metrics     *observability.Metrics
	globalChain chain
	svc         Services
}

func New(log *slog.Logger, cfg *config.Config, svc Services, metrics *observability.Metrics) *Router {
	r := &Router{
		ServeMux: http.NewServeMux(),
		log:      log.With(slog.String("package", "httprouter")),
		cfg:      cfg,
		metrics:  metrics,
		svc:      svc,
	}

	r.SetGlobalMiddlewares()
	r.SetRoutes()

	return r
}

func (r *Router) Use(middleware ...func(http.Handler) http.Handler) {
	r.globalChain = append(r.globalChain, middleware...)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.globalChain.then(r.ServeMux).ServeHTTP(w, req)
}

func (r *Router) SetGlobalMiddlewares() {
	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
		middleware.Logger,
		// last, so it sees the request the mux fills Pattern on
		middleware.Metrics(r.metrics),
	)
}

func (r *Router) SetRoutes() {
	r.SetRoutesHealthcheck()
	r.SetRoutesDownload()
	r.SetRoutesProgress()
	r.SetRoutesInfo()
	r.SetRoutesFiles()
}

func (r *Router) SetRoutesHealthcheck() {
	r.HandleFunc("GET /v1/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("GET /metrics", observability.Handler())
}

func (r *Router) SetRoutesDownload() {
	r.HandleFunc("GET /download/{content_id}/{variant_id}/{media_kind}", r.Download)
}

func (r *Router) SetRoutesProgress() {
	r.HandleFunc("GET /progress/{content_id}/{variant_id}/{media_kind}", r.ProgressSSE)
	r.HandleFunc("GET /ws/progress/{content_id}/{variant_id}/{media_kind}", r.ProgressWebSocket)
}

func (r *Router) SetRoutesInfo() {
	r.HandleFunc("POST /v1/info", r.Info)
}

func (r *Router) SetRoutesFiles() {
	r.HandleFunc("GET /files/{filename}", r.File)
}

// statusFor maps a failure kind to its HTTP status.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindInvalidInput:
		return http.StatusBadRequest
	case errs.KindResourceUnavailable:
		return http.StatusForbidden
	case errs.KindStreamNotFound:
		return http.StatusNotFound
	case errs.KindTransferFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type slot struct {
	contentID string
	variantID string
	kind      entity.MediaKind
}

func slotFrom(r *http.Request) slot {
	return slot{
		contentID: r.PathValue("content_id"),
		variantID: r.PathValue("variant_id"),
		kind:      entity.MediaKind(r.PathValue("media_kind")),
	}
}

func (s slot) attrs() slog.Attr {
	return slog.Group("slot",
		slog.String("content_id", s.contentID),
		slog.String("variant_id", s.variantID),
		slog.String("media_kind", string(s.kind)))
}
