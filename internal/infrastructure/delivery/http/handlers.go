package httprouter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tubedl/internal/consts"
	"tubedl/internal/errs"
	"tubedl/internal/infrastructure/delivery/http/request"
	"tubedl/internal/infrastructure/delivery/http/response"
	"tubedl/internal/session"
)

// Download runs a session to completion and answers with the file. The
// session is detached from the request: a client that disconnects does not
// stop it, only DownloadTimeout does.
func (ro *Router) Download(w http.ResponseWriter, r *http.Request) {
	s := slotFrom(r)
	log := ro.log.With(slog.String("handler", "Download"), s.attrs())

	ctx := context.WithoutCancel(r.Context())
	if ro.cfg.HTTP.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ro.cfg.HTTP.DownloadTimeout)

		defer cancel()
	}

	res, err := ro.svc.Downloader.Download(ctx, s.contentID, s.variantID, s.kind)
	if err != nil {
		status := statusFor(errs.KindOf(err))
		log.WarnContext(ctx, consts.RespDownloadFailed, slog.Int("status", status), slog.Any("error", err))
		http.Error(w, errs.MessageOf(err), status)

		return
	}

	log.InfoContext(ctx, "serving download", slog.Any("result", res))

	ro.serveFile(w, r, log, res.Filename)
}

// File serves a previously completed download.
func (ro *Router) File(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With(slog.String("handler", "File"))

	filename := r.PathValue("filename")
	if filename == "" {
		http.Error(w, consts.RespQueryParamMissing, http.StatusBadRequest)

		return
	}

	ro.serveFile(w, r, log, filename)
}

func (ro *Router) serveFile(w http.ResponseWriter, r *http.Request, log *slog.Logger, filename string) {
	err := ro.svc.Files.Serve(w, r, filename)

	switch {
	case err == nil:
	case errors.Is(err, errs.ErrInvalidFilename):
		http.Error(w, consts.RespQueryParamMissing, http.StatusBadRequest)
	case errors.Is(err, errs.ErrFileNotFound):
		// swept between completion and serving
		log.WarnContext(r.Context(), consts.RespFileNotFound, slog.String("filename", filename))
		http.Error(w, consts.RespFileNotFound, http.StatusNotFound)
	default:
		log.ErrorContext(r.Context(), "serve file", slog.String("filename", filename), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Info looks up video metadata for the UI.
func (ro *Router) Info(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With(slog.String("handler", "Info"))

	ctx, cancel := context.WithTimeout(r.Context(), ro.handlerTimeout())
	defer cancel()

	var in request.Info
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&in); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, errs.ErrInvalidRequestBody)

		return
	}

	if err := in.Validate(); err != nil {
		log.ErrorContext(ctx, consts.RespUnprocessableEntity, slog.Any("error", err))
		response.UnprocessableEntity(w, consts.RespUnprocessableEntity, err)

		return
	}

	video, err := ro.svc.Resolver.Lookup(ctx, in.URL)
	if err != nil {
		status := statusFor(errs.KindOf(err))
		log.WarnContext(ctx, consts.RespInfoFailed, slog.String("url", in.URL), slog.Any("error", err))
		response.Error(w, status, consts.RespInfoFailed, errors.New(errs.MessageOf(err)))

		return
	}

	response.OK(w, consts.RespInfoRetrieved, response.NewInfo(video, session.FilenameBase(video)), nil)
}

func (ro *Router) handlerTimeout() time.Duration {
	if ro.cfg.HTTP.HandlerTimeout > 0 {
		return ro.cfg.HTTP.HandlerTimeout
	}

	return consts.DefaultHandlerTimeout
}
