// Package session runs one download from variant resolution to a file on disk,
// keeping the progress registry current along the way.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"tubedl/internal/config"
	"tubedl/internal/entity"
	"tubedl/internal/errs"
	"tubedl/internal/filestore"
	"tubedl/internal/observability"
	"tubedl/internal/progress"
	"tubedl/internal/provider"
	"tubedl/pkg/calc"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

const progressLogInterval = 2 * time.Second

// Result describes a completed download.
type Result struct {
	Key      string
	Path     string
	Filename string
	Size     int64
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("key", r.Key),
		slog.String("path", r.Path),
		slog.String("filename", r.Filename),
		slog.Int64("size", r.Size),
	)
}

// Service runs download sessions.
type Service struct {
	log      *slog.Logger
	cfg      *config.Config
	provider provider.Provider
	registry *progress.Registry
	store    *filestore.Store
	metrics  *observability.Metrics
}

// New creates a session service.
func New(log *slog.Logger, cfg *config.Config, p provider.Provider, registry *progress.Registry,
	store *filestore.Store, metrics *observability.Metrics,
) *Service {
	return &Service{
		log:      log.With(slog.String("package", "session")),
		cfg:      cfg,
		provider: p,
		registry: registry,
		store:    store,
		metrics:  metrics,
	}
}

// Download resolves the variant, writes its bytes to the file store and
// returns once the session is terminal. Every failure is recorded in the
// registry with status error before it is returned as an *errs.Error.
func (svc *Service) Download(ctx context.Context, contentID, variantID string, kind entity.MediaKind) (Result, error) {
	key := progress.Key(contentID, variantID, kind)

	log := svc.log.With(slog.String("key", key), slog.String("content_id", contentID),
		slog.String("variant_id", variantID), slog.String("media_kind", string(kind)))

	svc.registry.Put(key, entity.ProgressRecord{Status: entity.StatusStarting})
	svc.metrics.RecordSessionStarted()

	stop := svc.metrics.SessionTimer()
	defer stop()

	log.InfoContext(ctx, "session started")

	res, err := svc.run(ctx, log, key, contentID, variantID, kind)
	if err != nil {
		err = classify(ctx, err)
		svc.fail(ctx, log, key, err)

		return Result{}, err
	}

	svc.metrics.RecordSessionCompleted()
	log.InfoContext(ctx, "session completed", slog.Any("result", res))

	return res, nil
}

func (svc *Service) run(ctx context.Context, log *slog.Logger, key, contentID, variantID string,
	kind entity.MediaKind,
) (Result, error) {
	if _, err := entity.ParseMediaKind(string(kind)); err != nil {
		return Result{}, err
	}

	if contentID == "" || variantID == "" {
		return Result{}, errs.New(errs.KindInvalidInput, "content id and variant id are required", errs.ErrInvalidURL)
	}

	video, err := svc.provider.Lookup(ctx, provider.WatchURL(contentID))
	if err != nil {
		return Result{}, err
	}

	variant, ok := video.Variant(variantID)
	if !ok {
		return Result{}, errs.New(errs.KindStreamNotFound, "Stream not found.", errs.ErrStreamNotFound)
	}

	filename := Filename(video, variant, kind)

	svc.update(ctx, log, key, func(rec *entity.ProgressRecord) {
		rec.Status = entity.StatusDownloading
		rec.Filename = filename
		rec.TotalBytes = variant.Size
	})

	rc, total, err := svc.provider.Open(ctx, video, variant)
	if err != nil {
		return Result{}, err
	}
	defer rc.Close()

	if total <= 0 {
		total = variant.Size
	}

	counter := &countingReader{
		src:     rc,
		total:   total,
		started: time.Now(),
		onRead:  svc.progressFn(ctx, log, key),
	}

	path, err := svc.store.Write(ctx, filename, counter)
	if err != nil {
		if counter.err != nil {
			return Result{}, counter.err
		}

		return Result{}, writeError(ctx, err)
	}

	svc.metrics.RecordSessionBytes(int(counter.read))

	svc.update(ctx, log, key, func(rec *entity.ProgressRecord) {
		rec.Status = entity.StatusCompleted
		rec.Percent = 100
		rec.DownloadedBytes = counter.read
		rec.TotalBytes = max(total, counter.read)
	})

	return Result{Key: key, Path: path, Filename: filename, Size: counter.read}, nil
}

// progressFn returns the per-chunk callback. Reads happen on one goroutine,
// so callbacks for a key never overlap.
func (svc *Service) progressFn(ctx context.Context, log *slog.Logger, key string) func(read, total int64, started time.Time) {
	sometimes := rate.Sometimes{First: 1, Interval: progressLogInterval}

	return func(read, total int64, started time.Time) {
		percent, known := calc.Percent(read, total)

		svc.update(ctx, log, key, func(rec *entity.ProgressRecord) {
			rec.DownloadedBytes = read
			rec.TotalBytes = total

			if known {
				rec.Percent = percent
			}
		})

		sometimes.Do(func() {
			log.DebugContext(ctx, "session progress",
				slog.String("downloaded", humanize.Bytes(uint64(read))),
				slog.String("total", humanize.Bytes(uint64(max(total, 0)))),
				slog.Float64("percent", percent),
				slog.Duration("eta", calc.ETA(read, total, started)))
		})
	}
}

func (svc *Service) update(ctx context.Context, log *slog.Logger, key string, fn func(rec *entity.ProgressRecord)) {
	if _, err := svc.registry.Update(key, fn); err != nil {
		log.WarnContext(ctx, "progress update rejected", slog.Any("error", err))
	}
}

// fail moves the record to error. A record that vanished or was finished by
// a concurrent session is replaced so the failure stays observable.
func (svc *Service) fail(ctx context.Context, log *slog.Logger, key string, err error) {
	kind := errs.KindOf(err)
	detail := errs.MessageOf(err)

	_, uerr := svc.registry.Update(key, func(rec *entity.ProgressRecord) {
		rec.Status = entity.StatusError
		rec.ErrorDetail = detail
	})
	if uerr != nil {
		svc.registry.Put(key, entity.ProgressRecord{Status: entity.StatusError, ErrorDetail: detail})
	}

	svc.metrics.RecordSessionFailed(string(kind))

	log.ErrorContext(ctx, "session failed", slog.String("kind", string(kind)), slog.Any("error", err))
}

// writeError classifies a File Store failure. Disk and copy failures are
// transfer failures; a rejected filename is a bug on our side.
func writeError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, errs.ErrInvalidFilename):
		return errs.New(errs.KindInternal, "The file name could not be used.", err)
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	default:
		return errs.New(errs.KindTransferFailure, "Writing the file failed.", err)
	}
}

// classify makes sure err carries a kind. Unclassified errors left here are
// context failures or bugs.
func classify(ctx context.Context, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}

	switch {
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errs.New(errs.KindTransferFailure, "download timed out or was canceled", err)
	default:
		return errs.New(errs.KindInternal, "internal error", err)
	}
}

// countingReader reports the running byte count after every read.
type countingReader struct {
	src     io.Reader
	total   int64
	started time.Time
	onRead  func(read, total int64, started time.Time)

	read int64
	// err is the first non-EOF error of src
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.src.Read(p)
	if n > 0 {
		c.read += int64(n)
		c.onRead(c.read, c.total, c.started)
	}

	if err != nil && !errors.Is(err, io.EOF) && c.err == nil {
		c.err = errs.New(errs.KindTransferFailure, "The download was interrupted.", err)
	}

	return n, err
}
