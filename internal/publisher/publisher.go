// Package publisher turns progress registry state into a bounded stream of
// snapshots for one key, ending after the first terminal snapshot.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tubedl/internal/config"
	"tubedl/internal/entity"
	"tubedl/internal/observability"
	"tubedl/internal/progress"
)

// Transport names used as metric labels.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// EmitFunc delivers one snapshot to an observer. An error stops the stream.
type EmitFunc func(rec entity.ProgressRecord) error

// Publisher streams progress snapshots.
type Publisher struct {
	log       *slog.Logger
	cfg       *config.Config
	registry  *progress.Registry
	metrics   *observability.Metrics
	transport string
}

// New creates a publisher for one transport.
func New(log *slog.Logger, cfg *config.Config, registry *progress.Registry, metrics *observability.Metrics,
	transport string,
) *Publisher {
	return &Publisher{
		log:       log.With(slog.String("package", "publisher"), slog.String("transport", transport)),
		cfg:       cfg,
		registry:  registry,
		metrics:   metrics,
		transport: transport,
	}
}

// Run emits the state of key until it is terminal, ctx is done or emit fails.
// An unknown key is registered as initializing and that snapshot is emitted
// once. Later snapshots are emitted on each poll tick when percent or status
// changed. A terminal state wakes the loop early and is always emitted.
func (p *Publisher) Run(ctx context.Context, key string, emit EmitFunc) error {
	log := p.log.With(slog.String("key", key))

	// subscribe before reading so no change between the two is missed
	sig, unsubscribe := p.registry.Watch(key)
	defer unsubscribe()

	done := p.metrics.PublisherStarted(p.transport)
	defer done()

	var (
		last entity.ProgressRecord
		sent bool
	)

	if rec, created := p.registry.Ensure(key); created {
		if err := p.emit(emit, rec); err != nil {
			return err
		}

		last, sent = rec, true
	}

	ticker := time.NewTicker(p.cfg.Progress.PollInterval)
	defer ticker.Stop()

	for {
		rec, ok := p.registry.Get(key)
		if !ok {
			log.DebugContext(ctx, "record expired while observed")

			return nil
		}

		if !sent || changed(last, rec) || rec.Status.Terminal() {
			if err := p.emit(emit, rec); err != nil {
				return err
			}

			last, sent = rec, true
		}

		if rec.Status.Terminal() {
			log.DebugContext(ctx, "stream finished", slog.Any("record", rec))

			return nil
		}

		if err := p.wait(ctx, ticker, sig, key); err != nil {
			return err
		}
	}
}

func (p *Publisher) emit(emit EmitFunc, rec entity.ProgressRecord) error {
	if err := emit(rec); err != nil {
		return fmt.Errorf("emit progress: %w", err)
	}

	p.metrics.RecordEvent(p.transport, string(rec.Status))

	return nil
}

// wait blocks until the next tick, or until a change makes the record
// terminal or removes it.
func (p *Publisher) wait(ctx context.Context, ticker *time.Ticker, sig <-chan struct{}, key string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			return nil
		case <-sig:
			rec, ok := p.registry.Get(key)
			if !ok || rec.Status.Terminal() {
				return nil
			}
		}
	}
}

func changed(prev, cur entity.ProgressRecord) bool {
	return prev.Status != cur.Status || prev.Percent != cur.Percent
}
