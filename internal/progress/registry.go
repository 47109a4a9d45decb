// Package progress keeps the process-wide progress records shared by download
// sessions and progress observers.
package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tubedl/internal/config"
	"tubedl/internal/entity"
	"tubedl/internal/errs"
	"tubedl/internal/observability"
	"tubedl/pkg/gen"
)

// Key derives the registry key of one (content, variant, media kind) slot.
func Key(contentID, variantID string, kind entity.MediaKind) string {
	return gen.UUIDv5(contentID, variantID, string(kind))
}

// Registry is a concurrency-safe map from key to progress record.
// Readers always receive copies.
type Registry struct {
	log     *slog.Logger
	cfg     *config.Config
	metrics *observability.Metrics

	mu       sync.RWMutex
	records  map[string]*entity.ProgressRecord   // key : record
	watchers map[string]map[uint64]chan struct{} // key : watcher id : signal
	nextID   uint64
}

// New creates an empty registry.
func New(log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) *Registry {
	return &Registry{
		log:      log.With(slog.String("package", "progress")),
		cfg:      cfg,
		metrics:  metrics,
		records:  make(map[string]*entity.ProgressRecord),
		watchers: make(map[string]map[uint64]chan struct{}),
	}
}

// Put inserts or replaces the record for key.
func (reg *Registry) Put(key string, rec entity.ProgressRecord) {
	rec.Key = key
	rec.UpdatedAt = time.Now()

	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.records[key] = &rec
	reg.metrics.SetRecords(len(reg.records))
	reg.notifyLocked(key)
}

// Get returns a copy of the record for key.
func (reg *Registry) Get(key string) (entity.ProgressRecord, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	rec, ok := reg.records[key]
	if !ok {
		return entity.ProgressRecord{}, false
	}

	return *rec, true
}

// Update applies fn to a copy of the record and stores the result.
// Terminal records and backward status moves are refused.
func (reg *Registry) Update(key string, fn func(rec *entity.ProgressRecord)) (entity.ProgressRecord, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	cur, ok := reg.records[key]
	if !ok {
		return entity.ProgressRecord{}, fmt.Errorf("update %s: %w", key, errs.ErrRecordNotFound)
	}

	if cur.Status.Terminal() {
		return *cur, fmt.Errorf("update %s: %w", key, errs.ErrTerminal)
	}

	next := *cur
	fn(&next)

	if next.Status.Rank() < cur.Status.Rank() {
		return *cur, fmt.Errorf("update %s: %s -> %s: %w", key, cur.Status, next.Status, errs.ErrInvalidTransition)
	}

	next.Key = key
	next.UpdatedAt = time.Now()
	*cur = next

	reg.notifyLocked(key)

	return next, nil
}

// Ensure registers an initializing record for key unless one already exists.
func (reg *Registry) Ensure(key string) (entity.ProgressRecord, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if rec, ok := reg.records[key]; ok {
		return *rec, false
	}

	rec := &entity.ProgressRecord{
		Key:       key,
		Status:    entity.StatusInitializing,
		UpdatedAt: time.Now(),
	}
	reg.records[key] = rec
	reg.metrics.SetRecords(len(reg.records))
	reg.notifyLocked(key)

	return *rec, true
}

// Watch returns a channel signalled after every change to key. Signals
// coalesce: a slow reader sees one pending signal, not one per change.
// The returned func unsubscribes.
func (reg *Registry) Watch(key string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	reg.mu.Lock()
	reg.nextID++
	id := reg.nextID

	if reg.watchers[key] == nil {
		reg.watchers[key] = make(map[uint64]chan struct{})
	}

	reg.watchers[key][id] = ch
	reg.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			reg.mu.Lock()
			defer reg.mu.Unlock()

			delete(reg.watchers[key], id)

			if len(reg.watchers[key]) == 0 {
				delete(reg.watchers, key)
			}
		})
	}
}

// Len returns the number of records.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.records)
}

// notifyLocked must be called with reg.mu held.
func (reg *Registry) notifyLocked(key string) {
	for _, ch := range reg.watchers[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
