package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdempotencyStore remembers which keys have already been handled.
// Implementations must be safe for concurrent use.
type IdempotencyStore interface {
	// Contains reports whether key has been recorded and not yet expired.
	Contains(ctx context.Context, key string) (bool, error)
	// Add records key. Called only after the handler succeeded.
	Add(ctx context.Context, key string) error
}

// KeyFunc derives the deduplication key for an event. An empty key disables
// deduplication for that event.
type KeyFunc func(event *Event) string

// EventIDKey keys deduplication on the envelope's event id.
func EventIDKey(event *Event) string {
	return event.EventID
}

// MemoryIdempotencyStore keeps keys in process memory. Entries expire after
// the TTL and are dropped lazily when looked up.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryIdempotencyStore creates an in-memory store with the given TTL.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Contains checks if the key exists and is not expired.
func (s *MemoryIdempotencyStore) Contains(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	ts, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return false, nil
	}

	if s.now().Sub(ts) > s.ttl {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Add records the key with the current time.
func (s *MemoryIdempotencyStore) Add(_ context.Context, key string) error {
	s.mu.Lock()
	s.entries[key] = s.now()
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IdempotentHandler skips events whose EventID was already handled.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return IdempotentHandlerWithKey(store, EventIDKey, inner, logger)
}

// IdempotentHandlerWithKey wraps inner with deduplication on keyFn(event).
// A store lookup failure lets the event through.
func IdempotentHandlerWithKey(store IdempotencyStore, keyFn KeyFunc, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		key := keyFn(event)
		if key == "" {
			return inner(ctx, event)
		}

		exists, err := store.Contains(ctx, key)
		if err != nil {
			logger.WarnContext(ctx, "idempotency store lookup failed, processing anyway",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return inner(ctx, event)
		}

		if exists {
			ConsumerDuplicates.WithLabelValues(event.EventType).Inc()
			logger.InfoContext(ctx, "skipping duplicate event",
				slog.String("key", key),
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}

		if addErr := store.Add(ctx, key); addErr != nil {
			logger.WarnContext(ctx, "failed to record key in idempotency store",
				slog.String("key", key),
				slog.String("error", addErr.Error()),
			)
		}
		return nil
	}
}
