// Package sessions stores the gateway's session tokens per collection,
// enabling read-your-writes session consistency. Tokens are opaque; the
// client records them after writes and replays them on reads.
package sessions

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for session token stores.
var (
	SessionReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docdb_session_replays_total",
		Help: "Session tokens found and replayed on reads",
	})

	SessionMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docdb_session_misses_total",
		Help: "Reads with no recorded session token",
	})

	SessionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docdb_session_errors_total",
		Help: "Session store errors by operation",
	}, []string{"operation"})
)

// Store records and replays session tokens keyed by collection link.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the recorded token for a collection link, or "" when none
	// is recorded. A missing token is not an error.
	Get(ctx context.Context, collLink string) (string, error)

	// Set records the latest token for a collection link, overwriting any
	// previous one.
	Set(ctx context.Context, collLink, token string) error
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMemoryStore creates an empty in-process session token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

// Get returns the recorded token for a collection link.
func (s *MemoryStore) Get(_ context.Context, collLink string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[collLink]
	if !ok {
		SessionMisses.Inc()
		return "", nil
	}
	SessionReplays.Inc()
	return token, nil
}

// Set records the latest token for a collection link.
func (s *MemoryStore) Set(_ context.Context, collLink, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[collLink] = token
	return nil
}
