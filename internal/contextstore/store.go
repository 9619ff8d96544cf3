package contextstore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/faultlinehq/faultline/internal/models"
)

const (
	// DefaultMaxContexts bounds live contexts; the oldest is evicted when
	// the bound is hit.
	DefaultMaxContexts = 256
	// DefaultTTL reaps contexts nobody closed.
	DefaultTTL = 30 * time.Minute
)

// Store keeps live incident contexts keyed by incident ID. Contexts leave
// the store either by explicit Close or when their TTL lapses.
type Store struct {
	mu       sync.Mutex
	contexts *expirable.LRU[string, *IncidentContext]
	logger   *slog.Logger
}

// NewStore creates a store holding up to maxEntries contexts for ttl each;
// zero values use the defaults.
func NewStore(maxEntries int, ttl time.Duration, logger *slog.Logger) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxContexts
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		contexts: expirable.NewLRU[string, *IncidentContext](maxEntries, nil, ttl),
		logger:   logger,
	}
}

// Create returns the context registered for id, creating it when absent.
// The same incident key always maps to one live context.
func (s *Store) Create(id string, scope models.Scope, windows models.Windows) *IncidentContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if existing, ok := s.contexts.Get(id); ok {
			return existing
		}
	}
	ctx := NewIncidentContext(id, scope, windows)
	s.contexts.Add(ctx.ID, ctx)
	s.logger.Debug("incident context created", "incident_id", ctx.ID)
	return ctx
}

// Get looks up a live context.
func (s *Store) Get(id string) (*IncidentContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contexts.Get(id)
}

// Close removes a context explicitly, reporting whether it was present.
func (s *Store) Close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	present := s.contexts.Remove(id)
	if present {
		s.logger.Debug("incident context closed", "incident_id", id)
	}
	return present
}

// Len reports the number of live contexts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contexts.Len()
}

// Reports collects the finished reports of all live contexts, oldest first.
func (s *Store) Reports() []models.Report {
	s.mu.Lock()
	values := s.contexts.Values()
	s.mu.Unlock()

	reports := make([]models.Report, 0, len(values))
	for _, ctx := range values {
		if report, ok := ctx.Report(); ok {
			reports = append(reports, report)
		}
	}
	return reports
}
