package courier

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"search-courier/internal/common/errors"
	"search-courier/internal/models"
)

// Registry picks the first registered strategy that accepts an index pattern.
type Registry struct {
	mu         sync.RWMutex
	strategies []Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	return &Registry{strategies: strategies}
}

// Add appends s; earlier strategies win.
func (r *Registry) Add(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = append(r.strategies, s)
}

// Select returns the first viable strategy.
func (r *Registry) Select(indexPattern *models.IndexPattern) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.strategies {
		if s.IsViable(indexPattern) {
			return s, nil
		}
	}
	title := ""
	if indexPattern != nil {
		title = indexPattern.Title
	}
	return nil, errors.NewNoViableStrategyError(title)
}

// Get looks a strategy up by ID.
func (r *Registry) Get(id string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.strategies {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

const NoOpStrategyID = "noop"

// NoOpStrategy accepts every pattern and fails every search. Register it
// last so unsupported patterns get a clear error.
type NoOpStrategy struct{}

func (NoOpStrategy) ID() string { return NoOpStrategyID }

func (NoOpStrategy) IsViable(*models.IndexPattern) bool { return true }

func (NoOpStrategy) Search(_ context.Context, params SearchParams) (*SearchResult, error) {
	return nil, &errors.SearchError{
		Status:  http.StatusTeapot,
		Title:   "I'm a teapot",
		Message: fmt.Sprintf("No search strategy registered for this index pattern (%d requests rejected)", len(params.Requests)),
	}
}
