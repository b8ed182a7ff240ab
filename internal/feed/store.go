package feed

import (
	"sync"

	"github.com/kaikasekai/forecastd/internal/domain"
)

// Store publishes the most recently loaded forecast to readers. The zero
// value is empty, which readers treat as "still loading".
type Store struct {
	mu sync.RWMutex
	f  *domain.Forecast
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Set publishes a loaded forecast.
func (s *Store) Set(f *domain.Forecast) {
	s.mu.Lock()
	s.f = f
	s.mu.Unlock()
}

// Get returns the current forecast, or false while nothing has loaded yet.
func (s *Store) Get() (*domain.Forecast, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.f == nil {
		return nil, false
	}
	return s.f, true
}
