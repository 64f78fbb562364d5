package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

// StateStore keeps the crawl state singleton in memory.
type StateStore struct {
	mu    sync.RWMutex
	state catalog.CrawlState
	set   bool
}

// NewStateStore constructs a StateStore.
func NewStateStore() *StateStore {
	return &StateStore{}
}

// GetState returns the persisted state, or a default idle record when
// nothing has been written yet.
func (s *StateStore) GetState(_ context.Context) (catalog.CrawlState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return catalog.CrawlState{Status: catalog.CrawlStatusIdle}, nil
	}
	return s.state, nil
}

// UpdateState merge-upserts the singleton: only the patch's non-nil fields
// overwrite.
func (s *StateStore) UpdateState(_ context.Context, patch catalog.StatePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		s.state = catalog.CrawlState{Status: catalog.CrawlStatusIdle}
		s.set = true
	}
	if patch.Status != nil {
		s.state.Status = *patch.Status
	}
	if patch.LastPageURL != nil {
		s.state.LastPageURL = *patch.LastPageURL
	}
	if patch.LastCrawlAt != nil {
		t := *patch.LastCrawlAt
		s.state.LastCrawlAt = &t
	}
	if patch.TotalRecords != nil {
		s.state.TotalRecords = *patch.TotalRecords
	}
	if patch.ErrorMessage != nil {
		s.state.ErrorMessage = *patch.ErrorMessage
	}
	return nil
}
