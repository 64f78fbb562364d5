// Package memory keeps snapshots in process memory, for tests and dev runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/bookwatch/internal/catalog"
	"github.com/JakeFAU/bookwatch/internal/snapshot"
)

// Store holds snapshots in a map keyed by object path.
type Store struct {
	mu      sync.Mutex
	clock   catalog.Clock
	objects map[string][]byte
}

// New creates an in-memory snapshot store.
func New(clock catalog.Clock) *Store {
	return &Store{
		clock:   clock,
		objects: make(map[string][]byte),
	}
}

// Store keeps one page snapshot and returns a mem:// URI.
func (s *Store) Store(_ context.Context, pageURL string, content []byte) (string, error) {
	if pageURL == "" {
		return "", fmt.Errorf("page url is required")
	}
	path := snapshot.ObjectPath("", pageURL, s.clock.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(content))
	copy(buf, content)
	s.objects[path] = buf
	return fmt.Sprintf("mem://%s", path), nil
}

// Len reports how many snapshots are held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
