package ident

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Allocator hands out opaque identifiers for entities.
type Allocator interface {
	NewID() string
}

// UUID allocates random (v4) UUID strings.
type UUID struct{}

// NewID returns a new random UUID.
func (UUID) NewID() string { return uuid.NewString() }

// Sequence allocates predictable ids ("<prefix>-1", "<prefix>-2", ...). Used in tests.
type Sequence struct {
	Prefix string

	mu   sync.Mutex
	next int
}

// NewID returns the next id in the sequence.
func (s *Sequence) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	prefix := s.Prefix
	if prefix == "" {
		prefix = "id"
	}
	return fmt.Sprintf("%s-%d", prefix, s.next)
}

// Short returns the first 8 characters of an id, for log lines.
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
