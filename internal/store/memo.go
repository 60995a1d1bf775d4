package store

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"tunebridge/internal/core"
)

// MemoKey identifies one resolution lookup within a request context.
type MemoKey struct {
	IdentifierType string
	Identifier     string
	ResourceType   core.EntityKind
}

// Memo is a seconds-scale memoization of repeated resolution lookups for the
// same identifier, shared across the handlers of one process. Entries expire
// on their own; nothing is invalidated explicitly.
type Memo struct {
	cache *expirable.LRU[MemoKey, core.Entity]
}

// NewMemo creates a memo cache with the given capacity and TTL.
func NewMemo(size int, ttl time.Duration) *Memo {
	return &Memo{
		cache: expirable.NewLRU[MemoKey, core.Entity](size, nil, ttl),
	}
}

// Get returns the memoized entity for a key if still fresh.
func (m *Memo) Get(key MemoKey) (core.Entity, bool) {
	return m.cache.Get(key)
}

// Add memoizes an entity under a key.
func (m *Memo) Add(key MemoKey, entity core.Entity) {
	m.cache.Add(key, entity)
}

// Len returns the number of live entries, for stats endpoints and tests.
func (m *Memo) Len() int {
	return m.cache.Len()
}
