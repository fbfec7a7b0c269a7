// Package cache keeps each staff member's working cart between requests.
package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"slaydrip/backend/internal/domain"
)

// CartStore persists the draft cart per staff member. Load and Take return
// an empty slice when nothing is stored.
//
// Take removes the cart atomically so that only one checkout can own it.
// Restore puts a taken cart back unless a newer one was saved meanwhile.
type CartStore interface {
	Load(ctx context.Context, staffID string) ([]domain.CartLine, error)
	Save(ctx context.Context, staffID string, lines []domain.CartLine, ttl time.Duration) error
	Clear(ctx context.Context, staffID string) error
	Take(ctx context.Context, staffID string) ([]domain.CartLine, error)
	Restore(ctx context.Context, staffID string, lines []domain.CartLine, ttl time.Duration) error
}

func cartKey(staffID string) string {
	return "cart:" + staffID
}

type memoryEntry struct {
	lines     []domain.CartLine
	expiresAt time.Time
}

type MemoryCartStore struct {
	mu    sync.Mutex
	carts map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCartStore) Load(_ context.Context, staffID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(staffID)
	if !ok {
		return []domain.CartLine{}, nil
	}
	return slices.Clone(entry.lines), nil
}

func (m *MemoryCartStore) Take(_ context.Context, staffID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(staffID)
	if !ok {
		return []domain.CartLine{}, nil
	}
	delete(m.carts, cartKey(staffID))
	return entry.lines, nil
}

func (m *MemoryCartStore) Restore(_ context.Context, staffID string, lines []domain.CartLine, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(staffID); ok || len(lines) == 0 {
		return nil
	}
	m.put(staffID, lines, ttl)
	return nil
}

// live returns the unexpired entry for staffID. Callers hold m.mu.
func (m *MemoryCartStore) live(staffID string) (memoryEntry, bool) {
	entry, ok := m.carts[cartKey(staffID)]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.carts, cartKey(staffID))
		return memoryEntry{}, false
	}
	return entry, true
}

func (m *MemoryCartStore) put(staffID string, lines []domain.CartLine, ttl time.Duration) {
	entry := memoryEntry{lines: slices.Clone(lines)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.carts[cartKey(staffID)] = entry
}

func (m *MemoryCartStore) Save(_ context.Context, staffID string, lines []domain.CartLine, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(lines) == 0 {
		delete(m.carts, cartKey(staffID))
		return nil
	}
	m.put(staffID, lines, ttl)
	return nil
}

func (m *MemoryCartStore) Clear(_ context.Context, staffID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.carts, cartKey(staffID))
	return nil
}
