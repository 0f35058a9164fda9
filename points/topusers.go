/*
topusers.go - Incrementally extensible top-users (leaderboard) cache

PURPOSE:
  Serves "top N users by balance" queries without re-scanning the full
  user base on every request. Each category caches a prefix of the true
  rank order; a request for more rows than are cached extends the
  prefix with one ranked range query, skipping what is already known.

THE is_max FLAG:
  When an extension query returns fewer rows than asked for, the cache
  has seen every candidate: the sequence is complete and further growth
  is impossible. That entry then satisfies any N from cache alone.

INVALIDATION (event-driven, no expiry):
  - points.altered for a category: drop that category's entry entirely.
    Simplicity over precision; no targeted re-rank is attempted.
  - user added: drop only complete (is_max) entries - a new candidate
    might now rank, while an incomplete entry is already known-partial.
  - user removed: drop entries whose cached sequence contains the user.
  - category deleting: drop that category's entry.

  The cache is always safely discardable: clearing it costs a rebuild
  query, never correctness. It is authoritative for nothing but Top.
*/
package points

import (
	"context"
	"fmt"
	"sync"
)

type topEntry struct {
	users []UserID
	isMax bool
}

// TopUsers is the per-category leaderboard cache. Create with
// NewTopUsers and wire invalidation with Bind.
type TopUsers struct {
	store    BalanceStore
	excluded []UserID

	mu      sync.Mutex
	entries map[Category]*topEntry
}

// NewTopUsers creates the cache. excluded lists user IDs that never
// rank (e.g. service accounts); it applies to every category.
func NewTopUsers(store BalanceStore, excluded []UserID) *TopUsers {
	return &TopUsers{
		store:    store,
		excluded: append([]UserID(nil), excluded...),
		entries:  make(map[Category]*topEntry),
	}
}

// Bind subscribes the cache's invalidation rules to the bus.
func (t *TopUsers) Bind(bus *Bus) {
	bus.Subscribe(EventAltered, func(ev Event) { t.Invalidate(ev.Category) })
	bus.Subscribe(EventCategoryDeleting, func(ev Event) { t.Invalidate(ev.Category) })
	bus.Subscribe(EventUserAdded, func(Event) { t.InvalidateComplete() })
	bus.Subscribe(EventUserRemoved, func(ev Event) { t.InvalidateUser(ev.User) })
}

// Top returns up to n user IDs for the category, best balance first.
// Fewer than n are returned when fewer candidates exist. Ties are
// broken by ascending user ID, the same stable order the ranked store
// query uses, so incremental extension never skips or repeats a user.
func (t *TopUsers) Top(ctx context.Context, n int, category Category) ([]UserID, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive, got %d", ErrInvalidArgument, n)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.entries[category]
	if entry == nil {
		entry = &topEntry{}
		t.entries[category] = entry
	}

	if len(entry.users) >= n || entry.isMax {
		return prefix(entry.users, n), nil
	}

	// Extend: skip what is cached, fetch only the missing tail.
	want := n - len(entry.users)
	more, err := t.store.TopUsers(ctx, category, len(entry.users), want, t.excluded)
	if err != nil {
		return nil, fmt.Errorf("%w: ranked query for %q: %v", ErrPersistenceFailed, category, err)
	}

	entry.users = append(entry.users, more...)
	if len(more) < want {
		entry.isMax = true
	}

	return prefix(entry.users, n), nil
}

// Invalidate drops the cached entry for a category.
func (t *TopUsers) Invalidate(category Category) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, category)
}

// InvalidateComplete drops every entry whose sequence is complete
// (is_max). Incomplete entries are already known to be partial and
// stay cached.
func (t *TopUsers) InvalidateComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for category, entry := range t.entries {
		if entry.isMax {
			delete(t.entries, category)
		}
	}
}

// InvalidateUser drops every entry whose cached sequence contains the
// user.
func (t *TopUsers) InvalidateUser(user UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for category, entry := range t.entries {
		for _, id := range entry.users {
			if id == user {
				delete(t.entries, category)
				break
			}
		}
	}
}

func prefix(users []UserID, n int) []UserID {
	if n > len(users) {
		n = len(users)
	}
	out := make([]UserID, n)
	copy(out, users[:n])
	return out
}
