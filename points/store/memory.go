// Package store provides in-memory store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements points.BalanceStore, points.TransactionLog, and
// points.UserDirectory behind one mutex.
type Memory struct {
	mu        sync.RWMutex
	balances  map[balanceKey]int64
	users     map[points.UserID]bool
	logs      []points.LogRecord
	meta      map[points.LogID][]metaEntry
	nextLogID points.LogID
}

type balanceKey struct {
	User     points.UserID
	Category points.Category
}

type metaEntry struct {
	Key   string
	Value string
}

func NewMemory() *Memory {
	return &Memory{
		balances:  make(map[balanceKey]int64),
		users:     make(map[points.UserID]bool),
		meta:      make(map[points.LogID][]metaEntry),
		nextLogID: 1,
	}
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func (m *Memory) Balance(_ context.Context, user points.UserID, category points.Category) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[balanceKey{User: user, Category: category}], nil
}

// ApplyFloorClamp performs the read-modify-write under the store lock,
// which is this implementation's equivalent of an atomic conditional
// update at the storage layer.
func (m *Memory) ApplyFloorClamp(_ context.Context, user points.UserID, category points.Category, delta, floor int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := balanceKey{User: user, Category: category}
	next := delta
	if current, ok := m.balances[k]; ok {
		next = current + delta
	}
	if next < floor {
		next = floor
	}
	m.balances[k] = next
	return next, nil
}

func (m *Memory) TopUsers(_ context.Context, category points.Category, offset, limit int, excluded []points.UserID) ([]points.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	skip := make(map[points.UserID]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}

	// Every directory user is a candidate; missing balances rank as 0.
	candidates := make([]points.UserID, 0, len(m.users))
	for id := range m.users {
		if !skip[id] {
			candidates = append(candidates, id)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		bi := m.balances[balanceKey{User: candidates[i], Category: category}]
		bj := m.balances[balanceKey{User: candidates[j], Category: category}]
		if bi != bj {
			return bi > bj
		}
		return candidates[i] < candidates[j]
	})

	if offset >= len(candidates) {
		return nil, nil
	}
	candidates = candidates[offset:]
	if limit >= 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	return append([]points.UserID(nil), candidates...), nil
}

func (m *Memory) DeleteCategoryBalances(_ context.Context, category points.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.balances {
		if k.Category == category {
			delete(m.balances, k)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTION LOG
// =============================================================================

func (m *Memory) Append(_ context.Context, rec points.LogRecord) (points.LogID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.ID = m.nextLogID
	m.nextLogID++
	m.logs = append(m.logs, rec)
	return rec.ID, nil
}

func (m *Memory) Logs(_ context.Context, user points.UserID, category points.Category, limit, offset int) ([]points.LogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []points.LogRecord
	// Newest first: walk the append order backwards.
	for i := len(m.logs) - 1; i >= 0; i-- {
		rec := m.logs[i]
		if rec.UserID != user || rec.Category != category {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		result = append(result, rec)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *Memory) LogsByCategory(_ context.Context, category points.Category) ([]points.LogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []points.LogRecord
	for _, rec := range m.logs {
		if rec.Category == category {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (m *Memory) UpdateText(_ context.Context, id points.LogID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.logs {
		if m.logs[i].ID == id {
			m.logs[i].Text = text
			return nil
		}
	}
	return nil
}

func (m *Memory) DeleteCategoryLogs(_ context.Context, category points.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.logs[:0]
	for _, rec := range m.logs {
		if rec.Category == category {
			delete(m.meta, rec.ID)
			continue
		}
		kept = append(kept, rec)
	}
	m.logs = kept
	return nil
}

// =============================================================================
// TRANSACTION METADATA
// =============================================================================

func (m *Memory) AddMeta(_ context.Context, id points.LogID, key, value string, unique bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if unique {
		for _, e := range m.meta[id] {
			if e.Key == key {
				return points.ErrDuplicateMeta
			}
		}
	}
	m.meta[id] = append(m.meta[id], metaEntry{Key: key, Value: value})
	return nil
}

func (m *Memory) Meta(_ context.Context, id points.LogID, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var values []string
	for _, e := range m.meta[id] {
		if e.Key == key {
			values = append(values, e.Value)
		}
	}
	return values, nil
}

func (m *Memory) AllMeta(_ context.Context, id points.LogID) (map[string][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make(map[string][]string)
	for _, e := range m.meta[id] {
		all[e.Key] = append(all[e.Key], e.Value)
	}
	return all, nil
}

func (m *Memory) DeleteMeta(_ context.Context, id points.LogID, key, value string, allMatching bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if allMatching {
		for logID := range m.meta {
			m.deleteMetaLocked(logID, key, value)
		}
		return nil
	}
	if key == "" {
		delete(m.meta, id)
		return nil
	}
	m.deleteMetaLocked(id, key, value)
	return nil
}

func (m *Memory) deleteMetaLocked(id points.LogID, key, value string) {
	entries := m.meta[id]
	kept := entries[:0]
	for _, e := range entries {
		if e.Key == key && (value == "" || e.Value == value) {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		delete(m.meta, id)
		return
	}
	m.meta[id] = kept
}

// =============================================================================
// USER DIRECTORY
// =============================================================================

func (m *Memory) AddUser(_ context.Context, id points.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = true
	return nil
}

func (m *Memory) RemoveUser(_ context.Context, id points.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *Memory) HasUser(_ context.Context, id points.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[id], nil
}
