/*
store.go - Persistence interfaces for balances, logs, and the user directory

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite (store/sqlite) or in-memory
  storage (points/store).

OWNERSHIP:
  BalanceStore rows are mutated only through the Service; no other
  component writes balances directly. TransactionLog rows are
  append-only once written, except for the single sanctioned text
  regeneration path.

THE ATOMIC CLAMP:
  ApplyFloorClamp is the core primitive. It must be a SINGLE atomic
  read-modify-write executed by the storage layer itself (a conditional
  update expression), never a plain read followed by a plain write in
  application code. Two concurrent deltas against the same row must
  both apply, each one honoring the floor relative to whichever value
  was current at the moment of its own write.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - points/store/memory.go: In-memory for testing/dev
*/
package points

import "context"

// =============================================================================
// BALANCE STORE - Durable (user, category) -> balance mapping
// =============================================================================

// BalanceStore is the single source of truth for balances. Rows are
// created implicitly on first mutation and deleted only en masse when
// a category is removed.
type BalanceStore interface {
	// Balance returns the stored balance, or 0 when no row exists.
	// Category validity is the caller's concern; the store is
	// registry-agnostic.
	Balance(ctx context.Context, user UserID, category Category) (int64, error)

	// ApplyFloorClamp atomically applies delta to the row, clamping the
	// result to floor, and returns the new balance. When no row exists
	// it inserts max(delta, floor); the insert must not race-create two
	// rows for the same key. When a row exists the new value is
	// max(current + delta, floor), computed inside the storage layer.
	ApplyFloorClamp(ctx context.Context, user UserID, category Category, delta, floor int64) (int64, error)

	// TopUsers is the ranked range query backing the leaderboard cache.
	// Every user in the directory is a candidate; a missing balance
	// ranks as 0. Order is balance descending, then user ID ascending
	// (the stable tie-break). Users in excluded never appear.
	TopUsers(ctx context.Context, category Category, offset, limit int, excluded []UserID) ([]UserID, error)

	// DeleteCategoryBalances removes every balance row for a category.
	// Deleting an absent category is a no-op, not an error.
	DeleteCategoryBalances(ctx context.Context, category Category) error
}

// =============================================================================
// TRANSACTION LOG - Append-only audit trail with per-record metadata
// =============================================================================

// TransactionLog persists LogRecords and their metadata. Metadata is
// lifecycle-bound to its record: deleting records must delete their
// metadata first (or atomically), never leaving orphans.
type TransactionLog interface {
	// Append inserts a record and returns its assigned ID. The store
	// must never silently drop a record: any insert failure surfaces
	// as an error wrapping ErrWriteFailed.
	Append(ctx context.Context, rec LogRecord) (LogID, error)

	// Logs returns a user's records for a category, newest first.
	// limit <= 0 means no limit.
	Logs(ctx context.Context, user UserID, category Category, limit, offset int) ([]LogRecord, error)

	// LogsByCategory returns every record for a category, oldest first.
	// Used by maintenance operations and category deletion.
	LogsByCategory(ctx context.Context, category Category) ([]LogRecord, error)

	// UpdateText replaces a record's rendered text. This is the only
	// sanctioned mutation of an existing record; delta and kind are
	// never touched.
	UpdateText(ctx context.Context, id LogID, text string) error

	// DeleteCategoryLogs removes every record for a category along with
	// all of its metadata. Idempotent.
	DeleteCategoryLogs(ctx context.Context, category Category) error

	// AddMeta attaches a key/value pair to a record. Multiple values
	// per key are allowed unless unique is set, in which case an
	// existing value for the key yields ErrDuplicateMeta. The store
	// does not check that id refers to an existing record; that is the
	// caller's responsibility.
	AddMeta(ctx context.Context, id LogID, key, value string, unique bool) error

	// Meta returns the values stored for a key on a record, in
	// insertion order. A missing key yields an empty slice.
	Meta(ctx context.Context, id LogID, key string) ([]string, error)

	// AllMeta returns every key with all of its values for a record.
	AllMeta(ctx context.Context, id LogID) (map[string][]string, error)

	// DeleteMeta removes metadata. An empty key removes everything on
	// the record. A non-empty value restricts deletion to matching
	// values. When allMatching is set, deletion applies across every
	// record sharing that key (and value, if given) - used for bulk
	// cleanup - and id is ignored.
	DeleteMeta(ctx context.Context, id LogID, key, value string, allMatching bool) error
}

// =============================================================================
// USER DIRECTORY - Candidate set for ranking
// =============================================================================

// UserDirectory tracks the known user population. It supplies the
// candidate set for ranked queries; balance rows for users outside the
// directory never rank.
type UserDirectory interface {
	AddUser(ctx context.Context, id UserID) error
	RemoveUser(ctx context.Context, id UserID) error
	HasUser(ctx context.Context, id UserID) (bool, error)
}
