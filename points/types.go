/*
Package points provides the core points-ledger engine.

PURPOSE:
  This package contains the domain types and orchestration logic for
  per-user, per-category integer balances. Whether the categories are
  reputation, credits, or karma, the same engine handles balance
  mutation, floor enforcement, transaction logging, and leaderboard
  caching.

KEY CONCEPTS IN THIS FILE (types.go):
  - UserID / Category: Type-safe identifiers for the balance key
  - LogRecord: An entry in the append-only transaction log
  - AlterRequest: The caller-supplied context for one mutation

DESIGN PRINCIPLES:
  1. Integer balances: Points are whole numbers, no fractional state
  2. Floor invariant: A balance never ends a mutation below its
     category's configured floor
  3. Auditability: Every non-suppressed mutation appends a LogRecord
     explaining why the balance changed
  4. Explicit extension points: Adjusters, predicates, renderers, and
     the notification bus are injected objects, not global registries

SEE ALSO:
  - service.go: The Alter mutation path
  - store.go: Persistence interfaces
  - hooks.go: Adjustment pipeline, renderers, notification bus
  - topusers.go: Incremental leaderboard cache
*/
package points

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

// UserID identifies a user. Valid IDs are positive.
type UserID int64

// Category is the slug of a points category (e.g. "points", "reputation").
// A category is a namespace of balances with its own floor.
type Category string

// Kind tags a transaction with its caller-supplied type, e.g.
// "registration-bonus" or "comment-received". Kinds select the log text
// renderer; they are otherwise opaque to the engine.
type Kind string

// LogID identifies a transaction log record. IDs are assigned by the
// TransactionLog on insert, monotonically increasing and never reused.
// The zero value means "no record was written".
type LogID int64

// =============================================================================
// LOG RECORD - One entry in the append-only transaction log
// =============================================================================

// LogRecord describes a single balance mutation. Records are immutable
// once written, with one sanctioned exception: Text may be regenerated
// by Service.RegenerateLogText. Delta is always non-zero; mutations
// that net to zero are never logged.
type LogRecord struct {
	ID        LogID
	UserID    UserID
	Category  Category
	Delta     int64
	Kind      Kind
	Text      string
	Timestamp time.Time // UTC
	TenantID  string    // originating tenant in multi-tenant deployments
}

// =============================================================================
// ALTER REQUEST - Caller context threaded through the extension points
// =============================================================================

// AlterRequest carries the non-delta context of a mutation. It is handed
// to adjusters, the logging predicate, and text renderers so they can
// decide based on who is affected and why.
type AlterRequest struct {
	User     UserID
	Category Category
	Kind     Kind
	Metadata map[string]string
}

// UserCategory is a (user, category) pair, used when reporting which
// balances a maintenance operation touched.
type UserCategory struct {
	User     UserID
	Category Category
}
