/*
service.go - The ledger service: the core mutation path

PURPOSE:
  Service orchestrates every balance change: validation, the adjustment
  pipeline, floor enforcement, the balance write, the log write, and
  lifecycle notifications. It is the ONLY writer of balances.

THE ALTER SEQUENCE:
  1. Validate user/category/kind
  2. Run the adjustment pipeline (0 => no-op success, veto => rejected)
  3. Advisory read of the current balance to pre-clamp the delta
  4. Atomic floor clamp in the BalanceStore
  5. Logging predicate -> render text -> append record + metadata
  6. Broadcast EventLogged (if logged) and EventAltered (always)

CONSISTENCY, DELIBERATELY BOUNDED:
  Steps 3-5 are three separate storage operations. The advisory read in
  step 3 can be stale by the time step 4 executes; the clamp itself is
  authoritative and always enforces the floor for that individual
  write, but under heavy contention the logged delta can disagree with
  the amount the clamp actually applied. Likewise a crash between steps
  4 and 5 leaves a balance change with no log record. Both windows are
  accepted and documented; do not "fix" them with cross-operation
  locking.

  A mutation is considered successful once the balance is written. If
  the log append then fails, Alter still reports success - with no log
  ID - and emits a warning. Callers must not treat a zero LogID as
  failure.
*/
package points

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service is the ledger orchestrator. Construct with NewService; the
// exported extension points may be replaced before first use.
type Service struct {
	Balances BalanceStore
	Log      TransactionLog
	Registry CategoryRegistry

	Adjusters *AdjusterPipeline
	ShouldLog LogPredicate // nil means "always log"
	Renderers *TextRenderers
	Bus       *Bus

	// TenantID tags every log record with the originating tenant.
	TenantID string

	// Now supplies timestamps; defaults to time.Now. Tests override it.
	Now func() time.Time

	Logger *slog.Logger
}

func NewService(balances BalanceStore, log TransactionLog, registry CategoryRegistry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Balances:  balances,
		Log:       log,
		Registry:  registry,
		Adjusters: NewAdjusterPipeline(),
		Renderers: NewTextRenderers(),
		Bus:       NewBus(logger),
		Now:       time.Now,
		Logger:    logger,
	}
}

// =============================================================================
// ALTER - The state-defining operation
// =============================================================================

// Alter applies delta to the user's balance in category, clamped to the
// category floor, and logs the transaction. A positive delta awards
// points, a negative one deducts.
//
// Returns the new log record's ID, or 0 when the mutation succeeded
// without producing a record (pipeline no-op, suppressed logging, or a
// log write failure after the balance was already updated).
func (s *Service) Alter(ctx context.Context, user UserID, category Category, delta int64, kind Kind, meta map[string]string, logText string) (LogID, error) {
	if user <= 0 {
		return 0, ErrInvalidUser
	}
	if !s.Registry.Exists(category) {
		return 0, &UnknownCategoryError{Category: category}
	}
	if kind == "" {
		return 0, ErrEmptyKind
	}

	req := AlterRequest{User: user, Category: category, Kind: kind, Metadata: meta}

	delta, err := s.Adjusters.Run(delta, req)
	if err != nil {
		return 0, err
	}
	if delta == 0 {
		// Intentional no-op: a zero delta out of the pipeline means
		// "abort, report success, write nothing".
		return 0, nil
	}

	floor := s.Registry.Floor(category)

	// Advisory read. Used only to pre-clamp the delta we record in the
	// log; the store's clamp below is what actually enforces the floor.
	current, err := s.Balances.Balance(ctx, user, category)
	if err != nil {
		return 0, fmt.Errorf("%w: reading balance for user %d in %q: %v", ErrPersistenceFailed, user, category, err)
	}
	if current+delta < floor {
		delta = floor - current
	}
	if delta == 0 {
		// Already sitting on the floor; nothing to apply or log.
		return 0, nil
	}

	if _, err := s.Balances.ApplyFloorClamp(ctx, user, category, delta, floor); err != nil {
		return 0, fmt.Errorf("%w: applying delta %d for user %d in %q: %v", ErrPersistenceFailed, delta, user, category, err)
	}

	var logID LogID
	if s.shouldLog(req, delta) {
		logID = s.appendLog(ctx, req, delta, logText)
		if logID != 0 {
			s.Bus.Publish(Event{
				Type: EventLogged, User: user, Category: category,
				Delta: delta, Kind: kind, Metadata: meta, LogID: logID,
			})
		}
	}

	s.Bus.Publish(Event{
		Type: EventAltered, User: user, Category: category,
		Delta: delta, Kind: kind, Metadata: meta, LogID: logID,
	})

	return logID, nil
}

func (s *Service) shouldLog(req AlterRequest, delta int64) bool {
	if s.ShouldLog == nil {
		return true
	}
	return s.ShouldLog(req, delta)
}

// appendLog writes the record and its metadata. The balance write has
// already happened, so failures here downgrade to warnings: the
// mutation stands, it is just unexplained in the log.
func (s *Service) appendLog(ctx context.Context, req AlterRequest, delta int64, logText string) LogID {
	rec := LogRecord{
		UserID:    req.User,
		Category:  req.Category,
		Delta:     delta,
		Kind:      req.Kind,
		Text:      s.Renderers.Render(req, delta, logText),
		Timestamp: s.now().UTC(),
		TenantID:  s.TenantID,
	}

	id, err := s.Log.Append(ctx, rec)
	if err != nil {
		s.Logger.Warn("transaction log append failed after balance write",
			"user", int64(req.User), "category", string(req.Category),
			"delta", delta, "kind", string(req.Kind), "error", err)
		return 0
	}

	for key, value := range req.Metadata {
		if err := s.Log.AddMeta(ctx, id, key, value, false); err != nil {
			s.Logger.Warn("transaction metadata write failed",
				"log_id", int64(id), "key", key, "error", err)
		}
	}
	return id
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// =============================================================================
// DERIVED OPERATIONS
// =============================================================================

// Set brings the user's balance to target by altering with the
// difference. The read and the alter are two separate operations, so
// concurrent callers can race; Set makes no end-to-end atomicity claim.
func (s *Service) Set(ctx context.Context, user UserID, category Category, target int64, kind Kind, meta map[string]string, logText string) (LogID, error) {
	if user <= 0 {
		return 0, ErrInvalidUser
	}
	if !s.Registry.Exists(category) {
		return 0, &UnknownCategoryError{Category: category}
	}

	current, err := s.Balances.Balance(ctx, user, category)
	if err != nil {
		return 0, fmt.Errorf("%w: reading balance for user %d in %q: %v", ErrPersistenceFailed, user, category, err)
	}
	return s.Alter(ctx, user, category, target-current, kind, meta, logText)
}

// Add awards amount points. The amount must be positive.
func (s *Service) Add(ctx context.Context, user UserID, category Category, amount int64, kind Kind, meta map[string]string, logText string) (LogID, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidArgument, amount)
	}
	return s.Alter(ctx, user, category, amount, kind, meta, logText)
}

// Subtract deducts amount points. The amount must be positive; the
// result is still clamped to the category floor.
func (s *Service) Subtract(ctx context.Context, user UserID, category Category, amount int64, kind Kind, meta map[string]string, logText string) (LogID, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidArgument, amount)
	}
	return s.Alter(ctx, user, category, -amount, kind, meta, logText)
}

// =============================================================================
// CATEGORY DELETION
// =============================================================================

// DeleteCategory cascades a category away: logs and their metadata
// first, then balances, then category-scoped adjusters, then the
// registry entry last. No cross-store transaction wraps the sequence;
// a failure mid-cascade leaves the category partially deleted, and
// re-running the deletion completes it (every step treats already-
// absent rows as a no-op).
func (s *Service) DeleteCategory(ctx context.Context, category Category) error {
	if !s.Registry.Exists(category) {
		return &UnknownCategoryError{Category: category}
	}

	s.Bus.Publish(Event{Type: EventCategoryDeleting, Category: category})

	if err := s.Log.DeleteCategoryLogs(ctx, category); err != nil {
		return fmt.Errorf("%w: deleting logs for %q: %v", ErrPersistenceFailed, category, err)
	}
	if err := s.Balances.DeleteCategoryBalances(ctx, category); err != nil {
		return fmt.Errorf("%w: deleting balances for %q: %v", ErrPersistenceFailed, category, err)
	}

	s.Adjusters.RemoveCategory(category)
	s.Registry.Delete(category)
	return nil
}

// =============================================================================
// LOG TEXT REGENERATION
// =============================================================================

// RegenerateLogText re-renders the text of every log record in a
// category from its kind, delta, and stored metadata. Only records
// whose text actually changes are updated. It returns the distinct
// (user, category) pairs that were touched - each pair once, however
// many of its records changed - so callers can invalidate caches
// without redundant work, along with the number of updated records.
func (s *Service) RegenerateLogText(ctx context.Context, category Category) ([]UserCategory, int, error) {
	logs, err := s.Log.LogsByCategory(ctx, category)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: loading logs for %q: %v", ErrPersistenceFailed, category, err)
	}

	var touched []UserCategory
	seen := make(map[UserCategory]bool)
	updated := 0

	for _, rec := range logs {
		all, err := s.Log.AllMeta(ctx, rec.ID)
		if err != nil {
			return touched, updated, fmt.Errorf("%w: loading metadata for log %d: %v", ErrPersistenceFailed, rec.ID, err)
		}

		// Renderers see one value per key; first stored value wins.
		meta := make(map[string]string, len(all))
		for key, values := range all {
			if len(values) > 0 {
				meta[key] = values[0]
			}
		}

		req := AlterRequest{User: rec.UserID, Category: rec.Category, Kind: rec.Kind, Metadata: meta}
		text := s.Renderers.Render(req, rec.Delta, "")
		if text == rec.Text {
			continue
		}

		if err := s.Log.UpdateText(ctx, rec.ID, text); err != nil {
			return touched, updated, fmt.Errorf("%w: updating text for log %d: %v", ErrPersistenceFailed, rec.ID, err)
		}
		updated++

		pair := UserCategory{User: rec.UserID, Category: rec.Category}
		if !seen[pair] {
			seen[pair] = true
			touched = append(touched, pair)
		}
	}

	return touched, updated, nil
}

// Balance reads a user's balance, validating the category first.
// Returns 0 for a user with no row.
func (s *Service) Balance(ctx context.Context, user UserID, category Category) (int64, error) {
	if user <= 0 {
		return 0, ErrInvalidUser
	}
	if !s.Registry.Exists(category) {
		return 0, &UnknownCategoryError{Category: category}
	}
	return s.Balances.Balance(ctx, user, category)
}
