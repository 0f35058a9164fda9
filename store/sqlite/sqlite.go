/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements points.BalanceStore, points.TransactionLog, and
  points.UserDirectory using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences (GREATEST
  instead of MAX, etc.).

KEY TABLES:
  balances:  (user_id, category) -> balance, one row per pair
  logs:      Append-only transaction log, AUTOINCREMENT ids
  log_meta:  Key/value attachments, lifecycle-bound to their log row
  users:     User directory; the candidate set for ranked queries

THE ATOMIC CLAMP:
  ApplyFloorClamp is one INSERT ... ON CONFLICT DO UPDATE statement.
  The insert arm writes MAX(delta, floor); the update arm computes
  MAX(balance + delta, floor) inside SQLite. The read-modify-write
  happens entirely in the storage layer, so two concurrent deltas
  against the same row both apply and each one honors the floor
  against whichever value was current for its own write.

RANKED QUERY:
  TopUsers LEFT JOINs users against balances and orders by
  COALESCE(balance, 0) DESC, id ASC. Users without a balance row rank
  as zero; ties break by ascending user ID so incremental offset/limit
  pagination is stable.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: readers don't block, a single writer at a time, better
  crash recovery.

USAGE:
  store, err := sqlite.New("./data/points.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := points.NewService(store, store, registry, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - points/store.go: Interface definitions
  - points/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/points-engine/points"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Balances: one row per (user, category)
	CREATE TABLE IF NOT EXISTS balances (
		user_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, category)
	);

	-- Ranked queries (hot path): per-category descending balance scan
	CREATE INDEX IF NOT EXISTS idx_balances_category_balance
		ON balances(category, balance DESC);

	-- Transaction log (append-only; text is the one mutable column)
	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		delta INTEGER NOT NULL,
		kind TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		tenant_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_logs_user_category
		ON logs(user_id, category, id DESC);
	CREATE INDEX IF NOT EXISTS idx_logs_category
		ON logs(category);
	CREATE INDEX IF NOT EXISTS idx_logs_kind
		ON logs(kind);

	-- Log metadata, lifecycle-bound to its log row
	CREATE TABLE IF NOT EXISTS log_meta (
		meta_id INTEGER PRIMARY KEY AUTOINCREMENT,
		log_id INTEGER NOT NULL,
		meta_key TEXT NOT NULL,
		meta_value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_log_meta_log
		ON log_meta(log_id, meta_key);
	CREATE INDEX IF NOT EXISTS idx_log_meta_key
		ON log_meta(meta_key);

	-- User directory (candidate set for ranking)
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BALANCE STORE (points.BalanceStore interface)
// =============================================================================

func (s *Store) Balance(ctx context.Context, user points.UserID, category points.Category) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE user_id = ? AND category = ?`,
		int64(user), string(category),
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying balance: %w", err)
	}
	return balance, nil
}

// ApplyFloorClamp applies delta with the floor enforced inside a single
// SQL statement. See the package comment for why this must not be a
// separate read and write.
func (s *Store) ApplyFloorClamp(ctx context.Context, user points.UserID, category points.Category, delta, floor int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO balances (user_id, category, balance)
		VALUES (?, ?, MAX(?, ?))
		ON CONFLICT (user_id, category)
		DO UPDATE SET balance = MAX(balance + ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		int64(user), string(category), delta, floor, delta, floor,
	); err != nil {
		return 0, fmt.Errorf("applying floor clamp: %w", err)
	}

	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE user_id = ? AND category = ?`,
		int64(user), string(category),
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("reading clamped balance: %w", err)
	}
	return balance, nil
}

func (s *Store) TopUsers(ctx context.Context, category points.Category, offset, limit int, excluded []points.UserID) ([]points.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := []any{string(category)}

	exclude := ""
	if len(excluded) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(excluded)), ",")
		exclude = fmt.Sprintf("WHERE u.id NOT IN (%s)", placeholders)
		for _, id := range excluded {
			args = append(args, int64(id))
		}
	}

	query := fmt.Sprintf(`
		SELECT u.id
		FROM users AS u
		LEFT JOIN balances AS b
			ON b.user_id = u.id AND b.category = ?
		%s
		ORDER BY COALESCE(b.balance, 0) DESC, u.id ASC
		LIMIT ? OFFSET ?`, exclude)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ranked balance query: %w", err)
	}
	defer rows.Close()

	var users []points.UserID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning ranked row: %w", err)
		}
		users = append(users, points.UserID(id))
	}
	return users, rows.Err()
}

func (s *Store) DeleteCategoryBalances(ctx context.Context, category points.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM balances WHERE category = ?`, string(category))
	if err != nil {
		return fmt.Errorf("deleting category balances: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTION LOG (points.TransactionLog interface)
// =============================================================================

func (s *Store) Append(ctx context.Context, rec points.LogRecord) (points.LogID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (user_id, category, delta, kind, text, created_at, tenant_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(rec.UserID), string(rec.Category), rec.Delta, string(rec.Kind),
		rec.Text, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.TenantID,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", points.ErrWriteFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: reading insert id: %v", points.ErrWriteFailed, err)
	}
	return points.LogID(id), nil
}

func (s *Store) Logs(ctx context.Context, user points.UserID, category points.Category, limit, offset int) ([]points.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unlimited
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, category, delta, kind, text, created_at, tenant_id
		FROM logs
		WHERE user_id = ? AND category = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?`,
		int64(user), string(category), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

func (s *Store) LogsByCategory(ctx context.Context, category points.Category) ([]points.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, category, delta, kind, text, created_at, tenant_id
		FROM logs
		WHERE category = ?
		ORDER BY id ASC`,
		string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("querying category logs: %w", err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

func scanLogs(rows *sql.Rows) ([]points.LogRecord, error) {
	var logs []points.LogRecord
	for rows.Next() {
		var (
			rec       points.LogRecord
			id        int64
			user      int64
			category  string
			kind      string
			createdAt string
		)
		if err := rows.Scan(&id, &user, &category, &rec.Delta, &kind, &rec.Text, &createdAt, &rec.TenantID); err != nil {
			return nil, fmt.Errorf("scanning log row: %w", err)
		}
		rec.ID = points.LogID(id)
		rec.UserID = points.UserID(user)
		rec.Category = points.Category(category)
		rec.Kind = points.Kind(kind)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.Timestamp = ts
		}
		logs = append(logs, rec)
	}
	return logs, rows.Err()
}

func (s *Store) UpdateText(ctx context.Context, id points.LogID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE logs SET text = ? WHERE id = ?`, text, int64(id))
	if err != nil {
		return fmt.Errorf("updating log text: %w", err)
	}
	return nil
}

// DeleteCategoryLogs removes metadata and records in one database
// transaction, so a record is never left without its metadata cleanup.
func (s *Store) DeleteCategoryLogs(ctx context.Context, category points.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM log_meta
		WHERE log_id IN (SELECT id FROM logs WHERE category = ?)`,
		string(category),
	); err != nil {
		return fmt.Errorf("deleting category log metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM logs WHERE category = ?`, string(category),
	); err != nil {
		return fmt.Errorf("deleting category logs: %w", err)
	}

	return tx.Commit()
}

// =============================================================================
// TRANSACTION METADATA
// =============================================================================

func (s *Store) AddMeta(ctx context.Context, id points.LogID, key, value string, unique bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if unique {
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM log_meta WHERE log_id = ? AND meta_key = ?`,
			int64(id), key,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("checking metadata uniqueness: %w", err)
		}
		if count > 0 {
			return points.ErrDuplicateMeta
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO log_meta (log_id, meta_key, meta_value) VALUES (?, ?, ?)`,
		int64(id), key, value,
	)
	if err != nil {
		return fmt.Errorf("%w: inserting metadata: %v", points.ErrWriteFailed, err)
	}
	return nil
}

func (s *Store) Meta(ctx context.Context, id points.LogID, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT meta_value FROM log_meta
		WHERE log_id = ? AND meta_key = ?
		ORDER BY meta_id ASC`,
		int64(id), key,
	)
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning metadata row: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *Store) AllMeta(ctx context.Context, id points.LogID) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT meta_key, meta_value FROM log_meta
		WHERE log_id = ?
		ORDER BY meta_id ASC`,
		int64(id),
	)
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	defer rows.Close()

	all := make(map[string][]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning metadata row: %w", err)
		}
		all[k] = append(all[k], v)
	}
	return all, rows.Err()
}

func (s *Store) DeleteMeta(ctx context.Context, id points.LogID, key, value string, allMatching bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		where []string
		args  []any
	)
	if !allMatching {
		where = append(where, "log_id = ?")
		args = append(args, int64(id))
	}
	if key != "" {
		where = append(where, "meta_key = ?")
		args = append(args, key)
	}
	if value != "" {
		where = append(where, "meta_value = ?")
		args = append(args, value)
	}
	if len(where) == 0 {
		return fmt.Errorf("%w: delete-all-matching requires a key or value", points.ErrInvalidArgument)
	}

	query := "DELETE FROM log_meta WHERE " + strings.Join(where, " AND ")
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting metadata: %w", err)
	}
	return nil
}

// =============================================================================
// USER DIRECTORY (points.UserDirectory interface)
// =============================================================================

func (s *Store) AddUser(ctx context.Context, id points.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, created_at) VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING`,
		int64(id), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("adding user: %w", err)
	}
	return nil
}

func (s *Store) RemoveUser(ctx context.Context, id points.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, int64(id))
	if err != nil {
		return fmt.Errorf("removing user: %w", err)
	}
	return nil
}

func (s *Store) HasUser(ctx context.Context, id points.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE id = ?`, int64(id)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying user: %w", err)
	}
	return true, nil
}
