/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the collaborators the recomputation core reads from and the
  admission validator writes through. In production, the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  generic.TransactionSource: Period/kind/actor-filtered transactions
  generic.TierSource:        Multiplier tier table snapshot
  generic.ActorDirectory:    Office and professional names
  generic.TransactionStore:  Admitted transactions plus change log

ORDERING:
  LoadTransactions returns rows ORDER BY occurred_at, rowid. Timestamps are
  stored in UTC with a fixed-width layout so string comparison is time
  comparison; rowid breaks ties in insertion order.

SOFT DELETE:
  Deleted transactions keep their row with active = 0. Reports only read
  active rows; transaction_log keeps the before/after JSON of every change.

KEY TABLES:
  transactions:      Point-granting events (kind = legacy type code)
  companies:         Partner companies with their builder flag
  actors:            Offices and professionals (kind + id)
  bonus_multipliers: Tier table rows
  settings:          Key/value settings (points cutoff day, tier version)
  settings_log:      Audit of setting changes
  transaction_log:   Audit of edits and deletes
  report_runs:       Scheduled report snapshots

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/loyalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  recomputer := generic.NewRecomputer(store, store, store, opts)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/loyalty-engine/generic"
)

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// settingTierVersion counts tier table changes.
const settingTierVersion = "tiers_version"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	loc *time.Location
}

type Option func(*Store)

// WithLocation sets the zone loaded timestamps are converted to. Month
// boundaries in reports follow this zone. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, loc: time.UTC}
	for _, opt := range opts {
		opt(store)
	}
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
	-- Partner companies
	CREATE TABLE IF NOT EXISTS companies (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		trade_name TEXT,
		builder BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Offices and professionals
	CREATE TABLE IF NOT EXISTS actors (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		trade_name TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);

	-- Point-granting transactions
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		actor_id TEXT,
		company_id INTEGER NOT NULL DEFAULT 0,
		occurred_at TEXT NOT NULL,
		gross_value TEXT,
		points TEXT NOT NULL DEFAULT '0',
		note TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Report hot path: period scan per kind
	CREATE INDEX IF NOT EXISTS idx_transactions_kind_date
		ON transactions(kind, occurred_at) WHERE active = 1;
	CREATE INDEX IF NOT EXISTS idx_transactions_actor_date
		ON transactions(kind, actor_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_company_date
		ON transactions(company_id, occurred_at);

	-- Multiplier tiers
	CREATE TABLE IF NOT EXISTS bonus_multipliers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		range_min INTEGER NOT NULL,
		range_max INTEGER,
		multiplier TEXT NOT NULL,
		bonus_percent INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	-- Settings
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings_log (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		old_value TEXT,
		new_value TEXT NOT NULL,
		user_name TEXT,
		changed_at TEXT NOT NULL
	);

	-- Edit/delete audit
	CREATE TABLE IF NOT EXISTS transaction_log (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		action TEXT NOT NULL,
		before_json TEXT NOT NULL,
		after_json TEXT,
		user_id INTEGER NOT NULL,
		user_name TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transaction_log_tx
		ON transaction_log(transaction_id);

	-- Report runs (for scheduled monthly reports)
	CREATE TABLE IF NOT EXISTS report_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		actors INTEGER DEFAULT 0,
		points INTEGER DEFAULT 0,
		indexed_value TEXT DEFAULT '0',
		tier_version TEXT,
		issues_json TEXT,
		error TEXT,
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_report_runs_status
		ON report_runs(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_report_runs_unique
		ON report_runs(kind, period_start, period_end);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION SOURCE (generic.TransactionSource interface)
// =============================================================================

const selectTransactions = `
	SELECT t.id, t.kind, t.actor_id, t.company_id, t.occurred_at, t.gross_value,
	       t.points, t.note, COALESCE(c.name, ''), COALESCE(c.builder, FALSE)
	FROM transactions t
	LEFT JOIN companies c ON c.id = t.company_id
`

// LoadTransactions returns active transactions with an actor, ascending by
// timestamp then insertion order. The partner's builder flag is joined once
// here and carried on each row.
func (s *Store) LoadTransactions(ctx context.Context, filter generic.TransactionFilter) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{
		"t.active = 1",
		"t.actor_id IS NOT NULL",
		"t.actor_id <> ''",
	}
	var args []any
	if !filter.Period.Start.IsZero() {
		where = append(where, "t.occurred_at >= ?")
		args = append(args, formatTime(filter.Period.Start))
	}
	if !filter.Period.End.IsZero() {
		where = append(where, "t.occurred_at <= ?")
		args = append(args, formatTime(filter.Period.End))
	}

	if filter.Kind != nil {
		codes := filter.Kind.TypeCodes()
		if len(codes) == 0 {
			return nil, nil
		}
		where = append(where, "t.kind IN ("+placeholders(len(codes))+")")
		for _, c := range codes {
			args = append(args, c)
		}
	}
	if filter.ActorID != nil {
		where = append(where, "t.actor_id = ?")
		args = append(args, string(*filter.ActorID))
	}
	if filter.Partner != nil {
		where = append(where, "t.company_id = ?")
		args = append(args, int64(*filter.Partner))
	}

	query := selectTransactions +
		" WHERE " + strings.Join(where, " AND ") +
		" ORDER BY t.occurred_at ASC, t.rowid ASC"

	return s.queryTransactions(ctx, query, args...)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := s.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanTransaction(row scanner) (generic.Transaction, error) {
	var (
		tx         generic.Transaction
		kindCode   string
		actorID    sql.NullString
		companyID  int64
		occurredAt string
		note       sql.NullString
	)

	err := row.Scan(
		&tx.ID, &kindCode, &actorID, &companyID, &occurredAt, &tx.GrossValue,
		&tx.Points, &note, &tx.PartnerName, &tx.PartnerIsBuilder,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.ActorKind = kindFromCode(kindCode)
	tx.ActorID = generic.ActorID(actorID.String)
	tx.PartnerID = generic.PartnerID(companyID)
	if tx.Timestamp, err = s.parseTime(occurredAt); err != nil {
		return tx, fmt.Errorf("transaction %s occurred_at: %w", tx.ID, err)
	}
	tx.Note = note.String
	return tx, nil
}

// kindFromCode maps a stored type code to its registered kind, falling back
// to a bare kind for codes no adapter claims.
func kindFromCode(code string) generic.ActorKind {
	if k := generic.KindForCode(code); k != nil {
		return k
	}
	return generic.StringKind{ID: code, Codes: []string{code}}
}

// =============================================================================
// TRANSACTION STORE (generic.TransactionStore interface)
// =============================================================================

// CreateTransaction inserts an admitted transaction. An empty ID is replaced
// by a new UUID.
func (s *Store) CreateTransaction(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ActorKind == nil || len(tx.ActorKind.TypeCodes()) == 0 {
		return fmt.Errorf("transaction %s has no actor kind", tx.ID)
	}
	if tx.ID == "" {
		tx.ID = generic.TransactionID(uuid.NewString())
	}

	query := `
		INSERT INTO transactions
		(id, kind, actor_id, company_id, occurred_at, gross_value, points, note, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, TRUE, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(tx.ID),
		tx.ActorKind.TypeCodes()[0],
		nullString(string(tx.ActorID)),
		int64(tx.PartnerID),
		formatTime(tx.Timestamp),
		tx.GrossValue,
		tx.Points,
		nullString(tx.Note),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransaction returns an active transaction or ErrTransactionNotFound.
func (s *Store) GetTransaction(ctx context.Context, id generic.TransactionID) (*generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectTransactions+" WHERE t.id = ? AND t.active = 1", string(id))
	tx, err := s.scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateTransaction rewrites the mutable columns and appends the change log
// entry in the same database transaction.
func (s *Store) UpdateTransaction(ctx context.Context, tx generic.Transaction, entry generic.ChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(sqlTx *sql.Tx) error {
		kind := ""
		if tx.ActorKind != nil && len(tx.ActorKind.TypeCodes()) > 0 {
			kind = tx.ActorKind.TypeCodes()[0]
		}
		res, err := sqlTx.ExecContext(ctx, `
			UPDATE transactions
			SET kind = COALESCE(NULLIF(?, ''), kind), actor_id = ?, gross_value = ?, points = ?, note = ?
			WHERE id = ? AND active = 1
		`, kind, nullString(string(tx.ActorID)), tx.GrossValue, tx.Points, nullString(tx.Note), string(tx.ID))
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		if err := expectOneRow(res, generic.ErrTransactionNotFound); err != nil {
			return err
		}
		return insertChangeLog(ctx, sqlTx, entry)
	})
}

// DeleteTransaction soft-deletes and appends the change log entry.
func (s *Store) DeleteTransaction(ctx context.Context, id generic.TransactionID, entry generic.ChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(sqlTx *sql.Tx) error {
		res, err := sqlTx.ExecContext(ctx,
			"UPDATE transactions SET active = FALSE WHERE id = ? AND active = 1", string(id))
		if err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}
		if err := expectOneRow(res, generic.ErrTransactionNotFound); err != nil {
			return err
		}
		return insertChangeLog(ctx, sqlTx, entry)
	})
}

func insertChangeLog(ctx context.Context, sqlTx *sql.Tx, entry generic.ChangeLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	_, err := sqlTx.ExecContext(ctx, `
		INSERT INTO transaction_log (id, transaction_id, action, before_json, after_json, user_id, user_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, string(entry.TransactionID), string(entry.Action), entry.Before,
		nullString(entry.After), int64(entry.UserID), nullString(entry.UserName), formatTime(entry.At))
	if err != nil {
		return fmt.Errorf("failed to write change log: %w", err)
	}
	return nil
}

// ChangeLog returns the edits and deletes of one transaction, oldest first.
func (s *Store) ChangeLog(ctx context.Context, id generic.TransactionID) ([]generic.ChangeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, action, before_json, after_json, user_id, user_name, created_at
		FROM transaction_log
		WHERE transaction_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []generic.ChangeLogEntry
	for rows.Next() {
		var (
			e         generic.ChangeLogEntry
			after     sql.NullString
			userName  sql.NullString
			userID    int64
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.Action, &e.Before, &after, &userID, &userName, &createdAt); err != nil {
			return nil, err
		}
		e.After = after.String
		e.UserID = generic.PartnerID(userID)
		e.UserName = userName.String
		if e.At, err = s.parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("change log %s created_at: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TIER SOURCE (generic.TierSource interface)
// =============================================================================

// LoadTiers returns the tier table as a snapshot, versioned by the number of
// changes made to it.
func (s *Store) LoadTiers(ctx context.Context) (generic.TierTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tiers, err := s.listTiers(ctx, s.db)
	if err != nil {
		return generic.TierTable{}, err
	}
	version, _, err := s.getSetting(ctx, s.db, settingTierVersion)
	if err != nil {
		return generic.TierTable{}, err
	}
	if version == "" {
		version = "0"
	}
	return generic.NewTierTable("v"+version, tiers), nil
}

// ListTiers returns the tier rows ordered by range_min.
func (s *Store) ListTiers(ctx context.Context) ([]generic.MultiplierTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTiers(ctx, s.db)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) listTiers(ctx context.Context, q querier) ([]generic.MultiplierTier, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, range_min, range_max, multiplier, bonus_percent
		FROM bonus_multipliers
		ORDER BY range_min ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiers: %w", err)
	}
	defer rows.Close()

	var tiers []generic.MultiplierTier
	for rows.Next() {
		var (
			t        generic.MultiplierTier
			rangeMax sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.RangeMin, &rangeMax, &t.Multiplier, &t.BonusPercent); err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		if rangeMax.Valid {
			t.RangeMax = generic.Bound(int(rangeMax.Int64))
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// ReplaceTiers swaps the whole table atomically.
func (s *Store) ReplaceTiers(ctx context.Context, tiers []generic.MultiplierTier) ([]generic.MultiplierTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var saved []generic.MultiplierTier
	err := s.withTx(ctx, func(sqlTx *sql.Tx) error {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM bonus_multipliers"); err != nil {
			return err
		}
		for _, t := range tiers {
			if _, err := insertTier(ctx, sqlTx, t); err != nil {
				return err
			}
		}
		if err := s.bumpTierVersion(ctx, sqlTx); err != nil {
			return err
		}
		var err error
		saved, err = s.listTiers(ctx, sqlTx)
		return err
	})
	return saved, err
}

// CreateTier adds one row and returns it with its ID.
func (s *Store) CreateTier(ctx context.Context, t generic.MultiplierTier) (generic.MultiplierTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withTx(ctx, func(sqlTx *sql.Tx) error {
		id, err := insertTier(ctx, sqlTx, t)
		if err != nil {
			return err
		}
		t.ID = id
		return s.bumpTierVersion(ctx, sqlTx)
	})
	return t, err
}

// DeleteTier removes one row or returns ErrTierNotFound.
func (s *Store) DeleteTier(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(sqlTx *sql.Tx) error {
		res, err := sqlTx.ExecContext(ctx, "DELETE FROM bonus_multipliers WHERE id = ?", id)
		if err != nil {
			return err
		}
		if err := expectOneRow(res, generic.ErrTierNotFound); err != nil {
			return err
		}
		return s.bumpTierVersion(ctx, sqlTx)
	})
}

// SeedTiers installs the given table only when no tier exists yet.
func (s *Store) SeedTiers(ctx context.Context, table generic.TierTable) (bool, error) {
	existing, err := s.ListTiers(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	_, err = s.ReplaceTiers(ctx, table.Tiers)
	return err == nil, err
}

func insertTier(ctx context.Context, q querier, t generic.MultiplierTier) (int64, error) {
	var rangeMax sql.NullInt64
	if t.RangeMax != nil {
		rangeMax = sql.NullInt64{Int64: int64(*t.RangeMax), Valid: true}
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO bonus_multipliers (range_min, range_max, multiplier, bonus_percent, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.RangeMin, rangeMax, t.Multiplier.String(), t.BonusPercent, formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to insert tier: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) bumpTierVersion(ctx context.Context, q querier) error {
	current, _, err := s.getSetting(ctx, q, settingTierVersion)
	if err != nil {
		return err
	}
	n, _ := strconv.Atoi(current)
	return s.putSetting(ctx, q, settingTierVersion, strconv.Itoa(n+1))
}

// =============================================================================
// SETTINGS
// =============================================================================

// SettingChange is one audited settings update.
type SettingChange struct {
	ID        string
	Key       string
	OldValue  string
	NewValue  string
	UserName  string
	ChangedAt time.Time
}

// CutoffDay returns the points cutoff day, falling back to the default when
// unset or out of range.
func (s *Store) CutoffDay(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok, err := s.getSetting(ctx, s.db, generic.SettingCutoffDay)
	if err != nil || !ok {
		return generic.DefaultCutoffDay, err
	}
	day, err := strconv.Atoi(value)
	if err != nil || day < generic.MinCutoffDay || day > generic.MaxCutoffDay {
		return generic.DefaultCutoffDay, nil
	}
	return day, nil
}

// SetCutoffDay stores a new cutoff day and logs the change.
func (s *Store) SetCutoffDay(ctx context.Context, day int, userName string) error {
	if day < generic.MinCutoffDay || day > generic.MaxCutoffDay {
		return fmt.Errorf("%w: cutoff day must be between %d and %d",
			generic.ErrInvalidValue, generic.MinCutoffDay, generic.MaxCutoffDay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(sqlTx *sql.Tx) error {
		old, _, err := s.getSetting(ctx, sqlTx, generic.SettingCutoffDay)
		if err != nil {
			return err
		}
		newValue := strconv.Itoa(day)
		if err := s.putSetting(ctx, sqlTx, generic.SettingCutoffDay, newValue); err != nil {
			return err
		}
		_, err = sqlTx.ExecContext(ctx, `
			INSERT INTO settings_log (id, key, old_value, new_value, user_name, changed_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), generic.SettingCutoffDay, nullString(old), newValue,
			nullString(userName), formatTime(time.Now()))
		return err
	})
}

// SettingChanges lists the audit log of one key, newest first.
func (s *Store) SettingChanges(ctx context.Context, key string) ([]SettingChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, old_value, new_value, user_name, changed_at
		FROM settings_log
		WHERE key = ?
		ORDER BY changed_at DESC, rowid DESC
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []SettingChange
	for rows.Next() {
		var (
			c         SettingChange
			old, user sql.NullString
			changedAt string
		)
		if err := rows.Scan(&c.ID, &c.Key, &old, &c.NewValue, &user, &changedAt); err != nil {
			return nil, err
		}
		c.OldValue = old.String
		c.UserName = user.String
		if c.ChangedAt, err = s.parseTime(changedAt); err != nil {
			return nil, fmt.Errorf("setting change %s changed_at: %w", c.ID, err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (s *Store) getSetting(ctx context.Context, q querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) putSetting(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, formatTime(time.Now()))
	return err
}

// =============================================================================
// DIRECTORY (generic.ActorDirectory interface)
// =============================================================================

// Company is a partner company record.
type Company struct {
	ID        generic.PartnerID
	Name      string
	TradeName string
	Builder   bool
}

// SaveCompany upserts a partner company.
func (s *Store) SaveCompany(ctx context.Context, c Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, trade_name, builder, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			trade_name = excluded.trade_name,
			builder = excluded.builder
	`, int64(c.ID), c.Name, nullString(c.TradeName), c.Builder, formatTime(time.Now()))
	return err
}

// GetCompany returns a company or ErrPartnerNotFound.
func (s *Store) GetCompany(ctx context.Context, id generic.PartnerID) (*Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		c         Company
		tradeName sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, trade_name, builder FROM companies WHERE id = ?", int64(id),
	).Scan(&c.ID, &c.Name, &tradeName, &c.Builder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrPartnerNotFound
	}
	if err != nil {
		return nil, err
	}
	c.TradeName = tradeName.String
	return &c, nil
}

// SaveActor upserts an office or professional.
func (s *Store) SaveActor(ctx context.Context, kind generic.ActorKind, info generic.ActorInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actors (kind, id, name, trade_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			name = excluded.name,
			trade_name = excluded.trade_name
	`, kind.KindID(), string(info.ID), info.Name, nullString(info.TradeName), formatTime(time.Now()))
	return err
}

// GetActor returns an actor record or ErrActorNotFound.
func (s *Store) GetActor(ctx context.Context, kind generic.ActorKind, id generic.ActorID) (*generic.ActorInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		info      generic.ActorInfo
		tradeName sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, trade_name FROM actors WHERE kind = ? AND id = ?", kind.KindID(), string(id),
	).Scan(&info.ID, &info.Name, &tradeName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrActorNotFound
	}
	if err != nil {
		return nil, err
	}
	info.TradeName = tradeName.String
	return &info, nil
}

// ActorNames resolves display records for the given IDs. Unknown IDs are absent.
func (s *Store) ActorNames(ctx context.Context, kind generic.ActorKind, ids []generic.ActorID) (map[generic.ActorID]generic.ActorInfo, error) {
	result := make(map[generic.ActorID]generic.ActorInfo, len(ids))
	if kind == nil || len(ids) == 0 {
		return result, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]any, 0, len(ids)+1)
	args = append(args, kind.KindID())
	for _, id := range ids {
		args = append(args, string(id))
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, trade_name FROM actors WHERE kind = ? AND id IN ("+placeholders(len(ids))+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query actors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			info      generic.ActorInfo
			tradeName sql.NullString
		)
		if err := rows.Scan(&info.ID, &info.Name, &tradeName); err != nil {
			return nil, err
		}
		info.TradeName = tradeName.String
		result[info.ID] = info
	}
	return result, rows.Err()
}

// =============================================================================
// REPORT RUNS
// =============================================================================

// ReportRun tracks a scheduled report for one kind and period.
type ReportRun struct {
	ID           string
	Kind         string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Status       string // pending, running, completed, failed
	Actors       int
	Points       int64
	IndexedValue decimal.Decimal
	TierVersion  string
	Issues       []string
	Error        string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
}

// SaveReportRun upserts a run keyed by kind and period.
func (s *Store) SaveReportRun(ctx context.Context, r ReportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	issues, _ := json.Marshal(r.Issues)

	query := `
		INSERT INTO report_runs (id, kind, period_start, period_end, status, actors, points,
			indexed_value, tier_version, issues_json, error, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, period_start, period_end) DO UPDATE SET
			status = excluded.status,
			actors = excluded.actors,
			points = excluded.points,
			indexed_value = excluded.indexed_value,
			tier_version = excluded.tier_version,
			issues_json = excluded.issues_json,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Kind, formatTime(r.PeriodStart), formatTime(r.PeriodEnd), r.Status,
		r.Actors, r.Points, r.IndexedValue.String(), nullString(r.TierVersion), string(issues),
		nullString(r.Error), nullTime(r.StartedAt), nullTime(r.CompletedAt), formatTime(r.CreatedAt),
	)
	return err
}

// ReportRuns lists runs, newest period first. An empty status lists all.
func (s *Store) ReportRuns(ctx context.Context, status string) ([]ReportRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, kind, period_start, period_end, status, actors, points, indexed_value,
			tier_version, issues_json, error, started_at, completed_at, created_at
		FROM report_runs
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY period_start DESC, kind ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ReportRun
	for rows.Next() {
		var (
			r                              ReportRun
			periodStart, periodEnd         string
			indexed, tierVersion, issues   sql.NullString
			runErr, startedAt, completedAt sql.NullString
			createdAt                      string
		)
		if err := rows.Scan(
			&r.ID, &r.Kind, &periodStart, &periodEnd, &r.Status, &r.Actors, &r.Points, &indexed,
			&tierVersion, &issues, &runErr, &startedAt, &completedAt, &createdAt,
		); err != nil {
			return nil, err
		}
		if r.PeriodStart, err = s.parseTime(periodStart); err != nil {
			return nil, fmt.Errorf("report run %s period_start: %w", r.ID, err)
		}
		if r.PeriodEnd, err = s.parseTime(periodEnd); err != nil {
			return nil, fmt.Errorf("report run %s period_end: %w", r.ID, err)
		}
		r.IndexedValue, _ = decimal.NewFromString(indexed.String)
		r.TierVersion = tierVersion.String
		r.Error = runErr.String
		if r.CreatedAt, err = s.parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("report run %s created_at: %w", r.ID, err)
		}
		if issues.Valid && issues.String != "" {
			_ = json.Unmarshal([]byte(issues.String), &r.Issues)
		}
		if startedAt.Valid {
			t, err := s.parseTime(startedAt.String)
			if err != nil {
				return nil, fmt.Errorf("report run %s started_at: %w", r.ID, err)
			}
			r.StartedAt = &t
		}
		if completedAt.Valid {
			t, err := s.parseTime(completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("report run %s completed_at: %w", r.ID, err)
			}
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// IsReportRunComplete checks if a kind/period run already finished.
func (s *Store) IsReportRunComplete(ctx context.Context, kind string, period generic.Period) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM report_runs
		WHERE kind = ? AND period_start = ? AND period_end = ? AND status = 'completed'
	`, kind, formatTime(period.Start), formatTime(period.End)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset deletes all data. Used by the demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"transaction_log", "transactions", "actors", "companies",
		"bonus_multipliers", "settings_log", "settings", "report_runs",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (s *Store) parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		var rfcErr error
		if t, rfcErr = time.Parse(time.RFC3339, v); rfcErr != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", v, err)
		}
	}
	return t.In(s.loc), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Compile-time interface checks
var (
	_ generic.TransactionSource = (*Store)(nil)
	_ generic.TierSource        = (*Store)(nil)
	_ generic.ActorDirectory    = (*Store)(nil)
	_ generic.TransactionStore  = (*Store)(nil)
)
