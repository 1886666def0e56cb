/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface the engine needs using SQLite. In
  production the same patterns apply to PostgreSQL with minor dialect
  differences.

INTERFACES IMPLEMENTED:
  generic.Store:             Incentive credit ledger
  generic.AuditLog:          Audit trail
  contribution.Store:        Contributions, authors, history, suggestions
  contribution.PolicyStore:  Incentive policies

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE on incentive_credits, status_history or audit_log
  - Corrections to credits via reversal transactions only
  - Policies are deactivated, never deleted

OPTIMISTIC CONCURRENCY:
  Status-dependent writes run inside one SQL transaction that starts with

    UPDATE contributions SET ... WHERE id = ? AND status = ?

  Zero affected rows means another writer moved the contribution first and
  the whole change is rolled back with generic.ErrConcurrentModification.

KEY TABLES:
  contributions:      One row per filed work (status, tier, pool, policy snapshot)
  authors:            Author list with computed shares
  policies:           Versioned incentive rules
  status_history:     One row per transition
  edit_suggestions:   Reviewer suggestions and responses
  incentive_credits:  Immutable credit ledger
  audit_log:          Who did what when

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers never block the
  single writer.

USAGE:
  store, err := sqlite.New("./data/incentives.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store)

SEE ALSO:
  - generic/store.go: Ledger and audit interfaces
  - contribution/store.go: Contribution and policy interfaces
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/contribution-engine/contribution"
	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/incentive"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ generic.Store            = (*Store)(nil)
	_ generic.AuditLog         = (*Store)(nil)
	_ contribution.Store       = (*Store)(nil)
	_ contribution.PolicyStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each :memory: connection is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
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
	CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL,
		quartile TEXT,
		impact_tier TEXT,
		requires_mentor INTEGER NOT NULL DEFAULT 0,
		return_stage TEXT,
		policy_id TEXT,
		policy_version INTEGER NOT NULL DEFAULT 0,
		pool_amount TEXT NOT NULL DEFAULT '0',
		pool_points TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		submitted_at TEXT,
		completed_at TEXT,
		updated_at TEXT NOT NULL,
		revision INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_contributions_type_status
		ON contributions(type, status);
	CREATE INDEX IF NOT EXISTS idx_contributions_owner
		ON contributions(owner_id);

	CREATE TABLE IF NOT EXISTS authors (
		id TEXT PRIMARY KEY,
		contribution_id TEXT NOT NULL REFERENCES contributions(id),
		name TEXT NOT NULL,
		email TEXT,
		author_order INTEGER NOT NULL,
		role TEXT NOT NULL,
		category TEXT NOT NULL,
		incentive_share TEXT NOT NULL DEFAULT '0',
		points_share TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_authors_contribution
		ON authors(contribution_id, author_order);

	-- Policies: rules never change once stored; a new version is a new row
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		name TEXT,
		contribution_type TEXT NOT NULL,
		version INTEGER NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		first_author_pct TEXT NOT NULL,
		corresponding_author_pct TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		base_points TEXT NOT NULL,
		tier_multipliers_json TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_type
		ON policies(contribution_type, effective_from);

	-- Status history (append-only)
	CREATE TABLE IF NOT EXISTS status_history (
		id TEXT PRIMARY KEY,
		contribution_id TEXT NOT NULL REFERENCES contributions(id),
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		comment TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_contribution
		ON status_history(contribution_id, at);

	CREATE TABLE IF NOT EXISTS edit_suggestions (
		id TEXT PRIMARY KEY,
		contribution_id TEXT NOT NULL REFERENCES contributions(id),
		field TEXT NOT NULL,
		original_value TEXT,
		suggested_value TEXT,
		status TEXT NOT NULL,
		proposed_by TEXT NOT NULL,
		responder_note TEXT,
		responded_by TEXT,
		created_at TEXT NOT NULL,
		responded_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_suggestions_contribution
		ON edit_suggestions(contribution_id, created_at);

	-- Incentive credits (append-only ledger)
	CREATE TABLE IF NOT EXISTS incentive_credits (
		id TEXT PRIMARY KEY,
		contribution_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		author_name TEXT,
		policy_id TEXT,
		policy_version INTEGER NOT NULL DEFAULT 0,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		points TEXT NOT NULL,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credits_contribution
		ON incentive_credits(contribution_id, created_at);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		at TEXT NOT NULL,
		actor_id TEXT,
		actor_role TEXT,
		action TEXT NOT NULL,
		contribution_id TEXT,
		from_status TEXT,
		to_status TEXT,
		pool_amount TEXT,
		pool_points TEXT,
		policy_id TEXT,
		comment TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_contribution
		ON audit_log(contribution_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// CREDIT LEDGER (generic.Store interface)
// =============================================================================

// Append adds a credit to the ledger.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendTx(ctx, s.db, tx)
}

func (s *Store) appendTx(ctx context.Context, db execer, tx generic.Transaction) error {
	query := `
		INSERT INTO incentive_credits
		(id, contribution_id, author_id, author_name, policy_id, policy_version, tx_type,
		 amount, points, reason, idempotency_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.ContributionID,
		tx.AuthorID,
		tx.AuthorName,
		tx.PolicyID,
		tx.PolicyVersion,
		tx.Type,
		tx.Amount.Value.String(),
		tx.Points.Value.String(),
		tx.Reason,
		nullString(tx.IdempotencyKey),
		tx.CreatedBy,
		formatTime(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append credit: %w", err)
	}
	return nil
}

// AppendBatch adds multiple credits atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	keys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if keys[tx.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			keys[tx.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := s.appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Load returns all credits for a contribution, oldest first.
func (s *Store) Load(ctx context.Context, contributionID generic.ContributionID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, contribution_id, author_id, author_name, policy_id, policy_version, tx_type,
		       amount, points, reason, idempotency_key, created_by, created_at
		FROM incentive_credits
		WHERE contribution_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, contributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credits: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM incentive_credits WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		authorName     sql.NullString
		policyID       sql.NullString
		amount         string
		points         string
		reason         sql.NullString
		idempotencyKey sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.ContributionID, &tx.AuthorID, &authorName, &policyID, &tx.PolicyVersion,
		&tx.Type, &amount, &points, &reason, &idempotencyKey, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan credit: %w", err)
	}

	tx.AuthorName = authorName.String
	tx.PolicyID = generic.PolicyID(policyID.String)
	if tx.Amount, tx.Points, err = parseAmounts(amount, points); err != nil {
		return tx, fmt.Errorf("credit %s: %w", tx.ID, err)
	}
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = generic.ActorID(createdBy.String)
	tx.CreatedAt = parseTime(createdAt)
	return tx, nil
}

// =============================================================================
// CONTRIBUTIONS (contribution.Store interface)
// =============================================================================

const contributionColumns = `
	id, type, title, owner_id, status, quartile, impact_tier, requires_mentor, return_stage,
	policy_id, policy_version, pool_amount, pool_points, created_at, submitted_at,
	completed_at, updated_at, revision`

func (s *Store) CreateContribution(ctx context.Context, c generic.Contribution, authors []generic.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO contributions (`+contributionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Type, c.Title, c.OwnerID, c.Status,
		nullQuartile(c.Quartile), nullTier(c.ImpactTier), c.RequiresMentor, nullString(string(c.ReturnStage)),
		nullString(string(c.PolicyID)), c.PolicyVersion,
		c.PoolAmount.Value.String(), c.PoolPoints.Value.String(),
		formatTime(c.CreatedAt), nullTime(c.SubmittedAt), nullTime(c.CompletedAt), formatTime(c.UpdatedAt),
		c.Revision,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("contribution %s already exists", c.ID)
		}
		return fmt.Errorf("failed to insert contribution: %w", err)
	}

	if err := insertAuthors(ctx, sqlTx, authors); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) GetContribution(ctx context.Context, id generic.ContributionID) (*generic.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE id = ?`, id)
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrContributionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListContributions(ctx context.Context, filter contribution.Filter) ([]generic.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.Type != nil {
		where = append(where, "type = ?")
		args = append(args, *filter.Type)
	}
	if filter.OwnerID != nil {
		where = append(where, "owner_id = ?")
		args = append(args, *filter.OwnerID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.OpenOnly {
		var terminal []string
		for _, st := range generic.AllStatuses {
			if st.IsTerminal() {
				terminal = append(terminal, "?")
				args = append(args, st)
			}
		}
		where = append(where, "status NOT IN ("+strings.Join(terminal, ", ")+")")
	}

	query := `SELECT ` + contributionColumns + ` FROM contributions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions: %w", err)
	}
	defer rows.Close()

	var result []generic.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) Authors(ctx context.Context, id generic.ContributionID) ([]generic.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contributions WHERE id = ?", id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, generic.ErrContributionNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contribution_id, name, email, author_order, role, category, incentive_share, points_share
		FROM authors
		WHERE contribution_id = ?
		ORDER BY author_order ASC, rowid ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query authors: %w", err)
	}
	defer rows.Close()

	var authors []generic.Author
	for rows.Next() {
		var (
			a      generic.Author
			email  sql.NullString
			amount string
			points string
		)
		if err := rows.Scan(&a.ID, &a.ContributionID, &a.Name, &email, &a.Order, &a.Role, &a.Category, &amount, &points); err != nil {
			return nil, fmt.Errorf("failed to scan author: %w", err)
		}
		a.Email = email.String
		if a.IncentiveShare, a.PointsShare, err = parseAmounts(amount, points); err != nil {
			return nil, fmt.Errorf("author %s: %w", a.ID, err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

func (s *Store) SaveSplit(ctx context.Context, expected contribution.Expect, c generic.Contribution, authors []generic.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := updateContribution(ctx, sqlTx, expected, c); err != nil {
		return err
	}
	if err := replaceAuthors(ctx, sqlTx, c.ID, authors); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) ApplyTransition(ctx context.Context, change contribution.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	c := change.Contribution
	if err := updateContribution(ctx, sqlTx, change.Expected, c); err != nil {
		return err
	}
	if change.Authors != nil {
		if err := replaceAuthors(ctx, sqlTx, c.ID, change.Authors); err != nil {
			return err
		}
	}

	h := change.History
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO status_history (id, contribution_id, from_status, to_status, action, actor_id, actor_role, comment, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.ContributionID, h.FromStatus, h.ToStatus, h.Action, h.ActorID, h.ActorRole,
		nullString(h.Comment), formatTime(h.At),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}

	for _, sg := range change.Suggestions {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO edit_suggestions
			(id, contribution_id, field, original_value, suggested_value, status, proposed_by,
			 responder_note, responded_by, created_at, responded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sg.ID, sg.ContributionID, sg.Field, sg.OriginalValue, sg.SuggestedValue, sg.Status, sg.ProposedBy,
			nullString(sg.ResponderNote), nullString(string(sg.RespondedBy)), formatTime(sg.CreatedAt), nullTime(sg.RespondedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("suggestion %s already exists", sg.ID)
			}
			return fmt.Errorf("failed to insert suggestion: %w", err)
		}
	}

	return sqlTx.Commit()
}

// updateContribution is the compare-and-set at the heart of every
// conditional write. It matches on status and revision and bumps the revision.
func updateContribution(ctx context.Context, db *sql.Tx, expected contribution.Expect, c generic.Contribution) error {
	res, err := db.ExecContext(ctx, `
		UPDATE contributions SET
			type = ?, title = ?, owner_id = ?, status = ?, quartile = ?, impact_tier = ?,
			requires_mentor = ?, return_stage = ?, policy_id = ?, policy_version = ?,
			pool_amount = ?, pool_points = ?, submitted_at = ?, completed_at = ?, updated_at = ?,
			revision = ?
		WHERE id = ? AND status = ? AND revision = ?`,
		c.Type, c.Title, c.OwnerID, c.Status, nullQuartile(c.Quartile), nullTier(c.ImpactTier),
		c.RequiresMentor, nullString(string(c.ReturnStage)), nullString(string(c.PolicyID)), c.PolicyVersion,
		c.PoolAmount.Value.String(), c.PoolPoints.Value.String(),
		nullTime(c.SubmittedAt), nullTime(c.CompletedAt), formatTime(c.UpdatedAt),
		expected.Revision+1,
		c.ID, expected.Status, expected.Revision,
	)
	if err != nil {
		return fmt.Errorf("failed to update contribution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contributions WHERE id = ?", c.ID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return generic.ErrContributionNotFound
	}
	return generic.ErrConcurrentModification
}

func replaceAuthors(ctx context.Context, db *sql.Tx, id generic.ContributionID, authors []generic.Author) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM authors WHERE contribution_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear authors: %w", err)
	}
	return insertAuthors(ctx, db, authors)
}

func insertAuthors(ctx context.Context, db execer, authors []generic.Author) error {
	for _, a := range authors {
		_, err := db.ExecContext(ctx, `
			INSERT INTO authors
			(id, contribution_id, name, email, author_order, role, category, incentive_share, points_share)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ContributionID, a.Name, nullString(a.Email), a.Order, a.Role, a.Category,
			a.IncentiveShare.Value.String(), a.PointsShare.Value.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert author %s: %w", a.ID, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContribution(row rowScanner) (generic.Contribution, error) {
	var (
		c           generic.Contribution
		quartile    sql.NullString
		impactTier  sql.NullString
		returnStage sql.NullString
		policyID    sql.NullString
		poolAmount  string
		poolPoints  string
		createdAt   string
		submittedAt sql.NullString
		completedAt sql.NullString
		updatedAt   string
	)

	err := row.Scan(
		&c.ID, &c.Type, &c.Title, &c.OwnerID, &c.Status, &quartile, &impactTier, &c.RequiresMentor,
		&returnStage, &policyID, &c.PolicyVersion, &poolAmount, &poolPoints,
		&createdAt, &submittedAt, &completedAt, &updatedAt, &c.Revision,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan contribution: %w", err)
	}

	if quartile.Valid {
		q := generic.Quartile(quartile.String)
		c.Quartile = &q
	}
	if impactTier.Valid {
		t := generic.ImpactTier(impactTier.String)
		c.ImpactTier = &t
	}
	c.ReturnStage = generic.Status(returnStage.String)
	c.PolicyID = generic.PolicyID(policyID.String)
	if c.PoolAmount, c.PoolPoints, err = parseAmounts(poolAmount, poolPoints); err != nil {
		return c, fmt.Errorf("contribution %s: %w", c.ID, err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.SubmittedAt = parseNullTime(submittedAt)
	c.CompletedAt = parseNullTime(completedAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

// =============================================================================
// HISTORY AND SUGGESTIONS
// =============================================================================

func (s *Store) History(ctx context.Context, id generic.ContributionID) ([]generic.StatusHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contribution_id, from_status, to_status, action, actor_id, actor_role, comment, at
		FROM status_history
		WHERE contribution_id = ?
		ORDER BY at ASC, rowid ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var result []generic.StatusHistory
	for rows.Next() {
		var (
			h       generic.StatusHistory
			comment sql.NullString
			at      string
		)
		if err := rows.Scan(&h.ID, &h.ContributionID, &h.FromStatus, &h.ToStatus, &h.Action,
			&h.ActorID, &h.ActorRole, &comment, &at); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.Comment = comment.String
		h.At = parseTime(at)
		result = append(result, h)
	}
	return result, rows.Err()
}

const suggestionColumns = `
	id, contribution_id, field, original_value, suggested_value, status, proposed_by,
	responder_note, responded_by, created_at, responded_at`

func (s *Store) Suggestions(ctx context.Context, id generic.ContributionID) ([]generic.EditSuggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+suggestionColumns+`
		FROM edit_suggestions
		WHERE contribution_id = ?
		ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	var result []generic.EditSuggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sg)
	}
	return result, rows.Err()
}

func (s *Store) GetSuggestion(ctx context.Context, id generic.SuggestionID) (*generic.EditSuggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+suggestionColumns+` FROM edit_suggestions WHERE id = ?`, id)
	sg, err := scanSuggestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrSuggestionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sg, nil
}

func (s *Store) ResolveSuggestion(ctx context.Context, sg generic.EditSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE edit_suggestions
		SET status = ?, responder_note = ?, responded_by = ?, responded_at = ?
		WHERE id = ? AND status = ?`,
		sg.Status, nullString(sg.ResponderNote), nullString(string(sg.RespondedBy)), nullTime(sg.RespondedAt),
		sg.ID, generic.SuggestionPending,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve suggestion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edit_suggestions WHERE id = ?", sg.ID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return generic.ErrSuggestionNotFound
	}
	return generic.ErrSuggestionResolved
}

func scanSuggestion(row rowScanner) (generic.EditSuggestion, error) {
	var (
		sg          generic.EditSuggestion
		original    sql.NullString
		suggested   sql.NullString
		note        sql.NullString
		respondedBy sql.NullString
		createdAt   string
		respondedAt sql.NullString
	)

	err := row.Scan(&sg.ID, &sg.ContributionID, &sg.Field, &original, &suggested, &sg.Status,
		&sg.ProposedBy, &note, &respondedBy, &createdAt, &respondedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sg, err
		}
		return sg, fmt.Errorf("failed to scan suggestion: %w", err)
	}

	sg.OriginalValue = original.String
	sg.SuggestedValue = suggested.String
	sg.ResponderNote = note.String
	sg.RespondedBy = generic.ActorID(respondedBy.String)
	sg.CreatedAt = parseTime(createdAt)
	sg.RespondedAt = parseNullTime(respondedAt)
	return sg, nil
}

// =============================================================================
// POLICY STORE (contribution.PolicyStore interface)
// =============================================================================

const policyColumns = `
	id, name, contribution_type, version, effective_from, effective_to, first_author_pct,
	corresponding_author_pct, base_amount, base_points, tier_multipliers_json, is_active, created_at`

// SavePolicy inserts a policy. Existing ids are rejected: policies are versioned, not edited.
func (s *Store) SavePolicy(ctx context.Context, p incentive.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tiers sql.NullString
	if len(p.TierMultipliers) > 0 {
		b, err := json.Marshal(p.TierMultipliers)
		if err != nil {
			return fmt.Errorf("failed to encode tier multipliers: %w", err)
		}
		tiers = sql.NullString{String: string(b), Valid: true}
	}

	var effectiveTo sql.NullString
	if p.EffectiveTo != nil {
		effectiveTo = sql.NullString{String: p.EffectiveTo.String(), Valid: true}
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies (`+policyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.ContributionType, p.Version, p.EffectiveFrom.String(), effectiveTo,
		p.FirstAuthorPct.String(), p.CorrespondingAuthorPct.String(),
		p.BaseAmount.Value.String(), p.BasePoints.Value.String(),
		tiers, p.IsActive, formatTime(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &generic.InvalidPolicyError{PolicyID: p.ID, Problems: []string{"policy id already exists"}}
		}
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, id generic.PolicyID) (*incentive.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = ?`, id)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrPolicyNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) PoliciesByType(ctx context.Context, t generic.ContributionType) ([]incentive.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPolicies(ctx, `SELECT `+policyColumns+` FROM policies
		WHERE contribution_type = ?
		ORDER BY effective_from ASC, id ASC`, t)
}

func (s *Store) ListPolicies(ctx context.Context) ([]incentive.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPolicies(ctx, `SELECT `+policyColumns+` FROM policies
		ORDER BY contribution_type ASC, effective_from ASC, id ASC`)
}

func (s *Store) DeactivatePolicy(ctx context.Context, id generic.PolicyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE policies SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to deactivate policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrPolicyNotFound, id)
	}
	return nil
}

func (s *Store) queryPolicies(ctx context.Context, query string, args ...any) ([]incentive.Policy, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var result []incentive.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanPolicy(row rowScanner) (incentive.Policy, error) {
	var (
		p             incentive.Policy
		name          sql.NullString
		effectiveFrom string
		effectiveTo   sql.NullString
		firstPct      string
		corrPct       string
		baseAmount    string
		basePoints    string
		tiers         sql.NullString
		createdAt     string
	)

	err := row.Scan(&p.ID, &name, &p.ContributionType, &p.Version, &effectiveFrom, &effectiveTo,
		&firstPct, &corrPct, &baseAmount, &basePoints, &tiers, &p.IsActive, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan policy: %w", err)
	}

	p.Name = name.String
	from, err := generic.ParseTimePoint(effectiveFrom)
	if err != nil {
		return p, fmt.Errorf("policy %s: bad effective_from: %w", p.ID, err)
	}
	p.EffectiveFrom = from
	if effectiveTo.Valid {
		to, err := generic.ParseTimePoint(effectiveTo.String)
		if err != nil {
			return p, fmt.Errorf("policy %s: bad effective_to: %w", p.ID, err)
		}
		p.EffectiveTo = &to
	}
	if p.FirstAuthorPct, err = decimal.NewFromString(firstPct); err != nil {
		return p, fmt.Errorf("policy %s: bad first_author_pct %q: %w", p.ID, firstPct, err)
	}
	if p.CorrespondingAuthorPct, err = decimal.NewFromString(corrPct); err != nil {
		return p, fmt.Errorf("policy %s: bad corresponding_author_pct %q: %w", p.ID, corrPct, err)
	}
	if p.BaseAmount, p.BasePoints, err = parseAmounts(baseAmount, basePoints); err != nil {
		return p, fmt.Errorf("policy %s: %w", p.ID, err)
	}
	if tiers.Valid && tiers.String != "" {
		p.TierMultipliers = make(map[string]decimal.Decimal)
		if err := json.Unmarshal([]byte(tiers.String), &p.TierMultipliers); err != nil {
			return p, fmt.Errorf("policy %s: bad tier multipliers: %w", p.ID, err)
		}
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

// =============================================================================
// AUDIT LOG (generic.AuditLog interface)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var amount, points, policyID sql.NullString
	if e.Totals != nil {
		amount = nullString(e.Totals.PoolAmount.Value.String())
		points = nullString(e.Totals.PoolPoints.Value.String())
		policyID = nullString(string(e.Totals.PolicyID))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log
		(id, at, actor_id, actor_role, action, contribution_id, from_status, to_status,
		 pool_amount, pool_points, policy_id, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Timestamp), e.ActorID, e.ActorRole, e.Action, nullString(string(e.ContributionID)),
		nullString(string(e.FromStatus)), nullString(string(e.ToStatus)),
		amount, points, policyID, nullString(e.Comment),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns matching entries, newest first.
func (s *Store) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.ContributionID != nil {
		where = append(where, "contribution_id = ?")
		args = append(args, *filter.ContributionID)
	}
	if filter.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		marks := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			marks[i] = "?"
			args = append(args, a)
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.From != nil {
		where = append(where, "at >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "at <= ?")
		args = append(args, formatTime(*filter.To))
	}

	query := `SELECT id, at, actor_id, actor_role, action, contribution_id, from_status, to_status,
		pool_amount, pool_points, policy_id, comment FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var result []generic.AuditEntry
	for rows.Next() {
		var (
			e                                  generic.AuditEntry
			at                                 string
			actorID, actorRole, contributionID sql.NullString
			from, to                           sql.NullString
			amount, points, policyID, comment  sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &actorID, &actorRole, &e.Action, &contributionID, &from, &to,
			&amount, &points, &policyID, &comment); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = parseTime(at)
		e.ActorID = generic.ActorID(actorID.String)
		e.ActorRole = generic.ActorRole(actorRole.String)
		e.ContributionID = generic.ContributionID(contributionID.String)
		e.FromStatus = generic.Status(from.String)
		e.ToStatus = generic.Status(to.String)
		e.Comment = comment.String
		if amount.Valid && points.Valid {
			poolAmount, poolPoints, err := parseAmounts(amount.String, points.String)
			if err != nil {
				return nil, fmt.Errorf("audit entry %s: %w", e.ID, err)
			}
			e.Totals = &generic.AuditTotals{
				PoolAmount: poolAmount,
				PoolPoints: poolPoints,
				PolicyID:   generic.PolicyID(policyID.String),
			}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"incentive_credits", "audit_log", "edit_suggestions", "status_history", "authors", "contributions", "policies"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullQuartile(q *generic.Quartile) sql.NullString {
	if q == nil {
		return sql.NullString{}
	}
	return nullString(string(*q))
}

func nullTier(t *generic.ImpactTier) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullString(string(*t))
}

// formatTime uses a fixed-width UTC layout so text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

// parseAmount reads a decimal column. A corrupt value is an error, never zero.
func parseAmount(value string, unit generic.Unit) (generic.Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return generic.Amount{}, fmt.Errorf("bad %s value %q: %w", unit, value, err)
	}
	return generic.Amount{Value: d, Unit: unit}, nil
}

// parseAmounts reads a currency column and its points column.
func parseAmounts(amount, points string) (generic.Amount, generic.Amount, error) {
	a, err := parseAmount(amount, generic.UnitCurrency)
	if err != nil {
		return a, generic.Amount{}, err
	}
	p, err := parseAmount(points, generic.UnitPoints)
	return a, p, err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
