/*
store.go - Persistence interfaces for the credit ledger and the audit trail

PURPOSE:
  Defines the interface between the domain logic and the database for the
  two append-only records the engine produces: incentive credits and audit
  entries. Contribution/policy persistence is declared by the consumer in
  contribution/store.go.

KEY INTERFACES:
  Store:     Credit transaction persistence (append, load, exists)
  AuditLog:  Append-only audit entries with filtered queries
  AuditSink: Fire-and-forget notification target for transitions and splits

APPEND-ONLY CONTRACT:
  Neither Store nor AuditLog has Update() or Delete() methods. A wrong credit
  is corrected with a reversal transaction, never edited.

IDEMPOTENCY:
  Every credit carries an idempotency key. If the key already exists the
  write is rejected with ErrDuplicateIdempotencyKey, so a retried finance
  approval can never credit an author twice.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level ledger using Store
  - audit/: AuditSink implementations
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for credit persistence (append-only)
// =============================================================================

// Store handles persistence of credit transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete.
type Store interface {
	// Append persists a transaction. Returns error if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for a contribution, oldest first.
	Load(ctx context.Context, contributionID ContributionID) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// AUDIT - Who did what when
// =============================================================================

type AuditAction string

const (
	AuditTransition    AuditAction = "transition"
	AuditSplit         AuditAction = "split_recomputed"
	AuditCredit        AuditAction = "incentive_credited"
	AuditReversal      AuditAction = "incentive_reversed"
	AuditSuggestion    AuditAction = "suggestion_responded"
	AuditPolicyChanged AuditAction = "policy_changed"
)

// AuditTotals carries the computed pool of a split.
type AuditTotals struct {
	PoolAmount Amount
	PoolPoints Amount
	PolicyID   PolicyID
}

// AuditEntry records one auditable event.
type AuditEntry struct {
	ID             string
	Timestamp      time.Time
	ActorID        ActorID
	ActorRole      ActorRole
	Action         AuditAction
	ContributionID ContributionID
	FromStatus     Status
	ToStatus       Status
	Totals         *AuditTotals
	Comment        string
}

// AuditSink is notified of every transition and every split recomputation.
// Implementations must not block the caller for long; failures are theirs
// to handle, the engine never waits on them.
type AuditSink interface {
	Notify(ctx context.Context, entry AuditEntry)
}

// AuditLog stores audit entries. Also append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	ContributionID *ContributionID
	ActorID        *ActorID
	Actions        []AuditAction
	From           *time.Time
	To             *time.Time
	Limit          int
}

// NopSink discards every entry.
type NopSink struct{}

func (NopSink) Notify(context.Context, AuditEntry) {}
