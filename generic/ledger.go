/*
ledger.go - Append-only incentive credit log

PURPOSE:
  When finance approves a contribution, the computed shares become money and
  points actually owed to people. The Ledger records those credits. Shares on
  the Author rows are overwritten on every recalculation; the ledger is the
  part that never changes.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. IDEMPOTENT: Same idempotency key = same transaction (no double credit)

CORRECTIONS:
  A wrong credit is undone with a TxReversal carrying the opposite sign.
  Both entries remain in the ledger.

SEE ALSO:
  - store.go: Low-level persistence interface
  - incentive/credit.go: Builds credit transactions from a split
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// TRANSACTION - One credit or reversal
// =============================================================================

type TransactionType string

const (
	TxCredit   TransactionType = "credit"
	TxReversal TransactionType = "reversal"
)

type Transaction struct {
	ID             TransactionID
	ContributionID ContributionID
	AuthorID       AuthorID
	AuthorName     string
	PolicyID       PolicyID
	PolicyVersion  int
	Type           TransactionType
	Amount         Amount
	Points         Amount
	Reason         string
	IdempotencyKey string

	CreatedBy ActorID
	CreatedAt time.Time
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the source of truth for credited incentives.
type Ledger interface {
	Append(ctx context.Context, tx Transaction) error
	AppendBatch(ctx context.Context, txs []Transaction) error
	Transactions(ctx context.Context, contributionID ContributionID) ([]Transaction, error)
	Totals(ctx context.Context, contributionID ContributionID) (amount, points Amount, err error)
}

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, contributionID ContributionID) ([]Transaction, error) {
	return l.Store.Load(ctx, contributionID)
}

// Totals sums credits net of reversals.
func (l *DefaultLedger) Totals(ctx context.Context, contributionID ContributionID) (Amount, Amount, error) {
	txs, err := l.Store.Load(ctx, contributionID)
	if err != nil {
		return Amount{}, Amount{}, err
	}

	amount := ZeroAmount(UnitCurrency)
	points := ZeroAmount(UnitPoints)
	for _, tx := range txs {
		amount = amount.Add(tx.Amount)
		points = points.Add(tx.Points)
	}
	return amount, points, nil
}
