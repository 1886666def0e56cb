package incentive

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/contribution-engine/generic"
)

// CreditKey is the idempotency key of an author's completion credit. One
// contribution can credit an author at most once.
func CreditKey(contributionID generic.ContributionID, authorID generic.AuthorID) string {
	return fmt.Sprintf("%s-%s-credit", contributionID, authorID)
}

// CreditTransactions turns the shares of a completed contribution into ledger
// credits. Authors with neither amount nor points get no transaction.
func CreditTransactions(c generic.Contribution, authors []generic.Author, actor generic.ActorID, at time.Time) []generic.Transaction {
	var txs []generic.Transaction
	for _, a := range authors {
		if a.IncentiveShare.IsZero() && a.PointsShare.IsZero() {
			continue
		}
		txs = append(txs, generic.Transaction{
			ID:             generic.TransactionID(uuid.NewString()),
			ContributionID: c.ID,
			AuthorID:       a.ID,
			AuthorName:     a.Name,
			PolicyID:       c.PolicyID,
			PolicyVersion:  c.PolicyVersion,
			Type:           generic.TxCredit,
			Amount:         a.IncentiveShare,
			Points:         a.PointsShare,
			Reason:         fmt.Sprintf("%s incentive for %q", c.Type, c.Title),
			IdempotencyKey: CreditKey(c.ID, a.ID),
			CreatedBy:      actor,
			CreatedAt:      at,
		})
	}
	return txs
}

// Reversal builds the transaction that cancels tx. The reversal keeps both
// records in the ledger.
func Reversal(tx generic.Transaction, actor generic.ActorID, reason string, at time.Time) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		ContributionID: tx.ContributionID,
		AuthorID:       tx.AuthorID,
		AuthorName:     tx.AuthorName,
		PolicyID:       tx.PolicyID,
		PolicyVersion:  tx.PolicyVersion,
		Type:           generic.TxReversal,
		Amount:         tx.Amount.Mul(negativeOne),
		Points:         tx.Points.Mul(negativeOne),
		Reason:         reason,
		IdempotencyKey: string(tx.ID) + "-reversal",
		CreatedBy:      actor,
		CreatedAt:      at,
	}
}
