/*
Package generic provides the shared types of the contribution review and
incentive engine.

PURPOSE:
  This package holds the vocabulary every other package speaks: amounts,
  identifiers, contributions, authors, statuses, history records and edit
  suggestions. It contains no I/O and no global state. The algorithms that
  operate on these types live in incentive/ (policy resolution, author
  classification, splitting) and review/ (state machine, suggestion loop).

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (500000 baht, 100 points)
  - Contribution: One filed work (paper, patent, grant...) under review
  - ContributionType / Quartile / ImpactTier: Inputs to policy resolution
    and tier multipliers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so percentages never drift
  2. Type Safety: Distinct ID types prevent mixing contribution/author IDs
  3. Values, not handles: Contributions are plain structs the caller owns;
     the engine returns new values instead of mutating shared state

SEE ALSO:
  - author.go: Author roles and categories
  - status.go: Review statuses, actor roles and actions
  - history.go: StatusHistory and EditSuggestion records
  - errors.go: Error taxonomy
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitCurrency Unit = "baht"
	UnitPoints   Unit = "points"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(value), Unit: unit}
}

func ZeroAmount(unit Unit) Amount {
	return Amount{Value: decimal.Zero, Unit: unit}
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Div(s decimal.Decimal) Amount { return Amount{Value: a.Value.Div(s), Unit: a.Unit} }
func (a Amount) Round(places int32) Amount    { return Amount{Value: a.Value.Round(places), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) String() string               { return a.Value.String() + " " + string(a.Unit) }

// Percent returns pct percent of a. pct is expressed in whole percent (40 = 40%).
func (a Amount) Percent(pct decimal.Decimal) Amount {
	return a.Mul(pct).Div(decimal.NewFromInt(100))
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContributionID string
type AuthorID string
type PolicyID string
type ActorID string
type SuggestionID string
type HistoryID string
type TransactionID string

// =============================================================================
// CONTRIBUTION
// =============================================================================

// ContributionType is the kind of filed work. Policies are keyed by it.
type ContributionType string

const (
	TypeJournalArticle  ContributionType = "journal_article"
	TypeConferencePaper ContributionType = "conference_paper"
	TypeBook            ContributionType = "book"
	TypeBookChapter     ContributionType = "book_chapter"
	TypePatent          ContributionType = "patent"
	TypePettyPatent     ContributionType = "petty_patent"
	TypeCopyright       ContributionType = "copyright"
	TypeResearchGrant   ContributionType = "research_grant"
)

var contributionTypes = map[ContributionType]bool{
	TypeJournalArticle:  true,
	TypeConferencePaper: true,
	TypeBook:            true,
	TypeBookChapter:     true,
	TypePatent:          true,
	TypePettyPatent:     true,
	TypeCopyright:       true,
	TypeResearchGrant:   true,
}

// Valid reports whether t is one of the known contribution types.
func (t ContributionType) Valid() bool { return contributionTypes[t] }

// Quartile is the journal ranking quartile (Q1 best).
type Quartile string

const (
	Q1 Quartile = "Q1"
	Q2 Quartile = "Q2"
	Q3 Quartile = "Q3"
	Q4 Quartile = "Q4"
)

func (q Quartile) Valid() bool { return q == Q1 || q == Q2 || q == Q3 || q == Q4 }

// ImpactTier is a top-percentile band. When present it supersedes the quartile.
type ImpactTier string

const (
	TierTop1  ImpactTier = "top_1"
	TierTop5  ImpactTier = "top_5"
	TierTop10 ImpactTier = "top_10"
)

func (t ImpactTier) Valid() bool { return t == TierTop1 || t == TierTop5 || t == TierTop10 }

// Contribution is one filed work moving through the review pipeline.
type Contribution struct {
	ID      ContributionID
	Type    ContributionType
	Title   string
	OwnerID ActorID
	Status  Status

	// Tier inputs (nullable: books and patents have no quartile)
	Quartile   *Quartile
	ImpactTier *ImpactTier

	// RequiresMentor routes the first submission through a mentor (student filings).
	RequiresMentor bool

	// ReturnStage is the review stage that last requested changes. It decides
	// who moves the contribution out of StatusResubmitted.
	ReturnStage Status

	// Policy snapshot used for the last split
	PolicyID      PolicyID
	PolicyVersion int

	// Calculated pool (outputs of the splitter)
	PoolAmount Amount
	PoolPoints Amount

	CreatedAt   time.Time
	SubmittedAt *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time

	// Revision counts stored writes. Conditional writes compare on it so an
	// edit committed between a read and a write is never overwritten.
	Revision int
}

// ReferenceDate is the date used for policy resolution: the first submission
// date once submitted, the creation date before that.
func (c Contribution) ReferenceDate() TimePoint {
	if c.SubmittedAt != nil {
		return TimePointOf(*c.SubmittedAt)
	}
	return TimePointOf(c.CreatedAt)
}
