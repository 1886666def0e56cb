/*
Package incentive computes what a contribution is worth and who gets it.

PURPOSE:
  Three pure components feed each other:

    ResolvePolicy ──▶ Classify ──▶ Split
    (which rules)    (who is who)  (how much each)

  None of them performs I/O, keeps state or logs. Given the same inputs they
  always return the same outputs, so callers may run them in parallel across
  contributions and re-run them whenever authors, tier fields or policies
  change.

KEY CONCEPTS IN THIS FILE (policy.go):
  - Policy: A versioned rule set for one contribution type
  - Tier multipliers: Policy-defined scalars per quartile / impact band
  - Effective window: [EffectiveFrom, EffectiveTo] with open-ended EffectiveTo

POLICY VERSIONING:
  Policies are never edited once effective and never deleted. A new rule set
  is a new Policy (higher Version, later EffectiveFrom); the old one is
  either deactivated or simply superseded by effective-date ordering.

EXAMPLE:
  policy := incentive.Policy{
      ID:                     "ja-2025",
      ContributionType:       generic.TypeJournalArticle,
      EffectiveFrom:          generic.NewTimePoint(2025, time.January, 1),
      FirstAuthorPct:         decimal.NewFromInt(40),
      CorrespondingAuthorPct: decimal.NewFromInt(40),
      BaseAmount:             generic.NewAmountFromInt(200000, generic.UnitCurrency),
      BasePoints:             generic.NewAmountFromInt(100, generic.UnitPoints),
      TierMultipliers:        map[string]decimal.Decimal{"Q1": decimal.NewFromInt(1)},
      IsActive:               true,
  }

SEE ALSO:
  - resolver.go: Picks the applicable policy
  - classify.go: Partitions authors
  - split.go: Distributes the pool
*/
package incentive

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/contribution-engine/generic"
)

var (
	hundred     = decimal.NewFromInt(100)
	negativeOne = decimal.NewFromInt(-1)
)

// =============================================================================
// POLICY
// =============================================================================

type Policy struct {
	ID               generic.PolicyID
	Name             string
	ContributionType generic.ContributionType
	Version          int

	EffectiveFrom generic.TimePoint
	EffectiveTo   *generic.TimePoint // nil = open-ended

	// Percentages in whole percent (40 = 40%)
	FirstAuthorPct         decimal.Decimal
	CorrespondingAuthorPct decimal.Decimal

	BaseAmount generic.Amount
	BasePoints generic.Amount

	// TierMultipliers maps a quartile ("Q1") or impact tier ("top_1") to a scalar.
	// Empty means the policy does not grade by tier.
	TierMultipliers map[string]decimal.Decimal

	IsActive  bool
	CreatedAt time.Time
}

// CoAuthorPct is the share left for co-authors, floored at 0.
func (p Policy) CoAuthorPct() decimal.Decimal {
	rest := hundred.Sub(p.FirstAuthorPct).Sub(p.CorrespondingAuthorPct)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// EffectiveOn reports whether the policy's window contains at.
func (p Policy) EffectiveOn(at generic.TimePoint) bool {
	if at.Before(p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo != nil && at.After(*p.EffectiveTo) {
		return false
	}
	return true
}

// TierMultiplier returns the scalar applied to base amount and points.
// The impact tier band supersedes the quartile. A contribution without tier
// fields gets 1. A policy without bands grades nothing and returns 1.
func (p Policy) TierMultiplier(c generic.Contribution) (decimal.Decimal, error) {
	if len(p.TierMultipliers) == 0 {
		return decimal.NewFromInt(1), nil
	}

	if c.ImpactTier != nil {
		if m, ok := p.TierMultipliers[string(*c.ImpactTier)]; ok {
			return m, nil
		}
	}
	if c.Quartile != nil {
		if m, ok := p.TierMultipliers[string(*c.Quartile)]; ok {
			return m, nil
		}
	}

	switch {
	case c.ImpactTier != nil:
		return decimal.Zero, &generic.TierNotCoveredError{PolicyID: p.ID, Tier: string(*c.ImpactTier)}
	case c.Quartile != nil:
		return decimal.Zero, &generic.TierNotCoveredError{PolicyID: p.ID, Tier: string(*c.Quartile)}
	default:
		return decimal.NewFromInt(1), nil
	}
}

// Validate checks the policy invariants. It returns *generic.InvalidPolicyError
// listing every violation.
func (p Policy) Validate() error {
	var problems []string

	if p.ID == "" {
		problems = append(problems, "id is required")
	}
	if !p.ContributionType.Valid() {
		problems = append(problems, "unknown contribution type "+string(p.ContributionType))
	}
	if p.EffectiveFrom.IsZero() {
		problems = append(problems, "effective_from is required")
	}
	if p.EffectiveTo != nil && p.EffectiveTo.Before(p.EffectiveFrom) {
		problems = append(problems, "effective_to is before effective_from")
	}
	if p.FirstAuthorPct.IsNegative() || p.CorrespondingAuthorPct.IsNegative() {
		problems = append(problems, "percentages must be non-negative")
	}
	if p.FirstAuthorPct.Add(p.CorrespondingAuthorPct).GreaterThan(hundred) {
		problems = append(problems, "first + corresponding percentage exceeds 100")
	}
	if p.BaseAmount.IsNegative() {
		problems = append(problems, "base amount must be non-negative")
	}
	if p.BasePoints.IsNegative() {
		problems = append(problems, "base points must be non-negative")
	}
	for tier, m := range p.TierMultipliers {
		if !generic.Quartile(tier).Valid() && !generic.ImpactTier(tier).Valid() {
			problems = append(problems, "unknown tier "+strconv.Quote(tier))
			continue
		}
		if !m.IsPositive() {
			problems = append(problems, "multiplier for "+tier+" must be positive")
		}
	}

	if len(problems) > 0 {
		return &generic.InvalidPolicyError{PolicyID: p.ID, Problems: problems}
	}
	return nil
}
