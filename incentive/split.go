package incentive

import (
	"github.com/shopspring/decimal"

	"github.com/warp/contribution-engine/generic"
)

// Rounding precision for shares. Money is paid in whole units; points keep
// two decimals so small co-author slices do not vanish.
const (
	AmountPlaces int32 = 0
	PointsPlaces int32 = 2
)

// =============================================================================
// SPLIT RESULT
// =============================================================================

type SplitResult struct {
	PolicyID      generic.PolicyID
	PolicyVersion int
	Multiplier    decimal.Decimal

	PoolAmount generic.Amount
	PoolPoints generic.Amount

	// Authors is a copy of the input, in input order, with shares set.
	Authors []generic.Author

	// Forfeited is what the rules leave undistributed: external anchors,
	// a missing corresponding author, a co-author pool with no internal
	// co-authors, points of students. Measured before rounding.
	ForfeitedAmount generic.Amount
	ForfeitedPoints generic.Amount
}

// DistributedAmount sums the rounded per-author amounts.
func (r *SplitResult) DistributedAmount() generic.Amount {
	total := generic.ZeroAmount(generic.UnitCurrency)
	for _, a := range r.Authors {
		total = total.Add(a.IncentiveShare)
	}
	return total
}

// DistributedPoints sums the rounded per-author points.
func (r *SplitResult) DistributedPoints() generic.Amount {
	total := generic.ZeroAmount(generic.UnitPoints)
	for _, a := range r.Authors {
		total = total.Add(a.PointsShare)
	}
	return total
}

// Apply returns c with the pool totals and policy snapshot of this result.
func (r *SplitResult) Apply(c generic.Contribution) generic.Contribution {
	c.PoolAmount = r.PoolAmount
	c.PoolPoints = r.PoolPoints
	c.PolicyID = r.PolicyID
	c.PolicyVersion = r.PolicyVersion
	return c
}

// =============================================================================
// SPLIT
// =============================================================================

// Split computes the pool for a contribution and distributes it across its
// authors.
//
//  1. pool = base × tier multiplier (amount and points)
//  2. first anchor draws FirstAuthorPct, corresponding anchor draws
//     CorrespondingAuthorPct; one author holding both gets the sum
//  3. the remainder (100 - first - corr, floored at 0) is divided equally
//     among internal co-authors; with none it is forfeited, not redistributed
//  4. external authors get 0 amount and 0 points whatever their role
//  5. students get their amount but 0 points; the co-author points pool is
//     divided among internal non-student co-authors only
//  6. each share is rounded on its own; the rounded sum may differ from the
//     pool by a few units and is not reconciled
//
// Split is pure. Previous share values on the input authors are ignored and
// overwritten in the returned copy.
func Split(c generic.Contribution, authors []generic.Author, p Policy) (*SplitResult, error) {
	multiplier, err := p.TierMultiplier(c)
	if err != nil {
		return nil, err
	}

	cls, err := Classify(authors)
	if err != nil {
		return nil, err
	}

	poolAmount := generic.Amount{Value: p.BaseAmount.Value.Mul(multiplier), Unit: generic.UnitCurrency}
	poolPoints := generic.Amount{Value: p.BasePoints.Value.Mul(multiplier), Unit: generic.UnitPoints}

	out := make([]generic.Author, len(authors))
	copy(out, authors)
	for i := range out {
		out[i].IncentiveShare = generic.ZeroAmount(generic.UnitCurrency)
		out[i].PointsShare = generic.ZeroAmount(generic.UnitPoints)
	}

	distributedAmount := decimal.Zero
	distributedPoints := decimal.Zero

	// Anchors
	anchorPct := make(map[int]decimal.Decimal, 2)
	anchorPct[cls.FirstAnchor] = p.FirstAuthorPct
	if cls.CorrespondingAnchor >= 0 {
		anchorPct[cls.CorrespondingAnchor] = anchorPct[cls.CorrespondingAnchor].Add(p.CorrespondingAuthorPct)
	}
	for i, pct := range anchorPct {
		a := out[i]
		if a.Category.IsExternal() {
			continue
		}
		amount := poolAmount.Percent(pct)
		out[i].IncentiveShare = amount.Round(AmountPlaces)
		distributedAmount = distributedAmount.Add(amount.Value)

		if a.Category.IsStudent() {
			continue
		}
		points := poolPoints.Percent(pct)
		out[i].PointsShare = points.Round(PointsPlaces)
		distributedPoints = distributedPoints.Add(points.Value)
	}

	// Co-author pool
	coPct := p.CoAuthorPct()
	if n := len(cls.InternalCoAuthors); n > 0 {
		each := poolAmount.Percent(coPct).Div(decimal.NewFromInt(int64(n)))
		for _, i := range cls.InternalCoAuthors {
			out[i].IncentiveShare = each.Round(AmountPlaces)
			distributedAmount = distributedAmount.Add(each.Value)
		}
	}
	if n := len(cls.InternalEmployeeCoAuthors); n > 0 {
		each := poolPoints.Percent(coPct).Div(decimal.NewFromInt(int64(n)))
		for _, i := range cls.InternalEmployeeCoAuthors {
			out[i].PointsShare = each.Round(PointsPlaces)
			distributedPoints = distributedPoints.Add(each.Value)
		}
	}

	return &SplitResult{
		PolicyID:        p.ID,
		PolicyVersion:   p.Version,
		Multiplier:      multiplier,
		PoolAmount:      poolAmount,
		PoolPoints:      poolPoints,
		Authors:         out,
		ForfeitedAmount: generic.Amount{Value: poolAmount.Value.Sub(distributedAmount), Unit: generic.UnitCurrency},
		ForfeitedPoints: generic.Amount{Value: poolPoints.Value.Sub(distributedPoints), Unit: generic.UnitPoints},
	}, nil
}

// Preview resolves the applicable policy and splits in one call.
func Preview(policies []Policy, c generic.Contribution, authors []generic.Author) (*SplitResult, error) {
	p, err := ResolvePolicy(policies, c.Type, c.ReferenceDate())
	if err != nil {
		return nil, err
	}
	return Split(c, authors, *p)
}
