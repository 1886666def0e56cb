package incentive_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/incentive"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func baht(v int64) generic.Amount   { return generic.NewAmountFromInt(v, generic.UnitCurrency) }
func points(v int64) generic.Amount { return generic.NewAmountFromInt(v, generic.UnitPoints) }

func journalPolicy() incentive.Policy {
	return incentive.Policy{
		ID:                     "ja-2025",
		Name:                   "Journal article 2025",
		ContributionType:       generic.TypeJournalArticle,
		Version:                1,
		EffectiveFrom:          generic.NewTimePoint(2025, time.January, 1),
		FirstAuthorPct:         decimal.NewFromInt(40),
		CorrespondingAuthorPct: decimal.NewFromInt(40),
		BaseAmount:             baht(200000),
		BasePoints:             points(100),
		IsActive:               true,
	}
}

func article() generic.Contribution {
	return generic.Contribution{
		ID:        "c-1",
		Type:      generic.TypeJournalArticle,
		Title:     "Deterministic splitting",
		Status:    generic.StatusDraft,
		CreatedAt: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
}

func author(id string, order int, role generic.Role, cat generic.Category) generic.Author {
	return generic.Author{
		ID:             generic.AuthorID(id),
		ContributionID: "c-1",
		Name:           id,
		Order:          order,
		Role:           role,
		Category:       cat,
	}
}

func assertShare(t *testing.T, a generic.Author, amount int64, pts string) {
	t.Helper()
	assert.True(t, a.IncentiveShare.Value.Equal(decimal.NewFromInt(amount)),
		"%s amount: expected %d, got %s", a.Name, amount, a.IncentiveShare.Value)
	assert.True(t, a.PointsShare.Value.Equal(decimal.RequireFromString(pts)),
		"%s points: expected %s, got %s", a.Name, pts, a.PointsShare.Value)
}

// =============================================================================
// WORKED SCENARIOS
// =============================================================================

func TestSplit_CombinedAnchor_FacultyAndStudentCoAuthors(t *testing.T) {
	// GIVEN: 40/40 policy, 200000 baht, 100 points
	//        one internal faculty author holding first+corresponding
	//        two internal co-authors: one faculty, one student
	// WHEN: splitting
	// THEN: anchor gets 80% of both pools, co-authors split 20% of the amount,
	//       the faculty co-author takes all 20 remaining points

	authors := []generic.Author{
		author("anchor", 1, generic.RoleFirstAndCorrespondingAuthor, generic.CategoryFaculty),
		author("faculty-co", 2, generic.RoleCoAuthor, generic.CategoryFaculty),
		author("student-co", 3, generic.RoleCoAuthor, generic.CategoryStudent),
	}

	result, err := incentive.Split(article(), authors, journalPolicy())
	require.NoError(t, err)

	assert.True(t, result.PoolAmount.Equal(baht(200000)))
	assert.True(t, result.PoolPoints.Equal(points(100)))

	assertShare(t, result.Authors[0], 160000, "80")
	assertShare(t, result.Authors[1], 20000, "20")
	assertShare(t, result.Authors[2], 20000, "0")

	assert.True(t, result.ForfeitedAmount.IsZero())
	assert.True(t, result.ForfeitedPoints.IsZero())
}

func TestSplit_ExternalAnchor_ShareForfeited(t *testing.T) {
	// GIVEN: same policy and co-authors, anchor is an external academic
	// WHEN: splitting
	// THEN: anchor gets nothing, the 80% is forfeited rather than redistributed

	authors := []generic.Author{
		author("anchor", 1, generic.RoleFirstAndCorrespondingAuthor, generic.CategoryExternalAcademic),
		author("faculty-co", 2, generic.RoleCoAuthor, generic.CategoryFaculty),
		author("student-co", 3, generic.RoleCoAuthor, generic.CategoryStudent),
	}

	result, err := incentive.Split(article(), authors, journalPolicy())
	require.NoError(t, err)

	assertShare(t, result.Authors[0], 0, "0")
	assertShare(t, result.Authors[1], 20000, "20")
	assertShare(t, result.Authors[2], 20000, "0")

	assert.True(t, result.ForfeitedAmount.Equal(baht(160000)))
	assert.True(t, result.ForfeitedPoints.Equal(points(80)))
}

// =============================================================================
// DISTRIBUTION RULES
// =============================================================================

func TestSplit_SeparateAnchors(t *testing.T) {
	authors := []generic.Author{
		author("first", 1, generic.RoleFirstAuthor, generic.CategoryFaculty),
		author("corr", 2, generic.RoleCorrespondingAuthor, generic.CategoryStaff),
		author("co", 3, generic.RoleSeniorAuthor, generic.CategoryFaculty),
	}

	result, err := incentive.Split(article(), authors, journalPolicy())
	require.NoError(t, err)

	assertShare(t, result.Authors[0], 80000, "40")
	assertShare(t, result.Authors[1], 80000, "40")
	assertShare(t, result.Authors[2], 40000, "20")
}

func TestSplit_NoCorrespondingAuthor_CorrespondingShareForfeited(t *testing.T) {
	authors := []generic.Author{
		author("first", 1, generic.RoleFirstAuthor, generic.CategoryFaculty),
		author("co", 2, generic.RoleCoAuthor, generic.CategoryFaculty),
	}

	result, err := incentive.Split(article(), authors, journalPolicy())
	require.NoError(t, err)

	assertShare(t, result.Authors[0], 80000, "40")
	assertShare(t, result.Authors[1], 40000, "20")
	assert.True(t, result.ForfeitedAmount.Equal(baht(80000)))
}

func TestSplit_NoInternalCoAuthors_RemainderForfeited(t *testing.T) {
	// GIVEN: the only co-author is external
	// THEN: the 20% co-author pool is not redistributed to the anchor

	authors := []generic.Author{
		author("anchor", 1, generic.RoleFirstAndCorrespondingAuthor, generic.CategoryFaculty),
		author("ext", 2, generic.RoleCoAuthor, generic.CategoryIndustry),
	}

	result, err := incentive.Split(article(), authors, journalPolicy())
	require.NoError(t, err)

	assertShare(t, result.Authors[0], 160000, "80")
	assertShare(t, result.Authors[1], 0, "0")
	assert.True(t, result.ForfeitedAmount.Equal(baht(40000)))
	assert.True(t, result.ForfeitedPoints.Equal(points(20)))
}

func TestSplit_ExternalAuthorsAlwaysZero(t *testing.T) {
	categories := []generic.Category{
		generic.CategoryAcademic,
		generic.CategoryIndustry,
		generic.CategoryExternalAcademic,
		generic.CategoryExternalIndustry,
		"External Consultant",
	}

	for _, cat := range categories {
		t.Run(string(cat), func(t *testing.T) {
			authors := []generic.Author{
				author("first", 1, generic.RoleFirstAuthor, cat),
				author("corr", 2, generic.RoleCorrespondingAuthor, cat),
				author("co", 3, generic.RoleCoAuthor, cat),
				author("faculty", 4, generic.RoleCoAuthor, generic.CategoryFaculty),
			}

			result, err := incentive.Split(article(), authors, journalPolicy())
			require.NoError(t, err)

			for _, a := range result.Authors[:3] {
				assert.True(t, a.IncentiveShare.IsZero(), "%s should get no amount", a.Name)
				assert.True(t, a.PointsShare.IsZero(), "%s should get no points", a.Name)
			}
			assertShare(t, result.Authors[3], 40000, "20")
		})
	}
}

func TestSplit_StudentAnchor_AmountButNoPoints(t *testing.T) {
	authors := []generic.Author{
		author("student", 1, generic.RoleFirstAuthor, generic.CategoryStudent),
		author("advisor", 2, generic.RoleCorrespondingAuthor, generic.CategoryFaculty),
	}

	result, err := incentive.Split(article(), authors, journalPolicy())
	require.NoError(t, err)

	assertShare(t, result.Authors[0], 80000, "0")
	assertShare(t, result.Authors[1], 80000, "40")
}

func TestSplit_RoundingPerAuthor_NotReconciled(t *testing.T) {
	// GIVEN: 20% of 100000 split across three co-authors (6666.67 each)
	// THEN: each is rounded to 6667 and the shares exceed the pool by 1

	policy := journalPolicy()
	policy.BaseAmount = baht(100000)

	authors := []generic.Author{
		author("anchor", 1, generic.RoleFirstAndCorrespondingAuthor, generic.CategoryFaculty),
		author("co-a", 2, generic.RoleCoAuthor, generic.CategoryFaculty),
		author("co-b", 3, generic.RoleCoAuthor, generic.CategoryStaff),
		author("co-c", 4, generic.RoleCoAuthor, generic.CategoryFaculty),
	}

	result, err := incentive.Split(article(), authors, policy)
	require.NoError(t, err)

	assertShare(t, result.Authors[1], 6667, "6.67")
	assertShare(t, result.Authors[2], 6667, "6.67")
	assertShare(t, result.Authors[3], 6667, "6.67")
	assert.True(t, result.DistributedAmount().Equal(baht(100001)))
}

func TestSplit_ConservationWithinRounding(t *testing.T) {
	// Distributed + forfeited equals the pool to within half a unit per author.
	policy := journalPolicy()
	policy.BaseAmount = baht(123457)
	policy.BasePoints = points(77)

	authorSets := [][]generic.Author{
		{
			author("a", 1, generic.RoleFirstAuthor, generic.CategoryFaculty),
			author("b", 2, generic.RoleCorrespondingAuthor, generic.CategoryStudent),
			author("c", 3, generic.RoleCoAuthor, generic.CategoryStaff),
			author("d", 4, generic.RoleCoAuthor, generic.CategoryStudent),
			author("e", 5, generic.RoleSeniorAuthor, generic.CategoryFaculty),
		},
		{
			author("a", 1, generic.RoleFirstAndCorrespondingAuthor, generic.CategoryExternalIndustry),
			author("b", 2, generic.RoleCoAuthor, generic.CategoryFaculty),
			author("c", 3, generic.RoleCoAuthor, generic.CategoryFaculty),
			author("d", 4, generic.RoleCoAuthor, generic.CategoryFaculty),
		},
	}

	for i, authors := range authorSets {
		result, err := incentive.Split(article(), authors, policy)
		require.NoError(t, err, "set %d", i)

		tolerance := decimal.NewFromFloat(0.5).Mul(decimal.NewFromInt(int64(len(authors))))
		drift := result.DistributedAmount().Value.Add(result.ForfeitedAmount.Value).Sub(result.PoolAmount.Value).Abs()
		assert.True(t, drift.LessThanOrEqual(tolerance), "set %d amount drift %s", i, drift)

		pointsTolerance := decimal.NewFromFloat(0.005).Mul(decimal.NewFromInt(int64(len(authors))))
		pointsDrift := result.DistributedPoints().Value.Add(result.ForfeitedPoints.Value).Sub(result.PoolPoints.Value).Abs()
		assert.True(t, pointsDrift.LessThanOrEqual(pointsTolerance), "set %d points drift %s", i, pointsDrift)
	}
}

func TestSplit_OverwritesPreviousShares(t *testing.T) {
	stale := author("anchor", 1, generic.RoleFirstAndCorrespondingAuthor, generic.CategoryExternalAcademic)
	stale.IncentiveShare = baht(999)
	stale.PointsShare = points(9)

	input := []generic.Author{stale}
	result, err := incentive.Split(article(), input, journalPolicy())
	require.NoError(t, err)

	assertShare(t, result.Authors[0], 0, "0")
	// input untouched
	assert.True(t, input[0].IncentiveShare.Equal(baht(999)))
}

func TestSplit_TierMultiplierScalesPool(t *testing.T) {
	policy := journalPolicy()
	policy.TierMultipliers = map[string]decimal.Decimal{
		"Q1":    decimal.NewFromFloat(1.5),
		"Q2":    decimal.NewFromInt(1),
		"top_1": decimal.NewFromInt(3),
	}

	c := article()
	q1 := generic.Q1
	c.Quartile = &q1

	authors := []generic.Author{author("anchor", 1, generic.RoleFirstAndCorrespondingAuthor, generic.CategoryFaculty)}

	result, err := incentive.Split(c, authors, policy)
	require.NoError(t, err)
	assert.True(t, result.PoolAmount.Equal(baht(300000)))
	assert.True(t, result.PoolPoints.Equal(points(150)))

	// impact tier supersedes quartile
	top := generic.TierTop1
	c.ImpactTier = &top
	result, err = incentive.Split(c, authors, policy)
	require.NoError(t, err)
	assert.True(t, result.PoolAmount.Equal(baht(600000)))
	assert.True(t, result.Multiplier.Equal(decimal.NewFromInt(3)))
}

func TestSplit_TierNotCovered_Fails(t *testing.T) {
	policy := journalPolicy()
	policy.TierMultipliers = map[string]decimal.Decimal{"Q1": decimal.NewFromInt(2)}

	c := article()
	q3 := generic.Q3
	c.Quartile = &q3

	authors := []generic.Author{author("anchor", 1, generic.RoleFirstAndCorrespondingAuthor, generic.CategoryFaculty)}

	_, err := incentive.Split(c, authors, policy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrPolicyNotFound))

	var tnc *generic.TierNotCoveredError
	require.ErrorAs(t, err, &tnc)
	assert.Equal(t, "Q3", tnc.Tier)
}

func TestSplit_MalformedAuthors_Fails(t *testing.T) {
	_, err := incentive.Split(article(), nil, journalPolicy())
	assert.ErrorIs(t, err, generic.ErrMalformedAuthorSet)
}

func TestSplitResult_Apply(t *testing.T) {
	authors := []generic.Author{author("anchor", 1, generic.RoleFirstAndCorrespondingAuthor, generic.CategoryFaculty)}
	result, err := incentive.Split(article(), authors, journalPolicy())
	require.NoError(t, err)

	c := result.Apply(article())
	assert.Equal(t, generic.PolicyID("ja-2025"), c.PolicyID)
	assert.Equal(t, 1, c.PolicyVersion)
	assert.True(t, c.PoolAmount.Equal(baht(200000)))
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreview_ResolvesBySubmissionDate(t *testing.T) {
	old := journalPolicy()
	old.ID = "ja-2024"
	old.EffectiveFrom = generic.NewTimePoint(2024, time.January, 1)
	end := generic.NewTimePoint(2024, time.December, 31)
	old.EffectiveTo = &end
	old.BaseAmount = baht(100000)

	c := article()
	c.CreatedAt = time.Date(2024, time.November, 20, 0, 0, 0, 0, time.UTC)
	authors := []generic.Author{author("anchor", 1, generic.RoleFirstAndCorrespondingAuthor, generic.CategoryFaculty)}

	result, err := incentive.Preview([]incentive.Policy{journalPolicy(), old}, c, authors)
	require.NoError(t, err)
	assert.Equal(t, generic.PolicyID("ja-2024"), result.PolicyID)

	submitted := time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC)
	c.SubmittedAt = &submitted
	result, err = incentive.Preview([]incentive.Policy{journalPolicy(), old}, c, authors)
	require.NoError(t, err)
	assert.Equal(t, generic.PolicyID("ja-2025"), result.PolicyID)
}

// =============================================================================
// CREDITS
// =============================================================================

func TestCreditTransactions_SkipsZeroShares(t *testing.T) {
	authors := []generic.Author{
		author("anchor", 1, generic.RoleFirstAndCorrespondingAuthor, generic.CategoryFaculty),
		author("ext", 2, generic.RoleCoAuthor, generic.CategoryIndustry),
		author("student", 3, generic.RoleCoAuthor, generic.CategoryStudent),
	}
	result, err := incentive.Split(article(), authors, journalPolicy())
	require.NoError(t, err)

	c := result.Apply(article())
	at := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	txs := incentive.CreditTransactions(c, result.Authors, "finance-1", at)

	require.Len(t, txs, 2)
	assert.Equal(t, generic.AuthorID("anchor"), txs[0].AuthorID)
	assert.Equal(t, "c-1-anchor-credit", txs[0].IdempotencyKey)
	assert.Equal(t, generic.TxCredit, txs[0].Type)
	assert.Equal(t, generic.PolicyID("ja-2025"), txs[0].PolicyID)
	assert.Equal(t, generic.AuthorID("student"), txs[1].AuthorID)
	assert.True(t, txs[1].Points.IsZero())
	assert.True(t, txs[1].Amount.Equal(baht(40000)))
}

func TestReversal_NegatesCredit(t *testing.T) {
	tx := generic.Transaction{
		ID:     "tx-1",
		Amount: baht(1000),
		Points: points(5),
		Type:   generic.TxCredit,
	}
	rev := incentive.Reversal(tx, "finance-1", "wrong policy", time.Now())

	assert.Equal(t, generic.TxReversal, rev.Type)
	assert.True(t, rev.Amount.Equal(baht(-1000)))
	assert.True(t, rev.Points.Equal(points(-5)))
	assert.Equal(t, "tx-1-reversal", rev.IdempotencyKey)
}
