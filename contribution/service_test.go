package contribution_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contribution-engine/contribution"
	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/generic/store"
	"github.com/warp/contribution-engine/incentive"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type recordingSink struct {
	mu      sync.Mutex
	entries []generic.AuditEntry
}

func (r *recordingSink) Notify(_ context.Context, e generic.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingSink) actions() []generic.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []generic.AuditAction
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	svc   *contribution.Service
	mem   *store.Memory
	audit *recordingSink
}

var clock = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	audit := &recordingSink{}
	svc := contribution.NewService(mem, mem, generic.NewLedger(mem), audit, nil)

	var mu sync.Mutex
	n := 0
	svc.NewID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	svc.Now = func() time.Time { return clock }

	_, err := svc.CreatePolicy(context.Background(), "admin", journalPolicy())
	require.NoError(t, err)
	return &fixture{svc: svc, mem: mem, audit: audit}
}

func journalPolicy() incentive.Policy {
	return incentive.Policy{
		ID:                     "ja-2025",
		Name:                   "Journal article 2025",
		ContributionType:       generic.TypeJournalArticle,
		Version:                1,
		EffectiveFrom:          generic.NewTimePoint(2025, time.January, 1),
		FirstAuthorPct:         decimal.NewFromInt(40),
		CorrespondingAuthorPct: decimal.NewFromInt(40),
		BaseAmount:             generic.NewAmountFromInt(200000, generic.UnitCurrency),
		BasePoints:             generic.NewAmountFromInt(100, generic.UnitPoints),
		IsActive:               true,
	}
}

func scenarioAuthors() []generic.Author {
	return []generic.Author{
		{Name: "Anchor", Order: 1, Role: generic.RoleFirstAndCorrespondingAuthor, Category: generic.CategoryFaculty},
		{Name: "Faculty Co", Order: 2, Role: generic.RoleCoAuthor, Category: generic.CategoryFaculty},
		{Name: "Student Co", Order: 3, Role: generic.RoleCoAuthor, Category: generic.CategoryStudent},
	}
}

func createArticle(t *testing.T, f *fixture, requiresMentor bool) *contribution.Detail {
	t.Helper()
	d, err := f.svc.Create(context.Background(), contribution.CreateInput{
		Type:           generic.TypeJournalArticle,
		Title:          "Deterministic incentives",
		OwnerID:        "owner",
		RequiresMentor: requiresMentor,
		Authors:        scenarioAuthors(),
	})
	require.NoError(t, err)
	return d
}

func step(t *testing.T, f *fixture, id generic.ContributionID, role generic.ActorRole, action generic.Action) *contribution.TransitionOutcome {
	t.Helper()
	current, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)

	in := contribution.TransitionInput{
		ExpectedStatus: current.Contribution.Status,
		ActorID:        generic.ActorID(string(role) + "-1"),
		Role:           role,
		Action:         action,
	}
	if action == generic.ActionRequestChanges {
		in.Suggestions = []generic.SuggestionDraft{{Field: "title", OriginalValue: "Deterministic incentives", SuggestedValue: "Deterministic Incentives"}}
	}
	out, err := f.svc.Transition(context.Background(), id, in)
	require.NoError(t, err)
	return out
}

func amountOf(a generic.Author) int64 { return a.IncentiveShare.Value.IntPart() }

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_ComputesInitialSplit(t *testing.T) {
	f := newFixture(t)

	d := createArticle(t, f, false)

	assert.Equal(t, generic.StatusDraft, d.Contribution.Status)
	assert.Equal(t, generic.PolicyID("ja-2025"), d.Contribution.PolicyID)
	assert.True(t, d.Contribution.PoolAmount.Value.Equal(decimal.NewFromInt(200000)))
	require.Len(t, d.Authors, 3)
	assert.Equal(t, int64(160000), amountOf(d.Authors[0]))
	assert.Equal(t, int64(20000), amountOf(d.Authors[1]))
	assert.Equal(t, int64(20000), amountOf(d.Authors[2]))
	assert.True(t, d.Authors[2].PointsShare.IsZero())
	for _, a := range d.Authors {
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, d.Contribution.ID, a.ContributionID)
	}

	stored, err := f.svc.Get(context.Background(), d.Contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Authors, stored.Authors)
	assert.Contains(t, f.audit.actions(), generic.AuditSplit)
}

func TestCreate_NoPolicy_NothingStored(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), contribution.CreateInput{
		Type:    generic.TypePatent,
		Title:   "Widget",
		OwnerID: "owner",
		Authors: scenarioAuthors(),
	})
	assert.ErrorIs(t, err, generic.ErrPolicyNotFound)

	all, err := f.svc.List(context.Background(), contribution.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_InvalidInput(t *testing.T) {
	f := newFixture(t)
	bad := generic.Quartile("Q9")

	_, err := f.svc.Create(context.Background(), contribution.CreateInput{
		Type:     "poem",
		Quartile: &bad,
	})
	require.ErrorIs(t, err, generic.ErrInvalidContribution)
	assert.Contains(t, err.Error(), "title is required")
	assert.Contains(t, err.Error(), "Q9")
	assert.True(t, generic.IsClientError(err))
}

// =============================================================================
// PIPELINE
// =============================================================================

func TestPipeline_CompletionCreditsAuthorsOnce(t *testing.T) {
	// GIVEN: a contribution without mentor
	// WHEN: it goes through review, head approval and finance
	// THEN: completion writes one credit per author with a share, and a
	//       retried credit does not duplicate anything

	f := newFixture(t)
	ctx := context.Background()
	id := createArticle(t, f, false).Contribution.ID

	step(t, f, id, generic.RoleContributor, generic.ActionSubmit)
	step(t, f, id, generic.RoleReviewer, generic.ActionClaim)
	step(t, f, id, generic.RoleReviewer, generic.ActionRecommend)
	step(t, f, id, generic.RoleHead, generic.ActionApprove)
	step(t, f, id, generic.RoleFinance, generic.ActionClaim)
	out := step(t, f, id, generic.RoleFinance, generic.ActionApprove)

	assert.Equal(t, generic.StatusCompleted, out.Contribution.Status)
	require.Len(t, out.Credited, 3)

	summary, err := f.svc.Credits(ctx, id)
	require.NoError(t, err)
	assert.True(t, summary.Amount.Value.Equal(decimal.NewFromInt(200000)))
	assert.True(t, summary.Points.Value.Equal(decimal.NewFromInt(100)))

	again, err := f.svc.Credit(ctx, id, "finance-1")
	require.NoError(t, err)
	assert.Len(t, again, 3)
	summary, err = f.svc.Credits(ctx, id)
	require.NoError(t, err)
	assert.Len(t, summary.Transactions, 3)

	history, err := f.svc.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 6)
	assert.Equal(t, generic.StatusDraft, history[0].FromStatus)
	assert.Equal(t, generic.StatusCompleted, history[5].ToStatus)

	assert.Contains(t, f.audit.actions(), generic.AuditCredit)
}

func completedArticle(t *testing.T, f *fixture) (generic.ContributionID, []generic.Transaction) {
	t.Helper()
	id := createArticle(t, f, false).Contribution.ID
	step(t, f, id, generic.RoleContributor, generic.ActionSubmit)
	step(t, f, id, generic.RoleReviewer, generic.ActionClaim)
	step(t, f, id, generic.RoleReviewer, generic.ActionRecommend)
	step(t, f, id, generic.RoleHead, generic.ActionApprove)
	step(t, f, id, generic.RoleFinance, generic.ActionClaim)
	out := step(t, f, id, generic.RoleFinance, generic.ActionApprove)
	require.Len(t, out.Credited, 3)
	return id, out.Credited
}

func TestReverse_CancelsOneCredit(t *testing.T) {
	// GIVEN: a completed contribution with three credits
	// WHEN: finance reverses the anchor author's credit
	// THEN: both entries stay in the ledger, totals drop by the anchor's
	//       share and the contribution stays completed

	f := newFixture(t)
	ctx := context.Background()
	id, credited := completedArticle(t, f)

	var anchor generic.Transaction
	for _, tx := range credited {
		if tx.AuthorName == "Anchor" {
			anchor = tx
		}
	}
	require.NotEmpty(t, anchor.ID)

	rev, err := f.svc.Reverse(ctx, id, contribution.ReverseInput{
		TransactionID: anchor.ID,
		ActorID:       "finance-1",
		Role:          generic.RoleFinance,
		Reason:        "  wrong first author  ",
	})
	require.NoError(t, err)
	assert.Equal(t, generic.TxReversal, rev.Type)
	assert.Equal(t, "wrong first author", rev.Reason)
	assert.True(t, rev.Amount.Value.Equal(decimal.NewFromInt(-160000)))
	assert.True(t, rev.Points.Value.Equal(decimal.NewFromInt(-80)))

	summary, err := f.svc.Credits(ctx, id)
	require.NoError(t, err)
	assert.Len(t, summary.Transactions, 4)
	assert.True(t, summary.Amount.Value.Equal(decimal.NewFromInt(40000)))
	assert.True(t, summary.Points.Value.Equal(decimal.NewFromInt(20)))

	stored, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusCompleted, stored.Contribution.Status)
	assert.Contains(t, f.audit.actions(), generic.AuditReversal)

	// a credit is reversed once, and a reversal is never reversed
	_, err = f.svc.Reverse(ctx, id, contribution.ReverseInput{
		TransactionID: anchor.ID, ActorID: "finance-1", Role: generic.RoleFinance, Reason: "again",
	})
	assert.ErrorIs(t, err, generic.ErrInvalidReversal)

	_, err = f.svc.Reverse(ctx, id, contribution.ReverseInput{
		TransactionID: rev.ID, ActorID: "finance-1", Role: generic.RoleFinance, Reason: "undo",
	})
	assert.ErrorIs(t, err, generic.ErrInvalidReversal)

	summary, err = f.svc.Credits(ctx, id)
	require.NoError(t, err)
	assert.Len(t, summary.Transactions, 4)
}

func TestReverse_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, credited := completedArticle(t, f)

	tests := []struct {
		name string
		id   generic.ContributionID
		in   contribution.ReverseInput
		want error
	}{
		{"not finance", id, contribution.ReverseInput{TransactionID: credited[0].ID, ActorID: "head-1", Role: generic.RoleHead, Reason: "x"}, generic.ErrForbidden},
		{"blank reason", id, contribution.ReverseInput{TransactionID: credited[0].ID, ActorID: "finance-1", Role: generic.RoleFinance, Reason: "  "}, generic.ErrInvalidReversal},
		{"unknown transaction", id, contribution.ReverseInput{TransactionID: "nope", ActorID: "finance-1", Role: generic.RoleFinance, Reason: "x"}, generic.ErrTransactionNotFound},
		{"unknown contribution", "missing", contribution.ReverseInput{TransactionID: credited[0].ID, ActorID: "finance-1", Role: generic.RoleFinance, Reason: "x"}, generic.ErrContributionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Reverse(ctx, tt.id, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	summary, err := f.svc.Credits(ctx, id)
	require.NoError(t, err)
	assert.Len(t, summary.Transactions, 3)
}

func TestCredit_RequiresCompletion(t *testing.T) {
	f := newFixture(t)
	id := createArticle(t, f, false).Contribution.ID

	_, err := f.svc.Credit(context.Background(), id, "finance-1")
	assert.ErrorIs(t, err, generic.ErrNotCompleted)
}

func TestPipeline_ChangesLoopWithAuthorEdit(t *testing.T) {
	// GIVEN: a contribution under review
	// WHEN: the reviewer requests changes, the owner fixes authors, answers
	//       the suggestion and resubmits
	// THEN: resubmission re-splits and the reviewer picks it up again

	f := newFixture(t)
	ctx := context.Background()
	id := createArticle(t, f, false).Contribution.ID

	step(t, f, id, generic.RoleContributor, generic.ActionSubmit)
	step(t, f, id, generic.RoleReviewer, generic.ActionClaim)
	out := step(t, f, id, generic.RoleReviewer, generic.ActionRequestChanges)
	require.Len(t, out.NewSuggestions, 1)
	suggestionID := out.NewSuggestions[0].ID

	// blocked while pending
	_, err := f.svc.Transition(ctx, id, contribution.TransitionInput{
		ExpectedStatus: generic.StatusChangesRequired,
		ActorID:        "owner",
		Role:           generic.RoleContributor,
		Action:         generic.ActionResubmit,
	})
	assert.ErrorIs(t, err, generic.ErrUnresolvedSuggestions)

	resolved, err := f.svc.AllSuggestionsResolved(ctx, id)
	require.NoError(t, err)
	assert.False(t, resolved)

	// owner drops the student co-author
	edited, err := f.svc.UpdateAuthors(ctx, id, "owner", scenarioAuthors()[:2])
	require.NoError(t, err)
	assert.Equal(t, int64(40000), amountOf(edited.Authors[1]))

	answered, err := f.svc.RespondToSuggestion(ctx, suggestionID, generic.ResponseAccept, "owner", "fixed")
	require.NoError(t, err)
	assert.Equal(t, generic.SuggestionAccepted, answered.Status)

	_, err = f.svc.RespondToSuggestion(ctx, suggestionID, generic.ResponseReject, "owner", "")
	assert.ErrorIs(t, err, generic.ErrSuggestionResolved)

	out = step(t, f, id, generic.RoleContributor, generic.ActionResubmit)
	assert.Equal(t, generic.StatusResubmitted, out.Contribution.Status)
	require.Len(t, out.Authors, 2)

	out = step(t, f, id, generic.RoleReviewer, generic.ActionClaim)
	assert.Equal(t, generic.StatusUnderReview, out.Contribution.Status)

	suggestions, err := f.svc.Suggestions(ctx, id)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "fixed", suggestions[0].ResponderNote)
}

func TestRespondToSuggestion_OnlyInChangesRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := createArticle(t, f, false).Contribution.ID

	step(t, f, id, generic.RoleContributor, generic.ActionSubmit)
	step(t, f, id, generic.RoleReviewer, generic.ActionClaim)
	out := step(t, f, id, generic.RoleReviewer, generic.ActionRequestChanges)
	_, err := f.svc.RespondToSuggestion(ctx, out.NewSuggestions[0].ID, generic.ResponseAccept, "owner", "")
	require.NoError(t, err)
	step(t, f, id, generic.RoleContributor, generic.ActionResubmit)

	_, err = f.svc.RespondToSuggestion(ctx, out.NewSuggestions[0].ID, generic.ResponseReject, "owner", "")
	assert.ErrorIs(t, err, generic.ErrContributionLocked)

	_, err = f.svc.RespondToSuggestion(ctx, "unknown", generic.ResponseAccept, "owner", "")
	assert.ErrorIs(t, err, generic.ErrSuggestionNotFound)
}

// =============================================================================
// EDIT GUARDS
// =============================================================================

func TestUpdateAuthors_LockedAfterSubmission(t *testing.T) {
	f := newFixture(t)
	id := createArticle(t, f, true).Contribution.ID
	step(t, f, id, generic.RoleContributor, generic.ActionSubmit)

	_, err := f.svc.UpdateAuthors(context.Background(), id, "owner", scenarioAuthors()[:1])
	assert.ErrorIs(t, err, generic.ErrContributionLocked)
}

func TestUpdateAuthors_MalformedSet_NothingPersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := createArticle(t, f, false)

	broken := scenarioAuthors()
	broken[1].Order = 1

	_, err := f.svc.UpdateAuthors(ctx, d.Contribution.ID, "owner", broken)
	require.ErrorIs(t, err, generic.ErrMalformedAuthorSet)

	stored, err := f.svc.Get(ctx, d.Contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Authors, stored.Authors)
}

func TestUpdate_TierChangeRecomputesPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := journalPolicy()
	p.ID = "ja-2025-tiers"
	p.Version = 2
	p.TierMultipliers = map[string]decimal.Decimal{
		"Q1": decimal.NewFromInt(2),
		"Q2": decimal.NewFromInt(1),
	}
	_, err := f.svc.CreatePolicy(ctx, "admin", p)
	require.NoError(t, err)

	d := createArticle(t, f, false)
	assert.Equal(t, generic.PolicyID("ja-2025-tiers"), d.Contribution.PolicyID)

	q1 := generic.Q1
	updated, err := f.svc.Update(ctx, d.Contribution.ID, "owner", contribution.UpdateInput{Quartile: &q1})
	require.NoError(t, err)
	assert.True(t, updated.Contribution.PoolAmount.Value.Equal(decimal.NewFromInt(400000)))
	assert.Equal(t, "Deterministic incentives", updated.Contribution.Title)

	q3 := generic.Q3
	_, err = f.svc.Update(ctx, d.Contribution.ID, "owner", contribution.UpdateInput{Quartile: &q3})
	assert.ErrorIs(t, err, generic.ErrPolicyNotFound)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

// racingStore loses every compare-and-swap, as if another actor won.
type racingStore struct {
	*store.Memory
}

func (racingStore) ApplyTransition(context.Context, contribution.Change) error {
	return generic.ErrConcurrentModification
}

func TestTransition_LostCompareAndSwap(t *testing.T) {
	f := newFixture(t)
	id := createArticle(t, f, false).Contribution.ID
	f.svc.Store = racingStore{Memory: f.mem}

	_, err := f.svc.Transition(context.Background(), id, contribution.TransitionInput{
		ExpectedStatus: generic.StatusDraft,
		ActorID:        "owner",
		Role:           generic.RoleContributor,
		Action:         generic.ActionSubmit,
	})

	var ite *generic.InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	assert.True(t, generic.IsRetryable(err))

	stored, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusDraft, stored.Contribution.Status)
}

// interleavingStore runs an extra write once, right after the service has
// read the contribution and while it is loading the author list.
type interleavingStore struct {
	*store.Memory
	once  sync.Once
	write func()
}

func (s *interleavingStore) Authors(ctx context.Context, id generic.ContributionID) ([]generic.Author, error) {
	s.once.Do(s.write)
	return s.Memory.Authors(ctx, id)
}

func changesRequired(t *testing.T, f *fixture) generic.ContributionID {
	t.Helper()
	id := createArticle(t, f, false).Contribution.ID
	step(t, f, id, generic.RoleContributor, generic.ActionSubmit)
	step(t, f, id, generic.RoleReviewer, generic.ActionClaim)
	step(t, f, id, generic.RoleReviewer, generic.ActionRequestChanges)
	return id
}

func TestRecalculate_DoesNotOverwriteConcurrentAuthorEdit(t *testing.T) {
	// GIVEN: a contribution in changes_required with three authors
	// WHEN: the owner drops an author after Recalculate read the contribution
	//       but before it saved
	// THEN: the status never changed, yet Recalculate fails with
	//       ErrConcurrentModification and the two-author edit survives

	f := newFixture(t)
	ctx := context.Background()
	id := changesRequired(t, f)

	var editErr error
	f.svc.Store = &interleavingStore{Memory: f.mem, write: func() {
		_, editErr = f.svc.UpdateAuthors(ctx, id, "owner", scenarioAuthors()[:2])
	}}

	_, err := f.svc.Recalculate(ctx, id, "scheduler")
	require.NoError(t, editErr)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	assert.True(t, generic.IsRetryable(err))

	authors, err := f.mem.Authors(ctx, id)
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "Anchor", authors[0].Name)
	assert.Equal(t, "Faculty Co", authors[1].Name)
	assert.Equal(t, int64(40000), amountOf(authors[1]))

	// a retry reads the edit and succeeds
	d, err := f.svc.Recalculate(ctx, id, "scheduler")
	require.NoError(t, err)
	assert.Len(t, d.Authors, 2)
}

func TestTransition_ResubmitRacingAuthorEdit(t *testing.T) {
	// GIVEN: a contribution in changes_required with its suggestion answered
	// WHEN: the owner edits the authors while a resubmit is in flight
	// THEN: the resubmit is rejected as a concurrent modification and the
	//       stored contribution keeps the edited authors in changes_required

	f := newFixture(t)
	ctx := context.Background()
	id := changesRequired(t, f)

	suggestions, err := f.svc.Suggestions(ctx, id)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	_, err = f.svc.RespondToSuggestion(ctx, suggestions[0].ID, generic.ResponseAccept, "owner", "")
	require.NoError(t, err)

	before, err := f.svc.Get(ctx, id)
	require.NoError(t, err)

	var editErr error
	f.svc.Store = &interleavingStore{Memory: f.mem, write: func() {
		_, editErr = f.svc.UpdateAuthors(ctx, id, "owner", scenarioAuthors()[:2])
	}}

	_, err = f.svc.Transition(ctx, id, contribution.TransitionInput{
		ExpectedStatus: generic.StatusChangesRequired,
		ActorID:        "owner",
		Role:           generic.RoleContributor,
		Action:         generic.ActionResubmit,
	})
	require.NoError(t, editErr)
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	stored, err := f.mem.GetContribution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusChangesRequired, stored.Status)
	assert.Equal(t, before.Contribution.Revision+1, stored.Revision)

	authors, err := f.mem.Authors(ctx, id)
	require.NoError(t, err)
	assert.Len(t, authors, 2)

	history, err := f.mem.History(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusChangesRequired, history[len(history)-1].ToStatus)
}

func TestRevision_AdvancesOnEveryWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := createArticle(t, f, false)
	assert.Equal(t, 1, d.Contribution.Revision)

	edited, err := f.svc.UpdateAuthors(ctx, d.Contribution.ID, "owner", scenarioAuthors()[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, edited.Contribution.Revision)

	out := step(t, f, d.Contribution.ID, generic.RoleContributor, generic.ActionSubmit)
	assert.Equal(t, 3, out.Contribution.Revision)

	stored, err := f.mem.GetContribution(ctx, d.Contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Revision)
}

func TestTransition_StaleExpectedStatus(t *testing.T) {
	f := newFixture(t)
	id := createArticle(t, f, false).Contribution.ID
	step(t, f, id, generic.RoleContributor, generic.ActionSubmit)

	_, err := f.svc.Transition(context.Background(), id, contribution.TransitionInput{
		ExpectedStatus: generic.StatusDraft,
		ActorID:        "owner",
		Role:           generic.RoleContributor,
		Action:         generic.ActionSubmit,
	})
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
}

func TestTransition_UnknownContribution(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transition(context.Background(), "missing", contribution.TransitionInput{})
	assert.ErrorIs(t, err, generic.ErrContributionNotFound)
}

// =============================================================================
// RECALCULATION
// =============================================================================

func TestRecalculateAll_PicksUpNewPolicy(t *testing.T) {
	// GIVEN: two open contributions and one completed under policy v1
	// WHEN: a v2 policy with a higher base becomes effective and everything
	//       is recalculated
	// THEN: open contributions move to v2, the completed one keeps v1

	f := newFixture(t)
	ctx := context.Background()

	open1 := createArticle(t, f, false).Contribution.ID
	open2 := createArticle(t, f, true).Contribution.ID
	done := createArticle(t, f, false).Contribution.ID
	for _, s := range []struct {
		role   generic.ActorRole
		action generic.Action
	}{
		{generic.RoleContributor, generic.ActionSubmit},
		{generic.RoleReviewer, generic.ActionClaim},
		{generic.RoleReviewer, generic.ActionRecommend},
		{generic.RoleHead, generic.ActionApprove},
		{generic.RoleFinance, generic.ActionClaim},
		{generic.RoleFinance, generic.ActionApprove},
	} {
		step(t, f, done, s.role, s.action)
	}

	v2 := journalPolicy()
	v2.ID = "ja-2025-v2"
	v2.Version = 2
	v2.BaseAmount = generic.NewAmountFromInt(300000, generic.UnitCurrency)
	_, err := f.svc.CreatePolicy(ctx, "admin", v2)
	require.NoError(t, err)

	f.svc.Workers = 2
	report, err := f.svc.RecalculateAll(ctx, nil, "scheduler")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 2, report.Updated)
	assert.Empty(t, report.Failed)

	for _, id := range []generic.ContributionID{open1, open2} {
		d, err := f.svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, generic.PolicyID("ja-2025-v2"), d.Contribution.PolicyID)
		assert.Equal(t, int64(240000), amountOf(d.Authors[0]))
	}

	d, err := f.svc.Get(ctx, done)
	require.NoError(t, err)
	assert.Equal(t, generic.PolicyID("ja-2025"), d.Contribution.PolicyID)

	_, err = f.svc.Recalculate(ctx, done, "admin")
	assert.ErrorIs(t, err, generic.ErrContributionLocked)
}

func TestRecalculateAll_ReportsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := createArticle(t, f, false).Contribution.ID

	_, err := f.svc.DeactivatePolicy(ctx, "admin", "ja-2025")
	require.NoError(t, err)

	jt := generic.TypeJournalArticle
	report, err := f.svc.RecalculateAll(ctx, &jt, "scheduler")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Updated)
	assert.Contains(t, report.Failed[id], "policy not found")
}

// =============================================================================
// POLICIES
// =============================================================================

func TestCreatePolicy_RejectsInvalidAndDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := journalPolicy()
	bad.ID = "bad"
	bad.FirstAuthorPct = decimal.NewFromInt(90)
	_, err := f.svc.CreatePolicy(ctx, "admin", bad)
	assert.ErrorIs(t, err, generic.ErrInvalidPolicy)

	_, err = f.svc.CreatePolicy(ctx, "admin", journalPolicy())
	assert.ErrorIs(t, err, generic.ErrInvalidPolicy)

	assert.Contains(t, f.audit.actions(), generic.AuditPolicyChanged)
}

func TestResolveAndPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.ResolvePolicy(ctx, generic.TypeJournalArticle, generic.NewTimePoint(2025, time.May, 1))
	require.NoError(t, err)
	assert.Equal(t, generic.PolicyID("ja-2025"), p.ID)

	_, err = f.svc.ResolvePolicy(ctx, generic.TypeJournalArticle, generic.NewTimePoint(2024, time.May, 1))
	assert.ErrorIs(t, err, generic.ErrPolicyNotFound)

	result, err := f.svc.Preview(ctx, generic.Contribution{Type: generic.TypeJournalArticle}, scenarioAuthors())
	require.NoError(t, err)
	assert.True(t, result.PoolPoints.Value.Equal(decimal.NewFromInt(100)))

	all, err := f.svc.List(ctx, contribution.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
