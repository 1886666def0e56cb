package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contribution-engine/contribution"
	"github.com/warp/contribution-engine/factory"
	"github.com/warp/contribution-engine/generic"
)

func fileDraft(t *testing.T, h *Handler) generic.ContributionID {
	t.Helper()
	q1 := generic.Q1
	d, err := h.Service.Create(context.Background(), contribution.CreateInput{
		Type:     generic.TypeJournalArticle,
		Title:    "Drought indices from satellite imagery",
		OwnerID:  "somchai",
		Quartile: &q1,
		Authors: []generic.Author{
			{Name: "Somchai Wongsa", Order: 1, Role: generic.RoleFirstAuthor, Category: generic.CategoryFaculty},
			{Name: "Anong Srisuk", Order: 2, Role: generic.RoleCorrespondingAuthor, Category: generic.CategoryFaculty},
		},
	})
	require.NoError(t, err)
	return d.Contribution.ID
}

func TestScheduler_RunNowPicksUpNewPolicy(t *testing.T) {
	// GIVEN: A draft priced under the 2025 preset
	h := setupTestHandler(t)
	ctx := context.Background()
	require.NoError(t, createPresetPolicies(ctx, h, "2025-01-01"))
	id := fileDraft(t, h)

	// AND: A newer policy in force
	v2, err := h.PolicyFactory.ParsePolicy(factory.JournalArticleJSON("ja-v2", "2025-06-01", 400000, 200))
	require.NoError(t, err)
	v2.Version = 2
	_, err = h.Service.CreatePolicy(ctx, "admin", *v2)
	require.NoError(t, err)

	// WHEN: The scheduler runs
	rs := NewRecalculationScheduler(h.Service, discardLogger())
	report := rs.RunNow()

	// THEN: The draft is re-split under the new policy
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Updated)

	d, err := h.Service.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, generic.PolicyID("ja-v2"), d.Contribution.PolicyID)
	assert.Equal(t, "400000", d.Contribution.PoolAmount.Value.String())
	assert.Equal(t, "160000", d.Authors[0].IncentiveShare.Value.String())

	last, at := rs.LastReport()
	assert.Same(t, report, last)
	assert.False(t, at.IsZero())
	assert.Equal(t, at.Add(time.Hour), rs.GetNextRunTime())
}

func TestScheduler_ReportsFailuresWithoutStopping(t *testing.T) {
	// GIVEN: Two drafts, one of a type whose policy is then deactivated
	h := setupTestHandler(t)
	ctx := context.Background()
	require.NoError(t, createPresetPolicies(ctx, h, "2025-01-01"))
	journal := fileDraft(t, h)

	_, err := h.Service.Create(ctx, contribution.CreateInput{
		Type:    generic.TypePatent,
		Title:   "Solar dryer for cassava chips",
		OwnerID: "somchai",
		Authors: []generic.Author{
			{Name: "Somchai Wongsa", Order: 1, Role: generic.RoleFirstAuthor, Category: generic.CategoryFaculty},
		},
	})
	require.NoError(t, err)
	_, err = h.Service.DeactivatePolicy(ctx, "admin", "pt-2025-01-01")
	require.NoError(t, err)

	// WHEN: The scheduler runs
	report := NewRecalculationScheduler(h.Service, discardLogger()).RunNow()

	// THEN: The patent fails, the journal article is still updated
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Updated)
	require.Len(t, report.Failed, 1)
	_, failedJournal := report.Failed[journal]
	assert.False(t, failedJournal)
}

func TestScheduler_StartStop(t *testing.T) {
	h := setupTestHandler(t)
	require.NoError(t, createPresetPolicies(context.Background(), h, "2025-01-01"))
	fileDraft(t, h)

	rs := NewRecalculationScheduler(h.Service, discardLogger())
	rs.CheckInterval = time.Hour
	rs.Start()

	// The first run happens immediately on start.
	require.Eventually(t, func() bool {
		last, _ := rs.LastReport()
		return last != nil
	}, 5*time.Second, 10*time.Millisecond)

	rs.Stop()
	rs.Stop() // second stop is a no-op

	last, _ := rs.LastReport()
	assert.Equal(t, 1, last.Checked)
}

func TestScheduler_Restart(t *testing.T) {
	// GIVEN: A scheduler that was started and stopped
	h := setupTestHandler(t)
	require.NoError(t, createPresetPolicies(context.Background(), h, "2025-01-01"))
	fileDraft(t, h)

	rs := NewRecalculationScheduler(h.Service, discardLogger())
	rs.CheckInterval = time.Hour
	rs.Start()
	require.Eventually(t, func() bool {
		last, _ := rs.LastReport()
		return last != nil
	}, 5*time.Second, 10*time.Millisecond)
	rs.Stop()
	_, firstRun := rs.LastReport()

	// WHEN: It is started again
	rs.Start()

	// THEN: The restarted loop runs instead of exiting at once
	require.Eventually(t, func() bool {
		_, at := rs.LastReport()
		return at.After(firstRun)
	}, 5*time.Second, 10*time.Millisecond)

	// AND: A manual run is not cancelled
	report := rs.RunNow()
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Failed)

	// AND: Stopping twice is safe, and RunNow works while stopped
	rs.Stop()
	assert.NotPanics(t, rs.Stop)
	report = rs.RunNow()
	require.NotNil(t, report)
	assert.Empty(t, report.Failed)
}

func TestScheduler_Disabled(t *testing.T) {
	h := setupTestHandler(t)
	rs := NewRecalculationScheduler(h.Service, discardLogger())
	rs.Enabled = false

	rs.Start()
	rs.Stop()

	last, _ := rs.LastReport()
	assert.Nil(t, last)
}
