/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state:
	- Policies are created
	- Contributions sit in the expected statuses
	- Splits and ledger credits match expected values

These tests ensure scenarios work correctly and can be used as integration tests.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contribution-engine/contribution"
	"github.com/warp/contribution-engine/generic"
)

func TestScenario_WorkedExamples(t *testing.T) {
	// GIVEN: Worked examples scenario
	// WHEN: Loading the scenario
	// THEN: Both textbook splits are stored

	h := setupTestHandler(t)
	ctx := context.Background()
	require.NoError(t, loadWorkedExamplesScenario(ctx, h))

	policies, err := h.Service.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Len(t, policies, 4)

	list, err := h.Service.List(ctx, contribution.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	shares := map[string][]string{}
	for _, c := range list {
		d, err := h.Service.Get(ctx, c.ID)
		require.NoError(t, err)
		for _, a := range d.Authors {
			shares[c.Title] = append(shares[c.Title], a.IncentiveShare.Value.String()+"/"+a.PointsShare.Value.String())
		}
	}

	assert.Equal(t, []string{"160000/80", "20000/20", "20000/0"},
		shares["Adaptive irrigation scheduling with soil moisture networks"])
	assert.Equal(t, []string{"0/0", "20000/20", "20000/0"},
		shares["Flood forecasting in the Chao Phraya basin"])
}

func TestScenario_ReviewPipeline(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()
	require.NoError(t, loadReviewPipelineScenario(ctx, h))

	byStatus := map[generic.Status][]generic.Contribution{}
	list, err := h.Service.List(ctx, contribution.Filter{})
	require.NoError(t, err)
	for _, c := range list {
		byStatus[c.Status] = append(byStatus[c.Status], c)
	}

	assert.Len(t, byStatus[generic.StatusDraft], 1)
	assert.Len(t, byStatus[generic.StatusPendingMentorApproval], 1)
	require.Len(t, byStatus[generic.StatusChangesRequired], 1)
	require.Len(t, byStatus[generic.StatusCompleted], 1)

	// The returned paper waits on one suggestion
	returned := byStatus[generic.StatusChangesRequired][0]
	resolved, err := h.Service.AllSuggestionsResolved(ctx, returned.ID)
	require.NoError(t, err)
	assert.False(t, resolved)

	// The completed paper (top 5%, x1.5) is credited; the external co-author is not
	completed := byStatus[generic.StatusCompleted][0]
	assert.Equal(t, "300000", completed.PoolAmount.Value.String())
	credits, err := h.Service.Credits(ctx, completed.ID)
	require.NoError(t, err)
	assert.Len(t, credits.Transactions, 3)
	assert.Equal(t, "300000", credits.Amount.Value.String())
	assert.Equal(t, "150", credits.Points.Value.String())
}

func TestScenario_PolicyChange(t *testing.T) {
	h := setupTestHandler(t)
	ctx := context.Background()
	require.NoError(t, loadPolicyChangeScenario(ctx, h))

	mid, err := h.Service.ResolvePolicy(ctx, generic.TypeJournalArticle, generic.NewTimePoint(2025, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, mid.Version)

	late, err := h.Service.ResolvePolicy(ctx, generic.TypeJournalArticle, generic.NewTimePoint(2025, 8, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, late.Version)

	list, err := h.Service.List(ctx, contribution.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, generic.PolicyID("ja-2025-07-01"), list[0].PolicyID)
	assert.Equal(t, "250000", list[0].PoolAmount.Value.String())
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	s := newTestServer(t)

	for _, sc := range scenarios {
		rec := s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: sc.ID}, Actor{})
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", sc.ID, rec.Body.String())

		rec = s.do(http.MethodGet, "/api/scenarios/current", nil, Actor{})
		assert.Equal(t, sc.ID, decode[ScenarioDTO](t, rec).ID)
	}

	rec := s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"}, Actor{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/scenarios", nil, Actor{})
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))
}
