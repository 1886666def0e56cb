/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates policies and
	contributions and drives some of them through the review pipeline.

AVAILABLE SCENARIOS:

	worked-examples: The two textbook splits (combined anchor 80/10/10 with
	                 points 80/20/0, and an external anchor that forfeits)
	review-pipeline: Contributions parked at every interesting stage,
	                 including one completed with ledger credits
	policy-change:   A newer journal policy taking over for later submissions

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create policies via factory presets
 3. File contributions as their owners
 4. Apply review actions with the matching roles

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "review-pipeline"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - factory/presets.go: Policy JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/contribution-engine/contribution"
	"github.com/warp/contribution-engine/factory"
	"github.com/warp/contribution-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "worked-examples",
		Name:        "Worked Examples",
		Description: "Combined first+corresponding anchor with faculty and student co-authors; external anchor forfeiting its share",
		Category:    "incentive",
	},
	{
		ID:          "review-pipeline",
		Name:        "Review Pipeline",
		Description: "Contributions in draft, mentor approval, changes required and completed with credits",
		Category:    "review",
	},
	{
		ID:          "policy-change",
		Name:        "Policy Change",
		Description: "Journal policy v2 effective mid-year; earlier submissions keep v1",
		Category:    "incentive",
	},
}

const scenarioPolicyDate = "2025-01-01"

// Scenario actors.
const (
	scenarioAdmin    generic.ActorID = "admin"
	scenarioOwner    generic.ActorID = "somchai"
	scenarioStudent  generic.ActorID = "nicha"
	scenarioReviewer generic.ActorID = "reviewer-1"
	scenarioHead     generic.ActorID = "head-1"
	scenarioFinance  generic.ActorID = "finance-1"
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "Reset not supported", nil)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "worked-examples":
		err = loadWorkedExamplesScenario(ctx, h)
	case "review-pipeline":
		err = loadReviewPipelineScenario(ctx, h)
	case "policy-change":
		err = loadPolicyChangeScenario(ctx, h)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadWorkedExamplesScenario(ctx context.Context, h *Handler) error {
	if err := createPresetPolicies(ctx, h, scenarioPolicyDate); err != nil {
		return err
	}

	q1 := generic.Q1
	_, err := h.Service.Create(ctx, contribution.CreateInput{
		Type:     generic.TypeJournalArticle,
		Title:    "Adaptive irrigation scheduling with soil moisture networks",
		OwnerID:  scenarioOwner,
		Quartile: &q1,
		Authors:  []generic.Author{
			{Name: "Somchai Wongsa", Order: 1, Role: generic.RoleFirstAndCorrespondingAuthor, Category: generic.CategoryFaculty},
			{Name: "Anong Srisuk", Order: 2, Role: generic.RoleCoAuthor, Category: generic.CategoryFaculty},
			{Name: "Nicha Boonmee", Order: 3, Role: generic.RoleCoAuthor, Category: generic.CategoryStudent},
		},
	})
	if err != nil {
		return fmt.Errorf("combined anchor example: %w", err)
	}

	_, err = h.Service.Create(ctx, contribution.CreateInput{
		Type:     generic.TypeJournalArticle,
		Title:    "Flood forecasting in the Chao Phraya basin",
		OwnerID:  scenarioOwner,
		Quartile: &q1,
		Authors:  []generic.Author{
			{Name: "Hiroshi Tanaka", Order: 1, Role: generic.RoleFirstAndCorrespondingAuthor, Category: generic.CategoryExternalAcademic},
			{Name: "Somchai Wongsa", Order: 2, Role: generic.RoleCoAuthor, Category: generic.CategoryFaculty},
			{Name: "Nicha Boonmee", Order: 3, Role: generic.RoleCoAuthor, Category: generic.CategoryStudent},
		},
	})
	if err != nil {
		return fmt.Errorf("external anchor example: %w", err)
	}
	return nil
}

func loadReviewPipelineScenario(ctx context.Context, h *Handler) error {
	if err := createPresetPolicies(ctx, h, scenarioPolicyDate); err != nil {
		return err
	}

	q2 := generic.Q2
	standardAuthors := func(first string) []generic.Author {
		return []generic.Author{
			{Name: first, Order: 1, Role: generic.RoleFirstAuthor, Category: generic.CategoryFaculty},
			{Name: "Anong Srisuk", Order: 2, Role: generic.RoleCorrespondingAuthor, Category: generic.CategoryFaculty},
			{Name: "Maria Lopez", Order: 3, Role: generic.RoleCoAuthor, Category: generic.CategoryExternalIndustry},
			{Name: "Kittipong Chai", Order: 4, Role: generic.RoleCoAuthor, Category: generic.CategoryStaff},
		}
	}

	// Draft, never submitted.
	if _, err := h.Service.Create(ctx, contribution.CreateInput{
		Type:     generic.TypeConferencePaper,
		Title:    "Low-cost LoRa gateways for rural schools",
		OwnerID:  scenarioOwner,
		Quartile: &q2,
		Authors:  standardAuthors("Somchai Wongsa"),
	}); err != nil {
		return err
	}

	// Student filing waiting for the mentor.
	student, err := h.Service.Create(ctx, contribution.CreateInput{
		Type:           generic.TypeJournalArticle,
		Title:          "Rice leaf disease detection on edge devices",
		OwnerID:        scenarioStudent,
		Quartile:       &q2,
		RequiresMentor: true,
		Authors:        []generic.Author{
			{Name: "Nicha Boonmee", Order: 1, Role: generic.RoleFirstAuthor, Category: generic.CategoryStudent},
			{Name: "Preecha Kaewmanee", Order: 2, Role: generic.RoleCorrespondingAuthor, Category: generic.CategoryFaculty},
		},
	})
	if err != nil {
		return err
	}
	if err := drive(ctx, h, student.Contribution.ID,
		step{scenarioStudent, generic.RoleContributor, generic.ActionSubmit, nil},
	); err != nil {
		return err
	}

	// Returned by review with a pending suggestion.
	returned, err := h.Service.Create(ctx, contribution.CreateInput{
		Type:     generic.TypeJournalArticle,
		Title:    "A survey of Thai word segmentation",
		OwnerID:  scenarioOwner,
		Quartile: &q2,
		Authors:  standardAuthors("Somchai Wongsa"),
	})
	if err != nil {
		return err
	}
	if err := drive(ctx, h, returned.Contribution.ID,
		step{scenarioOwner, generic.RoleContributor, generic.ActionSubmit, nil},
		step{scenarioReviewer, generic.RoleReviewer, generic.ActionClaim, nil},
		step{scenarioReviewer, generic.RoleReviewer, generic.ActionRequestChanges, []generic.SuggestionDraft{
			{Field: "quartile", OriginalValue: "Q2", SuggestedValue: "Q3"},
		}},
	); err != nil {
		return err
	}

	// Completed and credited.
	top := generic.TierTop5
	completed, err := h.Service.Create(ctx, contribution.CreateInput{
		Type:       generic.TypeJournalArticle,
		Title:      "Graph neural networks for traffic prediction",
		OwnerID:    scenarioOwner,
		Quartile:   &q2,
		ImpactTier: &top,
		Authors:    standardAuthors("Somchai Wongsa"),
	})
	if err != nil {
		return err
	}
	return drive(ctx, h, completed.Contribution.ID,
		step{scenarioOwner, generic.RoleContributor, generic.ActionSubmit, nil},
		step{scenarioReviewer, generic.RoleReviewer, generic.ActionClaim, nil},
		step{scenarioReviewer, generic.RoleReviewer, generic.ActionRecommend, nil},
		step{scenarioHead, generic.RoleHead, generic.ActionApprove, nil},
		step{scenarioFinance, generic.RoleFinance, generic.ActionClaim, nil},
		step{scenarioFinance, generic.RoleFinance, generic.ActionApprove, nil},
	)
}

func loadPolicyChangeScenario(ctx context.Context, h *Handler) error {
	if err := createPresetPolicies(ctx, h, scenarioPolicyDate); err != nil {
		return err
	}

	// v2 raises the base amount from July.
	v2, err := h.PolicyFactory.ParsePolicy(factory.JournalArticleJSON("ja-2025-07-01", "2025-07-01", 250000, 120))
	if err != nil {
		return err
	}
	v2.Version = 2
	if _, err := h.Service.CreatePolicy(ctx, scenarioAdmin, *v2); err != nil {
		return err
	}

	q1 := generic.Q1
	_, err = h.Service.Create(ctx, contribution.CreateInput{
		Type:     generic.TypeJournalArticle,
		Title:    "Mangrove carbon stocks along the Andaman coast",
		OwnerID:  scenarioOwner,
		Quartile: &q1,
		Authors:  []generic.Author{
			{Name: "Somchai Wongsa", Order: 1, Role: generic.RoleFirstAuthor, Category: generic.CategoryFaculty},
			{Name: "Anong Srisuk", Order: 2, Role: generic.RoleCorrespondingAuthor, Category: generic.CategoryFaculty},
		},
	})
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func createPresetPolicies(ctx context.Context, h *Handler, effectiveFrom string) error {
	for _, js := range factory.DefaultPresets(effectiveFrom) {
		p, err := h.PolicyFactory.ParsePolicy(js)
		if err != nil {
			return err
		}
		if _, err := h.Service.CreatePolicy(ctx, scenarioAdmin, *p); err != nil {
			return err
		}
	}
	return nil
}

type step struct {
	actor       generic.ActorID
	role        generic.ActorRole
	action      generic.Action
	suggestions []generic.SuggestionDraft
}

// drive applies steps in order, each against the status the previous one left.
func drive(ctx context.Context, h *Handler, id generic.ContributionID, steps ...step) error {
	detail, err := h.Service.Get(ctx, id)
	if err != nil {
		return err
	}
	status := detail.Contribution.Status

	for _, s := range steps {
		outcome, err := h.Service.Transition(ctx, id, contribution.TransitionInput{
			ExpectedStatus: status,
			ActorID:        s.actor,
			Role:           s.role,
			Action:         s.action,
			Suggestions:    s.suggestions,
		})
		if err != nil {
			return fmt.Errorf("%s %s on %s: %w", s.role, s.action, id, err)
		}
		status = outcome.Contribution.Status
	}
	return nil
}
