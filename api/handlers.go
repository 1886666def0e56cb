/*
handlers.go - HTTP API handlers for the contribution review and incentive engine

PURPOSE:
  Exposes the contribution service via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the service.

ENDPOINTS:
  Policies:
    GET    /api/policies                       List all policies
    POST   /api/policies                       Create policy from JSON
    GET    /api/policies/resolve?type=&date=   Policy in force for a type/date
    GET    /api/policies/{id}                  Get policy
    POST   /api/policies/{id}/deactivate       Take policy out of resolution

  Contributions:
    GET    /api/contributions                  List (type, owner, status, open, limit)
    POST   /api/contributions                  File a contribution (draft)
    POST   /api/contributions/preview          Split without saving
    GET    /api/contributions/{id}             Contribution with authors
    PUT    /api/contributions/{id}             Edit metadata (draft/changes_required)
    PUT    /api/contributions/{id}/authors     Replace authors and re-split
    POST   /api/contributions/{id}/transitions Review action
    GET    /api/contributions/{id}/history     Status history
    GET    /api/contributions/{id}/suggestions Edit suggestions
    GET    /api/contributions/{id}/credits     Ledger view
    POST   /api/contributions/{id}/credits     Retry crediting a completed contribution
    POST   /api/contributions/{id}/credits/{txID}/reverse  Cancel one credit (finance)
    POST   /api/contributions/{id}/recalculate Re-split an open contribution

  Suggestions:
    POST   /api/suggestions/{id}/respond       Accept or reject

  Admin:
    POST   /api/admin/recalculate?type=        Re-split every open contribution
    GET    /api/admin/audit                    Query the audit trail

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input
  - 401: No actor on a write
  - 404: Resource not found
  - 409: Conflict (illegal or stale transition, locked, unresolved suggestions)
  - 422: Input that cannot be split (malformed authors, no applicable policy)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Actor identity
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/contribution-engine/contribution"
	"github.com/warp/contribution-engine/factory"
	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/incentive"
	"github.com/warp/contribution-engine/review"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears all stored data. Demo and development only.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service       *contribution.Service
	PolicyFactory *factory.PolicyFactory
	Audit         generic.AuditLog
	Store         Resetter
	Logger        *slog.Logger

	mu sync.Mutex
	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler. audit and store may be nil, which
// disables the audit query and reset endpoints.
func NewHandler(svc *contribution.Service, audit generic.AuditLog, store Resetter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		Service:       svc,
		PolicyFactory: factory.NewPolicyFactory(),
		Audit:         audit,
		Store:         store,
		Logger:        logger,
	}
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns all policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Service.ListPolicies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = h.toPolicyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePolicy creates a new policy.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	policy, err := h.PolicyFactory.FromJSON(req.Config)
	if err != nil {
		writeServiceError(w, "Invalid policy configuration", err)
		return
	}

	created, err := h.Service.CreatePolicy(r.Context(), actor.ID, *policy)
	if err != nil {
		writeServiceError(w, "Failed to create policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toPolicyDTO(*created))
}

// GetPolicy returns a single policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := generic.PolicyID(chi.URLParam(r, "id"))

	p, err := h.Service.GetPolicy(r.Context(), id)
	if errors.Is(err, generic.ErrPolicyNotFound) {
		writeError(w, http.StatusNotFound, "Policy not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPolicyDTO(*p))
}

// DeactivatePolicy takes a policy out of resolution.
func (h *Handler) DeactivatePolicy(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := generic.PolicyID(chi.URLParam(r, "id"))

	p, err := h.Service.DeactivatePolicy(r.Context(), actor.ID, id)
	if errors.Is(err, generic.ErrPolicyNotFound) {
		writeError(w, http.StatusNotFound, "Policy not found", err)
		return
	}
	if err != nil {
		writeServiceError(w, "Failed to deactivate policy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPolicyDTO(*p))
}

// ResolvePolicy returns the policy in force for a contribution type on a date.
// GET /api/policies/resolve?type=journal_article&date=2025-03-01
func (h *Handler) ResolvePolicy(w http.ResponseWriter, r *http.Request) {
	t := generic.ContributionType(r.URL.Query().Get("type"))
	if !t.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown contribution type", fmt.Errorf("type %q", t))
		return
	}
	at, err := parseDateParam(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	p, err := h.Service.ResolvePolicy(r.Context(), t, at)
	if errors.Is(err, generic.ErrPolicyNotFound) {
		writeError(w, http.StatusNotFound, "No policy in force", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve policy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPolicyDTO(*p))
}

func (h *Handler) toPolicyDTO(p incentive.Policy) PolicyDTO {
	return PolicyDTO{
		ID:               string(p.ID),
		Name:             p.Name,
		ContributionType: string(p.ContributionType),
		Version:          p.Version,
		IsActive:         p.IsActive,
		Config:           h.PolicyFactory.ToJSON(p),
		CreatedAt:        formatTime(p.CreatedAt),
	}
}

// =============================================================================
// CONTRIBUTION HANDLERS
// =============================================================================

// ListContributions returns contributions matching the query.
// GET /api/contributions?type=&owner=&status=a,b&open=true&limit=
func (h *Handler) ListContributions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter contribution.Filter

	if v := q.Get("type"); v != "" {
		t := generic.ContributionType(v)
		filter.Type = &t
	}
	if v := q.Get("owner"); v != "" {
		owner := generic.ActorID(v)
		filter.OwnerID = &owner
	}
	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			status, err := generic.ParseStatus(strings.TrimSpace(s))
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid status filter", err)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	filter.OpenOnly = q.Get("open") == "true"
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	list, err := h.Service.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contributions", err)
		return
	}

	dtos := make([]ContributionDTO, len(list))
	for i, c := range list {
		dtos[i] = toContributionDTO(c, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateContribution files a new contribution in draft with its initial split.
func (h *Handler) CreateContribution(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	detail, err := h.Service.Create(r.Context(), contribution.CreateInput{
		Type:           generic.ContributionType(req.Type),
		Title:          req.Title,
		OwnerID:        actor.ID,
		Quartile:       quartilePtr(req.Quartile),
		ImpactTier:     impactTierPtr(req.ImpactTier),
		RequiresMentor: req.RequiresMentor,
		Authors:        fromAuthorInputs(req.Authors),
	})
	if err != nil {
		writeServiceError(w, "Failed to create contribution", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.detailDTO(detail, actor))
}

// GetContribution returns a contribution with its authors and, when the
// caller has a role, the actions that role may take next.
func (h *Handler) GetContribution(w http.ResponseWriter, r *http.Request) {
	id := generic.ContributionID(chi.URLParam(r, "id"))

	detail, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get contribution", err)
		return
	}
	writeJSON(w, http.StatusOK, h.detailDTO(detail, ActorFrom(r.Context())))
}

// UpdateContribution edits metadata and, optionally, authors.
func (h *Handler) UpdateContribution(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := generic.ContributionID(chi.URLParam(r, "id"))

	var req UpdateContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	detail, err := h.Service.Update(r.Context(), id, actor.ID, contribution.UpdateInput{
		Title:      req.Title,
		Quartile:   quartilePtr(req.Quartile),
		ImpactTier: impactTierPtr(req.ImpactTier),
		Authors:    fromAuthorInputs(req.Authors),
	})
	if err != nil {
		writeServiceError(w, "Failed to update contribution", err)
		return
	}
	writeJSON(w, http.StatusOK, h.detailDTO(detail, actor))
}

// UpdateAuthors replaces the author list. The split is recomputed first and
// nothing is saved when it fails.
func (h *Handler) UpdateAuthors(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := generic.ContributionID(chi.URLParam(r, "id"))

	var req UpdateAuthorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	detail, err := h.Service.UpdateAuthors(r.Context(), id, actor.ID, fromAuthorInputs(req.Authors))
	if err != nil {
		writeServiceError(w, "Failed to update authors", err)
		return
	}
	writeJSON(w, http.StatusOK, h.detailDTO(detail, actor))
}

// Preview computes a split for unsaved input.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	at, err := parseDateParam(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.Service.Preview(r.Context(), generic.Contribution{
		Type:       generic.ContributionType(req.Type),
		Quartile:   quartilePtr(req.Quartile),
		ImpactTier: impactTierPtr(req.ImpactTier),
		CreatedAt:  at.Time,
	}, fromAuthorInputs(req.Authors))
	if err != nil {
		writeServiceError(w, "Failed to compute split", err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewResponse(result))
}

func (h *Handler) detailDTO(d *contribution.Detail, actor Actor) ContributionDTO {
	dto := toContributionDTO(d.Contribution, d.Authors)
	if actor.Role != "" {
		for _, a := range review.AvailableActions(d.Contribution, actor.Role) {
			dto.AvailableActions = append(dto.AvailableActions, string(a))
		}
	}
	return dto
}

// =============================================================================
// REVIEW HANDLERS
// =============================================================================

// Transition applies one review action.
// POST /api/contributions/{id}/transitions
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := generic.ContributionID(chi.URLParam(r, "id"))

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	expected, err := generic.ParseStatus(req.ExpectedStatus)
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected_status is required", err)
		return
	}

	drafts := make([]generic.SuggestionDraft, len(req.Suggestions))
	for i, s := range req.Suggestions {
		drafts[i] = generic.SuggestionDraft{
			Field:          s.Field,
			OriginalValue:  s.OriginalValue,
			SuggestedValue: s.SuggestedValue,
		}
	}

	outcome, err := h.Service.Transition(r.Context(), id, contribution.TransitionInput{
		ExpectedStatus: expected,
		ActorID:        actor.ID,
		Role:           actor.Role,
		Action:         generic.Action(req.Action),
		Comment:        req.Comment,
		Suggestions:    drafts,
	})
	if err != nil && outcome == nil {
		writeServiceError(w, "Transition rejected", err)
		return
	}

	resp := TransitionResponse{
		Contribution: toContributionDTO(outcome.Contribution, outcome.Authors),
		History:      toHistoryDTO(outcome.History),
		Suggestions:  toSuggestionDTOs(outcome.NewSuggestions),
		Credited:     toCreditDTOs(outcome.Credited),
	}
	if err != nil {
		// Completion is saved; crediting can be retried via POST .../credits.
		h.Logger.Error("crediting failed", "id", id, "error", err)
		resp.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHistory returns the status history, oldest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := generic.ContributionID(chi.URLParam(r, "id"))

	history, err := h.Service.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get history", err)
		return
	}

	dtos := make([]HistoryDTO, len(history))
	for i, rec := range history {
		dtos[i] = toHistoryDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSuggestions returns every edit suggestion of a contribution.
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	id := generic.ContributionID(chi.URLParam(r, "id"))

	suggestions, err := h.Service.Suggestions(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get suggestions", err)
		return
	}
	writeJSON(w, http.StatusOK, toSuggestionDTOs(suggestions))
}

// RespondToSuggestion accepts or rejects a pending suggestion.
// POST /api/suggestions/{id}/respond
func (h *Handler) RespondToSuggestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := generic.SuggestionID(chi.URLParam(r, "id"))

	var req RespondSuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	answered, err := h.Service.RespondToSuggestion(r.Context(), id, generic.SuggestionResponse(req.Response), actor.ID, req.Note)
	if err != nil {
		writeServiceError(w, "Failed to respond to suggestion", err)
		return
	}
	writeJSON(w, http.StatusOK, toSuggestionDTO(*answered))
}

// =============================================================================
// CREDIT / RECALCULATION HANDLERS
// =============================================================================

// GetCredits returns the ledger entries of a contribution with totals.
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	id := generic.ContributionID(chi.URLParam(r, "id"))

	summary, err := h.Service.Credits(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to get credits", err)
		return
	}
	writeJSON(w, http.StatusOK, CreditSummaryDTO{
		Transactions: toCreditDTOs(summary.Transactions),
		TotalAmount:  amountFloat(summary.Amount),
		TotalPoints:  amountFloat(summary.Points),
	})
}

// CreditContribution writes missing completion credits. Idempotent.
func (h *Handler) CreditContribution(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := generic.ContributionID(chi.URLParam(r, "id"))

	txs, err := h.Service.Credit(r.Context(), id, actor.ID)
	if err != nil {
		writeServiceError(w, "Failed to credit contribution", err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTOs(txs))
}

// ReverseCredit cancels one completion credit. Finance only.
// POST /api/contributions/{id}/credits/{txID}/reverse
func (h *Handler) ReverseCredit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := generic.ContributionID(chi.URLParam(r, "id"))

	var req ReverseCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reversal, err := h.Service.Reverse(r.Context(), id, contribution.ReverseInput{
		TransactionID: generic.TransactionID(chi.URLParam(r, "txID")),
		ActorID:       actor.ID,
		Role:          actor.Role,
		Reason:        req.Reason,
	})
	if err != nil {
		writeServiceError(w, "Failed to reverse credit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCreditDTO(*reversal))
}

// Recalculate re-resolves the policy and re-splits one open contribution.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := generic.ContributionID(chi.URLParam(r, "id"))

	detail, err := h.Service.Recalculate(r.Context(), id, actor.ID)
	if err != nil {
		writeServiceError(w, "Failed to recalculate", err)
		return
	}
	writeJSON(w, http.StatusOK, h.detailDTO(detail, actor))
}

// RecalculateAll re-splits every open contribution, optionally of one type.
// POST /api/admin/recalculate?type=journal_article
func (h *Handler) RecalculateAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var t *generic.ContributionType
	if v := r.URL.Query().Get("type"); v != "" {
		ct := generic.ContributionType(v)
		if !ct.Valid() {
			writeError(w, http.StatusBadRequest, "Unknown contribution type", fmt.Errorf("type %q", v))
			return
		}
		t = &ct
	}

	report, err := h.Service.RecalculateAll(r.Context(), t, actor.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Recalculation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecalcReportDTO(report))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// QueryAudit returns audit entries, newest first.
// GET /api/admin/audit?contribution_id=&actor_id=&action=a,b&from=&to=&limit=
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeError(w, http.StatusNotImplemented, "Audit trail not configured", nil)
		return
	}

	q := r.URL.Query()
	filter := generic.AuditFilter{Limit: 100}
	if v := q.Get("contribution_id"); v != "" {
		id := generic.ContributionID(v)
		filter.ContributionID = &id
	}
	if v := q.Get("actor_id"); v != "" {
		id := generic.ActorID(v)
		filter.ActorID = &id
	}
	if v := q.Get("action"); v != "" {
		for _, a := range strings.Split(v, ",") {
			filter.Actions = append(filter.Actions, generic.AuditAction(strings.TrimSpace(a)))
		}
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+name+" (use RFC3339)", err)
			return
		}
		*dst = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	entries, err := h.Audit.QueryAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit trail", err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "Reset not supported", nil)
		return
	}
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a service error onto a status and a stable code.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	status, code := errorStatus(err)
	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}

	var malformed *generic.MalformedAuthorSetError
	var invalidPolicy *generic.InvalidPolicyError
	switch {
	case errors.As(err, &malformed):
		resp.Details = malformed.Problems
	case errors.As(err, &invalidPolicy):
		resp.Details = invalidPolicy.Problems
	}
	writeJSON(w, status, resp)
}

func errorStatus(err error) (int, string) {
	var tier *generic.TierNotCoveredError
	switch {
	case errors.Is(err, generic.ErrContributionNotFound), errors.Is(err, generic.ErrSuggestionNotFound),
		errors.Is(err, generic.ErrTransactionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, generic.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.As(err, &tier):
		return http.StatusUnprocessableEntity, "tier_not_covered"
	case errors.Is(err, generic.ErrPolicyNotFound):
		return http.StatusUnprocessableEntity, "no_applicable_policy"
	case generic.IsRetryable(err):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, generic.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, generic.ErrUnresolvedSuggestions):
		return http.StatusConflict, "unresolved_suggestions"
	case errors.Is(err, generic.ErrSuggestionResolved):
		return http.StatusConflict, "suggestion_resolved"
	case errors.Is(err, generic.ErrContributionLocked):
		return http.StatusConflict, "contribution_locked"
	case errors.Is(err, generic.ErrNotCompleted):
		return http.StatusConflict, "not_completed"
	case errors.Is(err, generic.ErrInvalidReversal):
		return http.StatusConflict, "invalid_reversal"
	case errors.Is(err, generic.ErrMalformedAuthorSet):
		return http.StatusUnprocessableEntity, "malformed_author_set"
	case errors.Is(err, generic.ErrInvalidPolicy):
		return http.StatusUnprocessableEntity, "invalid_policy"
	case generic.IsClientError(err):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// requireActor writes 401 and returns false for anonymous callers.
func requireActor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	a := ActorFrom(r.Context())
	if a.ID == "" {
		writeError(w, http.StatusUnauthorized, "Actor identity required", nil)
		return Actor{}, false
	}
	return a, true
}

// parseDateParam parses YYYY-MM-DD; empty means today.
func parseDateParam(s string) (generic.TimePoint, error) {
	if s == "" {
		return generic.Today(), nil
	}
	return generic.ParseTimePoint(s)
}
