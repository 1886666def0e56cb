/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - Decimal amounts rendered as plain JSON numbers
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Contribution:
    ContributionDTO, AuthorDTO, CreateContributionRequest,
    UpdateContributionRequest, UpdateAuthorsRequest

  Review:
    TransitionRequest, TransitionResponse, HistoryDTO, SuggestionDTO,
    RespondSuggestionRequest

  Policy:
    PolicyDTO (wraps factory.PolicyJSON), CreatePolicyRequest, PreviewRequest

  Credits / Audit:
    CreditDTO, CreditSummaryDTO, AuditEntryDTO, RecalcReportDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done by the contribution service, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/warp/contribution-engine/contribution"
	"github.com/warp/contribution-engine/factory"
	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/incentive"
)

// =============================================================================
// CONTRIBUTIONS
// =============================================================================

// AuthorInput is one author as submitted by a client. Shares are computed,
// never accepted.
type AuthorInput struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Order    int    `json:"order"`
	Role     string `json:"role"`
	Category string `json:"category"`
}

// AuthorDTO represents an author with computed shares.
type AuthorDTO struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email,omitempty"`
	Order          int     `json:"order"`
	Role           string  `json:"role"`
	Category       string  `json:"category"`
	Internal       bool    `json:"internal"`
	IncentiveShare float64 `json:"incentive_share"`
	PointsShare    float64 `json:"points_share"`
}

// ContributionDTO represents a contribution in API responses.
type ContributionDTO struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	Title          string  `json:"title"`
	OwnerID        string  `json:"owner_id"`
	Status         string  `json:"status"`
	Quartile       *string `json:"quartile,omitempty"`
	ImpactTier     *string `json:"impact_tier,omitempty"`
	RequiresMentor bool    `json:"requires_mentor"`
	ReturnStage    string  `json:"return_stage,omitempty"`

	PolicyID      string  `json:"policy_id,omitempty"`
	PolicyVersion int     `json:"policy_version,omitempty"`
	PoolAmount    float64 `json:"pool_amount"`
	PoolPoints    float64 `json:"pool_points"`

	CreatedAt   string  `json:"created_at"`
	SubmittedAt *string `json:"submitted_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	UpdatedAt   string  `json:"updated_at"`

	Authors []AuthorDTO `json:"authors,omitempty"`

	// AvailableActions lists what the calling role may do next.
	AvailableActions []string `json:"available_actions,omitempty"`
}

// CreateContributionRequest is the request to file a contribution. The owner
// is the calling actor.
type CreateContributionRequest struct {
	Type           string        `json:"type"`
	Title          string        `json:"title"`
	Quartile       string        `json:"quartile,omitempty"`
	ImpactTier     string        `json:"impact_tier,omitempty"`
	RequiresMentor bool          `json:"requires_mentor"`
	Authors        []AuthorInput `json:"authors"`
}

// UpdateContributionRequest edits metadata. Authors nil keeps the stored list.
type UpdateContributionRequest struct {
	Title      string        `json:"title,omitempty"`
	Quartile   string        `json:"quartile,omitempty"`
	ImpactTier string        `json:"impact_tier,omitempty"`
	Authors    []AuthorInput `json:"authors,omitempty"`
}

type UpdateAuthorsRequest struct {
	Authors []AuthorInput `json:"authors"`
}

// =============================================================================
// REVIEW
// =============================================================================

type SuggestionInput struct {
	Field          string `json:"field"`
	OriginalValue  string `json:"original_value,omitempty"`
	SuggestedValue string `json:"suggested_value"`
}

// TransitionRequest asks for one review action. ExpectedStatus is the status
// the client last saw; a stale value is rejected with 409.
type TransitionRequest struct {
	ExpectedStatus string            `json:"expected_status"`
	Action         string            `json:"action"`
	Comment        string            `json:"comment,omitempty"`
	Suggestions    []SuggestionInput `json:"suggestions,omitempty"`
}

type HistoryDTO struct {
	ID         string `json:"id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Action     string `json:"action"`
	ActorID    string `json:"actor_id"`
	ActorRole  string `json:"actor_role"`
	Comment    string `json:"comment,omitempty"`
	At         string `json:"at"`
}

type SuggestionDTO struct {
	ID             string  `json:"id"`
	ContributionID string  `json:"contribution_id"`
	Field          string  `json:"field"`
	OriginalValue  string  `json:"original_value,omitempty"`
	SuggestedValue string  `json:"suggested_value"`
	Status         string  `json:"status"`
	ProposedBy     string  `json:"proposed_by"`
	ResponderNote  string  `json:"responder_note,omitempty"`
	RespondedBy    string  `json:"responded_by,omitempty"`
	CreatedAt      string  `json:"created_at"`
	RespondedAt    *string `json:"responded_at,omitempty"`
}

type RespondSuggestionRequest struct {
	Response string `json:"response"` // accept or reject
	Note     string `json:"note,omitempty"`
}

// TransitionResponse is the result of a transition. Warning is set when the
// contribution completed but crediting has to be retried.
type TransitionResponse struct {
	Contribution ContributionDTO `json:"contribution"`
	History      HistoryDTO      `json:"history"`
	Suggestions  []SuggestionDTO `json:"suggestions,omitempty"`
	Credited     []CreditDTO     `json:"credited,omitempty"`
	Warning      string          `json:"warning,omitempty"`
}

// =============================================================================
// POLICIES
// =============================================================================

// PolicyDTO represents a policy in API responses.
type PolicyDTO struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	ContributionType string             `json:"contribution_type"`
	Version          int                `json:"version"`
	IsActive         bool               `json:"is_active"`
	Config           factory.PolicyJSON `json:"config"`
	CreatedAt        string             `json:"created_at,omitempty"`
}

// CreatePolicyRequest is the request to create a policy.
type CreatePolicyRequest struct {
	Config factory.PolicyJSON `json:"config"`
}

// PreviewRequest computes a split without saving anything. Date defaults to today.
type PreviewRequest struct {
	Type       string        `json:"type"`
	Quartile   string        `json:"quartile,omitempty"`
	ImpactTier string        `json:"impact_tier,omitempty"`
	Date       string        `json:"date,omitempty"`
	Authors    []AuthorInput `json:"authors"`
}

type PreviewResponse struct {
	PolicyID        string      `json:"policy_id"`
	PolicyVersion   int         `json:"policy_version"`
	Multiplier      float64     `json:"multiplier"`
	PoolAmount      float64     `json:"pool_amount"`
	PoolPoints      float64     `json:"pool_points"`
	ForfeitedAmount float64     `json:"forfeited_amount"`
	ForfeitedPoints float64     `json:"forfeited_points"`
	Authors         []AuthorDTO `json:"authors"`
}

// =============================================================================
// CREDITS / AUDIT / ADMIN
// =============================================================================

type CreditDTO struct {
	ID             string  `json:"id"`
	AuthorID       string  `json:"author_id"`
	AuthorName     string  `json:"author_name"`
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	Points         float64 `json:"points"`
	PolicyID       string  `json:"policy_id"`
	PolicyVersion  int     `json:"policy_version"`
	Reason         string  `json:"reason,omitempty"`
	IdempotencyKey string  `json:"idempotency_key"`
	CreatedBy      string  `json:"created_by"`
	CreatedAt      string  `json:"created_at"`
}

// ReverseCreditRequest cancels one credit. Reason is stored on the reversal.
type ReverseCreditRequest struct {
	Reason string `json:"reason"`
}

type CreditSummaryDTO struct {
	Transactions []CreditDTO `json:"transactions"`
	TotalAmount  float64     `json:"total_amount"`
	TotalPoints  float64     `json:"total_points"`
}

type AuditEntryDTO struct {
	ID             string   `json:"id"`
	Timestamp      string   `json:"timestamp"`
	ActorID        string   `json:"actor_id"`
	ActorRole      string   `json:"actor_role,omitempty"`
	Action         string   `json:"action"`
	ContributionID string   `json:"contribution_id,omitempty"`
	FromStatus     string   `json:"from_status,omitempty"`
	ToStatus       string   `json:"to_status,omitempty"`
	PoolAmount     *float64 `json:"pool_amount,omitempty"`
	PoolPoints     *float64 `json:"pool_points,omitempty"`
	PolicyID       string   `json:"policy_id,omitempty"`
	Comment        string   `json:"comment,omitempty"`
}

type RecalcReportDTO struct {
	Checked int               `json:"checked"`
	Updated int               `json:"updated"`
	Failed  map[string]string `json:"failed"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func amountFloat(a generic.Amount) float64 {
	return a.Value.InexactFloat64()
}

func toAuthorDTO(a generic.Author) AuthorDTO {
	return AuthorDTO{
		ID:             string(a.ID),
		Name:           a.Name,
		Email:          a.Email,
		Order:          a.Order,
		Role:           string(a.Role),
		Category:       string(a.Category),
		Internal:       a.Internal(),
		IncentiveShare: amountFloat(a.IncentiveShare),
		PointsShare:    amountFloat(a.PointsShare),
	}
}

func toAuthorDTOs(authors []generic.Author) []AuthorDTO {
	dtos := make([]AuthorDTO, len(authors))
	for i, a := range authors {
		dtos[i] = toAuthorDTO(a)
	}
	return dtos
}

func toContributionDTO(c generic.Contribution, authors []generic.Author) ContributionDTO {
	dto := ContributionDTO{
		ID:             string(c.ID),
		Type:           string(c.Type),
		Title:          c.Title,
		OwnerID:        string(c.OwnerID),
		Status:         string(c.Status),
		RequiresMentor: c.RequiresMentor,
		ReturnStage:    string(c.ReturnStage),
		PolicyID:       string(c.PolicyID),
		PolicyVersion:  c.PolicyVersion,
		PoolAmount:     amountFloat(c.PoolAmount),
		PoolPoints:     amountFloat(c.PoolPoints),
		CreatedAt:      formatTime(c.CreatedAt),
		SubmittedAt:    formatTimePtr(c.SubmittedAt),
		CompletedAt:    formatTimePtr(c.CompletedAt),
		UpdatedAt:      formatTime(c.UpdatedAt),
	}
	if c.Quartile != nil {
		dto.Quartile = strPtr(string(*c.Quartile))
	}
	if c.ImpactTier != nil {
		dto.ImpactTier = strPtr(string(*c.ImpactTier))
	}
	if authors != nil {
		dto.Authors = toAuthorDTOs(authors)
	}
	return dto
}

func toHistoryDTO(h generic.StatusHistory) HistoryDTO {
	return HistoryDTO{
		ID:         string(h.ID),
		FromStatus: string(h.FromStatus),
		ToStatus:   string(h.ToStatus),
		Action:     string(h.Action),
		ActorID:    string(h.ActorID),
		ActorRole:  string(h.ActorRole),
		Comment:    h.Comment,
		At:         formatTime(h.At),
	}
}

func toSuggestionDTO(s generic.EditSuggestion) SuggestionDTO {
	return SuggestionDTO{
		ID:             string(s.ID),
		ContributionID: string(s.ContributionID),
		Field:          s.Field,
		OriginalValue:  s.OriginalValue,
		SuggestedValue: s.SuggestedValue,
		Status:         string(s.Status),
		ProposedBy:     string(s.ProposedBy),
		ResponderNote:  s.ResponderNote,
		RespondedBy:    string(s.RespondedBy),
		CreatedAt:      formatTime(s.CreatedAt),
		RespondedAt:    formatTimePtr(s.RespondedAt),
	}
}

func toSuggestionDTOs(suggestions []generic.EditSuggestion) []SuggestionDTO {
	dtos := make([]SuggestionDTO, len(suggestions))
	for i, s := range suggestions {
		dtos[i] = toSuggestionDTO(s)
	}
	return dtos
}

func toCreditDTO(tx generic.Transaction) CreditDTO {
	return CreditDTO{
		ID:             string(tx.ID),
		AuthorID:       string(tx.AuthorID),
		AuthorName:     tx.AuthorName,
		Type:           string(tx.Type),
		Amount:         amountFloat(tx.Amount),
		Points:         amountFloat(tx.Points),
		PolicyID:       string(tx.PolicyID),
		PolicyVersion:  tx.PolicyVersion,
		Reason:         tx.Reason,
		IdempotencyKey: tx.IdempotencyKey,
		CreatedBy:      string(tx.CreatedBy),
		CreatedAt:      formatTime(tx.CreatedAt),
	}
}

func toCreditDTOs(txs []generic.Transaction) []CreditDTO {
	dtos := make([]CreditDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toCreditDTO(tx)
	}
	return dtos
}

func toAuditEntryDTO(e generic.AuditEntry) AuditEntryDTO {
	dto := AuditEntryDTO{
		ID:             e.ID,
		Timestamp:      formatTime(e.Timestamp),
		ActorID:        string(e.ActorID),
		ActorRole:      string(e.ActorRole),
		Action:         string(e.Action),
		ContributionID: string(e.ContributionID),
		FromStatus:     string(e.FromStatus),
		ToStatus:       string(e.ToStatus),
		Comment:        e.Comment,
	}
	if e.Totals != nil {
		amount := amountFloat(e.Totals.PoolAmount)
		points := amountFloat(e.Totals.PoolPoints)
		dto.PoolAmount = &amount
		dto.PoolPoints = &points
		dto.PolicyID = string(e.Totals.PolicyID)
	}
	return dto
}

func toPreviewResponse(r *incentive.SplitResult) PreviewResponse {
	return PreviewResponse{
		PolicyID:        string(r.PolicyID),
		PolicyVersion:   r.PolicyVersion,
		Multiplier:      r.Multiplier.InexactFloat64(),
		PoolAmount:      amountFloat(r.PoolAmount),
		PoolPoints:      amountFloat(r.PoolPoints),
		ForfeitedAmount: amountFloat(r.ForfeitedAmount),
		ForfeitedPoints: amountFloat(r.ForfeitedPoints),
		Authors:         toAuthorDTOs(r.Authors),
	}
}

func toRecalcReportDTO(r *contribution.RecalcReport) RecalcReportDTO {
	failed := make(map[string]string, len(r.Failed))
	for id, msg := range r.Failed {
		failed[string(id)] = msg
	}
	return RecalcReportDTO{Checked: r.Checked, Updated: r.Updated, Failed: failed}
}

func fromAuthorInputs(in []AuthorInput) []generic.Author {
	if in == nil {
		return nil
	}
	authors := make([]generic.Author, len(in))
	for i, a := range in {
		authors[i] = generic.Author{
			ID:       generic.AuthorID(a.ID),
			Name:     a.Name,
			Email:    a.Email,
			Order:    a.Order,
			Role:     generic.Role(a.Role),
			Category: generic.Category(a.Category),
		}
	}
	return authors
}

func quartilePtr(s string) *generic.Quartile {
	if s == "" {
		return nil
	}
	q := generic.Quartile(s)
	return &q
}

func impactTierPtr(s string) *generic.ImpactTier {
	if s == "" {
		return nil
	}
	t := generic.ImpactTier(s)
	return &t
}

func strPtr(s string) *string {
	return &s
}
