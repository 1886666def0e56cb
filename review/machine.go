/*
Package review implements the contribution review pipeline.

PURPOSE:
  A contribution moves through mentor, department review, head approval and
  finance stages. Each move is requested by an actor holding a role; the
  Machine decides whether the (status, role, action) triple is legal and
  returns the next state plus exactly one history record. It never mutates
  the contribution it is given and never touches storage.

STATES:
  draft ─▶ pending_mentor_approval ─▶ submitted ─▶ under_review ─▶
  recommended_to_head ─▶ head_approved ─▶ under_finance_review ─▶ completed

  Side states:
    changes_required ─▶ resubmitted ─▶ (back to the stage that asked)
    mentor_rejected, review_rejected, head_rejected, finance_rejected

RETURN STAGE:
  When a mentor or reviewer requests changes, Contribution.ReturnStage
  remembers which stage asked. After resubmission the same stage picks the
  contribution up again: the mentor re-decides, or a reviewer re-claims it.

AUTHORIZATION:
  The role on a request is an opaque token produced by the caller's
  authorization layer. The Machine trusts it.

SEE ALSO:
  - suggestions.go: Edit suggestions that gate resubmission
  - contribution/service.go: Loads, transitions and persists
*/
package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/contribution-engine/generic"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

// Rule is one legal (status, role, action) combination.
type Rule struct {
	From   generic.Status
	Role   generic.ActorRole
	Action generic.Action
	To     generic.Status

	// Condition describes When for humans; empty when the rule is unconditional.
	Condition string
	When      func(c generic.Contribution) bool
}

func requiresMentor(c generic.Contribution) bool { return c.RequiresMentor }
func noMentor(c generic.Contribution) bool       { return !c.RequiresMentor }
func returnToMentor(c generic.Contribution) bool { return c.ReturnStage == generic.StatusPendingMentorApproval }
func returnToReview(c generic.Contribution) bool { return c.ReturnStage != generic.StatusPendingMentorApproval }

var rules = []Rule{
	// Contributor
	{From: generic.StatusDraft, Role: generic.RoleContributor, Action: generic.ActionSubmit, To: generic.StatusPendingMentorApproval,
		Condition: "requires mentor", When: requiresMentor},
	{From: generic.StatusDraft, Role: generic.RoleContributor, Action: generic.ActionSubmit, To: generic.StatusSubmitted,
		Condition: "no mentor", When: noMentor},
	{From: generic.StatusChangesRequired, Role: generic.RoleContributor, Action: generic.ActionResubmit, To: generic.StatusResubmitted,
		Condition: "all suggestions resolved"},

	// Mentor
	{From: generic.StatusPendingMentorApproval, Role: generic.RoleMentor, Action: generic.ActionApprove, To: generic.StatusSubmitted},
	{From: generic.StatusPendingMentorApproval, Role: generic.RoleMentor, Action: generic.ActionRequestChanges, To: generic.StatusChangesRequired},
	{From: generic.StatusPendingMentorApproval, Role: generic.RoleMentor, Action: generic.ActionReject, To: generic.StatusMentorRejected},
	{From: generic.StatusResubmitted, Role: generic.RoleMentor, Action: generic.ActionApprove, To: generic.StatusSubmitted,
		Condition: "returned by mentor", When: returnToMentor},
	{From: generic.StatusResubmitted, Role: generic.RoleMentor, Action: generic.ActionRequestChanges, To: generic.StatusChangesRequired,
		Condition: "returned by mentor", When: returnToMentor},
	{From: generic.StatusResubmitted, Role: generic.RoleMentor, Action: generic.ActionReject, To: generic.StatusMentorRejected,
		Condition: "returned by mentor", When: returnToMentor},

	// Reviewer
	{From: generic.StatusSubmitted, Role: generic.RoleReviewer, Action: generic.ActionClaim, To: generic.StatusUnderReview},
	{From: generic.StatusResubmitted, Role: generic.RoleReviewer, Action: generic.ActionClaim, To: generic.StatusUnderReview,
		Condition: "returned by review", When: returnToReview},
	{From: generic.StatusUnderReview, Role: generic.RoleReviewer, Action: generic.ActionRecommend, To: generic.StatusRecommendedToHead},
	{From: generic.StatusUnderReview, Role: generic.RoleReviewer, Action: generic.ActionRequestChanges, To: generic.StatusChangesRequired},
	{From: generic.StatusUnderReview, Role: generic.RoleReviewer, Action: generic.ActionReject, To: generic.StatusReviewRejected},

	// Head
	{From: generic.StatusRecommendedToHead, Role: generic.RoleHead, Action: generic.ActionApprove, To: generic.StatusHeadApproved},
	{From: generic.StatusRecommendedToHead, Role: generic.RoleHead, Action: generic.ActionReject, To: generic.StatusHeadRejected},

	// Finance
	{From: generic.StatusHeadApproved, Role: generic.RoleFinance, Action: generic.ActionClaim, To: generic.StatusUnderFinanceReview},
	{From: generic.StatusUnderFinanceReview, Role: generic.RoleFinance, Action: generic.ActionApprove, To: generic.StatusCompleted},
	{From: generic.StatusUnderFinanceReview, Role: generic.RoleFinance, Action: generic.ActionReject, To: generic.StatusFinanceRejected},
}

// Rules returns a copy of the transition table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// lookup finds the rule that applies to c for role/action.
func lookup(c generic.Contribution, role generic.ActorRole, action generic.Action) (Rule, bool) {
	for _, r := range rules {
		if r.From != c.Status || r.Role != role || r.Action != action {
			continue
		}
		if r.When != nil && !r.When(c) {
			continue
		}
		return r, true
	}
	return Rule{}, false
}

// AvailableActions lists what role may do to c right now. Guards that need
// more than the contribution (pending suggestions) are not evaluated.
func AvailableActions(c generic.Contribution, role generic.ActorRole) []generic.Action {
	var actions []generic.Action
	for _, action := range generic.AllActions {
		if _, ok := lookup(c, role, action); ok {
			actions = append(actions, action)
		}
	}
	return actions
}

// =============================================================================
// MACHINE
// =============================================================================

type TransitionRequest struct {
	// ExpectedStatus is the status the caller saw. A mismatch is rejected so
	// two actors racing on the same contribution cannot both win.
	ExpectedStatus generic.Status

	ActorID generic.ActorID
	Role    generic.ActorRole
	Action  generic.Action
	Comment string

	// Suggestions accompany request_changes. At least one is required there;
	// anywhere else they are ignored.
	Suggestions []generic.SuggestionDraft

	At time.Time
}

type Result struct {
	Contribution   generic.Contribution
	History        generic.StatusHistory
	NewSuggestions []generic.EditSuggestion

	// Recalculate is set when authors may have changed since the last split
	// (submit, resubmit). Credit is set on completion.
	Recalculate bool
	Credit      bool
}

// SuggestionGuard answers whether a contribution still has open suggestions.
type SuggestionGuard interface {
	AllResolved(contributionID generic.ContributionID) bool
	PendingCount(contributionID generic.ContributionID) int
}

type Machine struct {
	// NewID generates history and suggestion ids.
	NewID func() string
}

func NewMachine() *Machine {
	return &Machine{NewID: uuid.NewString}
}

// Transition validates req against c and returns the resulting state.
//
// Errors:
//   - *generic.InvalidTransitionError: stale expected status, triple not in
//     the table, or request_changes without suggestions
//   - *generic.UnresolvedSuggestionsError: resubmit while suggestions are pending
//
// guard may be nil unless the action is resubmit.
func (m *Machine) Transition(c generic.Contribution, req TransitionRequest, guard SuggestionGuard) (*Result, error) {
	reject := func(reason string) error {
		return &generic.InvalidTransitionError{
			ContributionID: c.ID,
			From:           c.Status,
			Role:           req.Role,
			Action:         req.Action,
			Reason:         reason,
		}
	}

	if req.ExpectedStatus != c.Status {
		return nil, reject(fmt.Sprintf("status changed: expected %s, current %s", req.ExpectedStatus, c.Status))
	}
	if c.Status.IsTerminal() {
		return nil, reject("contribution is in a terminal status")
	}

	rule, ok := lookup(c, req.Role, req.Action)
	if !ok {
		return nil, reject("not permitted by the transition table")
	}

	if req.Action == generic.ActionResubmit {
		if guard == nil || !guard.AllResolved(c.ID) {
			pending := 0
			if guard != nil {
				pending = guard.PendingCount(c.ID)
			}
			return nil, &generic.UnresolvedSuggestionsError{ContributionID: c.ID, Pending: pending}
		}
	}

	if req.Action == generic.ActionRequestChanges {
		if len(req.Suggestions) == 0 {
			return nil, reject("request_changes needs at least one suggestion")
		}
		for i, s := range req.Suggestions {
			if strings.TrimSpace(s.Field) == "" {
				return nil, reject(fmt.Sprintf("suggestion %d has no field", i+1))
			}
		}
	}

	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	next := c
	next.Status = rule.To
	next.UpdatedAt = at

	result := &Result{}

	switch req.Action {
	case generic.ActionSubmit:
		if next.SubmittedAt == nil {
			submitted := at
			next.SubmittedAt = &submitted
		}
		result.Recalculate = true
	case generic.ActionResubmit:
		result.Recalculate = true
	case generic.ActionRequestChanges:
		// Resubmission routes back to the stage that asked. A mentor asking
		// again from resubmitted keeps the mentor stage.
		switch c.Status {
		case generic.StatusUnderReview:
			next.ReturnStage = generic.StatusUnderReview
		default:
			next.ReturnStage = generic.StatusPendingMentorApproval
		}
		for _, d := range req.Suggestions {
			result.NewSuggestions = append(result.NewSuggestions, generic.EditSuggestion{
				ID:             generic.SuggestionID(m.NewID()),
				ContributionID: c.ID,
				Field:          d.Field,
				OriginalValue:  d.OriginalValue,
				SuggestedValue: d.SuggestedValue,
				Status:         generic.SuggestionPending,
				ProposedBy:     req.ActorID,
				CreatedAt:      at,
			})
		}
	}

	if rule.To == generic.StatusCompleted {
		completed := at
		next.CompletedAt = &completed
		result.Credit = true
	}

	result.Contribution = next
	result.History = generic.StatusHistory{
		ID:             generic.HistoryID(m.NewID()),
		ContributionID: c.ID,
		FromStatus:     c.Status,
		ToStatus:       rule.To,
		Action:         req.Action,
		ActorID:        req.ActorID,
		ActorRole:      req.Role,
		Comment:        req.Comment,
		At:             at,
	}
	return result, nil
}
