package generic

import "fmt"

// =============================================================================
// STATUS - Closed set of review states
// =============================================================================

type Status string

const (
	StatusDraft                 Status = "draft"
	StatusPendingMentorApproval Status = "pending_mentor_approval"
	StatusSubmitted             Status = "submitted"
	StatusUnderReview           Status = "under_review"
	StatusRecommendedToHead     Status = "recommended_to_head"
	StatusHeadApproved          Status = "head_approved"
	StatusUnderFinanceReview    Status = "under_finance_review"
	StatusCompleted             Status = "completed"

	StatusChangesRequired Status = "changes_required"
	StatusResubmitted     Status = "resubmitted"

	StatusMentorRejected  Status = "mentor_rejected"
	StatusReviewRejected  Status = "review_rejected"
	StatusHeadRejected    Status = "head_rejected"
	StatusFinanceRejected Status = "finance_rejected"
)

// AllStatuses lists every status in pipeline order, side states last.
var AllStatuses = []Status{
	StatusDraft,
	StatusPendingMentorApproval,
	StatusSubmitted,
	StatusUnderReview,
	StatusRecommendedToHead,
	StatusHeadApproved,
	StatusUnderFinanceReview,
	StatusCompleted,
	StatusChangesRequired,
	StatusResubmitted,
	StatusMentorRejected,
	StatusReviewRejected,
	StatusHeadRejected,
	StatusFinanceRejected,
}

// ParseStatus converts a stored string back into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusMentorRejected, StatusReviewRejected,
		StatusHeadRejected, StatusFinanceRejected:
		return true
	}
	return false
}

// IsEditable reports whether the owner may still change authors and metadata.
func (s Status) IsEditable() bool {
	return s == StatusDraft || s == StatusChangesRequired
}

// =============================================================================
// ACTORS AND ACTIONS
// =============================================================================

// ActorRole is the opaque role token supplied by the caller's authorization layer.
type ActorRole string

const (
	RoleContributor ActorRole = "contributor"
	RoleMentor      ActorRole = "mentor"
	RoleReviewer    ActorRole = "reviewer"
	RoleHead        ActorRole = "head"
	RoleFinance     ActorRole = "finance"
)

var AllActorRoles = []ActorRole{RoleContributor, RoleMentor, RoleReviewer, RoleHead, RoleFinance}

type Action string

const (
	ActionSubmit         Action = "submit"
	ActionResubmit       Action = "resubmit"
	ActionApprove        Action = "approve"
	ActionRequestChanges Action = "request_changes"
	ActionReject         Action = "reject"
	ActionClaim          Action = "claim"
	ActionRecommend      Action = "recommend"
)

var AllActions = []Action{
	ActionSubmit, ActionResubmit, ActionApprove, ActionRequestChanges,
	ActionReject, ActionClaim, ActionRecommend,
}
