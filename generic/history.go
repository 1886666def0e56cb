package generic

import "time"

// =============================================================================
// STATUS HISTORY - Append-only record of every transition
// =============================================================================

// StatusHistory records one transition. Immutable once written.
type StatusHistory struct {
	ID             HistoryID
	ContributionID ContributionID
	FromStatus     Status
	ToStatus       Status
	Action         Action
	ActorID        ActorID
	ActorRole      ActorRole
	Comment        string
	At             time.Time
}

// =============================================================================
// EDIT SUGGESTION - Reviewer-proposed change while in changes_required
// =============================================================================

type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

type EditSuggestion struct {
	ID             SuggestionID
	ContributionID ContributionID
	Field          string
	OriginalValue  string
	SuggestedValue string
	Status         SuggestionStatus
	ProposedBy     ActorID
	ResponderNote  string
	RespondedBy    ActorID
	CreatedAt      time.Time
	RespondedAt    *time.Time
}

// IsPending reports whether the suggestion still blocks resubmission.
func (s EditSuggestion) IsPending() bool { return s.Status == SuggestionPending }

// SuggestionDraft is the reviewer's input when requesting changes.
type SuggestionDraft struct {
	Field          string
	OriginalValue  string
	SuggestedValue string
}

// SuggestionResponse is the contributor's answer to a suggestion.
type SuggestionResponse string

const (
	ResponseAccept SuggestionResponse = "accept"
	ResponseReject SuggestionResponse = "reject"
)
