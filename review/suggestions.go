package review

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/contribution-engine/generic"
)

// =============================================================================
// SUGGESTION TRACKER - The request changes / resubmit loop
// =============================================================================

// Tracker holds the edit suggestions of one or more contributions and answers
// the resubmission guard. Accepting a suggestion records intent only; the
// contributor applies the edit separately.
//
// Tracker is safe for concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	suggestions map[generic.SuggestionID]generic.EditSuggestion
}

// NewTracker seeds a tracker, typically with suggestions loaded from storage.
func NewTracker(suggestions ...generic.EditSuggestion) *Tracker {
	t := &Tracker{suggestions: make(map[generic.SuggestionID]generic.EditSuggestion, len(suggestions))}
	for _, s := range suggestions {
		t.suggestions[s.ID] = s
	}
	return t
}

// Add records new suggestions, e.g. those returned by a request_changes
// transition. Existing entries are kept.
func (t *Tracker) Add(suggestions ...generic.EditSuggestion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range suggestions {
		if _, exists := t.suggestions[s.ID]; !exists {
			t.suggestions[s.ID] = s
		}
	}
}

// Get returns a suggestion by id.
func (t *Tracker) Get(id generic.SuggestionID) (generic.EditSuggestion, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.suggestions[id]
	return s, ok
}

// Respond answers a pending suggestion.
//
// Returns generic.ErrSuggestionNotFound for an unknown id and
// generic.ErrSuggestionResolved when it was already answered.
func (t *Tracker) Respond(id generic.SuggestionID, response generic.SuggestionResponse, responder generic.ActorID, note string, at time.Time) (*generic.EditSuggestion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.suggestions[id]
	if !ok {
		return nil, generic.ErrSuggestionNotFound
	}
	if !s.IsPending() {
		return nil, generic.ErrSuggestionResolved
	}

	switch response {
	case generic.ResponseAccept:
		s.Status = generic.SuggestionAccepted
	case generic.ResponseReject:
		s.Status = generic.SuggestionRejected
	default:
		return nil, fmt.Errorf("%w: %q", generic.ErrInvalidResponse, response)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.RespondedBy = responder
	s.ResponderNote = note
	s.RespondedAt = &at

	t.suggestions[id] = s
	return &s, nil
}

// AllResolved reports whether no suggestion of the contribution is pending.
// A contribution with no suggestions at all is resolved.
func (t *Tracker) AllResolved(contributionID generic.ContributionID) bool {
	return t.PendingCount(contributionID) == 0
}

// PendingCount counts the open suggestions of a contribution.
func (t *Tracker) PendingCount(contributionID generic.ContributionID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.suggestions {
		if s.ContributionID == contributionID && s.IsPending() {
			n++
		}
	}
	return n
}

// For returns the suggestions of a contribution, oldest first.
func (t *Tracker) For(contributionID generic.ContributionID) []generic.EditSuggestion {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []generic.EditSuggestion
	for _, s := range t.suggestions {
		if s.ContributionID == contributionID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
