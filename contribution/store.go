package contribution

import (
	"context"

	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/incentive"
)

// =============================================================================
// STORE - Persistence the service needs
// =============================================================================

// Filter narrows ListContributions. Zero value lists everything.
type Filter struct {
	Type     *generic.ContributionType
	OwnerID  *generic.ActorID
	Statuses []generic.Status
	OpenOnly bool // exclude terminal statuses
	Limit    int
}

// Matches reports whether c passes the filter. Stores without query support
// can use it to filter in memory.
func (f Filter) Matches(c generic.Contribution) bool {
	if f.Type != nil && c.Type != *f.Type {
		return false
	}
	if f.OwnerID != nil && c.OwnerID != *f.OwnerID {
		return false
	}
	if f.OpenOnly && c.Status.IsTerminal() {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if s == c.Status {
				return true
			}
		}
		return false
	}
	return true
}

// Expect is the stored state a write was computed from.
type Expect struct {
	Status   generic.Status
	Revision int
}

// ExpectOf returns the state c was read in.
func ExpectOf(c generic.Contribution) Expect {
	return Expect{Status: c.Status, Revision: c.Revision}
}

// Matches reports whether the stored contribution is still in the expected state.
func (e Expect) Matches(stored generic.Contribution) bool {
	return stored.Status == e.Status && stored.Revision == e.Revision
}

// Change is everything one transition writes. It is applied atomically and
// only if the stored contribution still matches Expected.
type Change struct {
	Expected     Expect
	Contribution generic.Contribution
	Authors      []generic.Author // nil leaves authors untouched
	History      generic.StatusHistory
	Suggestions  []generic.EditSuggestion
}

// Store persists contributions with their authors, history and suggestions.
//
// Conditional writes take the status and revision the caller read and fail
// with generic.ErrConcurrentModification when either no longer matches. A
// successful conditional write stores Revision = expected.Revision + 1.
// History is append-only.
type Store interface {
	CreateContribution(ctx context.Context, c generic.Contribution, authors []generic.Author) error

	// GetContribution returns generic.ErrContributionNotFound for unknown ids.
	GetContribution(ctx context.Context, id generic.ContributionID) (*generic.Contribution, error)
	ListContributions(ctx context.Context, filter Filter) ([]generic.Contribution, error)

	// Authors returns the author list ordered by Order.
	Authors(ctx context.Context, id generic.ContributionID) ([]generic.Author, error)

	// SaveSplit replaces the editable fields, pool totals and author list.
	SaveSplit(ctx context.Context, expected Expect, c generic.Contribution, authors []generic.Author) error

	ApplyTransition(ctx context.Context, change Change) error

	History(ctx context.Context, id generic.ContributionID) ([]generic.StatusHistory, error)
	Suggestions(ctx context.Context, id generic.ContributionID) ([]generic.EditSuggestion, error)

	// GetSuggestion returns generic.ErrSuggestionNotFound for unknown ids.
	GetSuggestion(ctx context.Context, id generic.SuggestionID) (*generic.EditSuggestion, error)

	// ResolveSuggestion stores an answered suggestion. Fails with
	// generic.ErrSuggestionResolved if the stored one is no longer pending.
	ResolveSuggestion(ctx context.Context, s generic.EditSuggestion) error
}

// PolicyStore persists incentive policies. Policies are never deleted.
type PolicyStore interface {
	// SavePolicy inserts a new policy. Saving an existing id fails with
	// generic.ErrInvalidPolicy: a changed rule set is a new policy.
	SavePolicy(ctx context.Context, p incentive.Policy) error

	// GetPolicy returns generic.ErrPolicyNotFound for unknown ids.
	GetPolicy(ctx context.Context, id generic.PolicyID) (*incentive.Policy, error)
	PoliciesByType(ctx context.Context, t generic.ContributionType) ([]incentive.Policy, error)
	ListPolicies(ctx context.Context) ([]incentive.Policy, error)
	DeactivatePolicy(ctx context.Context, id generic.PolicyID) error
}
