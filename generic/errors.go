/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The core returns these to its caller; it never logs or swallows them.
  The caller (HTTP layer, CLI) decides messaging and audit-logging.

ERROR CATEGORIES:
  1. Policy errors     - No applicable policy / tier band (fatal to a split)
  2. Workflow errors   - Illegal transition, unresolved suggestions (recoverable)
  3. Author set errors - Malformed author list (fatal to a split, fix upstream)
  4. Store errors      - Missing records, lost compare-and-swap, duplicates

USAGE:
  if errors.Is(err, generic.ErrInvalidTransition) {
      // re-fetch status and offer the legal actions
  }

  var ite *generic.InvalidTransitionError
  if errors.As(err, &ite) {
      log.Printf("cannot %s from %s as %s", ite.Action, ite.From, ite.Role)
  }

SEE ALSO:
  - incentive/: Returns policy and author set errors
  - review/: Returns workflow errors
  - store/sqlite/: Returns store errors
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPolicyNotFound is returned when no active, effective policy applies.
	// No incentive can be computed without one.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrInvalidPolicy is returned when a policy document violates its invariants.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrInvalidTransition is returned for an illegal status/role/action combination
	// or a stale expected status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnresolvedSuggestions is returned when resubmission is attempted while
	// suggestions are still pending.
	ErrUnresolvedSuggestions = errors.New("unresolved suggestions")

	// ErrMalformedAuthorSet is returned when the author list cannot be split.
	ErrMalformedAuthorSet = errors.New("malformed author set")

	// ErrSuggestionNotFound is returned for an unknown suggestion id.
	ErrSuggestionNotFound = errors.New("suggestion not found")

	// ErrSuggestionResolved is returned when responding to a non-pending suggestion.
	ErrSuggestionResolved = errors.New("suggestion already resolved")

	// ErrInvalidResponse is returned for a suggestion response other than accept/reject.
	ErrInvalidResponse = errors.New("invalid suggestion response")

	// ErrContributionNotFound is returned when a referenced contribution doesn't exist.
	ErrContributionNotFound = errors.New("contribution not found")

	// ErrInvalidContribution is returned when a new or edited contribution is missing
	// required fields.
	ErrInvalidContribution = errors.New("invalid contribution")

	// ErrNotCompleted is returned when crediting a contribution finance has not approved.
	ErrNotCompleted = errors.New("contribution is not completed")

	// ErrContributionLocked is returned when authors are edited outside draft/changes_required.
	ErrContributionLocked = errors.New("contribution is not editable in its current status")

	// ErrConcurrentModification is returned when the stored status or revision
	// no longer matches the one the write was computed from (compare-and-swap lost).
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateIdempotencyKey is returned when a ledger entry with the same
	// idempotency key already exists. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrTransactionNotFound is returned for a ledger entry that does not belong
	// to the given contribution.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidReversal is returned when a ledger entry cannot be reversed:
	// it is a reversal itself, it was already reversed, or no reason was given.
	ErrInvalidReversal = errors.New("invalid reversal")

	// ErrForbidden is returned when the acting role may not perform an operation.
	ErrForbidden = errors.New("operation not permitted for role")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PolicyNotFoundError names the lookup that failed.
type PolicyNotFoundError struct {
	Type ContributionType
	At   TimePoint
}

func (e *PolicyNotFoundError) Error() string {
	return fmt.Sprintf("policy not found: no active policy for %s effective on %s", e.Type, e.At)
}

func (e *PolicyNotFoundError) Unwrap() error { return ErrPolicyNotFound }

// TierNotCoveredError is returned when a policy defines tier bands but none for
// the contribution's quartile or impact tier.
type TierNotCoveredError struct {
	PolicyID PolicyID
	Tier     string
}

func (e *TierNotCoveredError) Error() string {
	return fmt.Sprintf("policy not found: policy %s has no multiplier for tier %q", e.PolicyID, e.Tier)
}

func (e *TierNotCoveredError) Unwrap() error { return ErrPolicyNotFound }

// InvalidPolicyError lists the violated policy invariants.
type InvalidPolicyError struct {
	PolicyID PolicyID
	Problems []string
}

func (e *InvalidPolicyError) Error() string {
	return fmt.Sprintf("invalid policy %s: %s", e.PolicyID, strings.Join(e.Problems, "; "))
}

func (e *InvalidPolicyError) Unwrap() error { return ErrInvalidPolicy }

// InvalidTransitionError describes a rejected transition request.
// Cause is set when the rejection came from the persistence layer
// (e.g. ErrConcurrentModification).
type InvalidTransitionError struct {
	ContributionID ContributionID
	From           Status
	Role           ActorRole
	Action         Action
	Reason         string
	Cause          error
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition: %s cannot %s from %s", e.Role, e.Action, e.From)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *InvalidTransitionError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrInvalidTransition, e.Cause}
	}
	return []error{ErrInvalidTransition}
}

// UnresolvedSuggestionsError reports how many suggestions still block resubmission.
type UnresolvedSuggestionsError struct {
	ContributionID ContributionID
	Pending        int
}

func (e *UnresolvedSuggestionsError) Error() string {
	return fmt.Sprintf("unresolved suggestions: %d pending for contribution %s", e.Pending, e.ContributionID)
}

func (e *UnresolvedSuggestionsError) Unwrap() error { return ErrUnresolvedSuggestions }

// MalformedAuthorSetError lists every problem found in an author list.
type MalformedAuthorSetError struct {
	Problems []string
}

func (e *MalformedAuthorSetError) Error() string {
	return "malformed author set: " + strings.Join(e.Problems, "; ")
}

func (e *MalformedAuthorSetError) Unwrap() error { return ErrMalformedAuthorSet }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed after re-fetching state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrUnresolvedSuggestions) ||
		errors.Is(err, ErrMalformedAuthorSet) ||
		errors.Is(err, ErrSuggestionResolved) ||
		errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrContributionLocked) ||
		errors.Is(err, ErrInvalidContribution) ||
		errors.Is(err, ErrNotCompleted) ||
		errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrInvalidReversal) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrContributionNotFound) ||
		errors.Is(err, ErrSuggestionNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}
