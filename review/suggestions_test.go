package review_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/review"
)

func pendingSuggestion(id string, contributionID generic.ContributionID, created time.Time) generic.EditSuggestion {
	return generic.EditSuggestion{
		ID:             generic.SuggestionID(id),
		ContributionID: contributionID,
		Field:          "title",
		OriginalValue:  "Old",
		SuggestedValue: "New",
		Status:         generic.SuggestionPending,
		ProposedBy:     "reviewer-1",
		CreatedAt:      created,
	}
}

func TestTracker_RespondAcceptAndReject(t *testing.T) {
	tracker := review.NewTracker(
		pendingSuggestion("s-1", "c-1", now),
		pendingSuggestion("s-2", "c-1", now.Add(time.Minute)),
	)
	assert.False(t, tracker.AllResolved("c-1"))
	assert.Equal(t, 2, tracker.PendingCount("c-1"))

	accepted, err := tracker.Respond("s-1", generic.ResponseAccept, "owner", "applied", now)
	require.NoError(t, err)
	assert.Equal(t, generic.SuggestionAccepted, accepted.Status)
	assert.Equal(t, generic.ActorID("owner"), accepted.RespondedBy)
	assert.Equal(t, "applied", accepted.ResponderNote)
	require.NotNil(t, accepted.RespondedAt)
	assert.False(t, tracker.AllResolved("c-1"))

	rejected, err := tracker.Respond("s-2", generic.ResponseReject, "owner", "not applicable", now)
	require.NoError(t, err)
	assert.Equal(t, generic.SuggestionRejected, rejected.Status)
	assert.True(t, tracker.AllResolved("c-1"))
}

func TestTracker_OnlyPendingCanBeAnswered(t *testing.T) {
	tracker := review.NewTracker(pendingSuggestion("s-1", "c-1", now))

	_, err := tracker.Respond("s-1", generic.ResponseAccept, "owner", "", now)
	require.NoError(t, err)

	_, err = tracker.Respond("s-1", generic.ResponseReject, "owner", "", now)
	assert.ErrorIs(t, err, generic.ErrSuggestionResolved)

	s, ok := tracker.Get("s-1")
	require.True(t, ok)
	assert.Equal(t, generic.SuggestionAccepted, s.Status)
}

func TestTracker_UnknownSuggestion(t *testing.T) {
	_, err := review.NewTracker().Respond("missing", generic.ResponseAccept, "owner", "", now)
	assert.ErrorIs(t, err, generic.ErrSuggestionNotFound)
	assert.True(t, generic.IsNotFound(err))
}

func TestTracker_InvalidResponse(t *testing.T) {
	tracker := review.NewTracker(pendingSuggestion("s-1", "c-1", now))

	_, err := tracker.Respond("s-1", "maybe", "owner", "", now)
	assert.ErrorIs(t, err, generic.ErrInvalidResponse)
	assert.Equal(t, 1, tracker.PendingCount("c-1"))
}

func TestTracker_NoSuggestionsIsResolved(t *testing.T) {
	assert.True(t, review.NewTracker().AllResolved("c-1"))
}

func TestTracker_ScopedPerContribution(t *testing.T) {
	tracker := review.NewTracker(
		pendingSuggestion("s-1", "c-1", now),
		pendingSuggestion("s-2", "c-2", now),
	)
	_, err := tracker.Respond("s-1", generic.ResponseAccept, "owner", "", now)
	require.NoError(t, err)

	assert.True(t, tracker.AllResolved("c-1"))
	assert.False(t, tracker.AllResolved("c-2"))
}

func TestTracker_AddKeepsExisting(t *testing.T) {
	tracker := review.NewTracker(pendingSuggestion("s-1", "c-1", now))
	_, err := tracker.Respond("s-1", generic.ResponseAccept, "owner", "", now)
	require.NoError(t, err)

	// re-adding the stored version must not reopen it
	tracker.Add(pendingSuggestion("s-1", "c-1", now), pendingSuggestion("s-0", "c-1", now.Add(-time.Hour)))

	all := tracker.For("c-1")
	require.Len(t, all, 2)
	assert.Equal(t, generic.SuggestionID("s-0"), all[0].ID)
	assert.Equal(t, generic.SuggestionAccepted, all[1].Status)
}
