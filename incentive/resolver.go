package incentive

import (
	"github.com/warp/contribution-engine/generic"
)

// ResolvePolicy selects the single policy that applies to a contribution type
// on a reference date.
//
// Candidates must match the type, be active and have at inside their effective
// window. The latest EffectiveFrom wins; ties go to the higher Version, then
// to the lexically smaller ID, so the result does not depend on the order of
// policies.
//
// Returns *generic.PolicyNotFoundError when nothing matches. Callers must treat
// that as a hard stop: there is no fallback policy.
func ResolvePolicy(policies []Policy, t generic.ContributionType, at generic.TimePoint) (*Policy, error) {
	var best *Policy
	for i := range policies {
		p := &policies[i]
		if p.ContributionType != t || !p.IsActive || !p.EffectiveOn(at) {
			continue
		}
		if best == nil || supersedes(p, best) {
			best = p
		}
	}

	if best == nil {
		return nil, &generic.PolicyNotFoundError{Type: t, At: at}
	}
	resolved := *best
	return &resolved, nil
}

// supersedes reports whether a takes precedence over b.
func supersedes(a, b *Policy) bool {
	if !a.EffectiveFrom.Equal(b.EffectiveFrom) {
		return a.EffectiveFrom.After(b.EffectiveFrom)
	}
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	return a.ID < b.ID
}
