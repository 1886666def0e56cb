package contribution

import (
	"context"
	"fmt"

	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/incentive"
)

// =============================================================================
// POLICY ADMINISTRATION
// =============================================================================

// CreatePolicy validates and stores a new policy version. Open contributions
// pick it up on their next recalculation.
func (s *Service) CreatePolicy(ctx context.Context, actor generic.ActorID, p incentive.Policy) (*incentive.Policy, error) {
	if p.Version == 0 {
		p.Version = 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.Now()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.Policies.SavePolicy(ctx, p); err != nil {
		return nil, err
	}

	s.Logger.Info("policy created", "id", p.ID, "type", p.ContributionType, "version", p.Version, "effective_from", p.EffectiveFrom.String())
	s.notify(ctx, generic.AuditEntry{
		ActorID: actor,
		Action:  generic.AuditPolicyChanged,
		Comment: fmt.Sprintf("created policy %s v%d for %s effective %s", p.ID, p.Version, p.ContributionType, p.EffectiveFrom),
	})
	return &p, nil
}

// DeactivatePolicy takes a policy out of resolution. The row is kept so
// contributions that reference it stay explainable.
func (s *Service) DeactivatePolicy(ctx context.Context, actor generic.ActorID, id generic.PolicyID) (*incentive.Policy, error) {
	if err := s.Policies.DeactivatePolicy(ctx, id); err != nil {
		return nil, err
	}
	p, err := s.Policies.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("policy deactivated", "id", id, "actor", actor)
	s.notify(ctx, generic.AuditEntry{
		ActorID: actor,
		Action:  generic.AuditPolicyChanged,
		Comment: fmt.Sprintf("deactivated policy %s", id),
	})
	return p, nil
}

func (s *Service) GetPolicy(ctx context.Context, id generic.PolicyID) (*incentive.Policy, error) {
	return s.Policies.GetPolicy(ctx, id)
}

func (s *Service) ListPolicies(ctx context.Context) ([]incentive.Policy, error) {
	return s.Policies.ListPolicies(ctx)
}

// ResolvePolicy returns the policy that applies to t on at.
func (s *Service) ResolvePolicy(ctx context.Context, t generic.ContributionType, at generic.TimePoint) (*incentive.Policy, error) {
	policies, err := s.Policies.PoliciesByType(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	return incentive.ResolvePolicy(policies, t, at)
}

// Preview splits a hypothetical contribution without storing anything.
func (s *Service) Preview(ctx context.Context, c generic.Contribution, authors []generic.Author) (*incentive.SplitResult, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.Now()
	}
	return s.split(ctx, c, authors)
}
