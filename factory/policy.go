/*
Package factory provides JSON/YAML to Go policy conversion.

PURPOSE:
  Converts policy documents into validated incentive.Policy values. The
  research office maintains incentive rules as files (or posts them through
  the API) and the factory turns them into the structs the engine resolves
  and splits with.

DOCUMENT SCHEMA:
  A single policy:

    {
      "id": "ja-2025",
      "name": "Journal articles 2025",
      "contribution_type": "journal_article",
      "version": 1,
      "effective_from": "2025-01-01",
      "first_author_pct": 40,
      "corresponding_author_pct": 40,
      "base_amount": 200000,
      "base_points": 100,
      "tier_multipliers": {"Q1": 1, "Q2": 0.75, "top_1": 2}
    }

  or a set, usually in YAML:

    policies:
      - id: ja-2025
        contribution_type: journal_article
        ...

  YAML is a superset of JSON, so ParseDocument accepts either encoding.

DEFAULTS:
  - version: 1
  - is_active: true
  - effective_to: open-ended

USAGE:
  factory := NewPolicyFactory()
  policies, err := factory.LoadFile("policies.yaml")

  policy, err := factory.ParsePolicy(jsonString)

SEE ALSO:
  - incentive/policy.go: Policy type definition and Validate
  - presets.go: Ready-made documents for the common contribution types
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/incentive"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// PolicyJSON is the document representation of a policy.
type PolicyJSON struct {
	ID                     string             `json:"id" yaml:"id"`
	Name                   string             `json:"name,omitempty" yaml:"name,omitempty"`
	ContributionType       string             `json:"contribution_type" yaml:"contribution_type"`
	Version                int                `json:"version,omitempty" yaml:"version,omitempty"`
	EffectiveFrom          string             `json:"effective_from" yaml:"effective_from"` // YYYY-MM-DD
	EffectiveTo            string             `json:"effective_to,omitempty" yaml:"effective_to,omitempty"`
	FirstAuthorPct         float64            `json:"first_author_pct" yaml:"first_author_pct"`
	CorrespondingAuthorPct float64            `json:"corresponding_author_pct" yaml:"corresponding_author_pct"`
	BaseAmount             float64            `json:"base_amount" yaml:"base_amount"`
	BasePoints             float64            `json:"base_points" yaml:"base_points"`
	TierMultipliers        map[string]float64 `json:"tier_multipliers,omitempty" yaml:"tier_multipliers,omitempty"`
	IsActive               *bool              `json:"is_active,omitempty" yaml:"is_active,omitempty"` // default true
}

// PolicySet is a document holding several policies.
type PolicySet struct {
	Policies []PolicyJSON `json:"policies" yaml:"policies"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts policy documents to incentive policies.
type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a single JSON policy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (*incentive.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// ParseDocument parses a JSON or YAML document holding either one policy or
// a `policies:` list. Every policy is validated; the first failure aborts.
func (f *PolicyFactory) ParseDocument(data []byte) ([]incentive.Policy, error) {
	var top map[string]any
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("failed to parse policy document: %w", err)
	}

	var docs []PolicyJSON
	if _, ok := top["policies"]; ok {
		var set PolicySet
		if err := yaml.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("failed to parse policy set: %w", err)
		}
		docs = set.Policies
	} else {
		var pj PolicyJSON
		if err := yaml.Unmarshal(data, &pj); err != nil {
			return nil, fmt.Errorf("failed to parse policy: %w", err)
		}
		docs = []PolicyJSON{pj}
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("policy document contains no policies")
	}

	seen := make(map[string]bool, len(docs))
	policies := make([]incentive.Policy, 0, len(docs))
	for i, pj := range docs {
		if seen[pj.ID] {
			return nil, fmt.Errorf("policy %d: duplicate id %q", i, pj.ID)
		}
		seen[pj.ID] = true

		p, err := f.FromJSON(pj)
		if err != nil {
			return nil, fmt.Errorf("policy %d: %w", i, err)
		}
		policies = append(policies, *p)
	}
	return policies, nil
}

// LoadFile reads and parses a policy document from disk.
func (f *PolicyFactory) LoadFile(path string) ([]incentive.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return f.ParseDocument(data)
}

// FromJSON converts a document into a validated Policy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (*incentive.Policy, error) {
	var problems []string

	from, err := generic.ParseTimePoint(pj.EffectiveFrom)
	if err != nil && pj.EffectiveFrom != "" {
		problems = append(problems, fmt.Sprintf("effective_from %q is not a date", pj.EffectiveFrom))
	}

	var to *generic.TimePoint
	if pj.EffectiveTo != "" {
		t, err := generic.ParseTimePoint(pj.EffectiveTo)
		if err != nil {
			problems = append(problems, fmt.Sprintf("effective_to %q is not a date", pj.EffectiveTo))
		} else {
			to = &t
		}
	}

	if len(problems) > 0 {
		return nil, &generic.InvalidPolicyError{PolicyID: generic.PolicyID(pj.ID), Problems: problems}
	}

	version := pj.Version
	if version == 0 {
		version = 1
	}
	active := true
	if pj.IsActive != nil {
		active = *pj.IsActive
	}

	policy := &incentive.Policy{
		ID:                     generic.PolicyID(pj.ID),
		Name:                   pj.Name,
		ContributionType:       generic.ContributionType(pj.ContributionType),
		Version:                version,
		EffectiveFrom:          from,
		EffectiveTo:            to,
		FirstAuthorPct:         decimal.NewFromFloat(pj.FirstAuthorPct),
		CorrespondingAuthorPct: decimal.NewFromFloat(pj.CorrespondingAuthorPct),
		BaseAmount:             generic.NewAmount(pj.BaseAmount, generic.UnitCurrency),
		BasePoints:             generic.NewAmount(pj.BasePoints, generic.UnitPoints),
		IsActive:               active,
	}
	if len(pj.TierMultipliers) > 0 {
		policy.TierMultipliers = make(map[string]decimal.Decimal, len(pj.TierMultipliers))
		for tier, m := range pj.TierMultipliers {
			policy.TierMultipliers[tier] = decimal.NewFromFloat(m)
		}
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

// ToJSON converts a Policy to its document form.
func (f *PolicyFactory) ToJSON(p incentive.Policy) PolicyJSON {
	active := p.IsActive
	pj := PolicyJSON{
		ID:                     string(p.ID),
		Name:                   p.Name,
		ContributionType:       string(p.ContributionType),
		Version:                p.Version,
		EffectiveFrom:          p.EffectiveFrom.String(),
		FirstAuthorPct:         p.FirstAuthorPct.InexactFloat64(),
		CorrespondingAuthorPct: p.CorrespondingAuthorPct.InexactFloat64(),
		BaseAmount:             p.BaseAmount.Value.InexactFloat64(),
		BasePoints:             p.BasePoints.Value.InexactFloat64(),
		IsActive:               &active,
	}
	if p.EffectiveTo != nil {
		pj.EffectiveTo = p.EffectiveTo.String()
	}
	if len(p.TierMultipliers) > 0 {
		pj.TierMultipliers = make(map[string]float64, len(p.TierMultipliers))
		for tier, m := range p.TierMultipliers {
			pj.TierMultipliers[tier] = m.InexactFloat64()
		}
	}
	return pj
}

// ToYAML renders policies as a `policies:` document, sorted by ID.
func (f *PolicyFactory) ToYAML(policies []incentive.Policy) ([]byte, error) {
	set := PolicySet{Policies: make([]PolicyJSON, 0, len(policies))}
	for _, p := range policies {
		set.Policies = append(set.Policies, f.ToJSON(p))
	}
	sort.Slice(set.Policies, func(i, j int) bool { return set.Policies[i].ID < set.Policies[j].ID })
	return yaml.Marshal(set)
}
