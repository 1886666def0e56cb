// Package store provides in-memory implementations of the persistence
// interfaces, for tests and the CLI.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/contribution-engine/contribution"
	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/incentive"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.Store, generic.AuditLog, contribution.Store and
// contribution.PolicyStore. Every method copies values in and out so callers
// never share state with the store.
type Memory struct {
	mu sync.RWMutex

	transactions map[generic.ContributionID][]generic.Transaction
	idempotency  map[string]bool

	contributions map[generic.ContributionID]generic.Contribution
	authors       map[generic.ContributionID][]generic.Author
	history       map[generic.ContributionID][]generic.StatusHistory
	suggestions   map[generic.SuggestionID]generic.EditSuggestion
	policies      map[generic.PolicyID]incentive.Policy
	audit         []generic.AuditEntry
}

var (
	_ generic.Store            = (*Memory)(nil)
	_ generic.AuditLog         = (*Memory)(nil)
	_ contribution.Store       = (*Memory)(nil)
	_ contribution.PolicyStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		transactions:  make(map[generic.ContributionID][]generic.Transaction),
		idempotency:   make(map[string]bool),
		contributions: make(map[generic.ContributionID]generic.Contribution),
		authors:       make(map[generic.ContributionID][]generic.Author),
		history:       make(map[generic.ContributionID][]generic.StatusHistory),
		suggestions:   make(map[generic.SuggestionID]generic.EditSuggestion),
		policies:      make(map[generic.PolicyID]incentive.Policy),
	}
}

// =============================================================================
// CREDIT LEDGER (generic.Store)
// =============================================================================

// Append adds a single transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(tx)
	return nil
}

// AppendBatch adds multiple transactions atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first (atomic check)
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[tx.IdempotencyKey] || seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}

	for _, tx := range txs {
		m.appendLocked(tx)
	}
	return nil
}

func (m *Memory) appendLocked(tx generic.Transaction) {
	txs := m.transactions[tx.ContributionID]

	// Keep chronological order even if callers append out of order
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].CreatedAt.After(tx.CreatedAt)
	})
	txs = append(txs, generic.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.ContributionID] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, contributionID generic.ContributionID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.Transaction, len(m.transactions[contributionID]))
	copy(result, m.transactions[contributionID])
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// CONTRIBUTIONS (contribution.Store)
// =============================================================================

func (m *Memory) CreateContribution(_ context.Context, c generic.Contribution, authors []generic.Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.contributions[c.ID]; exists {
		return fmt.Errorf("contribution %s already exists", c.ID)
	}
	m.contributions[c.ID] = c
	m.authors[c.ID] = sortedAuthors(authors)
	return nil
}

func (m *Memory) GetContribution(_ context.Context, id generic.ContributionID) (*generic.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contributions[id]
	if !ok {
		return nil, generic.ErrContributionNotFound
	}
	return &c, nil
}

func (m *Memory) ListContributions(_ context.Context, filter contribution.Filter) ([]generic.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Contribution
	for _, c := range m.contributions {
		if filter.Matches(c) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *Memory) Authors(_ context.Context, id generic.ContributionID) ([]generic.Author, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.contributions[id]; !ok {
		return nil, generic.ErrContributionNotFound
	}
	return sortedAuthors(m.authors[id]), nil
}

func (m *Memory) SaveSplit(_ context.Context, expected contribution.Expect, c generic.Contribution, authors []generic.Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(c.ID, expected); err != nil {
		return err
	}
	c.Revision = expected.Revision + 1
	m.contributions[c.ID] = c
	m.authors[c.ID] = sortedAuthors(authors)
	return nil
}

func (m *Memory) ApplyTransition(_ context.Context, change contribution.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := change.Contribution.ID
	if err := m.checkLocked(id, change.Expected); err != nil {
		return err
	}
	for _, s := range change.Suggestions {
		if _, exists := m.suggestions[s.ID]; exists {
			return fmt.Errorf("suggestion %s already exists", s.ID)
		}
	}

	c := change.Contribution
	c.Revision = change.Expected.Revision + 1
	m.contributions[id] = c
	if change.Authors != nil {
		m.authors[id] = sortedAuthors(change.Authors)
	}
	m.history[id] = append(m.history[id], change.History)
	for _, s := range change.Suggestions {
		m.suggestions[s.ID] = s
	}
	return nil
}

func (m *Memory) checkLocked(id generic.ContributionID, expected contribution.Expect) error {
	current, ok := m.contributions[id]
	if !ok {
		return generic.ErrContributionNotFound
	}
	if !expected.Matches(current) {
		return generic.ErrConcurrentModification
	}
	return nil
}

func (m *Memory) History(_ context.Context, id generic.ContributionID) ([]generic.StatusHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.StatusHistory, len(m.history[id]))
	copy(result, m.history[id])
	return result, nil
}

func (m *Memory) Suggestions(_ context.Context, id generic.ContributionID) ([]generic.EditSuggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.EditSuggestion
	for _, s := range m.suggestions {
		if s.ContributionID == id {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) GetSuggestion(_ context.Context, id generic.SuggestionID) (*generic.EditSuggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.suggestions[id]
	if !ok {
		return nil, generic.ErrSuggestionNotFound
	}
	return &s, nil
}

func (m *Memory) ResolveSuggestion(_ context.Context, s generic.EditSuggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.suggestions[s.ID]
	if !ok {
		return generic.ErrSuggestionNotFound
	}
	if !current.IsPending() {
		return generic.ErrSuggestionResolved
	}
	m.suggestions[s.ID] = s
	return nil
}

func sortedAuthors(authors []generic.Author) []generic.Author {
	return incentive.SortByOrder(authors)
}

// =============================================================================
// POLICIES (contribution.PolicyStore)
// =============================================================================

func (m *Memory) SavePolicy(_ context.Context, p incentive.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.policies[p.ID]; exists {
		return &generic.InvalidPolicyError{PolicyID: p.ID, Problems: []string{"policy id already exists"}}
	}
	m.policies[p.ID] = clonePolicy(p)
	return nil
}

func (m *Memory) GetPolicy(_ context.Context, id generic.PolicyID) (*incentive.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrPolicyNotFound, id)
	}
	p = clonePolicy(p)
	return &p, nil
}

func (m *Memory) PoliciesByType(_ context.Context, t generic.ContributionType) ([]incentive.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []incentive.Policy
	for _, p := range m.policies {
		if p.ContributionType == t {
			result = append(result, clonePolicy(p))
		}
	}
	sortPolicies(result)
	return result, nil
}

func (m *Memory) ListPolicies(_ context.Context) ([]incentive.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]incentive.Policy, 0, len(m.policies))
	for _, p := range m.policies {
		result = append(result, clonePolicy(p))
	}
	sortPolicies(result)
	return result, nil
}

func (m *Memory) DeactivatePolicy(_ context.Context, id generic.PolicyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.policies[id]
	if !ok {
		return fmt.Errorf("%w: %s", generic.ErrPolicyNotFound, id)
	}
	p.IsActive = false
	m.policies[id] = p
	return nil
}

func clonePolicy(p incentive.Policy) incentive.Policy {
	if p.TierMultipliers != nil {
		tiers := make(map[string]decimal.Decimal, len(p.TierMultipliers))
		for k, v := range p.TierMultipliers {
			tiers[k] = v
		}
		p.TierMultipliers = tiers
	}
	return p
}

func sortPolicies(ps []incentive.Policy) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].ContributionType != ps[j].ContributionType {
			return ps[i].ContributionType < ps[j].ContributionType
		}
		if !ps[i].EffectiveFrom.Equal(ps[j].EffectiveFrom) {
			return ps[i].EffectiveFrom.Before(ps[j].EffectiveFrom)
		}
		return ps[i].ID < ps[j].ID
	})
}

// =============================================================================
// AUDIT LOG (generic.AuditLog)
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

// QueryAudit returns matching entries, newest first.
func (m *Memory) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if !auditMatches(e, filter) {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func auditMatches(e generic.AuditEntry, f generic.AuditFilter) bool {
	if f.ContributionID != nil && e.ContributionID != *f.ContributionID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if len(f.Actions) > 0 {
		for _, a := range f.Actions {
			if a == e.Action {
				return true
			}
		}
		return false
	}
	return true
}

// Reset drops every record. Used by the demo reset endpoint.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := NewMemory()
	m.transactions = fresh.transactions
	m.idempotency = fresh.idempotency
	m.contributions = fresh.contributions
	m.authors = fresh.authors
	m.history = fresh.history
	m.suggestions = fresh.suggestions
	m.policies = fresh.policies
	m.audit = nil
}
