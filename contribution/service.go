/*
Package contribution wires the pure review and incentive engines to storage.

PURPOSE:
  The engines in incentive/ and review/ operate on values. The Service loads
  those values from a Store, runs the engines, and writes the results back
  with compare-and-swap on the contribution status and revision, so two
  actors racing on the same contribution cannot both win.

  ┌────────┐   load    ┌──────────────┐  split   ┌───────────┐
  │ Store  │ ────────▶ │ review       │ ───────▶ │ incentive │
  │        │ ◀──────── │ .Machine     │ ◀─────── │ .Split    │
  └────────┘  CAS save └──────────────┘          └───────────┘
       │
       └──▶ Ledger (credits on completion)   AuditSink (every change)

FAILURE POLICY:
  A split that cannot be computed (no policy, uncovered tier, malformed
  authors) is a hard stop: nothing is persisted and the error is returned.
  Audit sinks are fire-and-forget and never fail an operation.

SEE ALSO:
  - store.go: Persistence interfaces
  - policies.go: Policy administration and previews
  - store/sqlite/: Production Store
  - generic/store/: In-memory Store for tests
*/
package contribution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp/contribution-engine/generic"
	"github.com/warp/contribution-engine/incentive"
	"github.com/warp/contribution-engine/review"
)

const defaultWorkers = 4

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store    Store
	Policies PolicyStore
	Ledger   generic.Ledger
	Machine  *review.Machine
	Audit    generic.AuditSink
	Logger   *slog.Logger

	// Workers bounds the fan out of RecalculateAll.
	Workers int

	Now   func() time.Time
	NewID func() string
}

// NewService builds a Service with default clock, ids and machine.
// audit and logger may be nil.
func NewService(store Store, policies PolicyStore, ledger generic.Ledger, audit generic.AuditSink, logger *slog.Logger) *Service {
	if audit == nil {
		audit = generic.NopSink{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		Store:    store,
		Policies: policies,
		Ledger:   ledger,
		Machine:  review.NewMachine(),
		Audit:    audit,
		Logger:   logger,
		Workers:  defaultWorkers,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

// Detail is a contribution with its authors.
type Detail struct {
	Contribution generic.Contribution
	Authors      []generic.Author
}

// =============================================================================
// CREATE / READ
// =============================================================================

type CreateInput struct {
	Type           generic.ContributionType
	Title          string
	OwnerID        generic.ActorID
	Quartile       *generic.Quartile
	ImpactTier     *generic.ImpactTier
	RequiresMentor bool
	Authors        []generic.Author
}

// Create files a new contribution in draft and computes its initial split.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Detail, error) {
	if err := validateFields(in.Type, in.Title, in.OwnerID, in.Quartile, in.ImpactTier); err != nil {
		return nil, err
	}

	now := s.Now()
	c := generic.Contribution{
		ID:             generic.ContributionID(s.NewID()),
		Type:           in.Type,
		Title:          strings.TrimSpace(in.Title),
		OwnerID:        in.OwnerID,
		Status:         generic.StatusDraft,
		Quartile:       in.Quartile,
		ImpactTier:     in.ImpactTier,
		RequiresMentor: in.RequiresMentor,
		CreatedAt:      now,
		UpdatedAt:      now,
		Revision:       1,
	}

	result, err := s.split(ctx, c, s.prepareAuthors(c.ID, in.Authors))
	if err != nil {
		return nil, err
	}
	c = result.Apply(c)

	if err := s.Store.CreateContribution(ctx, c, result.Authors); err != nil {
		return nil, fmt.Errorf("failed to create contribution: %w", err)
	}

	s.Logger.Info("contribution created", "id", c.ID, "type", c.Type, "owner", c.OwnerID, "pool", c.PoolAmount.Value.String())
	s.notifySplit(ctx, c, in.OwnerID, generic.RoleContributor)
	return &Detail{Contribution: c, Authors: result.Authors}, nil
}

func (s *Service) Get(ctx context.Context, id generic.ContributionID) (*Detail, error) {
	c, err := s.Store.GetContribution(ctx, id)
	if err != nil {
		return nil, err
	}
	authors, err := s.Store.Authors(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load authors: %w", err)
	}
	return &Detail{Contribution: *c, Authors: authors}, nil
}

func (s *Service) List(ctx context.Context, filter Filter) ([]generic.Contribution, error) {
	return s.Store.ListContributions(ctx, filter)
}

func (s *Service) History(ctx context.Context, id generic.ContributionID) ([]generic.StatusHistory, error) {
	if _, err := s.Store.GetContribution(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.History(ctx, id)
}

func (s *Service) Suggestions(ctx context.Context, id generic.ContributionID) ([]generic.EditSuggestion, error) {
	if _, err := s.Store.GetContribution(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.Suggestions(ctx, id)
}

// =============================================================================
// EDIT
// =============================================================================

// UpdateInput replaces the owner-editable fields. Nil Authors keeps the
// current list; nil Quartile / ImpactTier clear them.
type UpdateInput struct {
	Title      string
	Quartile   *generic.Quartile
	ImpactTier *generic.ImpactTier
	Authors    []generic.Author
}

// Update edits a contribution in draft or changes_required and re-splits.
// Nothing is written if the split fails.
func (s *Service) Update(ctx context.Context, id generic.ContributionID, actor generic.ActorID, in UpdateInput) (*Detail, error) {
	return s.edit(ctx, id, actor, in.Authors, func(c *generic.Contribution) error {
		title := strings.TrimSpace(in.Title)
		if title == "" {
			title = c.Title
		}
		if err := validateFields(c.Type, title, c.OwnerID, in.Quartile, in.ImpactTier); err != nil {
			return err
		}
		c.Title = title
		c.Quartile = in.Quartile
		c.ImpactTier = in.ImpactTier
		return nil
	})
}

// UpdateAuthors replaces the author list and re-splits.
func (s *Service) UpdateAuthors(ctx context.Context, id generic.ContributionID, actor generic.ActorID, authors []generic.Author) (*Detail, error) {
	if authors == nil {
		authors = []generic.Author{}
	}
	return s.edit(ctx, id, actor, authors, func(*generic.Contribution) error { return nil })
}

func (s *Service) edit(ctx context.Context, id generic.ContributionID, actor generic.ActorID, authors []generic.Author, mutate func(*generic.Contribution) error) (*Detail, error) {
	current, err := s.Store.GetContribution(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.IsEditable() {
		return nil, fmt.Errorf("%w: %s is %s", generic.ErrContributionLocked, id, current.Status)
	}

	if authors == nil {
		authors, err = s.Store.Authors(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load authors: %w", err)
		}
	} else {
		authors = s.prepareAuthors(id, authors)
	}

	next := *current
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.Now()
	next.Revision = current.Revision + 1

	result, err := s.split(ctx, next, authors)
	if err != nil {
		return nil, err
	}
	next = result.Apply(next)

	if err := s.Store.SaveSplit(ctx, ExpectOf(*current), next, result.Authors); err != nil {
		return nil, err
	}

	s.Logger.Info("contribution edited", "id", id, "actor", actor, "pool", next.PoolAmount.Value.String())
	s.notifySplit(ctx, next, actor, generic.RoleContributor)
	return &Detail{Contribution: next, Authors: result.Authors}, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

type TransitionInput struct {
	ExpectedStatus generic.Status
	ActorID        generic.ActorID
	Role           generic.ActorRole
	Action         generic.Action
	Comment        string
	Suggestions    []generic.SuggestionDraft
}

type TransitionOutcome struct {
	Contribution   generic.Contribution
	Authors        []generic.Author
	History        generic.StatusHistory
	NewSuggestions []generic.EditSuggestion
	Credited       []generic.Transaction
}

// Transition moves a contribution through the review pipeline.
//
// Submit and resubmit re-split before saving; a failed split aborts the
// transition. Finance approval credits every author with a share. If the
// stored contribution was written by anyone else after it was read here, the
// result is an *generic.InvalidTransitionError whose Cause is
// generic.ErrConcurrentModification.
//
// When crediting fails after completion was saved, the outcome is returned
// together with the error; Credit retries safely.
func (s *Service) Transition(ctx context.Context, id generic.ContributionID, in TransitionInput) (*TransitionOutcome, error) {
	current, err := s.Store.GetContribution(ctx, id)
	if err != nil {
		return nil, err
	}

	var guard review.SuggestionGuard
	if in.Action == generic.ActionResubmit {
		suggestions, err := s.Store.Suggestions(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load suggestions: %w", err)
		}
		guard = review.NewTracker(suggestions...)
	}

	at := s.Now()
	result, err := s.Machine.Transition(*current, review.TransitionRequest{
		ExpectedStatus: in.ExpectedStatus,
		ActorID:        in.ActorID,
		Role:           in.Role,
		Action:         in.Action,
		Comment:        in.Comment,
		Suggestions:    in.Suggestions,
		At:             at,
	}, guard)
	if err != nil {
		return nil, err
	}

	next := result.Contribution
	next.Revision = current.Revision + 1
	authors, err := s.Store.Authors(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load authors: %w", err)
	}

	var changedAuthors []generic.Author
	if result.Recalculate {
		split, err := s.split(ctx, next, authors)
		if err != nil {
			return nil, err
		}
		next = split.Apply(next)
		authors = split.Authors
		changedAuthors = split.Authors
	}

	err = s.Store.ApplyTransition(ctx, Change{
		Expected:     ExpectOf(*current),
		Contribution: next,
		Authors:      changedAuthors,
		History:      result.History,
		Suggestions:  result.NewSuggestions,
	})
	if errors.Is(err, generic.ErrConcurrentModification) {
		return nil, &generic.InvalidTransitionError{
			ContributionID: id,
			From:           current.Status,
			Role:           in.Role,
			Action:         in.Action,
			Reason:         "status changed concurrently",
			Cause:          err,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save transition: %w", err)
	}

	s.Logger.Info("contribution transitioned",
		"id", id, "from", current.Status, "to", next.Status,
		"action", in.Action, "actor", in.ActorID, "role", in.Role)

	s.notify(ctx, generic.AuditEntry{
		ActorID:        in.ActorID,
		ActorRole:      in.Role,
		Action:         generic.AuditTransition,
		ContributionID: id,
		FromStatus:     current.Status,
		ToStatus:       next.Status,
		Totals:         totals(next),
		Comment:        in.Comment,
	})
	if result.Recalculate {
		s.notifySplit(ctx, next, in.ActorID, in.Role)
	}

	outcome := &TransitionOutcome{
		Contribution:   next,
		Authors:        authors,
		History:        result.History,
		NewSuggestions: result.NewSuggestions,
	}

	if result.Credit {
		credited, err := s.credit(ctx, next, authors, in.ActorID, at)
		if err != nil {
			s.Logger.Error("crediting failed after completion", "id", id, "error", err)
			return outcome, fmt.Errorf("contribution %s completed but crediting failed: %w", id, err)
		}
		outcome.Credited = credited
	}
	return outcome, nil
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

// RespondToSuggestion accepts or rejects a pending suggestion. Only possible
// while the contribution is in changes_required.
func (s *Service) RespondToSuggestion(ctx context.Context, id generic.SuggestionID, response generic.SuggestionResponse, responder generic.ActorID, note string) (*generic.EditSuggestion, error) {
	suggestion, err := s.Store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.Store.GetContribution(ctx, suggestion.ContributionID)
	if err != nil {
		return nil, err
	}
	if c.Status != generic.StatusChangesRequired {
		return nil, fmt.Errorf("%w: suggestions of %s can only be answered in %s, status is %s",
			generic.ErrContributionLocked, c.ID, generic.StatusChangesRequired, c.Status)
	}

	answered, err := review.NewTracker(*suggestion).Respond(id, response, responder, note, s.Now())
	if err != nil {
		return nil, err
	}
	if err := s.Store.ResolveSuggestion(ctx, *answered); err != nil {
		return nil, err
	}

	s.notify(ctx, generic.AuditEntry{
		ActorID:        responder,
		ActorRole:      generic.RoleContributor,
		Action:         generic.AuditSuggestion,
		ContributionID: c.ID,
		FromStatus:     c.Status,
		ToStatus:       c.Status,
		Comment:        fmt.Sprintf("%s %s", answered.Status, answered.Field),
	})
	return answered, nil
}

// AllSuggestionsResolved reports whether the contribution may be resubmitted
// as far as suggestions are concerned.
func (s *Service) AllSuggestionsResolved(ctx context.Context, id generic.ContributionID) (bool, error) {
	suggestions, err := s.Suggestions(ctx, id)
	if err != nil {
		return false, err
	}
	return review.NewTracker(suggestions...).AllResolved(id), nil
}

// =============================================================================
// RECALCULATION
// =============================================================================

// Recalculate re-resolves the policy and re-splits an open contribution.
// Terminal contributions keep the split they were decided with.
func (s *Service) Recalculate(ctx context.Context, id generic.ContributionID, actor generic.ActorID) (*Detail, error) {
	current, err := s.Store.GetContribution(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", generic.ErrContributionLocked, id, current.Status)
	}
	authors, err := s.Store.Authors(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load authors: %w", err)
	}

	result, err := s.split(ctx, *current, authors)
	if err != nil {
		return nil, err
	}
	next := result.Apply(*current)
	next.UpdatedAt = s.Now()
	next.Revision = current.Revision + 1

	if err := s.Store.SaveSplit(ctx, ExpectOf(*current), next, result.Authors); err != nil {
		return nil, err
	}

	s.notifySplit(ctx, next, actor, "")
	return &Detail{Contribution: next, Authors: result.Authors}, nil
}

// RecalcReport summarizes a RecalculateAll run.
type RecalcReport struct {
	Checked int
	Updated int
	Failed  map[generic.ContributionID]string
}

// RecalculateAll re-splits every open contribution, optionally of one type.
// Individual failures are reported, not returned; only cancellation aborts.
func (s *Service) RecalculateAll(ctx context.Context, t *generic.ContributionType, actor generic.ActorID) (*RecalcReport, error) {
	open, err := s.Store.ListContributions(ctx, Filter{Type: t, OpenOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}

	report := &RecalcReport{Checked: len(open), Failed: make(map[generic.ContributionID]string)}
	var mu sync.Mutex

	workers := s.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, c := range open {
		id := c.ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := s.Recalculate(gctx, id, actor)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[id] = err.Error()
				return nil
			}
			report.Updated++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	s.Logger.Info("recalculation finished", "checked", report.Checked, "updated", report.Updated, "failed", len(report.Failed))
	return report, nil
}

// =============================================================================
// CREDITS
// =============================================================================

// CreditSummary is the ledger view of one contribution.
type CreditSummary struct {
	Transactions []generic.Transaction
	Amount       generic.Amount
	Points       generic.Amount
}

func (s *Service) Credits(ctx context.Context, id generic.ContributionID) (*CreditSummary, error) {
	if _, err := s.Store.GetContribution(ctx, id); err != nil {
		return nil, err
	}
	txs, err := s.Ledger.Transactions(ctx, id)
	if err != nil {
		return nil, err
	}
	amount, points, err := s.Ledger.Totals(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CreditSummary{Transactions: txs, Amount: amount, Points: points}, nil
}

// Credit writes the completion credits of a completed contribution. Safe to
// repeat: credits already in the ledger are returned instead of duplicated.
func (s *Service) Credit(ctx context.Context, id generic.ContributionID, actor generic.ActorID) ([]generic.Transaction, error) {
	c, err := s.Store.GetContribution(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != generic.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", generic.ErrNotCompleted, id, c.Status)
	}
	authors, err := s.Store.Authors(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load authors: %w", err)
	}
	return s.credit(ctx, *c, authors, actor, s.Now())
}

func (s *Service) credit(ctx context.Context, c generic.Contribution, authors []generic.Author, actor generic.ActorID, at time.Time) ([]generic.Transaction, error) {
	txs := incentive.CreditTransactions(c, authors, actor, at)
	if len(txs) == 0 {
		return nil, nil
	}

	err := s.Ledger.AppendBatch(ctx, txs)
	if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
		s.Logger.Info("contribution already credited", "id", c.ID)
		return s.Ledger.Transactions(ctx, c.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record credits: %w", err)
	}

	s.notify(ctx, generic.AuditEntry{
		ActorID:        actor,
		ActorRole:      generic.RoleFinance,
		Action:         generic.AuditCredit,
		ContributionID: c.ID,
		FromStatus:     c.Status,
		ToStatus:       c.Status,
		Totals:         totals(c),
		Comment:        fmt.Sprintf("%d authors credited", len(txs)),
	})
	return txs, nil
}

type ReverseInput struct {
	TransactionID generic.TransactionID
	ActorID       generic.ActorID
	Role          generic.ActorRole
	Reason        string
}

// Reverse cancels one completion credit with an opposite-signed ledger entry.
// Only finance may reverse, a reason is required, and each credit can be
// reversed once. The contribution keeps its status and split.
func (s *Service) Reverse(ctx context.Context, id generic.ContributionID, in ReverseInput) (*generic.Transaction, error) {
	if in.Role != generic.RoleFinance {
		return nil, fmt.Errorf("%w: %s cannot reverse credits", generic.ErrForbidden, in.Role)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", generic.ErrInvalidReversal)
	}

	c, err := s.Store.GetContribution(ctx, id)
	if err != nil {
		return nil, err
	}
	txs, err := s.Ledger.Transactions(ctx, id)
	if err != nil {
		return nil, err
	}

	var original *generic.Transaction
	for i := range txs {
		if txs[i].ID == in.TransactionID {
			original = &txs[i]
			break
		}
	}
	if original == nil {
		return nil, fmt.Errorf("%w: %s on %s", generic.ErrTransactionNotFound, in.TransactionID, id)
	}
	if original.Type != generic.TxCredit {
		return nil, fmt.Errorf("%w: %s is a %s", generic.ErrInvalidReversal, original.ID, original.Type)
	}

	reversal := incentive.Reversal(*original, in.ActorID, reason, s.Now())
	err = s.Ledger.Append(ctx, reversal)
	if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
		return nil, fmt.Errorf("%w: %s already reversed", generic.ErrInvalidReversal, original.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record reversal: %w", err)
	}

	s.Logger.Info("credit reversed", "id", id, "transaction", original.ID, "actor", in.ActorID)
	s.notify(ctx, generic.AuditEntry{
		ActorID:        in.ActorID,
		ActorRole:      in.Role,
		Action:         generic.AuditReversal,
		ContributionID: id,
		FromStatus:     c.Status,
		ToStatus:       c.Status,
		Totals:         totals(*c),
		Comment:        fmt.Sprintf("%s for %s: %s", original.ID, original.AuthorName, reason),
	})
	return &reversal, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// split resolves the policy on the contribution's reference date and
// distributes the pool.
func (s *Service) split(ctx context.Context, c generic.Contribution, authors []generic.Author) (*incentive.SplitResult, error) {
	policies, err := s.Policies.PoliciesByType(ctx, c.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	return incentive.Preview(policies, c, authors)
}

// prepareAuthors assigns ids and the owning contribution to incoming authors.
func (s *Service) prepareAuthors(id generic.ContributionID, authors []generic.Author) []generic.Author {
	out := make([]generic.Author, len(authors))
	for i, a := range authors {
		if a.ID == "" {
			a.ID = generic.AuthorID(s.NewID())
		}
		a.ContributionID = id
		a.Name = strings.TrimSpace(a.Name)
		out[i] = a
	}
	return out
}

func (s *Service) notify(ctx context.Context, entry generic.AuditEntry) {
	if entry.ID == "" {
		entry.ID = s.NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.Now()
	}
	s.Audit.Notify(ctx, entry)
}

func (s *Service) notifySplit(ctx context.Context, c generic.Contribution, actor generic.ActorID, role generic.ActorRole) {
	s.notify(ctx, generic.AuditEntry{
		ActorID:        actor,
		ActorRole:      role,
		Action:         generic.AuditSplit,
		ContributionID: c.ID,
		FromStatus:     c.Status,
		ToStatus:       c.Status,
		Totals:         totals(c),
	})
}

func totals(c generic.Contribution) *generic.AuditTotals {
	return &generic.AuditTotals{
		PoolAmount: c.PoolAmount,
		PoolPoints: c.PoolPoints,
		PolicyID:   c.PolicyID,
	}
}

func validateFields(t generic.ContributionType, title string, owner generic.ActorID, q *generic.Quartile, tier *generic.ImpactTier) error {
	var problems []string
	if !t.Valid() {
		problems = append(problems, fmt.Sprintf("unknown type %q", t))
	}
	if strings.TrimSpace(title) == "" {
		problems = append(problems, "title is required")
	}
	if owner == "" {
		problems = append(problems, "owner is required")
	}
	if q != nil && !q.Valid() {
		problems = append(problems, fmt.Sprintf("unknown quartile %q", *q))
	}
	if tier != nil && !tier.Valid() {
		problems = append(problems, fmt.Sprintf("unknown impact tier %q", *tier))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", generic.ErrInvalidContribution, strings.Join(problems, "; "))
	}
	return nil
}
