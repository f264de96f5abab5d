// Package archive implements the archive-first contribution store: identity
// by content fingerprint, the status lifecycle, and full-history queries.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	"github.com/Inscribe-Network/archive_layer/internal/app/domain/ledger"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage"
	"github.com/Inscribe-Network/archive_layer/pkg/logger"
)

var (
	// ErrInvalidTransition is returned when the requested status edge does
	// not exist in the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrMetricsAlreadySet is returned when metrics are attached a second
	// time. Metrics are write-once.
	ErrMetricsAlreadySet = errors.New("metrics already set")
)

// Service owns contribution identity and lifecycle on top of a store.
type Service struct {
	store storage.ContributionStore
	log   *logger.Logger
}

// New constructs the archive service.
func New(store storage.ContributionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("archive")
	}
	return &Service{store: store, log: log}
}

// Submit records a contribution, keyed by its content fingerprint. Identical
// content maps to the same ID: resubmission returns the existing record
// unchanged and reports existed=true, without touching its lifecycle.
func (s *Service) Submit(ctx context.Context, content, title, submitterID, categoryHint string) (contribution.Contribution, bool, error) {
	if strings.TrimSpace(content) == "" {
		return contribution.Contribution{}, false, fmt.Errorf("content is required")
	}
	if strings.TrimSpace(submitterID) == "" {
		return contribution.Contribution{}, false, fmt.Errorf("submitter_id is required")
	}

	id := contribution.Fingerprint(content)
	c := contribution.Contribution{
		ID:           id,
		Title:        strings.TrimSpace(title),
		SubmitterID:  strings.TrimSpace(submitterID),
		CategoryHint: strings.TrimSpace(categoryHint),
		Content:      content,
		Status:       contribution.StatusDraft,
	}

	created, err := s.store.CreateContribution(ctx, c)
	if errors.Is(err, storage.ErrExists) {
		existing, getErr := s.store.GetContribution(ctx, id)
		if getErr != nil {
			return contribution.Contribution{}, false, getErr
		}
		return existing, true, nil
	}
	if err != nil {
		return contribution.Contribution{}, false, err
	}

	s.log.WithField("contribution_id", created.ID).
		WithField("submitter_id", created.SubmitterID).
		Info("contribution recorded")
	return created, false, nil
}

// Get fetches one contribution by ID.
func (s *Service) Get(ctx context.Context, id string) (contribution.Contribution, error) {
	return s.store.GetContribution(ctx, id)
}

// Transition moves a contribution along one edge of the lifecycle graph.
// The underlying replace is guarded by the observed status, so for any
// contested edge (the evaluating claim in particular) exactly one caller
// succeeds; the rest get ErrInvalidTransition.
func (s *Service) Transition(ctx context.Context, id string, next contribution.Status) (contribution.Contribution, error) {
	if !next.Known() {
		return contribution.Contribution{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	c, err := s.store.GetContribution(ctx, id)
	if err != nil {
		return contribution.Contribution{}, err
	}
	if !contribution.CanTransition(c.Status, next) {
		return contribution.Contribution{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
	}

	from := c.Status
	c.Status = next
	updated, err := s.store.ReplaceContribution(ctx, c, from)
	if errors.Is(err, storage.ErrStale) {
		return contribution.Contribution{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	if err != nil {
		return contribution.Contribution{}, err
	}

	s.log.WithField("contribution_id", id).
		WithField("from", from).
		WithField("to", next).
		Info("status transition")
	return updated, nil
}

// AttachMetrics writes the evaluation metrics. Legal only while the
// contribution is evaluating and only once.
func (s *Service) AttachMetrics(ctx context.Context, id string, m contribution.Metrics) (contribution.Contribution, error) {
	c, err := s.store.GetContribution(ctx, id)
	if err != nil {
		return contribution.Contribution{}, err
	}
	if c.Status != contribution.StatusEvaluating {
		return contribution.Contribution{}, fmt.Errorf("%w: metrics require evaluating status, have %s", ErrInvalidTransition, c.Status)
	}
	if c.Metrics != nil {
		return contribution.Contribution{}, ErrMetricsAlreadySet
	}

	c.Metrics = &m
	updated, err := s.store.ReplaceContribution(ctx, c, contribution.StatusEvaluating)
	if errors.Is(err, storage.ErrStale) {
		// Either the status moved under us or a concurrent writer set
		// metrics first; the store guard blocks both.
		if current, getErr := s.store.GetContribution(ctx, id); getErr == nil && current.Metrics != nil {
			return contribution.Contribution{}, ErrMetricsAlreadySet
		}
		return contribution.Contribution{}, fmt.Errorf("%w: contribution left evaluating", ErrInvalidTransition)
	}
	return updated, err
}

// AttachTags appends tags not already present. Legal only while evaluating.
func (s *Service) AttachTags(ctx context.Context, id string, tags []string) (contribution.Contribution, error) {
	c, err := s.store.GetContribution(ctx, id)
	if err != nil {
		return contribution.Contribution{}, err
	}
	if c.Status != contribution.StatusEvaluating {
		return contribution.Contribution{}, fmt.Errorf("%w: tags require evaluating status, have %s", ErrInvalidTransition, c.Status)
	}

	for _, tag := range tags {
		if tag != "" && !c.HasTag(tag) {
			c.Tags = append(c.Tags, tag)
		}
	}
	return s.store.ReplaceContribution(ctx, c, contribution.StatusEvaluating)
}

// AttachAllocation appends a confirmed allocation record. Prior allocations
// are never overwritten.
func (s *Service) AttachAllocation(ctx context.Context, id string, rec ledger.AllocationRecord) (contribution.Contribution, error) {
	c, err := s.store.GetContribution(ctx, id)
	if err != nil {
		return contribution.Contribution{}, err
	}

	c.Allocations = append(c.Allocations, rec)
	updated, err := s.store.ReplaceContribution(ctx, c, c.Status)
	if err != nil {
		return contribution.Contribution{}, err
	}

	s.log.WithField("contribution_id", id).
		WithField("epoch", rec.Epoch).
		WithField("amount", rec.Amount).
		Info("allocation attached")
	return updated, nil
}

// FailEvaluation terminates an evaluating contribution as unqualified with
// an explicit error marker. Metrics stay unset; the marker tag is what
// surfaces the reason to submitters.
func (s *Service) FailEvaluation(ctx context.Context, id, reason string) (contribution.Contribution, error) {
	c, err := s.store.GetContribution(ctx, id)
	if err != nil {
		return contribution.Contribution{}, err
	}
	if !contribution.CanTransition(c.Status, contribution.StatusUnqualified) {
		return contribution.Contribution{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, contribution.StatusUnqualified)
	}

	from := c.Status
	c.Status = contribution.StatusUnqualified
	c.EvaluationError = reason
	if !c.HasTag(contribution.EvaluationErrorTag) {
		c.Tags = append(c.Tags, contribution.EvaluationErrorTag)
	}

	updated, err := s.store.ReplaceContribution(ctx, c, from)
	if errors.Is(err, storage.ErrStale) {
		return contribution.Contribution{}, fmt.Errorf("%w: contribution left %s", ErrInvalidTransition, from)
	}
	if err != nil {
		return contribution.Contribution{}, err
	}

	s.log.WithField("contribution_id", id).
		WithField("reason", reason).
		Warn("evaluation failed")
	return updated, nil
}

// QueryFilter narrows Query results. Zero-valued fields match everything, so
// the empty filter returns the complete archive.
type QueryFilter struct {
	Status      contribution.Status
	SubmitterID string
	Tag         string
}

// Query returns contributions matching the filter. Queries always run over
// the complete archive, drafts and terminal entries included.
func (s *Service) Query(ctx context.Context, filter QueryFilter) ([]contribution.Contribution, error) {
	all, err := s.store.ListContributions(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]contribution.Contribution, 0, len(all))
	for _, c := range all {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.SubmitterID != "" && c.SubmitterID != filter.SubmitterID {
			continue
		}
		if filter.Tag != "" && !c.HasTag(filter.Tag) {
			continue
		}
		result = append(result, c)
	}
	return result, nil
}

// ListByStatus returns contributions currently in the given status.
func (s *Service) ListByStatus(ctx context.Context, status contribution.Status) ([]contribution.Contribution, error) {
	return s.store.ListContributionsByStatus(ctx, status)
}
