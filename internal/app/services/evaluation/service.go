// Package evaluation orchestrates scoring: it claims a contribution, builds
// the oracle context from the full archive, invokes the external judge,
// validates the verdict and drives the contribution to a terminal status.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	ledgerdomain "github.com/Inscribe-Network/archive_layer/internal/app/domain/ledger"
	"github.com/Inscribe-Network/archive_layer/internal/app/metrics"
	"github.com/Inscribe-Network/archive_layer/internal/app/services/archive"
	"github.com/Inscribe-Network/archive_layer/internal/app/services/redundancy"
	"github.com/Inscribe-Network/archive_layer/pkg/logger"
)

// Outcome is the result of one evaluation.
type Outcome struct {
	ContributionID  string
	Qualified       bool
	Epoch           string
	Tags            []ledgerdomain.Tag
	Metrics         *contribution.Metrics
	EvaluationError string
}

// Service runs evaluations end to end.
type Service struct {
	archive  *archive.Service
	detector *redundancy.Detector
	judge    Judge
	rubric   string

	maxRetries int
	backoff    time.Duration

	log *logger.Logger
}

// New constructs the orchestrator. The judge is mandatory; everything else
// defaults.
func New(archiveSvc *archive.Service, detector *redundancy.Detector, judge Judge, log *logger.Logger) *Service {
	if detector == nil {
		detector = redundancy.New()
	}
	if log == nil {
		log = logger.NewDefault("evaluation")
	}
	return &Service{
		archive:    archiveSvc,
		detector:   detector,
		judge:      judge,
		rubric:     DefaultRubric,
		maxRetries: 2,
		backoff:    2 * time.Second,
		log:        log,
	}
}

// WithRubric overrides the rubric sent to the oracle.
func (s *Service) WithRubric(rubric string) *Service {
	if rubric != "" {
		s.rubric = rubric
	}
	return s
}

// Evaluate scores one contribution. The submitted -> evaluating transition
// is the claim: when two workers race on the same ID, the store guarantee
// lets only one through, and the loser gets ErrInvalidTransition.
func (s *Service) Evaluate(ctx context.Context, id string) (Outcome, error) {
	c, err := s.archive.Transition(ctx, id, contribution.StatusEvaluating)
	if err != nil {
		return Outcome{}, err
	}
	return s.score(ctx, c)
}

// Resume finishes an evaluation that a previous process claimed but never
// drove to a terminal status. The record must still be evaluating; the whole
// scoring pass runs again, which is safe because metrics are write-once and
// the terminal transition is table-checked.
func (s *Service) Resume(ctx context.Context, id string) (Outcome, error) {
	c, err := s.archive.Get(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if c.Status != contribution.StatusEvaluating {
		return Outcome{}, fmt.Errorf("%w: resume requires evaluating status, have %s", archive.ErrInvalidTransition, c.Status)
	}
	return s.score(ctx, c)
}

// score runs the post-claim pipeline: corpus build, oracle consultation,
// metrics, tags and the terminal transition.
func (s *Service) score(ctx context.Context, c contribution.Contribution) (Outcome, error) {
	id := c.ID
	log := s.log.WithField("contribution_id", id)

	// The full archive is the comparison corpus, lifecycle state ignored.
	all, err := s.archive.Query(ctx, archive.QueryFilter{})
	if err != nil {
		return s.fail(ctx, id, fmt.Sprintf("load corpus: %v", err))
	}
	corpus := make([]redundancy.Document, 0, len(all))
	for _, other := range all {
		if other.ID == id {
			continue
		}
		corpus = append(corpus, redundancy.Document{ID: other.ID, Content: other.Content})
	}

	similarity, neighbors := s.detector.Similarity(c.Content, corpus)

	verdict, err := s.consultOracle(ctx, Request{
		ContributionID:  id,
		Content:         c.Content,
		CategoryHint:    c.CategoryHint,
		SimilarityScore: similarity,
		Neighbors:       neighbors,
		Rubric:          s.rubric,
	})
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown cancelled the consultation, not the oracle. The record
			// stays in evaluating; the restart sweep picks it up again.
			return Outcome{}, err
		}
		log.WithError(err).Warn("oracle consultation exhausted")
		return s.fail(ctx, id, err.Error())
	}

	// The detector's similarity is authoritative for scoring; the oracle's
	// own estimate is recorded alongside for audit.
	redundancyScore := clampScore(int(similarity*10000 + 0.5))
	m := contribution.Metrics{
		Coherence:        verdict.Coherence,
		Density:          verdict.Density,
		Redundancy:       redundancyScore,
		OracleRedundancy: verdict.RedundancyGuess,
		Composite:        CompositeScore(verdict.Coherence, verdict.Density, redundancyScore),
	}

	epoch := ledgerdomain.EpochForDensity(m.Density)
	tags := qualifyTags(verdict.Tags, epoch)
	qualified := len(tags) > 0

	// A resumed evaluation may find metrics already durable from the first
	// attempt; the earlier values stand and the pipeline carries on.
	if _, err := s.archive.AttachMetrics(ctx, id, m); err != nil && !errors.Is(err, archive.ErrMetricsAlreadySet) {
		return Outcome{}, err
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = string(t)
	}
	if len(names) > 0 {
		if _, err := s.archive.AttachTags(ctx, id, names); err != nil {
			return Outcome{}, err
		}
	}

	terminal := contribution.StatusUnqualified
	outcomeLabel := "unqualified"
	if qualified {
		terminal = contribution.StatusQualified
		outcomeLabel = "qualified"
	}
	if _, err := s.archive.Transition(ctx, id, terminal); err != nil {
		return Outcome{}, err
	}
	metrics.RecordEvaluation(outcomeLabel)

	log.WithField("composite", m.Composite).
		WithField("epoch", epoch).
		WithField("qualified", qualified).
		Info("evaluation finished")

	return Outcome{
		ContributionID: id,
		Qualified:      qualified,
		Epoch:          epoch,
		Tags:           tags,
		Metrics:        &m,
	}, nil
}

// consultOracle calls the judge with bounded retries and doubling backoff.
// Malformed responses and transport failures count the same; scores are
// never invented on exhaustion.
func (s *Service) consultOracle(ctx context.Context, req Request) (Verdict, error) {
	var lastErr error
	delay := s.backoff
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Verdict{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		start := time.Now()
		raw, err := s.judge.Judge(ctx, req)
		if err != nil {
			metrics.RecordOracleCall(time.Since(start), false)
			lastErr = fmt.Errorf("oracle call: %w", err)
			continue
		}

		verdict, err := ParseVerdict(raw)
		if err != nil {
			metrics.RecordOracleCall(time.Since(start), false)
			lastErr = err
			continue
		}

		metrics.RecordOracleCall(time.Since(start), true)
		return verdict, nil
	}
	return Verdict{}, fmt.Errorf("after %d attempts: %w", s.maxRetries+1, lastErr)
}

func (s *Service) fail(ctx context.Context, id, reason string) (Outcome, error) {
	if _, err := s.archive.FailEvaluation(ctx, id, reason); err != nil {
		return Outcome{}, err
	}
	metrics.RecordEvaluation("error")
	return Outcome{
		ContributionID:  id,
		Qualified:       false,
		EvaluationError: reason,
	}, nil
}

// CompositeScore folds coherence, density and redundancy into the single
// 0..10000 figure that drives allocation sizing:
// (coherence/10000) x (density/10000) x (1 - redundancy/10000) x 10000.
func CompositeScore(coherence, density, redundancyScore int) int {
	coherence = clampScore(coherence)
	density = clampScore(density)
	redundancyScore = clampScore(redundancyScore)
	score := int64(coherence) * int64(density) * int64(10000-redundancyScore) / (10000 * 10000)
	return clampScore(int(score))
}

// qualifyTags keeps the oracle tags that name a known tier eligible in the
// qualifying epoch. A contribution may qualify under several tiers at once.
func qualifyTags(raw []string, epoch string) []ledgerdomain.Tag {
	out := make([]ledgerdomain.Tag, 0, len(raw))
	for _, t := range raw {
		tag := ledgerdomain.Tag(t)
		if ledgerdomain.KnownTag(tag) && ledgerdomain.Eligible(tag, epoch) {
			out = append(out, tag)
		}
	}
	return out
}
