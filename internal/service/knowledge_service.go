package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/escalation-service/internal/clock"
	"github.com/spec-kit/escalation-service/internal/domain"
	"github.com/spec-kit/escalation-service/internal/events"
	"github.com/spec-kit/escalation-service/internal/match"
	"github.com/spec-kit/escalation-service/internal/observability"
	"github.com/spec-kit/escalation-service/internal/repository"
	apperrors "github.com/spec-kit/escalation-service/pkg/util/errorutil"
)

// KnowledgeService answers questions from learned entries and records new
// answers handed back by supervisors.
type KnowledgeService struct {
	entries    repository.KnowledgeRepository
	clock      clock.Clock
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// KnowledgeDependencies bundles collaborators for the knowledge service.
type KnowledgeDependencies struct {
	KnowledgeRepo repository.KnowledgeRepository
	Clock         clock.Clock
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// NewKnowledgeService constructs the service.
func NewKnowledgeService(deps KnowledgeDependencies) *KnowledgeService {
	s := &KnowledgeService{
		entries:    deps.KnowledgeRepo,
		clock:      deps.Clock,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Lookup finds the learned answer for question, if any.
func (s *KnowledgeService) Lookup(ctx context.Context, question string) (match.Result, error) {
	entries, err := s.entries.All(ctx)
	if err != nil {
		return match.Result{}, err
	}
	res := match.Lookup(question, entries)
	s.metrics.RecordLookup(string(res.Kind))
	return res, nil
}

// List returns all entries, most recently updated first.
func (s *KnowledgeService) List(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	entries, err := s.entries.List(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.KnowledgeEntry{}
	}
	return entries, nil
}

// Learn stores answer under pattern, creating the entry on first sight.
func (s *KnowledgeService) Learn(ctx context.Context, pattern, answer string) (*domain.KnowledgeEntry, error) {
	entry, created, err := s.entries.Upsert(ctx, pattern, answer, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("knowledge learned",
		zap.String("entry_id", entry.ID),
		zap.String("pattern", entry.Pattern),
		zap.Bool("created", created))
	publish(ctx, s.dispatcher, s.clock, events.Event{
		Type: events.EventKnowledgeLearned,
		Payload: events.KnowledgeLearnedPayload{
			EntryID: entry.ID,
			Pattern: entry.Pattern,
			Created: created,
		},
	})
	return entry, nil
}

// RecordUsage bumps the usage counter of an entry. Callers decide when a
// hit counts as usage.
func (s *KnowledgeService) RecordUsage(ctx context.Context, entryID string) (*domain.KnowledgeEntry, error) {
	entry, err := s.entries.IncrementUsage(ctx, entryID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("knowledge entry", map[string]any{"id": entryID})
	}
	return entry, err
}

// Seed inserts entries that are not present yet, matched by pattern.
func (s *KnowledgeService) Seed(ctx context.Context, entries []domain.KnowledgeEntry) error {
	for i := range entries {
		entry := entries[i]
		entry.Pattern = match.Normalize(entry.Pattern)
		if strings.TrimSpace(entry.Answer) == "" {
			return apperrors.NewValidationError("seed entry answer required", map[string]any{"pattern": entry.Pattern})
		}
		if err := s.entries.Insert(ctx, &entry); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
	}
	return nil
}
