package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/escalation-service/internal/clock"
	"github.com/spec-kit/escalation-service/internal/config"
	"github.com/spec-kit/escalation-service/internal/domain"
	"github.com/spec-kit/escalation-service/internal/events"
	"github.com/spec-kit/escalation-service/internal/match"
	"github.com/spec-kit/escalation-service/internal/observability"
	"github.com/spec-kit/escalation-service/internal/repository"
	apperrors "github.com/spec-kit/escalation-service/pkg/util/errorutil"
)

// HelpRequestService is the ledger of escalated questions. Every read
// sweeps overdue requests first, so callers never see an expired PENDING
// record. Sweep and Resolve on the same id are serialized.
type HelpRequestService struct {
	requests   repository.HelpRequestRepository
	customers  repository.CustomerRepository
	knowledge  *KnowledgeService
	clock      clock.Clock
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	policy     LedgerPolicy

	locks *keyedLock
}

// LedgerPolicy holds the tunable lifecycle rules.
type LedgerPolicy struct {
	// DefaultHorizon applies when a caller does not pick a timeout.
	DefaultHorizon time.Duration
	// FallbackMessage is stored on requests that time out unanswered.
	FallbackMessage string
	// RejectTerminalResolve refuses to resolve RESOLVED/UNRESOLVED requests
	// instead of overwriting them.
	RejectTerminalResolve bool
}

// HelpRequestDependencies bundles collaborators for the ledger.
type HelpRequestDependencies struct {
	HelpRequestRepo repository.HelpRequestRepository
	CustomerRepo    repository.CustomerRepository
	Knowledge       *KnowledgeService
	Clock           clock.Clock
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	Metrics         *observability.Metrics
	Policy          LedgerPolicy
}

// HelpRequestCreateInput describes a new escalation.
type HelpRequestCreateInput struct {
	CustomerID string
	Question   string
	// Horizon is how long the request may stay pending; zero selects the
	// policy default.
	Horizon time.Duration
}

// NewHelpRequestService constructs the ledger.
func NewHelpRequestService(deps HelpRequestDependencies) *HelpRequestService {
	s := &HelpRequestService{
		requests:   deps.HelpRequestRepo,
		customers:  deps.CustomerRepo,
		knowledge:  deps.Knowledge,
		clock:      deps.Clock,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		policy:     deps.Policy,
		locks:      newKeyedLock(),
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.policy.DefaultHorizon <= 0 {
		s.policy.DefaultHorizon = 15 * time.Minute
	}
	if s.policy.FallbackMessage == "" {
		s.policy.FallbackMessage = config.DefaultFallbackMessage
	}
	return s
}

// Create records a PENDING request with a deadline of now + horizon.
func (s *HelpRequestService) Create(ctx context.Context, input HelpRequestCreateInput) (*domain.ExpandedHelpRequest, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, apperrors.NewValidationError("question required", nil)
	}
	if input.CustomerID == "" {
		return nil, apperrors.NewValidationError("customer_id required", nil)
	}
	if input.Horizon < 0 {
		return nil, apperrors.NewValidationError("timeout must not be negative", nil)
	}
	customer, err := s.customers.GetByID(ctx, input.CustomerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewValidationError("unknown customer", map[string]any{"customer_id": input.CustomerID})
	}
	if err != nil {
		return nil, err
	}

	horizon := input.Horizon
	if horizon == 0 {
		horizon = s.policy.DefaultHorizon
	}
	now := s.clock.Now()
	req := &domain.HelpRequest{
		ID:         generateRequestID(),
		CustomerID: customer.ID,
		Question:   question,
		Status:     domain.HelpRequestStatusPending,
		TimeoutAt:  now.Add(horizon),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.metrics.RecordEscalation()
	s.logger.Info("help request created",
		zap.String("help_request_id", req.ID),
		zap.String("customer_id", req.CustomerID),
		zap.Time("timeout_at", req.TimeoutAt))
	publish(ctx, s.dispatcher, s.clock, events.Event{
		Type:          events.EventHelpRequestCreated,
		HelpRequestID: req.ID,
		Payload: events.HelpRequestCreatedPayload{
			CustomerID: req.CustomerID,
			Question:   req.Question,
			TimeoutAt:  req.TimeoutAt,
		},
	})
	return &domain.ExpandedHelpRequest{HelpRequest: *req, Customer: *customer}, nil
}

// Escalate creates a request with the default horizon. It is the hook the
// conversation agent uses when no learned answer matches.
func (s *HelpRequestService) Escalate(ctx context.Context, customerID, question string) error {
	_, err := s.Create(ctx, HelpRequestCreateInput{CustomerID: customerID, Question: question})
	return err
}

// Sweep expires overdue pending requests as of the current clock time.
func (s *HelpRequestService) Sweep(ctx context.Context) (int, error) {
	return s.SweepAt(ctx, s.clock.Now())
}

// SweepAt expires every PENDING request whose deadline is before now. It
// is idempotent and leaves terminal requests untouched.
func (s *HelpRequestService) SweepAt(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.requests.ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range overdue {
		req := &overdue[i]
		changed, err := s.expire(ctx, req.ID, now)
		if err != nil {
			return expired, err
		}
		if !changed {
			continue
		}
		expired++
		publish(ctx, s.dispatcher, s.clock, events.Event{
			Type:          events.EventHelpRequestExpired,
			HelpRequestID: req.ID,
			Payload:       events.HelpRequestExpiredPayload{TimeoutAt: req.TimeoutAt},
		})
	}
	if expired > 0 {
		s.metrics.RecordExpired(expired)
		s.logger.Info("help requests expired", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *HelpRequestService) expire(ctx context.Context, id string, now time.Time) (bool, error) {
	defer s.locks.Lock(id)()
	return s.requests.Expire(ctx, id, now, s.policy.FallbackMessage)
}

// List sweeps, then returns requests (optionally by status) newest first,
// each joined with its customer. A request referencing an unknown customer
// fails the whole call with an integrity fault.
func (s *HelpRequestService) List(ctx context.Context, status *domain.HelpRequestStatus) ([]domain.ExpandedHelpRequest, error) {
	if status != nil && !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *status})
	}
	if _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}
	reqs, err := s.requests.List(ctx, repository.HelpRequestFilter{Status: status})
	if err != nil {
		return nil, err
	}

	customers := make(map[string]*domain.Customer)
	result := make([]domain.ExpandedHelpRequest, 0, len(reqs))
	for _, req := range reqs {
		customer, ok := customers[req.CustomerID]
		if !ok {
			customer, err = s.customerFor(ctx, &req)
			if err != nil {
				return nil, err
			}
			customers[req.CustomerID] = customer
		}
		result = append(result, domain.ExpandedHelpRequest{HelpRequest: req, Customer: *customer})
	}
	return result, nil
}

// Get sweeps, then returns a single expanded request.
func (s *HelpRequestService) Get(ctx context.Context, id string) (*domain.ExpandedHelpRequest, error) {
	if _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}
	req, err := s.requests.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("help request", map[string]any{"id": id})
	}
	if err != nil {
		return nil, err
	}
	return s.expand(ctx, req)
}

// Resolve records a supervisor answer: the question's pattern is learned
// with answer and the request becomes RESOLVED pointing at that entry.
func (s *HelpRequestService) Resolve(ctx context.Context, id, answer string) (*domain.ExpandedHelpRequest, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, apperrors.NewValidationError("answer required", nil)
	}

	defer s.locks.Lock(id)()

	req, err := s.requests.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("help request", map[string]any{"id": id})
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if req.Overdue(now) {
		// Settle the deadline first so the status below reflects what a
		// reader would already have seen.
		changed, err := s.requests.Expire(ctx, id, now, s.policy.FallbackMessage)
		if err != nil {
			return nil, err
		}
		if changed {
			s.metrics.RecordExpired(1)
			publish(ctx, s.dispatcher, s.clock, events.Event{
				Type:          events.EventHelpRequestExpired,
				HelpRequestID: req.ID,
				Payload:       events.HelpRequestExpiredPayload{TimeoutAt: req.TimeoutAt},
			})
		}
		req.Expire(now, s.policy.FallbackMessage)
	}
	if s.policy.RejectTerminalResolve && req.Status.Terminal() {
		return nil, apperrors.NewConflict("help request already closed", map[string]any{
			"id":     id,
			"status": req.Status,
		})
	}

	entry, err := s.knowledge.Learn(ctx, match.Normalize(req.Question), answer)
	if err != nil {
		return nil, err
	}

	previous := req.Status
	req.Resolve(s.clock.Now(), answer, entry.ID)
	if err := s.requests.Update(ctx, req); err != nil {
		return nil, err
	}

	s.metrics.RecordResolution()
	s.logger.Info("help request resolved",
		zap.String("help_request_id", req.ID),
		zap.String("previous_status", string(previous)),
		zap.String("kb_entry_id", entry.ID))
	publish(ctx, s.dispatcher, s.clock, events.Event{
		Type:          events.EventHelpRequestResolved,
		HelpRequestID: req.ID,
		Payload: events.HelpRequestResolvedPayload{
			PreviousStatus: previous,
			Answer:         answer,
			KBEntryID:      entry.ID,
		},
	})
	return s.expand(ctx, req)
}

func (s *HelpRequestService) expand(ctx context.Context, req *domain.HelpRequest) (*domain.ExpandedHelpRequest, error) {
	customer, err := s.customerFor(ctx, req)
	if err != nil {
		return nil, err
	}
	return &domain.ExpandedHelpRequest{HelpRequest: *req, Customer: *customer}, nil
}

func (s *HelpRequestService) customerFor(ctx context.Context, req *domain.HelpRequest) (*domain.Customer, error) {
	customer, err := s.customers.GetByID(ctx, req.CustomerID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("help request references missing customer",
			zap.String("help_request_id", req.ID),
			zap.String("customer_id", req.CustomerID))
		return nil, apperrors.NewIntegrityFault("help request references missing customer", map[string]any{
			"help_request_id": req.ID,
			"customer_id":     req.CustomerID,
		})
	}
	return customer, err
}

func generateRequestID() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func publish(ctx context.Context, dispatcher events.Dispatcher, clk clock.Clock, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = clk.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}
