package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/escalation-service/internal/domain"
)

// In-memory implementations back the service when no Postgres DSN is
// configured, and in tests. Every method hands out copies so callers never
// alias stored records.

type memoryCustomerRepository struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]domain.Customer
}

// NewMemoryCustomerRepository returns an empty in-memory customer store.
func NewMemoryCustomerRepository() CustomerRepository {
	return &memoryCustomerRepository{byID: make(map[string]domain.Customer)}
}

func (r *memoryCustomerRepository) Create(_ context.Context, customer *domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	if _, exists := r.byID[customer.ID]; exists {
		return ErrDuplicate
	}
	r.byID[customer.ID] = cloneCustomer(*customer)
	r.order = append(r.order, customer.ID)
	return nil
}

func (r *memoryCustomerRepository) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = cloneCustomer(c)
	return &c, nil
}

func (r *memoryCustomerRepository) List(_ context.Context) ([]domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.Customer, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, cloneCustomer(r.byID[id]))
	}
	return result, nil
}

type memoryKnowledgeRepository struct {
	mu        sync.RWMutex
	entries   []*domain.KnowledgeEntry
	byPattern map[string]*domain.KnowledgeEntry
	byID      map[string]*domain.KnowledgeEntry
}

// NewMemoryKnowledgeRepository returns an empty in-memory knowledge store.
func NewMemoryKnowledgeRepository() KnowledgeRepository {
	return &memoryKnowledgeRepository{
		byPattern: make(map[string]*domain.KnowledgeEntry),
		byID:      make(map[string]*domain.KnowledgeEntry),
	}
}

func (r *memoryKnowledgeRepository) Insert(_ context.Context, entry *domain.KnowledgeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPattern[entry.Pattern]; exists {
		return ErrDuplicate
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if _, exists := r.byID[entry.ID]; exists {
		return ErrDuplicate
	}
	stored := *entry
	r.add(&stored)
	return nil
}

func (r *memoryKnowledgeRepository) Upsert(_ context.Context, pattern, answer string, now time.Time) (*domain.KnowledgeEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byPattern[pattern]; ok {
		existing.Answer = answer
		existing.UpdatedAt = now
		out := *existing
		return &out, false, nil
	}
	entry := &domain.KnowledgeEntry{
		ID:        uuid.NewString(),
		Pattern:   pattern,
		Answer:    answer,
		Source:    domain.KnowledgeSourceSupervisor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.add(entry)
	out := *entry
	return &out, true, nil
}

func (r *memoryKnowledgeRepository) add(entry *domain.KnowledgeEntry) {
	r.entries = append(r.entries, entry)
	r.byPattern[entry.Pattern] = entry
	r.byID[entry.ID] = entry
}

func (r *memoryKnowledgeRepository) GetByID(_ context.Context, id string) (*domain.KnowledgeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *entry
	return &out, nil
}

func (r *memoryKnowledgeRepository) All(_ context.Context) ([]domain.KnowledgeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.KnowledgeEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, *entry)
	}
	return result, nil
}

func (r *memoryKnowledgeRepository) List(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	result, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (r *memoryKnowledgeRepository) IncrementUsage(_ context.Context, id string) (*domain.KnowledgeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	entry.UsageCount++
	out := *entry
	return &out, nil
}

type memoryHelpRequestRepository struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*domain.HelpRequest
}

// NewMemoryHelpRequestRepository returns an empty in-memory help request store.
func NewMemoryHelpRequestRepository() HelpRequestRepository {
	return &memoryHelpRequestRepository{byID: make(map[string]*domain.HelpRequest)}
}

func (r *memoryHelpRequestRepository) Create(_ context.Context, req *domain.HelpRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if _, exists := r.byID[req.ID]; exists {
		return ErrDuplicate
	}
	stored := cloneHelpRequest(*req)
	r.byID[req.ID] = &stored
	r.order = append(r.order, req.ID)
	return nil
}

func (r *memoryHelpRequestRepository) Update(_ context.Context, req *domain.HelpRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[req.ID]
	if !ok {
		return ErrNotFound
	}
	// customer, question, deadline and creation time are fixed at creation.
	existing.Status = req.Status
	existing.AssignedTo = cloneString(req.AssignedTo)
	existing.ResolutionMessage = cloneString(req.ResolutionMessage)
	existing.KBEntryID = cloneString(req.KBEntryID)
	existing.UpdatedAt = req.UpdatedAt
	return nil
}

func (r *memoryHelpRequestRepository) GetByID(_ context.Context, id string) (*domain.HelpRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneHelpRequest(*req)
	return &out, nil
}

func (r *memoryHelpRequestRepository) List(_ context.Context, filter HelpRequestFilter) ([]domain.HelpRequest, error) {
	r.mu.RLock()
	result := make([]domain.HelpRequest, 0, len(r.order))
	for _, id := range r.order {
		req := r.byID[id]
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		if filter.CustomerID != nil && req.CustomerID != *filter.CustomerID {
			continue
		}
		result = append(result, cloneHelpRequest(*req))
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *memoryHelpRequestRepository) ListOverdue(_ context.Context, now time.Time) ([]domain.HelpRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.HelpRequest
	for _, id := range r.order {
		if req := r.byID[id]; req.Overdue(now) {
			result = append(result, cloneHelpRequest(*req))
		}
	}
	return result, nil
}

func (r *memoryHelpRequestRepository) Expire(_ context.Context, id string, now time.Time, fallback string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if !req.Overdue(now) {
		return false, nil
	}
	req.Expire(now, fallback)
	return true, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneCustomer(c domain.Customer) domain.Customer {
	c.Name = cloneString(c.Name)
	return c
}

func cloneHelpRequest(req domain.HelpRequest) domain.HelpRequest {
	req.AssignedTo = cloneString(req.AssignedTo)
	req.ResolutionMessage = cloneString(req.ResolutionMessage)
	req.KBEntryID = cloneString(req.KBEntryID)
	return req
}
