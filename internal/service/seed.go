package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/escalation-service/internal/clock"
	"github.com/spec-kit/escalation-service/internal/domain"
	"github.com/spec-kit/escalation-service/internal/repository"
)

// SeedDependencies are the stores demo data is written to.
type SeedDependencies struct {
	Customers repository.CustomerRepository
	Requests  repository.HelpRequestRepository
	Knowledge *KnowledgeService
	Clock     clock.Clock
}

// SeedDemoData loads the demo customers, learned answers and a few help
// requests. Records that already exist are left alone.
func SeedDemoData(ctx context.Context, deps SeedDependencies) error {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	now := clk.Now()

	for _, c := range []struct{ id, phone, name string }{
		{"cust_101", "+1-555-0001", "Ava"},
		{"cust_102", "+1-555-0002", "Ben"},
		{"cust_103", "+1-555-0003", "Cara"},
	} {
		name := c.name
		err := deps.Customers.Create(ctx, &domain.Customer{ID: c.id, Phone: c.phone, Name: &name, CreatedAt: now})
		if err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
	}

	seedEntries := []domain.KnowledgeEntry{
		{ID: "kb_1", Pattern: "hours weekend", Answer: "We are open 9am–5pm on Saturdays and closed on Sundays.", Source: domain.KnowledgeSourceSeed, UsageCount: 3},
		{ID: "kb_2", Pattern: "hello hi hey", Answer: "Hello! How can I help you today? You can ask about our hours, services, or anything else.", Source: domain.KnowledgeSourceSeed},
		{ID: "kb_3", Pattern: "help", Answer: "I'm here to help! You can ask me about our business hours, services, or any other questions you have.", Source: domain.KnowledgeSourceSeed},
		{ID: "kb_4", Pattern: "callback tomorrow call back", Answer: "Yes, I can arrange a callback for you tomorrow. What time works best for you?", Source: domain.KnowledgeSourceSupervisor},
	}
	for i := range seedEntries {
		seedEntries[i].CreatedAt = now
		seedEntries[i].UpdatedAt = now
	}
	if err := deps.Knowledge.Seed(ctx, seedEntries); err != nil {
		return err
	}

	resolved := "We are open 9am–5pm on Saturdays."
	kbID := "kb_1"
	demo := []domain.HelpRequest{
		{
			ID:                "req_200",
			CustomerID:        "cust_101",
			Question:          "What are your hours on Saturday?",
			Status:            domain.HelpRequestStatusResolved,
			TimeoutAt:         now.Add(10 * time.Minute),
			ResolutionMessage: &resolved,
			KBEntryID:         &kbID,
			CreatedAt:         now.Add(-60 * time.Minute),
			UpdatedAt:         now.Add(-58 * time.Minute),
		},
		{
			ID:         "req_201",
			CustomerID: "cust_102",
			Question:   "Do you offer balayage for curly hair?",
			Status:     domain.HelpRequestStatusPending,
			TimeoutAt:  now.Add(15 * time.Minute),
			CreatedAt:  now.Add(-10 * time.Minute),
			UpdatedAt:  now.Add(-10 * time.Minute),
		},
		{
			ID:         "req_202",
			CustomerID: "cust_103",
			Question:   "Can I get a callback tomorrow afternoon?",
			Status:     domain.HelpRequestStatusPending,
			TimeoutAt:  now.Add(5 * time.Minute),
			CreatedAt:  now.Add(-2 * time.Minute),
			UpdatedAt:  now.Add(-2 * time.Minute),
		},
	}
	for i := range demo {
		if _, err := deps.Requests.GetByID(ctx, demo[i].ID); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := deps.Requests.Create(ctx, &demo[i]); err != nil {
			return err
		}
	}
	return nil
}
