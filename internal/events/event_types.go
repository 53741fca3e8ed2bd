package events

import (
	"time"

	"github.com/spec-kit/escalation-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventHelpRequestCreated  EventType = "help_request_created"
	EventHelpRequestResolved EventType = "help_request_resolved"
	EventHelpRequestExpired  EventType = "help_request_expired"
	EventKnowledgeLearned    EventType = "knowledge_learned"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	HelpRequestID string      `json:"help_request_id"`
	Timestamp     time.Time   `json:"timestamp"`
	Payload       interface{} `json:"payload"`
}

// HelpRequestCreatedPayload payload.
type HelpRequestCreatedPayload struct {
	CustomerID string    `json:"customer_id"`
	Question   string    `json:"question"`
	TimeoutAt  time.Time `json:"timeout_at"`
}

// HelpRequestResolvedPayload payload.
type HelpRequestResolvedPayload struct {
	PreviousStatus domain.HelpRequestStatus `json:"previous_status"`
	Answer         string                   `json:"answer"`
	KBEntryID      string                   `json:"kb_entry_id"`
}

// HelpRequestExpiredPayload payload.
type HelpRequestExpiredPayload struct {
	TimeoutAt time.Time `json:"timeout_at"`
}

// KnowledgeLearnedPayload payload.
type KnowledgeLearnedPayload struct {
	EntryID string `json:"entry_id"`
	Pattern string `json:"pattern"`
	Created bool   `json:"created"`
}
