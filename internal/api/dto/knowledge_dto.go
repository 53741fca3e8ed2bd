package dto

import (
	"time"

	"github.com/spec-kit/escalation-service/internal/domain"
)

// KnowledgeEntryResponse is a learned answer.
type KnowledgeEntryResponse struct {
	ID              string                 `json:"id"`
	QuestionPattern string                 `json:"question_pattern"`
	Answer          string                 `json:"answer"`
	Source          domain.KnowledgeSource `json:"source"`
	UsageCount      int64                  `json:"usage_count"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// NewKnowledgeEntryResponse maps a knowledge entry.
func NewKnowledgeEntryResponse(e *domain.KnowledgeEntry) KnowledgeEntryResponse {
	return KnowledgeEntryResponse{
		ID:              e.ID,
		QuestionPattern: e.Pattern,
		Answer:          e.Answer,
		Source:          e.Source,
		UsageCount:      e.UsageCount,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}
