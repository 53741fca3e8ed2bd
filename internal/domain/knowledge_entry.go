package domain

import "time"

// KnowledgeSource records where a learned answer came from.
type KnowledgeSource string

const (
	KnowledgeSourceSeed       KnowledgeSource = "seed"
	KnowledgeSourceSupervisor KnowledgeSource = "supervisor"
)

// KnowledgeEntry maps a normalized question pattern to an answer.
type KnowledgeEntry struct {
	ID         string
	Pattern    string
	Answer     string
	Source     KnowledgeSource
	UsageCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
