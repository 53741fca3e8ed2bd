package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/escalation-service/internal/domain"
)

// KnowledgeRepository stores learned answers keyed by unique pattern.
type KnowledgeRepository interface {
	// Insert adds a fully populated entry, failing with ErrDuplicate when the
	// pattern is already taken. Used for seeding.
	Insert(ctx context.Context, entry *domain.KnowledgeEntry) error
	// Upsert atomically updates the answer of the entry owning pattern, or
	// creates a supervisor entry when the pattern is new. created reports
	// which of the two happened.
	Upsert(ctx context.Context, pattern, answer string, now time.Time) (entry *domain.KnowledgeEntry, created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
	// All returns entries in insertion order.
	All(ctx context.Context) ([]domain.KnowledgeEntry, error)
	// List returns entries most recently updated first.
	List(ctx context.Context) ([]domain.KnowledgeEntry, error)
	IncrementUsage(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
}

type knowledgeRepository struct {
	pool *pgxpool.Pool
}

// NewKnowledgeRepository returns a Postgres-backed implementation.
func NewKnowledgeRepository(pool *pgxpool.Pool) KnowledgeRepository {
	return &knowledgeRepository{pool: pool}
}

const knowledgeColumns = `id, pattern, answer, source, usage_count, created_at, updated_at`

func (r *knowledgeRepository) Insert(ctx context.Context, entry *domain.KnowledgeEntry) error {
	const query = `
        INSERT INTO knowledge_entries (id, pattern, answer, source, usage_count, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.Pattern,
		entry.Answer,
		entry.Source,
		entry.UsageCount,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (r *knowledgeRepository) Upsert(ctx context.Context, pattern, answer string, now time.Time) (*domain.KnowledgeEntry, bool, error) {
	// xmax is zero only for a freshly inserted row version.
	const query = `
        INSERT INTO knowledge_entries (id, pattern, answer, source, usage_count, created_at, updated_at)
        VALUES ($1,$2,$3,$4,0,$5,$5)
        ON CONFLICT (pattern) DO UPDATE SET answer=EXCLUDED.answer, updated_at=EXCLUDED.updated_at
        RETURNING ` + knowledgeColumns + `, (xmax = 0) AS inserted`
	var entry domain.KnowledgeEntry
	var inserted bool
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), pattern, answer, domain.KnowledgeSourceSupervisor, now).Scan(
		&entry.ID,
		&entry.Pattern,
		&entry.Answer,
		&entry.Source,
		&entry.UsageCount,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, err
	}
	return &entry, inserted, nil
}

func (r *knowledgeRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+knowledgeColumns+` FROM knowledge_entries WHERE id=$1`, id)
	entry, err := scanKnowledge(row)
	if err != nil {
		return nil, notFound(err)
	}
	return entry, nil
}

func (r *knowledgeRepository) All(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	return r.query(ctx, `SELECT `+knowledgeColumns+` FROM knowledge_entries ORDER BY seq ASC`)
}

func (r *knowledgeRepository) List(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	return r.query(ctx, `SELECT `+knowledgeColumns+` FROM knowledge_entries ORDER BY updated_at DESC, seq ASC`)
}

func (r *knowledgeRepository) IncrementUsage(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	const query = `
        UPDATE knowledge_entries SET usage_count = usage_count + 1
        WHERE id=$1
        RETURNING ` + knowledgeColumns
	entry, err := scanKnowledge(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return entry, nil
}

func (r *knowledgeRepository) query(ctx context.Context, query string) ([]domain.KnowledgeEntry, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.KnowledgeEntry
	for rows.Next() {
		entry, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

func scanKnowledge(row pgx.Row) (*domain.KnowledgeEntry, error) {
	var entry domain.KnowledgeEntry
	if err := row.Scan(
		&entry.ID,
		&entry.Pattern,
		&entry.Answer,
		&entry.Source,
		&entry.UsageCount,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}
