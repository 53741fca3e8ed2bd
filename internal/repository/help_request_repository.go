package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/escalation-service/internal/domain"
)

// HelpRequestFilter narrows help request listings.
type HelpRequestFilter struct {
	Status     *domain.HelpRequestStatus
	CustomerID *string
}

// HelpRequestRepository encapsulates help request persistence.
type HelpRequestRepository interface {
	Create(ctx context.Context, req *domain.HelpRequest) error
	Update(ctx context.Context, req *domain.HelpRequest) error
	GetByID(ctx context.Context, id string) (*domain.HelpRequest, error)
	// List returns matching requests, newest created first.
	List(ctx context.Context, filter HelpRequestFilter) ([]domain.HelpRequest, error)
	// ListOverdue returns pending requests whose deadline is before now.
	ListOverdue(ctx context.Context, now time.Time) ([]domain.HelpRequest, error)
	// Expire moves a single request to UNRESOLVED if it is still pending and
	// overdue at now. It reports whether the record changed.
	Expire(ctx context.Context, id string, now time.Time, fallback string) (bool, error)
}

type helpRequestRepository struct {
	pool *pgxpool.Pool
}

// NewHelpRequestRepository instantiates repository.
func NewHelpRequestRepository(pool *pgxpool.Pool) HelpRequestRepository {
	return &helpRequestRepository{pool: pool}
}

const helpRequestColumns = `id, customer_id, question, status, assigned_to, timeout_at,
               resolution_message, kb_entry_id, created_at, updated_at`

func (r *helpRequestRepository) Create(ctx context.Context, req *domain.HelpRequest) error {
	const query = `
        INSERT INTO help_requests (id, customer_id, question, status, assigned_to, timeout_at,
            resolution_message, kb_entry_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, query,
		req.ID,
		req.CustomerID,
		req.Question,
		req.Status,
		req.AssignedTo,
		req.TimeoutAt,
		req.ResolutionMessage,
		req.KBEntryID,
		req.CreatedAt,
		req.UpdatedAt,
	)
	return err
}

func (r *helpRequestRepository) Update(ctx context.Context, req *domain.HelpRequest) error {
	const query = `
        UPDATE help_requests SET status=$1, assigned_to=$2, resolution_message=$3, kb_entry_id=$4, updated_at=$5
        WHERE id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		req.Status,
		req.AssignedTo,
		req.ResolutionMessage,
		req.KBEntryID,
		req.UpdatedAt,
		req.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *helpRequestRepository) GetByID(ctx context.Context, id string) (*domain.HelpRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+helpRequestColumns+` FROM help_requests WHERE id=$1`, id)
	req, err := scanHelpRequest(row)
	if err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

func (r *helpRequestRepository) List(ctx context.Context, filter HelpRequestFilter) ([]domain.HelpRequest, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM help_requests WHERE %s ORDER BY created_at DESC, id ASC`,
		helpRequestColumns, strings.Join(clauses, " AND "))
	return r.query(ctx, query, args...)
}

func (r *helpRequestRepository) ListOverdue(ctx context.Context, now time.Time) ([]domain.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests
        WHERE status=$1 AND timeout_at < $2 ORDER BY timeout_at ASC`
	return r.query(ctx, query, domain.HelpRequestStatusPending, now)
}

func (r *helpRequestRepository) Expire(ctx context.Context, id string, now time.Time, fallback string) (bool, error) {
	const query = `
        UPDATE help_requests
        SET status=$1, updated_at=$2, resolution_message=COALESCE(resolution_message, $3)
        WHERE id=$4 AND status=$5 AND timeout_at < $2`
	cmd, err := r.pool.Exec(ctx, query,
		domain.HelpRequestStatusUnresolved,
		now,
		fallback,
		id,
		domain.HelpRequestStatusPending,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *helpRequestRepository) query(ctx context.Context, query string, args ...any) ([]domain.HelpRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.HelpRequest
	for rows.Next() {
		req, err := scanHelpRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

func scanHelpRequest(row pgx.Row) (*domain.HelpRequest, error) {
	var req domain.HelpRequest
	if err := row.Scan(
		&req.ID,
		&req.CustomerID,
		&req.Question,
		&req.Status,
		&req.AssignedTo,
		&req.TimeoutAt,
		&req.ResolutionMessage,
		&req.KBEntryID,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}
