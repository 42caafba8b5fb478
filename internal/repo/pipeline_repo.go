package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Reelforge/internal/domain"
)

// PipelineRepo — репозиторий pipeline-документов поверх Postgres.
type PipelineRepo struct {
	pool *pgxpool.Pool
}

// NewPipelineRepo создаёт новый PipelineRepo.
func NewPipelineRepo(pool *pgxpool.Pool) *PipelineRepo {
	return &PipelineRepo{pool: pool}
}

// CreatePipeline сохраняет новый pipeline.
func (r *PipelineRepo) CreatePipeline(ctx context.Context, p *domain.Pipeline) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pipeline: %w", err)
	}

	query := `
		INSERT INTO pipelines (id, status, idempotency_key, doc, created_at, finished_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.Status,
		p.IdempotencyKey,
		doc,
		p.CreatedAt,
		p.FinishedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", err)
	}
	return nil
}

// SavePipeline атомарно замещает документ pipeline.
func (r *PipelineRepo) SavePipeline(ctx context.Context, p *domain.Pipeline) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pipeline: %w", err)
	}

	query := `
		UPDATE pipelines
		SET status = $2, doc = $3, finished_at = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, p.ID, p.Status, doc, p.FinishedAt)
	if err != nil {
		return fmt.Errorf("update pipeline: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPipeline возвращает pipeline по ID.
func (r *PipelineRepo) GetPipeline(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	query := `SELECT doc FROM pipelines WHERE id = $1`

	var doc []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline by id: %w", err)
	}

	return unmarshalPipeline(doc)
}

// GetPipelineByIdempotencyKey возвращает pipeline по ключу идемпотентности.
func (r *PipelineRepo) GetPipelineByIdempotencyKey(ctx context.Context, key string) (*domain.Pipeline, error) {
	query := `SELECT doc FROM pipelines WHERE idempotency_key = $1`

	var doc []byte
	err := r.pool.QueryRow(ctx, query, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline by idempotency key: %w", err)
	}

	return unmarshalPipeline(doc)
}

// ListPipelines возвращает pipelines, новые первыми.
func (r *PipelineRepo) ListPipelines(ctx context.Context, status domain.PipelineStatus, limit int) ([]*domain.Pipeline, error) {
	query := `
		SELECT doc FROM pipelines
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	return scanPipelines(rows)
}

// ListUnfinishedPipelines возвращает pipelines в нетерминальных статусах.
func (r *PipelineRepo) ListUnfinishedPipelines(ctx context.Context) ([]*domain.Pipeline, error) {
	query := `
		SELECT doc FROM pipelines
		WHERE status IN ($1, $2)
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, domain.PipelineStatusActive, domain.PipelineStatusPaused)
	if err != nil {
		return nil, fmt.Errorf("list unfinished pipelines: %w", err)
	}
	defer rows.Close()

	return scanPipelines(rows)
}

func scanPipelines(rows pgx.Rows) ([]*domain.Pipeline, error) {
	var pipelines []*domain.Pipeline
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		p, err := unmarshalPipeline(doc)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}

func unmarshalPipeline(doc []byte) (*domain.Pipeline, error) {
	var p domain.Pipeline
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pipeline: %w", err)
	}
	return &p, nil
}

// isUniqueViolation проверяет код 23505 (unique_violation).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
