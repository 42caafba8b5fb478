package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Reelforge/internal/domain"
)

// AttemptRepo — журнал попыток выполнения поверх Postgres.
// Записи не мутируются после вставки.
type AttemptRepo struct {
	pool *pgxpool.Pool
}

// NewAttemptRepo создаёт новый AttemptRepo.
func NewAttemptRepo(pool *pgxpool.Pool) *AttemptRepo {
	return &AttemptRepo{pool: pool}
}

// CreateAttempt сохраняет запись попытки.
func (r *AttemptRepo) CreateAttempt(ctx context.Context, a *domain.ExecutionAttempt) error {
	telemetry, err := json.Marshal(a.Telemetry)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	query := `
		INSERT INTO execution_attempts
			(id, pipeline_id, task_id, attempt, outcome, strategy, error, started_at, finished_at, telemetry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		a.ID,
		a.PipelineID,
		a.TaskID,
		a.Attempt,
		a.Outcome,
		a.Strategy,
		a.Error,
		a.StartedAt,
		a.FinishedAt,
		telemetry,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// ListAttempts возвращает попытки задачи в порядке номеров.
func (r *AttemptRepo) ListAttempts(ctx context.Context, pipelineID uuid.UUID, taskID string) ([]*domain.ExecutionAttempt, error) {
	query := `
		SELECT id, pipeline_id, task_id, attempt, outcome, strategy, error, started_at, finished_at, telemetry
		FROM execution_attempts
		WHERE pipeline_id = $1 AND task_id = $2
		ORDER BY attempt
	`
	rows, err := r.pool.Query(ctx, query, pipelineID, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// ListPipelineAttempts возвращает все попытки pipeline.
func (r *AttemptRepo) ListPipelineAttempts(ctx context.Context, pipelineID uuid.UUID) ([]*domain.ExecutionAttempt, error) {
	query := `
		SELECT id, pipeline_id, task_id, attempt, outcome, strategy, error, started_at, finished_at, telemetry
		FROM execution_attempts
		WHERE pipeline_id = $1
		ORDER BY started_at
	`
	rows, err := r.pool.Query(ctx, query, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list pipeline attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

func scanAttempts(rows pgx.Rows) ([]*domain.ExecutionAttempt, error) {
	var attempts []*domain.ExecutionAttempt
	for rows.Next() {
		var a domain.ExecutionAttempt
		var telemetry []byte
		if err := rows.Scan(
			&a.ID,
			&a.PipelineID,
			&a.TaskID,
			&a.Attempt,
			&a.Outcome,
			&a.Strategy,
			&a.Error,
			&a.StartedAt,
			&a.FinishedAt,
			&telemetry,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}

		if err := json.Unmarshal(telemetry, &a.Telemetry); err != nil {
			return nil, fmt.Errorf("unmarshal telemetry: %w", err)
		}

		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}
