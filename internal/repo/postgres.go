package repo

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore объединяет репозитории в полный Store поверх одного пула.
type PostgresStore struct {
	*PipelineRepo
	*AttemptRepo
	*ScheduleRepo
}

var _ Store = (*PostgresStore)(nil)

// NewStore создаёт PostgresStore.
func NewStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		PipelineRepo: NewPipelineRepo(pool),
		AttemptRepo:  NewAttemptRepo(pool),
		ScheduleRepo: NewScheduleRepo(pool),
	}
}
