package repo

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
)

// MemoryStore — in-memory реализация Store.
//
// Используется тестами и локальным режимом без Postgres. Семантика
// повторяет PipelineRepo/AttemptRepo/ScheduleRepo: значения глубоко
// копируются на входе и выходе, чтобы вызывающий не делил память
// с хранилищем.
type MemoryStore struct {
	mu        sync.RWMutex
	pipelines map[uuid.UUID][]byte
	byKey     map[string]uuid.UUID
	createdAt map[uuid.UUID]time.Time
	attempts  []*domain.ExecutionAttempt
	schedules map[uuid.UUID]*domain.Schedule
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pipelines: make(map[uuid.UUID][]byte),
		byKey:     make(map[string]uuid.UUID),
		createdAt: make(map[uuid.UUID]time.Time),
		schedules: make(map[uuid.UUID]*domain.Schedule),
	}
}

// --- PipelineStore ---

func (s *MemoryStore) CreatePipeline(_ context.Context, p *domain.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pipelines[p.ID]; ok {
		return ErrAlreadyExists
	}
	if p.IdempotencyKey != "" {
		if _, ok := s.byKey[p.IdempotencyKey]; ok {
			return ErrAlreadyExists
		}
	}

	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.pipelines[p.ID] = doc
	s.createdAt[p.ID] = p.CreatedAt
	if p.IdempotencyKey != "" {
		s.byKey[p.IdempotencyKey] = p.ID
	}
	return nil
}

func (s *MemoryStore) SavePipeline(_ context.Context, p *domain.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pipelines[p.ID]; !ok {
		return ErrNotFound
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.pipelines[p.ID] = doc
	return nil
}

func (s *MemoryStore) GetPipeline(_ context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.pipelines[id]
	if !ok {
		return nil, ErrNotFound
	}
	return unmarshalPipeline(doc)
}

func (s *MemoryStore) GetPipelineByIdempotencyKey(_ context.Context, key string) (*domain.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	return unmarshalPipeline(s.pipelines[id])
}

func (s *MemoryStore) ListPipelines(_ context.Context, status domain.PipelineStatus, limit int) ([]*domain.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Pipeline
	for _, doc := range s.pipelines {
		p, err := unmarshalPipeline(doc)
		if err != nil {
			return nil, err
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
	}

	// Новые первыми, как в Postgres-реализации
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListUnfinishedPipelines(_ context.Context) ([]*domain.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Pipeline
	for _, doc := range s.pipelines {
		p, err := unmarshalPipeline(doc)
		if err != nil {
			return nil, err
		}
		if p.Status.IsTerminal() {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// --- AttemptStore ---

func (s *MemoryStore) CreateAttempt(_ context.Context, a *domain.ExecutionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *a
	s.attempts = append(s.attempts, &copied)
	return nil
}

func (s *MemoryStore) ListAttempts(_ context.Context, pipelineID uuid.UUID, taskID string) ([]*domain.ExecutionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ExecutionAttempt
	for _, a := range s.attempts {
		if a.PipelineID == pipelineID && a.TaskID == taskID {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attempt < out[j].Attempt })
	return out, nil
}

func (s *MemoryStore) ListPipelineAttempts(_ context.Context, pipelineID uuid.UUID) ([]*domain.ExecutionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ExecutionAttempt
	for _, a := range s.attempts {
		if a.PipelineID == pipelineID {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// --- ScheduleStore ---

func (s *MemoryStore) CreateSchedule(_ context.Context, sch *domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[sch.ID]; ok {
		return ErrAlreadyExists
	}
	copied := *sch
	s.schedules[sch.ID] = &copied
	return nil
}

func (s *MemoryStore) UpdateSchedule(_ context.Context, sch *domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[sch.ID]; !ok {
		return ErrNotFound
	}
	copied := *sch
	s.schedules[sch.ID] = &copied
	return nil
}

func (s *MemoryStore) DeleteSchedule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[id]; !ok {
		return ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

func (s *MemoryStore) GetSchedule(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sch, ok := s.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *sch
	return &copied, nil
}

func (s *MemoryStore) ListSchedules(_ context.Context) ([]*domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Schedule, 0, len(s.schedules))
	for _, sch := range s.schedules {
		copied := *sch
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListDueSchedules(_ context.Context, now time.Time) ([]*domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Schedule
	for _, sch := range s.schedules {
		if sch.IsDue(now) {
			copied := *sch
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextDueAt.Before(*out[j].NextDueAt) })
	return out, nil
}
