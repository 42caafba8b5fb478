package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/shaiso/Reelforge/internal/domain"
)

// Ошибки admission queue.
var (
	// ErrInvalidConfiguration — ёмкость класса нулевая или отрицательная.
	ErrInvalidConfiguration = errors.New("invalid admission queue configuration")

	// ErrUnknownClass — запрошен незарегистрированный класс ресурсов.
	ErrUnknownClass = errors.New("unknown resource class")
)

// Default capacities.
const (
	// DefaultHeavyCapacity — одновременных тяжёлых задач на backend.
	// GPU-backend деградирует уже при двух параллельных генерациях.
	DefaultHeavyCapacity = 2

	// DefaultLightCapacity — лёгкие задачи фактически не ограничиваем.
	DefaultLightCapacity = 64
)

// AdmissionQueue — ограничитель одновременности по классам ресурсов.
//
// Каждый класс имеет независимую ёмкость. Acquire блокируется (без
// busy-spin), пока слот не освободится; ожидающие обслуживаются FIFO.
// Отмена контекста снимает ожидающего, не теряя слот.
//
// Экземпляр создаётся явно и передаётся планировщику — никакого
// process-wide синглтона; один экземпляр могут разделять несколько
// pipeline'ов.
type AdmissionQueue struct {
	sems  map[domain.ResourceClass]*semaphore.Weighted
	inUse map[domain.ResourceClass]*atomic.Int64
}

// New создаёт AdmissionQueue с указанными ёмкостями классов.
// Нулевая или отрицательная ёмкость — ErrInvalidConfiguration
// (а не "бесконечность": молчаливые бесконечные лимиты уже приводили
// к OOM backend'а).
func New(capacities map[domain.ResourceClass]int64) (*AdmissionQueue, error) {
	if len(capacities) == 0 {
		return nil, fmt.Errorf("%w: no resource classes", ErrInvalidConfiguration)
	}

	q := &AdmissionQueue{
		sems:  make(map[domain.ResourceClass]*semaphore.Weighted, len(capacities)),
		inUse: make(map[domain.ResourceClass]*atomic.Int64, len(capacities)),
	}

	for class, cap := range capacities {
		if cap <= 0 {
			return nil, fmt.Errorf("%w: class %q capacity %d", ErrInvalidConfiguration, class, cap)
		}
		q.sems[class] = semaphore.NewWeighted(cap)
		q.inUse[class] = &atomic.Int64{}
	}

	return q, nil
}

// NewDefault создаёт очередь со стандартными ёмкостями heavy/light.
func NewDefault() *AdmissionQueue {
	q, err := New(map[domain.ResourceClass]int64{
		domain.ClassHeavy: DefaultHeavyCapacity,
		domain.ClassLight: DefaultLightCapacity,
	})
	if err != nil {
		// Недостижимо: константы валидны.
		panic(err)
	}
	return q
}

// Acquire блокируется до получения слота класса class.
// Возвращает ошибку контекста, если ожидание отменено: ожидающий
// при этом снимается без утечки фантомного слота.
func (q *AdmissionQueue) Acquire(ctx context.Context, class domain.ResourceClass) (*Slot, error) {
	sem, ok := q.sems[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	q.inUse[class].Add(1)
	return &Slot{queue: q, class: class}, nil
}

// TryAcquire пытается получить слот без ожидания.
func (q *AdmissionQueue) TryAcquire(class domain.ResourceClass) (*Slot, bool) {
	sem, ok := q.sems[class]
	if !ok || !sem.TryAcquire(1) {
		return nil, false
	}

	q.inUse[class].Add(1)
	return &Slot{queue: q, class: class}, true
}

// InUse возвращает количество занятых слотов класса.
func (q *AdmissionQueue) InUse(class domain.ResourceClass) int64 {
	c, ok := q.inUse[class]
	if !ok {
		return 0
	}
	return c.Load()
}

// Slot — единица разрешения на выполнение одной задачи своего класса.
// Выдаётся ровно одному держателю; Release идемпотентен.
type Slot struct {
	queue    *AdmissionQueue
	class    domain.ResourceClass
	released sync.Once
}

// Class возвращает класс ресурсов слота.
func (s *Slot) Class() domain.ResourceClass {
	return s.class
}

// Release возвращает слот в очередь. Повторные вызовы — no-op.
func (s *Slot) Release() {
	s.released.Do(func() {
		s.queue.inUse[s.class].Add(-1)
		s.queue.sems[s.class].Release(1)
	})
}
