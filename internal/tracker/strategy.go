package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shaiso/Reelforge/internal/backend"
	"github.com/shaiso/Reelforge/internal/executor"
)

// Имена стратегий обнаружения завершения (в порядке приоритета).
const (
	StrategyStatusHistory = "status_history"
	StrategySentinel      = "sentinel_marker"
	StrategyArtifact      = "artifact_scan"
)

// Strategy — один способ ответить на вопрос "завершился ли job".
//
// Стратегии проверяются в фиксированном порядке; первая, давшая
// определённый ответ (Resolved), выигрывает. Ошибка Check означает
// "ответить не смог" — цепочка продолжается.
type Strategy interface {
	Name() string
	Check(ctx context.Context, handle executor.JobHandle) (Resolution, error)
}

// Resolution — вердикт стратегии об одном job'е.
type Resolution struct {
	// Resolved — стратегия дала определённый ответ.
	// false — job ещё выполняется (или стратегии нечего сказать).
	Resolved bool

	// Success — job завершился успешно. Осмыслен только при Resolved.
	Success bool

	// Output — результат задачи при успехе.
	Output json.RawMessage

	// Reason — описание ошибки при неуспехе.
	Reason string

	// Fatal — ошибка не ретраится.
	Fatal bool
}

// unresolved — job ещё выполняется.
func unresolved() Resolution {
	return Resolution{}
}

// statusHistoryStrategy спрашивает статусный API backend'а через executor.
// Первая и самая точная стратегия: умеет отличать успех от явной ошибки.
type statusHistoryStrategy struct {
	exec executor.Executor
}

// NewStatusHistoryStrategy создаёт стратегию поверх статусного API.
func NewStatusHistoryStrategy(exec executor.Executor) Strategy {
	return &statusHistoryStrategy{exec: exec}
}

func (s *statusHistoryStrategy) Name() string { return StrategyStatusHistory }

func (s *statusHistoryStrategy) Check(ctx context.Context, handle executor.JobHandle) (Resolution, error) {
	status, err := s.exec.PollStatus(ctx, handle)
	if err != nil {
		return unresolved(), fmt.Errorf("poll status: %w", err)
	}

	switch status.Kind {
	case executor.StatusSuccess:
		return Resolution{Resolved: true, Success: true, Output: status.Output}, nil
	case executor.StatusFailed:
		return Resolution{Resolved: true, Success: false, Reason: status.Reason, Fatal: status.Fatal}, nil
	default:
		return unresolved(), nil
	}
}

// sentinelStrategy ищет done-маркер в выходном каталоге.
// Fallback на случай, когда статусный API молчит о завершённом job'е.
// Маркер пишется самим workflow, поэтому умеет сообщать только об успехе.
type sentinelStrategy struct{}

// NewSentinelStrategy создаёт стратегию done-маркера.
func NewSentinelStrategy() Strategy {
	return &sentinelStrategy{}
}

func (s *sentinelStrategy) Name() string { return StrategySentinel }

func (s *sentinelStrategy) Check(ctx context.Context, handle executor.JobHandle) (Resolution, error) {
	if handle.OutputDir == "" || handle.OutputPrefix == "" {
		return unresolved(), nil
	}

	marker, err := backend.ReadDoneMarker(handle.OutputDir, handle.OutputPrefix)
	if err != nil {
		if errors.Is(err, backend.ErrMarkerNotFound) {
			return unresolved(), nil
		}
		return unresolved(), err
	}

	out, err := json.Marshal(map[string]any{
		"job_id":        handle.ID,
		"output_dir":    handle.OutputDir,
		"output_prefix": handle.OutputPrefix,
		"frame_count":   marker.FrameCount,
	})
	if err != nil {
		return unresolved(), err
	}
	return Resolution{Resolved: true, Success: true, Output: out}, nil
}

// artifactStrategy считает выходные файлы. Последний рубеж: маркера нет,
// API молчит, но кадры на диске уже лежат.
type artifactStrategy struct{}

// NewArtifactStrategy создаёт стратегию подсчёта артефактов.
func NewArtifactStrategy() Strategy {
	return &artifactStrategy{}
}

func (s *artifactStrategy) Name() string { return StrategyArtifact }

func (s *artifactStrategy) Check(ctx context.Context, handle executor.JobHandle) (Resolution, error) {
	if handle.OutputDir == "" || handle.OutputPrefix == "" || handle.MinArtifacts <= 0 {
		return unresolved(), nil
	}

	n, err := backend.CountArtifacts(handle.OutputDir, handle.OutputPrefix)
	if err != nil {
		return unresolved(), err
	}
	if n < handle.MinArtifacts {
		return unresolved(), nil
	}

	out, err := json.Marshal(map[string]any{
		"job_id":        handle.ID,
		"output_dir":    handle.OutputDir,
		"output_prefix": handle.OutputPrefix,
		"frame_count":   n,
	})
	if err != nil {
		return unresolved(), err
	}
	return Resolution{Resolved: true, Success: true, Output: out}, nil
}

// DefaultStrategies возвращает стандартную цепочку стратегий для executor'а:
// статусный API, затем done-маркер, затем подсчёт артефактов.
func DefaultStrategies(exec executor.Executor) []Strategy {
	return []Strategy{
		NewStatusHistoryStrategy(exec),
		NewSentinelStrategy(),
		NewArtifactStrategy(),
	}
}
