package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Reelforge/internal/backend"
	"github.com/shaiso/Reelforge/internal/domain"
)

// Типы generation-задач.
const (
	TypeKeyframe    = "keyframe"
	TypeVideo       = "video"
	TypeUpscale     = "upscale"
	TypeInterpolate = "interpolate"
)

// generationPayload — общий формат payload generation-задач.
// Workflow — opaque граф backend'а: executor его не интерпретирует,
// только передаёт.
type generationPayload struct {
	Workflow     json.RawMessage `json:"workflow"`
	OutputDir    string          `json:"output_dir"`
	OutputPrefix string          `json:"output_prefix"`
	MinArtifacts int             `json:"min_artifacts"`
}

// generationOutput — результат успешной generation-задачи.
type generationOutput struct {
	JobID        string          `json:"job_id"`
	OutputDir    string          `json:"output_dir,omitempty"`
	OutputPrefix string          `json:"output_prefix,omitempty"`
	Outputs      json.RawMessage `json:"outputs,omitempty"`
}

// GenerationExecutor выполняет generation-задачи (keyframe, video,
// upscale, interpolate) через compute backend.
//
// Все четыре типа различаются только содержимым workflow-графа, поэтому
// исполняются одним executor'ом, зарегистрированным под каждым типом.
type GenerationExecutor struct {
	client *backend.Client
	logger *slog.Logger
}

// NewGenerationExecutor создаёт executor generation-задач.
func NewGenerationExecutor(client *backend.Client, logger *slog.Logger) *GenerationExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationExecutor{client: client, logger: logger}
}

// RegisterGenerationExecutors регистрирует executor под всеми
// generation-типами.
func RegisterGenerationExecutors(reg *Registry, exec *GenerationExecutor) {
	for _, t := range []string{TypeKeyframe, TypeVideo, TypeUpscale, TypeInterpolate} {
		reg.Register(t, exec)
	}
}

// Submit ставит workflow задачи в очередь backend'а.
func (e *GenerationExecutor) Submit(ctx context.Context, task *domain.Task) (JobHandle, error) {
	payload, err := parseGenerationPayload(task.Payload)
	if err != nil {
		return JobHandle{}, err
	}

	jobID, err := e.client.QueuePrompt(ctx, payload.Workflow)
	if err != nil {
		return JobHandle{}, fmt.Errorf("submit %s task %s: %w", task.Type, task.ID, err)
	}

	e.logger.Info("task submitted to backend",
		"task_id", task.ID,
		"task_type", task.Type,
		"job_id", jobID,
	)

	return JobHandle{
		ID:           jobID,
		OutputDir:    payload.OutputDir,
		OutputPrefix: payload.OutputPrefix,
		MinArtifacts: payload.MinArtifacts,
	}, nil
}

// PollStatus опрашивает статусный API backend'а.
// Отсутствие истории транслируется в Pending: "молчание" статусного API
// не означает, что job не выполняется (и не означает, что выполняется —
// решают стратегии tracker'а).
func (e *GenerationExecutor) PollStatus(ctx context.Context, handle JobHandle) (Status, error) {
	entry, err := e.client.History(ctx, handle.ID)
	if err != nil {
		if errors.Is(err, backend.ErrNoHistory) {
			return Pending(), nil
		}
		return Status{}, err
	}

	if entry.Status.StatusStr == "error" {
		return Failed(fmt.Sprintf("backend reported error for job %s", handle.ID), false), nil
	}

	if entry.Status.Completed || entry.Status.StatusStr == "success" {
		outputs, _ := json.Marshal(entry.Outputs)
		out, err := json.Marshal(generationOutput{
			JobID:        handle.ID,
			OutputDir:    handle.OutputDir,
			OutputPrefix: handle.OutputPrefix,
			Outputs:      outputs,
		})
		if err != nil {
			return Status{}, fmt.Errorf("marshal output: %w", err)
		}
		return Success(out), nil
	}

	return Pending(), nil
}

func parseGenerationPayload(raw json.RawMessage) (*generationPayload, error) {
	if len(raw) == 0 {
		return nil, Fatal(fmt.Errorf("%w: empty payload", ErrInvalidPayload))
	}

	var payload generationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, Fatal(fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	}
	if len(payload.Workflow) == 0 {
		return nil, Fatal(fmt.Errorf("%w: missing workflow", ErrInvalidPayload))
	}

	return &payload, nil
}
