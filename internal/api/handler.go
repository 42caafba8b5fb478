package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Reelforge/internal/domain"
	"github.com/shaiso/Reelforge/internal/repo"
)

// PipelineControl — управляющие операции планировщика, нужные API.
type PipelineControl interface {
	Submit(ctx context.Context, p *domain.Pipeline) (uuid.UUID, error)
	Pause(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store   repo.Store
	control PipelineControl
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store   repo.Store
	Control PipelineControl
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   cfg.Store,
		control: cfg.Control,
		logger:  logger,
	}
}
