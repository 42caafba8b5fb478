package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultHTTPTimeout = 15 * time.Second

// Ошибки backend-клиента.
var (
	// ErrNoHistory — backend не знает job (или история ещё пуста).
	// Не фатально: статусный API backend'а бывает "молчалив" даже для
	// реально завершённых jobs.
	ErrNoHistory = errors.New("no history for job")

	// ErrBadResponse — backend вернул не-2xx или неразбираемый ответ.
	ErrBadResponse = errors.New("unexpected backend response")
)

// Client — HTTP-клиент compute backend'а (ComfyUI-совместимый API).
//
// Backend медленный и ненадёжный: клиент только транспорт, интерпретация
// неоднозначных ответов — дело Execution Tracker'а и его стратегий.
type Client struct {
	baseURL  string
	clientID string
	httpc    *http.Client
	logger   *slog.Logger
}

// NewClient создаёт клиент backend'а.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  baseURL,
		clientID: uuid.New().String(),
		httpc:    &http.Client{Timeout: defaultHTTPTimeout},
		logger:   logger,
	}
}

// QueuePrompt ставит workflow в очередь backend'а.
// Возвращает opaque ID job'а (prompt_id).
func (c *Client) QueuePrompt(ctx context.Context, workflow json.RawMessage) (string, error) {
	payload := map[string]any{
		"prompt":    json.RawMessage(workflow),
		"client_id": c.clientID,
	}

	var resp struct {
		PromptID string `json:"prompt_id"`
	}
	if err := c.postJSON(ctx, "/prompt", payload, &resp); err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	if resp.PromptID == "" {
		return "", fmt.Errorf("%w: empty prompt_id", ErrBadResponse)
	}

	c.logger.Debug("prompt queued", "prompt_id", resp.PromptID)
	return resp.PromptID, nil
}

// HistoryStatus — структурированный статус job'а из /history.
type HistoryStatus struct {
	// Completed — явный маркер успеха.
	Completed bool `json:"completed"`

	// StatusStr — строковый статус ("success", "error", ...).
	// Поле появляется не во всех версиях backend'а.
	StatusStr string `json:"status_str"`
}

// HistoryEntry — запись истории одного job'а.
type HistoryEntry struct {
	Status  HistoryStatus              `json:"status"`
	Outputs map[string]json.RawMessage `json:"outputs"`
}

// History запрашивает историю job'а по ID.
// Возвращает ErrNoHistory, если записи нет — это НЕ означает,
// что job не выполнен (известная неконсистентность статусного API).
func (c *Client) History(ctx context.Context, jobID string) (*HistoryEntry, error) {
	var entries map[string]HistoryEntry
	if err := c.getJSON(ctx, "/history/"+jobID, &entries); err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	entry, ok := entries[jobID]
	if !ok {
		return nil, ErrNoHistory
	}
	return &entry, nil
}

// SystemStats — снимок ресурсов backend'а из /system_stats.
type SystemStats struct {
	Devices []DeviceStats `json:"devices"`
}

// DeviceStats — память одного устройства.
type DeviceStats struct {
	Name      string `json:"name"`
	VRAMTotal int64  `json:"vram_total"`
	VRAMFree  int64  `json:"vram_free"`
}

// SystemStats запрашивает статистику ресурсов backend'а.
func (c *Client) SystemStats(ctx context.Context) (*SystemStats, error) {
	var stats SystemStats
	if err := c.getJSON(ctx, "/system_stats", &stats); err != nil {
		return nil, fmt.Errorf("system stats: %w", err)
	}
	return &stats, nil
}

// VRAMFree возвращает свободную память первого устройства.
// Реализует tracker.StatsProvider; ошибка означает "телеметрия недоступна".
func (c *Client) VRAMFree(ctx context.Context) (int64, error) {
	stats, err := c.SystemStats(ctx)
	if err != nil {
		return 0, err
	}
	if len(stats.Devices) == 0 {
		return 0, fmt.Errorf("%w: no devices", ErrBadResponse)
	}
	return stats.Devices[0].VRAMFree, nil
}

// Interrupt просит backend прервать текущий job. Best effort:
// кооперативная отмена pipeline корректна и без него.
func (c *Client) Interrupt(ctx context.Context) error {
	if err := c.postJSON(ctx, "/interrupt", struct{}{}, nil); err != nil {
		return fmt.Errorf("interrupt: %w", err)
	}
	return nil
}

// --- HTTP helpers ---

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s: HTTP %d", ErrBadResponse, req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrBadResponse, req.URL.Path, err)
	}
	return nil
}
