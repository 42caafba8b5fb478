package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// PipelineStats — агрегат по состояниям задач.
type PipelineStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Ready     int `json:"ready"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// PipelineResponse — pipeline из API.
type PipelineResponse struct {
	ID             string        `json:"id"`
	Name           string        `json:"name,omitempty"`
	Status         string        `json:"status"`
	Stats          PipelineStats `json:"stats"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CreatedAt      string        `json:"created_at"`
	FinishedAt     string        `json:"finished_at,omitempty"`
}

// TaskResponse — задача pipeline из API.
type TaskResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	DependsOn   []string        `json:"depends_on,omitempty"`
	State       string          `json:"state"`
	Class       string          `json:"class"`
	Required    bool            `json:"required"`
	Output      json.RawMessage `json:"output,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	RetryCount  int             `json:"retry_count"`
	RetryBudget int             `json:"retry_budget"`
	StartedAt   string          `json:"started_at,omitempty"`
	FinishedAt  string          `json:"finished_at,omitempty"`
}

// AttemptResponse — запись попытки выполнения из API.
type AttemptResponse struct {
	ID         string `json:"id"`
	PipelineID string `json:"pipeline_id"`
	TaskID     string `json:"task_id"`
	Attempt    int    `json:"attempt"`
	Outcome    string `json:"outcome"`
	Strategy   string `json:"strategy,omitempty"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

// ScheduleResponse — расписание из API.
type ScheduleResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Template       json.RawMessage `json:"template"`
	CronExpr       string          `json:"cron_expr,omitempty"`
	IntervalSec    int             `json:"interval_sec,omitempty"`
	Timezone       string          `json:"timezone"`
	Enabled        bool            `json:"enabled"`
	NextDueAt      string          `json:"next_due_at,omitempty"`
	LastRunAt      string          `json:"last_run_at,omitempty"`
	LastPipelineID string          `json:"last_pipeline_id,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// --- Request types ---

// CreateScheduleRequest — создание расписания.
type CreateScheduleRequest struct {
	Name        string          `json:"name"`
	Template    json.RawMessage `json:"template"`
	CronExpr    string          `json:"cron_expr,omitempty"`
	IntervalSec int             `json:"interval_sec,omitempty"`
	Timezone    string          `json:"timezone,omitempty"`
	Enabled     bool            `json:"enabled"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client — HTTP-клиент Reelforge API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт Client для указанного адреса API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Pipelines ---

// ListPipelines возвращает pipelines. Пустой status — без фильтра.
func (c *Client) ListPipelines(status string, limit int) ([]PipelineResponse, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var pipelines []PipelineResponse
	err := c.list("/api/v1/pipelines", params, &pipelines)
	return pipelines, err
}

// SubmitPipeline сабмитит pipeline-документ (сырой JSON).
func (c *Client) SubmitPipeline(doc json.RawMessage) (*PipelineResponse, error) {
	var pipeline PipelineResponse
	err := c.post("/api/v1/pipelines", doc, &pipeline)
	return &pipeline, err
}

// GetPipeline возвращает pipeline по ID.
func (c *Client) GetPipeline(id string) (*PipelineResponse, error) {
	var pipeline PipelineResponse
	err := c.get("/api/v1/pipelines/"+id, &pipeline)
	return &pipeline, err
}

// CancelPipeline отменяет pipeline.
func (c *Client) CancelPipeline(id string) (*PipelineResponse, error) {
	var pipeline PipelineResponse
	err := c.post("/api/v1/pipelines/"+id+"/cancel", nil, &pipeline)
	return &pipeline, err
}

// PausePipeline приостанавливает pipeline.
func (c *Client) PausePipeline(id string) (*PipelineResponse, error) {
	var pipeline PipelineResponse
	err := c.post("/api/v1/pipelines/"+id+"/pause", nil, &pipeline)
	return &pipeline, err
}

// ResumePipeline возобновляет pipeline.
func (c *Client) ResumePipeline(id string) (*PipelineResponse, error) {
	var pipeline PipelineResponse
	err := c.post("/api/v1/pipelines/"+id+"/resume", nil, &pipeline)
	return &pipeline, err
}

// ListTasks возвращает задачи pipeline.
func (c *Client) ListTasks(pipelineID string) ([]TaskResponse, error) {
	var tasks []TaskResponse
	err := c.list("/api/v1/pipelines/"+pipelineID+"/tasks", nil, &tasks)
	return tasks, err
}

// ListAttempts возвращает журнал попыток pipeline.
// Если taskID не пустой — только попытки этой задачи.
func (c *Client) ListAttempts(pipelineID, taskID string) ([]AttemptResponse, error) {
	path := "/api/v1/pipelines/" + pipelineID + "/attempts"
	if taskID != "" {
		path = "/api/v1/pipelines/" + pipelineID + "/tasks/" + taskID + "/attempts"
	}

	var attempts []AttemptResponse
	err := c.list(path, nil, &attempts)
	return attempts, err
}

// --- Schedules ---

// ListSchedules возвращает все расписания.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// CreateSchedule создаёт расписание.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает расписание по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет расписание.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// EnableSchedule включает расписание.
func (c *Client) EnableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": true}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// DisableSchedule выключает расписание.
func (c *Client) DisableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": false}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if lr.Data == nil {
		return nil
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
