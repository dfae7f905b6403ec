package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/services/tasks"
)

// TaskHandler exposes the task service over HTTP. Responses are the
// service envelopes serialized as-is.
type TaskHandler struct {
	service *tasks.Service
	logger  arbor.ILogger
}

func NewTaskHandler(service *tasks.Service, logger arbor.ILogger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger,
	}
}

// CollectionHandler handles /api/tasks: GET lists, POST creates
func (h *TaskHandler) CollectionHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTasks(w, r)
	case http.MethodPost:
		h.createTask(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TaskHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	filter := &interfaces.TaskFilter{
		Name:      r.URL.Query().Get("name"),
		CrawlerID: r.URL.Query().Get("crawler_id"),
		IsAuto:    QueryBool(r, "is_auto"),
		IsActive:  QueryBool(r, "is_active"),
		SortBy:    r.URL.Query().Get("sort_by"),
		SortDesc:  r.URL.Query().Get("order") == "desc",
		Page:      QueryInt(r, "page", 0),
		PerPage:   QueryInt(r, "per_page", 0),
	}

	var previewFields []string
	if fields := r.URL.Query().Get("fields"); fields != "" {
		previewFields = strings.Split(fields, ",")
	}

	WriteResult(w, h.service.FindTasksAdvanced(r.Context(), filter, previewFields))
}

func (h *TaskHandler) createTask(w http.ResponseWriter, r *http.Request) {
	body, err := DecodeBody(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	WriteResult(w, h.service.CreateTask(r.Context(), body))
}

// ItemHandler handles /api/tasks/{id} and its sub-resources
func (h *TaskHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	taskID := PathID(r, "/api/tasks/")
	if taskID == "" {
		WriteError(w, http.StatusBadRequest, "task id is required")
		return
	}

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/execute"):
		h.executeTask(w, r, taskID)
	case strings.HasSuffix(path, "/cancel"):
		h.cancelTask(w, r, taskID)
	case strings.HasSuffix(path, "/status"):
		h.taskStatus(w, r, taskID)
	case strings.HasSuffix(path, "/history"):
		h.taskHistory(w, r, taskID)
	case strings.HasSuffix(path, "/retries/increment"):
		h.incrementRetries(w, r, taskID)
	case strings.HasSuffix(path, "/retries/reset"):
		h.resetRetries(w, r, taskID)
	case strings.HasSuffix(path, "/retries"):
		h.updateMaxRetries(w, r, taskID)
	default:
		h.taskItem(w, r, taskID)
	}
}

func (h *TaskHandler) taskItem(w http.ResponseWriter, r *http.Request, taskID string) {
	switch r.Method {
	case http.MethodGet:
		WriteResult(w, h.service.GetTaskByID(r.Context(), taskID, QueryBool(r, "is_active")))
	case http.MethodPut:
		body, err := DecodeBody(r)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		WriteResult(w, h.service.UpdateTask(r.Context(), taskID, body))
	case http.MethodDelete:
		WriteResult(w, h.service.DeleteTask(r.Context(), taskID))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// executeTask launches a task in the background and returns immediately.
// Progress is observable over the WebSocket or the status endpoint.
func (h *TaskHandler) executeTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	// the request context dies when this handler returns; the run gets its own
	go func() {
		if _, err := h.service.ExecuteTask(context.Background(), taskID); err != nil {
			h.logger.Warn().Err(err).Str("task_id", taskID).Msg("Task execution failed to start")
		}
	}()

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"task_id": taskID,
		"message": "task execution started",
	})
}

func (h *TaskHandler) cancelTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	WriteResult(w, h.service.CancelTask(taskID))
}

func (h *TaskHandler) taskStatus(w http.ResponseWriter, r *http.Request, taskID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteResult(w, h.service.GetTaskStatus(r.Context(), taskID))
}

func (h *TaskHandler) taskHistory(w http.ResponseWriter, r *http.Request, taskID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	limit := QueryInt(r, "limit", 20)
	offset := QueryInt(r, "offset", 0)
	WriteResult(w, h.service.FindTaskHistory(r.Context(), taskID, limit, offset))
}

func (h *TaskHandler) incrementRetries(w http.ResponseWriter, r *http.Request, taskID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	WriteResult(w, h.service.IncrementRetryCount(r.Context(), taskID))
}

func (h *TaskHandler) resetRetries(w http.ResponseWriter, r *http.Request, taskID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	WriteResult(w, h.service.ResetRetryCount(r.Context(), taskID))
}

func (h *TaskHandler) updateMaxRetries(w http.ResponseWriter, r *http.Request, taskID string) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}
	body, err := DecodeBody(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	raw, ok := body["max_retries"].(float64)
	if !ok {
		WriteError(w, http.StatusBadRequest, "max_retries must be an integer")
		return
	}
	WriteResult(w, h.service.UpdateMaxRetries(r.Context(), taskID, int(raw)))
}

// ValidateHandler runs the task create schema without persisting anything
func (h *TaskHandler) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	body, err := DecodeBody(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	WriteResult(w, h.service.ValidateTaskData(body))
}
