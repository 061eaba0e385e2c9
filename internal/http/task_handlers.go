package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"task-board/internal/domain"
)

type createTaskRequest struct {
	TaskDesc string `json:"task_desc"`
}

type updateTaskRequest struct {
	Status domain.TaskStatus `json:"status"`
}

type TaskResponse struct {
	ID        int64             `json:"id"`
	TaskDesc  string            `json:"task_desc"`
	Status    domain.TaskStatus `json:"status"`
	CreatedAt string            `json:"created_at"`
}

type TaskListResponse struct {
	Data  []TaskResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

func (h *Handler) createTask(c *gin.Context) {
	if _, ok := h.currentIdentity(c); !ok {
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), req.TaskDesc)
	if err != nil {
		h.respondError(c, "failed to create task", err)
		return
	}

	c.JSON(http.StatusCreated, taskToResponse(*task))
}

func (h *Handler) listTasks(c *gin.Context) {
	if _, ok := h.currentIdentity(c); !ok {
		return
	}

	// unparsable values fall back to the defaults
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	result, err := h.tasks.ListTasks(c.Request.Context(), page, limit)
	if err != nil {
		h.respondError(c, "failed to fetch tasks", err)
		return
	}

	resp := TaskListResponse{
		Data:  make([]TaskResponse, len(result.Items)),
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
	}
	for i := range result.Items {
		resp.Data[i] = taskToResponse(result.Items[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getTask(c *gin.Context) {
	if _, ok := h.currentIdentity(c); !ok {
		return
	}

	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "failed to fetch task", err)
		return
	}

	c.JSON(http.StatusOK, taskToResponse(*task))
}

func (h *Handler) updateTask(c *gin.Context) {
	if _, ok := h.currentIdentity(c); !ok {
		return
	}

	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	task, err := h.tasks.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.respondError(c, "failed to update task", err)
		return
	}

	c.JSON(http.StatusOK, taskToResponse(*task))
}

func (h *Handler) deleteTask(c *gin.Context) {
	if _, ok := h.currentIdentity(c); !ok {
		return
	}

	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	task, err := h.tasks.DeleteTask(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "failed to delete task", err)
		return
	}

	c.JSON(http.StatusOK, taskToResponse(*task))
}

func parseTaskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return 0, false
	}
	return id, true
}

func taskToResponse(task domain.Task) TaskResponse {
	return TaskResponse{
		ID:        task.ID,
		TaskDesc:  task.Description,
		Status:    task.Status,
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	}
}
