package service

import (
	"context"
	"math"

	"task-board/internal/domain"
	"task-board/internal/repository"
)

const (
	DefaultPage  = 1
	DefaultLimit = 5
	MaxLimit     = 100

	maxPage = math.MaxInt32 / MaxLimit
)

// TaskPage is one window of the task list plus the overall row count.
type TaskPage struct {
	Items []domain.Task
	Total int64
	Page  int
	Limit int
}

// TaskService validates task operations and delegates to the repository.
type TaskService interface {
	CreateTask(ctx context.Context, description string) (*domain.Task, error)
	GetTask(ctx context.Context, id int64) (*domain.Task, error)
	ListTasks(ctx context.Context, page, limit int) (*TaskPage, error)
	UpdateStatus(ctx context.Context, id int64, status domain.TaskStatus) (*domain.Task, error)
	DeleteTask(ctx context.Context, id int64) (*domain.Task, error)
}

type taskService struct {
	tasks repository.TaskRepository
}

func NewTaskService(tasks repository.TaskRepository) TaskService {
	return &taskService{tasks: tasks}
}

func (s *taskService) CreateTask(ctx context.Context, description string) (*domain.Task, error) {
	if description == "" {
		return nil, domain.NewValidationError("task_desc is required")
	}

	task := &domain.Task{
		Description: description,
		Status:      domain.TaskStatusPending,
	}
	if _, err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *taskService) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	return s.tasks.Get(ctx, id)
}

func (s *taskService) ListTasks(ctx context.Context, page, limit int) (*TaskPage, error) {
	page, limit = NormalizePage(page, limit)

	items, err := s.tasks.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	// count runs separately; under concurrent writes it may disagree with items
	total, err := s.tasks.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &TaskPage{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

func (s *taskService) UpdateStatus(ctx context.Context, id int64, status domain.TaskStatus) (*domain.Task, error) {
	if status == "" {
		return nil, domain.NewValidationError("status is required")
	}
	if !status.Valid() {
		return nil, domain.NewValidationError("invalid status")
	}
	return s.tasks.UpdateStatus(ctx, id, status)
}

func (s *taskService) DeleteTask(ctx context.Context, id int64) (*domain.Task, error) {
	return s.tasks.Delete(ctx, id)
}

// NormalizePage applies defaults to out-of-range pagination input.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}
