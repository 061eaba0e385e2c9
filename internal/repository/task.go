package repository

import (
	"context"

	"task-board/internal/domain"
)

// ErrNotFound is returned by repositories when no row matches the lookup.
var ErrNotFound = domain.ErrNotFound

// TaskRepository exposes persistence operations for Task records.
type TaskRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, task *domain.Task) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Task, error)
	List(ctx context.Context, limit, offset int) ([]domain.Task, error)
	Count(ctx context.Context) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status domain.TaskStatus) (*domain.Task, error)
	Delete(ctx context.Context, id int64) (*domain.Task, error)
}
