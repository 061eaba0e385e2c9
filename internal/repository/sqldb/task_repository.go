package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"task-board/internal/domain"
	"task-board/internal/repository"
)

const selectTask = `
SELECT id, task_desc, status, created_at
FROM tasks`

type TaskRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewTaskRepository(db *sql.DB, dialect Dialect) repository.TaskRepository {
	return &TaskRepository{db: db, dialect: dialect}
}

func (r *TaskRepository) Init(ctx context.Context) error {
	if err := execAll(ctx, r.db, r.dialect.tasksSchema); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	return nil
}

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) (int64, error) {
	task.CreatedAt = time.Now().UTC()
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}

	const insert = `
INSERT INTO tasks (task_desc, status, created_at)
VALUES (?, ?, ?)`

	var id int64
	if r.dialect.returning {
		err := r.db.QueryRowContext(ctx, r.dialect.Rebind(insert+` RETURNING id`),
			task.Description,
			string(task.Status),
			task.CreatedAt,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert task: %w", err)
		}
	} else {
		res, err := r.db.ExecContext(ctx, r.dialect.Rebind(insert),
			task.Description,
			string(task.Status),
			task.CreatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert task: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("get last insert id: %w", err)
		}
	}

	task.ID = id
	return id, nil
}

func (r *TaskRepository) Get(ctx context.Context, id int64) (*domain.Task, error) {
	return r.get(ctx, r.db, id)
}

func (r *TaskRepository) List(ctx context.Context, limit, offset int) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(selectTask+`
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`),
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}

	return tasks, rows.Err()
}

func (r *TaskRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return total, nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, id int64, status domain.TaskStatus) (*domain.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	task, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, r.dialect.Rebind(`UPDATE tasks SET status=? WHERE id=?`), string(status), id); err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task update: %w", err)
	}

	task.Status = status
	return task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, id int64) (*domain.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	task, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM tasks WHERE id=?`), id)
	if err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("task delete rows affected: %w", err)
	}
	if aff == 0 {
		return nil, repository.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task delete: %w", err)
	}
	return task, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *TaskRepository) get(ctx context.Context, q rowQuerier, id int64) (*domain.Task, error) {
	row := q.QueryRowContext(ctx, r.dialect.Rebind(selectTask+`
WHERE id=?`),
		id,
	)
	return scanTask(row)
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*domain.Task, error) {
	var (
		task      domain.Task
		status    string
		createdAt time.Time
	)

	if err := scanner.Scan(
		&task.ID,
		&task.Description,
		&status,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Status = domain.TaskStatus(status)
	task.CreatedAt = createdAt.UTC()
	return &task, nil
}
