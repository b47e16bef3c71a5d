package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/taskflow-api/internal/models"
)

// TaskRepository provides database access for tasks. Every read and write is
// scoped by the owning user id.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository creates a new instance of TaskRepository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a task and fills in its generated id.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	const query = `INSERT INTO tasks (title, description, status, user_id) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, task.Title, task.Description, task.Status, task.UserID).Scan(&task.ID); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's tasks, optionally filtered by exact status.
func (r *TaskRepository) ListByOwner(ctx context.Context, userID int64, filter models.TaskFilter) ([]models.Task, error) {
	query := `SELECT id, title, description, status, user_id FROM tasks WHERE user_id = $1`
	args := []interface{}{userID}
	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY id`

	tasks := make([]models.Task, 0)
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// FindByOwner returns a single task. It returns sql.ErrNoRows when the task does
// not exist or belongs to someone else.
func (r *TaskRepository) FindByOwner(ctx context.Context, id, userID int64) (*models.Task, error) {
	const query = `SELECT id, title, description, status, user_id FROM tasks WHERE id = $1 AND user_id = $2 LIMIT 1`
	var task models.Task
	if err := r.db.GetContext(ctx, &task, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// Update replaces the mutable fields of an owned task.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	const query = `UPDATE tasks SET title = $1, description = $2, status = $3 WHERE id = $4 AND user_id = $5`
	res, err := r.db.ExecContext(ctx, query, task.Title, task.Description, task.Status, task.ID, task.UserID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectAffected(res)
}

// Delete removes an owned task.
func (r *TaskRepository) Delete(ctx context.Context, id, userID int64) error {
	const query = `DELETE FROM tasks WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
