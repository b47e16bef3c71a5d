package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/taskflow-api/internal/models"
	appErrors "github.com/noah-isme/taskflow-api/pkg/errors"
	"github.com/noah-isme/taskflow-api/pkg/export"
)

type taskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	ListByOwner(ctx context.Context, userID int64, filter models.TaskFilter) ([]models.Task, error)
	FindByOwner(ctx context.Context, id, userID int64) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id, userID int64) error
}

// TaskExport is a rendered task listing ready for download.
type TaskExport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// TaskService manages tasks on behalf of an authenticated owner.
type TaskService struct {
	repo      taskRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTaskService creates an instance of TaskService.
func NewTaskService(repo taskRepository, validate *validator.Validate, logger *zap.Logger) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TaskService{repo: repo, validator: validate, logger: logger}
}

// Create stores a new task owned by owner.
func (s *TaskService) Create(ctx context.Context, owner *models.User, req models.TaskRequest) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}

	task := &models.Task{Title: req.Title, Description: req.Description, Status: req.Status, UserID: owner.ID}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create task")
	}
	return task, nil
}

// List returns the owner's tasks, optionally filtered by status.
func (s *TaskService) List(ctx context.Context, owner *models.User, filter models.TaskFilter) ([]models.Task, error) {
	tasks, err := s.repo.ListByOwner(ctx, owner.ID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	return tasks, nil
}

// Update replaces an owned task. Tasks owned by someone else are reported as not found.
func (s *TaskService) Update(ctx context.Context, owner *models.User, id int64, req models.TaskRequest) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}

	task, err := s.repo.FindByOwner(ctx, id, owner.ID)
	if err != nil {
		return nil, s.mapLookupError(err, "failed to load task")
	}

	task.Title = req.Title
	task.Description = req.Description
	task.Status = req.Status
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, s.mapLookupError(err, "failed to update task")
	}
	return task, nil
}

// Delete removes an owned task.
func (s *TaskService) Delete(ctx context.Context, owner *models.User, id int64) error {
	if err := s.repo.Delete(ctx, id, owner.ID); err != nil {
		return s.mapLookupError(err, "failed to delete task")
	}
	s.logger.Info("task deleted", zap.Int64("task_id", id), zap.Int64("user_id", owner.ID))
	return nil
}

// Export renders the owner's tasks in the requested format.
func (s *TaskService) Export(ctx context.Context, owner *models.User, filter models.TaskFilter, rawFormat string) (*TaskExport, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}

	tasks, err := s.List(ctx, owner, filter)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Tasks for %s", owner.Username),
		Headers: []string{"id", "title", "description", "status"},
		Rows:    make([]map[string]string, 0, len(tasks)),
	}
	for _, task := range tasks {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":          strconv.FormatInt(task.ID, 10),
			"title":       task.Title,
			"description": task.Description,
			"status":      task.Status,
		})
	}

	body, err := export.Render(format, dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &TaskExport{
		Filename:    fmt.Sprintf("tasks-%s.%s", time.Now().UTC().Format("20060102-150405"), format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

func (s *TaskService) mapLookupError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "task not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
