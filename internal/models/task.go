package models

// Task is a to-do item owned by a single user.
type Task struct {
	ID          int64  `db:"id" json:"id"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	Status      string `db:"status" json:"status"`
	UserID      int64  `db:"user_id" json:"user_id"`
}

// TaskRequest is the payload for creating or replacing a task.
type TaskRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Status      string `json:"status" validate:"required,max=32"`
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	Status string
}
