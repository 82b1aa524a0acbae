package model

import (
	"encoding/json"
	"time"
)

// TaskStatus is the lifecycle state of a background run.
type TaskStatus string

// Task status constants.
const (
	TaskPending  TaskStatus = "pending"
	TaskRunning  TaskStatus = "running"
	TaskComplete TaskStatus = "complete"
	TaskError    TaskStatus = "error"
)

// Task is the pollable status record for a background classification or
// sync run. It is mutated only by the worker that owns it; other callers
// read snapshots through the registry.
type Task struct {
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	ID        string          `json:"id"`
	Status    TaskStatus      `json:"status"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Progress  int             `json:"progress"`
}

// Terminal reports whether the task has finished, successfully or not.
func (t *Task) Terminal() bool {
	return t.Status == TaskComplete || t.Status == TaskError
}
