package models

import (
	"time"

	"github.com/google/uuid"
)

// Sandbox run status enums.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

type SandboxRun struct {
	ID          uuid.UUID  `json:"id"`
	ProfileID   uuid.UUID  `json:"profile_id"`
	Code        string     `json:"code"`
	Status      string     `json:"status"`
	Output      string     `json:"output"`
	Error       *string    `json:"error,omitempty"`
	Files       []string   `json:"files"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
