package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationLog records the outcome of one notification delivery: a success
// or a final failure after the retry budget is exhausted.
type NotificationLog struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	AgentID    string    `json:"agent_id"`
	EventKind  string    `json:"event_kind"`
	SessionKey string    `json:"session_key"`
	Success    bool      `json:"success"`
	Attempts   int       `json:"attempts"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
