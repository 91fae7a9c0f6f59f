package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryRecord is one durable row per logical play. At most one row exists
// per (session_key, started_at); later events update the mutable fields.
type HistoryRecord struct {
	ID                uuid.UUID  `json:"id"`
	SessionKey        string     `json:"session_key"`
	UserID            string     `json:"user_id"`
	UserName          string     `json:"user_name"`
	MediaID           string     `json:"media_id"`
	MediaTitle        string     `json:"media_title"`
	MediaType         string     `json:"media_type"`
	Library           string     `json:"library"`
	Player            string     `json:"player"`
	StartedAt         time.Time  `json:"started_at"`
	StoppedAt         *time.Time `json:"stopped_at,omitempty"`
	ViewOffsetMs      int64      `json:"view_offset_ms"`
	DurationMs        int64      `json:"duration_ms"`
	PausedSeconds     int64      `json:"paused_seconds"`
	TranscodeDecision string     `json:"transcode_decision"`
	Watched           bool       `json:"watched"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
