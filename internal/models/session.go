package models

import "time"

// PlayState is the reported play state of a session.
type PlayState string

const (
	PlayStatePlaying   PlayState = "playing"
	PlayStatePaused    PlayState = "paused"
	PlayStateBuffering PlayState = "buffering"
	PlayStateStopped   PlayState = "stopped"
	PlayStateError     PlayState = "error"
)

// SessionSnapshot is an immutable value copy of a tracked session, handed to
// event consumers and API readers. The live state is owned by the tracker.
type SessionSnapshot struct {
	SessionKey        string     `json:"session_key"`
	UserID            string     `json:"user_id"`
	UserName          string     `json:"user_name"`
	MediaID           string     `json:"media_id"`
	MediaTitle        string     `json:"media_title"`
	MediaType         string     `json:"media_type"`
	Library           string     `json:"library"`
	Player            string     `json:"player"`
	State             PlayState  `json:"state"`
	ViewOffsetMs      int64      `json:"view_offset_ms"`
	DurationMs        int64      `json:"duration_ms"`
	TranscodeDecision string     `json:"transcode_decision"`
	StartedAt         time.Time  `json:"started_at"`
	LastSeenAt        time.Time  `json:"last_seen_at"`
	StoppedAt         *time.Time `json:"stopped_at,omitempty"`
	PausedSeconds     int64      `json:"paused_seconds"`
	Watched           bool       `json:"watched"`
}

// Progress returns view offset as a fraction of duration, or 0 when duration is unknown.
func (s SessionSnapshot) Progress() float64 {
	if s.DurationMs <= 0 {
		return 0
	}
	return float64(s.ViewOffsetMs) / float64(s.DurationMs)
}
