package mediaserver

import "fmt"

// RawSession is one active stream as reported by the media server.
type RawSession struct {
	SessionKey        string `json:"session_key"`
	UserID            string `json:"user_id"`
	UserName          string `json:"user_name"`
	MediaID           string `json:"media_id"`
	MediaTitle        string `json:"media_title"`
	MediaType         string `json:"media_type"`
	Library           string `json:"library"`
	Player            string `json:"player"`
	State             string `json:"state"` // playing, paused, buffering, stopped, error
	ViewOffsetMs      int64  `json:"view_offset_ms"`
	DurationMs        int64  `json:"duration_ms"`
	TranscodeDecision string `json:"transcode_decision"`
}

// StateUpdate is a lightweight play-state change pushed over the WebSocket
// stream. It only signals that a fresh snapshot should be fetched; the
// snapshot remains the single source of truth.
type StateUpdate struct {
	SessionKey   string `json:"session_key"`
	State        string `json:"state"`
	ViewOffsetMs int64  `json:"view_offset_ms"`
}

// SourceError indicates the snapshot fetch itself failed. Callers must treat
// it as "unknown", never as "zero sessions".
type SourceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("media server %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("media server %s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
