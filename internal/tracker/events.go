package tracker

import (
	"time"

	"github.com/playsignal/tracker/internal/models"
)

// EventKind tags a session state transition.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventPaused    EventKind = "paused"
	EventResumed   EventKind = "resumed"
	EventBuffering EventKind = "buffering"
	EventWatched   EventKind = "watched"
	EventStopped   EventKind = "stopped"
	EventError     EventKind = "error"
)

// Event is an immutable domain event emitted by the reconciler. Seq is
// strictly increasing per session key; consumers receive a session's events
// in emission order.
type Event struct {
	Kind    EventKind              `json:"kind"`
	Seq     uint64                 `json:"seq"`
	At      time.Time              `json:"at"`
	Session models.SessionSnapshot `json:"session"`
}

// EventPublisher receives every emitted event, e.g. for a pub/sub feed.
// Implementations must not block.
type EventPublisher interface {
	PublishEvent(ev Event)
}
