package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playsignal/tracker/internal/models"
	"github.com/playsignal/tracker/internal/tracker"
)

// Agent is a notification sink. Implementations deliver a rendered payload
// over an agent-specific protocol; the dispatcher is agnostic to it.
type Agent interface {
	ID() string
	Kind() string
	Deliver(ctx context.Context, payload Payload) error
}

// Payload is the rendered notification handed to an agent.
type Payload struct {
	Event   string                 `json:"event"`
	Summary string                 `json:"summary"`
	At      time.Time              `json:"at"`
	Session models.SessionSnapshot `json:"session"`
}

// Task is one unit of delivery work: a payload bound to a single agent.
type Task struct {
	ID      uuid.UUID
	AgentID string
	Event   tracker.Event
	Payload Payload
}

// AgentError marks a delivery rejected by the agent endpoint itself, as
// opposed to a transport failure.
type AgentError struct {
	StatusCode int
	Msg        string
}

func (e *AgentError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("agent rejected delivery: %s", e.Msg)
	}
	return fmt.Sprintf("agent rejected delivery: status %d", e.StatusCode)
}

// renderPayload builds the notification payload for an event.
func renderPayload(ev tracker.Event) Payload {
	s := ev.Session
	var summary string
	switch ev.Kind {
	case tracker.EventStarted:
		summary = fmt.Sprintf("%s started playing %s (%s)", s.UserName, s.MediaTitle, s.MediaType)
	case tracker.EventPaused:
		summary = fmt.Sprintf("%s paused %s", s.UserName, s.MediaTitle)
	case tracker.EventResumed:
		summary = fmt.Sprintf("%s resumed %s", s.UserName, s.MediaTitle)
	case tracker.EventBuffering:
		summary = fmt.Sprintf("%s is buffering on %s (%s)", s.UserName, s.MediaTitle, s.Player)
	case tracker.EventWatched:
		summary = fmt.Sprintf("%s has watched %s", s.UserName, s.MediaTitle)
	case tracker.EventStopped:
		summary = fmt.Sprintf("%s stopped %s", s.UserName, s.MediaTitle)
	case tracker.EventError:
		summary = fmt.Sprintf("playback error for %s on %s", s.UserName, s.Player)
	default:
		summary = fmt.Sprintf("%s: %s", ev.Kind, s.MediaTitle)
	}
	return Payload{Event: string(ev.Kind), Summary: summary, At: ev.At, Session: s}
}
