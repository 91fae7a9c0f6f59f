package tracker

import (
	"time"

	"go.uber.org/zap"

	"github.com/playsignal/tracker/internal/mediaserver"
	"github.com/playsignal/tracker/internal/models"
)

// Config tunes the reconciliation state machine.
type Config struct {
	// GraceMissedPolls is how many consecutive snapshots a session may be
	// absent from before it is declared ended.
	GraceMissedPolls int
	// WatchedPercent is the view-offset/duration ratio that marks a play as
	// watched, emitting EventWatched exactly once per session.
	WatchedPercent float64
	// BufferDebounce is the window during which repeated buffering flaps
	// emit at most one EventBuffering.
	BufferDebounce time.Duration
}

// Reconciler diffs media-server snapshots against the in-memory session
// store and emits domain events. It is not safe for concurrent use; the
// Engine serializes all access.
type Reconciler struct {
	cfg            Config
	store          map[string]*sessionState
	logger         *zap.Logger
	sourceFailures uint64
}

// NewReconciler creates a reconciler with an empty session store.
func NewReconciler(cfg Config, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		cfg:    cfg,
		store:  make(map[string]*sessionState),
		logger: logger,
	}
}

// Reconcile applies one snapshot to the store and returns the resulting
// domain events. Sequence numbers are strictly increasing per session key.
func (r *Reconciler) Reconcile(snapshot []mediaserver.RawSession, now time.Time) []Event {
	var events []Event

	seen := make(map[string]struct{}, len(snapshot))
	for _, raw := range snapshot {
		if raw.SessionKey == "" {
			continue
		}
		seen[raw.SessionKey] = struct{}{}
		events = append(events, r.reconcileEntry(raw, now)...)
	}

	// Sessions absent from the snapshot age via their missed-poll counter.
	for key, s := range r.store {
		if _, ok := seen[key]; ok {
			continue
		}
		s.missedPolls++
		if s.missedPolls > r.cfg.GraceMissedPolls {
			events = append(events, r.endSession(s, now))
		}
	}

	return events
}

func (r *Reconciler) reconcileEntry(raw mediaserver.RawSession, now time.Time) []Event {
	s, exists := r.store[raw.SessionKey]
	newState := normalizeState(raw.State)

	// Explicit stop signal from the server ends the session immediately.
	if newState == models.PlayStateStopped {
		if !exists {
			return nil
		}
		s.applyRaw(raw)
		s.lastSeenAt = now
		return []Event{r.endSession(s, now)}
	}

	if !exists {
		s = newSessionState(raw, now)
		r.store[raw.SessionKey] = s
		events := []Event{r.emit(s, EventStarted, now)}
		if ev, ok := r.checkWatched(s, now); ok {
			events = append(events, ev)
		}
		r.logger.Debug("session started",
			zap.String("session_key", s.key),
			zap.String("user", s.userName),
			zap.String("media", s.mediaTitle))
		return events
	}

	var events []Event
	oldState := s.state
	if raw.UserID != s.userID {
		// Server-side reassignment: update in place, no new Started.
		r.logger.Warn("session user reassigned",
			zap.String("session_key", s.key),
			zap.String("old_user", s.userID),
			zap.String("new_user", raw.UserID))
	}
	if raw.TranscodeDecision != s.transcodeDecision && s.transcodeDecision != "" {
		r.logger.Info("transcode decision changed",
			zap.String("session_key", s.key),
			zap.String("from", s.transcodeDecision),
			zap.String("to", raw.TranscodeDecision))
	}
	s.applyRaw(raw)
	s.lastSeenAt = now
	s.missedPolls = 0

	if newState != oldState {
		if ev, ok := r.transition(s, oldState, newState, now); ok {
			events = append(events, ev)
		}
	}
	if ev, ok := r.checkWatched(s, now); ok {
		events = append(events, ev)
	}
	return events
}

// transition applies a play-state change and returns the event for it, if
// the change is considered real after debouncing.
func (r *Reconciler) transition(s *sessionState, from, to models.PlayState, now time.Time) (Event, bool) {
	switch to {
	case models.PlayStatePaused:
		s.state = to
		s.pausedAt = now
		return r.emit(s, EventPaused, now), true

	case models.PlayStatePlaying:
		s.state = to
		switch from {
		case models.PlayStatePaused:
			s.settlePause(now)
			return r.emit(s, EventResumed, now), true
		case models.PlayStateBuffering:
			// Resumed only when the stable state before the flap episode was
			// paused; a playing->buffering->playing flap is a no-op.
			if s.stableState == models.PlayStatePaused {
				s.settlePause(now)
				s.stableState = models.PlayStatePlaying
				return r.emit(s, EventResumed, now), true
			}
			return Event{}, false
		default:
			return Event{}, false
		}

	case models.PlayStateBuffering:
		if from == models.PlayStatePlaying || from == models.PlayStatePaused {
			s.stableState = from
		}
		s.state = to
		if s.lastBufferAt.IsZero() || now.Sub(s.lastBufferAt) > r.cfg.BufferDebounce {
			s.lastBufferAt = now
			return r.emit(s, EventBuffering, now), true
		}
		return Event{}, false

	case models.PlayStateError:
		s.state = to
		return r.emit(s, EventError, now), true
	}
	return Event{}, false
}

func (r *Reconciler) checkWatched(s *sessionState, now time.Time) (Event, bool) {
	if s.watched || s.durationMs <= 0 || r.cfg.WatchedPercent <= 0 {
		return Event{}, false
	}
	if float64(s.viewOffsetMs)/float64(s.durationMs) >= r.cfg.WatchedPercent {
		s.watched = true
		return r.emit(s, EventWatched, now), true
	}
	return Event{}, false
}

// endSession emits the terminal Stopped event and removes the session from
// the store. A session with the same key seen afterwards is a new session.
func (r *Reconciler) endSession(s *sessionState, now time.Time) Event {
	s.settlePause(now)
	stopped := now
	s.stoppedAt = &stopped
	s.state = models.PlayStateStopped
	delete(r.store, s.key)
	r.logger.Debug("session ended",
		zap.String("session_key", s.key),
		zap.String("user", s.userName),
		zap.Int64("view_offset_ms", s.viewOffsetMs))
	return r.emit(s, EventStopped, now)
}

func (r *Reconciler) emit(s *sessionState, kind EventKind, now time.Time) Event {
	return Event{Kind: kind, Seq: s.nextSeq(), At: now, Session: s.snapshot()}
}

// OnSourceFailure records a failed snapshot fetch. The tick is a no-op:
// missed-poll counters only age on successful ticks.
func (r *Reconciler) OnSourceFailure() {
	r.sourceFailures++
}

// SourceFailures returns the count of failed snapshot fetches.
func (r *Reconciler) SourceFailures() uint64 {
	return r.sourceFailures
}

// Flush ends every live session, emitting terminal Stopped events. Used at
// shutdown so history rows are closed out.
func (r *Reconciler) Flush(now time.Time) []Event {
	events := make([]Event, 0, len(r.store))
	for _, s := range r.store {
		events = append(events, r.endSession(s, now))
	}
	return events
}

// Sessions returns value copies of all live sessions.
func (r *Reconciler) Sessions() []models.SessionSnapshot {
	out := make([]models.SessionSnapshot, 0, len(r.store))
	for _, s := range r.store {
		out = append(out, s.snapshot())
	}
	return out
}

// Len returns the number of live sessions.
func (r *Reconciler) Len() int {
	return len(r.store)
}
