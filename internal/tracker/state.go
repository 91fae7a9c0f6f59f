package tracker

import (
	"time"

	"github.com/playsignal/tracker/internal/mediaserver"
	"github.com/playsignal/tracker/internal/models"
)

// sessionState is the live state machine for one playback session. It is
// owned exclusively by the Reconciler; everything handed outward is a value
// copy via snapshot().
type sessionState struct {
	key               string
	userID            string
	userName          string
	mediaID           string
	mediaTitle        string
	mediaType         string
	library           string
	player            string
	state             models.PlayState
	viewOffsetMs      int64
	durationMs        int64
	transcodeDecision string
	startedAt         time.Time
	lastSeenAt        time.Time
	stoppedAt         *time.Time

	pausedSeconds int64
	pausedAt      time.Time // set while state == paused

	missedPolls int
	watched     bool
	seq         uint64

	// buffering debounce
	lastBufferAt time.Time        // start of the current flap episode
	stableState  models.PlayState // last non-buffering state before the episode
}

func newSessionState(raw mediaserver.RawSession, now time.Time) *sessionState {
	s := &sessionState{
		key:        raw.SessionKey,
		startedAt:  now,
		lastSeenAt: now,
		state:      normalizeState(raw.State),
	}
	s.applyRaw(raw)
	return s
}

// applyRaw copies the snapshot entry's mutable attributes onto the state.
// Play-state transitions are handled separately by the reconciler.
func (s *sessionState) applyRaw(raw mediaserver.RawSession) {
	s.userID = raw.UserID
	s.userName = raw.UserName
	s.mediaID = raw.MediaID
	s.mediaTitle = raw.MediaTitle
	s.mediaType = raw.MediaType
	s.library = raw.Library
	s.player = raw.Player
	s.viewOffsetMs = raw.ViewOffsetMs
	s.durationMs = raw.DurationMs
	s.transcodeDecision = raw.TranscodeDecision
}

func (s *sessionState) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (s *sessionState) snapshot() models.SessionSnapshot {
	return models.SessionSnapshot{
		SessionKey:        s.key,
		UserID:            s.userID,
		UserName:          s.userName,
		MediaID:           s.mediaID,
		MediaTitle:        s.mediaTitle,
		MediaType:         s.mediaType,
		Library:           s.library,
		Player:            s.player,
		State:             s.state,
		ViewOffsetMs:      s.viewOffsetMs,
		DurationMs:        s.durationMs,
		TranscodeDecision: s.transcodeDecision,
		StartedAt:         s.startedAt,
		LastSeenAt:        s.lastSeenAt,
		StoppedAt:         s.stoppedAt,
		PausedSeconds:     s.pausedSeconds,
		Watched:           s.watched,
	}
}

// settlePause folds an open pause interval into pausedSeconds.
func (s *sessionState) settlePause(now time.Time) {
	if !s.pausedAt.IsZero() {
		s.pausedSeconds += int64(now.Sub(s.pausedAt).Seconds())
		s.pausedAt = time.Time{}
	}
}

func normalizeState(raw string) models.PlayState {
	switch raw {
	case "playing":
		return models.PlayStatePlaying
	case "paused":
		return models.PlayStatePaused
	case "buffering":
		return models.PlayStateBuffering
	case "stopped":
		return models.PlayStateStopped
	case "error":
		return models.PlayStateError
	default:
		return models.PlayStatePlaying
	}
}
