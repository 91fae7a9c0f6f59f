package history

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/playsignal/tracker/internal/models"
	"github.com/playsignal/tracker/internal/tracker"
)

// Repo is the narrow persistence interface the writer needs.
type Repo interface {
	Upsert(ctx context.Context, rec models.HistoryRecord) error
}

// WriterConfig tunes history persistence.
type WriterConfig struct {
	// MinWatchedSeconds: sessions whose view offset never reaches this many
	// seconds leave no history row. 0 disables the policy.
	MinWatchedSeconds int
	WriteTimeout      time.Duration
	MaxAttempts       int
	RetryBackoff      time.Duration
}

// Writer persists one idempotent history row per logical play. Persistence
// failures are retried with backoff and then counted; they never propagate
// into the event pipeline.
type Writer struct {
	repo   Repo
	cfg    WriterConfig
	logger *zap.Logger

	// session keys whose row has been created, so the min-watched policy
	// knows whether an update or a (possibly deferred) insert is pending.
	written map[string]bool

	writes   atomic.Uint64
	failures atomic.Uint64
	skipped  atomic.Uint64
}

// NewWriter creates a history writer.
func NewWriter(repo Repo, cfg WriterConfig, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Writer{repo: repo, cfg: cfg, logger: logger, written: make(map[string]bool)}
}

// Run consumes events until the channel is closed. Events arrive in per-key
// emission order and are recorded sequentially, so the one-row invariant
// holds without coordination.
func (w *Writer) Run(ctx context.Context, events <-chan tracker.Event) {
	for ev := range events {
		w.Record(ctx, ev)
	}
	w.logger.Info("history writer stopped",
		zap.Uint64("writes", w.writes.Load()),
		zap.Uint64("failures", w.failures.Load()))
}

// Record persists the event's session snapshot. The first qualifying event
// for a session inserts the row; every later event updates it in place.
func (w *Writer) Record(ctx context.Context, ev tracker.Event) {
	key := ev.Session.SessionKey
	terminal := ev.Kind == tracker.EventStopped

	if !w.qualifies(ev.Session) && !w.written[key] {
		// Below the min-watched threshold and no row yet: defer the insert.
		// A session that never qualifies leaves no row.
		if terminal {
			w.skipped.Add(1)
			w.logger.Debug("history row skipped below watch threshold",
				zap.String("session_key", key),
				zap.Int64("view_offset_ms", ev.Session.ViewOffsetMs))
		}
		return
	}

	if err := w.upsertWithRetry(ctx, toRecord(ev)); err != nil {
		w.failures.Add(1)
		w.logger.Error("history write abandoned",
			zap.Error(err),
			zap.String("session_key", key),
			zap.String("kind", string(ev.Kind)))
	} else {
		w.writes.Add(1)
		w.written[key] = true
	}

	if terminal {
		delete(w.written, key)
	}
}

func (w *Writer) qualifies(s models.SessionSnapshot) bool {
	if w.cfg.MinWatchedSeconds <= 0 {
		return true
	}
	return s.ViewOffsetMs/1000 >= int64(w.cfg.MinWatchedSeconds)
}

func (w *Writer) upsertWithRetry(ctx context.Context, rec models.HistoryRecord) error {
	var err error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, w.cfg.WriteTimeout)
		err = w.repo.Upsert(writeCtx, rec)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < w.cfg.MaxAttempts {
			w.logger.Warn("history write failed, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.String("session_key", rec.SessionKey))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
	}
	return err
}

// Failures returns the count of writes abandoned after retry exhaustion.
func (w *Writer) Failures() uint64 { return w.failures.Load() }

// Writes returns the count of successful history writes.
func (w *Writer) Writes() uint64 { return w.writes.Load() }

func toRecord(ev tracker.Event) models.HistoryRecord {
	s := ev.Session
	return models.HistoryRecord{
		SessionKey:        s.SessionKey,
		UserID:            s.UserID,
		UserName:          s.UserName,
		MediaID:           s.MediaID,
		MediaTitle:        s.MediaTitle,
		MediaType:         s.MediaType,
		Library:           s.Library,
		Player:            s.Player,
		StartedAt:         s.StartedAt,
		StoppedAt:         s.StoppedAt,
		ViewOffsetMs:      s.ViewOffsetMs,
		DurationMs:        s.DurationMs,
		PausedSeconds:     s.PausedSeconds,
		TranscodeDecision: s.TranscodeDecision,
		Watched:           s.Watched,
	}
}
