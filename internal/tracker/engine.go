package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/playsignal/tracker/internal/mediaserver"
	"github.com/playsignal/tracker/internal/models"
)

// SnapshotSource lists the currently active sessions on the media server.
type SnapshotSource interface {
	ListActiveSessions(ctx context.Context) ([]mediaserver.RawSession, error)
}

// EngineConfig tunes the tick loop.
type EngineConfig struct {
	PollInterval  time.Duration
	FetchTimeout  time.Duration
	QueueTicks    bool // queue one trigger arriving mid-tick instead of dropping it
	EventBuffer   int
	ShutdownGrace time.Duration
}

// Stats are operational counters exposed to the dashboard surface.
type Stats struct {
	ActiveSessions int    `json:"active_sessions"`
	TicksCompleted uint64 `json:"ticks_completed"`
	SourceFailures uint64 `json:"source_failures"`
	EventsEmitted  uint64 `json:"events_emitted"`
	EventsDropped  uint64 `json:"events_dropped"`
}

// Engine runs the reconciliation loop. Ticks are strictly serialized: the
// loop goroutine is the only mutator of the session store. Emitted event
// batches are handed to the history and notify consumers through buffered
// channels so the next tick never waits on them.
type Engine struct {
	source    SnapshotSource
	rec       *Reconciler
	publisher EventPublisher
	cfg       EngineConfig
	logger    *zap.Logger

	trigger   chan struct{}
	historyCh chan Event
	notifyCh  chan Event

	mu      sync.Mutex // guards rec for Sessions()/Stats() readers
	ticking atomic.Bool

	ticks   atomic.Uint64
	emitted atomic.Uint64
	dropped atomic.Uint64
}

// NewEngine creates the tick engine. publisher may be nil.
func NewEngine(source SnapshotSource, rec *Reconciler, publisher EventPublisher, cfg EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	return &Engine{
		source:    source,
		rec:       rec,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
		historyCh: make(chan Event, cfg.EventBuffer),
		notifyCh:  make(chan Event, cfg.EventBuffer),
	}
}

// HistoryEvents is the ordered event feed for the history writer. Closed at shutdown.
func (e *Engine) HistoryEvents() <-chan Event { return e.historyCh }

// NotifyEvents is the ordered event feed for the notification engine. Closed at shutdown.
func (e *Engine) NotifyEvents() <-chan Event { return e.notifyCh }

// Poke requests an immediate reconcile tick, e.g. on a push notification.
// In queue mode at most one pending trigger is kept; in skip mode a trigger
// arriving while a tick runs is dropped.
func (e *Engine) Poke() {
	if !e.cfg.QueueTicks && e.ticking.Load() {
		return
	}
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, then flushes live sessions to terminal
// events and closes the consumer channels.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.logger.Info("tracker engine started",
		zap.Duration("poll_interval", e.cfg.PollInterval),
		zap.Bool("queue_ticks", e.cfg.QueueTicks))

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case <-ticker.C:
			e.tick(ctx)
		case <-e.trigger:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	e.ticking.Store(true)
	defer e.ticking.Store(false)

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	snapshot, err := e.source.ListActiveSessions(fetchCtx)
	cancel()

	e.mu.Lock()
	if err != nil {
		e.rec.OnSourceFailure()
		e.mu.Unlock()
		e.logger.Warn("snapshot fetch failed", zap.Error(err))
		return
	}
	events := e.rec.Reconcile(snapshot, time.Now())
	e.mu.Unlock()

	e.ticks.Add(1)
	for _, ev := range events {
		e.deliver(ev)
	}
}

func (e *Engine) deliver(ev Event) {
	e.emitted.Add(1)
	if e.publisher != nil {
		e.publisher.PublishEvent(ev)
	}
	e.send(e.historyCh, ev, "history")
	e.send(e.notifyCh, ev, "notify")
}

func (e *Engine) send(ch chan Event, ev Event, consumer string) {
	select {
	case ch <- ev:
	default:
		e.dropped.Add(1)
		e.logger.Warn("event dropped, consumer backlogged",
			zap.String("consumer", consumer),
			zap.String("kind", string(ev.Kind)),
			zap.String("session_key", ev.Session.SessionKey))
	}
}

// shutdown flushes all live sessions to Stopped events and drains them
// best-effort within the grace period before closing the channels.
func (e *Engine) shutdown() {
	e.mu.Lock()
	events := e.rec.Flush(time.Now())
	e.mu.Unlock()

	deadline := time.Now().Add(e.cfg.ShutdownGrace)
	for _, ev := range events {
		e.emitted.Add(1)
		if e.publisher != nil {
			e.publisher.PublishEvent(ev)
		}
		e.sendUntil(e.historyCh, ev, deadline)
		e.sendUntil(e.notifyCh, ev, deadline)
	}
	close(e.historyCh)
	close(e.notifyCh)
	e.logger.Info("tracker engine stopped", zap.Int("flushed_sessions", len(events)))
}

func (e *Engine) sendUntil(ch chan Event, ev Event, deadline time.Time) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		e.dropped.Add(1)
		e.logger.Warn("event dropped at shutdown", zap.String("session_key", ev.Session.SessionKey))
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case ch <- ev:
	case <-timer.C:
		e.dropped.Add(1)
		e.logger.Warn("event dropped at shutdown", zap.String("session_key", ev.Session.SessionKey))
	}
}

// Sessions returns value copies of the live sessions, reflecting the last
// successful reconciliation tick.
func (e *Engine) Sessions() []models.SessionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Sessions()
}

// Stats returns the engine's operational counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	active := e.rec.Len()
	failures := e.rec.SourceFailures()
	e.mu.Unlock()
	return Stats{
		ActiveSessions: active,
		TicksCompleted: e.ticks.Load(),
		SourceFailures: failures,
		EventsEmitted:  e.emitted.Load(),
		EventsDropped:  e.dropped.Load(),
	}
}
