package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/playsignal/tracker/internal/models"
	"github.com/playsignal/tracker/pkg/queue"
)

// Delivery failure reasons recorded in the notification log.
const (
	ReasonTimeout       = "timeout"
	ReasonAgentRejected = "agent_rejected"
	ReasonNetworkError  = "network_error"
	ReasonUnknownAgent  = "unknown_agent"
)

// DeliveryLog records delivery outcomes for the operational log feed.
type DeliveryLog interface {
	Insert(ctx context.Context, row models.NotificationLog) error
}

// DispatcherConfig tunes delivery concurrency and retries.
type DispatcherConfig struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	DeliveryTimeout time.Duration
	MaxInFlight     int
}

// Dispatcher fans tasks out to agent sinks. Every task is delivered
// independently: one agent's failure or latency never delays another's
// delivery of the same event. Total in-flight deliveries are bounded.
type Dispatcher struct {
	agents map[string]Agent
	log    DeliveryLog        // optional
	dlq    *queue.DeadLetter  // optional
	cfg    DispatcherConfig
	logger *zap.Logger

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// NewDispatcher creates a dispatcher over the given sinks. log and dlq may be nil.
func NewDispatcher(agents []Agent, log DeliveryLog, dlq *queue.DeadLetter, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 16
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 15 * time.Second
	}
	byID := make(map[string]Agent, len(agents))
	for _, a := range agents {
		byID[a.ID()] = a
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		agents: byID,
		log:    log,
		dlq:    dlq,
		cfg:    cfg,
		logger: logger,
		sem:    make(chan struct{}, cfg.MaxInFlight),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Dispatch hands each task to the worker pool and returns without waiting
// for deliveries to finish.
func (d *Dispatcher) Dispatch(_ context.Context, tasks []Task) {
	for _, task := range tasks {
		d.wg.Add(1)
		go d.deliver(task)
	}
}

func (d *Dispatcher) deliver(task Task) {
	defer d.wg.Done()

	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-d.ctx.Done():
		return
	}

	agent, ok := d.agents[task.AgentID]
	if !ok {
		d.finish(task, false, 0, ReasonUnknownAgent)
		return
	}

	var reason string
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(d.ctx, d.cfg.DeliveryTimeout)
		err := agent.Deliver(attemptCtx, task.Payload)
		cancel()

		if err == nil {
			d.finish(task, true, attempt, "")
			return
		}
		reason = classify(err)
		d.logger.Warn("notification delivery failed",
			zap.Error(err),
			zap.String("agent_id", task.AgentID),
			zap.String("reason", reason),
			zap.Int("attempt", attempt))

		if attempt < d.cfg.MaxAttempts {
			backoff := d.cfg.BackoffBase << uint(attempt-1)
			select {
			case <-d.ctx.Done():
				d.finish(task, false, attempt, reason)
				return
			case <-time.After(backoff):
			}
		}
	}
	d.finish(task, false, d.cfg.MaxAttempts, reason)
}

// finish records the outcome. Failures after retry exhaustion also land on
// the dead-letter list for inspection; neither path is pipeline-fatal.
func (d *Dispatcher) finish(task Task, success bool, attempts int, reason string) {
	if success {
		d.delivered.Add(1)
	} else {
		d.failed.Add(1)
	}

	logCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if d.log != nil {
		row := models.NotificationLog{
			TaskID:     task.ID,
			AgentID:    task.AgentID,
			EventKind:  string(task.Event.Kind),
			SessionKey: task.Event.Session.SessionKey,
			Success:    success,
			Attempts:   attempts,
			Reason:     reason,
		}
		if err := d.log.Insert(logCtx, row); err != nil {
			d.logger.Warn("notification log write failed", zap.Error(err))
		}
	}
	if !success && d.dlq != nil {
		entry := queue.Entry{
			TaskID:     task.ID.String(),
			AgentID:    task.AgentID,
			EventKind:  string(task.Event.Kind),
			SessionKey: task.Event.Session.SessionKey,
			Reason:     reason,
			Attempts:   attempts,
			FailedAt:   time.Now(),
		}
		if err := d.dlq.Push(logCtx, entry); err != nil {
			d.logger.Warn("dead letter push failed", zap.Error(err))
		}
	}
}

// Close waits up to grace for in-flight deliveries, then aborts the rest.
func (d *Dispatcher) Close(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		d.logger.Warn("shutdown grace elapsed, aborting in-flight deliveries")
	}
	d.cancel()
	d.logger.Info("dispatcher stopped",
		zap.Uint64("delivered", d.delivered.Load()),
		zap.Uint64("failed", d.failed.Load()))
}

// Counters returns total successful and finally-failed deliveries.
func (d *Dispatcher) Counters() (delivered, failed uint64) {
	return d.delivered.Load(), d.failed.Load()
}

func classify(err error) string {
	var agentErr *AgentError
	switch {
	case errors.As(err, &agentErr):
		return ReasonAgentRejected
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonNetworkError
	}
}
