package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/playsignal/tracker/internal/tracker"
)

// Engine evaluates per-agent triggers and conditions for each domain event
// and produces delivery tasks.
type Engine struct {
	configs []AgentConfig
	deduper Deduper
	logger  *zap.Logger
}

// NewEngine creates a trigger engine over the enabled agent configs.
func NewEngine(configs []AgentConfig, deduper Deduper, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{configs: configs, deduper: deduper, logger: logger}
}

// Evaluate returns one task per agent that subscribes to the event's kind,
// passes every condition predicate, and is not suppressed by the dedup window.
func (e *Engine) Evaluate(ctx context.Context, ev tracker.Event) []Task {
	var tasks []Task
	payload := renderPayload(ev)
	for _, c := range e.configs {
		if !subscribed(c, ev.Kind) {
			continue
		}
		if !conditionsPass(c.Conditions, ev) {
			continue
		}
		if !e.deduper.Allow(ctx, c.ID, ev.Session.SessionKey, string(ev.Kind)) {
			e.logger.Debug("notification suppressed by dedup window",
				zap.String("agent_id", c.ID),
				zap.String("session_key", ev.Session.SessionKey),
				zap.String("kind", string(ev.Kind)))
			continue
		}
		tasks = append(tasks, Task{
			ID:      uuid.New(),
			AgentID: c.ID,
			Event:   ev,
			Payload: payload,
		})
	}
	return tasks
}

// Run consumes the engine's event feed until it is closed, handing produced
// tasks to the dispatcher.
func (e *Engine) Run(ctx context.Context, events <-chan tracker.Event, d *Dispatcher) {
	for ev := range events {
		if tasks := e.Evaluate(ctx, ev); len(tasks) > 0 {
			d.Dispatch(ctx, tasks)
		}
	}
	e.logger.Info("notification trigger engine stopped")
}

func subscribed(c AgentConfig, kind tracker.EventKind) bool {
	for _, t := range c.Triggers {
		if t == string(kind) {
			return true
		}
	}
	return false
}

func conditionsPass(cond Conditions, ev tracker.Event) bool {
	s := ev.Session
	return allowListed(cond.Users, s.UserName, s.UserID) &&
		allowListed(cond.Libraries, s.Library) &&
		allowListed(cond.MediaTypes, s.MediaType)
}

// allowListed passes when the list is empty or any candidate matches.
func allowListed(list []string, candidates ...string) bool {
	if len(list) == 0 {
		return true
	}
	for _, allowed := range list {
		for _, c := range candidates {
			if c != "" && c == allowed {
				return true
			}
		}
	}
	return false
}
