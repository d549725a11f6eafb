package plugin

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultQueueSize is how many written letters may wait for delivery.
const DefaultQueueSize = 32

// Hook binds one plugin action to written letters.
type Hook struct {
	Plugin *Plugin
	Action string
}

func (h Hook) String() string {
	return h.Plugin.Manifest.Name + ":" + h.Action
}

// Resolve turns "plugin:action" bindings into hooks. Every plugin must be
// discovered and must list the action.
func (m *Manager) Resolve(bindings []string) ([]Hook, error) {
	hooks := make([]Hook, 0, len(bindings))
	for _, b := range bindings {
		name, action, ok := strings.Cut(b, ":")
		if !ok || name == "" || action == "" {
			return nil, fmt.Errorf("plugin binding %q: want plugin:action", b)
		}
		p, err := m.Get(name)
		if err != nil {
			return nil, fmt.Errorf("plugin binding %q: %w", b, err)
		}
		if !p.Supports(action) {
			return nil, fmt.Errorf("plugin binding %q: %w", b, ErrUnsupportedAction)
		}
		hooks = append(hooks, Hook{Plugin: p, Action: action})
	}
	return hooks, nil
}

// Event is one written letter.
type Event struct {
	Kind   string
	Letter string
	Text   string
}

// Dispatcher delivers written letters to hooks one at a time, in order.
type Dispatcher struct {
	exec   *Executor
	hooks  []Hook
	logger *zap.Logger
	events chan Event
}

// NewDispatcher creates a Dispatcher with a queue of DefaultQueueSize.
func NewDispatcher(exec *Executor, hooks []Hook, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		exec:   exec,
		hooks:  hooks,
		logger: logger,
		events: make(chan Event, DefaultQueueSize),
	}
}

// Notify queues ev without blocking. It reports false when the queue is
// full and the event was dropped.
func (d *Dispatcher) Notify(ev Event) bool {
	if len(d.hooks) == 0 {
		return true
	}
	select {
	case d.events <- ev:
		return true
	default:
		d.logger.Warn("plugin queue full, letter dropped", zap.String("letter", ev.Letter))
		return false
	}
}

// Run delivers queued events until ctx is cancelled. Plugin failures are
// logged and do not stop delivery.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, h := range d.hooks {
		resp, err := d.exec.Execute(ctx, h.Plugin, &Request{
			Action: h.Action,
			Kind:   ev.Kind,
			Letter: ev.Letter,
			Text:   ev.Text,
		})
		switch {
		case err != nil:
			d.logger.Warn("plugin failed", zap.Stringer("hook", h), zap.Error(err))
		case !resp.Success:
			d.logger.Warn("plugin refused letter", zap.Stringer("hook", h), zap.String("error", resp.Error))
		default:
			d.logger.Debug("plugin delivered letter", zap.Stringer("hook", h), zap.String("letter", ev.Letter))
		}
	}
}
