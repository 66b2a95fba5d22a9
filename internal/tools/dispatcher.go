// Package tools maps tool names requested by the flow controller to backend handlers.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// Handler executes one tool. A returned error is reported to the flow as a
// failed result; it never aborts the turn.
type Handler func(ctx context.Context, params models.ToolParams, session *models.Session) (models.ToolResult, error)

// Dispatcher is the fixed tool name to handler table.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[models.ToolName]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[models.ToolName]Handler)}
}

// Register binds a handler to a tool name, replacing any previous handler.
func (d *Dispatcher) Register(name models.ToolName, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[name]; exists {
		slog.Warn("Dispatcher.Register: replacing handler", "tool", name)
	}
	d.handlers[name] = h
}

// Registered returns the registered tool names in sorted order.
func (d *Dispatcher) Registered() []models.ToolName {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]models.ToolName, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Validate checks that every known tool has a handler. A missing handler is a
// configuration error and should stop the process at startup.
func (d *Dispatcher) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var missing []models.ToolName
	for _, name := range models.KnownTools {
		if d.handlers[name] == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: no handler registered for %v", models.ErrUnknownTool, missing)
	}
	return nil
}

// Dispatch runs the named tool. Unknown tools, handler errors and handler
// panics are all reported as unsuccessful results.
func (d *Dispatcher) Dispatch(ctx context.Context, tool models.ToolName, params models.ToolParams, session *models.Session) (result models.ToolResult) {
	d.mu.RLock()
	h := d.handlers[tool]
	d.mu.RUnlock()
	if h == nil {
		slog.Error("Dispatcher.Dispatch: unknown tool", "tool", tool)
		return models.Failure(fmt.Sprintf("%s: %s", models.ErrUnknownTool, tool))
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher.Dispatch: handler panicked", "tool", tool, "panic", r)
			result = models.Failure(fmt.Sprintf("tool %s failed: %v", tool, r))
		}
	}()

	res, err := h(ctx, params, session)
	if err != nil {
		slog.Warn("Dispatcher.Dispatch: handler returned error", "tool", tool, "error", err)
		return models.Failure(err.Error())
	}
	return res
}
