package logging

import (
	"context"
	"log/slog"
	"sync"
)

// ComponentFilterHandler filters records by a per-component minimum level.
//
// The component is taken from the ComponentKey attribute, either attached with
// Logger.With (the usual case) or passed on the record itself. Components
// without an explicit level use the default level. Levels can be changed at
// runtime; loggers derived before the change observe it.
type ComponentFilterHandler struct {
	next      slog.Handler
	table     *levelTable
	component string
}

type levelTable struct {
	mu           sync.RWMutex
	defaultLevel slog.Level
	levels       map[string]slog.Level
}

// NewComponentFilterHandler wraps next. next may be nil when the handler is
// only used to track levels.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		next: next,
		table: &levelTable{
			defaultLevel: defaultLevel,
			levels:       make(map[string]slog.Level),
		},
	}
}

// SetLevel sets the minimum level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.table.mu.Lock()
	h.table.levels[component] = level
	h.table.mu.Unlock()
}

// ClearLevel reverts a component to the default level.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.table.mu.Lock()
	delete(h.table.levels, component)
	h.table.mu.Unlock()
}

// Level returns the effective minimum level for component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	h.table.mu.RLock()
	defer h.table.mu.RUnlock()
	if level, ok := h.table.levels[component]; ok {
		return level
	}
	return h.table.defaultLevel
}

func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	return h.table.defaultLevel
}

// minLevel is the lowest level any component currently accepts.
func (h *ComponentFilterHandler) minLevel() slog.Level {
	h.table.mu.RLock()
	defer h.table.mu.RUnlock()
	lowest := h.table.defaultLevel
	for _, level := range h.table.levels {
		lowest = min(lowest, level)
	}
	return lowest
}

func (h *ComponentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.component != "" {
		if level < h.Level(h.component) {
			return false
		}
	} else if level < h.minLevel() {
		return false
	}
	return h.next == nil || h.next.Enabled(ctx, level)
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	if component == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == ComponentKey {
				component = a.Value.String()
				return false
			}
			return true
		})
	}
	if r.Level < h.Level(component) || h.next == nil {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	for _, a := range attrs {
		if a.Key == ComponentKey {
			clone.component = a.Value.String()
		}
	}
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return &clone
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return &clone
}
