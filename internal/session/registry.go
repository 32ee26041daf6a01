package session

import (
	"context"
	"log/slog"
	"sync"

	"scanhub/internal/platform/metrics"
)

// PlatformHintSource supplies the most recently persisted platform for an
// identity, used to seed a fresh context so a reconnecting operator resumes on
// the station they last used.
type PlatformHintSource interface {
	LatestPlatform(ctx context.Context, identityKey string) (*int64, error)
}

// Registry owns the identity to context mapping. A context exists exactly
// while the identity has at least one registered connection.
type Registry struct {
	events  *Broadcaster
	hints   PlatformHintSource
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	contexts map[string]*Context
}

func NewRegistry(events *Broadcaster, hints PlatformHintSource, logger *slog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		events:   events,
		hints:    hints,
		logger:   logger,
		metrics:  m,
		contexts: make(map[string]*Context),
	}
}

// Register attaches a connection to the identity's context, creating the
// context on first reference. Input-capable connections announce
// producer_connected to the identity's consumers; output-capable connections
// receive a single unicast producer_connected when a producer is already
// attached.
func (r *Registry) Register(ctx context.Context, conn Conn, identityKey string, role Role, meta Metadata) *Context {
	hint := r.lookupHint(ctx, identityKey)

	r.mu.Lock()
	c, ok := r.contexts[identityKey]
	if !ok {
		c = newContext(identityKey, meta, hint)
		r.contexts[identityKey] = c
		r.metrics.ContextsActive.Inc()
		r.logger.InfoContext(ctx, "identity context created",
			"identity", identityKey,
			"platform_hint", hint,
		)
	}

	// The producer_connected broadcast targets are captured before this
	// connection joins the output list, so a combined connection is reached
	// only by the unicast below. The unicast condition is evaluated after the
	// input append: a combined connection counts as its own producer and
	// receives exactly one announcement.
	var announceTo []Conn
	unicast := false
	c.mu.Lock()
	if role.CanWrite() {
		c.inputs = append(c.inputs, conn)
		announceTo = make([]Conn, len(c.outputs))
		copy(announceTo, c.outputs)
	}
	if role.CanRead() {
		c.outputs = append(c.outputs, conn)
		unicast = len(c.inputs) > 0
	}
	c.mu.Unlock()
	r.mu.Unlock()

	r.metrics.ConnectionsActive.Inc()

	if announceTo != nil {
		r.events.Send(ctx, identityKey, announceTo, Event{Event: EventProducerConnected})
	}
	if unicast {
		r.events.Send(ctx, identityKey, []Conn{conn}, Event{Event: EventProducerConnected})
	}

	r.logger.InfoContext(ctx, "connection registered",
		"identity", identityKey,
		"role", role.String(),
	)
	return c
}

// Unregister detaches a connection. Removing the last input connection
// broadcasts producer_disconnected to remaining consumers; removing the last
// connection of either kind destroys the context.
func (r *Registry) Unregister(ctx context.Context, conn Conn, identityKey string, role Role) {
	r.mu.Lock()
	c, ok := r.contexts[identityKey]
	if !ok {
		r.mu.Unlock()
		return
	}

	var disconnectTo []Conn
	c.mu.Lock()
	if role.CanWrite() {
		var removed bool
		c.inputs, removed = removeConn(c.inputs, conn)
		if removed && len(c.inputs) == 0 {
			disconnectTo = make([]Conn, len(c.outputs))
			copy(disconnectTo, c.outputs)
		}
	}
	if role.CanRead() {
		c.outputs, _ = removeConn(c.outputs, conn)
	}
	destroyed := len(c.inputs) == 0 && len(c.outputs) == 0
	c.mu.Unlock()

	if destroyed {
		delete(r.contexts, identityKey)
		r.metrics.ContextsActive.Dec()
		r.logger.InfoContext(ctx, "identity context destroyed", "identity", identityKey)
	}
	r.mu.Unlock()

	r.metrics.ConnectionsActive.Dec()

	if disconnectTo != nil {
		r.events.Send(ctx, identityKey, disconnectTo, Event{Event: EventProducerDisconnected})
	}
}

// Lookup returns the live context for an identity, if any.
func (r *Registry) Lookup(identityKey string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contexts[identityKey]
	return c, ok
}

// BoundTo returns every context currently bound to the given platform. Zero,
// one, or many contexts may share a platform.
func (r *Registry) BoundTo(platform int64) []*Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var bound []*Context
	for _, c := range r.contexts {
		if c.boundTo(platform) {
			bound = append(bound, c)
		}
	}
	return bound
}

func (r *Registry) lookupHint(ctx context.Context, identityKey string) *int64 {
	if r.hints == nil {
		return nil
	}
	r.mu.RLock()
	_, exists := r.contexts[identityKey]
	r.mu.RUnlock()
	if exists {
		return nil
	}
	hint, err := r.hints.LatestPlatform(ctx, identityKey)
	if err != nil {
		r.logger.WarnContext(ctx, "platform hint lookup failed",
			"identity", identityKey,
			"error", err.Error(),
		)
		return nil
	}
	return hint
}
