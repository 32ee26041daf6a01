// Package ws exposes the realtime endpoint. Every connection must open with a
// register frame; after that, writer-capable connections may submit pairings
// and reader-capable connections receive session events pushed by the
// registry and the pairing coordinator.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"scanhub/internal/identity"
	"scanhub/internal/session"
)

const writeTimeout = 10 * time.Second

// PairingCoordinator is the write path behind new_pairing frames.
type PairingCoordinator interface {
	HandleNewPairing(ctx context.Context, identityKey string, platform int64, product *int64) error
}

type Handler struct {
	registry *session.Registry
	pairings PairingCoordinator
	resolver *identity.Resolver
	logger   *slog.Logger
}

func NewHandler(registry *session.Registry, pairings PairingCoordinator, resolver *identity.Resolver, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		pairings: pairings,
		resolver: resolver,
		logger:   logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow()

	ctx := r.Context()

	var reg inboundMessage
	if err := wsjson.Read(ctx, c, &reg); err != nil {
		c.Close(websocket.StatusPolicyViolation, "malformed register message")
		return
	}
	if reg.Event != eventRegister {
		c.Close(websocket.StatusPolicyViolation, "first message must be register")
		return
	}
	role := session.RoleNone
	if reg.Role != nil {
		role = session.Role(*reg.Role)
	}
	if !role.Valid() {
		c.Close(websocket.StatusPolicyViolation, "invalid role")
		return
	}
	ident, err := h.resolver.Resolve(ctx, reg.Token, reg.Identity)
	if err != nil {
		h.logger.InfoContext(ctx, "registration refused", "error", err)
		c.Close(websocket.StatusPolicyViolation, "unresolved identity")
		return
	}

	conn := &wsConn{c: c}
	meta := session.Metadata{ID: ident.ID, DisplayName: ident.DisplayName}
	sess := h.registry.Register(ctx, conn, ident.Key, role, meta)

	// The request context is canceled by the time the deferred unregister
	// runs; departure events still have to reach the remaining connections.
	defer h.registry.Unregister(context.WithoutCancel(ctx), conn, ident.Key, role)

	ack := session.Event{Event: session.EventRegistered, Data: sess.Snapshot()}
	if err := conn.Send(ctx, ack); err != nil {
		h.logger.WarnContext(ctx, "registration ack failed", "identity", ident.Key, "error", err)
		return
	}
	h.logger.InfoContext(ctx, "connection registered", "identity", ident.Key, "role", role.String())

	for {
		var msg inboundMessage
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			h.logger.InfoContext(ctx, "connection closed",
				"identity", ident.Key,
				"status", websocket.CloseStatus(err),
			)
			return
		}
		if msg.Event != eventNewPairing {
			h.logger.DebugContext(ctx, "ignoring unknown event", "identity", ident.Key, "event", msg.Event)
			continue
		}
		if !role.CanWrite() {
			h.logger.WarnContext(ctx, "pairing from read-only connection ignored", "identity", ident.Key)
			continue
		}
		if !msg.Platform.set {
			h.logger.WarnContext(ctx, "pairing without platform ignored", "identity", ident.Key)
			continue
		}
		if err := h.pairings.HandleNewPairing(ctx, ident.Key, msg.Platform.value, msg.Product); err != nil {
			h.logger.ErrorContext(ctx, "pairing failed",
				"identity", ident.Key,
				"platform", msg.Platform.value,
				"error", err,
			)
		}
	}
}

// wsConn adapts a websocket connection to the session.Conn contract.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Send(ctx context.Context, ev session.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, w.c, ev)
}
