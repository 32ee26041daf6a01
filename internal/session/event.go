package session

import "context"

// Outbound event vocabulary. Every frame sent to a consumer connection is an
// Event envelope with one of these names.
const (
	EventRegistered           = "register_success"
	EventProducerConnected    = "producer_connected"
	EventProducerDisconnected = "producer_disconnected"
	EventPlatformChanged      = "platform_changed"
	EventNewPairing           = "new_pairing"
	EventProductMoved         = "product_moved"
)

// Event is the outbound wire envelope.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Conn is an opaque bidirectional channel as seen by the registry. The
// transport layer adapts concrete websocket connections to this contract.
type Conn interface {
	Send(ctx context.Context, ev Event) error
}
