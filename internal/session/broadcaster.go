package session

import (
	"context"
	"log/slog"

	"scanhub/internal/platform/metrics"
)

// Delivery is the per-recipient outcome of a broadcast attempt. Failures are
// recorded here so callers and tests can observe partial delivery; they are
// never propagated and never unregister the failing connection.
type Delivery struct {
	Err error
}

// Broadcaster fans an event out to the consumer connections of one identity
// context, isolating per-recipient failures.
type Broadcaster struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewBroadcaster(logger *slog.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{logger: logger, metrics: m}
}

// SendTo attempts delivery to every output connection of the context.
func (b *Broadcaster) SendTo(ctx context.Context, c *Context, ev Event) []Delivery {
	return b.Send(ctx, c.Key(), c.Outputs(), ev)
}

// Send delivers to an explicit connection snapshot. The registry uses this on
// paths where the recipient set must be captured before a list mutation.
func (b *Broadcaster) Send(ctx context.Context, identityKey string, conns []Conn, ev Event) []Delivery {
	deliveries := make([]Delivery, 0, len(conns))
	for _, conn := range conns {
		err := conn.Send(ctx, ev)
		if err != nil {
			b.metrics.DeliveryFailures.Inc()
			b.logger.WarnContext(ctx, "event delivery failed",
				"identity", identityKey,
				"event", ev.Event,
				"error", err.Error(),
			)
		}
		deliveries = append(deliveries, Delivery{Err: err})
	}
	return deliveries
}
