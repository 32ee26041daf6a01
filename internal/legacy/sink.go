package legacy

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Sink propagates a committed pairing to the legacy system of record.
// Latency and failure are both externally variable; callers must not assume a
// bound on either.
type Sink interface {
	AttemptSave(ctx context.Context, platform, product int64) error
}

// SimulatedSink stands in for the legacy database in environments where it is
// unreachable. It sleeps inside a configurable latency band and fails a
// configurable fraction of attempts.
type SimulatedSink struct {
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64
	logger      *slog.Logger
}

func NewSimulatedSink(minLatency, maxLatency time.Duration, failureRate float64, logger *slog.Logger) *SimulatedSink {
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &SimulatedSink{
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		failureRate: failureRate,
		logger:      logger,
	}
}

func (s *SimulatedSink) AttemptSave(ctx context.Context, platform, product int64) error {
	delay := s.minLatency
	if band := s.maxLatency - s.minLatency; band > 0 {
		delay += time.Duration(rand.Int64N(int64(band)))
	}
	s.logger.InfoContext(ctx, "legacy save started",
		"platform", platform,
		"product", product,
		"simulated_delay", delay.String(),
	)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if rand.Float64() < s.failureRate {
		return fmt.Errorf("legacy save rejected for pair %d-%d", platform, product)
	}
	return nil
}
