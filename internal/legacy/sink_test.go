package legacy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type SimulatedSinkSuite struct {
	suite.Suite
	log *slog.Logger
}

func TestSimulatedSinkSuite(t *testing.T) {
	suite.Run(t, new(SimulatedSinkSuite))
}

func (s *SimulatedSinkSuite) SetupTest() {
	s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *SimulatedSinkSuite) TestAttemptSave() {
	ctx := context.Background()

	s.Run("zero failure rate always succeeds", func() {
		sink := NewSimulatedSink(0, 0, 0, s.log)
		for i := 0; i < 20; i++ {
			s.NoError(sink.AttemptSave(ctx, 1, int64(i)))
		}
	})

	s.Run("full failure rate always fails", func() {
		sink := NewSimulatedSink(0, 0, 1, s.log)
		err := sink.AttemptSave(ctx, 7, 42)
		s.Require().Error(err)
		s.Contains(err.Error(), "7-42")
	})

	s.Run("canceled context aborts the simulated delay", func() {
		sink := NewSimulatedSink(time.Minute, time.Minute, 0, s.log)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		err := sink.AttemptSave(ctx, 1, 1)
		s.ErrorIs(err, context.Canceled)
		s.Less(time.Since(start), time.Second)
	})

	s.Run("inverted latency band collapses to the minimum", func() {
		sink := NewSimulatedSink(time.Millisecond, 0, 0, s.log)
		s.NoError(sink.AttemptSave(ctx, 1, 1))
	})
}

func (s *SimulatedSinkSuite) TestDirectory() {
	ctx := context.Background()
	dir := StaticDirectory{}

	s.Run("accepts any non-empty username", func() {
		user, err := dir.LookupByUsername(ctx, "operator-7")
		s.Require().NoError(err)
		s.Equal("operator-7", user.Username)
	})

	s.Run("rejects blank usernames", func() {
		_, err := dir.LookupByUsername(ctx, "   ")
		s.Error(err)
	})
}
