package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"scanhub/internal/platform/metrics"
)

// =============================================================================
// Registry Test Suite
// =============================================================================
// The registry carries the context lifecycle invariant: a context exists
// exactly while its identity has at least one registered connection. These
// tests exercise the lifecycle and the connect/disconnect announcements
// without a real transport.

type fakeConn struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

func (f *fakeConn) Send(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeConn) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeConn) names() []string {
	var names []string
	for _, ev := range f.received() {
		names = append(names, ev.Event)
	}
	return names
}

type fakeHints struct {
	platforms map[string]int64
	err       error
	calls     int
}

func (f *fakeHints) LatestPlatform(_ context.Context, identityKey string) (*int64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.platforms[identityKey]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type RegistrySuite struct {
	suite.Suite
	hints    *fakeHints
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	s.hints = &fakeHints{platforms: map[string]int64{}}
	s.registry = NewRegistry(NewBroadcaster(log, m), s.hints, log, m)
}

// =============================================================================
// Context Lifecycle
// =============================================================================

func (s *RegistrySuite) TestContextLifecycle() {
	ctx := context.Background()

	s.Run("register creates context on first reference", func() {
		conn := &fakeConn{}
		c := s.registry.Register(ctx, conn, "alice", RoleReader, Metadata{})
		s.Equal("alice", c.Key())

		got, ok := s.registry.Lookup("alice")
		s.True(ok)
		s.Same(c, got)

		s.registry.Unregister(ctx, conn, "alice", RoleReader)
	})

	s.Run("context survives while any connection remains", func() {
		producer := &fakeConn{}
		consumer := &fakeConn{}
		s.registry.Register(ctx, producer, "bob", RoleWriter, Metadata{})
		s.registry.Register(ctx, consumer, "bob", RoleReader, Metadata{})

		s.registry.Unregister(ctx, producer, "bob", RoleWriter)
		_, ok := s.registry.Lookup("bob")
		s.True(ok)

		s.registry.Unregister(ctx, consumer, "bob", RoleReader)
		_, ok = s.registry.Lookup("bob")
		s.False(ok)
	})

	s.Run("reconnect after destruction builds a fresh context", func() {
		conn := &fakeConn{}
		c1 := s.registry.Register(ctx, conn, "carol", RoleReadWriter, Metadata{})
		s.True(c1.RebindPlatform(7))
		s.registry.Unregister(ctx, conn, "carol", RoleReadWriter)

		conn2 := &fakeConn{}
		c2 := s.registry.Register(ctx, conn2, "carol", RoleReadWriter, Metadata{})
		s.NotSame(c1, c2)
		_, bound := c2.Platform()
		s.False(bound)
		s.registry.Unregister(ctx, conn2, "carol", RoleReadWriter)
	})
}

// =============================================================================
// Platform Hint Seeding
// =============================================================================

func (s *RegistrySuite) TestPlatformHint() {
	ctx := context.Background()

	s.Run("fresh context seeds from hint source", func() {
		s.hints.platforms["dave"] = 42
		conn := &fakeConn{}
		c := s.registry.Register(ctx, conn, "dave", RoleReader, Metadata{})

		p, ok := c.Platform()
		s.True(ok)
		s.Equal(int64(42), p)
		s.registry.Unregister(ctx, conn, "dave", RoleReader)
	})

	s.Run("existing context is not reseeded", func() {
		s.hints.platforms["erin"] = 5
		first := &fakeConn{}
		c := s.registry.Register(ctx, first, "erin", RoleWriter, Metadata{})
		s.True(c.RebindPlatform(9))

		calls := s.hints.calls
		second := &fakeConn{}
		s.registry.Register(ctx, second, "erin", RoleReader, Metadata{})

		p, _ := c.Platform()
		s.Equal(int64(9), p)
		s.Equal(calls, s.hints.calls, "no hint lookup for a live context")

		s.registry.Unregister(ctx, first, "erin", RoleWriter)
		s.registry.Unregister(ctx, second, "erin", RoleReader)
	})

	s.Run("hint failure degrades to unbound context", func() {
		s.hints.err = errors.New("store down")
		conn := &fakeConn{}
		c := s.registry.Register(ctx, conn, "frank", RoleReader, Metadata{})

		_, ok := c.Platform()
		s.False(ok)
		s.hints.err = nil
		s.registry.Unregister(ctx, conn, "frank", RoleReader)
	})
}

// =============================================================================
// Producer Announcements
// =============================================================================

func (s *RegistrySuite) TestProducerAnnouncements() {
	ctx := context.Background()

	s.Run("producer join is announced to existing consumers", func() {
		consumer := &fakeConn{}
		s.registry.Register(ctx, consumer, "gina", RoleReader, Metadata{})

		producer := &fakeConn{}
		s.registry.Register(ctx, producer, "gina", RoleWriter, Metadata{})

		s.Equal([]string{EventProducerConnected}, consumer.names())
		s.Empty(producer.names())

		s.registry.Unregister(ctx, producer, "gina", RoleWriter)
		s.registry.Unregister(ctx, consumer, "gina", RoleReader)
	})

	s.Run("consumer joining after producer gets a unicast", func() {
		producer := &fakeConn{}
		s.registry.Register(ctx, producer, "hank", RoleWriter, Metadata{})

		early := &fakeConn{}
		s.registry.Register(ctx, early, "hank", RoleReader, Metadata{})
		earlyBefore := len(early.received())

		consumer := &fakeConn{}
		s.registry.Register(ctx, consumer, "hank", RoleReader, Metadata{})

		s.Equal([]string{EventProducerConnected}, consumer.names())
		s.Len(early.received(), earlyBefore, "unicast must not reach other consumers")

		s.registry.Unregister(ctx, producer, "hank", RoleWriter)
		s.registry.Unregister(ctx, early, "hank", RoleReader)
		s.registry.Unregister(ctx, consumer, "hank", RoleReader)
	})

	s.Run("combined connection hears its own producer side exactly once", func() {
		combined := &fakeConn{}
		s.registry.Register(ctx, combined, "iris", RoleReadWriter, Metadata{})
		s.Equal([]string{EventProducerConnected}, combined.names())
		s.registry.Unregister(ctx, combined, "iris", RoleReadWriter)
	})

	s.Run("combined connection joining an existing producer still hears one", func() {
		producer := &fakeConn{}
		s.registry.Register(ctx, producer, "ken", RoleWriter, Metadata{})

		combined := &fakeConn{}
		s.registry.Register(ctx, combined, "ken", RoleReadWriter, Metadata{})
		s.Equal([]string{EventProducerConnected}, combined.names())

		s.registry.Unregister(ctx, producer, "ken", RoleWriter)
		s.registry.Unregister(ctx, combined, "ken", RoleReadWriter)
	})

	s.Run("last producer leaving announces producer_disconnected", func() {
		p1 := &fakeConn{}
		p2 := &fakeConn{}
		consumer := &fakeConn{}
		s.registry.Register(ctx, p1, "judy", RoleWriter, Metadata{})
		s.registry.Register(ctx, p2, "judy", RoleWriter, Metadata{})
		s.registry.Register(ctx, consumer, "judy", RoleReader, Metadata{})

		s.registry.Unregister(ctx, p1, "judy", RoleWriter)
		s.NotContains(consumer.names(), EventProducerDisconnected)

		s.registry.Unregister(ctx, p2, "judy", RoleWriter)
		s.Contains(consumer.names(), EventProducerDisconnected)

		s.registry.Unregister(ctx, consumer, "judy", RoleReader)
	})
}

// =============================================================================
// Platform Binding Queries
// =============================================================================

func (s *RegistrySuite) TestBoundTo() {
	ctx := context.Background()

	c1Conn := &fakeConn{}
	c2Conn := &fakeConn{}
	c3Conn := &fakeConn{}
	c1 := s.registry.Register(ctx, c1Conn, "kate", RoleReadWriter, Metadata{})
	c2 := s.registry.Register(ctx, c2Conn, "liam", RoleReadWriter, Metadata{})
	c3 := s.registry.Register(ctx, c3Conn, "mona", RoleReadWriter, Metadata{})

	c1.RebindPlatform(1)
	c2.RebindPlatform(1)
	c3.RebindPlatform(2)

	s.Len(s.registry.BoundTo(1), 2)
	s.Len(s.registry.BoundTo(2), 1)
	s.Empty(s.registry.BoundTo(3))

	s.registry.Unregister(ctx, c1Conn, "kate", RoleReadWriter)
	s.registry.Unregister(ctx, c2Conn, "liam", RoleReadWriter)
	s.registry.Unregister(ctx, c3Conn, "mona", RoleReadWriter)
}
