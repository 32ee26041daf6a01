package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"scanhub/internal/legacy"
	"scanhub/internal/token"
	"scanhub/pkg/platform/sentinel"
)

type rosterDirectory struct {
	users map[string]*legacy.User
}

func (d rosterDirectory) LookupByUsername(_ context.Context, username string) (*legacy.User, error) {
	user, ok := d.users[username]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return user, nil
}

type ResolverSuite struct {
	suite.Suite
	tokens   *token.Service
	resolver *Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.tokens = token.NewService("test-key", "scanhub-test", time.Hour)
	dir := rosterDirectory{users: map[string]*legacy.User{
		"alice": {ID: 7, Username: "alice", FullName: "Alice Smith"},
	}}
	s.resolver = NewResolver(s.tokens, dir)
}

func (s *ResolverSuite) TestResolve() {
	ctx := context.Background()

	s.Run("valid credential resolves its embedded identity", func() {
		tok, err := s.tokens.Issue("alice")
		s.Require().NoError(err)

		ident, err := s.resolver.Resolve(ctx, tok, "")
		s.Require().NoError(err)
		s.Equal("alice", ident.Key)
		s.Require().NotNil(ident.ID)
		s.Equal(int64(7), *ident.ID)
		s.Equal("Alice Smith", ident.DisplayName)
	})

	s.Run("credential wins over a conflicting bare key", func() {
		tok, err := s.tokens.Issue("alice")
		s.Require().NoError(err)

		ident, err := s.resolver.Resolve(ctx, tok, "mallory")
		s.Require().NoError(err)
		s.Equal("alice", ident.Key)
	})

	s.Run("bare identity key resolves via the directory", func() {
		ident, err := s.resolver.Resolve(ctx, "", "alice")
		s.Require().NoError(err)
		s.Equal("alice", ident.Key)
	})

	s.Run("invalid credential fails even for a known identity", func() {
		_, err := s.resolver.Resolve(ctx, "garbage-token", "alice")
		s.Error(err)
	})

	s.Run("valid credential for an unknown identity fails", func() {
		tok, err := s.tokens.Issue("ghost")
		s.Require().NoError(err)

		_, err = s.resolver.Resolve(ctx, tok, "")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("empty credential and key fails", func() {
		_, err := s.resolver.Resolve(ctx, "", "")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}
