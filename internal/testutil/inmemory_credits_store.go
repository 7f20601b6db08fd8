package testutil

import (
	"context"

	"github.com/cloudfin/finance/internal/domain/credits"
	"github.com/cloudfin/finance/internal/domain/user"
)

// InMemoryCreditsStore implements credits.Repository
type InMemoryCreditsStore struct {
	*InMemoryStore[credits.UserCredits]
}

var _ credits.Repository = (*InMemoryCreditsStore)(nil)

func NewInMemoryCreditsStore() *InMemoryCreditsStore {
	return &InMemoryCreditsStore{
		InMemoryStore: NewInMemoryStore[credits.UserCredits](),
	}
}

func (s *InMemoryCreditsStore) Save(ctx context.Context, c *credits.UserCredits) error {
	return s.InMemoryStore.Upsert(ctx, user.Key(c.UserID, c.Provider), *c)
}

func (s *InMemoryCreditsStore) Get(ctx context.Context, userID, provider string) (*credits.UserCredits, error) {
	c, err := s.InMemoryStore.Get(ctx, user.Key(userID, provider))
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *InMemoryCreditsStore) Delete(ctx context.Context, userID, provider string) error {
	return s.InMemoryStore.Delete(ctx, user.Key(userID, provider))
}
