package testutil

import (
	"context"

	"github.com/cloudfin/finance/internal/domain/user"
	"github.com/cloudfin/finance/internal/types"
)

// InMemoryUserStore implements user.Repository. It stores copies so tests
// observe only what was explicitly saved.
type InMemoryUserStore struct {
	*InMemoryStore[*user.FinanceUser]
}

var _ user.Repository = (*InMemoryUserStore)(nil)

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		InMemoryStore: NewInMemoryStore[*user.FinanceUser](),
	}
}

func userSortFn(i, j *user.FinanceUser) bool {
	return i.CreatedAt.Before(j.CreatedAt) || (i.CreatedAt.Equal(j.CreatedAt) && i.Key() < j.Key())
}

func (s *InMemoryUserStore) Save(ctx context.Context, u *user.FinanceUser) error {
	return s.InMemoryStore.Upsert(ctx, u.Key(), u.Snapshot())
}

func (s *InMemoryUserStore) Remove(ctx context.Context, userID, provider string) error {
	return s.InMemoryStore.Delete(ctx, user.Key(userID, provider))
}

func (s *InMemoryUserStore) Get(ctx context.Context, userID, provider string) (*user.FinanceUser, error) {
	u, err := s.InMemoryStore.Get(ctx, user.Key(userID, provider))
	if err != nil {
		return nil, err
	}
	return u.Snapshot(), nil
}

func (s *InMemoryUserStore) List(ctx context.Context) ([]*user.FinanceUser, error) {
	users, err := s.InMemoryStore.List(ctx, nil, userSortFn)
	if err != nil {
		return nil, err
	}
	return snapshots(users), nil
}

func (s *InMemoryUserStore) ListByPlugin(ctx context.Context, plugin types.PluginKind) ([]*user.FinanceUser, error) {
	users, err := s.InMemoryStore.List(ctx, func(_ context.Context, u *user.FinanceUser) bool {
		return u.FinancePluginName == plugin
	}, userSortFn)
	if err != nil {
		return nil, err
	}
	return snapshots(users), nil
}

func snapshots(users []*user.FinanceUser) []*user.FinanceUser {
	out := make([]*user.FinanceUser, len(users))
	for i, u := range users {
		out[i] = u.Snapshot()
	}
	return out
}
