// Package registry keeps the in-memory set of users managed by the finance
// plugins. Users are stored once, keyed by (user id, provider), and listed
// per plugin so runners can sweep them while requests add and remove users.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/cloudfin/finance/internal/domain/user"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/synclist"
	"github.com/cloudfin/finance/internal/types"
)

type UsersHolder struct {
	repo   user.Repository
	logger *logger.Logger

	mu    sync.RWMutex
	users map[string]*user.FinanceUser
	lists map[types.PluginKind]*synclist.List[*user.FinanceUser]
}

func NewUsersHolder(repo user.Repository, logger *logger.Logger) *UsersHolder {
	return &UsersHolder{
		repo:   repo,
		logger: logger,
		users:  make(map[string]*user.FinanceUser),
		lists:  make(map[types.PluginKind]*synclist.List[*user.FinanceUser]),
	}
}

// Load replaces the in-memory state with the users found in the repository
func (h *UsersHolder) Load(ctx context.Context) error {
	users, err := h.repo.List(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.users = make(map[string]*user.FinanceUser, len(users))
	h.lists = make(map[types.PluginKind]*synclist.List[*user.FinanceUser])
	for _, u := range users {
		h.users[u.Key()] = u
		h.listFor(u.FinancePluginName).Add(u)
	}

	h.logger.Infow("loaded finance users", "count", len(users))
	return nil
}

// listFor must be called with h.mu held for writing
func (h *UsersHolder) listFor(plugin types.PluginKind) *synclist.List[*user.FinanceUser] {
	l, ok := h.lists[plugin]
	if !ok {
		l = synclist.New[*user.FinanceUser]()
		h.lists[plugin] = l
	}
	return l
}

// RegisterUser persists u and makes it visible to the runners of its plugin
func (h *UsersHolder) RegisterUser(ctx context.Context, u *user.FinanceUser) error {
	if err := u.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.users[u.Key()]; ok {
		return ierr.NewError("user already registered").
			WithHintf("User %s is already managed by the finance service", u.Key()).
			WithReportableDetails(map[string]any{
				"user_id":  u.UserID,
				"provider": u.Provider,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	if err := h.repo.Save(ctx, u.Snapshot()); err != nil {
		return err
	}

	h.users[u.Key()] = u
	h.listFor(u.FinancePluginName).Add(u)
	return nil
}

// RemoveUser forgets the user. Runners iterating the user's plugin list
// observe a modified list on their next step.
func (h *UsersHolder) RemoveUser(ctx context.Context, userID, provider string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := user.Key(userID, provider)
	u, ok := h.users[key]
	if !ok {
		return notFound(userID, provider)
	}

	if err := h.repo.Remove(ctx, userID, provider); err != nil {
		return err
	}

	delete(h.users, key)
	if l, ok := h.lists[u.FinancePluginName]; ok {
		if err := l.Remove(u); err != nil {
			h.logger.Warnw("user missing from plugin list",
				"user_id", userID,
				"provider", provider,
				"plugin", u.FinancePluginName,
			)
		}
	}
	return nil
}

func (h *UsersHolder) GetUserByID(userID, provider string) (*user.FinanceUser, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	u, ok := h.users[user.Key(userID, provider)]
	if !ok {
		return nil, notFound(userID, provider)
	}
	return u, nil
}

// IsRegistered reports whether u is still the live registration of its key.
// Runners check it after taking the user lock, a user removed while they
// waited must not be billed or saved again.
func (h *UsersHolder) IsRegistered(u *user.FinanceUser) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registeredLocked(u)
}

func (h *UsersHolder) registeredLocked(u *user.FinanceUser) bool {
	cur, ok := h.users[u.Key()]
	return ok && cur == u
}

// HasUser reports whether the (user, provider) pair is registered under plugin
func (h *UsersHolder) HasUser(userID, provider string, plugin types.PluginKind) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	u, ok := h.users[user.Key(userID, provider)]
	return ok && u.FinancePluginName == plugin
}

// GetRegisteredUsersByPaymentType returns the live list of users managed by
// plugin. The list is shared, consumers iterate it with their own cursor.
func (h *UsersHolder) GetRegisteredUsersByPaymentType(plugin types.PluginKind) *synclist.List[*user.FinanceUser] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listFor(plugin)
}

// SaveUser persists the current state of u. The caller holds the user lock.
// A user that is no longer registered is never written back.
func (h *UsersHolder) SaveUser(ctx context.Context, u *user.FinanceUser) error {
	state := u.Snapshot()
	if err := h.save(ctx, u, state); err != nil {
		return err
	}
	u.UpdatedAt = state.UpdatedAt
	return nil
}

// save writes state on behalf of the live registration u. Holding the read
// lock orders it against RemoveUser.
func (h *UsersHolder) save(ctx context.Context, u, state *user.FinanceUser) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.registeredLocked(u) {
		return notFound(u.UserID, u.Provider)
	}
	state.UpdatedAt = time.Now().UTC()
	return h.repo.Save(ctx, state)
}

// ChangeOptions applies per-user options. billing_interval takes a Go
// duration string; every other option is kept in the user properties.
func (h *UsersHolder) ChangeOptions(ctx context.Context, userID, provider string, options map[string]string) error {
	u, err := h.GetUserByID(userID, provider)
	if err != nil {
		return err
	}

	return u.WithLock(func() error {
		next := u.Snapshot()
		if raw, ok := options[types.OptionBillingInterval]; ok {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				return ierr.NewError("invalid billing interval").
					WithHintf("%s must be a positive duration such as 1h or 30m", types.OptionBillingInterval).
					WithReportableDetails(map[string]any{
						"value": raw,
					}).
					Mark(ierr.ErrValidation)
			}
			next.BillingInterval = d
		}

		for k, v := range options {
			if k == types.OptionBillingInterval {
				continue
			}
			next.Properties[k] = v
		}

		// the live user only changes once storage accepted the new state
		if err := h.save(ctx, u, next); err != nil {
			return err
		}
		u.BillingInterval = next.BillingInterval
		u.Properties = next.Properties.Copy()
		u.UpdatedAt = next.UpdatedAt
		return nil
	})
}

// Len returns the number of registered users
func (h *UsersHolder) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

func notFound(userID, provider string) error {
	return ierr.NewError("finance user not found").
		WithHintf("User %s is not managed by the finance service", user.Key(userID, provider)).
		WithReportableDetails(map[string]any{
			"user_id":  userID,
			"provider": provider,
		}).
		Mark(ierr.ErrNotFound)
}
