package user

import (
	"fmt"
	"sync"
	"time"

	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/types"
)

// FinanceUser is the billing state the finance service keeps for one
// (user, identity provider) pair. Billing fields are mutated only while the
// user lock is held.
type FinanceUser struct {
	UserID            string           `db:"user_id" json:"user_id"`
	Provider          string           `db:"provider" json:"provider"`
	FinancePluginName types.PluginKind `db:"finance_plugin_name" json:"finance_plugin_name"`
	LastBillingTime   time.Time        `db:"last_billing_time" json:"last_billing_time"`
	BillingInterval   time.Duration    `db:"billing_interval" json:"billing_interval"`
	StoppedResources  bool             `db:"stopped_resources" json:"stopped_resources"`
	Properties        types.Properties `db:"properties" json:"properties"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`

	mu sync.Mutex
}

// New creates a user managed by plugin whose first billing period starts now
func New(userID, provider string, plugin types.PluginKind, billingInterval time.Duration, now time.Time) (*FinanceUser, error) {
	u := &FinanceUser{
		UserID:            userID,
		Provider:          provider,
		FinancePluginName: plugin,
		LastBillingTime:   now,
		BillingInterval:   billingInterval,
		Properties:        types.Properties{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *FinanceUser) Validate() error {
	if u.UserID == "" || u.Provider == "" {
		return ierr.NewError("user id and provider are required").
			WithHint("Please provide both the user id and the identity provider").
			Mark(ierr.ErrValidation)
	}
	if err := u.FinancePluginName.Validate(); err != nil {
		return err
	}
	if u.BillingInterval <= 0 {
		return ierr.NewError("billing interval must be positive").
			WithReportableDetails(map[string]any{
				"billing_interval": u.BillingInterval.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Key returns the composite identity of the user
func (u *FinanceUser) Key() string {
	return Key(u.UserID, u.Provider)
}

// Key builds the registry key for a (user, provider) pair
func Key(userID, provider string) string {
	return fmt.Sprintf("%s@%s", userID, provider)
}

func (u *FinanceUser) Lock() {
	u.mu.Lock()
}

func (u *FinanceUser) Unlock() {
	u.mu.Unlock()
}

// WithLock runs fn while holding the user lock
func (u *FinanceUser) WithLock(fn func() error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn()
}

// IsBillingDue reports whether a full billing interval has elapsed since the
// last billing
func (u *FinanceUser) IsBillingDue(now time.Time) bool {
	return now.Sub(u.LastBillingTime) >= u.BillingInterval
}

// Snapshot returns a copy of the persisted fields, without the lock
func (u *FinanceUser) Snapshot() *FinanceUser {
	return &FinanceUser{
		UserID:            u.UserID,
		Provider:          u.Provider,
		FinancePluginName: u.FinancePluginName,
		LastBillingTime:   u.LastBillingTime,
		BillingInterval:   u.BillingInterval,
		StoppedResources:  u.StoppedResources,
		Properties:        u.Properties.Copy(),
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}
