package runner

import (
	"context"
	"time"

	"github.com/cloudfin/finance/internal/client/accounting"
	"github.com/cloudfin/finance/internal/domain/user"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/payment"
	"github.com/cloudfin/finance/internal/registry"
	"github.com/cloudfin/finance/internal/sentry"
	"github.com/cloudfin/finance/internal/types"
)

// PaymentRunner charges every user of a plugin whose billing interval elapsed
type PaymentRunner struct {
	*loop
	plugin     types.PluginKind
	users      *registry.UsersHolder
	accounting accounting.Client
	manager    payment.Manager
	sentry     *sentry.Service
	logger     *logger.Logger
	now        func() time.Time
}

type PaymentRunnerParams struct {
	Plugin     types.PluginKind
	Interval   time.Duration
	Users      *registry.UsersHolder
	Accounting accounting.Client
	Manager    payment.Manager
	Sentry     *sentry.Service
	Logger     *logger.Logger
	// Now defaults to time.Now in UTC
	Now func() time.Time
}

func NewPaymentRunner(p PaymentRunnerParams) *PaymentRunner {
	r := &PaymentRunner{
		plugin:     p.Plugin,
		users:      p.Users,
		accounting: p.Accounting,
		manager:    p.Manager,
		sentry:     p.Sentry,
		logger:     p.Logger.With("plugin", p.Plugin, "runner", "payment"),
		now:        p.Now,
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	r.loop = newLoop(string(p.Plugin)+"-payment", p.Interval, r.RunCycle, p.Logger)
	return r
}

// RunCycle performs one sweep over the plugin's users
func (r *PaymentRunner) RunCycle(ctx context.Context) {
	list := r.users.GetRegisteredUsersByPaymentType(r.plugin)
	sweep(ctx, r.logger, list, func(u *user.FinanceUser) {
		err := r.bill(ctx, u, false)
		if ierr.Is(err, errUserRemoved) {
			r.logger.Debugw("skipping removed user", "user_id", u.UserID, "provider", u.Provider)
			return
		}
		if err != nil {
			r.logger.Errorw("failed to process payment",
				"user_id", u.UserID,
				"provider", u.Provider,
				"error", err,
			)
			r.sentry.CaptureUserError(err, "payment", u.UserID, u.Provider)
		}
	})
}

// ForceRun bills the user now, whether or not the billing interval elapsed.
// Errors are returned to the caller.
func (r *PaymentRunner) ForceRun(ctx context.Context, userID, provider string) error {
	u, err := r.users.GetUserByID(userID, provider)
	if err != nil {
		return err
	}
	return r.bill(ctx, u, true)
}

func (r *PaymentRunner) bill(ctx context.Context, u *user.FinanceUser, force bool) error {
	return u.WithLock(func() error {
		if !r.users.IsRegistered(u) {
			return errUserRemoved
		}

		now := r.now()
		if !force && !u.IsBillingDue(now) {
			return nil
		}

		records, err := r.accounting.GetUserRecords(ctx, u.UserID, u.Provider, u.LastBillingTime, now)
		if err != nil {
			return err
		}

		if err := r.manager.StartPaymentProcess(ctx, u.UserID, u.Provider, u.LastBillingTime, now, records); err != nil {
			return err
		}

		u.LastBillingTime = now
		return r.users.SaveUser(ctx, u)
	})
}
