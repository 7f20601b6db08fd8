// Package plugin wires a billing model into a FinancePlugin: a payment
// manager plus the two background runners that act on its users.
package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/cloudfin/finance/internal/client/accounting"
	"github.com/cloudfin/finance/internal/client/ras"
	"github.com/cloudfin/finance/internal/config"
	"github.com/cloudfin/finance/internal/domain/credits"
	"github.com/cloudfin/finance/internal/domain/invoice"
	"github.com/cloudfin/finance/internal/domain/plan"
	"github.com/cloudfin/finance/internal/domain/user"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/payment"
	"github.com/cloudfin/finance/internal/publisher"
	"github.com/cloudfin/finance/internal/registry"
	"github.com/cloudfin/finance/internal/runner"
	"github.com/cloudfin/finance/internal/sentry"
	"github.com/cloudfin/finance/internal/types"
	"github.com/sourcegraph/conc"
)

// FinancePlugin manages the users of one billing model
type FinancePlugin interface {
	Name() types.PluginKind

	// StartThreads launches the runners and returns once both are active.
	// Calling it on a started plugin is a no-op.
	StartThreads(ctx context.Context) error
	// StopThreads asks the runners to stop and waits for them to exit
	StopThreads()
	IsStarted() bool

	IsAuthorized(ctx context.Context, userID, provider string, op types.Operation) (bool, error)
	ManagesUser(userID, provider string) bool

	GetUserFinanceState(ctx context.Context, userID, provider, property string) (string, error)
	UpdateFinanceState(ctx context.Context, userID, provider string, state map[string]string) error

	AddUser(ctx context.Context, userID, provider string) error
	RemoveUser(ctx context.Context, userID, provider string) error
	ChangeOptions(ctx context.Context, userID, provider string, options map[string]string) error

	// TriggerPayment bills the user immediately
	TriggerPayment(ctx context.Context, userID, provider string) error

	SetPlan(p *plan.FinancePlan)
}

// Params are the collaborators shared by every plugin
type Params struct {
	Config     *config.Configuration
	Users      *registry.UsersHolder
	Accounting accounting.Client
	RAS        ras.Client
	Credits    credits.Repository
	Invoices   invoice.Repository
	Publisher  publisher.EventPublisher
	Sentry     *sentry.Service
	Logger     *logger.Logger
	Plan       *plan.FinancePlan
	// Now defaults to time.Now in UTC
	Now func() time.Time
}

type financePlugin struct {
	kind    types.PluginKind
	params  Params
	manager payment.Manager
	logger  *logger.Logger

	mu          sync.Mutex
	started     bool
	cancel      context.CancelFunc
	wg          *conc.WaitGroup
	payments    *runner.PaymentRunner
	stopService *runner.StopServiceRunner
}

func newFinancePlugin(kind types.PluginKind, p Params) (FinancePlugin, error) {
	if p.Now == nil {
		p.Now = func() time.Time { return time.Now().UTC() }
	}

	manager, err := payment.New(p.Config.Finance.PaymentManagerFor(kind), payment.Dependencies{
		Credits:   p.Credits,
		Invoices:  p.Invoices,
		Publisher: p.Publisher,
		Logger:    p.Logger,
	}, p.Plan)
	if err != nil {
		return nil, err
	}

	return &financePlugin{
		kind:    kind,
		params:  p,
		manager: manager,
		logger:  p.Logger.With("plugin", kind),
	}, nil
}

func (f *financePlugin) Name() types.PluginKind {
	return f.kind
}

func (f *financePlugin) newPaymentRunner() *runner.PaymentRunner {
	return runner.NewPaymentRunner(runner.PaymentRunnerParams{
		Plugin:     f.kind,
		Interval:   f.params.Config.Finance.RunnerInterval(f.kind),
		Users:      f.params.Users,
		Accounting: f.params.Accounting,
		Manager:    f.manager,
		Sentry:     f.params.Sentry,
		Logger:     f.params.Logger,
		Now:        f.params.Now,
	})
}

func (f *financePlugin) newStopServiceRunner() *runner.StopServiceRunner {
	return runner.NewStopServiceRunner(runner.StopServiceRunnerParams{
		Plugin:    f.kind,
		Interval:  f.params.Config.Finance.StopServiceInterval,
		Users:     f.params.Users,
		RAS:       f.params.RAS,
		Manager:   f.manager,
		Publisher: f.params.Publisher,
		Sentry:    f.params.Sentry,
		Logger:    f.params.Logger,
	})
}

func (f *financePlugin) StartThreads(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return nil
	}

	// runners outlive the caller's context, StopThreads ends them
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancel = cancel
	f.payments = f.newPaymentRunner()
	f.stopService = f.newStopServiceRunner()
	f.wg = conc.NewWaitGroup()

	for _, r := range []runner.Runner{f.payments, f.stopService} {
		r := r
		f.wg.Go(func() { r.Run(runCtx) })
	}

	for _, r := range []runner.Runner{f.payments, f.stopService} {
		select {
		case <-r.Ready():
		case <-ctx.Done():
			f.stopLocked()
			return ierr.WithError(ctx.Err()).
				WithHintf("Plugin %s did not start in time", f.kind).
				Mark(ierr.ErrInternal)
		}
	}

	f.started = true
	f.logger.Infow("finance plugin started")
	return nil
}

func (f *financePlugin) StopThreads() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started {
		return
	}
	f.stopLocked()
	f.started = false
	f.logger.Infow("finance plugin stopped")
}

func (f *financePlugin) stopLocked() {
	f.payments.Stop()
	f.stopService.Stop()
	f.wg.Wait()
	f.cancel()
}

func (f *financePlugin) IsStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// IsAuthorized gates resource creation on the user having paid. Every other
// operation is left to the resource allocation service's own policy.
func (f *financePlugin) IsAuthorized(ctx context.Context, userID, provider string, op types.Operation) (bool, error) {
	u, err := f.managedUser(userID, provider)
	if err != nil {
		return false, err
	}
	if op.Type != types.OperationCreate {
		return true, nil
	}

	var paid bool
	err = u.WithLock(func() error {
		var err error
		paid, err = f.manager.HasPaid(ctx, userID, provider)
		return err
	})
	return paid, err
}

func (f *financePlugin) ManagesUser(userID, provider string) bool {
	return f.params.Users.HasUser(userID, provider, f.kind)
}

func (f *financePlugin) managedUser(userID, provider string) (*user.FinanceUser, error) {
	u, err := f.params.Users.GetUserByID(userID, provider)
	if err != nil {
		return nil, err
	}
	if u.FinancePluginName != f.kind {
		return nil, ierr.NewError("user not managed by plugin").
			WithHintf("User %s is not managed by the %s plugin", u.Key(), f.kind).
			WithReportableDetails(map[string]any{
				"user_id":  userID,
				"provider": provider,
				"plugin":   f.kind,
			}).
			Mark(ierr.ErrNotFound)
	}
	return u, nil
}

func (f *financePlugin) GetUserFinanceState(ctx context.Context, userID, provider, property string) (string, error) {
	if _, err := f.managedUser(userID, provider); err != nil {
		return "", err
	}
	return f.manager.GetUserFinanceState(ctx, userID, provider, property)
}

func (f *financePlugin) UpdateFinanceState(ctx context.Context, userID, provider string, state map[string]string) error {
	u, err := f.managedUser(userID, provider)
	if err != nil {
		return err
	}
	return u.WithLock(func() error {
		return f.manager.UpdateFinanceState(ctx, userID, provider, state)
	})
}

// AddUser registers the user under this plugin. The first billing period
// starts now.
func (f *financePlugin) AddUser(ctx context.Context, userID, provider string) error {
	u, err := user.New(userID, provider, f.kind, f.params.Config.Finance.BillingInterval, f.params.Now())
	if err != nil {
		return err
	}

	if err := f.params.Users.RegisterUser(ctx, u); err != nil {
		return err
	}

	if err := f.manager.AddUser(ctx, userID, provider); err != nil {
		if rerr := f.params.Users.RemoveUser(ctx, userID, provider); rerr != nil {
			f.logger.Errorw("failed to roll back user registration",
				"user_id", userID,
				"provider", provider,
				"error", rerr,
			)
		}
		return err
	}

	f.logger.Infow("user added", "user_id", userID, "provider", provider)
	return nil
}

func (f *financePlugin) RemoveUser(ctx context.Context, userID, provider string) error {
	u, err := f.managedUser(userID, provider)
	if err != nil {
		return err
	}

	return u.WithLock(func() error {
		if err := f.params.Users.RemoveUser(ctx, userID, provider); err != nil {
			return err
		}
		return f.manager.RemoveUser(ctx, userID, provider)
	})
}

func (f *financePlugin) ChangeOptions(ctx context.Context, userID, provider string, options map[string]string) error {
	if _, err := f.managedUser(userID, provider); err != nil {
		return err
	}
	return f.params.Users.ChangeOptions(ctx, userID, provider, options)
}

func (f *financePlugin) TriggerPayment(ctx context.Context, userID, provider string) error {
	if _, err := f.managedUser(userID, provider); err != nil {
		return err
	}
	return f.newPaymentRunner().ForceRun(ctx, userID, provider)
}

func (f *financePlugin) SetPlan(p *plan.FinancePlan) {
	f.manager.SetPlan(p)
}
