package runner

import (
	"context"
	"time"

	"github.com/cloudfin/finance/internal/client/ras"
	"github.com/cloudfin/finance/internal/domain/events"
	"github.com/cloudfin/finance/internal/domain/user"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/payment"
	"github.com/cloudfin/finance/internal/publisher"
	"github.com/cloudfin/finance/internal/registry"
	"github.com/cloudfin/finance/internal/sentry"
	"github.com/cloudfin/finance/internal/types"
)

// StopServiceRunner pauses the resources of users who have not paid and
// resumes them once they have
type StopServiceRunner struct {
	*loop
	plugin    types.PluginKind
	users     *registry.UsersHolder
	ras       ras.Client
	manager   payment.Manager
	publisher publisher.EventPublisher
	sentry    *sentry.Service
	logger    *logger.Logger
}

type StopServiceRunnerParams struct {
	Plugin    types.PluginKind
	Interval  time.Duration
	Users     *registry.UsersHolder
	RAS       ras.Client
	Manager   payment.Manager
	Publisher publisher.EventPublisher
	Sentry    *sentry.Service
	Logger    *logger.Logger
}

func NewStopServiceRunner(p StopServiceRunnerParams) *StopServiceRunner {
	r := &StopServiceRunner{
		plugin:    p.Plugin,
		users:     p.Users,
		ras:       p.RAS,
		manager:   p.Manager,
		publisher: p.Publisher,
		sentry:    p.Sentry,
		logger:    p.Logger.With("plugin", p.Plugin, "runner", "stop_service"),
	}
	if r.publisher == nil {
		r.publisher = publisher.NewNopPublisher()
	}
	r.loop = newLoop(string(p.Plugin)+"-stop-service", p.Interval, r.RunCycle, p.Logger)
	return r
}

// RunCycle performs one sweep over the plugin's users
func (r *StopServiceRunner) RunCycle(ctx context.Context) {
	list := r.users.GetRegisteredUsersByPaymentType(r.plugin)
	sweep(ctx, r.logger, list, func(u *user.FinanceUser) {
		err := r.enforce(ctx, u)
		if ierr.Is(err, errUserRemoved) {
			r.logger.Debugw("skipping removed user", "user_id", u.UserID, "provider", u.Provider)
			return
		}
		if err != nil {
			r.logger.Errorw("failed to enforce payment state",
				"user_id", u.UserID,
				"provider", u.Provider,
				"error", err,
			)
			r.sentry.CaptureUserError(err, "stop_service", u.UserID, u.Provider)
		}
	})
}

func (r *StopServiceRunner) enforce(ctx context.Context, u *user.FinanceUser) error {
	var published *events.Event

	err := u.WithLock(func() error {
		if !r.users.IsRegistered(u) {
			return errUserRemoved
		}

		paid, err := r.manager.HasPaid(ctx, u.UserID, u.Provider)
		if err != nil {
			return err
		}

		switch {
		case !paid && !u.StoppedResources:
			if err := r.ras.PauseResourcesByUser(ctx, u.UserID); err != nil {
				return err
			}
			u.StoppedResources = true
			published = events.NewEvent(types.EventUserPaused, u.UserID, u.Provider, r.plugin)
		case paid && u.StoppedResources:
			if err := r.ras.ResumeResourcesByUser(ctx, u.UserID); err != nil {
				return err
			}
			u.StoppedResources = false
			published = events.NewEvent(types.EventUserResumed, u.UserID, u.Provider, r.plugin)
		default:
			return nil
		}

		return r.users.SaveUser(ctx, u)
	})

	if published != nil {
		if perr := r.publisher.Publish(ctx, published); perr != nil {
			r.logger.Errorw("failed to publish event",
				"user_id", u.UserID,
				"type", published.Type,
				"error", perr,
			)
		}
	}
	return err
}
