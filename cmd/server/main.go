package main

import (
	"context"
	"time"

	"github.com/cloudfin/finance/internal/cache"
	"github.com/cloudfin/finance/internal/client/accounting"
	"github.com/cloudfin/finance/internal/client/auth"
	"github.com/cloudfin/finance/internal/client/ras"
	"github.com/cloudfin/finance/internal/config"
	"github.com/cloudfin/finance/internal/domain/credits"
	"github.com/cloudfin/finance/internal/domain/invoice"
	"github.com/cloudfin/finance/internal/domain/plan"
	"github.com/cloudfin/finance/internal/httpclient"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/plugin"
	"github.com/cloudfin/finance/internal/postgres"
	"github.com/cloudfin/finance/internal/publisher"
	"github.com/cloudfin/finance/internal/pubsub"
	"github.com/cloudfin/finance/internal/pubsub/memory"
	"github.com/cloudfin/finance/internal/registry"
	"github.com/cloudfin/finance/internal/repository"
	"github.com/cloudfin/finance/internal/sentry"
	"github.com/cloudfin/finance/internal/service"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Cache
			cache.NewInMemoryCache,

			// Events
			memory.NewPubSub,
			provideEventPublisher,

			// HTTP clients
			provideHTTPClient,
			auth.NewTokenSource,
			accounting.NewClient,
			ras.NewClient,

			// Repositories
			repository.NewUserRepository,
			repository.NewCreditsRepository,
			repository.NewInvoiceRepository,
			repository.NewPlanRepository,
		),
		sentry.Module(),
		postgres.Module(),
	)

	// Billing engine and service layer
	opts = append(opts,
		fx.Provide(
			registry.NewUsersHolder,
			service.NewPlanService,
			provideActivePlan,
			providePlugins,
			service.NewServiceParams,
			service.NewFinanceService,
		),
		fx.Invoke(startFinance),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideEventPublisher(ps pubsub.PubSub, logger *logger.Logger) publisher.EventPublisher {
	return publisher.NewEventPublisher(ps, logger)
}

func provideHTTPClient(cfg *config.Configuration, logger *logger.Logger) httpclient.Client {
	return httpclient.NewDefaultClient(httpclient.ClientConfig{
		Timeout:           cfg.Accounting.Timeout,
		RetryMax:          cfg.HTTPClient.RetryMax,
		RequestsPerSecond: cfg.HTTPClient.RequestsPerSecond,
		Burst:             cfg.HTTPClient.Burst,
	}, logger)
}

// provideActivePlan loads the configured plan, seeding it from
// finance.default_plan_rules on first start
func provideActivePlan(plans service.PlanService, cfg *config.Configuration) (*plan.FinancePlan, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return plans.EnsurePlan(ctx, cfg.Finance.DefaultPlan, cfg.Finance.DefaultPlanRules)
}

func providePlugins(
	cfg *config.Configuration,
	logger *logger.Logger,
	users *registry.UsersHolder,
	accountingClient accounting.Client,
	rasClient ras.Client,
	creditsRepo credits.Repository,
	invoiceRepo invoice.Repository,
	eventPublisher publisher.EventPublisher,
	sentryService *sentry.Service,
	active *plan.FinancePlan,
) ([]plugin.FinancePlugin, error) {
	return plugin.NewAll(plugin.Params{
		Config:     cfg,
		Users:      users,
		Accounting: accountingClient,
		RAS:        rasClient,
		Credits:    creditsRepo,
		Invoices:   invoiceRepo,
		Publisher:  eventPublisher,
		Sentry:     sentryService,
		Logger:     logger,
		Plan:       active,
	})
}

func startFinance(
	lc fx.Lifecycle,
	logger *logger.Logger,
	users *registry.UsersHolder,
	financeService service.FinanceService,
	ps pubsub.PubSub,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := users.Load(ctx); err != nil {
				return err
			}
			logger.Infow("finance users loaded", "users", users.Len())
			return financeService.StartPlugins(ctx)
		},
		OnStop: func(ctx context.Context) error {
			financeService.StopPlugins()
			logger.Info("finance plugins stopped")
			return ps.Close()
		},
	})
}
