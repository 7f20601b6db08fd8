package service

import (
	"github.com/cloudfin/finance/internal/cache"
	"github.com/cloudfin/finance/internal/client/ras"
	"github.com/cloudfin/finance/internal/config"
	"github.com/cloudfin/finance/internal/domain/plan"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/plugin"
	"github.com/cloudfin/finance/internal/registry"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	Cache  cache.Cache

	// Repositories
	PlanRepo plan.Repository

	// Billing engine
	Users   *registry.UsersHolder
	Plugins []plugin.FinancePlugin

	// Clients
	RAS ras.Client
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	cache cache.Cache,
	planRepo plan.Repository,
	users *registry.UsersHolder,
	plugins []plugin.FinancePlugin,
	rasClient ras.Client,
) ServiceParams {
	return ServiceParams{
		Logger:   logger,
		Config:   config,
		Cache:    cache,
		PlanRepo: planRepo,
		Users:    users,
		Plugins:  plugins,
		RAS:      rasClient,
	}
}
