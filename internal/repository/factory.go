package repository

import (
	"github.com/cloudfin/finance/internal/domain/credits"
	"github.com/cloudfin/finance/internal/domain/invoice"
	"github.com/cloudfin/finance/internal/domain/plan"
	"github.com/cloudfin/finance/internal/domain/user"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/postgres"
	postgresRepo "github.com/cloudfin/finance/internal/repository/postgres"
)

func NewUserRepository(client postgres.IClient, logger *logger.Logger) user.Repository {
	return postgresRepo.NewUserRepository(client, logger)
}

func NewCreditsRepository(client postgres.IClient, logger *logger.Logger) credits.Repository {
	return postgresRepo.NewCreditsRepository(client, logger)
}

func NewInvoiceRepository(client postgres.IClient, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(client, logger)
}

func NewPlanRepository(client postgres.IClient, logger *logger.Logger) plan.Repository {
	return postgresRepo.NewPlanRepository(client, logger)
}
