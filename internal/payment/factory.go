package payment

import (
	"github.com/cloudfin/finance/internal/domain/credits"
	"github.com/cloudfin/finance/internal/domain/invoice"
	"github.com/cloudfin/finance/internal/domain/plan"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/publisher"
	"github.com/samber/lo"
)

// Manager implementation names accepted in finance.payment_managers
const (
	ManagerPrepaid  = "prepaid"
	ManagerPostpaid = "postpaid"
)

// Dependencies are the collaborators a manager may need
type Dependencies struct {
	Credits   credits.Repository
	Invoices  invoice.Repository
	Publisher publisher.EventPublisher
	Logger    *logger.Logger
}

// Constructor builds a manager priced by p
type Constructor func(deps Dependencies, p *plan.FinancePlan) Manager

var constructors = map[string]Constructor{
	ManagerPrepaid:  NewPrepaidManager,
	ManagerPostpaid: NewPostpaidManager,
}

// New resolves a manager implementation by name
func New(name string, deps Dependencies, p *plan.FinancePlan) (Manager, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, ierr.NewError("unknown payment manager").
			WithHintf("Payment manager %s is not available", name).
			WithReportableDetails(map[string]any{
				"name":    name,
				"allowed": lo.Keys(constructors),
			}).
			Mark(ierr.ErrValidation)
	}
	return ctor(deps, p), nil
}
