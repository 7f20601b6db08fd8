// Package payment implements the billing models used by the finance
// plugins: prepaid credits and postpaid invoices.
package payment

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cloudfin/finance/internal/domain/plan"
	"github.com/cloudfin/finance/internal/domain/record"
	"github.com/cloudfin/finance/internal/domain/resource"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/types"
	"github.com/shopspring/decimal"
)

// Manager charges users for their usage and answers whether they paid.
// Calls for one user are expected to be serialized by the caller through the
// user lock.
type Manager interface {
	HasPaid(ctx context.Context, userID, provider string) (bool, error)

	// StartPaymentProcess charges the usage in records for the billing period
	// [periodStart, periodEnd). Either every record is charged or none is.
	StartPaymentProcess(ctx context.Context, userID, provider string, periodStart, periodEnd time.Time, records []*record.Record) error

	GetUserFinanceState(ctx context.Context, userID, provider, property string) (string, error)
	UpdateFinanceState(ctx context.Context, userID, provider string, state map[string]string) error

	// AddUser and RemoveUser set up and tear down the per-user billing state
	AddUser(ctx context.Context, userID, provider string) error
	RemoveUser(ctx context.Context, userID, provider string) error

	SetPlan(p *plan.FinancePlan)
	Plan() *plan.FinancePlan
}

// Charge is the amount owed for the time one record spent in one order state
type Charge struct {
	RecordID  string
	Item      resource.Item
	State     types.OrderState
	UnitPrice decimal.Decimal
	Units     decimal.Decimal
	Amount    decimal.Decimal
}

type planHolder struct {
	plan atomic.Pointer[plan.FinancePlan]
}

func (h *planHolder) SetPlan(p *plan.FinancePlan) {
	h.plan.Store(p)
}

func (h *planHolder) Plan() *plan.FinancePlan {
	return h.plan.Load()
}

// ComputeCharges prices every record against p. The first record whose item
// or price cannot be resolved fails the whole computation.
func ComputeCharges(p *plan.FinancePlan, records []*record.Record, periodStart, periodEnd time.Time) ([]Charge, error) {
	if p == nil {
		return nil, ierr.NewError("no finance plan configured").
			WithHint("A finance plan must be set before payments can be processed").
			Mark(ierr.ErrInternal)
	}

	var charges []Charge
	for _, r := range records {
		if r == nil {
			continue
		}

		item, err := r.Item()
		if err != nil {
			return nil, paymentError(err, r)
		}

		for _, span := range r.TimeInStates(periodStart, periodEnd) {
			price, err := p.GetItemFinancialValue(item, span.State)
			if err != nil {
				return nil, paymentError(err, r)
			}
			units := p.Units(span.Duration)
			charges = append(charges, Charge{
				RecordID:  r.ID,
				Item:      item,
				State:     span.State,
				UnitPrice: price,
				Units:     units,
				Amount:    price.Mul(units),
			})
		}
	}
	return charges, nil
}

func paymentError(err error, r *record.Record) error {
	return ierr.WithError(err).
		WithHint("Failed to compute the payment for a usage record").
		WithReportableDetails(map[string]any{
			"record_id":     r.ID,
			"order_id":      r.OrderID,
			"resource_type": r.ResourceType,
		}).
		Mark(ierr.ErrInternal)
}

func invalidProperty(property string, allowed ...string) error {
	return ierr.NewError("unknown finance state property").
		WithHintf("Property %s is not supported", property).
		WithReportableDetails(map[string]any{
			"property": property,
			"allowed":  allowed,
		}).
		Mark(ierr.ErrInvalidParameter)
}
