package payment

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cloudfin/finance/internal/domain/events"
	"github.com/cloudfin/finance/internal/domain/invoice"
	"github.com/cloudfin/finance/internal/domain/plan"
	"github.com/cloudfin/finance/internal/domain/record"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/publisher"
	"github.com/cloudfin/finance/internal/types"
	"github.com/samber/lo"
)

// PostpaidManager bills usage through invoices that are settled externally
type PostpaidManager struct {
	planHolder
	invoices  invoice.Repository
	publisher publisher.EventPublisher
	logger    *logger.Logger
}

func NewPostpaidManager(deps Dependencies, p *plan.FinancePlan) Manager {
	m := &PostpaidManager{
		invoices:  deps.Invoices,
		publisher: deps.Publisher,
		logger:    deps.Logger,
	}
	if m.publisher == nil {
		m.publisher = publisher.NewNopPublisher()
	}
	m.SetPlan(p)
	return m
}

// HasPaid is true unless one of the user's invoices is DEFAULTING
func (m *PostpaidManager) HasPaid(ctx context.Context, userID, provider string) (bool, error) {
	invoices, err := m.invoices.ListByUser(ctx, userID, provider)
	if err != nil {
		return false, err
	}
	return !lo.SomeBy(invoices, func(inv *invoice.Invoice) bool {
		return inv.IsDefaulting()
	}), nil
}

// StartPaymentProcess persists a WAITING invoice for the period. A period
// without usage yields an invoice with no lines and a zero total.
func (m *PostpaidManager) StartPaymentProcess(ctx context.Context, userID, provider string, periodStart, periodEnd time.Time, records []*record.Record) error {
	charges, err := ComputeCharges(m.Plan(), records, periodStart, periodEnd)
	if err != nil {
		return err
	}

	b := invoice.NewBuilder(userID, provider)
	for _, ch := range charges {
		b.AddItem(ch.Item, ch.State, ch.Amount)
	}

	inv, err := b.Build(periodStart, periodEnd)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to build the invoice").
			Mark(ierr.ErrInternal)
	}

	if err := m.invoices.Save(ctx, inv); err != nil {
		return err
	}

	m.logger.Debugw("created invoice",
		"user_id", userID,
		"provider", provider,
		"invoice_id", inv.ID,
		"total", inv.Total.String(),
	)

	event := events.NewEvent(types.EventInvoiceCreated, userID, provider, types.PluginKindPostpaid).
		WithProperty("invoice_id", inv.ID).
		WithProperty("total", inv.Total.String())
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Errorw("failed to publish invoice event",
			"user_id", userID,
			"invoice_id", inv.ID,
			"error", err,
		)
	}
	return nil
}

// GetUserFinanceState renders every invoice of the user as [inv1,inv2]
func (m *PostpaidManager) GetUserFinanceState(ctx context.Context, userID, provider, property string) (string, error) {
	if property != types.PropertyAllUserInvoices {
		return "", invalidProperty(property, types.PropertyAllUserInvoices)
	}

	invoices, err := m.invoices.ListByUser(ctx, userID, provider)
	if err != nil {
		return "", err
	}

	sort.SliceStable(invoices, func(i, j int) bool {
		return invoices[i].CreatedAt.Before(invoices[j].CreatedAt)
	})
	rendered := lo.Map(invoices, func(inv *invoice.Invoice, _ int) string {
		return inv.String()
	})
	return "[" + strings.Join(rendered, ",") + "]", nil
}

// UpdateFinanceState records external settlement. Keys are invoice ids and
// values the new invoice state. Nothing is written unless every transition
// is valid.
func (m *PostpaidManager) UpdateFinanceState(ctx context.Context, userID, provider string, state map[string]string) error {
	if len(state) == 0 {
		return ierr.NewError("no invoice states to update").
			WithHint("Please provide at least one invoice id and state").
			Mark(ierr.ErrInvalidParameter)
	}

	updates := make([]*invoice.Invoice, 0, len(state))
	for id, raw := range state {
		newState := types.InvoiceState(raw)
		if err := newState.Validate(); err != nil {
			return ierr.WithError(err).
				WithReportableDetails(map[string]any{
					"invoice_id": id,
					"state":      raw,
				}).
				Mark(ierr.ErrInvalidParameter)
		}

		inv, err := m.invoices.Get(ctx, id)
		if err != nil {
			return err
		}
		if inv.UserID != userID || inv.ProviderID != provider {
			return ierr.NewError("invoice not found").
				WithHintf("Invoice %s does not belong to the user", id).
				Mark(ierr.ErrNotFound)
		}
		if err := inv.SetState(newState); err != nil {
			return err
		}
		updates = append(updates, inv)
	}

	for _, inv := range updates {
		if err := m.invoices.UpdateState(ctx, inv.ID, inv.State); err != nil {
			return err
		}
	}
	return nil
}

func (m *PostpaidManager) AddUser(ctx context.Context, userID, provider string) error {
	return nil
}

func (m *PostpaidManager) RemoveUser(ctx context.Context, userID, provider string) error {
	return m.invoices.DeleteByUser(ctx, userID, provider)
}
