package payment

import (
	"context"
	"time"

	"github.com/cloudfin/finance/internal/domain/credits"
	"github.com/cloudfin/finance/internal/domain/plan"
	"github.com/cloudfin/finance/internal/domain/record"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/types"
	"github.com/shopspring/decimal"
)

// PrepaidManager deducts usage from a pre-funded credits balance
type PrepaidManager struct {
	planHolder
	credits credits.Repository
	logger  *logger.Logger
}

func NewPrepaidManager(deps Dependencies, p *plan.FinancePlan) Manager {
	m := &PrepaidManager{
		credits: deps.Credits,
		logger:  deps.Logger,
	}
	m.SetPlan(p)
	return m
}

// HasPaid reports whether the balance is not negative
func (m *PrepaidManager) HasPaid(ctx context.Context, userID, provider string) (bool, error) {
	c, err := m.credits.Get(ctx, userID, provider)
	if err != nil {
		return false, err
	}
	return c.HasPaid(), nil
}

func (m *PrepaidManager) StartPaymentProcess(ctx context.Context, userID, provider string, periodStart, periodEnd time.Time, records []*record.Record) error {
	c, err := m.credits.Get(ctx, userID, provider)
	if err != nil {
		return err
	}

	charges, err := ComputeCharges(m.Plan(), records, periodStart, periodEnd)
	if err != nil {
		return err
	}
	if len(charges) == 0 {
		return nil
	}

	// deduct on a copy so a failure leaves the stored balance untouched
	updated := *c
	for _, ch := range charges {
		if err := updated.Deduct(ch.Item, ch.UnitPrice, ch.Units); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to deduct credits").
				Mark(ierr.ErrInternal)
		}
	}

	if err := m.credits.Save(ctx, &updated); err != nil {
		return err
	}

	m.logger.Debugw("deducted credits",
		"user_id", userID,
		"provider", provider,
		"charges", len(charges),
		"balance", updated.Balance.String(),
	)
	return nil
}

func (m *PrepaidManager) GetUserFinanceState(ctx context.Context, userID, provider, property string) (string, error) {
	if property != types.PropertyUserCredits {
		return "", invalidProperty(property, types.PropertyUserCredits)
	}

	c, err := m.credits.Get(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	return c.Balance.String(), nil
}

// UpdateFinanceState adds the CREDITS_TO_ADD amount to the balance
func (m *PrepaidManager) UpdateFinanceState(ctx context.Context, userID, provider string, state map[string]string) error {
	raw, ok := state[types.PropertyCreditsToAdd]
	if !ok {
		return ierr.NewError("missing credits to add").
			WithHintf("Please provide %s", types.PropertyCreditsToAdd).
			Mark(ierr.ErrInvalidParameter)
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("%s must be a number", types.PropertyCreditsToAdd).
			WithReportableDetails(map[string]any{
				"value": raw,
			}).
			Mark(ierr.ErrInvalidParameter)
	}

	c, err := m.credits.Get(ctx, userID, provider)
	if err != nil {
		return err
	}
	c.AddCredits(amount)
	return m.credits.Save(ctx, c)
}

// AddUser opens a zero balance for the user unless one already exists
func (m *PrepaidManager) AddUser(ctx context.Context, userID, provider string) error {
	_, err := m.credits.Get(ctx, userID, provider)
	if err == nil {
		return nil
	}
	if !ierr.IsNotFound(err) {
		return err
	}
	return m.credits.Save(ctx, credits.New(userID, provider))
}

func (m *PrepaidManager) RemoveUser(ctx context.Context, userID, provider string) error {
	err := m.credits.Delete(ctx, userID, provider)
	if err != nil && !ierr.IsNotFound(err) {
		return err
	}
	return nil
}
