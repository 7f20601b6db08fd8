package credits

import (
	"time"

	"github.com/cloudfin/finance/internal/domain/resource"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/shopspring/decimal"
)

// UserCredits is the prepaid balance of a user. The balance may go negative,
// which is how non-payment is signalled.
type UserCredits struct {
	UserID    string          `db:"user_id" json:"user_id"`
	Provider  string          `db:"provider" json:"provider"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

func New(userID, provider string) *UserCredits {
	return &UserCredits{
		UserID:    userID,
		Provider:  provider,
		Balance:   decimal.Zero,
		UpdatedAt: time.Now().UTC(),
	}
}

// Deduct charges price per unit for timeUsed units of item
func (c *UserCredits) Deduct(item resource.Item, unitPrice, timeUsed decimal.Decimal) error {
	if item == nil {
		return ierr.NewError("cannot deduct credits for an empty resource item").
			Mark(ierr.ErrValidation)
	}
	if unitPrice.IsNegative() || timeUsed.IsNegative() {
		return ierr.NewError("price and time used must not be negative").
			WithReportableDetails(map[string]any{
				"item":       item.String(),
				"unit_price": unitPrice.String(),
				"time_used":  timeUsed.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	c.Balance = c.Balance.Sub(unitPrice.Mul(timeUsed))
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// AddCredits increases the balance by amount
func (c *UserCredits) AddCredits(amount decimal.Decimal) {
	c.Balance = c.Balance.Add(amount)
	c.UpdatedAt = time.Now().UTC()
}

// HasPaid reports whether the balance is not negative
func (c *UserCredits) HasPaid() bool {
	return !c.Balance.IsNegative()
}
