package invoice

import (
	"time"

	"github.com/cloudfin/finance/internal/domain/resource"
	"github.com/cloudfin/finance/internal/types"
	"github.com/shopspring/decimal"
)

// Builder accumulates invoice lines for one user and billing period
type Builder struct {
	userID   string
	provider string
	items    Items
	err      error
}

func NewBuilder(userID, provider string) *Builder {
	return &Builder{userID: userID, provider: provider, items: Items{}}
}

// AddItem appends a line owing amount for item in state. The first error is
// kept and returned by Build.
func (b *Builder) AddItem(item resource.Item, state types.OrderState, amount decimal.Decimal) *Builder {
	if b.err != nil {
		return b
	}
	line, err := NewItem(item, state, amount)
	if err != nil {
		b.err = err
		return b
	}
	b.items = append(b.items, line)
	return b
}

func (b *Builder) Len() int {
	return len(b.items)
}

// Build returns a WAITING invoice whose total is the sum of its lines
func (b *Builder) Build(start, end time.Time) (*Invoice, error) {
	if b.err != nil {
		return nil, b.err
	}
	now := time.Now().UTC()
	return &Invoice{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		UserID:     b.userID,
		ProviderID: b.provider,
		State:      types.InvoiceStateWaiting,
		Items:      append(Items{}, b.items...),
		Total:      b.items.Sum(),
		StartTime:  start,
		EndTime:    end,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
