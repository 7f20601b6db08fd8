package invoice

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/cloudfin/finance/internal/domain/resource"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/types"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Invoice is a postpaid bill for one billing period. It is immutable once
// built except for its settlement state.
type Invoice struct {
	ID         string             `db:"id" json:"id"`
	UserID     string             `db:"user_id" json:"user_id"`
	ProviderID string             `db:"provider_id" json:"provider_id"`
	State      types.InvoiceState `db:"state" json:"state"`
	Items      Items              `db:"items" json:"items"`
	Total      decimal.Decimal    `db:"total" json:"total"`
	StartTime  time.Time          `db:"start_time" json:"start_time"`
	EndTime    time.Time          `db:"end_time" json:"end_time"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `db:"updated_at" json:"updated_at"`
}

// Item is one invoice line: the amount owed for a resource item in an order state
type Item struct {
	ResourceType resource.Type    `json:"resource_type"`
	VCPU         int              `json:"vcpu,omitempty"`
	RAM          int              `json:"ram,omitempty"`
	Size         int              `json:"size,omitempty"`
	State        types.OrderState `json:"state"`
	Amount       decimal.Decimal  `json:"amount"`
}

// NewItem builds an invoice line for item
func NewItem(item resource.Item, state types.OrderState, amount decimal.Decimal) (Item, error) {
	line := Item{State: state, Amount: amount}
	switch it := item.(type) {
	case resource.ComputeItem:
		line.ResourceType = resource.TypeCompute
		line.VCPU = it.VCPU
		line.RAM = it.RAM
	case resource.VolumeItem:
		line.ResourceType = resource.TypeVolume
		line.Size = it.Size
	default:
		return Item{}, ierr.NewError("unknown resource item").
			WithHintf("Cannot invoice item %v", item).
			Mark(ierr.ErrValidation)
	}
	return line, nil
}

// ResourceItem returns the pricing key this line was built from
func (i Item) ResourceItem() resource.Item {
	if i.ResourceType == resource.TypeVolume {
		return resource.VolumeItem{Size: i.Size}
	}
	return resource.ComputeItem{VCPU: i.VCPU, RAM: i.RAM}
}

// Items is the JSONB list of invoice lines
type Items []Item

func (it *Items) Scan(value interface{}) error {
	if value == nil {
		*it = Items{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}
	var out Items
	if err := json.Unmarshal(bytes, &out); err != nil {
		return err
	}
	*it = out
	return nil
}

func (it Items) Value() (driver.Value, error) {
	if it == nil {
		return json.Marshal(Items{})
	}
	return json.Marshal([]Item(it))
}

// Sum adds the amounts of all lines
func (it Items) Sum() decimal.Decimal {
	return lo.Reduce(it, func(acc decimal.Decimal, line Item, _ int) decimal.Decimal {
		return acc.Add(line.Amount)
	}, decimal.Zero)
}

// IsDefaulting reports whether the invoice has not been paid in time
func (inv *Invoice) IsDefaulting() bool {
	return inv.State == types.InvoiceStateDefaulting
}

// SetState applies a settlement transition. Paid invoices are final.
func (inv *Invoice) SetState(state types.InvoiceState) error {
	if err := state.Validate(); err != nil {
		return err
	}

	allowed := map[types.InvoiceState][]types.InvoiceState{
		types.InvoiceStateWaiting:    {types.InvoiceStatePaid, types.InvoiceStateDefaulting},
		types.InvoiceStateDefaulting: {types.InvoiceStatePaid},
	}
	if inv.State != state && !lo.Contains(allowed[inv.State], state) {
		return ierr.NewErrorf("invoice cannot move from %s to %s", inv.State, state).
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
				"from":       inv.State,
				"to":         state,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	inv.State = state
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

// Validate checks the invoice total against its lines
func (inv *Invoice) Validate() error {
	if !inv.Total.Equal(inv.Items.Sum()) {
		return ierr.NewError("invoice total does not match its items").
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
				"total":      inv.Total.String(),
				"items_sum":  inv.Items.Sum().String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return inv.State.Validate()
}

// String renders the invoice as a JSON object
func (inv *Invoice) String() string {
	out, err := json.Marshal(inv)
	if err != nil {
		return fmt.Sprintf("{\"id\":%q}", inv.ID)
	}
	return string(out)
}
