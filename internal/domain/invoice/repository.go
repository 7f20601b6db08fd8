package invoice

import (
	"context"

	"github.com/cloudfin/finance/internal/types"
)

// Repository defines the interface for invoice persistence operations
type Repository interface {
	Save(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	ListByUser(ctx context.Context, userID, provider string) ([]*Invoice, error)
	UpdateState(ctx context.Context, id string, state types.InvoiceState) error
	DeleteByUser(ctx context.Context, userID, provider string) error
}
