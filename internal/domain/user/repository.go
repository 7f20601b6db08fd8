package user

import (
	"context"

	"github.com/cloudfin/finance/internal/types"
)

// Repository defines the interface for finance user persistence operations
type Repository interface {
	Save(ctx context.Context, u *FinanceUser) error
	Remove(ctx context.Context, userID, provider string) error
	Get(ctx context.Context, userID, provider string) (*FinanceUser, error)
	List(ctx context.Context) ([]*FinanceUser, error)
	ListByPlugin(ctx context.Context, plugin types.PluginKind) ([]*FinanceUser, error)
}
