package credits

import "context"

// Repository defines the interface for prepaid credits persistence
type Repository interface {
	Save(ctx context.Context, c *UserCredits) error
	Get(ctx context.Context, userID, provider string) (*UserCredits, error)
	Delete(ctx context.Context, userID, provider string) error
}
