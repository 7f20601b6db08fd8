package plan

import "context"

// Repository defines the interface for plan persistence operations
type Repository interface {
	Get(ctx context.Context, name string) (*PlanPlugin, error)
	Save(ctx context.Context, p *PlanPlugin) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*PlanPlugin, error)
}
