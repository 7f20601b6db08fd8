package testutil

import (
	"context"

	"github.com/cloudfin/finance/internal/domain/plan"
)

// InMemoryPlanStore implements plan.Repository
type InMemoryPlanStore struct {
	*InMemoryStore[plan.PlanPlugin]
}

var _ plan.Repository = (*InMemoryPlanStore)(nil)

func NewInMemoryPlanStore() *InMemoryPlanStore {
	return &InMemoryPlanStore{
		InMemoryStore: NewInMemoryStore[plan.PlanPlugin](),
	}
}

func (s *InMemoryPlanStore) Get(ctx context.Context, name string) (*plan.PlanPlugin, error) {
	p, err := s.InMemoryStore.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *InMemoryPlanStore) Save(ctx context.Context, p *plan.PlanPlugin) error {
	cp := *p
	cp.Rules = append(plan.RuleSet{}, p.Rules...)
	return s.InMemoryStore.Upsert(ctx, p.Name, cp)
}

func (s *InMemoryPlanStore) Delete(ctx context.Context, name string) error {
	return s.InMemoryStore.Delete(ctx, name)
}

func (s *InMemoryPlanStore) List(ctx context.Context) ([]*plan.PlanPlugin, error) {
	plans, err := s.InMemoryStore.List(ctx, nil, func(i, j plan.PlanPlugin) bool {
		return i.Name < j.Name
	})
	if err != nil {
		return nil, err
	}
	out := make([]*plan.PlanPlugin, len(plans))
	for i := range plans {
		out[i] = &plans[i]
	}
	return out, nil
}
