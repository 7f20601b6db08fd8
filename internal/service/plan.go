package service

import (
	"context"
	"time"

	"github.com/cloudfin/finance/internal/api/dto"
	"github.com/cloudfin/finance/internal/cache"
	"github.com/cloudfin/finance/internal/config"
	"github.com/cloudfin/finance/internal/domain/plan"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
)

// PlanService stores pricing plans and keeps the parsed plans cached. The
// cached value is the live *plan.FinancePlan, so an update through this
// service is seen by everyone holding the plan.
type PlanService interface {
	CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*plan.FinancePlan, error)
	GetPlan(ctx context.Context, name string) (*plan.FinancePlan, error)
	ListPlans(ctx context.Context) ([]*plan.FinancePlan, error)
	UpdatePlan(ctx context.Context, name string, req dto.UpdatePlanRequest) (*plan.FinancePlan, error)
	DeletePlan(ctx context.Context, name string) error

	// EnsurePlan returns the named plan, creating it from rules when it is
	// missing and rules are given
	EnsurePlan(ctx context.Context, name string, rules []string) (*plan.FinancePlan, error)
}

type planService struct {
	planRepo        plan.Repository
	cache           cache.Cache
	defaultTimeUnit time.Duration
	logger          *logger.Logger
}

func NewPlanService(
	planRepo plan.Repository,
	cache cache.Cache,
	cfg *config.Configuration,
	logger *logger.Logger,
) PlanService {
	return &planService{
		planRepo:        planRepo,
		cache:           cache,
		defaultTimeUnit: cfg.Finance.DefaultTimeUnit,
		logger:          logger,
	}
}

func (s *planService) CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*plan.FinancePlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := req.ToFinancePlan(s.defaultTimeUnit)
	if err != nil {
		return nil, err
	}

	if _, err := s.planRepo.Get(ctx, p.Name()); err == nil {
		return nil, ierr.NewError("plan already exists").
			WithHintf("A plan named %s already exists", p.Name()).
			WithReportableDetails(map[string]any{
				"plan": p.Name(),
			}).
			Mark(ierr.ErrAlreadyExists)
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	if err := s.planRepo.Save(ctx, plan.FromFinancePlan(p)); err != nil {
		return nil, err
	}

	s.setCache(ctx, p)
	s.logger.Infow("plan created", "plan", p.Name(), "prices", p.Len())
	return p, nil
}

func (s *planService) GetPlan(ctx context.Context, name string) (*plan.FinancePlan, error) {
	if name == "" {
		return nil, ierr.NewError("plan name is required").
			WithHint("Please provide a plan name").
			Mark(ierr.ErrValidation)
	}

	if p := s.getCache(ctx, name); p != nil {
		return p, nil
	}

	stored, err := s.planRepo.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	p, err := stored.ToFinancePlan()
	if err != nil {
		return nil, err
	}

	s.setCache(ctx, p)
	return p, nil
}

func (s *planService) ListPlans(ctx context.Context) ([]*plan.FinancePlan, error) {
	stored, err := s.planRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	plans := make([]*plan.FinancePlan, 0, len(stored))
	for _, pp := range stored {
		p, err := s.GetPlan(ctx, pp.Name)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// UpdatePlan replaces every price of the plan. Invalid rules leave the plan
// untouched.
func (s *planService) UpdatePlan(ctx context.Context, name string, req dto.UpdatePlanRequest) (*plan.FinancePlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.GetPlan(ctx, name)
	if err != nil {
		return nil, err
	}

	stored, err := s.planRepo.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	// parse on a scratch plan first so a failed save keeps the live prices
	rules := plan.SplitRules(req.Rules)
	next, err := plan.NewFinancePlan(name, p.TimeUnit(), rules)
	if err != nil {
		return nil, err
	}

	stored.Rules = next.Rules()
	stored.UpdatedAt = time.Now().UTC()
	if err := s.planRepo.Save(ctx, stored); err != nil {
		return nil, err
	}

	if err := p.Update(rules); err != nil {
		return nil, err
	}

	s.logger.Infow("plan updated", "plan", name, "prices", p.Len())
	return p, nil
}

func (s *planService) DeletePlan(ctx context.Context, name string) error {
	if err := s.planRepo.Delete(ctx, name); err != nil {
		return err
	}
	s.cache.Delete(ctx, cache.GenerateKey(cache.PrefixPlan, name))
	s.logger.Infow("plan deleted", "plan", name)
	return nil
}

func (s *planService) EnsurePlan(ctx context.Context, name string, rules []string) (*plan.FinancePlan, error) {
	p, err := s.GetPlan(ctx, name)
	if err == nil || !ierr.IsNotFound(err) || len(rules) == 0 {
		return p, err
	}

	s.logger.Infow("seeding plan", "plan", name, "rules", len(rules))
	return s.CreatePlan(ctx, dto.CreatePlanRequest{
		Name:  name,
		Rules: plan.JoinRules(rules),
	})
}

func (s *planService) getCache(ctx context.Context, name string) *plan.FinancePlan {
	v, ok := s.cache.Get(ctx, cache.GenerateKey(cache.PrefixPlan, name))
	if !ok {
		return nil
	}
	p, _ := v.(*plan.FinancePlan)
	return p
}

func (s *planService) setCache(ctx context.Context, p *plan.FinancePlan) {
	s.cache.Set(ctx, cache.GenerateKey(cache.PrefixPlan, p.Name()), p, 0)
}
