package service

import (
	"context"
	"sync"

	"github.com/cloudfin/finance/internal/api/dto"
	"github.com/cloudfin/finance/internal/domain/plan"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/plugin"
	"github.com/cloudfin/finance/internal/types"
	"github.com/samber/lo"
)

// FinanceService is the authorization boundary in front of the finance
// plugins. Every user is served by the single plugin that manages it.
type FinanceService interface {
	IsAuthorized(ctx context.Context, req *dto.AuthorizationRequest) (*dto.AuthorizationResponse, error)
	ManagesUser(userID, provider string) bool

	GetFinanceState(ctx context.Context, req *dto.FinanceStateRequest) (*dto.FinanceStateResponse, error)
	UpdateFinanceState(ctx context.Context, req *dto.UpdateFinanceStateRequest) error

	AddUser(ctx context.Context, req *dto.AddUserRequest) error
	RemoveUser(ctx context.Context, req *dto.UserRef) error
	ChangeOptions(ctx context.Context, req *dto.ChangeOptionsRequest) error
	TriggerPayment(ctx context.Context, req *dto.UserRef) error

	StartPlugins(ctx context.Context) error
	StopPlugins()

	CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*dto.PlanResponse, error)
	UpdatePlan(ctx context.Context, name string, req dto.UpdatePlanRequest) (*dto.PlanResponse, error)
	GetPlan(ctx context.Context, name string) (*dto.PlanResponse, error)
	ListPlans(ctx context.Context) ([]*dto.PlanResponse, error)
	RemovePlan(ctx context.Context, name string) error
	// ActivatePlan makes name the plan every plugin bills with
	ActivatePlan(ctx context.Context, name string) error
}

type financeService struct {
	ServiceParams
	plans PlanService

	mu         sync.RWMutex
	activePlan string
}

func NewFinanceService(params ServiceParams, plans PlanService) FinanceService {
	return &financeService{
		ServiceParams: params,
		plans:         plans,
		activePlan:    params.Config.Finance.DefaultPlan,
	}
}

func (s *financeService) pluginFor(userID, provider string) (plugin.FinancePlugin, error) {
	fp, ok := lo.Find(s.Plugins, func(fp plugin.FinancePlugin) bool {
		return fp.ManagesUser(userID, provider)
	})
	if !ok {
		return nil, ierr.NewError("user not managed").
			WithHintf("User %s of %s is not managed by the finance service", userID, provider).
			WithReportableDetails(map[string]any{
				"user_id":  userID,
				"provider": provider,
			}).
			Mark(ierr.ErrNotFound)
	}
	return fp, nil
}

func (s *financeService) pluginByKind(kind types.PluginKind) (plugin.FinancePlugin, error) {
	fp, ok := lo.Find(s.Plugins, func(fp plugin.FinancePlugin) bool {
		return fp.Name() == kind
	})
	if !ok {
		enabled := lo.Map(s.Plugins, func(fp plugin.FinancePlugin, _ int) types.PluginKind {
			return fp.Name()
		})
		return nil, ierr.NewError("finance plugin not enabled").
			WithHintf("The %s billing model is not enabled", kind).
			WithReportableDetails(map[string]any{
				"plugin":  kind,
				"enabled": enabled,
			}).
			Mark(ierr.ErrValidation)
	}
	return fp, nil
}

func (s *financeService) IsAuthorized(ctx context.Context, req *dto.AuthorizationRequest) (*dto.AuthorizationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	fp, err := s.pluginFor(req.UserID, req.Provider)
	if err != nil {
		return nil, err
	}

	ok, err := fp.IsAuthorized(ctx, req.UserID, req.Provider, req.Operation)
	if err != nil {
		return nil, err
	}
	return &dto.AuthorizationResponse{Authorized: ok}, nil
}

func (s *financeService) ManagesUser(userID, provider string) bool {
	_, err := s.pluginFor(userID, provider)
	return err == nil
}

func (s *financeService) GetFinanceState(ctx context.Context, req *dto.FinanceStateRequest) (*dto.FinanceStateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	fp, err := s.pluginFor(req.UserID, req.Provider)
	if err != nil {
		return nil, err
	}

	value, err := fp.GetUserFinanceState(ctx, req.UserID, req.Provider, req.Property)
	if err != nil {
		return nil, err
	}
	return &dto.FinanceStateResponse{
		UserID:   req.UserID,
		Provider: req.Provider,
		Property: req.Property,
		Value:    value,
	}, nil
}

func (s *financeService) UpdateFinanceState(ctx context.Context, req *dto.UpdateFinanceStateRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	fp, err := s.pluginFor(req.UserID, req.Provider)
	if err != nil {
		return err
	}
	return fp.UpdateFinanceState(ctx, req.UserID, req.Provider, req.State)
}

func (s *financeService) AddUser(ctx context.Context, req *dto.AddUserRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if s.ManagesUser(req.UserID, req.Provider) {
		return ierr.NewError("user already managed").
			WithHintf("User %s of %s is already managed by the finance service", req.UserID, req.Provider).
			WithReportableDetails(map[string]any{
				"user_id":  req.UserID,
				"provider": req.Provider,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	fp, err := s.pluginByKind(req.Plugin)
	if err != nil {
		return err
	}
	return fp.AddUser(ctx, req.UserID, req.Provider)
}

// RemoveUser purges the user's resources first so a failed purge leaves the
// user managed and the call can be retried.
func (s *financeService) RemoveUser(ctx context.Context, req *dto.UserRef) error {
	if err := req.Validate(); err != nil {
		return err
	}

	fp, err := s.pluginFor(req.UserID, req.Provider)
	if err != nil {
		return err
	}

	if err := s.RAS.PurgeUser(ctx, req.UserID, req.Provider); err != nil {
		return err
	}
	if err := fp.RemoveUser(ctx, req.UserID, req.Provider); err != nil {
		return err
	}

	s.Logger.Infow("user removed", "user_id", req.UserID, "provider", req.Provider, "plugin", fp.Name())
	return nil
}

func (s *financeService) ChangeOptions(ctx context.Context, req *dto.ChangeOptionsRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	fp, err := s.pluginFor(req.UserID, req.Provider)
	if err != nil {
		return err
	}
	return fp.ChangeOptions(ctx, req.UserID, req.Provider, req.Options)
}

func (s *financeService) TriggerPayment(ctx context.Context, req *dto.UserRef) error {
	if err := req.Validate(); err != nil {
		return err
	}

	fp, err := s.pluginFor(req.UserID, req.Provider)
	if err != nil {
		return err
	}
	return fp.TriggerPayment(ctx, req.UserID, req.Provider)
}

func (s *financeService) StartPlugins(ctx context.Context) error {
	for _, fp := range s.Plugins {
		if err := fp.StartThreads(ctx); err != nil {
			s.StopPlugins()
			return err
		}
	}
	return nil
}

func (s *financeService) StopPlugins() {
	for _, fp := range s.Plugins {
		fp.StopThreads()
	}
}

func (s *financeService) isActive(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activePlan == name
}

func (s *financeService) swapPlan(p *plan.FinancePlan) {
	for _, fp := range s.Plugins {
		fp.SetPlan(p)
	}
	s.Logger.Infow("active plan swapped", "plan", p.Name())
}

func (s *financeService) CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*dto.PlanResponse, error) {
	p, err := s.plans.CreatePlan(ctx, req)
	if err != nil {
		return nil, err
	}

	active := s.isActive(p.Name())
	if active {
		s.swapPlan(p)
	}
	return dto.NewPlanResponse(p, active), nil
}

func (s *financeService) UpdatePlan(ctx context.Context, name string, req dto.UpdatePlanRequest) (*dto.PlanResponse, error) {
	p, err := s.plans.UpdatePlan(ctx, name, req)
	if err != nil {
		return nil, err
	}

	active := s.isActive(name)
	if active {
		s.swapPlan(p)
	}
	return dto.NewPlanResponse(p, active), nil
}

func (s *financeService) GetPlan(ctx context.Context, name string) (*dto.PlanResponse, error) {
	p, err := s.plans.GetPlan(ctx, name)
	if err != nil {
		return nil, err
	}
	return dto.NewPlanResponse(p, s.isActive(name)), nil
}

func (s *financeService) ListPlans(ctx context.Context) ([]*dto.PlanResponse, error) {
	plans, err := s.plans.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(plans, func(p *plan.FinancePlan, _ int) *dto.PlanResponse {
		return dto.NewPlanResponse(p, s.isActive(p.Name()))
	}), nil
}

func (s *financeService) RemovePlan(ctx context.Context, name string) error {
	if s.isActive(name) {
		return ierr.NewError("cannot remove the active plan").
			WithHintf("Plan %s is used for billing, activate another plan first", name).
			WithReportableDetails(map[string]any{
				"plan": name,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	return s.plans.DeletePlan(ctx, name)
}

func (s *financeService) ActivatePlan(ctx context.Context, name string) error {
	p, err := s.plans.GetPlan(ctx, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.activePlan = name
	s.mu.Unlock()

	s.swapPlan(p)
	return nil
}
