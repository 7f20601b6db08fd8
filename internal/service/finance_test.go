package service

import (
	"context"
	"testing"
	"time"

	"github.com/cloudfin/finance/internal/api/dto"
	"github.com/cloudfin/finance/internal/domain/record"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/plugin"
	"github.com/cloudfin/finance/internal/publisher"
	"github.com/cloudfin/finance/internal/registry"
	"github.com/cloudfin/finance/internal/testutil"
	"github.com/cloudfin/finance/internal/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const provider = "keystone"

type FinanceServiceSuite struct {
	testutil.BaseServiceTestSuite
	service FinanceService
	plans   PlanService
}

func TestFinanceService(t *testing.T) {
	suite.Run(t, new(FinanceServiceSuite))
}

func (s *FinanceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	ctx := s.GetContext()
	cfg := s.GetConfig()
	log := s.GetLogger()
	stores := s.GetStores()

	s.plans = NewPlanService(stores.PlanRepo, s.GetCache(), cfg, log)
	active, err := s.plans.EnsurePlan(ctx, cfg.Finance.DefaultPlan, []string{
		"compute,FULFILLED,2,4,1.0",
		"volume,FULFILLED,10,0.5",
	})
	s.Require().NoError(err)

	users := registry.NewUsersHolder(stores.UserRepo, log)
	plugins, err := plugin.NewAll(plugin.Params{
		Config:     cfg,
		Users:      users,
		Accounting: s.GetAccounting(),
		RAS:        s.GetRAS(),
		Credits:    stores.CreditsRepo,
		Invoices:   stores.InvoiceRepo,
		Publisher:  publisher.NewEventPublisher(s.GetPubSub(), log),
		Logger:     log,
		Plan:       active,
		Now:        s.GetNow,
	})
	s.Require().NoError(err)

	s.service = NewFinanceService(
		NewServiceParams(log, cfg, s.GetCache(), stores.PlanRepo, users, plugins, s.GetRAS()),
		s.plans,
	)
}

func (s *FinanceServiceSuite) addUser(id string, kind types.PluginKind) {
	s.Require().NoError(s.service.AddUser(s.GetContext(), &dto.AddUserRequest{
		UserRef: dto.UserRef{UserID: id, Provider: provider},
		Plugin:  kind,
	}))
}

func (s *FinanceServiceSuite) addUsage(id string, hours int) {
	start := s.GetNow()
	end := start.Add(time.Duration(hours) * time.Hour)
	s.GetAccounting().AddRecords(id, provider, &record.Record{
		ID:           id + "-vm",
		ResourceType: "compute",
		Spec:         record.Spec{VCPU: 2, RAM: 4},
		StartTime:    start,
		EndTime:      &end,
		State:        types.OrderStateFulfilled,
	})
}

func (s *FinanceServiceSuite) authorize(id string, op types.OperationType) (bool, error) {
	resp, err := s.service.IsAuthorized(s.GetContext(), &dto.AuthorizationRequest{
		UserRef:   dto.UserRef{UserID: id, Provider: provider},
		Operation: types.Operation{Type: op},
	})
	if err != nil {
		return false, err
	}
	return resp.Authorized, nil
}

func (s *FinanceServiceSuite) state(id, property string) string {
	resp, err := s.service.GetFinanceState(s.GetContext(), &dto.FinanceStateRequest{
		UserRef:  dto.UserRef{UserID: id, Provider: provider},
		Property: property,
	})
	s.Require().NoError(err)
	return resp.Value
}

func (s *FinanceServiceSuite) TestAddUserValidatesRequest() {
	ctx := s.GetContext()

	err := s.service.AddUser(ctx, &dto.AddUserRequest{
		UserRef: dto.UserRef{UserID: "alice"},
		Plugin:  types.PluginKindPrepaid,
	})
	s.True(ierr.IsValidation(err))

	err = s.service.AddUser(ctx, &dto.AddUserRequest{
		UserRef: dto.UserRef{UserID: "alice", Provider: provider},
		Plugin:  "barter",
	})
	s.True(ierr.IsValidation(err))
}

func (s *FinanceServiceSuite) TestAddUserAssignsOnePlugin() {
	s.addUser("alice", types.PluginKindPrepaid)
	s.True(s.service.ManagesUser("alice", provider))
	s.Equal("0", s.state("alice", types.PropertyUserCredits))

	err := s.service.AddUser(s.GetContext(), &dto.AddUserRequest{
		UserRef: dto.UserRef{UserID: "alice", Provider: provider},
		Plugin:  types.PluginKindPostpaid,
	})
	s.True(ierr.IsAlreadyExists(err))
}

func (s *FinanceServiceSuite) TestUnknownUserIsNotFound() {
	_, err := s.authorize("ghost", types.OperationCreate)
	s.True(ierr.IsNotFound(err))
	s.False(s.service.ManagesUser("ghost", provider))
}

// prepaid user runs out of credits, is refused new resources and is
// accepted again after topping up
func (s *FinanceServiceSuite) TestPrepaidAuthorizationFollowsBalance() {
	ctx := s.GetContext()
	s.addUser("alice", types.PluginKindPrepaid)
	s.Require().NoError(s.service.UpdateFinanceState(ctx, &dto.UpdateFinanceStateRequest{
		UserRef: dto.UserRef{UserID: "alice", Provider: provider},
		State:   map[string]string{types.PropertyCreditsToAdd: "2"},
	}))
	s.addUsage("alice", 3)
	s.SetNow(s.GetNow().Add(3 * time.Hour))

	s.Require().NoError(s.service.TriggerPayment(ctx, &dto.UserRef{UserID: "alice", Provider: provider}))
	s.Equal("-1", s.state("alice", types.PropertyUserCredits))

	ok, err := s.authorize("alice", types.OperationCreate)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.authorize("alice", types.OperationGetAll)
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.service.UpdateFinanceState(ctx, &dto.UpdateFinanceStateRequest{
		UserRef: dto.UserRef{UserID: "alice", Provider: provider},
		State:   map[string]string{types.PropertyCreditsToAdd: "1"},
	}))
	ok, err = s.authorize("alice", types.OperationCreate)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *FinanceServiceSuite) TestPostpaidDefaultingInvoiceBlocksCreate() {
	ctx := s.GetContext()
	s.addUser("bob", types.PluginKindPostpaid)
	s.addUsage("bob", 2)
	s.SetNow(s.GetNow().Add(2 * time.Hour))

	s.Require().NoError(s.service.TriggerPayment(ctx, &dto.UserRef{UserID: "bob", Provider: provider}))

	invoices, err := s.GetStores().InvoiceRepo.ListByUser(ctx, "bob", provider)
	s.Require().NoError(err)
	s.Require().Len(invoices, 1)
	s.Equal(types.InvoiceStateWaiting, invoices[0].State)
	s.Len(s.GetPubSub().GetMessages(string(types.EventInvoiceCreated)), 1)

	ok, err := s.authorize("bob", types.OperationCreate)
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.service.UpdateFinanceState(ctx, &dto.UpdateFinanceStateRequest{
		UserRef: dto.UserRef{UserID: "bob", Provider: provider},
		State:   map[string]string{invoices[0].ID: string(types.InvoiceStateDefaulting)},
	}))
	ok, err = s.authorize("bob", types.OperationCreate)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *FinanceServiceSuite) TestRemoveUserPurgesResources() {
	ctx := s.GetContext()
	s.addUser("alice", types.PluginKindPrepaid)
	s.GetRAS().On("PurgeUser", mock.Anything, "alice", provider).Return(nil).Once()

	s.Require().NoError(s.service.RemoveUser(ctx, &dto.UserRef{UserID: "alice", Provider: provider}))

	s.GetRAS().AssertExpectations(s.T())
	s.False(s.service.ManagesUser("alice", provider))
	_, err := s.GetStores().CreditsRepo.Get(ctx, "alice", provider)
	s.True(ierr.IsNotFound(err))
}

func (s *FinanceServiceSuite) TestRemoveUserKeepsUserWhenPurgeFails() {
	s.addUser("alice", types.PluginKindPrepaid)
	s.GetRAS().On("PurgeUser", mock.Anything, "alice", provider).
		Return(ierr.NewError("down").Mark(ierr.ErrUnavailable))

	err := s.service.RemoveUser(s.GetContext(), &dto.UserRef{UserID: "alice", Provider: provider})
	s.True(ierr.IsUnavailable(err))
	s.True(s.service.ManagesUser("alice", provider))
}

func (s *FinanceServiceSuite) TestTriggerPaymentPropagatesAccountingErrors() {
	s.addUser("alice", types.PluginKindPrepaid)
	s.GetAccounting().FailFor("alice", provider, ierr.NewError("down").Mark(ierr.ErrUnavailable))

	err := s.service.TriggerPayment(s.GetContext(), &dto.UserRef{UserID: "alice", Provider: provider})
	s.True(ierr.IsUnavailable(err))
}

func (s *FinanceServiceSuite) TestChangeOptions() {
	s.addUser("alice", types.PluginKindPrepaid)

	err := s.service.ChangeOptions(s.GetContext(), &dto.ChangeOptionsRequest{
		UserRef: dto.UserRef{UserID: "alice", Provider: provider},
		Options: map[string]string{types.OptionBillingInterval: "15m", "tier": "gold"},
	})
	s.Require().NoError(err)

	stored, err := s.GetStores().UserRepo.Get(s.GetContext(), "alice", provider)
	s.Require().NoError(err)
	s.Equal(15*time.Minute, stored.BillingInterval)
	s.Equal("gold", stored.Properties["tier"])
}

func (s *FinanceServiceSuite) TestUpdateActivePlanRepricesBilling() {
	ctx := s.GetContext()
	name := s.GetConfig().Finance.DefaultPlan
	s.addUser("alice", types.PluginKindPrepaid)
	s.addUsage("alice", 1)
	s.SetNow(s.GetNow().Add(time.Hour))

	resp, err := s.service.UpdatePlan(ctx, name, dto.UpdatePlanRequest{Rules: "compute,FULFILLED,2,4,4.0"})
	s.Require().NoError(err)
	s.True(resp.Active)
	s.Equal([]string{"compute,FULFILLED,2,4,4"}, resp.Rules)

	s.Require().NoError(s.service.TriggerPayment(ctx, &dto.UserRef{UserID: "alice", Provider: provider}))
	s.Equal("-4", s.state("alice", types.PropertyUserCredits))
}

func (s *FinanceServiceSuite) TestActivatePlanSwapsPlugins() {
	ctx := s.GetContext()
	s.addUser("alice", types.PluginKindPrepaid)
	s.addUsage("alice", 1)
	s.SetNow(s.GetNow().Add(time.Hour))

	_, err := s.service.CreatePlan(ctx, dto.CreatePlanRequest{
		Name:  "discount",
		Rules: "compute,FULFILLED,2,4,0.25",
	})
	s.Require().NoError(err)
	s.Require().NoError(s.service.ActivatePlan(ctx, "discount"))

	s.Require().NoError(s.service.TriggerPayment(ctx, &dto.UserRef{UserID: "alice", Provider: provider}))
	s.Equal("-0.25", s.state("alice", types.PropertyUserCredits))

	err = s.service.RemovePlan(ctx, "discount")
	s.True(ierr.Is(err, ierr.ErrInvalidOperation))
	s.Require().NoError(s.service.RemovePlan(ctx, s.GetConfig().Finance.DefaultPlan))
}

func (s *FinanceServiceSuite) TestStartAndStopPlugins() {
	ctx, cancel := context.WithTimeout(s.GetContext(), 5*time.Second)
	defer cancel()

	s.Require().NoError(s.service.StartPlugins(ctx))
	s.Require().NoError(s.service.StartPlugins(ctx))
	s.service.StopPlugins()
	s.service.StopPlugins()
}
