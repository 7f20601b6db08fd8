package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudfin/finance/internal/domain/plan"
	"github.com/cloudfin/finance/internal/domain/record"
	"github.com/cloudfin/finance/internal/domain/user"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/payment"
	"github.com/cloudfin/finance/internal/publisher"
	"github.com/cloudfin/finance/internal/registry"
	"github.com/cloudfin/finance/internal/testutil"
	"github.com/cloudfin/finance/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const provider = "keystone"

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type RunnerSuite struct {
	suite.Suite
	ctx        context.Context
	log        *logger.Logger
	userStore  *testutil.InMemoryUserStore
	credits    *testutil.InMemoryCreditsStore
	invoices   *testutil.InMemoryInvoiceStore
	pubsub     *testutil.InMemoryPubSub
	accounting *testutil.InMemoryAccountingClient
	ras        *testutil.MockRASClient
	users      *registry.UsersHolder
	prepaid    payment.Manager
	now        time.Time
}

func TestRunners(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	s.log = logger.NewNopLogger()
	s.userStore = testutil.NewInMemoryUserStore()
	s.credits = testutil.NewInMemoryCreditsStore()
	s.invoices = testutil.NewInMemoryInvoiceStore()
	s.pubsub = testutil.NewInMemoryPubSub()
	s.accounting = testutil.NewInMemoryAccountingClient()
	s.ras = testutil.NewMockRASClient()
	s.users = registry.NewUsersHolder(s.userStore, s.log)
	s.now = t0.Add(3 * time.Hour)

	p, err := plan.NewFinancePlan("test", time.Hour, []string{"compute,FULFILLED,2,4,1.0"})
	s.Require().NoError(err)

	s.prepaid, err = payment.New(payment.ManagerPrepaid, payment.Dependencies{
		Credits:  s.credits,
		Invoices: s.invoices,
		Logger:   s.log,
	}, p)
	s.Require().NoError(err)
}

func (s *RunnerSuite) addUser(id string, credits int64) *user.FinanceUser {
	u, err := user.New(id, provider, types.PluginKindPrepaid, time.Hour, t0)
	s.Require().NoError(err)
	s.Require().NoError(s.users.RegisterUser(s.ctx, u))
	s.Require().NoError(s.prepaid.AddUser(s.ctx, id, provider))
	s.Require().NoError(s.prepaid.UpdateFinanceState(s.ctx, id, provider, map[string]string{
		types.PropertyCreditsToAdd: decimal.NewFromInt(credits).String(),
	}))
	return u
}

func (s *RunnerSuite) addUsage(id string, hours int) {
	end := t0.Add(time.Duration(hours) * time.Hour)
	s.accounting.AddRecords(id, provider, &record.Record{
		ID:           id + "-record",
		ResourceType: "compute",
		Spec:         record.Spec{VCPU: 2, RAM: 4},
		StartTime:    t0,
		EndTime:      &end,
		State:        types.OrderStateFulfilled,
	})
}

func (s *RunnerSuite) paymentRunner() *PaymentRunner {
	return NewPaymentRunner(PaymentRunnerParams{
		Plugin:     types.PluginKindPrepaid,
		Interval:   time.Hour,
		Users:      s.users,
		Accounting: s.accounting,
		Manager:    s.prepaid,
		Logger:     s.log,
		Now:        func() time.Time { return s.now },
	})
}

func (s *RunnerSuite) stopServiceRunner() *StopServiceRunner {
	return NewStopServiceRunner(StopServiceRunnerParams{
		Plugin:    types.PluginKindPrepaid,
		Interval:  time.Hour,
		Users:     s.users,
		RAS:       s.ras,
		Manager:   s.prepaid,
		Publisher: publisher.NewEventPublisher(s.pubsub, s.log),
		Logger:    s.log,
	})
}

func (s *RunnerSuite) balance(id string) decimal.Decimal {
	c, err := s.credits.Get(s.ctx, id, provider)
	s.Require().NoError(err)
	return c.Balance
}

func (s *RunnerSuite) TestPaymentCycleChargesDueUsers() {
	u := s.addUser("alice", 5)
	s.addUsage("alice", 3)

	s.paymentRunner().RunCycle(s.ctx)

	s.True(decimal.NewFromInt(2).Equal(s.balance("alice")))
	s.Equal(s.now, u.LastBillingTime)

	stored, err := s.userStore.Get(s.ctx, "alice", provider)
	s.Require().NoError(err)
	s.Equal(s.now, stored.LastBillingTime)
}

func (s *RunnerSuite) TestPaymentCycleSkipsUsersNotDue() {
	s.addUser("alice", 5)
	s.addUsage("alice", 3)
	s.now = t0.Add(30 * time.Minute)

	s.paymentRunner().RunCycle(s.ctx)

	s.Zero(s.accounting.Calls("alice", provider))
	s.True(decimal.NewFromInt(5).Equal(s.balance("alice")))
}

func (s *RunnerSuite) TestPaymentFailureSkipsOnlyThatUser() {
	bob := s.addUser("bob", 5)
	s.addUser("carol", 5)
	s.addUsage("carol", 1)
	s.accounting.FailFor("bob", provider, ierr.NewError("down").Mark(ierr.ErrUnavailable))

	s.paymentRunner().RunCycle(s.ctx)

	s.Equal(t0, bob.LastBillingTime)
	s.True(decimal.NewFromInt(5).Equal(s.balance("bob")))
	s.True(decimal.NewFromInt(4).Equal(s.balance("carol")))
}

func (s *RunnerSuite) TestForceRunPropagatesErrors() {
	s.addUser("alice", 5)
	s.accounting.FailFor("alice", provider, ierr.NewError("down").Mark(ierr.ErrUnavailable))
	s.now = t0.Add(time.Minute)

	err := s.paymentRunner().ForceRun(s.ctx, "alice", provider)
	s.True(ierr.IsUnavailable(err))

	err = s.paymentRunner().ForceRun(s.ctx, "nobody", provider)
	s.True(ierr.IsNotFound(err))
}

func (s *RunnerSuite) TestForceRunIgnoresBillingInterval() {
	s.addUser("alice", 5)
	s.addUsage("alice", 3)
	s.now = t0.Add(30 * time.Minute)

	s.Require().NoError(s.paymentRunner().ForceRun(s.ctx, "alice", provider))
	s.True(decimal.NewFromFloat(4.5).Equal(s.balance("alice")), s.balance("alice").String())
}

func (s *RunnerSuite) TestUnpaidUserIsPausedOnce() {
	u := s.addUser("alice", 5)
	s.addUsage("alice", 6)
	s.now = t0.Add(6 * time.Hour)
	s.ras.On("PauseResourcesByUser", mock.Anything, "alice").Return(nil).Once()

	s.paymentRunner().RunCycle(s.ctx)
	s.True(decimal.NewFromInt(-1).Equal(s.balance("alice")))

	paid, err := s.prepaid.HasPaid(s.ctx, "alice", provider)
	s.Require().NoError(err)
	s.False(paid)

	stopper := s.stopServiceRunner()
	stopper.RunCycle(s.ctx)
	stopper.RunCycle(s.ctx)

	s.ras.AssertNumberOfCalls(s.T(), "PauseResourcesByUser", 1)
	s.ras.AssertNotCalled(s.T(), "ResumeResourcesByUser", mock.Anything, mock.Anything)
	s.True(u.StoppedResources)
	s.Len(s.pubsub.GetMessages(string(types.EventUserPaused)), 1)

	stored, err := s.userStore.Get(s.ctx, "alice", provider)
	s.Require().NoError(err)
	s.True(stored.StoppedResources)
}

func (s *RunnerSuite) TestPaidUserIsResumed() {
	u := s.addUser("alice", 5)
	u.StoppedResources = true
	s.ras.On("ResumeResourcesByUser", mock.Anything, "alice").Return(nil).Once()

	s.stopServiceRunner().RunCycle(s.ctx)

	s.ras.AssertExpectations(s.T())
	s.False(u.StoppedResources)
	s.Len(s.pubsub.GetMessages(string(types.EventUserResumed)), 1)
}

func (s *RunnerSuite) TestPauseFailureKeepsUserRunning() {
	u := s.addUser("alice", -1)
	s.ras.On("PauseResourcesByUser", mock.Anything, "alice").
		Return(ierr.NewError("down").Mark(ierr.ErrUnavailable))

	stopper := s.stopServiceRunner()
	stopper.RunCycle(s.ctx)
	stopper.RunCycle(s.ctx)

	s.False(u.StoppedResources)
	s.ras.AssertNumberOfCalls(s.T(), "PauseResourcesByUser", 2)
	s.Empty(s.pubsub.GetMessages(string(types.EventUserPaused)))
}

func (s *RunnerSuite) TestModifiedListAbandonsSweep() {
	s.addUser("alice", 5)
	s.addUser("bob", 5)
	s.addUsage("alice", 1)
	s.addUsage("bob", 1)

	list := s.users.GetRegisteredUsersByPaymentType(types.PluginKindPrepaid)
	visited := 0
	sweep(s.ctx, s.log, list, func(u *user.FinanceUser) {
		visited++
		extra, err := user.New("late", provider, types.PluginKindPrepaid, time.Hour, t0)
		s.Require().NoError(err)
		_ = s.users.RegisterUser(s.ctx, extra)
	})

	s.Equal(1, visited)
	s.Zero(list.Consumers())
}

func (s *RunnerSuite) addPostpaidUser(id string) (*user.FinanceUser, payment.Manager) {
	p, err := plan.NewFinancePlan("test", time.Hour, []string{"compute,FULFILLED,2,4,1.0"})
	s.Require().NoError(err)
	postpaid, err := payment.New(payment.ManagerPostpaid, payment.Dependencies{
		Credits:  s.credits,
		Invoices: s.invoices,
		Logger:   s.log,
	}, p)
	s.Require().NoError(err)

	u, err := user.New(id, provider, types.PluginKindPostpaid, time.Hour, t0)
	s.Require().NoError(err)
	s.Require().NoError(s.users.RegisterUser(s.ctx, u))
	s.Require().NoError(postpaid.AddUser(s.ctx, id, provider))
	return u, postpaid
}

// removeWhileLocked runs cycle while u is locked, removes the user and only
// then releases the lock, so a runner that already picked u up wakes on a
// removed user.
func (s *RunnerSuite) removeWhileLocked(u *user.FinanceUser, manager payment.Manager, cycle func(context.Context)) {
	u.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		cycle(s.ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Require().NoError(s.users.RemoveUser(s.ctx, u.UserID, u.Provider))
	s.Require().NoError(manager.RemoveUser(s.ctx, u.UserID, u.Provider))
	u.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.FailNow("cycle did not finish")
	}
}

func (s *RunnerSuite) TestUserRemovedMidSweepIsNotBilled() {
	u, postpaid := s.addPostpaidUser("carol")
	s.addUsage("carol", 3)

	r := NewPaymentRunner(PaymentRunnerParams{
		Plugin:     types.PluginKindPostpaid,
		Interval:   time.Hour,
		Users:      s.users,
		Accounting: s.accounting,
		Manager:    postpaid,
		Logger:     s.log,
		Now:        func() time.Time { return s.now },
	})
	s.removeWhileLocked(u, postpaid, r.RunCycle)

	_, err := s.users.GetUserByID("carol", provider)
	s.True(ierr.IsNotFound(err))

	_, err = s.userStore.Get(s.ctx, "carol", provider)
	s.True(ierr.IsNotFound(err), "removed user must stay out of storage")

	invoices, err := s.invoices.ListByUser(s.ctx, "carol", provider)
	s.Require().NoError(err)
	s.Empty(invoices)
	s.Equal(t0, u.LastBillingTime)
}

func (s *RunnerSuite) TestUserRemovedMidSweepIsNotResumed() {
	u, postpaid := s.addPostpaidUser("carol")
	u.StoppedResources = true

	r := NewStopServiceRunner(StopServiceRunnerParams{
		Plugin:    types.PluginKindPostpaid,
		Interval:  time.Hour,
		Users:     s.users,
		RAS:       s.ras,
		Manager:   postpaid,
		Publisher: publisher.NewEventPublisher(s.pubsub, s.log),
		Logger:    s.log,
	})
	s.removeWhileLocked(u, postpaid, r.RunCycle)

	s.ras.AssertNotCalled(s.T(), "ResumeResourcesByUser", mock.Anything, mock.Anything)
	s.Empty(s.pubsub.GetMessages(string(types.EventUserResumed)))

	_, err := s.userStore.Get(s.ctx, "carol", provider)
	s.True(ierr.IsNotFound(err))
}

func TestLoopLifecycle(t *testing.T) {
	var cycles atomic.Int32
	l := newLoop("test", 10*time.Millisecond, func(context.Context) {
		cycles.Add(1)
	}, logger.NewNopLogger())

	assert.False(t, l.IsActive())

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(context.Background())
	}()

	select {
	case <-l.Ready():
	case <-time.After(time.Second):
		t.Fatal("runner never became ready")
	}

	require.Eventually(t, func() bool { return cycles.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, l.IsActive())

	l.Stop()
	l.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
	assert.False(t, l.IsActive())
}

func TestLoopRecoversPanics(t *testing.T) {
	var cycles atomic.Int32
	l := newLoop("panicky", time.Millisecond, func(context.Context) {
		cycles.Add(1)
		panic("boom")
	}, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()

	require.Eventually(t, func() bool { return cycles.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
