package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cloudfin/finance/internal/domain/credits"
	"github.com/cloudfin/finance/internal/domain/invoice"
	"github.com/cloudfin/finance/internal/domain/user"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/postgres"
	"github.com/cloudfin/finance/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type RepositorySuite struct {
	suite.Suite
	ctx    context.Context
	mock   sqlmock.Sqlmock
	client postgres.IClient
	log    *logger.Logger
	now    time.Time
}

func TestRepositories(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	conn, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })

	s.ctx = context.Background()
	s.mock = mock
	s.log = logger.NewNopLogger()
	s.client = postgres.NewClient(postgres.NewDBFromConn(conn, s.log), s.log)
	s.now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *RepositorySuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *RepositorySuite) TestUserSaveUpserts() {
	repo := NewUserRepository(s.client, s.log)
	u, err := user.New("alice", "keystone", types.PluginKindPrepaid, time.Hour, s.now)
	s.Require().NoError(err)

	s.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finance_users")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(repo.Save(s.ctx, u))
}

func (s *RepositorySuite) TestUserGet() {
	repo := NewUserRepository(s.client, s.log)

	rows := sqlmock.NewRows([]string{
		"user_id", "provider", "finance_plugin_name", "last_billing_time", "billing_interval",
		"stopped_resources", "properties", "created_at", "updated_at",
	}).AddRow(
		"alice", "keystone", "prepaid", s.now, int64(time.Hour),
		true, []byte(`{"tier":"gold"}`), s.now, s.now,
	)
	s.mock.ExpectQuery(regexp.QuoteMeta("FROM finance_users WHERE user_id = $1 AND provider = $2")).
		WithArgs("alice", "keystone").
		WillReturnRows(rows)

	u, err := repo.Get(s.ctx, "alice", "keystone")
	s.Require().NoError(err)
	s.Equal(types.PluginKindPrepaid, u.FinancePluginName)
	s.Equal(time.Hour, u.BillingInterval)
	s.True(u.StoppedResources)
	s.Equal("gold", u.Properties["tier"])
}

func (s *RepositorySuite) TestUserGetMissingIsNotFound() {
	repo := NewUserRepository(s.client, s.log)

	s.mock.ExpectQuery(regexp.QuoteMeta("FROM finance_users WHERE")).
		WithArgs("ghost", "keystone").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	_, err := repo.Get(s.ctx, "ghost", "keystone")
	s.True(ierr.IsNotFound(err))
}

func (s *RepositorySuite) TestUserRemoveMissingIsNotFound() {
	repo := NewUserRepository(s.client, s.log)

	s.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM finance_users")).
		WithArgs("ghost", "keystone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s.True(ierr.IsNotFound(repo.Remove(s.ctx, "ghost", "keystone")))
}

func (s *RepositorySuite) TestUserListByPlugin() {
	repo := NewUserRepository(s.client, s.log)

	rows := sqlmock.NewRows([]string{
		"user_id", "provider", "finance_plugin_name", "last_billing_time", "billing_interval",
		"stopped_resources", "properties", "created_at", "updated_at",
	}).
		AddRow("alice", "keystone", "postpaid", s.now, int64(time.Hour), false, []byte(`{}`), s.now, s.now).
		AddRow("bob", "keystone", "postpaid", s.now, int64(time.Minute), false, []byte(`{}`), s.now, s.now)
	s.mock.ExpectQuery(regexp.QuoteMeta("WHERE finance_plugin_name = $1")).
		WithArgs("postpaid").
		WillReturnRows(rows)

	users, err := repo.ListByPlugin(s.ctx, types.PluginKindPostpaid)
	s.Require().NoError(err)
	s.Len(users, 2)
	s.Equal(time.Minute, users[1].BillingInterval)
}

func (s *RepositorySuite) TestCreditsRoundTrip() {
	repo := NewCreditsRepository(s.client, s.log)
	c := credits.New("alice", "keystone")
	c.AddCredits(decimal.RequireFromString("12.5"))

	s.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_credits")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.Require().NoError(repo.Save(s.ctx, c))

	s.mock.ExpectQuery(regexp.QuoteMeta("FROM user_credits WHERE")).
		WithArgs("alice", "keystone").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "provider", "balance", "updated_at"}).
			AddRow("alice", "keystone", "12.5", s.now))

	got, err := repo.Get(s.ctx, "alice", "keystone")
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("12.5").Equal(got.Balance))
}

func (s *RepositorySuite) TestInvoiceSaveRejectsInconsistentTotal() {
	repo := NewInvoiceRepository(s.client, s.log)
	inv := &invoice.Invoice{
		ID:    "inv_1",
		State: types.InvoiceStateWaiting,
		Total: decimal.NewFromInt(3),
	}

	s.True(ierr.IsValidation(repo.Save(s.ctx, inv)))
}

func (s *RepositorySuite) TestInvoiceListByUser() {
	repo := NewInvoiceRepository(s.client, s.log)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "provider_id", "state", "items", "total",
		"start_time", "end_time", "created_at", "updated_at",
	}).AddRow(
		"inv_1", "bob", "keystone", "DEFAULTING",
		[]byte(`[{"resource_type":"compute","vcpu":2,"ram":4,"state":"FULFILLED","amount":"2"}]`), "2",
		s.now, s.now.Add(time.Hour), s.now, s.now,
	)
	s.mock.ExpectQuery(regexp.QuoteMeta("FROM invoices WHERE user_id = $1 AND provider_id = $2")).
		WithArgs("bob", "keystone").
		WillReturnRows(rows)

	invoices, err := repo.ListByUser(s.ctx, "bob", "keystone")
	s.Require().NoError(err)
	s.Require().Len(invoices, 1)
	s.True(invoices[0].IsDefaulting())
	s.Require().Len(invoices[0].Items, 1)
	s.True(invoices[0].Total.Equal(invoices[0].Items.Sum()))
}

func (s *RepositorySuite) TestInvoiceUpdateStateMissing() {
	repo := NewInvoiceRepository(s.client, s.log)

	s.mock.ExpectExec(regexp.QuoteMeta("UPDATE invoices SET state")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s.True(ierr.IsNotFound(repo.UpdateState(s.ctx, "inv_x", types.InvoiceStatePaid)))
}

func (s *RepositorySuite) TestPlanGet() {
	repo := NewPlanRepository(s.client, s.log)

	s.mock.ExpectQuery(regexp.QuoteMeta("FROM plans WHERE name = $1")).
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "kind", "time_unit_ms", "rules", "created_at", "updated_at",
		}).AddRow("plan_1", "default", "finance_plan", int64(3600000),
			[]byte(`["volume,FULFILLED,10,1"]`), s.now, s.now))

	stored, err := repo.Get(s.ctx, "default")
	s.Require().NoError(err)

	p, err := stored.ToFinancePlan()
	s.Require().NoError(err)
	s.Equal(time.Hour, p.TimeUnit())
	s.Equal([]string{"volume,FULFILLED,10,1"}, p.Rules())
}

func (s *RepositorySuite) TestDatabaseErrorsAreMarked() {
	repo := NewPlanRepository(s.client, s.log)

	s.mock.ExpectQuery(regexp.QuoteMeta("FROM plans")).
		WillReturnError(ierr.NewError("connection reset").Mark(ierr.ErrInternal))

	_, err := repo.List(s.ctx)
	s.True(ierr.IsDatabase(err))
}
