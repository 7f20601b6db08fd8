package testutil

import (
	"context"
	"time"

	"github.com/cloudfin/finance/internal/cache"
	"github.com/cloudfin/finance/internal/config"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/stretchr/testify/suite"
)

// Stores holds the in-memory repositories used by service tests
type Stores struct {
	UserRepo    *InMemoryUserStore
	CreditsRepo *InMemoryCreditsStore
	InvoiceRepo *InMemoryInvoiceStore
	PlanRepo    *InMemoryPlanStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx        context.Context
	stores     Stores
	pubsub     *InMemoryPubSub
	accounting *InMemoryAccountingClient
	ras        *MockRASClient
	cache      cache.Cache
	logger     *logger.Logger
	config     *config.Configuration
	now        time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	s.config = config.GetDefaultConfig()
	s.config.Cache.Enabled = true
	s.config.Finance.CreditsDeductionInterval = time.Hour
	s.config.Finance.InvoiceGenerationInterval = time.Hour
	s.config.Finance.StopServiceInterval = time.Hour
	s.logger = logger.NewNopLogger()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.stores = Stores{
		UserRepo:    NewInMemoryUserStore(),
		CreditsRepo: NewInMemoryCreditsStore(),
		InvoiceRepo: NewInMemoryInvoiceStore(),
		PlanRepo:    NewInMemoryPlanStore(),
	}
	s.pubsub = NewInMemoryPubSub()
	s.accounting = NewInMemoryAccountingClient()
	s.ras = NewMockRASClient()
	s.cache = cache.NewInMemoryCache(s.config, s.logger)
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.stores.UserRepo.Clear()
	s.stores.CreditsRepo.Clear()
	s.stores.InvoiceRepo.Clear()
	s.stores.PlanRepo.Clear()
	s.pubsub.ClearMessages()
	s.cache.Flush(s.ctx)
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetPubSub() *InMemoryPubSub {
	return s.pubsub
}

func (s *BaseServiceTestSuite) GetAccounting() *InMemoryAccountingClient {
	return s.accounting
}

func (s *BaseServiceTestSuite) GetRAS() *MockRASClient {
	return s.ras
}

func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}

// SetNow moves the test clock
func (s *BaseServiceTestSuite) SetNow(now time.Time) {
	s.now = now
}
