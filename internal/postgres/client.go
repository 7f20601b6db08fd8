package postgres

import (
	"context"

	"github.com/cloudfin/finance/internal/config"
	"github.com/cloudfin/finance/internal/logger"
	sentryService "github.com/cloudfin/finance/internal/sentry"
	"go.uber.org/fx"
)

// IClient defines the interface for postgres client operations
type IClient interface {
	// WithTx wraps the given function in a transaction
	WithTx(ctx context.Context, fn func(context.Context) error) error

	// Querier returns the current transaction if ctx carries one, or the pool
	Querier(ctx context.Context) Querier
}

// Client wraps DB to provide transaction management
type Client struct {
	db     *DB
	logger *logger.Logger
}

// Module provides the database and an instrumented client. The schema is
// applied on connect when postgres.auto_migrate is set, so providers that
// read tables at construction see them.
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			newMigratedDB,
			newInstrumentedClient,
		),
		fx.Invoke(registerHooks),
	)
}

func newMigratedDB(cfg *config.Configuration, logger *logger.Logger) (*DB, error) {
	db, err := NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.AutoMigrate {
		if err := db.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func newInstrumentedClient(db *DB, sentry *sentryService.Service, logger *logger.Logger) IClient {
	return NewSentryClient(NewClient(db, logger), sentry, logger)
}

func registerHooks(lc fx.Lifecycle, db *DB) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
}

// NewClient creates a client with transaction management
func NewClient(db *DB, logger *logger.Logger) *Client {
	return &Client{
		db:     db,
		logger: logger,
	}
}

// WithTx wraps the given function in a transaction. A transaction already
// carried by ctx is reused through a savepoint.
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.db.WithTx(ctx, fn)
}

func (c *Client) Querier(ctx context.Context) Querier {
	return c.db.GetQuerier(ctx)
}
