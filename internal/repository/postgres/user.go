package postgres

import (
	"context"

	"github.com/cloudfin/finance/internal/domain/user"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/postgres"
	"github.com/cloudfin/finance/internal/types"
)

const userColumns = `user_id, provider, finance_plugin_name, last_billing_time, billing_interval,
	stopped_resources, properties, created_at, updated_at`

type userRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewUserRepository(client postgres.IClient, log *logger.Logger) user.Repository {
	return &userRepository{client: client, log: log}
}

// Save upserts the user keyed by (user_id, provider)
func (r *userRepository) Save(ctx context.Context, u *user.FinanceUser) error {
	span := StartRepositorySpan(ctx, "user", "save", map[string]interface{}{
		"user_id":  u.UserID,
		"provider": u.Provider,
	})
	defer FinishSpan(span)

	query := `
		INSERT INTO finance_users (` + userColumns + `)
		VALUES (
			:user_id, :provider, :finance_plugin_name, :last_billing_time, :billing_interval,
			:stopped_resources, :properties, :created_at, :updated_at
		)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			finance_plugin_name = EXCLUDED.finance_plugin_name,
			last_billing_time = EXCLUDED.last_billing_time,
			billing_interval = EXCLUDED.billing_interval,
			stopped_resources = EXCLUDED.stopped_resources,
			properties = EXCLUDED.properties,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.client.Querier(ctx).NamedExecContext(ctx, query, u); err != nil {
		SetSpanError(span, err)
		return queryError(err, "Finance user", map[string]any{
			"user_id":  u.UserID,
			"provider": u.Provider,
		})
	}

	SetSpanSuccess(span)
	return nil
}

func (r *userRepository) Remove(ctx context.Context, userID, provider string) error {
	span := StartRepositorySpan(ctx, "user", "remove", map[string]interface{}{
		"user_id":  userID,
		"provider": provider,
	})
	defer FinishSpan(span)

	details := map[string]any{"user_id": userID, "provider": provider}
	res, err := r.client.Querier(ctx).ExecContext(ctx,
		`DELETE FROM finance_users WHERE user_id = $1 AND provider = $2`, userID, provider)
	if err != nil {
		SetSpanError(span, err)
		return queryError(err, "Finance user", details)
	}
	if err := expectRows(res, "Finance user", details); err != nil {
		SetSpanError(span, err)
		return err
	}

	SetSpanSuccess(span)
	return nil
}

func (r *userRepository) Get(ctx context.Context, userID, provider string) (*user.FinanceUser, error) {
	span := StartRepositorySpan(ctx, "user", "get", map[string]interface{}{
		"user_id":  userID,
		"provider": provider,
	})
	defer FinishSpan(span)

	var u user.FinanceUser
	err := r.client.Querier(ctx).GetContext(ctx, &u,
		`SELECT `+userColumns+` FROM finance_users WHERE user_id = $1 AND provider = $2`, userID, provider)
	if err != nil {
		SetSpanError(span, err)
		return nil, queryError(err, "Finance user", map[string]any{
			"user_id":  userID,
			"provider": provider,
		})
	}

	SetSpanSuccess(span)
	return u.Snapshot(), nil
}

func (r *userRepository) List(ctx context.Context) ([]*user.FinanceUser, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM finance_users ORDER BY created_at, user_id, provider`)
}

func (r *userRepository) ListByPlugin(ctx context.Context, plugin types.PluginKind) ([]*user.FinanceUser, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM finance_users
		WHERE finance_plugin_name = $1 ORDER BY created_at, user_id, provider`, plugin)
}

func (r *userRepository) list(ctx context.Context, query string, args ...interface{}) ([]*user.FinanceUser, error) {
	span := StartRepositorySpan(ctx, "user", "list", nil)
	defer FinishSpan(span)

	r.log.Debugw("listing finance users", "args", args)

	var users []*user.FinanceUser
	if err := r.client.Querier(ctx).SelectContext(ctx, &users, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, queryError(err, "Finance users", nil)
	}

	SetSpanSuccess(span)
	return users, nil
}
