package postgres

import (
	"context"

	"github.com/cloudfin/finance/internal/domain/credits"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/postgres"
)

type creditsRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewCreditsRepository(client postgres.IClient, log *logger.Logger) credits.Repository {
	return &creditsRepository{client: client, log: log}
}

func (r *creditsRepository) Save(ctx context.Context, c *credits.UserCredits) error {
	span := StartRepositorySpan(ctx, "credits", "save", map[string]interface{}{
		"user_id":  c.UserID,
		"provider": c.Provider,
	})
	defer FinishSpan(span)

	query := `
		INSERT INTO user_credits (user_id, provider, balance, updated_at)
		VALUES (:user_id, :provider, :balance, :updated_at)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			balance = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.client.Querier(ctx).NamedExecContext(ctx, query, c); err != nil {
		SetSpanError(span, err)
		return queryError(err, "User credits", map[string]any{
			"user_id":  c.UserID,
			"provider": c.Provider,
		})
	}

	SetSpanSuccess(span)
	return nil
}

func (r *creditsRepository) Get(ctx context.Context, userID, provider string) (*credits.UserCredits, error) {
	span := StartRepositorySpan(ctx, "credits", "get", map[string]interface{}{
		"user_id":  userID,
		"provider": provider,
	})
	defer FinishSpan(span)

	var c credits.UserCredits
	err := r.client.Querier(ctx).GetContext(ctx, &c,
		`SELECT user_id, provider, balance, updated_at FROM user_credits WHERE user_id = $1 AND provider = $2`,
		userID, provider)
	if err != nil {
		SetSpanError(span, err)
		return nil, queryError(err, "User credits", map[string]any{
			"user_id":  userID,
			"provider": provider,
		})
	}

	SetSpanSuccess(span)
	return &c, nil
}

func (r *creditsRepository) Delete(ctx context.Context, userID, provider string) error {
	span := StartRepositorySpan(ctx, "credits", "delete", map[string]interface{}{
		"user_id":  userID,
		"provider": provider,
	})
	defer FinishSpan(span)

	details := map[string]any{"user_id": userID, "provider": provider}
	res, err := r.client.Querier(ctx).ExecContext(ctx,
		`DELETE FROM user_credits WHERE user_id = $1 AND provider = $2`, userID, provider)
	if err != nil {
		SetSpanError(span, err)
		return queryError(err, "User credits", details)
	}
	if err := expectRows(res, "User credits", details); err != nil {
		SetSpanError(span, err)
		return err
	}

	SetSpanSuccess(span)
	return nil
}
