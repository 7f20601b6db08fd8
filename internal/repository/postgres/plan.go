package postgres

import (
	"context"

	"github.com/cloudfin/finance/internal/domain/plan"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/postgres"
)

const planColumns = `id, name, kind, time_unit_ms, rules, created_at, updated_at`

type planRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewPlanRepository(client postgres.IClient, log *logger.Logger) plan.Repository {
	return &planRepository{client: client, log: log}
}

func (r *planRepository) Get(ctx context.Context, name string) (*plan.PlanPlugin, error) {
	span := StartRepositorySpan(ctx, "plan", "get", map[string]interface{}{
		"plan": name,
	})
	defer FinishSpan(span)

	var p plan.PlanPlugin
	err := r.client.Querier(ctx).GetContext(ctx, &p,
		`SELECT `+planColumns+` FROM plans WHERE name = $1`, name)
	if err != nil {
		SetSpanError(span, err)
		return nil, queryError(err, "Plan "+name, map[string]any{"plan": name})
	}

	SetSpanSuccess(span)
	return &p, nil
}

// Save upserts the plan by name
func (r *planRepository) Save(ctx context.Context, p *plan.PlanPlugin) error {
	span := StartRepositorySpan(ctx, "plan", "save", map[string]interface{}{
		"plan": p.Name,
	})
	defer FinishSpan(span)

	r.log.Debugw("saving plan", "plan", p.Name, "rules", len(p.Rules))

	query := `
		INSERT INTO plans (` + planColumns + `)
		VALUES (:id, :name, :kind, :time_unit_ms, :rules, :created_at, :updated_at)
		ON CONFLICT (name) DO UPDATE SET
			kind = EXCLUDED.kind,
			time_unit_ms = EXCLUDED.time_unit_ms,
			rules = EXCLUDED.rules,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.client.Querier(ctx).NamedExecContext(ctx, query, p); err != nil {
		SetSpanError(span, err)
		return queryError(err, "Plan "+p.Name, map[string]any{"plan": p.Name})
	}

	SetSpanSuccess(span)
	return nil
}

func (r *planRepository) Delete(ctx context.Context, name string) error {
	span := StartRepositorySpan(ctx, "plan", "delete", map[string]interface{}{
		"plan": name,
	})
	defer FinishSpan(span)

	details := map[string]any{"plan": name}
	res, err := r.client.Querier(ctx).ExecContext(ctx, `DELETE FROM plans WHERE name = $1`, name)
	if err != nil {
		SetSpanError(span, err)
		return queryError(err, "Plan "+name, details)
	}
	if err := expectRows(res, "Plan "+name, details); err != nil {
		SetSpanError(span, err)
		return err
	}

	SetSpanSuccess(span)
	return nil
}

func (r *planRepository) List(ctx context.Context) ([]*plan.PlanPlugin, error) {
	span := StartRepositorySpan(ctx, "plan", "list", nil)
	defer FinishSpan(span)

	var plans []*plan.PlanPlugin
	if err := r.client.Querier(ctx).SelectContext(ctx, &plans,
		`SELECT `+planColumns+` FROM plans ORDER BY name`); err != nil {
		SetSpanError(span, err)
		return nil, queryError(err, "Plans", nil)
	}

	SetSpanSuccess(span)
	return plans, nil
}
