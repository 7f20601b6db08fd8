package dto

import (
	"time"

	"github.com/cloudfin/finance/internal/domain/plan"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/validator"
)

type CreatePlanRequest struct {
	Name string `json:"name" validate:"required"`
	// TimeUnit is a Go duration string, empty means the configured default
	TimeUnit string `json:"time_unit"`
	// Rules is the plan text, one rule per line or separated by ';'
	Rules string `json:"rules" validate:"required"`
}

func (r *CreatePlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	_, err := r.timeUnit(0)
	return err
}

// ToFinancePlan parses the request into a live plan
func (r *CreatePlanRequest) ToFinancePlan(defaultTimeUnit time.Duration) (*plan.FinancePlan, error) {
	unit, err := r.timeUnit(defaultTimeUnit)
	if err != nil {
		return nil, err
	}
	return plan.NewFinancePlan(r.Name, unit, plan.SplitRules(r.Rules))
}

func (r *CreatePlanRequest) timeUnit(def time.Duration) (time.Duration, error) {
	if r.TimeUnit == "" {
		return def, nil
	}
	d, err := time.ParseDuration(r.TimeUnit)
	if err != nil || d <= 0 {
		return 0, ierr.NewError("invalid time unit").
			WithHint("Time unit must be a positive duration such as 1h").
			WithReportableDetails(map[string]any{
				"time_unit": r.TimeUnit,
			}).
			Mark(ierr.ErrValidation)
	}
	return d, nil
}

type UpdatePlanRequest struct {
	Rules string `json:"rules" validate:"required"`
}

func (r *UpdatePlanRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type PlanResponse struct {
	Name     string   `json:"name"`
	TimeUnit string   `json:"time_unit"`
	Rules    []string `json:"rules"`
	Active   bool     `json:"active"`
}

// NewPlanResponse renders p, active marks the plan currently used for billing
func NewPlanResponse(p *plan.FinancePlan, active bool) *PlanResponse {
	return &PlanResponse{
		Name:     p.Name(),
		TimeUnit: p.TimeUnit().String(),
		Rules:    p.Rules(),
		Active:   active,
	}
}
