package plan

import (
	"database/sql/driver"
	"fmt"
	"time"

	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/types"
	jsoniter "github.com/json-iterator/go"
)

// Kind discriminates persisted plan plugins sharing the plans table
type Kind string

const (
	KindFinancePlan Kind = "finance_plan"
)

// RuleSet is the JSONB list of rule strings stored for a plan
type RuleSet []string

func (r *RuleSet) Scan(value interface{}) error {
	if value == nil {
		*r = RuleSet{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}
	var out RuleSet
	if err := jsoniter.Unmarshal(bytes, &out); err != nil {
		return err
	}
	*r = out
	return nil
}

func (r RuleSet) Value() (driver.Value, error) {
	if r == nil {
		return jsoniter.Marshal([]string{})
	}
	return jsoniter.Marshal([]string(r))
}

// PlanPlugin is the persisted form of a plan
type PlanPlugin struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Kind       Kind      `db:"kind" json:"kind"`
	TimeUnitMS int64     `db:"time_unit_ms" json:"time_unit_ms"`
	Rules      RuleSet   `db:"rules" json:"rules"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// FromFinancePlan snapshots a plan for persistence
func FromFinancePlan(p *FinancePlan) *PlanPlugin {
	now := time.Now().UTC()
	return &PlanPlugin{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN),
		Name:       p.Name(),
		Kind:       KindFinancePlan,
		TimeUnitMS: p.TimeUnit().Milliseconds(),
		Rules:      p.Rules(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ToFinancePlan rebuilds the live plan from its persisted form
func (pp *PlanPlugin) ToFinancePlan() (*FinancePlan, error) {
	if pp.Kind != KindFinancePlan {
		return nil, ierr.NewErrorf("unsupported plan kind %q", pp.Kind).
			WithReportableDetails(map[string]any{"plan": pp.Name, "kind": pp.Kind}).
			Mark(ierr.ErrValidation)
	}
	return NewFinancePlan(pp.Name, time.Duration(pp.TimeUnitMS)*time.Millisecond, pp.Rules)
}
