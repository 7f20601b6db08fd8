package plan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudfin/finance/internal/domain/resource"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	ruleSeparator  = ";"
	fieldSeparator = ","

	computeRuleFields = 5 // type,state,vcpu,ram,price
	volumeRuleFields  = 4 // type,state,size,price
)

// ErrUnknownResourceItem is returned when a plan has no price for an item in a given state
var ErrUnknownResourceItem = ierr.NewError("unknown resource item").
	Mark(ierr.ErrNotFound)

type priceKey struct {
	item  resource.Item
	state types.OrderState
}

type priceTable map[priceKey]decimal.Decimal

// FinancePlan maps (resource item, order state) pairs to a unit price per
// TimeUnit. The price table is replaced wholesale on Update.
type FinancePlan struct {
	name     string
	timeUnit time.Duration
	prices   atomic.Pointer[priceTable]
}

// NewFinancePlan parses rules into a new plan. A zero timeUnit defaults to one hour.
func NewFinancePlan(name string, timeUnit time.Duration, rules []string) (*FinancePlan, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ierr.NewError("plan name is required").
			WithHint("Please provide a plan name").
			Mark(ierr.ErrValidation)
	}
	if timeUnit < 0 {
		return nil, ierr.NewError("plan time unit must be positive").
			WithReportableDetails(map[string]any{"time_unit": timeUnit.String()}).
			Mark(ierr.ErrValidation)
	}
	if timeUnit == 0 {
		timeUnit = time.Hour
	}

	table, err := parseRules(rules)
	if err != nil {
		return nil, err
	}

	p := &FinancePlan{name: name, timeUnit: timeUnit}
	p.prices.Store(&table)
	return p, nil
}

func (p *FinancePlan) Name() string {
	return p.name
}

func (p *FinancePlan) TimeUnit() time.Duration {
	return p.timeUnit
}

// GetItemFinancialValue returns the unit price configured for item in state
func (p *FinancePlan) GetItemFinancialValue(item resource.Item, state types.OrderState) (decimal.Decimal, error) {
	if item == nil {
		return decimal.Zero, ierr.WithError(ErrUnknownResourceItem).
			WithHint("Resource item must not be empty").
			Mark(ierr.ErrNotFound)
	}

	table := *p.prices.Load()
	price, ok := table[priceKey{item: item, state: state}]
	if !ok {
		return decimal.Zero, ierr.WithError(ErrUnknownResourceItem).
			WithHintf("Plan %s has no price for %s in state %s", p.name, item, state).
			WithReportableDetails(map[string]any{
				"plan":  p.name,
				"item":  item.String(),
				"state": state,
			}).
			Mark(ierr.ErrNotFound)
	}
	return price, nil
}

// Units converts an elapsed duration into plan time units
func (p *FinancePlan) Units(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d)).Div(decimal.NewFromInt(int64(p.timeUnit)))
}

// Update parses rules and swaps the whole price table in one step. On error
// the current table is left untouched.
func (p *FinancePlan) Update(rules []string) error {
	table, err := parseRules(rules)
	if err != nil {
		return err
	}
	p.prices.Store(&table)
	return nil
}

// Len returns the number of priced (item, state) pairs
func (p *FinancePlan) Len() int {
	return len(*p.prices.Load())
}

// Rules renders the current table as canonical, sorted rule strings
func (p *FinancePlan) Rules() []string {
	table := *p.prices.Load()
	rules := lo.MapToSlice(table, func(k priceKey, price decimal.Decimal) string {
		return formatRule(k, price)
	})
	sort.Strings(rules)
	return rules
}

// SplitRules splits a textual rule set into single rules. Rules are separated
// by newlines or semicolons; blank lines and lines starting with # are ignored.
func SplitRules(text string) []string {
	lines := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == ';'
	})
	return lo.FilterMap(lines, func(line string, _ int) (string, bool) {
		line = strings.TrimSpace(line)
		return line, line != "" && !strings.HasPrefix(line, "#")
	})
}

func parseRules(rules []string) (priceTable, error) {
	table := make(priceTable, len(rules))
	for _, rule := range rules {
		for _, single := range SplitRules(rule) {
			key, price, err := parseRule(single)
			if err != nil {
				return nil, err
			}
			if _, exists := table[key]; exists {
				return nil, invalidRule(single, "duplicate rule for the same item and state")
			}
			table[key] = price
		}
	}
	return table, nil
}

func parseRule(rule string) (priceKey, decimal.Decimal, error) {
	fields := lo.Map(strings.Split(rule, fieldSeparator), func(f string, _ int) string {
		return strings.TrimSpace(f)
	})
	if len(fields) < 2 {
		return priceKey{}, decimal.Zero, invalidRule(rule, "rule must start with resource type and order state")
	}

	typ, err := resource.ParseType(fields[0])
	if err != nil {
		return priceKey{}, decimal.Zero, err
	}

	state := types.OrderState(strings.ToUpper(fields[1]))
	if err := state.Validate(); err != nil {
		return priceKey{}, decimal.Zero, err
	}

	var item resource.Item
	var priceField string
	switch typ {
	case resource.TypeCompute:
		if len(fields) != computeRuleFields {
			return priceKey{}, decimal.Zero, invalidRule(rule, "compute rules need vCPU, ram and price")
		}
		vcpu, err := parseInt(rule, fields[2])
		if err != nil {
			return priceKey{}, decimal.Zero, err
		}
		ram, err := parseInt(rule, fields[3])
		if err != nil {
			return priceKey{}, decimal.Zero, err
		}
		if item, err = resource.NewComputeItem(vcpu, ram); err != nil {
			return priceKey{}, decimal.Zero, err
		}
		priceField = fields[4]
	case resource.TypeVolume:
		if len(fields) != volumeRuleFields {
			return priceKey{}, decimal.Zero, invalidRule(rule, "volume rules need size and price")
		}
		size, err := parseInt(rule, fields[2])
		if err != nil {
			return priceKey{}, decimal.Zero, err
		}
		if item, err = resource.NewVolumeItem(size); err != nil {
			return priceKey{}, decimal.Zero, err
		}
		priceField = fields[3]
	}

	price, err := decimal.NewFromString(priceField)
	if err != nil {
		return priceKey{}, decimal.Zero, invalidRule(rule, "price is not a number")
	}
	if price.IsNegative() {
		return priceKey{}, decimal.Zero, invalidRule(rule, "price must not be negative")
	}

	return priceKey{item: item, state: state}, price, nil
}

func parseInt(rule, field string) (int, error) {
	v, err := strconv.Atoi(field)
	if err != nil {
		return 0, invalidRule(rule, fmt.Sprintf("%q is not an integer", field))
	}
	return v, nil
}

func formatRule(k priceKey, price decimal.Decimal) string {
	switch item := k.item.(type) {
	case resource.ComputeItem:
		return strings.Join([]string{
			string(resource.TypeCompute), string(k.state),
			strconv.Itoa(item.VCPU), strconv.Itoa(item.RAM), price.String(),
		}, fieldSeparator)
	case resource.VolumeItem:
		return strings.Join([]string{
			string(resource.TypeVolume), string(k.state),
			strconv.Itoa(item.Size), price.String(),
		}, fieldSeparator)
	}
	return ""
}

func invalidRule(rule, reason string) error {
	return ierr.NewErrorf("invalid plan rule %q: %s", rule, reason).
		WithHint("Plan rules look like compute,STATE,vCPU,ram,price or volume,STATE,size,price").
		WithReportableDetails(map[string]any{
			"rule":   rule,
			"reason": reason,
		}).
		Mark(ierr.ErrValidation)
}

// JoinRules is the inverse of SplitRules
func JoinRules(rules []string) string {
	return strings.Join(rules, ruleSeparator)
}
