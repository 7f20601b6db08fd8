// Package record models usage records fetched from the accounting service.
// Records are read-only and consumed once per payment cycle.
package record

import (
	"sort"
	"time"

	"github.com/cloudfin/finance/internal/domain/resource"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/types"
)

// Spec is the resource shape an order asked for
type Spec struct {
	VCPU int `json:"vCPU"`
	RAM  int `json:"ram"`
	Size int `json:"size"`
}

// StateChange records the moment an order entered a state
type StateChange struct {
	Timestamp time.Time        `json:"timestamp"`
	State     types.OrderState `json:"state"`
}

// Record is the usage of one resource order
type Record struct {
	ID           string           `json:"id"`
	OrderID      string           `json:"orderId"`
	ResourceType string           `json:"resourceType"`
	Spec         Spec             `json:"spec"`
	StartTime    time.Time        `json:"startTime"`
	EndTime      *time.Time       `json:"endTime,omitempty"`
	State        types.OrderState `json:"state"`
	StateHistory []StateChange    `json:"stateHistory,omitempty"`
}

// StateSpan is the time an order spent in one state during a billing period
type StateSpan struct {
	State    types.OrderState
	Duration time.Duration
}

// Item converts the record into the pricing key it is billed under
func (r *Record) Item() (resource.Item, error) {
	typ, err := resource.ParseType(r.ResourceType)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Record %s has an unknown resource type", r.ID).
			WithReportableDetails(map[string]any{
				"record_id":     r.ID,
				"order_id":      r.OrderID,
				"resource_type": r.ResourceType,
			}).
			Mark(ierr.ErrValidation)
	}

	switch typ {
	case resource.TypeCompute:
		return resource.NewComputeItem(r.Spec.VCPU, r.Spec.RAM)
	default:
		return resource.NewVolumeItem(r.Spec.Size)
	}
}

// TimeInStates splits the part of the record that overlaps
// [periodStart, periodEnd) into per-state durations, in the order the states
// were first entered. A record without an end time is still running. Without
// a state history the whole overlap is attributed to the current state; with
// one, the first recorded state is assumed from the record start.
func (r *Record) TimeInStates(periodStart, periodEnd time.Time) []StateSpan {
	spanStart := maxTime(r.StartTime, periodStart)
	spanEnd := periodEnd
	if r.EndTime != nil && r.EndTime.Before(spanEnd) {
		spanEnd = *r.EndTime
	}
	if !spanEnd.After(spanStart) {
		return nil
	}

	if len(r.StateHistory) == 0 {
		return []StateSpan{{State: r.State, Duration: spanEnd.Sub(spanStart)}}
	}

	history := make([]StateChange, len(r.StateHistory))
	copy(history, r.StateHistory)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})

	var spans []StateSpan
	index := map[types.OrderState]int{}
	for i, change := range history {
		from := change.Timestamp
		if i == 0 {
			from = r.StartTime
		}
		to := spanEnd
		if i+1 < len(history) {
			to = history[i+1].Timestamp
		}

		from = maxTime(from, spanStart)
		to = minTime(to, spanEnd)
		if !to.After(from) {
			continue
		}

		if pos, ok := index[change.State]; ok {
			spans[pos].Duration += to.Sub(from)
			continue
		}
		index[change.State] = len(spans)
		spans = append(spans, StateSpan{State: change.State, Duration: to.Sub(from)})
	}
	return spans
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
