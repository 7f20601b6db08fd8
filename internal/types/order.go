package types

import (
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/samber/lo"
)

// OrderState is the lifecycle stage of a resource allocation order as reported
// by the accounting service. Plans price each state separately.
type OrderState string

const (
	OrderStateOpen                         OrderState = "OPEN"
	OrderStateSelected                     OrderState = "SELECTED"
	OrderStateSpawning                     OrderState = "SPAWNING"
	OrderStateCreating                     OrderState = "CREATING"
	OrderStateFulfilled                    OrderState = "FULFILLED"
	OrderStateFailedAfterSuccessfulRequest OrderState = "FAILED_AFTER_SUCCESSFUL_REQUEST"
	OrderStateFailedOnRequest              OrderState = "FAILED_ON_REQUEST"
	OrderStateUnableToCheckStatus          OrderState = "UNABLE_TO_CHECK_STATUS"
	OrderStatePausing                      OrderState = "PAUSING"
	OrderStatePaused                       OrderState = "PAUSED"
	OrderStateHibernating                  OrderState = "HIBERNATING"
	OrderStateHibernated                   OrderState = "HIBERNATED"
	OrderStateStopping                     OrderState = "STOPPING"
	OrderStateStopped                      OrderState = "STOPPED"
	OrderStateResuming                     OrderState = "RESUMING"
	OrderStateCheckingDeletion             OrderState = "CHECKING_DELETION"
	OrderStateClosed                       OrderState = "CLOSED"
)

var orderStates = []OrderState{
	OrderStateOpen,
	OrderStateSelected,
	OrderStateSpawning,
	OrderStateCreating,
	OrderStateFulfilled,
	OrderStateFailedAfterSuccessfulRequest,
	OrderStateFailedOnRequest,
	OrderStateUnableToCheckStatus,
	OrderStatePausing,
	OrderStatePaused,
	OrderStateHibernating,
	OrderStateHibernated,
	OrderStateStopping,
	OrderStateStopped,
	OrderStateResuming,
	OrderStateCheckingDeletion,
	OrderStateClosed,
}

func (s OrderState) String() string {
	return string(s)
}

func (s OrderState) Validate() error {
	if !lo.Contains(orderStates, s) {
		return ierr.NewError("invalid order state").
			WithHintf("Unknown order state %q", string(s)).
			WithReportableDetails(map[string]any{
				"order_state": s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
