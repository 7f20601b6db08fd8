package types

import (
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/samber/lo"
)

// PluginKind selects the billing model that manages a user
type PluginKind string

const (
	PluginKindPrepaid  PluginKind = "prepaid"
	PluginKindPostpaid PluginKind = "postpaid"
)

func (k PluginKind) String() string {
	return string(k)
}

func (k PluginKind) Validate() error {
	allowed := []PluginKind{PluginKindPrepaid, PluginKindPostpaid}
	if !lo.Contains(allowed, k) {
		return ierr.NewError("invalid finance plugin").
			WithHint("Please provide a valid finance plugin").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"plugin":  k,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// OperationType is the kind of request the resource allocation service asks
// the finance service to authorize
type OperationType string

const (
	OperationCreate    OperationType = "CREATE"
	OperationGet       OperationType = "GET"
	OperationGetAll    OperationType = "GET_ALL"
	OperationDelete    OperationType = "DELETE"
	OperationPause     OperationType = "PAUSE"
	OperationResume    OperationType = "RESUME"
	OperationHibernate OperationType = "HIBERNATE"
	OperationStop      OperationType = "STOP"
)

// Operation describes a single request to authorize
type Operation struct {
	Type         OperationType `json:"type" validate:"required"`
	ResourceType string        `json:"resource_type,omitempty"`
}

// InvoiceState is the settlement state of a postpaid invoice
type InvoiceState string

const (
	InvoiceStateWaiting    InvoiceState = "WAITING"
	InvoiceStatePaid       InvoiceState = "PAID"
	InvoiceStateDefaulting InvoiceState = "DEFAULTING"
)

func (s InvoiceState) String() string {
	return string(s)
}

func (s InvoiceState) Validate() error {
	allowed := []InvoiceState{
		InvoiceStateWaiting,
		InvoiceStatePaid,
		InvoiceStateDefaulting,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid invoice state").
			WithHint("Please provide a valid invoice state").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Finance state property names understood by the payment managers
const (
	PropertyUserCredits     = "USER_CREDITS"
	PropertyAllUserInvoices = "ALL_USER_INVOICES"
	PropertyCreditsToAdd    = "CREDITS_TO_ADD"
)

// User option keys accepted by ChangeOptions
const (
	OptionBillingInterval = "billing_interval"
)

// FinanceEventType names events published by the billing engine
type FinanceEventType string

const (
	EventUserPaused     FinanceEventType = "finance.user.paused"
	EventUserResumed    FinanceEventType = "finance.user.resumed"
	EventInvoiceCreated FinanceEventType = "finance.invoice.created"
)
