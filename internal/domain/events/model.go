package events

import (
	"time"

	"github.com/cloudfin/finance/internal/types"
)

// Event is a billing engine notification published on the finance topics
type Event struct {
	// Unique identifier for the event
	ID string `json:"id" validate:"required"`

	// Type doubles as the topic the event is published on
	Type types.FinanceEventType `json:"type" validate:"required"`

	UserID   string           `json:"user_id" validate:"required"`
	Provider string           `json:"provider" validate:"required"`
	Plugin   types.PluginKind `json:"plugin,omitempty"`

	// Additional properties, e.g. the invoice id and total for invoice events
	Properties map[string]interface{} `json:"properties,omitempty"`

	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// NewEvent creates an event stamped with a fresh id and the current time
func NewEvent(eventType types.FinanceEventType, userID, provider string, plugin types.PluginKind) *Event {
	return &Event{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT),
		Type:       eventType,
		UserID:     userID,
		Provider:   provider,
		Plugin:     plugin,
		Properties: map[string]interface{}{},
		Timestamp:  time.Now().UTC(),
	}
}

// WithProperty sets a property and returns the event for chaining
func (e *Event) WithProperty(key string, value interface{}) *Event {
	if e.Properties == nil {
		e.Properties = map[string]interface{}{}
	}
	e.Properties[key] = value
	return e
}
