package publisher

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cloudfin/finance/internal/domain/events"
	ierr "github.com/cloudfin/finance/internal/errors"
	"github.com/cloudfin/finance/internal/logger"
	"github.com/cloudfin/finance/internal/pubsub"
	jsoniter "github.com/json-iterator/go"
)

// EventPublisher publishes finance events. Callers on background paths log
// publish failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

type eventPublisher struct {
	pubsub pubsub.Publisher
	logger *logger.Logger
}

func NewEventPublisher(ps pubsub.Publisher, logger *logger.Logger) EventPublisher {
	return &eventPublisher{
		pubsub: ps,
		logger: logger,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, event *events.Event) error {
	payload, err := jsoniter.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode finance event").
			Mark(ierr.ErrInternal)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_id", event.ID)
	msg.Metadata.Set("user_id", event.UserID)
	msg.Metadata.Set("provider", event.Provider)

	p.logger.Debugw("publishing finance event",
		"event_id", event.ID,
		"type", event.Type,
		"user_id", event.UserID,
	)

	if err := p.pubsub.Publish(ctx, string(event.Type), msg); err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to publish %s event", event.Type).
			Mark(ierr.ErrUnavailable)
	}
	return nil
}

type nopPublisher struct{}

// NewNopPublisher returns a publisher that drops every event
func NewNopPublisher() EventPublisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, *events.Event) error {
	return nil
}
