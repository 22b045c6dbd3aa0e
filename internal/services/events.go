package services

import (
	"context"
	"log/slog"

	"billing/internal/amqp"
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishEvent(ctx context.Context, msg *amqp.EventMessage) error
}

// publish never fails the caller: the write it reports is already committed.
func publish(ctx context.Context, p EventPublisher, msg *amqp.EventMessage) {
	if p == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping event", "event", msg.Event)
		return
	}
	if err := p.PublishEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			"event", msg.Event,
			"invoice_id", msg.InvoiceID,
			"transaction_id", msg.TransactionID,
			"error", err)
	}
}
