package webhook

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jensmonne/RSS-webhook/internal/core"
	"github.com/jensmonne/RSS-webhook/internal/metrics"
	"github.com/jensmonne/RSS-webhook/internal/retry"
)

// Dispatcher wraps a Sender with the delivery retry policy. Transient
// failures back off exponentially; permanent rejections and context
// cancellation end the attempt sequence immediately.
type Dispatcher struct {
	sender Sender
	policy retry.Config
}

func NewDispatcher(sender Sender, policy retry.Config) *Dispatcher {
	return &Dispatcher{sender: sender, policy: policy}
}

// Deliver posts one notification, retrying per the policy. A nil return
// means the target accepted the payload; any error means the notification
// was not confirmed delivered.
func (d *Dispatcher) Deliver(ctx context.Context, notification Notification) error {
	tracer := otel.Tracer("rsswebhook/webhook")
	ctx, span := tracer.Start(ctx, "webhook.deliver")
	span.SetAttributes(
		attribute.String("feed", notification.Feed),
		attribute.String("request_id", notification.RequestID),
		attribute.String("cycle.id", core.CycleIDFromContext(ctx)),
	)
	defer span.End()

	logger := core.LoggerFromContext(ctx).With("request_id", notification.RequestID)

	attempts := 0
	err := retry.Do(ctx, d.policy, func() error {
		attempts++
		metrics.DeliveryAttempts.WithLabelValues(notification.Feed).Inc()

		err := d.sender.Send(ctx, notification)
		if err == nil {
			if attempts > 1 {
				logger.Info("webhook delivered after retry", "attempts", attempts)
			}
			return nil
		}

		var status *StatusError
		if errors.As(err, &status) && !status.Retryable() {
			logger.Warn("webhook rejected, not retrying", "status", status.StatusCode)
			return retry.Permanent(err)
		}
		logger.Warn("webhook attempt failed", "attempt", attempts, "error", err)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
