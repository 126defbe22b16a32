package orderjob

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fairyhunter13/orderflow/internal/adapter/observability"
	"github.com/fairyhunter13/orderflow/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/orderflow/internal/domain"
)

// DLQObserver watches queue failure events and writes the terminal FAILED
// status onto the order. It is the backstop that settles orders whose jobs
// exhausted their retries; for business failures the worker usually got
// there first, which the observer tolerates.
type DLQObserver struct {
	redisq.NopSubscriber

	Orders domain.OrderRepository
	Events domain.EventPublisher

	// Timeout bounds the terminal write; observer callbacks run inline with
	// queue transitions and must not hang them.
	Timeout time.Duration
}

// NewDLQObserver constructs a DLQObserver. A nil publisher disables status
// events.
func NewDLQObserver(orders domain.OrderRepository, events domain.EventPublisher) *DLQObserver {
	return &DLQObserver{Orders: orders, Events: events, Timeout: 10 * time.Second}
}

// OnFailed marks the order FAILED with the job's failure reason.
func (o *DLQObserver) OnFailed(job *redisq.Job, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()

	var payload domain.OrderTaskPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		slog.Error("dlq: undecodable job payload",
			slog.String("job_id", job.ID),
			slog.Any("error", err))
		return
	}
	err := o.Orders.MarkFailed(ctx, payload.OrderID, reason)
	switch {
	case err == nil:
		observability.OrderTerminal(string(domain.OrderFailed))
		slog.Warn("order moved to failed by dead-letter observer",
			slog.String("order_id", payload.OrderID),
			slog.String("job_id", job.ID),
			slog.Int("attempts", job.Attempts),
			slog.String("reason", reason))
		o.publish(ctx, payload, reason)
	case errors.Is(err, domain.ErrAlreadyTerminal):
		// The worker settled the order before the queue event fired.
	case errors.Is(err, domain.ErrNotFound):
		slog.Error("dlq: order missing at terminal write",
			slog.Bool("critical", true),
			slog.String("order_id", payload.OrderID),
			slog.String("job_id", job.ID))
	default:
		slog.Error("dlq: mark order failed",
			slog.String("order_id", payload.OrderID),
			slog.String("job_id", job.ID),
			slog.Any("error", err))
	}
}

// OnStalled only records the event; the queue already requeued the job.
func (o *DLQObserver) OnStalled(job *redisq.Job) {
	slog.Warn("job stalled and was requeued",
		slog.String("job_id", job.ID),
		slog.Int("attempts", job.Attempts))
}

func (o *DLQObserver) publish(ctx context.Context, payload domain.OrderTaskPayload, reason string) {
	if o.Events == nil {
		return
	}
	ev := domain.OrderStatusEvent{
		OrderID: payload.OrderID,
		UserID:  payload.UserID,
		Status:  domain.OrderFailed,
		Reason:  reason,
		At:      time.Now().UTC(),
	}
	if err := o.Events.PublishStatus(ctx, ev); err != nil {
		slog.Warn("dlq: publish order status event",
			slog.String("order_id", payload.OrderID),
			slog.Any("error", err))
	}
}
