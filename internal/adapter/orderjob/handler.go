// Package orderjob glues the order pipeline to the redisq queue: it adapts
// the domain Queue port onto redisq, translates handler outcomes into queue
// acknowledgements, and hosts the dead-letter observer.
package orderjob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/orderflow/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/orderflow/internal/domain"
)

// EnqueueAdapter implements domain.Queue on a redisq queue.
type EnqueueAdapter struct {
	Q *redisq.Queue
}

// EnqueueOrder marshals the payload and enqueues it under the given priority
// class.
func (a EnqueueAdapter) EnqueueOrder(ctx domain.Context, payload domain.OrderTaskPayload, priority int) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("op=orderjob.enqueue: %w", err)
	}
	return a.Q.Enqueue(ctx, b, priority)
}

// Processor is the slice of the order pipeline the handler drives.
type Processor interface {
	Process(ctx domain.Context, payload domain.OrderTaskPayload) domain.Outcome
}

// Handler runs one dispatched job through the Processor and translates its
// outcome for the queue: Confirmed acknowledges, BusinessFailed moves the
// job to failed without burning retries, Transient returns the error so the
// queue schedules a backoff retry.
type Handler struct {
	Q         *redisq.Queue
	Processor Processor
	Events    domain.EventPublisher
}

// NewHandler constructs a Handler. A nil publisher disables status events.
func NewHandler(q *redisq.Queue, p Processor, events domain.EventPublisher) *Handler {
	return &Handler{Q: q, Processor: p, Events: events}
}

// Handle implements redisq.Handler.
func (h *Handler) Handle(ctx context.Context, job *redisq.Job) error {
	var payload domain.OrderTaskPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		// Poison payload: retrying cannot help.
		slog.Error("undecodable job payload",
			slog.String("job_id", job.ID),
			slog.Any("error", err))
		return h.Q.MoveToFailed(ctx, job, "undecodable payload: "+err.Error())
	}

	out := h.Processor.Process(ctx, payload)
	switch out.Kind {
	case domain.OutcomeConfirmed:
		// A settled redelivery acknowledges without an event: the order may
		// have reached FAILED on the attempt that settled it.
		if !out.Settled {
			h.publish(ctx, payload, domain.OrderConfirmed, "")
		}
		return nil
	case domain.OutcomeBusinessFailed:
		h.publish(ctx, payload, domain.OrderFailed, out.Reason)
		return h.Q.MoveToFailed(ctx, job, out.Reason)
	default:
		return out.Err
	}
}

// publish emits a status event best-effort; failures are logged and never
// affect the job outcome.
func (h *Handler) publish(ctx context.Context, payload domain.OrderTaskPayload, status domain.OrderStatus, reason string) {
	if h.Events == nil {
		return
	}
	ev := domain.OrderStatusEvent{
		OrderID: payload.OrderID,
		UserID:  payload.UserID,
		Status:  status,
		Reason:  reason,
		At:      time.Now().UTC(),
	}
	if err := h.Events.PublishStatus(ctx, ev); err != nil {
		slog.Warn("publish order status event",
			slog.String("order_id", payload.OrderID),
			slog.String("status", string(status)),
			slog.Any("error", err))
	}
}
