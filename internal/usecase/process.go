package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/orderflow/internal/domain"
)

// reserveAttempts bounds the internal CAS retry loop; losing the race this
// many times in a row is treated as transient contention and handed back to
// the queue's backoff.
const reserveAttempts = 3

// ProcessService executes one dispatched order job end to end and reports a
// tagged outcome. The queue adapter translates the outcome into
// acknowledge / move-to-failed / retry.
type ProcessService struct {
	Orders  domain.OrderRepository
	Stocks  domain.StockRepository
	Payment domain.PaymentGateway

	// PaymentTimeout bounds the gateway call per attempt.
	PaymentTimeout time.Duration
}

// NewProcessService constructs a ProcessService with its dependencies.
func NewProcessService(o domain.OrderRepository, s domain.StockRepository, p domain.PaymentGateway, paymentTimeout time.Duration) ProcessService {
	if paymentTimeout <= 0 {
		paymentTimeout = 10 * time.Second
	}
	return ProcessService{Orders: o, Stocks: s, Payment: p, PaymentTimeout: paymentTimeout}
}

// Process runs the worker pipeline for one job: idempotency guard, stock
// reservation with a bounded CAS retry, payment, confirmation, and
// compensation when a later step fails after the reserve committed.
func (s ProcessService) Process(ctx domain.Context, payload domain.OrderTaskPayload) domain.Outcome {
	log := slog.With(slog.String("order_id", payload.OrderID))

	// Idempotency guard: a redelivered job whose order already settled is
	// acknowledged without side-effects.
	order, err := s.Orders.Get(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.BusinessFailed("Order not found")
		}
		return domain.Transient(fmt.Errorf("op=process.load_order: %w", err))
	}
	if order.Status.Terminal() {
		log.Info("order already settled, skipping", slog.String("status", string(order.Status)))
		return domain.AlreadySettled()
	}

	if _, err := s.reserve(ctx, payload); err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrNotFound):
			reason := failureReason(err)
			if mErr := s.markFailed(ctx, payload, reason); mErr != nil {
				return domain.Transient(fmt.Errorf("op=process.mark_failed: %w", mErr))
			}
			return domain.BusinessFailed(reason)
		default:
			return domain.Transient(err)
		}
	}

	// Payment and confirmation both sit after a committed reserve; any
	// transient failure from here on must compensate before propagating.
	if err := s.charge(ctx, payload); err != nil {
		return s.compensate(ctx, payload, fmt.Errorf("op=process.payment: %w", err))
	}

	if err := s.Orders.MarkConfirmed(ctx, payload.OrderID); err != nil {
		if errors.Is(err, domain.ErrAlreadyTerminal) {
			// Another attempt settled the order between our guard and the
			// write; the reservation belongs to that attempt's history.
			log.Warn("order settled concurrently after reserve")
			return s.compensate(ctx, payload, nil)
		}
		return s.compensate(ctx, payload, fmt.Errorf("op=process.confirm: %w", err))
	}
	log.Info("order confirmed", slog.Int64("quantity", payload.Quantity))
	return domain.Confirmed()
}

// reserve performs up to reserveAttempts CAS attempts without sleeping.
// Version conflicts are retried; any other failure returns immediately.
func (s ProcessService) reserve(ctx domain.Context, payload domain.OrderTaskPayload) (domain.Stock, error) {
	var lastErr error
	for attempt := 1; attempt <= reserveAttempts; attempt++ {
		snapshot, err := s.Stocks.Reserve(ctx, payload.StockID, payload.Quantity)
		if err == nil {
			return snapshot, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return domain.Stock{}, err
		}
		lastErr = err
	}
	return domain.Stock{}, fmt.Errorf("op=process.reserve: %d attempts: %w", reserveAttempts, lastErr)
}

func (s ProcessService) charge(ctx domain.Context, payload domain.OrderTaskPayload) error {
	chargeCtx, cancel := context.WithTimeout(ctx, s.PaymentTimeout)
	defer cancel()
	return s.Payment.Charge(chargeCtx, payload)
}

// compensate returns the reserved units and propagates cause as a transient
// outcome. A release failure is logged as critical but never masks cause.
func (s ProcessService) compensate(ctx domain.Context, payload domain.OrderTaskPayload, cause error) domain.Outcome {
	if _, err := s.Stocks.Release(ctx, payload.StockID, payload.Quantity); err != nil {
		slog.Error("stock release failed after transient error, stock may be under-counted",
			slog.Bool("critical", true),
			slog.String("order_id", payload.OrderID),
			slog.String("stock_id", payload.StockID),
			slog.Int64("quantity", payload.Quantity),
			slog.Any("error", err))
	}
	if cause == nil {
		return domain.AlreadySettled()
	}
	return domain.Transient(cause)
}

func (s ProcessService) markFailed(ctx domain.Context, payload domain.OrderTaskPayload, reason string) error {
	err := s.Orders.MarkFailed(ctx, payload.OrderID, reason)
	if err != nil && !errors.Is(err, domain.ErrAlreadyTerminal) {
		return err
	}
	return nil
}

// failureReason renders a business failure for the order record; the
// insufficient-stock prefix is load-bearing for reports filtering on it.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "Insufficient stock"
	case errors.Is(err, domain.ErrNotFound):
		return "Stock not found"
	default:
		return err.Error()
	}
}
