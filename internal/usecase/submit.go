// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/orderflow/internal/domain"
)

// SubmitService handles order intake: it validates the request, records the
// PENDING order and hands the work to the queue.
type SubmitService struct {
	Orders domain.OrderRepository
	Stocks domain.StockRepository
	Queue  domain.Queue

	// VIPPriority and DefaultPriority are the queue classes used for VIP
	// and regular callers; lower dispatches earlier.
	VIPPriority     int
	DefaultPriority int
}

// NewSubmitService constructs a SubmitService with its dependencies.
func NewSubmitService(o domain.OrderRepository, s domain.StockRepository, q domain.Queue, vipPriority, defaultPriority int) SubmitService {
	if vipPriority <= 0 {
		vipPriority = 1
	}
	if defaultPriority <= 0 {
		defaultPriority = 10
	}
	return SubmitService{Orders: o, Stocks: s, Queue: q, VIPPriority: vipPriority, DefaultPriority: defaultPriority}
}

// SubmitRequest is the validated intake payload.
type SubmitRequest struct {
	StockID  string
	Quantity int64
	Price    float64
}

// Submit records a PENDING order for the caller and enqueues it for
// processing. Each call creates a distinct order; identical submissions are
// distinct intents, never deduplicated. An enqueue failure leaves the
// PENDING order in place and is surfaced to the caller.
func (s SubmitService) Submit(ctx domain.Context, user domain.User, req SubmitRequest) (domain.Order, error) {
	if req.StockID == "" {
		return domain.Order{}, fmt.Errorf("%w: stock id required", domain.ErrInvalidArgument)
	}
	if req.Quantity < 1 {
		return domain.Order{}, fmt.Errorf("%w: quantity must be >= 1", domain.ErrInvalidArgument)
	}
	if req.Price < 0 {
		return domain.Order{}, fmt.Errorf("%w: price must be >= 0", domain.ErrInvalidArgument)
	}

	stock, err := s.Stocks.Get(ctx, req.StockID)
	if err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		UserID:          user.ID,
		ProductID:       stock.ProductID,
		StockID:         stock.ID,
		Quantity:        req.Quantity,
		PriceAtPurchase: req.Price,
		Status:          domain.OrderPending,
		IsVIP:           user.IsVIP,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	orderID, err := s.Orders.CreatePending(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}
	order.ID = orderID

	priority := s.DefaultPriority
	if user.IsVIP {
		priority = s.VIPPriority
	}
	payload := domain.OrderTaskPayload{
		OrderID:         orderID,
		UserID:          user.ID,
		ProductID:       stock.ProductID,
		StockID:         stock.ID,
		Quantity:        req.Quantity,
		PriceAtPurchase: req.Price,
		IsVIP:           user.IsVIP,
	}
	jobID, err := s.Queue.EnqueueOrder(ctx, payload, priority)
	if err != nil {
		// The order stays PENDING; an operator (or a later sweep) can
		// requeue it from the record.
		slog.Error("enqueue order",
			slog.String("order_id", orderID),
			slog.Any("error", err))
		return domain.Order{}, fmt.Errorf("op=submit.enqueue: %w", err)
	}
	slog.Info("order accepted",
		slog.String("order_id", orderID),
		slog.String("job_id", jobID),
		slog.Int("priority", priority),
		slog.Bool("vip", user.IsVIP))
	return order, nil
}
