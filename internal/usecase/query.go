package usecase

import (
	"fmt"

	"github.com/fairyhunter13/orderflow/internal/domain"
)

// OrderView is an order enriched with catalog data for API responses.
type OrderView struct {
	Order              domain.Order
	ProductName        string
	ProductDescription string
	// AvailableStock is the quantity at read time; a snapshot, not a
	// reservation.
	AvailableStock int64
}

// OrderQueryService serves read paths for callers' orders.
type OrderQueryService struct {
	Orders   domain.OrderRepository
	Products domain.ProductRepository
	Stocks   domain.StockRepository
}

// NewOrderQueryService constructs an OrderQueryService.
func NewOrderQueryService(o domain.OrderRepository, p domain.ProductRepository, s domain.StockRepository) OrderQueryService {
	return OrderQueryService{Orders: o, Products: p, Stocks: s}
}

// Get returns one order for the given caller. Orders belonging to other
// users read as not found, never as forbidden, so ids cannot be probed.
func (s OrderQueryService) Get(ctx domain.Context, userID, orderID string) (OrderView, error) {
	if orderID == "" {
		return OrderView{}, fmt.Errorf("%w: order id required", domain.ErrInvalidArgument)
	}
	order, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if order.UserID != userID {
		return OrderView{}, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return s.enrich(ctx, order), nil
}

// ListByUser returns the caller's orders newest first, enriched with product
// and stock snapshots.
func (s OrderQueryService) ListByUser(ctx domain.Context, userID string) ([]OrderView, error) {
	orders, err := s.Orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, s.enrich(ctx, o))
	}
	return views, nil
}

// enrich attaches catalog data best-effort; a missing product or stock
// leaves the zero values rather than failing the read.
func (s OrderQueryService) enrich(ctx domain.Context, o domain.Order) OrderView {
	view := OrderView{Order: o}
	if product, err := s.Products.Get(ctx, o.ProductID); err == nil {
		view.ProductName = product.Name
		view.ProductDescription = product.Description
	}
	if stock, err := s.Stocks.Get(ctx, o.StockID); err == nil {
		view.AvailableStock = stock.Quantity
	}
	return view
}
