package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/orderflow/internal/domain"
	"github.com/fairyhunter13/orderflow/internal/domain/mocks"
)

func TestSubmitRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	svc := NewSubmitService(&mocks.MockOrderRepository{}, &mocks.MockStockRepository{}, &mocks.MockQueue{}, 1, 10)
	user := domain.User{ID: "u1"}

	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing stock id", SubmitRequest{Quantity: 1, Price: 1}},
		{"zero quantity", SubmitRequest{StockID: "s1", Quantity: 0, Price: 1}},
		{"negative quantity", SubmitRequest{StockID: "s1", Quantity: -2, Price: 1}},
		{"negative price", SubmitRequest{StockID: "s1", Quantity: 1, Price: -0.01}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), user, tc.req)
			require.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestSubmitUnknownStock(t *testing.T) {
	t.Parallel()
	stocks := &mocks.MockStockRepository{}
	stocks.On("Get", mock.Anything, "missing").Return(domain.Stock{}, domain.ErrNotFound)
	svc := NewSubmitService(&mocks.MockOrderRepository{}, stocks, &mocks.MockQueue{}, 1, 10)

	_, err := svc.Submit(context.Background(), domain.User{ID: "u1"}, SubmitRequest{StockID: "missing", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmitCreatesPendingAndEnqueues(t *testing.T) {
	t.Parallel()
	stocks := &mocks.MockStockRepository{}
	stocks.On("Get", mock.Anything, "s1").Return(domain.Stock{ID: "s1", ProductID: "p1", Quantity: 100}, nil)
	orders := &mocks.MockOrderRepository{}
	orders.On("CreatePending", mock.Anything, mock.MatchedBy(func(o domain.Order) bool {
		return o.Status == domain.OrderPending && o.ProductID == "p1" && o.Quantity == 5
	})).Return("o1", nil)
	queue := &mocks.MockQueue{}
	queue.On("EnqueueOrder", mock.Anything, mock.MatchedBy(func(p domain.OrderTaskPayload) bool {
		return p.OrderID == "o1" && p.StockID == "s1" && p.Quantity == 5
	}), 10).Return("job-1", nil)

	svc := NewSubmitService(orders, stocks, queue, 1, 10)
	order, err := svc.Submit(context.Background(), domain.User{ID: "u1"}, SubmitRequest{StockID: "s1", Quantity: 5, Price: 99.99})
	require.NoError(t, err)
	require.Equal(t, "o1", order.ID)
	require.Equal(t, domain.OrderPending, order.Status)
	orders.AssertExpectations(t)
	queue.AssertExpectations(t)
}

func TestSubmitVIPUsesVIPPriority(t *testing.T) {
	t.Parallel()
	stocks := &mocks.MockStockRepository{}
	stocks.On("Get", mock.Anything, "s1").Return(domain.Stock{ID: "s1", ProductID: "p1"}, nil)
	orders := &mocks.MockOrderRepository{}
	orders.On("CreatePending", mock.Anything, mock.Anything).Return("o1", nil)
	queue := &mocks.MockQueue{}
	queue.On("EnqueueOrder", mock.Anything, mock.MatchedBy(func(p domain.OrderTaskPayload) bool {
		return p.IsVIP
	}), 1).Return("job-1", nil)

	svc := NewSubmitService(orders, stocks, queue, 1, 10)
	_, err := svc.Submit(context.Background(), domain.User{ID: "vip", IsVIP: true}, SubmitRequest{StockID: "s1", Quantity: 1})
	require.NoError(t, err)
	queue.AssertExpectations(t)
}

func TestSubmitEnqueueFailureLeavesOrderPending(t *testing.T) {
	t.Parallel()
	stocks := &mocks.MockStockRepository{}
	stocks.On("Get", mock.Anything, "s1").Return(domain.Stock{ID: "s1", ProductID: "p1"}, nil)
	orders := &mocks.MockOrderRepository{}
	orders.On("CreatePending", mock.Anything, mock.Anything).Return("o1", nil)
	queue := &mocks.MockQueue{}
	queue.On("EnqueueOrder", mock.Anything, mock.Anything, 10).Return("", errors.New("redis down"))

	svc := NewSubmitService(orders, stocks, queue, 1, 10)
	_, err := svc.Submit(context.Background(), domain.User{ID: "u1"}, SubmitRequest{StockID: "s1", Quantity: 1})
	require.Error(t, err)
	// No terminal write happens on the enqueue path.
	orders.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}
