// Package integration exercises the full order pipeline: intake to queue to
// worker to terminal status, on miniredis and the in-memory stores.
package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/orderflow/internal/adapter/orderjob"
	"github.com/fairyhunter13/orderflow/internal/adapter/queue/redisq"
	"github.com/fairyhunter13/orderflow/internal/adapter/repo/memory"
	"github.com/fairyhunter13/orderflow/internal/domain"
	"github.com/fairyhunter13/orderflow/internal/usecase"
)

var errGatewayTimeout = errors.New("payment gateway timeout - please retry")

// scriptedGateway fails the first failures calls and records the order of
// charges it sees.
type scriptedGateway struct {
	mu       sync.Mutex
	failures int
	calls    int
	seen     []string
}

func (g *scriptedGateway) Charge(_ domain.Context, payload domain.OrderTaskPayload) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.seen = append(g.seen, payload.OrderID)
	if g.calls <= g.failures {
		return errGatewayTimeout
	}
	return nil
}

func (g *scriptedGateway) chargedOrders() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.seen...)
}

type pipeline struct {
	stocks *memory.StockStore
	orders *memory.OrderStore
	submit usecase.SubmitService
	queue  *redisq.Queue
	worker *redisq.Worker
}

func newPipeline(t *testing.T, gateway domain.PaymentGateway, opts redisq.Options, concurrency int) *pipeline {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if opts.Name == "" {
		opts.Name = "orders"
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Millisecond
	}
	queue := redisq.New(rdb, opts)

	stocks := memory.NewStockStore()
	orders := memory.NewOrderStore()
	submit := usecase.NewSubmitService(orders, stocks, orderjob.EnqueueAdapter{Q: queue}, 1, 10)
	processor := usecase.NewProcessService(orders, stocks, gateway, time.Second)
	handler := orderjob.NewHandler(queue, processor, nil)
	queue.Subscribe(orderjob.NewDLQObserver(orders, nil))
	worker := redisq.NewWorker(queue, handler, concurrency, time.Second)

	return &pipeline{stocks: stocks, orders: orders, submit: submit, queue: queue, worker: worker}
}

// start runs the worker until the test ends.
func (p *pipeline) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.worker.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (p *pipeline) seedStock(t *testing.T, quantity int64) domain.Stock {
	t.Helper()
	ctx := context.Background()
	id, err := p.stocks.Create(ctx, domain.Stock{ProductID: "p1", Quantity: quantity})
	require.NoError(t, err)
	st, err := p.stocks.Get(ctx, id)
	require.NoError(t, err)
	return st
}

func (p *pipeline) waitTerminal(t *testing.T, orderID string) domain.Order {
	t.Helper()
	var out domain.Order
	require.Eventually(t, func() bool {
		o, err := p.orders.Get(context.Background(), orderID)
		if err != nil {
			return false
		}
		out = o
		return o.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond, "order %s never settled", orderID)
	return out
}

func TestSingleHappyPath(t *testing.T) {
	p := newPipeline(t, &scriptedGateway{}, redisq.Options{}, 2)
	stock := p.seedStock(t, 100)
	p.start(t)

	order, err := p.submit.Submit(context.Background(), domain.User{ID: "u1"},
		usecase.SubmitRequest{StockID: stock.ID, Quantity: 5, Price: 99.99})
	require.NoError(t, err)

	final := p.waitTerminal(t, order.ID)
	require.Equal(t, domain.OrderConfirmed, final.Status)

	st, err := p.stocks.Get(context.Background(), stock.ID)
	require.NoError(t, err)
	require.EqualValues(t, 95, st.Quantity)
	require.Equal(t, stock.Version+1, st.Version)
}

func TestConcurrentSameStock(t *testing.T) {
	p := newPipeline(t, &scriptedGateway{}, redisq.Options{}, 4)
	stock := p.seedStock(t, 100)
	p.start(t)

	ctx := context.Background()
	var wg sync.WaitGroup
	orderIDs := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, err := p.submit.Submit(ctx, domain.User{ID: "u1"},
				usecase.SubmitRequest{StockID: stock.ID, Quantity: 2, Price: 10})
			require.NoError(t, err)
			orderIDs[i] = order.ID
		}(i)
	}
	wg.Wait()

	for _, id := range orderIDs {
		final := p.waitTerminal(t, id)
		require.Equal(t, domain.OrderConfirmed, final.Status)
	}

	st, err := p.stocks.Get(ctx, stock.ID)
	require.NoError(t, err)
	require.EqualValues(t, 80, st.Quantity)
}

func TestDepletion(t *testing.T) {
	p := newPipeline(t, &scriptedGateway{}, redisq.Options{}, 4)
	stock := p.seedStock(t, 5)
	p.start(t)

	ctx := context.Background()
	var wg sync.WaitGroup
	orderIDs := make([]string, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, err := p.submit.Submit(ctx, domain.User{ID: "u1"},
				usecase.SubmitRequest{StockID: stock.ID, Quantity: 2, Price: 10})
			require.NoError(t, err)
			orderIDs[i] = order.ID
		}(i)
	}
	wg.Wait()

	confirmed, failed := 0, 0
	for _, id := range orderIDs {
		final := p.waitTerminal(t, id)
		switch final.Status {
		case domain.OrderConfirmed:
			confirmed++
		case domain.OrderFailed:
			failed++
			require.Contains(t, final.FailureReason, "Insufficient")
		}
	}
	require.Equal(t, 2, confirmed)
	require.Equal(t, 3, failed)

	st, err := p.stocks.Get(ctx, stock.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, st.Quantity)
}

func TestVIPDispatchesFirst(t *testing.T) {
	gateway := &scriptedGateway{}
	p := newPipeline(t, gateway, redisq.Options{}, 1)
	stock := p.seedStock(t, 100)

	// Backlog first, then start the single worker: the VIP order must be
	// charged before any regular order despite being submitted last.
	ctx := context.Background()
	var regularIDs []string
	for i := 0; i < 3; i++ {
		order, err := p.submit.Submit(ctx, domain.User{ID: "u1"},
			usecase.SubmitRequest{StockID: stock.ID, Quantity: 1, Price: 10})
		require.NoError(t, err)
		regularIDs = append(regularIDs, order.ID)
	}
	vipOrder, err := p.submit.Submit(ctx, domain.User{ID: "vip", IsVIP: true},
		usecase.SubmitRequest{StockID: stock.ID, Quantity: 1, Price: 10})
	require.NoError(t, err)

	p.start(t)
	for _, id := range append(regularIDs, vipOrder.ID) {
		p.waitTerminal(t, id)
	}

	charged := gateway.chargedOrders()
	require.NotEmpty(t, charged)
	require.Equal(t, vipOrder.ID, charged[0])
}

func TestTransientRetryThenSuccess(t *testing.T) {
	gateway := &scriptedGateway{failures: 1}
	p := newPipeline(t, gateway, redisq.Options{MaxAttempts: 5}, 1)
	stock := p.seedStock(t, 100)
	p.start(t)

	order, err := p.submit.Submit(context.Background(), domain.User{ID: "u1"},
		usecase.SubmitRequest{StockID: stock.ID, Quantity: 5, Price: 10})
	require.NoError(t, err)

	final := p.waitTerminal(t, order.ID)
	require.Equal(t, domain.OrderConfirmed, final.Status)

	// Compensation ran between attempts, so the net decrement happened once.
	st, err := p.stocks.Get(context.Background(), stock.ID)
	require.NoError(t, err)
	require.EqualValues(t, 95, st.Quantity)
	require.Equal(t, 2, len(gateway.chargedOrders()))
}

func TestExhaustedRetries(t *testing.T) {
	gateway := &scriptedGateway{failures: 1 << 30}
	p := newPipeline(t, gateway, redisq.Options{MaxAttempts: 5}, 1)
	stock := p.seedStock(t, 100)
	p.start(t)

	order, err := p.submit.Submit(context.Background(), domain.User{ID: "u1"},
		usecase.SubmitRequest{StockID: stock.ID, Quantity: 5, Price: 10})
	require.NoError(t, err)

	final := p.waitTerminal(t, order.ID)
	require.Equal(t, domain.OrderFailed, final.Status)
	require.Contains(t, final.FailureReason, "payment gateway timeout - please retry")

	// Every attempt compensated its reservation.
	st, err := p.stocks.Get(context.Background(), stock.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100, st.Quantity)
	require.Equal(t, 5, len(gateway.chargedOrders()))
}

func TestRedeliveryAfterTerminalIsNoop(t *testing.T) {
	gateway := &scriptedGateway{}
	p := newPipeline(t, gateway, redisq.Options{}, 1)
	stock := p.seedStock(t, 100)
	p.start(t)

	ctx := context.Background()
	order, err := p.submit.Submit(ctx, domain.User{ID: "u1"},
		usecase.SubmitRequest{StockID: stock.ID, Quantity: 5, Price: 10})
	require.NoError(t, err)
	p.waitTerminal(t, order.ID)

	// Simulate redelivery of the same work: the idempotency guard must keep
	// both the order and the stock unchanged.
	_, err = orderjob.EnqueueAdapter{Q: p.queue}.EnqueueOrder(ctx, domain.OrderTaskPayload{
		OrderID:  order.ID,
		UserID:   "u1",
		StockID:  stock.ID,
		Quantity: 5,
	}, 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		counts, cErr := p.queue.Counts(ctx)
		return cErr == nil && counts[redisq.StateCompleted] == 2
	}, 5*time.Second, 10*time.Millisecond)

	st, err := p.stocks.Get(ctx, stock.ID)
	require.NoError(t, err)
	require.EqualValues(t, 95, st.Quantity)
	require.Equal(t, 1, len(gateway.chargedOrders()))
}
