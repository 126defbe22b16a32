package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/orderflow/internal/adapter/repo/memory"
	"github.com/fairyhunter13/orderflow/internal/domain"
)

func TestStockStore_ReserveRelease_Versioning(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.NewStockStore()
	id, err := s.Create(ctx, domain.Stock{ProductID: "p-1", Quantity: 10})
	require.NoError(t, err)

	snap, err := s.Reserve(ctx, id, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), snap.Quantity)
	assert.Equal(t, int64(2), snap.Version)

	snap, err = s.Release(ctx, id, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(10), snap.Quantity)
	assert.Equal(t, int64(3), snap.Version)
}

func TestStockStore_Reserve_Insufficient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.NewStockStore()
	id, _ := s.Create(ctx, domain.Stock{ProductID: "p-1", Quantity: 1})
	_, err := s.Reserve(ctx, id, 2)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	// Failed attempts never mutate.
	got, _ := s.Get(ctx, id)
	assert.Equal(t, int64(1), got.Quantity)
	assert.Equal(t, int64(1), got.Version)
}

// Conservation and no-oversell under a concurrent workload: K units, N
// goroutines each trying to reserve 1, exactly K succeed.
func TestStockStore_ConcurrentReserve_NoOversell(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.NewStockStore()
	const initial, callers = 50, 200
	id, _ := s.Create(ctx, domain.Stock{ProductID: "p-1", Quantity: initial})

	var ok, insufficient atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Reserve(ctx, id, 1)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(initial), ok.Load())
	assert.Equal(t, int64(callers-initial), insufficient.Load())
	got, _ := s.Get(ctx, id)
	assert.Equal(t, int64(0), got.Quantity)
	// Version advanced once per successful reservation.
	assert.Equal(t, int64(1+initial), got.Version)
}

func TestOrderStore_TerminalIsSticky(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.NewOrderStore()
	id, err := s.CreatePending(ctx, domain.Order{UserID: "u-1", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, s.MarkConfirmed(ctx, id))
	err = s.MarkFailed(ctx, id, "late failure")
	require.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	got, _ := s.Get(ctx, id)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	assert.Empty(t, got.FailureReason)
}

func TestOrderStore_ListByUser_NewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.NewOrderStore()
	first, _ := s.CreatePending(ctx, domain.Order{UserID: "u-1"})
	second, _ := s.CreatePending(ctx, domain.Order{UserID: "u-1"})
	_, _ = s.CreatePending(ctx, domain.Order{UserID: "u-2"})

	got, err := s.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second, got[0].ID)
	assert.Equal(t, first, got[1].ID)
}
