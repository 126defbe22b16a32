package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/orderflow/internal/domain"
)

func TestOrderStatus_Terminal(t *testing.T) {
	t.Parallel()
	assert.False(t, domain.OrderPending.Terminal())
	assert.True(t, domain.OrderConfirmed.Terminal())
	assert.True(t, domain.OrderFailed.Terminal())
}

func TestSentinels_WrapAndMatch(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("op=stock.reserve: %w", domain.ErrInsufficientStock)
	require.True(t, errors.Is(err, domain.ErrInsufficientStock))
	assert.False(t, errors.Is(err, domain.ErrVersionConflict))
}

func TestOutcome_Constructors(t *testing.T) {
	t.Parallel()
	ok := domain.Confirmed()
	assert.Equal(t, domain.OutcomeConfirmed, ok.Kind)

	bf := domain.BusinessFailed("Insufficient stock: requested 5, available 2")
	assert.Equal(t, domain.OutcomeBusinessFailed, bf.Kind)
	assert.Contains(t, bf.Reason, "Insufficient")

	tr := domain.Transient(errors.New("payment gateway timeout - please retry"))
	assert.Equal(t, domain.OutcomeTransient, tr.Kind)
	require.Error(t, tr.Err)
}
