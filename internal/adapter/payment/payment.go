// Package payment provides PaymentGateway implementations. The real gateway
// integration sits behind the domain.PaymentGateway port; the Noop gateway
// serves deployments without a charge step and the Flaky gateway injects
// transient failures for load and retry testing.
package payment

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/fairyhunter13/orderflow/internal/domain"
)

// ErrGatewayTimeout is the transient failure surfaced by the Flaky gateway.
// The worker retries charges that fail with this error.
var ErrGatewayTimeout = errors.New("payment gateway timeout - please retry")

// Noop approves every charge. Used when no payment provider is configured.
type Noop struct{}

// NewNoop returns a gateway that always succeeds.
func NewNoop() *Noop { return &Noop{} }

// Charge implements domain.PaymentGateway.
func (*Noop) Charge(ctx context.Context, payload domain.OrderTaskPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Flaky approves charges but fails a configurable fraction of them with
// ErrGatewayTimeout.
type Flaky struct {
	probability float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFlaky returns a gateway failing roughly probability of charges
// (clamped to [0,1]).
func NewFlaky(probability float64) *Flaky {
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	return &Flaky{
		probability: probability,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // Fault injection does not need crypto randomness.
	}
}

// Charge implements domain.PaymentGateway.
func (f *Flaky) Charge(ctx context.Context, payload domain.OrderTaskPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	roll := f.rng.Float64()
	f.mu.Unlock()
	if roll < f.probability {
		return ErrGatewayTimeout
	}
	return nil
}
