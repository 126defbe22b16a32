package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/orderflow/internal/domain"
)

// OrderRepo persists order records. Terminal statuses are sticky: the
// transition predicate requires status='PENDING', so a second terminal write
// is a no-op surfaced as ErrAlreadyTerminal.
type OrderRepo struct{ Pool PgxPool }

// NewOrderRepo constructs an OrderRepo with the given pool.
func NewOrderRepo(p PgxPool) *OrderRepo { return &OrderRepo{Pool: p} }

const orderColumns = `id, user_id, product_id, stock_id, quantity, price_at_purchase, status, is_vip, COALESCE(failure_reason,''), created_at, updated_at`

// CreatePending inserts a new PENDING order and returns its id.
func (r *OrderRepo) CreatePending(ctx domain.Context, o domain.Order) (string, error) {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.CreatePending")
	defer span.End()
	id := o.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO orders (id, user_id, product_id, stock_id, quantity, price_at_purchase, status, is_vip, failure_reason, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'',$9,$10)`
	_, err := r.Pool.Exec(ctx, q, id, o.UserID, o.ProductID, o.StockID, o.Quantity, o.PriceAtPurchase, domain.OrderPending, o.IsVIP, now, now)
	if err != nil {
		return "", fmt.Errorf("op=order.create_pending: %w", err)
	}
	return id, nil
}

// Get loads an order by id.
func (r *OrderRepo) Get(ctx domain.Context, id string) (domain.Order, error) {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.Get")
	defer span.End()
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	o, err := scanOrder(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("op=order.get: %w", domain.ErrNotFound)
		}
		return domain.Order{}, fmt.Errorf("op=order.get: %w", err)
	}
	return o, nil
}

// ListByUser returns a user's orders, newest first.
func (r *OrderRepo) ListByUser(ctx domain.Context, userID string) ([]domain.Order, error) {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, "orders.ListByUser")
	defer span.End()
	q := `SELECT ` + orderColumns + ` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("op=order.list_by_user: %w", err)
	}
	defer rows.Close()
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("op=order.list_by_user: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=order.list_by_user: %w", err)
	}
	return out, nil
}

// MarkConfirmed transitions PENDING -> CONFIRMED.
func (r *OrderRepo) MarkConfirmed(ctx domain.Context, id string) error {
	return r.markTerminal(ctx, "orders.MarkConfirmed", id, domain.OrderConfirmed, "")
}

// MarkFailed transitions PENDING -> FAILED with a reason. Idempotent with
// respect to terminal status (ErrAlreadyTerminal, no mutation).
func (r *OrderRepo) MarkFailed(ctx domain.Context, id string, reason string) error {
	return r.markTerminal(ctx, "orders.MarkFailed", id, domain.OrderFailed, reason)
}

func (r *OrderRepo) markTerminal(ctx domain.Context, spanName, id string, status domain.OrderStatus, reason string) error {
	tracer := otel.Tracer("repo.orders")
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()
	q := `UPDATE orders SET status=$2, failure_reason=$3, updated_at=$4 WHERE id=$1 AND status=$5`
	tag, err := r.Pool.Exec(ctx, q, id, status, reason, time.Now().UTC(), domain.OrderPending)
	if err != nil {
		return fmt.Errorf("op=order.mark_terminal: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	// No pending row matched: distinguish missing from already-terminal.
	var cur domain.OrderStatus
	if err := r.Pool.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&cur); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("op=order.mark_terminal: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("op=order.mark_terminal: %w", err)
	}
	return fmt.Errorf("op=order.mark_terminal: status=%s: %w", cur, domain.ErrAlreadyTerminal)
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &o.StockID, &o.Quantity, &o.PriceAtPurchase, &o.Status, &o.IsVIP, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}
