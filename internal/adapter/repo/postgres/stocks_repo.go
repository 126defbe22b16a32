package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/orderflow/internal/adapter/observability"
	"github.com/fairyhunter13/orderflow/internal/domain"
)

// StockRepo persists stock records with a versioned CAS write path.
type StockRepo struct{ Pool PgxPool }

// NewStockRepo constructs a StockRepo with the given pool.
func NewStockRepo(p PgxPool) *StockRepo { return &StockRepo{Pool: p} }

// Create inserts a new stock row with version 1.
func (r *StockRepo) Create(ctx domain.Context, s domain.Stock) (string, error) {
	tracer := otel.Tracer("repo.stocks")
	ctx, span := tracer.Start(ctx, "stocks.Create")
	defer span.End()
	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	if s.Quantity < 0 {
		return "", fmt.Errorf("op=stock.create: %w: negative quantity", domain.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	q := `INSERT INTO stocks (id, product_id, quantity, version, created_at, updated_at) VALUES ($1,$2,$3,1,$4,$5)`
	if _, err := r.Pool.Exec(ctx, q, id, s.ProductID, s.Quantity, now, now); err != nil {
		return "", fmt.Errorf("op=stock.create: %w", err)
	}
	return id, nil
}

// Update replaces quantity outside the hot path (admin, last-write-wins).
// The version still advances so snapshots stay unique.
func (r *StockRepo) Update(ctx domain.Context, s domain.Stock) error {
	tracer := otel.Tracer("repo.stocks")
	ctx, span := tracer.Start(ctx, "stocks.Update")
	defer span.End()
	if s.Quantity < 0 {
		return fmt.Errorf("op=stock.update: %w: negative quantity", domain.ErrInvalidArgument)
	}
	q := `UPDATE stocks SET quantity=$2, version=version+1, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, s.ID, s.Quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=stock.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=stock.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Get loads a stock snapshot by id.
func (r *StockRepo) Get(ctx domain.Context, id string) (domain.Stock, error) {
	tracer := otel.Tracer("repo.stocks")
	ctx, span := tracer.Start(ctx, "stocks.Get")
	defer span.End()
	q := `SELECT id, product_id, quantity, version, created_at, updated_at FROM stocks WHERE id=$1`
	var s domain.Stock
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.ProductID, &s.Quantity, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stock{}, fmt.Errorf("op=stock.get: %w", domain.ErrNotFound)
		}
		return domain.Stock{}, fmt.Errorf("op=stock.get: %w", err)
	}
	return s, nil
}

// List returns all stock rows.
func (r *StockRepo) List(ctx domain.Context) ([]domain.Stock, error) {
	tracer := otel.Tracer("repo.stocks")
	ctx, span := tracer.Start(ctx, "stocks.List")
	defer span.End()
	q := `SELECT id, product_id, quantity, version, created_at, updated_at FROM stocks ORDER BY created_at`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=stock.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Stock
	for rows.Next() {
		var s domain.Stock
		if err := rows.Scan(&s.ID, &s.ProductID, &s.Quantity, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=stock.list: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=stock.list: %w", err)
	}
	return out, nil
}

// Reserve performs one CAS attempt: decrement quantity by n only if the row
// still carries the version just read and has enough stock. A lost race
// surfaces as ErrVersionConflict; the caller owns the bounded retry loop.
func (r *StockRepo) Reserve(ctx domain.Context, id string, n int64) (domain.Stock, error) {
	tracer := otel.Tracer("repo.stocks")
	ctx, span := tracer.Start(ctx, "stocks.Reserve")
	defer span.End()
	if n <= 0 {
		return domain.Stock{}, fmt.Errorf("op=stock.reserve: %w: n must be positive", domain.ErrInvalidArgument)
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			observability.ReservationOutcome("not_found")
		}
		return domain.Stock{}, err
	}
	if cur.Quantity < n {
		observability.ReservationOutcome("insufficient")
		return domain.Stock{}, fmt.Errorf("op=stock.reserve: %w: requested %d, available %d", domain.ErrInsufficientStock, n, cur.Quantity)
	}
	q := `UPDATE stocks SET quantity = quantity - $3, version = version + 1, updated_at = $4
	      WHERE id = $1 AND version = $2 AND quantity >= $3
	      RETURNING quantity, version, updated_at`
	s := cur
	err = r.Pool.QueryRow(ctx, q, id, cur.Version, n, time.Now().UTC()).Scan(&s.Quantity, &s.Version, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The row moved between the read and the conditional write.
			observability.ReservationOutcome("version_conflict")
			return domain.Stock{}, fmt.Errorf("op=stock.reserve: %w: stock %s version %d", domain.ErrVersionConflict, id, cur.Version)
		}
		return domain.Stock{}, fmt.Errorf("op=stock.reserve: %w", err)
	}
	observability.ReservationOutcome("ok")
	return s, nil
}

// Release returns n units to the stock (compensation path). Unconditional:
// quantity has no upper cap and the version advances like any other write.
func (r *StockRepo) Release(ctx domain.Context, id string, n int64) (domain.Stock, error) {
	tracer := otel.Tracer("repo.stocks")
	ctx, span := tracer.Start(ctx, "stocks.Release")
	defer span.End()
	if n <= 0 {
		return domain.Stock{}, fmt.Errorf("op=stock.release: %w: n must be positive", domain.ErrInvalidArgument)
	}
	q := `UPDATE stocks SET quantity = quantity + $2, version = version + 1, updated_at = $3
	      WHERE id = $1
	      RETURNING id, product_id, quantity, version, created_at, updated_at`
	var s domain.Stock
	err := r.Pool.QueryRow(ctx, q, id, n, time.Now().UTC()).Scan(&s.ID, &s.ProductID, &s.Quantity, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stock{}, fmt.Errorf("op=stock.release: %w", domain.ErrNotFound)
		}
		return domain.Stock{}, fmt.Errorf("op=stock.release: %w", err)
	}
	return s, nil
}
