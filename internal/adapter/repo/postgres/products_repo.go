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

// ProductRepo persists catalog products. Writes are last-write-wins; catalog
// edits are outside the hot path's concurrency contract.
type ProductRepo struct{ Pool PgxPool }

// NewProductRepo constructs a ProductRepo with the given pool.
func NewProductRepo(p PgxPool) *ProductRepo { return &ProductRepo{Pool: p} }

// Create inserts a new product and returns its id.
func (r *ProductRepo) Create(ctx domain.Context, p domain.Product) (string, error) {
	tracer := otel.Tracer("repo.products")
	ctx, span := tracer.Start(ctx, "products.Create")
	defer span.End()
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO products (id, name, description, price, images, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := r.Pool.Exec(ctx, q, id, p.Name, p.Description, p.Price, p.Images, now, now); err != nil {
		return "", fmt.Errorf("op=product.create: %w", err)
	}
	return id, nil
}

// Update overwrites a product row.
func (r *ProductRepo) Update(ctx domain.Context, p domain.Product) error {
	tracer := otel.Tracer("repo.products")
	ctx, span := tracer.Start(ctx, "products.Update")
	defer span.End()
	q := `UPDATE products SET name=$2, description=$3, price=$4, images=$5, updated_at=$6 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, p.ID, p.Name, p.Description, p.Price, p.Images, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=product.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=product.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Get loads a product by id.
func (r *ProductRepo) Get(ctx domain.Context, id string) (domain.Product, error) {
	tracer := otel.Tracer("repo.products")
	ctx, span := tracer.Start(ctx, "products.Get")
	defer span.End()
	q := `SELECT id, name, description, price, images, created_at, updated_at FROM products WHERE id=$1`
	var p domain.Product
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Images, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("op=product.get: %w", domain.ErrNotFound)
		}
		return domain.Product{}, fmt.Errorf("op=product.get: %w", err)
	}
	return p, nil
}

// List returns all products ordered by creation time.
func (r *ProductRepo) List(ctx domain.Context) ([]domain.Product, error) {
	tracer := otel.Tracer("repo.products")
	ctx, span := tracer.Start(ctx, "products.List")
	defer span.End()
	q := `SELECT id, name, description, price, images, created_at, updated_at FROM products ORDER BY created_at`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=product.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Images, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=product.list: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=product.list: %w", err)
	}
	return out, nil
}
