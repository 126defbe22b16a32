package usecase

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/orderflow/internal/domain"
)

// CatalogService covers the admin CRUD surface for products and stocks. It
// sits outside the order hot path; writes are last-write-wins.
type CatalogService struct {
	Products domain.ProductRepository
	Stocks   domain.StockRepository
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(p domain.ProductRepository, s domain.StockRepository) CatalogService {
	return CatalogService{Products: p, Stocks: s}
}

// CreateProduct validates and stores a new product.
func (s CatalogService) CreateProduct(ctx domain.Context, p domain.Product) (string, error) {
	if p.Name == "" {
		return "", fmt.Errorf("%w: product name required", domain.ErrInvalidArgument)
	}
	if p.Price < 0 {
		return "", fmt.Errorf("%w: price must be >= 0", domain.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	return s.Products.Create(ctx, p)
}

// ListProducts returns the full catalog.
func (s CatalogService) ListProducts(ctx domain.Context) ([]domain.Product, error) {
	return s.Products.List(ctx)
}

// GetProduct returns one product.
func (s CatalogService) GetProduct(ctx domain.Context, id string) (domain.Product, error) {
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product id required", domain.ErrInvalidArgument)
	}
	return s.Products.Get(ctx, id)
}

// CreateStock validates and stores a new stock record for a product.
func (s CatalogService) CreateStock(ctx domain.Context, st domain.Stock) (string, error) {
	if st.ProductID == "" {
		return "", fmt.Errorf("%w: product id required", domain.ErrInvalidArgument)
	}
	if st.Quantity < 0 {
		return "", fmt.Errorf("%w: quantity must be >= 0", domain.ErrInvalidArgument)
	}
	if _, err := s.Products.Get(ctx, st.ProductID); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now
	return s.Stocks.Create(ctx, st)
}

// UpdateStock replaces quantity for an existing stock (admin restock path).
func (s CatalogService) UpdateStock(ctx domain.Context, st domain.Stock) error {
	if st.ID == "" {
		return fmt.Errorf("%w: stock id required", domain.ErrInvalidArgument)
	}
	if st.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be >= 0", domain.ErrInvalidArgument)
	}
	return s.Stocks.Update(ctx, st)
}

// ListStocks returns all stock records.
func (s CatalogService) ListStocks(ctx domain.Context) ([]domain.Stock, error) {
	return s.Stocks.List(ctx)
}

// GetStock returns one stock record.
func (s CatalogService) GetStock(ctx domain.Context, id string) (domain.Stock, error) {
	if id == "" {
		return domain.Stock{}, fmt.Errorf("%w: stock id required", domain.ErrInvalidArgument)
	}
	return s.Stocks.Get(ctx, id)
}

// ProductWithStock pairs a product with its stock record for listings.
type ProductWithStock struct {
	Product domain.Product
	Stock   *domain.Stock
}

// ListProductsWithStock joins products against their stock records. Products
// without stock carry a nil Stock.
func (s CatalogService) ListProductsWithStock(ctx domain.Context) ([]ProductWithStock, error) {
	products, err := s.Products.List(ctx)
	if err != nil {
		return nil, err
	}
	stocks, err := s.Stocks.List(ctx)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[string]domain.Stock, len(stocks))
	for _, st := range stocks {
		byProduct[st.ProductID] = st
	}
	out := make([]ProductWithStock, 0, len(products))
	for _, p := range products {
		item := ProductWithStock{Product: p}
		if st, ok := byProduct[p.ID]; ok {
			stCopy := st
			item.Stock = &stCopy
		}
		out = append(out, item)
	}
	return out, nil
}
