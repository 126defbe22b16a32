package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/orderflow/internal/domain"
)

type productRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Price       float64  `json:"price" validate:"gte=0"`
	Images      []string `json:"images"`
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Images      []string  `json:"images,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func productFrom(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Images:      p.Images,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type stockRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gte=0"`
}

type stockResponse struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func stockFrom(s domain.Stock) stockResponse {
	return stockResponse{
		ID:        s.ID,
		ProductID: s.ProductID,
		Quantity:  s.Quantity,
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// CreateProduct handles POST /v1/products.
func (s *Server) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
		return
	}
	if err := getValidator().Struct(req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, err.Error()), nil)
		return
	}
	id, err := s.Catalog.CreateProduct(r.Context(), domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Images:      req.Images,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ListProducts handles GET /v1/products.
func (s *Server) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, productFrom(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": out})
}

// GetProduct handles GET /v1/products/{id}.
func (s *Server) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.Catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, productFrom(p))
}

// CreateStock handles POST /v1/stocks.
func (s *Server) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
		return
	}
	if err := getValidator().Struct(req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, err.Error()), nil)
		return
	}
	id, err := s.Catalog.CreateStock(r.Context(), domain.Stock{ProductID: req.ProductID, Quantity: req.Quantity})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// UpdateStock handles PUT /v1/stocks/{id} (admin restock).
func (s *Server) UpdateStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
		return
	}
	err := s.Catalog.UpdateStock(r.Context(), domain.Stock{
		ID:        chi.URLParam(r, "id"),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// ListStocks handles GET /v1/stocks.
func (s *Server) ListStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.Catalog.ListStocks(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]stockResponse, 0, len(stocks))
	for _, st := range stocks {
		out = append(out, stockFrom(st))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stocks": out})
}

// GetStock handles GET /v1/stocks/{id}.
func (s *Server) GetStock(w http.ResponseWriter, r *http.Request) {
	st, err := s.Catalog.GetStock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, stockFrom(st))
}

// ListProductsWithStock handles GET /v1/products-with-stock.
func (s *Server) ListProductsWithStock(w http.ResponseWriter, r *http.Request) {
	items, err := s.Catalog.ListProductsWithStock(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	type item struct {
		Product productResponse `json:"product"`
		Stock   *stockResponse  `json:"stock,omitempty"`
	}
	out := make([]item, 0, len(items))
	for _, it := range items {
		entry := item{Product: productFrom(it.Product)}
		if it.Stock != nil {
			st := stockFrom(*it.Stock)
			entry.Stock = &st
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
}
