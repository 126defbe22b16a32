package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/orderflow/internal/domain"
	"github.com/fairyhunter13/orderflow/internal/usecase"
)

// Server bundles the HTTP handlers with their services.
type Server struct {
	Submit  usecase.SubmitService
	Queries usecase.OrderQueryService
	Catalog usecase.CatalogService
}

// NewServer constructs a Server.
func NewServer(submit usecase.SubmitService, queries usecase.OrderQueryService, catalog usecase.CatalogService) *Server {
	return &Server{Submit: submit, Queries: queries, Catalog: catalog}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

type createOrderRequest struct {
	StockID  string  `json:"stock_id" validate:"required"`
	Quantity int64   `json:"quantity" validate:"required,gte=1"`
	Price    float64 `json:"price" validate:"gte=0"`
}

type orderResponse struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	ProductID          string    `json:"product_id"`
	StockID            string    `json:"stock_id"`
	Quantity           int64     `json:"quantity"`
	PriceAtPurchase    float64   `json:"price_at_purchase"`
	Status             string    `json:"status"`
	IsVIPOrder         bool      `json:"is_vip_order"`
	FailureReason      string    `json:"failure_reason,omitempty"`
	ProductName        string    `json:"product_name,omitempty"`
	ProductDescription string    `json:"product_description,omitempty"`
	AvailableStock     int64     `json:"available_stock"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func orderFromView(v usecase.OrderView) orderResponse {
	return orderResponse{
		ID:                 v.Order.ID,
		UserID:             v.Order.UserID,
		ProductID:          v.Order.ProductID,
		StockID:            v.Order.StockID,
		Quantity:           v.Order.Quantity,
		PriceAtPurchase:    v.Order.PriceAtPurchase,
		Status:             string(v.Order.Status),
		IsVIPOrder:         v.Order.IsVIP,
		FailureReason:      v.Order.FailureReason,
		ProductName:        v.ProductName,
		ProductDescription: v.ProductDescription,
		AvailableStock:     v.AvailableStock,
		CreatedAt:          v.Order.CreatedAt,
		UpdatedAt:          v.Order.UpdatedAt,
	}
}

// CreateOrder handles POST /v1/orders: accept the intent, record it PENDING
// and queue it. The terminal status arrives asynchronously.
func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, r, fmt.Errorf("%w: no authenticated user", domain.ErrUnauthorized), nil)
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
		return
	}
	if err := getValidator().Struct(req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, err.Error()), nil)
		return
	}
	order, err := s.Submit.Submit(r.Context(), user, usecase.SubmitRequest{
		StockID:  req.StockID,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, orderFromView(usecase.OrderView{Order: order}))
}

// ListOrders handles GET /v1/orders for the authenticated caller.
func (s *Server) ListOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, r, fmt.Errorf("%w: no authenticated user", domain.ErrUnauthorized), nil)
		return
	}
	views, err := s.Queries.ListByUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]orderResponse, 0, len(views))
	for _, v := range views {
		out = append(out, orderFromView(v))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": out})
}

// GetOrder handles GET /v1/orders/{id}.
func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, r, fmt.Errorf("%w: no authenticated user", domain.ErrUnauthorized), nil)
		return
	}
	view, err := s.Queries.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, orderFromView(view))
}
