// Package domain holds the core entities, error taxonomy and ports of the
// order-processing service. Adapters depend on this package, never the other
// way around.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVersionConflict   = errors.New("version conflict")
	ErrAlreadyTerminal   = errors.New("order already terminal")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInternal          = errors.New("internal error")
)

// Product is catalog data. It is immutable with respect to the order flow;
// catalog edits are admin-only and last-write-wins.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
	Images      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stock tracks the sellable quantity for exactly one product. Version is a
// monotonically increasing counter; every successful mutation increments it
// by exactly one, so (ID, Version) identifies a snapshot.
type Stock struct {
	ID        string
	ProductID string
	Quantity  int64
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderFailed    OrderStatus = "FAILED"
)

// Terminal reports whether the status can never change again.
func (s OrderStatus) Terminal() bool { return s == OrderConfirmed || s == OrderFailed }

// Order records a single purchase intent. Created as PENDING by intake and
// moved exactly once to CONFIRMED or FAILED by the worker or the DLQ
// observer.
type Order struct {
	ID              string
	UserID          string
	ProductID       string
	StockID         string
	Quantity        int64
	PriceAtPurchase float64
	Status          OrderStatus
	IsVIP           bool
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// User is the verified caller handed to intake by the auth layer.
type User struct {
	ID    string
	IsVIP bool
}

// OrderTaskPayload travels through the queue from intake to the worker. The
// job id is distinct from OrderID; the queue owns the former, the order
// store the latter.
type OrderTaskPayload struct {
	OrderID         string  `json:"order_id"`
	UserID          string  `json:"user_id"`
	ProductID       string  `json:"product_id"`
	StockID         string  `json:"stock_id"`
	Quantity        int64   `json:"quantity"`
	PriceAtPurchase float64 `json:"price_at_purchase"`
	IsVIP           bool    `json:"is_vip"`
}

// OrderStatusEvent is published to the event stream on terminal transitions.
type OrderStatusEvent struct {
	OrderID string      `json:"order_id"`
	UserID  string      `json:"user_id"`
	Status  OrderStatus `json:"status"`
	Reason  string      `json:"reason,omitempty"`
	At      time.Time   `json:"at"`
}

// Repositories (ports)

type ProductRepository interface {
	Create(ctx Context, p Product) (string, error)
	Update(ctx Context, p Product) error
	Get(ctx Context, id string) (Product, error)
	List(ctx Context) ([]Product, error)
}

// StockRepository owns all quantity mutations. Reserve and Release are the
// only write paths on the hot path; both bump Version by one and return the
// post-mutation snapshot.
type StockRepository interface {
	Create(ctx Context, s Stock) (string, error)
	Update(ctx Context, s Stock) error
	Get(ctx Context, id string) (Stock, error)
	List(ctx Context) ([]Stock, error)
	// Reserve performs a single CAS attempt: decrement quantity by n if the
	// observed version still holds and quantity >= n. It returns
	// ErrInsufficientStock, ErrNotFound or ErrVersionConflict on failure and
	// never mutates on a failed attempt. n must be positive.
	Reserve(ctx Context, id string, n int64) (Stock, error)
	// Release returns n units (compensation). No upper cap is enforced.
	Release(ctx Context, id string, n int64) (Stock, error)
}

// OrderRepository guards status transitions: a terminal status is sticky and
// a second terminal write returns ErrAlreadyTerminal without mutating.
type OrderRepository interface {
	CreatePending(ctx Context, o Order) (string, error)
	Get(ctx Context, id string) (Order, error)
	ListByUser(ctx Context, userID string) ([]Order, error)
	MarkConfirmed(ctx Context, id string) error
	MarkFailed(ctx Context, id string, reason string) error
}

// Queue (port). Lower priority values dispatch earlier.

type Queue interface {
	EnqueueOrder(ctx Context, payload OrderTaskPayload, priority int) (string, error)
}

// PaymentGateway is the injection seam for the payment side-effect. The
// production implementation is a no-op success; dev mode may inject random
// transient failures.
type PaymentGateway interface {
	Charge(ctx Context, payload OrderTaskPayload) error
}

// EventPublisher streams terminal order transitions to downstream consumers.
type EventPublisher interface {
	PublishStatus(ctx Context, evt OrderStatusEvent) error
}

// Context is an alias so ports read naturally; adapters pass context.Context
// through unchanged.
type Context = context.Context
