// Package memory provides in-process implementations of the repository
// ports. They back the dev mode (no DB_URL) and the concurrency tests; the
// behavioral contract is identical to the postgres adapters, including the
// version counter and sticky terminal statuses.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/orderflow/internal/domain"
)

// ProductStore is an in-memory domain.ProductRepository.
type ProductStore struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

func NewProductStore() *ProductStore {
	return &ProductStore{items: map[string]domain.Product{}}
}

func (s *ProductStore) Create(_ domain.Context, p domain.Product) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.items[p.ID] = p
	return p.ID, nil
}

func (s *ProductStore) Update(_ domain.Context, p domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[p.ID]
	if !ok {
		return fmt.Errorf("op=product.update: %w", domain.ErrNotFound)
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.items[p.ID] = p
	return nil
}

func (s *ProductStore) Get(_ domain.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("op=product.get: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (s *ProductStore) List(_ domain.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// StockStore is an in-memory domain.StockRepository. The mutex serializes
// mutations, which upholds the CAS contract trivially: quantity never goes
// negative and version advances by one per successful write.
type StockStore struct {
	mu    sync.RWMutex
	items map[string]domain.Stock
}

func NewStockStore() *StockStore {
	return &StockStore{items: map[string]domain.Stock{}}
}

func (s *StockStore) Create(_ domain.Context, st domain.Stock) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Quantity < 0 {
		return "", fmt.Errorf("op=stock.create: %w: negative quantity", domain.ErrInvalidArgument)
	}
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	st.Version = 1
	st.CreatedAt, st.UpdatedAt = now, now
	s.items[st.ID] = st
	return st.ID, nil
}

func (s *StockStore) Update(_ domain.Context, st domain.Stock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[st.ID]
	if !ok {
		return fmt.Errorf("op=stock.update: %w", domain.ErrNotFound)
	}
	if st.Quantity < 0 {
		return fmt.Errorf("op=stock.update: %w: negative quantity", domain.ErrInvalidArgument)
	}
	cur.Quantity = st.Quantity
	cur.Version++
	cur.UpdatedAt = time.Now().UTC()
	s.items[st.ID] = cur
	return nil
}

func (s *StockStore) Get(_ domain.Context, id string) (domain.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.items[id]
	if !ok {
		return domain.Stock{}, fmt.Errorf("op=stock.get: %w", domain.ErrNotFound)
	}
	return st, nil
}

func (s *StockStore) List(_ domain.Context) ([]domain.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Stock, 0, len(s.items))
	for _, st := range s.items {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *StockStore) Reserve(_ domain.Context, id string, n int64) (domain.Stock, error) {
	if n <= 0 {
		return domain.Stock{}, fmt.Errorf("op=stock.reserve: %w: n must be positive", domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.items[id]
	if !ok {
		return domain.Stock{}, fmt.Errorf("op=stock.reserve: %w", domain.ErrNotFound)
	}
	if st.Quantity < n {
		return domain.Stock{}, fmt.Errorf("op=stock.reserve: %w: requested %d, available %d", domain.ErrInsufficientStock, n, st.Quantity)
	}
	st.Quantity -= n
	st.Version++
	st.UpdatedAt = time.Now().UTC()
	s.items[id] = st
	return st, nil
}

func (s *StockStore) Release(_ domain.Context, id string, n int64) (domain.Stock, error) {
	if n <= 0 {
		return domain.Stock{}, fmt.Errorf("op=stock.release: %w: n must be positive", domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.items[id]
	if !ok {
		return domain.Stock{}, fmt.Errorf("op=stock.release: %w", domain.ErrNotFound)
	}
	st.Quantity += n
	st.Version++
	st.UpdatedAt = time.Now().UTC()
	s.items[id] = st
	return st, nil
}

// OrderStore is an in-memory domain.OrderRepository with sticky terminal
// statuses.
type OrderStore struct {
	mu    sync.RWMutex
	items map[string]domain.Order
	seq   int64
}

func NewOrderStore() *OrderStore {
	return &OrderStore{items: map[string]domain.Order{}}
}

func (s *OrderStore) CreatePending(_ domain.Context, o domain.Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	o.Status = domain.OrderPending
	o.FailureReason = ""
	o.CreatedAt, o.UpdatedAt = now, now
	s.seq++
	// CreatedAt alone cannot break ties under heavy concurrency; nudge by
	// insertion order so ListByUser stays strictly newest-first.
	o.CreatedAt = o.CreatedAt.Add(time.Duration(s.seq))
	s.items[o.ID] = o
	return o.ID, nil
}

func (s *OrderStore) Get(_ domain.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.items[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("op=order.get: %w", domain.ErrNotFound)
	}
	return o, nil
}

func (s *OrderStore) ListByUser(_ domain.Context, userID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.items {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *OrderStore) MarkConfirmed(ctx domain.Context, id string) error {
	return s.markTerminal(id, domain.OrderConfirmed, "")
}

func (s *OrderStore) MarkFailed(ctx domain.Context, id string, reason string) error {
	return s.markTerminal(id, domain.OrderFailed, reason)
}

func (s *OrderStore) markTerminal(id string, status domain.OrderStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.items[id]
	if !ok {
		return fmt.Errorf("op=order.mark_terminal: %w", domain.ErrNotFound)
	}
	if o.Status.Terminal() {
		return fmt.Errorf("op=order.mark_terminal: status=%s: %w", o.Status, domain.ErrAlreadyTerminal)
	}
	o.Status = status
	o.FailureReason = reason
	o.UpdatedAt = time.Now().UTC()
	s.items[id] = o
	return nil
}
