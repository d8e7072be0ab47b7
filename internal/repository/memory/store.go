// Package memory is an in-process repository.UnitOfWork. Transactions run one
// at a time against a copy of the data that replaces the live copy on commit.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
)

// LineHook runs before each order line is stored; a non-nil error aborts the save.
type LineHook func(line *entity.OrderLine) error

// Store keeps every entity in maps.
type Store struct {
	txMu sync.Mutex // serialises writers

	mu       sync.RWMutex // guards data and lineHook
	data     *dataset
	lineHook LineHook
}

var _ repository.UnitOfWork = (*Store)(nil)

type dataset struct {
	customers   map[int64]entity.Customer
	restaurants map[int64]entity.Restaurant
	products    map[int64]entity.Product
	orders      map[int64]entity.Order
	lines       map[int64]entity.OrderLine
	lastID      int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: &dataset{
		customers:   make(map[int64]entity.Customer),
		restaurants: make(map[int64]entity.Restaurant),
		products:    make(map[int64]entity.Product),
		orders:      make(map[int64]entity.Order),
		lines:       make(map[int64]entity.OrderLine),
	}}
}

func (d *dataset) clone() *dataset {
	out := &dataset{
		customers:   make(map[int64]entity.Customer, len(d.customers)),
		restaurants: make(map[int64]entity.Restaurant, len(d.restaurants)),
		products:    make(map[int64]entity.Product, len(d.products)),
		orders:      make(map[int64]entity.Order, len(d.orders)),
		lines:       make(map[int64]entity.OrderLine, len(d.lines)),
		lastID:      d.lastID,
	}
	for k, v := range d.customers {
		out.customers[k] = v
	}
	for k, v := range d.restaurants {
		out.restaurants[k] = v
	}
	for k, v := range d.products {
		out.products[k] = v
	}
	for k, v := range d.orders {
		out.orders[k] = v
	}
	for k, v := range d.lines {
		out.lines[k] = v
	}
	return out
}

func (d *dataset) nextID() int64 {
	d.lastID++
	return d.lastID
}

// AddCustomer stores c, assigning an id when it has none.
func (s *Store) AddCustomer(c entity.Customer) *entity.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.data.nextID()
	}
	s.data.customers[c.ID] = c
	return &c
}

// AddRestaurant stores r, assigning an id when it has none.
func (s *Store) AddRestaurant(r entity.Restaurant) *entity.Restaurant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.data.nextID()
	}
	s.data.restaurants[r.ID] = r
	return &r
}

// AddProduct stores p, assigning an id when it has none.
func (s *Store) AddProduct(p entity.Product) *entity.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.data.nextID()
	}
	s.data.products[p.ID] = p
	return &p
}

// SetLineHook installs h for subsequent SaveLine calls.
func (s *Store) SetLineHook(h LineHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lineHook = h
}

// OrderCount returns the number of committed orders.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.orders)
}

// LineCount returns the number of committed order lines.
func (s *Store) LineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.lines)
}

func (s *Store) Orders() repository.Orders           { return &orders{view: s.live()} }
func (s *Store) Customers() repository.Customers     { return &customers{view: s.live()} }
func (s *Store) Restaurants() repository.Restaurants { return &restaurants{view: s.live()} }
func (s *Store) Products() repository.Products       { return &products{view: s.live()} }

// Do runs fn against a private copy and publishes the copy only when fn succeeds.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.data.clone()
	hook := s.lineHook
	s.mu.RUnlock()

	if err := fn(ctx, txStore{view: &view{data: work, hook: hook}}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

// live returns a view over the committed data. Writes made through it are
// serialised with transactions.
func (s *Store) live() *view {
	return &view{store: s}
}

type view struct {
	// Exactly one of store and data is set.
	store *Store
	data  *dataset
	hook  LineHook
}

func (v *view) read(fn func(d *dataset)) {
	if v.data != nil {
		fn(v.data)
		return
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	fn(v.store.data)
}

func (v *view) write(fn func(d *dataset, hook LineHook) error) error {
	if v.data != nil {
		return fn(v.data, v.hook)
	}
	v.store.txMu.Lock()
	defer v.store.txMu.Unlock()
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.data, v.store.lineHook)
}

type txStore struct {
	view *view
}

func (t txStore) Orders() repository.Orders           { return &orders{view: t.view} }
func (t txStore) Customers() repository.Customers     { return &customers{view: t.view} }
func (t txStore) Restaurants() repository.Restaurants { return &restaurants{view: t.view} }
func (t txStore) Products() repository.Products       { return &products{view: t.view} }

type customers struct{ view *view }

func (c *customers) GetByID(_ context.Context, id int64) (*entity.Customer, error) {
	var (
		out entity.Customer
		ok  bool
	)
	c.view.read(func(d *dataset) { out, ok = d.customers[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &out, nil
}

type restaurants struct{ view *view }

func (r *restaurants) GetByID(_ context.Context, id int64) (*entity.Restaurant, error) {
	var (
		out entity.Restaurant
		ok  bool
	)
	r.view.read(func(d *dataset) { out, ok = d.restaurants[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &out, nil
}

type products struct{ view *view }

func (p *products) GetByID(_ context.Context, id int64) (*entity.Product, error) {
	var (
		out entity.Product
		ok  bool
	)
	p.view.read(func(d *dataset) { out, ok = d.products[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &out, nil
}

type orders struct{ view *view }

func (o *orders) Save(_ context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	return o.view.write(func(d *dataset, _ LineHook) error {
		now := time.Now().UTC()
		if order.ID == 0 {
			order.ID = d.nextID()
			if order.CreatedAt.IsZero() {
				order.CreatedAt = now
			}
		} else if _, ok := d.orders[order.ID]; !ok {
			return repository.ErrNotFound
		}
		order.UpdatedAt = now
		d.orders[order.ID] = *order
		return nil
	})
}

func (o *orders) SaveLine(_ context.Context, line *entity.OrderLine) error {
	if line == nil {
		return errors.New("nil order line")
	}
	return o.view.write(func(d *dataset, hook LineHook) error {
		if _, ok := d.orders[line.OrderID]; !ok {
			return errors.New("order line references unknown order")
		}
		if hook != nil {
			if err := hook(line); err != nil {
				return err
			}
		}
		line.ID = d.nextID()
		d.lines[line.ID] = *line
		return nil
	})
}

func (o *orders) GetByID(_ context.Context, id int64) (*entity.Order, error) {
	var (
		out entity.Order
		ok  bool
	)
	o.view.read(func(d *dataset) { out, ok = d.orders[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &out, nil
}

// GetByIDForUpdate needs no lock: transactions already run one at a time.
func (o *orders) GetByIDForUpdate(ctx context.Context, id int64) (*entity.Order, error) {
	return o.GetByID(ctx, id)
}

func (o *orders) ListLines(_ context.Context, orderID int64) ([]entity.OrderLine, error) {
	out := make([]entity.OrderLine, 0)
	o.view.read(func(d *dataset) {
		for _, line := range d.lines {
			if line.OrderID == orderID {
				out = append(out, line)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (o *orders) List(_ context.Context, filter repository.ListFilter) ([]entity.Order, error) {
	out := make([]entity.Order, 0)
	o.view.read(func(d *dataset) {
		for _, order := range d.orders {
			if filter.CustomerID > 0 && order.CustomerID != filter.CustomerID {
				continue
			}
			if filter.Status != "" && order.Status != filter.Status {
				continue
			}
			if filter.ActiveOnly && !order.Active {
				continue
			}
			out = append(out, order)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []entity.Order{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
