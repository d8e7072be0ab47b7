package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/messaging"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/internal/repository/memory"
	service "github.com/Additional-Code/comanda/internal/service/order"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(ctx context.Context, key []byte, value []byte, headers ...messaging.Header) error {
	args := m.Called(ctx, key, value, headers)
	return args.Error(0)
}

func (m *MockPublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockPublisher) Topic() string { return "orders.lifecycle" }

type mapCache struct {
	mu    sync.Mutex
	items map[string][]byte
	hits  int
}

func newMapCache() *mapCache { return &mapCache{items: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	c.hits++
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

type OrderServiceTestSuite struct {
	suite.Suite

	ctx       context.Context
	store     *memory.Store
	cache     *mapCache
	publisher *MockPublisher
	svc       *service.Service

	customer         *entity.Customer
	inactiveCustomer *entity.Customer
	restaurant       *entity.Restaurant
	closedRestaurant *entity.Restaurant
	otherRestaurant  *entity.Restaurant
	feijoada         *entity.Product
	guarana          *entity.Product
	soldOut          *entity.Product
	foreign          *entity.Product
}

func TestOrderServiceTestSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceTestSuite))
}

func (s *OrderServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.cache = newMapCache()
	s.publisher = new(MockPublisher)
	s.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	cfg := config.Config{
		Cache: config.Cache{DefaultTTL: time.Minute},
		Messaging: config.Messaging{
			Enabled: true,
			Kafka:   config.Kafka{Topic: "orders.lifecycle"},
		},
	}
	s.svc = service.NewService(service.Params{
		UnitOfWork: s.store,
		Cache:      s.cache,
		Config:     cfg,
		Logger:     zap.NewNop(),
		Publisher:  s.publisher,
	})

	s.customer = s.store.AddCustomer(entity.Customer{Name: "Ana", Active: true})
	s.inactiveCustomer = s.store.AddCustomer(entity.Customer{Name: "Bruno", Active: false})
	s.restaurant = s.store.AddRestaurant(entity.Restaurant{Name: "Tia Zica", DeliveryFee: dec("5.00"), Active: true})
	s.closedRestaurant = s.store.AddRestaurant(entity.Restaurant{Name: "Fechado", DeliveryFee: dec("3.00"), Active: false})
	s.otherRestaurant = s.store.AddRestaurant(entity.Restaurant{Name: "Outro", DeliveryFee: dec("2.00"), Active: true})
	s.feijoada = s.store.AddProduct(entity.Product{RestaurantID: s.restaurant.ID, Name: "Feijoada", UnitPrice: dec("12.90"), Available: true})
	s.guarana = s.store.AddProduct(entity.Product{RestaurantID: s.restaurant.ID, Name: "Guarana", UnitPrice: dec("4.90"), Available: true})
	s.soldOut = s.store.AddProduct(entity.Product{RestaurantID: s.restaurant.ID, Name: "Moqueca", UnitPrice: dec("30.00"), Available: false})
	s.foreign = s.store.AddProduct(entity.Product{RestaurantID: s.otherRestaurant.ID, Name: "Pastel", UnitPrice: dec("6.00"), Available: true})
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (s *OrderServiceTestSuite) request(items ...service.ItemRequest) service.CreateRequest {
	return service.CreateRequest{
		CustomerID:   s.customer.ID,
		RestaurantID: s.restaurant.ID,
		Description:  "ring the bell",
		Items:        items,
	}
}

func item(p *entity.Product, qty int) service.ItemRequest {
	return service.ItemRequest{ProductID: p.ID, Quantity: qty}
}

// orderIn creates an order and forces it into status.
func (s *OrderServiceTestSuite) orderIn(status entity.OrderStatus) int64 {
	view, err := s.svc.Create(s.ctx, s.request(item(s.feijoada, 1)))
	s.Require().NoError(err)

	order, err := s.store.Orders().GetByID(s.ctx, view.ID)
	s.Require().NoError(err)
	order.Status = status
	s.Require().NoError(s.store.Orders().Save(s.ctx, order))
	s.Require().NoError(s.cache.Delete(s.ctx, service.CacheKey(view.ID)))
	return view.ID
}

func (s *OrderServiceTestSuite) statusOf(id int64) entity.OrderStatus {
	order, err := s.store.Orders().GetByID(s.ctx, id)
	s.Require().NoError(err)
	return order.Status
}

func (s *OrderServiceTestSuite) TestCreate_SingleLineScenario() {
	view, err := s.svc.Create(s.ctx, s.request(item(s.feijoada, 3)))
	s.Require().NoError(err)

	s.Equal("PENDING", view.Status)
	s.True(view.Active)
	s.Equal(s.customer.ID, view.CustomerID)
	s.Equal("38.70", view.Subtotal)
	s.Equal("5.00", view.DeliveryFee)
	s.Equal("43.70", view.Total)
	s.Equal("ring the bell", view.Description)
	s.Require().Len(view.Lines, 1)
	s.Equal("38.70", view.Lines[0].LineTotal)
	s.Equal("12.90", view.Lines[0].UnitPrice)
	s.Equal("Feijoada", view.Lines[0].ProductName)
	s.False(view.CreatedAt.IsZero())

	s.Equal(1, s.store.OrderCount())
	s.Equal(1, s.store.LineCount())
}

func (s *OrderServiceTestSuite) TestCreate_TwoLinesExactTotal() {
	view, err := s.svc.Create(s.ctx, s.request(item(s.feijoada, 3), item(s.guarana, 1)))
	s.Require().NoError(err)

	s.Equal("43.60", view.Subtotal)
	s.Equal("48.60", view.Total)
	s.Require().Len(view.Lines, 2)
	s.Equal(s.feijoada.ID, view.Lines[0].ProductID)
	s.Equal(s.guarana.ID, view.Lines[1].ProductID)
}

func (s *OrderServiceTestSuite) TestCreate_RepeatedProductKeepsSeparateLines() {
	view, err := s.svc.Create(s.ctx, s.request(item(s.feijoada, 1), item(s.feijoada, 2)))
	s.Require().NoError(err)

	s.Len(view.Lines, 2)
	s.Equal(2, s.store.LineCount())
	s.Equal("43.70", view.Total)
}

func (s *OrderServiceTestSuite) TestCreate_PublishesCreatedEvent() {
	publisher := new(MockPublisher)
	var (
		published service.Event
		headers   []messaging.Header
	)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			s.Require().NoError(json.Unmarshal(args.Get(2).([]byte), &published))
			headers = args.Get(3).([]messaging.Header)
		}).
		Return(nil).Once()
	svc := service.NewService(service.Params{
		UnitOfWork: s.store,
		Config:     config.Config{Messaging: config.Messaging{Enabled: true}},
		Publisher:  publisher,
	})

	view, err := svc.Create(s.ctx, s.request(item(s.feijoada, 3)))
	s.Require().NoError(err)

	publisher.AssertExpectations(s.T())
	s.Equal(service.EventOrderCreated, published.Type)
	s.NotEmpty(published.ID)
	s.Equal(view.ID, published.Order.ID)
	s.Equal("43.70", published.Order.Total)
	s.Equal("PENDING", published.Order.Status)
	s.Contains(headers, messaging.Header{Key: "event-type", Value: service.EventOrderCreated})
	s.Contains(headers, messaging.Header{Key: "event-id", Value: published.ID})
}

func (s *OrderServiceTestSuite) TestCreate_ValidationFailuresPersistNothing() {
	cases := []struct {
		name   string
		req    service.CreateRequest
		kind   errorbank.Kind
		reason errorbank.Reason
	}{
		{
			name: "unknown customer",
			req:  service.CreateRequest{CustomerID: 999, RestaurantID: s.restaurant.ID, Items: []service.ItemRequest{item(s.feijoada, 1)}},
			kind: errorbank.KindNotFound,
		},
		{
			name:   "inactive customer",
			req:    service.CreateRequest{CustomerID: s.inactiveCustomer.ID, RestaurantID: s.restaurant.ID, Items: []service.ItemRequest{item(s.feijoada, 1)}},
			kind:   errorbank.KindUnprocessableEntity,
			reason: service.ReasonCustomerInactive,
		},
		{
			name: "unknown restaurant",
			req:  service.CreateRequest{CustomerID: s.customer.ID, RestaurantID: 999, Items: []service.ItemRequest{item(s.feijoada, 1)}},
			kind: errorbank.KindNotFound,
		},
		{
			name:   "closed restaurant",
			req:    service.CreateRequest{CustomerID: s.customer.ID, RestaurantID: s.closedRestaurant.ID, Items: []service.ItemRequest{item(s.feijoada, 1)}},
			kind:   errorbank.KindUnprocessableEntity,
			reason: service.ReasonRestaurantClosed,
		},
		{
			name: "unknown product on second line",
			req:  s.request(item(s.feijoada, 1), service.ItemRequest{ProductID: 999, Quantity: 1}),
			kind: errorbank.KindNotFound,
		},
		{
			name:   "unavailable product",
			req:    s.request(item(s.feijoada, 1), item(s.soldOut, 1)),
			kind:   errorbank.KindUnprocessableEntity,
			reason: service.ReasonProductUnavailable,
		},
		{
			name:   "product from another restaurant",
			req:    s.request(item(s.feijoada, 2), item(s.foreign, 1)),
			kind:   errorbank.KindUnprocessableEntity,
			reason: service.ReasonProductRestaurantMismatch,
		},
		{
			name:   "first failing line wins",
			req:    s.request(item(s.soldOut, 1), service.ItemRequest{ProductID: 999, Quantity: 1}),
			kind:   errorbank.KindUnprocessableEntity,
			reason: service.ReasonProductUnavailable,
		},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			view, err := s.svc.Create(s.ctx, tc.req)

			s.Require().Error(err)
			s.Nil(view)
			s.True(errorbank.IsKind(err, tc.kind), "kind of %v", err)
			if tc.reason != "" {
				s.True(errorbank.HasReason(err, tc.reason), "reason of %v", err)
			}
			s.Zero(s.store.OrderCount())
			s.Zero(s.store.LineCount())
		})
	}
	s.publisher.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *OrderServiceTestSuite) TestCreate_NotFoundCarriesEntity() {
	_, err := s.svc.Create(s.ctx, s.request(service.ItemRequest{ProductID: 999, Quantity: 1}))

	appErr := errorbank.From(err)
	s.Equal(errorbank.KindNotFound, appErr.Kind())
	s.Equal("product", appErr.Details()["entity"])
	s.Equal(int64(999), appErr.Details()["id"])
}

func (s *OrderServiceTestSuite) TestCreate_LineFailureRollsBackHeader() {
	saved := 0
	s.store.SetLineHook(func(*entity.OrderLine) error {
		saved++
		if saved == 2 {
			return errors.New("connection reset")
		}
		return nil
	})

	_, err := s.svc.Create(s.ctx, s.request(item(s.feijoada, 1), item(s.guarana, 1), item(s.feijoada, 1)))

	s.Require().Error(err)
	s.True(errorbank.IsKind(err, errorbank.KindInternal))
	s.Zero(s.store.OrderCount())
	s.Zero(s.store.LineCount())
	s.publisher.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *OrderServiceTestSuite) TestCreate_MalformedRequests() {
	cases := map[string]service.CreateRequest{
		"no items":      s.request(),
		"zero quantity": s.request(item(s.feijoada, 0)),
		"no customer":   {RestaurantID: s.restaurant.ID, Items: []service.ItemRequest{item(s.feijoada, 1)}},
		"no product id": s.request(service.ItemRequest{Quantity: 1}),
	}
	for name, req := range cases {
		s.Run(name, func() {
			_, err := s.svc.Create(s.ctx, req)
			s.True(errorbank.IsKind(err, errorbank.KindBadRequest), "%v", err)
		})
	}
}

func (s *OrderServiceTestSuite) TestCreate_CapturesHistoricalPrice() {
	view, err := s.svc.Create(s.ctx, s.request(item(s.feijoada, 3)))
	s.Require().NoError(err)

	repriced := *s.feijoada
	repriced.UnitPrice = dec("20.00")
	s.store.AddProduct(repriced)
	s.Require().NoError(s.cache.Delete(s.ctx, service.CacheKey(view.ID)))

	again, err := s.svc.Get(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Equal("12.90", again.Lines[0].UnitPrice)
	s.Equal("43.70", again.Total)
}

func (s *OrderServiceTestSuite) TestChangeStatus_HappyPath() {
	view, err := s.svc.Create(s.ctx, s.request(item(s.feijoada, 1)))
	s.Require().NoError(err)

	for _, next := range []entity.OrderStatus{
		entity.StatusConfirmed,
		entity.StatusPreparing,
		entity.StatusOutForDelivery,
		entity.StatusDelivered,
	} {
		got, err := s.svc.ChangeStatus(s.ctx, view.ID, next)
		s.Require().NoError(err, "to %s", next)
		s.Equal(next.String(), got.Status)
		s.Len(got.Lines, 1)
		s.Equal(next, s.statusOf(view.ID))
	}
}

func (s *OrderServiceTestSuite) TestChangeStatus_RejectsEveryPairOutsideTable() {
	permitted := map[[2]entity.OrderStatus]bool{
		{entity.StatusPending, entity.StatusConfirmed}:        true,
		{entity.StatusPending, entity.StatusCancelled}:        true,
		{entity.StatusConfirmed, entity.StatusPreparing}:      true,
		{entity.StatusConfirmed, entity.StatusCancelled}:      true,
		{entity.StatusPreparing, entity.StatusOutForDelivery}: true,
		{entity.StatusOutForDelivery, entity.StatusDelivered}: true,
	}

	for _, from := range entity.OrderStatuses {
		for _, to := range entity.OrderStatuses {
			if permitted[[2]entity.OrderStatus{from, to}] {
				continue
			}
			id := s.orderIn(from)

			_, err := s.svc.ChangeStatus(s.ctx, id, to)

			s.Require().Error(err, "%s -> %s", from, to)
			s.True(errorbank.HasReason(err, service.ReasonInvalidTransition), "%s -> %s: %v", from, to, err)
			s.Equal(from, s.statusOf(id))
		}
	}
}

func (s *OrderServiceTestSuite) TestChangeStatus_PendingToPreparingDetails() {
	id := s.orderIn(entity.StatusPending)

	_, err := s.svc.ChangeStatus(s.ctx, id, entity.StatusPreparing)

	appErr := errorbank.From(err)
	s.Equal(service.ReasonInvalidTransition, appErr.Reason())
	s.Equal("PENDING", appErr.Details()["from"])
	s.Equal("PREPARING", appErr.Details()["to"])
}

func (s *OrderServiceTestSuite) TestChangeStatus_UnknownTarget() {
	id := s.orderIn(entity.StatusPending)

	_, err := s.svc.ChangeStatus(s.ctx, id, entity.OrderStatus("PRONTO"))

	s.True(errorbank.IsKind(err, errorbank.KindBadRequest))
	s.Equal(entity.StatusPending, s.statusOf(id))
}

func (s *OrderServiceTestSuite) TestCancel_Boundary() {
	cases := map[entity.OrderStatus]bool{
		entity.StatusPending:        true,
		entity.StatusConfirmed:      true,
		entity.StatusPreparing:      false,
		entity.StatusOutForDelivery: false,
		entity.StatusDelivered:      false,
		entity.StatusCancelled:      false,
	}
	for status, allowed := range cases {
		id := s.orderIn(status)

		view, err := s.svc.Cancel(s.ctx, id)

		if allowed {
			s.Require().NoError(err, status)
			s.Equal("CANCELLED", view.Status)
			s.Equal(entity.StatusCancelled, s.statusOf(id))
			continue
		}
		s.Require().Error(err, status)
		s.True(errorbank.HasReason(err, service.ReasonCannotCancel), "%s: %v", status, err)
		s.Contains(errorbank.From(err).Message(), string(status))
		s.Equal(status, s.statusOf(id))
	}
}

func (s *OrderServiceTestSuite) TestTerminalStatesAreImmutable() {
	for _, terminal := range []entity.OrderStatus{entity.StatusDelivered, entity.StatusCancelled} {
		id := s.orderIn(terminal)

		for _, to := range entity.OrderStatuses {
			_, err := s.svc.ChangeStatus(s.ctx, id, to)
			s.Error(err, "%s -> %s", terminal, to)
		}
		_, err := s.svc.Cancel(s.ctx, id)
		s.Error(err)
		s.Equal(terminal, s.statusOf(id))
	}
}

func (s *OrderServiceTestSuite) TestUnknownOrder() {
	_, err := s.svc.Get(s.ctx, 4242)
	s.True(errorbank.IsKind(err, errorbank.KindNotFound))

	_, err = s.svc.ChangeStatus(s.ctx, 4242, entity.StatusConfirmed)
	s.True(errorbank.IsKind(err, errorbank.KindNotFound))

	_, err = s.svc.Cancel(s.ctx, 4242)
	s.True(errorbank.IsKind(err, errorbank.KindNotFound))

	_, err = s.svc.SetActive(s.ctx, 4242, false)
	s.True(errorbank.IsKind(err, errorbank.KindNotFound))
}

func (s *OrderServiceTestSuite) TestGet_IdempotentRead() {
	created, err := s.svc.Create(s.ctx, s.request(item(s.feijoada, 3), item(s.guarana, 1)))
	s.Require().NoError(err)
	s.Require().NoError(s.cache.Delete(s.ctx, service.CacheKey(created.ID)))

	first, err := s.svc.Get(s.ctx, created.ID)
	s.Require().NoError(err)
	second, err := s.svc.Get(s.ctx, created.ID)
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal(1, s.cache.hits)
}

func (s *OrderServiceTestSuite) TestChangeStatus_EvictsCachedView() {
	created, err := s.svc.Create(s.ctx, s.request(item(s.feijoada, 1)))
	s.Require().NoError(err)
	_, err = s.svc.Get(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Contains(s.cache.items, service.CacheKey(created.ID))

	_, err = s.svc.ChangeStatus(s.ctx, created.ID, entity.StatusConfirmed)
	s.Require().NoError(err)
	s.NotContains(s.cache.items, service.CacheKey(created.ID))

	view, err := s.svc.Get(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("CONFIRMED", view.Status)
}

func (s *OrderServiceTestSuite) TestSetActive_EvictsAndPublishesUpdate() {
	created, err := s.svc.Create(s.ctx, s.request(item(s.feijoada, 1)))
	s.Require().NoError(err)
	_, err = s.svc.Get(s.ctx, created.ID)
	s.Require().NoError(err)

	publisher := new(MockPublisher)
	var published service.Event
	publisher.On("Publish", mock.Anything, []byte(fmt.Sprintf("order-%d", created.ID)), mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			s.Require().NoError(json.Unmarshal(args.Get(2).([]byte), &published))
		}).
		Return(nil).Once()
	svc := service.NewService(service.Params{
		UnitOfWork: s.store,
		Cache:      s.cache,
		Config:     config.Config{Messaging: config.Messaging{Enabled: true}},
		Publisher:  publisher,
	})

	_, err = svc.SetActive(s.ctx, created.ID, false)
	s.Require().NoError(err)

	publisher.AssertExpectations(s.T())
	s.Equal(service.EventOrderUpdated, published.Type)
	s.Equal(created.ID, published.Order.ID)
	s.False(published.Order.Active)
	s.Equal("PENDING", published.Order.Status)
	s.NotContains(s.cache.items, service.CacheKey(created.ID))

	view, err := svc.Get(s.ctx, created.ID)
	s.Require().NoError(err)
	s.False(view.Active)
}

func (s *OrderServiceTestSuite) TestSetActiveAndList() {
	first, err := s.svc.Create(s.ctx, s.request(item(s.feijoada, 1)))
	s.Require().NoError(err)
	second, err := s.svc.Create(s.ctx, s.request(item(s.guarana, 2)))
	s.Require().NoError(err)

	hidden, err := s.svc.SetActive(s.ctx, first.ID, false)
	s.Require().NoError(err)
	s.False(hidden.Active)
	s.Equal("PENDING", hidden.Status)

	active, err := s.svc.List(s.ctx, repository.ListFilter{ActiveOnly: true})
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(second.ID, active[0].ID)
	s.Empty(active[0].Lines)

	all, err := s.svc.List(s.ctx, repository.ListFilter{CustomerID: s.customer.ID})
	s.Require().NoError(err)
	s.Len(all, 2)

	_, err = s.svc.List(s.ctx, repository.ListFilter{Status: "PRONTO"})
	s.True(errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestCreate_ConcurrentRequests(t *testing.T) {
	store := memory.New()
	customer := store.AddCustomer(entity.Customer{Name: "Ana", Active: true})
	restaurant := store.AddRestaurant(entity.Restaurant{Name: "Tia Zica", DeliveryFee: dec("5.00"), Active: true})
	product := store.AddProduct(entity.Product{RestaurantID: restaurant.ID, Name: "Feijoada", UnitPrice: dec("12.90"), Available: true})
	svc := service.NewService(service.Params{UnitOfWork: store})

	const workers = 16
	ids := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := svc.Create(context.Background(), service.CreateRequest{
				CustomerID:   customer.ID,
				RestaurantID: restaurant.ID,
				Items:        []service.ItemRequest{{ProductID: product.ID, Quantity: 2}},
			})
			assert.NoError(t, err)
			if view != nil {
				ids <- view.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		seen[id] = true
	}
	require.Len(t, seen, workers)
	assert.Equal(t, workers, store.OrderCount())
	assert.Equal(t, workers, store.LineCount())
}

// gatedCache parks the first Set until release is closed.
type gatedCache struct {
	*mapCache
	setting chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *gatedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.once.Do(func() {
		close(c.setting)
		<-c.release
	})
	return c.mapCache.Set(ctx, key, value, ttl)
}

func TestGet_FillRacingStatusChangeIsDropped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	customer := store.AddCustomer(entity.Customer{Name: "Ana", Active: true})
	restaurant := store.AddRestaurant(entity.Restaurant{Name: "Tia Zica", DeliveryFee: dec("5.00"), Active: true})
	product := store.AddProduct(entity.Product{RestaurantID: restaurant.ID, Name: "Feijoada", UnitPrice: dec("12.90"), Available: true})
	gate := &gatedCache{mapCache: newMapCache(), setting: make(chan struct{}), release: make(chan struct{})}
	svc := service.NewService(service.Params{
		UnitOfWork: store,
		Cache:      gate,
		Config:     config.Config{Cache: config.Cache{DefaultTTL: time.Minute}},
	})

	created, err := svc.Create(ctx, service.CreateRequest{
		CustomerID:   customer.ID,
		RestaurantID: restaurant.ID,
		Items:        []service.ItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	inflight := make(chan string, 1)
	go func() {
		view, err := svc.Get(ctx, created.ID)
		assert.NoError(t, err)
		if view != nil {
			inflight <- view.Status
		}
		close(inflight)
	}()

	<-gate.setting
	_, err = svc.ChangeStatus(ctx, created.ID, entity.StatusConfirmed)
	require.NoError(t, err)
	close(gate.release)

	assert.Equal(t, "PENDING", <-inflight)

	view, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", view.Status)

	again, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", again.Status)
}

func TestChangeStatus_ConcurrentOnSameOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	customer := store.AddCustomer(entity.Customer{Name: "Ana", Active: true})
	restaurant := store.AddRestaurant(entity.Restaurant{Name: "Tia Zica", DeliveryFee: dec("5.00"), Active: true})
	product := store.AddProduct(entity.Product{RestaurantID: restaurant.ID, Name: "Feijoada", UnitPrice: dec("12.90"), Available: true})
	svc := service.NewService(service.Params{UnitOfWork: store})

	created, err := svc.Create(ctx, service.CreateRequest{
		CustomerID:   customer.ID,
		RestaurantID: restaurant.ID,
		Items:        []service.ItemRequest{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
		failures  = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := svc.ChangeStatus(ctx, created.ID, entity.StatusConfirmed); err != nil {
				failures <- err
				return
			}
			successes.Add(1)
		}()
	}
	close(start)
	wg.Wait()
	close(failures)

	assert.Equal(t, int32(1), successes.Load())
	for err := range failures {
		assert.True(t, errorbank.HasReason(err, service.ReasonInvalidTransition), "unexpected error: %v", err)
	}

	order, err := store.Orders().GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConfirmed, order.Status)
}
