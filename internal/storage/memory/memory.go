// Package memory implements the Storage contract in process memory. It exists
// for tests; serialization is a single mutex, so WithTx degrades to holding
// the lock for the duration of fn.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/models"
)

// Store implements interfaces.Storage over in-process maps.
type Store struct {
	mu sync.Mutex

	users     map[int64]*models.User
	customers map[int64]*models.Customer
	services  map[int64]*models.Service
	orders    map[int64]*models.Order
	payments  map[int64]*models.Payment
	revoked   map[string]*models.RevokedToken

	nextID map[string]int64
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:     make(map[int64]*models.User),
		customers: make(map[int64]*models.Customer),
		services:  make(map[int64]*models.Service),
		orders:    make(map[int64]*models.Order),
		payments:  make(map[int64]*models.Payment),
		revoked:   make(map[string]*models.RevokedToken),
		nextID:    make(map[string]int64),
	}
}

func (s *Store) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// view gives a sub-store access to the shared maps. Views vended inside
// WithTx skip locking because the transaction already holds the mutex.
type view struct {
	s    *Store
	inTx bool
}

func (v view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

// Users returns the user store.
func (s *Store) Users() interfaces.UserStore { return &userStore{view{s: s}} }

// Customers returns the customer store.
func (s *Store) Customers() interfaces.CustomerStore { return &customerStore{view{s: s}} }

// Services returns the service store.
func (s *Store) Services() interfaces.ServiceStore { return &serviceStore{view{s: s}} }

// Orders returns the order store.
func (s *Store) Orders() interfaces.OrderStore { return &orderStore{view{s: s}} }

// Payments returns the payment store.
func (s *Store) Payments() interfaces.PaymentStore { return &paymentStore{view{s: s}} }

// Tokens returns the revocation store.
func (s *Store) Tokens() interfaces.TokenStore { return &tokenStore{view{s: s}} }

// txStore is the Storage value handed to WithTx callbacks. Its stores share
// the mutex the enclosing WithTx already holds.
type txStore struct{ s *Store }

func (t txStore) Users() interfaces.UserStore         { return &userStore{view{s: t.s, inTx: true}} }
func (t txStore) Customers() interfaces.CustomerStore { return &customerStore{view{s: t.s, inTx: true}} }
func (t txStore) Services() interfaces.ServiceStore   { return &serviceStore{view{s: t.s, inTx: true}} }
func (t txStore) Orders() interfaces.OrderStore       { return &orderStore{view{s: t.s, inTx: true}} }
func (t txStore) Payments() interfaces.PaymentStore   { return &paymentStore{view{s: t.s, inTx: true}} }
func (t txStore) Tokens() interfaces.TokenStore       { return &tokenStore{view{s: t.s, inTx: true}} }

func (t txStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.Storage) error) error {
	return fn(ctx, t)
}

func (t txStore) Close() error { return nil }

// WithTx serializes fn under the store mutex. There is no rollback: tests
// that need failure-path atomicity wrap the store or use the real database.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.Storage) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, txStore{s})
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

type userStore struct{ view }

func (u *userStore) Create(ctx context.Context, user *models.User) error {
	defer u.lock()()
	for _, existing := range u.s.users {
		if existing.Username == user.Username {
			return common.ErrDuplicate
		}
	}
	user.ID = u.s.id("users")
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	u.s.users[user.ID] = cloneUser(user)
	return nil
}

func (u *userStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	defer u.lock()()
	user, ok := u.s.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneUser(user), nil
}

func (u *userStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	defer u.lock()()
	for _, user := range u.s.users {
		if user.Username == username {
			return cloneUser(user), nil
		}
	}
	return nil, common.ErrNotFound
}

func (u *userStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer u.lock()()
	for _, user := range u.s.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return nil, common.ErrNotFound
}

func (u *userStore) Update(ctx context.Context, user *models.User) error {
	defer u.lock()()
	if _, ok := u.s.users[user.ID]; !ok {
		return common.ErrNotFound
	}
	user.UpdatedAt = time.Now().UTC()
	u.s.users[user.ID] = cloneUser(user)
	return nil
}

func (u *userStore) List(ctx context.Context, role string) ([]*models.User, error) {
	defer u.lock()()
	var users []*models.User
	for _, user := range u.s.users {
		if role != "" && user.Role != role {
			continue
		}
		users = append(users, cloneUser(user))
	}
	sortByID(users, func(u *models.User) int64 { return u.ID })
	return users, nil
}

type customerStore struct{ view }

func (c *customerStore) Create(ctx context.Context, customer *models.Customer) error {
	defer c.lock()()
	for _, existing := range c.s.customers {
		if existing.UserID == customer.UserID {
			return common.ErrDuplicate
		}
	}
	customer.ID = c.s.id("customers")
	customer.CreatedAt = time.Now().UTC()
	customer.UpdatedAt = customer.CreatedAt
	c.s.customers[customer.ID] = cloneCustomer(customer)
	return nil
}

func (c *customerStore) GetByID(ctx context.Context, id int64) (*models.Customer, error) {
	defer c.lock()()
	customer, ok := c.s.customers[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneCustomer(customer), nil
}

func (c *customerStore) GetByUserID(ctx context.Context, userID int64) (*models.Customer, error) {
	defer c.lock()()
	for _, customer := range c.s.customers {
		if customer.UserID == userID {
			return cloneCustomer(customer), nil
		}
	}
	return nil, common.ErrNotFound
}

func (c *customerStore) Update(ctx context.Context, customer *models.Customer) error {
	defer c.lock()()
	if _, ok := c.s.customers[customer.ID]; !ok {
		return common.ErrNotFound
	}
	customer.UpdatedAt = time.Now().UTC()
	c.s.customers[customer.ID] = cloneCustomer(customer)
	return nil
}

func (c *customerStore) List(ctx context.Context) ([]*models.Customer, error) {
	defer c.lock()()
	var customers []*models.Customer
	for _, customer := range c.s.customers {
		customers = append(customers, cloneCustomer(customer))
	}
	sortByID(customers, func(c *models.Customer) int64 { return c.ID })
	return customers, nil
}

type serviceStore struct{ view }

func (v *serviceStore) Create(ctx context.Context, service *models.Service) error {
	defer v.lock()()
	service.ID = v.s.id("services")
	service.CreatedAt = time.Now().UTC()
	service.UpdatedAt = service.CreatedAt
	v.s.services[service.ID] = cloneService(service)
	return nil
}

func (v *serviceStore) GetByID(ctx context.Context, id int64) (*models.Service, error) {
	defer v.lock()()
	service, ok := v.s.services[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneService(service), nil
}

func (v *serviceStore) Update(ctx context.Context, service *models.Service) error {
	defer v.lock()()
	if _, ok := v.s.services[service.ID]; !ok {
		return common.ErrNotFound
	}
	service.UpdatedAt = time.Now().UTC()
	v.s.services[service.ID] = cloneService(service)
	return nil
}

func (v *serviceStore) List(ctx context.Context, activeOnly bool) ([]*models.Service, error) {
	defer v.lock()()
	var services []*models.Service
	for _, service := range v.s.services {
		if activeOnly && !service.IsActive {
			continue
		}
		services = append(services, cloneService(service))
	}
	sortByID(services, func(s *models.Service) int64 { return s.ID })
	return services, nil
}

type orderStore struct{ view }

func (o *orderStore) Create(ctx context.Context, order *models.Order) error {
	defer o.lock()()
	for _, existing := range o.s.orders {
		if existing.OrderNumber == order.OrderNumber {
			return common.ErrDuplicate
		}
	}
	order.ID = o.s.id("orders")
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt
	for _, item := range order.Items {
		item.ID = o.s.id("order_items")
		item.OrderID = order.ID
		item.CreatedAt = order.CreatedAt
		item.UpdatedAt = order.CreatedAt
	}
	o.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (o *orderStore) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	defer o.lock()()
	order, ok := o.s.orders[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (o *orderStore) GetForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return o.GetByID(ctx, id)
}

func (o *orderStore) Update(ctx context.Context, order *models.Order) error {
	defer o.lock()()
	if _, ok := o.s.orders[order.ID]; !ok {
		return common.ErrNotFound
	}
	order.UpdatedAt = time.Now().UTC()
	o.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (o *orderStore) List(ctx context.Context, opts interfaces.OrderListOptions) ([]*models.Order, error) {
	defer o.lock()()
	var orders []*models.Order
	for _, order := range o.s.orders {
		if opts.CustomerID != 0 && order.CustomerID != opts.CustomerID {
			continue
		}
		if opts.Status != "" && order.OrderStatus != opts.Status {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	sortByID(orders, func(o *models.Order) int64 { return o.ID })
	return orders, nil
}

type paymentStore struct{ view }

func (p *paymentStore) Create(ctx context.Context, payment *models.Payment) error {
	defer p.lock()()
	for _, existing := range p.s.payments {
		if existing.Reference == payment.Reference {
			return common.ErrDuplicate
		}
	}
	payment.ID = p.s.id("payments")
	payment.CreatedAt = time.Now().UTC()
	payment.UpdatedAt = payment.CreatedAt
	p.s.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (p *paymentStore) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	defer p.lock()()
	for _, payment := range p.s.payments {
		if payment.Reference == reference {
			return clonePayment(payment), nil
		}
	}
	return nil, common.ErrNotFound
}

func (p *paymentStore) Update(ctx context.Context, payment *models.Payment) error {
	defer p.lock()()
	if _, ok := p.s.payments[payment.ID]; !ok {
		return common.ErrNotFound
	}
	payment.UpdatedAt = time.Now().UTC()
	p.s.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (p *paymentStore) ListByOrder(ctx context.Context, orderID int64) ([]*models.Payment, error) {
	defer p.lock()()
	var payments []*models.Payment
	for _, payment := range p.s.payments {
		if payment.OrderID == orderID {
			payments = append(payments, clonePayment(payment))
		}
	}
	sortByID(payments, func(p *models.Payment) int64 { return p.ID })
	return payments, nil
}

func (p *paymentStore) SuccessfulAmounts(ctx context.Context, orderID int64) ([]decimal.Decimal, error) {
	defer p.lock()()
	var ids []int64
	for id, payment := range p.s.payments {
		if payment.OrderID == orderID && payment.Status == models.PaymentSuccess {
			ids = append(ids, id)
		}
	}
	sortByID(ids, func(id int64) int64 { return id })
	var amounts []decimal.Decimal
	for _, id := range ids {
		amounts = append(amounts, p.s.payments[id].Amount)
	}
	return amounts, nil
}

type tokenStore struct{ view }

func (t *tokenStore) Revoke(ctx context.Context, token *models.RevokedToken) error {
	defer t.lock()()
	if _, ok := t.s.revoked[token.JTI]; ok {
		return nil
	}
	token.ID = t.s.id("revoked_tokens")
	token.RevokedAt = time.Now().UTC()
	clone := *token
	t.s.revoked[token.JTI] = &clone
	return nil
}

func (t *tokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	defer t.lock()()
	_, ok := t.s.revoked[jti]
	return ok, nil
}

func sortByID[T any](items []T, id func(T) int64) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}

func cloneUser(u *models.User) *models.User {
	c := *u
	return &c
}

func cloneCustomer(in *models.Customer) *models.Customer {
	c := *in
	return &c
}

func cloneService(in *models.Service) *models.Service {
	c := *in
	return &c
}

func cloneOrder(in *models.Order) *models.Order {
	c := *in
	c.Items = make([]*models.OrderItem, len(in.Items))
	for i, item := range in.Items {
		ci := *item
		c.Items[i] = &ci
	}
	return &c
}

func clonePayment(in *models.Payment) *models.Payment {
	c := *in
	if in.Metadata != nil {
		c.Metadata = make(map[string]string, len(in.Metadata))
		for k, v := range in.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
