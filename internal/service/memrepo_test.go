package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketplace/internal/apperr"
	"marketplace/internal/models"
	"marketplace/internal/redisclient"
	"marketplace/internal/store"

	"github.com/shopspring/decimal"
)

// memRepo is an in-memory store.Repository. InTx holds txMu for the whole
// transaction and restores a snapshot when fn fails, so transactions are
// serialized and all-or-nothing like the row-locked Postgres paths.
type memRepo struct {
	mu   sync.Mutex
	txMu sync.Mutex
	d    *memData

	// failReconcile makes ReconcileOrderTotal return an error
	failReconcile bool
}

type memData struct {
	seq        int64
	products   map[int64]models.Product
	addresses  map[int64]models.Address
	carts      map[int64]models.Cart
	cartItems  map[int64]models.CartItem
	orders     map[int64]models.Order
	orderItems map[int64]models.OrderItem
	payments   map[int64]models.Payment
	events     map[string]string
}

var _ store.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{d: &memData{
		products:   map[int64]models.Product{},
		addresses:  map[int64]models.Address{},
		carts:      map[int64]models.Cart{},
		cartItems:  map[int64]models.CartItem{},
		orders:     map[int64]models.Order{},
		orderItems: map[int64]models.OrderItem{},
		payments:   map[int64]models.Payment{},
		events:     map[string]string{},
	}}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memData) clone() *memData {
	return &memData{
		seq:        d.seq,
		products:   cloneMap(d.products),
		addresses:  cloneMap(d.addresses),
		carts:      cloneMap(d.carts),
		cartItems:  cloneMap(d.cartItems),
		orders:     cloneMap(d.orders),
		orderItems: cloneMap(d.orderItems),
		payments:   cloneMap(d.payments),
		events:     cloneMap(d.events),
	}
}

func (d *memData) next() (int64, time.Time) {
	d.seq++
	return d.seq, time.Unix(1700000000+d.seq, 0).UTC()
}

func (r *memRepo) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	snapshot := r.d.clone()
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.d = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

// seeding helpers

func (r *memRepo) addProduct(vendorID int64, name, price string, stock int) models.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, now := r.d.next()
	p := models.Product{
		ID: id, VendorID: vendorID, Name: name, Price: decimal.RequireFromString(price),
		Stock: stock, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	r.d.products[id] = p
	return p
}

func (r *memRepo) setPrice(productID int64, price string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.d.products[productID]
	p.Price = decimal.RequireFromString(price)
	r.d.products[productID] = p
}

func (r *memRepo) stock(productID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.products[productID].Stock
}

func (r *memRepo) addAddress(customerID int64) models.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, now := r.d.next()
	a := models.Address{
		ID: id, CustomerID: customerID, Line: "1 Main St", City: "Pune", State: "MH",
		Pincode: "411001", IsDefault: true, CreatedAt: now, UpdatedAt: now,
	}
	r.d.addresses[id] = a
	return a
}

func (r *memRepo) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.d.orders)
}

func (r *memRepo) setItemStatus(itemID int64, status models.ItemStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it := r.d.orderItems[itemID]
	it.Status = status
	r.d.orderItems[itemID] = it
}

// catalog

func (r *memRepo) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.d.products[id]
	if !ok {
		return nil, apperr.NotFoundf("product with id %d not found", id)
	}
	return &p, nil
}

func (r *memRepo) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int64]bool{}
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := r.d.products[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) LockProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	return r.GetProductsByIDs(ctx, ids)
}

func (r *memRepo) DecrementStock(_ context.Context, productID int64, quantity int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.d.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	r.d.products[productID] = p
	return true, nil
}

// carts

func (r *memRepo) GetOrCreateCart(_ context.Context, customerID int64) (*models.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.d.carts {
		if c.CustomerID == customerID {
			return &c, nil
		}
	}
	id, now := r.d.next()
	c := models.Cart{ID: id, CustomerID: customerID, CreatedAt: now, UpdatedAt: now}
	r.d.carts[id] = c
	return &c, nil
}

func (r *memRepo) LockCart(_ context.Context, customerID int64) (*models.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.d.carts {
		if c.CustomerID == customerID {
			return &c, nil
		}
	}
	return nil, apperr.NotFoundf("cart not found")
}

func (r *memRepo) joinCartItem(ci models.CartItem) models.CartItem {
	p := r.d.products[ci.ProductID]
	ci.ProductName = p.Name
	ci.UnitPrice = p.Price
	return ci
}

func (r *memRepo) ListCartItems(_ context.Context, cartID int64) ([]models.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.CartItem{}
	for _, ci := range r.d.cartItems {
		if ci.CartID == cartID {
			out = append(out, r.joinCartItem(ci))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) AddCartItem(_ context.Context, cartID, productID int64, quantity int) (*models.CartItem, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ci := range r.d.cartItems {
		if ci.CartID == cartID && ci.ProductID == productID {
			if ci.Quantity+quantity > models.MaxItemQuantity {
				return nil, false, apperr.InvalidInput("quantity", "cart quantity of product %d must be at most %d",
					productID, models.MaxItemQuantity)
			}
			ci.Quantity += quantity
			r.d.cartItems[id] = ci
			out := r.joinCartItem(ci)
			return &out, false, nil
		}
	}
	id, _ := r.d.next()
	ci := models.CartItem{ID: id, CartID: cartID, ProductID: productID, Quantity: quantity}
	r.d.cartItems[id] = ci
	out := r.joinCartItem(ci)
	return &out, true, nil
}

func (r *memRepo) UpdateCartItemQuantity(_ context.Context, cartID, itemID int64, quantity int) (*models.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ci, ok := r.d.cartItems[itemID]
	if !ok || ci.CartID != cartID {
		return nil, apperr.NotFoundf("cart item %d not found", itemID)
	}
	ci.Quantity = quantity
	r.d.cartItems[itemID] = ci
	out := r.joinCartItem(ci)
	return &out, nil
}

func (r *memRepo) DeleteCartItem(_ context.Context, cartID, itemID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ci, ok := r.d.cartItems[itemID]; ok && ci.CartID == cartID {
		delete(r.d.cartItems, itemID)
	}
	return nil
}

func (r *memRepo) ClearCart(_ context.Context, cartID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, ci := range r.d.cartItems {
		if ci.CartID == cartID {
			delete(r.d.cartItems, id)
			n++
		}
	}
	return n, nil
}

// orders

func (r *memRepo) CreateOrder(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, now := r.d.next()
	order.ID, order.CreatedAt, order.UpdatedAt = id, now, now
	stored := *order
	stored.Items = nil
	r.d.orders[id] = stored
	return nil
}

func (r *memRepo) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.d.orders[id]
	if !ok {
		return nil, apperr.NotFoundf("order %d not found", id)
	}
	return &o, nil
}

func (r *memRepo) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return r.GetOrder(ctx, id)
}

func (r *memRepo) ListOrdersByCustomer(_ context.Context, customerID int64) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Order{}
	for _, o := range r.d.orders {
		if o.CustomerID == customerID {
			o.Items = r.itemsOf(o.ID)
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memRepo) UpdateOrder(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.d.orders[order.ID]
	if !ok {
		return apperr.NotFoundf("order %d not found", order.ID)
	}
	o.Status, o.AddressID, o.IsActive = order.Status, order.AddressID, order.IsActive
	r.d.orders[order.ID] = o
	return nil
}

func (r *memRepo) ReconcileOrderTotal(_ context.Context, orderID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReconcile {
		return decimal.Zero, errors.New("connection reset by peer")
	}
	o, ok := r.d.orders[orderID]
	if !ok {
		return decimal.Zero, apperr.NotFoundf("order %d not found", orderID)
	}
	total := decimal.Zero
	for _, it := range r.d.orderItems {
		if it.OrderID == orderID {
			total = total.Add(it.Subtotal())
		}
	}
	o.TotalAmount = total
	r.d.orders[orderID] = o
	return total, nil
}

// order items

func (r *memRepo) InsertOrderItem(_ context.Context, item *models.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.d.orderItems {
		if it.OrderID == item.OrderID && it.ProductID == item.ProductID {
			return fmt.Errorf("insert order item: duplicate (order, product)")
		}
	}
	id, now := r.d.next()
	item.ID, item.CreatedAt, item.UpdatedAt = id, now, now
	r.d.orderItems[id] = *item
	return nil
}

func (r *memRepo) joinOrderItem(it models.OrderItem) models.OrderItem {
	p := r.d.products[it.ProductID]
	it.ProductName = p.Name
	it.ProductVendorID = p.VendorID
	return it
}

func (r *memRepo) itemsOf(orderID int64) []models.OrderItem {
	out := []models.OrderItem{}
	for _, it := range r.d.orderItems {
		if it.OrderID == orderID {
			out = append(out, r.joinOrderItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) GetOrderItem(_ context.Context, id int64) (*models.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.d.orderItems[id]
	if !ok {
		return nil, apperr.NotFoundf("order item %d not found", id)
	}
	it = r.joinOrderItem(it)
	return &it, nil
}

func (r *memRepo) ListOrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.itemsOf(orderID), nil
}

func (r *memRepo) ListOrderItemsByVendor(_ context.Context, vendorID int64) ([]models.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.OrderItem{}
	for _, it := range r.d.orderItems {
		if r.d.products[it.ProductID].VendorID == vendorID {
			out = append(out, r.joinOrderItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memRepo) ListRecentVendorItems(ctx context.Context, vendorID int64, filter models.VendorItemFilter, limit int) ([]models.OrderItem, error) {
	all, err := r.ListOrderItemsByVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	out := []models.OrderItem{}
	for _, it := range all {
		if len(out) == limit {
			break
		}
		switch filter {
		case models.VendorItemsPending:
			if it.Status.Terminal() {
				continue
			}
		case models.VendorItemsCompleted:
			if it.Status != models.ItemStatusDelivered {
				continue
			}
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *memRepo) updateItem(itemID int64, fn func(*models.OrderItem)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.d.orderItems[itemID]
	if !ok {
		return apperr.NotFoundf("order item %d not found", itemID)
	}
	fn(&it)
	r.d.orderItems[itemID] = it
	return nil
}

func (r *memRepo) UpdateOrderItemStatus(_ context.Context, itemID int64, status models.ItemStatus) error {
	return r.updateItem(itemID, func(it *models.OrderItem) { it.Status = status })
}

func (r *memRepo) UpdateOrderItemQuantity(_ context.Context, itemID int64, quantity int) error {
	return r.updateItem(itemID, func(it *models.OrderItem) { it.Quantity = quantity })
}

func (r *memRepo) DeleteOrderItem(_ context.Context, itemID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.orderItems[itemID]; !ok {
		return apperr.NotFoundf("order item %d not found", itemID)
	}
	delete(r.d.orderItems, itemID)
	return nil
}

func (r *memRepo) VendorItemStats(_ context.Context, vendorID int64) (*models.VendorStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s models.VendorStats
	for _, p := range r.d.products {
		if p.VendorID == vendorID {
			s.TotalProducts++
		}
	}
	for _, it := range r.d.orderItems {
		if r.d.products[it.ProductID].VendorID != vendorID {
			continue
		}
		s.TotalOrders++
		if !it.Status.Terminal() {
			s.PendingOrders++
		}
		if it.Status == models.ItemStatusDelivered {
			s.CompletedOrders++
		}
	}
	return &s, nil
}

// addresses

func (r *memRepo) GetAddress(_ context.Context, id int64) (*models.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.d.addresses[id]
	if !ok {
		return nil, apperr.NotFoundf("address %d not found", id)
	}
	return &a, nil
}

func (r *memRepo) ListDefaultAddresses(_ context.Context, customerID int64) ([]models.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Address{}
	for _, a := range r.d.addresses {
		if a.CustomerID == customerID && a.IsDefault {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) CreateAddress(_ context.Context, addr *models.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, now := r.d.next()
	addr.ID, addr.CreatedAt, addr.UpdatedAt = id, now, now
	r.d.addresses[id] = *addr
	return nil
}

func (r *memRepo) UnsetDefaultAddress(_ context.Context, customerID, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.d.addresses[id]
	if !ok || a.CustomerID != customerID {
		return apperr.NotFoundf("address %d not found", id)
	}
	a.IsDefault = false
	r.d.addresses[id] = a
	return nil
}

// payments

func (r *memRepo) CreatePayment(_ context.Context, payment *models.Payment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.d.payments[payment.OrderID]; ok {
		return false, nil
	}
	id, now := r.d.next()
	payment.ID, payment.CreatedAt, payment.UpdatedAt = id, now, now
	r.d.payments[payment.OrderID] = *payment
	return true, nil
}

func (r *memRepo) GetPaymentByOrderID(_ context.Context, orderID int64) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.d.payments[orderID]
	if !ok {
		return nil, apperr.NotFoundf("payment not found for order %d", orderID)
	}
	return &p, nil
}

func (r *memRepo) TransitionPayment(_ context.Context, orderID int64, from, to models.PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.d.payments[orderID]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	r.d.payments[orderID] = p
	return true, nil
}

func (r *memRepo) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.d.events[eventID]
	return ok, nil
}

func (r *memRepo) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.events[eventID] = eventType
	return nil
}

// recordingPublisher captures published events

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
	err    error
}

func (p *recordingPublisher) record(e any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishItemStatusChanged(_ context.Context, e *models.ItemStatusChangedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishOrderTotalReconciled(_ context.Context, e *models.OrderTotalReconciledEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// memIdempotency mirrors the Redis claim script

type memIdempotency struct {
	mu     sync.Mutex
	values map[string]int64 // 0 marks a pending claim
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{values: map[string]int64{}}
}

func (m *memIdempotency) key(customerID int64, key string) string {
	return fmt.Sprintf("%d:%s", customerID, key)
}

func (m *memIdempotency) ClaimIdempotencyKey(_ context.Context, customerID int64, key string, _ time.Duration) (redisclient.ClaimState, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[m.key(customerID, key)]
	switch {
	case !ok:
		m.values[m.key(customerID, key)] = 0
		return redisclient.Claimed, 0, nil
	case v == 0:
		return redisclient.InFlight, 0, nil
	default:
		return redisclient.Completed, v, nil
	}
}

func (m *memIdempotency) CompleteIdempotencyKey(_ context.Context, customerID int64, key string, orderID int64, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[m.key(customerID, key)] = orderID
	return nil
}

func (m *memIdempotency) ReleaseIdempotencyKey(_ context.Context, customerID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, m.key(customerID, key))
	return nil
}
