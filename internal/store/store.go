package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Queries is the set of storage operations available both on the pool and
// inside a transaction.
type Queries interface {
	// catalog
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	LockProducts(ctx context.Context, ids []int64) ([]models.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)

	// carts
	GetOrCreateCart(ctx context.Context, customerID int64) (*models.Cart, error)
	LockCart(ctx context.Context, customerID int64) (*models.Cart, error)
	ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error)
	AddCartItem(ctx context.Context, cartID, productID int64, quantity int) (*models.CartItem, bool, error)
	UpdateCartItemQuantity(ctx context.Context, cartID, itemID int64, quantity int) (*models.CartItem, error)
	DeleteCartItem(ctx context.Context, cartID, itemID int64) error
	ClearCart(ctx context.Context, cartID int64) (int64, error)

	// orders
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	ReconcileOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error)

	// order items
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderItem(ctx context.Context, id int64) (*models.OrderItem, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ListOrderItemsByVendor(ctx context.Context, vendorID int64) ([]models.OrderItem, error)
	ListRecentVendorItems(ctx context.Context, vendorID int64, filter models.VendorItemFilter, limit int) ([]models.OrderItem, error)
	UpdateOrderItemStatus(ctx context.Context, itemID int64, status models.ItemStatus) error
	UpdateOrderItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteOrderItem(ctx context.Context, itemID int64) error
	VendorItemStats(ctx context.Context, vendorID int64) (*models.VendorStats, error)

	// addresses
	GetAddress(ctx context.Context, id int64) (*models.Address, error)
	ListDefaultAddresses(ctx context.Context, customerID int64) ([]models.Address, error)
	CreateAddress(ctx context.Context, addr *models.Address) error
	UnsetDefaultAddress(ctx context.Context, customerID, id int64) error

	// payments
	CreatePayment(ctx context.Context, payment *models.Payment) (bool, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	TransitionPayment(ctx context.Context, orderID int64, from, to models.PaymentStatus) (bool, error)

	// consumer idempotency
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Repository is Queries plus transaction control
type Repository interface {
	Queries
	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Queries) error) error
}

// queries implements Queries over either the pool or a transaction
type queries struct {
	ext sqlx.ExtContext
}

type Store struct {
	*queries
	db *sqlx.DB
}

var _ Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db), nil
}

// New wraps an existing connection
func New(db *sqlx.DB) *Store {
	return &Store{queries: &queries{ext: db}, db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks connectivity for readiness probes
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a read-committed transaction; row locks taken with
// FOR UPDATE serialize the writers that matter.
func (s *Store) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
