package service

import (
	"context"

	"marketplace/internal/apperr"
	"marketplace/internal/models"
	"marketplace/internal/store"
	"marketplace/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService manages the single staging cart of each customer
type CartService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(repo store.Repository) *CartService {
	return &CartService{repo: repo, logger: util.GetLogger()}
}

// GetCart returns the customer's cart with live prices, creating it on first access
func (s *CartService) GetCart(ctx context.Context, p models.Principal) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	if err := requireCustomer(p); err != nil {
		return nil, err
	}

	cart, err := s.repo.GetOrCreateCart(ctx, p.CustomerID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	cart.TotalPrice = TotalPrice(items)
	return cart, nil
}

// TotalPrice sums the live subtotals of the cart lines
func TotalPrice(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func checkQuantity(quantity int) error {
	if quantity < 1 {
		return apperr.InvalidInput("quantity", "quantity must be at least 1")
	}
	if quantity > models.MaxItemQuantity {
		return apperr.InvalidInput("quantity", "quantity must be at most %d", models.MaxItemQuantity)
	}
	return nil
}

// AddItem adds quantity of a product to the cart. Adding a product that is
// already in the cart increases that line; stock is not checked here.
// The bool reports whether a new line was created.
func (s *CartService) AddItem(ctx context.Context, p models.Principal, productID int64, quantity int) (*models.CartItem, bool, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if err := requireCustomer(p); err != nil {
		return nil, false, err
	}
	if productID <= 0 {
		return nil, false, apperr.InvalidInput("product_id", "product_id is required")
	}
	if err := checkQuantity(quantity); err != nil {
		return nil, false, err
	}

	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, false, err
	}

	cart, err := s.repo.GetOrCreateCart(ctx, p.CustomerID)
	if err != nil {
		return nil, false, err
	}

	item, created, err := s.repo.AddCartItem(ctx, cart.ID, productID, quantity)
	if err != nil {
		return nil, false, err
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	s.logger.Debug("Cart item added",
		zap.Int64("cart_id", cart.ID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", item.Quantity),
		zap.Bool("created", created))
	return item, created, nil
}

// UpdateItem sets the quantity of a line that must belong to the caller's cart
func (s *CartService) UpdateItem(ctx context.Context, p models.Principal, itemID int64, quantity int) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	if err := requireCustomer(p); err != nil {
		return nil, err
	}
	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}

	cart, err := s.repo.GetOrCreateCart(ctx, p.CustomerID)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.UpdateCartItemQuantity(ctx, cart.ID, itemID, quantity)
	if err != nil {
		return nil, err
	}

	util.CartMutationsTotal.WithLabelValues("update").Inc()
	return item, nil
}

// RemoveItem deletes a line from the caller's cart. Removing a missing line succeeds.
func (s *CartService) RemoveItem(ctx context.Context, p models.Principal, itemID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	if err := requireCustomer(p); err != nil {
		return err
	}

	cart, err := s.repo.GetOrCreateCart(ctx, p.CustomerID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteCartItem(ctx, cart.ID, itemID); err != nil {
		return err
	}

	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	return nil
}
