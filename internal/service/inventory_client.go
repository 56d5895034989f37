package service

import (
	"context"
	"fmt"

	"marketplace/internal/apperr"
	"marketplace/internal/models"
	"marketplace/internal/store"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// orderLine is one validated (product, quantity) pair of an order request
type orderLine struct {
	ProductID int64
	Quantity  int
}

// InventoryClient checks and consumes product stock for the orchestrator
type InventoryClient struct {
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient() *InventoryClient {
	return &InventoryClient{logger: util.GetLogger()}
}

// Validate checks every line against the catalog without locking. The first
// failing line, in request order, decides the error.
func (ic *InventoryClient) Validate(ctx context.Context, q store.Queries, lines []orderLine) (map[int64]models.Product, error) {
	products, err := q.GetProductsByIDs(ctx, productIDs(lines))
	if err != nil {
		return nil, err
	}
	return checkLines(lines, products)
}

// Reserve locks the products of lines, re-validates stock on the locked rows
// and decrements it. It must run inside a transaction.
func (ic *InventoryClient) Reserve(ctx context.Context, q store.Queries, lines []orderLine) (map[int64]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.Reserve")
	defer span.End()

	locked, err := q.LockProducts(ctx, productIDs(lines))
	if err != nil {
		return nil, err
	}

	byID, err := checkLines(lines, locked)
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		ok, err := q.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			// storage-level guard rejected the decrement
			p := byID[line.ProductID]
			util.StockRejectionsTotal.Inc()
			return nil, apperr.InsufficientStock(p.ID, p.Name, line.Quantity, p.Stock)
		}
	}

	ic.logger.Debug("Stock reserved", zap.Int("lines", len(lines)))
	return byID, nil
}

func checkLines(lines []orderLine, products []models.Product) (map[int64]models.Product, error) {
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, apperr.NotFoundf("product with id %d not found", line.ProductID)
		}
		if p.Stock < line.Quantity {
			util.StockRejectionsTotal.Inc()
			return nil, apperr.InsufficientStock(p.ID, p.Name, line.Quantity, p.Stock)
		}
	}
	return byID, nil
}

// mergeLines validates the requested items and folds duplicate product ids
// into one line, keeping first-seen order.
func mergeLines(items []OrderItemRequest) ([]orderLine, error) {
	lines := make([]orderLine, 0, len(items))
	index := make(map[int64]int, len(items))

	for i, it := range items {
		if it.ProductID <= 0 {
			return nil, apperr.InvalidInput(fmt.Sprintf("items[%d].product_id", i),
				"each item must include 'product_id' (item index %d)", i)
		}
		if it.Quantity < 1 {
			return nil, apperr.InvalidInput(fmt.Sprintf("items[%d].quantity", i),
				"quantity must be at least 1 (item index %d)", i)
		}
		if it.Quantity > models.MaxItemQuantity {
			return nil, apperr.InvalidInput(fmt.Sprintf("items[%d].quantity", i),
				"quantity must be at most %d (item index %d)", models.MaxItemQuantity, i)
		}
		if j, seen := index[it.ProductID]; seen {
			lines[j].Quantity += it.Quantity
			if lines[j].Quantity > models.MaxItemQuantity {
				return nil, apperr.InvalidInput(fmt.Sprintf("items[%d].quantity", i),
					"total quantity of product %d must be at most %d", it.ProductID, models.MaxItemQuantity)
			}
			continue
		}
		index[it.ProductID] = len(lines)
		lines = append(lines, orderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines, nil
}

func productIDs(lines []orderLine) []int64 {
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	return ids
}
