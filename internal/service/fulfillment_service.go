package service

import (
	"context"
	"strings"

	"marketplace/internal/apperr"
	"marketplace/internal/models"
	"marketplace/internal/store"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// FulfillmentService drives per-item fulfillment for vendors
type FulfillmentService struct {
	repo           store.Repository
	policy         FulfillmentPolicy
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(repo store.Repository, policy FulfillmentPolicy, eventPublisher EventPublisher) *FulfillmentService {
	return &FulfillmentService{
		repo:           repo,
		policy:         policy,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

func allowedStatuses() string {
	names := make([]string, len(models.VendorSettableStatuses))
	for i, s := range models.VendorSettableStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// PatchItemStatus sets the fulfillment status of an item whose product the
// vendor owns.
func (s *FulfillmentService) PatchItemStatus(ctx context.Context, p models.Principal, itemID int64, status models.ItemStatus) (item *models.OrderItem, err error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.PatchItemStatus")
	defer func() { util.EndSpan(span, err) }()

	if err := requireVendor(p); err != nil {
		return nil, err
	}

	var oldStatus models.ItemStatus
	err = s.repo.InTx(ctx, func(q store.Queries) error {
		found, err := q.GetOrderItem(ctx, itemID)
		if err != nil {
			return err
		}

		// checks run on the item as read under the order row lock
		_, err = mutateOrderItems(ctx, q, found.OrderID, "item_status", func(*models.Order) error {
			var err error
			item, err = q.GetOrderItem(ctx, itemID)
			if err != nil {
				return err
			}
			if err := s.checkTransition(p, item, status); err != nil {
				return err
			}
			oldStatus = item.Status
			return q.UpdateOrderItemStatus(ctx, itemID, status)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	item.Status = status

	util.FulfillmentTransitionsTotal.WithLabelValues(string(status)).Inc()
	s.logger.Info("Order item status updated",
		zap.Int64("order_item_id", itemID),
		zap.Int64("vendor_id", p.VendorID),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(status)))

	logPublishError(s.logger, models.EventTypeItemStatusChanged, item.OrderID,
		s.eventPublisher.PublishItemStatusChanged(ctx, &models.ItemStatusChangedEvent{
			OrderID:     item.OrderID,
			OrderItemID: itemID,
			VendorID:    p.VendorID,
			OldStatus:   oldStatus,
			NewStatus:   status,
		}))
	return item, nil
}

func (s *FulfillmentService) checkTransition(p models.Principal, item *models.OrderItem, status models.ItemStatus) error {
	if item.ProductVendorID != p.VendorID {
		return apperr.Forbiddenf("order item %d does not belong to your products", item.ID)
	}
	if !status.VendorSettable() {
		return apperr.InvalidInput("status", "invalid status value. allowed: %s", allowedStatuses())
	}
	if status == models.ItemStatusCancelled && !s.policy.VendorCancel {
		return apperr.Forbiddenf("vendors may not cancel order items")
	}
	if s.policy.StrictOrder && !item.Status.Forward(status) {
		return apperr.Conflictf("cannot move order item from %s to %s", item.Status, status)
	}
	return nil
}

// ListItems returns the items placed against the vendor's products, newest first
func (s *FulfillmentService) ListItems(ctx context.Context, p models.Principal) ([]models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.ListItems")
	defer span.End()

	if err := requireVendor(p); err != nil {
		return nil, err
	}
	return s.repo.ListOrderItemsByVendor(ctx, p.VendorID)
}

// Dashboard returns the vendor's counters and the newest recent, pending
// and completed items.
func (s *FulfillmentService) Dashboard(ctx context.Context, p models.Principal) (*models.VendorDashboard, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.Dashboard")
	defer span.End()

	if err := requireVendor(p); err != nil {
		return nil, err
	}

	stats, err := s.repo.VendorItemStats(ctx, p.VendorID)
	if err != nil {
		return nil, err
	}
	dashboard := &models.VendorDashboard{Stats: *stats}

	lists := []struct {
		filter models.VendorItemFilter
		dst    *[]models.OrderItem
	}{
		{models.VendorItemsAll, &dashboard.RecentOrders},
		{models.VendorItemsPending, &dashboard.PendingOrders},
		{models.VendorItemsCompleted, &dashboard.CompletedOrders},
	}
	for _, l := range lists {
		items, err := s.repo.ListRecentVendorItems(ctx, p.VendorID, l.filter, models.DashboardListSize)
		if err != nil {
			return nil, err
		}
		*l.dst = items
	}
	return dashboard, nil
}
