package service

import (
	"context"
	"fmt"

	"marketplace/internal/apperr"
	"marketplace/internal/models"
	"marketplace/internal/store"
	"marketplace/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService keeps the one payment record per order in step with order events
type PaymentService struct {
	repo   store.Repository
	logger *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(repo store.Repository) *PaymentService {
	return &PaymentService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// HandleOrderPlaced opens a pending payment for a newly placed order
func (ps *PaymentService) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleOrderPlaced")
	defer span.End()

	return ps.once(ctx, event.BaseEvent, func(q store.Queries) error {
		payment := &models.Payment{
			OrderID:    event.OrderID,
			PaymentRef: fmt.Sprintf("PAY-%s", uuid.New().String()),
			Method:     models.PaymentMethodUPI,
			Status:     models.PaymentStatusPending,
		}
		created, err := q.CreatePayment(ctx, payment)
		if err != nil {
			return err
		}
		if created {
			util.PaymentsCreatedTotal.Inc()
			ps.logger.Info("Payment opened",
				zap.Int64("order_id", event.OrderID),
				zap.String("payment_id", payment.PaymentRef),
				zap.String("amount", event.TotalAmount.StringFixed(2)))
		}
		return nil
	})
}

// HandleOrderCancelled fails the pending payment of a cancelled order.
// Completed payments are left alone.
func (ps *PaymentService) HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleOrderCancelled")
	defer span.End()

	return ps.once(ctx, event.BaseEvent, func(q store.Queries) error {
		failed, err := q.TransitionPayment(ctx, event.OrderID, models.PaymentStatusPending, models.PaymentStatusFailed)
		if err != nil {
			return err
		}
		if failed {
			util.PaymentsFailedTotal.Inc()
			ps.logger.Info("Payment failed by cancellation", zap.Int64("order_id", event.OrderID))
		}
		return nil
	})
}

// once applies fn and records the event in one transaction, skipping events
// that were already applied.
func (ps *PaymentService) once(ctx context.Context, event models.BaseEvent, fn func(q store.Queries) error) error {
	processed, err := ps.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		ps.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	return ps.repo.InTx(ctx, func(q store.Queries) error {
		if err := fn(q); err != nil {
			return err
		}
		return q.MarkEventProcessed(ctx, event.EventID, event.EventType)
	})
}

// GetPayment returns the payment of an order the customer owns
func (ps *PaymentService) GetPayment(ctx context.Context, p models.Principal, orderID int64) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.GetPayment")
	defer span.End()

	if err := requireCustomer(p); err != nil {
		return nil, err
	}

	order, err := ps.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != p.CustomerID {
		return nil, apperr.NotFoundf("order %d not found", orderID)
	}
	return ps.repo.GetPaymentByOrderID(ctx, orderID)
}
