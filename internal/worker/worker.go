package worker

import (
	"context"

	"marketplace/internal/broker"
	"marketplace/internal/models"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// Consumer is the Kafka consumer the worker drains
type Consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// PaymentHandler reacts to order lifecycle events
type PaymentHandler interface {
	HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// PaymentWorker keeps payments in step with the order topic
type PaymentWorker struct {
	consumer     Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer Consumer, payments PaymentHandler) *PaymentWorker {
	logger := util.GetLogger()

	eventHandler := broker.NewEventHandler(logger)
	eventHandler.OnOrderPlaced(payments.HandleOrderPlaced)
	eventHandler.OnOrderCancelled(payments.HandleOrderCancelled)

	return &PaymentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start blocks consuming events until ctx is cancelled
func (pw *PaymentWorker) Start(ctx context.Context) error {
	pw.logger.Info("Starting payment worker")
	return pw.consumer.StartConsuming(ctx, pw.eventHandler.HandleMessage)
}

// Stop stops the payment worker
func (pw *PaymentWorker) Stop() error {
	pw.logger.Info("Stopping payment worker")
	return pw.consumer.Close()
}
