package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	msgs      []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestPublishOrderPlaced(t *testing.T) {
	w := &fakeWriter{}
	pub := NewEventPublisher(&Producer{writer: w, logger: zap.NewNop()})

	err := pub.PublishOrderPlaced(context.Background(), &models.OrderPlacedEvent{
		OrderID:     12,
		CustomerID:  3,
		TotalAmount: decimal.RequireFromString("250.00"),
		Source:      "items",
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-12", string(w.msgs[0].Key))

	var got models.OrderPlacedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, models.EventTypeOrderPlaced, got.EventType)
	assert.NotEmpty(t, got.EventID)
	assert.True(t, decimal.RequireFromString("250").Equal(got.TotalAmount))
}

func TestPublishPropagatesWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	pub := NewEventPublisher(&Producer{writer: w, logger: zap.NewNop()})

	err := pub.PublishOrderCancelled(context.Background(), &models.OrderCancelledEvent{OrderID: 1})
	assert.ErrorContains(t, err, "broker down")
}

func encode(t *testing.T, v any) kafka.Message {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestHandleMessage_RoutesByType(t *testing.T) {
	h := NewEventHandler(zap.NewNop())
	var placed, cancelled []int64
	h.OnOrderPlaced(func(_ context.Context, e *models.OrderPlacedEvent) error {
		placed = append(placed, e.OrderID)
		return nil
	})
	h.OnOrderCancelled(func(_ context.Context, e *models.OrderCancelledEvent) error {
		cancelled = append(cancelled, e.OrderID)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, h.HandleMessage(ctx, encode(t, models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderPlaced}, OrderID: 5,
	})))
	require.NoError(t, h.HandleMessage(ctx, encode(t, models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderCancelled}, OrderID: 6,
	})))
	require.NoError(t, h.HandleMessage(ctx, encode(t, models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderStatusChanged}, OrderID: 7,
	})))

	assert.Equal(t, []int64{5}, placed)
	assert.Equal(t, []int64{6}, cancelled)
}

func TestHandleMessage_BadPayload(t *testing.T) {
	h := NewEventHandler(zap.NewNop())
	err := h.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}

func TestStartConsuming_RetriesFailedMessageBeforeCommitting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		msgs:   []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}},
		cancel: cancel,
	}
	c := NewConsumerWithReader(r, "order-events", zap.NewNop())
	c.SetRetryBackoff(time.Millisecond, 2*time.Millisecond)

	var handled []int64
	err := c.StartConsuming(ctx, func(_ context.Context, msg kafka.Message) error {
		handled = append(handled, msg.Offset)
		if msg.Offset == 2 && len(handled) < 4 {
			// offset 2 fails on its first and second attempt
			return errors.New("boom")
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []int64{1, 2, 2, 2, 3}, handled)
	require.Len(t, r.committed, 3)
	assert.Equal(t, int64(1), r.committed[0].Offset)
	assert.Equal(t, int64(2), r.committed[1].Offset)
	assert.Equal(t, int64(3), r.committed[2].Offset)
}

func TestStartConsuming_CancelDuringRetryLeavesMessageUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		msgs:   []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}},
		cancel: cancel,
	}
	c := NewConsumerWithReader(r, "order-events", zap.NewNop())
	c.SetRetryBackoff(time.Millisecond, time.Millisecond)

	attempts := 0
	err := c.StartConsuming(ctx, func(_ context.Context, msg kafka.Message) error {
		if msg.Offset != 2 {
			return nil
		}
		attempts++
		if attempts == 3 {
			cancel()
		}
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 3, attempts)
	require.Len(t, r.committed, 1)
	assert.Equal(t, int64(1), r.committed[0].Offset)
	require.Len(t, r.msgs, 1, "the consumer must not fetch past the failing message")
	assert.Equal(t, int64(3), r.msgs[0].Offset)
}
