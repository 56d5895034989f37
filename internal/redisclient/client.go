package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/claim_idempotency.lua
var claimIdempotencyScript string

//go:embed scripts/complete_idempotency.lua
var completeIdempotencyScript string

const pendingMarker = "pending"

// ClaimState is the outcome of claiming an idempotency key
type ClaimState int

const (
	// Claimed means the caller owns the key and must complete or release it
	Claimed ClaimState = iota
	// InFlight means another request holds the key and has not finished
	InFlight
	// Completed means the key already maps to a created order
	Completed
)

type Client struct {
	rdb            *redis.Client
	claimScript    *redis.Script
	completeScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:            rdb,
		claimScript:    redis.NewScript(claimIdempotencyScript),
		completeScript: redis.NewScript(completeIdempotencyScript),
	}
}

// Ping checks connectivity for readiness probes
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func idempotencyKey(customerID int64, key string) string {
	return fmt.Sprintf("idempotency:order:%d:%s", customerID, key)
}

// ClaimIdempotencyKey atomically claims key for the customer. When the key
// was already completed the created order id is returned with Completed.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, customerID int64, key string, ttl time.Duration) (ClaimState, int64, error) {
	result, err := c.claimScript.Run(ctx, c.rdb,
		[]string{idempotencyKey(customerID, key)}, ttl.Milliseconds()).Result()
	if errors.Is(err, redis.Nil) {
		return Claimed, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("claim idempotency script failed: %w", err)
	}

	value, ok := result.(string)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected script result type %T", result)
	}
	if value == pendingMarker {
		return InFlight, 0, nil
	}

	orderID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("corrupt idempotency value %q: %w", value, err)
	}
	return Completed, orderID, nil
}

// CompleteIdempotencyKey records the order created under a claimed key
func (c *Client) CompleteIdempotencyKey(ctx context.Context, customerID int64, key string, orderID int64, ttl time.Duration) error {
	_, err := c.completeScript.Run(ctx, c.rdb,
		[]string{idempotencyKey(customerID, key)}, orderID, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("complete idempotency script failed: %w", err)
	}
	return nil
}

// ReleaseIdempotencyKey drops a claim so the request can be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, customerID int64, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(customerID, key)).Err()
}
