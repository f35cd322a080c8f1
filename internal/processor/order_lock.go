package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/group-factory/pkg/logger"
	"github.com/nimasrn/group-factory/pkg/redis"
)

var (
	ErrAlreadyFulfilled  = errors.New("order already fulfilled")
	ErrLockHeld          = errors.New("order is being fulfilled elsewhere")
	ErrLockAcquireFailed = errors.New("failed to acquire fulfillment lock")
)

type LockConfig struct {
	// LockTTL bounds how long a crashed runner can block an order. Runners
	// refresh it between groups.
	LockTTL time.Duration

	FinishedTTL time.Duration

	LockKeyPrefix string

	FinishedKeyPrefix string
}

func DefaultLockConfig() LockConfig {
	return LockConfig{
		LockTTL:           10 * time.Minute,
		FinishedTTL:       7 * 24 * time.Hour,
		LockKeyPrefix:     "order:lock:",
		FinishedKeyPrefix: "order:finished:",
	}
}

// OrderLock guarantees at most one fulfillment run per order across every
// process sharing the redis instance.
type OrderLock struct {
	redis  redis.RedisAdapter
	config LockConfig
}

func NewOrderLock(redisAdapter redis.RedisAdapter, config LockConfig) *OrderLock {
	return &OrderLock{
		redis:  redisAdapter,
		config: config,
	}
}

type Lease struct {
	OrderID int64
	token   []byte
	held    bool
}

func (l *OrderLock) lockKey(orderID int64) string {
	return l.config.LockKeyPrefix + strconv.FormatInt(orderID, 10)
}

func (l *OrderLock) finishedKey(orderID int64) string {
	return l.config.FinishedKeyPrefix + strconv.FormatInt(orderID, 10)
}

func (l *OrderLock) Acquire(ctx context.Context, orderID int64) (*Lease, error) {
	finished, err := l.IsFinished(ctx, orderID)
	if err != nil {
		// the order row is re-checked after locking, so keep going
		logger.Warn("Failed to check finished marker", "order_id", orderID, "error", err)
	} else if finished {
		return nil, ErrAlreadyFulfilled
	}

	token := []byte(uuid.NewString())
	acquired, err := l.redis.SetNX(ctx, l.lockKey(orderID), token, l.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}

	logger.Debug("Fulfillment lock acquired", "order_id", orderID, "lock_ttl", l.config.LockTTL)

	return &Lease{OrderID: orderID, token: token, held: true}, nil
}

// Refresh extends the lease. It fails with ErrLockHeld if the lease expired
// and someone else took the order.
func (l *OrderLock) Refresh(ctx context.Context, lease *Lease) error {
	if lease == nil || !lease.held {
		return ErrLockHeld
	}

	current, err := l.redis.Get(ctx, l.lockKey(lease.OrderID))
	if err != nil && !errors.Is(err, redis.NilError) {
		return err
	}
	if string(current) != string(lease.token) {
		lease.held = false
		return ErrLockHeld
	}

	_, err = l.redis.Expire(ctx, l.lockKey(lease.OrderID), l.config.LockTTL)
	return err
}

// MarkFinished records that the order reached a terminal state and releases the lease.
func (l *OrderLock) MarkFinished(ctx context.Context, lease *Lease) error {
	if err := l.redis.Set(ctx, l.finishedKey(lease.OrderID), []byte("1"), l.config.FinishedTTL); err != nil {
		logger.Error("Failed to mark order finished", "order_id", lease.OrderID, "error", err)
		return fmt.Errorf("failed to mark as finished: %w", err)
	}
	return l.Release(ctx, lease)
}

func (l *OrderLock) Release(ctx context.Context, lease *Lease) error {
	if lease == nil || !lease.held {
		return nil
	}

	if _, err := l.redis.DelIfEquals(ctx, l.lockKey(lease.OrderID), lease.token); err != nil {
		logger.Warn("Failed to release lock", "order_id", lease.OrderID, "error", err)
		return err
	}

	lease.held = false
	logger.Debug("Fulfillment lock released", "order_id", lease.OrderID)
	return nil
}

func (l *OrderLock) IsFinished(ctx context.Context, orderID int64) (bool, error) {
	exists, err := l.redis.Exist(ctx, l.finishedKey(orderID))
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (l *OrderLock) IsHeld(ctx context.Context, orderID int64) (bool, error) {
	exists, err := l.redis.Exist(ctx, l.lockKey(orderID))
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
