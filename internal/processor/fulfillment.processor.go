package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gateway "github.com/nimasrn/group-factory/internal/gateways"
	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/pkg/logger"
	"github.com/nimasrn/group-factory/pkg/prom"
	"github.com/nimasrn/group-factory/pkg/worker"
)

const (
	disconnectTimeout      = 10 * time.Second
	connPurposeFulfillment = "fulfillment"
)

// InterruptedMessage is recorded on orders whose run died with the process.
const InterruptedMessage = "fulfillment interrupted before completion"

type OrderRepository interface {
	Get(ctx context.Context, id int64) (*model.Order, error)
	Update(ctx context.Context, id int64, update model.OrderUpdate) error
	FailUnfinished(ctx context.Context, id int64, message string) (bool, error)
	ListUnfinished(ctx context.Context) ([]*model.Order, error)
}

type GroupRepository interface {
	Create(ctx context.Context, group *model.Group) (*model.Group, error)
}

type AutoMessageRepository interface {
	Create(ctx context.Context, groupID int64, body string) (*model.AutoMessage, error)
}

type ConnectionRepository interface {
	GetActive(ctx context.Context, accountID int64) (*model.Connection, error)
}

type Locker interface {
	Acquire(ctx context.Context, orderID int64) (*Lease, error)
	Refresh(ctx context.Context, lease *Lease) error
	MarkFinished(ctx context.Context, lease *Lease) error
	Release(ctx context.Context, lease *Lease) error
}

type Executor interface {
	Submit(job worker.Job) error
}

type Config struct {
	// GroupDelay is the pause between two group indexes.
	GroupDelay time.Duration

	// MaxFloodWait is the longest rate-limit hint a channel creation waits
	// out before retrying once. Longer hints skip the group.
	MaxFloodWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		GroupDelay:   2 * time.Second,
		MaxFloodWait: 30 * time.Second,
	}
}

type FulfillmentProcessor struct {
	orders       OrderRepository
	groups       GroupRepository
	autoMessages AutoMessageRepository
	connections  ConnectionRepository
	dialer       gateway.Dialer
	lock         Locker
	executor     Executor
	config       Config
	metrics      *FulfillmentMetrics

	// orders submitted to the executor whose job has not returned yet
	inflight sync.Map

	messages func() []string
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewFulfillmentProcessor(
	orders OrderRepository,
	groups GroupRepository,
	autoMessages AutoMessageRepository,
	connections ConnectionRepository,
	dialer gateway.Dialer,
	lock Locker,
	executor Executor,
	config Config,
) *FulfillmentProcessor {
	return &FulfillmentProcessor{
		orders:       orders,
		groups:       groups,
		autoMessages: autoMessages,
		connections:  connections,
		dialer:       dialer,
		lock:         lock,
		executor:     executor,
		config:       config,
		metrics:      NewFulfillmentMetrics(),
		messages:     FillerMessages,
		sleep:        sleepContext,
	}
}

func (p *FulfillmentProcessor) Metrics() *FulfillmentMetrics {
	return p.metrics
}

// Schedule queues the order's fulfillment run. It never waits for the run.
func (p *FulfillmentProcessor) Schedule(order *model.Order) error {
	orderID := order.ID
	p.inflight.Store(orderID, struct{}{})
	err := p.executor.Submit(func(ctx context.Context) {
		defer p.inflight.Delete(orderID)
		if err := p.Fulfill(ctx, orderID); err != nil &&
			!errors.Is(err, ErrLockHeld) && !errors.Is(err, ErrAlreadyFulfilled) {
			logger.Error("Fulfillment run ended with error", "order_id", orderID, "error", err)
		}
	})
	if err != nil {
		p.inflight.Delete(orderID)
		return fmt.Errorf("submit fulfillment: %w", err)
	}

	logger.Debug("Fulfillment scheduled", "order_id", orderID)
	return nil
}

// Fulfill creates the order's groups. A run that finds the order locked, or
// already terminal, returns ErrLockHeld or ErrAlreadyFulfilled and touches
// nothing. Every other outcome leaves the order completed or failed, including
// a run whose context was cancelled before it started.
func (p *FulfillmentProcessor) Fulfill(ctx context.Context, orderID int64) error {
	lease, err := p.lock.Acquire(context.WithoutCancel(ctx), orderID)
	if err != nil {
		if errors.Is(err, ErrLockHeld) || errors.Is(err, ErrAlreadyFulfilled) {
			p.metrics.RunSkipped()
			prom.IncOrderRunsSkipped()
			logger.Info("Skipping fulfillment", "order_id", orderID, "reason", err)
			return err
		}
		p.failUnstarted(ctx, orderID, err)
		return err
	}

	order, err := p.orders.Get(context.WithoutCancel(ctx), orderID)
	if err != nil {
		err = fmt.Errorf("load order: %w", err)
		p.failUnstarted(ctx, orderID, err)
		_ = p.lock.Release(context.WithoutCancel(ctx), lease)
		return err
	}
	if order.Status.IsTerminal() {
		_ = p.lock.MarkFinished(context.WithoutCancel(ctx), lease)
		p.metrics.RunSkipped()
		prom.IncOrderRunsSkipped()
		logger.Info("Skipping fulfillment", "order_id", orderID, "status", order.Status)
		return ErrAlreadyFulfilled
	}

	logger.Info("Fulfillment started",
		"order_id", order.ID,
		"account_id", order.AccountID,
		"groups", order.RequestedGroupCount,
	)

	start := time.Now()
	p.metrics.RunStarted()

	created, runErr := p.run(ctx, order, lease)
	p.finish(ctx, order, created, runErr, start, lease)

	return runErr
}

func (p *FulfillmentProcessor) run(ctx context.Context, order *model.Order, lease *Lease) (created int, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Fulfillment panicked", "order_id", order.ID, "panic", r)
			err = fmt.Errorf("fulfillment panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("cancelled before start: %w", err)
	}

	conn, err := p.connections.GetActive(ctx, order.AccountID)
	if err != nil {
		return 0, fmt.Errorf("load active connection: %w", err)
	}

	gw := p.dialer.Dial(gateway.Session{
		APIID:       conn.APIID,
		APIHash:     conn.APIHash,
		PhoneNumber: conn.PhoneNumber,
		Handle:      conn.Session,
	})
	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer cancel()
		if derr := gw.Disconnect(dctx); derr != nil {
			logger.Warn("Gateway disconnect failed", "order_id", order.ID, "error", derr)
		}
	}()

	if err := gw.Connect(ctx); err != nil {
		return 0, fmt.Errorf("connect gateway: %w", err)
	}
	prom.GatewayConnOpened(connPurposeFulfillment)
	defer prom.GatewayConnClosed(connPurposeFulfillment)

	total := order.RequestedGroupCount
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		ok, err := p.createGroup(ctx, gw, order, i)
		if ok {
			created++
		}
		if err != nil {
			return created, err
		}

		progress := created
		if err := p.orders.Update(ctx, order.ID, model.OrderUpdate{GroupsCreated: &progress}); err != nil {
			return created, fmt.Errorf("update progress: %w", err)
		}

		if err := p.lock.Refresh(ctx, lease); err != nil {
			if errors.Is(err, ErrLockHeld) {
				return created, fmt.Errorf("lost fulfillment lock at group %d: %w", i, ErrLockHeld)
			}
			logger.Warn("Failed to refresh fulfillment lock", "order_id", order.ID, "error", err)
		}

		if i < total {
			if err := p.sleep(ctx, p.config.GroupDelay); err != nil {
				return created, err
			}
		}
	}

	return created, nil
}

// createGroup reports false when the platform refused the group. Only store
// failures and cancellation come back as errors.
func (p *FulfillmentProcessor) createGroup(ctx context.Context, gw gateway.Gateway, order *model.Order, index int) (bool, error) {
	name := order.GroupName(index)

	channel, err := p.createChannel(ctx, gw, name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		logger.Warn("Group creation failed, skipping",
			"order_id", order.ID,
			"index", index,
			"error", err,
		)
		p.metrics.GroupFailed()
		prom.IncOrderGroups("failed")
		return false, nil
	}

	group := &model.Group{
		OrderID:         order.ID,
		AccountID:       order.AccountID,
		DisplayName:     name,
		ExternalGroupID: &channel.ExternalID,
	}

	invite, err := gw.ExportInvite(ctx, channel.Handle)
	if err != nil {
		logger.Warn("Invite export failed", "order_id", order.ID, "index", index, "error", err)
	} else if invite != "" {
		group.InviteLink = &invite
	}

	// the channel exists on the platform now, so record it even if cancelled
	saved, err := p.groups.Create(context.WithoutCancel(ctx), group)
	if err != nil {
		return false, fmt.Errorf("persist group %d: %w", index, err)
	}

	sent, err := p.seed(ctx, gw, order, saved, channel.Handle)
	if err != nil {
		return true, err
	}

	p.metrics.GroupCreated(sent)
	prom.IncOrderGroups("created")
	logger.Debug("Group created", "order_id", order.ID, "index", index, "group_id", saved.ID, "messages", sent)
	return true, nil
}

func (p *FulfillmentProcessor) createChannel(ctx context.Context, gw gateway.Gateway, name string) (*gateway.Channel, error) {
	channel, err := gw.CreateChannel(ctx, name, true)
	if err == nil || !errors.Is(err, gateway.ErrRateLimited) {
		return channel, err
	}

	wait := gateway.RetryAfter(err)
	if wait <= 0 || wait > p.config.MaxFloodWait {
		return nil, err
	}

	logger.Info("Rate limited, waiting before retry", "title", name, "retry_after", wait)
	if err := p.sleep(ctx, wait); err != nil {
		return nil, err
	}
	return gw.CreateChannel(ctx, name, true)
}

func (p *FulfillmentProcessor) seed(ctx context.Context, gw gateway.Gateway, order *model.Order, group *model.Group, target string) (int, error) {
	sent := 0
	for _, body := range p.messages() {
		if ctx.Err() != nil {
			break
		}
		if err := gw.SendMessage(ctx, target, body); err != nil {
			logger.Warn("Message send failed", "order_id", order.ID, "group_id", group.ID, "error", err)
			prom.IncOrderMessages("failed")
			continue
		}
		if _, err := p.autoMessages.Create(context.WithoutCancel(ctx), group.ID, body); err != nil {
			return sent, fmt.Errorf("persist message for group %d: %w", group.ID, err)
		}
		sent++
		prom.IncOrderMessages("sent")
	}
	return sent, nil
}

func (p *FulfillmentProcessor) finish(ctx context.Context, order *model.Order, created int, runErr error, start time.Time, lease *Lease) {
	ctx = context.WithoutCancel(ctx)
	duration := time.Since(start)

	if !lease.held {
		// whoever holds the order now owns its terminal status
		p.metrics.RunFinished(false, duration)
		logger.Warn("Fulfillment lease lost, leaving order status to the current holder",
			"order_id", order.ID,
			"groups_created", created,
			"error", runErr,
		)
		return
	}

	update := model.OrderUpdate{
		Status:        model.OrderStatusCompleted,
		GroupsCreated: &created,
	}
	if runErr != nil {
		msg := runErr.Error()
		update.Status = model.OrderStatusFailed
		update.ErrorMessage = &msg
	}

	p.metrics.RunFinished(runErr == nil, duration)
	prom.AddOrderFulfillmentDuration(duration.Seconds(), string(update.Status))

	if err := p.orders.Update(ctx, order.ID, update); err != nil {
		logger.Error("Failed to record fulfillment result", "order_id", order.ID, "error", err)
		_ = p.lock.Release(ctx, lease)
		return
	}

	if runErr != nil {
		logger.Error("Fulfillment failed",
			"order_id", order.ID,
			"groups_created", created,
			"error", runErr,
		)
	} else {
		logger.Info("Fulfillment completed",
			"order_id", order.ID,
			"groups_created", created,
			"requested", order.RequestedGroupCount,
			"duration_ms", duration.Milliseconds(),
		)
	}

	if err := p.lock.MarkFinished(ctx, lease); err != nil {
		logger.Warn("Failed to mark order finished", "order_id", order.ID, "error", err)
	}
}

// failUnstarted records a run that could not begin. Orders that are already
// terminal keep their status.
func (p *FulfillmentProcessor) failUnstarted(ctx context.Context, orderID int64, cause error) {
	msg := "fulfillment could not start: " + cause.Error()
	changed, err := p.orders.FailUnfinished(context.WithoutCancel(ctx), orderID, msg)
	if err != nil {
		logger.Error("Failed to record unstarted fulfillment", "order_id", orderID, "cause", cause, "error", err)
		return
	}
	if changed {
		logger.Error("Fulfillment could not start", "order_id", orderID, "error", cause)
	}
}

// RecoverInterrupted fails unfinished orders created before cutoff that no run
// owns. Each order is locked before it is failed, so a run cannot start on it
// meanwhile. Orders still queued in this process are left to their job.
// Balance is not refunded, matching the loop's own failure policy.
func (p *FulfillmentProcessor) RecoverInterrupted(ctx context.Context, cutoff time.Time) (int, error) {
	orders, err := p.orders.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unfinished orders: %w", err)
	}

	recovered := 0
	for _, order := range orders {
		if !order.CreatedAt.Before(cutoff) {
			continue
		}
		if _, queued := p.inflight.Load(order.ID); queued {
			continue
		}

		ok, err := p.recoverOrder(ctx, order)
		if err != nil {
			return recovered, err
		}
		if ok {
			recovered++
		}
	}

	return recovered, nil
}

func (p *FulfillmentProcessor) recoverOrder(ctx context.Context, order *model.Order) (bool, error) {
	lease, err := p.lock.Acquire(ctx, order.ID)
	if err != nil {
		if !errors.Is(err, ErrLockHeld) && !errors.Is(err, ErrAlreadyFulfilled) {
			logger.Warn("Failed to lock interrupted order", "order_id", order.ID, "error", err)
		}
		return false, nil
	}

	changed, err := p.orders.FailUnfinished(ctx, order.ID, InterruptedMessage)
	if err != nil {
		_ = p.lock.Release(ctx, lease)
		return false, fmt.Errorf("fail interrupted order %d: %w", order.ID, err)
	}
	if err := p.lock.MarkFinished(ctx, lease); err != nil {
		logger.Warn("Failed to mark order finished", "order_id", order.ID, "error", err)
	}

	if changed {
		logger.Warn("Interrupted order marked failed", "order_id", order.ID, "groups_created", order.GroupsCreated)
	}
	return changed, nil
}

// WatchInterrupted runs RecoverInterrupted every interval until ctx is done.
// Orders younger than age are skipped, since another process may still have
// them queued.
func (p *FulfillmentProcessor) WatchInterrupted(ctx context.Context, interval, age time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := p.RecoverInterrupted(ctx, time.Now().Add(-age))
		if err != nil {
			logger.Error("Interrupted order sweep failed", "error", err)
		} else if n > 0 {
			logger.Warn("Interrupted orders marked failed", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
