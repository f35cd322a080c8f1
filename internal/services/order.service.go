package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/internal/repository"
	"github.com/nimasrn/group-factory/pkg/logger"
	"github.com/nimasrn/group-factory/pkg/prom"
)

const (
	admissionAccepted            = "accepted"
	admissionLimitExceeded       = "limit_exceeded"
	admissionInsufficientBalance = "insufficient_balance"
	admissionNoConnection        = "no_connection"
	admissionInvalid             = "invalid"
	admissionError               = "error"
)

type SettingsProvider interface {
	Effective(ctx context.Context) (model.PaymentSetting, error)
}

// Scheduler hands an admitted order to the asynchronous fulfillment runner.
type Scheduler interface {
	Schedule(order *model.Order) error
}

type OrderService struct {
	accounts     AccountRepository
	transactions TransactionRepository
	orders       OrderRepository
	groups       GroupRepository
	connections  ConnectionRepository
	settings     SettingsProvider
	scheduler    Scheduler
}

func NewOrderService(
	accounts AccountRepository,
	transactions TransactionRepository,
	orders OrderRepository,
	groups GroupRepository,
	connections ConnectionRepository,
	settings SettingsProvider,
	scheduler Scheduler,
) *OrderService {
	return &OrderService{
		accounts:     accounts,
		transactions: transactions,
		orders:       orders,
		groups:       groups,
		connections:  connections,
		settings:     settings,
		scheduler:    scheduler,
	}
}

// Create admits an order: it checks limits, balance and the account's
// connection, reserves the funds, persists the order as processing and hands
// it to the scheduler. It returns before any group exists.
func (s *OrderService) Create(ctx context.Context, req model.OrderCreateRequest) (*model.Order, error) {
	start := time.Now()
	order, err := s.admit(ctx, req)
	prom.AddOrderAdmissionDuration(time.Since(start).Seconds())
	prom.IncOrderAdmitted(admissionResult(err))
	return order, err
}

func (s *OrderService) admit(ctx context.Context, req model.OrderCreateRequest) (*model.Order, error) {
	if req.GroupCount < 1 {
		return nil, ErrInvalidGroupCount
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	pattern := normalizePattern(req.GroupNamePattern)

	// 1. limit
	setting, err := s.settings.Effective(ctx)
	if err != nil {
		return nil, err
	}
	if req.GroupCount > setting.MaxGroupsPerOrder {
		return nil, fmt.Errorf("%w: requested %d, max %d", ErrLimitExceeded, req.GroupCount, setting.MaxGroupsPerOrder)
	}
	cost := setting.CostFor(req.GroupCount)

	// 2. balance
	account, err := s.accounts.Get(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account.Balance.LessThan(cost) {
		return nil, ErrInsufficientBalance
	}

	// 3. connection
	if _, err := s.connections.GetActive(ctx, req.AccountID); err != nil {
		if errors.Is(err, repository.ErrConnectionNotFound) {
			return nil, ErrNoActiveConnection
		}
		return nil, fmt.Errorf("load connection: %w", err)
	}

	// 4-5. reserve funds, then create the order, in one unit
	var created *model.Order
	err = s.accounts.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.accounts.DebitIfSufficient(ctx, req.AccountID, cost); err != nil {
			if errors.Is(err, repository.ErrInsufficientBalance) {
				return ErrInsufficientBalance
			}
			return fmt.Errorf("debit balance: %w", err)
		}

		_, err := s.transactions.Create(ctx, &model.Transaction{
			AccountID:   req.AccountID,
			Kind:        model.TransactionKindDebit,
			Amount:      cost,
			Description: fmt.Sprintf("Order: %d groups", req.GroupCount),
			Status:      model.TransactionStatusCompleted,
		})
		if err != nil {
			return fmt.Errorf("record debit: %w", err)
		}

		created, err = s.orders.Create(ctx, &model.Order{
			AccountID:           req.AccountID,
			RequestedGroupCount: req.GroupCount,
			TotalCost:           cost,
			GroupNamePattern:    pattern,
			IsPrivate:           req.IsPrivate,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if err := s.orders.Update(ctx, created.ID, model.OrderUpdate{Status: model.OrderStatusProcessing}); err != nil {
			return fmt.Errorf("start order: %w", err)
		}
		created.Status = model.OrderStatusProcessing
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Order admitted",
		"order_id", created.ID,
		"account_id", created.AccountID,
		"groups", created.RequestedGroupCount,
		"cost", cost.String())

	// 6. hand off; the caller polls the order from here on
	if err := s.scheduler.Schedule(created); err != nil {
		s.abandon(ctx, created, err)
		return nil, fmt.Errorf("%w: %v", ErrFulfillmentUnavailable, err)
	}

	return created, nil
}

// abandon reverses an admission whose fulfillment never started. Nothing was
// created on the platform yet, so the reservation goes back to the account.
func (s *OrderService) abandon(ctx context.Context, order *model.Order, cause error) {
	msg := "fulfillment could not be scheduled: " + cause.Error()

	err := s.accounts.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.orders.Update(ctx, order.ID, model.OrderUpdate{Status: model.OrderStatusFailed, ErrorMessage: &msg}); err != nil {
			return err
		}
		if _, err := s.accounts.ApplyDelta(ctx, order.AccountID, order.TotalCost); err != nil {
			return err
		}
		_, err := s.transactions.Create(ctx, &model.Transaction{
			AccountID:   order.AccountID,
			Kind:        model.TransactionKindCredit,
			Amount:      order.TotalCost,
			Description: fmt.Sprintf("Refund: order %d was not started", order.ID),
			Status:      model.TransactionStatusCompleted,
		})
		return err
	})
	if err != nil {
		logger.Error("Failed to abandon unscheduled order", "order_id", order.ID, "error", err)
		return
	}
	logger.Warn("Order abandoned before fulfillment", "order_id", order.ID, "cause", cause)
}

// Get returns an order owned by accountID; accountID 0 skips the ownership check.
func (s *OrderService) Get(ctx context.Context, accountID, orderID int64) (*model.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if accountID != 0 && order.AccountID != accountID {
		return nil, ErrNotFound
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context, f model.OrderFilter) ([]*model.Order, int64, error) {
	return s.orders.List(ctx, f)
}

func (s *OrderService) ListRecent(ctx context.Context, accountID int64) ([]*model.Order, error) {
	return s.orders.ListRecent(ctx, accountID)
}

func (s *OrderService) ListGroups(ctx context.Context, accountID, orderID int64, limit, offset int) ([]*model.Group, int64, error) {
	if _, err := s.Get(ctx, accountID, orderID); err != nil {
		return nil, 0, err
	}
	return s.groups.List(ctx, model.GroupFilter{OrderID: &orderID, Limit: limit, Offset: offset})
}

func (s *OrderService) ListRecentGroups(ctx context.Context, accountID int64) ([]*model.Group, error) {
	return s.groups.ListRecent(ctx, accountID)
}

// normalizePattern makes sure every group in an order gets a distinct name.
func normalizePattern(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return model.DefaultGroupNamePattern
	}
	if !strings.Contains(pattern, model.GroupNumberPlaceholder) {
		return pattern + " " + model.GroupNumberPlaceholder
	}
	return pattern
}

func admissionResult(err error) string {
	switch {
	case err == nil:
		return admissionAccepted
	case errors.Is(err, ErrLimitExceeded):
		return admissionLimitExceeded
	case errors.Is(err, ErrInsufficientBalance):
		return admissionInsufficientBalance
	case errors.Is(err, ErrNoActiveConnection):
		return admissionNoConnection
	case errors.Is(err, ErrInvalidGroupCount), errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrNotFound):
		return admissionInvalid
	default:
		return admissionError
	}
}
