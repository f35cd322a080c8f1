package services

import (
	"context"
	"errors"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/internal/repository"
)

// StatsService derives dashboard counters straight from the stores on every call.
type StatsService struct {
	accounts AccountRepository
	orders   OrderRepository
	groups   GroupRepository
}

func NewStatsService(accounts AccountRepository, orders OrderRepository, groups GroupRepository) *StatsService {
	return &StatsService{
		accounts: accounts,
		orders:   orders,
		groups:   groups,
	}
}

func (s *StatsService) Get(ctx context.Context, accountID int64) (*model.Stats, error) {
	balance, err := s.accounts.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	totalGroups, err := s.groups.CountByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	active, err := s.orders.CountByStatus(ctx, accountID, model.OrderStatusPending, model.OrderStatusProcessing)
	if err != nil {
		return nil, err
	}

	completed, err := s.orders.CountByStatus(ctx, accountID, model.OrderStatusCompleted)
	if err != nil {
		return nil, err
	}

	return &model.Stats{
		Balance:         balance,
		TotalGroups:     totalGroups,
		ActiveOrders:    active,
		CompletedOrders: completed,
	}, nil
}
