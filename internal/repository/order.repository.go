package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/pkg/pg"
	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("order not found")

type OrderRepository struct {
	*pg.DB
}

func NewOrderRepository(db *pg.DB) *OrderRepository {
	return &OrderRepository{
		db,
	}
}

// Create persists a new order. Status and progress always start at pending/0
// regardless of what the caller passed.
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) (*model.Order, error) {
	entity := toOrderEntity(order)
	entity.ID = 0
	entity.Status = string(model.OrderStatusPending)
	entity.GroupsCreated = 0
	entity.ErrorMessage = nil
	entity.CompletedAt = nil

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toOrderModel(entity), nil
}

func (r *OrderRepository) Get(ctx context.Context, id int64) (*model.Order, error) {
	var entity OrderEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return toOrderModel(&entity), nil
}

// Update applies a partial status/progress update. groups_created never moves
// backwards and completing an order stamps completed_at.
func (r *OrderRepository) Update(ctx context.Context, id int64, update model.OrderUpdate) error {
	updates := map[string]any{}

	if update.Status != "" {
		updates["status"] = string(update.Status)
		if update.Status == model.OrderStatusCompleted {
			updates["completed_at"] = time.Now().UTC()
		}
	}
	if update.GroupsCreated != nil {
		updates["groups_created"] = gorm.Expr(
			"CASE WHEN ? > groups_created THEN ? ELSE groups_created END",
			*update.GroupsCreated, *update.GroupsCreated,
		)
	}
	if update.ErrorMessage != nil {
		updates["error_message"] = *update.ErrorMessage
	}

	if len(updates) == 0 {
		return nil
	}

	result := r.Write(ctx).
		Model(&OrderEntity{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// FailUnfinished moves a pending or processing order to failed. It reports
// false when the order was already terminal.
func (r *OrderRepository) FailUnfinished(ctx context.Context, id int64, message string) (bool, error) {
	result := r.Write(ctx).
		Model(&OrderEntity{}).
		Where("id = ? AND status IN ?", id, []string{string(model.OrderStatusPending), string(model.OrderStatusProcessing)}).
		Updates(map[string]any{
			"status":        string(model.OrderStatusFailed),
			"error_message": message,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *OrderRepository) List(ctx context.Context, filter model.OrderFilter) ([]*model.Order, int64, error) {
	query := r.Read(ctx).Model(&OrderEntity{})

	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where("status IN ?", statuses)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var entities []*OrderEntity
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, 0, err
	}

	return toOrderModels(entities), total, nil
}

func (r *OrderRepository) ListRecent(ctx context.Context, accountID int64) ([]*model.Order, error) {
	orders, _, err := r.List(ctx, model.OrderFilter{AccountID: &accountID, Limit: model.RecentOrdersLimit})
	return orders, err
}

// ListUnfinished returns orders that were admitted but never reached a terminal state.
func (r *OrderRepository) ListUnfinished(ctx context.Context) ([]*model.Order, error) {
	var entities []*OrderEntity
	err := r.Read(ctx).
		Where("status IN ?", []string{string(model.OrderStatusPending), string(model.OrderStatusProcessing)}).
		Order("id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toOrderModels(entities), nil
}

func (r *OrderRepository) CountByStatus(ctx context.Context, accountID int64, statuses ...model.OrderStatus) (int64, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	var count int64
	err := r.Read(ctx).
		Model(&OrderEntity{}).
		Where("account_id = ? AND status IN ?", accountID, values).
		Count(&count).
		Error
	return count, err
}
