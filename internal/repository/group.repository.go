package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/pkg/pg"
	"gorm.io/gorm"
)

var ErrGroupNotFound = errors.New("group not found")

type GroupRepository struct {
	*pg.DB
}

func NewGroupRepository(db *pg.DB) *GroupRepository {
	return &GroupRepository{
		db,
	}
}

func (r *GroupRepository) Create(ctx context.Context, group *model.Group) (*model.Group, error) {
	entity := toGroupEntity(group)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toGroupModel(entity), nil
}

func (r *GroupRepository) Get(ctx context.Context, id int64) (*model.Group, error) {
	var entity GroupEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return toGroupModel(&entity), nil
}

func (r *GroupRepository) List(ctx context.Context, filter model.GroupFilter) ([]*model.Group, int64, error) {
	query := r.Read(ctx).Model(&GroupEntity{})

	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var entities []*GroupEntity
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, 0, err
	}

	return toGroupModels(entities), total, nil
}

func (r *GroupRepository) ListRecent(ctx context.Context, accountID int64) ([]*model.Group, error) {
	groups, _, err := r.List(ctx, model.GroupFilter{AccountID: &accountID, Limit: model.RecentGroupsLimit})
	return groups, err
}

func (r *GroupRepository) CountByAccount(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.Read(ctx).
		Model(&GroupEntity{}).
		Where("account_id = ?", accountID).
		Count(&count).
		Error
	return count, err
}

func (r *GroupRepository) CountByOrder(ctx context.Context, orderID int64) (int64, error) {
	var count int64
	err := r.Read(ctx).
		Model(&GroupEntity{}).
		Where("order_id = ?", orderID).
		Count(&count).
		Error
	return count, err
}

type AutoMessageRepository struct {
	*pg.DB
}

func NewAutoMessageRepository(db *pg.DB) *AutoMessageRepository {
	return &AutoMessageRepository{
		db,
	}
}

func (r *AutoMessageRepository) Create(ctx context.Context, groupID int64, body string) (*model.AutoMessage, error) {
	entity := &AutoMessageEntity{
		GroupID: groupID,
		Body:    body,
		SentAt:  time.Now().UTC(),
	}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toAutoMessageModel(entity), nil
}

func (r *AutoMessageRepository) ListByGroup(ctx context.Context, groupID int64) ([]*model.AutoMessage, error) {
	var entities []*AutoMessageEntity
	err := r.Read(ctx).
		Where("group_id = ?", groupID).
		Order("id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}

	messages := make([]*model.AutoMessage, len(entities))
	for i, e := range entities {
		messages[i] = toAutoMessageModel(e)
	}
	return messages, nil
}

func (r *AutoMessageRepository) CountByGroup(ctx context.Context, groupID int64) (int64, error) {
	var count int64
	err := r.Read(ctx).
		Model(&AutoMessageEntity{}).
		Where("group_id = ?", groupID).
		Count(&count).
		Error
	return count, err
}
