package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSettingsNotFound = errors.New("payment settings not found")

// paymentSettingID pins the singleton row.
const paymentSettingID = 1

type PaymentSettingEntity struct {
	ID                    int64           `db:"id"                       gorm:"primaryKey;column:id"`
	PricePerHundredGroups decimal.Decimal `db:"price_per_hundred_groups" gorm:"column:price_per_hundred_groups;type:numeric(20,8);not null"`
	MaxGroupsPerOrder     int             `db:"max_groups_per_order"     gorm:"column:max_groups_per_order;not null"`
	UpdatedAt             time.Time       `db:"updated_at"               gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentSettingEntity) TableName() string {
	return "payment_settings"
}

type PaymentSettingRepository struct {
	*pg.DB
}

func NewPaymentSettingRepository(db *pg.DB) *PaymentSettingRepository {
	return &PaymentSettingRepository{
		db,
	}
}

func (r *PaymentSettingRepository) Get(ctx context.Context) (*model.PaymentSetting, error) {
	var entity PaymentSettingEntity
	err := r.Read(ctx).Where("id = ?", paymentSettingID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return &model.PaymentSetting{
		PricePerHundredGroups: entity.PricePerHundredGroups,
		MaxGroupsPerOrder:     entity.MaxGroupsPerOrder,
	}, nil
}

func (r *PaymentSettingRepository) Upsert(ctx context.Context, setting model.PaymentSetting) error {
	entity := &PaymentSettingEntity{
		ID:                    paymentSettingID,
		PricePerHundredGroups: setting.PricePerHundredGroups,
		MaxGroupsPerOrder:     setting.MaxGroupsPerOrder,
	}
	return r.Write(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"price_per_hundred_groups", "max_groups_per_order", "updated_at"}),
		}).
		Create(entity).
		Error
}
