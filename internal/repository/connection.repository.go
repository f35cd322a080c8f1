package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/pkg/pg"
	"gorm.io/gorm"
)

var ErrConnectionNotFound = errors.New("connection not found")

type ConnectionEntity struct {
	ID          int64     `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	AccountID   int64     `db:"account_id"   gorm:"column:account_id;not null;index"`
	APIID       int       `db:"api_id"       gorm:"column:api_id;not null"`
	APIHash     string    `db:"api_hash"     gorm:"column:api_hash;type:varchar(64);not null"`
	PhoneNumber string    `db:"phone_number" gorm:"column:phone_number;type:varchar(32);not null"`
	Session     string    `db:"session"      gorm:"column:session;type:text;not null"`
	IsActive    bool      `db:"is_active"    gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
}

func (ConnectionEntity) TableName() string {
	return "connections"
}

func toConnectionModel(e *ConnectionEntity) *model.Connection {
	if e == nil {
		return nil
	}
	return &model.Connection{
		ID:          e.ID,
		AccountID:   e.AccountID,
		APIID:       e.APIID,
		APIHash:     e.APIHash,
		PhoneNumber: e.PhoneNumber,
		Session:     e.Session,
		IsActive:    e.IsActive,
		CreatedAt:   e.CreatedAt,
	}
}

type ConnectionRepository struct {
	*pg.DB
}

func NewConnectionRepository(db *pg.DB) *ConnectionRepository {
	return &ConnectionRepository{
		db,
	}
}

// GetActive returns the account's newest active connection.
func (r *ConnectionRepository) GetActive(ctx context.Context, accountID int64) (*model.Connection, error) {
	var entity ConnectionEntity
	err := r.Read(ctx).
		Where("account_id = ? AND is_active = ?", accountID, true).
		Order("id DESC").
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	return toConnectionModel(&entity), nil
}

// Activate stores conn as the account's only active connection.
func (r *ConnectionRepository) Activate(ctx context.Context, conn *model.Connection) (*model.Connection, error) {
	entity := &ConnectionEntity{
		AccountID:   conn.AccountID,
		APIID:       conn.APIID,
		APIHash:     conn.APIHash,
		PhoneNumber: conn.PhoneNumber,
		Session:     conn.Session,
		IsActive:    true,
	}

	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := r.deactivate(ctx, conn.AccountID); err != nil {
			return err
		}
		return r.Write(ctx).Create(entity).Error
	})
	if err != nil {
		return nil, err
	}
	return toConnectionModel(entity), nil
}

func (r *ConnectionRepository) Deactivate(ctx context.Context, accountID int64) error {
	return r.deactivate(ctx, accountID)
}

func (r *ConnectionRepository) deactivate(ctx context.Context, accountID int64) error {
	return r.Write(ctx).
		Model(&ConnectionEntity{}).
		Where("account_id = ? AND is_active = ?", accountID, true).
		Update("is_active", false).
		Error
}
