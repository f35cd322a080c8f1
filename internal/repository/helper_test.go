package repository

import (
	"context"
	"testing"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/pkg/pg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection to :memory: would open its own empty database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Entities()...))

	return pg.Wrap(db, db)
}

func seedAccount(t *testing.T, db *pg.DB, username, balance string) *model.Account {
	account, err := NewAccountRepository(db).Create(context.Background(), &model.Account{
		Username: username,
		Balance:  decimal.RequireFromString(balance),
	})
	require.NoError(t, err)
	return account
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "expected %s, got %s", want, got)
}
