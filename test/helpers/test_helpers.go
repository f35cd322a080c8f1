package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/internal/repository"
	"github.com/nimasrn/group-factory/pkg/pg"
	"github.com/nimasrn/group-factory/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// a second pooled connection would see a fresh empty database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(repository.Entities()...))

	return pg.Wrap(db, db)
}

// SetupTestRedis starts a miniredis server. Adapters are cached by
// connection name, so each test gets its own.
func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	adapter, err := redis.NewRedisAdapter(t.Name(), "test:", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestAccount(t *testing.T, db *pg.DB, username, balance string) *model.Account {
	account, err := repository.NewAccountRepository(db).Create(context.Background(), &model.Account{
		Username: username,
		Balance:  decimal.RequireFromString(balance),
	})
	require.NoError(t, err)
	return account
}

// CreateTestConnection stores an active platform connection for the account
// without going through sign-in.
func CreateTestConnection(t *testing.T, db *pg.DB, accountID int64) *model.Connection {
	conn, err := repository.NewConnectionRepository(db).Activate(context.Background(), &model.Connection{
		AccountID:   accountID,
		APIID:       1001,
		APIHash:     "0123456789abcdef",
		PhoneNumber: "+15550000000",
		Session:     "mem-session-" + time.Now().Format("150405.000000"),
	})
	require.NoError(t, err)
	return conn
}

func SaveTestSettings(t *testing.T, db *pg.DB, price string, maxGroups int) {
	err := repository.NewPaymentSettingRepository(db).Upsert(context.Background(), model.PaymentSetting{
		PricePerHundredGroups: decimal.RequireFromString(price),
		MaxGroupsPerOrder:     maxGroups,
	})
	require.NoError(t, err)
}

func AccountBalance(t *testing.T, db *pg.DB, accountID int64) decimal.Decimal {
	balance, err := repository.NewAccountRepository(db).GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	return balance
}

func AssertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "expected %s, got %s", want, got)
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
