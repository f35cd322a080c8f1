package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/router"
	gateway "github.com/nimasrn/group-factory/internal/gateways"
	"github.com/nimasrn/group-factory/internal/handlers"
	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/internal/processor"
	"github.com/nimasrn/group-factory/internal/repository"
	"github.com/nimasrn/group-factory/internal/services"
	"github.com/nimasrn/group-factory/pkg/pg"
	"github.com/nimasrn/group-factory/pkg/worker"
	"github.com/nimasrn/group-factory/test/fixtures"
	"github.com/nimasrn/group-factory/test/helpers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

const (
	adminToken     = "e2e-admin-token"
	apiPrefix      = "/api/v1"
	fulfillTimeout = 5 * time.Second
)

type TestEnvironment struct {
	DB           *pg.DB
	Platform     *gateway.MemoryPlatform
	Pool         *worker.Pool
	Processor    *processor.FulfillmentProcessor
	OrderService *services.OrderService
	Ledger       *services.LedgerService
	AutoMessages *repository.AutoMessageRepository

	client *fasthttp.Client
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	db := helpers.SetupTestDB(t)
	_, redisAdapter := helpers.SetupTestRedis(t)
	helpers.SaveTestSettings(t, db, fixtures.DefaultPrice, fixtures.DefaultMaxCount)

	accountRepo := repository.NewAccountRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	autoMessageRepo := repository.NewAutoMessageRepository(db)
	settingRepo := repository.NewPaymentSettingRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)

	platform := gateway.NewMemoryPlatform()

	pool := worker.NewPool(32, 2)
	pool.Start()
	t.Cleanup(pool.Stop)

	fulfillment := processor.NewFulfillmentProcessor(
		orderRepo,
		groupRepo,
		autoMessageRepo,
		connectionRepo,
		platform,
		processor.NewOrderLock(redisAdapter, processor.DefaultLockConfig()),
		pool,
		processor.Config{GroupDelay: 0, MaxFloodWait: time.Second},
	)

	challenges := gateway.NewChallengeStore(time.Minute)
	t.Cleanup(challenges.Close)

	settingsService := services.NewSettingsService(settingRepo, fixtures.DefaultSetting)
	orderService := services.NewOrderService(
		accountRepo,
		transactionRepo,
		orderRepo,
		groupRepo,
		connectionRepo,
		settingsService,
		fulfillment,
	)
	ledgerService := services.NewLedgerService(accountRepo, transactionRepo)
	statsService := services.NewStatsService(accountRepo, orderRepo, groupRepo)
	connectionService := services.NewConnectionService(platform, challenges, connectionRepo)

	r := router.New()
	g := r.Group(apiPrefix)
	handlers.RegisterOrderRoutes(g, handlers.NewOrderHandler(orderService))
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	handlers.RegisterLedgerRoutes(g, ledgerHandler)
	handlers.RegisterLedgerAdminRoutes(g, adminToken, ledgerHandler)
	handlers.RegisterAccountRoutes(g, handlers.NewAccountHandler(statsService, connectionService))
	handlers.RegisterSettingsRoutes(g, adminToken, handlers.NewSettingsHandler(settingsService))

	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: r.Handler}
	go func() { _ = server.Serve(ln) }()

	client := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}
	t.Cleanup(func() {
		client.CloseIdleConnections()
		_ = server.Shutdown()
	})

	return &TestEnvironment{
		DB:           db,
		Platform:     platform,
		Pool:         pool,
		Processor:    fulfillment,
		OrderService: orderService,
		Ledger:       ledgerService,
		AutoMessages: autoMessageRepo,
		client:       client,
	}
}

type request struct {
	method  string
	path    string
	account int64
	admin   bool
	body    any
}

func (env *TestEnvironment) do(t *testing.T, r request) (int, []byte) {
	t.Helper()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(r.method)
	req.SetRequestURI("http://group-factory" + apiPrefix + r.path)
	if r.account != 0 {
		req.Header.Set(handlers.AccountHeader, strconv.FormatInt(r.account, 10))
	}
	if r.admin {
		req.Header.Set(handlers.AdminTokenHeader, adminToken)
	}
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(t, err)
		req.Header.SetContentType("application/json")
		req.SetBody(raw)
	}

	require.NoError(t, env.client.DoTimeout(req, resp, 5*time.Second))
	return resp.StatusCode(), append([]byte(nil), resp.Body()...)
}

func (env *TestEnvironment) doJSON(t *testing.T, r request, wantStatus int, dst any) {
	t.Helper()
	status, body := env.do(t, r)
	require.Equalf(t, wantStatus, status, "%s %s: %s", r.method, r.path, body)
	if dst != nil {
		require.NoError(t, json.Unmarshal(body, dst))
	}
}

func (env *TestEnvironment) waitForOrder(t *testing.T, accountID, orderID int64) model.Order {
	t.Helper()
	var order model.Order
	helpers.AssertEventually(t, fulfillTimeout, func() bool {
		env.doJSON(t, request{method: "GET", path: fmt.Sprintf("/orders/%d", orderID), account: accountID}, 200, &order)
		return order.Status.IsTerminal()
	}, "order did not finish")
	return order
}

type groupList struct {
	Items []model.Group `json:"items"`
	Total int64         `json:"total"`
}

type transactionList struct {
	Items []model.Transaction `json:"items"`
	Total int64               `json:"total"`
}

type orderList struct {
	Items []model.Order `json:"items"`
	Total int64         `json:"total"`
}

func TestE2E_OrderFulfilledEndToEnd(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "buyer", fixtures.FundedBalance)
	helpers.CreateTestConnection(t, env.DB, account.ID)

	var order model.Order
	env.doJSON(t, request{
		method:  "POST",
		path:    "/orders",
		account: account.ID,
		body:    map[string]any{"group_count": 5},
	}, 201, &order)

	assert.Equal(t, model.OrderStatusProcessing, order.Status)
	assert.Equal(t, model.DefaultGroupNamePattern, order.GroupNamePattern)
	helpers.AssertDecimal(t, "0.10", order.TotalCost)

	// funds are reserved at admission, before any group exists
	var balance struct {
		Balance decimal.Decimal `json:"balance"`
	}
	env.doJSON(t, request{method: "GET", path: "/balance", account: account.ID}, 200, &balance)
	helpers.AssertDecimal(t, "9.90", balance.Balance)

	var txns transactionList
	env.doJSON(t, request{method: "GET", path: "/transactions", account: account.ID}, 200, &txns)
	require.Len(t, txns.Items, 1)
	assert.Equal(t, model.TransactionKindDebit, txns.Items[0].Kind)
	assert.Equal(t, model.TransactionStatusCompleted, txns.Items[0].Status)
	assert.Equal(t, "Order: 5 groups", txns.Items[0].Description)
	helpers.AssertDecimal(t, "0.10", txns.Items[0].Amount)

	done := env.waitForOrder(t, account.ID, order.ID)
	assert.Equal(t, model.OrderStatusCompleted, done.Status)
	assert.Equal(t, 5, done.GroupsCreated)
	assert.NotNil(t, done.CompletedAt)
	assert.Nil(t, done.ErrorMessage)

	var groups groupList
	env.doJSON(t, request{method: "GET", path: fmt.Sprintf("/orders/%d/groups", order.ID), account: account.ID}, 200, &groups)
	require.Len(t, groups.Items, 5)
	assert.EqualValues(t, 5, groups.Total)

	names := make([]string, 0, len(groups.Items))
	for _, g := range groups.Items {
		names = append(names, g.DisplayName)
		assert.Equal(t, account.ID, g.AccountID)
		assert.NotNil(t, g.ExternalGroupID)
		assert.NotNil(t, g.InviteLink)

		count, err := env.AutoMessages.CountByGroup(context.Background(), g.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, int64(processor.MinFillerMessages))
		assert.LessOrEqual(t, count, int64(processor.MaxFillerMessages))
	}
	assert.ElementsMatch(t, []string{"Group 1", "Group 2", "Group 3", "Group 4", "Group 5"}, names)

	channels := env.Platform.Channels()
	require.Len(t, channels, 5)
	for _, ch := range channels {
		assert.True(t, ch.Megagroup)
		assert.NotEmpty(t, ch.Invite)
	}
	assert.Zero(t, env.Platform.OpenConnections())

	var stats model.Stats
	env.doJSON(t, request{method: "GET", path: "/stats", account: account.ID}, 200, &stats)
	assert.EqualValues(t, 5, stats.TotalGroups)
	assert.EqualValues(t, 1, stats.CompletedOrders)
	assert.EqualValues(t, 0, stats.ActiveOrders)
	helpers.AssertDecimal(t, "9.90", stats.Balance)

	// the debit stays the only money movement after fulfillment
	env.doJSON(t, request{method: "GET", path: "/transactions", account: account.ID}, 200, &txns)
	assert.EqualValues(t, 1, txns.Total)
}

func TestE2E_LimitExceeded(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "buyer", fixtures.FundedBalance)
	helpers.CreateTestConnection(t, env.DB, account.ID)

	status, body := env.do(t, request{
		method:  "POST",
		path:    "/orders",
		account: account.ID,
		body:    map[string]any{"group_count": 20},
	})
	assert.Equal(t, 422, status, string(body))

	helpers.AssertDecimal(t, fixtures.FundedBalance, helpers.AccountBalance(t, env.DB, account.ID))

	var txns transactionList
	env.doJSON(t, request{method: "GET", path: "/transactions", account: account.ID}, 200, &txns)
	assert.Zero(t, txns.Total)

	var orders orderList
	env.doJSON(t, request{method: "GET", path: "/orders", account: account.ID}, 200, &orders)
	assert.Zero(t, orders.Total)
	assert.Empty(t, env.Platform.Channels())
}

func TestE2E_InsufficientBalance(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "poor", fixtures.LowBalance)
	helpers.CreateTestConnection(t, env.DB, account.ID)

	status, _ := env.do(t, request{
		method:  "POST",
		path:    "/orders",
		account: account.ID,
		body:    map[string]any{"group_count": 5},
	})
	assert.Equal(t, 402, status)

	helpers.AssertDecimal(t, fixtures.LowBalance, helpers.AccountBalance(t, env.DB, account.ID))

	var txns transactionList
	env.doJSON(t, request{method: "GET", path: "/transactions", account: account.ID}, 200, &txns)
	assert.Zero(t, txns.Total)
}

func TestE2E_OrderWithoutConnection(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "unlinked", fixtures.FundedBalance)

	status, _ := env.do(t, request{
		method:  "POST",
		path:    "/orders",
		account: account.ID,
		body:    map[string]any{"group_count": 1},
	})
	assert.Equal(t, 409, status)
	helpers.AssertDecimal(t, fixtures.FundedBalance, helpers.AccountBalance(t, env.DB, account.ID))
}

func TestE2E_MissingAccountHeader(t *testing.T) {
	env := setupE2EEnvironment(t)

	status, _ := env.do(t, request{method: "GET", path: "/balance"})
	assert.Equal(t, 401, status)
}

func TestE2E_CreditApprovedExactlyOnce(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "payer", fixtures.FundedBalance)

	var claim model.Transaction
	env.doJSON(t, request{
		method:  "POST",
		path:    "/credits",
		account: account.ID,
		body:    map[string]any{"amount": "25.00", "reference": "0xdeadbeef"},
	}, 201, &claim)
	assert.Equal(t, model.TransactionStatusPending, claim.Status)
	helpers.AssertDecimal(t, fixtures.FundedBalance, helpers.AccountBalance(t, env.DB, account.ID))

	approvePath := fmt.Sprintf("/admin/transactions/%d/approve", claim.ID)

	// no admin token
	status, _ := env.do(t, request{method: "POST", path: approvePath, account: account.ID})
	assert.Equal(t, 401, status)

	var first, second model.Transaction
	env.doJSON(t, request{method: "POST", path: approvePath, admin: true}, 200, &first)
	env.doJSON(t, request{method: "POST", path: approvePath, admin: true}, 200, &second)

	assert.Equal(t, model.TransactionStatusCompleted, first.Status)
	assert.Equal(t, model.TransactionStatusCompleted, second.Status)
	helpers.AssertDecimal(t, "35.00", helpers.AccountBalance(t, env.DB, account.ID))

	// a settled credit cannot be rejected afterwards
	var rejected model.Transaction
	env.doJSON(t, request{method: "POST", path: fmt.Sprintf("/admin/transactions/%d/reject", claim.ID), admin: true}, 200, &rejected)
	assert.Equal(t, model.TransactionStatusCompleted, rejected.Status)
	helpers.AssertDecimal(t, "35.00", helpers.AccountBalance(t, env.DB, account.ID))
}

func TestE2E_ConcurrentApprovalsCreditOnce(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "payer", fixtures.ZeroBalance)
	ctx := context.Background()

	claim, err := env.Ledger.ClaimCredit(ctx, fixtures.NewCreditClaimRequest(account.ID, "25.00", "0xfeed"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Ledger.ApproveCredit(ctx, claim.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	helpers.AssertDecimal(t, "25.00", helpers.AccountBalance(t, env.DB, account.ID))
}

func TestE2E_SignInThenOrder(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "newcomer", fixtures.FundedBalance)

	status, _ := env.do(t, request{method: "GET", path: "/connection", account: account.ID})
	assert.Equal(t, 409, status)

	var challenge struct {
		ChallengeToken string `json:"challenge_token"`
	}
	env.doJSON(t, request{
		method:  "POST",
		path:    "/connection/code",
		account: account.ID,
		body:    fixtures.TestCredentials,
	}, 202, &challenge)
	require.NotEmpty(t, challenge.ChallengeToken)

	signIn := map[string]any{
		"api_id":          fixtures.TestCredentials.APIID,
		"api_hash":        fixtures.TestCredentials.APIHash,
		"phone_number":    fixtures.TestCredentials.PhoneNumber,
		"challenge_token": challenge.ChallengeToken,
		"code":            gateway.MemoryVerificationCode,
	}
	var conn model.Connection
	env.doJSON(t, request{method: "POST", path: "/connection/sign-in", account: account.ID, body: signIn}, 201, &conn)
	assert.True(t, conn.IsActive)
	assert.Equal(t, fixtures.TestCredentials.PhoneNumber, conn.PhoneNumber)

	// the challenge is single use
	status, _ = env.do(t, request{method: "POST", path: "/connection/sign-in", account: account.ID, body: signIn})
	assert.Equal(t, 409, status)

	var order model.Order
	env.doJSON(t, request{
		method:  "POST",
		path:    "/orders",
		account: account.ID,
		body:    map[string]any{"group_count": 3, "group_name_pattern": "Signals"},
	}, 201, &order)
	assert.Equal(t, "Signals {number}", order.GroupNamePattern)

	done := env.waitForOrder(t, account.ID, order.ID)
	assert.Equal(t, model.OrderStatusCompleted, done.Status)
	assert.Equal(t, 3, done.GroupsCreated)

	var titles []string
	for _, ch := range env.Platform.Channels() {
		titles = append(titles, ch.Title)
	}
	assert.ElementsMatch(t, []string{"Signals 1", "Signals 2", "Signals 3"}, titles)
}

func TestE2E_PartialFailureKeepsCharge(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "buyer", fixtures.FundedBalance)
	helpers.CreateTestConnection(t, env.DB, account.ID)

	env.Platform.FailCreate = func(title string) error {
		if title == "Group 2" {
			return fmt.Errorf("%w: title rejected", gateway.ErrRejected)
		}
		return nil
	}

	var order model.Order
	env.doJSON(t, request{
		method:  "POST",
		path:    "/orders",
		account: account.ID,
		body:    map[string]any{"group_count": 3},
	}, 201, &order)

	done := env.waitForOrder(t, account.ID, order.ID)
	assert.Equal(t, model.OrderStatusCompleted, done.Status)
	assert.Equal(t, 2, done.GroupsCreated)

	var groups groupList
	env.doJSON(t, request{method: "GET", path: fmt.Sprintf("/orders/%d/groups", order.ID), account: account.ID}, 200, &groups)
	assert.EqualValues(t, 2, groups.Total)

	// the full reservation is kept
	helpers.AssertDecimal(t, "9.94", helpers.AccountBalance(t, env.DB, account.ID))
}

func TestE2E_ConnectionLostFailsOrder(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "buyer", fixtures.FundedBalance)
	conn := helpers.CreateTestConnection(t, env.DB, account.ID)
	env.Platform.RevokeSession(conn.Session)

	var order model.Order
	env.doJSON(t, request{
		method:  "POST",
		path:    "/orders",
		account: account.ID,
		body:    map[string]any{"group_count": 2},
	}, 201, &order)

	done := env.waitForOrder(t, account.ID, order.ID)
	assert.Equal(t, model.OrderStatusFailed, done.Status)
	assert.Zero(t, done.GroupsCreated)
	require.NotNil(t, done.ErrorMessage)
	assert.NotEmpty(t, *done.ErrorMessage)

	// no refund on a failed run
	helpers.AssertDecimal(t, "9.96", helpers.AccountBalance(t, env.DB, account.ID))
}

func TestE2E_ConcurrentAdmissionsNeverOverdraw(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "racer", "0.25")
	helpers.CreateTestConnection(t, env.DB, account.ID)
	ctx := context.Background()

	const attempts = 5
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []int64
		refused  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := env.OrderService.Create(ctx, fixtures.NewOrderCreateRequest(account.ID, 5))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted = append(admitted, order.ID)
			case errors.Is(err, services.ErrInsufficientBalance):
				refused++
			default:
				t.Errorf("unexpected admission error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, admitted, 2)
	assert.Equal(t, attempts-2, refused)
	helpers.AssertDecimal(t, "0.05", helpers.AccountBalance(t, env.DB, account.ID))

	for _, id := range admitted {
		done := env.waitForOrder(t, account.ID, id)
		assert.Equal(t, model.OrderStatusCompleted, done.Status)
	}
}

func TestE2E_FulfillmentRunsAtMostOnce(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "buyer", fixtures.FundedBalance)
	helpers.CreateTestConnection(t, env.DB, account.ID)

	order, err := env.OrderService.Create(context.Background(), fixtures.NewOrderCreateRequest(account.ID, 2))
	require.NoError(t, err)
	env.waitForOrder(t, account.ID, order.ID)

	// a duplicate delivery of the same order is refused
	err = env.Processor.Fulfill(context.Background(), order.ID)
	assert.ErrorIs(t, err, processor.ErrAlreadyFulfilled)
	assert.Len(t, env.Platform.Channels(), 2)
}

func TestE2E_AdminUpdatesPricing(t *testing.T) {
	env := setupE2EEnvironment(t)
	account := helpers.CreateTestAccount(t, env.DB, "buyer", fixtures.FundedBalance)
	helpers.CreateTestConnection(t, env.DB, account.ID)

	update := map[string]any{"price_per_hundred_groups": "50.00", "max_groups_per_order": 3}
	status, _ := env.do(t, request{method: "PUT", path: "/admin/settings", body: update})
	assert.Equal(t, 401, status)

	env.doJSON(t, request{method: "PUT", path: "/admin/settings", admin: true, body: update}, 200, nil)

	var setting model.PaymentSetting
	env.doJSON(t, request{method: "GET", path: "/settings"}, 200, &setting)
	assert.Equal(t, 3, setting.MaxGroupsPerOrder)
	helpers.AssertDecimal(t, "50.00", setting.PricePerHundredGroups)

	status, _ = env.do(t, request{method: "POST", path: "/orders", account: account.ID, body: map[string]any{"group_count": 4}})
	assert.Equal(t, 422, status)

	var order model.Order
	env.doJSON(t, request{method: "POST", path: "/orders", account: account.ID, body: map[string]any{"group_count": 2}}, 201, &order)
	helpers.AssertDecimal(t, "1.00", order.TotalCost)
	env.waitForOrder(t, account.ID, order.ID)
}
