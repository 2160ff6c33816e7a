package orders

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/internal/clearance"
	"github.com/chopdirect/settlement/internal/deductions"
	"github.com/chopdirect/settlement/internal/wallet"
	"github.com/chopdirect/settlement/pkg/config"
	dbpkg "github.com/chopdirect/settlement/pkg/db"
	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/money"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		&models.Order{},
		&models.OrderStatusTransition{},
		&models.OrderClearance{},
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.PendingDeduction{},
		&models.TenantSettings{},
	))
	return conn
}

type ordersFixture struct {
	orders  Service
	wallets wallet.Service
	conn    *gorm.DB
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()

	conn := setupOrdersTestDB(t)
	cfg := config.SettlementConfig{DefaultCommissionBps: 1000, DefaultHoldHours: 72, Currency: "NGN"}
	client := dbpkg.FromConn(conn)

	deductionSvc, err := deductions.NewService(deductions.NewRepository(conn))
	require.NoError(t, err)

	walletSvc, err := wallet.NewService(wallet.NewRepository(conn), deductionSvc, nil, cfg, nil)
	require.NoError(t, err)

	clearanceSvc, err := clearance.NewService(clearance.NewRepository(conn), walletSvc, nil, client, cfg, nil)
	require.NoError(t, err)

	orderSvc, err := NewService(NewRepository(conn), walletSvc, clearanceSvc, deductionSvc, nil, client, cfg, nil)
	require.NoError(t, err)

	return &ordersFixture{orders: orderSvc, wallets: walletSvc, conn: conn}
}

func placeTestOrder(t *testing.T, f *ordersFixture, tenantID, cookID uuid.UUID) *models.Order {
	t.Helper()

	order, err := f.orders.PlaceOrder(context.Background(), PlaceOrderInput{
		ClientID:       uuid.New(),
		TenantID:       tenantID,
		CookID:         cookID,
		DeliveryMethod: enums.DeliveryMethodDelivery,
		Subtotal:       money.FromInt(9500, "NGN"),
		DeliveryFee:    money.FromInt(1000, "NGN"),
		PromoDiscount:  money.FromInt(500, "NGN"),
		WalletApplied:  money.Zero("NGN"),
	})
	require.NoError(t, err)
	return order
}

func advanceTo(t *testing.T, f *ordersFixture, orderID uuid.UUID, statuses ...enums.OrderStatus) *models.Order {
	t.Helper()

	var order *models.Order
	var err error
	for _, status := range statuses {
		order, err = f.orders.Advance(context.Background(), AdvanceInput{
			OrderID: orderID,
			To:      status,
			ActorID: uuid.New(),
		})
		require.NoError(t, err, "advancing to %s", status)
	}
	return order
}

func TestPlaceOrderComputesGrandTotal(t *testing.T) {
	f := newOrdersFixture(t)

	order := placeTestOrder(t, f, uuid.New(), uuid.New())
	assert.Equal(t, enums.OrderStatusPendingPayment, order.Status)
	assert.True(t, order.GrandTotal.Equal(decimal.NewFromInt(10000)))
}

func TestPlaceOrderRejectsNegativeTotal(t *testing.T) {
	f := newOrdersFixture(t)

	_, err := f.orders.PlaceOrder(context.Background(), PlaceOrderInput{
		ClientID:       uuid.New(),
		TenantID:       uuid.New(),
		CookID:         uuid.New(),
		DeliveryMethod: enums.DeliveryMethodDelivery,
		Subtotal:       money.FromInt(100, "NGN"),
		DeliveryFee:    money.Zero("NGN"),
		PromoDiscount:  money.FromInt(500, "NGN"),
		WalletApplied:  money.Zero("NGN"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestAdvanceFollowsTransitionTable(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	order := placeTestOrder(t, f, uuid.New(), uuid.New())

	// Skipping straight to preparing is rejected.
	_, err := f.orders.Advance(ctx, AdvanceInput{
		OrderID: order.ID,
		To:      enums.OrderStatusPreparing,
		ActorID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

	advanced := advanceTo(t, f, order.ID,
		enums.OrderStatusPaid,
		enums.OrderStatusConfirmed,
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
	)
	assert.Equal(t, enums.OrderStatusReady, advanced.Status)

	// A delivery order cannot take the pickup branch.
	_, err = f.orders.Advance(ctx, AdvanceInput{
		OrderID: order.ID,
		To:      enums.OrderStatusReadyForPickup,
		ActorID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

	advanced = advanceTo(t, f, order.ID,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusCompleted,
	)
	assert.Equal(t, enums.OrderStatusCompleted, advanced.Status)
	require.NotNil(t, advanced.CompletedAt)

	// Terminal orders refuse non-override changes.
	_, err = f.orders.Advance(ctx, AdvanceInput{
		OrderID: order.ID,
		To:      enums.OrderStatusCancelled,
		ActorID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

	transitions, err := f.orders.ListTransitions(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 7)
	assert.Equal(t, enums.OrderStatusPendingPayment, transitions[0].FromStatus)
	assert.Equal(t, enums.OrderStatusCompleted, transitions[6].ToStatus)
}

func TestAdvanceOverrideRequiresReason(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	order := placeTestOrder(t, f, uuid.New(), uuid.New())

	_, err := f.orders.Advance(ctx, AdvanceInput{
		OrderID:    order.ID,
		To:         enums.OrderStatusPreparing,
		ActorID:    uuid.New(),
		IsOverride: true,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	advanced, err := f.orders.Advance(ctx, AdvanceInput{
		OrderID:    order.ID,
		To:         enums.OrderStatusPreparing,
		ActorID:    uuid.New(),
		IsOverride: true,
		Reason:     "support escalation",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPreparing, advanced.Status)

	transitions, err := f.orders.ListTransitions(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.True(t, transitions[0].IsOverride)
	require.NotNil(t, transitions[0].Reason)
}

func TestCancellationWindow(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	order := placeTestOrder(t, f, uuid.New(), uuid.New())
	advanceTo(t, f, order.ID,
		enums.OrderStatusPaid,
		enums.OrderStatusConfirmed,
		enums.OrderStatusPreparing,
	)

	// Preparation has started; cancellation is closed.
	_, err := f.orders.Advance(ctx, AdvanceInput{
		OrderID: order.ID,
		To:      enums.OrderStatusCancelled,
		ActorID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
}

func TestCompletionOpensClearance(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	tenantID := uuid.New()
	cookID := uuid.New()
	settings := &models.TenantSettings{
		TenantID:          tenantID,
		CommissionRateBps: 1000,
		HoldHours:         48,
		PlatformUserID:    uuid.New(),
	}
	require.NoError(t, f.conn.Create(settings).Error)

	order := placeTestOrder(t, f, tenantID, cookID)

	// Simulate the payment manager's credit.
	_, err := f.wallets.CreditOrderPayment(ctx, f.conn, wallet.CreditOrderPaymentInput{
		OrderID:  order.ID,
		TenantID: tenantID,
		CookID:   cookID,
		Gross:    money.FromInt(10000, "NGN"),
	})
	require.NoError(t, err)

	advanceTo(t, f, order.ID,
		enums.OrderStatusPaid,
		enums.OrderStatusConfirmed,
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusCompleted,
	)

	var row models.OrderClearance
	require.NoError(t, f.conn.First(&row, "order_id = ?", order.ID).Error)
	assert.True(t, row.Amount.Equal(decimal.NewFromInt(9000)))
	assert.Equal(t, 48, row.HoldHours)
	assert.False(t, row.IsCleared)
}

func TestCancelAfterPaymentReversesCredit(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	tenantID := uuid.New()
	cookID := uuid.New()
	order := placeTestOrder(t, f, tenantID, cookID)

	_, err := f.wallets.CreditOrderPayment(ctx, f.conn, wallet.CreditOrderPaymentInput{
		OrderID:  order.ID,
		TenantID: tenantID,
		CookID:   cookID,
		Gross:    money.FromInt(10000, "NGN"),
	})
	require.NoError(t, err)

	advanceTo(t, f, order.ID, enums.OrderStatusPaid)

	cancelled, err := f.orders.Advance(ctx, AdvanceInput{
		OrderID: order.ID,
		To:      enums.OrderStatusCancelled,
		ActorID: uuid.New(),
		Reason:  "client asked to cancel",
	})
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelledAt)

	var w models.Wallet
	require.NoError(t, f.conn.First(&w, "tenant_id = ? AND user_id = ?", tenantID, cookID).Error)
	assert.True(t, w.TotalBalance.IsZero())

	var entries []models.WalletTransaction
	require.NoError(t, f.conn.
		Where("user_id = ? AND type = ?", cookID, enums.WalletTransactionTypeOrderCancelled).
		Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(9000)))
}

func TestCancelReturnsWalletAppliedToClient(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	tenantID, cookID, clientID := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, f.conn.Create(&models.TenantSettings{
		TenantID:          tenantID,
		CommissionRateBps: 0,
		HoldHours:         72,
		PlatformUserID:    uuid.New(),
	}).Error)

	// Give the client 2,000 of spendable wallet money.
	seedOrder := uuid.New()
	_, err := f.wallets.CreditOrderPayment(ctx, f.conn, wallet.CreditOrderPaymentInput{
		OrderID:  seedOrder,
		TenantID: tenantID,
		CookID:   clientID,
		Gross:    money.FromInt(2000, "NGN"),
	})
	require.NoError(t, err)
	_, err = f.wallets.MarkWithdrawable(ctx, f.conn, wallet.MarkWithdrawableInput{
		TenantID: tenantID,
		UserID:   clientID,
		OrderID:  seedOrder,
		Amount:   money.FromInt(2000, "NGN"),
	})
	require.NoError(t, err)

	order, err := f.orders.PlaceOrder(ctx, PlaceOrderInput{
		ClientID:       clientID,
		TenantID:       tenantID,
		CookID:         cookID,
		DeliveryMethod: enums.DeliveryMethodDelivery,
		Subtotal:       money.FromInt(9000, "NGN"),
		DeliveryFee:    money.FromInt(1000, "NGN"),
		PromoDiscount:  money.Zero("NGN"),
		WalletApplied:  money.FromInt(2000, "NGN"),
	})
	require.NoError(t, err)

	var w models.Wallet
	require.NoError(t, f.conn.First(&w, "tenant_id = ? AND user_id = ?", tenantID, clientID).Error)
	assert.True(t, w.TotalBalance.IsZero())

	_, err = f.orders.Advance(ctx, AdvanceInput{
		OrderID: order.ID,
		To:      enums.OrderStatusCancelled,
		ActorID: clientID,
		Reason:  "changed my mind",
	})
	require.NoError(t, err)

	// Cancellation puts the applied money back where it came from.
	require.NoError(t, f.conn.First(&w, "tenant_id = ? AND user_id = ?", tenantID, clientID).Error)
	assert.True(t, w.TotalBalance.Equal(decimal.NewFromInt(2000)))
	assert.True(t, w.WithdrawableBalance.Equal(decimal.NewFromInt(2000)))

	var reversal models.WalletTransaction
	require.NoError(t, f.conn.
		Where("user_id = ? AND type = ?", clientID, enums.WalletTransactionTypeWalletPaymentReversal).
		First(&reversal).Error)
	assert.True(t, reversal.Amount.Equal(decimal.NewFromInt(2000)))
	require.NotNil(t, reversal.OrderID)
	assert.Equal(t, order.ID, *reversal.OrderID)
}
