package wallet

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/internal/deductions"
	"github.com/chopdirect/settlement/pkg/config"
	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/money"
)

func setupWalletTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.PendingDeduction{},
		&models.TenantSettings{},
	))
	return db
}

func newWalletService(t *testing.T, db *gorm.DB) Service {
	t.Helper()

	deductionSvc, err := deductions.NewService(deductions.NewRepository(db))
	require.NoError(t, err)

	cfg := config.SettlementConfig{DefaultCommissionBps: 1000, Currency: "NGN"}
	svc, err := NewService(NewRepository(db), deductionSvc, nil, cfg, nil)
	require.NoError(t, err)
	return svc
}

func seedTenantSettings(t *testing.T, db *gorm.DB, tenantID uuid.UUID, bps int64) *models.TenantSettings {
	t.Helper()

	settings := &models.TenantSettings{
		TenantID:          tenantID,
		CommissionRateBps: bps,
		HoldHours:         72,
		PlatformUserID:    uuid.New(),
	}
	require.NoError(t, db.Create(settings).Error)
	return settings
}

func decimalEq(t *testing.T, expected int64, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, actual.Equal(decimal.NewFromInt(expected)),
		"expected %d, got %s", expected, actual.String())
}

func TestCreditOrderPaymentSplitsCommission(t *testing.T) {
	db := setupWalletTestDB(t)
	ctx := context.Background()
	svc := newWalletService(t, db)

	tenantID := uuid.New()
	cookID := uuid.New()
	settings := seedTenantSettings(t, db, tenantID, 1000)

	result, err := svc.CreditOrderPayment(ctx, db, CreditOrderPaymentInput{
		OrderID:  uuid.New(),
		TenantID: tenantID,
		CookID:   cookID,
		Gross:    money.FromInt(10000, "NGN"),
	})
	require.NoError(t, err)

	decimalEq(t, 1000, result.Commission.Amount)
	decimalEq(t, 9000, result.Net.Amount)
	decimalEq(t, 9000, result.Credited.Amount)
	assert.True(t, result.Intercepted.IsZero())

	var cook models.Wallet
	require.NoError(t, db.First(&cook, "tenant_id = ? AND user_id = ?", tenantID, cookID).Error)
	decimalEq(t, 9000, cook.TotalBalance)
	decimalEq(t, 0, cook.WithdrawableBalance)
	decimalEq(t, 9000, cook.UnwithdrawableBalance)

	var platform models.Wallet
	require.NoError(t, db.First(&platform, "tenant_id = ? AND user_id = ?", tenantID, settings.PlatformUserID).Error)
	decimalEq(t, 1000, platform.TotalBalance)
	decimalEq(t, 1000, platform.WithdrawableBalance)

	var entries []models.WalletTransaction
	require.NoError(t, db.Where("user_id = ?", cookID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.WalletTransactionTypePaymentCredit, entries[0].Type)
	decimalEq(t, 0, entries[0].BalanceBefore)
	decimalEq(t, 9000, entries[0].BalanceAfter)
}

func TestCreditOrderPaymentInterceptsDeductions(t *testing.T) {
	db := setupWalletTestDB(t)
	ctx := context.Background()
	svc := newWalletService(t, db)

	tenantID := uuid.New()
	cookID := uuid.New()
	seedTenantSettings(t, db, tenantID, 1000)

	// Seed the wallet and a 3,000 debt against it.
	wallet := &models.Wallet{TenantID: tenantID, UserID: cookID, Currency: "NGN"}
	require.NoError(t, db.Create(wallet).Error)

	deductionSvc, err := deductions.NewService(deductions.NewRepository(db))
	require.NoError(t, err)
	_, err = deductionSvc.Create(ctx, db, deductions.CreateInput{
		WalletID: wallet.ID,
		TenantID: tenantID,
		UserID:   cookID,
		OrderID:  uuid.New(),
		Amount:   money.FromInt(3000, "NGN"),
		Reason:   "refund shortfall",
	})
	require.NoError(t, err)

	result, err := svc.CreditOrderPayment(ctx, db, CreditOrderPaymentInput{
		OrderID:  uuid.New(),
		TenantID: tenantID,
		CookID:   cookID,
		Gross:    money.FromInt(10000, "NGN"),
	})
	require.NoError(t, err)

	decimalEq(t, 9000, result.Net.Amount)
	decimalEq(t, 3000, result.Intercepted.Amount)
	decimalEq(t, 6000, result.Credited.Amount)
	require.Len(t, result.Settlements, 1)

	var reloaded models.Wallet
	require.NoError(t, db.First(&reloaded, "id = ?", wallet.ID).Error)
	decimalEq(t, 6000, reloaded.TotalBalance)
	decimalEq(t, 6000, reloaded.UnwithdrawableBalance)

	// Full net credit plus one interception entry, in order.
	var entries []models.WalletTransaction
	require.NoError(t, db.Where("user_id = ?", cookID).Order("created_at ASC, id ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, enums.WalletTransactionTypePaymentCredit, entries[0].Type)
	assert.Equal(t, enums.WalletTransactionTypeRefundDeduction, entries[1].Type)
	decimalEq(t, 9000, entries[1].BalanceBefore)
	decimalEq(t, 6000, entries[1].BalanceAfter)
}

func TestDebitRequiresWithdrawableFunds(t *testing.T) {
	db := setupWalletTestDB(t)
	ctx := context.Background()
	svc := newWalletService(t, db)

	tenantID := uuid.New()
	cookID := uuid.New()
	seedTenantSettings(t, db, tenantID, 1000)

	orderID := uuid.New()
	_, err := svc.CreditOrderPayment(ctx, db, CreditOrderPaymentInput{
		OrderID:  orderID,
		TenantID: tenantID,
		CookID:   cookID,
		Gross:    money.FromInt(10000, "NGN"),
	})
	require.NoError(t, err)

	// Funds are still held; withdrawal must be refused.
	_, err = svc.Debit(ctx, db, DebitInput{
		TenantID: tenantID,
		UserID:   cookID,
		Type:     enums.WalletTransactionTypeWithdrawal,
		Amount:   money.FromInt(5000, "NGN"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds))

	_, err = svc.MarkWithdrawable(ctx, db, MarkWithdrawableInput{
		TenantID: tenantID,
		UserID:   cookID,
		OrderID:  orderID,
		Amount:   money.FromInt(9000, "NGN"),
	})
	require.NoError(t, err)

	entry, err := svc.Debit(ctx, db, DebitInput{
		TenantID: tenantID,
		UserID:   cookID,
		Type:     enums.WalletTransactionTypeWithdrawal,
		Amount:   money.FromInt(5000, "NGN"),
	})
	require.NoError(t, err)
	decimalEq(t, 9000, entry.BalanceBefore)
	decimalEq(t, 4000, entry.BalanceAfter)

	var reloaded models.Wallet
	require.NoError(t, db.First(&reloaded, "tenant_id = ? AND user_id = ?", tenantID, cookID).Error)
	decimalEq(t, 4000, reloaded.TotalBalance)
	decimalEq(t, 4000, reloaded.WithdrawableBalance)
	decimalEq(t, 0, reloaded.UnwithdrawableBalance)
}

func TestMarkWithdrawableKeepsTotal(t *testing.T) {
	db := setupWalletTestDB(t)
	ctx := context.Background()
	svc := newWalletService(t, db)

	tenantID := uuid.New()
	cookID := uuid.New()
	seedTenantSettings(t, db, tenantID, 1000)

	orderID := uuid.New()
	_, err := svc.CreditOrderPayment(ctx, db, CreditOrderPaymentInput{
		OrderID:  orderID,
		TenantID: tenantID,
		CookID:   cookID,
		Gross:    money.FromInt(10000, "NGN"),
	})
	require.NoError(t, err)

	entry, err := svc.MarkWithdrawable(ctx, db, MarkWithdrawableInput{
		TenantID: tenantID,
		UserID:   cookID,
		OrderID:  orderID,
		Amount:   money.FromInt(9000, "NGN"),
	})
	require.NoError(t, err)
	assert.True(t, entry.BalanceBefore.Equal(entry.BalanceAfter))
	require.NotNil(t, entry.WithdrawableAt)

	// Clearing more than is held must fail.
	_, err = svc.MarkWithdrawable(ctx, db, MarkWithdrawableInput{
		TenantID: tenantID,
		UserID:   cookID,
		OrderID:  orderID,
		Amount:   money.FromInt(1, "NGN"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestDebitForRefundReportsShortfall(t *testing.T) {
	db := setupWalletTestDB(t)
	ctx := context.Background()
	svc := newWalletService(t, db)

	tenantID := uuid.New()
	cookID := uuid.New()
	seedTenantSettings(t, db, tenantID, 1000)

	orderID := uuid.New()
	_, err := svc.CreditOrderPayment(ctx, db, CreditOrderPaymentInput{
		OrderID:  orderID,
		TenantID: tenantID,
		CookID:   cookID,
		Gross:    money.FromInt(5000, "NGN"),
	})
	require.NoError(t, err)

	// Wallet holds 4,500 after commission; an 8,000 refund leaves a debt.
	result, err := svc.DebitForRefund(ctx, db, RefundDebitInput{
		TenantID: tenantID,
		UserID:   cookID,
		OrderID:  orderID,
		Type:     enums.WalletTransactionTypeRefund,
		Amount:   money.FromInt(8000, "NGN"),
	})
	require.NoError(t, err)
	decimalEq(t, 4500, result.Debited.Amount)
	decimalEq(t, 3500, result.Shortfall.Amount)
	decimalEq(t, 0, result.Wallet.TotalBalance)
}

func TestReconcileDetectsDrift(t *testing.T) {
	db := setupWalletTestDB(t)
	ctx := context.Background()
	svc := newWalletService(t, db)

	tenantID := uuid.New()
	cookID := uuid.New()
	seedTenantSettings(t, db, tenantID, 1000)

	_, err := svc.CreditOrderPayment(ctx, db, CreditOrderPaymentInput{
		OrderID:  uuid.New(),
		TenantID: tenantID,
		CookID:   cookID,
		Gross:    money.FromInt(10000, "NGN"),
	})
	require.NoError(t, err)

	result, err := svc.Reconcile(ctx, db, tenantID, cookID)
	require.NoError(t, err)
	assert.True(t, result.Matched)

	// Corrupt the cached aggregate behind the ledger's back.
	require.NoError(t, db.Model(&models.Wallet{}).
		Where("tenant_id = ? AND user_id = ?", tenantID, cookID).
		Update("total_balance", decimal.NewFromInt(9999)).Error)

	result, err = svc.Reconcile(ctx, db, tenantID, cookID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeReconciliation))
	require.NotNil(t, result)
	assert.False(t, result.Matched)
	decimalEq(t, 9000, result.ExpectedTotal)

	// The frozen wallet refuses further settlement activity.
	var frozen models.Wallet
	require.NoError(t, db.First(&frozen, "tenant_id = ? AND user_id = ?", tenantID, cookID).Error)
	require.NotNil(t, frozen.ReconciliationFailedAt)
	assert.WithinDuration(t, time.Now(), *frozen.ReconciliationFailedAt, 5*time.Second)

	_, err = svc.CreditOrderPayment(ctx, db, CreditOrderPaymentInput{
		OrderID:  uuid.New(),
		TenantID: tenantID,
		CookID:   cookID,
		Gross:    money.FromInt(1000, "NGN"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeReconciliation))
}

func TestReconcileSweepFreezesDriftedWallet(t *testing.T) {
	db := setupWalletTestDB(t)
	ctx := context.Background()
	svc := newWalletService(t, db)

	tenantID := uuid.New()
	goodCook, badCook := uuid.New(), uuid.New()
	seedTenantSettings(t, db, tenantID, 1000)

	for _, cook := range []uuid.UUID{goodCook, badCook} {
		_, err := svc.CreditOrderPayment(ctx, db, CreditOrderPaymentInput{
			OrderID:  uuid.New(),
			TenantID: tenantID,
			CookID:   cook,
			Gross:    money.FromInt(10000, "NGN"),
		})
		require.NoError(t, err)
	}

	// Corrupt one cached aggregate behind the ledger's back.
	require.NoError(t, db.Model(&models.Wallet{}).
		Where("tenant_id = ? AND user_id = ?", tenantID, badCook).
		Update("total_balance", decimal.NewFromInt(1)).Error)

	// Two cook wallets plus the platform commission wallet.
	result, err := svc.ReconcileSweep(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Checked)
	assert.Equal(t, 1, result.Mismatched)

	var frozen models.Wallet
	require.NoError(t, db.First(&frozen, "tenant_id = ? AND user_id = ?", tenantID, badCook).Error)
	require.NotNil(t, frozen.ReconciliationFailedAt)

	var intact models.Wallet
	require.NoError(t, db.First(&intact, "tenant_id = ? AND user_id = ?", tenantID, goodCook).Error)
	assert.Nil(t, intact.ReconciliationFailedAt)

	// The frozen wallet stays out of later passes until an operator
	// clears it.
	result, err = svc.ReconcileSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	assert.Zero(t, result.Mismatched)
}
