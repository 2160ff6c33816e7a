package withdrawals

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
	"github.com/chopdirect/settlement/internal/wallet"
	"github.com/chopdirect/settlement/pkg/config"
	dbpkg "github.com/chopdirect/settlement/pkg/db"
	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/money"
	"github.com/chopdirect/settlement/pkg/pagination"
)

type withdrawalsFixture struct {
	db      *gorm.DB
	wallets wallet.Service
	svc     Service
}

func newWithdrawalsFixture(t *testing.T) *withdrawalsFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.PendingDeduction{},
		&models.TenantSettings{},
		&models.Withdrawal{},
		&models.OutboxEvent{},
	))

	deductionSvc, err := deductions.NewService(deductions.NewRepository(conn))
	require.NoError(t, err)

	cfg := config.SettlementConfig{DefaultCommissionBps: 1000, Currency: "NGN"}
	walletSvc, err := wallet.NewService(wallet.NewRepository(conn), deductionSvc, nil, cfg, nil)
	require.NoError(t, err)

	svc, err := NewService(NewRepository(conn), walletSvc, nil, dbpkg.FromConn(conn), nil)
	require.NoError(t, err)

	return &withdrawalsFixture{db: conn, wallets: walletSvc, svc: svc}
}

// seedWithdrawable credits a wallet and clears the hold so the balance is
// available for payout. The tenant takes no commission so the full
// credit reaches the cook.
func (f *withdrawalsFixture) seedWithdrawable(t *testing.T, tenantID, cookID uuid.UUID, amount int64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.db.Create(&models.TenantSettings{
		TenantID:          tenantID,
		CommissionRateBps: 0,
		HoldHours:         72,
		PlatformUserID:    uuid.New(),
	}).Error)

	orderID := uuid.New()
	_, err := f.wallets.CreditOrderPayment(ctx, f.db, wallet.CreditOrderPaymentInput{
		OrderID:  orderID,
		TenantID: tenantID,
		CookID:   cookID,
		Gross:    money.FromInt(amount, "NGN"),
	})
	require.NoError(t, err)

	_, err = f.wallets.MarkWithdrawable(ctx, f.db, wallet.MarkWithdrawableInput{
		TenantID: tenantID,
		UserID:   cookID,
		OrderID:  orderID,
		Amount:   money.FromInt(amount, "NGN"),
	})
	require.NoError(t, err)
}

func (f *withdrawalsFixture) walletOf(t *testing.T, tenantID, cookID uuid.UUID) *models.Wallet {
	t.Helper()
	var row models.Wallet
	require.NoError(t, f.db.Where("tenant_id = ? AND user_id = ?", tenantID, cookID).First(&row).Error)
	return &row
}

func TestRequestDebitsWithdrawableBalance(t *testing.T) {
	f := newWithdrawalsFixture(t)
	ctx := context.Background()
	tenantID, cookID := uuid.New(), uuid.New()
	f.seedWithdrawable(t, tenantID, cookID, 5000)

	row, err := f.svc.Request(ctx, RequestInput{
		TenantID: tenantID,
		CookID:   cookID,
		Amount:   money.FromInt(3000, "NGN"),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusRequested, row.Status)

	w := f.walletOf(t, tenantID, cookID)
	assert.True(t, w.WithdrawableBalance.Equal(decimal.NewFromInt(2000)))
	assert.True(t, w.TotalBalance.Equal(decimal.NewFromInt(2000)))
}

func TestRequestRejectsInsufficientBalance(t *testing.T) {
	f := newWithdrawalsFixture(t)
	ctx := context.Background()
	tenantID, cookID := uuid.New(), uuid.New()
	f.seedWithdrawable(t, tenantID, cookID, 1000)

	_, err := f.svc.Request(ctx, RequestInput{
		TenantID: tenantID,
		CookID:   cookID,
		Amount:   money.FromInt(2000, "NGN"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds))

	var count int64
	require.NoError(t, f.db.Model(&models.Withdrawal{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCompleteStampsTransferRef(t *testing.T) {
	f := newWithdrawalsFixture(t)
	ctx := context.Background()
	tenantID, cookID := uuid.New(), uuid.New()
	f.seedWithdrawable(t, tenantID, cookID, 5000)

	row, err := f.svc.Request(ctx, RequestInput{
		TenantID: tenantID,
		CookID:   cookID,
		Amount:   money.FromInt(5000, "NGN"),
	})
	require.NoError(t, err)

	done, err := f.svc.Complete(ctx, CompleteInput{WithdrawalID: row.ID, TransferRef: "TRF-123"})
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusCompleted, done.Status)
	require.NotNil(t, done.TransferRef)
	assert.Equal(t, "TRF-123", *done.TransferRef)
	assert.NotNil(t, done.CompletedAt)

	// Redelivery of the same outcome is a no-op.
	again, err := f.svc.Complete(ctx, CompleteInput{WithdrawalID: row.ID, TransferRef: "TRF-123"})
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusCompleted, again.Status)

	_, err = f.svc.Fail(ctx, FailInput{WithdrawalID: row.ID, Reason: "bank rejected"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestFailReturnsFundsToWallet(t *testing.T) {
	f := newWithdrawalsFixture(t)
	ctx := context.Background()
	tenantID, cookID := uuid.New(), uuid.New()
	f.seedWithdrawable(t, tenantID, cookID, 5000)

	row, err := f.svc.Request(ctx, RequestInput{
		TenantID: tenantID,
		CookID:   cookID,
		Amount:   money.FromInt(5000, "NGN"),
	})
	require.NoError(t, err)

	w := f.walletOf(t, tenantID, cookID)
	assert.True(t, w.WithdrawableBalance.IsZero())

	failed, err := f.svc.Fail(ctx, FailInput{WithdrawalID: row.ID, Reason: "account closed"})
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)

	w = f.walletOf(t, tenantID, cookID)
	assert.True(t, w.WithdrawableBalance.Equal(decimal.NewFromInt(5000)))
	assert.True(t, w.TotalBalance.Equal(decimal.NewFromInt(5000)))

	var reversal models.WalletTransaction
	require.NoError(t, f.db.Where("type = ?", enums.WalletTransactionTypeWithdrawalReversal).First(&reversal).Error)
	assert.True(t, reversal.Amount.Equal(decimal.NewFromInt(5000)))
	assert.Contains(t, string(reversal.Metadata), row.ID.String())
}

func TestFailKeepsLedgerReplayConsistent(t *testing.T) {
	f := newWithdrawalsFixture(t)
	ctx := context.Background()
	tenantID, cookID := uuid.New(), uuid.New()
	f.seedWithdrawable(t, tenantID, cookID, 5000)

	row, err := f.svc.Request(ctx, RequestInput{
		TenantID: tenantID,
		CookID:   cookID,
		Amount:   money.FromInt(2000, "NGN"),
	})
	require.NoError(t, err)
	_, err = f.svc.Fail(ctx, FailInput{WithdrawalID: row.ID, Reason: "bank timeout"})
	require.NoError(t, err)

	result, err := f.wallets.Reconcile(ctx, f.db, tenantID, cookID)
	require.NoError(t, err)
	assert.True(t, result.Matched)
}

func TestFlagStaleMarksOldInFlightRows(t *testing.T) {
	f := newWithdrawalsFixture(t)
	ctx := context.Background()
	tenantID, cookID := uuid.New(), uuid.New()
	f.seedWithdrawable(t, tenantID, cookID, 5000)

	row, err := f.svc.Request(ctx, RequestInput{
		TenantID: tenantID,
		CookID:   cookID,
		Amount:   money.FromInt(1000, "NGN"),
	})
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.db.Model(&models.Withdrawal{}).
		Where("id = ?", row.ID).
		Update("created_at", old).Error)

	result := f.svc.FlagStale(ctx, time.Now())
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Flagged)

	flagged, err := f.svc.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.NotNil(t, flagged.FlaggedAt)

	// A second pass finds nothing new.
	result = f.svc.FlagStale(ctx, time.Now())
	require.NoError(t, result.Err)
	assert.Zero(t, result.Flagged)
}

func TestListByCookPaginates(t *testing.T) {
	f := newWithdrawalsFixture(t)
	ctx := context.Background()
	tenantID, cookID := uuid.New(), uuid.New()
	f.seedWithdrawable(t, tenantID, cookID, 10000)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Request(ctx, RequestInput{
			TenantID: tenantID,
			CookID:   cookID,
			Amount:   money.FromInt(1000, "NGN"),
		})
		require.NoError(t, err)
	}

	rows, next, err := f.svc.ListByCook(ctx, tenantID, cookID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	require.NotEmpty(t, next)

	rest, _, err := f.svc.ListByCook(ctx, tenantID, cookID, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}
