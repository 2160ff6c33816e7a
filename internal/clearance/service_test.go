package clearance

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
	pkgerrors "github.com/chopdirect/settlement/pkg/errors"
	"github.com/chopdirect/settlement/pkg/money"
)

func setupClearanceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		&models.OrderClearance{},
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.PendingDeduction{},
		&models.TenantSettings{},
	))
	return conn
}

func newClearanceService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()

	deductionSvc, err := deductions.NewService(deductions.NewRepository(conn))
	require.NoError(t, err)

	cfg := config.SettlementConfig{DefaultCommissionBps: 1000, DefaultHoldHours: 72, Currency: "NGN"}
	walletSvc, err := wallet.NewService(wallet.NewRepository(conn), deductionSvc, nil, cfg, nil)
	require.NoError(t, err)

	svc, err := NewService(NewRepository(conn), walletSvc, nil, dbpkg.FromConn(conn), cfg, nil)
	require.NoError(t, err)
	return svc
}

func seedHeldWallet(t *testing.T, conn *gorm.DB, tenantID, cookID uuid.UUID, amount int64) {
	t.Helper()

	row := &models.Wallet{
		TenantID:              tenantID,
		UserID:                cookID,
		TotalBalance:          decimal.NewFromInt(amount),
		UnwithdrawableBalance: decimal.NewFromInt(amount),
		Currency:              "NGN",
	}
	require.NoError(t, conn.Create(row).Error)
}

func TestCreateForOrderComputesWithdrawableAt(t *testing.T) {
	conn := setupClearanceTestDB(t)
	svc := newClearanceService(t, conn)

	completed := time.Now().Add(-time.Hour)
	row, err := svc.CreateForOrder(context.Background(), conn, CreateInput{
		OrderID:     uuid.New(),
		TenantID:    uuid.New(),
		CookID:      uuid.New(),
		Amount:      money.FromInt(9000, "NGN"),
		CompletedAt: completed,
		HoldHours:   48,
	})
	require.NoError(t, err)
	assert.Equal(t, 48, row.HoldHours)
	assert.WithinDuration(t, completed.Add(48*time.Hour), row.WithdrawableAt, time.Second)

	// Zero hold hours falls back to the configured default.
	fallback, err := svc.CreateForOrder(context.Background(), conn, CreateInput{
		OrderID:     uuid.New(),
		TenantID:    uuid.New(),
		CookID:      uuid.New(),
		Amount:      money.FromInt(100, "NGN"),
		CompletedAt: completed,
	})
	require.NoError(t, err)
	assert.Equal(t, 72, fallback.HoldHours)
}

func TestPauseAndResumeKeepsRemainingTime(t *testing.T) {
	conn := setupClearanceTestDB(t)
	ctx := context.Background()
	svc := newClearanceService(t, conn)

	// 30 minutes of a 1-hour hold already elapsed: 1,800 seconds remain.
	orderID := uuid.New()
	_, err := svc.CreateForOrder(ctx, conn, CreateInput{
		OrderID:     orderID,
		TenantID:    uuid.New(),
		CookID:      uuid.New(),
		Amount:      money.FromInt(9000, "NGN"),
		CompletedAt: time.Now().Add(-30 * time.Minute),
		HoldHours:   1,
	})
	require.NoError(t, err)

	complaintID := uuid.New()
	paused, err := svc.Pause(ctx, conn, orderID, complaintID)
	require.NoError(t, err)
	assert.True(t, paused.IsPaused)
	require.NotNil(t, paused.RemainingSecondsAtPause)
	assert.InDelta(t, 1800, *paused.RemainingSecondsAtPause, 5)
	require.NotNil(t, paused.ComplaintID)

	// Pausing again is a no-op.
	again, err := svc.Pause(ctx, conn, orderID, complaintID)
	require.NoError(t, err)
	assert.True(t, again.IsPaused)

	resumed, err := svc.Resume(ctx, conn, orderID)
	require.NoError(t, err)
	assert.False(t, resumed.IsPaused)
	assert.Nil(t, resumed.RemainingSecondsAtPause)
	assert.Nil(t, resumed.ComplaintID)
	assert.WithinDuration(t, time.Now().Add(1800*time.Second), resumed.WithdrawableAt, 10*time.Second)
}

func TestResumeWithoutPauseFails(t *testing.T) {
	conn := setupClearanceTestDB(t)
	ctx := context.Background()
	svc := newClearanceService(t, conn)

	orderID := uuid.New()
	_, err := svc.CreateForOrder(ctx, conn, CreateInput{
		OrderID:     orderID,
		TenantID:    uuid.New(),
		CookID:      uuid.New(),
		Amount:      money.FromInt(9000, "NGN"),
		CompletedAt: time.Now(),
		HoldHours:   1,
	})
	require.NoError(t, err)

	_, err = svc.Resume(ctx, conn, orderID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStaleClearance))
}

func TestPauseAfterClearedFlagsForReview(t *testing.T) {
	conn := setupClearanceTestDB(t)
	ctx := context.Background()
	svc := newClearanceService(t, conn)

	orderID := uuid.New()
	row, err := svc.CreateForOrder(ctx, conn, CreateInput{
		OrderID:     orderID,
		TenantID:    uuid.New(),
		CookID:      uuid.New(),
		Amount:      money.FromInt(9000, "NGN"),
		CompletedAt: time.Now().Add(-80 * time.Hour),
		HoldHours:   72,
	})
	require.NoError(t, err)
	require.NoError(t, conn.Model(row).Updates(map[string]any{"is_cleared": true}).Error)

	flagged, err := svc.Pause(ctx, conn, orderID, uuid.New())
	require.NoError(t, err)
	assert.True(t, flagged.IsFlaggedForReview)
	assert.False(t, flagged.IsPaused)
	require.NotNil(t, flagged.BlockedAt)

	// Dismissal unblocks the review flag.
	unflagged, err := svc.Resume(ctx, conn, orderID)
	require.NoError(t, err)
	assert.False(t, unflagged.IsFlaggedForReview)
	require.NotNil(t, unflagged.UnblockedAt)
}

func TestSweepReleasesDueClearances(t *testing.T) {
	conn := setupClearanceTestDB(t)
	ctx := context.Background()
	svc := newClearanceService(t, conn)

	tenantID := uuid.New()
	cookID := uuid.New()
	seedHeldWallet(t, conn, tenantID, cookID, 9000)

	// Hold of 3 hours, completed 4 hours ago: due for release.
	dueOrder := uuid.New()
	_, err := svc.CreateForOrder(ctx, conn, CreateInput{
		OrderID:     dueOrder,
		TenantID:    tenantID,
		CookID:      cookID,
		Amount:      money.FromInt(9000, "NGN"),
		CompletedAt: time.Now().Add(-4 * time.Hour),
		HoldHours:   3,
	})
	require.NoError(t, err)

	// Not yet due.
	_, err = svc.CreateForOrder(ctx, conn, CreateInput{
		OrderID:     uuid.New(),
		TenantID:    tenantID,
		CookID:      cookID,
		Amount:      money.FromInt(100, "NGN"),
		CompletedAt: time.Now(),
		HoldHours:   72,
	})
	require.NoError(t, err)

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Cleared)

	released, err := svc.GetByOrderID(ctx, dueOrder)
	require.NoError(t, err)
	assert.True(t, released.IsCleared)
	require.NotNil(t, released.ClearedAt)

	var w models.Wallet
	require.NoError(t, conn.First(&w, "tenant_id = ? AND user_id = ?", tenantID, cookID).Error)
	assert.True(t, w.WithdrawableBalance.Equal(decimal.NewFromInt(9000)))
	assert.True(t, w.UnwithdrawableBalance.IsZero())

	// A second pass finds nothing to do.
	result, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
}

func TestSweepSkipsFrozenWallets(t *testing.T) {
	conn := setupClearanceTestDB(t)
	ctx := context.Background()
	svc := newClearanceService(t, conn)

	tenantID := uuid.New()
	cookID := uuid.New()
	seedHeldWallet(t, conn, tenantID, cookID, 9000)
	now := time.Now()
	require.NoError(t, conn.Model(&models.Wallet{}).
		Where("tenant_id = ? AND user_id = ?", tenantID, cookID).
		Update("reconciliation_failed_at", now).Error)

	orderID := uuid.New()
	_, err := svc.CreateForOrder(ctx, conn, CreateInput{
		OrderID:     orderID,
		TenantID:    tenantID,
		CookID:      cookID,
		Amount:      money.FromInt(9000, "NGN"),
		CompletedAt: time.Now().Add(-4 * time.Hour),
		HoldHours:   3,
	})
	require.NoError(t, err)

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Cleared)
	assert.Equal(t, 1, result.Skipped)

	still, err := svc.GetByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, still.IsCleared)
}

func TestCancelForRefund(t *testing.T) {
	conn := setupClearanceTestDB(t)
	ctx := context.Background()
	svc := newClearanceService(t, conn)

	orderID := uuid.New()
	_, err := svc.CreateForOrder(ctx, conn, CreateInput{
		OrderID:     orderID,
		TenantID:    uuid.New(),
		CookID:      uuid.New(),
		Amount:      money.FromInt(9000, "NGN"),
		CompletedAt: time.Now(),
		HoldHours:   72,
	})
	require.NoError(t, err)

	result, err := svc.CancelForRefund(ctx, conn, orderID)
	require.NoError(t, err)
	assert.False(t, result.WasCleared)
	assert.True(t, result.Clearance.IsCancelled)

	// Idempotent on repeat.
	result, err = svc.CancelForRefund(ctx, conn, orderID)
	require.NoError(t, err)
	assert.True(t, result.Clearance.IsCancelled)
}
