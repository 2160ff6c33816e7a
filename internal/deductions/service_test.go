package deductions

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/money"
)

func setupDeductionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.PendingDeduction{}))
	return db
}

func newDeduction(t *testing.T, db *gorm.DB, walletID uuid.UUID, amount int64) *models.PendingDeduction {
	t.Helper()

	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	row, err := svc.Create(context.Background(), db, CreateInput{
		WalletID: walletID,
		TenantID: uuid.New(),
		UserID:   uuid.New(),
		OrderID:  uuid.New(),
		Amount:   money.FromInt(amount, "NGN"),
		Reason:   "refund shortfall",
	})
	require.NoError(t, err)
	return row
}

func TestCreateValidation(t *testing.T) {
	db := setupDeductionsTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), db, CreateInput{
		WalletID: uuid.Nil,
		OrderID:  uuid.New(),
		Amount:   money.FromInt(100, "NGN"),
		Reason:   "refund shortfall",
	})
	assert.Error(t, err)

	_, err = svc.Create(context.Background(), db, CreateInput{
		WalletID: uuid.New(),
		OrderID:  uuid.New(),
		Amount:   money.FromInt(0, "NGN"),
		Reason:   "refund shortfall",
	})
	assert.Error(t, err)
}

func TestSettleAgainstFIFO(t *testing.T) {
	db := setupDeductionsTestDB(t)
	ctx := context.Background()
	walletID := uuid.New()

	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	first := newDeduction(t, db, walletID, 3000)
	second := newDeduction(t, db, walletID, 4000)

	// A 5,000 credit repays the first deduction fully and the second partially.
	result, err := svc.SettleAgainst(ctx, db, walletID, money.FromInt(5000, "NGN"))
	require.NoError(t, err)
	require.Len(t, result.Settlements, 2)

	assert.Equal(t, "3000", result.Settlements[0].Applied.Amount.String())
	assert.Equal(t, first.ID, result.Settlements[0].DeductionID)
	assert.True(t, result.Settlements[0].Remaining.IsZero())

	assert.Equal(t, "2000", result.Settlements[1].Applied.Amount.String())
	assert.Equal(t, second.ID, result.Settlements[1].DeductionID)
	assert.Equal(t, "2000", result.Settlements[1].Remaining.Amount.String())

	assert.Equal(t, "5000", result.Applied.Amount.String())

	outstanding, err := svc.OutstandingTotal(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, "2000", outstanding.Amount.String())

	// Settled rows survive as an audit trail.
	var settled models.PendingDeduction
	require.NoError(t, db.First(&settled, "id = ?", first.ID).Error)
	require.NotNil(t, settled.SettledAt)
	assert.Equal(t, "3000", settled.OriginalAmount.String())
}

func TestSettleAgainstStopsWhenExhausted(t *testing.T) {
	db := setupDeductionsTestDB(t)
	ctx := context.Background()
	walletID := uuid.New()

	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	newDeduction(t, db, walletID, 3000)
	untouched := newDeduction(t, db, walletID, 4000)

	result, err := svc.SettleAgainst(ctx, db, walletID, money.FromInt(1500, "NGN"))
	require.NoError(t, err)
	require.Len(t, result.Settlements, 1)
	assert.Equal(t, "1500", result.Applied.Amount.String())

	var row models.PendingDeduction
	require.NoError(t, db.First(&row, "id = ?", untouched.ID).Error)
	assert.Equal(t, "4000", row.RemainingAmount.String())
	assert.Nil(t, row.SettledAt)
}

func TestSettleAgainstNoOutstanding(t *testing.T) {
	db := setupDeductionsTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	result, err := svc.SettleAgainst(context.Background(), db, uuid.New(), money.FromInt(5000, "NGN"))
	require.NoError(t, err)
	assert.Empty(t, result.Settlements)
	assert.True(t, result.Applied.IsZero())
}
