package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/pagination"
)

// ErrStaleBalance is returned when a guarded balance update found the
// wallet row changed underneath it.
var ErrStaleBalance = errors.New("wallet balance changed concurrently")

// BalanceSnapshot holds the balances a guarded update expects to find.
type BalanceSnapshot struct {
	Total          decimal.Decimal
	Withdrawable   decimal.Decimal
	Unwithdrawable decimal.Decimal
}

// Repository manages persistence for wallets and their ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetByTenantUser(ctx context.Context, tenantID, userID uuid.UUID) (*models.Wallet, error)
	GetOrCreate(ctx context.Context, tenantID, userID uuid.UUID, currency string) (*models.Wallet, error)
	UpdateBalances(ctx context.Context, wallet *models.Wallet, expected BalanceSnapshot) error
	SetReconciliationFailed(ctx context.Context, walletID uuid.UUID, at time.Time) error
	ClearReconciliationFailed(ctx context.Context, walletID uuid.UUID) error
	CreateTransaction(ctx context.Context, entry *models.WalletTransaction) error
	ListTransactions(ctx context.Context, tenantID, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error)
	ListAllTransactions(ctx context.Context, tenantID, userID uuid.UUID) ([]models.WalletTransaction, error)
	ListTransactionsByOrder(ctx context.Context, userID, orderID uuid.UUID) ([]models.WalletTransaction, error)
	GetTenantSettings(ctx context.Context, tenantID uuid.UUID) (*models.TenantSettings, error)
	ListForReconciliation(ctx context.Context, limit int) ([]models.Wallet, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var row models.Wallet
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) GetByTenantUser(ctx context.Context, tenantID, userID uuid.UUID) (*models.Wallet, error) {
	var row models.Wallet
	err := r.db.WithContext(ctx).
		First(&row, "tenant_id = ? AND user_id = ?", tenantID, userID).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) GetOrCreate(ctx context.Context, tenantID, userID uuid.UUID, currency string) (*models.Wallet, error) {
	existing, err := r.GetByTenantUser(ctx, tenantID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	row := &models.Wallet{
		TenantID:              tenantID,
		UserID:                userID,
		TotalBalance:          decimal.Zero,
		WithdrawableBalance:   decimal.Zero,
		UnwithdrawableBalance: decimal.Zero,
		Currency:              currency,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// UpdateBalances writes the wallet's balances only if they still match the
// snapshot taken when the wallet was read. A concurrent writer surfaces as
// ErrStaleBalance and the caller's transaction should be retried.
func (r *repository) UpdateBalances(ctx context.Context, wallet *models.Wallet, expected BalanceSnapshot) error {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", wallet.ID).
		Where("total_balance = ? AND withdrawable_balance = ? AND unwithdrawable_balance = ?",
			expected.Total, expected.Withdrawable, expected.Unwithdrawable).
		Updates(map[string]any{
			"total_balance":          wallet.TotalBalance,
			"withdrawable_balance":   wallet.WithdrawableBalance,
			"unwithdrawable_balance": wallet.UnwithdrawableBalance,
			"updated_at":             time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleBalance
	}
	return nil
}

func (r *repository) SetReconciliationFailed(ctx context.Context, walletID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("reconciliation_failed_at", at).Error
}

func (r *repository) ClearReconciliationFailed(ctx context.Context, walletID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("reconciliation_failed_at", nil).Error
}

func (r *repository) CreateTransaction(ctx context.Context, entry *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListTransactions(ctx context.Context, tenantID, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, string, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.WalletTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (r *repository) ListAllTransactions(ctx context.Context, tenantID, userID uuid.UUID) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListTransactionsByOrder(ctx context.Context, userID, orderID uuid.UUID) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND order_id = ?", userID, orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) GetTenantSettings(ctx context.Context, tenantID uuid.UUID) (*models.TenantSettings, error) {
	var row models.TenantSettings
	err := r.db.WithContext(ctx).First(&row, "tenant_id = ?", tenantID).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListForReconciliation returns wallets still under automated
// settlement, least recently touched first. Frozen wallets stay out of
// the sweep until an operator clears them.
func (r *repository) ListForReconciliation(ctx context.Context, limit int) ([]models.Wallet, error) {
	var rows []models.Wallet
	err := r.db.WithContext(ctx).
		Where("reconciliation_failed_at IS NULL").
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
