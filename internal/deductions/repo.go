package deductions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/db/models"
)

// Repository manages persistence for pending deductions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, deduction *models.PendingDeduction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PendingDeduction, error)
	ListOutstanding(ctx context.Context, walletID uuid.UUID) ([]models.PendingDeduction, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]models.PendingDeduction, error)
	Save(ctx context.Context, deduction *models.PendingDeduction) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a pending deduction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, deduction *models.PendingDeduction) error {
	return r.db.WithContext(ctx).Create(deduction).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.PendingDeduction, error) {
	var row models.PendingDeduction
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ListOutstanding returns unsettled deductions oldest first. Settlement
// order is strictly FIFO.
func (r *repository) ListOutstanding(ctx context.Context, walletID uuid.UUID) ([]models.PendingDeduction, error) {
	var rows []models.PendingDeduction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND settled_at IS NULL", walletID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]models.PendingDeduction, error) {
	var rows []models.PendingDeduction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Save(ctx context.Context, deduction *models.PendingDeduction) error {
	return r.db.WithContext(ctx).Save(deduction).Error
}
