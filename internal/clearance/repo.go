package clearance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/db/models"
)

// Repository manages persistence for order clearances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, clearance *models.OrderClearance) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.OrderClearance, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderClearance, error)
	Save(ctx context.Context, clearance *models.OrderClearance) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.OrderClearance, error)
	ListByCook(ctx context.Context, tenantID, cookID uuid.UUID) ([]models.OrderClearance, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a clearance repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, clearance *models.OrderClearance) error {
	return r.db.WithContext(ctx).Create(clearance).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.OrderClearance, error) {
	var row models.OrderClearance
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderClearance, error) {
	var row models.OrderClearance
	if err := r.db.WithContext(ctx).First(&row, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Save(ctx context.Context, clearance *models.OrderClearance) error {
	return r.db.WithContext(ctx).Save(clearance).Error
}

// ListDue returns clearances whose hold period has elapsed and which are
// still live (not cleared, paused, or cancelled), oldest due first.
func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.OrderClearance, error) {
	var rows []models.OrderClearance
	err := r.db.WithContext(ctx).
		Where("withdrawable_at <= ?", now).
		Where("is_cleared = ? AND is_paused = ? AND is_cancelled = ?", false, false, false).
		Order("withdrawable_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByCook(ctx context.Context, tenantID, cookID uuid.UUID) ([]models.OrderClearance, error) {
	var rows []models.OrderClearance
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND cook_id = ?", tenantID, cookID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
