package disputes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
)

// Repository manages persistence for complaints.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, complaint *models.Complaint) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Complaint, error)
	GetOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Complaint, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Complaint, error)
	Save(ctx context.Context, complaint *models.Complaint) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a complaint repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, complaint *models.Complaint) error {
	return r.db.WithContext(ctx).Create(complaint).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Complaint, error) {
	var row models.Complaint
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) GetOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Complaint, error) {
	var row models.Complaint
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.ComplaintStatusOpen).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Complaint, error) {
	var rows []models.Complaint
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Save(ctx context.Context, complaint *models.Complaint) error {
	return r.db.WithContext(ctx).Save(complaint).Error
}
