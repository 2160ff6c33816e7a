package withdrawals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/db/models"
	"github.com/chopdirect/settlement/pkg/enums"
	"github.com/chopdirect/settlement/pkg/pagination"
)

// Repository persists payout requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	Save(ctx context.Context, row *models.Withdrawal) error
	ListByCook(ctx context.Context, tenantID, cookID uuid.UUID, params pagination.Params) ([]models.Withdrawal, string, error)
	ListStaleInFlight(ctx context.Context, olderThan time.Time, limit int) ([]models.Withdrawal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a withdrawal repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, row *models.Withdrawal) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var row models.Withdrawal
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Save(ctx context.Context, row *models.Withdrawal) error {
	return r.db.WithContext(ctx).Save(row).Error
}

func (r *repository) ListByCook(ctx context.Context, tenantID, cookID uuid.UUID, params pagination.Params) ([]models.Withdrawal, string, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND cook_id = ?", tenantID, cookID).
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

	var rows []models.Withdrawal
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

// ListStaleInFlight returns unflagged payout requests that have sat in a
// non-terminal status past the given cutoff.
func (r *repository) ListStaleInFlight(ctx context.Context, olderThan time.Time, limit int) ([]models.Withdrawal, error) {
	var rows []models.Withdrawal
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ? AND flagged_at IS NULL",
			[]enums.WithdrawalStatus{enums.WithdrawalStatusRequested, enums.WithdrawalStatusProcessing},
			olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
