package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantSettings holds the per-tenant settlement knobs. Commission and
// hold values are read at credit/completion time and fixed into the
// resulting records, so later edits never rewrite history.
type TenantSettings struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex"`

	CommissionRateBps int64 `gorm:"column:commission_rate_bps;not null"`
	HoldHours         int   `gorm:"column:hold_hours;not null"`

	// PlatformUserID owns the tenant's commission wallet.
	PlatformUserID uuid.UUID `gorm:"column:platform_user_id;type:uuid;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *TenantSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
