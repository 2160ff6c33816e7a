package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chopdirect/settlement/pkg/enums"
)

// Complaint is the dispute anchor linked from an order's clearance.
type Complaint struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID  uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	TenantID uuid.UUID `gorm:"column:tenant_id;type:uuid;not null"`
	ClientID uuid.UUID `gorm:"column:client_id;type:uuid;not null"`

	Reason string                `gorm:"column:reason;type:text;not null"`
	Status enums.ComplaintStatus `gorm:"column:status;type:text;not null;default:'open'"`

	ResolvedAt *time.Time `gorm:"column:resolved_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Complaint) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
