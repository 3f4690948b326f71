package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// StatusMapping binds a marketplace order status to a CRM pipeline stage.
// Within one pipeline the lowest active sort_order wins when several rows
// share the same kaspi status.
type StatusMapping struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	KaspiStatus   string       `gorm:"not null;index:idx_status_pipeline" json:"kaspi_status"`
	AmoPipelineID int64        `gorm:"not null;index:idx_status_pipeline" json:"amo_pipeline_id"`
	AmoStatusID   int64        `gorm:"not null" json:"amo_status_id"`
	SortOrder     int          `gorm:"not null;default:0" json:"sort_order"`
	IsActive      bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (StatusMapping) TableName() string { return "status_mapping" }
