package domain

import "time"

// SyncRecord is the durable mapping between a Kaspi order and the amoCRM lead
// created for it. At most one live claim (non-null processing token) may exist
// per order code; AmoLeadID > 0 means the order is terminally synced and must
// never be claimed again.
type SyncRecord struct {
	OrderCode       string     `gorm:"column:order_code;primaryKey"`
	KaspiOrderID    int64      `gorm:"column:kaspi_order_id;not null"`
	AmoLeadID       int64      `gorm:"column:amo_lead_id;not null;default:0"`
	TotalPrice      int64      `gorm:"column:total_price;not null;default:0"`
	KaspiStatus     string     `gorm:"column:kaspi_status"`
	ProcessingToken *string    `gorm:"column:processing_token"`
	ProcessingAt    *time.Time `gorm:"column:processing_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null"`
}

func (SyncRecord) TableName() string { return "sync_records" }

// Synced reports whether the record points at a live downstream lead.
func (r SyncRecord) Synced() bool {
	return r.AmoLeadID > 0
}

// Reservation is the outcome of a claim attempt.
type Reservation struct {
	Claimed bool
	Token   string
}
