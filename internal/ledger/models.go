package ledger

import (
	"time"

	"github.com/google/uuid"
)

// TradeFillModel is one executed fill on a venue.
type TradeFillModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Venue      string    `gorm:"not null;index"`
	Asset      string    `gorm:"not null;index"`
	Side       string    `gorm:"not null"` // "buy" or "sell"
	Qty        float64   `gorm:"not null"`
	Price      float64   `gorm:"not null"`
	Fee        float64   `gorm:"not null"`
	ExecutedAt time.Time `gorm:"not null;index"`
}

func (TradeFillModel) TableName() string { return "trade_fills" }

// BalanceRowModel is the current holding of one asset on one venue.
// One row per (venue, asset); ingestion upserts rather than appends.
type BalanceRowModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Venue     string    `gorm:"not null;uniqueIndex:idx_balance_venue_asset"`
	Asset     string    `gorm:"not null;uniqueIndex:idx_balance_venue_asset"`
	Free      float64   `gorm:"not null"`
	Locked    float64   `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (BalanceRowModel) TableName() string { return "balance_rows" }

// ValuationSnapshotModel is a point-in-time portfolio valuation across
// all venues, recorded by the ingestion job.
type ValuationSnapshotModel struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	AsOf     time.Time `gorm:"not null;index"`
	TotalUSD float64   `gorm:"not null;column:total_usd"`
	Venues   int       `gorm:"not null"`
}

func (ValuationSnapshotModel) TableName() string { return "valuation_snapshots" }
