// Package domain contains the commission ledger models.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusRefunded Status = "refunded"
)

const (
	// TypeSale is the direct commission for the referring affiliate.
	TypeSale = "sale"
	// CascadeTypePrefix prefixes override commissions earned through
	// the network, suffixed with the ancestor's distance from the
	// seller.
	CascadeTypePrefix = "mlm_level_"
)

// CascadeType names the commission type for an ancestor at the given
// distance from the selling affiliate (1 = direct sponsor).
func CascadeType(depth int) string {
	return fmt.Sprintf("%s%d", CascadeTypePrefix, depth)
}

// Commission is one earned amount tied to an order. Direct sales carry
// Type "sale" and CascadeDepth 0; upline overrides carry
// "mlm_level_N" with CascadeDepth N.
type Commission struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	AffiliateID     snowflake.ID      `gorm:"index;not null" json:"affiliate_id"`
	OrderID         string            `gorm:"type:varchar(64);not null;index" json:"order_id"`
	Type            string            `gorm:"type:varchar(24);not null" json:"type"`
	Rate            float64           `gorm:"not null" json:"rate"`
	AmountCents     int64             `gorm:"not null" json:"amount_cents"`
	OrderTotalCents int64             `gorm:"not null" json:"order_total_cents"`
	CascadeDepth    int               `gorm:"not null;default:0" json:"cascade_depth"`
	Status          Status            `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Commission) TableName() string { return "commissions" }

// ProcessedOrder guards order processing. The unique order ID makes a
// replayed webhook a no-op instead of a duplicate payout.
type ProcessedOrder struct {
	OrderID     string    `gorm:"type:varchar(64);primaryKey" json:"order_id"`
	AffiliateID *snowflake.ID `gorm:"index" json:"affiliate_id,omitempty"`
	ProcessedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"processed_at"`
}

// TableName sets the database table name.
func (ProcessedOrder) TableName() string { return "processed_orders" }
