// Package domain contains persistence models for the commission tier table.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Tier defines the commission rates unlocked at a given level. Levels
// are totally ordered; an affiliate's active tier is the highest level
// whose earnings and referral minimums are both met.
type Tier struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	Level            int               `gorm:"not null;uniqueIndex"`
	Name             string            `gorm:"type:text;not null"`
	Slug             string            `gorm:"type:text;not null;default:''"`
	MinEarningsCents int64             `gorm:"not null;default:0"`
	MinReferrals     int               `gorm:"not null;default:0"`
	CommissionRate   float64           `gorm:"not null"` // percent applied to direct sales
	CascadeRateL1    float64           `gorm:"not null;default:0"`
	CascadeRateL2    float64           `gorm:"not null;default:0"`
	CascadeRateL3    float64           `gorm:"not null;default:0"`
	Perks            datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tier) TableName() string { return "tiers" }

// CascadeRateAt returns the cascade percentage for the given upline
// depth. Depths beyond the configured three levels pay nothing.
func (t Tier) CascadeRateAt(depth int) float64 {
	switch depth {
	case 1:
		return t.CascadeRateL1
	case 2:
		return t.CascadeRateL2
	case 3:
		return t.CascadeRateL3
	default:
		return 0
	}
}
