// Package domain contains the affiliate account models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRejected  Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusRejected:
		return true
	}
	return false
}

// Earning returns true when the affiliate may receive commissions.
func (s Status) Earning() bool { return s == StatusActive }

// Affiliate is one partner account. Code is the public referral
// handle carried in tracking links and order metadata. The earnings
// counters here are denormalized totals; the journal of record lives
// in the commission rows.
type Affiliate struct {
	ID                    snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID                string        `gorm:"type:varchar(64);not null;uniqueIndex:ux_affiliates_user" json:"user_id"`
	Code                  string        `gorm:"type:varchar(32);not null;uniqueIndex:ux_affiliates_code" json:"code"`
	ReferrerID            *snowflake.ID `gorm:"index" json:"referrer_id,omitempty"`
	Status                Status        `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	TierLevel             int           `gorm:"not null;default:1" json:"tier_level"`
	LifetimeEarningsCents int64         `gorm:"not null;default:0" json:"lifetime_earnings_cents"`
	CurrentBalanceCents   int64         `gorm:"not null;default:0" json:"current_balance_cents"`
	TotalReferrals        int           `gorm:"not null;default:0" json:"total_referrals"`
	CreatedAt             time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Affiliate) TableName() string { return "affiliates" }

// CustomerLink binds a customer to the affiliate who first referred
// them. With lifetime attribution enabled it decides who earns on
// later orders that carry no code of their own.
type CustomerLink struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID  string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_customer_links_customer" json:"customer_id"`
	AffiliateID snowflake.ID `gorm:"index;not null" json:"affiliate_id"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (CustomerLink) TableName() string { return "customer_links" }
