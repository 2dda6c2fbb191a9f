// Package domain contains persistence models for the credit ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Owner types for balances.
const (
	OwnerTypeLicense   = "license"
	OwnerTypeAffiliate = "affiliate"
)

// JournalDirection marks whether an entry consumed or added credits.
type JournalDirection string

const (
	JournalDirectionDebit  JournalDirection = "debit"
	JournalDirectionCredit JournalDirection = "credit"
)

// Balance tracks consumable credits for one license or affiliate. The
// canonical representation is total plus consumed; remaining is always
// derived, never stored.
type Balance struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OwnerType string       `gorm:"type:text;not null;uniqueIndex:ux_balances_owner,priority:1"`
	OwnerID   string       `gorm:"type:text;not null;uniqueIndex:ux_balances_owner,priority:2"`
	Total     int64        `gorm:"not null;default:0"`
	Consumed  int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Balance) TableName() string { return "balances" }

// Remaining derives the spendable credits.
func (b Balance) Remaining() int64 { return b.Total - b.Consumed }

// JournalEntry is the append-only audit record for balance movements.
// Entries are never updated or deleted; replaying them in creation
// order reproduces every balance-after snapshot.
type JournalEntry struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	BalanceID    snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_journal_entries_request,priority:1"`
	Direction    JournalDirection  `gorm:"type:text;not null"`
	Amount       int64             `gorm:"not null"` // positive; direction gives the sign
	BalanceAfter int64             `gorm:"not null"` // remaining credits after this entry
	Action       string            `gorm:"type:text;not null"`
	RequestID    *string           `gorm:"type:text;uniqueIndex:ux_journal_entries_request,priority:2"` // replay scope is one balance
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (JournalEntry) TableName() string { return "journal_entries" }
