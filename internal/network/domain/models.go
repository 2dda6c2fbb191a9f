// Package domain contains persistence models for the affiliate network tree.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Node places one affiliate in the referral forest. The ancestor chain
// is materialized in Path ("/root/mid/self") so upline and downline
// queries are prefix scans instead of recursive lookups. Depth always
// equals the number of path segments.
type Node struct {
	AffiliateID     snowflake.ID  `gorm:"primaryKey"`
	ParentID        *snowflake.ID `gorm:"index"`
	Depth           int           `gorm:"not null"`
	Path            string        `gorm:"type:text;not null;index"`
	DirectReferrals int           `gorm:"not null;default:0"`
	TeamSize        int           `gorm:"not null;default:0"`
	TeamEarningsCents int64       `gorm:"not null;default:0"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Node) TableName() string { return "network_nodes" }

// Ancestors returns the ancestor IDs from the materialized path,
// root first, excluding the node itself.
func (n Node) Ancestors() []snowflake.ID {
	ids := ParsePath(n.Path)
	if len(ids) == 0 {
		return nil
	}
	return ids[:len(ids)-1]
}

// ParsePath splits a materialized path into its IDs, root first.
// Malformed segments are dropped.
func ParsePath(path string) []snowflake.ID {
	parts := strings.Split(path, "/")
	ids := make([]snowflake.ID, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		id, err := snowflake.ParseString(part)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
