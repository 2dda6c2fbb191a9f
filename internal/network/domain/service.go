package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Member is a downline node annotated with its depth relative to the
// queried affiliate (1 = direct referral).
type Member struct {
	Node
	RelativeDepth int `json:"relative_depth"`
}

// Stats summarizes one affiliate's team.
type Stats struct {
	Depth           int   `json:"depth"`
	DirectReferrals int   `json:"direct_referrals"`
	TeamSize        int   `json:"team_size"`
	TeamEarningsCents int64 `json:"team_earnings_cents"`
}

type Service interface {
	// AddNode inserts the affiliate into the tree. A nil parent, or a
	// parent without a node of its own, creates a root. The parent's
	// direct-referral counter and every ancestor's team size update in
	// the same transaction as the insert.
	AddNode(ctx context.Context, affiliateID snowflake.ID, parentID *snowflake.ID) (*Node, error)
	Get(ctx context.Context, affiliateID snowflake.ID) (*Node, error)
	// Upline returns the ancestor nodes nearest first.
	Upline(ctx context.Context, affiliateID snowflake.ID) ([]*Node, error)
	// Downline returns all descendants within maxDepth levels.
	Downline(ctx context.Context, affiliateID snowflake.ID, maxDepth int) ([]*Member, error)
	// CascadeEarnings adds the amount to every ancestor's team
	// earnings counter.
	CascadeEarnings(ctx context.Context, affiliateID snowflake.ID, amountCents int64) error
	// AddTeamEarnings adds the amount to one node's team earnings.
	AddTeamEarnings(ctx context.Context, affiliateID snowflake.ID, amountCents int64) error
	Stats(ctx context.Context, affiliateID snowflake.ID) (*Stats, error)
}

var (
	ErrNodeNotFound  = errors.New("network_node_not_found")
	ErrNodeExists    = errors.New("network_node_exists")
	ErrInvalidDepth  = errors.New("invalid_depth")
	ErrInvalidAmount = errors.New("invalid_team_amount")
)
