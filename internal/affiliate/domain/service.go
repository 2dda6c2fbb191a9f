package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affina/pkg/db/pagination"
)

type CreateAffiliateRequest struct {
	UserID       string  `json:"user_id" binding:"required"`
	Code         string  `json:"code"`
	ReferrerCode string  `json:"referrer_code"`
	Status       *Status `json:"status"`
}

type UpdateStatusRequest struct {
	Status Status `json:"status" binding:"required"`
}

type LinkCustomerRequest struct {
	CustomerID  string       `json:"customer_id" binding:"required"`
	AffiliateID snowflake.ID `json:"affiliate_id,string" binding:"required"`
}

// OrderAttribution carries the signals an incoming order may have for
// resolving which affiliate earns on it.
type OrderAttribution struct {
	AffiliateID *snowflake.ID
	Code        string
	CustomerID  string
}

type ListRequest struct {
	pagination.Pagination
	Status Status `form:"status"`
}

type AffiliateStats struct {
	Affiliate      Affiliate `json:"affiliate"`
	TierLevel      int       `json:"tier_level"`
	EarningsCents  int64     `json:"earnings_cents"`
	BalanceCents   int64     `json:"balance_cents"`
	TotalReferrals int       `json:"total_referrals"`
}

type Service interface {
	Create(ctx context.Context, req CreateAffiliateRequest) (*Affiliate, error)
	Get(ctx context.Context, id snowflake.ID) (*Affiliate, error)
	GetByCode(ctx context.Context, code string) (*Affiliate, error)
	List(ctx context.Context, req ListRequest) ([]*Affiliate, *pagination.PageInfo, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status Status) (*Affiliate, error)
	// RecordEarnings adds a paid commission amount to the affiliate's
	// lifetime and current balance counters.
	RecordEarnings(ctx context.Context, id snowflake.ID, amountCents int64) error
	// ReverseEarnings claws back a refunded commission. The current
	// balance never drops below zero; lifetime earnings are reduced in
	// full.
	ReverseEarnings(ctx context.Context, id snowflake.ID, amountCents int64) error
	// RecomputeTier re-evaluates the affiliate's tier from lifetime
	// earnings and referral counts. Tiers only move up.
	RecomputeTier(ctx context.Context, id snowflake.ID) (*Affiliate, bool, error)
	Stats(ctx context.Context, id snowflake.ID) (*AffiliateStats, error)
	Leaderboard(ctx context.Context, limit int) ([]*Affiliate, error)
	LinkCustomer(ctx context.Context, req LinkCustomerRequest) (*CustomerLink, error)
	// ResolveForOrder picks the earning affiliate for an order:
	// explicit affiliate ID first, then referral code, then the
	// customer's lifetime link. Returns (nil, nil) when nothing
	// matches.
	ResolveForOrder(ctx context.Context, attr OrderAttribution) (*Affiliate, error)
}

var (
	ErrNotFound      = errors.New("affiliate_not_found")
	ErrCodeNotFound  = errors.New("affiliate_code_not_found")
	ErrUserExists    = errors.New("affiliate_user_exists")
	ErrCodeExists    = errors.New("affiliate_code_exists")
	ErrInvalidStatus = errors.New("invalid_affiliate_status")
	ErrInvalidCode   = errors.New("invalid_affiliate_code")
	ErrInvalidAmount = errors.New("invalid_earning_amount")
	ErrNotEarning    = errors.New("affiliate_not_active")
)
