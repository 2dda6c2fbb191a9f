package domain

import (
	"context"
	"errors"
)

type CreateTierRequest struct {
	Level            int            `json:"level"`
	Name             string         `json:"name"`
	MinEarningsCents int64          `json:"min_earnings_cents"`
	MinReferrals     int            `json:"min_referrals"`
	CommissionRate   float64        `json:"commission_rate"`
	CascadeRateL1    float64        `json:"cascade_rate_l1"`
	CascadeRateL2    float64        `json:"cascade_rate_l2"`
	CascadeRateL3    float64        `json:"cascade_rate_l3"`
	Perks            map[string]any `json:"perks"`
}

type Service interface {
	GetByLevel(ctx context.Context, level int) (*Tier, error)
	// Qualifying returns the highest tier whose minimums are met, or
	// nil when no tier qualifies.
	Qualifying(ctx context.Context, lifetimeEarningsCents int64, totalReferrals int) (*Tier, error)
	List(ctx context.Context) ([]*Tier, error)
	Create(ctx context.Context, req CreateTierRequest) (*Tier, error)
}

var (
	ErrNotFound     = errors.New("tier_not_found")
	ErrInvalidLevel = errors.New("invalid_level")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidRate  = errors.New("invalid_rate")
	ErrLevelExists  = errors.New("level_exists")
)
