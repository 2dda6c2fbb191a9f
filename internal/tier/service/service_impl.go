package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/affina/internal/cache"
	tierdomain "github.com/smallbiznis/affina/internal/tier/domain"
	"github.com/smallbiznis/affina/pkg/db"
	"github.com/smallbiznis/affina/pkg/db/option"
	"github.com/smallbiznis/affina/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const cacheTTL = 5 * time.Minute

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	tierrepo repository.Repository[tierdomain.Tier]
	byLevel  *cache.Memo[int, tierdomain.Tier]
}

func NewService(p ServiceParam) tierdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tier.service"),
		genID:    p.GenID,
		tierrepo: repository.ProvideStore[tierdomain.Tier](p.DB),
		byLevel:  cache.New[int, tierdomain.Tier](cacheTTL),
	}
}

func (s *Service) GetByLevel(ctx context.Context, level int) (*tierdomain.Tier, error) {
	if level <= 0 {
		return nil, tierdomain.ErrInvalidLevel
	}
	if cached, ok := s.byLevel.Get(level); ok {
		return &cached, nil
	}

	tier, err := s.tierrepo.FindOne(ctx, &tierdomain.Tier{Level: level})
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, tierdomain.ErrNotFound
	}

	s.byLevel.Put(level, *tier)
	return tier, nil
}

func (s *Service) Qualifying(ctx context.Context, lifetimeEarningsCents int64, totalReferrals int) (*tierdomain.Tier, error) {
	tiers, err := s.tierrepo.Find(ctx, &tierdomain.Tier{},
		option.ApplyOperator(option.Condition{Field: "min_earnings_cents", Operator: option.LTE, Value: lifetimeEarningsCents}),
		option.ApplyOperator(option.Condition{Field: "min_referrals", Operator: option.LTE, Value: totalReferrals}),
		option.WithSortBy("level", "desc"),
		option.WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, nil
	}
	return tiers[0], nil
}

func (s *Service) List(ctx context.Context) ([]*tierdomain.Tier, error) {
	return s.tierrepo.Find(ctx, &tierdomain.Tier{}, option.WithSortBy("level", "asc"))
}

func (s *Service) Create(ctx context.Context, req tierdomain.CreateTierRequest) (*tierdomain.Tier, error) {
	if req.Level <= 0 {
		return nil, tierdomain.ErrInvalidLevel
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, tierdomain.ErrInvalidName
	}
	if req.CommissionRate < 0 || req.CascadeRateL1 < 0 || req.CascadeRateL2 < 0 || req.CascadeRateL3 < 0 {
		return nil, tierdomain.ErrInvalidRate
	}

	name := strings.TrimSpace(req.Name)
	tier := &tierdomain.Tier{
		ID:               s.genID.Generate(),
		Level:            req.Level,
		Name:             name,
		Slug:             slug.Make(name),
		MinEarningsCents: req.MinEarningsCents,
		MinReferrals:     req.MinReferrals,
		CommissionRate:   req.CommissionRate,
		CascadeRateL1:    req.CascadeRateL1,
		CascadeRateL2:    req.CascadeRateL2,
		CascadeRateL3:    req.CascadeRateL3,
		Perks:            datatypes.JSONMap(req.Perks),
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.tierrepo.Create(ctx, tier); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, tierdomain.ErrLevelExists
		}
		return nil, err
	}

	s.byLevel.Evict(req.Level)
	return tier, nil
}
