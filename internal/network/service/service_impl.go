package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	networkdomain "github.com/smallbiznis/affina/internal/network/domain"
	"github.com/smallbiznis/affina/pkg/db"
	"github.com/smallbiznis/affina/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	noderepo repository.Repository[networkdomain.Node]
}

func NewService(p ServiceParam) networkdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("network.service"),
		noderepo: repository.ProvideStore[networkdomain.Node](p.DB),
	}
}

func (s *Service) AddNode(ctx context.Context, affiliateID snowflake.ID, parentID *snowflake.ID) (*networkdomain.Node, error) {
	var created *networkdomain.Node
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		node := networkdomain.Node{
			AffiliateID: affiliateID,
			Depth:       1,
			Path:        fmt.Sprintf("/%s", affiliateID),
			CreatedAt:   time.Now().UTC(),
		}

		var parent *networkdomain.Node
		if parentID != nil {
			var row networkdomain.Node
			err := tx.First(&row, "affiliate_id = ?", *parentID).Error
			switch {
			case err == nil:
				parent = &row
			case errors.Is(err, gorm.ErrRecordNotFound):
				// A claimed parent without a tree node is treated as a
				// root insertion rather than a dangling reference.
				s.log.Warn("parent node missing, inserting as root",
					zap.String("affiliate_id", affiliateID.String()),
					zap.String("parent_id", parentID.String()),
				)
			default:
				return err
			}
		}

		if parent != nil {
			node.ParentID = &parent.AffiliateID
			node.Depth = parent.Depth + 1
			node.Path = fmt.Sprintf("%s/%s", parent.Path, affiliateID)
		}

		if err := tx.Create(&node).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return networkdomain.ErrNodeExists
			}
			return err
		}

		if parent != nil {
			if err := tx.Model(&networkdomain.Node{}).
				Where("affiliate_id = ?", parent.AffiliateID).
				UpdateColumn("direct_referrals", gorm.Expr("direct_referrals + 1")).Error; err != nil {
				return err
			}

			for _, ancestorID := range node.Ancestors() {
				if err := tx.Model(&networkdomain.Node{}).
					Where("affiliate_id = ?", ancestorID).
					UpdateColumn("team_size", gorm.Expr("team_size + 1")).Error; err != nil {
					return err
				}
			}
		}

		created = &node
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, affiliateID snowflake.ID) (*networkdomain.Node, error) {
	node, err := s.noderepo.FindOne(ctx, &networkdomain.Node{AffiliateID: affiliateID})
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, networkdomain.ErrNodeNotFound
	}
	return node, nil
}

func (s *Service) Upline(ctx context.Context, affiliateID snowflake.ID) ([]*networkdomain.Node, error) {
	node, err := s.Get(ctx, affiliateID)
	if err != nil {
		return nil, err
	}

	ancestors := node.Ancestors()
	if len(ancestors) == 0 {
		return nil, nil
	}

	var rows []*networkdomain.Node
	if err := s.db.WithContext(ctx).
		Where("affiliate_id IN ?", ancestors).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	byID := make(map[snowflake.ID]*networkdomain.Node, len(rows))
	for _, row := range rows {
		byID[row.AffiliateID] = row
	}

	// Nearest ancestor first.
	upline := make([]*networkdomain.Node, 0, len(ancestors))
	for i := len(ancestors) - 1; i >= 0; i-- {
		if row, ok := byID[ancestors[i]]; ok {
			upline = append(upline, row)
		}
	}
	return upline, nil
}

func (s *Service) Downline(ctx context.Context, affiliateID snowflake.ID, maxDepth int) ([]*networkdomain.Member, error) {
	if maxDepth <= 0 {
		return nil, networkdomain.ErrInvalidDepth
	}
	node, err := s.Get(ctx, affiliateID)
	if err != nil {
		return nil, err
	}

	var rows []*networkdomain.Node
	if err := s.db.WithContext(ctx).
		Where("path LIKE ?", node.Path+"/%").
		Where("depth <= ?", node.Depth+maxDepth).
		Order("depth asc, created_at desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	members := make([]*networkdomain.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, &networkdomain.Member{
			Node:          *row,
			RelativeDepth: row.Depth - node.Depth,
		})
	}
	return members, nil
}

func (s *Service) CascadeEarnings(ctx context.Context, affiliateID snowflake.ID, amountCents int64) error {
	if amountCents <= 0 {
		return networkdomain.ErrInvalidAmount
	}
	node, err := s.Get(ctx, affiliateID)
	if err != nil {
		return err
	}

	ancestors := node.Ancestors()
	if len(ancestors) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Model(&networkdomain.Node{}).
		Where("affiliate_id IN ?", ancestors).
		UpdateColumn("team_earnings_cents", gorm.Expr("team_earnings_cents + ?", amountCents)).Error
}

func (s *Service) AddTeamEarnings(ctx context.Context, affiliateID snowflake.ID, amountCents int64) error {
	if amountCents <= 0 {
		return networkdomain.ErrInvalidAmount
	}
	return s.db.WithContext(ctx).Model(&networkdomain.Node{}).
		Where("affiliate_id = ?", affiliateID).
		UpdateColumn("team_earnings_cents", gorm.Expr("team_earnings_cents + ?", amountCents)).Error
}

func (s *Service) Stats(ctx context.Context, affiliateID snowflake.ID) (*networkdomain.Stats, error) {
	node, err := s.Get(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	return &networkdomain.Stats{
		Depth:           node.Depth,
		DirectReferrals: node.DirectReferrals,
		TeamSize:        node.TeamSize,
		TeamEarningsCents: node.TeamEarningsCents,
	}, nil
}
