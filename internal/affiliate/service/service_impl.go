package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	affdomain "github.com/smallbiznis/affina/internal/affiliate/domain"
	"github.com/smallbiznis/affina/internal/config"
	"github.com/smallbiznis/affina/internal/events"
	networkdomain "github.com/smallbiznis/affina/internal/network/domain"
	"github.com/smallbiznis/affina/internal/providers/notify"
	tierdomain "github.com/smallbiznis/affina/internal/tier/domain"
	"github.com/smallbiznis/affina/pkg/db"
	"github.com/smallbiznis/affina/pkg/db/option"
	"github.com/smallbiznis/affina/pkg/db/pagination"
	"github.com/smallbiznis/affina/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// codeAlphabet deliberately drops 0/O and 1/I so codes survive being
// read aloud or retyped from printed material.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const codeLength = 8

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

type ServiceParam struct {
	fx.In

	Cfg     config.Config
	Policy  *config.CommissionPolicyHolder `optional:"true"`
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Network networkdomain.Service
	Tiers   tierdomain.Service
	Outbox  *events.Outbox                 `optional:"true"`
	Notify  notify.Dispatcher              `optional:"true"`
}

type Service struct {
	cfg     config.Config
	policy  *config.CommissionPolicyHolder
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    repository.Repository[affdomain.Affiliate]
	links   repository.Repository[affdomain.CustomerLink]
	network networkdomain.Service
	tiers   tierdomain.Service
	outbox  *events.Outbox
	notify  notify.Dispatcher
}

func NewService(p ServiceParam) affdomain.Service {
	return &Service{
		cfg:     p.Cfg,
		policy:  p.Policy,
		db:      p.DB,
		log:     p.Log.Named("affiliate.service"),
		genID:   p.GenID,
		repo:    repository.ProvideStore[affdomain.Affiliate](p.DB),
		links:   repository.ProvideStore[affdomain.CustomerLink](p.DB),
		network: p.Network,
		tiers:   p.Tiers,
		outbox:  p.Outbox,
		notify:  p.Notify,
	}
}

func (s *Service) lifetimeAttribution() bool {
	if s.policy != nil {
		return s.policy.Get().LifetimeAttribution
	}
	return s.cfg.Commission.LifetimeAttribution
}

func (s *Service) Create(ctx context.Context, req affdomain.CreateAffiliateRequest) (*affdomain.Affiliate, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, affdomain.ErrNotFound
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code != "" && !codePattern.MatchString(code) {
		return nil, affdomain.ErrInvalidCode
	}
	if code == "" {
		generated, err := s.generateCode(ctx)
		if err != nil {
			return nil, err
		}
		code = generated
	}

	status := affdomain.StatusPending
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, affdomain.ErrInvalidStatus
		}
		status = *req.Status
	}

	var referrer *affdomain.Affiliate
	if referrerCode := strings.TrimSpace(req.ReferrerCode); referrerCode != "" {
		row, err := s.GetByCode(ctx, referrerCode)
		if err != nil && !errors.Is(err, affdomain.ErrCodeNotFound) {
			return nil, err
		}
		// An unknown referrer code does not block signup, only the
		// tree placement.
		if row == nil {
			s.log.Warn("referrer code not found, creating without referrer",
				zap.String("user_id", userID),
				zap.String("referrer_code", referrerCode),
			)
		}
		referrer = row
	}

	affiliate := affdomain.Affiliate{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Code:      code,
		Status:    status,
		TierLevel: 1,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if referrer != nil {
		affiliate.ReferrerID = &referrer.ID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&affiliate).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				var existing affdomain.Affiliate
				if lookupErr := tx.First(&existing, "user_id = ?", userID).Error; lookupErr == nil {
					return affdomain.ErrUserExists
				}
				return affdomain.ErrCodeExists
			}
			return err
		}

		if referrer != nil {
			if err := tx.Model(&affdomain.Affiliate{}).
				Where("id = ?", referrer.ID).
				UpdateColumn("total_referrals", gorm.Expr("total_referrals + 1")).Error; err != nil {
				return err
			}
		}

		if s.outbox != nil {
			event := events.Event{
				Type:      events.EventAffiliateCreated,
				DedupeKey: fmt.Sprintf("affiliate:%s:created", affiliate.ID),
				Payload: map[string]any{
					"affiliate_id": affiliate.ID.String(),
					"user_id":      affiliate.UserID,
					"code":         affiliate.Code,
					"status":       string(affiliate.Status),
				},
			}
			if err := s.outbox.PublishTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var parentID *snowflake.ID
	if referrer != nil {
		parentID = &referrer.ID
	}
	if _, err := s.network.AddNode(ctx, affiliate.ID, parentID); err != nil && !errors.Is(err, networkdomain.ErrNodeExists) {
		return nil, err
	}

	if s.notify != nil {
		s.notify.Dispatch(ctx, notify.Notification{
			AffiliateID: affiliate.ID.String(),
			Event:       notify.EventWelcome,
			Payload:     map[string]any{"code": affiliate.Code},
		})
	}

	return &affiliate, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*affdomain.Affiliate, error) {
	affiliate, err := s.repo.FindOne(ctx, &affdomain.Affiliate{ID: id})
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, affdomain.ErrNotFound
	}
	return affiliate, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*affdomain.Affiliate, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, affdomain.ErrCodeNotFound
	}
	affiliate, err := s.repo.FindOne(ctx, &affdomain.Affiliate{Code: code})
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, affdomain.ErrCodeNotFound
	}
	return affiliate, nil
}

func (s *Service) List(ctx context.Context, req affdomain.ListRequest) ([]*affdomain.Affiliate, *pagination.PageInfo, error) {
	query := &affdomain.Affiliate{}
	if req.Status != "" {
		if !req.Status.Valid() {
			return nil, nil, affdomain.ErrInvalidStatus
		}
		query.Status = req.Status
	}

	rows, err := s.repo.Find(ctx, query,
		option.ApplyPagination(req.Pagination),
		option.WithSortBy("id", "desc"),
	)
	if err != nil {
		return nil, nil, err
	}

	data, pageInfo := pagination.BuildCursorPageInfo(rows, req.PageSize, func(a *affdomain.Affiliate) string {
		return a.ID.String()
	})
	return data, pageInfo, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status affdomain.Status) (*affdomain.Affiliate, error) {
	if !status.Valid() {
		return nil, affdomain.ErrInvalidStatus
	}
	affiliate, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affiliate.Status == status {
		return affiliate, nil
	}

	if err := s.db.WithContext(ctx).Model(&affdomain.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return nil, err
	}
	affiliate.Status = status

	if s.notify != nil {
		s.notify.Dispatch(ctx, notify.Notification{
			AffiliateID: id.String(),
			Event:       notify.EventStatusChanged,
			Payload:     map[string]any{"status": string(status)},
		})
	}
	return affiliate, nil
}

func (s *Service) RecordEarnings(ctx context.Context, id snowflake.ID, amountCents int64) error {
	if amountCents <= 0 {
		return affdomain.ErrInvalidAmount
	}
	result := s.db.WithContext(ctx).Model(&affdomain.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"lifetime_earnings_cents": gorm.Expr("lifetime_earnings_cents + ?", amountCents),
			"current_balance_cents":   gorm.Expr("current_balance_cents + ?", amountCents),
			"updated_at":              time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return affdomain.ErrNotFound
	}
	return nil
}

func (s *Service) ReverseEarnings(ctx context.Context, id snowflake.ID, amountCents int64) error {
	if amountCents <= 0 {
		return affdomain.ErrInvalidAmount
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var affiliate affdomain.Affiliate
		if err := db.LockForUpdate(tx).First(&affiliate, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return affdomain.ErrNotFound
			}
			return err
		}

		updates := map[string]any{
			"lifetime_earnings_cents": gorm.Expr("lifetime_earnings_cents - ?", amountCents),
			"updated_at":              time.Now().UTC(),
		}
		// The withdrawable balance clamps at zero; amounts already
		// paid out cannot be clawed back here.
		if affiliate.CurrentBalanceCents >= amountCents {
			updates["current_balance_cents"] = gorm.Expr("current_balance_cents - ?", amountCents)
		} else {
			updates["current_balance_cents"] = int64(0)
		}
		return tx.Model(&affdomain.Affiliate{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (s *Service) RecomputeTier(ctx context.Context, id snowflake.ID) (*affdomain.Affiliate, bool, error) {
	affiliate, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	tier, err := s.tiers.Qualifying(ctx, affiliate.LifetimeEarningsCents, affiliate.TotalReferrals)
	if err != nil {
		return nil, false, err
	}
	if tier == nil || tier.Level <= affiliate.TierLevel {
		return affiliate, false, nil
	}

	if err := s.db.WithContext(ctx).Model(&affdomain.Affiliate{}).
		Where("id = ? AND tier_level < ?", id, tier.Level).
		Updates(map[string]any{
			"tier_level": tier.Level,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return nil, false, err
	}
	affiliate.TierLevel = tier.Level

	s.log.Info("tier upgraded",
		zap.String("affiliate_id", id.String()),
		zap.Int("tier_level", tier.Level),
		zap.String("tier_name", tier.Name),
	)

	if s.outbox != nil {
		event := events.Event{
			Type:      events.EventTierUpgraded,
			DedupeKey: fmt.Sprintf("affiliate:%s:tier:%d", id, tier.Level),
			Payload: map[string]any{
				"affiliate_id": id.String(),
				"tier_level":   tier.Level,
				"tier_name":    tier.Name,
			},
		}
		if err := s.outbox.Publish(ctx, event); err != nil {
			s.log.Warn("tier upgrade event not published", zap.Error(err))
		}
	}
	if s.notify != nil {
		s.notify.Dispatch(ctx, notify.Notification{
			AffiliateID: id.String(),
			Event:       notify.EventTierUpgrade,
			Payload:     map[string]any{"tier_level": tier.Level, "tier_name": tier.Name},
		})
	}
	return affiliate, true, nil
}

func (s *Service) Stats(ctx context.Context, id snowflake.ID) (*affdomain.AffiliateStats, error) {
	affiliate, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &affdomain.AffiliateStats{
		Affiliate:      *affiliate,
		TierLevel:      affiliate.TierLevel,
		EarningsCents:  affiliate.LifetimeEarningsCents,
		BalanceCents:   affiliate.CurrentBalanceCents,
		TotalReferrals: affiliate.TotalReferrals,
	}, nil
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*affdomain.Affiliate, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.repo.Find(ctx, &affdomain.Affiliate{Status: affdomain.StatusActive},
		option.WithSortBy("lifetime_earnings_cents", "desc"),
		option.WithLimit(limit),
	)
}

func (s *Service) LinkCustomer(ctx context.Context, req affdomain.LinkCustomerRequest) (*affdomain.CustomerLink, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, affdomain.ErrNotFound
	}
	if _, err := s.Get(ctx, req.AffiliateID); err != nil {
		return nil, err
	}

	link := affdomain.CustomerLink{
		ID:          s.genID.Generate(),
		CustomerID:  customerID,
		AffiliateID: req.AffiliateID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.links.Create(ctx, &link); err != nil {
		// First touch wins: a customer already linked keeps the
		// original affiliate.
		if db.IsDuplicateKeyErr(err) {
			existing, lookupErr := s.links.FindOne(ctx, &affdomain.CustomerLink{CustomerID: customerID})
			if lookupErr != nil {
				return nil, lookupErr
			}
			return existing, nil
		}
		return nil, err
	}
	return &link, nil
}

func (s *Service) ResolveForOrder(ctx context.Context, attr affdomain.OrderAttribution) (*affdomain.Affiliate, error) {
	if attr.AffiliateID != nil {
		affiliate, err := s.Get(ctx, *attr.AffiliateID)
		if err != nil && !errors.Is(err, affdomain.ErrNotFound) {
			return nil, err
		}
		if affiliate != nil {
			return affiliate, nil
		}
	}

	if code := strings.TrimSpace(attr.Code); code != "" {
		affiliate, err := s.GetByCode(ctx, code)
		if err != nil && !errors.Is(err, affdomain.ErrCodeNotFound) {
			return nil, err
		}
		if affiliate != nil {
			return affiliate, nil
		}
	}

	if !s.lifetimeAttribution() {
		return nil, nil
	}
	customerID := strings.TrimSpace(attr.CustomerID)
	if customerID == "" {
		return nil, nil
	}
	link, err := s.links.FindOne(ctx, &affdomain.CustomerLink{CustomerID: customerID})
	if err != nil || link == nil {
		return nil, err
	}
	affiliate, err := s.Get(ctx, link.AffiliateID)
	if errors.Is(err, affdomain.ErrNotFound) {
		return nil, nil
	}
	return affiliate, err
}

func (s *Service) generateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		buf := make([]byte, codeLength)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for i := range buf {
			buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
		}
		code := string(buf)

		count, err := s.repo.Count(ctx, &affdomain.Affiliate{Code: code})
		if err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", affdomain.ErrCodeExists
}
