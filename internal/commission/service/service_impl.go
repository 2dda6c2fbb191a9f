package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	affdomain "github.com/smallbiznis/affina/internal/affiliate/domain"
	comdomain "github.com/smallbiznis/affina/internal/commission/domain"
	"github.com/smallbiznis/affina/internal/config"
	"github.com/smallbiznis/affina/internal/events"
	networkdomain "github.com/smallbiznis/affina/internal/network/domain"
	obsmetrics "github.com/smallbiznis/affina/internal/observability/metrics"
	"github.com/smallbiznis/affina/internal/providers/notify"
	tierdomain "github.com/smallbiznis/affina/internal/tier/domain"
	"github.com/smallbiznis/affina/pkg/db"
	"github.com/smallbiznis/affina/pkg/db/option"
	"github.com/smallbiznis/affina/pkg/db/pagination"
	"github.com/smallbiznis/affina/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Cfg        config.Config
	Policy     *config.CommissionPolicyHolder `optional:"true"`
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Affiliates affdomain.Service
	Network    networkdomain.Service
	Tiers      tierdomain.Service
	Outbox     *events.Outbox                 `optional:"true"`
	Notify     notify.Dispatcher              `optional:"true"`
	Metrics    *obsmetrics.Metrics            `optional:"true"`
}

type Service struct {
	cfg        config.Config
	policyHold *config.CommissionPolicyHolder
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       repository.Repository[comdomain.Commission]
	affiliates affdomain.Service
	network    networkdomain.Service
	tiers      tierdomain.Service
	outbox     *events.Outbox
	notify     notify.Dispatcher
	metrics    *obsmetrics.Metrics
}

func NewService(p ServiceParam) comdomain.Service {
	return &Service{
		cfg:        p.Cfg,
		policyHold: p.Policy,
		db:         p.DB,
		log:        p.Log.Named("commission.service"),
		genID:      p.GenID,
		repo:       repository.ProvideStore[comdomain.Commission](p.DB),
		affiliates: p.Affiliates,
		network:    p.Network,
		tiers:      p.Tiers,
		outbox:     p.Outbox,
		notify:     p.Notify,
		metrics:    p.Metrics,
	}
}

// policy returns the live commission policy when a reloadable holder
// is wired, falling back to the boot-time config otherwise.
func (s *Service) policy() config.CommissionConfig {
	if s.policyHold != nil {
		return s.policyHold.Get()
	}
	return s.cfg.Commission
}

// commissionAmount rounds to the nearest cent.
func commissionAmount(baseCents int64, rate float64) int64 {
	return int64(math.Round(float64(baseCents) * rate / 100))
}

func (s *Service) ProcessSale(ctx context.Context, req comdomain.SaleRequest) (*comdomain.SaleResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, comdomain.ErrInvalidOrder
	}
	if req.TotalCents <= 0 || req.TaxCents < 0 || req.TaxCents > req.TotalCents {
		return nil, comdomain.ErrInvalidTotal
	}

	affiliate, err := s.affiliates.ResolveForOrder(ctx, affdomain.OrderAttribution{
		AffiliateID: req.AffiliateID,
		Code:        req.Code,
		CustomerID:  req.CustomerID,
	})
	if err != nil {
		return nil, err
	}

	// The processed marker goes in first. A duplicate key here means a
	// replayed webhook, which succeeds without creating anything.
	marker := comdomain.ProcessedOrder{OrderID: orderID, ProcessedAt: time.Now().UTC()}
	if affiliate != nil {
		marker.AffiliateID = &affiliate.ID
	}
	if err := s.db.WithContext(ctx).Create(&marker).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.log.Info("order already processed", zap.String("order_id", orderID))
			return &comdomain.SaleResult{OrderID: orderID, AlreadyProcessed: true}, nil
		}
		return nil, err
	}

	result := &comdomain.SaleResult{OrderID: orderID}
	if affiliate == nil {
		s.log.Info("order has no attributable affiliate", zap.String("order_id", orderID))
		return result, nil
	}
	result.AffiliateID = &affiliate.ID
	if !affiliate.Status.Earning() {
		s.log.Info("attributed affiliate not active, skipping commissions",
			zap.String("order_id", orderID),
			zap.String("affiliate_id", affiliate.ID.String()),
			zap.String("status", string(affiliate.Status)),
		)
		return result, nil
	}

	commissionable := req.TotalCents - req.TaxCents
	policy := s.policy()

	rate, err := s.directRate(ctx, affiliate, req.ProductRate, policy.DefaultRate)
	if err != nil {
		return nil, err
	}

	direct, err := s.createCommission(ctx, createCommissionInput{
		affiliate:       affiliate.ID,
		orderID:         orderID,
		ctype:           comdomain.TypeSale,
		rate:            rate,
		amountCents:     commissionAmount(commissionable, rate),
		orderTotalCents: commissionable,
		cascadeDepth:    0,
		currency:        req.Currency,
	})
	if err != nil {
		return nil, err
	}
	if direct != nil {
		result.Commissions = append(result.Commissions, direct)
		s.notifyCommission(ctx, direct, notify.EventNewCommission)
	}

	if policy.MLMEnabled {
		cascaded, err := s.cascade(ctx, affiliate.ID, orderID, commissionable, req.Currency, policy.MaxCascadeDepth)
		if err != nil {
			// Earlier ancestor credits are already committed. The gap
			// is logged for reconciliation rather than rolled back.
			s.log.Error("cascade incomplete",
				zap.String("order_id", orderID),
				zap.String("affiliate_id", affiliate.ID.String()),
				zap.Int("cascaded", len(cascaded)),
				zap.Error(err),
			)
		}
		result.Commissions = append(result.Commissions, cascaded...)
	}

	if _, _, err := s.affiliates.RecomputeTier(ctx, affiliate.ID); err != nil {
		s.log.Warn("tier recompute failed after sale",
			zap.String("affiliate_id", affiliate.ID.String()),
			zap.Error(err),
		)
	}

	return result, nil
}

// directRate resolves the direct commission rate: a product-specific
// override beats the affiliate's qualifying tier rate, which beats the
// configured default.
func (s *Service) directRate(ctx context.Context, affiliate *affdomain.Affiliate, productRate *float64, defaultRate float64) (float64, error) {
	if productRate != nil && *productRate >= 0 {
		return *productRate, nil
	}
	tier, err := s.tiers.Qualifying(ctx, affiliate.LifetimeEarningsCents, affiliate.TotalReferrals)
	if err != nil {
		return 0, err
	}
	if tier == nil {
		return defaultRate, nil
	}
	return tier.CommissionRate, nil
}

// cascade walks the seller's upline nearest first. An inactive
// ancestor is skipped but still consumes its depth slot, so deeper
// ancestors keep their own rates. Each ancestor's credit commits
// independently.
func (s *Service) cascade(ctx context.Context, sellerID snowflake.ID, orderID string, baseCents int64, currency string, maxDepth int) ([]*comdomain.Commission, error) {
	upline, err := s.network.Upline(ctx, sellerID)
	if err != nil {
		if errors.Is(err, networkdomain.ErrNodeNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var created []*comdomain.Commission
	for i, node := range upline {
		depth := i + 1
		if depth > maxDepth {
			break
		}

		ancestor, err := s.affiliates.Get(ctx, node.AffiliateID)
		if err != nil {
			if errors.Is(err, affdomain.ErrNotFound) {
				continue
			}
			return created, err
		}
		if !ancestor.Status.Earning() {
			s.log.Debug("skipping inactive ancestor",
				zap.String("order_id", orderID),
				zap.String("ancestor_id", ancestor.ID.String()),
				zap.Int("depth", depth),
			)
			continue
		}

		tier, err := s.tiers.Qualifying(ctx, ancestor.LifetimeEarningsCents, ancestor.TotalReferrals)
		if err != nil {
			return created, err
		}
		var rate float64
		if tier != nil {
			rate = tier.CascadeRateAt(depth)
		}
		if rate <= 0 {
			continue
		}

		commission, err := s.createCommission(ctx, createCommissionInput{
			affiliate:       ancestor.ID,
			orderID:         orderID,
			ctype:           comdomain.CascadeType(depth),
			rate:            rate,
			amountCents:     commissionAmount(baseCents, rate),
			orderTotalCents: baseCents,
			cascadeDepth:    depth,
			teamEarnings:    true,
			currency:        currency,
		})
		if err != nil {
			return created, err
		}
		if commission == nil {
			continue
		}
		created = append(created, commission)
		if s.metrics != nil {
			s.metrics.CascadeDepth.Observe(float64(depth))
		}
		s.notifyCommission(ctx, commission, notify.EventCascadeCommission)
	}
	return created, nil
}

type createCommissionInput struct {
	affiliate       snowflake.ID
	orderID         string
	ctype           string
	rate            float64
	amountCents     int64
	orderTotalCents int64
	cascadeDepth    int
	teamEarnings    bool
	currency        string
}

// createCommission writes the commission row and the affiliate's
// counter updates in one transaction. Zero amounts create nothing.
func (s *Service) createCommission(ctx context.Context, in createCommissionInput) (*comdomain.Commission, error) {
	if in.amountCents <= 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	commission := comdomain.Commission{
		ID:              s.genID.Generate(),
		AffiliateID:     in.affiliate,
		OrderID:         in.orderID,
		Type:            in.ctype,
		Rate:            in.rate,
		AmountCents:     in.amountCents,
		OrderTotalCents: in.orderTotalCents,
		CascadeDepth:    in.cascadeDepth,
		Status:          comdomain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.currency != "" {
		commission.Metadata = datatypes.JSONMap{"currency": in.currency}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&commission).Error; err != nil {
			return err
		}
		if err := tx.Model(&affdomain.Affiliate{}).
			Where("id = ?", in.affiliate).
			Updates(map[string]any{
				"lifetime_earnings_cents": gorm.Expr("lifetime_earnings_cents + ?", in.amountCents),
				"current_balance_cents":   gorm.Expr("current_balance_cents + ?", in.amountCents),
				"updated_at":              now,
			}).Error; err != nil {
			return err
		}
		if in.teamEarnings {
			if err := tx.Model(&networkdomain.Node{}).
				Where("affiliate_id = ?", in.affiliate).
				UpdateColumn("team_earnings_cents", gorm.Expr("team_earnings_cents + ?", in.amountCents)).Error; err != nil {
				return err
			}
		}
		if s.outbox != nil {
			event := events.Event{
				Type:      events.EventCommissionCreated,
				DedupeKey: fmt.Sprintf("commission:%s:%s:created", in.orderID, in.ctype),
				Payload: events.CommissionPayload{
					CommissionID: commission.ID.String(),
					AffiliateID:  in.affiliate.String(),
					OrderID:      in.orderID,
					Type:         in.ctype,
					AmountCents:  in.amountCents,
					Rate:         in.rate,
				}.ToMap(),
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

	if s.metrics != nil {
		s.metrics.CommissionsCreated.WithLabelValues(in.ctype).Inc()
	}
	return &commission, nil
}

// notifyCommission dispatches a commission event to the optional
// notifier. A nil dispatcher means notifications are disabled.
func (s *Service) notifyCommission(ctx context.Context, commission *comdomain.Commission, event string) {
	if s.notify == nil {
		return
	}
	s.notify.Dispatch(ctx, notify.Notification{
		AffiliateID: commission.AffiliateID.String(),
		Event:       event,
		Payload: map[string]any{
			"order_id":     commission.OrderID,
			"amount_cents": commission.AmountCents,
		},
	})
}

func (s *Service) ProcessRefund(ctx context.Context, req comdomain.RefundRequest) (*comdomain.RefundResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, comdomain.ErrInvalidOrder
	}

	var marker comdomain.ProcessedOrder
	if err := s.db.WithContext(ctx).First(&marker, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, comdomain.ErrOrderNotFound
		}
		return nil, err
	}

	commissions, err := s.repo.Find(ctx, &comdomain.Commission{OrderID: orderID, Status: comdomain.StatusPending})
	if err != nil {
		return nil, err
	}

	result := &comdomain.RefundResult{OrderID: orderID}
	for _, commission := range commissions {
		if err := s.refundOne(ctx, commission); err != nil {
			s.log.Error("commission refund failed",
				zap.String("order_id", orderID),
				zap.String("commission_id", commission.ID.String()),
				zap.Error(err),
			)
			return result, err
		}
		result.Refunded = append(result.Refunded, commission)

		if s.notify != nil {
			s.notify.Dispatch(ctx, notify.Notification{
				AffiliateID: commission.AffiliateID.String(),
				Event:       notify.EventCommissionRefunded,
				Payload: map[string]any{
					"order_id":     orderID,
					"amount_cents": commission.AmountCents,
				},
			})
		}
	}
	return result, nil
}

// refundOne flips one pending commission to refunded and reverses the
// counters it granted. The current balance clamps at zero; lifetime
// earnings come back in full.
func (s *Service) refundOne(ctx context.Context, commission *comdomain.Commission) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated := tx.Model(&comdomain.Commission{}).
			Where("id = ? AND status = ?", commission.ID, comdomain.StatusPending).
			Updates(map[string]any{
				"status":     comdomain.StatusRefunded,
				"updated_at": now,
			})
		if updated.Error != nil {
			return updated.Error
		}
		if updated.RowsAffected == 0 {
			return comdomain.ErrNotPending
		}

		var affiliate affdomain.Affiliate
		if err := db.LockForUpdate(tx).First(&affiliate, "id = ?", commission.AffiliateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return affdomain.ErrNotFound
			}
			return err
		}
		updates := map[string]any{
			"lifetime_earnings_cents": gorm.Expr("lifetime_earnings_cents - ?", commission.AmountCents),
			"updated_at":              now,
		}
		if affiliate.CurrentBalanceCents >= commission.AmountCents {
			updates["current_balance_cents"] = gorm.Expr("current_balance_cents - ?", commission.AmountCents)
		} else {
			updates["current_balance_cents"] = int64(0)
		}
		if err := tx.Model(&affdomain.Affiliate{}).Where("id = ?", commission.AffiliateID).Updates(updates).Error; err != nil {
			return err
		}

		if commission.CascadeDepth > 0 {
			if err := tx.Model(&networkdomain.Node{}).
				Where("affiliate_id = ?", commission.AffiliateID).
				UpdateColumn("team_earnings_cents", gorm.Expr("team_earnings_cents - ?", commission.AmountCents)).Error; err != nil {
				return err
			}
		}

		if s.outbox != nil {
			event := events.Event{
				Type:      events.EventCommissionRefunded,
				DedupeKey: fmt.Sprintf("commission:%s:refunded", commission.ID),
				Payload: events.CommissionPayload{
					CommissionID: commission.ID.String(),
					AffiliateID:  commission.AffiliateID.String(),
					OrderID:      commission.OrderID,
					Type:         commission.Type,
					AmountCents:  commission.AmountCents,
					Rate:         commission.Rate,
				}.ToMap(),
			}
			if err := s.outbox.PublishTx(ctx, tx, event); err != nil {
				return err
			}
		}

		commission.Status = comdomain.StatusRefunded
		commission.UpdatedAt = now
		return nil
	})
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID) (*comdomain.Commission, error) {
	commission, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if commission.Status != comdomain.StatusPending {
		return nil, comdomain.ErrNotPending
	}

	now := time.Now().UTC()
	updated := s.db.WithContext(ctx).Model(&comdomain.Commission{}).
		Where("id = ? AND status = ?", id, comdomain.StatusPending).
		Updates(map[string]any{
			"status":     comdomain.StatusPaid,
			"paid_at":    now,
			"updated_at": now,
		})
	if updated.Error != nil {
		return nil, updated.Error
	}
	if updated.RowsAffected == 0 {
		return nil, comdomain.ErrNotPending
	}

	commission.Status = comdomain.StatusPaid
	commission.PaidAt = &now
	commission.UpdatedAt = now

	if s.outbox != nil {
		event := events.Event{
			Type:      events.EventCommissionPaid,
			DedupeKey: fmt.Sprintf("commission:%s:paid", id),
			Payload: events.CommissionPayload{
				CommissionID: id.String(),
				AffiliateID:  commission.AffiliateID.String(),
				OrderID:      commission.OrderID,
				Type:         commission.Type,
				AmountCents:  commission.AmountCents,
				Rate:         commission.Rate,
			}.ToMap(),
		}
		if err := s.outbox.Publish(ctx, event); err != nil {
			s.log.Warn("paid event not published", zap.Error(err))
		}
	}
	return commission, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*comdomain.Commission, error) {
	commission, err := s.repo.FindOne(ctx, &comdomain.Commission{ID: id})
	if err != nil {
		return nil, err
	}
	if commission == nil {
		return nil, comdomain.ErrNotFound
	}
	return commission, nil
}

func (s *Service) List(ctx context.Context, req comdomain.ListRequest) ([]*comdomain.Commission, *pagination.PageInfo, error) {
	query := &comdomain.Commission{OrderID: strings.TrimSpace(req.OrderID)}
	if req.AffiliateID != nil {
		query.AffiliateID = *req.AffiliateID
	}
	if req.Status != "" {
		query.Status = req.Status
	}

	rows, err := s.repo.Find(ctx, query,
		option.ApplyPagination(req.Pagination),
		option.WithSortBy("id", "desc"),
	)
	if err != nil {
		return nil, nil, err
	}

	data, pageInfo := pagination.BuildCursorPageInfo(rows, req.PageSize, func(c *comdomain.Commission) string {
		return c.ID.String()
	})
	return data, pageInfo, nil
}

func (s *Service) Summary(ctx context.Context, affiliateID snowflake.ID) (*comdomain.Summary, error) {
	summary := &comdomain.Summary{AffiliateID: affiliateID}

	rows, err := s.repo.Find(ctx, &comdomain.Commission{AffiliateID: affiliateID})
	if err != nil {
		return nil, err
	}
	for _, commission := range rows {
		switch commission.Status {
		case comdomain.StatusPending:
			summary.PendingCents += commission.AmountCents
		case comdomain.StatusPaid:
			summary.PaidCents += commission.AmountCents
		case comdomain.StatusRefunded:
			summary.RefundedCents += commission.AmountCents
		}
		if commission.CascadeDepth > 0 {
			summary.CascadeCount++
		} else {
			summary.DirectCount++
		}
	}
	return summary, nil
}
