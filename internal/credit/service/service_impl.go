package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	creditdomain "github.com/smallbiznis/affina/internal/credit/domain"
	"github.com/smallbiznis/affina/internal/events"
	obsmetrics "github.com/smallbiznis/affina/internal/observability/metrics"
	"github.com/smallbiznis/affina/pkg/db"
	"github.com/smallbiznis/affina/pkg/db/option"
	"github.com/smallbiznis/affina/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Outbox  *events.Outbox      `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	balrepo repository.Repository[creditdomain.Balance]
	jrepo   repository.Repository[creditdomain.JournalEntry]
	outbox  *events.Outbox
	metrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) creditdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("credit.service"),
		genID:   p.GenID,
		balrepo: repository.ProvideStore[creditdomain.Balance](p.DB),
		jrepo:   repository.ProvideStore[creditdomain.JournalEntry](p.DB),
		outbox:  p.Outbox,
		metrics: p.Metrics,
	}
}

func (s *Service) CreateBalance(ctx context.Context, req creditdomain.CreateBalanceRequest) (*creditdomain.Balance, error) {
	ownerType := strings.TrimSpace(req.OwnerType)
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return nil, creditdomain.ErrInvalidOwner
	}
	switch ownerType {
	case creditdomain.OwnerTypeLicense, creditdomain.OwnerTypeAffiliate:
	default:
		return nil, creditdomain.ErrInvalidOwner
	}
	if req.Total < 0 {
		return nil, creditdomain.ErrInvalidAmount
	}

	now := time.Now().UTC()
	balance := &creditdomain.Balance{
		ID:        s.genID.Generate(),
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Total:     req.Total,
		Consumed:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.balrepo.Create(ctx, balance); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, creditdomain.ErrBalanceExists
		}
		return nil, err
	}
	return balance, nil
}

func (s *Service) Get(ctx context.Context, balanceID string) (*creditdomain.Balance, error) {
	id, err := s.parseID(balanceID)
	if err != nil {
		return nil, err
	}
	balance, err := s.balrepo.FindOne(ctx, &creditdomain.Balance{ID: id})
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, creditdomain.ErrBalanceNotFound
	}
	return balance, nil
}

// Debit serializes concurrent spenders on the balance row: the second
// caller waits for the first one's lock, re-reads the balance and then
// decides. Either the balance update and journal entry both commit or
// neither does.
func (s *Service) Debit(ctx context.Context, req creditdomain.DebitRequest) (*creditdomain.DebitResult, error) {
	id, err := s.parseID(req.BalanceID)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, creditdomain.ErrInvalidAmount
	}
	action := strings.TrimSpace(req.Action)
	if action == "" {
		action = "usage"
	}
	requestID := strings.TrimSpace(req.RequestID)

	var result *creditdomain.DebitResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var balance creditdomain.Balance
		if err := db.LockForUpdate(tx).First(&balance, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return creditdomain.ErrBalanceNotFound
			}
			return err
		}

		if requestID != "" {
			var prior creditdomain.JournalEntry
			err := tx.Where("balance_id = ? AND request_id = ?", id, requestID).First(&prior).Error
			if err == nil {
				// Remaining is the snapshot the original debit recorded.
				// Consumed and Total come from the locked row so a grant
				// between the debit and its replay does not skew them.
				result = &creditdomain.DebitResult{
					Remaining: prior.BalanceAfter,
					Consumed:  balance.Consumed,
					Total:     balance.Total,
					Replayed:  true,
				}
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		newConsumed := balance.Consumed + req.Amount
		remaining := balance.Total - newConsumed
		if remaining < 0 {
			return creditdomain.ErrInsufficientBalance
		}

		if err := tx.Model(&creditdomain.Balance{}).
			Where("id = ?", id).
			Updates(map[string]any{"consumed": newConsumed, "updated_at": time.Now().UTC()}).Error; err != nil {
			return err
		}

		entry := creditdomain.JournalEntry{
			ID:           s.genID.Generate(),
			BalanceID:    id,
			Direction:    creditdomain.JournalDirectionDebit,
			Amount:       req.Amount,
			BalanceAfter: remaining,
			Action:       action,
			Metadata:     datatypes.JSONMap(req.Metadata),
			CreatedAt:    time.Now().UTC(),
		}
		if requestID != "" {
			entry.RequestID = &requestID
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		if s.outbox != nil {
			payload := events.DebitPayload{
				BalanceID:    id.String(),
				JournalID:    entry.ID.String(),
				Amount:       req.Amount,
				BalanceAfter: remaining,
				Action:       action,
			}
			if err := s.outbox.PublishTx(ctx, tx, events.Event{
				Type:    events.EventCreditDebited,
				Payload: payload.ToMap(),
			}); err != nil {
				return err
			}
		}

		result = &creditdomain.DebitResult{
			Remaining: remaining,
			Consumed:  newConsumed,
			Total:     balance.Total,
		}
		return nil
	})
	if err != nil {
		s.recordDebit(outcomeFor(err))
		return nil, err
	}

	s.recordDebit("ok")
	s.log.Debug("credits deducted",
		zap.String("balance_id", id.String()),
		zap.String("action", action),
		zap.Int64("amount", req.Amount),
		zap.Int64("remaining", result.Remaining),
	)
	return result, nil
}

func (s *Service) Grant(ctx context.Context, req creditdomain.GrantRequest) (*creditdomain.DebitResult, error) {
	id, err := s.parseID(req.BalanceID)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, creditdomain.ErrInvalidAmount
	}
	action := strings.TrimSpace(req.Action)
	if action == "" {
		action = "grant"
	}

	var result *creditdomain.DebitResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var balance creditdomain.Balance
		if err := db.LockForUpdate(tx).First(&balance, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return creditdomain.ErrBalanceNotFound
			}
			return err
		}

		newTotal := balance.Total + req.Amount
		remaining := newTotal - balance.Consumed

		if err := tx.Model(&creditdomain.Balance{}).
			Where("id = ?", id).
			Updates(map[string]any{"total": newTotal, "updated_at": time.Now().UTC()}).Error; err != nil {
			return err
		}

		entry := creditdomain.JournalEntry{
			ID:           s.genID.Generate(),
			BalanceID:    id,
			Direction:    creditdomain.JournalDirectionCredit,
			Amount:       req.Amount,
			BalanceAfter: remaining,
			Action:       action,
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		if s.outbox != nil {
			if err := s.outbox.PublishTx(ctx, tx, events.Event{
				Type: events.EventCreditGranted,
				Payload: events.DebitPayload{
					BalanceID:    id.String(),
					JournalID:    entry.ID.String(),
					Amount:       req.Amount,
					BalanceAfter: remaining,
					Action:       action,
				}.ToMap(),
			}); err != nil {
				return err
			}
		}

		result = &creditdomain.DebitResult{
			Remaining: remaining,
			Consumed:  balance.Consumed,
			Total:     newTotal,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) HasSufficient(ctx context.Context, balanceID string, needed int64) (bool, error) {
	balance, err := s.Get(ctx, balanceID)
	if err != nil {
		return false, err
	}
	return balance.Remaining() >= needed, nil
}

func (s *Service) Journal(ctx context.Context, balanceID string) ([]*creditdomain.JournalEntry, error) {
	id, err := s.parseID(balanceID)
	if err != nil {
		return nil, err
	}
	return s.jrepo.Find(ctx, &creditdomain.JournalEntry{BalanceID: id},
		option.WithSortBy("id", "asc"),
	)
}

func (s *Service) parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, creditdomain.ErrInvalidBalanceID
	}
	return id, nil
}

func (s *Service) recordDebit(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.DebitsTotal.WithLabelValues(outcome).Inc()
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, creditdomain.ErrInsufficientBalance):
		return "insufficient"
	case errors.Is(err, creditdomain.ErrBalanceNotFound):
		return "not_found"
	default:
		return "error"
	}
}
