package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensia/internal/clock"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

func New(p Params) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// GetByParty implements domain.Service.
func (s *Service) GetByParty(ctx context.Context, partyID string) (*subscriptiondomain.Response, error) {
	id, err := snowflake.ParseString(partyID)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidID
	}

	subscription, err := s.repo.FindByPartyID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrNotFound
	}
	return toResponse(subscription), nil
}

// Cancel implements domain.Service. Cancelling keeps the ledger intact and
// only closes the subscription; terminal subscriptions reject the call.
func (s *Service) Cancel(ctx context.Context, partyID string) (*subscriptiondomain.Response, error) {
	id, err := snowflake.ParseString(partyID)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidID
	}

	var out *subscriptiondomain.Response
	err = s.db.Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByPartyID(ctx, tx, id)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}
		if subscription.Status.Terminal() {
			return subscriptiondomain.ErrAlreadyTerminal
		}

		now := s.clock.Now()
		subscription.Status = subscriptiondomain.StatusCancelled
		subscription.CancelledAt = &now
		subscription.NextBillingDate = nil
		subscription.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}

		out = toResponse(subscription)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription cancelled", zap.Int64("party_id", int64(id)))
	return out, nil
}

// CreateForParty implements domain.Service.
func (s *Service) CreateForParty(ctx context.Context, tx *gorm.DB, req subscriptiondomain.CreateForPartyRequest) (*subscriptiondomain.Subscription, error) {
	now := s.clock.Now()
	subscription := &subscriptiondomain.Subscription{
		ID:            s.genID.Generate(),
		PartyID:       req.PartyID,
		Tier:          req.Tier,
		Status:        subscriptiondomain.StatusPending,
		PriceCents:    req.PriceCents,
		Currency:      req.Currency,
		BillingPeriod: req.BillingPeriod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, tx, subscription); err != nil {
		return nil, err
	}
	return subscription, nil
}

// UpdatePlan implements domain.Service.
func (s *Service) UpdatePlan(ctx context.Context, tx *gorm.DB, partyID snowflake.ID, tier string, priceCents int64, period subscriptiondomain.BillingPeriod) error {
	subscription, err := s.repo.FindByPartyID(ctx, tx, partyID)
	if err != nil {
		return err
	}
	if subscription == nil {
		return subscriptiondomain.ErrNotFound
	}
	if subscription.Status.Terminal() {
		return subscriptiondomain.ErrAlreadyTerminal
	}

	subscription.Tier = tier
	subscription.PriceCents = priceCents
	subscription.BillingPeriod = period
	subscription.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, tx, subscription)
}

// ActivateOnPayment implements domain.Service. The new period is anchored at
// the payment time, not at the end of the previous one, matching how a lapsed
// licensee that pays late gets a full period from the day they paid.
func (s *Service) ActivateOnPayment(ctx context.Context, tx *gorm.DB, partyID snowflake.ID, paidAt time.Time) (*subscriptiondomain.ActivationResult, error) {
	subscription, err := s.repo.FindByPartyID(ctx, tx, partyID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrNotFound
	}
	if subscription.Status.Terminal() {
		return nil, subscriptiondomain.ErrAlreadyTerminal
	}

	prev := subscription.Status
	periodEnd := subscriptiondomain.NextPeriodEnd(paidAt, subscription.BillingPeriod)

	subscription.Status = subscriptiondomain.StatusActive
	subscription.CurrentPeriodStart = &paidAt
	subscription.CurrentPeriodEnd = &periodEnd
	subscription.NextBillingDate = &periodEnd
	if subscription.ActivatedAt == nil {
		subscription.ActivatedAt = &paidAt
	}
	subscription.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, tx, subscription); err != nil {
		return nil, err
	}
	return &subscriptiondomain.ActivationResult{
		Subscription:   *subscription,
		PreviousStatus: prev,
	}, nil
}

// DeleteForParty implements domain.Service.
func (s *Service) DeleteForParty(ctx context.Context, tx *gorm.DB, partyID snowflake.ID) error {
	return s.repo.DeleteByPartyID(ctx, tx, partyID)
}

// MarkPastDue implements domain.Service.
func (s *Service) MarkPastDue(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.MarkPastDue(ctx, s.db, now)
}

// ExpireLapsed implements domain.Service.
func (s *Service) ExpireLapsed(ctx context.Context, now time.Time, graceDays int) (int64, error) {
	cutoff := now.AddDate(0, 0, -graceDays)
	return s.repo.ExpireLapsed(ctx, s.db, cutoff, now)
}

func toResponse(subscription *subscriptiondomain.Subscription) *subscriptiondomain.Response {
	return &subscriptiondomain.Response{
		ID:                 subscription.ID.String(),
		PartyID:            subscription.PartyID.String(),
		Tier:               subscription.Tier,
		Status:             subscription.Status,
		PriceCents:         subscription.PriceCents,
		Currency:           subscription.Currency,
		BillingPeriod:      subscription.BillingPeriod,
		CurrentPeriodStart: subscription.CurrentPeriodStart,
		CurrentPeriodEnd:   subscription.CurrentPeriodEnd,
		NextBillingDate:    subscription.NextBillingDate,
		ActivatedAt:        subscription.ActivatedAt,
		CancelledAt:        subscription.CancelledAt,
		ExpiredAt:          subscription.ExpiredAt,
		CreatedAt:          subscription.CreatedAt,
		UpdatedAt:          subscription.UpdatedAt,
	}
}
