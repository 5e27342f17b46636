package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/licensia/internal/billing/domain"
	"github.com/smallbiznis/licensia/internal/clock"
	"github.com/smallbiznis/licensia/internal/commission"
	ledgerdomain "github.com/smallbiznis/licensia/internal/ledger/domain"
	"github.com/smallbiznis/licensia/internal/observability/metrics"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	"github.com/smallbiznis/licensia/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const paymentLockTTL = 30 * time.Second

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock   clock.Clock
	metrics *metrics.Metrics
	locker  *ratelimit.Locker

	partyRepo        partydomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	subscriptionsvc  subscriptiondomain.Service
	ledgersvc        ledgerdomain.Service
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics  `optional:"true"`
	Locker  *ratelimit.Locker `optional:"true"`

	PartyRepo        partydomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	Subscriptionsvc  subscriptiondomain.Service
	Ledgersvc        ledgerdomain.Service
}

func New(p Params) billingdomain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("billing.service"),
		clock:            p.Clock,
		metrics:          p.Metrics,
		locker:           p.Locker,
		partyRepo:        p.PartyRepo,
		subscriptionRepo: p.SubscriptionRepo,
		subscriptionsvc:  p.Subscriptionsvc,
		ledgersvc:        p.Ledgersvc,
	}
}

// RecordPayment implements domain.Service.
func (s *Service) RecordPayment(ctx context.Context, req billingdomain.RecordPaymentRequest) (*billingdomain.PaymentResult, error) {
	if req.AmountCents <= 0 {
		return nil, billingdomain.ErrInvalidAmount
	}
	sourceTxID := strings.TrimSpace(req.SourceTransactionID)
	if sourceTxID == "" {
		return nil, billingdomain.ErrInvalidTransaction
	}
	payerID, err := snowflake.ParseString(req.PayerID)
	if err != nil {
		return nil, partydomain.ErrInvalidID
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	occurredAt := s.clock.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	// The redis lock only narrows the race window between two instances
	// booking the same webhook; the batch header key is what guarantees
	// exactly-once.
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, "payment:"+sourceTxID, paymentLockTTL)
		if err != nil {
			s.log.Warn("payment lock unavailable, relying on ledger idempotency",
				zap.String("source_transaction_id", sourceTxID),
				zap.Error(err),
			)
		} else if !ok {
			return nil, billingdomain.ErrLocked
		} else {
			defer func() {
				if err := s.locker.Release(ctx, "payment:"+sourceTxID, token); err != nil {
					s.log.Warn("payment lock release failed", zap.Error(err))
				}
			}()
		}
	}

	result := &billingdomain.PaymentResult{SourceTransactionID: sourceTxID}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// A replay must short-circuit before any hierarchy or subscription
		// checks. The booking already happened; whatever became of the payer
		// or its subscription since must not turn the retry into an error.
		booked, err := s.ledgersvc.FindBooked(ctx, tx, sourceTxID, ledgerdomain.BatchPayment)
		if err != nil {
			return err
		}
		if booked != nil {
			result.Replayed = true
			result.Entries = toResponses(booked)
			return nil
		}

		chain, err := s.partyRepo.AncestorChain(ctx, tx, payerID)
		if err != nil {
			return err
		}
		if chain == nil {
			return partydomain.ErrNotFound
		}
		payer := chain[0]
		ancestors := chain[1:]

		subscription, err := s.subscriptionRepo.FindByPartyID(ctx, tx, payer.ID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}
		if subscription.Status.Terminal() {
			return subscriptiondomain.ErrAlreadyTerminal
		}

		split, err := commission.Compute(ancestors, req.AmountCents)
		if err != nil {
			return err
		}

		netType := ledgerdomain.EntryRenewal
		switch {
		case subscription.Status == subscriptiondomain.StatusPending:
			netType = ledgerdomain.EntryNewLicense
		case req.Upgrade:
			netType = ledgerdomain.EntryUpgrade
		}

		entries := buildEntries(payer, split, netType, currency, occurredAt)
		rows, err := s.ledgersvc.Append(ctx, tx, ledgerdomain.AppendRequest{
			SourceTransactionID: sourceTxID,
			Kind:                ledgerdomain.BatchPayment,
			Entries:             entries,
		})
		if errors.Is(err, ledgerdomain.ErrDuplicateTransaction) {
			result.Replayed = true
			result.Entries = toResponses(rows)
			return nil
		}
		if err != nil {
			return err
		}
		result.Entries = toResponses(rows)

		activation, err := s.subscriptionsvc.ActivateOnPayment(ctx, tx, payer.ID, occurredAt)
		if err != nil {
			return err
		}
		result.Subscription = toSubscriptionResponse(&activation.Subscription)
		return nil
	})
	if err != nil {
		s.metrics.RecordPaymentEvent("failed")
		return nil, err
	}

	if result.Replayed {
		s.metrics.RecordPaymentEvent("replayed")
		s.log.Info("payment replay ignored",
			zap.String("source_transaction_id", sourceTxID),
			zap.Int64("payer_id", int64(payerID)),
		)
		return result, nil
	}

	s.metrics.RecordPaymentEvent("booked")
	s.log.Info("payment booked",
		zap.String("source_transaction_id", sourceTxID),
		zap.Int64("payer_id", int64(payerID)),
		zap.Int64("amount_cents", req.AmountCents),
		zap.Int("ledger_rows", len(result.Entries)),
	)
	return result, nil
}

// buildEntries turns a commission split into ledger rows. Ancestors earn
// commission rows; the net lands with the payer's direct biller, or with the
// payer itself when it sits at the top of the hierarchy.
func buildEntries(payer partydomain.PartyNode, split commission.Split, netType ledgerdomain.EntryType, currency string, occurredAt time.Time) []ledgerdomain.Entry {
	payerID := payer.ID
	entries := make([]ledgerdomain.Entry, 0, len(split.Shares)+1)

	for _, share := range split.Shares {
		if share.AmountCents == 0 {
			continue
		}
		entries = append(entries, ledgerdomain.Entry{
			PartyID:        share.PartyID,
			CounterpartyID: &payerID,
			EntryType:      ledgerdomain.EntryCommission,
			AmountCents:    share.AmountCents,
			Currency:       currency,
			OccurredAt:     occurredAt,
		})
	}

	netBeneficiary := payerID
	if payer.ParentID != nil {
		netBeneficiary = *payer.ParentID
	}
	entries = append(entries, ledgerdomain.Entry{
		PartyID:        netBeneficiary,
		CounterpartyID: &payerID,
		EntryType:      netType,
		AmountCents:    split.NetCents,
		Currency:       currency,
		OccurredAt:     occurredAt,
	})
	return entries
}

func toResponses(entries []ledgerdomain.Entry) []ledgerdomain.EntryResponse {
	out := make([]ledgerdomain.EntryResponse, 0, len(entries))
	for _, entry := range entries {
		var counterparty *string
		if entry.CounterpartyID != nil {
			id := entry.CounterpartyID.String()
			counterparty = &id
		}
		out = append(out, ledgerdomain.EntryResponse{
			ID:                  entry.ID.String(),
			PartyID:             entry.PartyID.String(),
			CounterpartyID:      counterparty,
			EntryType:           entry.EntryType,
			AmountCents:         entry.AmountCents,
			Currency:            entry.Currency,
			SourceTransactionID: entry.SourceTransactionID,
			OccurredAt:          entry.OccurredAt,
		})
	}
	return out
}

func toSubscriptionResponse(subscription *subscriptiondomain.Subscription) *subscriptiondomain.Response {
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
