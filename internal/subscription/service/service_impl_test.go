package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/licensia/internal/clock"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/licensia/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSubscriptionStack(t *testing.T) (*gorm.DB, *snowflake.Node, *clock.FakeClock, subscriptiondomain.Service) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&subscriptiondomain.Subscription{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, _ := snowflake.NewNode(1)
	clk := clock.NewFakeClock(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  subscriptionrepository.Provide(),
	})
	return db, node, clk, svc
}

func openPending(t *testing.T, db *gorm.DB, node *snowflake.Node, svc subscriptiondomain.Service) snowflake.ID {
	t.Helper()
	partyID := node.Generate()
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.CreateForParty(context.Background(), tx, subscriptiondomain.CreateForPartyRequest{
			PartyID:       partyID,
			Tier:          "basic",
			PriceCents:    19900,
			Currency:      "USD",
			BillingPeriod: subscriptiondomain.PeriodMonthly,
		})
		return err
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return partyID
}

func TestActivateOnPayment(t *testing.T) {
	db, node, clk, svc := newSubscriptionStack(t)
	ctx := context.Background()
	partyID := openPending(t, db, node, svc)

	paidAt := clk.Now()
	var result *subscriptiondomain.ActivationResult
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = svc.ActivateOnPayment(ctx, tx, partyID, paidAt)
		return err
	})
	assert.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusPending, result.PreviousStatus)
	assert.Equal(t, subscriptiondomain.StatusActive, result.Subscription.Status)
	assert.Equal(t, paidAt, *result.Subscription.CurrentPeriodStart)
	assert.Equal(t, paidAt.AddDate(0, 1, 0), *result.Subscription.NextBillingDate)
	assert.Equal(t, paidAt, *result.Subscription.ActivatedAt)

	// A renewal re-anchors the period at the payment time and keeps the
	// original activation timestamp.
	clk.Advance(40 * 24 * time.Hour)
	renewedAt := clk.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = svc.ActivateOnPayment(ctx, tx, partyID, renewedAt)
		return err
	})
	assert.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, result.PreviousStatus)
	assert.Equal(t, renewedAt, *result.Subscription.CurrentPeriodStart)
	assert.Equal(t, renewedAt.AddDate(0, 1, 0), *result.Subscription.NextBillingDate)
	assert.Equal(t, paidAt, *result.Subscription.ActivatedAt)
}

func TestCancel(t *testing.T) {
	db, node, _, svc := newSubscriptionStack(t)
	ctx := context.Background()
	partyID := openPending(t, db, node, svc)

	resp, err := svc.Cancel(ctx, partyID.String())
	assert.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusCancelled, resp.Status)
	assert.NotNil(t, resp.CancelledAt)
	assert.Nil(t, resp.NextBillingDate)

	// Terminal states accept nothing further.
	_, err = svc.Cancel(ctx, partyID.String())
	assert.ErrorIs(t, err, subscriptiondomain.ErrAlreadyTerminal)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ActivateOnPayment(ctx, tx, partyID, time.Now())
		return err
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrAlreadyTerminal)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.UpdatePlan(ctx, tx, partyID, "professional", 49900, subscriptiondomain.PeriodMonthly)
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrAlreadyTerminal)
}

func TestGetByParty_NotFound(t *testing.T) {
	_, node, _, svc := newSubscriptionStack(t)

	_, err := svc.GetByParty(context.Background(), node.Generate().String())
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotFound)

	_, err = svc.GetByParty(context.Background(), "not-a-snowflake")
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidID)
}

func TestDunningSweeps(t *testing.T) {
	db, node, clk, svc := newSubscriptionStack(t)
	ctx := context.Background()
	partyID := openPending(t, db, node, svc)

	paidAt := clk.Now()
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ActivateOnPayment(ctx, tx, partyID, paidAt)
		return err
	})
	assert.NoError(t, err)

	// Inside the period nothing moves.
	moved, err := svc.MarkPastDue(ctx, clk.Now())
	assert.NoError(t, err)
	assert.Equal(t, int64(0), moved)

	// Past the billing date the subscription falls to past_due.
	clk.Advance(32 * 24 * time.Hour)
	moved, err = svc.MarkPastDue(ctx, clk.Now())
	assert.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	resp, err := svc.GetByParty(ctx, partyID.String())
	assert.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusPastDue, resp.Status)

	// Within the grace window past_due holds.
	expired, err := svc.ExpireLapsed(ctx, clk.Now(), 14)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), expired)

	// Once the grace window has fully elapsed the subscription expires.
	clk.Advance(15 * 24 * time.Hour)
	expired, err = svc.ExpireLapsed(ctx, clk.Now(), 14)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	resp, err = svc.GetByParty(ctx, partyID.String())
	assert.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusExpired, resp.Status)
	assert.NotNil(t, resp.ExpiredAt)
}

func TestNextPeriodEnd(t *testing.T) {
	start := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, start.AddDate(0, 1, 0), subscriptiondomain.NextPeriodEnd(start, subscriptiondomain.PeriodMonthly))
	assert.Equal(t, start.AddDate(0, 3, 0), subscriptiondomain.NextPeriodEnd(start, subscriptiondomain.PeriodQuarterly))
	assert.Equal(t, start.AddDate(1, 0, 0), subscriptiondomain.NextPeriodEnd(start, subscriptiondomain.PeriodAnnually))
	// Unknown periods fall back to monthly.
	assert.Equal(t, start.AddDate(0, 1, 0), subscriptiondomain.NextPeriodEnd(start, subscriptiondomain.BillingPeriod("weekly")))
}
