package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/smallbiznis/licensia/internal/billing/domain"
	"github.com/smallbiznis/licensia/internal/clock"
	ledgerdomain "github.com/smallbiznis/licensia/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/licensia/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/licensia/internal/ledger/service"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	partyrepository "github.com/smallbiznis/licensia/internal/party/repository"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/licensia/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/licensia/internal/subscription/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type billingStack struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   billingdomain.Service
	subs  subscriptiondomain.Service
}

func newBillingStack(t *testing.T) *billingStack {
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

	err = db.AutoMigrate(
		&partydomain.PartyNode{},
		&subscriptiondomain.Subscription{},
		&ledgerdomain.Batch{},
		&ledgerdomain.Entry{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, _ := snowflake.NewNode(1)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))

	subscriptionRepo := subscriptionrepository.Provide()
	subscriptionSvc := subscriptionservice.New(subscriptionservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  subscriptionRepo,
	})
	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  ledgerrepository.Provide(),
	})

	svc := New(Params{
		DB:               db,
		Log:              log,
		Clock:            clk,
		PartyRepo:        partyrepository.Provide(),
		SubscriptionRepo: subscriptionRepo,
		Subscriptionsvc:  subscriptionSvc,
		Ledgersvc:        ledgerSvc,
	})

	return &billingStack{db: db, node: node, clock: clk, svc: svc, subs: subscriptionSvc}
}

func (s *billingStack) seedParty(t *testing.T, kind partydomain.Kind, parent *snowflake.ID, rate int) snowflake.ID {
	t.Helper()
	id := s.node.Generate()
	err := s.db.Create(&partydomain.PartyNode{
		ID:             id,
		Kind:           kind,
		ParentID:       parent,
		Tier:           "standard",
		Status:         partydomain.StatusActive,
		CompanyName:    fmt.Sprintf("Party %d", id),
		Subdomain:      fmt.Sprintf("party-%d", id),
		APIKey:         fmt.Sprintf("KEY-%d", id),
		CommissionRate: rate,
	}).Error
	if err != nil {
		t.Fatalf("seed party: %v", err)
	}
	return id
}

// seedChain builds root (30%) -> sub (10%) -> licensee with a pending
// subscription on the licensee.
func (s *billingStack) seedChain(t *testing.T) (root, sub, licensee snowflake.ID) {
	t.Helper()
	root = s.seedParty(t, partydomain.KindRootReseller, nil, 30)
	sub = s.seedParty(t, partydomain.KindSubReseller, &root, 10)
	licensee = s.seedParty(t, partydomain.KindLicensee, &sub, 0)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		_, err := s.subs.CreateForParty(context.Background(), tx, subscriptiondomain.CreateForPartyRequest{
			PartyID:       licensee,
			Tier:          "basic",
			PriceCents:    19900,
			Currency:      "USD",
			BillingPeriod: subscriptiondomain.PeriodMonthly,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return root, sub, licensee
}

func entriesByType(entries []ledgerdomain.EntryResponse) map[ledgerdomain.EntryType][]ledgerdomain.EntryResponse {
	out := make(map[ledgerdomain.EntryType][]ledgerdomain.EntryResponse)
	for _, entry := range entries {
		out[entry.EntryType] = append(out[entry.EntryType], entry)
	}
	return out
}

func TestRecordPayment_SplitsAndActivates(t *testing.T) {
	stack := newBillingStack(t)
	ctx := context.Background()
	root, sub, licensee := stack.seedChain(t)

	result, err := stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             licensee.String(),
		AmountCents:         10000,
		SourceTransactionID: "pay_split_1",
	})
	assert.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Len(t, result.Entries, 3)

	byType := entriesByType(result.Entries)
	commissions := byType[ledgerdomain.EntryCommission]
	if assert.Len(t, commissions, 2) {
		assert.Equal(t, sub.String(), commissions[0].PartyID)
		assert.Equal(t, int64(1000), commissions[0].AmountCents)
		assert.Equal(t, root.String(), commissions[1].PartyID)
		assert.Equal(t, int64(3000), commissions[1].AmountCents)
	}

	// First payment on a pending subscription books as new_license, and the
	// net lands with the licensee's direct biller.
	nets := byType[ledgerdomain.EntryNewLicense]
	if assert.Len(t, nets, 1) {
		assert.Equal(t, sub.String(), nets[0].PartyID)
		assert.Equal(t, int64(6000), nets[0].AmountCents)
		assert.Equal(t, licensee.String(), *nets[0].CounterpartyID)
	}

	assert.Equal(t, subscriptiondomain.StatusActive, result.Subscription.Status)

	// The second payment renews.
	result, err = stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             licensee.String(),
		AmountCents:         10000,
		SourceTransactionID: "pay_split_2",
	})
	assert.NoError(t, err)
	byType = entriesByType(result.Entries)
	assert.Len(t, byType[ledgerdomain.EntryRenewal], 1)
	assert.Empty(t, byType[ledgerdomain.EntryNewLicense])
}

func TestRecordPayment_Replay(t *testing.T) {
	stack := newBillingStack(t)
	ctx := context.Background()
	_, _, licensee := stack.seedChain(t)

	first, err := stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             licensee.String(),
		AmountCents:         10000,
		SourceTransactionID: "pay_replay_1",
	})
	assert.NoError(t, err)

	before, err := stack.subs.GetByParty(ctx, licensee.String())
	assert.NoError(t, err)

	// The retry arrives later with the same transaction id. It must return
	// the original rows and must not re-anchor the billing period.
	stack.clock.Advance(3 * 24 * time.Hour)
	replay, err := stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             licensee.String(),
		AmountCents:         10000,
		SourceTransactionID: "pay_replay_1",
	})
	assert.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Len(t, replay.Entries, 3)
	assert.Equal(t, first.Entries[0].ID, replay.Entries[0].ID)
	assert.Nil(t, replay.Subscription)

	after, err := stack.subs.GetByParty(ctx, licensee.String())
	assert.NoError(t, err)
	assert.Equal(t, before.NextBillingDate, after.NextBillingDate)

	var count int64
	stack.db.Model(&ledgerdomain.Entry{}).Where("source_transaction_id = ?", "pay_replay_1").Count(&count)
	assert.Equal(t, int64(3), count)
}

func TestRecordPayment_ReplayAfterCancellation(t *testing.T) {
	stack := newBillingStack(t)
	ctx := context.Background()
	_, _, licensee := stack.seedChain(t)

	first, err := stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             licensee.String(),
		AmountCents:         10000,
		SourceTransactionID: "pay_cancel_replay_1",
	})
	assert.NoError(t, err)
	assert.Len(t, first.Entries, 3)

	_, err = stack.subs.Cancel(ctx, licensee.String())
	assert.NoError(t, err)

	// The provider retry lands after the subscription turned terminal. The
	// booking already exists, so the retry must still be a clean replay.
	replay, err := stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             licensee.String(),
		AmountCents:         10000,
		SourceTransactionID: "pay_cancel_replay_1",
	})
	assert.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Len(t, replay.Entries, 3)
	assert.Equal(t, first.Entries[0].ID, replay.Entries[0].ID)
	assert.Nil(t, replay.Subscription)

	// Even with the payer gone, the ledger rows answer the retry.
	assert.NoError(t, stack.db.Delete(&partydomain.PartyNode{}, "id = ?", licensee).Error)
	replay, err = stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             licensee.String(),
		AmountCents:         10000,
		SourceTransactionID: "pay_cancel_replay_1",
	})
	assert.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Len(t, replay.Entries, 3)

	var count int64
	stack.db.Model(&ledgerdomain.Entry{}).Where("source_transaction_id = ?", "pay_cancel_replay_1").Count(&count)
	assert.Equal(t, int64(3), count)
}

func TestRecordPayment_UpgradeCharge(t *testing.T) {
	stack := newBillingStack(t)
	ctx := context.Background()
	_, _, licensee := stack.seedChain(t)

	_, err := stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             licensee.String(),
		AmountCents:         10000,
		SourceTransactionID: "pay_upgrade_0",
	})
	assert.NoError(t, err)

	// A tier-upgrade charge on the now active subscription books the net as
	// upgrade; the commission rows are unchanged.
	result, err := stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             licensee.String(),
		AmountCents:         30000,
		SourceTransactionID: "pay_upgrade_1",
		Upgrade:             true,
	})
	assert.NoError(t, err)

	byType := entriesByType(result.Entries)
	assert.Len(t, byType[ledgerdomain.EntryCommission], 2)
	assert.Empty(t, byType[ledgerdomain.EntryRenewal])
	if assert.Len(t, byType[ledgerdomain.EntryUpgrade], 1) {
		assert.Equal(t, int64(18000), byType[ledgerdomain.EntryUpgrade][0].AmountCents)
	}
}

func TestRecordPayment_RootPayerKeepsNet(t *testing.T) {
	stack := newBillingStack(t)
	ctx := context.Background()

	// A root reseller paying its own platform subscription has no ancestors:
	// no commission rows, full amount as net to itself.
	root := stack.seedParty(t, partydomain.KindRootReseller, nil, 30)
	err := stack.db.Transaction(func(tx *gorm.DB) error {
		_, err := stack.subs.CreateForParty(ctx, tx, subscriptiondomain.CreateForPartyRequest{
			PartyID:       root,
			Tier:          "standard",
			PriceCents:    199900,
			Currency:      "USD",
			BillingPeriod: subscriptiondomain.PeriodMonthly,
		})
		return err
	})
	assert.NoError(t, err)

	result, err := stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             root.String(),
		AmountCents:         199900,
		SourceTransactionID: "pay_root_1",
	})
	assert.NoError(t, err)
	if assert.Len(t, result.Entries, 1) {
		assert.Equal(t, ledgerdomain.EntryNewLicense, result.Entries[0].EntryType)
		assert.Equal(t, root.String(), result.Entries[0].PartyID)
		assert.Equal(t, int64(199900), result.Entries[0].AmountCents)
	}
}

func TestRecordPayment_Validation(t *testing.T) {
	stack := newBillingStack(t)
	ctx := context.Background()
	_, _, licensee := stack.seedChain(t)

	_, err := stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             licensee.String(),
		AmountCents:         0,
		SourceTransactionID: "pay_zero",
	})
	assert.ErrorIs(t, err, billingdomain.ErrInvalidAmount)

	_, err = stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:     licensee.String(),
		AmountCents: 100,
	})
	assert.ErrorIs(t, err, billingdomain.ErrInvalidTransaction)

	_, err = stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             stack.node.Generate().String(),
		AmountCents:         100,
		SourceTransactionID: "pay_ghost",
	})
	assert.ErrorIs(t, err, partydomain.ErrNotFound)
}

func TestRecordPayment_TerminalSubscription(t *testing.T) {
	stack := newBillingStack(t)
	ctx := context.Background()
	_, _, licensee := stack.seedChain(t)

	_, err := stack.subs.Cancel(ctx, licensee.String())
	assert.NoError(t, err)

	_, err = stack.svc.RecordPayment(ctx, billingdomain.RecordPaymentRequest{
		PayerID:             licensee.String(),
		AmountCents:         10000,
		SourceTransactionID: "pay_terminal_1",
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrAlreadyTerminal)

	// Nothing was booked.
	var count int64
	stack.db.Model(&ledgerdomain.Entry{}).Where("source_transaction_id = ?", "pay_terminal_1").Count(&count)
	assert.Equal(t, int64(0), count)
}
