package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/licensia/internal/clock"
	entitlementdomain "github.com/smallbiznis/licensia/internal/entitlement/domain"
	entitlementrepository "github.com/smallbiznis/licensia/internal/entitlement/repository"
	ledgerdomain "github.com/smallbiznis/licensia/internal/ledger/domain"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	partyrepository "github.com/smallbiznis/licensia/internal/party/repository"
	quotadomain "github.com/smallbiznis/licensia/internal/quota/domain"
	quotaservice "github.com/smallbiznis/licensia/internal/quota/service"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/licensia/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/licensia/internal/subscription/service"
	"github.com/smallbiznis/licensia/internal/tier"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type partyStack struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   partydomain.Service
}

func newPartyStack(t *testing.T) *partyStack {
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
		&entitlementdomain.Override{},
		&ledgerdomain.Batch{},
		&ledgerdomain.Entry{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, _ := snowflake.NewNode(1)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	subscriptionSvc := subscriptionservice.New(subscriptionservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  subscriptionrepository.Provide(),
	})

	svc := New(Params{
		DB:              db,
		Log:             log,
		GenID:           node,
		Clock:           clk,
		Repo:            partyrepository.Provide(),
		OverrideRepo:    entitlementrepository.Provide(),
		Tiersvc:         tier.NewService(),
		Quotasvc:        quotaservice.New(quotaservice.Params{Log: log}),
		Subscriptionsvc: subscriptionSvc,
	})

	return &partyStack{db: db, node: node, clock: clk, svc: svc}
}

func (s *partyStack) create(t *testing.T, parentID *string, kind partydomain.Kind, tierKey, name string) *partydomain.Response {
	t.Helper()
	resp, err := s.svc.Create(context.Background(), partydomain.CreateRequest{
		ParentID:    parentID,
		Kind:        kind,
		Tier:        tierKey,
		CompanyName: name,
	})
	if err != nil {
		t.Fatalf("create %s %q: %v", kind, name, err)
	}
	return resp
}

func TestInsert_DuplicateIdentityMapsToConflict(t *testing.T) {
	stack := newPartyStack(t)
	ctx := context.Background()
	repo := partyrepository.Provide()

	first := partydomain.PartyNode{
		ID:          stack.node.Generate(),
		Kind:        partydomain.KindRootReseller,
		Tier:        "standard",
		Status:      partydomain.StatusActive,
		CompanyName: "Collision Holdings",
		Subdomain:   "collision-holdings",
	}
	first.APIKey = fmt.Sprintf("KEY-%d", first.ID)
	assert.NoError(t, repo.Insert(ctx, stack.db, &first))

	// A concurrent create that slipped past the proactive subdomain pick
	// lands on the unique index and surfaces as a domain conflict.
	second := first
	second.ID = stack.node.Generate()
	second.APIKey = fmt.Sprintf("KEY-%d", second.ID)
	assert.ErrorIs(t, repo.Insert(ctx, stack.db, &second), partydomain.ErrConflict)
}

func TestCreate_RootThenLicensee(t *testing.T) {
	stack := newPartyStack(t)
	ctx := context.Background()

	root := stack.create(t, nil, partydomain.KindRootReseller, "premium", "Evergreen Wealth Partners")
	assert.Equal(t, partydomain.StatusActive, root.Status)
	assert.Equal(t, 30, root.CommissionRate)
	assert.Equal(t, "evergreen-wealth-partners", root.Subdomain)
	assert.Empty(t, root.LicenseKey)

	licensee := stack.create(t, &root.ID, partydomain.KindLicensee, "basic", "Maple Street Coaching")
	assert.Equal(t, &root.ID, licensee.ParentID)
	assert.NotEmpty(t, licensee.LicenseKey)
	assert.Equal(t, 0, licensee.CommissionRate)

	// Parent occupancy moved for both the child slot and the subtree slot.
	reloaded, err := stack.svc.Get(ctx, root.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, reloaded.CurrentChildren)
	assert.Equal(t, 1, reloaded.CurrentSubtreeLicensees)

	// Creation opens a pending subscription at the tier price.
	var subscription subscriptiondomain.Subscription
	licenseeID, _ := snowflake.ParseString(licensee.ID)
	assert.NoError(t, stack.db.First(&subscription, "party_id = ?", licenseeID).Error)
	assert.Equal(t, subscriptiondomain.StatusPending, subscription.Status)
	assert.Equal(t, int64(19900), subscription.PriceCents)
}

func TestCreate_HierarchyRules(t *testing.T) {
	stack := newPartyStack(t)
	ctx := context.Background()

	premium := stack.create(t, nil, partydomain.KindRootReseller, "premium", "Harbor Point Advisors")
	standard := stack.create(t, nil, partydomain.KindRootReseller, "standard", "Lakeside Consulting")

	// A root never has a parent.
	_, err := stack.svc.Create(ctx, partydomain.CreateRequest{
		ParentID:    &premium.ID,
		Kind:        partydomain.KindRootReseller,
		CompanyName: "Nested Root",
	})
	assert.ErrorIs(t, err, partydomain.ErrInvalidHierarchy)

	// Non-roots always have one.
	_, err = stack.svc.Create(ctx, partydomain.CreateRequest{
		Kind:        partydomain.KindLicensee,
		CompanyName: "Orphan",
	})
	assert.ErrorIs(t, err, partydomain.ErrInvalidHierarchy)

	// Standard resellers cannot open sub-resellers.
	_, err = stack.svc.Create(ctx, partydomain.CreateRequest{
		ParentID:    &standard.ID,
		Kind:        partydomain.KindSubReseller,
		CompanyName: "Lakeside Branch",
	})
	assert.ErrorIs(t, err, partydomain.ErrInvalidHierarchy)

	// Premium ones can, and the sub-reseller takes licensees but no further
	// sub-resellers.
	sub := stack.create(t, &premium.ID, partydomain.KindSubReseller, "", "Harbor Point North")
	_, err = stack.svc.Create(ctx, partydomain.CreateRequest{
		ParentID:    &sub.ID,
		Kind:        partydomain.KindSubReseller,
		CompanyName: "Too Deep",
	})
	assert.ErrorIs(t, err, partydomain.ErrInvalidHierarchy)

	licensee := stack.create(t, &sub.ID, partydomain.KindLicensee, "", "Corner Office Coaching")
	_, err = stack.svc.Create(ctx, partydomain.CreateRequest{
		ParentID:    &licensee.ID,
		Kind:        partydomain.KindLicensee,
		CompanyName: "Under Licensee",
	})
	assert.ErrorIs(t, err, partydomain.ErrInvalidHierarchy)

	// Suspended parents stop accepting children.
	_, err = stack.svc.Suspend(ctx, premium.ID)
	assert.NoError(t, err)
	_, err = stack.svc.Create(ctx, partydomain.CreateRequest{
		ParentID:    &premium.ID,
		Kind:        partydomain.KindLicensee,
		CompanyName: "After Suspension",
	})
	assert.ErrorIs(t, err, partydomain.ErrInvalidHierarchy)
}

func TestCreate_ChildQuotaExceeded(t *testing.T) {
	stack := newPartyStack(t)
	ctx := context.Background()

	root := stack.create(t, nil, partydomain.KindRootReseller, "premium", "Quota Ridge Group")
	sub := stack.create(t, &root.ID, partydomain.KindSubReseller, "", "Quota Ridge East")

	// Sub-resellers cap at 10 direct children.
	for i := 0; i < 10; i++ {
		stack.create(t, &sub.ID, partydomain.KindLicensee, "", fmt.Sprintf("Quota Ridge Client %d", i))
	}

	_, err := stack.svc.Create(ctx, partydomain.CreateRequest{
		ParentID:    &sub.ID,
		Kind:        partydomain.KindLicensee,
		CompanyName: "Quota Ridge Client 10",
	})
	assert.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)

	// The failed create must not leak a subtree slot on the ancestors.
	reloaded, err := stack.svc.Get(ctx, root.ID)
	assert.NoError(t, err)
	assert.Equal(t, 10, reloaded.CurrentSubtreeLicensees)

	// Freeing a slot makes the next create land.
	children, err := stack.svc.Children(ctx, sub.ID)
	assert.NoError(t, err)
	assert.NoError(t, stack.svc.Delete(ctx, children[0].ID))
	stack.create(t, &sub.ID, partydomain.KindLicensee, "", "Quota Ridge Client 11")
}

func TestSetCommissionRate(t *testing.T) {
	stack := newPartyStack(t)
	ctx := context.Background()

	root := stack.create(t, nil, partydomain.KindRootReseller, "premium", "Rate Valley Group")
	sub := stack.create(t, &root.ID, partydomain.KindSubReseller, "", "Rate Valley West")
	licensee := stack.create(t, &sub.ID, partydomain.KindLicensee, "", "Rate Valley Client")

	// Sub carries 10, so the root may take at most 90.
	_, err := stack.svc.SetCommissionRate(ctx, root.ID, 91)
	assert.ErrorIs(t, err, partydomain.ErrConfiguration)

	resp, err := stack.svc.SetCommissionRate(ctx, root.ID, 90)
	assert.NoError(t, err)
	assert.Equal(t, 90, resp.CommissionRate)

	// Root now at 90, so the sub may take at most 10.
	_, err = stack.svc.SetCommissionRate(ctx, sub.ID, 11)
	assert.ErrorIs(t, err, partydomain.ErrConfiguration)

	_, err = stack.svc.SetCommissionRate(ctx, licensee.ID, 5)
	assert.ErrorIs(t, err, partydomain.ErrInvalidKind)

	_, err = stack.svc.SetCommissionRate(ctx, root.ID, 101)
	assert.ErrorIs(t, err, partydomain.ErrConfiguration)
}

func TestChangeTier(t *testing.T) {
	stack := newPartyStack(t)
	ctx := context.Background()

	root := stack.create(t, nil, partydomain.KindRootReseller, "standard", "Tier Change Partners")

	upgraded, err := stack.svc.ChangeTier(ctx, root.ID, "premium")
	assert.NoError(t, err)
	assert.Equal(t, "premium", upgraded.Tier)
	assert.Equal(t, 30, upgraded.CommissionRate)
	assert.Equal(t, 100, upgraded.MaxChildren)

	// The subscription follows the new plan.
	rootID, _ := snowflake.ParseString(root.ID)
	var subscription subscriptiondomain.Subscription
	assert.NoError(t, stack.db.First(&subscription, "party_id = ?", rootID).Error)
	assert.Equal(t, "premium", subscription.Tier)
	assert.Equal(t, int64(499900), subscription.PriceCents)

	// Tier changes invalidate cached entitlement resolutions.
	var node partydomain.PartyNode
	assert.NoError(t, stack.db.First(&node, "id = ?", rootID).Error)
	assert.Equal(t, int64(1), node.OverrideVersion)

	_, err = stack.svc.ChangeTier(ctx, root.ID, "platinum")
	assert.Error(t, err)
}

func TestChangeTier_OccupancyBlocksDowngrade(t *testing.T) {
	stack := newPartyStack(t)
	ctx := context.Background()

	root := stack.create(t, nil, partydomain.KindRootReseller, "premium", "Downgrade Holdings")

	// 26 direct licensees fit a premium root but not a standard one.
	for i := 0; i < 26; i++ {
		stack.create(t, &root.ID, partydomain.KindLicensee, "", fmt.Sprintf("Downgrade Client %d", i))
	}

	_, err := stack.svc.ChangeTier(ctx, root.ID, "standard")
	assert.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)
}

func TestDelete(t *testing.T) {
	stack := newPartyStack(t)
	ctx := context.Background()

	root := stack.create(t, nil, partydomain.KindRootReseller, "premium", "Teardown Group")
	licensee := stack.create(t, &root.ID, partydomain.KindLicensee, "", "Teardown Client")

	// Parents with children stay.
	err := stack.svc.Delete(ctx, root.ID)
	assert.ErrorIs(t, err, partydomain.ErrInvalidHierarchy)

	assert.NoError(t, stack.svc.Delete(ctx, licensee.ID))

	_, err = stack.svc.Get(ctx, licensee.ID)
	assert.ErrorIs(t, err, partydomain.ErrNotFound)

	// Slots return to the chain and the subscription row is gone.
	reloaded, err := stack.svc.Get(ctx, root.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, reloaded.CurrentChildren)
	assert.Equal(t, 0, reloaded.CurrentSubtreeLicensees)

	licenseeID, _ := snowflake.ParseString(licensee.ID)
	var count int64
	stack.db.Model(&subscriptiondomain.Subscription{}).Where("party_id = ?", licenseeID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestAncestorChain(t *testing.T) {
	stack := newPartyStack(t)
	ctx := context.Background()

	root := stack.create(t, nil, partydomain.KindRootReseller, "premium", "Chain Summit Group")
	sub := stack.create(t, &root.ID, partydomain.KindSubReseller, "", "Chain Summit East")
	licensee := stack.create(t, &sub.ID, partydomain.KindLicensee, "", "Chain Summit Client")

	chain, err := stack.svc.AncestorChain(ctx, licensee.ID)
	assert.NoError(t, err)
	if assert.Len(t, chain, 3) {
		assert.Equal(t, licensee.ID, chain[0].ID)
		assert.Equal(t, sub.ID, chain[1].ID)
		assert.Equal(t, root.ID, chain[2].ID)
	}

	_, err = stack.svc.AncestorChain(ctx, stack.node.Generate().String())
	assert.ErrorIs(t, err, partydomain.ErrNotFound)
}
