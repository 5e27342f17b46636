package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/licensia/internal/clock"
	entitlementdomain "github.com/smallbiznis/licensia/internal/entitlement/domain"
	"github.com/smallbiznis/licensia/internal/observability/metrics"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	quotadomain "github.com/smallbiznis/licensia/internal/quota/domain"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
	tierdomain "github.com/smallbiznis/licensia/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics

	repo            partydomain.Repository
	overrideRepo    entitlementdomain.Repository
	tiersvc         tierdomain.Service
	quotasvc        quotadomain.Service
	subscriptionsvc subscriptiondomain.Service
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`

	Repo            partydomain.Repository
	OverrideRepo    entitlementdomain.Repository
	Tiersvc         tierdomain.Service
	Quotasvc        quotadomain.Service
	Subscriptionsvc subscriptiondomain.Service
}

func New(p Params) partydomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("party.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		metrics:         p.Metrics,
		repo:            p.Repo,
		overrideRepo:    p.OverrideRepo,
		tiersvc:         p.Tiersvc,
		quotasvc:        p.Quotasvc,
		subscriptionsvc: p.Subscriptionsvc,
	}
}

func defaultTier(kind partydomain.Kind) string {
	if kind == partydomain.KindLicensee {
		return "basic"
	}
	return "standard"
}

// Create implements domain.Service. Parent validation, quota reservation,
// the node insert and the pending subscription all commit or roll back as
// one unit.
func (s *Service) Create(ctx context.Context, req partydomain.CreateRequest) (*partydomain.Response, error) {
	switch req.Kind {
	case partydomain.KindRootReseller, partydomain.KindSubReseller, partydomain.KindLicensee:
	default:
		return nil, partydomain.ErrInvalidKind
	}
	if strings.TrimSpace(req.CompanyName) == "" {
		return nil, partydomain.ErrInvalidName
	}

	tierKey := strings.TrimSpace(req.Tier)
	if tierKey == "" {
		tierKey = defaultTier(req.Kind)
	}
	def, err := s.tiersvc.Get(partydomain.TierGroup(req.Kind), tierKey)
	if err != nil {
		return nil, err
	}

	var parentID *snowflake.ID
	if req.Kind == partydomain.KindRootReseller {
		if req.ParentID != nil {
			return nil, partydomain.ErrInvalidHierarchy
		}
	} else {
		if req.ParentID == nil {
			return nil, partydomain.ErrInvalidHierarchy
		}
		id, err := snowflake.ParseString(*req.ParentID)
		if err != nil {
			return nil, partydomain.ErrInvalidID
		}
		parentID = &id
	}

	var node *partydomain.PartyNode
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var chain []partydomain.PartyNode
		if parentID != nil {
			chain, err = s.repo.AncestorChain(ctx, tx, *parentID)
			if err != nil {
				return err
			}
			if chain == nil {
				return partydomain.ErrInvalidHierarchy
			}

			parent := chain[0]
			if parent.Status != partydomain.StatusActive {
				return partydomain.ErrInvalidHierarchy
			}
			if !partydomain.LegalChild(parent.Kind, req.Kind) {
				return partydomain.ErrInvalidHierarchy
			}
			if req.Kind == partydomain.KindSubReseller && !parent.CanCreateSubResellers {
				return partydomain.ErrInvalidHierarchy
			}

			sum := def.CommissionRate
			for _, ancestor := range chain {
				sum += ancestor.CommissionRate
			}
			if sum > 100 {
				return partydomain.ErrConfiguration
			}

			if err := s.quotasvc.Reserve(ctx, tx, chain, req.Kind); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		node = &partydomain.PartyNode{
			ID:                    s.genID.Generate(),
			Kind:                  req.Kind,
			ParentID:              parentID,
			Tier:                  def.Key,
			Status:                partydomain.StatusActive,
			CompanyName:           strings.TrimSpace(req.CompanyName),
			ContactEmail:          strings.TrimSpace(req.ContactEmail),
			APIKey:                "KEY-" + ulid.Make().String(),
			CommissionRate:        def.CommissionRate,
			MaxChildren:           def.MaxChildren,
			MaxSubtreeLicensees:   def.MaxSubtreeLicensees,
			CanCustomizeModules:   def.CanCustomizeModules,
			CanCreateSubResellers: def.CanCreateSubResellers,
			Metadata:              datatypes.JSONMap(req.Metadata),
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if req.Kind == partydomain.KindLicensee {
			key := "LIC-" + ulid.Make().String()
			node.LicenseKey = &key
		}

		subdomain, err := s.pickSubdomain(ctx, tx, node.CompanyName, node.ID)
		if err != nil {
			return err
		}
		node.Subdomain = subdomain

		if err := s.repo.Insert(ctx, tx, node); err != nil {
			return err
		}

		_, err = s.subscriptionsvc.CreateForParty(ctx, tx, subscriptiondomain.CreateForPartyRequest{
			PartyID:       node.ID,
			Tier:          def.Key,
			PriceCents:    def.PriceCents,
			Currency:      "USD",
			BillingPeriod: subscriptiondomain.BillingPeriod(def.BillingPeriod),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPartyCreated(string(node.Kind))
	s.log.Info("party created",
		zap.Int64("party_id", int64(node.ID)),
		zap.String("kind", string(node.Kind)),
		zap.String("tier", node.Tier),
	)
	return toResponse(node), nil
}

// pickSubdomain slugs the company name and disambiguates with the node ID
// when the slug is taken.
func (s *Service) pickSubdomain(ctx context.Context, tx *gorm.DB, companyName string, id snowflake.ID) (string, error) {
	base := slug.Make(companyName)
	if base == "" {
		base = "party"
	}

	existing, err := s.repo.FindBySubdomain(ctx, tx, base)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return base, nil
	}
	return fmt.Sprintf("%s-%d", base, int64(id)%100000), nil
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, id string) (*partydomain.Response, error) {
	node, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(node), nil
}

// AncestorChain implements domain.Service. The chain runs from the node up
// to its root.
func (s *Service) AncestorChain(ctx context.Context, id string) ([]partydomain.Response, error) {
	parsed, err := snowflake.ParseString(id)
	if err != nil {
		return nil, partydomain.ErrInvalidID
	}

	chain, err := s.repo.AncestorChain(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, partydomain.ErrNotFound
	}

	out := make([]partydomain.Response, 0, len(chain))
	for i := range chain {
		out = append(out, *toResponse(&chain[i]))
	}
	return out, nil
}

// Children implements domain.Service.
func (s *Service) Children(ctx context.Context, id string) ([]partydomain.Response, error) {
	node, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	children, err := s.repo.FindChildren(ctx, s.db, node.ID)
	if err != nil {
		return nil, err
	}

	out := make([]partydomain.Response, 0, len(children))
	for i := range children {
		out = append(out, *toResponse(&children[i]))
	}
	return out, nil
}

// SetCommissionRate implements domain.Service. The new rate is accepted only
// if every root-to-leaf path through this node still sums to at most 100.
func (s *Service) SetCommissionRate(ctx context.Context, id string, rate int) (*partydomain.Response, error) {
	if rate < 0 || rate > 100 {
		return nil, partydomain.ErrConfiguration
	}
	parsed, err := snowflake.ParseString(id)
	if err != nil {
		return nil, partydomain.ErrInvalidID
	}

	var node *partydomain.PartyNode
	err = s.db.Transaction(func(tx *gorm.DB) error {
		chain, err := s.repo.AncestorChain(ctx, tx, parsed)
		if err != nil {
			return err
		}
		if chain == nil {
			return partydomain.ErrNotFound
		}

		node = &chain[0]
		if node.Kind == partydomain.KindLicensee {
			return partydomain.ErrInvalidKind
		}

		ancestorSum := 0
		for _, ancestor := range chain[1:] {
			ancestorSum += ancestor.CommissionRate
		}
		below, err := s.maxRatePathBelow(ctx, tx, node.ID, 0)
		if err != nil {
			return err
		}
		if ancestorSum+rate+below > 100 {
			return partydomain.ErrConfiguration
		}

		node.CommissionRate = rate
		node.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, node)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("commission rate updated",
		zap.Int64("party_id", int64(node.ID)),
		zap.Int("rate", rate),
	)
	return toResponse(node), nil
}

// maxRatePathBelow returns the largest commission rate sum on any downward
// path starting below the given node.
func (s *Service) maxRatePathBelow(ctx context.Context, tx *gorm.DB, id snowflake.ID, depth int) (int, error) {
	if depth >= partydomain.MaxDepth {
		return 0, nil
	}

	children, err := s.repo.FindChildren(ctx, tx, id)
	if err != nil {
		return 0, err
	}

	best := 0
	for _, child := range children {
		below, err := s.maxRatePathBelow(ctx, tx, child.ID, depth+1)
		if err != nil {
			return 0, err
		}
		if path := child.CommissionRate + below; path > best {
			best = path
		}
	}
	return best, nil
}

// ChangeTier implements domain.Service. Current occupancy must fit within the
// new tier's limits, and the new commission rate must keep every path legal.
func (s *Service) ChangeTier(ctx context.Context, id string, tierKey string) (*partydomain.Response, error) {
	parsed, err := snowflake.ParseString(id)
	if err != nil {
		return nil, partydomain.ErrInvalidID
	}

	var node *partydomain.PartyNode
	err = s.db.Transaction(func(tx *gorm.DB) error {
		chain, err := s.repo.AncestorChain(ctx, tx, parsed)
		if err != nil {
			return err
		}
		if chain == nil {
			return partydomain.ErrNotFound
		}
		node = &chain[0]

		def, err := s.tiersvc.Get(partydomain.TierGroup(node.Kind), tierKey)
		if err != nil {
			return err
		}

		if def.MaxChildren != tierdomain.Unlimited && node.CurrentChildren > def.MaxChildren {
			return quotadomain.ErrQuotaExceeded
		}
		if def.MaxSubtreeLicensees != tierdomain.Unlimited && node.CurrentSubtreeLicensees > def.MaxSubtreeLicensees {
			return quotadomain.ErrQuotaExceeded
		}

		if node.Kind != partydomain.KindLicensee {
			ancestorSum := 0
			for _, ancestor := range chain[1:] {
				ancestorSum += ancestor.CommissionRate
			}
			below, err := s.maxRatePathBelow(ctx, tx, node.ID, 0)
			if err != nil {
				return err
			}
			if ancestorSum+def.CommissionRate+below > 100 {
				return partydomain.ErrConfiguration
			}
			node.CommissionRate = def.CommissionRate
		}

		node.Tier = def.Key
		node.MaxChildren = def.MaxChildren
		node.MaxSubtreeLicensees = def.MaxSubtreeLicensees
		node.CanCustomizeModules = def.CanCustomizeModules
		node.CanCreateSubResellers = def.CanCreateSubResellers
		node.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, node); err != nil {
			return err
		}

		// Base features changed, so cached entitlement resolutions are stale.
		if err := s.repo.BumpOverrideVersion(ctx, tx, node.ID); err != nil {
			return err
		}
		node.OverrideVersion++

		return s.subscriptionsvc.UpdatePlan(ctx, tx, node.ID, def.Key, def.PriceCents, subscriptiondomain.BillingPeriod(def.BillingPeriod))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("party tier changed",
		zap.Int64("party_id", int64(node.ID)),
		zap.String("tier", node.Tier),
	)
	return toResponse(node), nil
}

// Suspend implements domain.Service.
func (s *Service) Suspend(ctx context.Context, id string) (*partydomain.Response, error) {
	node, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	node.Status = partydomain.StatusSuspended
	node.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, node); err != nil {
		return nil, err
	}

	s.log.Info("party suspended", zap.Int64("party_id", int64(node.ID)))
	return toResponse(node), nil
}

// Delete implements domain.Service. Only leaves can be removed; the parent
// chain gets its quota slots back and the subscription and overrides go with
// the node. Ledger history is never touched.
func (s *Service) Delete(ctx context.Context, id string) error {
	parsed, err := snowflake.ParseString(id)
	if err != nil {
		return partydomain.ErrInvalidID
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		chain, err := s.repo.AncestorChain(ctx, tx, parsed)
		if err != nil {
			return err
		}
		if chain == nil {
			return partydomain.ErrNotFound
		}
		node := chain[0]

		children, err := s.repo.FindChildren(ctx, tx, node.ID)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return partydomain.ErrInvalidHierarchy
		}

		if len(chain) > 1 {
			if err := s.quotasvc.Release(ctx, tx, chain[1:], node.Kind); err != nil {
				return err
			}
		}

		if err := s.overrideRepo.DeleteByParty(ctx, tx, node.ID); err != nil {
			return err
		}
		if err := s.subscriptionsvc.DeleteForParty(ctx, tx, node.ID); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, node.ID)
	})
	if err != nil {
		return err
	}

	s.log.Info("party deleted", zap.Int64("party_id", int64(parsed)))
	return nil
}

func (s *Service) find(ctx context.Context, id string) (*partydomain.PartyNode, error) {
	parsed, err := snowflake.ParseString(id)
	if err != nil {
		return nil, partydomain.ErrInvalidID
	}

	node, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, partydomain.ErrNotFound
	}
	return node, nil
}

func toResponse(node *partydomain.PartyNode) *partydomain.Response {
	var parentID *string
	if node.ParentID != nil {
		id := node.ParentID.String()
		parentID = &id
	}
	licenseKey := ""
	if node.LicenseKey != nil {
		licenseKey = *node.LicenseKey
	}
	return &partydomain.Response{
		ID:                      node.ID.String(),
		Kind:                    node.Kind,
		ParentID:                parentID,
		Tier:                    node.Tier,
		Status:                  node.Status,
		CompanyName:             node.CompanyName,
		Subdomain:               node.Subdomain,
		ContactEmail:            node.ContactEmail,
		LicenseKey:              licenseKey,
		CommissionRate:          node.CommissionRate,
		MaxChildren:             node.MaxChildren,
		MaxSubtreeLicensees:     node.MaxSubtreeLicensees,
		CurrentChildren:         node.CurrentChildren,
		CurrentSubtreeLicensees: node.CurrentSubtreeLicensees,
		CanCustomizeModules:     node.CanCustomizeModules,
		Metadata:                map[string]any(node.Metadata),
		CreatedAt:               node.CreatedAt,
		UpdatedAt:               node.UpdatedAt,
	}
}
