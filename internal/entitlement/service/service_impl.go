package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensia/internal/cache"
	"github.com/smallbiznis/licensia/internal/clock"
	entitlementdomain "github.com/smallbiznis/licensia/internal/entitlement/domain"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	"github.com/smallbiznis/licensia/internal/tier"
	tierdomain "github.com/smallbiznis/licensia/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const resolutionTTL = 5 * time.Minute

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock

	repo      entitlementdomain.Repository
	partyRepo partydomain.Repository
	tiersvc   tierdomain.Service

	cache cache.Cache[string, entitlementdomain.Resolution]
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Repo      entitlementdomain.Repository
	PartyRepo partydomain.Repository
	Tiersvc   tierdomain.Service
}

func New(p Params) entitlementdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("entitlement.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		partyRepo: p.PartyRepo,
		tiersvc:   p.Tiersvc,
		cache:     cache.NewTTLCache[string, entitlementdomain.Resolution](),
	}
}

// Resolve implements domain.Service. The cache key includes the party's
// override version, so a stale entry can never survive an override or tier
// change.
func (s *Service) Resolve(ctx context.Context, partyID string) (*entitlementdomain.Resolution, error) {
	node, err := s.findParty(ctx, s.db, partyID)
	if err != nil {
		return nil, err
	}

	key := cacheKey(node)
	if cached, ok := s.cache.Get(key); ok {
		return &cached, nil
	}

	resolution, err := s.resolve(ctx, s.db, node)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, *resolution, resolutionTTL)
	return resolution, nil
}

func cacheKey(node *partydomain.PartyNode) string {
	return fmt.Sprintf("%d:%s:%d", node.ID, node.Tier, node.OverrideVersion)
}

func (s *Service) resolve(ctx context.Context, db *gorm.DB, node *partydomain.PartyNode) (*entitlementdomain.Resolution, error) {
	def, err := s.tiersvc.Get(partydomain.TierGroup(node.Kind), node.Tier)
	if err != nil {
		return nil, err
	}

	features := make(map[string]bool, len(def.BaseFeatures))
	for _, f := range def.BaseFeatures {
		features[f] = true
	}

	overrides, err := s.repo.ListByParty(ctx, db, node.ID)
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		if override.Enabled {
			features[override.FeatureKey] = true
		} else {
			delete(features, override.FeatureKey)
		}
	}

	// A tier without customization rights never grants beyond its base set,
	// even if overrides predate a downgrade.
	if !def.CanCustomizeModules {
		base := make(map[string]bool, len(def.BaseFeatures))
		for _, f := range def.BaseFeatures {
			base[f] = true
		}
		for f := range features {
			if !base[f] {
				delete(features, f)
			}
		}
	}

	out := make([]string, 0, len(features))
	for f := range features {
		out = append(out, f)
	}
	sort.Strings(out)

	return &entitlementdomain.Resolution{
		PartyID:  node.ID.String(),
		Tier:     node.Tier,
		Features: out,
	}, nil
}

// ListOverrides implements domain.Service.
func (s *Service) ListOverrides(ctx context.Context, partyID string) ([]entitlementdomain.OverrideResponse, error) {
	node, err := s.findParty(ctx, s.db, partyID)
	if err != nil {
		return nil, err
	}

	overrides, err := s.repo.ListByParty(ctx, s.db, node.ID)
	if err != nil {
		return nil, err
	}

	out := make([]entitlementdomain.OverrideResponse, 0, len(overrides))
	for _, override := range overrides {
		out = append(out, entitlementdomain.OverrideResponse{
			FeatureKey: override.FeatureKey,
			Enabled:    override.Enabled,
			UpdatedAt:  override.UpdatedAt,
		})
	}
	return out, nil
}

// SetOverride implements domain.Service.
func (s *Service) SetOverride(ctx context.Context, partyID, featureKey string, enabled bool) (*entitlementdomain.Resolution, error) {
	if !tier.KnownFeatures[featureKey] {
		return nil, entitlementdomain.ErrUnknownFeature
	}

	var resolution *entitlementdomain.Resolution
	err := s.db.Transaction(func(tx *gorm.DB) error {
		node, err := s.findParty(ctx, tx, partyID)
		if err != nil {
			return err
		}
		if !node.CanCustomizeModules {
			return entitlementdomain.ErrForbidden
		}

		now := s.clock.Now()
		if err := s.repo.Upsert(ctx, tx, &entitlementdomain.Override{
			ID:         s.genID.Generate(),
			PartyID:    node.ID,
			FeatureKey: featureKey,
			Enabled:    enabled,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return err
		}
		if err := s.partyRepo.BumpOverrideVersion(ctx, tx, node.ID); err != nil {
			return err
		}
		node.OverrideVersion++

		resolution, err = s.resolve(ctx, tx, node)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("entitlement override set",
		zap.String("party_id", partyID),
		zap.String("feature", featureKey),
		zap.Bool("enabled", enabled),
	)
	return resolution, nil
}

// RemoveOverride implements domain.Service. Removing an override that does
// not exist is a no-op.
func (s *Service) RemoveOverride(ctx context.Context, partyID, featureKey string) (*entitlementdomain.Resolution, error) {
	if !tier.KnownFeatures[featureKey] {
		return nil, entitlementdomain.ErrUnknownFeature
	}

	var resolution *entitlementdomain.Resolution
	err := s.db.Transaction(func(tx *gorm.DB) error {
		node, err := s.findParty(ctx, tx, partyID)
		if err != nil {
			return err
		}

		if err := s.repo.Delete(ctx, tx, node.ID, featureKey); err != nil {
			return err
		}
		if err := s.partyRepo.BumpOverrideVersion(ctx, tx, node.ID); err != nil {
			return err
		}
		node.OverrideVersion++

		resolution, err = s.resolve(ctx, tx, node)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("entitlement override removed",
		zap.String("party_id", partyID),
		zap.String("feature", featureKey),
	)
	return resolution, nil
}

func (s *Service) findParty(ctx context.Context, db *gorm.DB, partyID string) (*partydomain.PartyNode, error) {
	parsed, err := snowflake.ParseString(partyID)
	if err != nil {
		return nil, partydomain.ErrInvalidID
	}

	node, err := s.partyRepo.FindByID(ctx, db, parsed)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, partydomain.ErrNotFound
	}
	return node, nil
}
