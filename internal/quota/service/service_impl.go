package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensia/internal/observability/metrics"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	quotadomain "github.com/smallbiznis/licensia/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func New(p Params) quotadomain.Service {
	return &Service{
		log:     p.Log.Named("quota.service"),
		metrics: p.Metrics,
	}
}

// Reserve implements domain.Service. Each slot is taken with a conditional
// UPDATE so concurrent creates race on the row itself; a zero-row result
// means the slot was gone.
func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, chain []partydomain.PartyNode, childKind partydomain.Kind) error {
	if len(chain) == 0 {
		return nil
	}

	if err := s.takeChildSlot(ctx, tx, chain[0].ID); err != nil {
		return err
	}

	if childKind != partydomain.KindLicensee {
		return nil
	}

	for _, ancestor := range chain {
		if err := s.takeSubtreeSlot(ctx, tx, ancestor.ID); err != nil {
			return err
		}
	}
	return nil
}

// Release implements domain.Service.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, chain []partydomain.PartyNode, childKind partydomain.Kind) error {
	if len(chain) == 0 {
		return nil
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE parties SET current_children = current_children - 1
		 WHERE id = ? AND current_children > 0`,
		chain[0].ID,
	).Error; err != nil {
		return err
	}

	if childKind != partydomain.KindLicensee {
		return nil
	}

	for _, ancestor := range chain {
		if err := tx.WithContext(ctx).Exec(
			`UPDATE parties SET current_subtree_licensees = current_subtree_licensees - 1
			 WHERE id = ? AND current_subtree_licensees > 0`,
			ancestor.ID,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) takeChildSlot(ctx context.Context, tx *gorm.DB, parentID snowflake.ID) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE parties SET current_children = current_children + 1
		 WHERE id = ? AND (max_children < 0 OR current_children < max_children)`,
		parentID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		s.reject("children", parentID)
		return fmt.Errorf("party %d: %w", parentID, quotadomain.ErrQuotaExceeded)
	}
	return nil
}

func (s *Service) takeSubtreeSlot(ctx context.Context, tx *gorm.DB, ancestorID snowflake.ID) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE parties SET current_subtree_licensees = current_subtree_licensees + 1
		 WHERE id = ? AND (max_subtree_licensees < 0 OR current_subtree_licensees < max_subtree_licensees)`,
		ancestorID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		s.reject("subtree_licensees", ancestorID)
		return fmt.Errorf("party %d: %w", ancestorID, quotadomain.ErrQuotaExceeded)
	}
	return nil
}

func (s *Service) reject(kind string, partyID snowflake.ID) {
	s.log.Warn("quota slot rejected",
		zap.String("quota", kind),
		zap.Int64("party_id", int64(partyID)),
	)
	s.metrics.RecordQuotaRejection(kind)
}
