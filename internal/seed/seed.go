// Package seed provisions a small demo hierarchy for local development.
package seed

import (
	"context"

	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EnsureDemoHierarchy creates one premium reseller with a sub-reseller and
// two licensees. It is a no-op when any party already exists, so restarts
// never duplicate the demo data.
func EnsureDemoHierarchy(ctx context.Context, conn *gorm.DB, partysvc partydomain.Service, log *zap.Logger) error {
	var count int64
	if err := conn.WithContext(ctx).Raw(`SELECT COUNT(*) FROM parties`).Scan(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	root, err := partysvc.Create(ctx, partydomain.CreateRequest{
		Kind:         partydomain.KindRootReseller,
		Tier:         "premium",
		CompanyName:  "Acme Financial Group",
		ContactEmail: "owner@acme.test",
	})
	if err != nil {
		return err
	}

	sub, err := partysvc.Create(ctx, partydomain.CreateRequest{
		ParentID:    &root.ID,
		Kind:        partydomain.KindSubReseller,
		CompanyName: "Acme Regional Partners",
	})
	if err != nil {
		return err
	}

	if _, err := partysvc.Create(ctx, partydomain.CreateRequest{
		ParentID:    &sub.ID,
		Kind:        partydomain.KindLicensee,
		Tier:        "basic",
		CompanyName: "Downtown Credit Coaching",
	}); err != nil {
		return err
	}
	if _, err := partysvc.Create(ctx, partydomain.CreateRequest{
		ParentID:    &root.ID,
		Kind:        partydomain.KindLicensee,
		Tier:        "professional",
		CompanyName: "Harborview Advisors",
	}); err != nil {
		return err
	}

	log.Info("demo hierarchy seeded",
		zap.String("root_id", root.ID),
		zap.String("sub_reseller_id", sub.ID),
	)
	return nil
}
