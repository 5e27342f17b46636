package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/smallbiznis/licensia/internal/entitlement/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() entitlementdomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, override *entitlementdomain.Override) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "party_id"}, {Name: "feature_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(override).Error
}

func (r *repo) ListByParty(ctx context.Context, db *gorm.DB, partyID snowflake.ID) ([]entitlementdomain.Override, error) {
	var overrides []entitlementdomain.Override
	err := db.WithContext(ctx).Raw(
		`SELECT id, party_id, feature_key, enabled, created_at, updated_at
		 FROM entitlement_overrides WHERE party_id = ? ORDER BY feature_key ASC`,
		partyID,
	).Scan(&overrides).Error
	if err != nil {
		return nil, err
	}
	return overrides, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, partyID snowflake.ID, featureKey string) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM entitlement_overrides WHERE party_id = ? AND feature_key = ?`,
		partyID,
		featureKey,
	).Error
}

func (r *repo) DeleteByParty(ctx context.Context, db *gorm.DB, partyID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM entitlement_overrides WHERE party_id = ?`,
		partyID,
	).Error
}
