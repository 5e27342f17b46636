package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the override or, when the (party, feature) pair exists,
	// rewrites its enabled flag.
	Upsert(ctx context.Context, db *gorm.DB, override *Override) error
	ListByParty(ctx context.Context, db *gorm.DB, partyID snowflake.ID) ([]Override, error)
	Delete(ctx context.Context, db *gorm.DB, partyID snowflake.ID, featureKey string) error
	DeleteByParty(ctx context.Context, db *gorm.DB, partyID snowflake.ID) error
}
