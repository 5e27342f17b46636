package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, node *PartyNode) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PartyNode, error)
	FindBySubdomain(ctx context.Context, db *gorm.DB, subdomain string) (*PartyNode, error)
	FindChildren(ctx context.Context, db *gorm.DB, parentID snowflake.ID) ([]PartyNode, error)
	// AncestorChain returns [node, parent, ..., root]. The walk is bounded by
	// MaxDepth; a longer chain means corrupted data and returns an error.
	AncestorChain(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]PartyNode, error)
	Update(ctx context.Context, db *gorm.DB, node *PartyNode) error
	BumpOverrideVersion(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
