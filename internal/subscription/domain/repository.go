package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByPartyID(ctx context.Context, db *gorm.DB, partyID snowflake.ID) (*Subscription, error)
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	DeleteByPartyID(ctx context.Context, db *gorm.DB, partyID snowflake.ID) error

	MarkPastDue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	ExpireLapsed(ctx context.Context, db *gorm.DB, cutoff, now time.Time) (int64, error)
}
