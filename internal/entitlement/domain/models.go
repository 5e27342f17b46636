// Package domain contains entitlement override models and the resolver
// contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Override flips a single feature on or off for one party, on top of the
// tier's base feature set.
type Override struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	PartyID    snowflake.ID `gorm:"uniqueIndex:idx_override_party_feature;not null"`
	FeatureKey string       `gorm:"uniqueIndex:idx_override_party_feature;type:text;not null"`
	Enabled    bool         `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Override) TableName() string { return "entitlement_overrides" }
