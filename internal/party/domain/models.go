// Package domain contains persistence models for hierarchy parties.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	tierdomain "github.com/smallbiznis/licensia/internal/tier/domain"
	"gorm.io/datatypes"
)

// Kind tags a party's position in the reseller hierarchy.
type Kind string

const (
	KindRootReseller Kind = "root_reseller"
	KindSubReseller  Kind = "sub_reseller"
	KindLicensee     Kind = "licensee"
)

// Status represents lifecycle states for a party.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
)

// MaxDepth bounds the hierarchy: root, sub-reseller, licensee.
const MaxDepth = 3

// PartyNode is a reseller, sub-reseller or licensee. Capacity limits and the
// commission rate are snapshotted from the tier definition at creation time.
type PartyNode struct {
	ID       snowflake.ID  `gorm:"primaryKey"`
	Kind     Kind          `gorm:"type:text;not null;index"`
	ParentID *snowflake.ID `gorm:"index"`
	Tier     string        `gorm:"type:text;not null"`
	Status   Status        `gorm:"type:text;not null"`

	CompanyName  string `gorm:"type:text;not null"`
	Subdomain    string `gorm:"type:text;uniqueIndex"`
	ContactEmail string `gorm:"type:text"`
	// LicenseKey is set for licensees only; NULL elsewhere keeps the unique
	// index honest.
	LicenseKey *string `gorm:"type:text;uniqueIndex"`
	APIKey     string  `gorm:"column:api_key;type:text;uniqueIndex"`

	// CommissionRate is the percentage this node earns on revenue generated
	// in its subtree. Always 0 for licensees.
	CommissionRate int `gorm:"not null;default:0"`

	MaxChildren             int `gorm:"not null"`
	MaxSubtreeLicensees     int `gorm:"not null"`
	CurrentChildren         int `gorm:"not null;default:0"`
	CurrentSubtreeLicensees int `gorm:"not null;default:0"`

	CanCustomizeModules   bool `gorm:"not null;default:false"`
	CanCreateSubResellers bool `gorm:"not null;default:false"`

	// OverrideVersion increments whenever the node's entitlement overrides or
	// tier change, keying the resolver cache.
	OverrideVersion int64 `gorm:"not null;default:0"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PartyNode) TableName() string { return "parties" }

// TierGroup maps a party kind to its tier key space.
func TierGroup(kind Kind) tierdomain.Group {
	switch kind {
	case KindRootReseller:
		return tierdomain.GroupReseller
	case KindSubReseller:
		return tierdomain.GroupSubReseller
	default:
		return tierdomain.GroupLicensee
	}
}

// LegalChild reports whether child may be created under parent.
// Roots accept sub-resellers and licensees, sub-resellers accept licensees,
// licensees accept nothing.
func LegalChild(parent, child Kind) bool {
	switch parent {
	case KindRootReseller:
		return child == KindSubReseller || child == KindLicensee
	case KindSubReseller:
		return child == KindLicensee
	default:
		return false
	}
}
