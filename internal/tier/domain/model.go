// Package domain holds the license tier reference data. Definitions are
// immutable and versioned by tier key; nodes snapshot their limits at
// creation time.
package domain

import "errors"

// Group scopes a tier key to the party kind it applies to. Reseller and
// licensee tiers use different key spaces (standard/premium/enterprise vs
// basic/professional/enterprise).
type Group string

const (
	GroupReseller    Group = "reseller"
	GroupSubReseller Group = "sub_reseller"
	GroupLicensee    Group = "licensee"
)

// Unlimited marks a capacity with no upper bound.
const Unlimited = -1

// Definition maps a tier key to default capacity limits, commission rate,
// base feature set and suggested price.
type Definition struct {
	Key           string `json:"key"`
	Group         Group  `json:"group"`
	Name          string `json:"name"`
	PriceCents    int64  `json:"price_cents"`
	BillingPeriod string `json:"billing_period"`

	MaxChildren         int `json:"max_children"`
	MaxSubtreeLicensees int `json:"max_subtree_licensees"`

	// CommissionRate is the percentage this node earns on revenue generated
	// in its subtree.
	CommissionRate int `json:"commission_rate"`

	BaseFeatures []string `json:"base_features"`

	CanCustomizeModules   bool `json:"can_customize_modules"`
	CanSetPricing         bool `json:"can_set_pricing"`
	CanCreateSubResellers bool `json:"can_create_sub_resellers"`
}

// IsUnlimitedChildren reports whether the tier places no bound on direct children.
func (d Definition) IsUnlimitedChildren() bool { return d.MaxChildren == Unlimited }

var ErrUnknownTier = errors.New("unknown_tier")

type Service interface {
	List() []Definition
	Get(group Group, key string) (Definition, error)
}
