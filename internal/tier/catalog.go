package tier

import (
	"sort"

	"github.com/smallbiznis/licensia/internal/tier/domain"
)

// Feature keys form a closed set; entitlement overrides reference these only.
const (
	FeatureFinancialEducation = "financial_education"
	FeatureBrandedLogin       = "branded_login"
	FeatureWhiteLabel         = "white_label"
	FeaturePrioritySupport    = "priority_support"
	FeatureUsageAnalytics     = "usage_analytics"
	FeaturePremiumTemplates   = "premium_templates"
	FeatureCustomModules      = "custom_modules"
	FeatureAPIAccess          = "api_access"
)

// KnownFeatures is the closed feature registry.
var KnownFeatures = map[string]bool{
	FeatureFinancialEducation: true,
	FeatureBrandedLogin:       true,
	FeatureWhiteLabel:         true,
	FeaturePrioritySupport:    true,
	FeatureUsageAnalytics:     true,
	FeaturePremiumTemplates:   true,
	FeatureCustomModules:      true,
	FeatureAPIAccess:          true,
}

var catalog = map[domain.Group]map[string]domain.Definition{
	domain.GroupReseller: {
		"standard": {
			Key:                 "standard",
			Group:               domain.GroupReseller,
			Name:                "Standard Reseller",
			PriceCents:          199900,
			BillingPeriod:       "monthly",
			MaxChildren:         25,
			MaxSubtreeLicensees: 25,
			CommissionRate:      20,
			BaseFeatures: []string{
				FeatureFinancialEducation,
				FeatureBrandedLogin,
				FeatureWhiteLabel,
			},
		},
		"premium": {
			Key:                   "premium",
			Group:                 domain.GroupReseller,
			Name:                  "Premium Reseller",
			PriceCents:            499900,
			BillingPeriod:         "monthly",
			MaxChildren:           100,
			MaxSubtreeLicensees:   100,
			CommissionRate:        30,
			CanSetPricing:         true,
			CanCreateSubResellers: true,
			BaseFeatures: []string{
				FeatureFinancialEducation,
				FeatureBrandedLogin,
				FeatureWhiteLabel,
				FeaturePrioritySupport,
				FeatureUsageAnalytics,
			},
		},
		"enterprise": {
			Key:                   "enterprise",
			Group:                 domain.GroupReseller,
			Name:                  "Enterprise Reseller",
			PriceCents:            999900,
			BillingPeriod:         "monthly",
			MaxChildren:           domain.Unlimited,
			MaxSubtreeLicensees:   domain.Unlimited,
			CommissionRate:        40,
			CanCustomizeModules:   true,
			CanSetPricing:         true,
			CanCreateSubResellers: true,
			BaseFeatures: []string{
				FeatureFinancialEducation,
				FeatureBrandedLogin,
				FeatureWhiteLabel,
				FeaturePrioritySupport,
				FeatureUsageAnalytics,
				FeaturePremiumTemplates,
				FeatureCustomModules,
				FeatureAPIAccess,
			},
		},
	},
	domain.GroupSubReseller: {
		"standard": {
			Key:                 "standard",
			Group:               domain.GroupSubReseller,
			Name:                "Sub-Reseller",
			PriceCents:          0,
			BillingPeriod:       "monthly",
			MaxChildren:         10,
			MaxSubtreeLicensees: 10,
			CommissionRate:      10,
			BaseFeatures: []string{
				FeatureFinancialEducation,
				FeatureBrandedLogin,
			},
		},
	},
	domain.GroupLicensee: {
		"basic": {
			Key:           "basic",
			Group:         domain.GroupLicensee,
			Name:          "Basic",
			PriceCents:    19900,
			BillingPeriod: "monthly",
			BaseFeatures: []string{
				FeatureFinancialEducation,
				FeatureBrandedLogin,
			},
		},
		"professional": {
			Key:           "professional",
			Group:         domain.GroupLicensee,
			Name:          "Professional",
			PriceCents:    49900,
			BillingPeriod: "monthly",
			BaseFeatures: []string{
				FeatureFinancialEducation,
				FeatureBrandedLogin,
				FeatureWhiteLabel,
				FeaturePrioritySupport,
				FeatureUsageAnalytics,
			},
		},
		"enterprise": {
			Key:                 "enterprise",
			Group:               domain.GroupLicensee,
			Name:                "Enterprise",
			PriceCents:          99900,
			BillingPeriod:       "monthly",
			CanCustomizeModules: true,
			BaseFeatures: []string{
				FeatureFinancialEducation,
				FeatureBrandedLogin,
				FeatureWhiteLabel,
				FeaturePrioritySupport,
				FeatureUsageAnalytics,
				FeaturePremiumTemplates,
				FeatureCustomModules,
				FeatureAPIAccess,
			},
		},
	},
}

type service struct{}

// NewService exposes the static catalog behind the domain interface.
func NewService() domain.Service { return service{} }

func (service) List() []domain.Definition {
	var out []domain.Definition
	for _, group := range catalog {
		for _, def := range group {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].PriceCents < out[j].PriceCents
	})
	return out
}

func (service) Get(group domain.Group, key string) (domain.Definition, error) {
	defs, ok := catalog[group]
	if !ok {
		return domain.Definition{}, domain.ErrUnknownTier
	}
	def, ok := defs[key]
	if !ok {
		return domain.Definition{}, domain.ErrUnknownTier
	}
	return def, nil
}
