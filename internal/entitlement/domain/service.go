package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// Resolve computes the effective feature set for a party. Results are
	// cached; any override or tier change invalidates the cache through the
	// party's override version.
	Resolve(ctx context.Context, partyID string) (*Resolution, error)
	ListOverrides(ctx context.Context, partyID string) ([]OverrideResponse, error)
	SetOverride(ctx context.Context, partyID, featureKey string, enabled bool) (*Resolution, error)
	RemoveOverride(ctx context.Context, partyID, featureKey string) (*Resolution, error)
}

// Resolution is the effective entitlement of one party at one point in time.
type Resolution struct {
	PartyID  string   `json:"party_id"`
	Tier     string   `json:"tier"`
	Features []string `json:"features"`
}

// Has reports whether the resolution grants the feature.
func (r *Resolution) Has(featureKey string) bool {
	for _, f := range r.Features {
		if f == featureKey {
			return true
		}
	}
	return false
}

type OverrideResponse struct {
	FeatureKey string    `json:"feature_key"`
	Enabled    bool      `json:"enabled"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var (
	// ErrForbidden rejects overrides on parties whose tier does not allow
	// module customization.
	ErrForbidden      = errors.New("forbidden")
	ErrUnknownFeature = errors.New("unknown_feature")
)
