package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	AncestorChain(ctx context.Context, id string) ([]Response, error)
	Children(ctx context.Context, id string) ([]Response, error)
	SetCommissionRate(ctx context.Context, id string, rate int) (*Response, error)
	ChangeTier(ctx context.Context, id string, tierKey string) (*Response, error)
	Suspend(ctx context.Context, id string) (*Response, error)
	Delete(ctx context.Context, id string) error
}

type CreateRequest struct {
	ParentID     *string        `json:"parent_id"`
	Kind         Kind           `json:"kind"`
	Tier         string         `json:"tier"`
	CompanyName  string         `json:"company_name"`
	ContactEmail string         `json:"contact_email"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type Response struct {
	ID           string  `json:"id"`
	Kind         Kind    `json:"kind"`
	ParentID     *string `json:"parent_id,omitempty"`
	Tier         string  `json:"tier"`
	Status       Status  `json:"status"`
	CompanyName  string  `json:"company_name"`
	Subdomain    string  `json:"subdomain"`
	ContactEmail string  `json:"contact_email,omitempty"`
	LicenseKey   string  `json:"license_key,omitempty"`

	CommissionRate int `json:"commission_rate"`

	MaxChildren             int `json:"max_children"`
	MaxSubtreeLicensees     int `json:"max_subtree_licensees"`
	CurrentChildren         int `json:"current_children"`
	CurrentSubtreeLicensees int `json:"current_subtree_licensees"`

	CanCustomizeModules bool `json:"can_customize_modules"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("not_found")
	ErrInvalidKind      = errors.New("invalid_kind")
	ErrInvalidName      = errors.New("invalid_company_name")
	ErrInvalidHierarchy = errors.New("invalid_hierarchy")
	// ErrConflict means an insert raced another party onto the same unique
	// subdomain, api key, or license key.
	ErrConflict = errors.New("party_conflict")
	// ErrConfiguration flags a commission rate assignment that would let a
	// root-to-leaf path exceed 100%.
	ErrConfiguration = errors.New("commission_rate_configuration")
)
