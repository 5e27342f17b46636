package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	GetByParty(ctx context.Context, partyID string) (*Response, error)
	Cancel(ctx context.Context, partyID string) (*Response, error)

	// CreateForParty opens a pending subscription inside the caller's
	// transaction. Called once, when the party is created.
	CreateForParty(ctx context.Context, tx *gorm.DB, req CreateForPartyRequest) (*Subscription, error)
	// UpdatePlan rewrites tier, price and period on a non-terminal
	// subscription without touching the current period.
	UpdatePlan(ctx context.Context, tx *gorm.DB, partyID snowflake.ID, tier string, priceCents int64, period BillingPeriod) error
	// ActivateOnPayment starts a fresh billing period at paidAt and reports
	// the status the subscription had before the payment landed.
	ActivateOnPayment(ctx context.Context, tx *gorm.DB, partyID snowflake.ID, paidAt time.Time) (*ActivationResult, error)
	// DeleteForParty removes the subscription row inside the caller's
	// transaction when its party is deleted.
	DeleteForParty(ctx context.Context, tx *gorm.DB, partyID snowflake.ID) error

	// MarkPastDue flips active subscriptions whose billing date has passed.
	MarkPastDue(ctx context.Context, now time.Time) (int64, error)
	// ExpireLapsed expires past-due subscriptions whose grace window ended.
	ExpireLapsed(ctx context.Context, now time.Time, graceDays int) (int64, error)
}

type CreateForPartyRequest struct {
	PartyID       snowflake.ID
	Tier          string
	PriceCents    int64
	Currency      string
	BillingPeriod BillingPeriod
}

// ActivationResult carries the subscription after activation plus the status
// it transitioned from, which decides how the payment is booked.
type ActivationResult struct {
	Subscription   Subscription
	PreviousStatus Status
}

type Response struct {
	ID      string `json:"id"`
	PartyID string `json:"party_id"`

	Tier          string        `json:"tier"`
	Status        Status        `json:"status"`
	PriceCents    int64         `json:"price_cents"`
	Currency      string        `json:"currency"`
	BillingPeriod BillingPeriod `json:"billing_period"`

	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	NextBillingDate    *time.Time `json:"next_billing_date,omitempty"`

	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("subscription_not_found")
	ErrAlreadyTerminal = errors.New("already_terminal")
)
