// Package domain contains subscription models and lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

type BillingPeriod string

const (
	PeriodMonthly   BillingPeriod = "monthly"
	PeriodQuarterly BillingPeriod = "quarterly"
	PeriodAnnually  BillingPeriod = "annually"
)

// NextPeriodEnd advances start by one billing period. Unknown periods fall
// back to monthly.
func NextPeriodEnd(start time.Time, period BillingPeriod) time.Time {
	switch period {
	case PeriodQuarterly:
		return start.AddDate(0, 3, 0)
	case PeriodAnnually:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// Subscription tracks the billing state of a single party. A party has at
// most one subscription row for its whole lifetime.
type Subscription struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	PartyID snowflake.ID `gorm:"uniqueIndex;not null"`

	Tier          string        `gorm:"type:text;not null"`
	Status        Status        `gorm:"type:text;not null;index"`
	PriceCents    int64         `gorm:"not null"`
	Currency      string        `gorm:"type:text;not null"`
	BillingPeriod BillingPeriod `gorm:"type:text;not null"`

	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	NextBillingDate    *time.Time `gorm:"index"`

	ActivatedAt *time.Time
	CancelledAt *time.Time
	ExpiredAt   *time.Time

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
