package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, party_id, tier, status, price_cents, currency, billing_period,
	 current_period_start, current_period_end, next_billing_date,
	 activated_at, cancelled_at, expired_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, party_id, tier, status, price_cents, currency, billing_period,
			current_period_start, current_period_end, next_billing_date,
			activated_at, cancelled_at, expired_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.PartyID,
		subscription.Tier,
		subscription.Status,
		subscription.PriceCents,
		subscription.Currency,
		subscription.BillingPeriod,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.NextBillingDate,
		subscription.ActivatedAt,
		subscription.CancelledAt,
		subscription.ExpiredAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByPartyID(ctx context.Context, db *gorm.DB, partyID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE party_id = ?`,
		partyID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			tier = ?, status = ?, price_cents = ?, currency = ?, billing_period = ?,
			current_period_start = ?, current_period_end = ?, next_billing_date = ?,
			activated_at = ?, cancelled_at = ?, expired_at = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.Tier,
		subscription.Status,
		subscription.PriceCents,
		subscription.Currency,
		subscription.BillingPeriod,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.NextBillingDate,
		subscription.ActivatedAt,
		subscription.CancelledAt,
		subscription.ExpiredAt,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) DeleteByPartyID(ctx context.Context, db *gorm.DB, partyID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM subscriptions WHERE party_id = ?`, partyID).Error
}

func (r *repo) MarkPastDue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = ?
		 WHERE status = ? AND next_billing_date IS NOT NULL AND next_billing_date <= ?`,
		subscriptiondomain.StatusPastDue,
		now,
		subscriptiondomain.StatusActive,
		now,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ExpireLapsed(ctx context.Context, db *gorm.DB, cutoff, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, expired_at = ?, updated_at = ?
		 WHERE status = ? AND next_billing_date IS NOT NULL AND next_billing_date <= ?`,
		subscriptiondomain.StatusExpired,
		now,
		now,
		subscriptiondomain.StatusPastDue,
		cutoff,
	)
	return res.RowsAffected, res.Error
}
