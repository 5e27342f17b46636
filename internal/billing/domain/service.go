// Package domain defines the payment booking contract.
package domain

import (
	"context"
	"errors"
	"time"

	ledgerdomain "github.com/smallbiznis/licensia/internal/ledger/domain"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
)

type Service interface {
	// RecordPayment books one provider payment: commission rows for every
	// ancestor, the net row for the direct biller, and the subscription
	// activation, all in one transaction. Replaying the same source
	// transaction returns the original booking with Replayed set.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PaymentResult, error)
}

type RecordPaymentRequest struct {
	PayerID             string     `json:"payer_id"`
	AmountCents         int64      `json:"amount_cents"`
	Currency            string     `json:"currency"`
	SourceTransactionID string     `json:"source_transaction_id"`
	OccurredAt          *time.Time `json:"occurred_at,omitempty"`
	// Upgrade marks a tier-upgrade charge. The net row books as upgrade
	// instead of renewal; the first payment on a pending subscription always
	// books as new_license.
	Upgrade bool `json:"upgrade,omitempty"`
}

type PaymentResult struct {
	SourceTransactionID string                          `json:"source_transaction_id"`
	Replayed            bool                            `json:"replayed"`
	Entries             []ledgerdomain.EntryResponse    `json:"entries"`
	Subscription        *subscriptiondomain.Response    `json:"subscription,omitempty"`
}

var (
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidTransaction = errors.New("invalid_transaction")
	// ErrLocked means another instance is booking the same source
	// transaction right now.
	ErrLocked = errors.New("payment_locked")
)
