package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Service interface {
	// Append books every entry of the request under one batch, inside the
	// caller's transaction. A replayed source transaction books nothing and
	// returns the original rows together with ErrDuplicateTransaction.
	Append(ctx context.Context, tx *gorm.DB, req AppendRequest) ([]Entry, error)
	// FindBooked returns the rows already booked for the source transaction
	// under the given kind, or nil when no batch exists.
	FindBooked(ctx context.Context, tx *gorm.DB, sourceTransactionID string, kind BatchKind) ([]Entry, error)
	// Reverse books negative mirror rows for a previously booked payment.
	// Reversing the same source twice is a no-op returning the first
	// reversal's rows.
	Reverse(ctx context.Context, sourceTransactionID string) ([]EntryResponse, error)

	EntriesByParty(ctx context.Context, partyID string, from, to *time.Time) ([]EntryResponse, error)
	SumByParty(ctx context.Context, partyID string, from, to *time.Time) (*Summary, error)
}

type AppendRequest struct {
	SourceTransactionID string
	Kind                BatchKind
	Entries             []Entry
}

type EntryResponse struct {
	ID             string    `json:"id"`
	PartyID        string    `json:"party_id"`
	CounterpartyID *string   `json:"counterparty_id,omitempty"`
	EntryType      EntryType `json:"entry_type"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`

	SourceTransactionID string    `json:"source_transaction_id"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// Summary aggregates a party's ledger over a window.
type Summary struct {
	PartyID         string              `json:"party_id"`
	TotalCents      int64               `json:"total_cents"`
	CommissionCents int64               `json:"commission_cents"`
	ByType          map[EntryType]int64 `json:"by_type"`
	From            *time.Time          `json:"from,omitempty"`
	To              *time.Time          `json:"to,omitempty"`
}

var (
	ErrInvalidID = errors.New("invalid_id")
	ErrNotFound  = errors.New("transaction_not_found")
	// ErrDuplicateTransaction marks a replay. Callers that want replay to
	// look like success swallow it after taking the returned rows.
	ErrDuplicateTransaction = errors.New("duplicate_transaction")
	ErrEmptyBatch           = errors.New("empty_batch")
)
