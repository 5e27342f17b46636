// Package domain contains the append-only ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type EntryType string

const (
	EntryNewLicense EntryType = "new_license"
	EntryRenewal    EntryType = "renewal"
	EntryCommission EntryType = "commission"
	EntryUpgrade    EntryType = "upgrade"
	EntryReversal   EntryType = "reversal"
)

type BatchKind string

const (
	BatchPayment  BatchKind = "payment"
	BatchReversal BatchKind = "reversal"
)

// Batch is the idempotency header for one booked event. The unique key on
// (source_transaction_id, kind) is what makes replays observable: the header
// insert either lands or conflicts, never half of the rows.
type Batch struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	SourceTransactionID string       `gorm:"uniqueIndex:idx_batch_source_kind;type:text;not null"`
	Kind                BatchKind    `gorm:"uniqueIndex:idx_batch_source_kind;type:text;not null"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Batch) TableName() string { return "ledger_batches" }

// Entry is one signed money movement. Rows are never updated or deleted;
// corrections land as new reversal rows.
type Entry struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	BatchID        snowflake.ID  `gorm:"index;not null"`
	PartyID        snowflake.ID  `gorm:"index;not null"`
	CounterpartyID *snowflake.ID `gorm:"index"`

	EntryType   EntryType `gorm:"type:text;not null"`
	AmountCents int64     `gorm:"not null"`
	Currency    string    `gorm:"type:text;not null"`

	SourceTransactionID string    `gorm:"index;type:text;not null"`
	OccurredAt          time.Time `gorm:"index;not null"`
	CreatedAt           time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "ledger_entries" }
