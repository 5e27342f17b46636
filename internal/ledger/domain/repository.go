package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// TypeSum is one row of a grouped ledger aggregation.
type TypeSum struct {
	EntryType EntryType
	Total     int64
}

type Repository interface {
	// InsertBatch writes the idempotency header. It reports false when the
	// (source, kind) pair was already booked.
	InsertBatch(ctx context.Context, db *gorm.DB, batch *Batch) (bool, error)
	FindBatch(ctx context.Context, db *gorm.DB, sourceTransactionID string, kind BatchKind) (*Batch, error)
	InsertEntries(ctx context.Context, db *gorm.DB, entries []Entry) error
	FindEntriesByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]Entry, error)
	FindEntriesByParty(ctx context.Context, db *gorm.DB, partyID snowflake.ID, from, to *time.Time) ([]Entry, error)
	SumByParty(ctx context.Context, db *gorm.DB, partyID snowflake.ID, from, to *time.Time) ([]TypeSum, error)
}
