package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/licensia/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

// InsertBatch reports whether the header landed. The conflict clause renders
// per dialect (ON CONFLICT on postgres and sqlite, ON DUPLICATE KEY on
// mysql), so the header insert stays the idempotency gate on every backend.
func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, batch *ledgerdomain.Batch) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_transaction_id"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(batch)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindBatch(ctx context.Context, db *gorm.DB, sourceTransactionID string, kind ledgerdomain.BatchKind) (*ledgerdomain.Batch, error) {
	var batch ledgerdomain.Batch
	err := db.WithContext(ctx).Raw(
		`SELECT id, source_transaction_id, kind, created_at
		 FROM ledger_batches WHERE source_transaction_id = ? AND kind = ?`,
		sourceTransactionID,
		kind,
	).Scan(&batch).Error
	if err != nil {
		return nil, err
	}
	if batch.ID == 0 {
		return nil, nil
	}
	return &batch, nil
}

func (r *repo) InsertEntries(ctx context.Context, db *gorm.DB, entries []ledgerdomain.Entry) error {
	for _, entry := range entries {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO ledger_entries (
				id, batch_id, party_id, counterparty_id, entry_type, amount_cents,
				currency, source_transaction_id, occurred_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID,
			entry.BatchID,
			entry.PartyID,
			entry.CounterpartyID,
			entry.EntryType,
			entry.AmountCents,
			entry.Currency,
			entry.SourceTransactionID,
			entry.OccurredAt,
			entry.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

const entryColumns = `id, batch_id, party_id, counterparty_id, entry_type, amount_cents,
	 currency, source_transaction_id, occurred_at, created_at`

func (r *repo) FindEntriesByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]ledgerdomain.Entry, error) {
	var entries []ledgerdomain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM ledger_entries WHERE batch_id = ? ORDER BY id ASC`,
		batchID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) FindEntriesByParty(ctx context.Context, db *gorm.DB, partyID snowflake.ID, from, to *time.Time) ([]ledgerdomain.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE party_id = ?`
	args := []any{partyID}
	if from != nil {
		query += ` AND occurred_at >= ?`
		args = append(args, *from)
	}
	if to != nil {
		query += ` AND occurred_at < ?`
		args = append(args, *to)
	}
	query += ` ORDER BY occurred_at ASC, id ASC`

	var entries []ledgerdomain.Entry
	err := db.WithContext(ctx).Raw(query, args...).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) SumByParty(ctx context.Context, db *gorm.DB, partyID snowflake.ID, from, to *time.Time) ([]ledgerdomain.TypeSum, error) {
	query := `SELECT entry_type, SUM(amount_cents) AS total FROM ledger_entries WHERE party_id = ?`
	args := []any{partyID}
	if from != nil {
		query += ` AND occurred_at >= ?`
		args = append(args, *from)
	}
	if to != nil {
		query += ` AND occurred_at < ?`
		args = append(args, *to)
	}
	query += ` GROUP BY entry_type`

	var sums []ledgerdomain.TypeSum
	err := db.WithContext(ctx).Raw(query, args...).Scan(&sums).Error
	if err != nil {
		return nil, err
	}
	return sums, nil
}
