package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensia/internal/clock"
	ledgerdomain "github.com/smallbiznis/licensia/internal/ledger/domain"
	"github.com/smallbiznis/licensia/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
	repo    ledgerdomain.Repository
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
	Repo    ledgerdomain.Repository
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
		repo:    p.Repo,
	}
}

// Append implements domain.Service. The batch header insert is the only
// gate: when it conflicts, the whole batch was already booked and the
// original rows come back with ErrDuplicateTransaction.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, req ledgerdomain.AppendRequest) ([]ledgerdomain.Entry, error) {
	if len(req.Entries) == 0 {
		return nil, ledgerdomain.ErrEmptyBatch
	}

	now := s.clock.Now()
	batch := &ledgerdomain.Batch{
		ID:                  s.genID.Generate(),
		SourceTransactionID: req.SourceTransactionID,
		Kind:                req.Kind,
		CreatedAt:           now,
	}

	inserted, err := s.repo.InsertBatch(ctx, tx, batch)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := s.repo.FindBatch(ctx, tx, req.SourceTransactionID, req.Kind)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ledgerdomain.ErrNotFound
		}
		rows, err := s.repo.FindEntriesByBatch(ctx, tx, existing.ID)
		if err != nil {
			return nil, err
		}
		s.log.Info("ledger batch replayed",
			zap.String("source_transaction_id", req.SourceTransactionID),
			zap.String("kind", string(req.Kind)),
		)
		return rows, ledgerdomain.ErrDuplicateTransaction
	}

	entries := make([]ledgerdomain.Entry, 0, len(req.Entries))
	for _, entry := range req.Entries {
		entry.ID = s.genID.Generate()
		entry.BatchID = batch.ID
		entry.SourceTransactionID = req.SourceTransactionID
		if entry.OccurredAt.IsZero() {
			entry.OccurredAt = now
		}
		entry.CreatedAt = now
		entries = append(entries, entry)
	}
	if err := s.repo.InsertEntries(ctx, tx, entries); err != nil {
		return nil, err
	}

	for _, entry := range entries {
		s.metrics.RecordLedgerEntry(string(entry.EntryType))
	}
	return entries, nil
}

// FindBooked implements domain.Service.
func (s *Service) FindBooked(ctx context.Context, tx *gorm.DB, sourceTransactionID string, kind ledgerdomain.BatchKind) ([]ledgerdomain.Entry, error) {
	batch, err := s.repo.FindBatch(ctx, tx, sourceTransactionID, kind)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, nil
	}
	return s.repo.FindEntriesByBatch(ctx, tx, batch.ID)
}

// Reverse implements domain.Service.
func (s *Service) Reverse(ctx context.Context, sourceTransactionID string) ([]ledgerdomain.EntryResponse, error) {
	var rows []ledgerdomain.Entry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		original, err := s.repo.FindBatch(ctx, tx, sourceTransactionID, ledgerdomain.BatchPayment)
		if err != nil {
			return err
		}
		if original == nil {
			return ledgerdomain.ErrNotFound
		}
		originals, err := s.repo.FindEntriesByBatch(ctx, tx, original.ID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		mirrored := make([]ledgerdomain.Entry, 0, len(originals))
		for _, entry := range originals {
			mirrored = append(mirrored, ledgerdomain.Entry{
				PartyID:        entry.PartyID,
				CounterpartyID: entry.CounterpartyID,
				EntryType:      ledgerdomain.EntryReversal,
				AmountCents:    -entry.AmountCents,
				Currency:       entry.Currency,
				OccurredAt:     now,
			})
		}

		rows, err = s.Append(ctx, tx, ledgerdomain.AppendRequest{
			SourceTransactionID: sourceTransactionID,
			Kind:                ledgerdomain.BatchReversal,
			Entries:             mirrored,
		})
		if err == ledgerdomain.ErrDuplicateTransaction {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("transaction reversed", zap.String("source_transaction_id", sourceTransactionID))
	return toResponses(rows), nil
}

// EntriesByParty implements domain.Service.
func (s *Service) EntriesByParty(ctx context.Context, partyID string, from, to *time.Time) ([]ledgerdomain.EntryResponse, error) {
	parsed, err := snowflake.ParseString(partyID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidID
	}

	entries, err := s.repo.FindEntriesByParty(ctx, s.db, parsed, from, to)
	if err != nil {
		return nil, err
	}
	return toResponses(entries), nil
}

// SumByParty implements domain.Service.
func (s *Service) SumByParty(ctx context.Context, partyID string, from, to *time.Time) (*ledgerdomain.Summary, error) {
	parsed, err := snowflake.ParseString(partyID)
	if err != nil {
		return nil, ledgerdomain.ErrInvalidID
	}

	sums, err := s.repo.SumByParty(ctx, s.db, parsed, from, to)
	if err != nil {
		return nil, err
	}

	summary := &ledgerdomain.Summary{
		PartyID: partyID,
		ByType:  make(map[ledgerdomain.EntryType]int64, len(sums)),
		From:    from,
		To:      to,
	}
	for _, row := range sums {
		summary.ByType[row.EntryType] = row.Total
		summary.TotalCents += row.Total
		if row.EntryType == ledgerdomain.EntryCommission {
			summary.CommissionCents += row.Total
		}
	}
	return summary, nil
}

func toResponses(entries []ledgerdomain.Entry) []ledgerdomain.EntryResponse {
	out := make([]ledgerdomain.EntryResponse, 0, len(entries))
	for _, entry := range entries {
		var counterparty *string
		if entry.CounterpartyID != nil {
			id := entry.CounterpartyID.String()
			counterparty = &id
		}
		out = append(out, ledgerdomain.EntryResponse{
			ID:                  entry.ID.String(),
			PartyID:             entry.PartyID.String(),
			CounterpartyID:      counterparty,
			EntryType:           entry.EntryType,
			AmountCents:         entry.AmountCents,
			Currency:            entry.Currency,
			SourceTransactionID: entry.SourceTransactionID,
			OccurredAt:          entry.OccurredAt,
		})
	}
	return out
}
