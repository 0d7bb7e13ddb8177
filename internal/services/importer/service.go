// Package importer coordinates Statement Parser, Dedup Guard and Transaction
// Store for a single upload or sync call.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"sda-reconciliation-backend/internal/dedup"
	"sda-reconciliation-backend/internal/models"
	"sda-reconciliation-backend/internal/statement"
	"sda-reconciliation-backend/internal/store"
)

// ErrEmptyImport is returned when parsing yields zero valid rows. A fully
// duplicate re-upload is NOT this error; that is a normal no-op.
var ErrEmptyImport = errors.New("statement contains no valid rows")

type Service struct {
	store *store.Store
}

func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Result reports one import call. Issues carries per-row parse problems;
// they never abort the call on their own.
type Result struct {
	BatchID    uuid.UUID            `json:"batch_id"`
	Imported   int                  `json:"imported"`
	Duplicates int                  `json:"duplicates"`
	Rejected   int                  `json:"rejected"`
	Issues     []statement.RowIssue `json:"issues,omitempty"`
}

// ImportStatement parses raw CSV text in the given dialect and persists the
// genuinely new rows. Auto-matching is never triggered here; it is a
// separate, explicitly requested step.
func (s *Service) ImportStatement(ctx context.Context, bankAccountID uuid.UUID, dialect statement.Dialect, raw string) (Result, error) {
	rows, report, err := statement.Parse(raw, dialect)
	if err != nil {
		return Result{}, err
	}
	if len(rows) == 0 {
		return Result{Rejected: len(report.Skipped), Issues: report.Skipped},
			fmt.Errorf("%w: %d rows seen, %d skipped", ErrEmptyImport, report.RowsSeen, len(report.Skipped))
	}

	source := models.SourceCSVANZ
	if dialect == statement.DialectWestpac {
		source = models.SourceCSVWestpac
	}
	return s.persist(ctx, bankAccountID, source, rows, report)
}

// ImportRows persists rows that arrive already canonical, e.g. from the
// external statement sync adapter.
func (s *Service) ImportRows(ctx context.Context, bankAccountID uuid.UUID, source models.ImportSource, rows []statement.Row) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrEmptyImport
	}
	return s.persist(ctx, bankAccountID, source, rows, statement.Report{RowsSeen: len(rows)})
}

func (s *Service) persist(ctx context.Context, bankAccountID uuid.UUID, source models.ImportSource, rows []statement.Row, report statement.Report) (Result, error) {
	acct, err := s.store.Account(ctx, bankAccountID)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = s.store.WithAccountLock(bankAccountID, func() error {
		hashes := make([]string, len(rows))
		for i, row := range rows {
			hashes[i] = dedup.Hash(bankAccountID, row.Date, row.Amount, row.Description)
		}
		existing, err := s.store.ExistingHashCounts(ctx, bankAccountID, hashes)
		if err != nil {
			return err
		}

		newRows, newHashes, duplicates := dedup.Filter(bankAccountID, rows, existing)

		batch := &models.ImportBatch{
			ID:            uuid.New(),
			BankAccountID: bankAccountID,
			Source:        source,
			ImportedAt:    time.Now(),
			RowsSeen:      report.RowsSeen,
			RowsImported:  len(newRows),
			RowsDuplicate: duplicates,
			RowsRejected:  len(report.Skipped),
		}

		txs := make([]models.BankTransaction, len(newRows))
		now := time.Now()
		for i, row := range newRows {
			txs[i] = models.BankTransaction{
				ID:              uuid.New(),
				OrganizationID:  acct.OrganizationID,
				BankAccountID:   bankAccountID,
				ImportBatchID:   batch.ID,
				TransactionDate: row.Date,
				Description:     row.Description,
				Reference:       row.Reference,
				Amount:          row.Amount,
				Balance:         row.Balance,
				Category:        models.CategoryUncategorized,
				MatchStatus:     models.StatusUnmatched,
				MatchedRefs:     nil,
				DedupeHash:      newHashes[i],
				SequenceInBatch: i,
				CreatedAt:       now,
			}
		}

		if err := s.store.CreateBatch(ctx, batch, txs); err != nil {
			return err
		}

		log.Printf("import batch %s for account %s: %d imported, %d duplicate, %d rejected",
			batch.ID, bankAccountID, len(newRows), duplicates, len(report.Skipped))

		result = Result{
			BatchID:    batch.ID,
			Imported:   len(newRows),
			Duplicates: duplicates,
			Rejected:   len(report.Skipped),
			Issues:     report.Skipped,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}
