// Package xero is the boundary to the external accounting-platform
// statement sync. The platform integration itself lives outside this
// service; anything implementing Client can feed the import pipeline.
package xero

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"sda-reconciliation-backend/internal/models"
	"sda-reconciliation-backend/internal/services/importer"
	"sda-reconciliation-backend/internal/statement"
)

// Client fetches bank feed lines for an account, already normalized to
// canonical rows.
type Client interface {
	FetchTransactions(ctx context.Context, bankAccountID uuid.UUID) ([]statement.Row, error)
}

// Syncer pulls rows from the platform and runs them through the same
// dedup/persist pipeline as CSV uploads, so repeated syncs are idempotent.
type Syncer struct {
	client   Client
	importer *importer.Service
}

func NewSyncer(client Client, imp *importer.Service) *Syncer {
	return &Syncer{client: client, importer: imp}
}

// Sync imports whatever the platform currently reports for the account.
// An empty feed is a normal no-op, not an error.
func (s *Syncer) Sync(ctx context.Context, bankAccountID uuid.UUID) (importer.Result, error) {
	rows, err := s.client.FetchTransactions(ctx, bankAccountID)
	if err != nil {
		return importer.Result{}, fmt.Errorf("fetching statement lines: %w", err)
	}
	if len(rows) == 0 {
		log.Printf("xero sync for account %s: feed empty", bankAccountID)
		return importer.Result{}, nil
	}
	return s.importer.ImportRows(ctx, bankAccountID, models.SourceXero, rows)
}
