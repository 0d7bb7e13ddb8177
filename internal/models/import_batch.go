package models

import (
	"time"

	"github.com/google/uuid"
)

type ImportSource string

const (
	SourceCSVANZ     ImportSource = "csv:anz"
	SourceCSVWestpac ImportSource = "csv:westpac"
	SourceXero       ImportSource = "xero"
)

// ImportBatch is the append-only audit record of one upload or sync call.
// Never mutated after creation.
type ImportBatch struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	BankAccountID uuid.UUID    `gorm:"type:uuid;index" json:"bank_account_id"`
	Source        ImportSource `json:"source"`
	ImportedAt    time.Time    `json:"imported_at"`
	RowsSeen      int          `json:"rows_seen"`
	RowsImported  int          `json:"rows_imported"`
	RowsDuplicate int          `json:"rows_duplicate"`
	RowsRejected  int          `json:"rows_rejected"`
}
