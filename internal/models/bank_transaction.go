package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MatchStatus string

const (
	StatusUnmatched        MatchStatus = "unmatched"
	StatusMatched          MatchStatus = "matched"
	StatusPartiallyMatched MatchStatus = "partially_matched"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case StatusUnmatched, StatusMatched, StatusPartiallyMatched:
		return true
	}
	return false
}

type Category string

const (
	CategorySDAIncome     Category = "sda_income"
	CategoryRRCIncome     Category = "rrc_income"
	CategoryOwnerPayment  Category = "owner_payment"
	CategoryMaintenance   Category = "maintenance"
	CategoryOtherIncome   Category = "other_income"
	CategoryOtherExpense  Category = "other_expense"
	CategoryTransfer      Category = "transfer"
	CategoryUncategorized Category = "uncategorized"
)

var ErrUnknownCategory = errors.New("unknown category")

func (c Category) Valid() bool {
	switch c {
	case CategorySDAIncome, CategoryRRCIncome, CategoryOwnerPayment,
		CategoryMaintenance, CategoryOtherIncome, CategoryOtherExpense,
		CategoryTransfer, CategoryUncategorized:
		return true
	}
	return false
}

// MatchedRef links a transaction to an expected payment ledger entry for part
// or all of the transaction amount. LinkedAmount is always positive minor
// units regardless of the transaction's sign.
type MatchedRef struct {
	LedgerEntryID uuid.UUID `json:"ledger_entry_id"`
	LinkedAmount  int64     `json:"linked_amount"`
}

// BankTransaction is one statement line. Amount is signed minor units,
// positive for credits. Rows are never deleted; only status, category,
// exclusion and matched refs change after insert.
type BankTransaction struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID  uuid.UUID   `gorm:"type:uuid;index" json:"organization_id"`
	BankAccountID   uuid.UUID   `gorm:"type:uuid;index" json:"bank_account_id"`
	ImportBatchID   uuid.UUID   `gorm:"type:uuid;index" json:"import_batch_id"`
	TransactionDate time.Time   `json:"transaction_date"`
	Description     string      `json:"description"`
	Reference       string      `json:"reference,omitempty"`
	Amount          int64       `json:"amount"`
	Balance         *int64      `json:"balance,omitempty"`
	Category        Category    `gorm:"index" json:"category"`
	MatchStatus     MatchStatus `gorm:"index" json:"match_status"`
	// Excluded is orthogonal to MatchStatus: an excluded transaction keeps
	// its refs but drops out of totals and the auto-match candidate pool.
	Excluded        bool                            `json:"excluded"`
	MatchedRefs     datatypes.JSONSlice[MatchedRef] `json:"matched_refs"`
	DedupeHash      string                          `gorm:"index" json:"dedupe_hash"`
	SequenceInBatch int                             `json:"sequence_in_batch"`
	CreatedAt       time.Time                       `json:"created_at"`
}

// LinkedTotal is the sum of linked amounts across all refs.
func (t *BankTransaction) LinkedTotal() int64 {
	var sum int64
	for _, ref := range t.MatchedRefs {
		sum += ref.LinkedAmount
	}
	return sum
}

// Residual is the unlinked portion of abs(Amount).
func (t *BankTransaction) Residual() int64 {
	return abs(t.Amount) - t.LinkedTotal()
}

// CheckLinkedStatus validates a proposed (linked total, status) pair against
// the sum invariants: the total never exceeds abs(Amount), `matched` requires
// full coverage of the transaction, and `partially_matched` requires a
// positive total. A partial match may still cover the whole transaction when
// the linked ledger entry expected more than this transaction delivered.
func (t *BankTransaction) CheckLinkedStatus(total int64, status MatchStatus) error {
	target := abs(t.Amount)
	if total < 0 || total > target {
		return fmt.Errorf("linked total %d out of range for amount %d", total, t.Amount)
	}
	switch status {
	case StatusMatched:
		if total != target {
			return fmt.Errorf("matched requires linked total %d, got %d", target, total)
		}
	case StatusPartiallyMatched:
		if total == 0 {
			return fmt.Errorf("partially_matched requires a positive linked total")
		}
	case StatusUnmatched:
		if total != 0 {
			return fmt.Errorf("unmatched requires an empty linked total, got %d", total)
		}
	default:
		return fmt.Errorf("unknown match status %q", status)
	}
	return nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
