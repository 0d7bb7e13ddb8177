// Package ledger is the boundary to the Expected Payment Ledger: the
// externally-managed collection of pending revenue and expense obligations
// the reconciliation engine matches against. The engine never creates or
// deletes entries; it only reads them and reports reconciled amounts.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EntryType string

const (
	TypeSDAIncome    EntryType = "sda_income"
	TypeRRCIncome    EntryType = "rrc_income"
	TypeOwnerPayment EntryType = "owner_payment"
	TypeMaintenance  EntryType = "maintenance"
)

// Inflow reports whether entries of this type expect money coming in.
// Inflow entries only match positive transactions and vice versa.
func (t EntryType) Inflow() bool {
	return t == TypeSDAIncome || t == TypeRRCIncome
}

// DefaultToleranceDays applies when an entry does not carry its own window.
const DefaultToleranceDays = 5

// Entry is one expected payment. Read-only to the reconciliation core apart
// from ReconciledAmount, which moves only through Ledger.Reconcile.
type Entry struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID   uuid.UUID `gorm:"type:uuid;index" json:"organization_id"`
	CounterpartyID   uuid.UUID `gorm:"type:uuid" json:"counterparty_id"`
	CounterpartyName string    `json:"counterparty_name"`
	Reference        string    `json:"reference"`
	Type             EntryType `json:"type"`
	ExpectedAmount   int64     `json:"expected_amount"`
	ExpectedDate     time.Time `json:"expected_date"`
	ToleranceDays    int       `json:"tolerance_days"`
	ReconciledAmount int64     `json:"reconciled_amount"`
	Status           string    `gorm:"index" json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Entry) TableName() string { return "expected_payments" }

// Remaining is the unreconciled portion of the expected amount.
func (e *Entry) Remaining() int64 {
	return e.ExpectedAmount - e.ReconciledAmount
}

// Tolerance returns the entry's matching window in days.
func (e *Entry) Tolerance() int {
	if e.ToleranceDays > 0 {
		return e.ToleranceDays
	}
	return DefaultToleranceDays
}

// Ledger is the narrow interface the reconciliation core consumes. The
// reconcile/release operations take the caller's transaction handle so a
// matched-ref write and the ledger update commit or roll back together; the
// transaction store and the ledger share one database.
type Ledger interface {
	// ListUnreconciled returns entries with remaining amount > 0 for the
	// organization.
	ListUnreconciled(ctx context.Context, organizationID uuid.UUID) ([]Entry, error)
	// ReconcileIn records that amount of the entry has been covered by a
	// bank transaction link, inside the given transaction.
	ReconcileIn(db *gorm.DB, entryID uuid.UUID, amount int64) error
	// ReleaseIn reverses previously recorded coverage, inside the given
	// transaction. Used when a match is undone.
	ReleaseIn(db *gorm.DB, entryID uuid.UUID, amount int64) error
}
