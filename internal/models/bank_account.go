package models

import (
	"time"

	"github.com/google/uuid"
)

type AccountType string

const (
	AccountOperating AccountType = "operating"
	AccountTrust     AccountType = "trust"
)

func (t AccountType) Valid() bool {
	return t == AccountOperating || t == AccountTrust
}

// BankAccount mirrors one real-world bank account. Accounts are created via
// the settings surface and, once transactions reference them, only IsActive
// may change.
type BankAccount struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID   `gorm:"type:uuid;index" json:"organization_id"`
	BankName       string      `json:"bank_name"`
	AccountName    string      `json:"account_name"`
	BSB            string      `json:"bsb"`
	AccountNumber  string      `json:"account_number"`
	AccountType    AccountType `json:"account_type"`
	IsActive       bool        `json:"is_active"`
	CreatedAt      time.Time   `json:"created_at"`
}
