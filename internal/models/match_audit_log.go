package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditAutoMatched      = "auto_matched"
	AuditPartiallyMatched = "partially_matched"
	AuditManualMatched    = "manual_matched"
	AuditUnmatched        = "unmatched"
	AuditExcluded         = "excluded"
	AuditIncluded         = "included"
	AuditCategorized      = "categorized"
)

// MatchAuditLog records every state-changing action on a transaction so the
// reconciliation trail can be replayed. Append-only.
type MatchAuditLog struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TransactionID  uuid.UUID  `gorm:"index"`
	Action         string
	PreviousStatus MatchStatus
	NewStatus      MatchStatus
	LedgerEntryID  *uuid.UUID
	LinkedAmount   int64
	Detail         string
	CreatedAt      time.Time
}
