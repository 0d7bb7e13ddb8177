// Package store owns persisted bank transactions, their status transitions,
// and the per-account write serialization.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"sda-reconciliation-backend/internal/models"
)

var (
	ErrUnknownAccount     = errors.New("unknown bank account")
	ErrUnknownTransaction = errors.New("unknown transaction")
	ErrUnknownBatch       = errors.New("unknown import batch")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

type Store struct {
	db *gorm.DB
	// accountLocks serializes mutating operations per bank account so a
	// manual exclude and a concurrent auto-match run cannot act on stale
	// state. Reads never take it. accountID -> *sync.Mutex
	accountLocks sync.Map
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithAccountLock runs fn while holding the account's exclusive write lock.
// Two different accounts never block each other.
func (s *Store) WithAccountLock(accountID uuid.UUID, fn func() error) error {
	val, _ := s.accountLocks.LoadOrStore(accountID, &sync.Mutex{})
	mu := val.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// Account fetches a bank account or ErrUnknownAccount.
func (s *Store) Account(ctx context.Context, id uuid.UUID) (*models.BankAccount, error) {
	var acct models.BankAccount
	err := s.db.WithContext(ctx).First(&acct, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *Store) CreateAccount(ctx context.Context, acct *models.BankAccount) error {
	if acct.ID == uuid.Nil {
		acct.ID = uuid.New()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now()
	}
	if !acct.AccountType.Valid() {
		return fmt.Errorf("invalid account type %q", acct.AccountType)
	}
	return s.db.WithContext(ctx).Create(acct).Error
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.BankAccount, error) {
	var accounts []models.BankAccount
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

// CreateBatch inserts an import batch and its transactions as one atomic
// unit. Transactions come in `unmatched`. The caller holds the account lock.
func (s *Store) CreateBatch(ctx context.Context, batch *models.ImportBatch, txs []models.BankTransaction) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Create(batch).Error; err != nil {
			return fmt.Errorf("inserting import batch: %w", err)
		}
		if len(txs) == 0 {
			return nil
		}
		if err := db.Create(&txs).Error; err != nil {
			return fmt.Errorf("inserting transactions: %w", err)
		}
		return nil
	})
}

func (s *Store) Batch(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	err := s.db.WithContext(ctx).First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownBatch
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	err := s.db.WithContext(ctx).First(&tx, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownTransaction
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Filter narrows List. Nil fields are ignored.
type Filter struct {
	AccountID   *uuid.UUID
	MatchStatus *models.MatchStatus
	Category    *models.Category
	Excluded    *bool
	From        *time.Time
	To          *time.Time
	Limit       int
}

// List is a snapshot read, date descending. No locking.
func (s *Store) List(ctx context.Context, f Filter) ([]models.BankTransaction, error) {
	query := s.db.WithContext(ctx).Model(&models.BankTransaction{})

	if f.AccountID != nil {
		query = query.Where("bank_account_id = ?", *f.AccountID)
	}
	if f.MatchStatus != nil {
		query = query.Where("match_status = ?", *f.MatchStatus)
	}
	if f.Category != nil {
		query = query.Where("category = ?", *f.Category)
	}
	if f.Excluded != nil {
		query = query.Where("excluded = ?", *f.Excluded)
	}
	if f.From != nil {
		query = query.Where("transaction_date >= ?", *f.From)
	}
	if f.To != nil {
		query = query.Where("transaction_date <= ?", *f.To)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var txs []models.BankTransaction
	err := query.Order("transaction_date DESC, sequence_in_batch ASC").Find(&txs).Error
	return txs, err
}

// ExistingHashCounts returns, per dedupe hash, how many transactions the
// account already stores. Only hashes present in the account are returned.
func (s *Store) ExistingHashCounts(ctx context.Context, accountID uuid.UUID, hashes []string) (map[string]int, error) {
	if len(hashes) == 0 {
		return map[string]int{}, nil
	}

	type hashRow struct {
		DedupeHash string
		Count      int
	}
	var rows []hashRow
	err := s.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Select("dedupe_hash, COUNT(*) as count").
		Where("bank_account_id = ?", accountID).
		Where("dedupe_hash IN ?", hashes).
		Group("dedupe_hash").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting existing hashes: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.DedupeHash] = r.Count
	}
	return counts, nil
}

// Link appends a matched ref to a transaction and moves it to newStatus,
// enforcing the linked-sum invariants. The status comes from the caller
// because entry-side coverage decides matched vs partially_matched: a
// transaction that fully pays off only part of a larger expected payment is
// a partial match even though its own amount is fully linked. When reconcile
// is non-nil it runs inside the same DB transaction, so the ref and the
// ledger's reconciled amount commit or roll back together. Caller holds the
// account lock.
func (s *Store) Link(ctx context.Context, txID uuid.UUID, ref models.MatchedRef, newStatus models.MatchStatus, action string, reconcile func(db *gorm.DB) error) (*models.BankTransaction, error) {
	if ref.LinkedAmount <= 0 {
		return nil, fmt.Errorf("%w: linked amount must be positive", ErrInvalidTransition)
	}

	var updated *models.BankTransaction
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx, err := getForUpdate(db, txID)
		if err != nil {
			return err
		}
		if tx.Excluded {
			return fmt.Errorf("%w: transaction is excluded", ErrInvalidTransition)
		}

		newTotal := tx.LinkedTotal() + ref.LinkedAmount
		if err := tx.CheckLinkedStatus(newTotal, newStatus); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}

		prev := tx.MatchStatus
		tx.MatchedRefs = append(tx.MatchedRefs, ref)
		tx.MatchStatus = newStatus
		if err := db.Save(tx).Error; err != nil {
			return err
		}

		if err := appendAudit(db, models.MatchAuditLog{
			TransactionID:  txID,
			Action:         action,
			PreviousStatus: prev,
			NewStatus:      newStatus,
			LedgerEntryID:  &ref.LedgerEntryID,
			LinkedAmount:   ref.LinkedAmount,
		}); err != nil {
			return err
		}

		if reconcile != nil {
			if err := reconcile(db); err != nil {
				return fmt.Errorf("reconciling ledger entry %s: %w", ref.LedgerEntryID, err)
			}
		}

		updated = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Unlink clears every matched ref and returns the transaction to unmatched.
// release runs once per removed ref inside the same DB transaction so the
// ledger entries get their coverage back atomically with the clear.
func (s *Store) Unlink(ctx context.Context, txID uuid.UUID, release func(db *gorm.DB, ref models.MatchedRef) error) (*models.BankTransaction, error) {
	tx, err := s.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	var updated *models.BankTransaction
	err = s.WithAccountLock(tx.BankAccountID, func() error {
		return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			tx, err := getForUpdate(db, txID)
			if err != nil {
				return err
			}
			if len(tx.MatchedRefs) == 0 {
				return fmt.Errorf("%w: transaction has no matched refs", ErrInvalidTransition)
			}

			released := tx.LinkedTotal()
			refs := tx.MatchedRefs
			prev := tx.MatchStatus
			tx.MatchedRefs = nil
			tx.MatchStatus = models.StatusUnmatched
			if err := db.Save(tx).Error; err != nil {
				return err
			}

			if release != nil {
				for _, ref := range refs {
					if err := release(db, ref); err != nil {
						return fmt.Errorf("releasing ledger entry %s: %w", ref.LedgerEntryID, err)
					}
				}
			}

			if err := appendAudit(db, models.MatchAuditLog{
				TransactionID:  txID,
				Action:         models.AuditUnmatched,
				PreviousStatus: prev,
				NewStatus:      models.StatusUnmatched,
				LinkedAmount:   released,
			}); err != nil {
				return err
			}

			updated = tx
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetExcluded toggles the exclusion flag. Matched refs and match status are
// untouched, so re-including restores the transaction unchanged. Takes the
// account lock: an exclusion must not land in the middle of an auto-match
// run that already decided to link this transaction.
func (s *Store) SetExcluded(ctx context.Context, txID uuid.UUID, excluded bool) (*models.BankTransaction, error) {
	tx, err := s.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	var updated *models.BankTransaction
	err = s.WithAccountLock(tx.BankAccountID, func() error {
		return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			tx, err := getForUpdate(db, txID)
			if err != nil {
				return err
			}
			if tx.Excluded == excluded {
				updated = tx
				return nil
			}

			tx.Excluded = excluded
			if err := db.Save(tx).Error; err != nil {
				return err
			}

			action := models.AuditExcluded
			if !excluded {
				action = models.AuditIncluded
			}
			if err := appendAudit(db, models.MatchAuditLog{
				TransactionID:  txID,
				Action:         action,
				PreviousStatus: tx.MatchStatus,
				NewStatus:      tx.MatchStatus,
			}); err != nil {
				return err
			}

			updated = tx
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Categorize assigns a category. Independent of match status, but still a
// per-account serialized write like every other mutation.
func (s *Store) Categorize(ctx context.Context, txID uuid.UUID, category models.Category) (*models.BankTransaction, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownCategory, category)
	}

	tx, err := s.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	var updated *models.BankTransaction
	err = s.WithAccountLock(tx.BankAccountID, func() error {
		return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			tx, err := getForUpdate(db, txID)
			if err != nil {
				return err
			}

			tx.Category = category
			if err := db.Save(tx).Error; err != nil {
				return err
			}
			if err := appendAudit(db, models.MatchAuditLog{
				TransactionID:  txID,
				Action:         models.AuditCategorized,
				PreviousStatus: tx.MatchStatus,
				NewStatus:      tx.MatchStatus,
				Detail:         string(category),
			}); err != nil {
				return err
			}

			updated = tx
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// BulkIssue reports one failed id within a bulk operation.
type BulkIssue struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Reason        string    `json:"reason"`
}

// BulkCategorizeResult carries partial-success counts.
type BulkCategorizeResult struct {
	Updated int         `json:"updated"`
	Failed  []BulkIssue `json:"failed,omitempty"`
}

// BulkCategorize commits the category for every known id and reports unknown
// ids per-id. Partial success: valid ids are never rolled back because of
// invalid ones.
func (s *Store) BulkCategorize(ctx context.Context, txIDs []uuid.UUID, category models.Category) (BulkCategorizeResult, error) {
	var result BulkCategorizeResult
	if !category.Valid() {
		return result, fmt.Errorf("%w: %q", models.ErrUnknownCategory, category)
	}

	for _, id := range txIDs {
		_, err := s.Categorize(ctx, id, category)
		switch {
		case err == nil:
			result.Updated++
		case errors.Is(err, ErrUnknownTransaction):
			result.Failed = append(result.Failed, BulkIssue{TransactionID: id, Reason: "unknown transaction"})
		default:
			return result, err
		}
	}
	return result, nil
}

// CategoryTotal is one row of the reconciliation summary.
type CategoryTotal struct {
	Category models.Category `json:"category"`
	Count    int64           `json:"count"`
	Total    int64           `json:"total"`
}

// SummaryByCategory aggregates non-excluded transactions. Excluded rows are
// omitted from reconciliation totals by definition.
func (s *Store) SummaryByCategory(ctx context.Context, accountID *uuid.UUID, from, to *time.Time) ([]CategoryTotal, error) {
	query := s.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("excluded = ?", false)

	if accountID != nil {
		query = query.Where("bank_account_id = ?", *accountID)
	}
	if from != nil {
		query = query.Where("transaction_date >= ?", *from)
	}
	if to != nil {
		query = query.Where("transaction_date <= ?", *to)
	}

	var rows []CategoryTotal
	err := query.
		Select("category, COUNT(*) as count, COALESCE(SUM(amount),0) as total").
		Group("category").
		Order("category ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summarizing by category: %w", err)
	}
	return rows, nil
}

// AuditTrail lists the audit rows for one transaction, oldest first.
func (s *Store) AuditTrail(ctx context.Context, txID uuid.UUID) ([]models.MatchAuditLog, error) {
	var logs []models.MatchAuditLog
	err := s.db.WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

func getForUpdate(db *gorm.DB, txID uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	err := db.First(&tx, "id = ?", txID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownTransaction
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func appendAudit(db *gorm.DB, entry models.MatchAuditLog) error {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	return db.Create(&entry).Error
}
