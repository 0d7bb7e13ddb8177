package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entry statuses as maintained by the owning subsystem.
const (
	StatusPending  = "pending"
	StatusPartial  = "partial"
	StatusReceived = "received"
)

var ErrUnknownEntry = errors.New("unknown ledger entry")

// Store is the gorm-backed Ledger implementation. The entries themselves are
// produced by the payment-scheduling subsystems; this store only serves reads
// and reconciled-amount updates.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ListUnreconciled(ctx context.Context, organizationID uuid.UUID) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Where("reconciled_amount < expected_amount").
		Order("expected_date ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("listing unreconciled entries: %w", err)
	}
	return entries, nil
}

// Reconcile records coverage as a standalone operation. Callers linking a
// bank transaction at the same time use ReconcileIn inside their own
// transaction instead.
func (s *Store) Reconcile(ctx context.Context, entryID uuid.UUID, amount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ReconcileIn(tx, entryID, amount)
	})
}

func (s *Store) ReconcileIn(db *gorm.DB, entryID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("reconcile amount must be positive, got %d", amount)
	}

	var entry Entry
	if err := db.First(&entry, "id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownEntry
		}
		return err
	}
	if amount > entry.Remaining() {
		return fmt.Errorf("reconcile amount %d exceeds remaining %d on entry %s",
			amount, entry.Remaining(), entryID)
	}

	entry.ReconciledAmount += amount
	if entry.ReconciledAmount == entry.ExpectedAmount {
		entry.Status = StatusReceived
	} else {
		entry.Status = StatusPartial
	}
	return db.Save(&entry).Error
}

// Release reverses coverage as a standalone operation.
func (s *Store) Release(ctx context.Context, entryID uuid.UUID, amount int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ReleaseIn(tx, entryID, amount)
	})
}

func (s *Store) ReleaseIn(db *gorm.DB, entryID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("release amount must be positive, got %d", amount)
	}

	var entry Entry
	if err := db.First(&entry, "id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownEntry
		}
		return err
	}
	if amount > entry.ReconciledAmount {
		return fmt.Errorf("release amount %d exceeds reconciled %d on entry %s",
			amount, entry.ReconciledAmount, entryID)
	}

	entry.ReconciledAmount -= amount
	switch {
	case entry.ReconciledAmount == 0:
		entry.Status = StatusPending
	case entry.ReconciledAmount < entry.ExpectedAmount:
		entry.Status = StatusPartial
	default:
		entry.Status = StatusReceived
	}
	return db.Save(&entry).Error
}

// Get fetches a single entry, mainly for handlers and tests.
func (s *Store) Get(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).First(&entry, "id = ?", entryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownEntry
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Seed inserts an entry on behalf of the owning subsystem. Used by tests and
// fixtures; the reconciliation core itself never calls it.
func (s *Store) Seed(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return Entry{}, fmt.Errorf("seeding ledger entry: %w", err)
	}
	return entry, nil
}
