package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Entry{}))
	return NewStore(db)
}

func TestListUnreconciledSkipsSettledEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	org := uuid.New()
	otherOrg := uuid.New()
	date := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	open, err := s.Seed(ctx, Entry{OrganizationID: org, Type: TypeSDAIncome, ExpectedAmount: 650000, ExpectedDate: date})
	require.NoError(t, err)
	_, err = s.Seed(ctx, Entry{OrganizationID: org, Type: TypeRRCIncome, ExpectedAmount: 50000, ReconciledAmount: 50000, ExpectedDate: date, Status: StatusReceived})
	require.NoError(t, err)
	_, err = s.Seed(ctx, Entry{OrganizationID: otherOrg, Type: TypeSDAIncome, ExpectedAmount: 650000, ExpectedDate: date})
	require.NoError(t, err)

	entries, err := s.ListUnreconciled(ctx, org)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, open.ID, entries[0].ID)
}

func TestReconcileTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entry, err := s.Seed(ctx, Entry{
		OrganizationID: uuid.New(),
		Type:           TypeSDAIncome,
		ExpectedAmount: 650000,
		ExpectedDate:   time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, s.Reconcile(ctx, entry.ID, 300000))
	got, err := s.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, got.Status)
	assert.Equal(t, int64(350000), got.Remaining())

	// Over-reconciling is rejected, state unchanged.
	require.Error(t, s.Reconcile(ctx, entry.ID, 400000))
	got, err = s.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(350000), got.Remaining())

	require.NoError(t, s.Reconcile(ctx, entry.ID, 350000))
	got, err = s.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, got.Status)
	assert.Zero(t, got.Remaining())
}

func TestReleaseReversesCoverage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entry, err := s.Seed(ctx, Entry{
		OrganizationID: uuid.New(),
		Type:           TypeSDAIncome,
		ExpectedAmount: 650000,
		ExpectedDate:   time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, s.Reconcile(ctx, entry.ID, 650000))

	// Releasing part of the coverage drops back to partial.
	require.NoError(t, s.Release(ctx, entry.ID, 300000))
	got, err := s.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, got.Status)
	assert.Equal(t, int64(300000), got.Remaining())

	// Releasing the rest reopens the entry entirely.
	require.NoError(t, s.Release(ctx, entry.ID, 350000))
	got, err = s.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Zero(t, got.ReconciledAmount)

	// Releasing more than was ever reconciled is rejected.
	require.Error(t, s.Release(ctx, entry.ID, 1))
}

func TestReconcileUnknownEntry(t *testing.T) {
	s := newTestStore(t)
	err := s.Reconcile(context.Background(), uuid.New(), 100)
	assert.ErrorIs(t, err, ErrUnknownEntry)
}

func TestEntryTolerance(t *testing.T) {
	e := Entry{}
	assert.Equal(t, DefaultToleranceDays, e.Tolerance())
	e.ToleranceDays = 14
	assert.Equal(t, 14, e.Tolerance())
}
