package importer

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

	"sda-reconciliation-backend/internal/models"
	"sda-reconciliation-backend/internal/statement"
	"sda-reconciliation-backend/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store, *models.BankAccount) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.BankAccount{},
		&models.BankTransaction{},
		&models.ImportBatch{},
		&models.MatchAuditLog{},
	))

	s := store.New(db)
	acct := &models.BankAccount{
		OrganizationID: uuid.New(),
		BankName:       "ANZ",
		AccountName:    "Operating Account",
		AccountType:    models.AccountOperating,
		IsActive:       true,
	}
	require.NoError(t, s.CreateAccount(context.Background(), acct))
	return NewService(s), s, acct
}

const anzStatement = "Date,Amount,Description,Balance\n" +
	"15/01/2025,6500.00,NDIA SDA PAYMENT,10000.00\n" +
	"16/01/2025,-120.50,BUNNINGS WAREHOUSE,9879.50\n" +
	"17/01/2025,450.00,RRC SMITH,10329.50\n"

func TestImportThenIdenticalReimportIsNoOp(t *testing.T) {
	svc, s, acct := newTestService(t)
	ctx := context.Background()

	first, err := svc.ImportStatement(ctx, acct.ID, statement.DialectANZ, anzStatement)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Imported)
	assert.Zero(t, first.Duplicates)
	assert.NotEqual(t, uuid.Nil, first.BatchID)

	second, err := svc.ImportStatement(ctx, acct.ID, statement.DialectANZ, anzStatement)
	require.NoError(t, err)
	assert.Zero(t, second.Imported)
	assert.Equal(t, 3, second.Duplicates)

	txs, err := s.List(ctx, store.Filter{AccountID: &acct.ID})
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	// Both calls leave an audit batch behind.
	batch, err := s.Batch(ctx, second.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.RowsImported)
	assert.Equal(t, 3, batch.RowsDuplicate)
	assert.Equal(t, models.SourceCSVANZ, batch.Source)
}

func TestImportRepeatedTupleStoresDistinctRows(t *testing.T) {
	svc, s, acct := newTestService(t)
	ctx := context.Background()

	raw := "Date,Amount,Description\n" +
		"15/01/2025,-50.00,COFFEE SHOP\n" +
		"15/01/2025,-50.00,COFFEE SHOP\n"

	result, err := svc.ImportStatement(ctx, acct.ID, statement.DialectANZ, raw)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)

	txs, err := s.List(ctx, store.Filter{AccountID: &acct.ID})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, txs[0].DedupeHash, txs[1].DedupeHash)
	assert.NotEqual(t, txs[0].ID, txs[1].ID)
}

func TestImportGrowingFileAdmitsOnlyExtras(t *testing.T) {
	svc, s, acct := newTestService(t)
	ctx := context.Background()

	raw := "Date,Amount,Description\n15/01/2025,-50.00,COFFEE SHOP\n"
	_, err := svc.ImportStatement(ctx, acct.ID, statement.DialectANZ, raw)
	require.NoError(t, err)

	grown := "Date,Amount,Description\n" +
		"15/01/2025,-50.00,COFFEE SHOP\n" +
		"15/01/2025,-50.00,COFFEE SHOP\n"
	result, err := svc.ImportStatement(ctx, acct.ID, statement.DialectANZ, grown)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Duplicates)

	txs, err := s.List(ctx, store.Filter{AccountID: &acct.ID})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestImportAllRowsMalformedFails(t *testing.T) {
	svc, s, acct := newTestService(t)
	ctx := context.Background()

	raw := "Date,Amount,Description\n" +
		"bad-date,50.00,X\n" +
		"15/01/2025,not-a-number,Y\n"

	result, err := svc.ImportStatement(ctx, acct.ID, statement.DialectANZ, raw)
	require.ErrorIs(t, err, ErrEmptyImport)
	assert.Equal(t, 2, result.Rejected)
	assert.Len(t, result.Issues, 2)

	txs, listErr := s.List(ctx, store.Filter{AccountID: &acct.ID})
	require.NoError(t, listErr)
	assert.Empty(t, txs)
}

func TestImportUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ImportStatement(context.Background(), uuid.New(), statement.DialectANZ, anzStatement)
	assert.ErrorIs(t, err, store.ErrUnknownAccount)
}

func TestImportRecordsRejectedRows(t *testing.T) {
	svc, _, acct := newTestService(t)
	ctx := context.Background()

	raw := "Date,Narration,Debit,Credit,Balance\n" +
		"01/02/2025,GOOD CREDIT,,450.00,450.00\n" +
		"02/02/2025,BAD ROW,100.00,200.00,0.00\n"

	result, err := svc.ImportStatement(ctx, acct.ID, statement.DialectWestpac, raw)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Rejected)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0].Reason, "both debit and credit")
}

func TestImportRowsFromSyncAdapter(t *testing.T) {
	svc, s, acct := newTestService(t)
	ctx := context.Background()

	rows := []statement.Row{
		{
			Date:        time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
			Description: "NDIA SDA PAYMENT FEB",
			Reference:   "INV-204",
			Amount:      650000,
		},
	}
	result, err := svc.ImportRows(ctx, acct.ID, models.SourceXero, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	batch, err := s.Batch(ctx, result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceXero, batch.Source)

	_, err = svc.ImportRows(ctx, acct.ID, models.SourceXero, nil)
	assert.ErrorIs(t, err, ErrEmptyImport)
}
