package dedup

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sda-reconciliation-backend/internal/statement"
)

var testAccount = uuid.MustParse("4be5e178-3f0e-4c5f-9d6a-2c6d88a1b0aa")

func row(day int, amount int64, desc string) statement.Row {
	return statement.Row{
		Date:        time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		Description: desc,
		Amount:      amount,
	}
}

func TestHashNormalizesDescription(t *testing.T) {
	a := Hash(testAccount, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 5000, "  Coffee   SHOP ")
	b := Hash(testAccount, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 5000, "coffee shop")
	assert.Equal(t, a, b)

	c := Hash(testAccount, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), 5000, "coffee shop")
	assert.NotEqual(t, a, c)
}

func TestHashIncludesAccount(t *testing.T) {
	other := uuid.MustParse("9d1a54a6-0d8e-4f7b-8f14-50b3f2b3c111")
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.NotEqual(t, Hash(testAccount, date, 100, "x"), Hash(other, date, 100, "x"))
}

func TestFilterFullReimportIsNoOp(t *testing.T) {
	rows := []statement.Row{row(1, -5000, "coffee"), row(2, 45000, "rrc smith")}

	existing := map[string]int{}
	for _, r := range rows {
		existing[Hash(testAccount, r.Date, r.Amount, r.Description)]++
	}

	newRows, hashes, dups := Filter(testAccount, rows, existing)
	assert.Empty(t, newRows)
	assert.Empty(t, hashes)
	assert.Equal(t, 2, dups)
}

func TestFilterOrdinalAdmitsExtras(t *testing.T) {
	// Two identical $50 charges on the same day; one is already stored.
	twin := row(1, -5000, "coffee")
	h := Hash(testAccount, twin.Date, twin.Amount, twin.Description)

	newRows, hashes, dups := Filter(testAccount,
		[]statement.Row{twin, twin},
		map[string]int{h: 1})

	require.Len(t, newRows, 1)
	assert.Equal(t, []string{h}, hashes)
	assert.Equal(t, 1, dups)
}

func TestFilterIdenticalRowsInFreshImportBothKept(t *testing.T) {
	twin := row(1, -5000, "coffee")
	newRows, _, dups := Filter(testAccount, []statement.Row{twin, twin}, nil)
	assert.Len(t, newRows, 2)
	assert.Zero(t, dups)
}
