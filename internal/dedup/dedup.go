// Package dedup fingerprints statement rows so re-imports are idempotent.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sda-reconciliation-backend/internal/statement"
)

// Hash fingerprints a transaction's identity fields.
// Format: SHA256("{accountID}|{YYYY-MM-DD}|{amount}|{normalizedDescription}").
func Hash(accountID uuid.UUID, date time.Time, amount int64, description string) string {
	input := fmt.Sprintf("%s|%s|%d|%s",
		accountID, date.Format("2006-01-02"), amount, NormalizeDescription(description))
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// NormalizeDescription lowercases, trims, and collapses internal whitespace.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Filter returns the rows that are genuinely new for the account, preserving
// file order, plus the duplicate count.
//
// The hash alone is not identity: two distinct transactions can share
// date+amount+description. For each hash the first `existing[hash]`
// occurrences in the file are treated as re-imports of already-stored rows
// (ordinal matching); only occurrences beyond that count are admitted. A
// byte-identical re-upload is therefore a full no-op, while a file carrying
// more copies of an identical-looking row than previously seen admits
// exactly the extras.
func Filter(accountID uuid.UUID, rows []statement.Row, existing map[string]int) (newRows []statement.Row, hashes []string, duplicates int) {
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		h := Hash(accountID, row.Date, row.Amount, row.Description)
		seen[h]++
		if seen[h] <= existing[h] {
			duplicates++
			continue
		}
		newRows = append(newRows, row)
		hashes = append(hashes, h)
	}
	return newRows, hashes, duplicates
}
