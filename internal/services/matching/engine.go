// Package matching scores unmatched bank transactions against the Expected
// Payment Ledger and writes match links back to the transaction store.
package matching

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"sda-reconciliation-backend/internal/dedup"
	"sda-reconciliation-backend/internal/ledger"
	"sda-reconciliation-backend/internal/models"
	"sda-reconciliation-backend/internal/store"
)

type Engine struct {
	store  *store.Store
	ledger ledger.Ledger
	policy Policy
}

func NewEngine(s *store.Store, l ledger.Ledger, policy Policy) *Engine {
	return &Engine{store: s, ledger: l, policy: policy}
}

// Result summarizes one auto-match run.
type Result struct {
	Matched            int `json:"matched"`
	PartiallyMatched   int `json:"partially_matched"`
	UnmatchedRemaining int `json:"unmatched_remaining"`
}

// Candidate is one scored pairing, exposed for match suggestions.
type Candidate struct {
	Entry       ledger.Entry `json:"entry"`
	Score       float64      `json:"score"`
	AmountScore float64      `json:"amount_score"`
	DateScore   float64      `json:"date_score"`
	TextScore   float64      `json:"text_score"`
	DaysApart   int          `json:"days_apart"`
	LinkAmount  int64        `json:"link_amount"`
	// Full is set when the entry's remaining amount equals the transaction
	// amount exactly, i.e. linking produces a full match.
	Full bool `json:"full"`
}

// Run matches the account's unmatched, non-excluded transactions against
// unreconciled ledger entries. Re-running with no new data is a no-op. The
// run holds the account's write lock; a context deadline stops the scan
// early with already-committed links intact.
func (e *Engine) Run(ctx context.Context, bankAccountID uuid.UUID) (Result, error) {
	acct, err := e.store.Account(ctx, bankAccountID)
	if err != nil {
		return Result{}, err
	}

	if e.policy.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.RunTimeout)
		defer cancel()
	}

	var result Result
	err = e.store.WithAccountLock(bankAccountID, func() error {
		status := models.StatusUnmatched
		excluded := false
		txs, err := e.store.List(ctx, store.Filter{
			AccountID:   &bankAccountID,
			MatchStatus: &status,
			Excluded:    &excluded,
		})
		if err != nil {
			return fmt.Errorf("loading unmatched transactions: %w", err)
		}
		if len(txs) == 0 {
			return nil
		}

		entries, err := e.ledger.ListUnreconciled(ctx, acct.OrganizationID)
		if err != nil {
			return fmt.Errorf("loading ledger entries: %w", err)
		}

		// Residuals are tracked locally so one entry can absorb links
		// from several transactions within the run.
		remaining := make(map[uuid.UUID]int64, len(entries))
		for _, entry := range entries {
			remaining[entry.ID] = entry.Remaining()
		}

		// Deterministic processing order: oldest first, then file order.
		sort.Slice(txs, func(i, j int) bool {
			if !txs[i].TransactionDate.Equal(txs[j].TransactionDate) {
				return txs[i].TransactionDate.Before(txs[j].TransactionDate)
			}
			if txs[i].SequenceInBatch != txs[j].SequenceInBatch {
				return txs[i].SequenceInBatch < txs[j].SequenceInBatch
			}
			return txs[i].ID.String() < txs[j].ID.String()
		})

		for i := range txs {
			select {
			case <-ctx.Done():
				result.UnmatchedRemaining += len(txs) - i
				log.Printf("auto-match run for account %s timed out with %d transactions left",
					bankAccountID, len(txs)-i)
				return nil
			default:
			}

			tx := &txs[i]
			best, ok := e.pickBest(tx, entries, remaining)
			if !ok {
				result.UnmatchedRemaining++
				continue
			}

			newStatus := models.StatusPartiallyMatched
			action := models.AuditPartiallyMatched
			if best.Full {
				newStatus = models.StatusMatched
				action = models.AuditAutoMatched
			}
			// Ref and ledger update commit in one DB transaction; a
			// reconcile failure rolls the link back.
			updated, err := e.store.Link(ctx, tx.ID, models.MatchedRef{
				LedgerEntryID: best.Entry.ID,
				LinkedAmount:  best.LinkAmount,
			}, newStatus, action, func(db *gorm.DB) error {
				return e.ledger.ReconcileIn(db, best.Entry.ID, best.LinkAmount)
			})
			if err != nil {
				return fmt.Errorf("linking transaction %s: %w", tx.ID, err)
			}
			remaining[best.Entry.ID] -= best.LinkAmount

			if updated.MatchStatus == models.StatusMatched {
				result.Matched++
			} else {
				result.PartiallyMatched++
			}
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

// ManualMatch links a transaction to an operator-chosen ledger entry,
// bypassing scoring: the overlap between the transaction's residual and the
// entry's remaining amount is linked, however it scores. The entry must
// still be unreconciled and match the transaction's direction.
func (e *Engine) ManualMatch(ctx context.Context, txID, entryID uuid.UUID) (*models.BankTransaction, error) {
	tx, err := e.store.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	var updated *models.BankTransaction
	err = e.store.WithAccountLock(tx.BankAccountID, func() error {
		tx, err := e.store.Get(ctx, txID)
		if err != nil {
			return err
		}
		residual := tx.Residual()
		if residual <= 0 {
			return fmt.Errorf("%w: transaction is fully linked", store.ErrInvalidTransition)
		}

		entries, err := e.ledger.ListUnreconciled(ctx, tx.OrganizationID)
		if err != nil {
			return fmt.Errorf("loading ledger entries: %w", err)
		}
		var entry *ledger.Entry
		for i := range entries {
			if entries[i].ID == entryID {
				entry = &entries[i]
				break
			}
		}
		if entry == nil {
			return ledger.ErrUnknownEntry
		}
		if entry.Type.Inflow() != (tx.Amount > 0) {
			return fmt.Errorf("%w: entry direction does not match transaction sign", store.ErrInvalidTransition)
		}

		link := residual
		if rem := entry.Remaining(); rem < link {
			link = rem
		}
		newStatus := models.StatusPartiallyMatched
		if link == residual && link == entry.Remaining() {
			newStatus = models.StatusMatched
		}

		updated, err = e.store.Link(ctx, txID, models.MatchedRef{
			LedgerEntryID: entryID,
			LinkedAmount:  link,
		}, newStatus, models.AuditManualMatched, func(db *gorm.DB) error {
			return e.ledger.ReconcileIn(db, entryID, link)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Unmatch undoes every link on a transaction, giving the reconciled amounts
// back to their ledger entries. The transaction returns to unmatched and is
// eligible for the next auto-match run.
func (e *Engine) Unmatch(ctx context.Context, txID uuid.UUID) (*models.BankTransaction, error) {
	return e.store.Unlink(ctx, txID, func(db *gorm.DB, ref models.MatchedRef) error {
		return e.ledger.ReleaseIn(db, ref.LedgerEntryID, ref.LinkedAmount)
	})
}

// Suggest returns the top-scored candidates for one transaction without
// committing anything. Used by the manual-match review surface.
func (e *Engine) Suggest(ctx context.Context, txID uuid.UUID, limit int) ([]Candidate, error) {
	tx, err := e.store.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	entries, err := e.ledger.ListUnreconciled(ctx, tx.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("loading ledger entries: %w", err)
	}

	remaining := make(map[uuid.UUID]int64, len(entries))
	for _, entry := range entries {
		remaining[entry.ID] = entry.Remaining()
	}

	candidates := e.candidates(tx, entries, remaining)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// candidates generates and scores all eligible pairings, best first.
func (e *Engine) candidates(tx *models.BankTransaction, entries []ledger.Entry, remaining map[uuid.UUID]int64) []Candidate {
	target := tx.Amount
	if target < 0 {
		target = -target
	}
	if target == 0 {
		return nil
	}

	var out []Candidate
	for _, entry := range entries {
		rem := remaining[entry.ID]
		if rem <= 0 {
			continue
		}
		// Inflow entry types only match credits, outflow only debits.
		if entry.Type.Inflow() != (tx.Amount > 0) {
			continue
		}
		days := daysApart(tx.TransactionDate, entry.ExpectedDate)
		if days > entry.Tolerance() {
			continue
		}

		link := target
		if rem < target {
			link = rem
		}
		c := Candidate{
			Entry:      entry,
			DaysApart:  days,
			LinkAmount: link,
			Full:       rem == target,
		}
		c.AmountScore = e.amountScore(rem, target, entry.ExpectedAmount)
		c.DateScore = e.dateScore(days)
		c.TextScore = e.textScore(tx, &entry)
		c.Score = c.AmountScore + c.DateScore + c.TextScore
		if c.Score < e.policy.MinScore {
			continue
		}
		out = append(out, c)
	}

	// Highest score wins; ties break by date distance, then entry id, so
	// runs are reproducible.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DaysApart != out[j].DaysApart {
			return out[i].DaysApart < out[j].DaysApart
		}
		return out[i].Entry.ID.String() < out[j].Entry.ID.String()
	})
	return out
}

func (e *Engine) pickBest(tx *models.BankTransaction, entries []ledger.Entry, remaining map[uuid.UUID]int64) (Candidate, bool) {
	candidates := e.candidates(tx, entries, remaining)
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	return candidates[0], true
}

func (e *Engine) amountScore(remaining, target, expected int64) float64 {
	if remaining == target {
		return e.policy.ExactAmountScore
	}
	if expected <= 0 {
		return 0
	}
	delta := remaining - target
	if delta < 0 {
		delta = -delta
	}
	score := e.policy.ExactAmountScore * (1 - float64(delta)/float64(expected))
	if score < 0 {
		return 0
	}
	return score
}

func (e *Engine) dateScore(daysApart int) float64 {
	score := e.policy.DateScoreBase - float64(daysApart)
	if score < 0 {
		return 0
	}
	return score
}

// textScore rewards token overlap between the statement text and the ledger
// entry's counterparty name and reference.
func (e *Engine) textScore(tx *models.BankTransaction, entry *ledger.Entry) float64 {
	entryTokens := tokens(entry.CounterpartyName + " " + entry.Reference)
	if len(entryTokens) == 0 {
		return 0
	}
	txTokens := tokens(tx.Description + " " + tx.Reference)

	matches := 0
	for tok := range entryTokens {
		if txTokens[tok] {
			matches++
		}
	}
	return e.policy.TextScoreMax * float64(matches) / float64(len(entryTokens))
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(dedup.NormalizeDescription(s)) {
		out[tok] = true
	}
	return out
}

func daysApart(a, b time.Time) int {
	diff := a.UTC().Sub(b.UTC())
	days := int(diff.Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
