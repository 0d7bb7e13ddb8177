// Package statement converts raw bank CSV exports into canonical rows.
package statement

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Dialect string

const (
	DialectANZ     Dialect = "anz"
	DialectWestpac Dialect = "westpac"
)

// ParseDialect validates a dialect name from user input.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case DialectANZ:
		return DialectANZ, nil
	case DialectWestpac:
		return DialectWestpac, nil
	}
	return "", fmt.Errorf("unknown statement dialect %q", s)
}

// Row is one successfully parsed statement line. Amount is signed minor
// units, positive for credits.
type Row struct {
	Date        time.Time
	Description string
	Reference   string
	Amount      int64
	Balance     *int64
}

// RowIssue describes a skipped line.
type RowIssue struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Report accumulates per-row parse failures. Skipped rows are not fatal;
// the caller decides what an all-skipped file means.
type Report struct {
	RowsSeen int        `json:"rows_seen"`
	Skipped  []RowIssue `json:"skipped,omitempty"`
}

func (r *Report) skip(line int, reason string) {
	r.Skipped = append(r.Skipped, RowIssue{Line: line, Reason: reason})
}

const dateFormat = "02/01/2006"

// Column layouts per dialect.
const (
	anzFields  = 3 // Date, Amount, Description[, Balance]
	anzColDate = 0
	anzColAmt  = 1
	anzColDesc = 2
	anzColBal  = 3

	westpacFields    = 4 // Date, Narration, Debit, Credit[, Balance]
	westpacColDate   = 0
	westpacColDesc   = 1
	westpacColDebit  = 2
	westpacColCredit = 3
	westpacColBal    = 4
)

// Parse reads a full CSV export in the given dialect. The header row is
// required and skipped. Malformed rows are counted in the report and
// skipped; only a structurally unreadable file or unknown dialect errors.
func Parse(raw string, dialect Dialect) ([]Row, Report, error) {
	var report Report

	if dialect != DialectANZ && dialect != DialectWestpac {
		return nil, report, fmt.Errorf("unknown statement dialect %q", dialect)
	}

	reader := csv.NewReader(strings.NewReader(raw))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	// Header row.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, report, nil
		}
		return nil, report, fmt.Errorf("reading header: %w", err)
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			report.RowsSeen++
			report.skip(line, fmt.Sprintf("unreadable row: %v", err))
			continue
		}
		if isBlank(record) {
			continue
		}
		report.RowsSeen++

		var row Row
		var issue string
		switch dialect {
		case DialectANZ:
			row, issue = parseANZRow(record)
		case DialectWestpac:
			row, issue = parseWestpacRow(record)
		}
		if issue != "" {
			report.skip(line, issue)
			continue
		}
		rows = append(rows, row)
	}

	return rows, report, nil
}

func parseANZRow(record []string) (Row, string) {
	if len(record) < anzFields {
		return Row{}, "insufficient columns"
	}
	date, err := time.Parse(dateFormat, strings.TrimSpace(record[anzColDate]))
	if err != nil {
		return Row{}, fmt.Sprintf("unparseable date %q", record[anzColDate])
	}
	amount, ok := parseCents(record[anzColAmt])
	if !ok {
		return Row{}, fmt.Sprintf("non-numeric amount %q", record[anzColAmt])
	}
	row := Row{
		Date:        date.UTC(),
		Description: strings.TrimSpace(record[anzColDesc]),
		Amount:      amount,
	}
	if len(record) > anzColBal {
		if bal, ok := parseCents(record[anzColBal]); ok {
			row.Balance = &bal
		}
	}
	return row, ""
}

func parseWestpacRow(record []string) (Row, string) {
	if len(record) < westpacFields {
		return Row{}, "insufficient columns"
	}
	date, err := time.Parse(dateFormat, strings.TrimSpace(record[westpacColDate]))
	if err != nil {
		return Row{}, fmt.Sprintf("unparseable date %q", record[westpacColDate])
	}

	debitStr := strings.TrimSpace(record[westpacColDebit])
	creditStr := strings.TrimSpace(record[westpacColCredit])
	if debitStr != "" && creditStr != "" {
		return Row{}, "both debit and credit populated"
	}
	if debitStr == "" && creditStr == "" {
		return Row{}, "neither debit nor credit populated"
	}

	var amount int64
	if creditStr != "" {
		credit, ok := parseCents(creditStr)
		if !ok {
			return Row{}, fmt.Sprintf("non-numeric credit %q", creditStr)
		}
		amount = credit
	} else {
		debit, ok := parseCents(debitStr)
		if !ok {
			return Row{}, fmt.Sprintf("non-numeric debit %q", debitStr)
		}
		amount = -debit
	}

	row := Row{
		Date:        date.UTC(),
		Description: strings.TrimSpace(record[westpacColDesc]),
		Amount:      amount,
	}
	if len(record) > westpacColBal {
		if bal, ok := parseCents(record[westpacColBal]); ok {
			row.Balance = &bal
		}
	}
	return row, ""
}

// parseCents converts a statement amount string to signed integer cents.
// Statements write amounts like "1,234.50" or "-50.00"; anything with
// sub-cent precision is rejected.
func parseCents(s string) (int64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, false
	}
	return cents.IntPart(), true
}

func isBlank(record []string) bool {
	return len(record) == 0 || strings.Join(record, "") == ""
}
