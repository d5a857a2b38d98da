// Package validator reconciles a statement's transactions against its
// declared balances and checks the statement as a whole.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-reconciler/internal/datefmt"
	"github.com/insightdelivered/statement-reconciler/internal/models"
)

// DefaultTolerance is the largest difference still treated as equal when
// comparing balances.
var DefaultTolerance = decimal.New(1, -2)

const (
	minPeriodDays = 25
	maxPeriodDays = 366
	maxGapDays    = 7
)

const (
	errBalanceMismatch   = "running balance mismatch"
	errStatementMismatch = "statement balance mismatch"
)

// Validator holds configuration only and may be shared between goroutines.
type Validator struct {
	tolerance decimal.Decimal
	log       zerolog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithTolerance overrides DefaultTolerance. Negative values are ignored.
func WithTolerance(tol decimal.Decimal) Option {
	return func(v *Validator) {
		if !tol.IsNegative() {
			v.tolerance = tol
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(v *Validator) { v.log = l }
}

func New(opts ...Option) *Validator {
	v := &Validator{tolerance: DefaultTolerance, log: zerolog.Nop()}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate returns the verdict for a statement. txns is not modified; the
// result carries date-ordered copies with their validation fields set.
// Running the same input twice gives the same result.
func (v *Validator) Validate(meta models.StatementMetadata, txns []models.Transaction) models.ValidationResult {
	res := models.ValidationResult{
		Errors:       []string{},
		Warnings:     []string{},
		Transactions: sortByDate(txns),
	}

	res.RunningBalance = v.reconcile(meta, &res)
	checkMetadata(meta, &res)
	checkPeriod(meta, &res)
	checkSequence(&res)

	res.IsValid = len(res.Errors) == 0
	v.log.Debug().
		Int("transactions", len(res.Transactions)).
		Int("errors", len(res.Errors)).
		Int("warnings", len(res.Warnings)).
		Str("running_balance", res.RunningBalance.StringFixed(2)).
		Bool("valid", res.IsValid).
		Msg("statement validated")
	return res
}

// reconcile runs the per-transaction checks in date order and returns the
// final running balance.
func (v *Validator) reconcile(meta models.StatementMetadata, res *models.ValidationResult) decimal.Decimal {
	running := decimal.Zero
	if meta.OpeningBalance.Valid {
		running = meta.OpeningBalance.Decimal
	}

	seen := make(map[string]bool)
	for i := range res.Transactions {
		t := &res.Transactions[i]
		t.ValidationErrors = checkFields(t)
		t.IsDuplicate = false

		balanceOnly := false
		if len(t.ValidationErrors) == 0 && t.Balance.Valid {
			expected := running.Add(t.Signed())
			if !v.equal(t.Balance.Decimal, expected) {
				t.ValidationErrors = append(t.ValidationErrors, fmt.Sprintf("%s: expected %s, stated %s",
					errBalanceMismatch, expected.StringFixed(2), t.Balance.Decimal.StringFixed(2)))
				balanceOnly = true
			}
		}

		if ref := t.ReferenceNumber; ref != "" {
			if seen[ref] {
				t.IsDuplicate = true
				t.ValidationErrors = append(t.ValidationErrors, "duplicate reference number: "+ref)
				balanceOnly = false
			}
			seen[ref] = true
		}

		if len(t.ValidationErrors) == 0 {
			t.ValidationStatus = models.StatusVerified
		} else {
			t.ValidationStatus = models.StatusFailed
			res.Errors = append(res.Errors, fmt.Sprintf("transaction %d (%s): %s",
				i+1, t.Date, strings.Join(t.ValidationErrors, "; ")))
		}

		// failing only the balance check still moves the running balance
		if t.ValidationStatus == models.StatusVerified || balanceOnly {
			running = running.Add(t.Signed())
		}
	}

	if meta.ClosingBalance.Valid && !v.equal(meta.ClosingBalance.Decimal, running) {
		for i := range res.Transactions {
			t := &res.Transactions[i]
			t.ValidationErrors = append(t.ValidationErrors, errStatementMismatch)
		}
		res.Errors = append(res.Errors, fmt.Sprintf("%s: closing balance %s, computed %s",
			errStatementMismatch, meta.ClosingBalance.Decimal.StringFixed(2), running.StringFixed(2)))
	}
	return running
}

func (v *Validator) equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(v.tolerance)
}

func checkFields(t *models.Transaction) []string {
	var errs []string
	if t.Date == "" {
		errs = append(errs, "missing date")
	} else if _, err := time.Parse(datefmt.Canonical, t.Date); err != nil {
		errs = append(errs, "invalid date format: "+t.Date)
	}
	if !t.Amount.IsPositive() {
		errs = append(errs, "amount must be positive")
	}
	switch {
	case t.Type == "":
		errs = append(errs, "missing transaction type")
	case !t.Type.IsValid():
		errs = append(errs, "invalid transaction type: "+string(t.Type))
	}
	return errs
}

func checkMetadata(meta models.StatementMetadata, res *models.ValidationResult) {
	required := []struct {
		name  string
		value string
	}{
		{"bank name", meta.BankName},
		{"account number", meta.AccountNumber},
		{"statement period start", meta.PeriodStart},
		{"statement period end", meta.PeriodEnd},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			res.Errors = append(res.Errors, "missing "+r.name)
		}
	}
}

func checkPeriod(meta models.StatementMetadata, res *models.ValidationResult) {
	start, errStart := time.Parse(datefmt.Canonical, meta.PeriodStart)
	end, errEnd := time.Parse(datefmt.Canonical, meta.PeriodEnd)
	if meta.PeriodStart != "" && errStart != nil {
		res.Errors = append(res.Errors, "invalid statement period start: "+meta.PeriodStart)
	}
	if meta.PeriodEnd != "" && errEnd != nil {
		res.Errors = append(res.Errors, "invalid statement period end: "+meta.PeriodEnd)
	}
	if errStart != nil || errEnd != nil {
		return
	}

	if end.Before(start) {
		res.Errors = append(res.Errors, "statement period end before start")
		return
	}
	if days := daysBetween(start, end); days < minPeriodDays || days > maxPeriodDays {
		res.Warnings = append(res.Warnings, fmt.Sprintf("unusual statement period length: %d days", days))
	}

	for _, t := range res.Transactions {
		d, err := time.Parse(datefmt.Canonical, t.Date)
		if err != nil {
			continue
		}
		switch {
		case d.Before(start):
			res.Errors = append(res.Errors, "transaction before statement period: "+t.Date)
		case d.After(end):
			res.Errors = append(res.Errors, "transaction after statement period: "+t.Date)
		}
	}
}

// checkSequence looks for anomalies across the ordered transactions.
func checkSequence(res *models.ValidationResult) {
	if len(res.Transactions) == 0 {
		res.Warnings = append(res.Warnings, "no transactions found")
		return
	}

	var prev time.Time
	var credits, debits int
	signatures := make(map[string]int)
	var order []string
	for _, t := range res.Transactions {
		switch t.Type {
		case models.Credit:
			credits++
		case models.Debit:
			debits++
		}

		if d, err := time.Parse(datefmt.Canonical, t.Date); err == nil {
			if !prev.IsZero() {
				if gap := daysBetween(prev, d); gap > maxGapDays {
					res.Warnings = append(res.Warnings, fmt.Sprintf("gap of %d days between %s and %s",
						gap, prev.Format(datefmt.Canonical), t.Date))
				}
			}
			prev = d
		}

		sig := t.Date + "|" + t.Amount.StringFixed(2) + "|" + string(t.Type)
		if signatures[sig] == 0 {
			order = append(order, sig)
		}
		signatures[sig]++
	}

	if credits == 0 {
		res.Warnings = append(res.Warnings, "no credit transactions")
	}
	if debits == 0 {
		res.Warnings = append(res.Warnings, "no debit transactions")
	}
	for _, sig := range order {
		if n := signatures[sig]; n > 1 {
			parts := strings.Split(sig, "|")
			res.Warnings = append(res.Warnings, fmt.Sprintf("possible duplicate: %d %s transactions of %s on %s",
				n, parts[2], parts[1], parts[0]))
		}
	}
}

// sortByDate returns a stable, date-ordered copy of txns. Records with
// unparseable dates keep their relative order after all dated ones.
func sortByDate(txns []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txns))
	copy(out, txns)

	keys := make([]time.Time, len(out))
	dated := make([]bool, len(out))
	for i, t := range out {
		keys[i], dated[i] = parseDate(t.Date)
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if dated[i] != dated[j] {
			return dated[i]
		}
		return keys[i].Before(keys[j])
	})

	sorted := make([]models.Transaction, len(out))
	for n, i := range idx {
		sorted[n] = out[i]
	}
	return sorted
}

func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse(datefmt.Canonical, s)
	return t, err == nil
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
