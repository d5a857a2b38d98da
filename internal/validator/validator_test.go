package validator

import (
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func balance(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func january() models.StatementMetadata {
	return models.StatementMetadata{
		BankName:       "Metro Bank",
		AccountNumber:  "12345678",
		PeriodStart:    "2025-01-01",
		PeriodEnd:      "2025-01-31",
		OpeningBalance: balance("1000"),
	}
}

func txn(date, amount string, typ models.TransactionType, bal string) models.Transaction {
	t := models.Transaction{Date: date, Amount: dec(amount), Type: typ, Description: date + " " + amount}
	if bal != "" {
		t.Balance = balance(bal)
	}
	return t
}

func hasPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func TestScenarioA(t *testing.T) {
	res := New().Validate(january(), []models.Transaction{
		txn("2025-01-01", "100", models.Credit, "1100"),
		txn("2025-01-02", "50", models.Debit, "1050"),
	})

	for i, tx := range res.Transactions {
		if tx.ValidationStatus != models.StatusVerified {
			t.Errorf("transaction %d: got status %s, errors %v", i, tx.ValidationStatus, tx.ValidationErrors)
		}
	}
	if !res.RunningBalance.Equal(dec("1050")) {
		t.Errorf("got running balance %s, want 1050", res.RunningBalance)
	}
	if !res.IsValid {
		t.Errorf("expected valid statement, errors: %v", res.Errors)
	}
}

func TestScenarioB(t *testing.T) {
	res := New().Validate(january(), []models.Transaction{
		txn("2025-01-01", "100", models.Credit, "1100"),
		txn("2025-01-02", "50", models.Debit, "900"),
		txn("2025-01-03", "25", models.Debit, "1025"),
	})

	second := res.Transactions[1]
	if second.ValidationStatus != models.StatusFailed {
		t.Fatalf("got status %s, want failed", second.ValidationStatus)
	}
	if !hasPrefix(second.ValidationErrors, errBalanceMismatch) {
		t.Errorf("expected a running balance mismatch, got %v", second.ValidationErrors)
	}
	if res.Transactions[2].ValidationStatus != models.StatusVerified {
		t.Errorf("row after the bad balance: got %s, errors %v", res.Transactions[2].ValidationStatus, res.Transactions[2].ValidationErrors)
	}
	if !res.RunningBalance.Equal(dec("1025")) {
		t.Errorf("got running balance %s, want 1025", res.RunningBalance)
	}
	if res.IsValid {
		t.Error("statement with a failed transaction must not be valid")
	}
}

func TestScenarioC(t *testing.T) {
	res := New().Validate(january(), []models.Transaction{
		txn("2025-01-10", "100", models.Credit, ""),
		txn("2025-02-05", "20", models.Debit, ""),
	})

	if !hasPrefix(res.Errors, "transaction after statement period") {
		t.Errorf("expected out-of-period error, got %v", res.Errors)
	}
	if res.IsValid {
		t.Error("got is_valid=true, want false")
	}
	// a period violation is a statement fault, not a transaction one
	if res.Transactions[1].ValidationStatus != models.StatusVerified {
		t.Errorf("got status %s", res.Transactions[1].ValidationStatus)
	}
}

func TestTransactionBeforePeriod(t *testing.T) {
	res := New().Validate(january(), []models.Transaction{
		txn("2024-12-31", "100", models.Credit, ""),
		txn("2025-01-05", "20", models.Debit, ""),
	})
	if !hasPrefix(res.Errors, "transaction before statement period: 2024-12-31") {
		t.Errorf("got %v", res.Errors)
	}
}

func TestFailedTransactionDoesNotMoveBalance(t *testing.T) {
	res := New().Validate(january(), []models.Transaction{
		txn("2025-01-01", "0", models.Credit, ""),
		txn("2025-01-02", "50", models.Debit, "950"),
	})

	if res.Transactions[0].ValidationStatus != models.StatusFailed {
		t.Errorf("zero amount: got %s", res.Transactions[0].ValidationStatus)
	}
	if res.Transactions[1].ValidationStatus != models.StatusVerified {
		t.Errorf("got %s, errors %v", res.Transactions[1].ValidationStatus, res.Transactions[1].ValidationErrors)
	}
	if !res.RunningBalance.Equal(dec("950")) {
		t.Errorf("got running balance %s, want 950", res.RunningBalance)
	}
}

func TestBoundaries(t *testing.T) {
	tests := []struct {
		name string
		txn  models.Transaction
		want string
	}{
		{"zero amount", txn("2025-01-02", "0", models.Debit, ""), "amount must be positive"},
		{"negative amount", txn("2025-01-02", "-5", models.Debit, ""), "amount must be positive"},
		{"unparseable date", txn("31/01/2025", "5", models.Debit, ""), "invalid date format"},
		{"missing date", txn("", "5", models.Debit, ""), "missing date"},
		{"missing type", txn("2025-01-02", "5", "", ""), "missing transaction type"},
		{"unknown type", txn("2025-01-02", "5", "transfer", ""), "invalid transaction type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New().Validate(january(), []models.Transaction{tt.txn})
			got := res.Transactions[0]
			if got.ValidationStatus != models.StatusFailed {
				t.Errorf("got status %s, want failed", got.ValidationStatus)
			}
			if !hasPrefix(got.ValidationErrors, tt.want) {
				t.Errorf("got errors %v, want %q", got.ValidationErrors, tt.want)
			}
			if res.IsValid {
				t.Error("statement must not be valid")
			}
		})
	}
}

func TestClosingBalance(t *testing.T) {
	tests := []struct {
		name    string
		closing string
		valid   bool
	}{
		{"matches", "1050", true},
		{"within tolerance", "1050.01", true},
		{"mismatch", "1050.02", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := january()
			meta.ClosingBalance = balance(tt.closing)
			res := New().Validate(meta, []models.Transaction{
				txn("2025-01-01", "100", models.Credit, "1100"),
				txn("2025-01-02", "50", models.Debit, "1050"),
			})

			if res.IsValid != tt.valid {
				t.Errorf("got valid=%v, want %v (errors %v)", res.IsValid, tt.valid, res.Errors)
			}
			for i, tx := range res.Transactions {
				flagged := hasPrefix(tx.ValidationErrors, errStatementMismatch)
				if flagged == tt.valid {
					t.Errorf("transaction %d: statement mismatch flagged=%v", i, flagged)
				}
				if tx.ValidationStatus != models.StatusVerified {
					t.Errorf("transaction %d: got status %s, want verified", i, tx.ValidationStatus)
				}
			}
		})
	}
}

func TestDuplicateReference(t *testing.T) {
	first := txn("2025-01-03", "10", models.Debit, "")
	first.ReferenceNumber = "R1"
	second := txn("2025-01-04", "12", models.Debit, "")
	second.ReferenceNumber = "R1"
	other := txn("2025-01-05", "30", models.Credit, "")

	res := New().Validate(january(), []models.Transaction{first, second, other})

	if res.Transactions[0].IsDuplicate {
		t.Error("first occurrence flagged as duplicate")
	}
	got := res.Transactions[1]
	if !got.IsDuplicate {
		t.Error("second occurrence not flagged")
	}
	if !hasPrefix(got.ValidationErrors, "duplicate reference number: R1") {
		t.Errorf("got errors %v", got.ValidationErrors)
	}
	if res.Transactions[2].IsDuplicate {
		t.Error("transaction without reference flagged")
	}
}

func TestDuplicateSignature(t *testing.T) {
	res := New().Validate(january(), []models.Transaction{
		txn("2025-01-03", "10", models.Debit, ""),
		txn("2025-01-03", "10", models.Debit, ""),
		txn("2025-01-04", "10", models.Credit, ""),
	})

	if !hasPrefix(res.Warnings, "possible duplicate: 2 debit transactions of 10.00 on 2025-01-03") {
		t.Errorf("got warnings %v", res.Warnings)
	}
	for i, tx := range res.Transactions {
		if tx.IsDuplicate {
			t.Errorf("transaction %d flagged as duplicate", i)
		}
	}
	if !res.IsValid {
		t.Errorf("warnings must not affect validity: %v", res.Errors)
	}
}

func TestStatementWarnings(t *testing.T) {
	meta := january()
	meta.PeriodEnd = "2025-01-10"
	res := New().Validate(meta, []models.Transaction{
		txn("2025-01-01", "10", models.Debit, ""),
		txn("2025-01-10", "10", models.Debit, ""),
	})

	for _, want := range []string{
		"unusual statement period length: 9 days",
		"gap of 9 days between 2025-01-01 and 2025-01-10",
		"no credit transactions",
	} {
		if !hasPrefix(res.Warnings, want) {
			t.Errorf("missing warning %q in %v", want, res.Warnings)
		}
	}
	if hasPrefix(res.Warnings, "no debit transactions") {
		t.Error("unexpected no-debit warning")
	}
	if !res.IsValid {
		t.Errorf("got errors %v", res.Errors)
	}
}

func TestMetadataChecks(t *testing.T) {
	res := New().Validate(models.StatementMetadata{PeriodStart: "2025-02-01", PeriodEnd: "2025-01-01"}, nil)

	for _, want := range []string{"missing bank name", "missing account number", "statement period end before start"} {
		if !hasPrefix(res.Errors, want) {
			t.Errorf("missing error %q in %v", want, res.Errors)
		}
	}
	if !hasPrefix(res.Warnings, "no transactions found") {
		t.Errorf("got warnings %v", res.Warnings)
	}
	if res.IsValid {
		t.Error("expected invalid statement")
	}
}

func TestSortIsStable(t *testing.T) {
	in := []models.Transaction{
		{Date: "2025-01-03", Description: "c", Amount: dec("1"), Type: models.Debit},
		{Date: "not a date", Description: "x", Amount: dec("1"), Type: models.Debit},
		{Date: "2025-01-01", Description: "a1", Amount: dec("1"), Type: models.Debit},
		{Date: "2025-01-01", Description: "a2", Amount: dec("1"), Type: models.Credit},
	}
	res := New().Validate(january(), in)

	var got []string
	for _, tx := range res.Transactions {
		got = append(got, tx.Description)
	}
	want := []string{"a1", "a2", "c", "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got order %v, want %v", got, want)
	}
	if in[0].ValidationStatus != "" {
		t.Error("input slice was modified")
	}
}

func TestValidateIsRepeatable(t *testing.T) {
	v := New(WithTolerance(dec("0.05")))
	meta := january()
	meta.ClosingBalance = balance("1200")
	first := v.Validate(meta, []models.Transaction{
		txn("2025-01-01", "100", models.Credit, "1100.04"),
		txn("2025-01-02", "50", models.Debit, "1000"),
	})
	second := v.Validate(meta, first.Transactions)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("second run differs:\n first: %+v\nsecond: %+v", first, second)
	}
	if first.Transactions[0].ValidationStatus != models.StatusVerified {
		t.Errorf("within custom tolerance: got %v", first.Transactions[0].ValidationErrors)
	}
}
