package extractor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/templates"
)

// tableLine lays out a statement row the way pdftotext -layout does.
func tableLine(date, desc, out, in, balance string) string {
	return strings.TrimRight(fmt.Sprintf("%-12s%-28s%12s%12s%12s", date, desc, out, in, balance), " ")
}

func sampleTable() []string {
	return []string{
		"Metro Bank",
		"Account Number: 12345678",
		"Statement Period: 01/01/2025 to 31/01/2025",
		"Opening Balance: 1,000.00",
		"",
		tableLine("Date", "Description", "Paid Out", "Paid In", "Balance"),
		tableLine("02/01/2025", "Coffee Shop", "4.50", "", "995.50"),
		tableLine("03/01/2025", "Salary ACME", "", "2,000.00", "2,995.50"),
		tableLine("", "January bonus", "", "", ""),
		tableLine("05/01/2025", "Rent", "950.00", "", "2,045.50"),
		"Closing Balance: 2,045.50",
	}
}

func TestGenericField(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Txn Date", models.FieldDate, true},
		{"Debit Amount", models.FieldDebit, true},
		{"Withdrawals", models.FieldDebit, true},
		{"Paid In", models.FieldCredit, true},
		{"Amount", models.FieldAmount, true},
		{"Narration", models.FieldDescription, true},
		{"Chq/Ref No", models.FieldReference, true},
		{"Running Balance", models.FieldBalance, true},
		{"Branch", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := genericField(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("genericField(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRecognizeTable(t *testing.T) {
	rows := recognizeTable(rowsFromText(sampleTable()), genericField)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3: %v", len(rows), rows)
	}

	tests := []struct {
		date, desc, amount string
		typ                models.TransactionType
		balance            string
	}{
		{"02/01/2025", "Coffee Shop", "4.50", models.Debit, "995.50"},
		{"03/01/2025", "Salary ACME January bonus", "2000.00", models.Credit, "2,995.50"},
		{"05/01/2025", "Rent", "950.00", models.Debit, "2,045.50"},
	}
	for i, tt := range tests {
		r := rows[i]
		if got := r.Get(models.FieldDate); got != tt.date {
			t.Errorf("row %d date: got %q, want %q", i, got, tt.date)
		}
		if got := r.Get(models.FieldDescription); got != tt.desc {
			t.Errorf("row %d description: got %q, want %q", i, got, tt.desc)
		}
		if got := r.Get(models.FieldAmount); got != tt.amount {
			t.Errorf("row %d amount: got %q, want %q", i, got, tt.amount)
		}
		if got := models.TransactionType(r.Get(models.FieldType)); got != tt.typ {
			t.Errorf("row %d type: got %q, want %q", i, got, tt.typ)
		}
		if got := r.Get(models.FieldBalance); got != tt.balance {
			t.Errorf("row %d balance: got %q, want %q", i, got, tt.balance)
		}
	}
}

func TestRecognizeTableWithoutHeader(t *testing.T) {
	lines := []string{"Just some text", "02/01/2025  Coffee  4.50"}
	if rows := recognizeTable(rowsFromText(lines), genericField); rows != nil {
		t.Errorf("expected no rows without a header, got %v", rows)
	}
}

func TestWithin(t *testing.T) {
	rows := rowsFromText(sampleTable())
	area := templates.Area{Top: 5, Left: 0, Bottom: 9, Right: 40}
	got := within(rows, area)
	for _, r := range got {
		if r.y < 5 || r.y > 9 {
			t.Errorf("row at y=%v outside area", r.y)
		}
		for _, c := range r.cells {
			if c.x1 > 40 {
				t.Errorf("cell %q extends past the right edge", c.text)
			}
		}
	}
	if len(got) == 0 {
		t.Fatal("expected rows inside the area")
	}
}

func TestAssignColumnNearestCentre(t *testing.T) {
	cols := []column{
		{field: models.FieldDate, x0: 0, x1: 10},
		{field: models.FieldAmount, x0: 40, x1: 50},
	}
	if got := assignColumn(cell{x0: 35, x1: 38, text: "4.50"}, cols); got != models.FieldAmount {
		t.Errorf("got %q, want %q", got, models.FieldAmount)
	}
	if got := assignColumn(cell{x0: 2, x1: 8, text: "02/01"}, cols); got != models.FieldDate {
		t.Errorf("got %q, want %q", got, models.FieldDate)
	}
}
