package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"25.99", "25.99", false},
		{"1,234.56", "1234.56", false},
		{"£25.99", "25.99", false},
		{"-25.99", "-25.99", false},
		{"£1,234,567.89", "1234567.89", false},
		{"(12.00)", "-12", false},
		{"50.00 DR", "-50", false},
		{"50.00 Cr", "50", false},
		{"75.10-", "-75.1", false},
		{"₹ 1,00,000.00", "100000", false},
		{" 25.99 ", "25.99", false},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	for _, in := range []string{"", "  ", "-", "£"} {
		if _, err := Parse(in); !errors.Is(err, ErrEmpty) {
			t.Errorf("Parse(%q): got %v, want ErrEmpty", in, err)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		row     models.RawRow
		amount  string
		txType  models.TransactionType
		wantErr bool
	}{
		{
			name:   "credit column positive",
			row:    models.RawRow{"debit": "0", "credit": "250.00"},
			amount: "250",
			txType: models.Credit,
		},
		{
			name:   "debit column positive",
			row:    models.RawRow{"debit": "1,050.00", "credit": ""},
			amount: "1050",
			txType: models.Debit,
		},
		{
			name:   "negative amount is debit",
			row:    models.RawRow{"amount": "-42.50"},
			amount: "42.5",
			txType: models.Debit,
		},
		{
			name:   "positive amount is credit",
			row:    models.RawRow{"amount": "42.50"},
			amount: "42.5",
			txType: models.Credit,
		},
		{
			name:   "explicit type wins",
			row:    models.RawRow{"amount": "10.00", "transaction_type": "DEBIT"},
			amount: "10",
			txType: models.Debit,
		},
		{
			name:   "explicit type without amount uses the columns",
			row:    models.RawRow{"debit": "50.00", "transaction_type": "debit"},
			amount: "50",
			txType: models.Debit,
		},
		{
			name:   "falls back to amount when columns are empty",
			row:    models.RawRow{"debit": "", "credit": "", "amount": "-5.00"},
			amount: "5",
			txType: models.Debit,
		},
		{
			name:    "no positive side",
			row:     models.RawRow{"debit": "0.00", "credit": "0.00"},
			wantErr: true,
		},
		{
			name:    "nothing usable",
			row:     models.RawRow{"description": "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amt, typ, err := Resolve(tt.row)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !amt.Equal(decimal.RequireFromString(tt.amount)) {
				t.Errorf("amount: got %s, want %s", amt, tt.amount)
			}
			if typ != tt.txType {
				t.Errorf("type: got %q, want %q", typ, tt.txType)
			}
		})
	}
}

func TestSanitizeOCR(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"19,720; 15:", "19,720.15"},
		{"1,234:56 NA", "1,234.56"},
		{"1.00", "1.00"},
	}

	for _, tt := range tests {
		got := SanitizeOCR(tt.input)
		if got != tt.expected {
			t.Errorf("SanitizeOCR(%q): got %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestAmountPattern(t *testing.T) {
	got := AmountPattern.FindAllString("PAYMENT 1,234.56 and 1234.56 but not 12.3", -1)
	if len(got) != 2 || got[0] != "1,234.56" || got[1] != "1234.56" {
		t.Errorf("got %v", got)
	}
}
