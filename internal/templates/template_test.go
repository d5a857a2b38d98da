package templates

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

func TestBuiltinDetect(t *testing.T) {
	set, err := Builtin()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"detects Metro Bank", "METRO BANK\nAccount Statement\n15/01/2024", "metro"},
		{"detects HSBC", "HSBC UK Bank plc\nYour Statement\n15 Jan 2024", "hsbc"},
		{"detects Barclays", "Barclays Bank UK PLC\nStatement\n15/01/2024", "barclays"},
		{"unknown bank", "Some Unknown Bank\nStatement", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := set.Detect(tt.text)
			if tt.expected == "" {
				if got != nil {
					t.Errorf("got %q, want no template", got.Name)
				}
				return
			}
			if got == nil {
				t.Fatalf("got nil, want %q", tt.expected)
			}
			if got.Name != tt.expected {
				t.Errorf("got %q, want %q", got.Name, tt.expected)
			}
		})
	}
}

func TestDetectIsOrderedByName(t *testing.T) {
	zeta, err := Compile(BankTemplate{Name: "zeta", Identifiers: []string{"shared"}})
	if err != nil {
		t.Fatal(err)
	}
	alpha, err := Compile(BankTemplate{Name: "alpha", Identifiers: []string{"SHARED"}})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		got := NewSet(zeta, alpha).Detect("a shared identifier")
		if got == nil || got.Name != "alpha" {
			t.Fatalf("got %v, want alpha", got)
		}
	}
}

func TestCategorizeFirstSortedMatchWins(t *testing.T) {
	tmpl, err := Compile(BankTemplate{
		Name: "test",
		CategoryRules: map[string][]string{
			"TRANSFER": {"payment"},
			"BILLS":    {"electric", "payment"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, ok := tmpl.Categorize("Faster PAYMENT to landlord")
	if !ok || got != "BILLS" {
		t.Errorf("got %q, want BILLS", got)
	}
	if _, ok := tmpl.Categorize("coffee"); ok {
		t.Error("expected no category")
	}
}

func TestMapHeader(t *testing.T) {
	set, err := Builtin()
	if err != nil {
		t.Fatal(err)
	}
	metro, ok := set.Get("Metro")
	if !ok {
		t.Fatal("metro template missing")
	}

	tests := []struct {
		header   string
		expected string
	}{
		{"Date", "date"},
		{"Paid out", "debit"},
		{"Paid In", "credit"},
		{"Balance", "balance"},
		{"Transaction type", "description"},
		{"Reference", ""},
	}
	for _, tt := range tests {
		got, _ := metro.MapHeader(tt.header)
		if got != tt.expected {
			t.Errorf("MapHeader(%q): got %q, want %q", tt.header, got, tt.expected)
		}
	}
}

func TestExtractMetadata(t *testing.T) {
	tmpl, err := Compile(BankTemplate{
		Name: "test",
		MetadataPatterns: map[string]string{
			"account_number": `account no[:\s]*(\d+)`,
			"bank_name":      `first national`,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := tmpl.ExtractMetadata("First National\nAccount No: 12345678")
	if got["account_number"] != "12345678" {
		t.Errorf("account_number: got %q", got["account_number"])
	}
	if got["bank_name"] != "First National" {
		t.Errorf("bank_name: got %q", got["bank_name"])
	}
}

func TestCompileRejectsBadConfiguration(t *testing.T) {
	tests := []struct {
		name string
		bt   BankTemplate
	}{
		{"bad field regex", BankTemplate{Name: "x", FieldMapping: map[string]string{"date": "("}}},
		{"bad category regex", BankTemplate{Name: "x", CategoryRules: map[string][]string{"A": {"[a-"}}}},
		{"bad area", BankTemplate{Name: "x", TransactionTableArea: []float64{1, 2}}},
		{"missing name", BankTemplate{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.bt)
			var te *models.TemplateError
			if !errors.As(err, &te) {
				t.Errorf("got %v, want TemplateError", err)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	jsonTmpl := `{"identifiers": ["First National"], "date_format": "%d-%m-%Y",
		"field_mapping": {"date": "txn date", "amount": "amount\\s*\\(inr\\)"}}`
	if err := os.WriteFile(filepath.Join(dir, "firstnational.json"), []byte(jsonTmpl), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("got %d templates, want 1", set.Len())
	}
	tmpl, ok := set.Get("firstnational")
	if !ok {
		t.Fatal("template not found by file name")
	}
	if tmpl.DateLayout() != "2-1-2006" {
		t.Errorf("layout: got %q", tmpl.DateLayout())
	}
	if f, _ := tmpl.MapHeader("Amount (INR)"); f != "amount" {
		t.Errorf("got %q, want amount", f)
	}
}

func TestLoadDirUnparseable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadDir(dir)
	var te *models.TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TemplateError", err)
	}
	if te.Name != "broken" {
		t.Errorf("name: got %q", te.Name)
	}
}
