package datefmt

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		ok       bool
	}{
		{"01/01/2025", "2025-01-01", true},
		{"5/2/2025", "2025-02-05", true},
		{"2025-02-05", "2025-02-05", true},
		{"15-01-2024", "2024-01-15", true},
		{"13/25/2024", "", false},
		{"12/31/2024", "2024-12-31", true},
		{"15/01/24", "2024-01-15", true},
		{"15 Jan 2024", "2024-01-15", true},
		{"15-jan-24", "2024-01-15", true},
		{"4 December 2023", "2023-12-04", true},
		{"not a date", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := Normalize(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok: got %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	first, _ := Normalize("31/01/2025")
	second, _ := Normalize(first)
	if first != second {
		t.Errorf("got %q then %q", first, second)
	}
}

func TestLayout(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"%d/%m/%Y", "2/1/2006"},
		{"%Y-%m-%d", "2006-1-2"},
		{"%d %b %y", "2 Jan 06"},
		{"02/01/2006", "02/01/2006"},
	}

	for _, tt := range tests {
		if got := Layout(tt.input); got != tt.expected {
			t.Errorf("Layout(%q): got %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestStartsWithDate(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"15/01/2024 CARD PAYMENT", true},
		{"1/1/24 PAYMENT", true},
		{"15 Jan 2024 CARD PAYMENT", true},
		{"15-Jan-2024 PAYMENT", true},
		{"2024-01-15 PAYMENT", true},
		{"CARD PAYMENT 15/01/2024", false},
		{"not a date line", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := StartsWithDate(tt.input); got != tt.expected {
				t.Errorf("StartsWithDate(%q): got %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	start, end, ok := ParsePeriod("01/01/2025 to 31/01/2025")
	if !ok {
		t.Fatal("expected period to parse")
	}
	if start != "2025-01-01" || end != "2025-01-31" {
		t.Errorf("got %s..%s", start, end)
	}

	if _, _, ok := ParsePeriod("January"); ok {
		t.Error("expected single word not to parse")
	}
}
