package extractor

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-reconciler/internal/datefmt"
	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/money"
	"github.com/insightdelivered/statement-reconciler/internal/templates"
)

var (
	accountPattern  = regexp.MustCompile(`(?i)(?:account\s*no|account\s*number|a/c\s*no)\.?[:\s]*([0-9X]{4,})`)
	accountFallback = regexp.MustCompile(`\b(\d{8})\b`)
	periodPattern   = regexp.MustCompile(`(?i)(?:statement\s+)?period\s*(?:from)?[:\s]*([^\n]+)`)
	openingPattern  = regexp.MustCompile(`(?i)(?:opening|begin(?:ning)?|start)\s+balance[:\s£$€₹]*(-?\d{1,3}(?:,\d{3})*\.\d{2}|-?\d+\.\d{2})`)
	closingPattern  = regexp.MustCompile(`(?i)(?:closing|end(?:ing)?)\s+balance[:\s£$€₹]*(-?\d{1,3}(?:,\d{3})*\.\d{2}|-?\d+\.\d{2})`)
	currencyPattern = regexp.MustCompile(`(?i)\bcurrency[:\s]*([A-Z]{3})\b`)
)

// knownBanks is searched in order; the first name found in the text wins.
var knownBanks = []string{
	"HDFC Bank", "State Bank of India", "ICICI Bank", "Axis Bank", "Kotak Mahindra Bank",
	"Punjab National Bank", "Bank of Baroda", "Canara Bank", "IDBI Bank", "Yes Bank",
	"Metro Bank", "Barclays", "Lloyds Bank", "NatWest", "Santander", "Nationwide",
	"Chase", "Bank of America", "Wells Fargo", "Citibank", "HSBC",
}

// metadataFromText reads statement metadata from page text. Template
// patterns take precedence over the generic ones.
func metadataFromText(text string, t *templates.Template) models.StatementMetadata {
	var meta models.StatementMetadata
	if t != nil {
		meta.DetectedTemplate = t.Name
		applyTemplateMetadata(&meta, t.ExtractMetadata(text), layoutsFor(t))
	}

	if meta.AccountNumber == "" {
		if m := accountPattern.FindStringSubmatch(text); m != nil {
			meta.AccountNumber = m[1]
		} else if m := accountFallback.FindString(text); m != "" {
			meta.AccountNumber = m
		}
	}
	if meta.PeriodStart == "" {
		if m := periodPattern.FindStringSubmatch(text); m != nil {
			setPeriod(&meta, m[1], layoutsFor(t))
		}
	}
	if !meta.OpeningBalance.Valid {
		meta.OpeningBalance = findBalance(openingPattern, text)
	}
	if !meta.ClosingBalance.Valid {
		meta.ClosingBalance = findBalance(closingPattern, text)
	}
	if meta.BankName == "" {
		meta.BankName = findBank(text)
	}
	if meta.Currency == "" {
		if m := currencyPattern.FindStringSubmatch(text); m != nil {
			meta.Currency = strings.ToUpper(m[1])
		}
	}
	return meta
}

func applyTemplateMetadata(meta *models.StatementMetadata, found map[string]string, layouts []string) {
	keys := make([]string, 0, len(found))
	for k := range found {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		v := found[key]
		switch key {
		case "bank_name":
			meta.BankName = v
		case "account_number":
			meta.AccountNumber = v
		case "statement_period":
			setPeriod(meta, v, layouts)
		case "period_start":
			meta.PeriodStart, _ = datefmt.Normalize(v, layouts...)
		case "period_end":
			meta.PeriodEnd, _ = datefmt.Normalize(v, layouts...)
		case "opening_balance":
			meta.OpeningBalance = parseBalance(v)
		case "closing_balance":
			meta.ClosingBalance = parseBalance(v)
		case "currency":
			meta.Currency = strings.ToUpper(v)
		}
	}
}

func setPeriod(meta *models.StatementMetadata, raw string, layouts []string) {
	raw = strings.TrimSpace(raw)
	if start, end, ok := datefmt.ParsePeriod(raw, layouts...); ok {
		meta.RawPeriod = raw
		meta.PeriodStart, meta.PeriodEnd = start, end
	}
}

func layoutsFor(t *templates.Template) []string {
	if t == nil || t.DateLayout() == "" {
		return datefmt.Generic
	}
	return append([]string{t.DateLayout()}, datefmt.Generic...)
}

func findBalance(re *regexp.Regexp, text string) decimal.NullDecimal {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.NullDecimal{}
	}
	return parseBalance(m[1])
}

func parseBalance(s string) decimal.NullDecimal {
	d, err := money.Parse(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func findBank(text string) string {
	lower := strings.ToLower(text)
	for _, b := range knownBanks {
		if strings.Contains(lower, strings.ToLower(b)) {
			return b
		}
	}
	return ""
}
