package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-reconciler/internal/datefmt"
	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/money"
)

var (
	debitCue  = regexp.MustCompile(`(?i)\b(?:dr|debit|with)`)
	creditCue = regexp.MustCompile(`(?i)\b(?:cr|credit|dep)`)
)

// parseLines applies the line heuristic to every line of text.
func parseLines(text string) []models.RawRow {
	var out []models.RawRow
	for _, line := range strings.Split(text, "\n") {
		// balance and total lines are metadata, not transactions
		if summaryRow.MatchString(line) {
			continue
		}
		if row, ok := parseLine(line); ok {
			out = append(out, row)
		}
	}
	return out
}

// parseLine reads a transaction from a line holding a date token and at least
// one amount token.
//
//	1 amount:   direction from keyword cues, debit when there are none
//	2 amounts:  (x, 0) debit, (0, y) credit, otherwise amount and balance
//	3+ amounts: debit, credit, balance
func parseLine(line string) (models.RawRow, bool) {
	date, loc := datefmt.FindToken(line)
	if loc == nil {
		return nil, false
	}
	rest := line[:loc[0]] + " " + line[loc[1]:]

	tokens := money.AmountPattern.FindAllString(rest, -1)
	if len(tokens) == 0 {
		return nil, false
	}
	amounts := make([]decimal.Decimal, len(tokens))
	for i, tok := range tokens {
		amounts[i], _ = money.Parse(tok)
	}

	desc := money.AmountPattern.ReplaceAllString(rest, " ")
	desc = strings.Join(strings.Fields(desc), " ")
	row := models.RawRow{
		models.FieldDate:        date,
		models.FieldDescription: desc,
	}

	switch len(amounts) {
	case 1:
		row[models.FieldAmount] = tokens[0]
		row[models.FieldType] = string(cueType(desc))
	case 2:
		first, second := amounts[0], amounts[1]
		switch {
		case first.IsPositive() && second.IsZero():
			row[models.FieldAmount] = tokens[0]
			row[models.FieldType] = string(models.Debit)
		case first.IsZero() && second.IsPositive():
			row[models.FieldAmount] = tokens[1]
			row[models.FieldType] = string(models.Credit)
		default:
			row[models.FieldAmount] = tokens[0]
			row[models.FieldBalance] = tokens[1]
			row[models.FieldType] = string(cueType(desc))
		}
	default:
		row[models.FieldDebit] = tokens[0]
		row[models.FieldCredit] = tokens[1]
		row[models.FieldBalance] = tokens[2]
	}
	return finalize(row), true
}

func cueType(text string) models.TransactionType {
	switch {
	case debitCue.MatchString(text):
		return models.Debit
	case creditCue.MatchString(text):
		return models.Credit
	}
	return models.Debit
}

// finalize applies the debit/credit rule: when both sides exist the positive
// one decides, a lone amount decides by sign. Rows that cannot be resolved are
// passed on unchanged for the parser to drop.
func finalize(row models.RawRow) models.RawRow {
	amt, typ, err := money.Resolve(row)
	if err != nil {
		return row
	}
	row[models.FieldAmount] = amt.StringFixed(2)
	row[models.FieldType] = string(typ)
	return row
}
