package models

import "github.com/shopspring/decimal"

// Summary aggregates a set of transactions.
type Summary struct {
	TotalCount  int             `json:"totalCount"`
	CreditCount int             `json:"creditCount"`
	DebitCount  int             `json:"debitCount"`
	TotalCredit decimal.Decimal `json:"totalCredit"`
	TotalDebit  decimal.Decimal `json:"totalDebit"`
	NetChange   decimal.Decimal `json:"netChange"`
	FirstDate   string          `json:"firstDate,omitempty"`
	LastDate    string          `json:"lastDate,omitempty"`
}

// Summarize counts and totals txns by direction. Dates are compared as
// canonical strings.
func Summarize(txns []Transaction) Summary {
	s := Summary{
		TotalCount:  len(txns),
		TotalCredit: decimal.Zero,
		TotalDebit:  decimal.Zero,
	}
	for _, t := range txns {
		if t.Type == Credit {
			s.CreditCount++
			s.TotalCredit = s.TotalCredit.Add(t.Amount)
		} else {
			s.DebitCount++
			s.TotalDebit = s.TotalDebit.Add(t.Amount)
		}
		if t.Date == "" {
			continue
		}
		if s.FirstDate == "" || t.Date < s.FirstDate {
			s.FirstDate = t.Date
		}
		if t.Date > s.LastDate {
			s.LastDate = t.Date
		}
	}
	s.NetChange = s.TotalCredit.Sub(s.TotalDebit)
	return s
}
