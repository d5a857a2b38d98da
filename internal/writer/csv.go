// Package writer exports verified transactions for accounting systems.
package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

// CSVWriter writes verified transactions to CSV format.
type CSVWriter struct {
	IncludeHeader bool
}

// WriteToFile writes transactions to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, meta models.StatementMetadata, txns []models.Transaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	return w.Write(f, meta, txns)
}

// Write writes the verified transactions in CSV format to the given writer.
// Anything not verified is left out.
func (w *CSVWriter) Write(out io.Writer, meta models.StatementMetadata, txns []models.Transaction) error {
	writer := csv.NewWriter(out)

	// Write metadata as comments (CSV header rows)
	if w.IncludeHeader {
		rows := [][2]string{
			{"# Bank", meta.BankName},
			{"# Account Number", meta.AccountNumber},
			{"# Statement Period", period(meta)},
			{"# Opening Balance", formatBalance(meta.OpeningBalance)},
			{"# Closing Balance", formatBalance(meta.ClosingBalance)},
			{"# Currency", meta.Currency},
		}
		for _, r := range rows {
			if r[1] == "" {
				continue
			}
			if err := writer.Write(r[:]); err != nil {
				return fmt.Errorf("failed to write CSV metadata: %w", err)
			}
		}
	}

	header := []string{"Date", "Description", "Type", "Amount", "Balance", "Reference", "Category"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, txn := range Verified(txns) {
		row := []string{
			txn.Date,
			txn.Description,
			string(txn.Type),
			formatAmount(txn.Amount),
			formatBalance(txn.Balance),
			txn.ReferenceNumber,
			txn.Category,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Verified filters txns down to those that passed validation.
func Verified(txns []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, 0, len(txns))
	for _, t := range txns {
		if t.ValidationStatus == models.StatusVerified {
			out = append(out, t)
		}
	}
	return out
}

func period(meta models.StatementMetadata) string {
	if meta.PeriodStart == "" || meta.PeriodEnd == "" {
		return meta.RawPeriod
	}
	return meta.PeriodStart + " to " + meta.PeriodEnd
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func formatBalance(b decimal.NullDecimal) string {
	if !b.Valid {
		return ""
	}
	return formatAmount(b.Decimal)
}
