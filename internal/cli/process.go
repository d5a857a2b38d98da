package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/pipeline"
	"github.com/insightdelivered/statement-reconciler/internal/writer"
)

type processFlags struct {
	bank   string
	output string
	header bool
	json   bool
}

func newProcessCmd(opts *options) *cobra.Command {
	var f processFlags

	cmd := &cobra.Command{
		Use:   "process [flags] <statement> [statement ...]",
		Short: "Extract and verify statements, writing verified transactions to CSV",
		Example: `  # Auto-detect the bank and convert
  reconciler process statement.pdf

  # Name the bank template explicitly
  reconciler process --bank=hsbc statement.pdf

  # Custom output path
  reconciler process --output=transactions.csv statement.xlsx

  # Several files, each written next to its input
  reconciler process jan.pdf feb.pdf mar.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.output != "" && len(args) > 1 {
				return fmt.Errorf("--output can only be used with a single input file")
			}
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			p, err := buildPipeline(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range args {
				if err := processFile(cmd, p, path, f, out); err != nil {
					return fmt.Errorf("processing %s: %w", path, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.bank, "bank", "b", "", "bank template name (auto-detected if omitted)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file path (defaults to the input name with a .csv or .json extension)")
	cmd.Flags().BoolVar(&f.header, "header", true, "include account metadata header rows in CSV")
	cmd.Flags().BoolVar(&f.json, "json", false, "write the JSON export instead of CSV")
	return cmd
}

func processFile(cmd *cobra.Command, p *pipeline.Pipeline, path string, f processFlags, out io.Writer) error {
	fmt.Fprintf(out, "Processing: %s\n", path)

	res, err := p.Process(cmd.Context(), path, f.bank)
	if err != nil {
		return err
	}
	printResult(out, res)

	outPath := f.output
	if outPath == "" {
		ext := ".csv"
		if f.json {
			ext = ".json"
		}
		outPath = strings.TrimSuffix(path, filepath.Ext(path)) + ext
	}

	txns := res.Validation.Transactions
	if f.json {
		if err := writeJSONFile(outPath, res, txns); err != nil {
			return err
		}
	} else {
		w := &writer.CSVWriter{IncludeHeader: f.header}
		if err := w.WriteToFile(outPath, res.Metadata, txns); err != nil {
			return fmt.Errorf("CSV write failed: %w", err)
		}
	}

	fmt.Fprintf(out, "  Output: %s (%d verified of %d)\n", outPath, len(writer.Verified(txns)), len(txns))
	fmt.Fprintln(out, "  Done.")
	return nil
}

func writeJSONFile(path string, res *pipeline.Result, txns []models.Transaction) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer file.Close()
	if err := writer.WriteJSON(file, res.Metadata, txns); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}
	return file.Close()
}

func printResult(out io.Writer, res *pipeline.Result) {
	meta := res.Metadata
	fmt.Fprintf(out, "  Format: %s (%s)\n", res.Format, res.Strategy)
	fmt.Fprintf(out, "  Parser: %s, extraction: %s\n", res.ParserUsed, res.Method)
	if meta.BankName != "" {
		fmt.Fprintf(out, "  Bank: %s\n", meta.BankName)
	}
	if meta.AccountNumber != "" {
		fmt.Fprintf(out, "  Account number: %s\n", meta.AccountNumber)
	}
	if meta.PeriodStart != "" || meta.PeriodEnd != "" {
		fmt.Fprintf(out, "  Period: %s to %s\n", meta.PeriodStart, meta.PeriodEnd)
	}

	s := res.Summary
	fmt.Fprintf(out, "  Found %d transaction(s): %d credit(s) totalling %s, %d debit(s) totalling %s\n",
		s.TotalCount, s.CreditCount, s.TotalCredit.StringFixed(2), s.DebitCount, s.TotalDebit.StringFixed(2))
	printValidation(out, res.Validation)
}

func printValidation(out io.Writer, v models.ValidationResult) {
	if v.IsValid {
		fmt.Fprintln(out, "  Validation: passed")
	} else {
		fmt.Fprintf(out, "  Validation: failed with %d error(s)\n", len(v.Errors))
	}
	for _, e := range v.Errors {
		fmt.Fprintf(out, "    error: %s\n", e)
	}
	for _, w := range v.Warnings {
		fmt.Fprintf(out, "    warning: %s\n", w)
	}
}
