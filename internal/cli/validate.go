package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-reconciler/internal/validator"
	"github.com/insightdelivered/statement-reconciler/internal/writer"
)

// errInvalid makes the command exit non-zero without repeating the report.
var errInvalid = errors.New("statement failed validation")

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <export.json>",
		Short: "Re-run balance validation over an exported statement",
		Long: `Reads a JSON export written by "process --json" or the export endpoint,
re-checks every transaction against the running balance and prints the
result. The exit status is non-zero when the statement is not valid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			tol, err := cfg.Tolerance()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var export writer.Export
			if err := json.Unmarshal(data, &export); err != nil {
				return fmt.Errorf("decoding %s: %w", args[0], err)
			}

			v := validator.New(validator.WithTolerance(tol), validator.WithLogger(log))
			res := v.Validate(export.Metadata, export.Transactions)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Validating: %s\n", args[0])
			fmt.Fprintf(out, "  %d transaction(s), running balance %s\n", len(res.Transactions), res.RunningBalance.StringFixed(2))
			printValidation(out, res)
			if !res.IsValid {
				return errInvalid
			}
			return nil
		},
	}
}
