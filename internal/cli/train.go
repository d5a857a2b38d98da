package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-reconciler/internal/classifier"
)

func newTrainCmd(opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "train [flags] <labelled.csv>",
		Short: "Fit the transaction category model from labelled history",
		Long: `Reads a CSV with description and category columns, trains the naive
Bayes category model and saves it. Point classifier.model_path (or --model)
at the saved file to use it when processing statements.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.Classifier.ModelPath
			}
			if out == "" {
				return fmt.Errorf("no output path: pass --out or set classifier.model_path")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			examples, err := classifier.ReadExamples(f)
			if err != nil {
				return err
			}
			model, err := classifier.Train(examples)
			if err != nil {
				return err
			}
			if err := model.Save(out); err != nil {
				return err
			}

			log.Info().Int("examples", len(examples)).Str("path", out).Msg("category model saved")
			fmt.Fprintf(cmd.OutOrStdout(), "Trained on %d example(s), %d categories: %v\n", len(examples), len(model.Categories()), model.Categories())
			fmt.Fprintf(cmd.OutOrStdout(), "  Output: %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "model output path (defaults to classifier.model_path)")
	return cmd
}
