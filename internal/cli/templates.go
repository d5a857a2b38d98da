package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-reconciler/internal/templates"
)

func newTemplatesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List bank templates in detection order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			set, err := templates.Load(cfg.Templates.Dir)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDATE FORMAT\tIDENTIFIERS")
			for _, t := range set.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.DateFormat, strings.Join(t.Identifiers, ", "))
			}
			return w.Flush()
		},
	}
}
