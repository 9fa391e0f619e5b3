package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"contextgraph/internal/taxonomy"
)

func newTaxonomyCmd() *cobra.Command {
	var (
		custom string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "List the semantic types used for classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := taxonomy.NewLoader()
			var (
				tax *taxonomy.Taxonomy
				err error
			)
			if custom != "" {
				tax, err = loader.LoadWithCustom(custom)
			} else {
				tax, err = loader.Load()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"version":        tax.Version,
					"semantic_types": tax.Types(),
				})
			}

			fmt.Fprintf(out, "Taxonomy %s (%d types)\n\n", tax.Version, tax.Len())
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tSOURCE\tSIGNALS")
			for _, st := range tax.Types() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.ID, st.Label, st.Source, strings.Join(st.Signals, ", "))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&custom, "custom", "", "Custom taxonomy file merged into the embedded one")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}
