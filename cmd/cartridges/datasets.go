package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazylabs/cartridges/internal/dataset"
)

func newDatasetsCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List registered datasets",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDESCRIPTION")
			for _, name := range dataset.Names() {
				ds, err := dataset.FromConfig(name, st.cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\n", name, ds.Description())
			}
			return tw.Flush()
		},
	}
}
