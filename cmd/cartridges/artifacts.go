package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazylabs/cartridges/internal/tracker"
)

func newArtifactsCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Download and inspect tracker artifacts",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newArtifactsDownloadCmd(st))
	cmd.AddCommand(newArtifactsTableCmd(st))
	return cmd
}

func newArtifactsDownloadCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "download <name>...",
		Short: "Download artifacts into the local cache",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := tracker.NewClient(st.cfg.Tracker)
			if err != nil {
				return err
			}
			if err := client.DownloadArtifacts(cmd.Context(), args); err != nil {
				return err
			}
			for _, name := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", name, client.ArtifactDir(name))
			}
			return nil
		},
	}
}

func newArtifactsTableCmd(st *cliState) *cobra.Command {
	var csvOut bool

	cmd := &cobra.Command{
		Use:   "table <artifact-id>",
		Short: "Fetch a logged table artifact and print its rows",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := tracker.NewClient(st.cfg.Tracker)
			if err != nil {
				return err
			}
			table, err := client.FetchTable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if csvOut {
				return writeCSV(cmd, table.Rows())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d columns, %d rows\n",
				table.ArtifactID, len(table.Columns), len(table.Data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&csvOut, "csv", false, "emit the table as CSV")
	return cmd
}
