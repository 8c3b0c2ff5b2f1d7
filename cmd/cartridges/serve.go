package main

import (
	"github.com/spf13/cobra"

	"github.com/hazylabs/cartridges/api"
	"github.com/hazylabs/cartridges/internal/store"
)

func newServeCmd(st *cliState) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run-browsing HTTP API",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(st.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			srv, err := api.NewServer(st.cfg, s)
			if err != nil {
				return err
			}
			return srv.Run(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
