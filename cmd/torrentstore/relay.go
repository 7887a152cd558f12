package main

import (
	"github.com/spf13/cobra"

	"torrentstore/internal/engine"
)

func newRelayCmd(c *cli) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Serve the host agent gRPC API in front of a XenAPI session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.cfg
			if listen != "" {
				cfg.Relay.Listen = listen
			}
			r, err := engine.NewRelay(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return r.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override relay.listen")
	return cmd
}
