package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scribe-cli/internal/api"
	"github.com/xkilldash9x/scribe-cli/internal/observability"
)

// newServeCmd creates the `serve` command.
func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the publishing workflow over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ServerCfg.Addr = addr
			}
			srv := api.NewServer(cfg, newService(cfg), observability.GetLogger())
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	return cmd
}
