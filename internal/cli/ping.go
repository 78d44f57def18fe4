package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignaciocaff/spbind/internal/datasource"
)

func newPingCommand(o *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "open every datasource and run its validation query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := o.load(cmd)
			if err != nil {
				return err
			}
			registry, err := datasource.Open(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := registry.Close(); err != nil {
					logger.Warn().Err(err).Msg("cannot close datasources")
				}
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			results, pingErr := registry.Ping(ctx)
			for _, name := range cfg.DataSourceNames() {
				status := "ok"
				if err := results[name]; err != nil {
					status = "FAILED: " + err.Error()
					logger.Error().Err(err).Str("datasource", name).Msg("ping failed")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", name, cfg.DataSources[name].Driver, status)
			}
			return pingErr
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall ping timeout")
	return cmd
}
